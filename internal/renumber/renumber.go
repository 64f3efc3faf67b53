package renumber

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// spectrumPattern is the exact shape msconvert writes spectrum openings in.
// Anything starting with "<spectrum " that does not match signals an
// unexpected converter version and must not be silently miscorrected.
var spectrumPattern = regexp.MustCompile(
	`^(\s*)<spectrum index="(\d+)" id="controllerType=(\d+) controllerNumber=(\d+) scan=(\d+)(.*)$`)

const (
	wrapperOpenPrefix = "<indexedmzML"
	terminalCloseTag  = "</mzML>"
	spectrumPrefix    = "<spectrum "
)

// Renumberer rewrites spectrum indices and scan numbers in a
// converter-produced mzML file to a contiguous sequence.
type Renumberer struct {
	logger *zap.Logger
}

// New creates a Renumberer.
func New(logger *zap.Logger) *Renumberer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Renumberer{logger: logger}
}

// RenumberFile streams srcPath into dstPath, rewriting spectrum index
// attributes to a 0-based contiguous sequence and the scan= number inside
// the id attribute to the matching 1-based sequence. The indexedmzML
// wrapper element is dropped and everything after the closing mzML tag is
// discarded; those offsets are stale once content moves and are rebuilt by
// the reindex pass.
//
// On failure no partial destination file is left behind.
func (r *Renumberer) RenumberFile(srcPath, dstPath string) (err error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", srcPath, err)
	}
	defer src.Close()

	dst, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dstPath, err)
	}

	defer func() {
		if closeErr := dst.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		if err != nil {
			os.Remove(dstPath)
		}
	}()

	spectra, err := r.renumber(src, dst)
	if err != nil {
		return fmt.Errorf("failed to renumber %s: %w", srcPath, err)
	}

	r.logger.Info("renumbered spectra",
		zap.String("source", srcPath),
		zap.String("destination", dstPath),
		zap.Int("spectra", spectra))
	return nil
}

// renumber streams the rewrite and returns the number of spectra rewritten.
func (r *Renumberer) renumber(src io.Reader, dst io.Writer) (int, error) {
	w := bufio.NewWriter(dst)

	scanner := bufio.NewScanner(src)
	// Spectrum lines carry long attribute lists.
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	wrapperSkipped := false
	index := 0
	scanNumber := 1

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if !wrapperSkipped && strings.HasPrefix(trimmed, wrapperOpenPrefix) {
			wrapperSkipped = true
			continue
		}

		if trimmed == terminalCloseTag {
			// The rest of the source is the trailing index block; the
			// reindex pass regenerates it.
			if _, err := w.WriteString(line + "\n"); err != nil {
				return index, err
			}
			return index, w.Flush()
		}

		if match := spectrumPattern.FindStringSubmatch(line); match != nil {
			rewritten := fmt.Sprintf(`%s<spectrum index="%d" id="controllerType=%s controllerNumber=%s scan=%d%s`,
				match[1], index, match[3], match[4], scanNumber, match[6])
			if _, err := w.WriteString(rewritten + "\n"); err != nil {
				return index, err
			}
			index++
			scanNumber++
			continue
		}

		if strings.HasPrefix(trimmed, spectrumPrefix) {
			return index, fmt.Errorf("spectrum element does not match the expected msconvert format: %s", trimmed)
		}

		if _, err := w.WriteString(line + "\n"); err != nil {
			return index, err
		}
	}

	if err := scanner.Err(); err != nil {
		return index, err
	}
	return index, w.Flush()
}
