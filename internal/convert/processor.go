package convert

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/PNNL-Comp-Mass-Spec/Thermo-FAIMS-to-MzML/internal/discovery"
	"github.com/PNNL-Comp-Mass-Spec/Thermo-FAIMS-to-MzML/internal/history"
	"github.com/PNNL-Comp-Mass-Spec/Thermo-FAIMS-to-MzML/internal/ledger"
	"github.com/PNNL-Comp-Mass-Spec/Thermo-FAIMS-to-MzML/internal/rawfile"
)

// ErrNoFaimsScans reports an input file whose scans carry no compensation
// voltage markers at all.
var ErrNoFaimsScans = errors.New("no FAIMS scans found")

// ReaderFactory opens the scan metadata source for one input file.
type ReaderFactory func(inputPath string) (rawfile.ScanReader, error)

// Processor drives the full per-file pipeline: voltage discovery, one
// conversion per voltage, and the optional renumber/reindex pass.
// Files are handled strictly one at a time.
type Processor struct {
	driver     *Driver
	discoverer *discovery.Discoverer
	logger     *zap.Logger
	store      *history.Store
	noProgress bool
	preview    bool
}

// NewProcessor creates a Processor. store may be nil to disable history.
func NewProcessor(driver *Driver, logger *zap.Logger, store *history.Store, noProgress bool) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		driver:     driver,
		discoverer: discovery.New(logger),
		logger:     logger,
		store:      store,
		noProgress: noProgress,
		preview:    driver.opts.Preview,
	}
}

// ProcessFile converts one input file, producing one output per discovered
// compensation voltage. Every voltage is attempted; the return value is
// true only if all of them succeeded.
func (p *Processor) ProcessFile(ctx context.Context, inputPath string, reader rawfile.ScanReader) (bool, error) {
	warnings := ledger.NewScanWarningLedger(inputPath, p.logger)

	observations := p.discoverer.Discover(reader, warnings, p.preview)
	if len(observations) == 0 {
		return false, fmt.Errorf("%w in %s", ErrNoFaimsScans, inputPath)
	}

	p.logger.Info("discovered compensation voltages",
		zap.String("input", inputPath),
		zap.Int("voltages", len(observations)),
		zap.Int("scanWarnings", warnings.Count()))

	bar := p.newBar(inputPath, len(observations))

	allSucceeded := true
	for _, obs := range observations {
		outcome := p.driver.ConvertCV(ctx, inputPath, obs)
		allSucceeded = allSucceeded && outcome.Success

		if p.store != nil && !p.preview {
			rec := &history.Record{
				InputFile:  inputPath,
				CV:         outcome.CV,
				OutputFile: outcome.OutputPath,
				Success:    outcome.Success,
				Duration:   outcome.Duration,
			}
			if err := p.store.RecordOutcome(rec); err != nil {
				p.logger.Warn("could not record conversion history", zap.Error(err))
			}
		}

		if bar != nil {
			_ = bar.Add(1)
		}
	}
	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}

	return allSucceeded, nil
}

func (p *Processor) newBar(inputPath string, total int) *progressbar.ProgressBar {
	if p.noProgress || p.preview {
		return nil
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(filepath.Base(inputPath)),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

// ProcessMatching expands the input pattern, optionally recursing into
// subdirectories up to depth levels, and processes every match
// sequentially. With ignoreErrors set, a failing file does not stop the
// remaining files; the overall result still reports the failure.
func (p *Processor) ProcessMatching(ctx context.Context, pattern string, depth int, ignoreErrors bool, openReader ReaderFactory) (bool, error) {
	matches, err := expandPattern(pattern, depth)
	if err != nil {
		return false, err
	}
	if len(matches) == 0 {
		return false, fmt.Errorf("no input files match %s", pattern)
	}

	allSucceeded := true
	for _, inputPath := range matches {
		reader, err := openReader(inputPath)
		if err != nil {
			if !ignoreErrors {
				return false, fmt.Errorf("failed to open scan metadata for %s: %w", inputPath, err)
			}
			p.logger.Error("skipping input file", zap.String("input", inputPath), zap.Error(err))
			allSucceeded = false
			continue
		}

		ok, err := p.ProcessFile(ctx, inputPath, reader)
		if err != nil {
			if !ignoreErrors {
				return false, err
			}
			p.logger.Error("file failed", zap.String("input", inputPath), zap.Error(err))
			allSucceeded = false
			continue
		}
		allSucceeded = allSucceeded && ok
	}

	return allSucceeded, nil
}

// expandPattern resolves a literal path or glob, then repeats the glob's
// base pattern in subdirectories down to the requested depth.
func expandPattern(pattern string, depth int) ([]string, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("bad input pattern %s: %w", pattern, err)
	}

	if depth > 0 {
		dir := filepath.Dir(pattern)
		base := filepath.Base(pattern)
		nested, err := globRecursive(dir, base, depth)
		if err != nil {
			return nil, err
		}
		matches = append(matches, nested...)
	}

	var files []string
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil || info.IsDir() {
			continue
		}
		files = append(files, match)
	}
	return files, nil
}

func globRecursive(dir, base string, depth int) ([]string, error) {
	if depth == 0 {
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var matches []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		sub := filepath.Join(dir, entry.Name())
		found, err := filepath.Glob(filepath.Join(sub, base))
		if err != nil {
			return nil, err
		}
		matches = append(matches, found...)

		nested, err := globRecursive(sub, base, depth-1)
		if err != nil {
			return nil, err
		}
		matches = append(matches, nested...)
	}
	return matches, nil
}
