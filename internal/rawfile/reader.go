package rawfile

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ScanReader provides read-only access to per-scan metadata of an
// instrument acquisition. Implementations must return filter text exactly
// as recorded by the instrument; the discovery layer matches on it verbatim.
type ScanReader interface {
	// ScanRangeStart returns the first valid scan number.
	ScanRangeStart() int
	// ScanRangeEnd returns the last valid scan number (inclusive).
	ScanRangeEnd() int
	// FilterText returns the scan filter string for the given scan number,
	// and whether the scan exists.
	FilterText(scanNumber int) (string, bool)
}

// SidecarPath returns the conventional scan filter index location for a
// raw file: the input name with its extension replaced by _ScanFilters.txt.
func SidecarPath(rawPath string) string {
	ext := filepath.Ext(rawPath)
	return strings.TrimSuffix(rawPath, ext) + "_ScanFilters.txt"
}

// FilterIndexReader reads scan filter text from a sidecar index file
// exported alongside a Thermo .raw acquisition. The format is one scan per
// line, tab-delimited: scan number, then the full filter string. Lines
// starting with '#' and blank lines are ignored.
type FilterIndexReader struct {
	start   int
	end     int
	filters map[int]string
}

// LoadFilterIndex parses a scan filter index file.
func LoadFilterIndex(path string) (*FilterIndexReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open scan filter index: %w", err)
	}
	defer f.Close()

	r := &FilterIndexReader{filters: make(map[int]string)}

	scanner := bufio.NewScanner(f)
	// Filter strings can be long for method-heavy acquisitions.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		scanField, filterText, found := strings.Cut(line, "\t")
		if !found {
			return nil, fmt.Errorf("line %d of %s: expected tab-delimited scan number and filter text", lineNumber, path)
		}

		scanNumber, err := strconv.Atoi(strings.TrimSpace(scanField))
		if err != nil {
			return nil, fmt.Errorf("line %d of %s: invalid scan number %q", lineNumber, path, scanField)
		}

		r.filters[scanNumber] = filterText
		if r.start == 0 || scanNumber < r.start {
			r.start = scanNumber
		}
		if scanNumber > r.end {
			r.end = scanNumber
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read scan filter index: %w", err)
	}

	if len(r.filters) == 0 {
		return nil, fmt.Errorf("scan filter index %s contains no scans", path)
	}

	return r, nil
}

// ScanRangeStart returns the lowest scan number in the index.
func (r *FilterIndexReader) ScanRangeStart() int {
	return r.start
}

// ScanRangeEnd returns the highest scan number in the index.
func (r *FilterIndexReader) ScanRangeEnd() int {
	return r.end
}

// FilterText returns the filter string for a scan number.
func (r *FilterIndexReader) FilterText(scanNumber int) (string, bool) {
	text, ok := r.filters[scanNumber]
	return text, ok
}

// ScanCount returns the number of scans in the index.
func (r *FilterIndexReader) ScanCount() int {
	return len(r.filters)
}
