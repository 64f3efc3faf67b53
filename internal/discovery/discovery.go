package discovery

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/PNNL-Comp-Mass-Spec/Thermo-FAIMS-to-MzML/internal/ledger"
	"github.com/PNNL-Comp-Mass-Spec/Thermo-FAIMS-to-MzML/internal/rawfile"
)

// earlyStopThreshold is the per-value occurrence count after which preview
// discovery may stop scanning. Tuned to typical FAIMS cycling behaviour;
// lowering it can truncate discovery before every voltage has appeared.
const earlyStopThreshold = 50

// cvPattern extracts the compensation voltage marker and the number that
// follows it. The number is an unbroken run of digits, '.', '+', '-'.
var cvPattern = regexp.MustCompile(`(?i)cv=([0-9.+\-]+)`)

// Observation is one distinct compensation voltage found during discovery.
type Observation struct {
	// Value is the parsed voltage; identity is exact float equality.
	Value float64
	// FilterMatch is the exact matched substring, e.g. "cv=-45.00",
	// used verbatim as the converter's filter argument.
	FilterMatch string
	// Count is how many scans carried this value; used only by the
	// early-stop heuristic.
	Count int
}

// Discoverer scans an acquisition's metadata for distinct compensation
// voltages.
type Discoverer struct {
	logger *zap.Logger
}

// New creates a Discoverer.
func New(logger *zap.Logger) *Discoverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Discoverer{logger: logger}
}

// Discover iterates every scan in the reader's range and returns the
// distinct compensation voltages in first-seen order.
//
// In preview mode discovery stops early once every known value has been
// seen more than 50 times, on the assumption that the instrument cycles
// uniformly through its CV list. Full runs always scan the entire range.
func (d *Discoverer) Discover(reader rawfile.ScanReader, warnings *ledger.ScanWarningLedger, preview bool) []Observation {
	var observations []Observation
	index := make(map[float64]int)

	start := reader.ScanRangeStart()
	end := reader.ScanRangeEnd()
	d.logger.Debug("scanning for compensation voltages",
		zap.Int("scanStart", start),
		zap.Int("scanEnd", end),
		zap.Bool("preview", preview))

	for scanNumber := start; scanNumber <= end; scanNumber++ {
		filterText, found := reader.FilterText(scanNumber)
		if !found {
			d.logger.Debug("scan not found; skipping", zap.Int("scan", scanNumber))
			continue
		}

		if !strings.Contains(strings.ToLower(filterText), "cv=") {
			warnings.Warn(scanNumber, fmt.Sprintf("Scan %d does not contain cv=; skipping", scanNumber))
			continue
		}

		match := cvPattern.FindStringSubmatch(filterText)
		if match == nil {
			warnings.Warn(scanNumber, fmt.Sprintf("Scan %d has cv= but not followed by a number; skipping", scanNumber))
			continue
		}

		value, err := strconv.ParseFloat(match[1], 64)
		if err != nil {
			warnings.Warn(scanNumber, fmt.Sprintf("Scan %d has unparseable compensation voltage %q; skipping", scanNumber, match[1]))
			continue
		}

		if i, known := index[value]; known {
			observations[i].Count++
			if preview && observations[i].Count > earlyStopThreshold && allPastThreshold(observations) {
				d.logger.Info("every compensation voltage seen over 50 times; stopping preview scan early",
					zap.Int("lastScan", scanNumber),
					zap.Int("voltages", len(observations)))
				break
			}
			continue
		}

		index[value] = len(observations)
		observations = append(observations, Observation{
			Value:       value,
			FilterMatch: match[0],
			Count:       1,
		})
		d.logger.Info("found compensation voltage",
			zap.Float64("cv", value),
			zap.String("filterMatch", match[0]),
			zap.Int("scan", scanNumber))
	}

	return observations
}

func allPastThreshold(observations []Observation) bool {
	for _, obs := range observations {
		if obs.Count <= earlyStopThreshold {
			return false
		}
	}
	return true
}
