package ledger

import (
	"go.uber.org/zap"
)

const (
	// Warnings for a file are emitted verbatim this many times...
	warnUnconditional = 10
	// ...then only every Nth occurrence after that.
	warnInterval = 100
)

// ScanWarningLedger tracks scans that failed compensation-voltage extraction
// for a single source file and rate-limits the warnings they produce.
// Create one ledger per processed file; it holds no global state.
type ScanWarningLedger struct {
	sourceFile string
	logger     *zap.Logger
	count      int
	scans      []int
}

// NewScanWarningLedger creates an empty ledger for one source file.
func NewScanWarningLedger(sourceFile string, logger *zap.Logger) *ScanWarningLedger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScanWarningLedger{sourceFile: sourceFile, logger: logger}
}

// Warn records a warning for the given scan number and emits it unless the
// rate limit suppresses it: the first 10 warnings always go out, after that
// only every 100th.
func (l *ScanWarningLedger) Warn(scanNumber int, message string) {
	l.count++
	l.scans = append(l.scans, scanNumber)

	if l.count <= warnUnconditional || l.count%warnInterval == 0 {
		l.logger.Warn(message,
			zap.String("file", l.sourceFile),
			zap.Int("scan", scanNumber),
			zap.Int("warningCount", l.count))
	}
}

// Count returns the total number of warnings recorded, including
// suppressed ones.
func (l *ScanWarningLedger) Count() int {
	return l.count
}

// Scans returns the scan numbers that produced warnings, in order.
func (l *ScanWarningLedger) Scans() []int {
	return l.scans
}
