package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWarnRateLimiting(t *testing.T) {
	core, observed := observer.New(zap.WarnLevel)
	l := NewScanWarningLedger("test.raw", zap.New(core))

	for scan := 1; scan <= 250; scan++ {
		l.Warn(scan, "scan does not contain cv=; skipping")
	}

	assert.Equal(t, 250, l.Count())
	assert.Len(t, l.Scans(), 250)

	// First 10 unconditionally, then the 100th and 200th.
	require.Equal(t, 12, observed.Len())

	entries := observed.All()
	for i := 0; i < 10; i++ {
		assert.Equal(t, int64(i+1), entries[i].ContextMap()["warningCount"])
	}
	assert.Equal(t, int64(100), entries[10].ContextMap()["warningCount"])
	assert.Equal(t, int64(200), entries[11].ContextMap()["warningCount"])
}

func TestWarnNilLogger(t *testing.T) {
	l := NewScanWarningLedger("test.raw", nil)
	l.Warn(5, "has cv= but not followed by a number")
	assert.Equal(t, 1, l.Count())
	assert.Equal(t, []int{5}, l.Scans())
}
