package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.sqlite3"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecordAndRecent(t *testing.T) {
	store := openTestStore(t)

	first := &Record{
		InputFile:  "sample.raw",
		CV:         -45,
		OutputFile: "sample_-45.mzML",
		Success:    true,
		Duration:   90 * time.Second,
	}
	require.NoError(t, store.RecordOutcome(first))
	assert.NotZero(t, first.ID)

	require.NoError(t, store.RecordOutcome(&Record{
		InputFile:  "sample.raw",
		CV:         -65,
		OutputFile: "sample_-65.mzML",
		Success:    false,
		Duration:   5 * time.Second,
	}))

	records, err := store.Recent(10)
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Newest first.
	assert.Equal(t, -65.0, records[0].CV)
	assert.False(t, records[0].Success)
	assert.Equal(t, -45.0, records[1].CV)
	assert.True(t, records[1].Success)
	assert.Equal(t, 90*time.Second, records[1].Duration)
}

func TestRecentLimit(t *testing.T) {
	store := openTestStore(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, store.RecordOutcome(&Record{
			InputFile:  "sample.raw",
			CV:         float64(-40 - i*10),
			OutputFile: "out.mzML",
			Success:    true,
		}))
	}

	records, err := store.Recent(3)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestRecentEmpty(t *testing.T) {
	store := openTestStore(t)
	records, err := store.Recent(10)
	require.NoError(t, err)
	assert.Empty(t, records)
}
