package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestSupervisor() *Supervisor {
	s := New(zap.NewNop())
	s.pollInterval = 20 * time.Millisecond
	return s
}

func TestRunSuccess(t *testing.T) {
	s := newTestSupervisor()

	result, err := s.Run(context.Background(), Command{
		Program: "sh",
		Args:    []string{"-c", "exit 0"},
	})
	require.NoError(t, err)
	assert.Equal(t, Completed, result.State)
	assert.Equal(t, 0, result.ExitCode)
	assert.True(t, result.Success())
}

func TestRunNonZeroExit(t *testing.T) {
	s := newTestSupervisor()

	result, err := s.Run(context.Background(), Command{
		Program: "sh",
		Args:    []string{"-c", "exit 2"},
	})
	// Non-fatal: the caller decides how to treat a non-zero exit.
	require.NoError(t, err)
	assert.Equal(t, Completed, result.State)
	assert.Equal(t, 2, result.ExitCode)
	assert.False(t, result.Success())
}

func TestRunTimeout(t *testing.T) {
	s := newTestSupervisor()

	start := time.Now()
	result, err := s.Run(context.Background(), Command{
		Program:         "sh",
		Args:            []string{"-c", "sleep 30"},
		TimeoutMinutes:  1,
		timeoutOverride: 100 * time.Millisecond,
	})
	require.Error(t, err)
	assert.Equal(t, TimedOut, result.State)
	assert.False(t, result.Success())
	assert.Contains(t, err.Error(), "raise the timeout")
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestRunMissingProgram(t *testing.T) {
	s := newTestSupervisor()

	_, err := s.Run(context.Background(), Command{
		Program: "definitely-not-a-real-binary-name",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start")
}

func TestRunContextCancelled(t *testing.T) {
	s := newTestSupervisor()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	result, err := s.Run(ctx, Command{
		Program: "sh",
		Args:    []string{"-c", "sleep 30"},
	})
	require.Error(t, err)
	assert.Equal(t, TimedOut, result.State)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "running", Running.String())
	assert.Equal(t, "completed", Completed.String())
	assert.Equal(t, "timed out", TimedOut.String())
}
