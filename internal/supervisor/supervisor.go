package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"go.uber.org/zap"
)

// defaultPollInterval is how often the supervisor checks a running child.
// Coarse on purpose; converter runs are measured in minutes.
const defaultPollInterval = 2 * time.Second

// State describes where a supervised process ended up.
type State int

const (
	Running State = iota
	Completed
	TimedOut
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Completed:
		return "completed"
	case TimedOut:
		return "timed out"
	default:
		return "unknown"
	}
}

// Command describes an external program invocation.
type Command struct {
	Program string
	Args    []string
	WorkDir string
	// TimeoutMinutes bounds the run; zero or negative means unlimited.
	TimeoutMinutes int

	// timeoutOverride substitutes for TimeoutMinutes in tests.
	timeoutOverride time.Duration
}

func (c Command) timeout() time.Duration {
	if c.timeoutOverride > 0 {
		return c.timeoutOverride
	}
	if c.TimeoutMinutes <= 0 {
		return 0
	}
	return time.Duration(c.TimeoutMinutes) * time.Minute
}

// Result reports the final state of a supervised process.
type Result struct {
	State    State
	ExitCode int
}

// Success reports whether the process completed with exit code zero.
func (r Result) Success() bool {
	return r.State == Completed && r.ExitCode == 0
}

// Supervisor launches external commands, streams their output to the
// console without buffering, and polls for completion until the process
// exits or its timeout elapses. On timeout the child is killed, not asked
// to shut down.
type Supervisor struct {
	logger       *zap.Logger
	pollInterval time.Duration
}

// New creates a Supervisor.
func New(logger *zap.Logger) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{logger: logger, pollInterval: defaultPollInterval}
}

// Run executes the command and waits for it to finish.
//
// A timeout produces state TimedOut and a non-nil error; that is a hard
// stop for the step that requested the run. A non-zero exit produces state
// Completed with the exit code and a nil error; the caller decides whether
// that aborts the larger operation.
func (s *Supervisor) Run(ctx context.Context, command Command) (Result, error) {
	cmd := exec.Command(command.Program, command.Args...)
	cmd.Dir = command.WorkDir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("failed to start %s: %w", command.Program, err)
	}

	s.logger.Info("external process started",
		zap.String("program", command.Program),
		zap.Strings("args", command.Args),
		zap.Int("pid", cmd.Process.Pid))

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	var deadline time.Time
	if timeout := command.timeout(); timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case waitErr := <-done:
			return s.finish(command, waitErr)
		case <-ctx.Done():
			_ = cmd.Process.Kill()
			<-done
			return Result{State: TimedOut, ExitCode: -1},
				fmt.Errorf("%s cancelled: %w", command.Program, ctx.Err())
		case <-ticker.C:
			if !deadline.IsZero() && time.Now().After(deadline) {
				_ = cmd.Process.Kill()
				<-done
				s.logger.Error("external process timed out; killed",
					zap.String("program", command.Program),
					zap.Int("timeoutMinutes", command.TimeoutMinutes))
				return Result{State: TimedOut, ExitCode: -1},
					fmt.Errorf("%s did not finish within the %d minute limit; raise the timeout if the conversion is expected to take longer",
						command.Program, command.TimeoutMinutes)
			}
			s.logger.Debug("external process running",
				zap.String("program", command.Program),
				zap.Int("pid", cmd.Process.Pid))
		}
	}
}

func (s *Supervisor) finish(command Command, waitErr error) (Result, error) {
	if waitErr == nil {
		s.logger.Info("external process completed",
			zap.String("program", command.Program))
		return Result{State: Completed, ExitCode: 0}, nil
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		code := exitErr.ExitCode()
		// Tolerated as a soft failure: some converters exit non-zero for
		// informational conditions, so the caller chooses how to react.
		s.logger.Warn("external process exited with non-zero code",
			zap.String("program", command.Program),
			zap.Int("exitCode", code))
		return Result{State: Completed, ExitCode: code}, nil
	}

	return Result{State: Completed, ExitCode: -1},
		fmt.Errorf("failed waiting for %s: %w", command.Program, waitErr)
}
