package provision

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy means the job slot is still tracking a previous run.
	ErrBusy = errors.New("a job is already running, cancel it first")
	// ErrCancelled is returned by a run that was cancelled.
	ErrCancelled = errors.New("job cancelled")
	// ErrInvalidSpec wraps every validation and resource-check failure.
	ErrInvalidSpec = errors.New("invalid VM spec")
)

// FailureError carries the stdout line that contained the failure sentinel.
type FailureError struct {
	Kind string
	Line string
}

func (e *FailureError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Kind, e.Line)
}

// ExitError reports a run that ended without a success sentinel or with a
// non-zero exit code. LastStderr is the last stderr line, if any.
type ExitError struct {
	Kind       string
	Code       int
	LastStderr string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s process exited with code %d", e.Kind, e.Code)
	if e.LastStderr != "" {
		msg += ": " + e.LastStderr
	}
	return msg
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidSpec, fmt.Sprintf(format, args...))
}
