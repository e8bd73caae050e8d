package process

import "fmt"

// LaunchError reports that the interpreter or program could not be started
// at all (binary missing, permission denied).
type LaunchError struct {
	Program string
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to execute %s: %v", e.Program, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// CommandError is returned by RunSync when the command ran but exited
// non-zero. Output holds trimmed stderr, or stdout when stderr was empty.
type CommandError struct {
	ExitCode int
	Output   string
}

func (e *CommandError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("command exited with code %d", e.ExitCode)
	}
	return e.Output
}
