package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Runner executes scripts through the host shell interpreter.
type Runner interface {
	// RunSync runs script to completion and returns its trimmed stdout.
	RunSync(ctx context.Context, script string) (string, error)
	// SpawnStreaming starts script with stdout and stderr piped and returns
	// without waiting. The caller must drain both pipes before Child.Wait.
	SpawnStreaming(ctx context.Context, script string) (*Child, error)
}

// Shell is the default Runner. On Windows it drives powershell with a hidden
// console and UTF-8 output; elsewhere it uses /bin/sh.
type Shell struct {
	program string
	Dir     string   // optional working dir
	Env     []string // optional extra env appended to os.Environ()
}

func NewShell() *Shell { return &Shell{program: defaultProgram} }

func (s *Shell) command(ctx context.Context, script string) *exec.Cmd {
	program := s.program
	if program == "" {
		program = defaultProgram
	}
	// #nosec G204
	cmd := exec.CommandContext(ctx, program, shellArgs(script)...)
	if s.Dir != "" {
		cmd.Dir = s.Dir
	}
	if len(s.Env) > 0 {
		cmd.Env = append(os.Environ(), s.Env...)
	}
	return cmd
}

func (s *Shell) RunSync(ctx context.Context, script string) (string, error) {
	cmd := s.command(ctx, script)
	configureSysProcAttr(cmd, false)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return decode(stdout.Bytes()), nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ctx.Err() != nil {
			return "", fmt.Errorf("command interrupted: %w", ctx.Err())
		}
		msg := decode(stderr.Bytes())
		if msg == "" {
			msg = decode(stdout.Bytes())
		}
		return "", &CommandError{ExitCode: exitErr.ExitCode(), Output: msg}
	}
	return "", &LaunchError{Program: cmd.Path, Err: err}
}

func (s *Shell) SpawnStreaming(ctx context.Context, script string) (*Child, error) {
	cmd := s.command(ctx, script)
	configureSysProcAttr(cmd, true)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &LaunchError{Program: cmd.Path, Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &LaunchError{Program: cmd.Path, Err: err}
	}
	if err := cmd.Start(); err != nil {
		return nil, &LaunchError{Program: cmd.Path, Err: err}
	}
	return &Child{cmd: cmd, Stdout: stdout, Stderr: stderr}, nil
}

// Child is a process started by SpawnStreaming.
type Child struct {
	cmd    *exec.Cmd
	Stdout io.ReadCloser
	Stderr io.ReadCloser
}

func (c *Child) PID() int {
	if c.cmd == nil || c.cmd.Process == nil {
		return 0
	}
	return c.cmd.Process.Pid
}

// Wait reaps the child and returns its exit code. A non-zero exit is not an
// error; err is only set when the wait itself failed.
func (c *Child) Wait() (int, error) {
	err := c.cmd.Wait()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, fmt.Errorf("failed to wait on child: %w", err)
}

// Launch starts a GUI program detached from any pipes and returns its pid.
// The process is reaped in the background.
func Launch(program string, args ...string) (int, error) {
	// #nosec G204
	cmd := exec.Command(program, args...)
	if err := cmd.Start(); err != nil {
		return 0, &LaunchError{Program: program, Err: err}
	}
	pid := cmd.Process.Pid
	go func() { _ = cmd.Wait() }()
	return pid, nil
}

// decode mirrors a lossy UTF-8 conversion followed by trimming.
func decode(b []byte) string {
	return strings.TrimSpace(strings.ToValidUTF8(string(b), "�"))
}
