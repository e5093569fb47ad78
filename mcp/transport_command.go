package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
)

// CommandTransport runs a server as a child process and talks to it over the
// child's standard input and output. The child's standard error is passed
// through for diagnostics.
type CommandTransport struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser

	closeOnce sync.Once
	closeErr  error
}

// CommandOption configures the child process before it starts.
type CommandOption func(*exec.Cmd)

// WithCommandStderr redirects the child's standard error. The default is the
// parent's standard error.
func WithCommandStderr(w io.Writer) CommandOption {
	return func(cmd *exec.Cmd) { cmd.Stderr = w }
}

// WithCommandEnv appends environment variables to the inherited environment.
func WithCommandEnv(env ...string) CommandOption {
	return func(cmd *exec.Cmd) { cmd.Env = append(os.Environ(), env...) }
}

// StartCommand starts name with args. The child is killed if ctx ends.
func StartCommand(ctx context.Context, name string, args []string, opts ...CommandOption) (*CommandTransport, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = os.Stderr
	for _, opt := range opts {
		opt(cmd)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", name, err)
	}

	return &CommandTransport{cmd: cmd, stdin: stdin, stdout: stdout}, nil
}

// Read reads from the child's standard output.
func (t *CommandTransport) Read(p []byte) (int, error) { return t.stdout.Read(p) }

// Write writes to the child's standard input.
func (t *CommandTransport) Write(p []byte) (int, error) { return t.stdin.Write(p) }

// Pid returns the child's process id.
func (t *CommandTransport) Pid() int {
	if t.cmd.Process == nil {
		return 0
	}
	return t.cmd.Process.Pid
}

// Close closes the child's standard input and waits for it to exit. A child
// that exits because it saw end of input is not an error. Safe to call more
// than once.
func (t *CommandTransport) Close() error {
	t.closeOnce.Do(func() {
		if err := t.stdin.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			t.closeErr = fmt.Errorf("failed to close stdin: %w", err)
		}
		if err := t.cmd.Wait(); err != nil {
			t.closeErr = errors.Join(t.closeErr, fmt.Errorf("server process: %w", err))
		}
	})
	return t.closeErr
}
