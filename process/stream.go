package process

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"syscall"
	"time"
)

// StreamHandle is a running subprocess whose stdout is consumed as a stream.
// Read stdout via Stdout until EOF, then call Wait to collect the exit status
// and captured stderr. Close releases the process without caring about the
// exit status.
type StreamHandle struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *bytes.Buffer
	start  time.Time
}

// Stream starts a subprocess and returns a handle for reading its stdout
// incrementally. Stderr is buffered for error reporting. If the context is
// canceled, SIGTERM is sent to the process group, then SIGKILL after the
// grace period.
func Stream(ctx context.Context, cmd Command) (*StreamHandle, error) {
	if cmd.Binary == "" {
		return nil, fmt.Errorf("process: binary is required")
	}

	gracePeriod := cmd.GracePeriod
	if gracePeriod == 0 {
		gracePeriod = 5 * time.Second
	}

	c := exec.CommandContext(ctx, cmd.Binary, cmd.Args...) //nolint:gosec // dynamic args are the purpose of this package
	c.Dir = cmd.Dir
	c.Env = mergeEnv(cmd.Env)

	var stderr bytes.Buffer
	c.Stderr = &stderr

	if cmd.Stdin != nil {
		c.Stdin = cmd.Stdin
	}

	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	c.Cancel = func() error {
		if c.Process == nil {
			return nil
		}
		return syscall.Kill(-c.Process.Pid, syscall.SIGTERM)
	}
	c.WaitDelay = gracePeriod

	stdout, err := c.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("process: stdout pipe: %w", err)
	}

	start := time.Now()
	if err := c.Start(); err != nil {
		return nil, fmt.Errorf("process: start %s: %w", cmd.Binary, err)
	}

	return &StreamHandle{
		cmd:    c,
		stdout: stdout,
		stderr: &stderr,
		start:  start,
	}, nil
}

// Stdout returns the reader for the process standard output.
func (h *StreamHandle) Stdout() io.Reader {
	return h.stdout
}

// Wait blocks until the process exits and returns its result. The Stdout
// reader must be drained (or the stream read to EOF) before calling Wait.
func (h *StreamHandle) Wait(ctx context.Context) (*Result, error) {
	err := h.cmd.Wait()
	result := &Result{
		Stderr:   h.stderr.Bytes(),
		ExitCode: h.cmd.ProcessState.ExitCode(),
		Duration: time.Since(h.start),
	}

	if err != nil {
		if ctx.Err() != nil {
			return result, fmt.Errorf("process: killed by context: %w", ctx.Err())
		}
		return result, fmt.Errorf("process: exit code %d: %w", result.ExitCode, err)
	}
	return result, nil
}

// Close terminates the process if still running and discards its exit status.
func (h *StreamHandle) Close() error {
	if h.cmd.Process != nil {
		_ = syscall.Kill(-h.cmd.Process.Pid, syscall.SIGTERM)
	}
	_ = h.stdout.Close()
	_ = h.cmd.Wait()
	return nil
}
