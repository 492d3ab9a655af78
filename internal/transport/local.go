package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"taskguard/internal/hosts"
)

// DefaultStopGrace bounds how long Stream waits after SIGTERM before the
// command is killed outright.
const DefaultStopGrace = 10 * time.Second

// Local runs operations on this machine.
type Local struct {
	// StopGrace overrides DefaultStopGrace for Stream.
	StopGrace time.Duration
}

func (l *Local) Host() string { return hosts.Loopback }

func (l *Local) Local() bool { return true }

func (l *Local) Close() error { return nil }

// Run executes command through sh -c. When ctx ends the whole process group
// is killed and Run returns ctx.Err() without waiting for stray descendants
// holding the output pipe.
func (l *Local) Run(ctx context.Context, command string) (Result, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
	cmd.WaitDelay = 500 * time.Millisecond

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	result := Result{Output: out.Bytes()}
	if ctxErr := ctx.Err(); ctxErr != nil {
		result.ExitCode = -1
		return result, ctxErr
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, fmt.Errorf("run %q: %w", command, err)
	}
	return result, nil
}

func (l *Local) ReadFile(_ context.Context, path string) ([]byte, error) {
	return os.ReadFile(path)
}

func (l *Local) RemoveFile(_ context.Context, path string) error {
	return os.Remove(path)
}

// Kill sends SIGKILL to pid.
func (l *Local) Kill(_ context.Context, pid int) error {
	if pid <= 0 {
		return fmt.Errorf("refusing to signal pid %d", pid)
	}
	if err := unix.Kill(pid, unix.SIGKILL); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return fmt.Errorf("pid %d: %w", pid, ErrProcessGone)
		}
		return fmt.Errorf("kill pid %d: %w", pid, err)
	}
	return nil
}

// Stream runs command with its output attached to stdout and stderr. On
// cancellation the child receives SIGTERM and is waited for.
func (l *Local) Stream(ctx context.Context, command string, stdout, stderr io.Writer) error {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Stdin = os.Stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = l.stopGrace()

	err := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &CommandError{Host: l.Host(), Command: command, ExitCode: exitErr.ExitCode()}
		}
		return fmt.Errorf("run %q: %w", command, err)
	}
	return nil
}

func (l *Local) stopGrace() time.Duration {
	if l.StopGrace > 0 {
		return l.StopGrace
	}
	return DefaultStopGrace
}
