package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"syscall"
	"time"

	"taskguard/internal/hosts"
)

// SSHExec runs commands through the system ssh client. BatchMode is always
// on so a missing key fails instead of prompting.
type SSHExec struct {
	Target         hosts.Target
	Binary         string
	Port           int
	IdentityFile   string
	ConnectTimeout time.Duration
	StopGrace      time.Duration
}

func (s *SSHExec) Host() string { return s.Target.Host }

func (s *SSHExec) Local() bool { return false }

func (s *SSHExec) Close() error { return nil }

func (s *SSHExec) ops() remoteOps { return remoteOps{host: s.Target.Host, sh: s} }

func (s *SSHExec) Run(ctx context.Context, command string) (Result, error) {
	return s.ops().run(ctx, command)
}

func (s *SSHExec) ReadFile(ctx context.Context, path string) ([]byte, error) {
	return s.ops().readFile(ctx, path)
}

func (s *SSHExec) RemoveFile(ctx context.Context, path string) error {
	return s.ops().removeFile(ctx, path)
}

func (s *SSHExec) Kill(ctx context.Context, pid int) error {
	return s.ops().kill(ctx, pid)
}

func (s *SSHExec) Stream(ctx context.Context, command string, stdout, stderr io.Writer) error {
	return s.ops().stream(ctx, command, stdout, stderr)
}

// Args returns the ssh argument vector for command.
func (s *SSHExec) Args(command string, interactive bool) []string {
	args := []string{"-o", "BatchMode=yes"}
	if s.ConnectTimeout > 0 {
		secs := int(s.ConnectTimeout.Round(time.Second) / time.Second)
		if secs < 1 {
			secs = 1
		}
		args = append(args, "-o", "ConnectTimeout="+strconv.Itoa(secs))
	}
	if s.Port > 0 {
		args = append(args, "-p", strconv.Itoa(s.Port))
	}
	if s.IdentityFile != "" {
		args = append(args, "-i", s.IdentityFile)
	}
	if interactive {
		// A remote pty makes sshd hang up the remote command when the
		// local client goes away.
		args = append(args, "-tt")
	} else {
		args = append(args, "-T")
	}
	return append(args, s.Target.String(), command)
}

func (s *SSHExec) exec(ctx context.Context, command string, stdout, stderr io.Writer, interactive bool) (int, error) {
	binary := s.Binary
	if binary == "" {
		binary = "ssh"
	}
	cmd := exec.CommandContext(ctx, binary, s.Args(command, interactive)...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if interactive {
		cmd.Stdin = os.Stdin
		cmd.Cancel = func() error {
			return cmd.Process.Signal(syscall.SIGTERM)
		}
		cmd.WaitDelay = s.stopGrace()
	} else {
		cmd.WaitDelay = 500 * time.Millisecond
	}

	err := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return -1, ctxErr
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return -1, fmt.Errorf("start %s: %w", binary, err)
	}
	return 0, nil
}

func (s *SSHExec) stopGrace() time.Duration {
	if s.StopGrace > 0 {
		return s.StopGrace
	}
	return DefaultStopGrace
}
