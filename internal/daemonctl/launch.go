package daemonctl

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"taskguard/internal/pidfile"
)

// LaunchOptions controls detached daemon launch behavior.
type LaunchOptions struct {
	Task       string
	Command    []string
	ConfigPath string
	LogLevel   string
}

// LaunchArgs returns the argument vector for a foreground "run" of opts.
func LaunchArgs(opts LaunchOptions) []string {
	args := []string{"run"}
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		args = append(args, "--log-level", level)
	}
	args = append(args, opts.Task, "--")
	return append(args, opts.Command...)
}

// Launch starts a detached taskguard daemon in a new session and returns
// its pid. Output goes only to the task log.
func Launch(executablePath string, opts LaunchOptions) (int, error) {
	if strings.TrimSpace(executablePath) == "" {
		return 0, fmt.Errorf("resolve executable: executable path is empty")
	}
	if err := pidfile.ValidateTaskName(opts.Task); err != nil {
		return 0, err
	}
	if len(opts.Command) == 0 {
		return 0, fmt.Errorf("launch %s: no command given", opts.Task)
	}

	proc := exec.Command(executablePath, LaunchArgs(opts)...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return 0, fmt.Errorf("launch daemon: %w", err)
	}
	pid := proc.Process.Pid
	return pid, proc.Process.Release()
}

// WaitForStart polls until task's local pid record names pid, or timeout.
func (s *Service) WaitForStart(ctx context.Context, task string, pid int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		rec, err := s.ctl.GetPID(ctx, task, "")
		switch {
		case err != nil:
			lastErr = err
		case rec != nil && rec.PID == pid:
			return nil
		case rec != nil:
			lastErr = fmt.Errorf("record names pid %d, launched %d", rec.PID, pid)
		}
		alive, aliveErr := s.ctl.Alive(ctx, "", pid)
		if aliveErr == nil && !alive {
			return fmt.Errorf("daemon %d exited during startup; see %s", pid, s.cfg.LogPath(task))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for pid record")
	}
	return fmt.Errorf("daemon failed to start: %w", lastErr)
}
