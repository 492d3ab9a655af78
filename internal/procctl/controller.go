package procctl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"taskguard/internal/faults"
	"taskguard/internal/logging"
	"taskguard/internal/pidfile"
	"taskguard/internal/transport"
)

// DefaultShortTimeout bounds ExecuteShort when no timeout is given.
const DefaultShortTimeout = 30 * time.Second

// Controller operates on task instances through their pid records.
type Controller struct {
	store        *pidfile.Store
	opener       transport.Opener
	logger       *slog.Logger
	shortTimeout time.Duration
}

// Option customizes a Controller.
type Option func(*Controller)

// WithLogger sets the controller logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logging.NewComponentLogger(logger, "procctl")
	}
}

// WithShortTimeout overrides DefaultShortTimeout.
func WithShortTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.shortTimeout = d
		}
	}
}

// New constructs a Controller.
func New(store *pidfile.Store, opener transport.Opener, opts ...Option) *Controller {
	c := &Controller{
		store:        store,
		opener:       opener,
		logger:       logging.NewNop(),
		shortTimeout: DefaultShortTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// KillResult describes a completed Kill.
type KillResult struct {
	Task string
	Host string
	PID  int
	// Killed is true when the termination signal was delivered.
	Killed bool
	// AlreadyGone is true when the recorded pid no longer existed.
	AlreadyGone bool
	Cleared     pidfile.ClearResult
}

// ShortResult is the outcome of ExecuteShort.
type ShortResult struct {
	ExitCode int
	Output   []byte
	Elapsed  time.Duration
}

// GetPID returns the record for task on host, or nil when there is none.
func (c *Controller) GetPID(ctx context.Context, task, host string) (*pidfile.Record, error) {
	return c.store.Read(ctx, task, host)
}

// Kill forcefully terminates the recorded instance of task on host and then
// clears its record. A zero timeout means no limit.
//
// If the kill succeeds but the clear fails, the returned KillResult still
// reports the kill and the error matches faults.ErrCleanup only.
func (c *Controller) Kill(ctx context.Context, task, host string, timeout time.Duration) (KillResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	rec, err := c.GetPID(ctx, task, host)
	if err != nil {
		return KillResult{}, err
	}
	if rec == nil {
		return KillResult{}, faults.NoSuchProcess(task, host)
	}

	result := KillResult{Task: task, Host: rec.Host, PID: rec.PID}
	t, err := c.opener.Open(host)
	if err != nil {
		return result, err
	}
	defer t.Close()

	switch err := t.Kill(ctx, rec.PID); {
	case err == nil:
		result.Killed = true
	case errors.Is(err, transport.ErrProcessGone):
		result.AlreadyGone = true
		c.logger.Info("recorded process already gone",
			logging.Task(task), logging.Host(rec.Host), logging.PID(rec.PID))
	case errors.Is(err, faults.ErrHostUnreachable):
		return result, err
	default:
		return result, faults.Wrap(nil, task, rec.Host, "kill pid "+strconv.Itoa(rec.PID), err)
	}

	cleared, err := c.store.Clear(ctx, task, host)
	if err != nil {
		logging.WarnWithContext(c.logger, "pid record not cleared after kill", "pid_clear_failed",
			logging.Task(task), logging.Host(rec.Host), logging.PID(rec.PID), logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the pid file manually"),
			logging.String(logging.FieldImpact, "status will report a stale record"))
		// Keep only the cause's text so the kill is never classified by it.
		return result, faults.Wrap(faults.ErrCleanup, task, rec.Host, "clear pid record", errors.New(err.Error()))
	}
	result.Cleared = cleared
	c.logger.Info("process killed",
		logging.Task(task), logging.Host(rec.Host), logging.PID(rec.PID),
		logging.Bool("already_gone", result.AlreadyGone))
	return result, nil
}

// ExecuteShort runs command on host and captures combined output. If it
// has not finished within timeout (DefaultShortTimeout when zero) the call
// returns faults.ErrTimeoutExceeded without waiting further.
func (c *Controller) ExecuteShort(ctx context.Context, host, command string, timeout time.Duration) (ShortResult, error) {
	if timeout <= 0 {
		timeout = c.shortTimeout
	}
	t, err := c.opener.Open(host)
	if err != nil {
		return ShortResult{}, err
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	type outcome struct {
		res transport.Result
		err error
	}
	done := make(chan outcome, 1)
	start := time.Now()
	go func() {
		defer t.Close()
		res, err := t.Run(runCtx, command)
		done <- outcome{res, err}
	}()

	select {
	case out := <-done:
		cancel()
		result := ShortResult{ExitCode: out.res.ExitCode, Output: out.res.Output, Elapsed: time.Since(start)}
		if out.err != nil {
			if errors.Is(out.err, context.DeadlineExceeded) && ctx.Err() == nil {
				return result, timeoutError(host, command, timeout)
			}
			return result, out.err
		}
		c.logOutput(host, command, result)
		return result, nil
	case <-runCtx.Done():
		cancel()
		if ctx.Err() != nil {
			return ShortResult{ExitCode: -1, Elapsed: time.Since(start)}, ctx.Err()
		}
		return ShortResult{ExitCode: -1, Elapsed: time.Since(start)}, timeoutError(host, command, timeout)
	}
}

func timeoutError(host, command string, timeout time.Duration) error {
	return faults.Wrap(faults.ErrTimeoutExceeded, "", host, fmt.Sprintf("execute %q", command),
		fmt.Errorf("no result after %s", timeout))
}

func (c *Controller) logOutput(host, command string, result ShortResult) {
	c.logger.Debug("command finished",
		logging.Host(host), logging.String("command", command),
		logging.Int("exit_code", result.ExitCode), logging.Duration("elapsed", result.Elapsed))
	for _, line := range strings.Split(strings.TrimRight(string(result.Output), "\n"), "\n") {
		if line == "" {
			continue
		}
		c.logger.Debug("> "+line, logging.Host(host))
	}
}

// ExecuteLong runs command on host with output attached to stdout and
// stderr until it exits. Cancelling ctx (an operator interrupt) forwards a
// termination request and waits for the command before returning nil.
func (c *Controller) ExecuteLong(ctx context.Context, host, command string, stdout, stderr io.Writer) error {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	t, err := c.opener.Open(host)
	if err != nil {
		return err
	}
	defer t.Close()

	err = t.Stream(ctx, command, stdout, stderr)
	if errors.Is(err, context.Canceled) {
		c.logger.Debug("long command interrupted", logging.Host(host), logging.String("command", command))
		return nil
	}
	return err
}

// Alive reports whether pid exists on host. It is informational only;
// exclusivity never depends on it.
func (c *Controller) Alive(ctx context.Context, host string, pid int) (bool, error) {
	if pid <= 0 {
		return false, nil
	}
	t, err := c.opener.Open(host)
	if err != nil {
		return false, err
	}
	defer t.Close()

	if t.Local() {
		return process.PidExistsWithContext(ctx, int32(pid))
	}
	res, err := t.Run(ctx, "kill -0 "+strconv.Itoa(pid))
	if err != nil {
		return false, err
	}
	if res.ExitCode == 0 {
		return true, nil
	}
	// kill -0 on another user's process fails with EPERM but it exists.
	return bytes.Contains(res.Output, []byte("not permitted")), nil
}
