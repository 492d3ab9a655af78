package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"taskguard/internal/config"
	"taskguard/internal/faults"
	"taskguard/internal/history"
	"taskguard/internal/hosts"
	"taskguard/internal/instance"
	"taskguard/internal/logging"
	"taskguard/internal/notifications"
	"taskguard/internal/pidfile"
	"taskguard/internal/shutdown"
	"taskguard/internal/transport"
)

// Options configures a daemon run.
type Options struct {
	Task    string
	Command []string
	// LogLevel overrides logging.level for the console sink.
	LogLevel    string
	Development bool

	// Logger replaces the task logger built from configuration.
	Logger *slog.Logger
	// Notifier replaces the configured notification service.
	Notifier notifications.Service
	// Exit and Signals are passed to the shutdown supervisor.
	Exit    func(int)
	Signals []os.Signal
}

// Run acquires the task's instance lock, starts the command, and blocks
// until it exits or the daemon is told to stop. The returned status is the
// child's exit code on a natural exit and shutdown.ExitStatus after a signal.
func Run(ctx context.Context, cfg *config.Config, opts Options) (int, error) {
	if cfg == nil {
		return 1, fmt.Errorf("config is required")
	}
	if err := pidfile.ValidateTaskName(opts.Task); err != nil {
		return 1, err
	}
	if len(opts.Command) == 0 {
		return 1, faults.Wrap(faults.ErrConfiguration, opts.Task, "", "run", errors.New("no command given"))
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return 1, fmt.Errorf("ensure directories: %w", err)
	}

	logger, err := buildLogger(cfg, opts)
	if err != nil {
		return 1, fmt.Errorf("init logger: %w", err)
	}
	runID := uuid.NewString()
	logger = logger.With(logging.String(logging.FieldRunID, runID))
	host := hosts.LocalIP()

	notifier := opts.Notifier
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}

	events := openHistory(cfg, logger)
	defer events.close()
	base := history.Event{RunID: runID, Task: opts.Task, Host: host}

	store := pidfile.NewStore(cfg.Paths.PIDDir, cfg.RemotePIDDir(), transport.NewDialer(cfg, logger))
	lock, err := instance.Acquire(store, opts.Task)
	if err != nil {
		if errors.Is(err, faults.ErrInstanceAlreadyRunning) {
			logger.Warn("instance already running",
				logging.Task(opts.Task),
				logging.String(logging.FieldEventType, "lock_conflict"),
				logging.String(logging.FieldErrorHint, "use 'taskguard status' or 'taskguard kill'"),
				logging.String(logging.FieldImpact, "this invocation exits without starting the task"))
			events.record(ctx, base, history.KindLockConflict, 0, err.Error())
		}
		return 1, err
	}
	logger.Info("instance lock acquired", logging.String("pid_file", lock.Path()), logging.PID(lock.PID()))

	// The supervisor owns signals from here on so a signal arriving while
	// the child starts or while notifications block still releases the lock.
	state := &runState{}
	cleaner := shutdown.Chain(
		shutdown.CleanupFunc(state.stop),
		shutdown.CleanupFunc(func() error {
			events.record(context.Background(), base, history.KindSignalled, lock.PID(), state.signalDetail())
			notify(logger, "stopped", notifier.NotifyStopped(context.Background(), opts.Task, "signal"))
			return nil
		}),
		shutdown.CleanupFunc(lock.Release),
	)
	supOpts := []shutdown.Option{shutdown.WithLogger(logger), shutdown.WithExit(opts.Exit)}
	if len(opts.Signals) > 0 {
		supOpts = append(supOpts, shutdown.WithSignals(opts.Signals...))
	}
	sup := shutdown.New(opts.Task, cleaner, supOpts...)

	if cfg.Logging.CaptureStdio {
		restore, capErr := logging.CaptureStdio(logger)
		if capErr != nil {
			logging.WarnWithContext(logger, "stdio capture unavailable", "stdio_capture_failed", logging.Error(capErr))
		} else {
			defer restore()
		}
	}

	stdout := logging.LineWriter(logger, slog.LevelInfo, logging.String(logging.FieldStream, "stdout"))
	stderr := logging.LineWriter(logger, slog.LevelError, logging.String(logging.FieldStream, "stderr"))
	defer stdout.Close()
	defer stderr.Close()

	proc, err := state.start(opts.Command, stdout, stderr, cfg.KillGrace())
	if err != nil {
		if !sup.Stop() {
			<-sup.Done()
			return shutdown.ExitStatus, nil
		}
		_ = lock.Release()
		return 1, err
	}
	if proc == nil {
		// A signal arrived first; the supervisor is cleaning up.
		<-sup.Done()
		return shutdown.ExitStatus, nil
	}
	started := state.startedAt()
	childPID := proc.pid()
	logger.Info("task started",
		logging.Int("child_pid", childPID),
		logging.String("command", strings.Join(opts.Command, " ")))
	events.record(ctx, base, history.KindStarted, lock.PID(), strings.Join(opts.Command, " "))
	notify(logger, "started", notifier.NotifyStarted(ctx, opts.Task, host, lock.PID()))

	select {
	case <-proc.Done():
	case <-ctx.Done():
	}

	if !sup.Stop() {
		// A signal got there first; the supervisor owns the rest.
		<-sup.Done()
		return shutdown.ExitStatus, nil
	}

	stopErr := proc.Stop()
	code := proc.ExitCode()
	runtime := time.Since(started)
	kind, detail := history.KindExited, fmt.Sprintf("exit %d after %s", code, runtime.Round(time.Millisecond))
	if ctx.Err() != nil {
		detail = "cancelled: " + detail
	}
	logger.Info("task exited", logging.Int("exit_code", code), logging.Duration("runtime", runtime))
	events.record(context.Background(), base, kind, lock.PID(), detail)
	notify(logger, "exited", notifier.NotifyExited(context.Background(), opts.Task, code, runtime))

	if err := lock.Release(); err != nil {
		return code, err
	}
	if stopErr != nil {
		return code, stopErr
	}
	return code, nil
}

func buildLogger(cfg *config.Config, opts Options) (*slog.Logger, error) {
	if opts.Logger != nil {
		return opts.Logger, nil
	}
	level := cfg.Logging.Level
	if strings.TrimSpace(opts.LogLevel) != "" {
		level = opts.LogLevel
	}
	return logging.New(logging.Options{
		Name:        opts.Task,
		Level:       level,
		Format:      cfg.Logging.Format,
		FilePath:    cfg.LogPath(opts.Task),
		Development: opts.Development,
	})
}

func notify(logger *slog.Logger, event string, err error) {
	if err == nil {
		return
	}
	logging.WarnWithContext(logger, "notification failed", "notification_failed",
		logging.String("notification", event),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
		logging.String(logging.FieldImpact, "operators were not alerted"))
}

// runState hands the child between Run and the signal cleanup. Starting and
// stopping are serialised so a signal during start stops the new child, and
// a signal before start prevents it.
type runState struct {
	mu       sync.Mutex
	proc     *child
	started  time.Time
	stopping bool
}

// start launches the child unless a stop already happened, in which case it
// returns nil and no error.
func (s *runState) start(argv []string, stdout, stderr io.Writer, grace time.Duration) (*child, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopping {
		return nil, nil
	}
	proc, err := startChild(argv, stdout, stderr, grace)
	if err != nil {
		return nil, err
	}
	s.proc = proc
	s.started = time.Now()
	return proc, nil
}

func (s *runState) stop() error {
	s.mu.Lock()
	s.stopping = true
	proc := s.proc
	s.mu.Unlock()
	if proc == nil {
		return nil
	}
	return proc.Stop()
}

func (s *runState) startedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func (s *runState) signalDetail() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc == nil {
		return "stopped before the command started"
	}
	return fmt.Sprintf("child exit %d after %s", s.proc.ExitCode(), time.Since(s.started).Round(time.Millisecond))
}
