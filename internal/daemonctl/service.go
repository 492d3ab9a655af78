package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"taskguard/internal/config"
	"taskguard/internal/faults"
	"taskguard/internal/history"
	"taskguard/internal/hosts"
	"taskguard/internal/logging"
	"taskguard/internal/notifications"
	"taskguard/internal/pidfile"
	"taskguard/internal/procctl"
	"taskguard/internal/transport"
)

// Service bundles the collaborators operator commands need.
type Service struct {
	cfg      *config.Config
	ctl      *procctl.Controller
	store    *pidfile.Store
	events   history.Recorder
	notifier notifications.Service
	logger   *slog.Logger
}

// Deps overrides Service collaborators, mainly for tests.
type Deps struct {
	Opener   transport.Opener
	Events   history.Recorder
	Notifier notifications.Service
	Logger   *slog.Logger
}

// NewService wires a Service from configuration. Nil fields in deps fall
// back to the configured implementations; a nil Events disables history.
func NewService(cfg *config.Config, deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	opener := deps.Opener
	if opener == nil {
		opener = transport.NewDialer(cfg, logger)
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	store := pidfile.NewStore(cfg.Paths.PIDDir, cfg.RemotePIDDir(), opener)
	ctl := procctl.New(store, opener,
		procctl.WithLogger(logger),
		procctl.WithShortTimeout(cfg.ShortTimeout()))
	return &Service{
		cfg:      cfg,
		ctl:      ctl,
		store:    store,
		events:   deps.Events,
		notifier: notifier,
		logger:   logger,
	}
}

// Controller exposes the underlying process controller.
func (s *Service) Controller() *procctl.Controller { return s.ctl }

// State summarises a task's condition on a host.
type State string

const (
	// StateRunning: a record exists and its pid is alive.
	StateRunning State = "running"
	// StateStale: a record exists but its pid is gone.
	StateStale State = "stale"
	// StateStopped: no record.
	StateStopped State = "stopped"
	// StateUnknown: a record exists but liveness could not be determined.
	StateUnknown State = "unknown"
)

// Snapshot is the result of Status.
type Snapshot struct {
	Task    string
	Host    string
	State   State
	Record  *pidfile.Record
	PIDFile string
	LogFile string
}

// Status reads the pid record for task on host and checks liveness.
func (s *Service) Status(ctx context.Context, task, host string) (Snapshot, error) {
	snap := Snapshot{
		Task:    task,
		Host:    hosts.ParseTarget(host).Host,
		PIDFile: s.store.Path(task),
		LogFile: s.cfg.LogPath(task),
	}
	rec, err := s.ctl.GetPID(ctx, task, host)
	if err != nil {
		return snap, err
	}
	if rec == nil {
		snap.State = StateStopped
		return snap, nil
	}
	snap.Record = rec
	alive, err := s.ctl.Alive(ctx, host, rec.PID)
	switch {
	case err != nil:
		s.logger.Debug("liveness check failed", logging.Task(task), logging.Host(host), logging.Error(err))
		snap.State = StateUnknown
	case alive:
		snap.State = StateRunning
	default:
		snap.State = StateStale
	}
	return snap, nil
}

// Kill terminates task on host, records the outcome, and notifies.
func (s *Service) Kill(ctx context.Context, task, host string, timeout time.Duration) (procctl.KillResult, error) {
	res, err := s.ctl.Kill(ctx, task, host, timeout)
	switch {
	case err == nil:
		detail := "killed"
		if res.AlreadyGone {
			detail = "process already gone; record cleared"
		}
		s.record(ctx, res, history.KindKilled, detail)
		if res.Killed {
			if nerr := s.notifier.NotifyKilled(ctx, task, res.Host, res.PID); nerr != nil {
				s.logger.Warn("kill notification failed", logging.Error(nerr))
			}
		}
	case errors.Is(err, faults.ErrCleanup):
		s.record(ctx, res, history.KindKillCleanupFailed, err.Error())
		if nerr := s.notifier.NotifyError(ctx, err, "kill "+task); nerr != nil {
			s.logger.Warn("error notification failed", logging.Error(nerr))
		}
	}
	return res, err
}

func (s *Service) record(ctx context.Context, res procctl.KillResult, kind history.Kind, detail string) {
	if s.events == nil {
		return
	}
	err := s.events.Record(ctx, history.Event{
		Task:   res.Task,
		Host:   res.Host,
		PID:    res.PID,
		Kind:   kind,
		Detail: detail,
	})
	if err != nil {
		logging.WarnWithContext(s.logger, "history write failed", "history_write_failed", logging.Error(err))
	}
}

// Tail streams the last lines of task's log on host, following it when
// follow is set, until the command ends or ctx is cancelled.
func (s *Service) Tail(ctx context.Context, task, host string, lines int, follow bool, stdout, stderr io.Writer) error {
	if err := pidfile.ValidateTaskName(task); err != nil {
		return err
	}
	if lines <= 0 {
		lines = s.cfg.Commands.TailLines
	}
	command := fmt.Sprintf("tail -n %d", lines)
	if follow {
		command += " -F"
	}
	command += " " + transport.ShellQuote(s.cfg.LogPath(task))
	return s.ctl.ExecuteLong(ctx, host, command, stdout, stderr)
}

// Exec runs a short command on host.
func (s *Service) Exec(ctx context.Context, host, command string, timeout time.Duration) (procctl.ShortResult, error) {
	return s.ctl.ExecuteShort(ctx, host, command, timeout)
}
