// Package shutdown runs a task's cleanup exactly once when the process is
// asked to terminate, then exits with a non-zero status.
//
// A Supervisor starts in Running. The first SIGINT or SIGTERM moves it to
// ShuttingDown, which is terminal: the signal is logged, the Cleaner runs to
// completion, and the exit function is called with status 1. Signals that
// arrive afterwards are consumed and ignored. An orderly exit that does not
// come from a signal calls Stop, which moves Running to Stopped and
// unregisters the handlers.
package shutdown

import (
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"taskguard/internal/logging"
)

// State is a supervisor lifecycle state.
type State int32

const (
	Running State = iota
	ShuttingDown
	Stopped
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case ShuttingDown:
		return "shutting_down"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ExitStatus is the status passed to the exit function after cleanup.
const ExitStatus = 1

// Cleaner is anything that can tidy up after itself.
type Cleaner interface {
	TidyUp() error
}

// CleanupFunc adapts a function to Cleaner.
type CleanupFunc func() error

func (f CleanupFunc) TidyUp() error {
	if f == nil {
		return nil
	}
	return f()
}

// Chain runs cleaners in order and joins their errors. Every cleaner runs
// even if an earlier one fails.
func Chain(cleaners ...Cleaner) Cleaner {
	return CleanupFunc(func() error {
		var errs []error
		for _, c := range cleaners {
			if c == nil {
				continue
			}
			if err := c.TidyUp(); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}

// Option customizes a Supervisor.
type Option func(*Supervisor)

// WithLogger sets the logger used to announce shutdown.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithExit replaces os.Exit.
func WithExit(exit func(int)) Option {
	return func(s *Supervisor) {
		if exit != nil {
			s.exit = exit
		}
	}
}

// WithSignals replaces the default SIGINT and SIGTERM set.
func WithSignals(signals ...os.Signal) Option {
	return func(s *Supervisor) {
		if len(signals) > 0 {
			s.signals = signals
		}
	}
}

// WithCleanupTimeout bounds how long the cleaner may run before the process
// exits anyway. Zero, the default, waits for the cleaner indefinitely.
func WithCleanupTimeout(d time.Duration) Option {
	return func(s *Supervisor) {
		s.cleanupTimeout = d
	}
}

// Supervisor owns the process's termination signals for one task.
type Supervisor struct {
	task           string
	cleaner        Cleaner
	logger         *slog.Logger
	exit           func(int)
	signals        []os.Signal
	cleanupTimeout time.Duration

	state    atomic.Int32
	sigCh    chan os.Signal
	quit     chan struct{}
	done     chan struct{}
	doneOnce sync.Once
}

// New registers the signal handlers immediately and returns a Running
// supervisor.
func New(task string, cleaner Cleaner, opts ...Option) *Supervisor {
	s := &Supervisor{
		task:    task,
		cleaner: cleaner,
		logger:  logging.NewNop(),
		exit:    os.Exit,
		signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
		sigCh:   make(chan os.Signal, 4),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.NewComponentLogger(s.logger, "shutdown").With(logging.Task(task))
	signal.Notify(s.sigCh, s.signals...)
	go s.loop()
	return s
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// Done is closed once the supervisor has finished: after Stop, or after
// cleanup and the exit call when exit returns (as in tests).
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

// Stop moves a Running supervisor to Stopped and unregisters its signal
// handlers. It returns false when a signal-driven shutdown already owns the
// process; the caller should then wait on Done or simply block.
func (s *Supervisor) Stop() bool {
	if s.state.CompareAndSwap(int32(Running), int32(Stopped)) {
		signal.Stop(s.sigCh)
		close(s.quit)
		s.finish()
		return true
	}
	return s.State() == Stopped
}

func (s *Supervisor) loop() {
	for {
		select {
		case sig := <-s.sigCh:
			if !s.state.CompareAndSwap(int32(Running), int32(ShuttingDown)) {
				s.logger.Debug("signal ignored during shutdown", logging.String(logging.FieldSignal, sig.String()))
				continue
			}
			s.shutdown(sig)
		case <-s.quit:
			return
		}
	}
}

func (s *Supervisor) shutdown(sig os.Signal) {
	s.logger.Info("received signal, shutting down", logging.String(logging.FieldSignal, sig.String()))

	if err := s.runCleaner(); err != nil {
		logging.ErrorWithContext(s.logger, "cleanup failed", "shutdown_cleanup_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the pid record and child processes"))
	} else {
		s.logger.Info("cleanup complete")
	}

	s.exit(ExitStatus)
	s.finish()
}

func (s *Supervisor) runCleaner() (err error) {
	if s.cleaner == nil {
		return nil
	}
	if s.cleanupTimeout <= 0 {
		return s.cleaner.TidyUp()
	}
	result := make(chan error, 1)
	go func() { result <- s.cleaner.TidyUp() }()
	select {
	case err = <-result:
		return err
	case <-time.After(s.cleanupTimeout):
		return errors.New("cleanup did not finish within " + s.cleanupTimeout.String())
	}
}

func (s *Supervisor) finish() {
	s.doneOnce.Do(func() { close(s.done) })
}
