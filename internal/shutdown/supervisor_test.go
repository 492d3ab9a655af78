package shutdown_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"taskguard/internal/shutdown"
)

type counter struct {
	calls atomic.Int32
	delay time.Duration
}

func (c *counter) TidyUp() error {
	c.calls.Add(1)
	time.Sleep(c.delay)
	return nil
}

type exitRecorder struct {
	mu    sync.Mutex
	codes []int
}

func (e *exitRecorder) exit(code int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.codes = append(e.codes, code)
}

func (e *exitRecorder) snapshot() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]int(nil), e.codes...)
}

func waitDone(t *testing.T, s *shutdown.Supervisor) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("supervisor did not finish")
	}
}

func TestRepeatedSIGTERMRunsCleanupOnce(t *testing.T) {
	cleaner := &counter{delay: 200 * time.Millisecond}
	rec := &exitRecorder{}
	sup := shutdown.New("exposure_daemon", cleaner, shutdown.WithExit(rec.exit))

	if err := syscall.Kill(syscall.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatal(err)
	}
	if err := syscall.Kill(syscall.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatal(err)
	}
	waitDone(t, sup)
	// Give a late duplicate a chance to be (wrongly) handled.
	time.Sleep(100 * time.Millisecond)

	if got := cleaner.calls.Load(); got != 1 {
		t.Fatalf("cleanup ran %d times, want 1", got)
	}
	if codes := rec.snapshot(); len(codes) != 1 || codes[0] != shutdown.ExitStatus {
		t.Fatalf("exit codes = %v", codes)
	}
	if sup.State() != shutdown.ShuttingDown {
		t.Fatalf("state = %v", sup.State())
	}
	if sup.Stop() {
		t.Fatal("Stop should fail once shutdown owns the process")
	}
}

func TestSignalsDuringCleanupAreIgnored(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	cleaner := shutdown.CleanupFunc(func() error {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return nil
	})
	rec := &exitRecorder{}
	sup := shutdown.New("foo", cleaner, shutdown.WithExit(rec.exit), shutdown.WithSignals(syscall.SIGUSR1))

	_ = syscall.Kill(syscall.Getpid(), syscall.SIGUSR1)
	<-started
	for i := 0; i < 3; i++ {
		_ = syscall.Kill(syscall.Getpid(), syscall.SIGUSR1)
	}
	time.Sleep(100 * time.Millisecond)
	if len(rec.snapshot()) != 0 {
		t.Fatal("exit called before cleanup completed")
	}
	close(release)
	waitDone(t, sup)

	if calls.Load() != 1 {
		t.Fatalf("cleanup ran %d times", calls.Load())
	}
	if len(rec.snapshot()) != 1 {
		t.Fatalf("exit codes = %v", rec.snapshot())
	}
}

func TestStopPreventsCleanup(t *testing.T) {
	cleaner := &counter{}
	rec := &exitRecorder{}
	sup := shutdown.New("foo", cleaner, shutdown.WithExit(rec.exit), shutdown.WithSignals(syscall.SIGUSR2))

	if !sup.Stop() {
		t.Fatal("Stop on running supervisor should succeed")
	}
	if !sup.Stop() {
		t.Fatal("Stop should be idempotent")
	}
	waitDone(t, sup)
	if sup.State() != shutdown.Stopped {
		t.Fatalf("state = %v", sup.State())
	}
	if cleaner.calls.Load() != 0 || len(rec.snapshot()) != 0 {
		t.Fatal("stopped supervisor must not clean up or exit")
	}
}

func TestCleanupTimeoutStillExits(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	cleaner := shutdown.CleanupFunc(func() error {
		<-block
		return nil
	})
	rec := &exitRecorder{}
	sup := shutdown.New("foo", cleaner,
		shutdown.WithExit(rec.exit),
		shutdown.WithSignals(syscall.SIGHUP),
		shutdown.WithCleanupTimeout(100*time.Millisecond))

	_ = syscall.Kill(syscall.Getpid(), syscall.SIGHUP)
	waitDone(t, sup)
	if codes := rec.snapshot(); len(codes) != 1 || codes[0] != shutdown.ExitStatus {
		t.Fatalf("exit codes = %v", codes)
	}
}

func TestChainRunsAllAndJoinsErrors(t *testing.T) {
	var order []string
	errA := errors.New("a failed")
	chain := shutdown.Chain(
		shutdown.CleanupFunc(func() error { order = append(order, "a"); return errA }),
		nil,
		shutdown.CleanupFunc(func() error { order = append(order, "b"); return nil }),
	)
	err := chain.TidyUp()
	if !errors.Is(err, errA) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("order = %v", order)
	}
}
