package instance_test

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"taskguard/internal/faults"
	"taskguard/internal/instance"
	"taskguard/internal/pidfile"
	"taskguard/internal/transport"
)

const (
	helperEnv    = "TASKGUARD_LOCK_HELPER_DIR"
	helperTask   = "exposure_daemon"
	helperSignal = "locked"
)

type localOpener struct{}

func (localOpener) Open(string) (transport.Transport, error) { return &transport.Local{}, nil }

func newStore(dir string) *pidfile.Store {
	return pidfile.NewStore(dir, "", localOpener{})
}

func TestAcquireWritesPIDAndReleaseClears(t *testing.T) {
	store := newStore(filepath.Join(t.TempDir(), "pid"))

	lock, err := instance.Acquire(store, "foo")
	if err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}
	if lock.PID() != os.Getpid() || lock.Task() != "foo" || lock.Path() != store.Path("foo") {
		t.Fatalf("unexpected lock accessors: pid=%d task=%q path=%q", lock.PID(), lock.Task(), lock.Path())
	}

	rec, err := store.Read(context.Background(), "foo", "")
	if err != nil || rec == nil || rec.PID != os.Getpid() {
		t.Fatalf("Read while locked = %+v, %v", rec, err)
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("Release returned error: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("second Release returned error: %v", err)
	}
	if _, err := os.Stat(store.Path("foo")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("record should be removed after release, stat err = %v", err)
	}

	again, err := instance.Acquire(store, "foo")
	if err != nil {
		t.Fatalf("re-Acquire returned error: %v", err)
	}
	_ = again.Release()
}

func TestConflictLeavesRecordUntouched(t *testing.T) {
	store := newStore(filepath.Join(t.TempDir(), "pid"))
	lock, err := instance.Acquire(store, "foo")
	if err != nil {
		t.Fatal(err)
	}
	defer lock.Release()

	before, err := os.ReadFile(store.Path("foo"))
	if err != nil {
		t.Fatal(err)
	}
	_, err = instance.Acquire(store, "foo")
	if !errors.Is(err, faults.ErrInstanceAlreadyRunning) {
		t.Fatalf("expected ErrInstanceAlreadyRunning, got %v", err)
	}
	after, err := os.ReadFile(store.Path("foo"))
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Fatalf("record changed on conflict: %q -> %q", before, after)
	}
}

func TestConcurrentAcquireExactlyOneWins(t *testing.T) {
	store := newStore(filepath.Join(t.TempDir(), "pid"))

	const contenders = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []*instance.Lock
		losses  int
	)
	start := make(chan struct{})
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			lock, err := instance.Acquire(store, "foo")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, lock)
			case errors.Is(err, faults.ErrInstanceAlreadyRunning):
				losses++
			default:
				t.Errorf("unexpected Acquire error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if len(winners) != 1 || losses != contenders-1 {
		t.Fatalf("winners=%d losses=%d, want 1 and %d", len(winners), losses, contenders-1)
	}
	_ = winners[0].Release()
}

func TestAcquireOverStaleRecord(t *testing.T) {
	store := newStore(filepath.Join(t.TempDir(), "pid"))
	if err := store.Write("foo", 999999); err != nil {
		t.Fatal(err)
	}
	lock, err := instance.Acquire(store, "foo")
	if err != nil {
		t.Fatalf("stale record blocked Acquire: %v", err)
	}
	defer lock.Release()
	rec, err := store.Read(context.Background(), "foo", "")
	if err != nil || rec == nil || rec.PID != os.Getpid() {
		t.Fatalf("record not rewritten: %+v, %v", rec, err)
	}
}

func TestAcquireRejectsBadTaskName(t *testing.T) {
	store := newStore(t.TempDir())
	if _, err := instance.Acquire(store, "../x"); !errors.Is(err, faults.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

// TestLockHelperProcess is not a real test; it holds the lock on behalf of
// TestLockRecoveredAfterHolderKilled.
func TestLockHelperProcess(t *testing.T) {
	dir := os.Getenv(helperEnv)
	if dir == "" {
		t.Skip("helper process only")
	}
	if _, err := instance.Acquire(newStore(dir), helperTask); err != nil {
		fmt.Fprintf(os.Stdout, "error: %v\n", err)
		os.Exit(2)
	}
	fmt.Fprintln(os.Stdout, helperSignal)
	time.Sleep(time.Minute)
	os.Exit(0)
}

func TestLockRecoveredAfterHolderKilled(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "pid")
	cmd := exec.Command(os.Args[0], "-test.run=^TestLockHelperProcess$")
	cmd.Env = append(os.Environ(), helperEnv+"="+dir)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		t.Fatal(err)
	}
	if err := cmd.Start(); err != nil {
		t.Fatalf("start helper: %v", err)
	}
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	})

	ready := make(chan string, 1)
	go func() {
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			ready <- scanner.Text()
			return
		}
		ready <- ""
	}()
	select {
	case line := <-ready:
		if line != helperSignal {
			t.Fatalf("helper did not lock: %q", line)
		}
	case <-time.After(30 * time.Second):
		t.Fatal("timed out waiting for helper")
	}

	store := newStore(dir)
	if _, err := instance.Acquire(store, helperTask); !errors.Is(err, faults.ErrInstanceAlreadyRunning) {
		t.Fatalf("expected conflict while helper holds lock, got %v", err)
	}

	if err := cmd.Process.Kill(); err != nil {
		t.Fatalf("kill helper: %v", err)
	}
	_ = cmd.Wait()

	rec, err := store.Read(context.Background(), helperTask, "")
	if err != nil || rec == nil || rec.PID != cmd.Process.Pid {
		t.Fatalf("expected stale record for helper pid %d, got %+v, %v", cmd.Process.Pid, rec, err)
	}

	lock, err := instance.Acquire(store, helperTask)
	if err != nil {
		t.Fatalf("Acquire after holder death returned error: %v", err)
	}
	defer lock.Release()
	if lock.PID() != os.Getpid() {
		t.Fatalf("lock pid = %d", lock.PID())
	}
}
