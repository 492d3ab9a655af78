// Package instance enforces that at most one process runs a task at a time.
//
// The pid record file doubles as the lock file: Acquire takes an exclusive
// non-blocking flock on it and then writes the holder's pid. The kernel
// drops the flock when the holder dies, so a stale record left by a crashed
// process never blocks the next Acquire.
package instance

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/gofrs/flock"

	"taskguard/internal/faults"
	"taskguard/internal/pidfile"
)

// maxAcquireAttempts bounds retries when the record is replaced between
// opening and locking it.
const maxAcquireAttempts = 5

// Lock is a held instance lock.
type Lock struct {
	mu       sync.Mutex
	store    *pidfile.Store
	task     string
	path     string
	pid      int
	fl       *flock.Flock
	released bool
}

// Acquire locks task's pid record and writes the current pid into it. When
// another live process holds the lock it fails with
// faults.ErrInstanceAlreadyRunning and leaves the record untouched.
func Acquire(store *pidfile.Store, task string) (*Lock, error) {
	if err := pidfile.ValidateTaskName(task); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(store.Dir(), 0o755); err != nil {
		return nil, faults.Wrap(nil, task, "", "create pid directory", err)
	}
	path := store.Path(task)

	for attempt := 0; attempt < maxAcquireAttempts; attempt++ {
		fl := flock.New(path)
		ok, err := fl.TryLock()
		if err != nil {
			return nil, faults.Wrap(nil, task, "", "lock pid record", err)
		}
		if !ok {
			return nil, faults.AlreadyRunning(task)
		}

		// A releasing holder unlinks the record before unlocking it. If that
		// happened after we opened the file, our lock is on an orphaned
		// inode and the path belongs to someone else.
		if !lockedCurrentFile(fl, path) {
			_ = fl.Unlock()
			continue
		}

		pid := os.Getpid()
		if err := store.Write(task, pid); err != nil {
			_ = fl.Unlock()
			return nil, err
		}
		return &Lock{store: store, task: task, path: path, pid: pid, fl: fl}, nil
	}
	return nil, faults.Wrap(faults.ErrInstanceAlreadyRunning, task, "", "lock pid record",
		fmt.Errorf("record replaced %d times while locking", maxAcquireAttempts))
}

func lockedCurrentFile(fl *flock.Flock, path string) bool {
	held, err := fl.Stat()
	if err != nil {
		return false
	}
	current, err := os.Stat(path)
	if err != nil {
		return false
	}
	return os.SameFile(held, current)
}

// Release clears the pid record and then drops the lock. It is safe to call
// more than once and from both the normal exit path and signal cleanup.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return nil
	}
	l.released = true

	_, clearErr := l.store.Clear(context.Background(), l.task, "")
	unlockErr := l.fl.Unlock()
	if clearErr != nil {
		return faults.Wrap(faults.ErrCleanup, l.task, "", "release lock", clearErr)
	}
	if unlockErr != nil {
		return faults.Wrap(nil, l.task, "", "unlock pid record", unlockErr)
	}
	return nil
}

// Task returns the locked task name.
func (l *Lock) Task() string { return l.task }

// Path returns the pid record path backing the lock.
func (l *Lock) Path() string { return l.path }

// PID returns the pid written into the record.
func (l *Lock) PID() int { return l.pid }
