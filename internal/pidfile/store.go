package pidfile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"taskguard/internal/faults"
	"taskguard/internal/hosts"
	"taskguard/internal/transport"
)

const extension = ".pid"

// Record identifies a running task instance.
type Record struct {
	Task string
	PID  int
	Host string
}

// ClearResult reports what Clear did.
type ClearResult int

const (
	// Cleared means a record existed and was removed.
	Cleared ClearResult = iota
	// AlreadyClear means there was no record to remove.
	AlreadyClear
)

func (r ClearResult) String() string {
	if r == AlreadyClear {
		return "already_clear"
	}
	return "cleared"
}

// Store locates and manipulates pid records.
type Store struct {
	dir       string
	remoteDir string
	opener    transport.Opener
}

// NewStore returns a Store rooted at dir. remoteDir is the directory assumed
// on other hosts; when empty dir is used there too.
func NewStore(dir, remoteDir string, opener transport.Opener) *Store {
	if strings.TrimSpace(remoteDir) == "" {
		remoteDir = dir
	}
	return &Store{dir: dir, remoteDir: remoteDir, opener: opener}
}

// ValidateTaskName rejects names that cannot safely become a file name.
func ValidateTaskName(task string) error {
	switch {
	case strings.TrimSpace(task) == "":
		return faults.Wrap(faults.ErrConfiguration, "", "", "validate task name", errors.New("task name is empty"))
	case task == "." || task == "..":
		return faults.Wrap(faults.ErrConfiguration, task, "", "validate task name", errors.New("task name is a relative directory"))
	case strings.ContainsAny(task, `/\`) || strings.ContainsRune(task, 0):
		return faults.Wrap(faults.ErrConfiguration, task, "", "validate task name", errors.New("task name contains a path separator"))
	}
	return nil
}

// Path returns the local record path for task.
func (s *Store) Path(task string) string {
	return filepath.Join(s.dir, task+extension)
}

// RemotePath returns the record path for task on a remote host.
func (s *Store) RemotePath(task string) string {
	return path.Join(filepath.ToSlash(s.remoteDir), task+extension)
}

// Dir returns the local pid directory.
func (s *Store) Dir() string { return s.dir }

// Write records pid for task. The file is truncated in place, never
// replaced, so a lock held on it stays attached to the visible path.
func (s *Store) Write(task string, pid int) error {
	if err := ValidateTaskName(task); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return faults.Wrap(nil, task, "", "create pid directory", err)
	}
	file, err := os.OpenFile(s.Path(task), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return faults.Wrap(nil, task, "", "open pid record", err)
	}
	if _, err := file.WriteString(strconv.Itoa(pid) + "\n"); err != nil {
		_ = file.Close()
		return faults.Wrap(nil, task, "", "write pid record", err)
	}
	if err := file.Close(); err != nil {
		return faults.Wrap(nil, task, "", "close pid record", err)
	}
	return nil
}

// Read returns the record for task on host, or nil when none exists.
func (s *Store) Read(ctx context.Context, task, host string) (*Record, error) {
	if err := ValidateTaskName(task); err != nil {
		return nil, err
	}
	t, err := s.opener.Open(host)
	if err != nil {
		return nil, err
	}
	defer t.Close()

	data, err := t.ReadFile(ctx, s.pathFor(t, task))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		if errors.Is(err, faults.ErrHostUnreachable) {
			return nil, err
		}
		return nil, faults.Wrap(nil, task, t.Host(), "read pid record", err)
	}
	pid, err := ParsePID(data)
	if err != nil {
		return nil, faults.Wrap(faults.ErrMalformedRecord, task, t.Host(), "read pid record", err)
	}
	return &Record{Task: task, PID: pid, Host: hosts.ParseTarget(host).Host}, nil
}

// Clear removes the record for task on host. Clearing an absent record
// succeeds with AlreadyClear.
func (s *Store) Clear(ctx context.Context, task, host string) (ClearResult, error) {
	if err := ValidateTaskName(task); err != nil {
		return Cleared, err
	}
	t, err := s.opener.Open(host)
	if err != nil {
		return Cleared, err
	}
	defer t.Close()

	if err := t.RemoveFile(ctx, s.pathFor(t, task)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return AlreadyClear, nil
		}
		if errors.Is(err, faults.ErrHostUnreachable) {
			return Cleared, err
		}
		return Cleared, faults.Wrap(nil, task, t.Host(), "clear pid record", err)
	}
	return Cleared, nil
}

func (s *Store) pathFor(t transport.Transport, task string) string {
	if t.Local() {
		return s.Path(task)
	}
	return s.RemotePath(task)
}

// ParsePID parses record content: one non-negative decimal integer with
// optional surrounding whitespace.
func ParsePID(data []byte) (int, error) {
	text := strings.TrimSpace(string(data))
	if text == "" {
		return 0, errors.New("empty pid record")
	}
	pid, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("pid record %q is not a decimal integer", text)
	}
	if pid < 0 {
		return 0, fmt.Errorf("pid record %q is negative", text)
	}
	return pid, nil
}
