package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Kind classifies an event.
type Kind string

const (
	KindStarted           Kind = "started"
	KindExited            Kind = "exited"
	KindSignalled         Kind = "signalled"
	KindKilled            Kind = "killed"
	KindKillCleanupFailed Kind = "kill_cleanup_failed"
	KindLockConflict      Kind = "lock_conflict"
)

// Event is one history row.
type Event struct {
	ID        int64
	RunID     string
	Task      string
	Host      string
	PID       int
	Kind      Kind
	Detail    string
	CreatedAt time.Time
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Task  string
	RunID string
	Kinds []Kind
	Since time.Time
	// Limit caps the number of rows; zero means DefaultListLimit.
	Limit int
}

// DefaultListLimit applies when Filter.Limit is zero.
const DefaultListLimit = 50

// Recorder is the write side of the store, satisfied by *Store.
type Recorder interface {
	Record(ctx context.Context, event Event) error
}

// Store persists events in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
	timeLayout              = "2006-01-02T15:04:05.000000000Z07:00"
)

// Open creates or connects to the history database at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("history database path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure history directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record appends event. CreatedAt defaults to now.
func (s *Store) Record(ctx context.Context, event Event) error {
	if s == nil || s.db == nil {
		return errors.New("history store unavailable")
	}
	if strings.TrimSpace(event.Task) == "" || strings.TrimSpace(string(event.Kind)) == "" {
		return errors.New("history event requires task and kind")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO events (run_id, task, host, pid, kind, detail, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			event.RunID, event.Task, event.Host, event.PID, string(event.Kind), event.Detail,
			event.CreatedAt.UTC().Format(timeLayout),
		)
		return err
	})
}

// List returns events matching filter, newest first.
func (s *Store) List(ctx context.Context, filter Filter) ([]Event, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("history store unavailable")
	}
	var (
		clauses []string
		args    []any
	)
	if filter.Task != "" {
		clauses = append(clauses, "task = ?")
		args = append(args, filter.Task)
	}
	if filter.RunID != "" {
		clauses = append(clauses, "run_id = ?")
		args = append(args, filter.RunID)
	}
	if len(filter.Kinds) > 0 {
		placeholders := make([]string, len(filter.Kinds))
		for i, kind := range filter.Kinds {
			placeholders[i] = "?"
			args = append(args, string(kind))
		}
		clauses = append(clauses, "kind IN ("+strings.Join(placeholders, ",")+")")
	}
	if !filter.Since.IsZero() {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, filter.Since.UTC().Format(timeLayout))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := "SELECT id, run_id, task, host, pid, kind, detail, created_at FROM events"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			ev      Event
			kind    string
			created string
		)
		if err := rows.Scan(&ev.ID, &ev.RunID, &ev.Task, &ev.Host, &ev.PID, &kind, &ev.Detail, &created); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Kind = Kind(kind)
		if ts, err := time.Parse(timeLayout, created); err == nil {
			ev.CreatedAt = ts
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
