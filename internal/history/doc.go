// Package history keeps an append-only SQLite log of supervision events:
// daemon starts and exits, signal-driven shutdowns, operator kills, and lock
// conflicts. The CLI's history command reads it back.
//
// The store uses modernc.org/sqlite in WAL mode with a busy timeout and
// retries SQLITE_BUSY with backoff, since a daemon and an operator's CLI
// may write concurrently. Schema changes ship as embedded migrations.
package history
