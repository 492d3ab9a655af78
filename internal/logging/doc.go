// Package logging assembles structured slog loggers for taskguard daemons and
// the CLI.
//
// Each task logs to the console at the configured level and to
// <log_dir>/<task>.log at debug level, in either the line format operators
// already grep for or JSON. The package also provides typed attribute
// helpers, a no-op logger for tests, a line-oriented io.Writer that turns a
// child process's output into log records, and CaptureStdio, which swaps the
// process-wide standard streams for the lifetime of a daemon.
package logging
