package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"taskguard/internal/config"
)

// Options describes logger construction parameters.
type Options struct {
	// Name labels console lines, normally the task name.
	Name string
	// Level applies to the console sink. The file sink always records debug.
	Level  string
	Format string
	// FilePath, when set, receives every record at debug level.
	FilePath string
	// Console defaults to os.Stdout.
	Console         io.Writer
	SuppressConsole bool
	Development     bool
}

// New constructs a slog logger writing to the console and, optionally, a
// log file.
func New(opts Options) (*slog.Logger, error) {
	level := parseLevel(opts.Level)
	addSource := opts.Development || level <= slog.LevelDebug

	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format == "" {
		format = "console"
	}
	if format != "console" && format != "json" {
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}

	var handlers []slog.Handler
	if !opts.SuppressConsole {
		console := opts.Console
		if console == nil {
			console = os.Stdout
		}
		if format == "json" {
			handlers = append(handlers, newJSONHandler(console, level, opts.Name, addSource))
		} else {
			handlers = append(handlers, newTextHandler(console, level, opts.Name, consoleTimeLayout, addSource))
		}
	}

	if path := strings.TrimSpace(opts.FilePath); path != "" {
		file, err := openLogFile(path)
		if err != nil {
			return nil, err
		}
		if format == "json" {
			handlers = append(handlers, newJSONHandler(file, slog.LevelDebug, opts.Name, addSource))
		} else {
			handlers = append(handlers, newTextHandler(file, slog.LevelDebug, "", fileTimeLayout, addSource))
		}
	}

	return slog.New(newTeeHandler(handlers...)), nil
}

// NewForTask creates the logger a supervised task uses: console output at
// the configured level plus <log_dir>/<task>.log.
func NewForTask(cfg *config.Config, task string) (*slog.Logger, error) {
	if cfg == nil {
		return New(Options{Name: task, Level: "info", Format: "console"})
	}
	return New(Options{
		Name:     task,
		Level:    cfg.Logging.Level,
		Format:   cfg.Logging.Format,
		FilePath: cfg.LogPath(task),
	})
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func openLogFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure log directory: %w", err)
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return file, nil
}
