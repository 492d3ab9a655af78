package faults

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInstanceAlreadyRunning = errors.New("instance already running")
	ErrNoSuchProcess          = errors.New("no such process")
	ErrHostUnreachable        = errors.New("host unreachable")
	ErrMalformedRecord        = errors.New("malformed pid record")
	ErrTimeoutExceeded        = errors.New("timeout exceeded")
	ErrCleanup                = errors.New("cleanup failed")
	ErrConfiguration          = errors.New("configuration error")
)

// Wrap tags err with marker and a task/host/operation detail so the result
// matches marker under errors.Is while keeping the underlying cause.
func Wrap(marker error, task, host, operation string, err error) error {
	detail := buildDetail(task, host, operation)
	if marker == nil {
		if err == nil {
			return errors.New(detail)
		}
		return fmt.Errorf("%s: %w", detail, err)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// AlreadyRunning reports that task is locked by another live process.
func AlreadyRunning(task string) error {
	return fmt.Errorf("%w: process %q already running", ErrInstanceAlreadyRunning, task)
}

// NoSuchProcess reports that no pid record exists for task on host.
func NoSuchProcess(task, host string) error {
	return Wrap(ErrNoSuchProcess, task, host, "", nil)
}

// Unreachable reports that host could not be contacted.
func Unreachable(host string, err error) error {
	return Wrap(ErrHostUnreachable, "", host, "connect", err)
}

// Kind returns a stable snake_case classification for err, or "error" when
// err carries no known marker.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInstanceAlreadyRunning):
		return "instance_already_running"
	case errors.Is(err, ErrNoSuchProcess):
		return "no_such_process"
	case errors.Is(err, ErrHostUnreachable):
		return "host_unreachable"
	case errors.Is(err, ErrMalformedRecord):
		return "malformed_record"
	case errors.Is(err, ErrTimeoutExceeded):
		return "timeout_exceeded"
	case errors.Is(err, ErrCleanup):
		return "cleanup_failed"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	default:
		return "error"
	}
}

// ExitCode maps err to the process exit status used by the CLI.
func ExitCode(err error) int {
	switch Kind(err) {
	case "":
		return 0
	case "configuration":
		return 2
	case "instance_already_running":
		return 3
	case "no_such_process":
		return 4
	case "host_unreachable":
		return 5
	case "malformed_record":
		return 6
	case "timeout_exceeded":
		return 7
	case "cleanup_failed":
		return 8
	default:
		return 1
	}
}

func buildDetail(task, host, operation string) string {
	parts := make([]string, 0, 3)
	if task = strings.TrimSpace(task); task != "" {
		parts = append(parts, fmt.Sprintf("task %q", task))
	}
	if host = strings.TrimSpace(host); host != "" {
		parts = append(parts, "host "+host)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if len(parts) == 0 {
		return "supervision failure"
	}
	return strings.Join(parts, ": ")
}
