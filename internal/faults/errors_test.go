package faults_test

import (
	"errors"
	"strings"
	"testing"

	"taskguard/internal/faults"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := faults.Wrap(faults.ErrHostUnreachable, "exposure_daemon", "10.0.0.9", "read pid", base)
	if !errors.Is(err, faults.ErrHostUnreachable) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"exposure_daemon", "10.0.0.9", "read pid", "boom"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapWithoutMarker(t *testing.T) {
	base := errors.New("io")
	err := faults.Wrap(nil, "t", "", "write", base)
	if faults.Kind(err) != "error" {
		t.Fatalf("expected generic kind, got %q", faults.Kind(err))
	}
	if !errors.Is(err, base) {
		t.Fatal("expected base error retained")
	}
}

func TestKindAndExitCodeAreDistinct(t *testing.T) {
	cases := []struct {
		err  error
		kind string
		code int
	}{
		{faults.AlreadyRunning("a"), "instance_already_running", 3},
		{faults.NoSuchProcess("a", "127.0.0.1"), "no_such_process", 4},
		{faults.Unreachable("h", nil), "host_unreachable", 5},
		{faults.Wrap(faults.ErrMalformedRecord, "a", "", "parse", nil), "malformed_record", 6},
		{faults.Wrap(faults.ErrTimeoutExceeded, "", "", "exec", nil), "timeout_exceeded", 7},
		{faults.Wrap(faults.ErrCleanup, "a", "", "clear", nil), "cleanup_failed", 8},
		{faults.Wrap(faults.ErrConfiguration, "", "", "task name", nil), "configuration", 2},
		{errors.New("other"), "error", 1},
		{nil, "", 0},
	}
	seen := map[int]string{}
	for _, tc := range cases {
		if got := faults.Kind(tc.err); got != tc.kind {
			t.Fatalf("Kind(%v) = %q, want %q", tc.err, got, tc.kind)
		}
		code := faults.ExitCode(tc.err)
		if code != tc.code {
			t.Fatalf("ExitCode(%v) = %d, want %d", tc.err, code, tc.code)
		}
		if prev, ok := seen[code]; ok {
			t.Fatalf("exit code %d shared by %q and %q", code, prev, tc.kind)
		}
		seen[code] = tc.kind
	}
}
