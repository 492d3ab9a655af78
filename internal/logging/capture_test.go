package logging_test

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"

	"taskguard/internal/logging"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestLineWriterSplitsLines(t *testing.T) {
	var buf syncBuffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	w := logging.LineWriter(logger, slog.LevelInfo, logging.String(logging.FieldStream, "stdout"))

	fmt.Fprint(w, "first\nsec")
	fmt.Fprint(w, "ond\n\n")
	fmt.Fprint(w, "partial")
	if err := w.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	out := buf.String()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 records, got %d: %q", len(lines), out)
	}
	for i, want := range []string{"msg=first", "msg=second", "msg=partial"} {
		if !strings.Contains(lines[i], want) {
			t.Fatalf("record %d = %q, want %q", i, lines[i], want)
		}
		if !strings.Contains(lines[i], "stream=stdout") {
			t.Fatalf("record %d missing stream attr: %q", i, lines[i])
		}
	}
}

func TestCaptureStdioRoutesAndRestores(t *testing.T) {
	var buf syncBuffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	origOut, origErr := os.Stdout, os.Stderr

	restore, err := logging.CaptureStdio(logger)
	if err != nil {
		t.Fatalf("CaptureStdio returned error: %v", err)
	}
	if _, err := logging.CaptureStdio(logger); err == nil {
		t.Fatal("expected nested capture to fail")
	}

	fmt.Fprintln(os.Stdout, "to stdout")
	fmt.Fprintln(os.Stderr, "to stderr")

	if err := restore(); err != nil {
		t.Fatalf("restore returned error: %v", err)
	}
	if err := restore(); err != nil {
		t.Fatalf("second restore returned error: %v", err)
	}
	if os.Stdout != origOut || os.Stderr != origErr {
		t.Fatal("stdio not restored")
	}

	out := buf.String()
	if !strings.Contains(out, `level=INFO msg="to stdout"`) {
		t.Fatalf("stdout line not logged at info: %q", out)
	}
	if !strings.Contains(out, `level=ERROR msg="to stderr"`) {
		t.Fatalf("stderr line not logged at error: %q", out)
	}
}
