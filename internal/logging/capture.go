package logging

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// LineWriter returns an io.WriteCloser that logs every complete line written
// to it at level. Close flushes a trailing partial line.
func LineWriter(logger *slog.Logger, level slog.Level, attrs ...Attr) io.WriteCloser {
	if logger == nil {
		logger = NewNop()
	}
	return &lineWriter{logger: logger, level: level, args: Args(attrs...)}
}

type lineWriter struct {
	mu     sync.Mutex
	logger *slog.Logger
	level  slog.Level
	args   []any
	buf    bytes.Buffer
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// Partial line: put it back and wait for more.
			w.buf.Reset()
			w.buf.WriteString(line)
			break
		}
		w.emit(line)
	}
	return len(p), nil
}

func (w *lineWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() > 0 {
		w.emit(w.buf.String())
		w.buf.Reset()
	}
	return nil
}

func (w *lineWriter) emit(line string) {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return
	}
	w.logger.Log(context.Background(), w.level, line, w.args...)
}

var (
	captureMu     sync.Mutex
	captureActive bool
)

// CaptureStdio redirects os.Stdout to logger at info level and os.Stderr at
// error level until the returned restore function is called.
//
// This swaps process-wide state. The logger must already hold its own
// console writer (as loggers from New do) or its output would loop back
// into the capture. Only one capture may be active at a time.
func CaptureStdio(logger *slog.Logger) (func() error, error) {
	captureMu.Lock()
	defer captureMu.Unlock()
	if captureActive {
		return nil, errors.New("stdio capture already active")
	}

	outR, outW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		outR.Close()
		outW.Close()
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}

	origOut, origErr := os.Stdout, os.Stderr
	os.Stdout, os.Stderr = outW, errW
	captureActive = true

	var wg sync.WaitGroup
	pump := func(r *os.File, level slog.Level, stream string) {
		defer wg.Done()
		sink := LineWriter(logger, level, String(FieldStream, stream))
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			_, _ = sink.Write(append(scanner.Bytes(), '\n'))
		}
		_ = sink.Close()
		_ = r.Close()
	}
	wg.Add(2)
	go pump(outR, slog.LevelInfo, "stdout")
	go pump(errR, slog.LevelError, "stderr")

	var once sync.Once
	restore := func() error {
		once.Do(func() {
			captureMu.Lock()
			os.Stdout, os.Stderr = origOut, origErr
			captureActive = false
			captureMu.Unlock()
			_ = outW.Close()
			_ = errW.Close()
			wg.Wait()
		})
		return nil
	}
	return restore, nil
}
