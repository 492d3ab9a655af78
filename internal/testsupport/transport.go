package testsupport

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"sync"

	"taskguard/internal/faults"
	"taskguard/internal/hosts"
	"taskguard/internal/transport"
)

// FakeHost is an in-memory transport.Transport. Files live in a map keyed
// by path and every call is recorded.
type FakeHost struct {
	mu          sync.Mutex
	name        string
	local       bool
	files       map[string][]byte
	calls       []string
	killed      []int
	unreachable bool

	// KillErr, when set, is returned by Kill.
	KillErr error
	// RemoveErr, when set, is returned by RemoveFile.
	RemoveErr error
	// RunFunc handles Run and Stream commands.
	RunFunc func(ctx context.Context, command string) (transport.Result, error)
}

// NewFakeHost returns an empty, reachable fake host.
func NewFakeHost(name string, local bool) *FakeHost {
	return &FakeHost{name: name, local: local, files: make(map[string][]byte)}
}

// SetUnreachable makes every operation fail with faults.ErrHostUnreachable.
func (h *FakeHost) SetUnreachable(v bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unreachable = v
}

// PutFile stores content at path.
func (h *FakeHost) PutFile(path string, content []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.files[path] = append([]byte(nil), content...)
}

// HasFile reports whether path exists.
func (h *FakeHost) HasFile(path string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.files[path]
	return ok
}

// Calls returns the operations performed so far, e.g. "read /x" or "kill 12".
func (h *FakeHost) Calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.calls...)
}

// Killed returns the pids passed to Kill.
func (h *FakeHost) Killed() []int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]int(nil), h.killed...)
}

func (h *FakeHost) Host() string { return h.name }

func (h *FakeHost) Local() bool { return h.local }

func (h *FakeHost) Close() error { return nil }

func (h *FakeHost) record(call string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, call)
	if h.unreachable {
		return faults.Unreachable(h.name, fmt.Errorf("ssh: connect to host %s port 22: No route to host", h.name))
	}
	return nil
}

func (h *FakeHost) Run(ctx context.Context, command string) (transport.Result, error) {
	if err := h.record("run " + command); err != nil {
		return transport.Result{ExitCode: 255}, err
	}
	if h.RunFunc != nil {
		return h.RunFunc(ctx, command)
	}
	return transport.Result{}, nil
}

func (h *FakeHost) ReadFile(_ context.Context, path string) ([]byte, error) {
	if err := h.record("read " + path); err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	data, ok := h.files[path]
	if !ok {
		return nil, fmt.Errorf("%s: cat %s: %w", h.name, path, fs.ErrNotExist)
	}
	return append([]byte(nil), data...), nil
}

func (h *FakeHost) RemoveFile(_ context.Context, path string) error {
	if err := h.record("remove " + path); err != nil {
		return err
	}
	if h.RemoveErr != nil {
		return h.RemoveErr
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.files[path]; !ok {
		return fmt.Errorf("%s: rm %s: %w", h.name, path, fs.ErrNotExist)
	}
	delete(h.files, path)
	return nil
}

func (h *FakeHost) Kill(_ context.Context, pid int) error {
	if err := h.record(fmt.Sprintf("kill %d", pid)); err != nil {
		return err
	}
	if h.KillErr != nil {
		return h.KillErr
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.killed = append(h.killed, pid)
	return nil
}

func (h *FakeHost) Stream(ctx context.Context, command string, stdout, _ io.Writer) error {
	if err := h.record("stream " + command); err != nil {
		return err
	}
	if h.RunFunc == nil {
		return nil
	}
	res, err := h.RunFunc(ctx, command)
	_, _ = stdout.Write(res.Output)
	return err
}

// FakeOpener resolves host specifications to fake hosts.
type FakeOpener map[string]*FakeHost

// Open implements transport.Opener. The empty target resolves to 127.0.0.1.
func (o FakeOpener) Open(target string) (transport.Transport, error) {
	host := hosts.ParseTarget(target).Host
	if h, ok := o[host]; ok {
		return h, nil
	}
	return nil, fmt.Errorf("fake opener: unknown host %q", host)
}
