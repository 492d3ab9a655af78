package daemonctl_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"taskguard/internal/config"
	"taskguard/internal/daemonctl"
	"taskguard/internal/faults"
	"taskguard/internal/history"
	"taskguard/internal/testsupport"
	"taskguard/internal/transport"
)

type memRecorder struct {
	mu     sync.Mutex
	events []history.Event
}

func (m *memRecorder) Record(_ context.Context, ev history.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	killed []string
	errors []string
}

func (f *fakeNotifier) NotifyStarted(context.Context, string, string, int) error { return nil }
func (f *fakeNotifier) NotifyStopped(context.Context, string, string) error      { return nil }
func (f *fakeNotifier) TestNotification(context.Context) error                   { return nil }
func (f *fakeNotifier) NotifyExited(context.Context, string, int, time.Duration) error {
	return nil
}

func (f *fakeNotifier) NotifyKilled(_ context.Context, task, host string, pid int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killed = append(f.killed, fmt.Sprintf("%s@%s:%d", task, host, pid))
	return nil
}

func (f *fakeNotifier) NotifyError(_ context.Context, err error, label string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, label)
	return nil
}

type fixture struct {
	cfg      *config.Config
	remote   *testsupport.FakeHost
	events   *memRecorder
	notifier *fakeNotifier
	svc      *daemonctl.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithRemotePIDDir("/srv/pid"))
	remote := testsupport.NewFakeHost("10.0.0.9", false)
	events := &memRecorder{}
	notifier := &fakeNotifier{}
	svc := daemonctl.NewService(cfg, daemonctl.Deps{
		Opener:   testsupport.FakeOpener{"10.0.0.9": remote},
		Events:   events,
		Notifier: notifier,
	})
	return &fixture{cfg: cfg, remote: remote, events: events, notifier: notifier, svc: svc}
}

func TestStatusStates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	snap, err := f.svc.Status(ctx, "foo", "10.0.0.9")
	if err != nil || snap.State != daemonctl.StateStopped {
		t.Fatalf("no record: %+v, %v", snap, err)
	}

	f.remote.PutFile("/srv/pid/foo.pid", []byte("77\n"))
	f.remote.RunFunc = func(_ context.Context, command string) (transport.Result, error) {
		if command == "kill -0 77" {
			return transport.Result{}, nil
		}
		return transport.Result{ExitCode: 1}, nil
	}
	snap, err = f.svc.Status(ctx, "foo", "10.0.0.9")
	if err != nil || snap.State != daemonctl.StateRunning || snap.Record.PID != 77 {
		t.Fatalf("live record: %+v, %v", snap, err)
	}

	f.remote.PutFile("/srv/pid/foo.pid", []byte("78\n"))
	snap, err = f.svc.Status(ctx, "foo", "10.0.0.9")
	if err != nil || snap.State != daemonctl.StateStale {
		t.Fatalf("stale record: %+v, %v", snap, err)
	}

	f.remote.SetUnreachable(true)
	if _, err := f.svc.Status(ctx, "foo", "10.0.0.9"); !errors.Is(err, faults.ErrHostUnreachable) {
		t.Fatalf("unreachable: expected ErrHostUnreachable, got %v", err)
	}
}

func TestKillRecordsAndNotifies(t *testing.T) {
	f := newFixture(t)
	f.remote.PutFile("/srv/pid/foo.pid", []byte("77\n"))

	res, err := f.svc.Kill(context.Background(), "foo", "10.0.0.9", time.Second)
	if err != nil || !res.Killed {
		t.Fatalf("Kill = %+v, %v", res, err)
	}
	if len(f.events.events) != 1 || f.events.events[0].Kind != history.KindKilled || f.events.events[0].PID != 77 {
		t.Fatalf("history = %+v", f.events.events)
	}
	if len(f.notifier.killed) != 1 || f.notifier.killed[0] != "foo@10.0.0.9:77" {
		t.Fatalf("notifications = %v", f.notifier.killed)
	}
}

func TestKillCleanupFailureRecorded(t *testing.T) {
	f := newFixture(t)
	f.remote.PutFile("/srv/pid/foo.pid", []byte("77\n"))
	f.remote.RemoveErr = errors.New("read-only file system")

	res, err := f.svc.Kill(context.Background(), "foo", "10.0.0.9", 0)
	if !errors.Is(err, faults.ErrCleanup) || !res.Killed {
		t.Fatalf("Kill = %+v, %v", res, err)
	}
	if len(f.events.events) != 1 || f.events.events[0].Kind != history.KindKillCleanupFailed {
		t.Fatalf("history = %+v", f.events.events)
	}
	if len(f.notifier.errors) != 1 {
		t.Fatalf("expected error notification, got %v", f.notifier.errors)
	}
}

func TestKillNoSuchProcessRecordsNothing(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Kill(context.Background(), "foo", "10.0.0.9", 0); !errors.Is(err, faults.ErrNoSuchProcess) {
		t.Fatalf("expected ErrNoSuchProcess, got %v", err)
	}
	if len(f.events.events) != 0 {
		t.Fatalf("unexpected history %+v", f.events.events)
	}
}

func TestTailBuildsCommand(t *testing.T) {
	f := newFixture(t)
	var commands []string
	f.remote.RunFunc = func(_ context.Context, command string) (transport.Result, error) {
		commands = append(commands, command)
		return transport.Result{Output: []byte("log line\n")}, nil
	}
	var out bytes.Buffer
	if err := f.svc.Tail(context.Background(), "foo", "10.0.0.9", 0, true, &out, &out); err != nil {
		t.Fatalf("Tail returned error: %v", err)
	}
	want := fmt.Sprintf("tail -n %d -F %s", f.cfg.Commands.TailLines, transport.ShellQuote(f.cfg.LogPath("foo")))
	if len(commands) != 1 || commands[0] != want {
		t.Fatalf("commands = %q, want %q", commands, want)
	}
	if out.String() != "log line\n" {
		t.Fatalf("output = %q", out.String())
	}
}

func TestExecUnreachable(t *testing.T) {
	f := newFixture(t)
	f.remote.SetUnreachable(true)
	if _, err := f.svc.Exec(context.Background(), "10.0.0.9", "uptime", time.Second); !errors.Is(err, faults.ErrHostUnreachable) {
		t.Fatalf("expected ErrHostUnreachable, got %v", err)
	}
}

func TestLaunchArgs(t *testing.T) {
	args := daemonctl.LaunchArgs(daemonctl.LaunchOptions{
		Task:       "foo",
		Command:    []string{"sleep", "10"},
		ConfigPath: "/etc/tg.toml",
		LogLevel:   "debug",
	})
	got := strings.Join(args, " ")
	if got != "run --config /etc/tg.toml --log-level debug foo -- sleep 10" {
		t.Fatalf("LaunchArgs = %q", got)
	}
	if _, err := daemonctl.Launch("", daemonctl.LaunchOptions{Task: "foo", Command: []string{"x"}}); err == nil {
		t.Fatal("expected error for empty executable")
	}
}
