package transport_test

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"taskguard/internal/config"
	"taskguard/internal/faults"
	"taskguard/internal/hosts"
	"taskguard/internal/transport"
)

func TestLocalRunCapturesCombinedOutput(t *testing.T) {
	local := &transport.Local{}
	res, err := local.Run(context.Background(), "echo out; echo err 1>&2; exit 3")
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if res.ExitCode != 3 {
		t.Fatalf("exit code = %d, want 3", res.ExitCode)
	}
	out := string(res.Output)
	if !strings.Contains(out, "out") || !strings.Contains(out, "err") {
		t.Fatalf("expected combined output, got %q", out)
	}
}

func TestLocalRunHonoursDeadline(t *testing.T) {
	local := &transport.Local{}
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := local.Run(ctx, "sleep 30")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("Run took %s after deadline", elapsed)
	}
}

func TestLocalFileOps(t *testing.T) {
	local := &transport.Local{}
	path := filepath.Join(t.TempDir(), "foo.pid")

	if _, err := local.ReadFile(context.Background(), path); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
	if err := os.WriteFile(path, []byte("12\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	data, err := local.ReadFile(context.Background(), path)
	if err != nil || string(data) != "12\n" {
		t.Fatalf("ReadFile = %q, %v", data, err)
	}
	if err := local.RemoveFile(context.Background(), path); err != nil {
		t.Fatalf("RemoveFile returned error: %v", err)
	}
	if err := local.RemoveFile(context.Background(), path); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected ErrNotExist on second remove, got %v", err)
	}
}

func TestLocalKill(t *testing.T) {
	cmd := exec.Command("sleep", "30")
	if err := cmd.Start(); err != nil {
		t.Fatalf("start sleep: %v", err)
	}
	local := &transport.Local{}
	if err := local.Kill(context.Background(), cmd.Process.Pid); err != nil {
		t.Fatalf("Kill returned error: %v", err)
	}
	_ = cmd.Wait()
	if cmd.ProcessState.Success() {
		t.Fatal("expected sleep to be killed")
	}

	if err := local.Kill(context.Background(), cmd.Process.Pid); !errors.Is(err, transport.ErrProcessGone) {
		t.Fatalf("expected ErrProcessGone for reaped pid, got %v", err)
	}
	if err := local.Kill(context.Background(), 0); err == nil {
		t.Fatal("expected refusal for pid 0")
	}
}

func TestLocalStreamStopsOnCancel(t *testing.T) {
	local := &transport.Local{StopGrace: 2 * time.Second}
	ctx, cancel := context.WithCancel(context.Background())
	var out bytes.Buffer

	done := make(chan error, 1)
	go func() {
		done <- local.Stream(ctx, "trap 'echo bye; exit 0' TERM; echo ready; while :; do sleep 0.1; done", &out, &out)
	}()
	time.Sleep(300 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Stream did not return after cancel")
	}
}

// fakeSSH writes a script standing in for the ssh binary.
func fakeSSH(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ssh")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake ssh: %v", err)
	}
	return path
}

func TestSSHExecNoRouteIsUnreachable(t *testing.T) {
	bin := fakeSSH(t, `echo "ssh: connect to host 10.0.0.9 port 22: No route to host" 1>&2; exit 255`)
	remote := &transport.SSHExec{Target: hosts.Target{Host: "10.0.0.9"}, Binary: bin}

	if _, err := remote.ReadFile(context.Background(), "/x/foo.pid"); !errors.Is(err, faults.ErrHostUnreachable) {
		t.Fatalf("ReadFile: expected ErrHostUnreachable, got %v", err)
	}
	if err := remote.RemoveFile(context.Background(), "/x/foo.pid"); !errors.Is(err, faults.ErrHostUnreachable) {
		t.Fatalf("RemoveFile: expected ErrHostUnreachable, got %v", err)
	}
	if _, err := remote.Run(context.Background(), "uptime"); !errors.Is(err, faults.ErrHostUnreachable) {
		t.Fatalf("Run: expected ErrHostUnreachable, got %v", err)
	}
}

func TestSSHExecReadFile(t *testing.T) {
	// The last argument is the remote command line; run it locally.
	bin := fakeSSH(t, `for last; do :; done; exec sh -c "$last"`)
	remote := &transport.SSHExec{Target: hosts.Target{User: "obs", Host: "mast"}, Binary: bin}

	dir := t.TempDir()
	path := filepath.Join(dir, "foo bar.pid")
	if _, err := remote.ReadFile(context.Background(), path); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
	if err := os.WriteFile(path, []byte("4242\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	data, err := remote.ReadFile(context.Background(), path)
	if err != nil || strings.TrimSpace(string(data)) != "4242" {
		t.Fatalf("ReadFile = %q, %v", data, err)
	}
	if err := remote.RemoveFile(context.Background(), path); err != nil {
		t.Fatalf("RemoveFile returned error: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected file removed, stat err = %v", err)
	}
}

func TestSSHExecArgs(t *testing.T) {
	remote := &transport.SSHExec{
		Target:         hosts.Target{User: "obs", Host: "mast"},
		Port:           2222,
		IdentityFile:   "/keys/id",
		ConnectTimeout: 5 * time.Second,
	}
	got := strings.Join(remote.Args("cat /x", false), " ")
	want := "-o BatchMode=yes -o ConnectTimeout=5 -p 2222 -i /keys/id -T obs@mast cat /x"
	if got != want {
		t.Fatalf("Args = %q, want %q", got, want)
	}
	if !strings.Contains(strings.Join(remote.Args("tail -f x", true), " "), "-tt obs@mast") {
		t.Fatal("interactive args should force a tty")
	}
}

func TestDialerSelectsTransport(t *testing.T) {
	cfg := config.Default()
	d := transport.NewDialer(&cfg, nil)
	d.Resolver = hosts.Resolver{LocalIPFunc: func() string { return "192.168.1.5" }}

	for _, addr := range []string{"127.0.0.1", "192.168.1.5", ""} {
		tr, err := d.Open(addr)
		if err != nil {
			t.Fatalf("Open(%q): %v", addr, err)
		}
		if !tr.Local() {
			t.Fatalf("Open(%q) should be local", addr)
		}
	}

	tr, err := d.Open("obs@10.0.0.9")
	if err != nil {
		t.Fatalf("Open remote: %v", err)
	}
	if _, ok := tr.(*transport.SSHExec); !ok || tr.Host() != "10.0.0.9" {
		t.Fatalf("expected SSHExec for 10.0.0.9, got %T", tr)
	}

	d.Remote.Transport = config.TransportNative
	tr, err = d.Open("10.0.0.9")
	if err != nil {
		t.Fatalf("Open native: %v", err)
	}
	if _, ok := tr.(*transport.SSHNative); !ok {
		t.Fatalf("expected SSHNative, got %T", tr)
	}
	_ = tr.Close()

	d.Remote.Transport = "telnet"
	if _, err := d.Open("10.0.0.9"); !errors.Is(err, faults.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
