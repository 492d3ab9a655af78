package config_test

import (
	"context"
	"errors"
	"testing"

	"taskguard/internal/config"
	"taskguard/internal/faults"
	"taskguard/internal/testsupport"
)

func TestLoadRemoteReadsHostFile(t *testing.T) {
	host := testsupport.NewFakeHost("10.0.0.9", false)
	host.PutFile("/home/obs/.config/taskguard/config.toml", []byte(`
[remote]
pid_dir = "/srv/pid/../pid"

[commands]
short_timeout = 12

[logging]
level = "debug"
`))

	cfg, path, exists, err := config.LoadRemote(context.Background(), host, "/home/obs/.config/taskguard/config.toml")
	if err != nil {
		t.Fatalf("LoadRemote: %v", err)
	}
	if !exists || path != "/home/obs/.config/taskguard/config.toml" {
		t.Fatalf("exists=%v path=%q", exists, path)
	}
	if cfg.Commands.ShortTimeout != 12 || cfg.Logging.Level != "debug" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Paths.PIDDir != "/home/obs/.config/taskguard/pid" {
		t.Fatalf("PIDDir = %q, want remote root layout", cfg.Paths.PIDDir)
	}
	if cfg.Remote.PIDDir != "/srv/pid/../pid" {
		t.Fatalf("remote.pid_dir should be left verbatim, got %q", cfg.Remote.PIDDir)
	}
	if cfg.Remote.KnownHosts != "~/.ssh/known_hosts" {
		t.Fatalf("remote paths must not be expanded locally, got %q", cfg.Remote.KnownHosts)
	}
}

func TestLoadRemoteMissingFileUsesDefaults(t *testing.T) {
	host := testsupport.NewFakeHost("10.0.0.9", false)
	cfg, _, exists, err := config.LoadRemote(context.Background(), host, "/etc/taskguard/config.toml")
	if err != nil {
		t.Fatalf("LoadRemote: %v", err)
	}
	if exists {
		t.Fatal("expected exists=false")
	}
	if cfg.Paths.LogDir != "/etc/taskguard/logs" {
		t.Fatalf("LogDir = %q", cfg.Paths.LogDir)
	}
}

func TestLoadRemoteErrors(t *testing.T) {
	host := testsupport.NewFakeHost("10.0.0.9", false)
	host.PutFile("/cfg/config.toml", []byte("[remote]\ntransport = \"telnet\"\n"))
	if _, _, _, err := config.LoadRemote(context.Background(), host, "/cfg/config.toml"); !errors.Is(err, faults.ErrConfiguration) {
		t.Fatalf("invalid value: expected ErrConfiguration, got %v", err)
	}

	host.PutFile("/cfg/config.toml", []byte("[bogus]\nkey = 1\n"))
	if _, _, _, err := config.LoadRemote(context.Background(), host, "/cfg/config.toml"); !errors.Is(err, faults.ErrConfiguration) {
		t.Fatalf("unknown key: expected ErrConfiguration, got %v", err)
	}

	host.SetUnreachable(true)
	if _, _, _, err := config.LoadRemote(context.Background(), host, "/cfg/config.toml"); !errors.Is(err, faults.ErrHostUnreachable) {
		t.Fatalf("unreachable: expected ErrHostUnreachable, got %v", err)
	}
}
