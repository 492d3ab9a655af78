package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"taskguard/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.Root = base
	cfgVal.Paths.PIDDir = filepath.Join(base, "pid")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.HistoryDB = filepath.Join(base, "history.db")
	cfgVal.Logging.Level = "debug"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithNtfyTopic points notifications at topic.
func WithNtfyTopic(topic string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.NtfyTopic = topic
	}
}

// WithRemotePIDDir overrides the pid directory assumed on remote hosts.
func WithRemotePIDDir(dir string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Remote.PIDDir = dir
	}
}

// WithFakeSSH writes an executable shell script standing in for the ssh
// client and points remote.ssh_binary at it.
func WithFakeSSH(body string) ConfigOption {
	return func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		target := filepath.Join(binDir, "ssh")
		script := []byte("#!/bin/sh\n" + body + "\n")
		if err := os.WriteFile(target, script, 0o755); err != nil {
			b.t.Fatalf("write fake ssh: %v", err)
		}
		b.cfg.Remote.SSHBinary = target
	}
}

// BaseDir returns the temporary root that NewConfig derived cfg from.
func BaseDir(cfg *config.Config) string {
	return cfg.Paths.Root
}
