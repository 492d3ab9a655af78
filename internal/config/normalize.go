package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// pathExpander resolves a configured path on the machine the config
// describes.
type pathExpander func(string) (string, error)

func (c *Config) normalize() error {
	return c.normalizeWith(expandPath)
}

func (c *Config) normalizeWith(expand pathExpander) error {
	if err := c.normalizePaths(expand); err != nil {
		return err
	}
	if err := c.normalizeRemote(expand); err != nil {
		return err
	}
	c.normalizeCommands()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths(expand pathExpander) error {
	var err error
	if strings.TrimSpace(c.Paths.PIDDir) == "" {
		c.Paths.PIDDir = filepath.Join(c.Paths.Root, pidDirName)
	}
	if c.Paths.PIDDir, err = expand(c.Paths.PIDDir); err != nil {
		return fmt.Errorf("paths.pid_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.Root, logDirName)
	}
	if c.Paths.LogDir, err = expand(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.HistoryDB) == "" {
		c.Paths.HistoryDB = filepath.Join(c.Paths.Root, historyFileName)
	}
	if c.Paths.HistoryDB, err = expand(c.Paths.HistoryDB); err != nil {
		return fmt.Errorf("paths.history_db: %w", err)
	}
	return nil
}

func (c *Config) normalizeRemote(expand pathExpander) error {
	c.Remote.Transport = strings.ToLower(strings.TrimSpace(c.Remote.Transport))
	if c.Remote.Transport == "" {
		c.Remote.Transport = defaultTransport
	}
	c.Remote.SSHBinary = strings.TrimSpace(c.Remote.SSHBinary)
	if c.Remote.SSHBinary == "" {
		c.Remote.SSHBinary = defaultSSHBinary
	}
	c.Remote.User = strings.TrimSpace(c.Remote.User)
	if c.Remote.Port == 0 {
		c.Remote.Port = defaultSSHPort
	}
	if c.Remote.ConnectTimeout <= 0 {
		c.Remote.ConnectTimeout = defaultConnectTimeout
	}
	var err error
	if c.Remote.IdentityFile, err = expand(strings.TrimSpace(c.Remote.IdentityFile)); err != nil {
		return fmt.Errorf("remote.identity_file: %w", err)
	}
	if strings.TrimSpace(c.Remote.KnownHosts) == "" {
		c.Remote.KnownHosts = defaultKnownHosts
	}
	if c.Remote.KnownHosts, err = expand(c.Remote.KnownHosts); err != nil {
		return fmt.Errorf("remote.known_hosts: %w", err)
	}
	// Remote paths are interpreted on the remote host, so no expansion.
	c.Remote.PIDDir = strings.TrimSpace(c.Remote.PIDDir)
	return nil
}

func (c *Config) normalizeCommands() {
	if c.Commands.ShortTimeout <= 0 {
		c.Commands.ShortTimeout = defaultShortTimeout
	}
	if c.Commands.KillGrace < 0 {
		c.Commands.KillGrace = 0
	}
	if c.Commands.TailLines <= 0 {
		c.Commands.TailLines = defaultTailLines
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("TASKGUARD_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
