package config

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"taskguard/internal/faults"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateRemote(); err != nil {
		return fmt.Errorf("%w: %w", faults.ErrConfiguration, err)
	}
	if err := c.validateNotifications(); err != nil {
		return fmt.Errorf("%w: %w", faults.ErrConfiguration, err)
	}
	if err := c.validateLogging(); err != nil {
		return fmt.Errorf("%w: %w", faults.ErrConfiguration, err)
	}
	return nil
}

func (c *Config) validateRemote() error {
	switch c.Remote.Transport {
	case TransportSSH, TransportNative:
	default:
		return fmt.Errorf("remote.transport must be %q or %q (got %q)", TransportSSH, TransportNative, c.Remote.Transport)
	}
	if c.Remote.Port < 1 || c.Remote.Port > 65535 {
		return fmt.Errorf("remote.port must be between 1 and 65535 (got %d)", c.Remote.Port)
	}
	if c.Remote.PIDDir != "" && !path.IsAbs(c.Remote.PIDDir) {
		return errors.New("remote.pid_dir must be an absolute path")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	topic := c.Notifications.NtfyTopic
	if topic == "" {
		return nil
	}
	parsed, err := url.Parse(topic)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("notifications.ntfy_topic must be a full URL (got %q)", topic)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("notifications.ntfy_topic must use http or https (got %q)", parsed.Scheme)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json (got %q)", c.Logging.Format)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error (got %q)", c.Logging.Level)
	}
	return nil
}
