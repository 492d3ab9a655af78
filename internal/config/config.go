package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// ConfigHomeEnv names the environment variable that overrides the
// configuration root. Relative values are ignored.
const ConfigHomeEnv = "TASKGUARD_CONFIG_HOME"

// Paths contains the on-disk locations derived from the configuration root.
type Paths struct {
	Root      string `toml:"-"`
	PIDDir    string `toml:"pid_dir"`
	LogDir    string `toml:"log_dir"`
	HistoryDB string `toml:"history_db"`
}

// Remote configures how commands reach hosts other than the local machine.
type Remote struct {
	Transport      string `toml:"transport"`
	SSHBinary      string `toml:"ssh_binary"`
	User           string `toml:"user"`
	Port           int    `toml:"port"`
	IdentityFile   string `toml:"identity_file"`
	KnownHosts     string `toml:"known_hosts"`
	ConnectTimeout int    `toml:"connect_timeout"`
	// PIDDir overrides the pid directory on remote hosts. When empty the
	// local layout is assumed on every host.
	PIDDir string `toml:"pid_dir"`
}

// Commands contains timeouts for command execution.
type Commands struct {
	ShortTimeout int `toml:"short_timeout"`
	KillGrace    int `toml:"kill_grace"`
	TailLines    int `toml:"tail_lines"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	OnStart        bool   `toml:"on_start"`
	OnStop         bool   `toml:"on_stop"`
	OnKill         bool   `toml:"on_kill"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format       string `toml:"format"`
	Level        string `toml:"level"`
	CaptureStdio bool   `toml:"capture_stdio"`
}

// Config encapsulates all configuration values for taskguard.
//
// Configuration sections:
//   - Paths: pid, log, and history locations
//   - Remote: remote shell transport settings
//   - Commands: short-command timeout, kill grace period, tail length
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and stdio capture
type Config struct {
	Paths         Paths         `toml:"paths"`
	Remote        Remote        `toml:"remote"`
	Commands      Commands      `toml:"commands"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// Root returns the configuration root directory.
//
// TASKGUARD_CONFIG_HOME wins when it holds an absolute path; otherwise the
// XDG config home is used, falling back to ~/.config.
func Root() (string, error) {
	if value, ok := os.LookupEnv(ConfigHomeEnv); ok {
		value = strings.TrimSpace(value)
		if value != "" && filepath.IsAbs(value) {
			return filepath.Clean(value), nil
		}
	}
	xdg.Reload()
	if base := strings.TrimSpace(xdg.ConfigHome); base != "" && filepath.IsAbs(base) {
		return filepath.Join(base, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", appName), nil
}

// DefaultConfigPath returns the absolute path of the default configuration file.
func DefaultConfigPath() (string, error) {
	root, err := Root()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, configFileName), nil
}

// Load locates, parses, and validates a configuration file. A missing file
// is not an error; defaults are used. The returned config has every path
// field expanded.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	root, err := Root()
	if err != nil {
		return nil, "", false, err
	}
	cfg.Paths.Root = root

	resolvedPath, exists, err := resolveConfigPath(path, root)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()
		if err := decode(file, &cfg); err != nil {
			return nil, "", false, err
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func decode(r io.Reader, cfg *Config) error {
	decoder := toml.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func resolveConfigPath(path, root string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath := filepath.Join(root, configFileName)
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the local pid and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.PIDDir, c.Paths.LogDir, filepath.Dir(c.Paths.HistoryDB)} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LogPath returns the log file for task.
func (c *Config) LogPath(task string) string {
	return filepath.Join(c.Paths.LogDir, task+".log")
}

// RemotePIDDir returns the pid directory assumed on remote hosts.
func (c *Config) RemotePIDDir() string {
	if dir := strings.TrimSpace(c.Remote.PIDDir); dir != "" {
		return dir
	}
	return c.Paths.PIDDir
}

// ShortTimeout returns the default timeout for short commands.
func (c *Config) ShortTimeout() time.Duration {
	return time.Duration(c.Commands.ShortTimeout) * time.Second
}

// KillGrace returns how long a supervised child gets between SIGTERM and SIGKILL.
func (c *Config) KillGrace() time.Duration {
	return time.Duration(c.Commands.KillGrace) * time.Second
}

// ConnectTimeout returns the remote connection timeout.
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.Remote.ConnectTimeout) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
