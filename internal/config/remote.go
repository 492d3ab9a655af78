package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"taskguard/internal/faults"
)

// FileReader reads files on the host a configuration lives on. Remote
// transports satisfy it.
type FileReader interface {
	Host() string
	ReadFile(ctx context.Context, path string) ([]byte, error)
}

// LoadRemote reads, parses, and validates the configuration file at
// filePath on the reader's host. An empty filePath means the local default
// layout. A missing file yields defaults rooted at the file's directory and
// exists=false. Paths are cleaned but not expanded, since home directories
// on the remote host are unknown.
func LoadRemote(ctx context.Context, reader FileReader, filePath string) (*Config, string, bool, error) {
	if reader == nil {
		return nil, "", false, errors.New("remote config: no reader")
	}
	filePath = strings.TrimSpace(filePath)
	if filePath == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return nil, "", false, err
		}
		filePath = defaultPath
	}
	filePath = path.Clean(filePath)

	cfg := Default()
	cfg.Paths.Root = path.Dir(filePath)

	data, err := reader.ReadFile(ctx, filePath)
	exists := true
	switch {
	case errors.Is(err, fs.ErrNotExist):
		exists = false
	case errors.Is(err, faults.ErrHostUnreachable):
		return nil, "", false, err
	case err != nil:
		return nil, "", false, fmt.Errorf("read %s:%s: %w", reader.Host(), filePath, err)
	}

	if exists {
		if err := decode(bytes.NewReader(data), &cfg); err != nil {
			return nil, "", false, fmt.Errorf("%w: %s:%s: %w", faults.ErrConfiguration, reader.Host(), filePath, err)
		}
	}
	if err := cfg.normalizeWith(remotePath); err != nil {
		return nil, "", false, fmt.Errorf("%w: %s:%s: %w", faults.ErrConfiguration, reader.Host(), filePath, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, filePath, exists, nil
}

func remotePath(value string) (string, error) {
	if value == "" {
		return value, nil
	}
	return path.Clean(value), nil
}
