// Package config loads, normalizes, and validates taskguard configuration.
//
// It resolves the configuration root (TASKGUARD_CONFIG_HOME, then the XDG
// config home), reads an optional TOML file, expands user paths, and derives
// the pid, log, and history locations every other package relies on. Remote
// transport, command timeout, notification, and logging knobs live here as
// well so the CLI and daemon runtime see the same values.
package config
