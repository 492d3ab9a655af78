package transport

import (
	"fmt"
	"io/fs"
	"strings"

	"taskguard/internal/faults"
)

// sshFailureExit is the status OpenSSH uses for its own errors.
const sshFailureExit = 255

var unreachableMarkers = []string{
	"No route to host",
	"Network is unreachable",
	"Connection refused",
	"Connection timed out",
	"Operation timed out",
	"Could not resolve hostname",
	"Name or service not known",
	"Connection closed by remote host",
}

// IsUnreachableOutput reports whether text carries a connection-level
// failure message from ssh or the network stack.
func IsUnreachableOutput(text string) bool {
	for _, marker := range unreachableMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// classifyExit turns a remote helper command's outcome into an error.
// "No route to host" always wins; a missing file maps to fs.ErrNotExist and
// a missing process to ErrProcessGone.
func classifyExit(host, command string, exitCode int, stderr string) error {
	if exitCode == 0 {
		return nil
	}
	if strings.Contains(stderr, "No route to host") ||
		(exitCode == sshFailureExit && IsUnreachableOutput(stderr)) {
		return faults.Unreachable(host, fmt.Errorf("%s", strings.TrimSpace(stderr)))
	}
	if strings.Contains(stderr, "No such file or directory") {
		return fmt.Errorf("%s: %s: %w", host, command, fs.ErrNotExist)
	}
	if strings.Contains(stderr, "No such process") {
		return fmt.Errorf("%s: %s: %w", host, command, ErrProcessGone)
	}
	return &CommandError{Host: host, Command: command, ExitCode: exitCode, Output: stderr}
}

// ShellQuote wraps s in single quotes for a POSIX shell.
func ShellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.IndexFunc(s, needsQuoting) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func needsQuoting(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	}
	return !strings.ContainsRune("-_./=:,+@%", r)
}
