// Package transport runs commands and file operations on the local machine
// or on a remote host reached over SSH.
//
// Every operation a controller needs (reading and removing the pid record,
// forceful termination, short and long command execution) goes through the
// Transport interface. Local talks to the kernel directly; SSHExec shells out
// to the system ssh client in batch mode; SSHNative holds an in-process
// golang.org/x/crypto/ssh connection.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrProcessGone reports that the target pid does not exist.
var ErrProcessGone = errors.New("process not found")

// Result is the outcome of a completed command.
type Result struct {
	// Output holds stdout and stderr interleaved in arrival order.
	Output   []byte
	ExitCode int
}

// Transport executes operations against one host.
//
// ReadFile and RemoveFile return errors matching fs.ErrNotExist when the
// path is missing. Connection failures match faults.ErrHostUnreachable.
// Run reports non-zero exits through Result, not through the error.
type Transport interface {
	Host() string
	Local() bool
	Run(ctx context.Context, command string) (Result, error)
	ReadFile(ctx context.Context, path string) ([]byte, error)
	RemoveFile(ctx context.Context, path string) error
	Kill(ctx context.Context, pid int) error
	// Stream runs command until it exits. Cancelling ctx asks the command to
	// terminate and still waits for it.
	Stream(ctx context.Context, command string, stdout, stderr io.Writer) error
	Close() error
}

// CommandError describes a helper command that exited unsuccessfully.
type CommandError struct {
	Host     string
	Command  string
	ExitCode int
	Output   string
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s: %q exited with status %d", e.Host, e.Command, e.ExitCode)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + out
	}
	return msg
}
