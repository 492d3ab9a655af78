package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"taskguard/internal/faults"
	"taskguard/internal/style"
)

func main() {
	cmd := newRootCommand()
	err := cmd.Execute()
	os.Exit(reportError(os.Stderr, err))
}

// exitStatus carries a task's own exit code out of "run" without treating
// it as a failure of taskguard itself.
type exitStatus struct {
	code int
}

func (e exitStatus) Error() string {
	return fmt.Sprintf("task exited with status %d", e.code)
}

// reportError prints err as "<kind>: <message>" and returns the exit code.
func reportError(w io.Writer, err error) int {
	if err == nil {
		return 0
	}
	var status exitStatus
	if errors.As(err, &status) {
		return status.code
	}
	if errors.Is(err, context.Canceled) {
		return 1
	}
	palette := style.For(w)
	fmt.Fprintln(w, palette.ErrorText(fmt.Sprintf("%s: %v", faults.Kind(err), err)))
	return faults.ExitCode(err)
}
