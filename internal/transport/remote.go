package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
)

// shell executes a command line on a remote host. It returns the remote
// exit status; err is reserved for failures to run the command at all.
type shell interface {
	exec(ctx context.Context, command string, stdout, stderr io.Writer, interactive bool) (int, error)
}

// remoteOps implements the file and process operations on top of a shell.
type remoteOps struct {
	host string
	sh   shell
}

func (r remoteOps) run(ctx context.Context, command string) (Result, error) {
	var combined, errs bytes.Buffer
	code, err := r.sh.exec(ctx, command, &combined, io.MultiWriter(&combined, &errs), false)
	result := Result{Output: combined.Bytes(), ExitCode: code}
	if err != nil {
		return result, err
	}
	if code == sshFailureExit && IsUnreachableOutput(errs.String()) {
		return result, classifyExit(r.host, command, code, errs.String())
	}
	return result, nil
}

func (r remoteOps) readFile(ctx context.Context, path string) ([]byte, error) {
	command := "cat " + ShellQuote(path)
	var out, errs bytes.Buffer
	code, err := r.sh.exec(ctx, command, &out, &errs, false)
	if err != nil {
		return nil, err
	}
	if err := classifyExit(r.host, command, code, errs.String()); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func (r remoteOps) removeFile(ctx context.Context, path string) error {
	command := "rm " + ShellQuote(path)
	var errs bytes.Buffer
	code, err := r.sh.exec(ctx, command, io.Discard, &errs, false)
	if err != nil {
		return err
	}
	return classifyExit(r.host, command, code, errs.String())
}

func (r remoteOps) kill(ctx context.Context, pid int) error {
	if pid <= 0 {
		return fmt.Errorf("refusing to signal pid %d", pid)
	}
	command := "kill -9 " + strconv.Itoa(pid)
	var errs bytes.Buffer
	code, err := r.sh.exec(ctx, command, io.Discard, &errs, false)
	if err != nil {
		return err
	}
	return classifyExit(r.host, command, code, errs.String())
}

func (r remoteOps) stream(ctx context.Context, command string, stdout, stderr io.Writer) error {
	var errs bytes.Buffer
	code, err := r.sh.exec(ctx, command, stdout, io.MultiWriter(stderr, &errs), true)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil {
		return err
	}
	return classifyExit(r.host, command, code, errs.String())
}
