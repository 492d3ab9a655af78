package daemonrun

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// child is a supervised command running in its own process group so that a
// terminal interrupt reaches only the daemon, which then stops the child
// deliberately.
type child struct {
	cmd   *exec.Cmd
	grace time.Duration

	done     chan struct{}
	waitErr  error
	exitCode int

	stopOnce sync.Once
	stopErr  error
}

func startChild(argv []string, stdout, stderr io.Writer, grace time.Duration) (*child, error) {
	if len(argv) == 0 {
		return nil, errors.New("no command given")
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", argv[0], err)
	}
	c := &child{cmd: cmd, grace: grace, done: make(chan struct{})}
	go c.wait()
	return c, nil
}

func (c *child) wait() {
	c.waitErr = c.cmd.Wait()
	c.exitCode = c.cmd.ProcessState.ExitCode()
	close(c.done)
}

func (c *child) pid() int { return c.cmd.Process.Pid }

// Done is closed when the child has exited.
func (c *child) Done() <-chan struct{} { return c.done }

// ExitCode is valid after Done; -1 means the child died from a signal.
func (c *child) ExitCode() int {
	<-c.done
	return c.exitCode
}

// Stop sends SIGTERM to the child's process group, escalates to SIGKILL
// after the grace period, and waits for the child to exit.
func (c *child) Stop() error {
	c.stopOnce.Do(func() {
		select {
		case <-c.done:
			return
		default:
		}
		pgid := -c.pid()
		if err := unix.Kill(pgid, unix.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
			c.stopErr = fmt.Errorf("terminate child %d: %w", c.pid(), err)
		}
		timer := time.NewTimer(c.grace)
		defer timer.Stop()
		select {
		case <-c.done:
			return
		case <-timer.C:
		}
		if err := unix.Kill(pgid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
			c.stopErr = errors.Join(c.stopErr, fmt.Errorf("kill child %d: %w", c.pid(), err))
		}
		<-c.done
	})
	return c.stopErr
}
