package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/user"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"taskguard/internal/faults"
	"taskguard/internal/hosts"
)

// SSHNative runs commands over an in-process SSH connection. Credentials
// come from ssh-agent (SSH_AUTH_SOCK) and an optional identity file; host
// keys are checked against known_hosts.
type SSHNative struct {
	Target         hosts.Target
	Port           int
	IdentityFile   string
	KnownHosts     string
	ConnectTimeout time.Duration
	StopGrace      time.Duration

	mu        sync.Mutex
	client    *ssh.Client
	agentConn net.Conn
}

func (n *SSHNative) Host() string { return n.Target.Host }

func (n *SSHNative) Local() bool { return false }

func (n *SSHNative) ops() remoteOps { return remoteOps{host: n.Target.Host, sh: n} }

func (n *SSHNative) Run(ctx context.Context, command string) (Result, error) {
	return n.ops().run(ctx, command)
}

func (n *SSHNative) ReadFile(ctx context.Context, path string) ([]byte, error) {
	return n.ops().readFile(ctx, path)
}

func (n *SSHNative) RemoveFile(ctx context.Context, path string) error {
	return n.ops().removeFile(ctx, path)
}

func (n *SSHNative) Kill(ctx context.Context, pid int) error {
	return n.ops().kill(ctx, pid)
}

func (n *SSHNative) Stream(ctx context.Context, command string, stdout, stderr io.Writer) error {
	return n.ops().stream(ctx, command, stdout, stderr)
}

// Close tears down the SSH connection, if one was opened.
func (n *SSHNative) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	var err error
	if n.client != nil {
		err = n.client.Close()
		n.client = nil
	}
	if n.agentConn != nil {
		_ = n.agentConn.Close()
		n.agentConn = nil
	}
	return err
}

func (n *SSHNative) exec(ctx context.Context, command string, stdout, stderr io.Writer, interactive bool) (int, error) {
	client, err := n.connect(ctx)
	if err != nil {
		return -1, err
	}
	session, err := client.NewSession()
	if err != nil {
		return -1, fmt.Errorf("open ssh session on %s: %w", n.Target.Host, err)
	}
	defer session.Close()

	session.Stdout = stdout
	session.Stderr = stderr
	if interactive {
		modes := ssh.TerminalModes{ssh.ECHO: 0}
		if err := session.RequestPty("xterm", 40, 120, modes); err != nil {
			return -1, fmt.Errorf("request pty on %s: %w", n.Target.Host, err)
		}
	}
	if err := session.Start(command); err != nil {
		return -1, fmt.Errorf("start remote command on %s: %w", n.Target.Host, err)
	}

	done := make(chan error, 1)
	go func() { done <- session.Wait() }()

	select {
	case err = <-done:
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGTERM)
		if interactive {
			select {
			case <-done:
			case <-time.After(n.stopGrace()):
			}
		}
		_ = session.Close()
		return -1, ctx.Err()
	}

	if err == nil {
		return 0, nil
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitStatus(), nil
	}
	var missing *ssh.ExitMissingError
	if errors.As(err, &missing) {
		return sshFailureExit, nil
	}
	return -1, fmt.Errorf("remote command on %s: %w", n.Target.Host, err)
}

func (n *SSHNative) connect(ctx context.Context) (*ssh.Client, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.client != nil {
		return n.client, nil
	}

	cfg, err := n.clientConfig()
	if err != nil {
		return nil, err
	}

	port := n.Port
	if port <= 0 {
		port = 22
	}
	addr := net.JoinHostPort(n.Target.Host, strconv.Itoa(port))
	dialer := net.Dialer{Timeout: n.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, faults.Unreachable(n.Target.Host, err)
	}
	clientConn, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	n.client = ssh.NewClient(clientConn, chans, reqs)
	return n.client, nil
}

func (n *SSHNative) clientConfig() (*ssh.ClientConfig, error) {
	userName := n.Target.User
	if userName == "" {
		current, err := user.Current()
		if err != nil {
			return nil, fmt.Errorf("resolve ssh user: %w", err)
		}
		userName = current.Username
	}

	var auths []ssh.AuthMethod
	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if conn, err := net.Dial("unix", sock); err == nil {
			n.agentConn = conn
			auths = append(auths, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		}
	}
	if n.IdentityFile != "" {
		pem, err := os.ReadFile(n.IdentityFile)
		if err != nil {
			return nil, fmt.Errorf("read identity file: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			return nil, fmt.Errorf("parse identity file %s: %w", n.IdentityFile, err)
		}
		auths = append(auths, ssh.PublicKeys(signer))
	}
	if len(auths) == 0 {
		return nil, errors.New("no ssh credentials: start ssh-agent or set remote.identity_file")
	}

	hostKeys, err := knownhosts.New(n.KnownHosts)
	if err != nil {
		return nil, fmt.Errorf("load known_hosts %s: %w", n.KnownHosts, err)
	}

	return &ssh.ClientConfig{
		User:            userName,
		Auth:            auths,
		HostKeyCallback: hostKeys,
		Timeout:         n.ConnectTimeout,
	}, nil
}

func (n *SSHNative) stopGrace() time.Duration {
	if n.StopGrace > 0 {
		return n.StopGrace
	}
	return DefaultStopGrace
}
