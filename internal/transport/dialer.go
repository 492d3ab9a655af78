package transport

import (
	"fmt"
	"log/slog"
	"time"

	"taskguard/internal/config"
	"taskguard/internal/faults"
	"taskguard/internal/hosts"
	"taskguard/internal/logging"
)

const defaultSSHPort = 22

// Opener yields a Transport for a host specification.
type Opener interface {
	Open(addr string) (Transport, error)
}

// Dialer picks the local or configured remote transport for each call.
// Nothing is cached between calls; locality and reachability are
// re-evaluated every time.
type Dialer struct {
	Resolver hosts.Resolver
	Remote   config.Remote
	Logger   *slog.Logger
	// StopGrace is how long a streamed command gets after SIGTERM.
	StopGrace time.Duration
}

// NewDialer builds a Dialer from the remote section of cfg.
func NewDialer(cfg *config.Config, logger *slog.Logger) *Dialer {
	d := &Dialer{Logger: logging.NewComponentLogger(logger, "transport")}
	if cfg != nil {
		d.Remote = cfg.Remote
		d.StopGrace = cfg.KillGrace()
	} else {
		d.Remote = config.Default().Remote
	}
	return d
}

// Open returns a Transport for addr ("host" or "user@host").
func (d *Dialer) Open(addr string) (Transport, error) {
	target := hosts.ParseTarget(addr)
	if d.Resolver.IsLocal(target.Host) {
		return &Local{StopGrace: d.StopGrace}, nil
	}
	if target.User == "" {
		target.User = d.Remote.User
	}

	timeout := d.connectTimeout()
	switch d.Remote.Transport {
	case "", config.TransportSSH:
		port := d.Remote.Port
		if port == defaultSSHPort {
			// Leave the port to ~/.ssh/config.
			port = 0
		}
		d.logger().Debug("using ssh client transport", logging.Host(target.String()))
		return &SSHExec{
			Target:         target,
			Binary:         d.Remote.SSHBinary,
			Port:           port,
			IdentityFile:   d.Remote.IdentityFile,
			ConnectTimeout: timeout,
			StopGrace:      d.StopGrace,
		}, nil
	case config.TransportNative:
		d.logger().Debug("using native ssh transport", logging.Host(target.String()))
		return &SSHNative{
			Target:         target,
			Port:           d.Remote.Port,
			IdentityFile:   d.Remote.IdentityFile,
			KnownHosts:     d.Remote.KnownHosts,
			ConnectTimeout: timeout,
			StopGrace:      d.StopGrace,
		}, nil
	default:
		return nil, faults.Wrap(faults.ErrConfiguration, "", target.Host, "select transport",
			fmt.Errorf("unsupported remote transport %q", d.Remote.Transport))
	}
}

func (d *Dialer) connectTimeout() time.Duration {
	return time.Duration(d.Remote.ConnectTimeout) * time.Second
}

func (d *Dialer) logger() *slog.Logger {
	if d.Logger == nil {
		return logging.NewNop()
	}
	return d.Logger
}
