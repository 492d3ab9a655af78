package config

const (
	appName                     = "taskguard"
	configFileName              = "config.toml"
	pidDirName                  = "pid"
	logDirName                  = "logs"
	historyFileName             = "history.db"
	defaultTransport            = TransportSSH
	defaultSSHBinary            = "ssh"
	defaultSSHPort              = 22
	defaultKnownHosts           = "~/.ssh/known_hosts"
	defaultConnectTimeout       = 10
	defaultShortTimeout         = 30
	defaultKillGrace            = 5
	defaultTailLines            = 50
	defaultNotifyRequestTimeout = 10
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

const (
	// TransportSSH runs remote commands through the system ssh client.
	TransportSSH = "ssh"
	// TransportNative runs remote commands through an in-process SSH client.
	TransportNative = "native"
)

// Default returns a Config populated with repository defaults. Path fields
// are left empty and derived from the configuration root during Load.
func Default() Config {
	return Config{
		Remote: Remote{
			Transport:      defaultTransport,
			SSHBinary:      defaultSSHBinary,
			Port:           defaultSSHPort,
			KnownHosts:     defaultKnownHosts,
			ConnectTimeout: defaultConnectTimeout,
		},
		Commands: Commands{
			ShortTimeout: defaultShortTimeout,
			KillGrace:    defaultKillGrace,
			TailLines:    defaultTailLines,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			OnStart:        true,
			OnStop:         true,
			OnKill:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
