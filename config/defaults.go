package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags and environment variable loading.

const (
	// DefaultFTPPort is the standard FTP control port.
	DefaultFTPPort = 21

	// DefaultSSHPort is the standard SSH port.
	DefaultSSHPort = 22

	// DefaultListenAddr is where the HTTP façade binds in serve mode.
	DefaultListenAddr = "127.0.0.1:8080"

	// DefaultServersFile holds alias;host;port lines.
	DefaultServersFile = "servers.txt"

	// DefaultUsersFile holds username;bcrypt-hash lines.
	DefaultUsersFile = "users.txt"

	// DefaultMode is the data-channel mode used when none is requested.
	DefaultMode = "active"

	// DefaultConnTimeout bounds the FTP and SSH dials and each control
	// reply.  Data transfers are not bounded by it.
	DefaultConnTimeout = 30 * time.Second

	// DefaultTokenTTL is how long an issued bearer token stays valid.
	DefaultTokenTTL = time.Hour

	// DefaultLogFormat selects the zap console encoder.
	DefaultLogFormat = "console"

	// DefaultKeepAliveInterval is the SSH keepalive interval in seconds.
	DefaultKeepAliveInterval = 30

	// DefaultShutdownGrace is how long the HTTP server waits for
	// in-flight requests on shutdown.
	DefaultShutdownGrace = 5 * time.Second
)

// Defaults returns a Config populated with the values above.
func Defaults() *Config {
	return &Config{
		ListenAddr:  DefaultListenAddr,
		ServersFile: DefaultServersFile,
		UsersFile:   DefaultUsersFile,
		TokenTTL:    DefaultTokenTTL,
		Mode:        DefaultMode,
		Timeout:     DefaultConnTimeout,
		Verbose:     1,
		LogFormat:   DefaultLogFormat,
	}
}
