// Package config defines the runtime configuration for ftpgate and provides
// helpers for parsing FTP targets and tunnel specifications.
package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"ftpgate/internal/command"
	ftperr "ftpgate/internal/errors"
	"ftpgate/internal/ftpconn"
	"ftpgate/util"
)

// Config holds every tuneable for one ftpgate process.
type Config struct {
	// ── HTTP façade ──────────────────────────────────────────────────
	Serve       bool
	ListenAddr  string
	ServersFile string
	UsersFile   string
	JWTSecret   string
	TokenTTL    time.Duration

	// ── One-shot command ─────────────────────────────────────────────
	Target         string // alias or host[:port]
	Command        string // LIST, GET_FILE, ...
	Path           string
	Argument       string
	Mode           string // "active" or "passive"
	User           string
	PromptPassword bool
	Output         string // GET_FILE destination, "" or "-" = stdout
	AddUser        string
	DryRun         bool

	// ── FTP sessions ─────────────────────────────────────────────────
	Timeout  time.Duration
	SpoolDir string

	// ── SSH tunnel ───────────────────────────────────────────────────
	TunnelSpec     string // raw user@host[:port] from -T
	TunnelEnabled  bool
	TunnelUser     string
	TunnelHost     string
	TunnelPort     int
	SSHKeyPath     string
	SSHPassword    bool // true → prompt interactively
	UseSSHAgent    bool
	StrictHostKey  bool
	KnownHostsPath string

	// ── Output ───────────────────────────────────────────────────────
	Verbose   int
	LogFormat string
}

// ── Target parser ────────────────────────────────────────────────────

// ParseTarget splits "host[:port]" and defaults the port to 21.
func ParseTarget(target string) (host string, port int, err error) {
	host, port, err = util.SplitHostPort(target, DefaultFTPPort)
	if err != nil {
		return "", 0, fmt.Errorf("invalid target %q: %w", target, err)
	}
	return host, port, nil
}

// ── Tunnel-spec parser ───────────────────────────────────────────────

// tunnelRe matches [user@]host[:port].
var tunnelRe = regexp.MustCompile(`^(?:([^@]+)@)?([^:]+)(?::(\d+))?$`)

// ParseTunnelSpec extracts user, host, and port from a string such as
// "admin@bastion.example.com:2222".  Port defaults to 22.
func ParseTunnelSpec(spec string) (user, host string, port int, err error) {
	m := tunnelRe.FindStringSubmatch(spec)
	if m == nil {
		return "", "", 0, fmt.Errorf("invalid tunnel spec %q – expected [user@]host[:port]", spec)
	}
	user = m[1]
	host = m[2]
	port = DefaultSSHPort
	if m[3] != "" {
		port, err = strconv.Atoi(m[3])
		if err != nil || port < 1 || port > 65535 {
			return "", "", 0, fmt.Errorf("invalid tunnel port %q", m[3])
		}
	}
	if host == "" {
		return "", "", 0, fmt.Errorf("tunnel host is required")
	}
	return user, host, port, nil
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.
// Failures are *errors.ConfigError so the CLI can print a hint.
func (c *Config) Validate() error {
	mode, err := ftpconn.ParseMode(c.Mode)
	if err != nil {
		return &ftperr.ConfigError{Field: "mode", Value: c.Mode,
			Message: "unknown mode", Hint: "use active or passive"}
	}

	switch strings.ToLower(c.LogFormat) {
	case "", "console", "json":
	default:
		return &ftperr.ConfigError{Field: "log-format", Value: c.LogFormat,
			Message: "unknown log format", Hint: "use console or json"}
	}

	switch {
	case c.AddUser != "":
		if c.UsersFile == "" {
			return &ftperr.ConfigError{Field: "users-file",
				Message: "--add-user needs a users file", Hint: "set --users-file or FTPGATE_USERS_FILE"}
		}
		return nil
	case c.Serve:
		if c.ListenAddr == "" {
			return &ftperr.ConfigError{Field: "listen", Message: "serve mode needs a listen address"}
		}
		if c.ServersFile == "" || c.UsersFile == "" {
			return &ftperr.ConfigError{Field: "servers-file",
				Message: "serve mode needs both registry files",
				Hint:    "set --servers-file and --users-file"}
		}
	default:
		if c.Target == "" {
			return &ftperr.ConfigError{Field: "target",
				Message: "an alias or host is required", Hint: "use --help for usage"}
		}
		if c.Command == "" {
			return &ftperr.ConfigError{Field: "command",
				Message: "a command is required", Hint: "one of LIST GET_FILE GET_TREE PUT RENAME MKDIR RMTREE"}
		}
		if _, err := command.ParseKind(c.Command); err != nil {
			return &ftperr.ConfigError{Field: "command", Value: c.Command,
				Message: "unknown command", Hint: "one of LIST GET_FILE GET_TREE PUT RENAME MKDIR RMTREE"}
		}
	}

	if c.TunnelEnabled {
		if c.TunnelHost == "" {
			return &ftperr.ConfigError{Field: "tunnel", Value: c.TunnelSpec, Message: "tunnel host is required"}
		}
		// The server cannot open an active data connection back through
		// the bastion.
		if mode == ftpconn.ModeActive {
			return &ftperr.ConfigError{Field: "mode", Value: mode.String(),
				Message: "active mode cannot run through an SSH tunnel", Hint: "add --mode passive"}
		}
	}

	if c.Timeout < 0 {
		return &ftperr.ConfigError{Field: "timeout", Value: c.Timeout.String(), Message: "must not be negative"}
	}
	return nil
}
