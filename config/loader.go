package config

// loader.go - configuration loading from environment variables.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables  (this file)
//   3. Defaults   (defaults.go)

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the FTPGATE_ prefix.  Boolean values
// accept "1", "true", "yes" (case-insensitive).

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty
// env vars override the existing value.  This should be called BEFORE
// CLI flag parsing so that flags take precedence.
func LoadFromEnv(cfg *Config) {
	// HTTP façade
	if v := os.Getenv("FTPGATE_LISTEN"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("FTPGATE_SERVERS_FILE"); v != "" {
		cfg.ServersFile = v
	}
	if v := os.Getenv("FTPGATE_USERS_FILE"); v != "" {
		cfg.UsersFile = v
	}
	if v := os.Getenv("FTPGATE_JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := envInt("FTPGATE_TOKEN_TTL"); v > 0 {
		cfg.TokenTTL = secondsDuration(v)
	}

	// FTP sessions
	if v := envInt("FTPGATE_TIMEOUT"); v > 0 {
		cfg.Timeout = secondsDuration(v)
	}
	if v := os.Getenv("FTPGATE_MODE"); v != "" {
		cfg.Mode = v
	}
	if v := os.Getenv("FTPGATE_SPOOL_DIR"); v != "" {
		cfg.SpoolDir = v
	}

	// SSH tunnel
	if v := os.Getenv("FTPGATE_TUNNEL"); v != "" {
		cfg.TunnelSpec = v
	}
	if v := os.Getenv("FTPGATE_SSH_KEY"); v != "" {
		cfg.SSHKeyPath = v
	}
	if envBool("FTPGATE_SSH_AGENT") {
		cfg.UseSSHAgent = true
	}
	if envBool("FTPGATE_STRICT_HOSTKEY") {
		cfg.StrictHostKey = true
	}
	if v := os.Getenv("FTPGATE_KNOWN_HOSTS"); v != "" {
		cfg.KnownHostsPath = v
	}

	// Output
	if v := envInt("FTPGATE_VERBOSE"); v > 0 {
		cfg.Verbose = v
	}
	if v := os.Getenv("FTPGATE_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
}

// ── helpers ──────────────────────────────────────────────────────────

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes"
}

func secondsDuration(sec int) time.Duration {
	return time.Duration(sec) * time.Second
}
