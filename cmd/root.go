// Package cmd wires up the CLI flags and dispatches to the gateway:
// a one-shot FTP command, the HTTP façade, or user administration.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"ftpgate/config"
	"ftpgate/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X ftpgate/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// Execute parses args and runs the appropriate ftpgate mode.
func Execute(ctx context.Context, args []string) error {
	return execute(ctx, args, os.Stdout)
}

func execute(ctx context.Context, args []string, stdout io.Writer) error {
	cfg := config.Defaults()
	config.LoadFromEnv(cfg)

	fs := flag.NewFlagSet("ftpgate", flag.ContinueOnError)

	// ── command ──────────────────────────────────────────────────
	fs.StringVarP(&cfg.Mode, "mode", "m", cfg.Mode, "Data channel mode: active or passive")
	fs.StringVarP(&cfg.User, "user", "U", "", "FTP user (anonymous when empty)")
	fs.BoolVar(&cfg.PromptPassword, "password", false, "Prompt for the FTP password")
	fs.StringVarP(&cfg.Output, "output", "o", "", "Write GET_FILE to this file instead of stdout")
	fs.StringVar(&cfg.SpoolDir, "spool-dir", cfg.SpoolDir, "Directory for staged downloads")

	timeoutSec := int(cfg.Timeout / time.Second)
	fs.IntVarP(&timeoutSec, "timeout", "w", timeoutSec, "Connect timeout in seconds")

	// ── registries and HTTP façade ───────────────────────────────
	fs.BoolVar(&cfg.Serve, "serve", false, "Run the HTTP façade")
	fs.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "HTTP listen address (with --serve)")
	fs.StringVar(&cfg.ServersFile, "servers-file", cfg.ServersFile, "Server registry (alias;host;port)")
	fs.StringVar(&cfg.UsersFile, "users-file", cfg.UsersFile, "User registry (username;bcrypt-hash)")
	fs.StringVar(&cfg.AddUser, "add-user", "", "Add a façade user (password is prompted) and exit")

	var tokenTTLSec int
	fs.IntVar(&tokenTTLSec, "token-ttl", int(cfg.TokenTTL/time.Second), "Bearer token lifetime in seconds")

	// ── SSH tunnel ───────────────────────────────────────────────
	fs.StringVarP(&cfg.TunnelSpec, "tunnel", "T", cfg.TunnelSpec, "SSH tunnel via [user@]host[:port]")
	fs.StringVar(&cfg.SSHKeyPath, "ssh-key", cfg.SSHKeyPath, "SSH private key file")
	fs.BoolVar(&cfg.SSHPassword, "ssh-password", false, "Prompt for SSH password")
	fs.BoolVar(&cfg.UseSSHAgent, "ssh-agent", cfg.UseSSHAgent, "Use SSH agent")
	fs.BoolVar(&cfg.StrictHostKey, "strict-hostkey", cfg.StrictHostKey, "Verify SSH host keys")
	fs.StringVar(&cfg.KnownHostsPath, "known-hosts", cfg.KnownHostsPath, "Custom known_hosts path")

	// ── output ───────────────────────────────────────────────────
	var verbosity int
	var quiet bool
	fs.CountVarP(&verbosity, "verbose", "v", "Increase verbosity (repeatable)")
	fs.BoolVarP(&quiet, "quiet", "q", false, "Only print errors")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log encoding: console or json")

	var showVersion, showHelp bool
	fs.BoolVar(&cfg.DryRun, "dry-run", false, "Validate the configuration and exit")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(fs) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}

	if showHelp || len(args) == 0 {
		printUsage(fs)
		return nil
	}
	if showVersion {
		fmt.Fprintf(stdout, "ftpgate %s\n", version)
		return nil
	}

	cfg.Timeout = time.Duration(timeoutSec) * time.Second
	cfg.TokenTTL = time.Duration(tokenTTLSec) * time.Second
	switch {
	case quiet:
		cfg.Verbose = 0
	case fs.Changed("verbose"):
		cfg.Verbose = 1 + verbosity
	}

	// ── positional arguments ─────────────────────────────────────
	if err := parsePositional(cfg, fs.Args()); err != nil {
		return err
	}

	// ── tunnel spec ──────────────────────────────────────────────
	if cfg.TunnelSpec != "" {
		user, host, port, err := config.ParseTunnelSpec(cfg.TunnelSpec)
		if err != nil {
			return fmt.Errorf("tunnel: %w", err)
		}
		cfg.TunnelEnabled = true
		cfg.TunnelUser = user
		cfg.TunnelHost = host
		cfg.TunnelPort = port
	}

	// ── validate ─────────────────────────────────────────────────
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.DryRun {
		fmt.Fprintln(stdout, "configuration ok")
		return nil
	}

	logger := util.NewLogger(cfg.Verbose)
	logger.SetFormat(strings.ToLower(cfg.LogFormat))
	defer logger.Sync() //nolint:errcheck

	switch {
	case cfg.AddUser != "":
		return runAddUser(cfg, stdout)
	case cfg.Serve:
		return runServe(ctx, cfg, logger)
	default:
		return runCommand(ctx, cfg, logger, stdout)
	}
}

// ── helpers ──────────────────────────────────────────────────────────

func parsePositional(cfg *config.Config, remaining []string) error {
	if cfg.Serve || cfg.AddUser != "" {
		if len(remaining) > 0 {
			return fmt.Errorf("unexpected arguments: %s", strings.Join(remaining, " "))
		}
		return nil
	}

	// One-shot: target COMMAND [path] [argument]
	if len(remaining) > 4 {
		return fmt.Errorf("too many arguments (use --help for usage)")
	}
	fields := []*string{&cfg.Target, &cfg.Command, &cfg.Path, &cfg.Argument}
	for i, v := range remaining {
		*fields[i] = v
	}
	cfg.Command = strings.ToUpper(cfg.Command)
	return nil
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, `ftpgate – FTP gateway v%s

Runs one FTP command per invocation, or serves them over HTTP.

Usage:
  ftpgate [options] <alias|host[:port]> <COMMAND> [path] [argument]
  ftpgate --serve [--listen addr] [options]
  ftpgate --add-user NAME [--users-file file]

Commands:
  LIST      <dir>                  List a directory
  GET_FILE  <file>                 Download a file (stdout or -o)
  GET_TREE  <dir> <local-dir>      Mirror a directory locally
  PUT       <dir> <local-path>     Upload a file or directory into dir
  RENAME    <path> <new-name>      Rename within the same directory
  MKDIR     <dir>                  Create a directory
  RMTREE    <path>                 Delete a file or directory tree

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
Examples:
  ftpgate ftp.example.com LIST /pub
  ftpgate -m passive -U alice --password mirror GET_FILE /a.iso -o a.iso
  ftpgate -T ops@bastion -m passive 10.0.0.5 GET_TREE /site ./backup
  ftpgate --serve --listen :8080 --servers-file servers.txt
`)
}
