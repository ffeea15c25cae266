package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"ftpgate/config"
	"ftpgate/internal/command"
	"ftpgate/internal/core"
	"ftpgate/internal/credential"
	ftperr "ftpgate/internal/errors"
	"ftpgate/internal/ftpconn"
	"ftpgate/internal/registry"
	"ftpgate/internal/session"
	"ftpgate/util"
)

// runCommand executes one FTP command and prints its result.
func runCommand(ctx context.Context, cfg *config.Config, logger *util.Logger, stdout io.Writer) error {
	kind, err := command.ParseKind(cfg.Command)
	if err != nil {
		return err
	}
	cmd, err := command.New(kind, cfg.Path, cfg.Argument)
	if err != nil {
		return err
	}
	mode, err := ftpconn.ParseMode(cfg.Mode)
	if err != nil {
		return err
	}
	ep, err := resolveTarget(cfg)
	if err != nil {
		return err
	}
	token, err := ftpToken(cfg)
	if err != nil {
		return err
	}

	engine, dialer := core.Build(cfg, logger, nil)
	defer dialer.Close()

	res, err := engine.Execute(ctx, core.Request{Endpoint: ep, Command: cmd, Mode: mode, Token: token})
	if err != nil {
		return err
	}
	return printResult(stdout, cfg, kind, res)
}

// resolveTarget looks the target up in the servers file and falls back
// to treating it as host[:port].
func resolveTarget(cfg *config.Config) (session.Endpoint, error) {
	if cfg.ServersFile != "" {
		srv, err := registry.NewServers(cfg.ServersFile).Get(cfg.Target)
		switch {
		case err == nil:
			return session.Endpoint{Host: srv.Host, Port: srv.Port}, nil
		case !ftperr.IsKind(err, ftperr.KindNotFound):
			return session.Endpoint{}, err
		}
	}
	host, port, err := config.ParseTarget(cfg.Target)
	if err != nil {
		return session.Endpoint{}, err
	}
	return session.Endpoint{Host: host, Port: port}, nil
}

// ftpToken builds the Basic credential from --user and --password.
func ftpToken(cfg *config.Config) (string, error) {
	if cfg.User == "" {
		return "", nil
	}
	var pass string
	if cfg.PromptPassword {
		p, err := readPassword(fmt.Sprintf("FTP password for %s: ", cfg.User))
		if err != nil {
			return "", fmt.Errorf("password prompt: %w", err)
		}
		pass = p
	}
	return credential.Encode(cfg.User, pass), nil
}

func printResult(stdout io.Writer, cfg *config.Config, kind command.Kind, res core.Result) error {
	switch kind {
	case command.KindList:
		return printEntries(stdout, res.Entries)
	case command.KindGetFile:
		return writeDownload(stdout, cfg.Output, res)
	case command.KindGetTree:
		fmt.Fprintf(stdout, "mirrored into %s\n", res.Path)
	case command.KindPut, command.KindRename, command.KindMkdir:
		fmt.Fprintln(stdout, res.Path)
	case command.KindRmTree:
		fmt.Fprintln(stdout, "deleted")
	}
	return nil
}

func printEntries(w io.Writer, entries []ftpconn.Entry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tSIZE\tMODIFIED\tNAME")
	for _, e := range entries {
		mod := "-"
		if !e.Modified.IsZero() {
			mod = e.Modified.UTC().Format("2006-01-02 15:04")
		}
		name := e.Name
		if e.Target != "" {
			name += " -> " + e.Target
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", e.Kind, e.Size, mod, name)
	}
	return tw.Flush()
}

func writeDownload(stdout io.Writer, output string, res core.Result) (err error) {
	defer res.Stream.Close()
	if output == "" || output == "-" {
		_, err = util.Copy(stdout, res.Stream)
		return err
	}

	f, err := os.Create(output)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err = util.Copy(f, res.Stream); err != nil {
		return errors.Join(err, os.Remove(output))
	}
	return nil
}
