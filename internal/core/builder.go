package core

import (
	"context"
	"time"

	"ftpgate/config"
	"ftpgate/internal/ftpconn"
	"ftpgate/internal/metrics"
	"ftpgate/internal/transport"
	"ftpgate/tunnel"
	"ftpgate/util"
)

// Build constructs the Engine described by cfg together with the
// transport it dials through.  The caller closes the transport when the
// process is done with the engine.
func Build(cfg *config.Config, logger *util.Logger, m *metrics.Collector) (*Engine, transport.Dialer) {
	dialer := buildDialer(cfg, logger)
	e := New(buildOpener(cfg, dialer), logger,
		WithMetrics(m),
		WithSpoolDir(cfg.SpoolDir),
	)
	return e, dialer
}

// ── shared helpers ───────────────────────────────────────────────────

// buildDialer creates the right transport.Dialer for the given config.
func buildDialer(cfg *config.Config, logger *util.Logger) transport.Dialer {
	if cfg.TunnelEnabled {
		return transport.NewSSHDialer(&tunnel.SSHConfig{
			User:          cfg.TunnelUser,
			Host:          cfg.TunnelHost,
			Port:          cfg.TunnelPort,
			KeyPath:       cfg.SSHKeyPath,
			PromptPass:    cfg.SSHPassword,
			UseAgent:      cfg.UseSSHAgent,
			StrictHostKey: cfg.StrictHostKey,
			KnownHosts:    cfg.KnownHostsPath,
			ConnTimeout:   cfg.Timeout,
			KeepAlive:     config.DefaultKeepAliveInterval * time.Second,
		}, logger)
	}
	return &transport.TCPDialer{Timeout: cfg.Timeout, KeepAlive: 30 * time.Second}
}

// buildOpener wires the transport into FTP connections.  Tunneled
// sessions are passive-only; direct sessions keep the active driver,
// which dials on its own, and route passive ones through the dialer.
func buildOpener(cfg *config.Config, d transport.Dialer) *directOpener {
	o := &directOpener{
		active:  &ftpconn.Dialer{Timeout: cfg.Timeout},
		passive: &ftpconn.Dialer{Timeout: cfg.Timeout, Dial: d.Dial},
	}
	if cfg.TunnelEnabled {
		o.active = o.passive
	}
	return o
}

type directOpener struct {
	active  *ftpconn.Dialer
	passive *ftpconn.Dialer
}

func (o *directOpener) Open(ctx context.Context, addr string, mode ftpconn.Mode) (ftpconn.Conn, error) {
	if mode == ftpconn.ModeActive {
		return o.active.Open(ctx, addr, mode)
	}
	return o.passive.Open(ctx, addr, mode)
}
