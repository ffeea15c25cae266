package transport

import (
	"context"
	"net"
	"sync"

	ftperr "ftpgate/internal/errors"
	"ftpgate/internal/retry"
	"ftpgate/tunnel"
	"ftpgate/util"
)

// SSHDialer routes connections through an SSH bastion.  The tunnel is
// connected lazily on the first Dial, shared by every session of the
// process, and reconnected on the next Dial after it drops.
//
// Reconnects retry transient dial failures with Backoff.  Breaker stops
// hammering a bastion that keeps refusing and fails those Dials with a
// connection error straight away.
type SSHDialer struct {
	Backoff *retry.Backoff
	Breaker *retry.Breaker

	tunnel tunnel.Tunnel
	config *tunnel.SSHConfig
	logger *util.Logger
	mu     sync.Mutex
}

// NewSSHDialer creates a dialer that forwards connections through an
// SSH tunnel.  The tunnel is not connected until the first Dial.
func NewSSHDialer(cfg *tunnel.SSHConfig, logger *util.Logger) *SSHDialer {
	d := &SSHDialer{
		Backoff: retry.DefaultBackoff(),
		tunnel:  tunnel.NewSSHTunnel(cfg, logger),
		config:  cfg,
		logger:  logger,
	}
	d.Breaker = &retry.Breaker{
		OnChange: func(from, to retry.State) {
			d.logger.Warn("bastion %s:%d circuit %s -> %s", cfg.Host, cfg.Port, from, to)
		},
	}
	return d
}

// connect establishes the SSH tunnel if it is not up.
func (d *SSHDialer) connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.tunnel.IsAlive() {
		return nil
	}

	addr := util.FormatAddr(d.config.Host, d.config.Port)
	if err := d.Breaker.Allow(); err != nil {
		return ftperr.Wrap("tunnel", addr, err)
	}

	err := d.Backoff.Do(ctx, func(attempt int) error {
		d.logger.Verbose("establishing SSH tunnel to %s@%s (attempt %d)", d.config.User, addr, attempt)
		err := d.tunnel.Connect(ctx)
		var se *ftperr.SSHError
		if ftperr.As(err, &se) {
			// Bad credentials or host key will not fix themselves.
			return retry.Permanent(err)
		}
		return err
	})
	d.Breaker.Record(err)
	if err != nil {
		return err
	}
	d.logger.Verbose("SSH tunnel established")
	return nil
}

// Dial connects to address through the SSH tunnel.
func (d *SSHDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	if err := d.connect(ctx); err != nil {
		return nil, err
	}
	return d.tunnel.Dial(ctx, network, address)
}

// Close tears down the underlying SSH tunnel.
func (d *SSHDialer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tunnel.Close()
}
