package tunnel

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	ftperr "ftpgate/internal/errors"
	"ftpgate/util"
)

// SSHConfig holds everything needed to dial an SSH bastion.
type SSHConfig struct {
	User          string
	Host          string
	Port          int
	KeyPath       string
	Password      string // non-interactive password, tried before PromptPass
	PromptPass    bool
	UseAgent      bool
	StrictHostKey bool
	KnownHosts    string
	ConnTimeout   time.Duration

	// KeepAlive is the interval between keepalive@openssh.com requests.
	// Zero disables them.
	KeepAlive time.Duration
}

func (c *SSHConfig) addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// SSHTunnel implements [Tunnel] by opening one SSH client connection and
// forwarding FTP control and data connections over direct-tcpip
// channels.
type SSHTunnel struct {
	config *SSHConfig
	logger *util.Logger

	mu     sync.RWMutex
	client *ssh.Client
	alive  bool
	stop   chan struct{}
	creds  *credentials
}

// NewSSHTunnel creates a tunnel that is ready to [Connect].
func NewSSHTunnel(cfg *SSHConfig, logger *util.Logger) *SSHTunnel {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.ConnTimeout == 0 {
		cfg.ConnTimeout = 30 * time.Second
	}
	return &SSHTunnel{config: cfg, logger: logger}
}

// Connect dials the bastion and completes the handshake.  Calling it on
// a live tunnel is a no-op.
func (t *SSHTunnel) Connect(ctx context.Context) error {
	if t.IsAlive() {
		return nil
	}

	t.mu.Lock()
	if t.creds == nil {
		creds, err := resolveCredentials(t.config)
		if err != nil {
			t.mu.Unlock()
			return ftperr.WrapSSH("auth", t.config.Host, t.config.Port, err)
		}
		t.creds = creds
	}
	authMethods := t.creds.methods()
	t.mu.Unlock()

	hkCallback, err := hostKeyCallback(t.config)
	if err != nil {
		return ftperr.WrapSSH("hostkey", t.config.Host, t.config.Port, err)
	}

	sshCfg := &ssh.ClientConfig{
		User:            t.config.User,
		Auth:            authMethods,
		HostKeyCallback: hkCallback,
		Timeout:         t.config.ConnTimeout,
	}

	addr := t.config.addr()
	t.logger.Debug("SSH: dialing %s as %s", addr, t.config.User)

	dialer := net.Dialer{Timeout: t.config.ConnTimeout}
	tcpConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return ftperr.Wrap("dial", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(tcpConn, addr, sshCfg)
	if err != nil {
		tcpConn.Close()
		return ftperr.WrapSSH("handshake", t.config.Host, t.config.Port, err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)

	stop := make(chan struct{})
	t.mu.Lock()
	t.client = client
	t.alive = true
	t.stop = stop
	t.mu.Unlock()

	go t.monitor(client)
	if t.config.KeepAlive > 0 {
		go t.keepAlive(client, stop)
	}
	return nil
}

// Dial forwards a TCP connection through the bastion.
func (t *SSHTunnel) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	t.mu.RLock()
	client, alive := t.client, t.alive
	t.mu.RUnlock()

	if !alive || client == nil {
		return nil, ftperr.ErrTunnelClosed
	}

	t.logger.Debug("tunnel: dialing %s %s", network, address)
	conn, err := client.DialContext(ctx, network, address)
	if err != nil {
		return nil, ftperr.Wrap("tunnel dial", address, err)
	}
	return conn, nil
}

// Close shuts down the SSH connection and forgets the credentials; a
// later Connect resolves them again.
func (t *SSHTunnel) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.alive = false
	if t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
	var err error
	if t.client != nil {
		err = t.client.Close()
		t.client = nil
	}
	if cerr := t.creds.Close(); err == nil {
		err = cerr
	}
	t.creds = nil
	return err
}

// IsAlive reports whether the tunnel is still connected.
func (t *SSHTunnel) IsAlive() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.alive
}

// monitor blocks until client closes and flips the alive flag, unless a
// newer client has replaced it in the meantime.
func (t *SSHTunnel) monitor(client *ssh.Client) {
	err := client.Wait()

	t.mu.Lock()
	if t.client == client {
		t.alive = false
	}
	t.mu.Unlock()

	if err != nil {
		t.logger.Debug("SSH tunnel closed: %v", err)
	} else {
		t.logger.Debug("SSH tunnel closed")
	}
}

func (t *SSHTunnel) keepAlive(client *ssh.Client, stop <-chan struct{}) {
	tick := time.NewTicker(t.config.KeepAlive)
	defer tick.Stop()

	for {
		select {
		case <-stop:
			return
		case <-tick.C:
			if _, _, err := client.SendRequest("keepalive@openssh.com", true, nil); err != nil {
				t.logger.Warn("SSH keepalive to %s failed: %v", t.config.addr(), err)
				client.Close()
				return
			}
		}
	}
}
