package tunnel

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
	"golang.org/x/term"
)

// ReadSecret asks the operator for a password or key passphrase on the
// controlling terminal.
var ReadSecret = func(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	defer fmt.Fprintln(os.Stderr)
	return term.ReadPassword(int(os.Stdin.Fd()))
}

// defaultKeys are probed under ~/.ssh when nothing is configured.
var defaultKeys = []string{"id_ed25519", "id_ecdsa", "id_rsa"}

// credentials is the bastion login material.  It is resolved once per
// tunnel so that reconnecting after a drop never prompts again.
type credentials struct {
	signers  []ssh.Signer
	agent    net.Conn
	password string
}

// resolveCredentials loads everything cfg asks for.  Configured sources
// are mandatory and any failure is returned; with nothing configured the
// agent and unencrypted default keys are used when present.
func resolveCredentials(cfg *SSHConfig) (*credentials, error) {
	c := &credentials{password: cfg.Password}

	if cfg.KeyPath != "" {
		s, err := loadSigner(cfg.KeyPath, true)
		if err != nil {
			return nil, fmt.Errorf("key %s: %w", cfg.KeyPath, err)
		}
		c.signers = append(c.signers, s)
	}
	if cfg.UseAgent {
		conn, err := dialAgent()
		if err != nil {
			return nil, fmt.Errorf("ssh-agent: %w", err)
		}
		c.agent = conn
	}
	if cfg.PromptPass && c.password == "" {
		pass, err := ReadSecret(fmt.Sprintf("Password for %s@%s: ", cfg.User, cfg.Host))
		if err != nil {
			c.Close() //nolint:errcheck
			return nil, fmt.Errorf("reading password: %w", err)
		}
		c.password = string(pass)
	}

	if c.empty() && cfg.KeyPath == "" && !cfg.UseAgent && !cfg.PromptPass {
		c.discover()
	}
	if c.empty() {
		return nil, errors.New("no SSH credentials available; use --ssh-key, --ssh-password or --ssh-agent")
	}
	return c, nil
}

// discover picks up the agent and default key files.  Keys that need a
// passphrase are skipped.
func (c *credentials) discover() {
	if conn, err := dialAgent(); err == nil {
		c.agent = conn
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return
	}
	for _, name := range defaultKeys {
		if s, err := loadSigner(filepath.Join(home, ".ssh", name), false); err == nil {
			c.signers = append(c.signers, s)
		}
	}
}

func (c *credentials) empty() bool {
	return len(c.signers) == 0 && c.agent == nil && c.password == ""
}

// methods returns the client auth methods in preference order: keys,
// agent, password.  A password also answers keyboard-interactive
// challenges since many bastions only offer that.
func (c *credentials) methods() []ssh.AuthMethod {
	var out []ssh.AuthMethod
	if len(c.signers) > 0 {
		out = append(out, ssh.PublicKeys(c.signers...))
	}
	if c.agent != nil {
		out = append(out, ssh.PublicKeysCallback(agent.NewClient(c.agent).Signers))
	}
	if c.password != "" {
		out = append(out, ssh.Password(c.password), ssh.KeyboardInteractive(repeatAnswer(c.password)))
	}
	return out
}

// Close releases the agent socket.
func (c *credentials) Close() error {
	if c == nil || c.agent == nil {
		return nil
	}
	err := c.agent.Close()
	c.agent = nil
	return err
}

func loadSigner(path string, prompt bool) (ssh.Signer, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	signer, err := ssh.ParsePrivateKey(pem)
	var missing *ssh.PassphraseMissingError
	if !errors.As(err, &missing) {
		return signer, err
	}
	if !prompt {
		return nil, err
	}
	pass, err := ReadSecret(fmt.Sprintf("Passphrase for %s: ", path))
	if err != nil {
		return nil, fmt.Errorf("reading passphrase: %w", err)
	}
	return ssh.ParsePrivateKeyWithPassphrase(pem, pass)
}

func dialAgent() (net.Conn, error) {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil, errors.New("SSH_AUTH_SOCK is not set")
	}
	return net.Dial("unix", sock)
}

func repeatAnswer(answer string) ssh.KeyboardInteractiveChallenge {
	return func(_, _ string, questions []string, _ []bool) ([]string, error) {
		out := make([]string, len(questions))
		for i := range out {
			out[i] = answer
		}
		return out, nil
	}
}

// ── Host keys ────────────────────────────────────────────────────────

// hostKeyCallback verifies the bastion against known_hosts when strict
// checking is on and accepts any key otherwise.
func hostKeyCallback(cfg *SSHConfig) (ssh.HostKeyCallback, error) {
	if !cfg.StrictHostKey {
		//nolint:gosec // host key checking disabled by --strict-hostkey=false
		return ssh.InsecureIgnoreHostKey(), nil
	}
	path := cfg.KnownHosts
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}
	cb, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("known_hosts %s: %w", path, err)
	}
	return cb, nil
}
