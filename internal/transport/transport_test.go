package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	gssh "github.com/gliderlabs/ssh"

	ftperr "ftpgate/internal/errors"
	"ftpgate/internal/retry"
	"ftpgate/tunnel"
	"ftpgate/util"
)

func startBanner(t *testing.T, banner string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Write([]byte(banner)) //nolint:errcheck
			conn.Close()
		}
	}()
	return ln.Addr().String()
}

func readAll(t *testing.T, conn net.Conn) string {
	t.Helper()
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck
	b, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(b)
}

// TestTCPDialer_Connect verifies that TCPDialer can reach a local
// TCP server and exchange data.
func TestTCPDialer_Connect(t *testing.T) {
	addr := startBanner(t, "220 hello from server\r\n")

	d := &TCPDialer{Timeout: 2 * time.Second}
	conn, err := d.Dial(context.Background(), "tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if got := readAll(t, conn); got != "220 hello from server\r\n" {
		t.Errorf("got %q", got)
	}
}

// TestTCPDialer_ContextCancel verifies that a cancelled context stops the dial.
func TestTCPDialer_ContextCancel(t *testing.T) {
	d := &TCPDialer{Timeout: 5 * time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := d.Dial(ctx, "tcp", "127.0.0.1:1"); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

func TestTCPDialer_Close(t *testing.T) {
	d := &TCPDialer{}
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestSSHDialer_LazyAndReconnect(t *testing.T) {
	t.Setenv("SSH_AUTH_SOCK", "")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	srv := &gssh.Server{
		PasswordHandler: func(ctx gssh.Context, pass string) bool { return pass == "pw" },
		LocalPortForwardingCallback: func(gssh.Context, string, uint32) bool {
			return true
		},
		ChannelHandlers: map[string]gssh.ChannelHandler{
			"direct-tcpip": gssh.DirectTCPIPHandler,
		},
	}
	go srv.Serve(ln) //nolint:errcheck
	defer srv.Close()

	logger := util.NewLogger(0)
	logger.SetOutput(io.Discard)

	d := NewSSHDialer(&tunnel.SSHConfig{
		User: "ftp", Host: "127.0.0.1", Port: ln.Addr().(*net.TCPAddr).Port,
		Password: "pw", ConnTimeout: 5 * time.Second,
	}, logger)
	defer d.Close()

	target := startBanner(t, "220 behind the bastion\r\n")
	ctx := context.Background()

	conn, err := d.Dial(ctx, "tcp", target)
	if err != nil {
		t.Fatalf("first dial: %v", err)
	}
	if got := readAll(t, conn); got != "220 behind the bastion\r\n" {
		t.Errorf("got %q", got)
	}

	// Closing drops the tunnel; the next Dial brings it back.
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	conn, err = d.Dial(ctx, "tcp", target)
	if err != nil {
		t.Fatalf("dial after reconnect: %v", err)
	}
	if got := readAll(t, conn); got != "220 behind the bastion\r\n" {
		t.Errorf("got %q", got)
	}
}

func TestSSHDialer_AuthFailureNotRetried(t *testing.T) {
	t.Setenv("SSH_AUTH_SOCK", "")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	var tries int32
	srv := &gssh.Server{
		PasswordHandler: func(ctx gssh.Context, pass string) bool {
			atomic.AddInt32(&tries, 1)
			return false
		},
	}
	go srv.Serve(ln) //nolint:errcheck
	defer srv.Close()

	logger := util.NewLogger(0)
	logger.SetOutput(io.Discard)
	d := NewSSHDialer(&tunnel.SSHConfig{
		User: "ftp", Host: "127.0.0.1", Port: ln.Addr().(*net.TCPAddr).Port,
		Password: "wrong", ConnTimeout: 5 * time.Second,
	}, logger)
	d.Backoff = &retry.Backoff{Initial: time.Millisecond, Attempts: 3}
	defer d.Close()

	_, err = d.Dial(context.Background(), "tcp", "127.0.0.1:21")
	if err == nil {
		t.Fatal("expected an authentication failure")
	}
	var se *ftperr.SSHError
	if !ftperr.As(err, &se) {
		t.Errorf("err = %T %v, want *SSHError", err, err)
	}
	if n := atomic.LoadInt32(&tries); n != 1 {
		t.Errorf("password tried %d times, want 1", n)
	}
}

func TestSSHDialer_BreakerOpens(t *testing.T) {
	t.Setenv("SSH_AUTH_SOCK", "")

	// Reserve a port and free it so nothing is listening there.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	logger := util.NewLogger(0)
	logger.SetOutput(io.Discard)
	d := NewSSHDialer(&tunnel.SSHConfig{
		User: "ftp", Host: "127.0.0.1", Port: port,
		Password: "pw", ConnTimeout: time.Second,
	}, logger)
	d.Backoff = &retry.Backoff{Initial: time.Millisecond, Attempts: 2}
	d.Breaker.Threshold = 2
	d.Breaker.Cooldown = time.Hour
	defer d.Close()

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := d.Dial(ctx, "tcp", "127.0.0.1:21")
		if err == nil || errors.Is(err, retry.ErrOpen) {
			t.Fatalf("dial %d: err = %v, want a dial failure", i, err)
		}
	}
	if d.Breaker.State() != retry.StateOpen {
		t.Fatalf("breaker state = %s", d.Breaker.State())
	}

	_, err = d.Dial(ctx, "tcp", "127.0.0.1:21")
	if !errors.Is(err, retry.ErrOpen) {
		t.Fatalf("err = %v, want circuit open", err)
	}
	if k := ftperr.KindOf(ftperr.Classify("list", err)); k != ftperr.KindConnection {
		t.Errorf("kind = %s, want connection", k)
	}
}
