// Package ftptest runs an in-process FTP server rooted in a temporary
// directory, for tests that need a real protocol peer.
package ftptest

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/gonzalop/ftp/server"
)

// Server is a running test server.
type Server struct {
	Addr string
	Root string
}

type options struct {
	anonWrite bool
	user      string
	password  string
}

// Option configures NewServer.
type Option func(*options)

// WithAnonWrite lets anonymous sessions write.
func WithAnonWrite() Option {
	return func(o *options) { o.anonWrite = true }
}

// WithUser accepts one named login with full write access, in addition
// to anonymous.
func WithUser(user, password string) Option {
	return func(o *options) {
		o.user = user
		o.password = password
	}
}

// NewServer starts a server and stops it when the test ends.  Without
// options it is anonymous-only and read-only.
func NewServer(t testing.TB, opts ...Option) *Server {
	t.Helper()

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	root := t.TempDir()
	driverOpts := []server.FSDriverOption{server.WithAnonWrite(o.anonWrite)}
	if o.user != "" {
		driverOpts = append(driverOpts, server.WithAuthenticator(func(user, pass, _ string, _ net.IP) (string, bool, error) {
			switch {
			case user == "anonymous" || user == "ftp":
				return root, !o.anonWrite, nil
			case user == o.user && pass == o.password:
				return root, false, nil
			}
			return "", false, os.ErrPermission
		}))
	}

	driver, err := server.NewFSDriver(root, driverOpts...)
	if err != nil {
		t.Fatalf("ftptest: driver: %v", err)
	}
	s, err := server.NewServer("127.0.0.1:0", server.WithDriver(driver))
	if err != nil {
		t.Fatalf("ftptest: server: %v", err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ftptest: listen: %v", err)
	}

	go func() {
		if err := s.Serve(ln); err != nil && err != server.ErrServerClosed {
			t.Logf("ftptest: serve: %v", err)
		}
	}()
	t.Cleanup(func() { s.Shutdown(context.Background()) }) //nolint:errcheck

	return &Server{Addr: ln.Addr().String(), Root: root}
}

// Host returns the listening host.
func (s *Server) Host() string {
	h, _, _ := net.SplitHostPort(s.Addr)
	return h
}

// Port returns the listening port.
func (s *Server) Port() int {
	_, p, _ := net.SplitHostPort(s.Addr)
	n, _ := strconv.Atoi(p)
	return n
}

// Path maps a server path onto the backing directory.
func (s *Server) Path(rel string) string {
	return filepath.Join(s.Root, filepath.FromSlash(rel))
}

// WriteFile creates rel (and its parents) under the server root.
func (s *Server) WriteFile(t testing.TB, rel, content string) {
	t.Helper()
	p := s.Path(rel)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// Mkdir creates rel (and its parents) under the server root.
func (s *Server) Mkdir(t testing.TB, rel string) {
	t.Helper()
	if err := os.MkdirAll(s.Path(rel), 0o755); err != nil {
		t.Fatal(err)
	}
}
