// Package session represents one FTP conversation, scoped to exactly one
// command: connect, select the data-channel mode, log in, run the
// command, tear down.
//
// A Session owns its ftpconn.Conn exclusively.  Nothing is pooled or
// reused across commands.
package session

import (
	"context"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"ftpgate/internal/credential"
	ftperr "ftpgate/internal/errors"
	"ftpgate/internal/ftpconn"
	"ftpgate/util"
)

// Endpoint is a resolved FTP server address.
type Endpoint struct {
	Host string
	Port int
}

// Addr returns "host:port".
func (e Endpoint) Addr() string { return util.FormatAddr(e.Host, e.Port) }

func (e Endpoint) String() string { return e.Addr() }

// Opener opens control connections.  *ftpconn.Dialer satisfies it.
type Opener interface {
	Open(ctx context.Context, addr string, mode ftpconn.Mode) (ftpconn.Conn, error)
}

// Session is the runtime state of one command's FTP conversation.
type Session struct {
	ID            string
	Endpoint      Endpoint
	Mode          ftpconn.Mode
	Conn          ftpconn.Conn
	Authenticated bool
	Logger        *util.Logger
}

// Connect opens the control connection to ep.  The requested mode picks
// the driver; SelectMode confirms it afterwards.
func Connect(ctx context.Context, opener Opener, ep Endpoint, mode ftpconn.Mode, logger *util.Logger) (*Session, error) {
	id := uuid.NewString()
	log := logger.With("session", id, "endpoint", ep.Addr())

	log.Verbose("connecting (%s)", mode)
	conn, err := opener.Open(ctx, ep.Addr(), mode)
	if err != nil {
		return nil, ftperr.Classify(ftperr.OpConnect, err)
	}
	return &Session{ID: id, Endpoint: ep, Mode: mode, Conn: conn, Logger: log}, nil
}

// SelectMode fixes the data-channel negotiation style.  A connection
// that cannot honour the mode (active through an SSH tunnel) fails with
// a ModeError here; a server refusing PASV/EPSV/PORT/EPRT surfaces as a
// ModeError on the first data transfer.
func (s *Session) SelectMode(mode ftpconn.Mode) error {
	if got := s.Conn.Mode(); got != mode {
		return ftperr.Newf(ftperr.KindMode, ftperr.OpMode,
			"%s mode is not available on this connection (%s only)", mode, got)
	}
	s.Mode = mode
	s.Logger.Debug("data channel mode %s", mode)
	return nil
}

// Authenticate logs in with cred.  The server's rejection text is kept
// in the AuthError message.
func (s *Session) Authenticate(cred credential.Credential) error {
	s.Logger.Verbose("login as %s", cred.User)
	if err := s.Conn.Login(cred.User, cred.Password); err != nil {
		return ftperr.Classify(ftperr.OpLogin, err)
	}
	s.Authenticated = true
	return nil
}

// Teardown logs out and closes the control connection.  It is safe to
// call more than once; only the first call reaches the server.
func (s *Session) Teardown() error {
	if s == nil || s.Conn == nil {
		return nil
	}
	conn := s.Conn
	s.Conn = nil

	var result *multierror.Error
	if err := conn.Quit(); err != nil {
		result = multierror.Append(result, err)
	}
	s.Authenticated = false
	s.Logger.Verbose("disconnected")
	return result.ErrorOrNil()
}
