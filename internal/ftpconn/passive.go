package ftpconn

import (
	"context"
	"errors"
	"io"
	"net"
	"net/textproto"
	"sync/atomic"
	"time"

	"github.com/jlaffaye/ftp"

	ftperr "ftpgate/internal/errors"
)

// passiveConn wraps a jlaffaye/ftp ServerConn.
type passiveConn struct {
	c *ftp.ServerConn

	// dials counts connections opened through the dial hook.  The library
	// dials the data connection only after PASV/EPSV succeeded, so a
	// transfer that fails without a new dial failed during negotiation.
	dials *atomic.Int64
}

func dialPassive(ctx context.Context, addr string, timeout time.Duration, dial DialFunc) (Conn, error) {
	if dial == nil {
		d := &net.Dialer{Timeout: timeout}
		dial = d.DialContext
	}
	dials := new(atomic.Int64)
	opts := []ftp.DialOption{
		ftp.DialWithContext(ctx),
		ftp.DialWithDialFunc(func(network, address string) (net.Conn, error) {
			dials.Add(1)
			return dial(ctx, network, address)
		}),
	}
	if timeout > 0 {
		opts = append(opts, ftp.DialWithTimeout(timeout))
	}

	c, err := ftp.Dial(addr, opts...)
	if err != nil {
		return nil, fromTextproto("", err)
	}
	return &passiveConn{c: c, dials: dials}, nil
}

// transfer runs fn, which negotiates a data channel and then issues
// cmd.  A negative reply that arrives before any data connection was
// dialed belongs to PASV/EPSV.
func (p *passiveConn) transfer(cmd string, fn func() error) error {
	before := p.dials.Load()
	err := fn()
	if err == nil {
		return nil
	}
	if p.dials.Load() == before {
		cmd = "PASV"
	}
	return fromTextproto(cmd, err)
}

func (p *passiveConn) Mode() Mode { return ModePassive }

func (p *passiveConn) Login(user, password string) error {
	return fromTextproto("PASS", p.c.Login(user, password))
}

func (p *passiveConn) ChangeDir(path string) error {
	return fromTextproto("CWD", p.c.ChangeDir(path))
}

func (p *passiveConn) List(path string) ([]Entry, error) {
	var raw []*ftp.Entry
	err := p.transfer("LIST", func() (err error) {
		raw, err = p.c.List(path)
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(raw))
	for _, e := range raw {
		out = append(out, Entry{
			Name:     e.Name,
			Size:     int64(e.Size),
			Kind:     kindFromJlaffaye(e.Type),
			Modified: e.Time,
			Target:   e.Target,
		})
	}
	return out, nil
}

func (p *passiveConn) Type(t TransferType) error {
	return fromTextproto("TYPE", p.c.Type(ftp.TransferType(t)))
}

func (p *passiveConn) Retr(path string) (io.ReadCloser, error) {
	var r *ftp.Response
	err := p.transfer("RETR", func() (err error) {
		r, err = p.c.Retr(path)
		return err
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (p *passiveConn) Stor(path string, r io.Reader) error {
	return p.transfer("STOR", func() error { return p.c.Stor(path, r) })
}

func (p *passiveConn) MakeDir(path string) error {
	return fromTextproto("MKD", p.c.MakeDir(path))
}

func (p *passiveConn) RemoveDir(path string) error {
	return fromTextproto("RMD", p.c.RemoveDir(path))
}

func (p *passiveConn) Delete(path string) error {
	return fromTextproto("DELE", p.c.Delete(path))
}

func (p *passiveConn) Rename(from, to string) error {
	return fromTextproto("RNTO", p.c.Rename(from, to))
}

func (p *passiveConn) Quit() error {
	return p.c.Quit()
}

func kindFromJlaffaye(t ftp.EntryType) EntryKind {
	switch t {
	case ftp.EntryTypeFolder:
		return EntryDir
	case ftp.EntryTypeLink:
		return EntryLink
	default:
		return EntryFile
	}
}

// fromTextproto turns a *textproto.Error into a *ReplyError and leaves
// everything else untouched.
func fromTextproto(cmd string, err error) error {
	if err == nil {
		return nil
	}
	var te *textproto.Error
	if errors.As(err, &te) {
		return &ftperr.ReplyError{Command: cmd, Code: te.Code, Message: te.Msg}
	}
	return err
}
