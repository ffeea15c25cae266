package ftpconn

import (
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	gftp "github.com/gonzalop/ftp"

	ftperr "ftpgate/internal/errors"
)

// activeConn wraps a gonzalop/ftp Client configured for PORT/EPRT.
//
// The library forces TYPE I inside Store and Retrieve, so Type is sent
// but every active transfer is effectively binary.
type activeConn struct {
	c *gftp.Client
}

func dialActive(addr string, timeout time.Duration) (Conn, error) {
	opts := []gftp.Option{gftp.WithActiveMode()}
	if timeout > 0 {
		opts = append(opts, gftp.WithTimeout(timeout))
	}
	c, err := gftp.Dial(addr, opts...)
	if err != nil {
		return nil, fromProtocol(err)
	}
	return &activeConn{c: c}, nil
}

func (a *activeConn) Mode() Mode { return ModeActive }

func (a *activeConn) Login(user, password string) error {
	return fromProtocol(a.c.Login(user, password))
}

func (a *activeConn) ChangeDir(path string) error {
	return fromProtocol(a.c.ChangeDir(path))
}

func (a *activeConn) List(path string) ([]Entry, error) {
	raw, err := a.c.List(path)
	if err != nil {
		return nil, fromProtocol(err)
	}
	out := make([]Entry, 0, len(raw))
	for _, e := range raw {
		out = append(out, Entry{
			Name:   e.Name,
			Size:   e.Size,
			Kind:   kindFromGonzalop(e.Type),
			Target: e.Target,
		})
	}
	return out, nil
}

func (a *activeConn) Type(t TransferType) error {
	return fromProtocol(a.c.Type(string(t)))
}

// Retr runs Retrieve on its own goroutine feeding a pipe.  It returns
// once the first byte has been written or Retrieve has finished, so a
// refused RETR is reported here like the passive driver does.
func (a *activeConn) Retr(path string) (io.ReadCloser, error) {
	pr, pw := io.Pipe()
	ready := make(chan error, 1)
	var once sync.Once
	signal := func(err error) { once.Do(func() { ready <- err }) }

	s := &retrStream{pr: pr, done: make(chan error, 1)}
	go func() {
		err := a.c.Retrieve(path, &firstWrite{w: pw, signal: signal})
		signal(err)
		pw.CloseWithError(err)
		s.done <- err
	}()

	if err := <-ready; err != nil {
		<-s.done
		return nil, fromProtocol(err)
	}
	return s, nil
}

func (a *activeConn) Stor(path string, r io.Reader) error {
	return fromProtocol(a.c.Store(path, r))
}

func (a *activeConn) MakeDir(path string) error {
	return fromProtocol(a.c.MakeDir(path))
}

func (a *activeConn) RemoveDir(path string) error {
	return fromProtocol(a.c.RemoveDir(path))
}

func (a *activeConn) Delete(path string) error {
	return fromProtocol(a.c.Delete(path))
}

func (a *activeConn) Rename(from, to string) error {
	return fromProtocol(a.c.Rename(from, to))
}

func (a *activeConn) Quit() error {
	return a.c.Quit()
}

// ── retrieval stream ─────────────────────────────────────────────────

// firstWrite reports the first Write before passing it on.
type firstWrite struct {
	w      io.Writer
	signal func(error)
}

func (f *firstWrite) Write(p []byte) (int, error) {
	f.signal(nil)
	return f.w.Write(p)
}

// retrStream is the read side of an in-flight Retrieve.  Close waits for
// the transfer goroutine so the control connection is idle afterwards.
type retrStream struct {
	pr   *io.PipeReader
	done chan error
	once sync.Once
	err  error
}

func (s *retrStream) Read(p []byte) (int, error) { return s.pr.Read(p) }

func (s *retrStream) Close() error {
	s.once.Do(func() {
		s.pr.Close()
		err := <-s.done
		// Closing before EOF aborts the copy; that is the caller's choice.
		if err != nil && !errors.Is(err, io.ErrClosedPipe) {
			s.err = fromProtocol(err)
		}
	})
	return s.err
}

func kindFromGonzalop(t string) EntryKind {
	switch t {
	case "dir":
		return EntryDir
	case "link":
		return EntryLink
	default:
		return EntryFile
	}
}

// fromProtocol turns a *gftp.ProtocolError into a *ReplyError.
func fromProtocol(err error) error {
	if err == nil {
		return nil
	}
	var pe *gftp.ProtocolError
	if errors.As(err, &pe) {
		cmd, _, _ := strings.Cut(pe.Command, " ")
		return &ftperr.ReplyError{Command: strings.ToUpper(cmd), Code: pe.Code, Message: pe.Response}
	}
	return err
}
