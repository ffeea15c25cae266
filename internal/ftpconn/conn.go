// Package ftpconn adapts FTP client libraries to the small connection
// surface the engine needs.
//
// Two drivers exist: passive sessions use github.com/jlaffaye/ftp (which
// honours TYPE A/I per transfer and can route data connections through a
// custom dial function), active sessions use github.com/gonzalop/ftp
// (PORT/EPRT).  Negative replies from either library surface as
// *errors.ReplyError so classification never depends on the driver.
package ftpconn

import (
	"context"
	"io"
	"net"
	"strings"
	"time"

	ftperr "ftpgate/internal/errors"
)

// Mode is the data-connection negotiation style.
type Mode int

const (
	ModeActive Mode = iota
	ModePassive
)

func (m Mode) String() string {
	if m == ModePassive {
		return "passive"
	}
	return "active"
}

// ParseMode maps a mode hint onto a Mode.  Empty means active.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "active":
		return ModeActive, nil
	case "passive":
		return ModePassive, nil
	default:
		return ModeActive, ftperr.Validation("unknown transfer mode %q (want active or passive)", s)
	}
}

// TransferType is the FTP representation type sent with TYPE.
type TransferType string

const (
	TypeBinary TransferType = "I"
	TypeText   TransferType = "A"
)

// EntryKind classifies a listing entry.
type EntryKind int

const (
	EntryFile EntryKind = iota
	EntryDir
	EntryLink
)

func (k EntryKind) String() string {
	switch k {
	case EntryDir:
		return "dir"
	case EntryLink:
		return "link"
	default:
		return "file"
	}
}

// Entry is one line of a directory listing.  Modified is zero when the
// driver cannot report it.
type Entry struct {
	Name     string
	Size     int64
	Kind     EntryKind
	Modified time.Time
	Target   string // symlink target, if any
}

// IsSelfOrParent reports the "." and ".." pseudo entries.
func IsSelfOrParent(name string) bool {
	return name == "." || name == ".."
}

// Conn is one FTP control connection.  It is not safe for concurrent
// use; a session owns it exclusively.
type Conn interface {
	Mode() Mode
	Login(user, password string) error
	ChangeDir(path string) error
	List(path string) ([]Entry, error)
	Type(t TransferType) error
	// Retr opens a retrieval stream.  A negative reply to RETR is
	// returned here, not on the first Read.
	Retr(path string) (io.ReadCloser, error)
	Stor(path string, r io.Reader) error
	MakeDir(path string) error
	RemoveDir(path string) error
	Delete(path string) error
	Rename(from, to string) error
	// Quit sends QUIT and closes the control connection.
	Quit() error
}

// DialFunc opens a raw network connection.  transport.Dialer's Dial
// method satisfies it.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Dialer opens Conns.  When Dial is set every connection (control and
// passive data) goes through it, which only the passive driver supports;
// such sessions are always dialed passive and refuse active mode later.
type Dialer struct {
	Timeout time.Duration
	Dial    DialFunc
}

// Open connects to addr and reads the greeting.
func (d *Dialer) Open(ctx context.Context, addr string, mode Mode) (Conn, error) {
	if mode == ModeActive && d.Dial == nil {
		return dialActive(addr, d.Timeout)
	}
	return dialPassive(ctx, addr, d.Timeout, d.Dial)
}
