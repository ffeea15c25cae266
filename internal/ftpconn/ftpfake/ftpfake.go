// Package ftpfake is a scripted, in-memory FTP server for engine tests.
// Every connection shares the server's file tree and every protocol
// call is recorded, so tests can assert how many connects, deletes or
// renames a command caused.
package ftpfake

import (
	"bytes"
	"context"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	ftperr "ftpgate/internal/errors"
	"ftpgate/internal/ftpconn"
)

// Replies used by the fake, modelled on common servers.
var (
	ReplyNoSuchFile   = &ftperr.ReplyError{Code: 550, Message: "No such file or directory."}
	ReplyDenied       = &ftperr.ReplyError{Code: 550, Message: "Permission denied."}
	ReplyNotEmpty     = &ftperr.ReplyError{Code: 550, Message: "Directory not empty."}
	ReplyExists       = &ftperr.ReplyError{Code: 550, Message: "File exists."}
	ReplyBadName      = &ftperr.ReplyError{Code: 553, Message: "Could not create file."}
	ReplyNotLoggedIn  = &ftperr.ReplyError{Code: 530, Message: "Please login with USER and PASS."}
	ReplyLoginFailed  = &ftperr.ReplyError{Code: 530, Message: "Login incorrect."}
	ReplyAnonOnly     = &ftperr.ReplyError{Code: 530, Message: "This FTP server is anonymous only."}
	ReplyGreetingFail = &ftperr.ReplyError{Code: 421, Message: "Service not available, closing control connection."}
)

// Server holds the shared state of the fake.
type Server struct {
	mu sync.Mutex

	files map[string][]byte
	dirs  map[string]bool
	mtime time.Time

	users      map[string]string
	anonymous  bool
	anonWrite  bool
	forceMode  *ftpconn.Mode
	refuseData map[ftpconn.Mode]bool
	failures   map[string]error

	// DialErr is returned by Open instead of a connection.
	DialErr error
	// QuitErr is returned by every Quit, after the quit is counted.
	QuitErr error

	calls       []string
	transferred map[string]ftpconn.TransferType
	connects    int
	quits       int
}

// NewServer returns an empty, anonymous-only, read-only server.
func NewServer() *Server {
	return &Server{
		files:      map[string][]byte{},
		dirs:       map[string]bool{"/": true},
		mtime:      time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		users:      map[string]string{},
		anonymous:  true,
		refuseData: map[ftpconn.Mode]bool{},
		failures:   map[string]error{},

		transferred: map[string]ftpconn.TransferType{},
	}
}

// AddUser accepts a named login with write access.
func (s *Server) AddUser(user, password string) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user] = password
	return s
}

// AllowAnonWrite gives anonymous sessions write access.
func (s *Server) AllowAnonWrite() *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.anonWrite = true
	return s
}

// DenyAnonymous rejects anonymous logins.
func (s *Server) DenyAnonymous() *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.anonymous = false
	return s
}

// ForceMode makes every connection report m regardless of the request,
// like a tunneled dialer that can only do passive.
func (s *Server) ForceMode(m ftpconn.Mode) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forceMode = &m
	return s
}

// RefuseDataChannel makes PASV (passive) or PORT (active) fail.
func (s *Server) RefuseDataChannel(m ftpconn.Mode) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refuseData[m] = true
	return s
}

// FailOn makes the verb ("STOR", "DELE", "MKD", ...) fail with err for p.
func (s *Server) FailOn(verb, p string, err error) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[verb+" "+path.Clean(p)] = err
	return s
}

// WriteFile creates p with data, creating parent directories.
func (s *Server) WriteFile(p string, data []byte) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	p = path.Clean("/" + p)
	s.mkdirAll(path.Dir(p))
	s.files[p] = append([]byte(nil), data...)
	return s
}

// Mkdir creates directory p and its parents.
func (s *Server) Mkdir(p string) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mkdirAll(path.Clean("/" + p))
	return s
}

func (s *Server) mkdirAll(p string) {
	for ; p != "/"; p = path.Dir(p) {
		s.dirs[p] = true
	}
}

func (s *Server) isFile(p string) bool {
	_, ok := s.files[p]
	return ok
}

// ReadFile returns the content of p.
func (s *Server) ReadFile(p string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[path.Clean(p)]
	return data, ok
}

// IsDir reports whether p is a directory.
func (s *Server) IsDir(p string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirs[path.Clean(p)]
}

// Paths returns every file and directory except "/", sorted.
func (s *Server) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for d := range s.dirs {
		if d != "/" {
			out = append(out, d+"/")
		}
	}
	for f := range s.files {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// TransferType returns the TYPE in effect when p was last retrieved or
// stored, "" if it never was.
func (s *Server) TransferType(p string) ftpconn.TransferType {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transferred[path.Clean(p)]
}

// Connects returns how many connections were opened.
func (s *Server) Connects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connects
}

// Quits returns how many connections were closed.
func (s *Server) Quits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quits
}

// Calls returns the recorded protocol calls ("RETR /a.txt", ...).
func (s *Server) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// Count returns how many recorded calls used verb.
func (s *Server) Count(verb string) int {
	n := 0
	for _, c := range s.Calls() {
		if c == verb || strings.HasPrefix(c, verb+" ") {
			n++
		}
	}
	return n
}

// Open implements session.Opener.
func (s *Server) Open(_ context.Context, _ string, mode ftpconn.Mode) (ftpconn.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "CONNECT "+mode.String())
	if s.DialErr != nil {
		return nil, s.DialErr
	}
	s.connects++
	if s.forceMode != nil {
		mode = *s.forceMode
	}
	return &conn{srv: s, mode: mode, cwd: "/"}, nil
}

// conn is one fake control connection.
type conn struct {
	srv      *Server
	mode     ftpconn.Mode
	cwd      string
	user     string
	loggedIn bool
	writable bool
	xfer     ftpconn.TransferType
	closed   bool
}

var _ ftpconn.Conn = (*conn)(nil)

// begin records the call and checks login and scripted failures.
// Callers hold srv.mu.
func (c *conn) begin(verb, p string, needLogin bool) error {
	s := c.srv
	if p != "" {
		p = c.abs(p)
		s.calls = append(s.calls, verb+" "+p)
	} else {
		s.calls = append(s.calls, verb)
	}
	if c.closed {
		return ftperr.ErrNotConnected
	}
	if needLogin && !c.loggedIn {
		return ReplyNotLoggedIn
	}
	if err, ok := s.failures[verb+" "+p]; ok {
		return err
	}
	return nil
}

func (c *conn) abs(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = path.Join(c.cwd, p)
	}
	return path.Clean(p)
}

func (c *conn) dataChannel() error {
	if !c.srv.refuseData[c.mode] {
		return nil
	}
	if c.mode == ftpconn.ModePassive {
		return &ftperr.ReplyError{Command: "PASV", Code: 502, Message: "Passive mode not allowed."}
	}
	return &ftperr.ReplyError{Command: "PORT", Code: 500, Message: "Illegal PORT command."}
}

func (c *conn) Mode() ftpconn.Mode { return c.mode }

func (c *conn) Login(user, password string) error {
	s := c.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := c.begin("USER "+user, "", false); err != nil {
		return err
	}

	switch {
	case user == "anonymous" || user == "ftp":
		if !s.anonymous {
			return ReplyLoginFailed
		}
		c.writable = s.anonWrite
	case len(s.users) == 0 && s.anonymous:
		return ReplyAnonOnly
	default:
		if want, ok := s.users[user]; !ok || want != password {
			return ReplyLoginFailed
		}
		c.writable = true
	}
	c.user = user
	c.loggedIn = true
	return nil
}

func (c *conn) ChangeDir(p string) error {
	s := c.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := c.begin("CWD", p, true); err != nil {
		return err
	}
	p = c.abs(p)
	if !s.dirs[p] {
		return ReplyNoSuchFile
	}
	c.cwd = p
	return nil
}

func (c *conn) List(p string) ([]ftpconn.Entry, error) {
	s := c.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := c.begin("LIST", p, true); err != nil {
		return nil, err
	}
	if err := c.dataChannel(); err != nil {
		return nil, err
	}
	p = c.abs(p)
	if data, ok := s.files[p]; ok {
		return []ftpconn.Entry{{Name: path.Base(p), Size: int64(len(data)), Kind: ftpconn.EntryFile, Modified: s.mtime}}, nil
	}
	if !s.dirs[p] {
		return nil, ReplyNoSuchFile
	}

	out := []ftpconn.Entry{
		{Name: ".", Kind: ftpconn.EntryDir, Modified: s.mtime},
		{Name: "..", Kind: ftpconn.EntryDir, Modified: s.mtime},
	}
	var names []string
	for d := range s.dirs {
		if d != p && path.Dir(d) == p {
			names = append(names, d)
		}
	}
	for f := range s.files {
		if path.Dir(f) == p {
			names = append(names, f)
		}
	}
	sort.Strings(names)
	for _, n := range names {
		e := ftpconn.Entry{Name: path.Base(n), Modified: s.mtime}
		if s.dirs[n] {
			e.Kind = ftpconn.EntryDir
		} else {
			e.Size = int64(len(s.files[n]))
		}
		out = append(out, e)
	}
	return out, nil
}

func (c *conn) Type(t ftpconn.TransferType) error {
	s := c.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := c.begin("TYPE "+string(t), "", true); err != nil {
		return err
	}
	c.xfer = t
	return nil
}

func (c *conn) Retr(p string) (io.ReadCloser, error) {
	s := c.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := c.begin("RETR", p, true); err != nil {
		return nil, err
	}
	if err := c.dataChannel(); err != nil {
		return nil, err
	}
	data, ok := s.files[c.abs(p)]
	if !ok {
		return nil, ReplyNoSuchFile
	}
	s.transferred[c.abs(p)] = c.xfer
	return io.NopCloser(bytes.NewReader(append([]byte(nil), data...))), nil
}

func (c *conn) Stor(p string, r io.Reader) error {
	// Read before locking: r may be a stream fed by another connection.
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	s := c.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := c.begin("STOR", p, true); err != nil {
		return err
	}
	if err := c.dataChannel(); err != nil {
		return err
	}
	p = c.abs(p)
	switch {
	case !c.writable:
		return ReplyDenied
	case !s.dirs[path.Dir(p)], s.dirs[p]:
		return ReplyBadName
	}
	s.files[p] = data
	s.transferred[p] = c.xfer
	return nil
}

func (c *conn) MakeDir(p string) error {
	s := c.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := c.begin("MKD", p, true); err != nil {
		return err
	}
	p = c.abs(p)
	switch {
	case !c.writable:
		return ReplyDenied
	case s.dirs[p] || s.isFile(p):
		return ReplyExists
	case !s.dirs[path.Dir(p)]:
		return ReplyNoSuchFile
	}
	s.dirs[p] = true
	return nil
}

func (c *conn) RemoveDir(p string) error {
	s := c.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := c.begin("RMD", p, true); err != nil {
		return err
	}
	p = c.abs(p)
	switch {
	case !c.writable:
		return ReplyDenied
	case !s.dirs[p] || p == "/":
		return ReplyNoSuchFile
	}
	for d := range s.dirs {
		if d != p && path.Dir(d) == p {
			return ReplyNotEmpty
		}
	}
	for f := range s.files {
		if path.Dir(f) == p {
			return ReplyNotEmpty
		}
	}
	delete(s.dirs, p)
	return nil
}

func (c *conn) Delete(p string) error {
	s := c.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := c.begin("DELE", p, true); err != nil {
		return err
	}
	p = c.abs(p)
	switch {
	case !c.writable:
		return ReplyDenied
	case !s.isFile(p):
		return ReplyNoSuchFile
	}
	delete(s.files, p)
	return nil
}

func (c *conn) Rename(from, to string) error {
	s := c.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := c.begin("RNFR", from, true); err != nil {
		return err
	}
	if err := c.begin("RNTO", to, true); err != nil {
		return err
	}
	from, to = c.abs(from), c.abs(to)
	isFile := s.isFile(from)
	switch {
	case !c.writable:
		return ReplyDenied
	case !isFile && !s.dirs[from]:
		return ReplyNoSuchFile
	case !s.dirs[path.Dir(to)]:
		return ReplyBadName
	}

	if isFile {
		s.files[to] = s.files[from]
		delete(s.files, from)
		return nil
	}
	prefix := from + "/"
	var dirs []string
	for d := range s.dirs {
		if d == from || strings.HasPrefix(d, prefix) {
			dirs = append(dirs, d)
		}
	}
	var files []string
	for f := range s.files {
		if strings.HasPrefix(f, prefix) {
			files = append(files, f)
		}
	}
	for _, d := range dirs {
		delete(s.dirs, d)
		s.dirs[to+strings.TrimPrefix(d, from)] = true
	}
	for _, f := range files {
		data := s.files[f]
		delete(s.files, f)
		s.files[to+strings.TrimPrefix(f, from)] = data
	}
	return nil
}

func (c *conn) Quit() error {
	s := c.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "QUIT")
	if !c.closed {
		c.closed = true
		s.quits++
	}
	return s.QuitErr
}
