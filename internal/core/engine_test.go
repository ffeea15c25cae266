package core

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"syscall"
	"testing"

	"ftpgate/internal/command"
	"ftpgate/internal/credential"
	ftperr "ftpgate/internal/errors"
	"ftpgate/internal/ftpconn"
	"ftpgate/internal/ftpconn/ftpfake"
	"ftpgate/internal/metrics"
	"ftpgate/internal/session"
	"ftpgate/util"
)

var fakeEndpoint = session.Endpoint{Host: "ftp.example.com", Port: 21}

func quietLogger() *util.Logger {
	l := util.NewLogger(0)
	l.SetOutput(io.Discard)
	return l
}

func newEngine(srv session.Opener, opts ...Option) *Engine {
	return New(srv, quietLogger(), opts...)
}

func mustCommand(t *testing.T, kind command.Kind, p, arg string) command.Command {
	t.Helper()
	c, err := command.New(kind, p, arg)
	if err != nil {
		t.Fatalf("command.New(%s, %q, %q): %v", kind, p, arg, err)
	}
	return c
}

func run(t *testing.T, e *Engine, c command.Command, mode ftpconn.Mode, token string) (Result, error) {
	t.Helper()
	return e.Execute(context.Background(), Request{Endpoint: fakeEndpoint, Command: c, Mode: mode, Token: token})
}

// ── Lifecycle ────────────────────────────────────────────────────────

func TestExecute_OneConnectOneDisconnect(t *testing.T) {
	local := t.TempDir()
	if err := os.WriteFile(filepath.Join(local, "up.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		kind  command.Kind
		path  string
		arg   string
		token string
	}{
		{"list ok", command.KindList, "/pub", "", ""},
		{"list missing", command.KindList, "/nope", "", ""},
		{"get file ok", command.KindGetFile, "/pub/a.txt", "", ""},
		{"get file missing", command.KindGetFile, "/pub/zzz", "", ""},
		{"get tree ok", command.KindGetTree, "/pub", t.TempDir(), ""},
		{"get tree bad destination", command.KindGetTree, "/pub", "/nonexistent/dest", ""},
		{"put ok", command.KindPut, "/pub", filepath.Join(local, "up.txt"), ""},
		{"put missing local", command.KindPut, "/pub", filepath.Join(local, "missing"), ""},
		{"rename ok", command.KindRename, "/pub/b.txt", "c.txt", ""},
		{"rename missing", command.KindRename, "/pub/ghost", "x", ""},
		{"mkdir ok", command.KindMkdir, "/newdir", "", ""},
		{"mkdir exists", command.KindMkdir, "/pub", "", ""},
		{"rmtree root", command.KindRmTree, "/", "", ""},
		{"rmtree missing", command.KindRmTree, "/ghost", "", ""},
		{"bad token", command.KindList, "/pub", "", "Bearer abc"},
		{"login rejected", command.KindList, "/pub", "", credential.Encode("alice", "wrong")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := ftpfake.NewServer().AllowAnonWrite().AddUser("alice", "pw").
				WriteFile("/pub/a.txt", []byte("alpha")).
				WriteFile("/pub/b.txt", []byte("beta"))
			e := newEngine(srv)

			res, _ := run(t, e, mustCommand(t, tt.kind, tt.path, tt.arg), ftpconn.ModePassive, tt.token)
			if res.Stream != nil {
				res.Stream.Close()
			}
			if srv.Connects() != 1 || srv.Quits() != 1 {
				t.Errorf("connects = %d, quits = %d, want 1 and 1", srv.Connects(), srv.Quits())
			}
		})
	}
}

func TestExecute_DirectoryCheckLosesConnection(t *testing.T) {
	local := t.TempDir()
	if err := os.WriteFile(filepath.Join(local, "up.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		kind command.Kind
		path string
		arg  string
	}{
		{"list", command.KindList, "/pub", ""},
		{"get tree", command.KindGetTree, "/pub", t.TempDir()},
		{"put", command.KindPut, "/pub", filepath.Join(local, "up.txt")},
		{"rename", command.KindRename, "/pub/a.txt", "b.txt"},
		{"rmtree", command.KindRmTree, "/pub", ""},
	}
	failures := []error{io.ErrUnexpectedEOF, ftperr.ErrTunnelClosed, syscall.ECONNRESET}

	for _, tt := range tests {
		for _, cause := range failures {
			t.Run(tt.name+"/"+cause.Error(), func(t *testing.T) {
				srv := ftpfake.NewServer().AllowAnonWrite().
					WriteFile("/pub/a.txt", []byte("alpha")).
					FailOn("CWD", tt.path, cause)

				_, err := run(t, newEngine(srv), mustCommand(t, tt.kind, tt.path, tt.arg), ftpconn.ModePassive, "")
				if !ftperr.IsKind(err, ftperr.KindConnection) {
					t.Fatalf("err = %v, want ConnectionError", err)
				}
				if !errors.Is(err, cause) {
					t.Errorf("err = %v, want it to wrap %v", err, cause)
				}
				if srv.Quits() != 1 {
					t.Errorf("quits = %d, want 1", srv.Quits())
				}
			})
		}
	}
}

func TestExecute_ConnectFailure(t *testing.T) {
	srv := ftpfake.NewServer()
	srv.DialErr = ftpfake.ReplyGreetingFail

	_, err := run(t, newEngine(srv), mustCommand(t, command.KindList, "/", ""), ftpconn.ModeActive, "")
	if !ftperr.IsKind(err, ftperr.KindConnection) {
		t.Fatalf("err = %v, want ConnectionError", err)
	}
	if srv.Quits() != 0 {
		t.Error("nothing to tear down when connect fails")
	}
}

func TestExecute_TeardownErrorDoesNotMask(t *testing.T) {
	srv := ftpfake.NewServer().Mkdir("/pub")
	srv.QuitErr = errors.New("broken pipe")

	res, err := run(t, newEngine(srv), mustCommand(t, command.KindList, "/pub", ""), ftpconn.ModeActive, "")
	if err != nil {
		t.Fatalf("success masked by teardown error: %v", err)
	}
	if res.Entries == nil {
		t.Error("entries should be an empty slice")
	}

	srv = ftpfake.NewServer()
	srv.QuitErr = errors.New("broken pipe")
	_, err = run(t, newEngine(srv), mustCommand(t, command.KindRmTree, "/", ""), ftpconn.ModeActive, "")
	if !ftperr.IsKind(err, ftperr.KindForbidden) {
		t.Fatalf("failure replaced by teardown error: %v", err)
	}
}

type panicOpener struct{ *ftpfake.Server }

func (p panicOpener) Open(ctx context.Context, addr string, mode ftpconn.Mode) (ftpconn.Conn, error) {
	c, err := p.Server.Open(ctx, addr, mode)
	if err != nil {
		return nil, err
	}
	return panicConn{c}, nil
}

type panicConn struct{ ftpconn.Conn }

func (panicConn) List(string) ([]ftpconn.Entry, error) { panic("listing parser exploded") }

func TestExecute_PanicBecomesInternalError(t *testing.T) {
	srv := ftpfake.NewServer().Mkdir("/pub")

	_, err := run(t, newEngine(panicOpener{srv}), mustCommand(t, command.KindList, "/pub", ""), ftpconn.ModeActive, "")
	if !ftperr.IsKind(err, ftperr.KindInternal) {
		t.Fatalf("err = %v, want InternalError", err)
	}
	if !strings.Contains(err.Error(), "listing parser exploded") {
		t.Errorf("err = %v", err)
	}
	if srv.Quits() != 1 {
		t.Errorf("quits = %d, want 1 after a panic", srv.Quits())
	}
}

func TestSubmit_Concurrent(t *testing.T) {
	srv := ftpfake.NewServer().WriteFile("/pub/a.txt", []byte("alpha"))
	e := newEngine(srv)

	const n = 16
	var chans []<-chan Outcome
	for i := 0; i < n; i++ {
		chans = append(chans, e.Submit(context.Background(), Request{
			Endpoint: fakeEndpoint,
			Command:  mustCommand(t, command.KindList, "/pub", ""),
		}))
	}
	var wg sync.WaitGroup
	for _, ch := range chans {
		wg.Add(1)
		go func(ch <-chan Outcome) {
			defer wg.Done()
			out := <-ch
			if out.Err != nil || len(out.Result.Entries) != 1 {
				t.Errorf("outcome = %+v", out)
			}
		}(ch)
	}
	wg.Wait()

	if srv.Connects() != n || srv.Quits() != n {
		t.Errorf("connects = %d, quits = %d, want %d each", srv.Connects(), srv.Quits(), n)
	}
}

func TestExecute_NilCommand(t *testing.T) {
	srv := ftpfake.NewServer()
	_, err := newEngine(srv).Execute(context.Background(), Request{Endpoint: fakeEndpoint})
	if !ftperr.IsKind(err, ftperr.KindValidation) || srv.Connects() != 0 {
		t.Fatalf("err = %v, connects = %d", err, srv.Connects())
	}
}

// ── Mode and authentication ──────────────────────────────────────────

func TestExecute_ModeErrors(t *testing.T) {
	t.Run("active through a passive-only dialer", func(t *testing.T) {
		srv := ftpfake.NewServer().ForceMode(ftpconn.ModePassive).Mkdir("/pub")
		_, err := run(t, newEngine(srv), mustCommand(t, command.KindList, "/pub", ""), ftpconn.ModeActive, "")
		if !ftperr.IsKind(err, ftperr.KindMode) {
			t.Fatalf("err = %v, want ModeError", err)
		}
		if srv.Count("USER") != 0 {
			t.Error("login must be skipped after a mode failure")
		}
	})

	t.Run("server refuses PASV", func(t *testing.T) {
		srv := ftpfake.NewServer().RefuseDataChannel(ftpconn.ModePassive).Mkdir("/pub")
		_, err := run(t, newEngine(srv), mustCommand(t, command.KindList, "/pub", ""), ftpconn.ModePassive, "")
		if !ftperr.IsKind(err, ftperr.KindMode) {
			t.Fatalf("err = %v, want ModeError", err)
		}
	})
}

func TestExecute_Authentication(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		wantErr bool
		wantMsg string
	}{
		{"no token", "", false, ""},
		{"anonymous token", credential.Encode("anonymous", "anonymous"), false, ""},
		{"wrong credentials on anonymous-only server", credential.Encode("wrong", "wrong"), true, "anonymous only"},
		{"unknown scheme", "Digest abc", true, "scheme"},
		{"bad base64", "Basic !!!", true, "encoding"},
		{"two colons", credential.Encode("a:b", "c"), true, "user:password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := ftpfake.NewServer().Mkdir("/pub")
			_, err := run(t, newEngine(srv), mustCommand(t, command.KindList, "/pub", ""), ftpconn.ModeActive, tt.token)
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("err = %v", err)
				}
				return
			}
			if !ftperr.IsKind(err, ftperr.KindAuth) {
				t.Fatalf("err = %v, want AuthError", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("message %q lacks %q", err, tt.wantMsg)
			}
			if srv.Count("LIST") != 0 {
				t.Error("dispatch must be skipped after an auth failure")
			}
		})
	}
}

// ── Commands ─────────────────────────────────────────────────────────

func TestList(t *testing.T) {
	srv := ftpfake.NewServer().
		WriteFile("/pub/b.txt", []byte("bb")).
		WriteFile("/pub/a.txt", []byte("a")).
		Mkdir("/pub/sub").
		Mkdir("/empty")
	e := newEngine(srv)

	res, err := run(t, e, mustCommand(t, command.KindList, "pub", ""), ftpconn.ModeActive, "")
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, en := range res.Entries {
		names = append(names, en.Name)
	}
	if !reflect.DeepEqual(names, []string{"a.txt", "b.txt", "sub"}) {
		t.Errorf("names = %v", names)
	}
	if res.Entries[1].Size != 2 || res.Entries[2].Kind != ftpconn.EntryDir {
		t.Errorf("entries = %+v", res.Entries)
	}

	res, err = run(t, e, mustCommand(t, command.KindList, "/empty", ""), ftpconn.ModeActive, "")
	if err != nil {
		t.Fatalf("empty dir: %v", err)
	}
	if res.Entries == nil || len(res.Entries) != 0 {
		t.Errorf("empty dir entries = %#v, want empty non-nil slice", res.Entries)
	}

	_, err = run(t, e, mustCommand(t, command.KindList, "/pub/a.txt", ""), ftpconn.ModeActive, "")
	if !ftperr.IsKind(err, ftperr.KindNotFound) {
		t.Errorf("listing a file: err = %v, want NotFoundError", err)
	}
}

func TestGetFile(t *testing.T) {
	srv := ftpfake.NewServer().
		WriteFile("/docs/readme.txt", []byte("read me")).
		WriteFile("/docs/photo.jpg", []byte{0xff, 0xd8, 0xff})
	spool := t.TempDir()
	m := metrics.New()
	e := newEngine(srv, WithSpoolDir(spool), WithMetrics(m))

	res, err := run(t, e, mustCommand(t, command.KindGetFile, "/docs/readme.txt", ""), ftpconn.ModePassive, "")
	if err != nil {
		t.Fatal(err)
	}
	// The session is gone before the caller reads.
	if srv.Quits() != 1 {
		t.Fatalf("quits = %d before reading", srv.Quits())
	}
	data, _ := io.ReadAll(res.Stream)
	if string(data) != "read me" || res.Size != 7 {
		t.Errorf("data = %q, size = %d", data, res.Size)
	}
	if err := res.Stream.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if left, _ := os.ReadDir(spool); len(left) != 0 {
		t.Errorf("spool not cleaned: %v", left)
	}
	if srv.TransferType("/docs/readme.txt") != ftpconn.TypeText {
		t.Error("text file should be fetched as TYPE A")
	}

	res, err = run(t, e, mustCommand(t, command.KindGetFile, "/docs/photo.jpg", ""), ftpconn.ModePassive, "")
	if err != nil {
		t.Fatal(err)
	}
	res.Stream.Close()
	if srv.TransferType("/docs/photo.jpg") != ftpconn.TypeBinary {
		t.Error("image should be fetched as TYPE I")
	}

	_, err = run(t, e, mustCommand(t, command.KindGetFile, "/docs/missing.txt", ""), ftpconn.ModePassive, "")
	if !ftperr.IsKind(err, ftperr.KindNotFound) {
		t.Errorf("missing file: err = %v, want NotFoundError", err)
	}
	if m.TotalCommands() != 3 || m.ErrorCount() != 1 {
		t.Errorf("metrics: commands = %d, errors = %d", m.TotalCommands(), m.ErrorCount())
	}
}

func TestGetTree(t *testing.T) {
	srv := ftpfake.NewServer().
		WriteFile("/site/index.html", []byte("<html>")).
		WriteFile("/site/img/a.png", []byte("png"))
	e := newEngine(srv)
	dest := t.TempDir()

	res, err := run(t, e, mustCommand(t, command.KindGetTree, "/site", dest), ftpconn.ModePassive, "")
	if err != nil {
		t.Fatal(err)
	}
	if res.Path != filepath.Join(dest, "site") {
		t.Errorf("Path = %q", res.Path)
	}
	if data, _ := os.ReadFile(filepath.Join(dest, "site", "img", "a.png")); string(data) != "png" {
		t.Errorf("a.png = %q", data)
	}

	_, err = run(t, e, mustCommand(t, command.KindGetTree, "/nope", dest), ftpconn.ModePassive, "")
	if !ftperr.IsKind(err, ftperr.KindNotFound) {
		t.Errorf("missing remote dir: %v", err)
	}
	_, err = run(t, e, mustCommand(t, command.KindGetTree, "/site", filepath.Join(dest, "absent")), ftpconn.ModePassive, "")
	if !ftperr.IsKind(err, ftperr.KindNotFound) {
		t.Errorf("missing local dest: %v", err)
	}
}

func TestPut(t *testing.T) {
	local := t.TempDir()
	file := filepath.Join(local, "report.txt")
	if err := os.WriteFile(file, []byte("q3"), 0o644); err != nil {
		t.Fatal(err)
	}
	dir := filepath.Join(local, "bundle")
	if err := os.MkdirAll(filepath.Join(dir, "nested"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "nested", "x.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	srv := ftpfake.NewServer().AddUser("alice", "pw").Mkdir("/inbox")
	e := newEngine(srv)
	token := credential.Encode("alice", "pw")

	res, err := run(t, e, mustCommand(t, command.KindPut, "/inbox", file), ftpconn.ModePassive, token)
	if err != nil {
		t.Fatal(err)
	}
	if !res.OK || res.Path != "/inbox/report.txt" {
		t.Errorf("file result = %+v", res)
	}

	res, err = run(t, e, mustCommand(t, command.KindPut, "/inbox", dir), ftpconn.ModePassive, token)
	if err != nil {
		t.Fatal(err)
	}
	if res.OK || res.Path != "/inbox/bundle" {
		t.Errorf("dir result = %+v", res)
	}
	if data, _ := srv.ReadFile("/inbox/bundle/nested/x.txt"); string(data) != "x" {
		t.Errorf("x.txt = %q", data)
	}

	_, err = run(t, e, mustCommand(t, command.KindPut, "/missing", file), ftpconn.ModePassive, token)
	if !ftperr.IsKind(err, ftperr.KindNotFound) {
		t.Errorf("missing remote parent: %v", err)
	}

	// Anonymous is read-only on this server.
	_, err = run(t, e, mustCommand(t, command.KindPut, "/inbox", file), ftpconn.ModePassive, "")
	if !ftperr.IsKind(err, ftperr.KindPermission) {
		t.Errorf("anonymous upload: %v, want PermissionError", err)
	}
}

func TestRename(t *testing.T) {
	srv := ftpfake.NewServer().AllowAnonWrite().
		WriteFile("/docs/old.txt", []byte("x")).
		WriteFile("/docs/folder/inner.txt", []byte("y"))
	e := newEngine(srv)

	res, err := run(t, e, mustCommand(t, command.KindRename, "/docs/old.txt", "new.txt"), ftpconn.ModeActive, "")
	if err != nil || res.Path != "/docs/new.txt" {
		t.Fatalf("file rename = %+v, %v", res, err)
	}
	res, err = run(t, e, mustCommand(t, command.KindRename, "/docs/folder", "renamed"), ftpconn.ModeActive, "")
	if err != nil || res.Path != "/docs/renamed" {
		t.Fatalf("dir rename = %+v, %v", res, err)
	}
	if _, ok := srv.ReadFile("/docs/renamed/inner.txt"); !ok {
		t.Error("directory contents should move with it")
	}

	before := srv.Count("RNFR")
	_, err = run(t, e, mustCommand(t, command.KindRename, "/docs/ghost", "x"), ftpconn.ModeActive, "")
	if !ftperr.IsKind(err, ftperr.KindNotFound) {
		t.Fatalf("missing source: %v, want NotFoundError", err)
	}
	if srv.Count("RNFR") != before {
		t.Error("no rename may be issued for a missing source")
	}

	_, err = run(t, e, mustCommand(t, command.KindRename, "/", "x"), ftpconn.ModeActive, "")
	if !ftperr.IsKind(err, ftperr.KindForbidden) {
		t.Errorf("renaming root: %v", err)
	}
}

func TestRmTree_Root(t *testing.T) {
	srv := ftpfake.NewServer().AllowAnonWrite().WriteFile("/a.txt", nil)

	_, err := run(t, newEngine(srv), mustCommand(t, command.KindRmTree, "/", ""), ftpconn.ModeActive, "")
	if !ftperr.IsKind(err, ftperr.KindForbidden) {
		t.Fatalf("err = %v, want ForbiddenError", err)
	}
	if n := srv.Count("DELE") + srv.Count("RMD"); n != 0 {
		t.Errorf("%d delete calls, want 0", n)
	}
}

func TestMkdirThenRmTree(t *testing.T) {
	srv := ftpfake.NewServer().AllowAnonWrite().
		WriteFile("/keep/a.txt", nil).
		Mkdir("/sibling")
	e := newEngine(srv)
	before := srv.Paths()

	res, err := run(t, e, mustCommand(t, command.KindMkdir, "/scratch", ""), ftpconn.ModeActive, "")
	if err != nil || res.Path != "/scratch" {
		t.Fatalf("MKDIR = %+v, %v", res, err)
	}
	res, err = run(t, e, mustCommand(t, command.KindRmTree, "/scratch", ""), ftpconn.ModeActive, "")
	if err != nil || !res.OK {
		t.Fatalf("RMTREE = %+v, %v", res, err)
	}
	if got := srv.Paths(); !reflect.DeepEqual(got, before) {
		t.Errorf("paths = %v, want %v", got, before)
	}
}

func TestRmTree_File(t *testing.T) {
	srv := ftpfake.NewServer().AllowAnonWrite().WriteFile("/junk.log", []byte("x"))
	e := newEngine(srv)

	res, err := run(t, e, mustCommand(t, command.KindRmTree, "/junk.log", ""), ftpconn.ModeActive, "")
	if err != nil || !res.OK {
		t.Fatalf("RMTREE file = %+v, %v", res, err)
	}
	if _, ok := srv.ReadFile("/junk.log"); ok {
		t.Error("file should be gone")
	}

	_, err = run(t, e, mustCommand(t, command.KindRmTree, "/junk.log", ""), ftpconn.ModeActive, "")
	if !ftperr.IsKind(err, ftperr.KindNotFound) {
		t.Errorf("second delete: %v, want NotFoundError", err)
	}
}

func TestGetTreeThenPutRoundTrip(t *testing.T) {
	srv := ftpfake.NewServer().AllowAnonWrite().
		WriteFile("/src/a.txt", []byte("a")).
		WriteFile("/src/d1/b.txt", []byte("b")).
		WriteFile("/src/d1/d2/c.png", []byte("c")).
		Mkdir("/src/d1/empty").
		Mkdir("/dst")
	e := newEngine(srv)
	dest := t.TempDir()

	res, err := run(t, e, mustCommand(t, command.KindGetTree, "/src", dest), ftpconn.ModePassive, "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, e, mustCommand(t, command.KindPut, "/dst", res.Path), ftpconn.ModePassive, ""); err != nil {
		t.Fatal(err)
	}

	var src, dst []string
	for _, p := range srv.Paths() {
		switch {
		case strings.HasPrefix(p, "/src/"):
			src = append(src, strings.TrimPrefix(p, "/src/"))
		case strings.HasPrefix(p, "/dst/src/"):
			dst = append(dst, strings.TrimPrefix(p, "/dst/src/"))
		}
	}
	if !reflect.DeepEqual(src, dst) {
		t.Errorf("round trip differs:\n src %v\n dst %v", src, dst)
	}
}
