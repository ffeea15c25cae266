package session

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"ftpgate/internal/credential"
	ftperr "ftpgate/internal/errors"
	"ftpgate/internal/ftpconn"
	"ftpgate/internal/ftpconn/ftpfake"
	"ftpgate/util"
)

func quietLogger() *util.Logger {
	l := util.NewLogger(0)
	l.SetOutput(io.Discard)
	return l
}

var testEndpoint = Endpoint{Host: "ftp.example.com", Port: 21}

func TestEndpointAddr(t *testing.T) {
	if got := (Endpoint{Host: "::1", Port: 2121}).Addr(); got != "[::1]:2121" {
		t.Errorf("Addr = %q", got)
	}
}

func TestConnect_Failure(t *testing.T) {
	srv := ftpfake.NewServer()
	srv.DialErr = ftpfake.ReplyGreetingFail

	_, err := Connect(context.Background(), srv, testEndpoint, ftpconn.ModeActive, quietLogger())
	if !ftperr.IsKind(err, ftperr.KindConnection) {
		t.Fatalf("err = %v, want ConnectionError", err)
	}
	if srv.Connects() != 0 {
		t.Errorf("connects = %d, want 0", srv.Connects())
	}
}

func TestSelectMode(t *testing.T) {
	tests := []struct {
		name    string
		force   *ftpconn.Mode
		want    ftpconn.Mode
		wantErr bool
	}{
		{name: "active", want: ftpconn.ModeActive},
		{name: "passive", want: ftpconn.ModePassive},
		{name: "tunnel forces passive", force: modePtr(ftpconn.ModePassive), want: ftpconn.ModeActive, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := ftpfake.NewServer()
			if tt.force != nil {
				srv.ForceMode(*tt.force)
			}
			s, err := Connect(context.Background(), srv, testEndpoint, tt.want, quietLogger())
			if err != nil {
				t.Fatal(err)
			}
			defer s.Teardown() //nolint:errcheck

			err = s.SelectMode(tt.want)
			if tt.wantErr {
				if !ftperr.IsKind(err, ftperr.KindMode) {
					t.Fatalf("err = %v, want ModeError", err)
				}
				return
			}
			if err != nil || s.Mode != tt.want {
				t.Fatalf("SelectMode = %v, mode %s", err, s.Mode)
			}
		})
	}
}

func TestAuthenticate(t *testing.T) {
	tests := []struct {
		name      string
		token     string
		users     bool
		wantErr   bool
		wantInMsg string
	}{
		{name: "empty token is anonymous", token: ""},
		{name: "explicit anonymous", token: credential.Encode("anonymous", "anonymous")},
		{name: "named user", token: credential.Encode("alice", "pw"), users: true},
		{name: "wrong password", token: credential.Encode("alice", "nope"), users: true,
			wantErr: true, wantInMsg: "Login incorrect."},
		{name: "anonymous-only server", token: credential.Encode("wrong", "wrong"),
			wantErr: true, wantInMsg: "anonymous only"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := ftpfake.NewServer()
			if tt.users {
				srv.AddUser("alice", "pw")
			}
			s, err := Connect(context.Background(), srv, testEndpoint, ftpconn.ModeActive, quietLogger())
			if err != nil {
				t.Fatal(err)
			}
			defer s.Teardown() //nolint:errcheck

			cred, err := credential.Parse(tt.token)
			if err != nil {
				t.Fatal(err)
			}
			err = s.Authenticate(cred)
			if !tt.wantErr {
				if err != nil || !s.Authenticated {
					t.Fatalf("Authenticate = %v, authenticated %v", err, s.Authenticated)
				}
				return
			}
			if !ftperr.IsKind(err, ftperr.KindAuth) {
				t.Fatalf("err = %v, want AuthError", err)
			}
			if !strings.Contains(err.Error(), tt.wantInMsg) {
				t.Errorf("message %q does not carry %q", err, tt.wantInMsg)
			}
			if s.Authenticated {
				t.Error("session must not be marked authenticated")
			}
		})
	}
}

func TestTeardown_Once(t *testing.T) {
	srv := ftpfake.NewServer()
	srv.QuitErr = errors.New("connection reset")

	s, err := Connect(context.Background(), srv, testEndpoint, ftpconn.ModeActive, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Teardown(); err == nil || !strings.Contains(err.Error(), "connection reset") {
		t.Errorf("first Teardown = %v, want aggregated quit error", err)
	}
	if err := s.Teardown(); err != nil {
		t.Errorf("second Teardown = %v, want nil", err)
	}
	if srv.Quits() != 1 {
		t.Errorf("quits = %d, want 1", srv.Quits())
	}

	var nilSession *Session
	if err := nilSession.Teardown(); err != nil {
		t.Errorf("nil Teardown = %v", err)
	}
}

func modePtr(m ftpconn.Mode) *ftpconn.Mode { return &m }
