package ftptest

import (
	"bufio"
	"net"
	"strings"
	"testing"
)

// NewScripted starts a control-channel-only FTP server that answers
// each verb with a canned reply line and returns its address.  Verbs
// missing from replies fall back to a minimal login script, and anything
// else gets "502 Command not implemented.".  The server never opens a
// data connection, so it is meant for negotiation failures.
func NewScripted(t testing.TB, replies map[string]string) string {
	t.Helper()

	script := map[string]string{
		"USER": "331 Password required.",
		"PASS": "230 Logged in.",
		"TYPE": "200 Type set.",
		"CWD":  "250 Directory changed.",
		"QUIT": "221 Bye.",
	}
	for verb, reply := range replies {
		script[strings.ToUpper(verb)] = reply
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ftptest: listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveScript(conn, script)
		}
	}()
	return ln.Addr().String()
}

func serveScript(conn net.Conn, script map[string]string) {
	defer conn.Close()

	w := bufio.NewWriter(conn)
	reply := func(line string) bool {
		w.WriteString(line + "\r\n") //nolint:errcheck
		return w.Flush() == nil
	}
	if !reply("220 Scripted server ready.") {
		return
	}

	r := bufio.NewScanner(conn)
	for r.Scan() {
		verb, _, _ := strings.Cut(strings.TrimSpace(r.Text()), " ")
		verb = strings.ToUpper(verb)
		line, ok := script[verb]
		if !ok {
			line = "502 Command not implemented."
		}
		if !reply(line) || verb == "QUIT" {
			return
		}
	}
}
