// Package credential parses the FTP credential token carried by each
// command request.
package credential

import (
	"encoding/base64"
	"strings"

	ftperr "ftpgate/internal/errors"
)

// AnonymousUser is the placeholder identity sent when no token is given.
const AnonymousUser = "anonymous"

const basicScheme = "Basic "

// Credential is a decoded FTP login.
type Credential struct {
	User      string
	Password  string
	Anonymous bool
}

// Anonymous returns the conventional anonymous login.
func Anonymous() Credential {
	return Credential{User: AnonymousUser, Password: AnonymousUser, Anonymous: true}
}

// Parse decodes token.  An empty token means anonymous.  Anything else
// must be "Basic " + base64("user:pass") with exactly one colon.
func Parse(token string) (Credential, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Anonymous(), nil
	}
	if len(token) < len(basicScheme) || !strings.EqualFold(token[:len(basicScheme)], basicScheme) {
		return Credential{}, ftperr.Auth("unsupported credential scheme, expected Basic")
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(token[len(basicScheme):]))
	if err != nil {
		return Credential{}, ftperr.Auth("malformed Basic credential encoding")
	}

	decoded := string(raw)
	if strings.Count(decoded, ":") != 1 {
		return Credential{}, ftperr.Auth("Basic credential must be user:password")
	}
	user, pass, _ := strings.Cut(decoded, ":")
	return Credential{User: user, Password: pass}, nil
}

// Encode builds the token Parse accepts.
func Encode(user, password string) string {
	return basicScheme + base64.StdEncoding.EncodeToString([]byte(user+":"+password))
}
