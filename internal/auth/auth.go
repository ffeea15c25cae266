// Package auth issues and checks the bearer tokens that guard the
// façade's registry mutation routes.
package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	ftperr "ftpgate/internal/errors"
	"ftpgate/internal/metrics"
)

const issuer = "ftpgate"

type contextKey struct{}

// Claims are the registered JWT claims; the subject is the username.
type Claims struct {
	jwt.RegisteredClaims
}

// Issuer signs and validates HS256 tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer returns an Issuer.  An empty secret is replaced by 32 random
// bytes, so tokens then only survive as long as the process.
func NewIssuer(secret string, ttl time.Duration) (*Issuer, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, err
		}
	}
	return &Issuer{secret: key, ttl: ttl, now: time.Now}, nil
}

// TTL returns how long issued tokens are valid.
func (i *Issuer) TTL() time.Duration { return i.ttl }

// Issue returns a signed token for username and its expiry.
func (i *Issuer) Issue(username string) (string, time.Time, error) {
	now := i.now()
	exp := now.Add(i.ttl)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Validate parses tokenStr and returns its claims.  Every failure is an
// AuthError.
func (i *Issuer) Validate(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ftperr.Auth("token has expired")
	case err != nil:
		return nil, ftperr.Auth("invalid token")
	case claims.Subject == "":
		return nil, ftperr.Auth("token has no subject")
	}
	return claims, nil
}

// UserLookup reports whether a username is still registered.
type UserLookup interface {
	Exists(username string) (bool, error)
}

// ErrorWriter renders a failure onto the response.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// Middleware admits requests carrying "Authorization: Bearer <token>"
// whose subject still exists in users.  The subject is available to the
// handler through Subject.
func (i *Issuer) Middleware(users UserLookup, m *metrics.Collector, fail ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, ok := bearer(r)
			if !ok {
				m.AuthAttempt(false)
				fail(w, r, ftperr.Auth("missing bearer token"))
				return
			}
			claims, err := i.Validate(tokenStr)
			if err != nil {
				m.AuthAttempt(false)
				fail(w, r, err)
				return
			}
			exists, err := users.Exists(claims.Subject)
			if err != nil {
				fail(w, r, err)
				return
			}
			if !exists {
				m.AuthAttempt(false)
				fail(w, r, ftperr.Auth("user %q no longer exists", claims.Subject))
				return
			}
			m.AuthAttempt(true)
			ctx := context.WithValue(r.Context(), contextKey{}, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Subject returns the authenticated username, "" outside Middleware.
func Subject(ctx context.Context) string {
	s, _ := ctx.Value(contextKey{}).(string)
	return s
}

func bearer(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(h[len(prefix):]), true
}
