// Package retry guards reconnects to shared upstreams such as the SSH
// bastion: a short exponential backoff for transient dial failures and
// a breaker that fails fast while the upstream stays down.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// ── Permanent errors ─────────────────────────────────────────────────

type permanent struct{ err error }

func (p *permanent) Error() string { return p.err.Error() }
func (p *permanent) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.  Do returns the inner
// error at once.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanent{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanent
	return errors.As(err, &p)
}

// ── Backoff ──────────────────────────────────────────────────────────

// Backoff retries an operation with exponentially growing pauses.
type Backoff struct {
	Initial  time.Duration // first pause (default 250ms)
	Max      time.Duration // pause ceiling (default 5s)
	Attempts int           // total tries including the first (default 3)
	Jitter   bool          // spread each pause by ±25%
}

// DefaultBackoff suits reconnecting a shared tunnel on the request path.
func DefaultBackoff() *Backoff {
	return &Backoff{Initial: 250 * time.Millisecond, Max: 5 * time.Second, Attempts: 3, Jitter: true}
}

// Do calls fn until it succeeds, returns a Permanent error, the attempt
// budget runs out, or ctx is done.  The last error from fn is returned
// unwrapped so callers can classify it.
func (b *Backoff) Do(ctx context.Context, fn func(attempt int) error) error {
	delay, ceiling, attempts := b.Initial, b.Max, b.Attempts
	if delay <= 0 {
		delay = 250 * time.Millisecond
	}
	if ceiling <= 0 {
		ceiling = 5 * time.Second
	}
	if attempts <= 0 {
		attempts = 3
	}

	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(attempt); err == nil {
			return nil
		}
		var p *permanent
		if errors.As(err, &p) {
			return p.err
		}
		if attempt >= attempts {
			return err
		}

		wait := delay
		if b.Jitter {
			wait = jitter(delay)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}

		if delay *= 2; delay > ceiling {
			delay = ceiling
		}
	}
}

func jitter(d time.Duration) time.Duration {
	spread := int64(d) / 2
	if spread <= 0 {
		return d
	}
	return d - time.Duration(spread/2) + time.Duration(rand.Int63n(spread))
}
