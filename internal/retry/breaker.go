package retry

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrOpen is wrapped by Allow while the breaker is rejecting calls.
var ErrOpen = errors.New("circuit open")

// State is the breaker's position.
type State int

const (
	StateClosed   State = iota // calls pass
	StateOpen                  // calls are rejected until the cooldown ends
	StateHalfOpen              // one probe call is let through
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Breaker counts consecutive failures.  After Threshold of them it opens
// for Cooldown; the first call after that is a probe whose outcome
// closes or re-opens it.
type Breaker struct {
	Threshold int           // default 3
	Cooldown  time.Duration // default 30s

	// OnChange is called under the breaker's lock on every transition.
	OnChange func(from, to State)

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
	now      func() time.Time
}

// Allow reports whether a call may proceed.  It returns an error
// wrapping ErrOpen while the breaker is open or a probe is in flight.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		left := b.cooldown() - b.clock().Sub(b.openedAt)
		if left > 0 {
			return fmt.Errorf("%w after %d failures, retry in %s", ErrOpen, b.failures, left.Round(time.Second))
		}
		b.transition(StateHalfOpen)
		b.probing = true
		return nil
	case StateHalfOpen:
		if b.probing {
			return fmt.Errorf("%w: probe in progress", ErrOpen)
		}
		b.probing = true
	}
	return nil
}

// Record feeds back the outcome of an allowed call.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false

	if err == nil {
		b.failures = 0
		b.transition(StateClosed)
		return
	}
	b.failures++
	if b.state == StateHalfOpen || b.failures >= b.threshold() {
		b.openedAt = b.clock()
		b.transition(StateOpen)
	}
}

// State returns the current position.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) threshold() int {
	if b.Threshold <= 0 {
		return 3
	}
	return b.Threshold
}

func (b *Breaker) cooldown() time.Duration {
	if b.Cooldown <= 0 {
		return 30 * time.Second
	}
	return b.Cooldown
}

func (b *Breaker) clock() time.Time {
	if b.now != nil {
		return b.now()
	}
	return time.Now()
}

func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.OnChange != nil {
		b.OnChange(from, to)
	}
}
