// Package gate guards edit mode behind a shared secret with a timed lockout
// after repeated failures.
package gate

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"
	"time"

	"folio/internal/schedule"
)

const (
	DefaultMaxAttempts = 5
	DefaultLockout     = 30 * time.Second
)

type State string

const (
	StateIdle      State = "idle"
	StateChecking  State = "checking"
	StateUnlocked  State = "unlocked"
	StateLockedOut State = "locked-out"
	StateError     State = "error"
)

var (
	ErrLockedOut = errors.New("too many failed attempts, try again later")
	ErrEmpty     = errors.New("credential is empty")
)

// IncorrectError is returned for a wrong credential while attempts remain.
type IncorrectError struct {
	Remaining int
}

func (e *IncorrectError) Error() string {
	return fmt.Sprintf("incorrect password, %d attempts remaining", e.Remaining)
}

// Checker decides whether a candidate credential is valid.
type Checker interface {
	Check(ctx context.Context, candidate string) (bool, error)
}

// ExactMatch accepts exactly one value, compared in constant time.
type ExactMatch string

func (m ExactMatch) Check(_ context.Context, candidate string) (bool, error) {
	if m == "" {
		return false, errors.New("no editor password configured")
	}
	return subtle.ConstantTimeCompare([]byte(m), []byte(candidate)) == 1, nil
}

type Options struct {
	Clock       schedule.Clock
	MaxAttempts int
	Lockout     time.Duration
}

type Gate struct {
	checker     Checker
	clock       schedule.Clock
	maxAttempts int
	lockout     time.Duration

	mu          sync.Mutex
	state       State
	failures    int
	lockedUntil time.Time
	credential  string
	lastErr     error
}

func New(checker Checker, opts Options) *Gate {
	if opts.Clock == nil {
		opts.Clock = schedule.Real()
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Lockout <= 0 {
		opts.Lockout = DefaultLockout
	}
	return &Gate{
		checker:     checker,
		clock:       opts.Clock,
		maxAttempts: opts.MaxAttempts,
		lockout:     opts.Lockout,
		state:       StateIdle,
	}
}

// Submit checks candidate. During a lock-out every submission is refused
// with ErrLockedOut; a wrong credential returns *IncorrectError, and the
// failure that exhausts the attempts starts the lock-out.
func (g *Gate) Submit(ctx context.Context, candidate string) error {
	g.mu.Lock()
	g.expireLocked()
	if g.state == StateLockedOut {
		g.mu.Unlock()
		return ErrLockedOut
	}
	if candidate == "" {
		g.mu.Unlock()
		return ErrEmpty
	}
	g.state = StateChecking
	g.mu.Unlock()

	ok, err := g.checker.Check(ctx, candidate)

	g.mu.Lock()
	defer g.mu.Unlock()
	if err != nil {
		g.state = StateError
		g.lastErr = err
		return fmt.Errorf("check credential: %w", err)
	}
	g.lastErr = nil
	if ok {
		g.state = StateUnlocked
		g.failures = 0
		g.credential = candidate
		return nil
	}

	g.failures++
	if g.failures >= g.maxAttempts {
		g.state = StateLockedOut
		g.lockedUntil = g.clock.Now().Add(g.lockout)
		return ErrLockedOut
	}
	g.state = StateIdle
	return &IncorrectError{Remaining: g.maxAttempts - g.failures}
}

// Restore re-admits a previously accepted credential without counting a
// failure when it no longer matches.
func (g *Gate) Restore(ctx context.Context, credential string) bool {
	if credential == "" {
		return false
	}
	ok, err := g.checker.Check(ctx, credential)
	if err != nil || !ok {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.expireLocked()
	if g.state == StateLockedOut {
		return false
	}
	g.state = StateUnlocked
	g.failures = 0
	g.credential = credential
	return true
}

// Lock drops the held credential and returns to idle.
func (g *Gate) Lock() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == StateLockedOut {
		return
	}
	g.state = StateIdle
	g.credential = ""
}

func (g *Gate) expireLocked() {
	if g.state == StateLockedOut && !g.clock.Now().Before(g.lockedUntil) {
		g.state = StateIdle
		g.failures = 0
		g.lockedUntil = time.Time{}
	}
}

func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.expireLocked()
	return g.state
}

func (g *Gate) Unlocked() bool {
	return g.State() == StateUnlocked
}

// Credential is the accepted credential, empty unless unlocked.
func (g *Gate) Credential() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StateUnlocked {
		return ""
	}
	return g.credential
}

// Remaining is the number of attempts left before a lock-out.
func (g *Gate) Remaining() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.expireLocked()
	if g.state == StateLockedOut {
		return 0
	}
	return g.maxAttempts - g.failures
}

// RetryAfter is how long the current lock-out still lasts.
func (g *Gate) RetryAfter() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.expireLocked()
	if g.state != StateLockedOut {
		return 0
	}
	return g.lockedUntil.Sub(g.clock.Now())
}

func (g *Gate) LastError() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastErr
}

// Attempts is the failure bookkeeping a gate can carry across processes.
type Attempts struct {
	Failures    int       `json:"failures"`
	LockedUntil time.Time `json:"lockedUntil,omitzero"`
}

// IsZero reports whether there is nothing worth keeping.
func (a Attempts) IsZero() bool {
	return a.Failures == 0 && a.LockedUntil.IsZero()
}

// Attempts returns the current failure count and lock-out deadline.
func (g *Gate) Attempts() Attempts {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.expireLocked()
	if g.state == StateLockedOut {
		return Attempts{Failures: g.failures, LockedUntil: g.lockedUntil}
	}
	return Attempts{Failures: g.failures}
}

// RestoreAttempts re-applies bookkeeping saved by an earlier process. A
// deadline still in the future locks the gate, capped at one lock-out from
// now; an unlocked gate ignores it.
func (g *Gate) RestoreAttempts(a Attempts) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == StateUnlocked {
		return
	}
	now := g.clock.Now()
	switch {
	case a.LockedUntil.After(now):
		g.state = StateLockedOut
		g.failures = g.maxAttempts
		g.lockedUntil = a.LockedUntil
		if limit := now.Add(g.lockout); g.lockedUntil.After(limit) {
			g.lockedUntil = limit
		}
	case !a.LockedUntil.IsZero():
		g.failures = 0
	default:
		g.failures = min(max(a.Failures, 0), g.maxAttempts-1)
	}
}
