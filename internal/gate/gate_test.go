package gate

import (
	"context"
	"errors"
	"testing"
	"time"

	"folio/internal/schedule"
)

func newGate(clock *schedule.Fake) *Gate {
	return New(ExactMatch("admin123"), Options{Clock: clock})
}

func TestWrongCredentialReportsRemaining(t *testing.T) {
	g := newGate(schedule.NewFake(time.Unix(0, 0)))

	err := g.Submit(context.Background(), "nope")
	var incorrect *IncorrectError
	if !errors.As(err, &incorrect) {
		t.Fatalf("expected IncorrectError, got %v", err)
	}
	if incorrect.Remaining != 4 {
		t.Fatalf("Remaining = %d, want 4", incorrect.Remaining)
	}
	if g.State() != StateIdle || g.Credential() != "" {
		t.Fatalf("unexpected state %s", g.State())
	}
}

func TestLockoutRefusesEvenCorrectCredential(t *testing.T) {
	clock := schedule.NewFake(time.Unix(0, 0))
	g := newGate(clock)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if err := g.Submit(ctx, "wrong"); err == nil || errors.Is(err, ErrLockedOut) {
			t.Fatalf("attempt %d: unexpected %v", i+1, err)
		}
	}
	if err := g.Submit(ctx, "wrong"); !errors.Is(err, ErrLockedOut) {
		t.Fatalf("fifth failure should lock out, got %v", err)
	}
	if g.State() != StateLockedOut {
		t.Fatalf("state = %s", g.State())
	}

	if err := g.Submit(ctx, "admin123"); !errors.Is(err, ErrLockedOut) {
		t.Fatalf("sixth attempt should be refused, got %v", err)
	}
	if g.Unlocked() {
		t.Fatal("gate unlocked during lock-out")
	}

	clock.Advance(DefaultLockout - time.Second)
	if err := g.Submit(ctx, "admin123"); !errors.Is(err, ErrLockedOut) {
		t.Fatalf("still locked before cooldown ends, got %v", err)
	}
	if got := g.RetryAfter(); got != time.Second {
		t.Fatalf("RetryAfter = %s", got)
	}

	clock.Advance(time.Second)
	if g.State() != StateIdle || g.Remaining() != DefaultMaxAttempts {
		t.Fatalf("expected reset after cooldown, state %s remaining %d", g.State(), g.Remaining())
	}
	if err := g.Submit(ctx, "admin123"); err != nil {
		t.Fatalf("correct credential after cooldown: %v", err)
	}
	if g.Credential() != "admin123" {
		t.Fatalf("credential not retained")
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	g := newGate(schedule.NewFake(time.Unix(0, 0)))
	ctx := context.Background()

	_ = g.Submit(ctx, "a")
	_ = g.Submit(ctx, "b")
	if err := g.Submit(ctx, "admin123"); err != nil {
		t.Fatal(err)
	}
	g.Lock()
	if g.Remaining() != DefaultMaxAttempts {
		t.Fatalf("Remaining = %d", g.Remaining())
	}
	if g.Credential() != "" {
		t.Fatal("Lock should drop the credential")
	}
}

type failingChecker struct{}

func (failingChecker) Check(context.Context, string) (bool, error) {
	return false, errors.New("backend unavailable")
}

func TestCheckerErrorDoesNotCountAttempt(t *testing.T) {
	g := New(failingChecker{}, Options{Clock: schedule.NewFake(time.Unix(0, 0))})

	if err := g.Submit(context.Background(), "x"); err == nil {
		t.Fatal("expected error")
	}
	if g.State() != StateError {
		t.Fatalf("state = %s", g.State())
	}
	if g.Remaining() != DefaultMaxAttempts {
		t.Fatalf("checker error counted as attempt")
	}
}

func TestRestore(t *testing.T) {
	g := newGate(schedule.NewFake(time.Unix(0, 0)))
	ctx := context.Background()

	if g.Restore(ctx, "stale") {
		t.Fatal("stale credential restored")
	}
	if g.Remaining() != DefaultMaxAttempts {
		t.Fatal("failed restore counted as attempt")
	}
	if !g.Restore(ctx, "admin123") || !g.Unlocked() {
		t.Fatal("expected restore to unlock")
	}
}

func TestEmptyCandidate(t *testing.T) {
	g := newGate(schedule.NewFake(time.Unix(0, 0)))
	if err := g.Submit(context.Background(), ""); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
	if g.Remaining() != DefaultMaxAttempts {
		t.Fatal("empty submission counted")
	}
}

func TestAttemptsCarryOverToNewGate(t *testing.T) {
	clock := schedule.NewFake(time.Unix(0, 0))
	ctx := context.Background()
	first := newGate(clock)
	for i := 0; i < 2; i++ {
		_ = first.Submit(ctx, "wrong")
	}
	if got := first.Attempts(); got.Failures != 2 || !got.LockedUntil.IsZero() {
		t.Fatalf("Attempts() = %+v", got)
	}

	second := newGate(clock)
	second.RestoreAttempts(first.Attempts())
	if second.Remaining() != 3 {
		t.Fatalf("Remaining = %d, want 3", second.Remaining())
	}
	for i := 0; i < 2; i++ {
		_ = second.Submit(ctx, "wrong")
	}
	if err := second.Submit(ctx, "wrong"); !errors.Is(err, ErrLockedOut) {
		t.Fatalf("fifth failure across gates should lock out, got %v", err)
	}

	clock.Advance(10 * time.Second)
	third := newGate(clock)
	third.RestoreAttempts(second.Attempts())
	if err := third.Submit(ctx, "admin123"); !errors.Is(err, ErrLockedOut) {
		t.Fatalf("lock-out should survive, got %v", err)
	}
	if got := third.RetryAfter(); got != 20*time.Second {
		t.Fatalf("RetryAfter = %v, want 20s", got)
	}

	saved := third.Attempts()
	clock.Advance(20 * time.Second)
	fourth := newGate(clock)
	fourth.RestoreAttempts(saved)
	if fourth.Remaining() != DefaultMaxAttempts {
		t.Fatalf("expired lock-out should reset, Remaining = %d", fourth.Remaining())
	}
	if err := fourth.Submit(ctx, "admin123"); err != nil {
		t.Fatalf("Submit after expiry: %v", err)
	}
	if !fourth.Attempts().IsZero() {
		t.Fatalf("success should clear attempts, got %+v", fourth.Attempts())
	}
}

func TestRestoreAttemptsCapsDeadline(t *testing.T) {
	clock := schedule.NewFake(time.Unix(0, 0))
	g := newGate(clock)
	g.RestoreAttempts(Attempts{Failures: 99, LockedUntil: time.Unix(0, 0).Add(24 * time.Hour)})
	if got := g.RetryAfter(); got != DefaultLockout {
		t.Fatalf("RetryAfter = %v, want %v", got, DefaultLockout)
	}

	g = newGate(clock)
	g.RestoreAttempts(Attempts{Failures: 99})
	if g.Remaining() != 1 {
		t.Fatalf("Remaining = %d, want 1", g.Remaining())
	}
}
