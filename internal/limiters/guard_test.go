package limiters

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestGuardLocksAtThreshold(t *testing.T) {
	_, rdb := newTestRedis(t)
	g := NewGuard(rdb, GuardConfig{MaxAttempts: 5, Lockout: 15 * time.Minute})
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		status, err := g.RecordFailure(ctx, "1.2.3.4")
		if err != nil {
			t.Fatalf("RecordFailure %d failed: %v", i, err)
		}
		if status.Locked {
			t.Fatalf("attempt %d: locked before threshold", i)
		}
		if status.RemainingAttempts != 5-i {
			t.Fatalf("attempt %d: expected %d remaining, got %d", i, 5-i, status.RemainingAttempts)
		}
	}

	status, err := g.RecordFailure(ctx, "1.2.3.4")
	if err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	if !status.Locked || status.Attempts != 5 || status.RemainingAttempts != 0 {
		t.Fatalf("attempt 5: expected lock, got %+v", status)
	}

	locked, remaining, err := g.IsLocked(ctx, "1.2.3.4")
	if err != nil {
		t.Fatalf("IsLocked failed: %v", err)
	}
	if !locked {
		t.Fatal("expected identity to be locked")
	}
	if remaining <= 0 || remaining > 15*time.Minute {
		t.Fatalf("unexpected remaining lockout: %v", remaining)
	}
}

func TestGuardLockLapsesWithWindow(t *testing.T) {
	mr, rdb := newTestRedis(t)
	g := NewGuard(rdb, GuardConfig{MaxAttempts: 5, Lockout: 15 * time.Minute})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := g.RecordFailure(ctx, "user@x.com"); err != nil {
			t.Fatalf("RecordFailure failed: %v", err)
		}
	}

	mr.FastForward(15*time.Minute + time.Second)

	locked, _, err := g.IsLocked(ctx, "user@x.com")
	if err != nil {
		t.Fatalf("IsLocked failed: %v", err)
	}
	if locked {
		t.Fatal("lock must lapse once the window elapses")
	}

	// Attempt 7 is evaluated normally: the counter starts over.
	status, err := g.RecordFailure(ctx, "user@x.com")
	if err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	if status.Attempts != 1 || status.Locked {
		t.Fatalf("expected fresh counter after lapse, got %+v", status)
	}
}

func TestGuardClearOnSuccess(t *testing.T) {
	_, rdb := newTestRedis(t)
	g := NewGuard(rdb, GuardConfig{MaxAttempts: 5, Lockout: 15 * time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := g.RecordFailure(ctx, "id"); err != nil {
			t.Fatalf("RecordFailure failed: %v", err)
		}
	}
	if err := g.Clear(ctx, "id"); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	status, err := g.RecordFailure(ctx, "id")
	if err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	if status.Attempts != 1 {
		t.Fatalf("expected counter reset by Clear, got %+v", status)
	}
}

func TestGuardEmptyIdentityNoOp(t *testing.T) {
	_, rdb := newTestRedis(t)
	g := NewGuard(rdb, GuardConfig{MaxAttempts: 5, Lockout: time.Minute})
	ctx := context.Background()

	status, err := g.RecordFailure(ctx, "")
	if err != nil || status.Locked {
		t.Fatalf("empty identity must be a no-op, got %+v err %v", status, err)
	}
	locked, _, err := g.IsLocked(ctx, "")
	if err != nil || locked {
		t.Fatalf("empty identity must never be locked")
	}
}

func TestResendThrottleCooldown(t *testing.T) {
	mr, rdb := newTestRedis(t)
	th := NewResendThrottle(rdb, 60*time.Second)
	ctx := context.Background()

	wait, err := th.Allow(ctx, "verify", "a@b.com")
	if err != nil || wait != 0 {
		t.Fatalf("first resend must be allowed, got wait=%v err=%v", wait, err)
	}

	wait, err = th.Allow(ctx, "verify", "a@b.com")
	if !errors.Is(err, ErrThrottled) {
		t.Fatalf("second resend inside cooldown must throttle, got %v", err)
	}
	if wait <= 0 || wait > 60*time.Second {
		t.Fatalf("unexpected remaining cooldown: %v", wait)
	}

	// Different purpose and different email are independent slots.
	if _, err := th.Allow(ctx, "2fa", "a@b.com"); err != nil {
		t.Fatalf("different purpose must not share the slot: %v", err)
	}
	if _, err := th.Allow(ctx, "verify", "c@d.com"); err != nil {
		t.Fatalf("different email must not share the slot: %v", err)
	}

	mr.FastForward(61 * time.Second)
	if _, err := th.Allow(ctx, "verify", "a@b.com"); err != nil {
		t.Fatalf("resend after cooldown must be allowed: %v", err)
	}
}
