// Package limiters holds the shared counter state behind login lockout and
// resend throttling. Counters live in Redis so lockout is enforced
// consistently regardless of which instance handles a request.
package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable indicates the counter backend is unreachable.
var ErrUnavailable = errors.New("limiter backend unavailable")

// GuardConfig tunes the login-attempt guard.
type GuardConfig struct {
	MaxAttempts int
	Lockout     time.Duration
}

// GuardStatus is the outcome of recording a failed attempt.
type GuardStatus struct {
	Attempts          int
	Locked            bool
	RemainingAttempts int
}

// Guard tracks consecutive failed logins per client identity (IP or email)
// and locks the identity once the threshold is reached. The counter carries
// a TTL equal to the lockout duration, so a lapsed window resets it.
type Guard struct {
	redis  redis.UniversalClient
	config GuardConfig
}

// NewGuard creates a login-attempt guard.
func NewGuard(redisClient redis.UniversalClient, cfg GuardConfig) *Guard {
	return &Guard{redis: redisClient, config: cfg}
}

func (g *Guard) key(identity string) string {
	return "lag:" + identity
}

// RecordFailure increments the failure counter for an identity and reports
// whether the threshold has been reached.
func (g *Guard) RecordFailure(ctx context.Context, identity string) (GuardStatus, error) {
	if identity == "" {
		return GuardStatus{RemainingAttempts: g.config.MaxAttempts}, nil
	}

	count, err := g.redis.Incr(ctx, g.key(identity)).Result()
	if err != nil {
		return GuardStatus{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count == 1 {
		// TTL on first failure makes the counter a rolling window that
		// self-resets once the lockout duration lapses.
		if err := g.redis.Expire(ctx, g.key(identity), g.config.Lockout).Err(); err != nil {
			return GuardStatus{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	status := GuardStatus{
		Attempts: int(count),
		Locked:   count >= int64(g.config.MaxAttempts),
	}
	if remaining := g.config.MaxAttempts - status.Attempts; remaining > 0 {
		status.RemainingAttempts = remaining
	}
	return status, nil
}

// Clear resets the counter after a successful login.
func (g *Guard) Clear(ctx context.Context, identity string) error {
	if identity == "" {
		return nil
	}
	if err := g.redis.Del(ctx, g.key(identity)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// IsLocked reports whether the identity is currently locked out and, if so,
// how long until the lock lapses.
func (g *Guard) IsLocked(ctx context.Context, identity string) (bool, time.Duration, error) {
	if identity == "" {
		return false, 0, nil
	}

	count, err := g.redis.Get(ctx, g.key(identity)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, 0, nil
		}
		return false, 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count < int64(g.config.MaxAttempts) {
		return false, 0, nil
	}

	ttl, err := g.redis.TTL(ctx, g.key(identity)).Result()
	if err != nil {
		return true, g.config.Lockout, nil
	}
	if ttl < 0 {
		ttl = 0
	}
	return true, ttl, nil
}
