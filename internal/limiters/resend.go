package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrThrottled is returned when a resend arrives inside the cool-down.
var ErrThrottled = errors.New("resend throttled")

// ResendThrottle enforces a per-email cool-down on OTP resends. It backs up
// the client-side countdown server-side so repeated resends cannot be used
// to fish for codes.
type ResendThrottle struct {
	redis    redis.UniversalClient
	cooldown time.Duration
}

// NewResendThrottle creates the throttle with the given cool-down window.
func NewResendThrottle(redisClient redis.UniversalClient, cooldown time.Duration) *ResendThrottle {
	return &ResendThrottle{redis: redisClient, cooldown: cooldown}
}

func (t *ResendThrottle) key(purpose, email string) string {
	return "ors:" + purpose + ":" + email
}

// Allow claims the cool-down slot for the email. It returns ErrThrottled
// with the remaining wait when the slot is already taken.
func (t *ResendThrottle) Allow(ctx context.Context, purpose, email string) (time.Duration, error) {
	ok, err := t.redis.SetNX(ctx, t.key(purpose, email), 1, t.cooldown).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if ok {
		return 0, nil
	}

	ttl, err := t.redis.TTL(ctx, t.key(purpose, email)).Result()
	if err != nil || ttl < 0 {
		ttl = t.cooldown
	}
	return ttl, ErrThrottled
}
