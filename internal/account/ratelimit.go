package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrTooManyAttempts = errors.New("too many attempts, try again later")

// RateLimiter counts attempts per key in Redis. A nil limiter allows everything.
type RateLimiter struct {
	redis *redis.Client
}

// NewRateLimiter returns nil without a client, which disables throttling.
func NewRateLimiter(redis *redis.Client) *RateLimiter {
	if redis == nil {
		return nil
	}
	return &RateLimiter{
		redis: redis,
	}
}

func (r *RateLimiter) CheckLogin(ctx context.Context, email string) error {
	return r.check(ctx, fmt.Sprintf("login_attempts:%s", email), 5, 15*time.Minute)
}

func (r *RateLimiter) CheckRegister(ctx context.Context, email string) error {
	return r.check(ctx, fmt.Sprintf("register_attempts:%s", email), 3, time.Hour)
}

func (r *RateLimiter) ResetAttempts(ctx context.Context, email, operation string) error {
	if r == nil {
		return nil
	}
	key := fmt.Sprintf("%s_attempts:%s", operation, email)
	return r.redis.Del(ctx, key).Err()
}

func (r *RateLimiter) check(ctx context.Context, key string, limit int64, window time.Duration) error {
	if r == nil {
		return nil
	}

	count, err := r.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to count attempts: %w", err)
	}

	if count == 1 {
		if err := r.redis.Expire(ctx, key, window).Err(); err != nil {
			return fmt.Errorf("failed to set attempt window: %w", err)
		}
	}

	if count > limit {
		return ErrTooManyAttempts
	}

	return nil
}
