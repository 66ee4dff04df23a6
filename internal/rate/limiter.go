package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config bounds how many codes one user may request per channel within a
// window. MaxSends <= 0 disables the limit.
type Config struct {
	MaxSends int
	Window   time.Duration
}

// Limiter counts code sends per (user, channel) in Redis.
type Limiter struct {
	redis  redis.UniversalClient
	prefix string
	config Config
}

// New creates a Limiter. An empty prefix defaults to "mfa".
func New(client redis.UniversalClient, prefix string, cfg Config) *Limiter {
	if prefix == "" {
		prefix = "mfa"
	}
	return &Limiter{
		redis:  client,
		prefix: prefix,
		config: cfg,
	}
}

// AllowSend records one send and returns ErrRateLimited once the count
// for the current window exceeds MaxSends.
func (l *Limiter) AllowSend(ctx context.Context, userID, channel string) error {
	if l == nil || l.config.MaxSends <= 0 {
		return nil
	}
	count, err := l.incrementWithTTL(ctx, l.sendKey(userID, channel), l.config.Window)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxSends) {
		return ErrRateLimited
	}
	return nil
}

// Sends returns the count in the current window. Missing keys count as
// zero.
func (l *Limiter) Sends(ctx context.Context, userID, channel string) (int, error) {
	count, err := l.redis.Get(ctx, l.sendKey(userID, channel)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

// Reset clears the counter, for example after an operator unblocks a user.
func (l *Limiter) Reset(ctx context.Context, userID, channel string) error {
	if err := l.redis.Del(ctx, l.sendKey(userID, channel)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed window: only the first hit sets the expiry.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
