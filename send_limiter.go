package goMFA

import (
	"context"
	"errors"

	"github.com/MrEthical07/goMFA/internal/rate"
	"github.com/redis/go-redis/v9"
)

// redisSendLimiter counts sends in fixed Redis windows sized by
// CodeConfig.MaxSends and CodeConfig.SendWindow.
type redisSendLimiter struct {
	limiter *rate.Limiter
}

// NewRedisSendLimiter returns a SendLimiter over client. Keys use prefix
// and share the user hash tag of the Redis store.
func NewRedisSendLimiter(client redis.UniversalClient, prefix string, cfg CodeConfig) SendLimiter {
	return redisSendLimiter{
		limiter: rate.New(client, prefix, rate.Config{
			MaxSends: cfg.MaxSends,
			Window:   cfg.SendWindow,
		}),
	}
}

func (l redisSendLimiter) AllowSend(ctx context.Context, userID string, channel FactorKind) error {
	err := l.limiter.AllowSend(ctx, userID, string(channel))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		return ErrCodeRateLimited
	default:
		return err
	}
}
