package goMFA

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/goMFA/store/memory"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestSendLimiterThrottlesCodes(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	cfg := DefaultConfig()
	cfg.Metrics.Enabled = true
	cfg.Codes.MaxSends = 2
	cfg.Codes.SendWindow = time.Minute

	email := &testOutbox{}
	engine, err := New().
		WithConfig(cfg).
		WithStore(memory.New()).
		WithUserDirectory(testUsers{"u1": {ID: "u1", Email: "alice@example.com"}}).
		WithEmailSender(email).
		WithSendLimiter(NewRedisSendLimiter(client, "t", cfg.Codes)).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer engine.Close()
	ctx := context.Background()

	if res := engine.SetupEmail(ctx, "u1", ""); !res.OK() {
		t.Fatalf("SetupEmail: %v", res)
	}
	if res := engine.ResendCode(ctx, "u1", FactorEmail); !res.OK() {
		t.Fatalf("ResendCode: %v", res)
	}

	res := engine.ResendCode(ctx, "u1", FactorEmail)
	requireKind(t, res, KindRateLimited, ErrCodeRateLimited)
	if res.Err.Message != MessageRateLimited {
		t.Fatalf("unexpected message %q", res.Err.Message)
	}
	if email.sent != 2 {
		t.Fatalf("expected 2 deliveries, got %d", email.sent)
	}
	if n := engine.MetricsSnapshot().Counters[MetricCodeRateLimited]; n != 1 {
		t.Fatalf("expected 1 rate-limited send, got %d", n)
	}

	mr.FastForward(time.Minute + time.Second)
	if res := engine.ResendCode(ctx, "u1", FactorEmail); !res.OK() {
		t.Fatalf("send after window: %v", res)
	}
}

func TestSendLimiterBackendFailureIsUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	limiter := NewRedisSendLimiter(client, "t", CodeConfig{MaxSends: 1, SendWindow: time.Minute})
	mr.Close()

	err := limiter.AllowSend(context.Background(), "u1", FactorSMS)
	if err == nil || errors.Is(err, ErrCodeRateLimited) {
		t.Fatalf("expected a backend error, got %v", err)
	}
}
