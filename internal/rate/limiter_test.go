package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newLimiter(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, "t", cfg), mr
}

func TestAllowSendEnforcesWindow(t *testing.T) {
	l, mr := newLimiter(t, Config{MaxSends: 3, Window: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.AllowSend(ctx, "u1", "sms"); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	if err := l.AllowSend(ctx, "u1", "sms"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := l.AllowSend(ctx, "u1", "email"); err != nil {
		t.Fatalf("other channel should be independent: %v", err)
	}
	if err := l.AllowSend(ctx, "u2", "sms"); err != nil {
		t.Fatalf("other user should be independent: %v", err)
	}

	mr.FastForward(time.Minute + time.Second)
	if err := l.AllowSend(ctx, "u1", "sms"); err != nil {
		t.Fatalf("window should have reset: %v", err)
	}
}

func TestSendsAndReset(t *testing.T) {
	l, _ := newLimiter(t, Config{MaxSends: 5, Window: time.Minute})
	ctx := context.Background()

	if n, err := l.Sends(ctx, "u1", "sms"); err != nil || n != 0 {
		t.Fatalf("Sends on empty = %d, %v", n, err)
	}
	_ = l.AllowSend(ctx, "u1", "sms")
	_ = l.AllowSend(ctx, "u1", "sms")
	if n, _ := l.Sends(ctx, "u1", "sms"); n != 2 {
		t.Fatalf("expected 2 sends, got %d", n)
	}
	if err := l.Reset(ctx, "u1", "sms"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if n, _ := l.Sends(ctx, "u1", "sms"); n != 0 {
		t.Fatalf("expected 0 after reset, got %d", n)
	}
}

func TestDisabledLimiterAllowsEverything(t *testing.T) {
	l, _ := newLimiter(t, Config{})
	for i := 0; i < 20; i++ {
		if err := l.AllowSend(context.Background(), "u1", "sms"); err != nil {
			t.Fatalf("disabled limiter rejected send %d: %v", i, err)
		}
	}
}

func TestRedisFailureIsUnavailable(t *testing.T) {
	l, mr := newLimiter(t, Config{MaxSends: 1, Window: time.Minute})
	mr.Close()
	if err := l.AllowSend(context.Background(), "u1", "sms"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
