package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	goMFA "github.com/MrEthical07/goMFA"
	"github.com/MrEthical07/goMFA/store"
	"github.com/alicebob/miniredis/v2"
	"go.uber.org/zap"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestSettingsDefaults(t *testing.T) {
	s := settingsFromEnv(envMap(nil))
	if s.Store != "redis" || s.RedisAddr != "localhost:6379" {
		t.Fatalf("unexpected defaults %+v", s)
	}
	s = settingsFromEnv(envMap(map[string]string{
		"GOMFA_STORE":       "sqlite",
		"GOMFA_SQLITE_PATH": "/tmp/mfa.db",
	}))
	if s.Store != "sqlite" || s.SQLitePath != "/tmp/mfa.db" {
		t.Fatalf("unexpected settings %+v", s)
	}
}

func TestOpenStoreRejectsBadSettings(t *testing.T) {
	ctx := context.Background()
	for _, s := range []settings{
		{Store: "mongo"},
		{Store: "postgres"},
		{Store: "sqlite"},
	} {
		if _, _, err := openStore(ctx, s); err == nil {
			t.Fatalf("expected error for %+v", s)
		}
	}
}

func TestPurgeOnceAgainstRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	backend, closeStore, err := openStore(ctx, settings{Store: "redis", RedisAddr: mr.Addr(), RedisPrefix: "hk"})
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	defer closeStore()

	now := time.Now()
	seed := []store.PendingSetup{
		{UserID: "u1", Payload: store.TOTPSecret{Secret: "JBSWY3DPEHPK3PXP"}, CreatedAt: now.Add(-time.Hour), ExpiresAt: now.Add(-time.Minute)},
		{UserID: "u2", Payload: store.EmailContact{Address: "bob@example.com"}, CreatedAt: now, ExpiresAt: now.Add(time.Hour)},
	}
	for _, p := range seed {
		if err := backend.PendingSetups().Put(ctx, p); err != nil {
			t.Fatalf("seed pending: %v", err)
		}
	}
	if err := backend.FailedAttempts().Append(ctx, store.FailedAttempt{ID: "a1", UserID: "u1", At: now.Add(-2 * time.Hour)}); err != nil {
		t.Fatalf("seed attempt: %v", err)
	}

	engine, err := goMFA.New().WithStore(backend).WithUserDirectory(noUsers{}).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer engine.Close()

	report, err := purgeOnce(ctx, engine, time.Second, zap.NewNop())
	if err != nil {
		t.Fatalf("purgeOnce: %v", err)
	}
	if report.PendingSetups != 1 || report.FailedAttempts != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if _, err := backend.PendingSetups().Get(ctx, "u2", store.KindEmail, now); err != nil {
		t.Fatalf("live pending setup should survive: %v", err)
	}
}

type countingPurger struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (p *countingPurger) Purge(ctx context.Context) (goMFA.PurgeReport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if _, ok := ctx.Deadline(); !ok {
		return goMFA.PurgeReport{}, errors.New("missing deadline")
	}
	return goMFA.PurgeReport{Codes: 1}, p.err
}

func (p *countingPurger) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func TestPurgeOnceReportsErrors(t *testing.T) {
	p := &countingPurger{err: goMFA.ErrUnavailable}
	if _, err := purgeOnce(context.Background(), p, time.Second, zap.NewNop()); !errors.Is(err, goMFA.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	p := &countingPurger{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		run(ctx, p, goMFA.HousekeepingConfig{Interval: 5 * time.Millisecond, Timeout: time.Second}, zap.NewNop())
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for p.count() < 2 {
		select {
		case <-deadline:
			t.Fatal("purge did not repeat")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop after cancel")
	}
}
