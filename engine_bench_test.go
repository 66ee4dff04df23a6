package goMFA

import (
	"context"
	"testing"
	"time"

	"github.com/MrEthical07/goMFA/store/memory"
)

func BenchmarkMetricsIncParallel(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			m.Inc(MetricVerifySuccess)
		}
	})
}

func BenchmarkMetricsObserveLatencyParallel(b *testing.B) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})
	d := 3 * time.Millisecond
	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			m.Observe(MetricVerifyLatency, d)
		}
	})
}

func BenchmarkVerifyTOTP(b *testing.B) {
	clock := &testClock{t: testStart}
	engine, err := New().
		WithStore(memory.New()).
		WithUserDirectory(testUsers{"u1": {ID: "u1", Email: "alice@example.com"}}).
		WithClock(clock.Now).
		Build()
	if err != nil {
		b.Fatalf("Build: %v", err)
	}
	defer engine.Close()

	ctx := context.Background()
	setup := engine.SetupTOTP(ctx, "u1")
	code, err := engine.totp.Code(setup.Value.Secret, clock.Now())
	if err != nil {
		b.Fatal(err)
	}
	if res := engine.EnableMethod(ctx, "u1", FactorTOTP, code); !res.OK() {
		b.Fatalf("EnableMethod: %v", res)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if res := engine.VerifyCode(ctx, "u1", FactorTOTP, code); !res.OK() {
			b.Fatalf("VerifyCode: %v", res)
		}
	}
}
