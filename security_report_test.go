package goMFA

import (
	"testing"
	"time"
)

func TestSecurityReportReflectsPosture(t *testing.T) {
	te := newTestEngine(t, withDeviceTokens, func(c *Config) {
		c.TOTP.Algorithm = "sha256"
		c.TOTP.Skew = 2
	})

	report := te.SecurityReport()
	if report.TOTP.Algorithm != "SHA256" {
		t.Fatalf("expected SHA256, got %q", report.TOTP.Algorithm)
	}
	if report.TOTP.Window != 150*time.Second {
		t.Fatalf("expected a 150s acceptance window, got %s", report.TOTP.Window)
	}
	if !report.LockoutActive || report.LockoutThreshold != 5 {
		t.Fatalf("unexpected lockout posture %+v", report)
	}
	if !report.BackupCodesEnabled || report.BackupCodeCount != 10 {
		t.Fatalf("unexpected backup posture %+v", report)
	}
	if !report.SMSEnabled || !report.EmailEnabled || !report.DisableNeedsPassword {
		t.Fatalf("expected channels and password check wired: %+v", report)
	}
	if report.SendLimitActive {
		t.Fatal("no send limiter was wired")
	}
	if !report.DeviceTrustEnabled || report.DeviceSigningMethod != "hs256" {
		t.Fatalf("unexpected device trust posture %+v", report)
	}
	if !report.AuditEnabled || !report.MetricsEnabled || !report.LatencyHistogramsOn {
		t.Fatalf("expected audit and metrics on: %+v", report)
	}
}

func TestSecurityReportNilEngine(t *testing.T) {
	var e *Engine
	if r := e.SecurityReport(); r.LockoutActive || r.TOTP.Digits != 0 {
		t.Fatalf("expected zero report, got %+v", r)
	}
}
