package goMFA

import (
	"context"
	"testing"
	"time"
)

func TestVerifyTOTPWithinOneStep(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	secret, _ := te.enableTOTP(t, "u1")

	for _, offset := range []time.Duration{-30 * time.Second, 0, 30 * time.Second} {
		if res := te.VerifyCode(ctx, "u1", FactorTOTP, te.totpCode(t, secret, offset)); !res.OK() {
			t.Fatalf("offset %s: expected success, got %v", offset, res)
		}
	}
	for _, offset := range []time.Duration{-90 * time.Second, 90 * time.Second} {
		res := te.VerifyCode(ctx, "u1", FactorTOTP, te.totpCode(t, secret, offset))
		requireKind(t, res, KindInvalidCode, ErrInvalidCode)
		if res.Err.Message != MessageInvalidCode {
			t.Fatalf("unexpected message %q", res.Err.Message)
		}
	}
}

func TestVerifyRejectsMalformedTOTP(t *testing.T) {
	te := newTestEngine(t)
	te.enableTOTP(t, "u1")
	for _, code := range []string{"", "12345", "1234567", "abcdef"} {
		requireKind(t, te.VerifyCode(context.Background(), "u1", FactorTOTP, code), KindInvalidCode, ErrInvalidCode)
	}
}

func TestLockoutAfterFiveFailures(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	secret, _ := te.enableTOTP(t, "u1")

	for i := 0; i < 5; i++ {
		requireKind(t, te.VerifyCode(ctx, "u1", FactorTOTP, "000000"), KindInvalidCode, ErrInvalidCode)
		te.clock.Advance(time.Minute)
	}

	res := te.VerifyCode(ctx, "u1", FactorTOTP, te.totpCode(t, secret, 0))
	requireKind(t, res, KindLockedOut, ErrLockedOut)
	if res.Err.Message != MessageLockedOut {
		t.Fatalf("unexpected message %q", res.Err.Message)
	}

	// Other users are unaffected.
	if n := te.failedAttempts(t, "u2"); n != 0 {
		t.Fatalf("u2 should have no failures, got %d", n)
	}

	te.clock.Advance(30 * time.Minute)
	if res := te.VerifyCode(ctx, "u1", FactorTOTP, te.totpCode(t, secret, 0)); !res.OK() {
		t.Fatalf("expected success after the window, got %v", res)
	}
	if n := te.failedAttempts(t, "u1"); n != 0 {
		t.Fatalf("success should clear failures, got %d", n)
	}
}

func TestLockoutAppliesToEnablement(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	setup := te.SetupTOTP(ctx, "u1")

	for i := 0; i < 5; i++ {
		requireKind(t, te.EnableMethod(ctx, "u1", FactorTOTP, "000000"), KindInvalidCode, ErrInvalidCode)
	}
	requireKind(t, te.EnableMethod(ctx, "u1", FactorTOTP, te.totpCode(t, setup.Value.Secret, 0)), KindLockedOut, ErrLockedOut)
}

func TestBackupCodeSingleUse(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	_, enabled := te.enableTOTP(t, "u1")
	code := enabled.BackupCodes[3]

	res := te.VerifyCode(ctx, "u1", FactorBackup, code)
	if !res.OK() {
		t.Fatalf("first use: %v", res)
	}
	if res.Value.BackupCodesRemaining != 9 {
		t.Fatalf("expected 9 remaining, got %d", res.Value.BackupCodesRemaining)
	}
	requireKind(t, te.VerifyCode(ctx, "u1", FactorBackup, code), KindInvalidCode, ErrInvalidCode)

	for i, other := range enabled.BackupCodes {
		if i == 3 || i > 5 {
			continue
		}
		if res := te.VerifyCode(ctx, "u1", FactorBackup, other); !res.OK() {
			t.Fatalf("code %d should still be valid: %v", i, res)
		}
	}
}

func TestBackupCodeIgnoresCaseAndSeparators(t *testing.T) {
	te := newTestEngine(t)
	_, enabled := te.enableTOTP(t, "u1")
	code := enabled.BackupCodes[0]
	formatted := " " + code[:4] + "-" + code[4:] + " "
	if res := te.VerifyCode(context.Background(), "u1", FactorBackup, formatted); !res.OK() {
		t.Fatalf("formatted code should verify: %v", res)
	}
}

func TestVerifyChannelCodeSingleUse(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	te.SetupSMS(ctx, "u1", "5551234567")
	if res := te.EnableMethod(ctx, "u1", FactorSMS, te.sms.code("5551234567")); !res.OK() {
		t.Fatalf("enable: %v", res)
	}

	if res := te.SendLoginCode(ctx, "u1", FactorSMS); !res.OK() {
		t.Fatalf("SendLoginCode: %v", res)
	}
	code := te.sms.code("5551234567")
	if res := te.VerifyCode(ctx, "u1", FactorSMS, code); !res.OK() {
		t.Fatalf("first use: %v", res)
	}
	requireKind(t, te.VerifyCode(ctx, "u1", FactorSMS, code), KindInvalidCode, ErrInvalidCode)
}

func TestVerifyChannelCodeExpires(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	te.SetupEmail(ctx, "u1", "")
	te.clock.Advance(5 * time.Minute)
	requireKind(t, te.EnableMethod(ctx, "u1", FactorEmail, te.email.code("alice@example.com")), KindInvalidCode, ErrInvalidCode)
}

func TestVerifyKindNotEnabledCountsAsFailure(t *testing.T) {
	te := newTestEngine(t)
	te.enableTOTP(t, "u1")
	requireKind(t, te.VerifyCode(context.Background(), "u1", FactorSMS, "123456"), KindInvalidCode, ErrInvalidCode)
	if n := te.failedAttempts(t, "u1"); n != 1 {
		t.Fatalf("expected 1 failed attempt, got %d", n)
	}
}

func TestVerifyUnknownKind(t *testing.T) {
	te := newTestEngine(t)
	requireKind(t, te.VerifyCode(context.Background(), "u1", FactorKind("push"), "123456"), KindValidation, ErrInvalidKind)
}

func TestVerifyEmitsAuditAndMetrics(t *testing.T) {
	te := newTestEngine(t)
	ctx := WithRequestContext(context.Background(), RequestContext{IP: "203.0.113.7", UserAgent: "test-agent"})
	secret, _ := te.enableTOTP(t, "u1")

	te.VerifyCode(ctx, "u1", FactorTOTP, "000000")
	te.VerifyCode(ctx, "u1", FactorTOTP, te.totpCode(t, secret, 0))
	te.Close()

	var failure, success *AuditEvent
	for done := false; !done; {
		select {
		case ev := <-te.audit.Events():
			switch {
			case ev.EventType == auditEventVerifyFailure && ev.IP != "":
				failure = &ev
			case ev.EventType == auditEventVerifySuccess && ev.IP != "":
				success = &ev
			}
		default:
			done = true
		}
	}
	if failure == nil || success == nil {
		t.Fatalf("expected verify failure and success events, got %v %v", failure, success)
	}
	if failure.Error != string(auditErrInvalidCode) || failure.Kind != "totp" || failure.UserAgent != "test-agent" {
		t.Fatalf("unexpected failure event %+v", *failure)
	}
	if !success.Success || success.UserID != "u1" {
		t.Fatalf("unexpected success event %+v", *success)
	}

	snap := te.MetricsSnapshot()
	// One success from enablement and one from the login check.
	if snap.Counters[MetricVerifySuccess] != 2 || snap.Counters[MetricVerifyFailure] != 1 {
		t.Fatalf("unexpected counters %+v", snap.Counters)
	}
	if snap.Counters[MetricMethodEnabled] != 1 || snap.Counters[MetricBackupCodesGenerated] != 1 {
		t.Fatalf("unexpected lifecycle counters %+v", snap.Counters)
	}
	var observed uint64
	for _, n := range snap.Histograms[MetricVerifyLatency] {
		observed += n
	}
	if observed != 2 {
		t.Fatalf("expected 2 latency observations, got %d", observed)
	}
}
