package goMFA

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/goMFA/store/memory"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func withDeviceTokens(c *Config) {
	c.DeviceTrust.Enabled = true
	c.DeviceTrust.SigningMethod = "hs256"
	c.DeviceTrust.PrivateKey = []byte(strings.Repeat("k", 32))
}

func TestRememberDeviceIssuesToken(t *testing.T) {
	te := newTestEngine(t, withDeviceTokens)
	ctx := context.Background()
	secret, _ := te.enableTOTP(t, "u1")

	res := te.VerifyCode(ctx, "u1", FactorTOTP, te.totpCode(t, secret, 0), VerifyOptions{RememberDevice: true, DeviceName: "work laptop"})
	if !res.OK() {
		t.Fatalf("VerifyCode: %v", res)
	}
	if res.Value.Device == nil || res.Value.DeviceToken == "" {
		t.Fatalf("expected device and token, got %+v", res.Value)
	}
	if res.Value.Device.Name != "work laptop" {
		t.Fatalf("unexpected device name %q", res.Value.Device.Name)
	}
	if want := testStart.Add(30 * 24 * time.Hour); !res.Value.DeviceTokenExpiresAt.Equal(want) {
		t.Fatalf("expected expiry %s, got %s", want, res.Value.DeviceTokenExpiresAt)
	}

	check := te.CheckDeviceTrust(ctx, "u1", res.Value.DeviceToken)
	if !check.OK() {
		t.Fatalf("CheckDeviceTrust: %v", check)
	}
	if check.Value.Device.Fingerprint != res.Value.Device.Fingerprint {
		t.Fatalf("fingerprint mismatch")
	}

	status := te.GetStatus(ctx, "u1").Value
	if len(status.TrustedDevices) != 1 {
		t.Fatalf("expected 1 trusted device, got %d", len(status.TrustedDevices))
	}
}

func TestDeviceTokenRejectedForOtherUser(t *testing.T) {
	te := newTestEngine(t, withDeviceTokens)
	trust := te.TrustDevice(context.Background(), "u1", "phone")
	if !trust.OK() || trust.Value.Token == "" {
		t.Fatalf("TrustDevice: %v", trust)
	}
	requireKind(t, te.CheckDeviceTrust(context.Background(), "u2", trust.Value.Token), KindInvalidCode, ErrDeviceTokenInvalid)
	if got := te.MetricsSnapshot().Counters[MetricDeviceTokenRejected]; got != 1 {
		t.Fatalf("expected 1 rejected token, got %d", got)
	}
}

func TestRevokedDeviceTokenIsInvalid(t *testing.T) {
	te := newTestEngine(t, withDeviceTokens)
	ctx := context.Background()
	trust := te.TrustDevice(ctx, "u1", "phone")
	if !trust.OK() {
		t.Fatalf("TrustDevice: %v", trust)
	}

	if res := te.RevokeDevice(ctx, "u1", trust.Value.Device.Fingerprint); !res.OK() {
		t.Fatalf("RevokeDevice: %v", res)
	}
	requireKind(t, te.CheckDeviceTrust(ctx, "u1", trust.Value.Token), KindInvalidCode, ErrDeviceTokenInvalid)
	requireKind(t, te.RevokeDevice(ctx, "u1", trust.Value.Device.Fingerprint), KindNotFound, ErrDeviceNotFound)
}

func TestDeviceTokenExpires(t *testing.T) {
	te := newTestEngine(t, withDeviceTokens)
	trust := te.TrustDevice(context.Background(), "u1", "phone")
	te.clock.Advance(31 * 24 * time.Hour)
	requireKind(t, te.CheckDeviceTrust(context.Background(), "u1", trust.Value.Token), KindInvalidCode, ErrDeviceTokenInvalid)
}

func TestDeviceTokensDisabled(t *testing.T) {
	te := newTestEngine(t)
	trust := te.TrustDevice(context.Background(), "u1", "phone")
	if !trust.OK() || trust.Value.Token != "" {
		t.Fatalf("expected trusted device without token, got %v", trust)
	}
	requireKind(t, te.CheckDeviceTrust(context.Background(), "u1", "anything"), KindConfig, ErrDeviceTrustDisabled)
}

type brokenFingerprints struct{}

func (brokenFingerprints) Fingerprint(context.Context) (string, error) {
	return "", errors.New("no request in context")
}

func TestRememberDeviceFailureKeepsVerification(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	st := memory.New()
	clock := &testClock{t: testStart}
	engine, err := New().
		WithStore(st).
		WithUserDirectory(testUsers{"u1": {ID: "u1", Email: "alice@example.com"}}).
		WithFingerprintSource(brokenFingerprints{}).
		WithLogger(zap.New(core)).
		WithClock(clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)
	ctx := context.Background()

	setup := engine.SetupTOTP(ctx, "u1")
	if !setup.OK() {
		t.Fatalf("SetupTOTP: %v", setup)
	}
	code, err := engine.totp.Code(setup.Value.Secret, clock.Now())
	if err != nil {
		t.Fatalf("totp code: %v", err)
	}
	enabled := engine.EnableMethod(ctx, "u1", FactorTOTP, code)
	if !enabled.OK() {
		t.Fatalf("EnableMethod: %v", enabled)
	}

	res := engine.VerifyCode(ctx, "u1", FactorBackup, enabled.Value.BackupCodes[0], VerifyOptions{RememberDevice: true})
	if !res.OK() {
		t.Fatalf("verification must survive a device failure: %v", res)
	}
	if res.Value.Device != nil || res.Value.DeviceToken != "" {
		t.Fatalf("expected no device, got %+v", res.Value)
	}
	if logs.FilterMessage("device trust failed").Len() != 1 {
		t.Fatalf("expected one device trust failure log, got %v", logs.All())
	}
	if n, _ := st.BackupCodes().CountUnused(ctx, "u1"); n != 9 {
		t.Fatalf("code must stay consumed, %d unused", n)
	}
}
