package goMFA

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"
)

// RFC 6238 appendix B, SHA1 secret "12345678901234567890".
const rfcSecret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

func TestTOTPRFCVectors(t *testing.T) {
	cfg := DefaultConfig().TOTP
	cfg.Digits = 8
	cfg.Skew = 0
	m := newTOTPManager(cfg)

	vectors := []struct {
		unix int64
		code string
	}{
		{59, "94287082"},
		{1111111109, "07081804"},
		{1111111111, "14050471"},
		{1234567890, "89005924"},
		{2000000000, "69279037"},
	}
	for _, v := range vectors {
		at := time.Unix(v.unix, 0).UTC()
		got, err := m.Code(rfcSecret, at)
		if err != nil {
			t.Fatalf("Code(%d): %v", v.unix, err)
		}
		if got != v.code {
			t.Fatalf("at %d expected %s, got %s", v.unix, v.code, got)
		}
		if !m.Validate(v.code, rfcSecret, at) {
			t.Fatalf("at %d expected %s to validate", v.unix, v.code)
		}
	}
}

func TestTOTPSkewWindow(t *testing.T) {
	m := newTOTPManager(DefaultConfig().TOTP)
	at := time.Unix(1_700_000_010, 0)
	code, err := m.Code(rfcSecret, at)
	if err != nil {
		t.Fatal(err)
	}

	if !m.Validate(code, rfcSecret, at.Add(30*time.Second)) {
		t.Fatal("next step should accept the previous code")
	}
	if !m.Validate(code, rfcSecret, at.Add(-30*time.Second)) {
		t.Fatal("previous step should accept the next code")
	}
	if m.Validate(code, rfcSecret, at.Add(90*time.Second)) {
		t.Fatal("code three steps old must be rejected")
	}
	if m.Validate(code[:5], rfcSecret, at) {
		t.Fatal("short code must be rejected")
	}
}

func TestTOTPGenerateProducesUsableSecret(t *testing.T) {
	m := newTOTPManager(DefaultConfig().TOTP)
	secret, uri, err := m.Generate("alice@example.com")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(secret) != 32 {
		t.Fatalf("expected 32 base32 chars for 20 bytes, got %d", len(secret))
	}
	for _, want := range []string{"otpauth://totp/", "issuer=goMFA", "secret=" + secret} {
		if !strings.Contains(uri, want) {
			t.Fatalf("uri %q missing %q", uri, want)
		}
	}

	now := time.Now()
	code, err := m.Code(secret, now)
	if err != nil {
		t.Fatal(err)
	}
	if !m.Validate(code, secret, now) {
		t.Fatal("generated secret should validate its own code")
	}
}

func TestQRRendererProducesPNG(t *testing.T) {
	m := newTOTPManager(DefaultConfig().TOTP)
	_, uri, err := m.Generate("alice@example.com")
	if err != nil {
		t.Fatal(err)
	}

	out, err := qrRenderer{size: 128}.RenderQR(uri)
	if err != nil {
		t.Fatalf("RenderQR: %v", err)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(out, "data:image/png;base64,"))
	if err != nil {
		t.Fatalf("decode data url: %v", err)
	}
	if len(raw) < 8 || string(raw[1:4]) != "PNG" {
		t.Fatal("expected PNG signature")
	}

	if out, err := (qrRenderer{}).RenderQR(uri); err != nil || out != "" {
		t.Fatalf("size 0 should disable rendering, got %q %v", out, err)
	}
}
