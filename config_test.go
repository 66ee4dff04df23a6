package goMFA

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{"totp 8 digits", func(c *Config) { c.TOTP.Digits = 8 }, true},
		{"totp 7 digits", func(c *Config) { c.TOTP.Digits = 7 }, false},
		{"totp blank issuer", func(c *Config) { c.TOTP.Issuer = "  " }, false},
		{"totp sha512", func(c *Config) { c.TOTP.Algorithm = "sha512" }, true},
		{"totp md5", func(c *Config) { c.TOTP.Algorithm = "MD5" }, false},
		{"totp short secret", func(c *Config) { c.TOTP.SecretSize = 8 }, false},
		{"totp qr disabled", func(c *Config) { c.TOTP.QRSize = 0 }, true},
		{"code ttl zero", func(c *Config) { c.Codes.TTL = 0 }, false},
		{"pending shorter than code", func(c *Config) { c.Codes.PendingTTL = time.Minute }, false},
		{"send limit disabled", func(c *Config) { c.Codes.MaxSends = 0; c.Codes.SendWindow = 0 }, true},
		{"send limit negative", func(c *Config) { c.Codes.MaxSends = -1 }, false},
		{"send limit without window", func(c *Config) { c.Codes.SendWindow = 0 }, false},
		{"backup count zero", func(c *Config) { c.BackupCodes.Count = 0 }, false},
		{"backup length short", func(c *Config) { c.BackupCodes.Length = 6 }, false},
		{"lockout threshold zero", func(c *Config) { c.Lockout.Threshold = 0 }, false},
		{"lockout window zero", func(c *Config) { c.Lockout.Window = 0 }, false},
		{"device trust without keys", func(c *Config) { c.DeviceTrust.Enabled = true }, false},
		{"device trust hs256 short key", func(c *Config) {
			c.DeviceTrust.Enabled = true
			c.DeviceTrust.SigningMethod = "hs256"
			c.DeviceTrust.PrivateKey = []byte("short")
		}, false},
		{"device trust hs256", func(c *Config) {
			c.DeviceTrust.Enabled = true
			c.DeviceTrust.SigningMethod = "hs256"
			c.DeviceTrust.PrivateKey = []byte(strings.Repeat("k", 32))
		}, true},
		{"device trust rs256", func(c *Config) {
			c.DeviceTrust.Enabled = true
			c.DeviceTrust.SigningMethod = "rs256"
		}, false},
		{"audit zero buffer", func(c *Config) {
			c.Audit.Enabled = true
			c.Audit.BufferSize = 0
		}, false},
		{"audit negative batch", func(c *Config) { c.Audit.BatchSize = -1 }, false},
		{"housekeeping negative", func(c *Config) { c.Housekeeping.Interval = -time.Second }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantValid && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tt.wantValid && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestWithConfigCopiesKeys(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DeviceTrust.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	b := New().WithConfig(cfg)
	cfg.DeviceTrust.PrivateKey[0] = 'X'
	if b.config.DeviceTrust.PrivateKey[0] != '0' {
		t.Fatal("builder must not alias caller key material")
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mfa.toml")
	data := `
[totp]
issuer = "Acme"
digits = 8

[codes]
ttl = "10m"

[lockout]
threshold = 3
window = "15m"

[device_trust]
enabled = true
token_ttl = "168h"
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}
	if cfg.TOTP.Issuer != "Acme" || cfg.TOTP.Digits != 8 || cfg.TOTP.Period != 30 {
		t.Fatalf("unexpected totp section %+v", cfg.TOTP)
	}
	if cfg.Codes.TTL != 10*time.Minute || cfg.Codes.PendingTTL != 30*time.Minute {
		t.Fatalf("unexpected codes section %+v", cfg.Codes)
	}
	if cfg.Lockout.Threshold != 3 || cfg.Lockout.Window != 15*time.Minute {
		t.Fatalf("unexpected lockout section %+v", cfg.Lockout)
	}
	if !cfg.DeviceTrust.Enabled || cfg.DeviceTrust.TokenTTL != 7*24*time.Hour {
		t.Fatalf("unexpected device trust section %+v", cfg.DeviceTrust)
	}
}

func TestLoadConfigFileRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mfa.toml")
	if err := os.WriteFile(path, []byte("[lockout]\nthresold = 3\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfigFile(path); err == nil || !strings.Contains(err.Error(), "thresold") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}
