package goMFA

import (
	"errors"
	"strings"
	"time"
)

// Config is the complete engine configuration. Start from DefaultConfig
// and override fields, or load a TOML file with LoadConfigFile.
type Config struct {
	TOTP         TOTPConfig         `toml:"totp"`
	Codes        CodeConfig         `toml:"codes"`
	BackupCodes  BackupCodeConfig   `toml:"backup_codes"`
	Lockout      LockoutConfig      `toml:"lockout"`
	DeviceTrust  DeviceTrustConfig  `toml:"device_trust"`
	Audit        AuditConfig        `toml:"audit"`
	Metrics      MetricsConfig      `toml:"metrics"`
	Housekeeping HousekeepingConfig `toml:"housekeeping"`
}

/*
====================================
TOTP CONFIG
====================================
*/

// TOTPConfig controls secret generation and code validation.
type TOTPConfig struct {
	Issuer     string `toml:"issuer"`
	Digits     int    `toml:"digits"`
	Period     int    `toml:"period"` // seconds
	Skew       int    `toml:"skew"`   // accepted steps either side of now
	Algorithm  string `toml:"algorithm"`
	SecretSize int    `toml:"secret_size"` // bytes
	QRSize     int    `toml:"qr_size"`     // pixels; 0 disables the QR image
}

/*
====================================
CODE CHANNEL CONFIG
====================================
*/

// CodeConfig controls SMS/email verification codes and pending setups.
// MaxSends and SendWindow only apply when a send limiter is configured.
type CodeConfig struct {
	Digits     int           `toml:"digits"`
	TTL        time.Duration `toml:"ttl"`
	PendingTTL time.Duration `toml:"pending_ttl"`
	MaxSends   int           `toml:"max_sends"` // per user and channel; 0 disables
	SendWindow time.Duration `toml:"send_window"`
}

// BackupCodeConfig controls recovery code batches.
type BackupCodeConfig struct {
	Count  int `toml:"count"`
	Length int `toml:"length"`
}

// LockoutConfig controls the failed-attempt lockout.
type LockoutConfig struct {
	Threshold int           `toml:"threshold"`
	Window    time.Duration `toml:"window"`
}

/*
====================================
DEVICE TRUST CONFIG
====================================
*/

// DeviceTrustConfig controls remembered devices and their signed tokens.
// Keys are never read from TOML; set them in code or load them in the
// binary that builds the engine.
type DeviceTrustConfig struct {
	Enabled       bool          `toml:"enabled"`
	TokenTTL      time.Duration `toml:"token_ttl"`
	SigningMethod string        `toml:"signing_method"` // "ed25519" (default) or "hs256"
	Issuer        string        `toml:"issuer"`
	PrivateKey    []byte        `toml:"-"`
	PublicKey     []byte        `toml:"-"`
}

/*
====================================
OBSERVABILITY CONFIG
====================================
*/

type AuditConfig struct {
	Enabled    bool `toml:"enabled"`
	BufferSize int  `toml:"buffer_size"`
	DropIfFull bool `toml:"drop_if_full"`
	BatchSize  int  `toml:"batch_size"` // events per sink write
}

type MetricsConfig struct {
	Enabled                 bool `toml:"enabled"`
	EnableLatencyHistograms bool `toml:"enable_latency_histograms"`
}

// HousekeepingConfig drives the periodic purge in cmd/mfa-housekeeper.
type HousekeepingConfig struct {
	Interval time.Duration `toml:"interval"`
	Timeout  time.Duration `toml:"timeout"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the recommended settings: 30 second TOTP steps
// with one step of skew, six digit codes valid for five minutes, pending
// setups valid for thirty minutes, ten backup codes of eight characters,
// and a lockout after five failures in thirty minutes.
func DefaultConfig() Config {
	return Config{
		TOTP: TOTPConfig{
			Issuer:     "goMFA",
			Digits:     6,
			Period:     30,
			Skew:       1,
			Algorithm:  "SHA1",
			SecretSize: 20,
			QRSize:     256,
		},
		Codes: CodeConfig{
			Digits:     6,
			TTL:        5 * time.Minute,
			PendingTTL: 30 * time.Minute,
			MaxSends:   5,
			SendWindow: 15 * time.Minute,
		},
		BackupCodes: BackupCodeConfig{
			Count:  10,
			Length: 8,
		},
		Lockout: LockoutConfig{
			Threshold: 5,
			Window:    30 * time.Minute,
		},
		DeviceTrust: DeviceTrustConfig{
			Enabled:       false,
			TokenTTL:      30 * 24 * time.Hour,
			SigningMethod: "ed25519",
			Issuer:        "goMFA",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
			BatchSize:  64,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Housekeeping: HousekeepingConfig{
			Interval: 10 * time.Minute,
			Timeout:  time.Minute,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.DeviceTrust.PrivateKey = cloneBytes(cfg.DeviceTrust.PrivateKey)
	out.DeviceTrust.PublicKey = cloneBytes(cfg.DeviceTrust.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// TOTP
	if strings.TrimSpace(c.TOTP.Issuer) == "" {
		return errors.New("TOTP Issuer must not be empty")
	}
	if c.TOTP.Digits != 6 && c.TOTP.Digits != 8 {
		return errors.New("TOTP Digits must be 6 or 8")
	}
	if c.TOTP.Period <= 0 {
		return errors.New("TOTP Period must be > 0")
	}
	if c.TOTP.Skew < 0 || c.TOTP.Skew > 10 {
		return errors.New("TOTP Skew must be between 0 and 10")
	}
	switch strings.ToUpper(c.TOTP.Algorithm) {
	case "SHA1", "SHA256", "SHA512":
	default:
		return errors.New("TOTP Algorithm must be SHA1, SHA256 or SHA512")
	}
	if c.TOTP.SecretSize < 10 {
		return errors.New("TOTP SecretSize must be >= 10 bytes")
	}
	if c.TOTP.QRSize < 0 || c.TOTP.QRSize > 2048 {
		return errors.New("TOTP QRSize must be between 0 and 2048")
	}

	// Codes
	if c.Codes.Digits < 6 || c.Codes.Digits > 10 {
		return errors.New("Codes Digits must be between 6 and 10")
	}
	if c.Codes.TTL <= 0 {
		return errors.New("Codes TTL must be > 0")
	}
	if c.Codes.PendingTTL <= 0 {
		return errors.New("Codes PendingTTL must be > 0")
	}
	if c.Codes.PendingTTL < c.Codes.TTL {
		return errors.New("Codes PendingTTL must be >= Codes TTL")
	}
	if c.Codes.MaxSends < 0 {
		return errors.New("Codes MaxSends must be >= 0")
	}
	if c.Codes.MaxSends > 0 && c.Codes.SendWindow <= 0 {
		return errors.New("Codes SendWindow must be > 0 when MaxSends is set")
	}

	// Backup codes
	if c.BackupCodes.Count <= 0 || c.BackupCodes.Count > 100 {
		return errors.New("BackupCodes Count must be between 1 and 100")
	}
	if c.BackupCodes.Length < 8 || c.BackupCodes.Length > 32 {
		return errors.New("BackupCodes Length must be between 8 and 32")
	}

	// Lockout
	if c.Lockout.Threshold <= 0 {
		return errors.New("Lockout Threshold must be > 0")
	}
	if c.Lockout.Window <= 0 {
		return errors.New("Lockout Window must be > 0")
	}

	// Device trust
	if c.DeviceTrust.Enabled {
		if c.DeviceTrust.TokenTTL <= 0 {
			return errors.New("DeviceTrust TokenTTL must be > 0")
		}
		switch c.DeviceTrust.SigningMethod {
		case "ed25519":
			if len(c.DeviceTrust.PrivateKey) == 0 || len(c.DeviceTrust.PublicKey) == 0 {
				return errors.New("ed25519 requires PrivateKey and PublicKey")
			}
		case "hs256":
			if len(c.DeviceTrust.PrivateKey) < 32 {
				return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
			}
		default:
			return errors.New("unsupported DeviceTrust signing method")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}
	if c.Audit.BatchSize < 0 {
		return errors.New("Audit BatchSize must be >= 0")
	}

	// Housekeeping
	if c.Housekeeping.Interval < 0 || c.Housekeeping.Timeout < 0 {
		return errors.New("Housekeeping durations must be >= 0")
	}

	return nil
}
