package goMFA

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// totpManager generates and validates RFC 6238 codes with the configured
// period, skew, digit count and hash.
type totpManager struct {
	config TOTPConfig
	opts   totp.ValidateOpts
}

func newTOTPManager(cfg TOTPConfig) *totpManager {
	return &totpManager{
		config: cfg,
		opts: totp.ValidateOpts{
			Period:    uint(cfg.Period),
			Skew:      uint(cfg.Skew),
			Digits:    totpDigits(cfg.Digits),
			Algorithm: totpAlgorithm(cfg.Algorithm),
		},
	}
}

// Generate returns a fresh base32 secret (unpadded) and its otpauth URI.
func (m *totpManager) Generate(accountName string) (string, string, error) {
	if m == nil {
		return "", "", ErrEngineNotReady
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      m.config.Issuer,
		AccountName: accountName,
		Period:      m.opts.Period,
		SecretSize:  uint(m.config.SecretSize),
		Digits:      m.opts.Digits,
		Algorithm:   m.opts.Algorithm,
	})
	if err != nil {
		return "", "", err
	}
	return key.Secret(), key.URL(), nil
}

// Validate reports whether code is valid for secret within the skew window
// around at. Malformed codes and secrets are simply invalid.
func (m *totpManager) Validate(code, secret string, at time.Time) bool {
	if m == nil {
		return false
	}
	code = strings.TrimSpace(code)
	if len(code) != m.opts.Digits.Length() {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, at, m.opts)
	return err == nil && ok
}

// Code returns the code for secret at t. It is used by tests and tools
// that act as an authenticator app.
func (m *totpManager) Code(secret string, at time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, at, m.opts)
}

// qrRenderer renders provisioning URIs as square PNG data URLs.
type qrRenderer struct {
	size int
}

func (r qrRenderer) RenderQR(uri string) (string, error) {
	if r.size <= 0 {
		return "", nil
	}
	key, err := otp.NewKeyFromURL(uri)
	if err != nil {
		return "", err
	}
	img, err := key.Image(r.size, r.size)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode qr png: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func totpDigits(n int) otp.Digits {
	if n == 8 {
		return otp.DigitsEight
	}
	return otp.DigitsSix
}

func totpAlgorithm(name string) otp.Algorithm {
	switch strings.ToUpper(name) {
	case "SHA256":
		return otp.AlgorithmSHA256
	case "SHA512":
		return otp.AlgorithmSHA512
	default:
		return otp.AlgorithmSHA1
	}
}
