package goMFA

import (
	"context"
	"time"

	"github.com/MrEthical07/goMFA/internal/flows"
	"go.uber.org/zap"
)

// VerifyOptions are the optional inputs of VerifyCode.
type VerifyOptions struct {
	// RememberDevice trusts the current device after a successful check.
	RememberDevice bool
	// DeviceName is a display label for the trusted device.
	DeviceName string
}

// VerifyCode checks code against the user's enabled factor of kind, or
// against an unused backup code when kind is FactorBackup. Wrong, expired,
// reused codes and kinds the user has not enabled all fail with
// ErrInvalidCode and count towards the lockout.
func (e *Engine) VerifyCode(ctx context.Context, userID string, kind FactorKind, code string, opts ...VerifyOptions) Result[Verification] {
	if !e.ready() {
		return resultErr[Verification](ErrEngineNotReady)
	}
	var opt VerifyOptions
	if len(opts) > 0 {
		opt = opts[0]
	}

	start := time.Now()
	res, err := flows.RunVerify(ctx, flows.VerifyRequest{
		UserID:         userID,
		Kind:           kind,
		Code:           code,
		RememberDevice: opt.RememberDevice,
		DeviceName:     opt.DeviceName,
	}, e.deps)
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricVerifyLatency, time.Since(start))
	}
	if err != nil {
		return finish(e, "verify_code", userID, kind, Verification{}, err)
	}

	out := Verification{
		Kind:                 res.Kind,
		BackupCodesRemaining: res.BackupCodesRemaining,
		Device:               res.Device,
	}
	if res.DeviceErr != nil {
		// The code was accepted; only the device is not remembered.
		e.logger.Error("device trust failed", zap.String("user_id", userID), zap.Error(res.DeviceErr))
	}
	if res.Device != nil && e.tokens != nil {
		token, exp, err := e.tokens.Issue(userID, res.Device.Fingerprint)
		if err != nil {
			// The device stays trusted; only the token is missing.
			e.logger.Error("device token issue failed", zap.String("user_id", userID), zap.Error(err))
		} else {
			out.DeviceToken = token
			out.DeviceTokenExpiresAt = exp
		}
	}
	return resultOK(out)
}
