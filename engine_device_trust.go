package goMFA

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/goMFA/internal/flows"
)

// TrustDevice remembers the current device for userID without a code
// check. Callers use it right after their own successful challenge; use
// VerifyOptions.RememberDevice to do both in one call.
func (e *Engine) TrustDevice(ctx context.Context, userID, name string) Result[DeviceTrust] {
	if !e.ready() {
		return resultErr[DeviceTrust](ErrEngineNotReady)
	}
	device, err := flows.RunTrustDevice(ctx, userID, name, e.deps)
	if err != nil {
		return finish(e, "trust_device", userID, "", DeviceTrust{}, err)
	}

	out := DeviceTrust{Device: device}
	if e.tokens != nil {
		token, exp, err := e.tokens.Issue(userID, device.Fingerprint)
		if err != nil {
			return finish(e, "trust_device", userID, "", DeviceTrust{}, fmt.Errorf("%w: %v", ErrUnavailable, err))
		}
		out.Token = token
		out.ExpiresAt = exp
	}
	return resultOK(out)
}

// CheckDeviceTrust validates a device token issued by VerifyCode or
// TrustDevice. The token must be signed by this engine, unexpired, issued
// to userID, and its device must still be trusted.
func (e *Engine) CheckDeviceTrust(ctx context.Context, userID, token string) Result[DeviceTrust] {
	if !e.ready() {
		return resultErr[DeviceTrust](ErrEngineNotReady)
	}
	if e.tokens == nil {
		return finish(e, "check_device_trust", userID, "", DeviceTrust{}, ErrDeviceTrustDisabled)
	}

	claims, err := e.tokens.Parse(token)
	if err == nil && claims.Subject != userID {
		err = errors.New("subject mismatch")
	}
	if err != nil {
		return e.rejectDeviceToken(ctx, userID, err)
	}

	device, err := flows.RunCheckDevice(ctx, userID, claims.Fingerprint, e.deps)
	if err != nil {
		if errors.Is(err, ErrDeviceNotFound) {
			return e.rejectDeviceToken(ctx, userID, err)
		}
		return finish(e, "check_device_trust", userID, "", DeviceTrust{}, err)
	}

	out := DeviceTrust{Device: device, Token: token}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return resultOK(out)
}

func (e *Engine) rejectDeviceToken(ctx context.Context, userID string, cause error) Result[DeviceTrust] {
	e.metricInc(MetricDeviceTokenRejected)
	e.emitAudit(ctx, auditEventDeviceTokenRejected, false, userID, "", ErrDeviceTokenInvalid, nil)
	return finish(e, "check_device_trust", userID, "", DeviceTrust{}, fmt.Errorf("%w: %v", ErrDeviceTokenInvalid, cause))
}

// RevokeDevice stops trusting one device. Tokens issued for it fail
// CheckDeviceTrust from then on.
func (e *Engine) RevokeDevice(ctx context.Context, userID, fingerprint string) Result[struct{}] {
	if !e.ready() {
		return resultErr[struct{}](ErrEngineNotReady)
	}
	err := flows.RunRevokeDevice(ctx, userID, fingerprint, e.deps)
	return finish(e, "revoke_device", userID, "", struct{}{}, err)
}
