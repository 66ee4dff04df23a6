package goMFA

import (
	"context"

	"github.com/MrEthical07/goMFA/internal/flows"
)

// SetupTOTP starts TOTP enrollment. The returned secret stays pending
// until EnableMethod confirms a code generated from it.
func (e *Engine) SetupTOTP(ctx context.Context, userID string) Result[TOTPSetup] {
	if !e.ready() {
		return resultErr[TOTPSetup](ErrEngineNotReady)
	}
	setup, err := flows.RunSetupTOTP(ctx, userID, e.deps)
	return finish(e, "setup_totp", userID, FactorTOTP, TOTPSetup{
		Secret: setup.Secret,
		URI:    setup.URI,
		QRCode: setup.QRCode,
	}, err)
}

// SetupSMS starts SMS enrollment for phone and sends a confirmation code.
// The phone must have 10 to 15 digits once separators are removed.
func (e *Engine) SetupSMS(ctx context.Context, userID, phone string) Result[SMSSetup] {
	if !e.ready() {
		return resultErr[SMSSetup](ErrEngineNotReady)
	}
	masked, err := flows.RunSetupCodeChannel(ctx, userID, FactorSMS, phone, e.deps)
	return finish(e, "setup_sms", userID, FactorSMS, SMSSetup{MaskedPhone: masked}, err)
}

// SetupEmail starts email enrollment and sends a confirmation code. An
// empty address falls back to the user's account email.
func (e *Engine) SetupEmail(ctx context.Context, userID, address string) Result[EmailSetup] {
	if !e.ready() {
		return resultErr[EmailSetup](ErrEngineNotReady)
	}
	masked, err := flows.RunSetupCodeChannel(ctx, userID, FactorEmail, address, e.deps)
	return finish(e, "setup_email", userID, FactorEmail, EmailSetup{MaskedEmail: masked}, err)
}

// ResendCode sends a fresh code for an enabled or pending SMS/email
// method. Earlier codes for the channel stop being valid.
func (e *Engine) ResendCode(ctx context.Context, userID string, channel FactorKind) Result[CodeDispatch] {
	if !e.ready() {
		return resultErr[CodeDispatch](ErrEngineNotReady)
	}
	masked, err := flows.RunSendCode(ctx, userID, channel, e.deps)
	return finish(e, "resend_code", userID, channel, CodeDispatch{Kind: channel, Destination: masked}, err)
}

// SendLoginCode sends a login challenge over an enabled SMS/email method.
func (e *Engine) SendLoginCode(ctx context.Context, userID string, channel FactorKind) Result[CodeDispatch] {
	if !e.ready() {
		return resultErr[CodeDispatch](ErrEngineNotReady)
	}
	masked, err := flows.RunSendLoginCode(ctx, userID, channel, e.deps)
	return finish(e, "send_login_code", userID, channel, CodeDispatch{Kind: channel, Destination: masked}, err)
}
