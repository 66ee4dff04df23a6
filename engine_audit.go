package goMFA

import (
	"context"
	"errors"
)

const (
	auditEventSetupRequested       = "mfa_setup_requested"
	auditEventCodeSent             = "mfa_code_sent"
	auditEventVerifySuccess        = "mfa_verify_success"
	auditEventVerifyFailure        = "mfa_verify_failure"
	auditEventLockedOut            = "mfa_locked_out"
	auditEventMethodEnabled        = "mfa_method_enabled"
	auditEventMethodDisabled       = "mfa_method_disabled"
	auditEventTeardown             = "mfa_teardown"
	auditEventBackupCodesGenerated = "mfa_backup_codes_generated"
	auditEventDeviceTrusted        = "mfa_device_trusted"
	auditEventDeviceRevoked        = "mfa_device_revoked"
	auditEventDeviceTokenRejected  = "mfa_device_token_rejected"
)

// AuditErrorCode is the stable error label written to AuditEvent.Error.
type AuditErrorCode string

const (
	auditErrInvalidCode     AuditErrorCode = "invalid_code"
	auditErrLockedOut       AuditErrorCode = "locked_out"
	auditErrInvalidPassword AuditErrorCode = "invalid_password"
	auditErrInvalidInput    AuditErrorCode = "invalid_input"
	auditErrNotFound        AuditErrorCode = "not_found"
	auditErrDeliveryFailed  AuditErrorCode = "delivery_failed"
	auditErrInvalidToken    AuditErrorCode = "invalid_token"
	auditErrNotConfigured   AuditErrorCode = "not_configured"
	auditErrRateLimited     AuditErrorCode = "rate_limited"
	auditErrUnavailable     AuditErrorCode = "backend_unavailable"
	auditErrInternal        AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	kind FactorKind,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		Kind:      string(kind),
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCode):
		return auditErrInvalidCode
	case errors.Is(err, ErrLockedOut):
		return auditErrLockedOut
	case errors.Is(err, ErrInvalidPassword):
		return auditErrInvalidPassword
	case errors.Is(err, ErrInvalidKind),
		errors.Is(err, ErrInvalidPhone),
		errors.Is(err, ErrInvalidEmail):
		return auditErrInvalidInput
	case errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrPendingSetupNotFound),
		errors.Is(err, ErrMethodNotFound),
		errors.Is(err, ErrDeviceNotFound):
		return auditErrNotFound
	case errors.Is(err, ErrCodeDelivery),
		errors.Is(err, ErrSMSSetupFailed),
		errors.Is(err, ErrEmailSetupFailed):
		return auditErrDeliveryFailed
	case errors.Is(err, ErrDeviceTokenInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrCodeRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrNotConfigured),
		errors.Is(err, ErrDeviceTrustDisabled):
		return auditErrNotConfigured
	case errors.Is(err, ErrUnavailable),
		errors.Is(err, ErrTOTPSetupFailed):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
