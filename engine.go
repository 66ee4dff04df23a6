package goMFA

import (
	"context"
	"time"

	"github.com/MrEthical07/goMFA/devicetoken"
	internalaudit "github.com/MrEthical07/goMFA/internal/audit"
	"github.com/MrEthical07/goMFA/internal/flows"
	"github.com/MrEthical07/goMFA/internal/limiters"
	"go.uber.org/zap"
)

// Engine runs MFA operations. Obtain one from Builder.Build; it is safe
// for concurrent use.
type Engine struct {
	config Config
	store  Store
	logger *zap.Logger
	now    func() time.Time

	users       UserDirectory
	sms         SMSSender
	email       EmailSender
	passwords   PasswordVerifier
	fingerprint FingerprintSource
	qr          QRRenderer
	sendLimit   SendLimiter

	totp    *totpManager
	lockout *limiters.LockoutPolicy
	audit   *internalaudit.Dispatcher
	metrics *Metrics
	tokens  *devicetoken.Manager

	deps flows.Deps
}

// Close flushes buffered audit events. The engine must not be used after.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns how many audit events were discarded because the
// buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return emptySnapshot()
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() bool {
	return e != nil && e.store != nil && e.users != nil
}

// finish logs a failed operation and converts its error. Expected
// outcomes such as wrong codes are logged at debug level.
func finish[T any](e *Engine, op, userID string, kind FactorKind, v T, err error) Result[T] {
	if err == nil {
		return resultOK(v)
	}
	res := resultErr[T](err)
	if e != nil && e.logger != nil {
		fields := []zap.Field{
			zap.String("op", op),
			zap.String("user_id", userID),
			zap.Error(err),
		}
		if kind != "" {
			fields = append(fields, zap.String("kind", string(kind)))
		}
		switch res.Err.Kind {
		case KindUnavailable:
			e.logger.Error("mfa operation failed", fields...)
		case KindConfig:
			e.logger.Warn("mfa operation not configured", fields...)
		default:
			e.logger.Debug("mfa operation rejected", fields...)
		}
	}
	return res
}

func (e *Engine) buildDeps() flows.Deps {
	deps := flows.Deps{
		PendingTTL:       e.config.Codes.PendingTTL,
		CodeTTL:          e.config.Codes.TTL,
		CodeDigits:       e.config.Codes.Digits,
		BackupCodeCount:  e.config.BackupCodes.Count,
		BackupCodeLength: e.config.BackupCodes.Length,

		Now:     e.now,
		Store:   e.store,
		Lockout: e.lockout,

		GetUser: func(ctx context.Context, userID string) (flows.User, error) {
			u, err := e.users.GetUser(ctx, userID)
			if err != nil {
				return flows.User{}, err
			}
			return flows.User{ID: u.ID, Email: u.Email}, nil
		},
		Fingerprint: e.fingerprint.Fingerprint,

		GenerateTOTP: e.totp.Generate,
		ValidateTOTP: e.totp.Validate,
		RenderQR:     e.qr.RenderQR,

		MetricInc: func(id int) { e.metricInc(MetricID(id)) },
		EmitAudit: func(ctx context.Context, event string, success bool, userID string, kind FactorKind, err error, metadata func() map[string]string) {
			e.emitAudit(ctx, event, success, userID, kind, err, metadata)
		},

		Metrics: flows.Metrics{
			SetupRequested:       int(MetricSetupRequested),
			CodeSent:             int(MetricCodeSent),
			DeliveryFailure:      int(MetricCodeDeliveryFailure),
			SendRateLimited:      int(MetricCodeRateLimited),
			VerifySuccess:        int(MetricVerifySuccess),
			VerifyFailure:        int(MetricVerifyFailure),
			LockedOut:            int(MetricLockedOut),
			MethodEnabled:        int(MetricMethodEnabled),
			MethodDisabled:       int(MetricMethodDisabled),
			Teardown:             int(MetricTeardown),
			BackupCodesGenerated: int(MetricBackupCodesGenerated),
			BackupCodeUsed:       int(MetricBackupCodeUsed),
			DeviceTrusted:        int(MetricDeviceTrusted),
			DeviceRevoked:        int(MetricDeviceRevoked),
		},
		Events: flows.Events{
			SetupRequested:       auditEventSetupRequested,
			CodeSent:             auditEventCodeSent,
			VerifySuccess:        auditEventVerifySuccess,
			VerifyFailure:        auditEventVerifyFailure,
			LockedOut:            auditEventLockedOut,
			MethodEnabled:        auditEventMethodEnabled,
			MethodDisabled:       auditEventMethodDisabled,
			Teardown:             auditEventTeardown,
			BackupCodesGenerated: auditEventBackupCodesGenerated,
			DeviceTrusted:        auditEventDeviceTrusted,
			DeviceRevoked:        auditEventDeviceRevoked,
		},
		Errors: flows.Errors{
			EngineNotReady:    ErrEngineNotReady,
			NotConfigured:     ErrNotConfigured,
			UserNotFound:      ErrUserNotFound,
			PendingNotFound:   ErrPendingSetupNotFound,
			MethodNotFound:    ErrMethodNotFound,
			DeviceNotFound:    ErrDeviceNotFound,
			InvalidKind:       ErrInvalidKind,
			InvalidPhone:      ErrInvalidPhone,
			InvalidEmail:      ErrInvalidEmail,
			InvalidPassword:   ErrInvalidPassword,
			InvalidCode:       ErrInvalidCode,
			LockedOut:         ErrLockedOut,
			Unavailable:       ErrUnavailable,
			TOTPSetupFailed:   ErrTOTPSetupFailed,
			SMSSetupFailed:    ErrSMSSetupFailed,
			EmailSetupFailed:  ErrEmailSetupFailed,
			CodeDeliveryError: ErrCodeDelivery,
			RateLimited:       ErrCodeRateLimited,
		},
	}

	if e.sms != nil {
		deps.SendSMS = e.sms.SendSMS
	}
	if e.email != nil {
		deps.SendEmail = e.email.SendEmail
	}
	if e.passwords != nil {
		deps.VerifyPassword = e.passwords.VerifyPassword
	}
	if e.sendLimit != nil {
		deps.AllowSend = e.sendLimit.AllowSend
	}
	return deps
}
