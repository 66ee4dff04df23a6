package goMFA

import "github.com/MrEthical07/goMFA/internal/security"

// SecurityReport is a read-only snapshot of the engine's MFA posture,
// returned by [Engine.SecurityReport]. It never includes key material.
type SecurityReport = security.Report

// SecurityTOTPReport is the TOTP section of a SecurityReport.
type SecurityTOTPReport = security.TOTPReport

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}
	cfg := e.config
	return security.BuildReport(security.ReportInput{
		TOTPAlgorithm:       totpAlgorithm(cfg.TOTP.Algorithm).String(),
		TOTPDigits:          cfg.TOTP.Digits,
		TOTPPeriodSeconds:   cfg.TOTP.Period,
		TOTPSkew:            cfg.TOTP.Skew,
		CodeDigits:          cfg.Codes.Digits,
		CodeTTL:             cfg.Codes.TTL,
		PendingSetupTTL:     cfg.Codes.PendingTTL,
		BackupCodeCount:     cfg.BackupCodes.Count,
		BackupCodeLength:    cfg.BackupCodes.Length,
		LockoutThreshold:    cfg.Lockout.Threshold,
		LockoutWindow:       cfg.Lockout.Window,
		MaxSends:            cfg.Codes.MaxSends,
		SendWindow:          cfg.Codes.SendWindow,
		SendLimiterWired:    e.sendLimit != nil,
		SMSSenderWired:      e.sms != nil,
		EmailSenderWired:    e.email != nil,
		PasswordsWired:      e.passwords != nil,
		DeviceTrustEnabled:  cfg.DeviceTrust.Enabled,
		DeviceSigningMethod: cfg.DeviceTrust.SigningMethod,
		DeviceTokenTTL:      cfg.DeviceTrust.TokenTTL,
		AuditEnabled:        cfg.Audit.Enabled,
		AuditDropIfFull:     cfg.Audit.DropIfFull,
		MetricsEnabled:      cfg.Metrics.Enabled,
		LatencyHistograms:   cfg.Metrics.EnableLatencyHistograms,
	})
}
