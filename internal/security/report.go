package security

import "time"

// TOTPReport describes the authenticator-app parameters in force.
type TOTPReport struct {
	Algorithm string
	Digits    int
	Period    time.Duration
	Skew      int
	// Window is the total span of accepted codes around now.
	Window time.Duration
}

type Report struct {
	TOTP                 TOTPReport
	CodeDigits           int
	CodeTTL              time.Duration
	PendingSetupTTL      time.Duration
	BackupCodeCount      int
	BackupCodeLength     int
	BackupCodesEnabled   bool
	LockoutThreshold     int
	LockoutWindow        time.Duration
	LockoutActive        bool
	SendLimitActive      bool
	SMSEnabled           bool
	EmailEnabled         bool
	DisableNeedsPassword bool
	DeviceTrustEnabled   bool
	DeviceSigningMethod  string
	DeviceTokenTTL       time.Duration
	AuditEnabled         bool
	AuditDropsWhenFull   bool
	MetricsEnabled       bool
	LatencyHistogramsOn  bool
}

type ReportInput struct {
	TOTPAlgorithm       string
	TOTPDigits          int
	TOTPPeriodSeconds   int
	TOTPSkew            int
	CodeDigits          int
	CodeTTL             time.Duration
	PendingSetupTTL     time.Duration
	BackupCodeCount     int
	BackupCodeLength    int
	LockoutThreshold    int
	LockoutWindow       time.Duration
	MaxSends            int
	SendWindow          time.Duration
	SendLimiterWired    bool
	SMSSenderWired      bool
	EmailSenderWired    bool
	PasswordsWired      bool
	DeviceTrustEnabled  bool
	DeviceSigningMethod string
	DeviceTokenTTL      time.Duration
	AuditEnabled        bool
	AuditDropIfFull     bool
	MetricsEnabled      bool
	LatencyHistograms   bool
}

func BuildReport(input ReportInput) Report {
	period := time.Duration(input.TOTPPeriodSeconds) * time.Second

	report := Report{
		TOTP: TOTPReport{
			Algorithm: input.TOTPAlgorithm,
			Digits:    input.TOTPDigits,
			Period:    period,
			Skew:      input.TOTPSkew,
			Window:    time.Duration(2*input.TOTPSkew+1) * period,
		},
		CodeDigits:           input.CodeDigits,
		CodeTTL:              input.CodeTTL,
		PendingSetupTTL:      input.PendingSetupTTL,
		BackupCodeCount:      input.BackupCodeCount,
		BackupCodeLength:     input.BackupCodeLength,
		BackupCodesEnabled:   input.BackupCodeCount > 0,
		LockoutThreshold:     input.LockoutThreshold,
		LockoutWindow:        input.LockoutWindow,
		LockoutActive:        input.LockoutThreshold > 0 && input.LockoutWindow > 0,
		SendLimitActive:      input.SendLimiterWired && input.MaxSends > 0 && input.SendWindow > 0,
		SMSEnabled:           input.SMSSenderWired,
		EmailEnabled:         input.EmailSenderWired,
		DisableNeedsPassword: input.PasswordsWired,
		DeviceTrustEnabled:   input.DeviceTrustEnabled,
		AuditEnabled:         input.AuditEnabled,
		AuditDropsWhenFull:   input.AuditEnabled && input.AuditDropIfFull,
		MetricsEnabled:       input.MetricsEnabled,
		LatencyHistogramsOn:  input.MetricsEnabled && input.LatencyHistograms,
	}
	if input.DeviceTrustEnabled {
		report.DeviceSigningMethod = input.DeviceSigningMethod
		report.DeviceTokenTTL = input.DeviceTokenTTL
	}
	return report
}
