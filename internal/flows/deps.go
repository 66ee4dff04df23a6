package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/goMFA/internal"
	"github.com/MrEthical07/goMFA/store"
)

// User is the subset of the account record MFA flows need.
type User struct {
	ID    string
	Email string
}

// Lockout is the failed-attempt policy consulted before every code check.
type Lockout interface {
	IsLockedOut(ctx context.Context, userID string) (bool, error)
	RecordFailure(ctx context.Context, userID string) error
	Clear(ctx context.Context, userID string) error
}

type Metrics struct {
	SetupRequested       int
	CodeSent             int
	DeliveryFailure      int
	SendRateLimited      int
	VerifySuccess        int
	VerifyFailure        int
	LockedOut            int
	MethodEnabled        int
	MethodDisabled       int
	Teardown             int
	BackupCodesGenerated int
	BackupCodeUsed       int
	DeviceTrusted        int
	DeviceRevoked        int
}

type Events struct {
	SetupRequested       string
	CodeSent             string
	VerifySuccess        string
	VerifyFailure        string
	LockedOut            string
	MethodEnabled        string
	MethodDisabled       string
	Teardown             string
	BackupCodesGenerated string
	DeviceTrusted        string
	DeviceRevoked        string
}

// Errors carries the public sentinels flows return. The root package maps
// each one to an error kind and a user-facing message.
type Errors struct {
	EngineNotReady    error
	NotConfigured     error
	UserNotFound      error
	PendingNotFound   error
	MethodNotFound    error
	DeviceNotFound    error
	InvalidKind       error
	InvalidPhone      error
	InvalidEmail      error
	InvalidPassword   error
	InvalidCode       error
	LockedOut         error
	Unavailable       error
	TOTPSetupFailed   error
	SMSSetupFailed    error
	EmailSetupFailed  error
	CodeDeliveryError error
	RateLimited       error
}

// Deps groups everything the MFA flows call. The root Engine builds it once
// and passes it by value to each Run function.
type Deps struct {
	PendingTTL       time.Duration
	CodeTTL          time.Duration
	CodeDigits       int
	BackupCodeCount  int
	BackupCodeLength int

	Now func() time.Time

	Store   store.Store
	Lockout Lockout

	GetUser        func(ctx context.Context, userID string) (User, error)
	VerifyPassword func(ctx context.Context, userID, password string) (bool, error)
	Fingerprint    func(ctx context.Context) (string, error)

	GenerateTOTP func(accountName string) (secret, uri string, err error)
	ValidateTOTP func(code, secret string, at time.Time) bool
	RenderQR     func(uri string) (string, error)

	NewCode       func(digits int) (string, error)
	NewBackupCode func(length int) (string, error)
	NewID         func() string

	// SendSMS and SendEmail are nil when no provider is configured.
	SendSMS     func(ctx context.Context, phone, text string) error
	SendEmail   func(ctx context.Context, to, subject, body string) error
	FormatSMS   func(code string) string
	FormatEmail func(code string) (subject, body string)
	// AllowSend is consulted before every code send; nil means unlimited.
	// It returns Errors.RateLimited once the user's budget is spent.
	AllowSend func(ctx context.Context, userID string, channel store.Kind) error

	MetricInc func(int)
	EmitAudit func(ctx context.Context, event string, success bool, userID string, kind store.Kind, err error, metadata func() map[string]string)

	Metrics Metrics
	Events  Events
	Errors  Errors
}

func normalizeDeps(deps *Deps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewCode == nil {
		deps.NewCode = internal.NewNumericCode
	}
	if deps.NewBackupCode == nil {
		deps.NewBackupCode = func(length int) (string, error) {
			return internal.NewBackupCode(length, nil)
		}
	}
	if deps.NewID == nil {
		deps.NewID = internal.NewRecordID
	}
	if deps.FormatSMS == nil {
		deps.FormatSMS = func(code string) string {
			return "Your verification code is " + code
		}
	}
	if deps.FormatEmail == nil {
		deps.FormatEmail = func(code string) (string, string) {
			return "Your verification code", "Your verification code is " + code
		}
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, store.Kind, error, func() map[string]string) {}
	}
}

func ready(deps *Deps) error {
	if deps.Store == nil || deps.GetUser == nil {
		return deps.Errors.EngineNotReady
	}
	return nil
}
