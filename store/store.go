package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a record does not exist or is no longer valid.
	ErrNotFound = errors.New("store: record not found")
	// ErrUnavailable wraps backend failures (network, driver, encoding).
	ErrUnavailable = errors.New("store: backend unavailable")
	// ErrInvalidRecord is returned for records that fail basic shape checks.
	ErrInvalidRecord = errors.New("store: invalid record")
)

// Kind identifies a second factor. TOTP, SMS and Email are persistable
// methods; Backup is only meaningful as a verification kind.
type Kind string

const (
	KindTOTP   Kind = "totp"
	KindSMS    Kind = "sms"
	KindEmail  Kind = "email"
	KindBackup Kind = "backup"
)

// MethodKinds lists the kinds that can be stored as a FactorMethod, in
// reporting order.
var MethodKinds = []Kind{KindTOTP, KindSMS, KindEmail}

// IsMethod reports whether k can be enabled as a FactorMethod.
func (k Kind) IsMethod() bool {
	switch k {
	case KindTOTP, KindSMS, KindEmail:
		return true
	default:
		return false
	}
}

// IsChannel reports whether k is delivered through an outbound code channel.
func (k Kind) IsChannel() bool {
	return k == KindSMS || k == KindEmail
}

func (k Kind) String() string {
	return string(k)
}

// ParseKind maps a textual kind to a Kind value.
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindTOTP, KindSMS, KindEmail, KindBackup:
		return Kind(s), true
	default:
		return "", false
	}
}

// FactorMethod is an enabled second factor. At most one record exists per
// (UserID, Kind). Secret holds the TOTP secret or the delivery contact.
type FactorMethod struct {
	UserID       string
	Kind         Kind
	Enabled      bool
	Secret       string
	IsPrimary    bool
	ConfiguredAt time.Time
	LastUsedAt   time.Time
}

// PendingSetup is an unconfirmed enrollment. It never verifies a login on
// its own; it only feeds enablement.
type PendingSetup struct {
	UserID    string
	Payload   PendingPayload
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Kind returns the method kind carried by the payload.
func (p PendingSetup) Kind() Kind {
	if p.Payload == nil {
		return ""
	}
	return p.Payload.Kind()
}

// Expired reports whether the setup is unusable at now.
func (p PendingSetup) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// VerificationCode is a numeric code issued over SMS or email. Only the
// newest unused, unexpired code for (UserID, Channel) is valid. CodeHash is
// the hex SHA-256 of the plaintext code; DestinationHash is the hex SHA-256
// of the phone number or address the code was delivered to, so a code only
// proves possession of that one contact.
type VerificationCode struct {
	ID              string
	UserID          string
	Channel         Kind
	CodeHash        string
	DestinationHash string
	CreatedAt       time.Time
	ExpiresAt       time.Time
	Used            bool
}

// Expired reports whether the code is unusable at now.
func (c VerificationCode) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// BackupCode is one hashed recovery code. CodeHash is hex SHA-256 of the
// canonical plaintext.
type BackupCode struct {
	UserID   string
	CodeHash string
	Used     bool
	UsedAt   time.Time
}

// FailedAttempt records one failed verification.
type FailedAttempt struct {
	ID     string
	UserID string
	At     time.Time
}

// TrustedDevice is a device allowed to skip subsequent challenges.
type TrustedDevice struct {
	UserID      string
	Fingerprint string
	Name        string
	CreatedAt   time.Time
	LastUsedAt  time.Time
}

// DisableOutcome describes what DisableMethod removed.
type DisableOutcome struct {
	// Cascaded is true when the removed method was the last one and the
	// user's backup codes and trusted devices were deleted with it.
	Cascaded bool
	// Remaining is the number of methods left after the operation.
	Remaining int
}

type FactorMethodRepository interface {
	Get(ctx context.Context, userID string, kind Kind) (FactorMethod, error)
	List(ctx context.Context, userID string) ([]FactorMethod, error)
	Touch(ctx context.Context, userID string, kind Kind, at time.Time) error
}

type PendingSetupRepository interface {
	// Put replaces any pending setup for the same (user, kind).
	Put(ctx context.Context, setup PendingSetup) error
	Get(ctx context.Context, userID string, kind Kind, now time.Time) (PendingSetup, error)
	// Take atomically removes and returns the unexpired pending setup.
	// Exactly one of several concurrent callers observes it.
	Take(ctx context.Context, userID string, kind Kind, now time.Time) (PendingSetup, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

type VerificationCodeRepository interface {
	Put(ctx context.Context, code VerificationCode) error
	// Latest returns the newest code for (user, channel) if it is unused and
	// unexpired at now.
	Latest(ctx context.Context, userID string, channel Kind, now time.Time) (VerificationCode, error)
	// MarkUsed flips used=false to used=true for the code id. It reports
	// false when the code was already used or is gone.
	MarkUsed(ctx context.Context, userID string, channel Kind, id string) (bool, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

type BackupCodeRepository interface {
	// Replace discards the user's existing codes and stores the new batch.
	Replace(ctx context.Context, userID string, codes []BackupCode) error
	// Consume is a conditional update keyed on (user, hash, used=false).
	Consume(ctx context.Context, userID, codeHash string, at time.Time) (bool, error)
	CountUnused(ctx context.Context, userID string) (int, error)
}

type FailedAttemptRepository interface {
	Append(ctx context.Context, attempt FailedAttempt) error
	CountSince(ctx context.Context, userID string, since time.Time) (int, error)
	Clear(ctx context.Context, userID string) error
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type TrustedDeviceRepository interface {
	Add(ctx context.Context, device TrustedDevice) error
	Get(ctx context.Context, userID, fingerprint string) (TrustedDevice, error)
	List(ctx context.Context, userID string) ([]TrustedDevice, error)
	Touch(ctx context.Context, userID, fingerprint string, at time.Time) error
	Remove(ctx context.Context, userID, fingerprint string) (bool, error)
}

// Store aggregates the per-entity repositories of one backend together
// with the two operations that span several entities and must be atomic.
type Store interface {
	Methods() FactorMethodRepository
	PendingSetups() PendingSetupRepository
	Codes() VerificationCodeRepository
	BackupCodes() BackupCodeRepository
	FailedAttempts() FailedAttemptRepository
	TrustedDevices() TrustedDeviceRepository

	// EnableMethod stores m as enabled, replacing an existing record of the
	// same kind, and returns how many methods the user had before the call.
	// The first method becomes primary; a replaced record keeps its flag.
	EnableMethod(ctx context.Context, m FactorMethod) (previous int, err error)

	// DisableMethod removes the (user, kind) method. When it is the last
	// one, every method, backup code and trusted device of the user is
	// deleted in the same transaction. When a primary method is removed and
	// others remain, the earliest configured remaining method is promoted.
	// Returns ErrNotFound if the method is not enabled.
	DisableMethod(ctx context.Context, userID string, kind Kind) (DisableOutcome, error)
}
