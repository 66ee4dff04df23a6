package goMFA

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/MrEthical07/goMFA/internal/audit"
	"github.com/MrEthical07/goMFA/internal/flows"
	"github.com/MrEthical07/goMFA/store"
	"github.com/segmentio/kafka-go"
)

// FactorKind identifies a second factor. Backup is accepted by VerifyCode
// only; it is never enabled or disabled on its own.
type FactorKind = store.Kind

const (
	FactorTOTP   = store.KindTOTP
	FactorSMS    = store.KindSMS
	FactorEmail  = store.KindEmail
	FactorBackup = store.KindBackup
)

// Re-exported entity types. See package store for field semantics.
type (
	FactorMethod  = store.FactorMethod
	TrustedDevice = store.TrustedDevice
	Store         = store.Store
)

// MethodState is the enrollment state of one method in a TwoFactorStatus.
type MethodState = flows.State

const (
	StateNotConfigured       = flows.StateNotConfigured
	StatePendingVerification = flows.StatePendingVerification
	StateEnabled             = flows.StateEnabled
)

type (
	// MethodStatus describes one of TOTP, SMS or Email for a user.
	MethodStatus = flows.MethodStatus
	// TwoFactorStatus is the aggregate view returned by GetStatus.
	TwoFactorStatus = flows.Status
)

// User is the part of the account record MFA needs. Email is the default
// destination for SetupEmail and the TOTP account label.
type User struct {
	ID    string
	Email string
}

// UserDirectory resolves user ids. It must return an error for unknown
// users; any error is reported as ErrUserNotFound.
type UserDirectory interface {
	GetUser(ctx context.Context, userID string) (User, error)
}

// SMSSender delivers a text message. Errors are logged and reported to
// callers with a generic message only.
type SMSSender interface {
	SendSMS(ctx context.Context, phone, text string) error
}

// EmailSender delivers an email.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// PasswordVerifier checks the account password before a method is
// disabled. password.Verifier is the bundled implementation.
type PasswordVerifier interface {
	VerifyPassword(ctx context.Context, userID, password string) (bool, error)
}

// FingerprintSource derives an opaque device id from the request. The
// request metadata attached with WithRequestContext is available in ctx.
type FingerprintSource interface {
	Fingerprint(ctx context.Context) (string, error)
}

// QRRenderer turns a provisioning URI into an image reference, usually a
// data URL.
type QRRenderer interface {
	RenderQR(uri string) (string, error)
}

// SendLimiter throttles SMS and email code sends. AllowSend records one
// send and returns ErrCodeRateLimited once the user's budget for the
// channel is spent.
type SendLimiter interface {
	AllowSend(ctx context.Context, userID string, channel FactorKind) error
}

// TOTPSetup is returned by SetupTOTP. Secret is base32; QRCode is a PNG
// data URL, or empty when QR rendering is disabled.
type TOTPSetup struct {
	Secret string
	URI    string
	QRCode string
}

type SMSSetup struct {
	MaskedPhone string
}

type EmailSetup struct {
	MaskedEmail string
}

// CodeDispatch is returned by ResendCode and SendLoginCode.
type CodeDispatch struct {
	Kind        FactorKind
	Destination string // masked
}

// Verification is the value of a successful VerifyCode.
type Verification struct {
	Kind FactorKind
	// BackupCodesRemaining is set when Kind is FactorBackup.
	BackupCodesRemaining int
	// Device, DeviceToken and DeviceTokenExpiresAt are set when the caller
	// asked to remember the device. DeviceToken is empty when device trust
	// tokens are disabled.
	Device               *TrustedDevice
	DeviceToken          string
	DeviceTokenExpiresAt time.Time
}

// Enablement is the value of a successful EnableMethod. BackupCodes is
// non-empty only for the user's first method and is never shown again.
type Enablement struct {
	Method      FactorMethod
	BackupCodes []string
}

// Disablement is the value of a successful DisableMethod.
type Disablement struct {
	Kind FactorKind
	// TornDown is true when the last method was removed together with the
	// user's backup codes and trusted devices.
	TornDown  bool
	Remaining int
}

// DeviceTrust is the value of a successful TrustDevice or CheckDeviceTrust.
type DeviceTrust struct {
	Device    TrustedDevice
	Token     string
	ExpiresAt time.Time
}

// PurgeReport counts rows removed by Purge.
type PurgeReport struct {
	PendingSetups  int64
	Codes          int64
	FailedAttempts int64
}

/*
====================================
AUDIT
====================================
*/

type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the engine's dispatcher goroutine.
type AuditSink = internalaudit.Sink

type NoOpSink = internalaudit.NoOpSink

type ChannelSink = internalaudit.ChannelSink

type JSONWriterSink = internalaudit.JSONWriterSink

// MultiSink fans each event out to several sinks.
type MultiSink = internalaudit.MultiSink

type KafkaSink = internalaudit.KafkaSink

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewKafkaSink publishes events as JSON to topic. Close the returned
// writer after Engine.Close so buffered events are flushed first.
func NewKafkaSink(brokers []string, topic string, timeout time.Duration, onError func(AuditEvent, error)) (*KafkaSink, *kafka.Writer) {
	w := internalaudit.NewKafkaWriter(brokers, topic)
	return internalaudit.NewKafkaSink(w, timeout, onError), w
}
