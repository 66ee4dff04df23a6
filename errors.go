package goMFA

import (
	"errors"
	"fmt"
)

var (
	// ErrEngineNotReady is returned by a nil or partially built Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrNotConfigured is returned when an operation needs a collaborator
	// (SMS sender, email sender, password verifier) that was not supplied.
	ErrNotConfigured = errors.New("provider not configured")
	// ErrUserNotFound is returned when the user directory does not know the user.
	ErrUserNotFound = errors.New("user not found")
	// ErrPendingSetupNotFound is returned by EnableMethod when there is no
	// unexpired setup to confirm.
	ErrPendingSetupNotFound = errors.New("pending setup not found")
	// ErrMethodNotFound is returned when the method is not enabled.
	ErrMethodNotFound = errors.New("method not enabled")
	// ErrDeviceNotFound is returned when a device is not trusted.
	ErrDeviceNotFound  = errors.New("device not trusted")
	ErrInvalidKind     = errors.New("invalid factor kind")
	ErrInvalidPhone    = errors.New("invalid phone number")
	ErrInvalidEmail    = errors.New("invalid email address")
	ErrInvalidPassword = errors.New("invalid password")
	// ErrInvalidCode covers wrong, expired and already used codes alike.
	ErrInvalidCode = errors.New("invalid verification code")
	// ErrLockedOut is returned while the user is over the failure threshold.
	ErrLockedOut = errors.New("too many failed attempts")
	// ErrUnavailable wraps store and lockout backend failures.
	ErrUnavailable      = errors.New("mfa backend unavailable")
	ErrTOTPSetupFailed  = errors.New("totp setup failed")
	ErrSMSSetupFailed   = errors.New("sms setup failed")
	ErrEmailSetupFailed = errors.New("email setup failed")
	// ErrCodeDelivery is returned when a sender fails outside of setup.
	ErrCodeDelivery = errors.New("code delivery failed")
	// ErrDeviceTrustDisabled is returned by device token operations when
	// DeviceTrust is not enabled.
	ErrDeviceTrustDisabled = errors.New("device trust disabled")
	// ErrDeviceTokenInvalid is returned for malformed, expired or revoked
	// device tokens.
	ErrDeviceTokenInvalid = errors.New("invalid device token")
	// ErrCodeRateLimited is returned when a user asks for more SMS or
	// email codes than the send limit allows.
	ErrCodeRateLimited = errors.New("too many codes requested")
)

// ErrorKind classifies an engine error for callers that render one
// failure path per class.
type ErrorKind uint8

const (
	// KindUnavailable covers store, lockout and delivery failures.
	KindUnavailable ErrorKind = iota
	// KindValidation covers malformed input and wrong passwords.
	KindValidation
	// KindNotFound covers unknown users, missing pending setups, methods
	// that are not enabled and devices that are not trusted.
	KindNotFound
	KindLockedOut
	KindInvalidCode
	// KindConfig covers missing collaborators and disabled features.
	KindConfig
	// KindRateLimited covers code sends refused by the send limit.
	KindRateLimited
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindLockedOut:
		return "locked_out"
	case KindInvalidCode:
		return "invalid_code"
	case KindConfig:
		return "config"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "unavailable"
	}
}

// User-facing messages. Verification failures share one message so the
// response does not reveal which check failed.
const (
	MessageInvalidCode      = "Invalid verification code"
	MessageLockedOut        = "Too many failed attempts. Please try again later."
	MessageRateLimited      = "Too many codes requested. Please try again later."
	MessageTOTPSetupFailed  = "failed to setup TOTP authentication"
	MessageSMSSetupFailed   = "failed to setup SMS authentication"
	MessageEmailSetupFailed = "failed to setup email authentication"
)

// Error is the error value carried by every Result. Message is safe to
// show to end users; Err is the matching package sentinel, so
// errors.Is(result.Err, ErrLockedOut) works.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

type errorClass struct {
	sentinel error
	kind     ErrorKind
	message  string
}

// errorClasses is checked in order; the first sentinel matched by
// errors.Is wins.
var errorClasses = []errorClass{
	{ErrLockedOut, KindLockedOut, MessageLockedOut},
	{ErrInvalidCode, KindInvalidCode, MessageInvalidCode},
	{ErrCodeRateLimited, KindRateLimited, MessageRateLimited},
	{ErrDeviceTokenInvalid, KindInvalidCode, "Invalid device token"},
	{ErrInvalidPhone, KindValidation, "Invalid phone number"},
	{ErrInvalidEmail, KindValidation, "Invalid email address"},
	{ErrInvalidPassword, KindValidation, "Invalid password"},
	{ErrInvalidKind, KindValidation, "Unsupported verification method"},
	{ErrUserNotFound, KindNotFound, "User not found"},
	{ErrPendingSetupNotFound, KindNotFound, "No pending setup found"},
	{ErrMethodNotFound, KindNotFound, "Verification method not enabled"},
	{ErrDeviceNotFound, KindNotFound, "Device not trusted"},
	{ErrTOTPSetupFailed, KindUnavailable, MessageTOTPSetupFailed},
	{ErrSMSSetupFailed, KindUnavailable, MessageSMSSetupFailed},
	{ErrEmailSetupFailed, KindUnavailable, MessageEmailSetupFailed},
	{ErrCodeDelivery, KindUnavailable, "failed to send verification code"},
	{ErrNotConfigured, KindConfig, "Verification method not configured"},
	{ErrDeviceTrustDisabled, KindConfig, "Device trust not enabled"},
	{ErrEngineNotReady, KindConfig, "MFA not configured"},
	{ErrUnavailable, KindUnavailable, "Service temporarily unavailable"},
}

// newError classifies err. The returned Error unwraps to the sentinel
// only; driver and provider details stay out of it.
func newError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	for _, c := range errorClasses {
		if errors.Is(err, c.sentinel) {
			return &Error{Kind: c.kind, Message: c.message, Err: c.sentinel}
		}
	}
	return &Error{Kind: KindUnavailable, Message: "Service temporarily unavailable", Err: ErrUnavailable}
}

// Result is the return type of every public Engine operation.
type Result[T any] struct {
	Value T
	Err   *Error
}

// OK reports whether the operation succeeded.
func (r Result[T]) OK() bool {
	return r.Err == nil
}

// Unwrap returns the value and a plain error, for callers that prefer the
// (T, error) form.
func (r Result[T]) Unwrap() (T, error) {
	if r.Err != nil {
		return r.Value, r.Err
	}
	return r.Value, nil
}

func (r Result[T]) String() string {
	if r.Err != nil {
		return fmt.Sprintf("error(%s): %s", r.Err.Kind, r.Err.Message)
	}
	return fmt.Sprintf("ok: %v", r.Value)
}

func resultOK[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

func resultErr[T any](err error) Result[T] {
	return Result[T]{Err: newError(err)}
}
