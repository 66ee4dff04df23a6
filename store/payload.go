package store

import "fmt"

// PendingPayload is the kind-specific body of a PendingSetup. The set of
// implementations is closed: TOTPSecret, PhoneContact and EmailContact.
type PendingPayload interface {
	Kind() Kind
	// Value returns the secret or contact that becomes FactorMethod.Secret.
	Value() string
	isPendingPayload()
}

// TOTPSecret carries a base32 TOTP shared secret.
type TOTPSecret struct {
	Secret string
}

func (TOTPSecret) Kind() Kind        { return KindTOTP }
func (p TOTPSecret) Value() string   { return p.Secret }
func (TOTPSecret) isPendingPayload() {}

// PhoneContact carries a normalized digits-only phone number.
type PhoneContact struct {
	Phone string
}

func (PhoneContact) Kind() Kind        { return KindSMS }
func (p PhoneContact) Value() string   { return p.Phone }
func (PhoneContact) isPendingPayload() {}

// EmailContact carries the address codes are sent to.
type EmailContact struct {
	Address string
}

func (EmailContact) Kind() Kind        { return KindEmail }
func (p EmailContact) Value() string   { return p.Address }
func (EmailContact) isPendingPayload() {}

// NewPendingPayload rebuilds a payload from its persisted (kind, value)
// form. Backends use it when decoding rows.
func NewPendingPayload(kind Kind, value string) (PendingPayload, error) {
	switch kind {
	case KindTOTP:
		return TOTPSecret{Secret: value}, nil
	case KindSMS:
		return PhoneContact{Phone: value}, nil
	case KindEmail:
		return EmailContact{Address: value}, nil
	default:
		return nil, fmt.Errorf("%w: pending payload kind %q", ErrInvalidRecord, kind)
	}
}
