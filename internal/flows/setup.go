package flows

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/goMFA/internal"
	"github.com/MrEthical07/goMFA/store"
)

// TOTPSetup is returned once to the caller; the secret is not retrievable
// afterwards except through the pending record.
type TOTPSetup struct {
	Secret string
	URI    string
	QRCode string
}

// RunSetupTOTP generates a TOTP secret for userID, stores it as a pending
// setup and returns the provisioning material.
func RunSetupTOTP(ctx context.Context, userID string, deps Deps) (TOTPSetup, error) {
	normalizeDeps(&deps)
	if err := ready(&deps); err != nil {
		return TOTPSetup{}, err
	}
	if deps.GenerateTOTP == nil {
		return TOTPSetup{}, deps.Errors.NotConfigured
	}

	user, err := lookupUser(ctx, userID, deps)
	if err != nil {
		return TOTPSetup{}, err
	}

	account := user.Email
	if account == "" {
		account = user.ID
	}
	secret, uri, err := deps.GenerateTOTP(account)
	if err != nil {
		return TOTPSetup{}, fmt.Errorf("%w: %v", deps.Errors.TOTPSetupFailed, err)
	}

	out := TOTPSetup{Secret: secret, URI: uri}
	if deps.RenderQR != nil {
		qr, err := deps.RenderQR(uri)
		if err != nil {
			return TOTPSetup{}, fmt.Errorf("%w: %v", deps.Errors.TOTPSetupFailed, err)
		}
		out.QRCode = qr
	}

	if err := putPending(ctx, userID, store.TOTPSecret{Secret: secret}, deps); err != nil {
		return TOTPSetup{}, err
	}

	deps.MetricInc(deps.Metrics.SetupRequested)
	deps.EmitAudit(ctx, deps.Events.SetupRequested, true, userID, store.KindTOTP, nil, nil)
	return out, nil
}

// RunSetupCodeChannel starts SMS or email enrollment: it validates the
// contact, stores a pending setup and sends the first code. It returns the
// masked contact.
func RunSetupCodeChannel(ctx context.Context, userID string, kind store.Kind, contact string, deps Deps) (string, error) {
	normalizeDeps(&deps)
	if err := ready(&deps); err != nil {
		return "", err
	}

	var payload store.PendingPayload
	switch kind {
	case store.KindSMS:
		phone, ok := internal.NormalizePhone(contact)
		if !ok {
			return "", deps.Errors.InvalidPhone
		}
		if deps.SendSMS == nil {
			return "", deps.Errors.NotConfigured
		}
		payload = store.PhoneContact{Phone: phone}
	case store.KindEmail:
		if deps.SendEmail == nil {
			return "", deps.Errors.NotConfigured
		}
	default:
		return "", deps.Errors.InvalidKind
	}

	user, err := lookupUser(ctx, userID, deps)
	if err != nil {
		return "", err
	}

	if kind == store.KindEmail {
		if contact == "" {
			contact = user.Email
		}
		email, ok := internal.NormalizeEmail(contact)
		if !ok {
			return "", deps.Errors.InvalidEmail
		}
		payload = store.EmailContact{Address: email}
	}

	// A rate-limited request must leave any earlier pending contact intact.
	if err := allowSend(ctx, userID, kind, deps); err != nil {
		return "", err
	}
	if err := putPending(ctx, userID, payload, deps); err != nil {
		return "", err
	}
	if err := deliverCode(ctx, userID, kind, payload.Value(), deps); err != nil {
		if errors.Is(err, deps.Errors.CodeDeliveryError) {
			return "", fmt.Errorf("%w: %v", setupFailure(kind, deps), err)
		}
		return "", err
	}

	deps.MetricInc(deps.Metrics.SetupRequested)
	deps.EmitAudit(ctx, deps.Events.SetupRequested, true, userID, kind, nil, nil)
	return maskContact(kind, payload.Value()), nil
}

// RunSendCode issues a fresh code over an SMS or email channel. While an
// enrollment is open the code goes to the pending setup's contact, otherwise
// to the enabled method's contact. Any earlier code for the channel stops
// being valid.
func RunSendCode(ctx context.Context, userID string, channel store.Kind, deps Deps) (string, error) {
	return sendCode(ctx, userID, channel, true, deps)
}

// RunSendLoginCode issues a login challenge code to an enabled SMS or
// email method. Pending enrollments are not considered.
func RunSendLoginCode(ctx context.Context, userID string, channel store.Kind, deps Deps) (string, error) {
	return sendCode(ctx, userID, channel, false, deps)
}

func sendCode(ctx context.Context, userID string, channel store.Kind, allowPending bool, deps Deps) (string, error) {
	normalizeDeps(&deps)
	if err := ready(&deps); err != nil {
		return "", err
	}
	if !channel.IsChannel() {
		return "", deps.Errors.InvalidKind
	}

	contact, err := codeDestination(ctx, userID, channel, allowPending, deps)
	if err != nil {
		return "", err
	}
	if err := allowSend(ctx, userID, channel, deps); err != nil {
		return "", err
	}
	if err := deliverCode(ctx, userID, channel, contact, deps); err != nil {
		return "", err
	}
	return maskContact(channel, contact), nil
}

// codeDestination picks the contact a new code is sent to. An open
// enrollment wins over the enabled method, since the code will be checked
// against the pending contact on enable.
func codeDestination(ctx context.Context, userID string, channel store.Kind, allowPending bool, deps Deps) (string, error) {
	if allowPending {
		pending, err := deps.Store.PendingSetups().Get(ctx, userID, channel, deps.Now())
		switch {
		case err == nil:
			return pending.Payload.Value(), nil
		case !errors.Is(err, store.ErrNotFound):
			return "", fmt.Errorf("%w: %v", deps.Errors.Unavailable, err)
		}
	}

	method, err := deps.Store.Methods().Get(ctx, userID, channel)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", deps.Errors.MethodNotFound
		}
		return "", fmt.Errorf("%w: %v", deps.Errors.Unavailable, err)
	}
	return method.Secret, nil
}

func lookupUser(ctx context.Context, userID string, deps Deps) (User, error) {
	if userID == "" {
		return User{}, deps.Errors.UserNotFound
	}
	user, err := deps.GetUser(ctx, userID)
	if err != nil {
		return User{}, fmt.Errorf("%w: %v", deps.Errors.UserNotFound, err)
	}
	if user.ID == "" {
		user.ID = userID
	}
	return user, nil
}

func putPending(ctx context.Context, userID string, payload store.PendingPayload, deps Deps) error {
	now := deps.Now()
	err := deps.Store.PendingSetups().Put(ctx, store.PendingSetup{
		UserID:    userID,
		Payload:   payload,
		CreatedAt: now,
		ExpiresAt: now.Add(deps.PendingTTL),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", deps.Errors.Unavailable, err)
	}
	return nil
}

// allowSend consults the send rate limiter for userID on channel.
func allowSend(ctx context.Context, userID string, channel store.Kind, deps Deps) error {
	if deps.AllowSend == nil {
		return nil
	}
	if err := deps.AllowSend(ctx, userID, channel); err != nil {
		if errors.Is(err, deps.Errors.RateLimited) {
			deps.MetricInc(deps.Metrics.SendRateLimited)
			deps.EmitAudit(ctx, deps.Events.CodeSent, false, userID, channel, deps.Errors.RateLimited, nil)
			return deps.Errors.RateLimited
		}
		return fmt.Errorf("%w: %v", deps.Errors.Unavailable, err)
	}
	return nil
}

// deliverCode stores a new verification code bound to contact and hands it
// to the channel's sender. Transport errors come back wrapped in
// Errors.CodeDeliveryError. The caller has already passed allowSend.
func deliverCode(ctx context.Context, userID string, channel store.Kind, contact string, deps Deps) error {
	switch channel {
	case store.KindSMS:
		if deps.SendSMS == nil {
			return deps.Errors.NotConfigured
		}
	case store.KindEmail:
		if deps.SendEmail == nil {
			return deps.Errors.NotConfigured
		}
	}

	code, err := deps.NewCode(deps.CodeDigits)
	if err != nil {
		return fmt.Errorf("%w: %v", deps.Errors.Unavailable, err)
	}

	now := deps.Now()
	err = deps.Store.Codes().Put(ctx, store.VerificationCode{
		ID:              deps.NewID(),
		UserID:          userID,
		Channel:         channel,
		CodeHash:        internal.HashCode(code),
		DestinationHash: internal.HashCode(contact),
		CreatedAt:       now,
		ExpiresAt:       now.Add(deps.CodeTTL),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", deps.Errors.Unavailable, err)
	}

	if channel == store.KindSMS {
		err = deps.SendSMS(ctx, contact, deps.FormatSMS(code))
	} else {
		subject, body := deps.FormatEmail(code)
		err = deps.SendEmail(ctx, contact, subject, body)
	}
	if err != nil {
		deps.MetricInc(deps.Metrics.DeliveryFailure)
		deps.EmitAudit(ctx, deps.Events.CodeSent, false, userID, channel, deps.Errors.CodeDeliveryError, nil)
		return fmt.Errorf("%w: %v", deps.Errors.CodeDeliveryError, err)
	}

	deps.MetricInc(deps.Metrics.CodeSent)
	deps.EmitAudit(ctx, deps.Events.CodeSent, true, userID, channel, nil, nil)
	return nil
}

func setupFailure(kind store.Kind, deps Deps) error {
	if kind == store.KindSMS {
		return deps.Errors.SMSSetupFailed
	}
	return deps.Errors.EmailSetupFailed
}

func maskContact(kind store.Kind, contact string) string {
	if kind == store.KindSMS {
		return internal.MaskPhone(contact)
	}
	return internal.MaskEmail(contact)
}
