package flows

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/goMFA/internal"
	"github.com/MrEthical07/goMFA/store"
)

// VerifyRequest is the input to RunVerify.
type VerifyRequest struct {
	UserID         string
	Kind           store.Kind
	Code           string
	RememberDevice bool
	DeviceName     string
}

// VerifyResult describes a successful verification.
type VerifyResult struct {
	Kind store.Kind
	// Device is set when the caller asked to remember the device.
	Device *store.TrustedDevice
	// DeviceErr is set instead of Device when remembering the device failed.
	// The verification itself still succeeded.
	DeviceErr error
	// BackupCodesRemaining is only filled for backup-code verifications.
	BackupCodesRemaining int
}

// RunVerify checks code against the user's enabled factor of the requested
// kind. A locked-out user gets Errors.LockedOut without the code being
// looked at. Every mismatch, including a kind the user has not enabled,
// is recorded as a failed attempt and reported as Errors.InvalidCode.
func RunVerify(ctx context.Context, req VerifyRequest, deps Deps) (VerifyResult, error) {
	normalizeDeps(&deps)
	if err := ready(&deps); err != nil {
		return VerifyResult{}, err
	}
	if req.UserID == "" {
		return VerifyResult{}, deps.Errors.UserNotFound
	}
	if req.Kind != store.KindBackup && !req.Kind.IsMethod() {
		return VerifyResult{}, deps.Errors.InvalidKind
	}

	err := guardedMatch(ctx, req.UserID, req.Kind, deps, func() (bool, error) {
		if req.Kind == store.KindBackup {
			return matchBackupCode(ctx, req.UserID, req.Code, deps)
		}
		method, err := deps.Store.Methods().Get(ctx, req.UserID, req.Kind)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return false, nil
			}
			return false, fmt.Errorf("%w: %v", deps.Errors.Unavailable, err)
		}
		if !method.Enabled {
			return false, nil
		}
		return matchFactorCode(ctx, req.UserID, req.Kind, req.Code, method.Secret, deps)
	})
	if err != nil {
		return VerifyResult{}, err
	}

	out := VerifyResult{Kind: req.Kind}
	if req.Kind == store.KindBackup {
		n, err := deps.Store.BackupCodes().CountUnused(ctx, req.UserID)
		if err == nil {
			out.BackupCodesRemaining = n
		}
		deps.MetricInc(deps.Metrics.BackupCodeUsed)
	} else {
		// lastUsedAt is bookkeeping; a failed touch does not undo the match.
		_ = deps.Store.Methods().Touch(ctx, req.UserID, req.Kind, deps.Now())
	}

	if req.RememberDevice {
		// The code is already consumed, so a failed trust must not turn
		// the verification into an error.
		device, err := trustDevice(ctx, req.UserID, req.DeviceName, deps)
		if err != nil {
			deps.EmitAudit(ctx, deps.Events.DeviceTrusted, false, req.UserID, "", err, nil)
			out.DeviceErr = err
		} else {
			out.Device = &device
		}
	}
	return out, nil
}

// guardedMatch runs match behind the lockout policy. A store error from
// match is returned as is and does not count as a failed attempt.
func guardedMatch(ctx context.Context, userID string, kind store.Kind, deps Deps, match func() (bool, error)) error {
	if deps.Lockout != nil {
		locked, err := deps.Lockout.IsLockedOut(ctx, userID)
		if err != nil {
			return fmt.Errorf("%w: %v", deps.Errors.Unavailable, err)
		}
		if locked {
			deps.MetricInc(deps.Metrics.LockedOut)
			deps.EmitAudit(ctx, deps.Events.LockedOut, false, userID, kind, deps.Errors.LockedOut, nil)
			return deps.Errors.LockedOut
		}
	}

	ok, err := match()
	if err != nil {
		return err
	}

	if !ok {
		deps.MetricInc(deps.Metrics.VerifyFailure)
		deps.EmitAudit(ctx, deps.Events.VerifyFailure, false, userID, kind, deps.Errors.InvalidCode, nil)
		if deps.Lockout != nil {
			if err := deps.Lockout.RecordFailure(ctx, userID); err != nil {
				return fmt.Errorf("%w: %v", deps.Errors.Unavailable, err)
			}
		}
		return deps.Errors.InvalidCode
	}

	if deps.Lockout != nil {
		if err := deps.Lockout.Clear(ctx, userID); err != nil {
			return fmt.Errorf("%w: %v", deps.Errors.Unavailable, err)
		}
	}
	deps.MetricInc(deps.Metrics.VerifySuccess)
	deps.EmitAudit(ctx, deps.Events.VerifySuccess, true, userID, kind, nil, nil)
	return nil
}

// matchFactorCode checks code for a TOTP or channel factor. For TOTP,
// secret is the shared secret. For channels, secret is the contact being
// proven: the newest outstanding VerificationCode must have been sent to
// it, and is consumed on match.
func matchFactorCode(ctx context.Context, userID string, kind store.Kind, code, secret string, deps Deps) (bool, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return false, nil
	}

	if kind == store.KindTOTP {
		if deps.ValidateTOTP == nil || secret == "" {
			return false, nil
		}
		return deps.ValidateTOTP(code, secret, deps.Now()), nil
	}

	latest, err := deps.Store.Codes().Latest(ctx, userID, kind, deps.Now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", deps.Errors.Unavailable, err)
	}
	if !internal.EqualHash(internal.HashCode(code), latest.CodeHash) {
		return false, nil
	}
	if !internal.EqualHash(internal.HashCode(secret), latest.DestinationHash) {
		return false, nil
	}

	ok, err := deps.Store.Codes().MarkUsed(ctx, userID, kind, latest.ID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", deps.Errors.Unavailable, err)
	}
	return ok, nil
}

func matchBackupCode(ctx context.Context, userID, code string, deps Deps) (bool, error) {
	canonical := internal.CanonicalizeBackupCode(code)
	if canonical == "" {
		return false, nil
	}
	ok, err := deps.Store.BackupCodes().Consume(ctx, userID, internal.HashCode(canonical), deps.Now())
	if err != nil {
		return false, fmt.Errorf("%w: %v", deps.Errors.Unavailable, err)
	}
	return ok, nil
}
