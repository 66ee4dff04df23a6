package flows

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/goMFA/store"
)

// EnableResult describes a successful enablement.
type EnableResult struct {
	Method store.FactorMethod
	// BackupCodes holds the plaintext batch generated when this was the
	// user's first method. It is empty otherwise.
	BackupCodes []string
}

// RunEnableMethod confirms a pending setup with code and promotes it to an
// enabled FactorMethod. The code is checked against the pending secret
// (TOTP) or the newest code sent to the pending contact (SMS/Email). The
// first method a user enables also produces their backup-code batch.
func RunEnableMethod(ctx context.Context, userID string, kind store.Kind, code string, deps Deps) (EnableResult, error) {
	normalizeDeps(&deps)
	if err := ready(&deps); err != nil {
		return EnableResult{}, err
	}
	if userID == "" {
		return EnableResult{}, deps.Errors.UserNotFound
	}
	if !kind.IsMethod() {
		return EnableResult{}, deps.Errors.InvalidKind
	}

	pending, err := deps.Store.PendingSetups().Get(ctx, userID, kind, deps.Now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return EnableResult{}, deps.Errors.PendingNotFound
		}
		return EnableResult{}, fmt.Errorf("%w: %v", deps.Errors.Unavailable, err)
	}

	err = guardedMatch(ctx, userID, kind, deps, func() (bool, error) {
		return matchFactorCode(ctx, userID, kind, code, pending.Payload.Value(), deps)
	})
	if err != nil {
		return EnableResult{}, err
	}

	// Take is the single-winner step: of two concurrent confirmations only
	// one still finds the pending record.
	pending, err = deps.Store.PendingSetups().Take(ctx, userID, kind, deps.Now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return EnableResult{}, deps.Errors.PendingNotFound
		}
		return EnableResult{}, fmt.Errorf("%w: %v", deps.Errors.Unavailable, err)
	}

	now := deps.Now()
	method := store.FactorMethod{
		UserID:       userID,
		Kind:         kind,
		Enabled:      true,
		Secret:       pending.Payload.Value(),
		ConfiguredAt: now,
		LastUsedAt:   now,
	}
	previous, err := deps.Store.EnableMethod(ctx, method)
	if err != nil {
		return EnableResult{}, fmt.Errorf("%w: %v", deps.Errors.Unavailable, err)
	}
	method.IsPrimary = previous == 0
	if stored, err := deps.Store.Methods().Get(ctx, userID, kind); err == nil {
		method = stored
	}

	out := EnableResult{Method: method}
	if previous == 0 {
		codes, err := generateBackupCodes(ctx, userID, deps)
		if err != nil {
			// A first method never stays enabled without backup codes.
			return EnableResult{}, rollbackEnable(ctx, pending, err, deps)
		}
		out.BackupCodes = codes
	}

	deps.MetricInc(deps.Metrics.MethodEnabled)
	deps.EmitAudit(ctx, deps.Events.MethodEnabled, true, userID, kind, nil, nil)
	return out, nil
}

// rollbackEnable undoes a committed enable after a later step failed with
// cause: the method is removed and the pending setup put back so the user
// can confirm again. cause is returned, with any rollback failure appended.
func rollbackEnable(ctx context.Context, pending store.PendingSetup, cause error, deps Deps) error {
	if _, err := deps.Store.DisableMethod(ctx, pending.UserID, pending.Kind()); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w (rollback: %v)", cause, err)
	}
	if err := deps.Store.PendingSetups().Put(ctx, pending); err != nil {
		return fmt.Errorf("%w (restore pending: %v)", cause, err)
	}
	deps.EmitAudit(ctx, deps.Events.MethodEnabled, false, pending.UserID, pending.Kind(), cause, nil)
	return cause
}

// DisableResult describes what RunDisableMethod removed.
type DisableResult struct {
	Cascaded  bool
	Remaining int
}

// RunDisableMethod removes the (userID, kind) method after checking the
// account password. Removing the last method also removes every backup
// code and trusted device of the user in the same store transaction.
func RunDisableMethod(ctx context.Context, userID string, kind store.Kind, password string, deps Deps) (DisableResult, error) {
	normalizeDeps(&deps)
	if err := ready(&deps); err != nil {
		return DisableResult{}, err
	}
	if userID == "" {
		return DisableResult{}, deps.Errors.UserNotFound
	}
	if !kind.IsMethod() {
		return DisableResult{}, deps.Errors.InvalidKind
	}
	if deps.VerifyPassword == nil {
		return DisableResult{}, deps.Errors.NotConfigured
	}

	ok, err := deps.VerifyPassword(ctx, userID, password)
	if err != nil {
		return DisableResult{}, fmt.Errorf("%w: %v", deps.Errors.Unavailable, err)
	}
	if !ok {
		deps.EmitAudit(ctx, deps.Events.MethodDisabled, false, userID, kind, deps.Errors.InvalidPassword, nil)
		return DisableResult{}, deps.Errors.InvalidPassword
	}

	outcome, err := deps.Store.DisableMethod(ctx, userID, kind)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return DisableResult{}, deps.Errors.MethodNotFound
		}
		return DisableResult{}, fmt.Errorf("%w: %v", deps.Errors.Unavailable, err)
	}

	deps.MetricInc(deps.Metrics.MethodDisabled)
	deps.EmitAudit(ctx, deps.Events.MethodDisabled, true, userID, kind, nil, nil)
	if outcome.Cascaded {
		deps.MetricInc(deps.Metrics.Teardown)
		deps.EmitAudit(ctx, deps.Events.Teardown, true, userID, kind, nil, nil)
	}
	return DisableResult{Cascaded: outcome.Cascaded, Remaining: outcome.Remaining}, nil
}
