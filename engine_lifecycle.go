package goMFA

import (
	"context"

	"github.com/MrEthical07/goMFA/internal/flows"
)

// EnableMethod confirms a pending setup with code and turns it into an
// enabled method. The user's first method also yields a batch of backup
// codes in Enablement.BackupCodes. A second call for the same setup fails
// with ErrPendingSetupNotFound.
func (e *Engine) EnableMethod(ctx context.Context, userID string, kind FactorKind, code string) Result[Enablement] {
	if !e.ready() {
		return resultErr[Enablement](ErrEngineNotReady)
	}
	res, err := flows.RunEnableMethod(ctx, userID, kind, code, e.deps)
	return finish(e, "enable_method", userID, kind, Enablement{
		Method:      res.Method,
		BackupCodes: res.BackupCodes,
	}, err)
}

// DisableMethod removes an enabled method after checking the account
// password. Removing the last method also removes the user's backup codes
// and trusted devices.
func (e *Engine) DisableMethod(ctx context.Context, userID string, kind FactorKind, password string) Result[Disablement] {
	if !e.ready() {
		return resultErr[Disablement](ErrEngineNotReady)
	}
	res, err := flows.RunDisableMethod(ctx, userID, kind, password, e.deps)
	return finish(e, "disable_method", userID, kind, Disablement{
		Kind:      kind,
		TornDown:  res.Cascaded,
		Remaining: res.Remaining,
	}, err)
}
