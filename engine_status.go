package goMFA

import (
	"context"

	"github.com/MrEthical07/goMFA/internal/flows"
)

// GetStatus reports the state of every method, the number of unused
// backup codes and the trusted devices of userID.
func (e *Engine) GetStatus(ctx context.Context, userID string) Result[TwoFactorStatus] {
	if !e.ready() {
		return resultErr[TwoFactorStatus](ErrEngineNotReady)
	}
	status, err := flows.RunGetStatus(ctx, userID, e.deps)
	return finish(e, "get_status", userID, "", status, err)
}
