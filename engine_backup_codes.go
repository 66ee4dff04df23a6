package goMFA

import (
	"context"

	"github.com/MrEthical07/goMFA/internal/flows"
)

// GenerateBackupCodes replaces the user's backup codes with a new batch
// and returns the plaintext codes. Only their hashes are stored. The user
// must have at least one enabled method.
func (e *Engine) GenerateBackupCodes(ctx context.Context, userID string) Result[[]string] {
	if !e.ready() {
		return resultErr[[]string](ErrEngineNotReady)
	}
	codes, err := flows.RunGenerateBackupCodes(ctx, userID, e.deps)
	return finish(e, "generate_backup_codes", userID, FactorBackup, codes, err)
}
