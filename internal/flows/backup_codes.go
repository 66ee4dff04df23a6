package flows

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/goMFA/internal"
	"github.com/MrEthical07/goMFA/store"
)

var errBackupCodeCollision = errors.New("could not draw distinct backup codes")

// RunGenerateBackupCodes replaces the user's backup codes with a fresh
// batch and returns the plaintext codes. They are not retrievable again.
// The user must have at least one enabled method.
func RunGenerateBackupCodes(ctx context.Context, userID string, deps Deps) ([]string, error) {
	normalizeDeps(&deps)
	if err := ready(&deps); err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, deps.Errors.UserNotFound
	}

	methods, err := deps.Store.Methods().List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", deps.Errors.Unavailable, err)
	}
	if len(methods) == 0 {
		return nil, deps.Errors.MethodNotFound
	}
	return generateBackupCodes(ctx, userID, deps)
}

func generateBackupCodes(ctx context.Context, userID string, deps Deps) ([]string, error) {
	count := deps.BackupCodeCount
	if count <= 0 {
		count = 10
	}
	length := deps.BackupCodeLength
	if length <= 0 {
		length = 8
	}

	codes := make([]string, 0, count)
	records := make([]store.BackupCode, 0, count)
	seen := make(map[string]struct{}, count)
	for attempts := 0; len(codes) < count; attempts++ {
		if attempts >= count*4 {
			return nil, fmt.Errorf("%w: %v", deps.Errors.Unavailable, errBackupCodeCollision)
		}
		code, err := deps.NewBackupCode(length)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", deps.Errors.Unavailable, err)
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
		records = append(records, store.BackupCode{
			UserID:   userID,
			CodeHash: internal.HashCode(internal.CanonicalizeBackupCode(code)),
		})
	}

	if err := deps.Store.BackupCodes().Replace(ctx, userID, records); err != nil {
		return nil, fmt.Errorf("%w: %v", deps.Errors.Unavailable, err)
	}

	deps.MetricInc(deps.Metrics.BackupCodesGenerated)
	deps.EmitAudit(ctx, deps.Events.BackupCodesGenerated, true, userID, store.KindBackup, nil, nil)
	return codes, nil
}
