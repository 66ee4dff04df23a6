package goMFA

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Purge deletes expired pending setups, expired or used verification
// codes, and failed attempts older than the lockout window. Each step runs
// even if an earlier one failed; the first error is returned alongside the
// partial report.
func (e *Engine) Purge(ctx context.Context) (PurgeReport, error) {
	if !e.ready() {
		return PurgeReport{}, ErrEngineNotReady
	}

	var (
		report   PurgeReport
		firstErr error
		err      error
	)
	keep := func(step string, err error) {
		if err == nil {
			return
		}
		e.logger.Error("mfa purge step failed", zap.String("step", step), zap.Error(err))
		if firstErr == nil {
			firstErr = fmt.Errorf("%w: purge %s: %v", ErrUnavailable, step, err)
		}
	}

	now := e.now()
	report.PendingSetups, err = e.store.PendingSetups().PurgeExpired(ctx, now)
	keep("pending_setups", err)
	report.Codes, err = e.store.Codes().PurgeExpired(ctx, now)
	keep("codes", err)
	report.FailedAttempts, err = e.lockout.Purge(ctx)
	keep("failed_attempts", err)

	e.logger.Debug("mfa purge finished",
		zap.Int64("pending_setups", report.PendingSetups),
		zap.Int64("codes", report.Codes),
		zap.Int64("failed_attempts", report.FailedAttempts),
	)
	return report, firstErr
}
