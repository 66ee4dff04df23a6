package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goMFA/internal"
	"github.com/MrEthical07/goMFA/store"
)

// LockoutConfig holds configuration for the failed-attempt lockout policy.
type LockoutConfig struct {
	Threshold int
	Window    time.Duration
}

var (
	// ErrLockoutUnavailable indicates the failed-attempt store is unreachable.
	ErrLockoutUnavailable = errors.New("lockout backend unavailable")
)

// LockoutPolicy locks a user once Threshold failures fall inside the
// trailing Window. The window is evaluated at read time from stored
// FailedAttempt rows, so expiry needs no background sweep.
//
// Count-then-decide is not atomic with respect to concurrent failures; a
// burst may overshoot the threshold by the number of in-flight requests.
type LockoutPolicy struct {
	attempts store.FailedAttemptRepository
	config   LockoutConfig
	now      func() time.Time
	newID    func() string
}

// NewLockoutPolicy creates a lockout policy over attempts. now and newID
// may be nil to use time.Now and ULID record ids.
func NewLockoutPolicy(attempts store.FailedAttemptRepository, cfg LockoutConfig, now func() time.Time, newID func() string) *LockoutPolicy {
	if now == nil {
		now = time.Now
	}
	if newID == nil {
		newID = internal.NewRecordID
	}
	return &LockoutPolicy{attempts: attempts, config: cfg, now: now, newID: newID}
}

// IsLockedOut reports whether userID has reached the failure threshold
// inside the trailing window.
func (l *LockoutPolicy) IsLockedOut(ctx context.Context, userID string) (bool, error) {
	if l == nil || l.config.Threshold <= 0 || userID == "" {
		return false, nil
	}
	n, err := l.FailureCount(ctx, userID)
	if err != nil {
		return false, err
	}
	return n >= l.config.Threshold, nil
}

// FailureCount returns the number of failures inside the trailing window.
func (l *LockoutPolicy) FailureCount(ctx context.Context, userID string) (int, error) {
	if l == nil || userID == "" {
		return 0, nil
	}
	n, err := l.attempts.CountSince(ctx, userID, l.now().Add(-l.config.Window))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return n, nil
}

// RecordFailure appends one failed attempt.
func (l *LockoutPolicy) RecordFailure(ctx context.Context, userID string) error {
	if l == nil || userID == "" {
		return nil
	}
	err := l.attempts.Append(ctx, store.FailedAttempt{
		ID:     l.newID(),
		UserID: userID,
		At:     l.now(),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return nil
}

// Clear deletes every failed attempt of userID. Call it only after a
// successful verification.
func (l *LockoutPolicy) Clear(ctx context.Context, userID string) error {
	if l == nil || userID == "" {
		return nil
	}
	if err := l.attempts.Clear(ctx, userID); err != nil {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return nil
}

// Purge removes attempts that can no longer affect a lock decision.
func (l *LockoutPolicy) Purge(ctx context.Context) (int64, error) {
	if l == nil {
		return 0, nil
	}
	n, err := l.attempts.PurgeBefore(ctx, l.now().Add(-l.config.Window))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return n, nil
}
