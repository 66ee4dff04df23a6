package flows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goMFA/store"
)

// State is the enrollment state of one method kind.
type State string

const (
	StateNotConfigured       State = "not_configured"
	StatePendingVerification State = "pending_verification"
	StateEnabled             State = "enabled"
)

// MethodStatus reports one method kind.
type MethodStatus struct {
	Kind  store.Kind
	State State
	// Enabled is true once the method has been confirmed.
	Enabled bool
	// Configured is true when the method is enabled or an unexpired
	// setup is waiting for confirmation.
	Configured   bool
	IsPrimary    bool
	ConfiguredAt time.Time
	LastUsedAt   time.Time
}

// Status is a point-in-time view of a user's MFA configuration.
type Status struct {
	Enabled              bool
	Methods              []MethodStatus
	BackupCodesRemaining int
	TrustedDevices       []store.TrustedDevice
}

// RunGetStatus composes the user's MFA status from the stores. It has no
// side effects.
func RunGetStatus(ctx context.Context, userID string, deps Deps) (Status, error) {
	normalizeDeps(&deps)
	if err := ready(&deps); err != nil {
		return Status{}, err
	}
	if userID == "" {
		return Status{}, deps.Errors.UserNotFound
	}

	methods, err := deps.Store.Methods().List(ctx, userID)
	if err != nil {
		return Status{}, fmt.Errorf("%w: %v", deps.Errors.Unavailable, err)
	}
	byKind := make(map[store.Kind]store.FactorMethod, len(methods))
	for _, m := range methods {
		byKind[m.Kind] = m
	}

	now := deps.Now()
	out := Status{Methods: make([]MethodStatus, 0, len(store.MethodKinds))}
	for _, kind := range store.MethodKinds {
		ms := MethodStatus{Kind: kind, State: StateNotConfigured}
		if m, ok := byKind[kind]; ok && m.Enabled {
			ms.State = StateEnabled
			ms.Enabled = true
			ms.Configured = true
			ms.IsPrimary = m.IsPrimary
			ms.ConfiguredAt = m.ConfiguredAt
			ms.LastUsedAt = m.LastUsedAt
			out.Enabled = true
		} else {
			_, err := deps.Store.PendingSetups().Get(ctx, userID, kind, now)
			switch {
			case err == nil:
				ms.State = StatePendingVerification
				ms.Configured = true
			case !errors.Is(err, store.ErrNotFound):
				return Status{}, fmt.Errorf("%w: %v", deps.Errors.Unavailable, err)
			}
		}
		out.Methods = append(out.Methods, ms)
	}

	out.BackupCodesRemaining, err = deps.Store.BackupCodes().CountUnused(ctx, userID)
	if err != nil {
		return Status{}, fmt.Errorf("%w: %v", deps.Errors.Unavailable, err)
	}
	out.TrustedDevices, err = deps.Store.TrustedDevices().List(ctx, userID)
	if err != nil {
		return Status{}, fmt.Errorf("%w: %v", deps.Errors.Unavailable, err)
	}
	return out, nil
}
