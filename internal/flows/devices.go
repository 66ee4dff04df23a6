package flows

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/goMFA/store"
)

const maxDeviceNameLen = 128

// RunTrustDevice records the current device as trusted for userID. The
// fingerprint comes from Deps.Fingerprint, or a fresh record id when no
// source is configured.
func RunTrustDevice(ctx context.Context, userID, name string, deps Deps) (store.TrustedDevice, error) {
	normalizeDeps(&deps)
	if err := ready(&deps); err != nil {
		return store.TrustedDevice{}, err
	}
	if userID == "" {
		return store.TrustedDevice{}, deps.Errors.UserNotFound
	}
	return trustDevice(ctx, userID, name, deps)
}

func trustDevice(ctx context.Context, userID, name string, deps Deps) (store.TrustedDevice, error) {
	fingerprint := ""
	if deps.Fingerprint != nil {
		fp, err := deps.Fingerprint(ctx)
		if err != nil {
			return store.TrustedDevice{}, fmt.Errorf("%w: %v", deps.Errors.Unavailable, err)
		}
		fingerprint = fp
	}
	if fingerprint == "" {
		fingerprint = deps.NewID()
	}

	name = strings.TrimSpace(name)
	if len(name) > maxDeviceNameLen {
		name = name[:maxDeviceNameLen]
	}

	now := deps.Now()
	device := store.TrustedDevice{
		UserID:      userID,
		Fingerprint: fingerprint,
		Name:        name,
		CreatedAt:   now,
		LastUsedAt:  now,
	}
	if err := deps.Store.TrustedDevices().Add(ctx, device); err != nil {
		return store.TrustedDevice{}, fmt.Errorf("%w: %v", deps.Errors.Unavailable, err)
	}

	deps.MetricInc(deps.Metrics.DeviceTrusted)
	deps.EmitAudit(ctx, deps.Events.DeviceTrusted, true, userID, "", nil, func() map[string]string {
		return map[string]string{"device_name": name}
	})
	return device, nil
}

// RunCheckDevice reports whether fingerprint is a trusted device of userID
// and bumps its last-used time.
func RunCheckDevice(ctx context.Context, userID, fingerprint string, deps Deps) (store.TrustedDevice, error) {
	normalizeDeps(&deps)
	if err := ready(&deps); err != nil {
		return store.TrustedDevice{}, err
	}
	if userID == "" || fingerprint == "" {
		return store.TrustedDevice{}, deps.Errors.DeviceNotFound
	}

	device, err := deps.Store.TrustedDevices().Get(ctx, userID, fingerprint)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.TrustedDevice{}, deps.Errors.DeviceNotFound
		}
		return store.TrustedDevice{}, fmt.Errorf("%w: %v", deps.Errors.Unavailable, err)
	}

	now := deps.Now()
	if err := deps.Store.TrustedDevices().Touch(ctx, userID, fingerprint, now); err == nil {
		device.LastUsedAt = now
	}
	return device, nil
}

// RunRevokeDevice removes one trusted device.
func RunRevokeDevice(ctx context.Context, userID, fingerprint string, deps Deps) error {
	normalizeDeps(&deps)
	if err := ready(&deps); err != nil {
		return err
	}
	if userID == "" || fingerprint == "" {
		return deps.Errors.DeviceNotFound
	}

	removed, err := deps.Store.TrustedDevices().Remove(ctx, userID, fingerprint)
	if err != nil {
		return fmt.Errorf("%w: %v", deps.Errors.Unavailable, err)
	}
	if !removed {
		return deps.Errors.DeviceNotFound
	}

	deps.MetricInc(deps.Metrics.DeviceRevoked)
	deps.EmitAudit(ctx, deps.Events.DeviceRevoked, true, userID, "", nil, nil)
	return nil
}
