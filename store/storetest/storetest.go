// Package storetest is the behavioral suite shared by every store.Store
// backend. Backends call Run from their own tests.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goMFA/store"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) store.Store

// Run executes the suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"EnableMethodTracksPreviousAndPrimary", testEnableMethodTracksPreviousAndPrimary},
		{"DisableNonLastLeavesSiblings", testDisableNonLastLeavesSiblings},
		{"DisableLastCascades", testDisableLastCascades},
		{"DisableMissingMethod", testDisableMissingMethod},
		{"ConcurrentDisableCascadesOnce", testConcurrentDisableCascadesOnce},
		{"MethodTouch", testMethodTouch},
		{"PendingTakeOnce", testPendingTakeOnce},
		{"PendingExpiry", testPendingExpiry},
		{"CodeLatestOnlyNewest", testCodeLatestOnlyNewest},
		{"CodeExpiryAndPurge", testCodeExpiryAndPurge},
		{"CodeConcurrentMarkUsed", testCodeConcurrentMarkUsed},
		{"BackupConsumeOnce", testBackupConsumeOnce},
		{"BackupConcurrentConsume", testBackupConcurrentConsume},
		{"BackupReplace", testBackupReplace},
		{"FailedAttemptWindow", testFailedAttemptWindow},
		{"TrustedDevices", testTrustedDevices},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, newStore(t))
		})
	}
}

func base() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

func method(userID string, kind store.Kind, at time.Time) store.FactorMethod {
	return store.FactorMethod{
		UserID:       userID,
		Kind:         kind,
		Enabled:      true,
		Secret:       "secret-" + string(kind),
		ConfiguredAt: at,
	}
}

func testEnableMethodTracksPreviousAndPrimary(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := base()

	prev, err := s.EnableMethod(ctx, method("u1", store.KindTOTP, now))
	require.NoError(t, err)
	require.Equal(t, 0, prev)

	prev, err = s.EnableMethod(ctx, method("u1", store.KindSMS, now.Add(time.Second)))
	require.NoError(t, err)
	require.Equal(t, 1, prev)

	prev, err = s.EnableMethod(ctx, method("u1", store.KindTOTP, now.Add(2*time.Second)))
	require.NoError(t, err)
	require.Equal(t, 2, prev)

	totp, err := s.Methods().Get(ctx, "u1", store.KindTOTP)
	require.NoError(t, err)
	require.True(t, totp.IsPrimary)
	require.True(t, totp.Enabled)
	require.Equal(t, "secret-totp", totp.Secret)

	sms, err := s.Methods().Get(ctx, "u1", store.KindSMS)
	require.NoError(t, err)
	require.False(t, sms.IsPrimary)

	list, err := s.Methods().List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)

	_, err = s.Methods().Get(ctx, "u1", store.KindEmail)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testDisableNonLastLeavesSiblings(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := base()

	for i, kind := range store.MethodKinds {
		_, err := s.EnableMethod(ctx, method("u1", kind, now.Add(time.Duration(i)*time.Second)))
		require.NoError(t, err)
	}
	require.NoError(t, s.BackupCodes().Replace(ctx, "u1", hashes("u1", 3)))
	require.NoError(t, s.TrustedDevices().Add(ctx, store.TrustedDevice{UserID: "u1", Fingerprint: "fp1", CreatedAt: now}))

	out, err := s.DisableMethod(ctx, "u1", store.KindTOTP)
	require.NoError(t, err)
	require.False(t, out.Cascaded)
	require.Equal(t, 2, out.Remaining)

	_, err = s.Methods().Get(ctx, "u1", store.KindTOTP)
	require.ErrorIs(t, err, store.ErrNotFound)

	sms, err := s.Methods().Get(ctx, "u1", store.KindSMS)
	require.NoError(t, err)
	require.True(t, sms.IsPrimary, "earliest remaining method is promoted")

	email, err := s.Methods().Get(ctx, "u1", store.KindEmail)
	require.NoError(t, err)
	require.False(t, email.IsPrimary)

	unused, err := s.BackupCodes().CountUnused(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 3, unused)

	devices, err := s.TrustedDevices().List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, devices, 1)
}

func testDisableLastCascades(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := base()

	for _, userID := range []string{"u1", "u2"} {
		_, err := s.EnableMethod(ctx, method(userID, store.KindTOTP, now))
		require.NoError(t, err)
		require.NoError(t, s.BackupCodes().Replace(ctx, userID, hashes(userID, 4)))
		require.NoError(t, s.TrustedDevices().Add(ctx, store.TrustedDevice{UserID: userID, Fingerprint: "fp-" + userID, CreatedAt: now}))
	}

	out, err := s.DisableMethod(ctx, "u1", store.KindTOTP)
	require.NoError(t, err)
	require.True(t, out.Cascaded)
	require.Equal(t, 0, out.Remaining)

	list, err := s.Methods().List(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, list)

	unused, err := s.BackupCodes().CountUnused(ctx, "u1")
	require.NoError(t, err)
	require.Zero(t, unused)

	devices, err := s.TrustedDevices().List(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, devices)

	// Another user's records are untouched.
	unused, err = s.BackupCodes().CountUnused(ctx, "u2")
	require.NoError(t, err)
	require.Equal(t, 4, unused)
	devices, err = s.TrustedDevices().List(ctx, "u2")
	require.NoError(t, err)
	require.Len(t, devices, 1)
}

func testDisableMissingMethod(t *testing.T, s store.Store) {
	_, err := s.DisableMethod(context.Background(), "nobody", store.KindSMS)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testConcurrentDisableCascadesOnce(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := base()
	_, err := s.EnableMethod(ctx, method("u1", store.KindTOTP, now))
	require.NoError(t, err)
	_, err = s.EnableMethod(ctx, method("u1", store.KindSMS, now.Add(time.Second)))
	require.NoError(t, err)
	require.NoError(t, s.BackupCodes().Replace(ctx, "u1", hashes("u1", 2)))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		cascades int
		removed  int
	)
	for _, kind := range []store.Kind{store.KindTOTP, store.KindSMS} {
		wg.Add(1)
		go func(kind store.Kind) {
			defer wg.Done()
			out, err := s.DisableMethod(ctx, "u1", kind)
			if err != nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			removed++
			if out.Cascaded {
				cascades++
			}
		}(kind)
	}
	wg.Wait()

	require.Equal(t, 2, removed)
	require.Equal(t, 1, cascades, "exactly one disable observes itself as last")

	unused, err := s.BackupCodes().CountUnused(ctx, "u1")
	require.NoError(t, err)
	require.Zero(t, unused)
}

func testMethodTouch(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := base()
	_, err := s.EnableMethod(ctx, method("u1", store.KindEmail, now))
	require.NoError(t, err)

	used := now.Add(time.Minute)
	require.NoError(t, s.Methods().Touch(ctx, "u1", store.KindEmail, used))

	m, err := s.Methods().Get(ctx, "u1", store.KindEmail)
	require.NoError(t, err)
	require.True(t, m.LastUsedAt.Equal(used), "last used %v, want %v", m.LastUsedAt, used)

	require.ErrorIs(t, s.Methods().Touch(ctx, "u1", store.KindSMS, used), store.ErrNotFound)
}

func testPendingTakeOnce(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := base()
	payloads := []store.PendingPayload{
		store.TOTPSecret{Secret: "JBSWY3DPEHPK3PXP"},
		store.PhoneContact{Phone: "5551234567"},
		store.EmailContact{Address: "ab@example.com"},
	}
	for _, p := range payloads {
		require.NoError(t, s.PendingSetups().Put(ctx, store.PendingSetup{
			UserID:    "u1",
			Payload:   p,
			CreatedAt: now,
			ExpiresAt: now.Add(30 * time.Minute),
		}))
	}

	for _, p := range payloads {
		got, err := s.PendingSetups().Get(ctx, "u1", p.Kind(), now)
		require.NoError(t, err)
		require.Equal(t, p, got.Payload)

		taken, err := s.PendingSetups().Take(ctx, "u1", p.Kind(), now)
		require.NoError(t, err)
		require.Equal(t, p, taken.Payload)
		require.True(t, taken.ExpiresAt.Equal(now.Add(30*time.Minute)))

		_, err = s.PendingSetups().Take(ctx, "u1", p.Kind(), now)
		require.ErrorIs(t, err, store.ErrNotFound)
	}
}

func testPendingExpiry(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := base()
	require.NoError(t, s.PendingSetups().Put(ctx, store.PendingSetup{
		UserID:    "u1",
		Payload:   store.TOTPSecret{Secret: "first"},
		CreatedAt: now,
		ExpiresAt: now.Add(30 * time.Minute),
	}))
	// A second setup replaces the first.
	require.NoError(t, s.PendingSetups().Put(ctx, store.PendingSetup{
		UserID:    "u1",
		Payload:   store.TOTPSecret{Secret: "second"},
		CreatedAt: now,
		ExpiresAt: now.Add(30 * time.Minute),
	}))
	got, err := s.PendingSetups().Get(ctx, "u1", store.KindTOTP, now)
	require.NoError(t, err)
	require.Equal(t, "second", got.Payload.Value())

	later := now.Add(31 * time.Minute)
	_, err = s.PendingSetups().Get(ctx, "u1", store.KindTOTP, later)
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.PendingSetups().Take(ctx, "u1", store.KindTOTP, later)
	require.ErrorIs(t, err, store.ErrNotFound)

	n, err := s.PendingSetups().PurgeExpired(ctx, later)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	_, err = s.PendingSetups().Get(ctx, "u1", store.KindTOTP, now)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func code(id, userID string, channel store.Kind, hash string, at time.Time) store.VerificationCode {
	return store.VerificationCode{
		ID:              id,
		UserID:          userID,
		Channel:         channel,
		CodeHash:        hash,
		DestinationHash: "dest-" + hash,
		CreatedAt:       at,
		ExpiresAt:       at.Add(5 * time.Minute),
	}
}

func testCodeLatestOnlyNewest(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := base()
	require.NoError(t, s.Codes().Put(ctx, code("c1", "u1", store.KindSMS, "h1", now)))
	require.NoError(t, s.Codes().Put(ctx, code("c2", "u1", store.KindSMS, "h2", now.Add(time.Second))))
	require.NoError(t, s.Codes().Put(ctx, code("c3", "u1", store.KindEmail, "h3", now)))

	latest, err := s.Codes().Latest(ctx, "u1", store.KindSMS, now.Add(time.Second))
	require.NoError(t, err)
	require.Equal(t, "c2", latest.ID)
	require.Equal(t, "h2", latest.CodeHash)
	require.Equal(t, "dest-h2", latest.DestinationHash)

	ok, err := s.Codes().MarkUsed(ctx, "u1", store.KindSMS, "c1")
	require.NoError(t, err)
	require.False(t, ok, "superseded code cannot be consumed")

	ok, err = s.Codes().MarkUsed(ctx, "u1", store.KindSMS, "c2")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.Codes().MarkUsed(ctx, "u1", store.KindSMS, "c2")
	require.NoError(t, err)
	require.False(t, ok, "second consume must fail")

	_, err = s.Codes().Latest(ctx, "u1", store.KindSMS, now.Add(time.Second))
	require.ErrorIs(t, err, store.ErrNotFound)

	email, err := s.Codes().Latest(ctx, "u1", store.KindEmail, now)
	require.NoError(t, err)
	require.Equal(t, "c3", email.ID)
}

func testCodeExpiryAndPurge(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := base()
	require.NoError(t, s.Codes().Put(ctx, code("c1", "u1", store.KindEmail, "h1", now)))

	_, err := s.Codes().Latest(ctx, "u1", store.KindEmail, now.Add(5*time.Minute))
	require.ErrorIs(t, err, store.ErrNotFound)

	n, err := s.Codes().PurgeExpired(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	require.Zero(t, n)

	n, err = s.Codes().PurgeExpired(ctx, now.Add(6*time.Minute))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func testCodeConcurrentMarkUsed(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Codes().Put(ctx, code("c1", "u1", store.KindSMS, "h1", base())))

	const workers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.Codes().MarkUsed(ctx, "u1", store.KindSMS, "c1")
			if err == nil && ok {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, success)
}

func hashes(userID string, n int) []store.BackupCode {
	out := make([]store.BackupCode, n)
	for i := range out {
		out[i] = store.BackupCode{UserID: userID, CodeHash: fmt.Sprintf("%s-hash-%d", userID, i)}
	}
	return out
}

func testBackupConsumeOnce(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := base()
	require.NoError(t, s.BackupCodes().Replace(ctx, "u1", hashes("u1", 10)))

	ok, err := s.BackupCodes().Consume(ctx, "u1", "u1-hash-3", now)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.BackupCodes().Consume(ctx, "u1", "u1-hash-3", now)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = s.BackupCodes().Consume(ctx, "u2", "u1-hash-4", now)
	require.NoError(t, err)
	require.False(t, ok, "codes are scoped to their owner")

	unused, err := s.BackupCodes().CountUnused(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 9, unused)
}

func testBackupConcurrentConsume(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.BackupCodes().Replace(ctx, "u1", hashes("u1", 2)))

	const workers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.BackupCodes().Consume(ctx, "u1", "u1-hash-0", base())
			if err == nil && ok {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, success)
}

func testBackupReplace(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.BackupCodes().Replace(ctx, "u1", hashes("u1", 10)))
	require.NoError(t, s.BackupCodes().Replace(ctx, "u1", []store.BackupCode{{CodeHash: "fresh"}}))

	ok, err := s.BackupCodes().Consume(ctx, "u1", "u1-hash-0", base())
	require.NoError(t, err)
	require.False(t, ok, "replaced codes are gone")

	unused, err := s.BackupCodes().CountUnused(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 1, unused)
}

func testFailedAttemptWindow(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := base()
	offsets := []time.Duration{-40 * time.Minute, -20 * time.Minute, -10 * time.Minute, -time.Minute}
	for i, off := range offsets {
		require.NoError(t, s.FailedAttempts().Append(ctx, store.FailedAttempt{
			ID:     fmt.Sprintf("a%d", i),
			UserID: "u1",
			At:     now.Add(off),
		}))
	}
	require.NoError(t, s.FailedAttempts().Append(ctx, store.FailedAttempt{ID: "b0", UserID: "u2", At: now}))

	n, err := s.FailedAttempts().CountSince(ctx, "u1", now.Add(-30*time.Minute))
	require.NoError(t, err)
	require.Equal(t, 3, n)

	purged, err := s.FailedAttempts().PurgeBefore(ctx, now.Add(-30*time.Minute))
	require.NoError(t, err)
	require.EqualValues(t, 1, purged)

	n, err = s.FailedAttempts().CountSince(ctx, "u1", now.Add(-time.Hour))
	require.NoError(t, err)
	require.Equal(t, 3, n)

	require.NoError(t, s.FailedAttempts().Clear(ctx, "u1"))
	n, err = s.FailedAttempts().CountSince(ctx, "u1", now.Add(-time.Hour))
	require.NoError(t, err)
	require.Zero(t, n)

	n, err = s.FailedAttempts().CountSince(ctx, "u2", now.Add(-time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func testTrustedDevices(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := base()
	require.NoError(t, s.TrustedDevices().Add(ctx, store.TrustedDevice{
		UserID: "u1", Fingerprint: "fp1", Name: "laptop", CreatedAt: now, LastUsedAt: now,
	}))
	require.NoError(t, s.TrustedDevices().Add(ctx, store.TrustedDevice{
		UserID: "u1", Fingerprint: "fp2", Name: "phone", CreatedAt: now.Add(time.Second), LastUsedAt: now,
	}))

	d, err := s.TrustedDevices().Get(ctx, "u1", "fp1")
	require.NoError(t, err)
	require.Equal(t, "laptop", d.Name)

	later := now.Add(time.Hour)
	require.NoError(t, s.TrustedDevices().Touch(ctx, "u1", "fp1", later))
	d, err = s.TrustedDevices().Get(ctx, "u1", "fp1")
	require.NoError(t, err)
	require.True(t, d.LastUsedAt.Equal(later))

	list, err := s.TrustedDevices().List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "fp1", list[0].Fingerprint)

	removed, err := s.TrustedDevices().Remove(ctx, "u1", "fp1")
	require.NoError(t, err)
	require.True(t, removed)
	removed, err = s.TrustedDevices().Remove(ctx, "u1", "fp1")
	require.NoError(t, err)
	require.False(t, removed)

	_, err = s.TrustedDevices().Get(ctx, "u1", "fp1")
	require.ErrorIs(t, err, store.ErrNotFound)
	require.ErrorIs(t, s.TrustedDevices().Touch(ctx, "u1", "fp1", later), store.ErrNotFound)
}
