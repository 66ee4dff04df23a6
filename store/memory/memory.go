// Package memory is an in-process store.Store backed by maps and a single
// mutex. It is meant for tests and single-node tooling.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/MrEthical07/goMFA/store"
)

type methodKey struct {
	userID string
	kind   store.Kind
}

type deviceKey struct {
	userID      string
	fingerprint string
}

// Store implements store.Store. The zero value is not usable; call New.
type Store struct {
	mu       sync.Mutex
	methods  map[methodKey]store.FactorMethod
	pending  map[methodKey]store.PendingSetup
	codes    map[methodKey]store.VerificationCode
	backup   map[string][]store.BackupCode
	attempts map[string][]store.FailedAttempt
	devices  map[deviceKey]store.TrustedDevice
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		methods:  make(map[methodKey]store.FactorMethod),
		pending:  make(map[methodKey]store.PendingSetup),
		codes:    make(map[methodKey]store.VerificationCode),
		backup:   make(map[string][]store.BackupCode),
		attempts: make(map[string][]store.FailedAttempt),
		devices:  make(map[deviceKey]store.TrustedDevice),
	}
}

func (s *Store) Methods() store.FactorMethodRepository         { return methodRepo{s} }
func (s *Store) PendingSetups() store.PendingSetupRepository   { return pendingRepo{s} }
func (s *Store) Codes() store.VerificationCodeRepository       { return codeRepo{s} }
func (s *Store) BackupCodes() store.BackupCodeRepository       { return backupRepo{s} }
func (s *Store) FailedAttempts() store.FailedAttemptRepository { return attemptRepo{s} }
func (s *Store) TrustedDevices() store.TrustedDeviceRepository { return deviceRepo{s} }

func (s *Store) EnableMethod(_ context.Context, m store.FactorMethod) (int, error) {
	if m.UserID == "" || !m.Kind.IsMethod() {
		return 0, store.ErrInvalidRecord
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	previous := 0
	for k := range s.methods {
		if k.userID == m.UserID {
			previous++
		}
	}

	key := methodKey{m.UserID, m.Kind}
	if existing, ok := s.methods[key]; ok {
		m.IsPrimary = existing.IsPrimary
	} else {
		m.IsPrimary = previous == 0
	}
	m.Enabled = true
	s.methods[key] = m
	return previous, nil
}

func (s *Store) DisableMethod(_ context.Context, userID string, kind store.Kind) (store.DisableOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := methodKey{userID, kind}
	target, ok := s.methods[key]
	if !ok {
		return store.DisableOutcome{}, store.ErrNotFound
	}

	var siblings []store.FactorMethod
	for k, m := range s.methods {
		if k.userID == userID && k.kind != kind {
			siblings = append(siblings, m)
		}
	}

	if len(siblings) == 0 {
		delete(s.methods, key)
		delete(s.backup, userID)
		for k := range s.devices {
			if k.userID == userID {
				delete(s.devices, k)
			}
		}
		return store.DisableOutcome{Cascaded: true}, nil
	}

	delete(s.methods, key)
	if target.IsPrimary {
		sort.Slice(siblings, func(i, j int) bool {
			return siblings[i].ConfiguredAt.Before(siblings[j].ConfiguredAt)
		})
		next := siblings[0]
		next.IsPrimary = true
		s.methods[methodKey{userID, next.Kind}] = next
	}
	return store.DisableOutcome{Remaining: len(siblings)}, nil
}

type methodRepo struct{ s *Store }

func (r methodRepo) Get(_ context.Context, userID string, kind store.Kind) (store.FactorMethod, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.methods[methodKey{userID, kind}]
	if !ok {
		return store.FactorMethod{}, store.ErrNotFound
	}
	return m, nil
}

func (r methodRepo) List(_ context.Context, userID string) ([]store.FactorMethod, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []store.FactorMethod
	for _, kind := range store.MethodKinds {
		if m, ok := r.s.methods[methodKey{userID, kind}]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r methodRepo) Touch(_ context.Context, userID string, kind store.Kind, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := methodKey{userID, kind}
	m, ok := r.s.methods[key]
	if !ok {
		return store.ErrNotFound
	}
	m.LastUsedAt = at
	r.s.methods[key] = m
	return nil
}

type pendingRepo struct{ s *Store }

func (r pendingRepo) Put(_ context.Context, setup store.PendingSetup) error {
	if setup.UserID == "" || setup.Payload == nil {
		return store.ErrInvalidRecord
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.pending[methodKey{setup.UserID, setup.Kind()}] = setup
	return nil
}

func (r pendingRepo) Get(_ context.Context, userID string, kind store.Kind, now time.Time) (store.PendingSetup, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.pending[methodKey{userID, kind}]
	if !ok || p.Expired(now) {
		return store.PendingSetup{}, store.ErrNotFound
	}
	return p, nil
}

func (r pendingRepo) Take(_ context.Context, userID string, kind store.Kind, now time.Time) (store.PendingSetup, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := methodKey{userID, kind}
	p, ok := r.s.pending[key]
	if !ok || p.Expired(now) {
		return store.PendingSetup{}, store.ErrNotFound
	}
	delete(r.s.pending, key)
	return p, nil
}

func (r pendingRepo) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for k, p := range r.s.pending {
		if p.Expired(now) {
			delete(r.s.pending, k)
			n++
		}
	}
	return n, nil
}

type codeRepo struct{ s *Store }

func (r codeRepo) Put(_ context.Context, code store.VerificationCode) error {
	if code.UserID == "" || !code.Channel.IsChannel() || code.ID == "" {
		return store.ErrInvalidRecord
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	// Only the newest code per channel is ever valid, so one slot suffices.
	r.s.codes[methodKey{code.UserID, code.Channel}] = code
	return nil
}

func (r codeRepo) Latest(_ context.Context, userID string, channel store.Kind, now time.Time) (store.VerificationCode, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.codes[methodKey{userID, channel}]
	if !ok || c.Used || c.Expired(now) {
		return store.VerificationCode{}, store.ErrNotFound
	}
	return c, nil
}

func (r codeRepo) MarkUsed(_ context.Context, userID string, channel store.Kind, id string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := methodKey{userID, channel}
	c, ok := r.s.codes[key]
	if !ok || c.ID != id || c.Used {
		return false, nil
	}
	c.Used = true
	r.s.codes[key] = c
	return true, nil
}

func (r codeRepo) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for k, c := range r.s.codes {
		if c.Used || c.Expired(now) {
			delete(r.s.codes, k)
			n++
		}
	}
	return n, nil
}

type backupRepo struct{ s *Store }

func (r backupRepo) Replace(_ context.Context, userID string, codes []store.BackupCode) error {
	if userID == "" {
		return store.ErrInvalidRecord
	}
	next := make([]store.BackupCode, len(codes))
	for i, c := range codes {
		c.UserID = userID
		next[i] = c
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.backup[userID] = next
	return nil
}

func (r backupRepo) Consume(_ context.Context, userID, codeHash string, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	codes := r.s.backup[userID]
	for i := range codes {
		if codes[i].CodeHash == codeHash && !codes[i].Used {
			codes[i].Used = true
			codes[i].UsedAt = at
			return true, nil
		}
	}
	return false, nil
}

func (r backupRepo) CountUnused(_ context.Context, userID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, c := range r.s.backup[userID] {
		if !c.Used {
			n++
		}
	}
	return n, nil
}

type attemptRepo struct{ s *Store }

func (r attemptRepo) Append(_ context.Context, attempt store.FailedAttempt) error {
	if attempt.UserID == "" {
		return store.ErrInvalidRecord
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.attempts[attempt.UserID] = append(r.s.attempts[attempt.UserID], attempt)
	return nil
}

func (r attemptRepo) CountSince(_ context.Context, userID string, since time.Time) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, a := range r.s.attempts[userID] {
		if a.At.After(since) {
			n++
		}
	}
	return n, nil
}

func (r attemptRepo) Clear(_ context.Context, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.attempts, userID)
	return nil
}

func (r attemptRepo) PurgeBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for userID, list := range r.s.attempts {
		kept := list[:0]
		for _, a := range list {
			if a.At.Before(cutoff) {
				n++
				continue
			}
			kept = append(kept, a)
		}
		if len(kept) == 0 {
			delete(r.s.attempts, userID)
			continue
		}
		r.s.attempts[userID] = kept
	}
	return n, nil
}

type deviceRepo struct{ s *Store }

func (r deviceRepo) Add(_ context.Context, device store.TrustedDevice) error {
	if device.UserID == "" || device.Fingerprint == "" {
		return store.ErrInvalidRecord
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.devices[deviceKey{device.UserID, device.Fingerprint}] = device
	return nil
}

func (r deviceRepo) Get(_ context.Context, userID, fingerprint string) (store.TrustedDevice, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.devices[deviceKey{userID, fingerprint}]
	if !ok {
		return store.TrustedDevice{}, store.ErrNotFound
	}
	return d, nil
}

func (r deviceRepo) List(_ context.Context, userID string) ([]store.TrustedDevice, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []store.TrustedDevice
	for k, d := range r.s.devices {
		if k.userID == userID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r deviceRepo) Touch(_ context.Context, userID, fingerprint string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := deviceKey{userID, fingerprint}
	d, ok := r.s.devices[key]
	if !ok {
		return store.ErrNotFound
	}
	d.LastUsedAt = at
	r.s.devices[key] = d
	return nil
}

func (r deviceRepo) Remove(_ context.Context, userID, fingerprint string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := deviceKey{userID, fingerprint}
	if _, ok := r.s.devices[key]; !ok {
		return false, nil
	}
	delete(r.s.devices, key)
	return true, nil
}
