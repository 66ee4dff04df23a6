package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goMFA/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store implements store.Store on PostgreSQL through a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

// New wraps an existing pool. The schema must already be migrated.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Open connects to dsn, applies pending migrations and returns the store.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if err := Migrate(dsn); err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return New(pool), nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Methods() store.FactorMethodRepository         { return methodRepo{s} }
func (s *Store) PendingSetups() store.PendingSetupRepository   { return pendingRepo{s} }
func (s *Store) Codes() store.VerificationCodeRepository       { return codeRepo{s} }
func (s *Store) BackupCodes() store.BackupCodeRepository       { return backupRepo{s} }
func (s *Store) FailedAttempts() store.FailedAttemptRepository { return attemptRepo{s} }
func (s *Store) TrustedDevices() store.TrustedDeviceRepository { return deviceRepo{s} }

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
}

// withUserTx runs fn in a transaction holding a per-user advisory lock, so
// enable and disable calls for the same user serialize even when the user
// has no rows yet.
func (s *Store) withUserTx(ctx context.Context, userID string, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return unavailable(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, userID); err != nil {
		return unavailable(err)
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return unavailable(err)
	}
	return nil
}

type methodRow struct {
	kind         store.Kind
	isPrimary    bool
	configuredAt time.Time
}

func lockedMethods(ctx context.Context, tx pgx.Tx, userID string) ([]methodRow, error) {
	rows, err := tx.Query(ctx, `
		SELECT kind, is_primary, configured_at
		FROM mfa_factor_methods
		WHERE user_id = $1
		ORDER BY configured_at, kind`, userID)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	var out []methodRow
	for rows.Next() {
		var r methodRow
		var kind string
		if err := rows.Scan(&kind, &r.isPrimary, &r.configuredAt); err != nil {
			return nil, unavailable(err)
		}
		r.kind = store.Kind(kind)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

func (s *Store) EnableMethod(ctx context.Context, m store.FactorMethod) (int, error) {
	if m.UserID == "" || !m.Kind.IsMethod() {
		return 0, store.ErrInvalidRecord
	}
	var previous int
	err := s.withUserTx(ctx, m.UserID, func(tx pgx.Tx) error {
		existing, err := lockedMethods(ctx, tx, m.UserID)
		if err != nil {
			return err
		}
		previous = len(existing)

		primary := previous == 0
		for _, r := range existing {
			if r.kind == m.Kind {
				primary = r.isPrimary
			}
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO mfa_factor_methods (user_id, kind, secret, is_primary, configured_at, last_used_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (user_id, kind) DO UPDATE
			SET secret = EXCLUDED.secret,
			    is_primary = EXCLUDED.is_primary,
			    configured_at = EXCLUDED.configured_at,
			    last_used_at = EXCLUDED.last_used_at`,
			m.UserID, string(m.Kind), m.Secret, primary, m.ConfiguredAt, nullTime(m.LastUsedAt))
		if err != nil {
			return unavailable(err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return previous, nil
}

func (s *Store) DisableMethod(ctx context.Context, userID string, kind store.Kind) (store.DisableOutcome, error) {
	var out store.DisableOutcome
	err := s.withUserTx(ctx, userID, func(tx pgx.Tx) error {
		existing, err := lockedMethods(ctx, tx, userID)
		if err != nil {
			return err
		}
		var (
			target   *methodRow
			siblings []methodRow
		)
		for i := range existing {
			if existing[i].kind == kind {
				target = &existing[i]
				continue
			}
			siblings = append(siblings, existing[i])
		}
		if target == nil {
			return store.ErrNotFound
		}

		if len(siblings) == 0 {
			out.Cascaded = true
			for _, q := range []string{
				`DELETE FROM mfa_factor_methods WHERE user_id = $1`,
				`DELETE FROM mfa_backup_codes WHERE user_id = $1`,
				`DELETE FROM mfa_trusted_devices WHERE user_id = $1`,
			} {
				if _, err := tx.Exec(ctx, q, userID); err != nil {
					return unavailable(err)
				}
			}
			return nil
		}

		out.Remaining = len(siblings)
		if _, err := tx.Exec(ctx, `DELETE FROM mfa_factor_methods WHERE user_id = $1 AND kind = $2`, userID, string(kind)); err != nil {
			return unavailable(err)
		}
		if target.isPrimary {
			// siblings keep the configured_at ordering from lockedMethods.
			_, err := tx.Exec(ctx, `UPDATE mfa_factor_methods SET is_primary = TRUE WHERE user_id = $1 AND kind = $2`,
				userID, string(siblings[0].kind))
			if err != nil {
				return unavailable(err)
			}
		}
		return nil
	})
	if err != nil {
		return store.DisableOutcome{}, err
	}
	return out, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func fromNullTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

type methodRepo struct{ s *Store }

const selectMethod = `SELECT kind, secret, is_primary, configured_at, last_used_at FROM mfa_factor_methods`

func scanMethod(userID string, row pgx.Row) (store.FactorMethod, error) {
	var (
		kind     string
		lastUsed *time.Time
		m        = store.FactorMethod{UserID: userID, Enabled: true}
	)
	if err := row.Scan(&kind, &m.Secret, &m.IsPrimary, &m.ConfiguredAt, &lastUsed); err != nil {
		return store.FactorMethod{}, err
	}
	m.Kind = store.Kind(kind)
	m.LastUsedAt = fromNullTime(lastUsed)
	return m, nil
}

func (r methodRepo) Get(ctx context.Context, userID string, kind store.Kind) (store.FactorMethod, error) {
	row := r.s.pool.QueryRow(ctx, selectMethod+` WHERE user_id = $1 AND kind = $2`, userID, string(kind))
	m, err := scanMethod(userID, row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.FactorMethod{}, store.ErrNotFound
		}
		return store.FactorMethod{}, unavailable(err)
	}
	return m, nil
}

func (r methodRepo) List(ctx context.Context, userID string) ([]store.FactorMethod, error) {
	rows, err := r.s.pool.Query(ctx, selectMethod+` WHERE user_id = $1`, userID)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	byKind := make(map[store.Kind]store.FactorMethod)
	for rows.Next() {
		m, err := scanMethod(userID, rows)
		if err != nil {
			return nil, unavailable(err)
		}
		byKind[m.Kind] = m
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}

	out := make([]store.FactorMethod, 0, len(byKind))
	for _, kind := range store.MethodKinds {
		if m, ok := byKind[kind]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r methodRepo) Touch(ctx context.Context, userID string, kind store.Kind, at time.Time) error {
	tag, err := r.s.pool.Exec(ctx, `UPDATE mfa_factor_methods SET last_used_at = $3 WHERE user_id = $1 AND kind = $2`,
		userID, string(kind), at)
	if err != nil {
		return unavailable(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

type pendingRepo struct{ s *Store }

func (r pendingRepo) Put(ctx context.Context, setup store.PendingSetup) error {
	if setup.UserID == "" || setup.Payload == nil {
		return store.ErrInvalidRecord
	}
	_, err := r.s.pool.Exec(ctx, `
		INSERT INTO mfa_pending_setups (user_id, kind, value, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, kind) DO UPDATE
		SET value = EXCLUDED.value, created_at = EXCLUDED.created_at, expires_at = EXCLUDED.expires_at`,
		setup.UserID, string(setup.Kind()), setup.Payload.Value(), setup.CreatedAt, setup.ExpiresAt)
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func scanPending(userID string, row pgx.Row) (store.PendingSetup, error) {
	var (
		kind, value string
		setup       = store.PendingSetup{UserID: userID}
	)
	if err := row.Scan(&kind, &value, &setup.CreatedAt, &setup.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.PendingSetup{}, store.ErrNotFound
		}
		return store.PendingSetup{}, unavailable(err)
	}
	payload, err := store.NewPendingPayload(store.Kind(kind), value)
	if err != nil {
		return store.PendingSetup{}, err
	}
	setup.Payload = payload
	return setup, nil
}

func (r pendingRepo) Get(ctx context.Context, userID string, kind store.Kind, now time.Time) (store.PendingSetup, error) {
	row := r.s.pool.QueryRow(ctx, `
		SELECT kind, value, created_at, expires_at
		FROM mfa_pending_setups
		WHERE user_id = $1 AND kind = $2 AND expires_at > $3`, userID, string(kind), now)
	return scanPending(userID, row)
}

func (r pendingRepo) Take(ctx context.Context, userID string, kind store.Kind, now time.Time) (store.PendingSetup, error) {
	row := r.s.pool.QueryRow(ctx, `
		DELETE FROM mfa_pending_setups
		WHERE user_id = $1 AND kind = $2 AND expires_at > $3
		RETURNING kind, value, created_at, expires_at`, userID, string(kind), now)
	return scanPending(userID, row)
}

func (r pendingRepo) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.s.pool.Exec(ctx, `DELETE FROM mfa_pending_setups WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, unavailable(err)
	}
	return tag.RowsAffected(), nil
}

type codeRepo struct{ s *Store }

func (r codeRepo) Put(ctx context.Context, code store.VerificationCode) error {
	if code.UserID == "" || !code.Channel.IsChannel() || code.ID == "" {
		return store.ErrInvalidRecord
	}
	tx, err := r.s.pool.Begin(ctx)
	if err != nil {
		return unavailable(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// A new code supersedes every earlier one for the channel.
	if _, err := tx.Exec(ctx, `DELETE FROM mfa_verification_codes WHERE user_id = $1 AND channel = $2`,
		code.UserID, string(code.Channel)); err != nil {
		return unavailable(err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO mfa_verification_codes (id, user_id, channel, code_hash, destination_hash, created_at, expires_at, used)
		VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE)`,
		code.ID, code.UserID, string(code.Channel), code.CodeHash, code.DestinationHash,
		code.CreatedAt, code.ExpiresAt); err != nil {
		return unavailable(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return unavailable(err)
	}
	return nil
}

func (r codeRepo) Latest(ctx context.Context, userID string, channel store.Kind, now time.Time) (store.VerificationCode, error) {
	code := store.VerificationCode{UserID: userID, Channel: channel}
	err := r.s.pool.QueryRow(ctx, `
		SELECT id, code_hash, destination_hash, created_at, expires_at, used
		FROM mfa_verification_codes
		WHERE user_id = $1 AND channel = $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, userID, string(channel)).
		Scan(&code.ID, &code.CodeHash, &code.DestinationHash, &code.CreatedAt, &code.ExpiresAt, &code.Used)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.VerificationCode{}, store.ErrNotFound
		}
		return store.VerificationCode{}, unavailable(err)
	}
	if code.Used || code.Expired(now) {
		return store.VerificationCode{}, store.ErrNotFound
	}
	return code, nil
}

func (r codeRepo) MarkUsed(ctx context.Context, userID string, channel store.Kind, id string) (bool, error) {
	tag, err := r.s.pool.Exec(ctx, `
		UPDATE mfa_verification_codes SET used = TRUE
		WHERE id = $1 AND user_id = $2 AND channel = $3 AND used = FALSE`, id, userID, string(channel))
	if err != nil {
		return false, unavailable(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r codeRepo) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.s.pool.Exec(ctx, `DELETE FROM mfa_verification_codes WHERE used OR expires_at <= $1`, now)
	if err != nil {
		return 0, unavailable(err)
	}
	return tag.RowsAffected(), nil
}

type backupRepo struct{ s *Store }

func (r backupRepo) Replace(ctx context.Context, userID string, codes []store.BackupCode) error {
	if userID == "" {
		return store.ErrInvalidRecord
	}
	tx, err := r.s.pool.Begin(ctx)
	if err != nil {
		return unavailable(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM mfa_backup_codes WHERE user_id = $1`, userID); err != nil {
		return unavailable(err)
	}
	rows := make([][]any, 0, len(codes))
	for _, c := range codes {
		rows = append(rows, []any{userID, c.CodeHash, false})
	}
	if len(rows) > 0 {
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"mfa_backup_codes"},
			[]string{"user_id", "code_hash", "used"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return unavailable(err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return unavailable(err)
	}
	return nil
}

func (r backupRepo) Consume(ctx context.Context, userID, codeHash string, at time.Time) (bool, error) {
	tag, err := r.s.pool.Exec(ctx, `
		UPDATE mfa_backup_codes SET used = TRUE, used_at = $3
		WHERE user_id = $1 AND code_hash = $2 AND used = FALSE`, userID, codeHash, at)
	if err != nil {
		return false, unavailable(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r backupRepo) CountUnused(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.s.pool.QueryRow(ctx, `SELECT count(*) FROM mfa_backup_codes WHERE user_id = $1 AND used = FALSE`, userID).Scan(&n)
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

type attemptRepo struct{ s *Store }

func (r attemptRepo) Append(ctx context.Context, attempt store.FailedAttempt) error {
	if attempt.UserID == "" || attempt.ID == "" {
		return store.ErrInvalidRecord
	}
	_, err := r.s.pool.Exec(ctx, `INSERT INTO mfa_failed_attempts (id, user_id, attempted_at) VALUES ($1, $2, $3)`,
		attempt.ID, attempt.UserID, attempt.At)
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (r attemptRepo) CountSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var n int
	err := r.s.pool.QueryRow(ctx, `SELECT count(*) FROM mfa_failed_attempts WHERE user_id = $1 AND attempted_at > $2`,
		userID, since).Scan(&n)
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

func (r attemptRepo) Clear(ctx context.Context, userID string) error {
	if _, err := r.s.pool.Exec(ctx, `DELETE FROM mfa_failed_attempts WHERE user_id = $1`, userID); err != nil {
		return unavailable(err)
	}
	return nil
}

func (r attemptRepo) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.s.pool.Exec(ctx, `DELETE FROM mfa_failed_attempts WHERE attempted_at < $1`, cutoff)
	if err != nil {
		return 0, unavailable(err)
	}
	return tag.RowsAffected(), nil
}

type deviceRepo struct{ s *Store }

func (r deviceRepo) Add(ctx context.Context, device store.TrustedDevice) error {
	if device.UserID == "" || device.Fingerprint == "" {
		return store.ErrInvalidRecord
	}
	_, err := r.s.pool.Exec(ctx, `
		INSERT INTO mfa_trusted_devices (user_id, fingerprint, name, created_at, last_used_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, fingerprint) DO UPDATE
		SET name = EXCLUDED.name, last_used_at = EXCLUDED.last_used_at`,
		device.UserID, device.Fingerprint, device.Name, device.CreatedAt, device.LastUsedAt)
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (r deviceRepo) Get(ctx context.Context, userID, fingerprint string) (store.TrustedDevice, error) {
	d := store.TrustedDevice{UserID: userID, Fingerprint: fingerprint}
	err := r.s.pool.QueryRow(ctx, `
		SELECT name, created_at, last_used_at FROM mfa_trusted_devices
		WHERE user_id = $1 AND fingerprint = $2`, userID, fingerprint).
		Scan(&d.Name, &d.CreatedAt, &d.LastUsedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.TrustedDevice{}, store.ErrNotFound
		}
		return store.TrustedDevice{}, unavailable(err)
	}
	return d, nil
}

func (r deviceRepo) List(ctx context.Context, userID string) ([]store.TrustedDevice, error) {
	rows, err := r.s.pool.Query(ctx, `
		SELECT fingerprint, name, created_at, last_used_at FROM mfa_trusted_devices
		WHERE user_id = $1
		ORDER BY created_at, fingerprint`, userID)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	var out []store.TrustedDevice
	for rows.Next() {
		d := store.TrustedDevice{UserID: userID}
		if err := rows.Scan(&d.Fingerprint, &d.Name, &d.CreatedAt, &d.LastUsedAt); err != nil {
			return nil, unavailable(err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

func (r deviceRepo) Touch(ctx context.Context, userID, fingerprint string, at time.Time) error {
	tag, err := r.s.pool.Exec(ctx, `UPDATE mfa_trusted_devices SET last_used_at = $3 WHERE user_id = $1 AND fingerprint = $2`,
		userID, fingerprint, at)
	if err != nil {
		return unavailable(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r deviceRepo) Remove(ctx context.Context, userID, fingerprint string) (bool, error) {
	tag, err := r.s.pool.Exec(ctx, `DELETE FROM mfa_trusted_devices WHERE user_id = $1 AND fingerprint = $2`, userID, fingerprint)
	if err != nil {
		return false, unavailable(err)
	}
	return tag.RowsAffected() > 0, nil
}
