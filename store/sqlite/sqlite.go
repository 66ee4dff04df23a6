// Package sqlite implements store.Store on an embedded SQLite database
// through modernc.org/sqlite. The database runs with a single connection,
// which serializes every transaction.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goMFA/store"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS factor_methods (
	user_id       TEXT    NOT NULL,
	kind          TEXT    NOT NULL,
	secret        TEXT    NOT NULL,
	is_primary    INTEGER NOT NULL DEFAULT 0,
	configured_at INTEGER NOT NULL,
	last_used_at  INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (user_id, kind)
);
CREATE TABLE IF NOT EXISTS pending_setups (
	user_id    TEXT    NOT NULL,
	kind       TEXT    NOT NULL,
	value      TEXT    NOT NULL,
	created_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL,
	PRIMARY KEY (user_id, kind)
);
CREATE TABLE IF NOT EXISTS verification_codes (
	id         TEXT    PRIMARY KEY,
	user_id    TEXT    NOT NULL,
	channel    TEXT    NOT NULL,
	code_hash  TEXT    NOT NULL,
	dest_hash  TEXT    NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL,
	used       INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS verification_codes_user_idx ON verification_codes (user_id, channel);
CREATE TABLE IF NOT EXISTS backup_codes (
	user_id   TEXT    NOT NULL,
	code_hash TEXT    NOT NULL,
	used      INTEGER NOT NULL DEFAULT 0,
	used_at   INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (user_id, code_hash)
);
CREATE TABLE IF NOT EXISTS failed_attempts (
	id           TEXT    PRIMARY KEY,
	user_id      TEXT    NOT NULL,
	attempted_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS failed_attempts_user_idx ON failed_attempts (user_id, attempted_at);
CREATE TABLE IF NOT EXISTS trusted_devices (
	user_id      TEXT    NOT NULL,
	fingerprint  TEXT    NOT NULL,
	name         TEXT    NOT NULL DEFAULT '',
	created_at   INTEGER NOT NULL,
	last_used_at INTEGER NOT NULL,
	PRIMARY KEY (user_id, fingerprint)
);
`

// Store implements store.Store on SQLite.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open opens (or creates) the database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, unavailable(err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
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

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnix(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable(err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return unavailable(err)
	}
	return nil
}

type methodRow struct {
	kind         store.Kind
	isPrimary    bool
	configuredAt int64
}

func userMethods(ctx context.Context, tx *sql.Tx, userID string) ([]methodRow, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT kind, is_primary, configured_at FROM factor_methods
		WHERE user_id = ? ORDER BY configured_at, kind`, userID)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	var out []methodRow
	for rows.Next() {
		var (
			r       methodRow
			kind    string
			primary int
		)
		if err := rows.Scan(&kind, &primary, &r.configuredAt); err != nil {
			return nil, unavailable(err)
		}
		r.kind = store.Kind(kind)
		r.isPrimary = primary == 1
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
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := userMethods(ctx, tx, m.UserID)
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
		_, err = tx.ExecContext(ctx, `
			INSERT INTO factor_methods (user_id, kind, secret, is_primary, configured_at, last_used_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (user_id, kind) DO UPDATE
			SET secret = excluded.secret,
			    is_primary = excluded.is_primary,
			    configured_at = excluded.configured_at,
			    last_used_at = excluded.last_used_at`,
			m.UserID, string(m.Kind), m.Secret, boolInt(primary), toUnix(m.ConfiguredAt), toUnix(m.LastUsedAt))
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
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := userMethods(ctx, tx, userID)
		if err != nil {
			return err
		}
		found := false
		targetPrimary := false
		var siblings []methodRow
		for _, r := range existing {
			if r.kind == kind {
				found = true
				targetPrimary = r.isPrimary
				continue
			}
			siblings = append(siblings, r)
		}
		if !found {
			return store.ErrNotFound
		}

		if len(siblings) == 0 {
			out.Cascaded = true
			for _, q := range []string{
				`DELETE FROM factor_methods WHERE user_id = ?`,
				`DELETE FROM backup_codes WHERE user_id = ?`,
				`DELETE FROM trusted_devices WHERE user_id = ?`,
			} {
				if _, err := tx.ExecContext(ctx, q, userID); err != nil {
					return unavailable(err)
				}
			}
			return nil
		}

		out.Remaining = len(siblings)
		if _, err := tx.ExecContext(ctx, `DELETE FROM factor_methods WHERE user_id = ? AND kind = ?`, userID, string(kind)); err != nil {
			return unavailable(err)
		}
		if targetPrimary {
			if _, err := tx.ExecContext(ctx, `UPDATE factor_methods SET is_primary = 1 WHERE user_id = ? AND kind = ?`,
				userID, string(siblings[0].kind)); err != nil {
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

type scanner interface {
	Scan(dest ...any) error
}

type methodRepo struct{ s *Store }

func scanMethod(userID string, row scanner) (store.FactorMethod, error) {
	var (
		kind                 string
		primary              int
		configured, lastUsed int64
		m                    = store.FactorMethod{UserID: userID, Enabled: true}
	)
	if err := row.Scan(&kind, &m.Secret, &primary, &configured, &lastUsed); err != nil {
		return store.FactorMethod{}, err
	}
	m.Kind = store.Kind(kind)
	m.IsPrimary = primary == 1
	m.ConfiguredAt = fromUnix(configured)
	m.LastUsedAt = fromUnix(lastUsed)
	return m, nil
}

func (r methodRepo) Get(ctx context.Context, userID string, kind store.Kind) (store.FactorMethod, error) {
	row := r.s.db.QueryRowContext(ctx, `
		SELECT kind, secret, is_primary, configured_at, last_used_at FROM factor_methods
		WHERE user_id = ? AND kind = ?`, userID, string(kind))
	m, err := scanMethod(userID, row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.FactorMethod{}, store.ErrNotFound
		}
		return store.FactorMethod{}, unavailable(err)
	}
	return m, nil
}

func (r methodRepo) List(ctx context.Context, userID string) ([]store.FactorMethod, error) {
	rows, err := r.s.db.QueryContext(ctx, `
		SELECT kind, secret, is_primary, configured_at, last_used_at FROM factor_methods
		WHERE user_id = ?`, userID)
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
	res, err := r.s.db.ExecContext(ctx, `UPDATE factor_methods SET last_used_at = ? WHERE user_id = ? AND kind = ?`,
		toUnix(at), userID, string(kind))
	return affectedOrNotFound(res, err)
}

func affectedOrNotFound(res sql.Result, err error) error {
	if err != nil {
		return unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable(err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

type pendingRepo struct{ s *Store }

func (r pendingRepo) Put(ctx context.Context, setup store.PendingSetup) error {
	if setup.UserID == "" || setup.Payload == nil {
		return store.ErrInvalidRecord
	}
	_, err := r.s.db.ExecContext(ctx, `
		INSERT INTO pending_setups (user_id, kind, value, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, kind) DO UPDATE
		SET value = excluded.value, created_at = excluded.created_at, expires_at = excluded.expires_at`,
		setup.UserID, string(setup.Kind()), setup.Payload.Value(), toUnix(setup.CreatedAt), toUnix(setup.ExpiresAt))
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func scanPending(userID string, row scanner) (store.PendingSetup, error) {
	var (
		kind, value        string
		created, expiresAt int64
	)
	if err := row.Scan(&kind, &value, &created, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.PendingSetup{}, store.ErrNotFound
		}
		return store.PendingSetup{}, unavailable(err)
	}
	payload, err := store.NewPendingPayload(store.Kind(kind), value)
	if err != nil {
		return store.PendingSetup{}, err
	}
	return store.PendingSetup{
		UserID:    userID,
		Payload:   payload,
		CreatedAt: fromUnix(created),
		ExpiresAt: fromUnix(expiresAt),
	}, nil
}

func (r pendingRepo) Get(ctx context.Context, userID string, kind store.Kind, now time.Time) (store.PendingSetup, error) {
	row := r.s.db.QueryRowContext(ctx, `
		SELECT kind, value, created_at, expires_at FROM pending_setups
		WHERE user_id = ? AND kind = ? AND expires_at > ?`, userID, string(kind), toUnix(now))
	return scanPending(userID, row)
}

func (r pendingRepo) Take(ctx context.Context, userID string, kind store.Kind, now time.Time) (store.PendingSetup, error) {
	row := r.s.db.QueryRowContext(ctx, `
		DELETE FROM pending_setups
		WHERE user_id = ? AND kind = ? AND expires_at > ?
		RETURNING kind, value, created_at, expires_at`, userID, string(kind), toUnix(now))
	return scanPending(userID, row)
}

func (r pendingRepo) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	return execCount(r.s.db.ExecContext(ctx, `DELETE FROM pending_setups WHERE expires_at <= ?`, toUnix(now)))
}

func execCount(res sql.Result, err error) (int64, error) {
	if err != nil {
		return 0, unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

type codeRepo struct{ s *Store }

func (r codeRepo) Put(ctx context.Context, code store.VerificationCode) error {
	if code.UserID == "" || !code.Channel.IsChannel() || code.ID == "" {
		return store.ErrInvalidRecord
	}
	return r.s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM verification_codes WHERE user_id = ? AND channel = ?`,
			code.UserID, string(code.Channel)); err != nil {
			return unavailable(err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO verification_codes (id, user_id, channel, code_hash, dest_hash, created_at, expires_at, used)
			VALUES (?, ?, ?, ?, ?, ?, ?, 0)`,
			code.ID, code.UserID, string(code.Channel), code.CodeHash, code.DestinationHash,
			toUnix(code.CreatedAt), toUnix(code.ExpiresAt)); err != nil {
			return unavailable(err)
		}
		return nil
	})
}

func (r codeRepo) Latest(ctx context.Context, userID string, channel store.Kind, now time.Time) (store.VerificationCode, error) {
	var (
		code             = store.VerificationCode{UserID: userID, Channel: channel}
		created, expires int64
		used             int
	)
	err := r.s.db.QueryRowContext(ctx, `
		SELECT id, code_hash, dest_hash, created_at, expires_at, used FROM verification_codes
		WHERE user_id = ? AND channel = ?
		ORDER BY created_at DESC, id DESC LIMIT 1`, userID, string(channel)).
		Scan(&code.ID, &code.CodeHash, &code.DestinationHash, &created, &expires, &used)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.VerificationCode{}, store.ErrNotFound
		}
		return store.VerificationCode{}, unavailable(err)
	}
	code.CreatedAt = fromUnix(created)
	code.ExpiresAt = fromUnix(expires)
	code.Used = used == 1
	if code.Used || code.Expired(now) {
		return store.VerificationCode{}, store.ErrNotFound
	}
	return code, nil
}

func (r codeRepo) MarkUsed(ctx context.Context, userID string, channel store.Kind, id string) (bool, error) {
	n, err := execCount(r.s.db.ExecContext(ctx, `
		UPDATE verification_codes SET used = 1
		WHERE id = ? AND user_id = ? AND channel = ? AND used = 0`, id, userID, string(channel)))
	return n == 1, err
}

func (r codeRepo) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	return execCount(r.s.db.ExecContext(ctx, `DELETE FROM verification_codes WHERE used = 1 OR expires_at <= ?`, toUnix(now)))
}

type backupRepo struct{ s *Store }

func (r backupRepo) Replace(ctx context.Context, userID string, codes []store.BackupCode) error {
	if userID == "" {
		return store.ErrInvalidRecord
	}
	return r.s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM backup_codes WHERE user_id = ?`, userID); err != nil {
			return unavailable(err)
		}
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO backup_codes (user_id, code_hash, used, used_at) VALUES (?, ?, 0, 0)`)
		if err != nil {
			return unavailable(err)
		}
		defer stmt.Close()
		for _, c := range codes {
			if _, err := stmt.ExecContext(ctx, userID, c.CodeHash); err != nil {
				return unavailable(err)
			}
		}
		return nil
	})
}

func (r backupRepo) Consume(ctx context.Context, userID, codeHash string, at time.Time) (bool, error) {
	n, err := execCount(r.s.db.ExecContext(ctx, `
		UPDATE backup_codes SET used = 1, used_at = ?
		WHERE user_id = ? AND code_hash = ? AND used = 0`, toUnix(at), userID, codeHash))
	return n == 1, err
}

func (r backupRepo) CountUnused(ctx context.Context, userID string) (int, error) {
	var n int
	if err := r.s.db.QueryRowContext(ctx, `SELECT count(*) FROM backup_codes WHERE user_id = ? AND used = 0`, userID).Scan(&n); err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

type attemptRepo struct{ s *Store }

func (r attemptRepo) Append(ctx context.Context, attempt store.FailedAttempt) error {
	if attempt.UserID == "" || attempt.ID == "" {
		return store.ErrInvalidRecord
	}
	_, err := r.s.db.ExecContext(ctx, `INSERT INTO failed_attempts (id, user_id, attempted_at) VALUES (?, ?, ?)`,
		attempt.ID, attempt.UserID, toUnix(attempt.At))
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (r attemptRepo) CountSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var n int
	err := r.s.db.QueryRowContext(ctx, `SELECT count(*) FROM failed_attempts WHERE user_id = ? AND attempted_at > ?`,
		userID, toUnix(since)).Scan(&n)
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

func (r attemptRepo) Clear(ctx context.Context, userID string) error {
	if _, err := r.s.db.ExecContext(ctx, `DELETE FROM failed_attempts WHERE user_id = ?`, userID); err != nil {
		return unavailable(err)
	}
	return nil
}

func (r attemptRepo) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return execCount(r.s.db.ExecContext(ctx, `DELETE FROM failed_attempts WHERE attempted_at < ?`, toUnix(cutoff)))
}

type deviceRepo struct{ s *Store }

func (r deviceRepo) Add(ctx context.Context, device store.TrustedDevice) error {
	if device.UserID == "" || device.Fingerprint == "" {
		return store.ErrInvalidRecord
	}
	_, err := r.s.db.ExecContext(ctx, `
		INSERT INTO trusted_devices (user_id, fingerprint, name, created_at, last_used_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, fingerprint) DO UPDATE
		SET name = excluded.name, last_used_at = excluded.last_used_at`,
		device.UserID, device.Fingerprint, device.Name, toUnix(device.CreatedAt), toUnix(device.LastUsedAt))
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func scanDevice(userID string, row scanner) (store.TrustedDevice, error) {
	var (
		d                 = store.TrustedDevice{UserID: userID}
		created, lastUsed int64
	)
	if err := row.Scan(&d.Fingerprint, &d.Name, &created, &lastUsed); err != nil {
		return store.TrustedDevice{}, err
	}
	d.CreatedAt = fromUnix(created)
	d.LastUsedAt = fromUnix(lastUsed)
	return d, nil
}

func (r deviceRepo) Get(ctx context.Context, userID, fingerprint string) (store.TrustedDevice, error) {
	row := r.s.db.QueryRowContext(ctx, `
		SELECT fingerprint, name, created_at, last_used_at FROM trusted_devices
		WHERE user_id = ? AND fingerprint = ?`, userID, fingerprint)
	d, err := scanDevice(userID, row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.TrustedDevice{}, store.ErrNotFound
		}
		return store.TrustedDevice{}, unavailable(err)
	}
	return d, nil
}

func (r deviceRepo) List(ctx context.Context, userID string) ([]store.TrustedDevice, error) {
	rows, err := r.s.db.QueryContext(ctx, `
		SELECT fingerprint, name, created_at, last_used_at FROM trusted_devices
		WHERE user_id = ? ORDER BY created_at, fingerprint`, userID)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	var out []store.TrustedDevice
	for rows.Next() {
		d, err := scanDevice(userID, rows)
		if err != nil {
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
	res, err := r.s.db.ExecContext(ctx, `UPDATE trusted_devices SET last_used_at = ? WHERE user_id = ? AND fingerprint = ?`,
		toUnix(at), userID, fingerprint)
	return affectedOrNotFound(res, err)
}

func (r deviceRepo) Remove(ctx context.Context, userID, fingerprint string) (bool, error) {
	n, err := execCount(r.s.db.ExecContext(ctx, `DELETE FROM trusted_devices WHERE user_id = ? AND fingerprint = ?`, userID, fingerprint))
	return n > 0, err
}
