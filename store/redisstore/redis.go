package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/MrEthical07/goMFA/store"
	"github.com/redis/go-redis/v9"
)

const (
	defaultPrefix = "mfa"
	maxTxRetries  = 8
	scanBatch     = 256
)

// markCodeUsedLua flips a verification code hash to used only when it is
// still the current code for the channel.
//
// KEYS[1] = code hash key
// ARGV[1] = code id
var markCodeUsedLua = redis.NewScript(`
local id = redis.call('HGET', KEYS[1], 'id')
if id ~= ARGV[1] then
  return 0
end
if redis.call('HGET', KEYS[1], 'used') ~= '0' then
  return 0
end
redis.call('HSET', KEYS[1], 'used', '1')
return 1
`)

// consumeBackupLua marks one backup code used if it exists and is unused.
//
// KEYS[1] = backup code hash key
// ARGV[1] = code hash
// ARGV[2] = used-at unix nanos
var consumeBackupLua = redis.NewScript(`
local state = redis.call('HGET', KEYS[1], ARGV[1])
if state ~= '0' then
  return 0
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
return 1
`)

// Store implements store.Store on Redis.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

var _ store.Store = (*Store)(nil)

// New returns a Redis store. An empty prefix defaults to "mfa".
func New(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{redis: client, prefix: prefix}
}

// Keys carry the user id as a hash tag so every key of one user maps to the
// same cluster slot and the teardown DEL stays single-slot.
func (s *Store) userKey(userID, suffix string) string {
	return s.prefix + ":{" + userID + "}:" + suffix
}

func (s *Store) methodsKey(userID string) string  { return s.userKey(userID, "m") }
func (s *Store) backupKey(userID string) string   { return s.userKey(userID, "b") }
func (s *Store) attemptsKey(userID string) string { return s.userKey(userID, "f") }
func (s *Store) devicesKey(userID string) string  { return s.userKey(userID, "d") }

func (s *Store) pendingKey(userID string, kind store.Kind) string {
	return s.userKey(userID, "p:"+string(kind))
}

func (s *Store) codeKey(userID string, channel store.Kind) string {
	return s.userKey(userID, "c:"+string(channel))
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

type methodRecord struct {
	Kind         store.Kind `json:"kind"`
	Secret       string     `json:"secret"`
	IsPrimary    bool       `json:"primary"`
	ConfiguredAt time.Time  `json:"configured_at"`
	LastUsedAt   time.Time  `json:"last_used_at"`
}

func encodeMethod(m store.FactorMethod) ([]byte, error) {
	return json.Marshal(methodRecord{
		Kind:         m.Kind,
		Secret:       m.Secret,
		IsPrimary:    m.IsPrimary,
		ConfiguredAt: m.ConfiguredAt,
		LastUsedAt:   m.LastUsedAt,
	})
}

func decodeMethod(userID, raw string) (store.FactorMethod, error) {
	var rec methodRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return store.FactorMethod{}, unavailable(err)
	}
	return store.FactorMethod{
		UserID:       userID,
		Kind:         rec.Kind,
		Enabled:      true,
		Secret:       rec.Secret,
		IsPrimary:    rec.IsPrimary,
		ConfiguredAt: rec.ConfiguredAt,
		LastUsedAt:   rec.LastUsedAt,
	}, nil
}

// watchRetry runs fn under WATCH on keys, retrying on optimistic lock
// conflicts.
func (s *Store) watchRetry(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	for i := 0; i < maxTxRetries; i++ {
		err := s.redis.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("%w: transaction contention", store.ErrUnavailable)
}

func (s *Store) EnableMethod(ctx context.Context, m store.FactorMethod) (int, error) {
	if m.UserID == "" || !m.Kind.IsMethod() {
		return 0, store.ErrInvalidRecord
	}
	key := s.methodsKey(m.UserID)
	var previous int

	err := s.watchRetry(ctx, func(tx *redis.Tx) error {
		fields, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		previous = len(fields)

		next := m
		next.Enabled = true
		if raw, ok := fields[string(m.Kind)]; ok {
			existing, err := decodeMethod(m.UserID, raw)
			if err != nil {
				return err
			}
			next.IsPrimary = existing.IsPrimary
		} else {
			next.IsPrimary = previous == 0
		}
		encoded, err := encodeMethod(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, string(m.Kind), encoded)
			return nil
		})
		return err
	}, key)
	if err != nil {
		if errors.Is(err, store.ErrUnavailable) {
			return 0, err
		}
		return 0, unavailable(err)
	}
	return previous, nil
}

func (s *Store) DisableMethod(ctx context.Context, userID string, kind store.Kind) (store.DisableOutcome, error) {
	key := s.methodsKey(userID)
	var out store.DisableOutcome

	err := s.watchRetry(ctx, func(tx *redis.Tx) error {
		out = store.DisableOutcome{}
		fields, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		raw, ok := fields[string(kind)]
		if !ok {
			return store.ErrNotFound
		}
		target, err := decodeMethod(userID, raw)
		if err != nil {
			return err
		}

		if len(fields) == 1 {
			out.Cascaded = true
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key, s.backupKey(userID), s.devicesKey(userID))
				return nil
			})
			return err
		}

		out.Remaining = len(fields) - 1
		var promoted []byte
		if target.IsPrimary {
			siblings := make([]store.FactorMethod, 0, len(fields)-1)
			for k, v := range fields {
				if k == string(kind) {
					continue
				}
				m, err := decodeMethod(userID, v)
				if err != nil {
					return err
				}
				siblings = append(siblings, m)
			}
			sort.Slice(siblings, func(i, j int) bool {
				return siblings[i].ConfiguredAt.Before(siblings[j].ConfiguredAt)
			})
			next := siblings[0]
			next.IsPrimary = true
			if promoted, err = encodeMethod(next); err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HDel(ctx, key, string(kind))
				pipe.HSet(ctx, key, string(next.Kind), promoted)
				return nil
			})
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HDel(ctx, key, string(kind))
			return nil
		})
		return err
	}, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrUnavailable) {
			return store.DisableOutcome{}, err
		}
		return store.DisableOutcome{}, unavailable(err)
	}
	return out, nil
}

// scanKeys walks every key matching pattern and calls fn for each batch.
func (s *Store) scanKeys(ctx context.Context, pattern string, fn func(keys []string) error) error {
	var cursor uint64
	for {
		keys, next, err := s.redis.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return unavailable(err)
		}
		if len(keys) > 0 {
			if err := fn(keys); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

type methodRepo struct{ s *Store }

func (r methodRepo) Get(ctx context.Context, userID string, kind store.Kind) (store.FactorMethod, error) {
	raw, err := r.s.redis.HGet(ctx, r.s.methodsKey(userID), string(kind)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return store.FactorMethod{}, store.ErrNotFound
		}
		return store.FactorMethod{}, unavailable(err)
	}
	return decodeMethod(userID, raw)
}

func (r methodRepo) List(ctx context.Context, userID string) ([]store.FactorMethod, error) {
	fields, err := r.s.redis.HGetAll(ctx, r.s.methodsKey(userID)).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	out := make([]store.FactorMethod, 0, len(fields))
	for _, kind := range store.MethodKinds {
		raw, ok := fields[string(kind)]
		if !ok {
			continue
		}
		m, err := decodeMethod(userID, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (r methodRepo) Touch(ctx context.Context, userID string, kind store.Kind, at time.Time) error {
	key := r.s.methodsKey(userID)
	err := r.s.watchRetry(ctx, func(tx *redis.Tx) error {
		raw, err := tx.HGet(ctx, key, string(kind)).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return store.ErrNotFound
			}
			return err
		}
		m, err := decodeMethod(userID, raw)
		if err != nil {
			return err
		}
		m.LastUsedAt = at
		encoded, err := encodeMethod(m)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, string(kind), encoded)
			return nil
		})
		return err
	}, key)
	if err != nil && !errors.Is(err, store.ErrNotFound) && !errors.Is(err, store.ErrUnavailable) {
		return unavailable(err)
	}
	return err
}

type pendingRecord struct {
	Kind      store.Kind `json:"kind"`
	Value     string     `json:"value"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
}

func decodePending(userID string, raw []byte) (store.PendingSetup, error) {
	var rec pendingRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return store.PendingSetup{}, unavailable(err)
	}
	payload, err := store.NewPendingPayload(rec.Kind, rec.Value)
	if err != nil {
		return store.PendingSetup{}, err
	}
	return store.PendingSetup{
		UserID:    userID,
		Payload:   payload,
		CreatedAt: rec.CreatedAt,
		ExpiresAt: rec.ExpiresAt,
	}, nil
}

// lifetime is the key TTL for a record valid from created to expires,
// measured on the record's own timestamps rather than the host clock.
// Records without a creation time fall back to the wall clock.
func lifetime(created, expires time.Time) time.Duration {
	var ttl time.Duration
	if created.IsZero() {
		ttl = time.Until(expires)
	} else {
		ttl = expires.Sub(created)
	}
	if ttl < 0 {
		return 0
	}
	return ttl
}

type pendingRepo struct{ s *Store }

func (r pendingRepo) Put(ctx context.Context, setup store.PendingSetup) error {
	if setup.UserID == "" || setup.Payload == nil {
		return store.ErrInvalidRecord
	}
	encoded, err := json.Marshal(pendingRecord{
		Kind:      setup.Kind(),
		Value:     setup.Payload.Value(),
		CreatedAt: setup.CreatedAt,
		ExpiresAt: setup.ExpiresAt,
	})
	if err != nil {
		return unavailable(err)
	}
	// Redis expiry only reclaims memory; validity is checked against the
	// caller's clock on read.
	ttl := lifetime(setup.CreatedAt, setup.ExpiresAt)
	if err := r.s.redis.Set(ctx, r.s.pendingKey(setup.UserID, setup.Kind()), encoded, ttl).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (r pendingRepo) Get(ctx context.Context, userID string, kind store.Kind, now time.Time) (store.PendingSetup, error) {
	raw, err := r.s.redis.Get(ctx, r.s.pendingKey(userID, kind)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return store.PendingSetup{}, store.ErrNotFound
		}
		return store.PendingSetup{}, unavailable(err)
	}
	setup, err := decodePending(userID, raw)
	if err != nil {
		return store.PendingSetup{}, err
	}
	if setup.Expired(now) {
		return store.PendingSetup{}, store.ErrNotFound
	}
	return setup, nil
}

func (r pendingRepo) Take(ctx context.Context, userID string, kind store.Kind, now time.Time) (store.PendingSetup, error) {
	key := r.s.pendingKey(userID, kind)
	var taken store.PendingSetup

	err := r.s.watchRetry(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return store.ErrNotFound
			}
			return err
		}
		setup, err := decodePending(userID, raw)
		if err != nil {
			return err
		}
		if setup.Expired(now) {
			return store.ErrNotFound
		}
		if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		}); err != nil {
			return err
		}
		taken = setup
		return nil
	}, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrUnavailable) {
			return store.PendingSetup{}, err
		}
		return store.PendingSetup{}, unavailable(err)
	}
	return taken, nil
}

func (r pendingRepo) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	var purged int64
	err := r.s.scanKeys(ctx, r.s.prefix+":{*}:p:*", func(keys []string) error {
		for _, key := range keys {
			raw, err := r.s.redis.Get(ctx, key).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue
				}
				return unavailable(err)
			}
			setup, err := decodePending("", raw)
			if err != nil || setup.Expired(now) {
				n, delErr := r.s.redis.Del(ctx, key).Result()
				if delErr != nil {
					return unavailable(delErr)
				}
				purged += n
			}
		}
		return nil
	})
	return purged, err
}

type codeRepo struct{ s *Store }

func (r codeRepo) Put(ctx context.Context, code store.VerificationCode) error {
	if code.UserID == "" || !code.Channel.IsChannel() || code.ID == "" {
		return store.ErrInvalidRecord
	}
	key := r.s.codeKey(code.UserID, code.Channel)
	ttl := lifetime(code.CreatedAt, code.ExpiresAt)
	_, err := r.s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			"id", code.ID,
			"hash", code.CodeHash,
			"dest", code.DestinationHash,
			"created", strconv.FormatInt(code.CreatedAt.UnixNano(), 10),
			"expires", strconv.FormatInt(code.ExpiresAt.UnixNano(), 10),
			"used", "0",
		)
		if ttl > 0 {
			pipe.PExpire(ctx, key, ttl)
		}
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func decodeCode(userID string, channel store.Kind, fields map[string]string) (store.VerificationCode, error) {
	created, err := strconv.ParseInt(fields["created"], 10, 64)
	if err != nil {
		return store.VerificationCode{}, unavailable(err)
	}
	expires, err := strconv.ParseInt(fields["expires"], 10, 64)
	if err != nil {
		return store.VerificationCode{}, unavailable(err)
	}
	return store.VerificationCode{
		ID:              fields["id"],
		UserID:          userID,
		Channel:         channel,
		CodeHash:        fields["hash"],
		DestinationHash: fields["dest"],
		CreatedAt:       time.Unix(0, created).UTC(),
		ExpiresAt:       time.Unix(0, expires).UTC(),
		Used:            fields["used"] != "0",
	}, nil
}

func (r codeRepo) Latest(ctx context.Context, userID string, channel store.Kind, now time.Time) (store.VerificationCode, error) {
	fields, err := r.s.redis.HGetAll(ctx, r.s.codeKey(userID, channel)).Result()
	if err != nil {
		return store.VerificationCode{}, unavailable(err)
	}
	if len(fields) == 0 {
		return store.VerificationCode{}, store.ErrNotFound
	}
	code, err := decodeCode(userID, channel, fields)
	if err != nil {
		return store.VerificationCode{}, err
	}
	if code.Used || code.Expired(now) {
		return store.VerificationCode{}, store.ErrNotFound
	}
	return code, nil
}

func (r codeRepo) MarkUsed(ctx context.Context, userID string, channel store.Kind, id string) (bool, error) {
	n, err := markCodeUsedLua.Run(ctx, r.s.redis, []string{r.s.codeKey(userID, channel)}, id).Int()
	if err != nil {
		return false, unavailable(err)
	}
	return n == 1, nil
}

func (r codeRepo) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	var purged int64
	err := r.s.scanKeys(ctx, r.s.prefix+":{*}:c:*", func(keys []string) error {
		for _, key := range keys {
			fields, err := r.s.redis.HGetAll(ctx, key).Result()
			if err != nil {
				return unavailable(err)
			}
			if len(fields) == 0 {
				continue
			}
			code, err := decodeCode("", "", fields)
			if err == nil && !code.Used && !code.Expired(now) {
				continue
			}
			n, err := r.s.redis.Del(ctx, key).Result()
			if err != nil {
				return unavailable(err)
			}
			purged += n
		}
		return nil
	})
	return purged, err
}

type backupRepo struct{ s *Store }

func (r backupRepo) Replace(ctx context.Context, userID string, codes []store.BackupCode) error {
	if userID == "" {
		return store.ErrInvalidRecord
	}
	key := r.s.backupKey(userID)
	values := make([]interface{}, 0, len(codes)*2)
	for _, c := range codes {
		values = append(values, c.CodeHash, "0")
	}
	_, err := r.s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(values) > 0 {
			pipe.HSet(ctx, key, values...)
		}
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (r backupRepo) Consume(ctx context.Context, userID, codeHash string, at time.Time) (bool, error) {
	n, err := consumeBackupLua.Run(ctx, r.s.redis, []string{r.s.backupKey(userID)}, codeHash, strconv.FormatInt(at.UnixNano(), 10)).Int()
	if err != nil {
		return false, unavailable(err)
	}
	return n == 1, nil
}

func (r backupRepo) CountUnused(ctx context.Context, userID string) (int, error) {
	states, err := r.s.redis.HVals(ctx, r.s.backupKey(userID)).Result()
	if err != nil {
		return 0, unavailable(err)
	}
	n := 0
	for _, state := range states {
		if state == "0" {
			n++
		}
	}
	return n, nil
}

type attemptRepo struct{ s *Store }

func (r attemptRepo) Append(ctx context.Context, attempt store.FailedAttempt) error {
	if attempt.UserID == "" || attempt.ID == "" {
		return store.ErrInvalidRecord
	}
	err := r.s.redis.ZAdd(ctx, r.s.attemptsKey(attempt.UserID), redis.Z{
		Score:  float64(attempt.At.UnixMilli()),
		Member: attempt.ID,
	}).Err()
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (r attemptRepo) CountSince(ctx context.Context, userID string, since time.Time) (int, error) {
	lower := "(" + strconv.FormatInt(since.UnixMilli(), 10)
	n, err := r.s.redis.ZCount(ctx, r.s.attemptsKey(userID), lower, "+inf").Result()
	if err != nil {
		return 0, unavailable(err)
	}
	return int(n), nil
}

func (r attemptRepo) Clear(ctx context.Context, userID string) error {
	if err := r.s.redis.Del(ctx, r.s.attemptsKey(userID)).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (r attemptRepo) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	upper := "(" + strconv.FormatInt(cutoff.UnixMilli(), 10)
	var purged int64
	err := r.s.scanKeys(ctx, r.s.prefix+":{*}:f", func(keys []string) error {
		for _, key := range keys {
			n, err := r.s.redis.ZRemRangeByScore(ctx, key, "-inf", upper).Result()
			if err != nil {
				return unavailable(err)
			}
			purged += n
		}
		return nil
	})
	return purged, err
}

type deviceRecord struct {
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`
}

func decodeDevice(userID, fingerprint, raw string) (store.TrustedDevice, error) {
	var rec deviceRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return store.TrustedDevice{}, unavailable(err)
	}
	return store.TrustedDevice{
		UserID:      userID,
		Fingerprint: fingerprint,
		Name:        rec.Name,
		CreatedAt:   rec.CreatedAt,
		LastUsedAt:  rec.LastUsedAt,
	}, nil
}

func encodeDevice(d store.TrustedDevice) ([]byte, error) {
	return json.Marshal(deviceRecord{Name: d.Name, CreatedAt: d.CreatedAt, LastUsedAt: d.LastUsedAt})
}

type deviceRepo struct{ s *Store }

func (r deviceRepo) Add(ctx context.Context, device store.TrustedDevice) error {
	if device.UserID == "" || device.Fingerprint == "" {
		return store.ErrInvalidRecord
	}
	encoded, err := encodeDevice(device)
	if err != nil {
		return unavailable(err)
	}
	if err := r.s.redis.HSet(ctx, r.s.devicesKey(device.UserID), device.Fingerprint, encoded).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (r deviceRepo) Get(ctx context.Context, userID, fingerprint string) (store.TrustedDevice, error) {
	raw, err := r.s.redis.HGet(ctx, r.s.devicesKey(userID), fingerprint).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return store.TrustedDevice{}, store.ErrNotFound
		}
		return store.TrustedDevice{}, unavailable(err)
	}
	return decodeDevice(userID, fingerprint, raw)
}

func (r deviceRepo) List(ctx context.Context, userID string) ([]store.TrustedDevice, error) {
	fields, err := r.s.redis.HGetAll(ctx, r.s.devicesKey(userID)).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	out := make([]store.TrustedDevice, 0, len(fields))
	for fp, raw := range fields {
		d, err := decodeDevice(userID, fp, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Fingerprint < out[j].Fingerprint
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r deviceRepo) Touch(ctx context.Context, userID, fingerprint string, at time.Time) error {
	key := r.s.devicesKey(userID)
	err := r.s.watchRetry(ctx, func(tx *redis.Tx) error {
		raw, err := tx.HGet(ctx, key, fingerprint).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return store.ErrNotFound
			}
			return err
		}
		d, err := decodeDevice(userID, fingerprint, raw)
		if err != nil {
			return err
		}
		d.LastUsedAt = at
		encoded, err := encodeDevice(d)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, fingerprint, encoded)
			return nil
		})
		return err
	}, key)
	if err != nil && !errors.Is(err, store.ErrNotFound) && !errors.Is(err, store.ErrUnavailable) {
		return unavailable(err)
	}
	return err
}

func (r deviceRepo) Remove(ctx context.Context, userID, fingerprint string) (bool, error) {
	n, err := r.s.redis.HDel(ctx, r.s.devicesKey(userID), fingerprint).Result()
	if err != nil {
		return false, unavailable(err)
	}
	return n > 0, nil
}
