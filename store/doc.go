// Package store defines the MFA entities and the persistence ports the
// engine depends on.
//
// # Design
//
// Each entity (FactorMethod, PendingSetup, VerificationCode, BackupCode,
// FailedAttempt, TrustedDevice) has its own repository interface so flows can
// run against in-memory fakes. Single-use semantics are pushed down to the
// backend as conditional updates: VerificationCodeRepository.MarkUsed and
// BackupCodeRepository.Consume succeed for at most one caller per record.
// Store.EnableMethod and Store.DisableMethod span several entities and run in
// one backend transaction.
//
// Backends live in subpackages: memory, redisstore, postgres and sqlite.
// storetest holds the behavioral suite every backend must pass.
//
// # What this package must NOT do
//
//   - Import goMFA or any internal package.
//   - Hold plaintext codes. Verification and backup codes are stored as
//     SHA-256 hex digests.
package store
