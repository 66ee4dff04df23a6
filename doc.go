// Package goMFA implements second-factor authentication: TOTP, SMS and
// email codes, single-use backup codes, a failed-attempt lockout, and
// trusted devices.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build]. Every operation returns a
// [Result]; failures carry an [ErrorKind] and a message that is safe to
// show to end users.
//
// # Architecture boundaries
//
// goMFA is the public surface. It exposes [Engine], [Builder], [Config],
// the error taxonomy and re-exported entity types. Flow orchestration,
// lockout counting, random code generation and audit dispatch live under
// internal/. Persistence is behind [Store]; backends live under store/.
//
// # What this package must NOT do
//
//   - Send SMS or email itself; delivery goes through [SMSSender] and
//     [EmailSender].
//   - Store plaintext codes. Verification and backup codes are kept as
//     SHA-256 digests.
//   - Log codes, secrets or passwords.
//   - Reveal which check failed during verification.
package goMFA
