// Package password verifies account passwords for MFA operations that
// need re-authentication, such as disabling a second factor.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Verifier] reads the stored hash through a [HashSource] supplied by the
// application and compares it with [Argon2.Verify].
//
// # What this package must NOT do
//
//   - Store passwords; callers own the account record.
//   - Import any other goMFA package.
//   - Log plaintext passwords or hash parameters at runtime.
package password
