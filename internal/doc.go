// Package internal contains helpers private to goMFA: secure random code
// generation, code digests, and contact normalization and masking.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: pure-function orchestrators behind every Engine operation
//   - limiters: the store-backed failed-attempt lockout policy
//
// # What this package must NOT do
//
//   - Export types that appear in the public goMFA API.
//   - Log or return plaintext codes beyond the single call that creates them.
package internal
