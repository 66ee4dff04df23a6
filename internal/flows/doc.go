// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunSetupTOTP, RunVerify, RunEnableMethod, etc.) accepts
// a Deps value and returns results without side-effects beyond those
// dependencies. The Engine builds Deps once; tests build it around the
// in-memory store.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the store, lockout policy, code
// channels, audit emitter and metrics. They do NOT own any of these
// resources; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goMFA (to avoid import cycles).
//   - Log. Errors are returned wrapped around an Errors sentinel and the
//     Engine decides what to log.
package flows
