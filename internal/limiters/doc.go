// Package limiters provides the failed-attempt lockout policy.
//
// # Limiters
//
//   - [LockoutPolicy]: sliding-window failure counter over the
//     FailedAttempt repository (default 5 failures in 30 minutes).
//
// All methods are nil-safe: calling them on a nil receiver never locks.
//
// # Architecture boundaries
//
// The policy only counts. Flow functions decide what a lock means for the
// caller and which message to show.
//
// # What this package must NOT do
//
//   - Import goMFA or any sibling internal package.
//   - Treat the count as a hard security boundary; concurrent failures may
//     overshoot the threshold slightly.
package limiters
