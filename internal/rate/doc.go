// Package rate implements the Redis fixed-window counter that throttles
// SMS and email code sends.
//
// # Window semantics
//
// INCR, plus EXPIRE on the first hit of a window. Keys are
// <prefix>:{<user>}:rs:<channel>.
//
// # What this package must NOT do
//
//   - Decide lockout. Failed verifications are counted by internal/limiters.
//   - Be imported outside the goMFA module.
package rate
