// Package postgres implements store.Store on PostgreSQL with pgx.
//
// Single-use consumption is a conditional UPDATE (used = FALSE -> TRUE)
// whose affected row count decides the winner. EnableMethod and
// DisableMethod run in one transaction holding a per-user advisory lock, so
// the "last method" decision and the cascading delete cannot interleave with
// a concurrent disable. The schema ships as embedded golang-migrate files.
package postgres
