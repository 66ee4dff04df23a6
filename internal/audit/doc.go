// Package audit implements async event dispatching for MFA lifecycle and
// verification events.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON writer, Kafka, no-op).
//   - [Dispatcher]: buffered async relay with drop-if-full / block-if-full semantics.
//   - [Event]: structured audit record with timestamp, type, user, factor kind, IP, metadata.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide which events
// to emit; that responsibility belongs to the Engine and flow functions.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import goMFA or any sibling internal package.
//   - Put codes, secrets or contacts into events.
package audit
