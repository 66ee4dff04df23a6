// Package middleware adapts goMFA.Engine to net/http.
//
//   - [RequestMetadata] copies the client IP and user agent into the request
//     context so audit events and fingerprint sources can see them.
//   - [DeviceTrust] checks a remembered-device token and exposes the result
//     through [TrustedDeviceFromContext].
//   - [SetDeviceCookie] and [ClearDeviceCookie] manage the token cookie.
//
// # Architecture boundaries
//
// These handlers translate HTTP into Engine calls. Whether a request still
// needs a second factor is the caller's decision; DeviceTrust only reports
// what it found and never rejects a request.
//
// # What this package must NOT do
//
//   - Parse or sign device tokens directly (delegates to Engine).
//   - Access the store.
//   - Decide when MFA is required.
package middleware
