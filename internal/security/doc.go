// Package security summarises the effective MFA posture of an engine
// configuration. It reads configuration values only and never touches
// secrets or stored records.
package security
