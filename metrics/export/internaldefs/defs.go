package internaldefs

import (
	goMFA "github.com/MrEthical07/goMFA"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   goMFA.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for exporters. Observations are
// exported in seconds.
type HistogramDef struct {
	ID   goMFA.MetricID
	Name string
	Help string
}

// Name and help of the counter fed by Engine.AuditDropped.
const (
	AuditDroppedName = "gomfa_audit_dropped_total"
	AuditDroppedHelp = "Audit events dropped because the dispatcher buffer was full."
)

var CounterDefs = []CounterDef{
	{ID: goMFA.MetricSetupRequested, Name: "gomfa_setup_requested_total", Help: "Started TOTP, SMS and email enrollments."},
	{ID: goMFA.MetricCodeSent, Name: "gomfa_code_sent_total", Help: "Verification codes handed to a sender."},
	{ID: goMFA.MetricCodeDeliveryFailure, Name: "gomfa_code_delivery_failure_total", Help: "Verification codes the sender failed to deliver."},
	{ID: goMFA.MetricVerifySuccess, Name: "gomfa_verify_success_total", Help: "Codes that matched, including enablement checks."},
	{ID: goMFA.MetricVerifyFailure, Name: "gomfa_verify_failure_total", Help: "Codes that did not match."},
	{ID: goMFA.MetricLockedOut, Name: "gomfa_locked_out_total", Help: "Verification attempts refused by the lockout policy."},
	{ID: goMFA.MetricMethodEnabled, Name: "gomfa_method_enabled_total", Help: "Methods moved to the enabled state."},
	{ID: goMFA.MetricMethodDisabled, Name: "gomfa_method_disabled_total", Help: "Methods disabled by their owner."},
	{ID: goMFA.MetricTeardown, Name: "gomfa_teardown_total", Help: "Disables that removed a user's last method."},
	{ID: goMFA.MetricBackupCodesGenerated, Name: "gomfa_backup_codes_generated_total", Help: "Backup code batches issued."},
	{ID: goMFA.MetricBackupCodeUsed, Name: "gomfa_backup_code_used_total", Help: "Backup codes consumed."},
	{ID: goMFA.MetricDeviceTrusted, Name: "gomfa_device_trusted_total", Help: "Devices marked as trusted."},
	{ID: goMFA.MetricDeviceRevoked, Name: "gomfa_device_revoked_total", Help: "Trusted devices revoked."},
	{ID: goMFA.MetricDeviceTokenRejected, Name: "gomfa_device_token_rejected_total", Help: "Device trust tokens that failed validation."},
	{ID: goMFA.MetricCodeRateLimited, Name: "gomfa_code_rate_limited_total", Help: "Code sends refused by the send limiter."},
}

var HistogramDefs = []HistogramDef{
	{ID: goMFA.MetricVerifyLatency, Name: "gomfa_verify_latency_seconds", Help: "VerifyCode latency."},
}

// HistogramUpperBounds are the finite bucket bounds in seconds. The
// engine keeps one extra overflow bucket, so snapshots carry
// len(HistogramUpperBounds)+1 entries.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundLabels are the "le" label values for each bucket,
// overflow last.
var HistogramBoundLabels = []string{"0.005", "0.01", "0.025", "0.05", "0.1", "0.25", "0.5", "+Inf"}

// NormalizeBuckets pads or truncates raw to the fixed bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals, the form
// both exporters publish.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
