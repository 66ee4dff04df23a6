package goMFA

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one engine counter or histogram.
type MetricID uint16

const (
	// MetricSetupRequested counts started TOTP, SMS and email enrollments.
	MetricSetupRequested MetricID = iota
	// MetricCodeSent counts verification codes handed to a sender.
	MetricCodeSent
	// MetricCodeDeliveryFailure counts sender errors.
	MetricCodeDeliveryFailure
	// MetricVerifySuccess counts matched codes, including enablement checks.
	MetricVerifySuccess
	// MetricVerifyFailure counts mismatched codes.
	MetricVerifyFailure
	// MetricLockedOut counts attempts refused by the lockout policy.
	MetricLockedOut
	MetricMethodEnabled
	MetricMethodDisabled
	// MetricTeardown counts disables that removed the user's last method.
	MetricTeardown
	MetricBackupCodesGenerated
	MetricBackupCodeUsed
	MetricDeviceTrusted
	MetricDeviceRevoked
	// MetricDeviceTokenRejected counts device trust tokens that failed
	// signature, expiry or store checks.
	MetricDeviceTokenRejected
	// MetricCodeRateLimited counts code sends refused by the send limiter.
	MetricCodeRateLimited
	// MetricVerifyLatency is the histogram of VerifyCode durations.
	MetricVerifyLatency
	metricIDCount
)

// latencyBounds are the inclusive upper bounds of the first seven
// histogram buckets; the eighth bucket holds everything slower.
var latencyBounds = [...]time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

const histBucketCount = len(latencyBounds) + 1

type latencyHistogram struct {
	buckets [histBucketCount]atomic.Uint64
	sumNano atomic.Uint64
}

// counterSlot keeps each counter on its own cache line so parallel
// increments of different ids do not contend.
type counterSlot struct {
	n atomic.Uint64
	_ [56]byte
}

// Metrics holds lock-free engine counters. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]counterSlot
	verifyLatency latencyHistogram
}

// MetricsSnapshot is a point-in-time copy of every counter and histogram.
// Histogram buckets are non-cumulative; HistogramSums holds the total
// observed duration per histogram.
type MetricsSnapshot struct {
	Counters      map[MetricID]uint64
	Histograms    map[MetricID][]uint64
	HistogramSums map[MetricID]time.Duration
}

func emptySnapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Counters:      map[MetricID]uint64{},
		Histograms:    map[MetricID][]uint64{},
		HistogramSums: map[MetricID]time.Duration{},
	}
}

// NewMetrics returns counters configured by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to the counter id. The histogram id is not a counter.
func (m *Metrics) Inc(id MetricID) {
	if !m.Enabled() || id >= metricIDCount || id == MetricVerifyLatency {
		return
	}
	m.counters[id].n.Add(1)
}

// Observe records d in the histogram id. Only MetricVerifyLatency is a
// histogram; other ids are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if !m.LatencyEnabled() || id != MetricVerifyLatency {
		return
	}
	m.verifyLatency.buckets[bucketIndex(d)].Add(1)
	if d > 0 {
		m.verifyLatency.sumNano.Add(uint64(d))
	}
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.counters[id].n.Load()
}

// Snapshot copies the current values. Disabled metrics yield empty maps.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if !m.Enabled() {
		return emptySnapshot()
	}

	s := emptySnapshot()
	for id := MetricID(0); id < metricIDCount; id++ {
		if id != MetricVerifyLatency {
			s.Counters[id] = m.counters[id].n.Load()
		}
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := range buckets {
			buckets[i] = m.verifyLatency.buckets[i].Load()
		}
		s.Histograms[MetricVerifyLatency] = buckets
		s.HistogramSums[MetricVerifyLatency] = time.Duration(m.verifyLatency.sumNano.Load())
	}
	return s
}

// bucketIndex compares at millisecond resolution, so 5.9ms still lands in
// the 5ms bucket.
func bucketIndex(d time.Duration) int {
	d = d.Truncate(time.Millisecond)
	for i, bound := range latencyBounds {
		if d <= bound {
			return i
		}
	}
	return len(latencyBounds)
}
