// Package prometheus exposes goMFA engine metrics through client_golang.
//
// [NewCollector] wraps an [goMFA.Engine] in a prometheus.Collector. Counters
// are named gomfa_*_total and the verify latency histogram is
// gomfa_verify_latency_seconds. [Collector.Handler] mounts the collector on
// a private registry for processes that have none.
//
// # What this package must NOT do
//
//   - Register into the global default registry.
//   - Mutate engine state.
package prometheus
