// Package otel binds goMFA engine metrics to an OpenTelemetry Meter.
//
// [NewExporter] registers an Int64ObservableCounter per engine counter and,
// for the verify latency histogram, a cumulative bucket gauge labelled
// with "le" plus count and sum gauges. One callback reads
// [goMFA.Engine.MetricsSnapshot] on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
