// Package otel exposes SessionStore metrics through OpenTelemetry observable
// instruments.
//
// [NewOTelExporter] registers an Int64ObservableCounter per counter and one
// Int64ObservableGauge per latency bucket. A single callback reads
// [sessionkit.SessionStore.MetricsSnapshot] on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate store state.
package otel
