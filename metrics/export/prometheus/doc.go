// Package prometheus exposes SessionStore metrics as a client_golang Collector.
//
// [NewPrometheusExporter] reads [sessionkit.SessionStore.MetricsSnapshot] on every
// scrape. Counter names are prefixed aification_session_*_total; the single histogram is
// aification_session_hydrate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register into the global Prometheus registry. Callers register the Collector or
//     mount Handler, which uses a private registry.
//   - Mutate store state.
package prometheus
