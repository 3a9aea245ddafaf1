// Package observability provides an OpenTelemetry metrics extension for
// datastruct. The MetricsExtension implements lifecycle hooks to record
// counters for header creation and conflicts, structure removals, removal
// retries and purged set items.
//
// For per-call tracing and metrics of remote block and purge requests, see
// the middleware package: middleware.Tracing() and middleware.Metrics().
package observability
