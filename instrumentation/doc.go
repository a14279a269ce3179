// Package instrumentation provides OpenTelemetry metrics and tracing for the
// authorization and resource servers.
//
// All helpers are nil-safe: components created without instrumentation skip
// recording entirely, so observability never changes control flow. When
// instrumentation is disabled, no-op providers are used for zero overhead.
package instrumentation
