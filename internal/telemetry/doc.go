// Package telemetry provides OpenTelemetry initialization and helpers
// for tracing and log export from the cache service.
//
// The package configures OTLP HTTP export for traces and logs. When no
// collector endpoint is configured nothing is installed and the global
// no-op providers stay in place.
package telemetry
