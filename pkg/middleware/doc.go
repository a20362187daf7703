// Package middleware provides store instrumentation: Prometheus metrics and
// OpenTelemetry tracing wrapped around top-level store operations.
//
// Each helper returns a nucleo.StoreOption, so instrumentation composes at
// store construction:
//
//	store := nucleo.NewStore(
//	    middleware.Prometheus(),
//	    middleware.OpenTelemetry(),
//	)
package middleware
