// Package observability groups the logging, metrics and tracing packages.
//
//   - logging: slog construction and request scoped loggers
//   - metrics: Prometheus collectors for HTTP, providers, cache and database
//   - tracing: OpenTelemetry tracer provider and HTTP middleware
//   - slo: provider availability objectives derived from breaker metrics
package observability
