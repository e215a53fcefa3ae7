// Package tracing wires OpenTelemetry into the API.
//
// Setup installs an SDK TracerProvider as the global provider so that
// spans started through GetTracer carry real trace and span IDs. The IDs
// show up in request logs (trace_id) and in the traceparent header that
// Middleware propagates. No exporter is configured by default; pass one
// through Config.Exporter to ship spans elsewhere.
//
//	shutdown, err := tracing.Setup(tracing.Config{ServiceName: "survey-offers"})
//	if err != nil { ... }
//	defer shutdown(context.Background())
package tracing
