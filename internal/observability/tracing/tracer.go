package tracing

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "survey-offers"

// GetTracer returns the service tracer from the current global provider.
// It is looked up on every call so a provider installed later by Setup
// or a test takes effect immediately.
//
//	ctx, span := tracing.GetTracer().Start(ctx, "offer.fetch")
//	defer span.End()
func GetTracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}
