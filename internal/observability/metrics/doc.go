// Package metrics declares the Prometheus series of the offer engine and
// small helpers to record them: HTTP traffic, provider calls and circuit
// state, retries, fallback levels, the response cache, aggregation and
// match scoring, and the profile store.
//
// Everything registers with the default registry through promauto and is
// served on GET /metrics.
//
//	start := time.Now()
//	offers, err := client.Fetch(ctx, user)
//	metrics.RecordProviderCall("cpx", resultOf(err), time.Since(start))
package metrics
