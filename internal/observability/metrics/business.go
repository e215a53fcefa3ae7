package metrics

import "time"

// RecordProviderCall records the outcome of a primary provider call.
// result should be "success", "failure" or "rejected".
func RecordProviderCall(provider, result string, duration time.Duration) {
	ProviderCallsTotal.WithLabelValues(provider, result).Inc()
	if result == "success" {
		ProviderCallDuration.WithLabelValues(provider).Observe(duration.Seconds())
	}
}

// RecordCircuitTransition records a breaker transition and updates the state gauge.
func RecordCircuitTransition(provider, from, to string) {
	CircuitTransitionsTotal.WithLabelValues(provider, from, to).Inc()
	SetCircuitState(provider, to)
}

// SetCircuitState sets the state gauge for provider.
func SetCircuitState(provider, state string) {
	var v float64
	switch state {
	case "half-open":
		v = 1
	case "open":
		v = 2
	}
	CircuitState.WithLabelValues(provider).Set(v)
}

// RecordRetry records a retry scheduled for operation.
func RecordRetry(operation string) {
	RetryAttemptsTotal.WithLabelValues(operation).Inc()
}

// RecordFallback records the fallback level that answered for provider.
func RecordFallback(provider, level string) {
	FallbackResolutionsTotal.WithLabelValues(provider, level).Inc()
}

// RecordHealthProbe records a background probe result.
func RecordHealthProbe(provider string, healthy bool) {
	result := "success"
	if !healthy {
		result = "failure"
	}
	HealthProbesTotal.WithLabelValues(provider, result).Inc()
}

// RecordAggregation records a completed aggregation.
// source is "cache" when the aggregate cache answered, "fanout" otherwise.
func RecordAggregation(source string, duration time.Duration, offers int) {
	AggregationDuration.WithLabelValues(source).Observe(duration.Seconds())
	OffersReturned.Observe(float64(offers))
}

// RecordMatchScore records a computed match score.
func RecordMatchScore(score int) {
	MatchScore.Observe(float64(score))
}

// RecordCacheLookup records a cache lookup. result is "hit", "miss" or "expired".
func RecordCacheLookup(result string) {
	CacheRequestsTotal.WithLabelValues(result).Inc()
}

// RecordCacheEvictions records n evicted entries.
func RecordCacheEvictions(n int) {
	if n > 0 {
		CacheEvictionsTotal.Add(float64(n))
	}
}

// UpdateCacheEntries sets the current cache size.
func UpdateCacheEntries(n int) {
	CacheEntries.Set(float64(n))
}

// RecordDBQuery records the duration of a database query.
func RecordDBQuery(operation string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// UpdateDBConnectionStats updates database connection pool statistics.
func UpdateDBConnectionStats(active, idle int) {
	DBConnectionsActive.Set(float64(active))
	DBConnectionsIdle.Set(float64(idle))
}
