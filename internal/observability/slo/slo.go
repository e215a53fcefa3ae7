// Package slo turns per-provider breaker counters into availability
// objectives: the observed success ratio and the share of the error budget
// still unspent.
package slo

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"survey-offers/internal/domain/entity"
	"survey-offers/internal/resilience/circuitbreaker"
)

// ProviderAvailabilityTarget is the success ratio each provider is held to.
const ProviderAvailabilityTarget = 0.99

var (
	ProviderAvailability = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "slo_provider_availability_ratio",
			Help: "Successful calls over total calls per provider since the last breaker reset",
		},
		[]string{"provider"},
	)

	ProviderErrorBudget = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "slo_provider_error_budget_remaining_ratio",
			Help: "Share of the provider error budget still unspent (0-1)",
		},
		[]string{"provider"},
	)
)

// Status is the objective evaluation of one provider.
type Status struct {
	Provider        entity.ProviderID
	Availability    float64
	BudgetRemaining float64
}

// Breached reports whether the availability is below target.
func (s Status) Breached(target float64) bool {
	return s.Availability < target
}

// Evaluate computes availability and remaining budget from call counts.
// No calls means full availability and an untouched budget.
func Evaluate(total, failures int64, target float64) (availability, budgetRemaining float64) {
	if total <= 0 {
		return 1, 1
	}
	availability = float64(total-failures) / float64(total)
	allowed := 1 - target
	if allowed <= 0 {
		if failures > 0 {
			return availability, 0
		}
		return availability, 1
	}
	budgetRemaining = 1 - (1-availability)/allowed
	if budgetRemaining < 0 {
		budgetRemaining = 0
	}
	return availability, budgetRemaining
}

// Publish evaluates every provider against ProviderAvailabilityTarget,
// updates the gauges and returns the statuses sorted by provider.
func Publish(snapshot map[entity.ProviderID]circuitbreaker.Metrics) []Status {
	ids := make([]entity.ProviderID, 0, len(snapshot))
	for id := range snapshot {
		ids = append(ids, id)
	}
	entity.SortProviders(ids)

	out := make([]Status, 0, len(ids))
	for _, id := range ids {
		m := snapshot[id]
		avail, budget := Evaluate(m.TotalCalls, m.FailureCount, ProviderAvailabilityTarget)
		ProviderAvailability.WithLabelValues(string(id)).Set(avail)
		ProviderErrorBudget.WithLabelValues(string(id)).Set(budget)
		out = append(out, Status{Provider: id, Availability: avail, BudgetRemaining: budget})
	}
	return out
}
