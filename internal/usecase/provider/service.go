// Package provider exposes provider health, breaker metrics and the
// administrative circuit overrides.
package provider

import (
	"survey-offers/internal/domain/entity"
	"survey-offers/internal/resilience/circuitbreaker"
)

// HealthStatus is the externally visible health of a provider.
type HealthStatus string

const (
	Healthy   HealthStatus = "healthy"
	Degraded  HealthStatus = "degraded"
	Unhealthy HealthStatus = "unhealthy"
)

// HealthFromState maps a breaker state to a health status.
func HealthFromState(s circuitbreaker.State) HealthStatus {
	switch s {
	case circuitbreaker.StateClosed:
		return Healthy
	case circuitbreaker.StateHalfOpen:
		return Degraded
	default:
		return Unhealthy
	}
}

// Registry is the breaker registry surface the service needs.
type Registry interface {
	Providers() []entity.ProviderID
	State(id entity.ProviderID) (circuitbreaker.State, error)
	Snapshot() map[entity.ProviderID]circuitbreaker.Metrics
	Config(id entity.ProviderID) (circuitbreaker.ProviderConfig, error)
	Reset(id entity.ProviderID) error
	Configure(id entity.ProviderID, p circuitbreaker.PartialConfig) (circuitbreaker.ProviderConfig, error)
}

// Status is the full view of one provider.
type Status struct {
	Provider entity.ProviderID             `json:"provider"`
	Health   HealthStatus                  `json:"health"`
	Metrics  circuitbreaker.Metrics        `json:"metrics"`
	Config   circuitbreaker.ProviderConfig `json:"config"`
}

// Service reads and overrides breaker state.
type Service struct {
	registry Registry
}

// NewService creates a Service over registry.
func NewService(registry Registry) *Service {
	return &Service{registry: registry}
}

// Health reports every provider's status. It never fails.
func (s *Service) Health() map[entity.ProviderID]HealthStatus {
	out := make(map[entity.ProviderID]HealthStatus)
	for id, m := range s.registry.Snapshot() {
		out[id] = HealthFromState(m.State)
	}
	return out
}

// Metrics returns a copy of every provider's counters. It never fails.
func (s *Service) Metrics() map[entity.ProviderID]circuitbreaker.Metrics {
	return s.registry.Snapshot()
}

// Statuses returns health, metrics and config per provider in registry order.
func (s *Service) Statuses() []Status {
	snap := s.registry.Snapshot()
	ids := s.registry.Providers()
	out := make([]Status, 0, len(ids))
	for _, id := range ids {
		m := snap[id]
		cfg, _ := s.registry.Config(id)
		out = append(out, Status{Provider: id, Health: HealthFromState(m.State), Metrics: m, Config: cfg})
	}
	return out
}

// ResetCircuit forces the provider's breaker closed and clears its counters.
func (s *Service) ResetCircuit(id entity.ProviderID) error {
	return s.registry.Reset(id)
}

// ConfigureCircuit applies a partial override and returns the resulting config.
func (s *Service) ConfigureCircuit(id entity.ProviderID, p circuitbreaker.PartialConfig) (circuitbreaker.ProviderConfig, error) {
	return s.registry.Configure(id, p)
}
