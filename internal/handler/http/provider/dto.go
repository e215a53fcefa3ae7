package provider

import (
	"time"

	"survey-offers/internal/domain/entity"
	"survey-offers/internal/resilience/circuitbreaker"
)

// CircuitPatch is the body of PATCH /admin/providers/{id}/circuit.
// Durations use Go syntax ("30s", "2m"). Absent fields keep their value.
type CircuitPatch struct {
	FailureThresholdPercent *float64 `json:"failure_threshold_percent,omitempty"`
	CallTimeout             *string  `json:"call_timeout,omitempty"`
	ResetTimeout            *string  `json:"reset_timeout,omitempty"`
	MinimumCalls            *int64   `json:"minimum_calls,omitempty"`
}

func (p CircuitPatch) toPartial() (circuitbreaker.PartialConfig, error) {
	if p.FailureThresholdPercent == nil && p.CallTimeout == nil && p.ResetTimeout == nil && p.MinimumCalls == nil {
		return circuitbreaker.PartialConfig{}, &entity.ValidationError{Field: "body", Message: "at least one field is required"}
	}
	out := circuitbreaker.PartialConfig{
		FailureThresholdPercent: p.FailureThresholdPercent,
		MinimumCalls:            p.MinimumCalls,
	}
	var err error
	if out.CallTimeout, err = parseDuration("call_timeout", p.CallTimeout); err != nil {
		return circuitbreaker.PartialConfig{}, err
	}
	if out.ResetTimeout, err = parseDuration("reset_timeout", p.ResetTimeout); err != nil {
		return circuitbreaker.PartialConfig{}, err
	}
	return out, nil
}

func parseDuration(field string, s *string) (*time.Duration, error) {
	if s == nil {
		return nil, nil
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return nil, &entity.ValidationError{Field: field, Message: field + " must be a duration such as 30s"}
	}
	return &d, nil
}

// CircuitConfig is a breaker configuration with readable durations.
type CircuitConfig struct {
	FailureThresholdPercent float64 `json:"failure_threshold_percent"`
	CallTimeout             string  `json:"call_timeout"`
	ResetTimeout            string  `json:"reset_timeout"`
	MinimumCalls            int64   `json:"minimum_calls"`
}

func configDTO(c circuitbreaker.ProviderConfig) CircuitConfig {
	return CircuitConfig{
		FailureThresholdPercent: c.FailureThresholdPercent,
		CallTimeout:             c.CallTimeout.String(),
		ResetTimeout:            c.ResetTimeout.String(),
		MinimumCalls:            c.MinimumCalls,
	}
}

// MetricsDTO is one provider's breaker counters.
type MetricsDTO struct {
	TotalCalls            int64      `json:"total_calls"`
	SuccessCount          int64      `json:"success_count"`
	FailureCount          int64      `json:"failure_count"`
	AverageResponseTimeMS int64      `json:"average_response_time_ms"`
	LastFailure           *time.Time `json:"last_failure,omitempty"`
	CircuitState          string     `json:"circuit_state"`
}

func metricsDTO(m circuitbreaker.Metrics) MetricsDTO {
	out := MetricsDTO{
		TotalCalls:            m.TotalCalls,
		SuccessCount:          m.SuccessCount,
		FailureCount:          m.FailureCount,
		AverageResponseTimeMS: m.AverageResponseTime.Milliseconds(),
		CircuitState:          m.State.String(),
	}
	if !m.LastFailure.IsZero() {
		t := m.LastFailure.UTC()
		out.LastFailure = &t
	}
	return out
}

// StatusDTO is the admin view of one provider.
type StatusDTO struct {
	Provider entity.ProviderID `json:"provider"`
	Health   string            `json:"health"`
	Metrics  MetricsDTO        `json:"metrics"`
	Config   CircuitConfig     `json:"config"`
}
