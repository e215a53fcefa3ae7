package config

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks how a component's configuration was loaded. All series are
// prefixed with the component name, e.g. worker_config_fallbacks_total.
type Metrics struct {
	LoadTimestamp    prometheus.Gauge
	ValidationErrors *prometheus.CounterVec
	Fallbacks        *prometheus.CounterVec
	FallbackActive   prometheus.Gauge
}

// NewMetrics registers the configuration metrics for component through
// promauto. Call it once per component and process.
func NewMetrics(component string) *Metrics {
	return newMetrics(promauto.With(prometheus.DefaultRegisterer), component)
}

func newMetrics(f promauto.Factory, component string) *Metrics {
	return &Metrics{
		LoadTimestamp: f.NewGauge(prometheus.GaugeOpts{
			Name: component + "_config_load_timestamp",
			Help: "Unix timestamp of the last " + component + " configuration load",
		}),
		ValidationErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: component + "_config_validation_errors_total",
			Help: "Configuration values of " + component + " rejected by validation",
		}, []string{"field"}),
		Fallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Name: component + "_config_fallbacks_total",
			Help: "Configuration values of " + component + " replaced by their default",
		}, []string{"field"}),
		FallbackActive: f.NewGauge(prometheus.GaugeOpts{
			Name: component + "_config_fallback_active",
			Help: "1 while any " + component + " configuration value runs on its fallback",
		}),
	}
}

// Observe records one loaded value under field.
func (m *Metrics) Observe(field string, fallback bool) {
	if m == nil || !fallback {
		return
	}
	m.ValidationErrors.WithLabelValues(field).Inc()
	m.Fallbacks.WithLabelValues(field).Inc()
}

// Loaded stamps the load time and whether any fallback is in effect.
func (m *Metrics) Loaded(anyFallback bool) {
	if m == nil {
		return
	}
	if anyFallback {
		m.FallbackActive.Set(1)
	} else {
		m.FallbackActive.Set(0)
	}
	m.LoadTimestamp.SetToCurrentTime()
}
