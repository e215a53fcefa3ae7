package worker

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"survey-offers/internal/pkg/config"
)

// WorkerConfig holds the settings of the background jobs that run inside the
// API process: provider health probing, cache sweeping and alert dispatch.
//
// Configuration sources:
//   - Environment variables (loaded via LoadConfigFromEnv)
//   - Default values (provided by DefaultConfig)
//
// Loading is fail-open: an invalid variable falls back to its default, logs a
// warning and bumps the worker_config_* metrics.
type WorkerConfig struct {
	// HealthCheckInterval is the period between provider probe rounds.
	// Range: 5s-10m
	// Default: 30s
	HealthCheckInterval time.Duration

	// ProbeTimeout bounds a single provider probe.
	// Range: 100ms-30s, and below HealthCheckInterval
	// Default: 3s
	ProbeTimeout time.Duration

	// CacheSweepSchedule is the cron expression for removing expired cache entries.
	// Format: "minute hour day month weekday"
	// Default: "*/5 * * * *"
	CacheSweepSchedule string

	// Timezone is the IANA timezone name the sweep schedule runs in.
	// Default: "UTC"
	Timezone string

	// AlertMaxConcurrent is the number of alert channels notified in parallel.
	// Range: 1-50
	// Default: 5
	AlertMaxConcurrent int

	// HealthPort serves liveness, readiness and Prometheus metrics.
	// Range: 1024-65535
	// Default: 9091
	HealthPort int
}

// DefaultConfig returns a WorkerConfig with production defaults.
func DefaultConfig() WorkerConfig {
	return WorkerConfig{
		HealthCheckInterval: 30 * time.Second,
		ProbeTimeout:        3 * time.Second,
		CacheSweepSchedule:  "*/5 * * * *",
		Timezone:            "UTC",
		AlertMaxConcurrent:  5,
		HealthPort:          9091,
	}
}

// Validate checks every field and returns all failures together.
func (c *WorkerConfig) Validate() error {
	var errs []error

	if err := config.ValidateDuration(c.HealthCheckInterval, 5*time.Second, 10*time.Minute); err != nil {
		errs = append(errs, fmt.Errorf("health check interval: %w", err))
	}

	if err := config.ValidateDuration(c.ProbeTimeout, 100*time.Millisecond, 30*time.Second); err != nil {
		errs = append(errs, fmt.Errorf("probe timeout: %w", err))
	} else if c.ProbeTimeout >= c.HealthCheckInterval {
		errs = append(errs, fmt.Errorf("probe timeout %v must be shorter than health check interval %v", c.ProbeTimeout, c.HealthCheckInterval))
	}

	if err := config.ValidateCronSchedule(c.CacheSweepSchedule); err != nil {
		errs = append(errs, fmt.Errorf("cache sweep schedule: %w", err))
	}

	if err := config.ValidateTimezone(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}

	if err := config.ValidateIntRange(c.AlertMaxConcurrent, 1, 50); err != nil {
		errs = append(errs, fmt.Errorf("alert max concurrent: %w", err))
	}

	if err := config.ValidateIntRange(c.HealthPort, 1024, 65535); err != nil {
		errs = append(errs, fmt.Errorf("health port: %w", err))
	}

	return errors.Join(errs...)
}

// Location returns the configured timezone, UTC when it cannot be loaded.
func (c *WorkerConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// LoadConfigFromEnv loads the worker configuration with per-field fallback
// to defaults. It never returns an error.
//
// Environment variables:
//   - HEALTH_CHECK_INTERVAL (default 30s)
//   - HEALTH_PROBE_TIMEOUT (default 3s)
//   - CACHE_SWEEP_SCHEDULE (default "*/5 * * * *")
//   - WORKER_TIMEZONE (default "UTC")
//   - ALERT_MAX_CONCURRENT (default 5)
//   - WORKER_HEALTH_PORT (default 9091)
func LoadConfigFromEnv(logger *slog.Logger, metrics *WorkerMetrics) (*WorkerConfig, error) {
	cfg := DefaultConfig()
	var cm *config.Metrics
	if metrics != nil {
		cm = metrics.Metrics
	}
	anyFallback := false

	note := func(field string, applied bool, warning string) {
		cm.Observe(field, applied)
		if !applied {
			return
		}
		anyFallback = true
		logger.Warn("configuration fallback applied",
			slog.String("field", field),
			slog.String("warning", warning))
	}

	interval := config.Duration("HEALTH_CHECK_INTERVAL", cfg.HealthCheckInterval, config.Between(5*time.Second, 10*time.Minute))
	cfg.HealthCheckInterval = interval.Value
	note("health_check_interval", interval.FallbackApplied, interval.Warning)

	probe := config.Duration("HEALTH_PROBE_TIMEOUT", cfg.ProbeTimeout, func(d time.Duration) error {
		if err := config.ValidateDuration(d, 100*time.Millisecond, 30*time.Second); err != nil {
			return err
		}
		if d >= cfg.HealthCheckInterval {
			return fmt.Errorf("probe timeout %v must be shorter than health check interval %v", d, cfg.HealthCheckInterval)
		}
		return nil
	})
	cfg.ProbeTimeout = probe.Value
	note("probe_timeout", probe.FallbackApplied, probe.Warning)

	sweep := config.Text("CACHE_SWEEP_SCHEDULE", cfg.CacheSweepSchedule, config.ValidateCronSchedule)
	cfg.CacheSweepSchedule = sweep.Value
	note("cache_sweep_schedule", sweep.FallbackApplied, sweep.Warning)

	tz := config.Text("WORKER_TIMEZONE", cfg.Timezone, config.ValidateTimezone)
	cfg.Timezone = tz.Value
	note("timezone", tz.FallbackApplied, tz.Warning)

	alerts := config.Int("ALERT_MAX_CONCURRENT", cfg.AlertMaxConcurrent, config.IntBetween(1, 50))
	cfg.AlertMaxConcurrent = alerts.Value
	note("alert_max_concurrent", alerts.FallbackApplied, alerts.Warning)

	port := config.Int("WORKER_HEALTH_PORT", cfg.HealthPort, config.IntBetween(1024, 65535))
	cfg.HealthPort = port.Value
	note("health_port", port.FallbackApplied, port.Warning)

	cm.Loaded(anyFallback)
	return &cfg, nil
}
