// Package config reads settings from environment variables with per-key
// validation. Loading is fail-open: a value that does not parse or does not
// validate is replaced by its default and reported as a warning, so a typo
// in one variable never keeps the process from starting.
//
//	r := config.Duration("HEALTH_CHECK_INTERVAL", 30*time.Second, config.Between(5*time.Second, 10*time.Minute))
//	if r.FallbackApplied {
//		logger.Warn("configuration fallback applied", slog.String("warning", r.Warning))
//	}
//	interval := r.Value
package config
