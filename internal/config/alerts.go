package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"survey-offers/internal/infra/notifier"
	pkgconfig "survey-offers/internal/pkg/config"
	"survey-offers/internal/usecase/notify"
)

// AlertsConfig holds the circuit alert channels and dispatch tuning.
type AlertsConfig struct {
	Slack    notifier.SlackConfig
	Discord  notifier.DiscordConfig
	Dispatch notify.Config
}

// LoadAlertsConfig reads alert settings from the environment.
//
// Tuning values fall back to defaults with a logged warning. A channel that
// is enabled without a valid https webhook URL is an error, since it would
// otherwise drop every alert silently.
//
// Environment variables:
//   - SLACK_ENABLED, SLACK_WEBHOOK_URL
//   - DISCORD_ENABLED, DISCORD_WEBHOOK_URL
//   - ALERT_TIMEOUT (default 10s)
//   - ALERT_COOLDOWN (default 5m)
//   - ALERT_MUTE_THRESHOLD (default 5)
//   - ALERT_MUTE_DURATION (default 5m)
func LoadAlertsConfig(logger *slog.Logger) (*AlertsConfig, error) {
	if logger == nil {
		logger = slog.Default()
	}
	warn := func(applied bool, warning string) {
		if applied {
			logger.Warn("alert configuration fallback applied", slog.String("warning", warning))
		}
	}
	boolEnv := func(key string) bool {
		r := pkgconfig.Bool(key, false)
		warn(r.FallbackApplied, r.Warning)
		return r.Value
	}
	durationEnv := func(key string, def, min, max time.Duration) time.Duration {
		r := pkgconfig.Duration(key, def, pkgconfig.Between(min, max))
		warn(r.FallbackApplied, r.Warning)
		return r.Value
	}

	dispatch := notify.DefaultConfig()
	timeout := durationEnv("ALERT_TIMEOUT", 10*time.Second, time.Second, time.Minute)
	dispatch.Cooldown = durationEnv("ALERT_COOLDOWN", dispatch.Cooldown, 0, 24*time.Hour)
	dispatch.MuteDuration = durationEnv("ALERT_MUTE_DURATION", dispatch.MuteDuration, time.Second, 24*time.Hour)

	mute := pkgconfig.Int("ALERT_MUTE_THRESHOLD", dispatch.MuteThreshold, pkgconfig.IntBetween(1, 100))
	warn(mute.FallbackApplied, mute.Warning)
	dispatch.MuteThreshold = mute.Value

	cfg := &AlertsConfig{
		Slack: notifier.SlackConfig{
			Enabled:    boolEnv("SLACK_ENABLED"),
			WebhookURL: pkgconfig.String("SLACK_WEBHOOK_URL", ""),
			Timeout:    timeout,
		},
		Discord: notifier.DiscordConfig{
			Enabled:    boolEnv("DISCORD_ENABLED"),
			WebhookURL: pkgconfig.String("DISCORD_WEBHOOK_URL", ""),
			Timeout:    timeout,
		},
		Dispatch: dispatch,
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid alert configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the webhook URL of every enabled channel.
func (c *AlertsConfig) Validate() error {
	var errs []error
	if c.Slack.Enabled {
		if err := validateWebhookURL(c.Slack.WebhookURL); err != nil {
			errs = append(errs, fmt.Errorf("SLACK_WEBHOOK_URL: %w", err))
		}
	}
	if c.Discord.Enabled {
		if err := validateWebhookURL(c.Discord.WebhookURL); err != nil {
			errs = append(errs, fmt.Errorf("DISCORD_WEBHOOK_URL: %w", err))
		}
	}
	return errors.Join(errs...)
}

func validateWebhookURL(raw string) error {
	if raw == "" {
		return errors.New("required when the channel is enabled")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return errors.New("not a valid URL")
	}
	if u.Scheme != "https" || u.Host == "" {
		return errors.New("must be an absolute https URL")
	}
	return nil
}
