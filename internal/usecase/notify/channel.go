// Package notify dispatches provider circuit alerts to operator channels
// (Slack, Discord). Dispatch is asynchronous, bounded by a worker pool, and
// each channel is muted for a while after repeated delivery failures.
package notify

import (
	"context"

	"survey-offers/internal/domain/entity"
	"survey-offers/internal/infra/notifier"
)

// Channel is an alert delivery channel. Implementations must be safe for
// concurrent use and respect context cancellation.
type Channel interface {
	// Name is the lowercase identifier used in logs and metric labels.
	Name() string

	// IsEnabled reports whether the channel is configured to receive alerts.
	IsEnabled() bool

	// Send delivers one alert. It returns ErrChannelDisabled on a disabled
	// channel and ErrInvalidAlert for an alert missing provider or state.
	Send(ctx context.Context, alert entity.CircuitAlert) error
}

// WebhookChannel adapts an infrastructure notifier to Channel.
type WebhookChannel struct {
	name     string
	notifier notifier.Notifier
	enabled  bool
}

// NewSlackChannel creates the Slack channel. A disabled config uses a no-op
// notifier.
func NewSlackChannel(config notifier.SlackConfig) *WebhookChannel {
	var n notifier.Notifier = notifier.NewNoOpNotifier()
	if config.Enabled {
		n = notifier.NewSlackNotifier(config)
	}
	return &WebhookChannel{name: "slack", notifier: n, enabled: config.Enabled}
}

// NewDiscordChannel creates the Discord channel.
func NewDiscordChannel(config notifier.DiscordConfig) *WebhookChannel {
	var n notifier.Notifier = notifier.NewNoOpNotifier()
	if config.Enabled {
		n = notifier.NewDiscordNotifier(config)
	}
	return &WebhookChannel{name: "discord", notifier: n, enabled: config.Enabled}
}

func (c *WebhookChannel) Name() string { return c.name }

func (c *WebhookChannel) IsEnabled() bool { return c.enabled }

// Send implements Channel.
func (c *WebhookChannel) Send(ctx context.Context, alert entity.CircuitAlert) error {
	if !c.enabled {
		return ErrChannelDisabled
	}
	if alert.Provider == "" || alert.To == "" {
		return ErrInvalidAlert
	}
	return c.notifier.NotifyAlert(ctx, alert)
}
