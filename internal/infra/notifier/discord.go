package notifier

import (
	"context"
	"time"

	"survey-offers/internal/domain/entity"
)

// DiscordConfig contains configuration for Discord webhook alerts.
type DiscordConfig struct {
	Enabled bool

	// WebhookURL is the Discord webhook URL (includes authentication token)
	WebhookURL string

	Timeout time.Duration
}

// DiscordNotifier posts alerts to Discord via webhook.
type DiscordNotifier struct {
	webhook *webhook
}

// NewDiscordNotifier creates a DiscordNotifier limited to 0.5 requests/second
// with a burst of 3 (30 requests per minute).
func NewDiscordNotifier(config DiscordConfig) *DiscordNotifier {
	return &DiscordNotifier{
		webhook: newWebhook("discord", config.WebhookURL, config.Timeout, 0.5, 3),
	}
}

// DiscordWebhookPayload represents the JSON payload sent to Discord webhook.
type DiscordWebhookPayload struct {
	Embeds []DiscordEmbed `json:"embeds"`
}

// DiscordEmbed represents a Discord embed message.
type DiscordEmbed struct {
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Color       int                `json:"color"`
	Footer      DiscordEmbedFooter `json:"footer"`
	Timestamp   string             `json:"timestamp"`
}

// DiscordEmbedFooter represents the footer of a Discord embed.
type DiscordEmbedFooter struct {
	Text string `json:"text"`
}

const (
	maxTitleLength       = 256
	maxDescriptionLength = 4096

	discordRed   = 15548997 // #ED4245
	discordGreen = 5763719  // #57F287
	discordAmber = 16705372 // #FEE75C
)

func embedColor(to string) int {
	switch to {
	case "open":
		return discordRed
	case "closed":
		return discordGreen
	default:
		return discordAmber
	}
}

func (d *DiscordNotifier) buildEmbedPayload(alert entity.CircuitAlert) DiscordWebhookPayload {
	return DiscordWebhookPayload{
		Embeds: []DiscordEmbed{{
			Title:       truncate(alertHeadline(alert), maxTitleLength, truncationSuffix),
			Description: truncate(alertDetails(alert), maxDescriptionLength, truncationSuffix),
			Color:       embedColor(alert.To),
			Footer:      DiscordEmbedFooter{Text: "survey-offers"},
			Timestamp:   alert.OccurredAt.UTC().Format(time.RFC3339),
		}},
	}
}

// NotifyAlert implements Notifier.
func (d *DiscordNotifier) NotifyAlert(ctx context.Context, alert entity.CircuitAlert) error {
	return d.webhook.deliver(ctx, alert, d.buildEmbedPayload(alert))
}
