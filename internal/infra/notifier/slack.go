package notifier

import (
	"context"
	"fmt"
	"time"

	"survey-offers/internal/domain/entity"
)

// SlackConfig contains configuration for Slack webhook alerts.
type SlackConfig struct {
	Enabled bool

	// WebhookURL is the Slack Incoming Webhook URL (includes authentication token)
	WebhookURL string

	Timeout time.Duration
}

// SlackNotifier posts alerts to Slack via Incoming Webhook.
type SlackNotifier struct {
	webhook *webhook
}

// NewSlackNotifier creates a SlackNotifier limited to 1 request/second with
// a burst of 1, matching Slack's webhook limit.
func NewSlackNotifier(config SlackConfig) *SlackNotifier {
	return &SlackNotifier{
		webhook: newWebhook("slack", config.WebhookURL, config.Timeout, 1.0, 1),
	}
}

// SlackWebhookPayload is the Block Kit message body.
type SlackWebhookPayload struct {
	Text   string       `json:"text"`
	Blocks []SlackBlock `json:"blocks"`
}

// SlackBlock represents a Slack Block Kit block.
type SlackBlock struct {
	Type     string            `json:"type"`
	Text     *SlackTextObject  `json:"text,omitempty"`
	Elements []SlackTextObject `json:"elements,omitempty"`
}

// SlackTextObject represents a text object in Slack Block Kit.
type SlackTextObject struct {
	Type string `json:"type"` // "mrkdwn" or "plain_text"
	Text string `json:"text"`
}

const (
	maxSectionTextLength = 3000
	maxFallbackLength    = 150
	truncationSuffix     = "..."
)

func (s *SlackNotifier) buildBlockKitPayload(alert entity.CircuitAlert) SlackWebhookPayload {
	headline := alertHeadline(alert)
	section := truncate(fmt.Sprintf("*%s*\n\n%s", headline, alertDetails(alert)), maxSectionTextLength, truncationSuffix)

	return SlackWebhookPayload{
		Text: truncate(headline, maxFallbackLength, truncationSuffix),
		Blocks: []SlackBlock{
			{
				Type: "section",
				Text: &SlackTextObject{Type: "mrkdwn", Text: section},
			},
			{
				Type: "context",
				Elements: []SlackTextObject{{
					Type: "mrkdwn",
					Text: fmt.Sprintf("survey-offers • %s", alert.OccurredAt.UTC().Format(time.RFC3339)),
				}},
			},
		},
	}
}

// NotifyAlert implements Notifier.
func (s *SlackNotifier) NotifyAlert(ctx context.Context, alert entity.CircuitAlert) error {
	return s.webhook.deliver(ctx, alert, s.buildBlockKitPayload(alert))
}
