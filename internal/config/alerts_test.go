package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearAlertEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"SLACK_ENABLED", "SLACK_WEBHOOK_URL", "DISCORD_ENABLED", "DISCORD_WEBHOOK_URL",
		"ALERT_TIMEOUT", "ALERT_COOLDOWN", "ALERT_MUTE_THRESHOLD", "ALERT_MUTE_DURATION",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadAlertsConfig_Defaults(t *testing.T) {
	clearAlertEnv(t)

	cfg, err := LoadAlertsConfig(nil)
	require.NoError(t, err)

	assert.False(t, cfg.Slack.Enabled)
	assert.False(t, cfg.Discord.Enabled)
	assert.Equal(t, 10*time.Second, cfg.Slack.Timeout)
	assert.Equal(t, 5*time.Minute, cfg.Dispatch.Cooldown)
	assert.Equal(t, 5, cfg.Dispatch.MuteThreshold)
	assert.Equal(t, 5*time.Minute, cfg.Dispatch.MuteDuration)
}

func TestLoadAlertsConfig_Channels(t *testing.T) {
	clearAlertEnv(t)
	t.Setenv("SLACK_ENABLED", "true")
	t.Setenv("SLACK_WEBHOOK_URL", "https://hooks.slack.com/services/T/B/X")
	t.Setenv("DISCORD_ENABLED", "true")
	t.Setenv("DISCORD_WEBHOOK_URL", "https://discord.com/api/webhooks/1/abc")
	t.Setenv("ALERT_TIMEOUT", "3s")
	t.Setenv("ALERT_COOLDOWN", "0s")

	cfg, err := LoadAlertsConfig(nil)
	require.NoError(t, err)

	assert.True(t, cfg.Slack.Enabled)
	assert.Equal(t, "https://hooks.slack.com/services/T/B/X", cfg.Slack.WebhookURL)
	assert.Equal(t, 3*time.Second, cfg.Discord.Timeout)
	assert.Zero(t, cfg.Dispatch.Cooldown)
}

func TestLoadAlertsConfig_Fallbacks(t *testing.T) {
	clearAlertEnv(t)
	t.Setenv("ALERT_TIMEOUT", "2h")
	t.Setenv("ALERT_MUTE_THRESHOLD", "0")
	t.Setenv("SLACK_ENABLED", "sometimes")

	cfg, err := LoadAlertsConfig(nil)
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.Slack.Timeout)
	assert.Equal(t, 5, cfg.Dispatch.MuteThreshold)
	assert.False(t, cfg.Slack.Enabled)
}

func TestLoadAlertsConfig_InvalidWebhook(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "enabled without url",
			env:     map[string]string{"SLACK_ENABLED": "true"},
			wantErr: "SLACK_WEBHOOK_URL",
		},
		{
			name:    "plain http",
			env:     map[string]string{"DISCORD_ENABLED": "true", "DISCORD_WEBHOOK_URL": "http://discord.com/api/webhooks/1"},
			wantErr: "DISCORD_WEBHOOK_URL",
		},
		{
			name:    "relative url",
			env:     map[string]string{"SLACK_ENABLED": "1", "SLACK_WEBHOOK_URL": "/services/T/B/X"},
			wantErr: "https",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearAlertEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadAlertsConfig(nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadAlertsConfig_DisabledChannelIgnoresURL(t *testing.T) {
	clearAlertEnv(t)
	t.Setenv("SLACK_WEBHOOK_URL", "not a url")

	_, err := LoadAlertsConfig(nil)
	assert.NoError(t, err)
}
