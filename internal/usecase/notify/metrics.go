package notify

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	alertDispatchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_dispatched_total",
			Help: "Total number of alerts dispatched",
		},
		[]string{"channel"},
	)

	alertSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_sent_total",
			Help: "Total number of alerts sent",
		},
		[]string{"channel", "status"}, // status: success|failure
	)

	alertDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "alert_duration_seconds",
			Help:    "Alert send duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"channel"},
	)

	alertChannelMutedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_channel_muted_total",
			Help: "Total number of times a channel was muted after repeated failures",
		},
		[]string{"channel"},
	)

	alertDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_dropped_total",
			Help: "Total number of dropped alerts",
		},
		[]string{"channel", "reason"}, // reason: pool_full|muted|cooldown|shutdown
	)

	activeAlerts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "alert_active_goroutines",
			Help: "Number of in-flight alert deliveries",
		},
	)

	channelsEnabled = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "alert_channels_enabled",
			Help: "Number of enabled alert channels",
		},
	)
)

// RecordDispatch records an alert about to be sent to channel.
func RecordDispatch(channel string) {
	alertDispatchedTotal.WithLabelValues(channel).Inc()
}

// RecordSuccess records a delivered alert and its send duration.
func RecordSuccess(channel string, duration time.Duration) {
	alertSentTotal.WithLabelValues(channel, "success").Inc()
	alertDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

// RecordFailure records a failed delivery and its send duration.
func RecordFailure(channel string, duration time.Duration) {
	alertSentTotal.WithLabelValues(channel, "failure").Inc()
	alertDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

// RecordDropped records an alert that was never sent.
func RecordDropped(channel, reason string) {
	alertDroppedTotal.WithLabelValues(channel, reason).Inc()
}

// RecordChannelMuted records a channel muted after consecutive failures.
func RecordChannelMuted(channel string) {
	alertChannelMutedTotal.WithLabelValues(channel).Inc()
}

func incrementActive() { activeAlerts.Inc() }

func decrementActive() { activeAlerts.Dec() }

// SetChannelsEnabled sets the number of enabled alert channels.
func SetChannelsEnabled(count float64) {
	channelsEnabled.Set(count)
}
