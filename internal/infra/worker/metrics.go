package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"survey-offers/internal/pkg/config"
)

// Job names used as metric labels.
const (
	JobHealthCheck = "health_check"
	JobCacheSweep  = "cache_sweep"
)

// WorkerMetrics provides Prometheus metrics for the background jobs.
// It embeds the configuration metrics (worker_config_*) and adds per-job run tracking:
//   - worker_job_runs_total{job,status}
//   - worker_job_duration_seconds{job}
//   - worker_job_skipped_total{job}
//   - worker_job_last_success_timestamp{job}
//
// Metrics are registered through promauto, so NewWorkerMetrics must be called
// once per process.
type WorkerMetrics struct {
	*config.Metrics

	JobRunsTotal            *prometheus.CounterVec
	JobDurationSeconds      *prometheus.HistogramVec
	JobSkippedTotal         *prometheus.CounterVec
	JobLastSuccessTimestamp *prometheus.GaugeVec
}

// NewWorkerMetrics creates and registers the worker metrics.
func NewWorkerMetrics() *WorkerMetrics {
	return &WorkerMetrics{
		Metrics: config.NewMetrics("worker"),

		JobRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_job_runs_total",
			Help: "Total number of background job runs by job and status (success/failure)",
		}, []string{"job", "status"}),

		JobDurationSeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "worker_job_duration_seconds",
			Help:    "Duration of background job runs in seconds",
			Buckets: []float64{.01, .05, .1, .5, 1, 3, 5, 10, 30},
		}, []string{"job"}),

		JobSkippedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_job_skipped_total",
			Help: "Total number of job runs skipped because the previous run was still active",
		}, []string{"job"}),

		JobLastSuccessTimestamp: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "worker_job_last_success_timestamp",
			Help: "Unix timestamp of the last successful run per job",
		}, []string{"job"}),
	}
}

// RecordJobRun counts one run of job with status "success" or "failure".
func (m *WorkerMetrics) RecordJobRun(job, status string) {
	m.JobRunsTotal.WithLabelValues(job, status).Inc()
}

// RecordJobDuration observes a run duration in seconds.
func (m *WorkerMetrics) RecordJobDuration(job string, seconds float64) {
	m.JobDurationSeconds.WithLabelValues(job).Observe(seconds)
}

// RecordJobSkipped counts a run that was dropped by the overlap guard.
func (m *WorkerMetrics) RecordJobSkipped(job string) {
	m.JobSkippedTotal.WithLabelValues(job).Inc()
}

// RecordLastSuccess stamps the current time for job.
func (m *WorkerMetrics) RecordLastSuccess(job string) {
	m.JobLastSuccessTimestamp.WithLabelValues(job).SetToCurrentTime()
}
