// Package healthcheck probes every provider on a fixed interval, detached from
// user requests, and feeds the outcome into the circuit breaker registry.
// A failed probe counts as a failure. A successful probe forgets one earlier
// failure without changing breaker state.
package healthcheck

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"survey-offers/internal/domain/entity"
	"survey-offers/internal/infra/worker"
	"survey-offers/internal/observability/metrics"
)

// Prober is the lightweight liveness call of one provider.
type Prober interface {
	ID() entity.ProviderID
	Ping(ctx context.Context) error
}

// Recorder receives probe outcomes.
type Recorder interface {
	RecordFailure(id entity.ProviderID) error
	RecordProbeSuccess(id entity.ProviderID) error
}

// Config tunes the scheduler.
type Config struct {
	Interval     time.Duration
	ProbeTimeout time.Duration
}

// DefaultConfig probes every 30s with a 3s timeout.
func DefaultConfig() Config {
	return Config{Interval: 30 * time.Second, ProbeTimeout: 3 * time.Second}
}

// Result is the outcome of one probe.
type Result struct {
	Provider entity.ProviderID
	Healthy  bool
	Latency  time.Duration
	Err      error
}

// Scheduler runs probe rounds.
type Scheduler struct {
	probers  []Prober
	recorder Recorder
	cfg      Config
	jobs     *worker.Jobs
	logger   *slog.Logger
}

// New creates a Scheduler. jobMetrics may be nil.
func New(probers []Prober, recorder Recorder, cfg Config, logger *slog.Logger, jobMetrics *worker.WorkerMetrics) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = def.ProbeTimeout
	}
	return &Scheduler{
		probers:  probers,
		recorder: recorder,
		cfg:      cfg,
		jobs:     worker.NewJobs(logger, jobMetrics, time.UTC),
		logger:   logger,
	}
}

// Start schedules a probe round every Interval. Rounds run with a context
// derived from ctx; overlapping rounds are skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	spec := fmt.Sprintf("@every %s", s.cfg.Interval)
	if err := s.jobs.Add(worker.JobHealthCheck, spec, s.round); err != nil {
		return err
	}
	if err := s.jobs.Start(ctx); err != nil {
		return err
	}
	s.logger.Info("health check scheduler started",
		slog.Duration("interval", s.cfg.Interval),
		slog.Duration("probe_timeout", s.cfg.ProbeTimeout),
		slog.Int("providers", len(s.probers)))
	return nil
}

// Stop halts the schedule. The returned context is done once an in-flight
// round has returned.
func (s *Scheduler) Stop() context.Context {
	return s.jobs.Stop()
}

func (s *Scheduler) round(ctx context.Context) error {
	results := s.RunOnce(ctx)
	unhealthy := 0
	for _, r := range results {
		if !r.Healthy {
			unhealthy++
		}
	}
	s.logger.Debug("health check round completed",
		slog.Int("probed", len(results)),
		slog.Int("unhealthy", unhealthy))
	return nil
}

// RunOnce probes every provider concurrently, records the outcomes and
// returns them in prober order. It never fails.
func (s *Scheduler) RunOnce(ctx context.Context) []Result {
	results := make([]Result, len(s.probers))
	var g errgroup.Group
	for i, p := range s.probers {
		g.Go(func() error {
			results[i] = s.probe(ctx, p)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (s *Scheduler) probe(ctx context.Context, p Prober) (res Result) {
	id := p.ID()
	res.Provider = id

	probeCtx, cancel := context.WithTimeout(ctx, s.cfg.ProbeTimeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("probe panicked: %v", r)
			res.Healthy = false
			s.logger.Error("health probe panicked", slog.String("provider", string(id)), slog.Any("panic", r))
		}
		res.Latency = time.Since(start)
		s.record(res)
	}()

	if err := p.Ping(probeCtx); err != nil {
		res.Err = err
		return res
	}
	res.Healthy = true
	return res
}

func (s *Scheduler) record(res Result) {
	id := string(res.Provider)
	if res.Err != nil && errors.Is(res.Err, context.Canceled) {
		// interrupted by shutdown
		return
	}
	if res.Healthy {
		metrics.RecordHealthProbe(id, true)
		if err := s.recorder.RecordProbeSuccess(res.Provider); err != nil {
			s.logger.Warn("failed to record probe success", slog.String("provider", id), slog.Any("error", err))
		}
		return
	}
	metrics.RecordHealthProbe(id, false)
	s.logger.Warn("health probe failed",
		slog.String("provider", id),
		slog.Duration("latency", res.Latency),
		slog.Any("error", res.Err))
	if err := s.recorder.RecordFailure(res.Provider); err != nil {
		s.logger.Warn("failed to record probe failure", slog.String("provider", id), slog.Any("error", err))
	}
}
