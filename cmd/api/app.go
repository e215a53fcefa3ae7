package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"survey-offers/internal/config"
	"survey-offers/internal/domain/entity"
	hhttp "survey-offers/internal/handler/http"
	"survey-offers/internal/handler/http/auth"
	hoffer "survey-offers/internal/handler/http/offer"
	hprovider "survey-offers/internal/handler/http/provider"
	"survey-offers/internal/handler/http/requestid"
	pgRepo "survey-offers/internal/infra/adapter/persistence/postgres"
	"survey-offers/internal/infra/cache"
	"survey-offers/internal/infra/db"
	"survey-offers/internal/infra/provider"
	"survey-offers/internal/infra/worker"
	"survey-offers/internal/observability/slo"
	"survey-offers/internal/observability/tracing"
	"survey-offers/internal/resilience/circuitbreaker"
	"survey-offers/internal/resilience/fallback"
	"survey-offers/internal/resilience/retry"
	"survey-offers/internal/usecase/healthcheck"
	"survey-offers/internal/usecase/match"
	"survey-offers/internal/usecase/notify"
	offerUC "survey-offers/internal/usecase/offer"
	providerUC "survey-offers/internal/usecase/provider"
)

const (
	jobDBStats         = "db_stats"
	dbStatsSchedule    = "@every 15s"
	jobSLOReport       = "slo_report"
	sloReportSchedule  = "@every 1m"
	rateLimiterIdle    = 10 * time.Minute
	rateLimiterCleanup = time.Minute
)

type appDeps struct {
	server    *config.ServerConfig
	providers *config.ProvidersConfig
	alerts    *config.AlertsConfig
	worker    *worker.WorkerConfig
	metrics   *worker.WorkerMetrics
	db        *sql.DB
	dbBreaker *circuitbreaker.DBCircuitBreaker
	version   string
}

// App holds the assembled engine and everything that must be started or
// stopped with the process.
type App struct {
	Handler http.Handler
	Version string

	logger    *slog.Logger
	registry  *circuitbreaker.Registry
	cache     *cache.Cache
	scheduler *healthcheck.Scheduler
	jobs      *worker.Jobs
	health    *worker.HealthServer
	limiter   *hhttp.IPRateLimiter
	alerts    notify.Service
	db        *sql.DB
	sweepSpec string
}

func newApp(logger *slog.Logger, d appDeps) (*App, error) {
	registry, err := circuitbreaker.NewRegistry(d.providers.BreakerConfigs(), nil)
	if err != nil {
		return nil, fmt.Errorf("circuit registry: %w", err)
	}

	clients, err := provider.NewClients(d.providers.ClientConfigs())
	if err != nil {
		return nil, fmt.Errorf("provider clients: %w", err)
	}
	ids := make([]entity.ProviderID, 0, len(clients))
	for id := range clients {
		ids = append(ids, id)
	}
	entity.SortProviders(ids)

	offerClients := make(map[entity.ProviderID]offerUC.Client, len(clients))
	probers := make([]healthcheck.Prober, 0, len(clients))
	for _, id := range ids {
		offerClients[id] = clients[id]
		probers = append(probers, clients[id])
	}

	offerCache := cache.New(cache.SystemClock{})
	coordinator := fallback.New(registry, offerCache, retry.NewExecutor(), d.providers.FallbackConfig())
	offers := offerUC.NewService(offerClients, coordinator, offerCache, d.providers.Cache.AggregateTTL,
		offerUC.WithBurstWindow(d.providers.Cache.BurstWindow))
	admin := providerUC.NewService(registry)

	alertCfg := d.alerts.Dispatch
	alertCfg.MaxConcurrent = d.worker.AlertMaxConcurrent
	alerts := notify.NewService([]notify.Channel{
		notify.NewSlackChannel(d.alerts.Slack),
		notify.NewDiscordChannel(d.alerts.Discord),
	}, alertCfg)
	registry.OnStateChange(alerts.NotifyTransition)
	registry.OnStateChange(func(tr circuitbreaker.Transition) {
		logger.Warn("provider circuit transition",
			slog.String("provider", string(tr.Provider)),
			slog.String("from", tr.From.String()),
			slog.String("to", tr.To.String()))
	})

	scheduler := healthcheck.New(probers, registry, healthcheck.Config{
		Interval:     d.worker.HealthCheckInterval,
		ProbeTimeout: d.worker.ProbeTimeout,
	}, logger, d.metrics)

	var profiles hoffer.ProfileSource
	var pinger hhttp.Pinger
	var dbStats func() sql.DBStats
	if d.dbBreaker != nil {
		profiles = pgRepo.NewProfileRepoWithBreaker(d.dbBreaker)
		pinger = d.dbBreaker
		dbStats = d.db.Stats
	}

	mux := http.NewServeMux()
	hoffer.Register(mux, &hoffer.Handlers{
		Offers:   offers,
		Ranker:   match.NewEngine(),
		Profiles: profiles,
		Limits:   hoffer.Limits{Default: d.server.Match.DefaultLimit, Max: d.server.Match.MaxLimit},
	})
	hprovider.Register(mux, admin, auth.RequireRole([]byte(d.server.Admin.JWTSecret), d.server.Admin.Role))
	mux.Handle("GET /health", &hhttp.HealthHandler{
		DB:        pinger,
		DBStats:   dbStats,
		Providers: admin,
		Alerts:    alerts,
		Version:   d.version,
	})
	mux.Handle("GET /ready", &hhttp.ReadyHandler{DB: pinger})
	mux.Handle("GET /live", hhttp.LiveHandler{})
	mux.Handle("GET /metrics", hhttp.MetricsHandler())

	limiter := hhttp.NewIPRateLimiter(d.server.HTTP.RateLimitRPS, d.server.HTTP.RateLimitBurst)

	health := worker.NewHealthServer(":"+strconv.Itoa(d.worker.HealthPort), logger)
	if pinger != nil {
		health.AddCheck("database", pinger.PingContext)
	}

	logger.Info("application assembled",
		slog.Int("providers", len(ids)),
		slog.Bool("profile_store", profiles != nil),
		slog.Bool("slack_alerts", d.alerts.Slack.Enabled),
		slog.Bool("discord_alerts", d.alerts.Discord.Enabled))

	return &App{
		Handler:   applyMiddleware(logger, mux, limiter, d.server.HTTP),
		Version:   d.version,
		logger:    logger,
		registry:  registry,
		cache:     offerCache,
		scheduler: scheduler,
		jobs:      worker.NewJobs(logger, d.metrics, d.worker.Location()),
		health:    health,
		limiter:   limiter,
		alerts:    alerts,
		db:        d.db,
		sweepSpec: d.worker.CacheSweepSchedule,
	}, nil
}

// applyMiddleware wraps the router. Outermost first: request id, tracing,
// per-IP rate limit, panic recovery, access log, body limits, request
// timeout, HTTP metrics.
func applyMiddleware(logger *slog.Logger, handler http.Handler, limiter *hhttp.IPRateLimiter, cfg config.HTTPConfig) http.Handler {
	h := hhttp.MetricsMiddleware(handler)
	h = hhttp.Timeout(cfg.RequestTimeout)(h)
	h = hhttp.LimitRequestBody(cfg.MaxBodyBytes)(h)
	h = hhttp.Logging(logger)(h)
	h = hhttp.Recover(logger)(h)
	h = limiter.Limit(h)
	h = tracing.Middleware(h)
	return requestid.Middleware(h)
}

// Start launches probing, scheduled jobs and the ops server.
func (a *App) Start(ctx context.Context) error {
	if err := a.jobs.Add(worker.JobCacheSweep, a.sweepSpec, func(context.Context) error {
		removed := a.cache.Sweep()
		a.logger.Debug("cache sweep completed", slog.Int("removed", removed))
		return nil
	}); err != nil {
		return fmt.Errorf("schedule cache sweep: %w", err)
	}
	if err := a.jobs.Add(jobSLOReport, sloReportSchedule, func(context.Context) error {
		for _, st := range slo.Publish(a.registry.Snapshot()) {
			if st.Breached(slo.ProviderAvailabilityTarget) {
				a.logger.Warn("provider below availability objective",
					slog.String("provider", string(st.Provider)),
					slog.Float64("availability", st.Availability),
					slog.Float64("error_budget_remaining", st.BudgetRemaining))
			}
		}
		return nil
	}); err != nil {
		return fmt.Errorf("schedule slo report: %w", err)
	}
	if a.db != nil {
		if err := a.jobs.Add(jobDBStats, dbStatsSchedule, func(context.Context) error {
			db.ReportPoolStats(a.db)
			return nil
		}); err != nil {
			return fmt.Errorf("schedule db stats: %w", err)
		}
	}
	if err := a.jobs.Start(ctx); err != nil {
		return err
	}

	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start health checks: %w", err)
	}

	go a.limiter.StartCleanup(ctx, rateLimiterCleanup, rateLimiterIdle)

	go func() {
		if err := a.health.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("ops server stopped", slog.Any("error", err))
		}
	}()
	a.health.SetReady(true)
	return nil
}

// Stop waits for in-flight jobs and alert deliveries until ctx is done.
func (a *App) Stop(ctx context.Context) {
	for name, done := range map[string]context.Context{
		"health checks": a.scheduler.Stop(),
		"jobs":          a.jobs.Stop(),
	} {
		select {
		case <-done.Done():
		case <-ctx.Done():
			a.logger.Warn("timed out waiting for background work", slog.String("component", name))
		}
	}
	if err := a.alerts.Shutdown(ctx); err != nil {
		a.logger.Warn("alert dispatcher did not drain", slog.Any("error", err))
	}
}
