// Command api serves the survey offer engine: aggregated and ranked offers
// from every provider, provider health, and the admin circuit controls.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"survey-offers/internal/config"
	"survey-offers/internal/handler/http/auth"
	"survey-offers/internal/infra/db"
	"survey-offers/internal/infra/worker"
	"survey-offers/internal/observability/logging"
	"survey-offers/internal/observability/tracing"
	"survey-offers/internal/resilience/circuitbreaker"
)

func main() {
	issueFor := flag.String("issue-token", "", "print an admin JWT for `subject` and exit")
	tokenTTL := flag.Duration("token-ttl", time.Hour, "lifetime of the token printed by -issue-token")
	flag.Parse()

	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	logger := logging.NewLogger()
	slog.SetDefault(logger)

	cfg, err := config.LoadServerConfig()
	if err != nil {
		logger.Error("failed to load server configuration", slog.Any("error", err))
		os.Exit(1)
	}

	if *issueFor != "" {
		token, err := auth.IssueToken([]byte(cfg.Admin.JWTSecret), *issueFor, cfg.Admin.Role, *tokenTTL)
		if err != nil {
			logger.Error("failed to issue token", slog.Any("error", err))
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	version := getVersion()

	if cfg.EnableTracing {
		shutdown, err := tracing.Setup(tracing.Config{ServiceName: "survey-offers", ServiceVersion: version})
		if err != nil {
			logger.Error("failed to set up tracing", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(ctx); err != nil {
				logger.Warn("tracer provider shutdown failed", slog.Any("error", err))
			}
		}()
		logger.Info("tracing enabled")
	}

	providersCfg, err := config.LoadProvidersConfig(cfg.ProvidersConfigPath)
	if err != nil {
		logger.Error("failed to load providers configuration",
			slog.String("path", cfg.ProvidersConfigPath),
			slog.Any("error", err))
		os.Exit(1)
	}

	alertsCfg, err := config.LoadAlertsConfig(logger)
	if err != nil {
		logger.Error("failed to load alert configuration", slog.Any("error", err))
		os.Exit(1)
	}

	workerMetrics := worker.NewWorkerMetrics()
	workerCfg, err := worker.LoadConfigFromEnv(logger, workerMetrics)
	if err != nil {
		logger.Error("failed to load worker configuration", slog.Any("error", err))
		os.Exit(1)
	}

	database, breaker := initDatabase(logger, cfg.DatabaseURL)
	if database != nil {
		defer func() {
			if err := database.Close(); err != nil {
				logger.Error("failed to close database", slog.Any("error", err))
			}
		}()
	}

	app, err := newApp(logger, appDeps{
		server:    cfg,
		providers: providersCfg,
		alerts:    alertsCfg,
		worker:    workerCfg,
		metrics:   workerMetrics,
		db:        database,
		dbBreaker: breaker,
		version:   version,
	})
	if err != nil {
		logger.Error("failed to assemble application", slog.Any("error", err))
		os.Exit(1)
	}

	runServer(logger, app, cfg)
}

// initDatabase opens the profile store when a DSN is configured. Without
// one the engine runs stateless and callers rely on inline profiles.
func initDatabase(logger *slog.Logger, dsn string) (*sql.DB, *circuitbreaker.DBCircuitBreaker) {
	if dsn == "" {
		logger.Warn("DATABASE_URL not set, profile store disabled")
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	database, err := db.Open(ctx, dsn)
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	if err := db.MigrateUp(database); err != nil {
		logger.Error("failed to migrate database", slog.Any("error", err))
		os.Exit(1)
	}
	return database, circuitbreaker.NewDBCircuitBreaker(database)
}

func getVersion() string {
	version := os.Getenv("VERSION")
	if version == "" {
		version = "dev"
	}
	return version
}

// runServer starts the background jobs and the HTTP server, then blocks
// until SIGINT or SIGTERM and shuts everything down in reverse order.
func runServer(logger *slog.Logger, app *App, cfg *config.ServerConfig) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := app.Start(ctx); err != nil {
		logger.Error("failed to start background jobs", slog.Any("error", err))
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			slog.String("addr", cfg.Addr),
			slog.String("version", app.Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("shutting down server", slog.String("signal", sig.String()))
	case err := <-serverErr:
		logger.Error("server failed", slog.Any("error", err))
	}

	app.health.SetReady(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", slog.Any("error", err))
	}

	cancel()
	app.Stop(shutdownCtx)
	logger.Info("server stopped")
}
