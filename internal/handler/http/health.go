// Package http holds the inbound HTTP surface of the offer engine: health
// endpoints and the middleware chain. Route handlers live in the offer and
// provider subpackages.
package http

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"survey-offers/internal/domain/entity"
	"survey-offers/internal/handler/http/respond"
	"survey-offers/internal/usecase/notify"
	providerUC "survey-offers/internal/usecase/provider"
)

const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Checks    map[string]CheckStatus `json:"checks"`
	Version   string                 `json:"version"`
}

// CheckStatus is the result of one health check.
type CheckStatus struct {
	Status  string         `json:"status"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// Pinger is satisfied by *sql.DB and the profile store's DB breaker.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// ProviderHealth reports breaker health per provider.
type ProviderHealth interface {
	Health() map[entity.ProviderID]providerUC.HealthStatus
}

// AlertHealth reports whether alert channels are muted.
type AlertHealth interface {
	ChannelHealth() []notify.ChannelHealthStatus
}

// HealthHandler serves GET /health. Only a failing profile store makes the
// process unhealthy: failing providers are absorbed by the fallback chain
// and muted alert channels only degrade the report.
type HealthHandler struct {
	DB        Pinger
	DBStats   func() sql.DBStats
	Providers ProviderHealth
	Alerts    AlertHealth
	Version   string
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]CheckStatus)
	status := statusHealthy

	if h.DB != nil {
		c := h.checkDatabase(ctx)
		checks["database"] = c
		status = worst(status, c.Status)
	} else {
		checks["database"] = CheckStatus{Status: statusHealthy, Message: "not configured"}
	}

	if h.Providers != nil {
		c := h.checkProviders()
		checks["providers"] = c
		if c.Status != statusHealthy {
			status = worst(status, statusDegraded)
		}
	}

	if h.Alerts != nil {
		c := h.checkAlerts()
		checks["alerts"] = c
		if c.Status != statusHealthy {
			status = worst(status, statusDegraded)
		}
	}

	code := http.StatusOK
	if status == statusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	respond.JSON(w, code, HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
		Version:   h.Version,
	})
}

func (h *HealthHandler) checkDatabase(ctx context.Context) CheckStatus {
	if err := h.DB.PingContext(ctx); err != nil {
		slog.Warn("health: database ping failed", slog.Any("error", respond.SanitizeError(err)))
		return CheckStatus{Status: statusUnhealthy, Message: "database unreachable"}
	}
	if h.DBStats == nil {
		return CheckStatus{Status: statusHealthy}
	}

	stats := h.DBStats()
	details := map[string]any{
		"max_open_connections": stats.MaxOpenConnections,
		"open_connections":     stats.OpenConnections,
		"in_use":               stats.InUse,
		"idle":                 stats.Idle,
		"wait_count":           stats.WaitCount,
		"wait_duration_ms":     stats.WaitDuration.Milliseconds(),
	}
	if stats.MaxOpenConnections > 0 {
		utilization := float64(stats.InUse) / float64(stats.MaxOpenConnections) * 100
		details["utilization_percent"] = utilization
		if utilization >= 80 {
			return CheckStatus{Status: statusDegraded, Message: "connection pool utilization above 80%", Details: details}
		}
	}
	return CheckStatus{Status: statusHealthy, Details: details}
}

func (h *HealthHandler) checkProviders() CheckStatus {
	health := h.Providers.Health()
	details := make(map[string]any, len(health))
	var failing []string
	for id, s := range health {
		details[string(id)] = s
		if s != providerUC.Healthy {
			failing = append(failing, string(id))
		}
	}
	if len(failing) == 0 {
		return CheckStatus{Status: statusHealthy, Details: details}
	}
	sort.Strings(failing)
	details["failing"] = failing
	return CheckStatus{Status: statusDegraded, Message: "some providers are not healthy", Details: details}
}

func (h *HealthHandler) checkAlerts() CheckStatus {
	channels := h.Alerts.ChannelHealth()
	details := make(map[string]any, len(channels))
	muted := false
	for _, ch := range channels {
		details[ch.Name] = ch
		if ch.Enabled && ch.Muted {
			muted = true
		}
	}
	if muted {
		return CheckStatus{Status: statusDegraded, Message: "alert channel muted", Details: details}
	}
	return CheckStatus{Status: statusHealthy, Details: details}
}

func worst(a, b string) string {
	rank := map[string]int{statusHealthy: 0, statusDegraded: 1, statusUnhealthy: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// ReadyHandler answers 200 once the profile store is reachable.
type ReadyHandler struct {
	DB Pinger
}

func (h *ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.DB != nil {
		if err := h.DB.PingContext(ctx); err != nil {
			http.Error(w, "database not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("ready"))
}

// LiveHandler always answers 200 while the process serves requests.
type LiveHandler struct{}

func (LiveHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("alive"))
}
