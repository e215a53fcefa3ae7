package provider

import "net/http"

// Register mounts the provider routes on mux. Admin routes are wrapped in
// requireAdmin.
func Register(mux *http.ServeMux, svc Admin, requireAdmin func(http.Handler) http.Handler) {
	mux.Handle("GET /providers/health", HealthHandler{svc})
	mux.Handle("GET /providers/metrics", MetricsHandler{svc})

	mux.Handle("GET /admin/providers", requireAdmin(StatusHandler{svc}))
	mux.Handle("POST /admin/providers/{id}/reset", requireAdmin(ResetHandler{svc}))
	mux.Handle("PATCH /admin/providers/{id}/circuit", requireAdmin(ConfigureHandler{svc}))
}
