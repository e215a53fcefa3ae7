// Package provider serves provider health, breaker metrics and the admin
// circuit overrides.
package provider

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"survey-offers/internal/domain/entity"
	"survey-offers/internal/handler/http/auth"
	"survey-offers/internal/handler/http/pathutil"
	"survey-offers/internal/handler/http/respond"
	"survey-offers/internal/observability/logging"
	"survey-offers/internal/resilience/circuitbreaker"
	providerUC "survey-offers/internal/usecase/provider"
)

// Admin is the provider admin surface the handlers need.
type Admin interface {
	Health() map[entity.ProviderID]providerUC.HealthStatus
	Metrics() map[entity.ProviderID]circuitbreaker.Metrics
	Statuses() []providerUC.Status
	ResetCircuit(id entity.ProviderID) error
	ConfigureCircuit(id entity.ProviderID, p circuitbreaker.PartialConfig) (circuitbreaker.ProviderConfig, error)
}

// HealthHandler serves GET /providers/health. It always answers 200.
type HealthHandler struct{ Svc Admin }

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, h.Svc.Health())
}

// MetricsHandler serves GET /providers/metrics. It always answers 200.
type MetricsHandler struct{ Svc Admin }

func (h MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	snap := h.Svc.Metrics()
	out := make(map[entity.ProviderID]MetricsDTO, len(snap))
	for id, m := range snap {
		out[id] = metricsDTO(m)
	}
	respond.JSON(w, http.StatusOK, out)
}

// StatusHandler serves GET /admin/providers.
type StatusHandler struct{ Svc Admin }

func (h StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	statuses := h.Svc.Statuses()
	out := make([]StatusDTO, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, StatusDTO{
			Provider: s.Provider,
			Health:   string(s.Health),
			Metrics:  metricsDTO(s.Metrics),
			Config:   configDTO(s.Config),
		})
	}
	respond.JSON(w, http.StatusOK, out)
}

// ResetHandler serves POST /admin/providers/{id}/reset.
type ResetHandler struct{ Svc Admin }

func (h ResetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, err := providerParam(r)
	if err != nil {
		respond.FromError(w, err)
		return
	}
	if err := h.Svc.ResetCircuit(id); err != nil {
		respond.FromError(w, err)
		return
	}
	audit(r, "circuit reset", id)
	w.WriteHeader(http.StatusNoContent)
}

// ConfigureHandler serves PATCH /admin/providers/{id}/circuit and returns
// the resulting configuration.
type ConfigureHandler struct{ Svc Admin }

func (h ConfigureHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, err := providerParam(r)
	if err != nil {
		respond.FromError(w, err)
		return
	}

	var patch CircuitPatch
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&patch); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respond.FromError(w, err)
			return
		}
		respond.FromError(w, &entity.ValidationError{Field: "body", Message: "invalid JSON body"})
		return
	}
	partial, err := patch.toPartial()
	if err != nil {
		respond.FromError(w, err)
		return
	}

	cfg, err := h.Svc.ConfigureCircuit(id, partial)
	if err != nil {
		respond.FromError(w, err)
		return
	}
	audit(r, "circuit reconfigured", id)
	respond.JSON(w, http.StatusOK, configDTO(cfg))
}

func providerParam(r *http.Request) (entity.ProviderID, error) {
	id, err := pathutil.Param(r, "id")
	if err != nil {
		return "", &entity.ValidationError{Field: "id", Message: "invalid provider id"}
	}
	return entity.ProviderID(id), nil
}

func audit(r *http.Request, msg string, id entity.ProviderID) {
	logging.FromContext(r.Context()).Info(msg,
		slog.String("provider", string(id)),
		slog.String("admin", auth.SubjectFromContext(r.Context())))
}
