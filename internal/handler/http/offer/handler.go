// Package offer serves the offer and matching routes.
package offer

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"survey-offers/internal/domain/entity"
	"survey-offers/internal/handler/http/respond"
	"survey-offers/internal/observability/logging"
	offerUC "survey-offers/internal/usecase/offer"
)

// Aggregator is the offer aggregation surface the handlers need.
type Aggregator interface {
	Fetch(ctx context.Context, userID string, profile entity.DemographicProfile) (offerUC.Aggregate, error)
	FetchByCategory(ctx context.Context, category, userID string, profile entity.DemographicProfile) ([]entity.RawOffer, error)
}

// Ranker scores and orders offers for a profile.
type Ranker interface {
	Rank(profile entity.DemographicProfile, offers []entity.RawOffer, limit int) []entity.MatchResult
}

// ProfileSource loads stored profiles. Get returns nil for unknown users.
type ProfileSource interface {
	Get(ctx context.Context, userID string) (*entity.DemographicProfile, error)
}

// Limits bounds the ranking limit accepted from callers.
type Limits struct {
	Default int
	Max     int
}

// Handlers groups the dependencies shared by every offer route.
type Handlers struct {
	Offers   Aggregator
	Ranker   Ranker
	Profiles ProfileSource
	Limits   Limits
}

// profileFor loads the stored profile of userID. A missing profile, an
// absent store or a failing store all yield a profile carrying only the
// user id, so offers are still served unpersonalised.
func (h *Handlers) profileFor(ctx context.Context, userID string) entity.DemographicProfile {
	bare := entity.DemographicProfile{UserID: userID}
	if h.Profiles == nil {
		return bare
	}
	p, err := h.Profiles.Get(ctx, userID)
	if err != nil {
		logging.FromContext(ctx).Warn("profile lookup failed, serving unpersonalised offers",
			slog.String("user_id", userID),
			slog.Any("error", respond.SanitizeError(err)))
		return bare
	}
	if p == nil {
		return bare
	}
	return *p
}

func userIDParam(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if id == "" {
		return "", &entity.ValidationError{Field: "user_id", Message: "user_id is required"}
	}
	if len(id) > 128 {
		return "", &entity.ValidationError{Field: "user_id", Message: "user_id must be at most 128 characters"}
	}
	return id, nil
}

// limitParam parses ?limit=. Absent means the default.
func (h *Handlers) limitParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return h.Limits.Default, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &entity.ValidationError{Field: "limit", Message: "limit must be an integer"}
	}
	return h.checkLimit(n)
}

func (h *Handlers) checkLimit(n int) (int, error) {
	if n < 1 || n > h.Limits.Max {
		return 0, &entity.ValidationError{
			Field:   "limit",
			Message: "limit must be between 1 and " + strconv.Itoa(h.Limits.Max),
		}
	}
	return n, nil
}
