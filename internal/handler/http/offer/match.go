package offer

import (
	"encoding/json"
	"errors"
	"net/http"

	"survey-offers/internal/domain/entity"
	"survey-offers/internal/handler/http/respond"
)

// MatchesHandler serves GET /offers/matches?user_id=&limit=: it aggregates
// the user's offers and ranks them against the stored profile.
type MatchesHandler struct{ *Handlers }

func (h MatchesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		respond.FromError(w, err)
		return
	}
	limit, err := h.limitParam(r)
	if err != nil {
		respond.FromError(w, err)
		return
	}

	profile := h.profileFor(r.Context(), userID)
	agg, err := h.Offers.Fetch(r.Context(), userID, profile)
	if err != nil {
		respond.FromError(w, err)
		return
	}

	matches := h.Ranker.Rank(profile, agg.Offers, limit)
	respond.JSON(w, http.StatusOK, MatchesResponse{UserID: userID, Count: len(matches), Matches: matches})
}

// BestMatchesHandler serves POST /matches: it ranks caller supplied offers
// against a caller supplied profile without touching any provider.
type BestMatchesHandler struct{ *Handlers }

func (h BestMatchesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req MatchRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respond.FromError(w, err)
			return
		}
		respond.FromError(w, &entity.ValidationError{Field: "body", Message: "invalid JSON body"})
		return
	}
	if err := req.Profile.Validate(); err != nil {
		respond.FromError(w, err)
		return
	}

	limit := h.Limits.Default
	if req.Limit != nil {
		if *req.Limit <= 0 {
			limit = 0
		} else {
			l, err := h.checkLimit(*req.Limit)
			if err != nil {
				respond.FromError(w, err)
				return
			}
			limit = l
		}
	}

	matches := h.Ranker.Rank(req.Profile, req.Offers, limit)
	respond.JSON(w, http.StatusOK, MatchesResponse{
		UserID:  req.Profile.UserID,
		Count:   len(matches),
		Matches: matches,
	})
}
