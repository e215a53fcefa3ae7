package offer

import (
	"net/http"

	"survey-offers/internal/handler/http/respond"
)

// ListHandler serves GET /offers?user_id=.
type ListHandler struct{ *Handlers }

// ServeHTTP returns every offer available to the user.
// Failing providers degrade the list; they never fail the request.
//
// @Summary      List offers
// @Tags         offers
// @Produce      json
// @Param        user_id query string true "user id"
// @Success      200 {object} OffersResponse
// @Failure      400 {string} string "user_id is required"
// @Router       /offers [get]
func (h ListHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
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

	respond.JSON(w, http.StatusOK, OffersResponse{
		UserID:  userID,
		Count:   len(agg.Offers),
		Offers:  agg.Offers,
		Sources: agg.Sources,
		Cached:  agg.Cached,
	})
}

// CategoryHandler serves GET /offers/category/{category}?user_id=.
type CategoryHandler struct{ *Handlers }

func (h CategoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDParam(r)
	if err != nil {
		respond.FromError(w, err)
		return
	}
	category := r.PathValue("category")

	profile := h.profileFor(r.Context(), userID)
	offers, err := h.Offers.FetchByCategory(r.Context(), category, userID, profile)
	if err != nil {
		respond.FromError(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, OffersResponse{
		UserID:   userID,
		Category: category,
		Count:    len(offers),
		Offers:   offers,
	})
}
