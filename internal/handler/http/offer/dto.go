package offer

import (
	"survey-offers/internal/domain/entity"
	offerUC "survey-offers/internal/usecase/offer"
)

// OffersResponse is the body of GET /offers and GET /offers/category/{category}.
type OffersResponse struct {
	UserID   string                 `json:"user_id"`
	Category string                 `json:"category,omitempty"`
	Count    int                    `json:"count"`
	Offers   []entity.RawOffer      `json:"offers"`
	Sources  []offerUC.SourceStatus `json:"sources,omitempty"`
	Cached   bool                   `json:"cached"`
}

// MatchesResponse is the body of GET /offers/matches and POST /matches.
type MatchesResponse struct {
	UserID  string               `json:"user_id,omitempty"`
	Count   int                  `json:"count"`
	Matches []entity.MatchResult `json:"matches"`
}

// MatchRequest is the body of POST /matches. A missing limit means the
// configured default; zero or less ranks every offer.
type MatchRequest struct {
	Profile entity.DemographicProfile `json:"profile"`
	Offers  []entity.RawOffer         `json:"offers"`
	Limit   *int                      `json:"limit,omitempty"`
}
