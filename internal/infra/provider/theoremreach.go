package provider

import (
	"context"
	"math"
	"net/url"
	"time"

	"github.com/tidwall/gjson"

	"survey-offers/internal/domain/entity"
)

// TheoremReachClient talks to TheoremReach.
type TheoremReachClient struct {
	*baseClient
	now func() time.Time
}

// NewTheoremReachClient creates a TheoremReach client.
func NewTheoremReachClient(cfg Config) (*TheoremReachClient, error) {
	cfg.ID = entity.ProviderTheoremReach
	b, err := newBaseClient(cfg)
	if err != nil {
		return nil, err
	}
	return &TheoremReachClient{baseClient: b, now: time.Now}, nil
}

// Fetch returns the surveys TheoremReach offers to userID.
func (c *TheoremReachClient) Fetch(ctx context.Context, userID string, profile entity.DemographicProfile) ([]entity.RawOffer, error) {
	q := url.Values{}
	q.Set("api_key", c.cfg.APIKey)
	q.Set("user_id", userID)
	profileQuery(q, profile, map[string]string{
		"age": "age", "gender": "gender", "country": "country_code", "zip": "zip_code",
	}, c.now())

	body, err := c.get(ctx, "/api/external/v1/surveys", q, nil)
	if err != nil {
		return nil, err
	}
	return mapOffers(body, "surveys", entity.ProviderTheoremReach, func(s gjson.Result) (entity.RawOffer, bool) {
		id := s.Get("id").String()
		if id == "" {
			return entity.RawOffer{}, false
		}
		return entity.RawOffer{
			ID:               id,
			RewardUnits:      int(math.Round(s.Get("reward_amount").Float())),
			EstimatedMinutes: int(s.Get("length_of_interview").Int()),
			Category:         s.Get("category").String(),
			URL:              s.Get("entry_link").String(),
		}, true
	})
}
