package provider

import (
	"context"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"survey-offers/internal/domain/entity"
)

// PollfishClient talks to Pollfish.
type PollfishClient struct {
	*baseClient
	now func() time.Time
}

// NewPollfishClient creates a Pollfish client.
func NewPollfishClient(cfg Config) (*PollfishClient, error) {
	cfg.ID = entity.ProviderPollfish
	b, err := newBaseClient(cfg)
	if err != nil {
		return nil, err
	}
	return &PollfishClient{baseClient: b, now: time.Now}, nil
}

// Fetch returns the surveys Pollfish offers to userID. Pollfish reports
// reward in cents and classifies surveys by survey_class.
func (c *PollfishClient) Fetch(ctx context.Context, userID string, profile entity.DemographicProfile) ([]entity.RawOffer, error) {
	q := url.Values{}
	q.Set("api_key", c.cfg.APIKey)
	q.Set("request_uuid", uuid.NewString())
	q.Set("device_id", userID)
	profileQuery(q, profile, map[string]string{"age": "year_of_birth_age", "gender": "gender", "country": "country"}, c.now())

	body, err := c.get(ctx, "/v2/surveys", q, nil)
	if err != nil {
		return nil, err
	}
	return mapOffers(body, "surveys", entity.ProviderPollfish, func(s gjson.Result) (entity.RawOffer, bool) {
		id := s.Get("survey_id").String()
		if id == "" {
			return entity.RawOffer{}, false
		}
		return entity.RawOffer{
			ID:               id,
			RewardUnits:      int(s.Get("survey_cpa").Int()),
			EstimatedMinutes: int(s.Get("survey_loi").Int()),
			Category:         s.Get("survey_class").String(),
			URL:              s.Get("link").String(),
		}, true
	})
}
