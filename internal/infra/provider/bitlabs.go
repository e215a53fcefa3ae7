package provider

import (
	"context"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"

	"survey-offers/internal/domain/entity"
)

// BitLabsClient talks to BitLabs.
type BitLabsClient struct {
	*baseClient
	now func() time.Time
}

// NewBitLabsClient creates a BitLabs client.
func NewBitLabsClient(cfg Config) (*BitLabsClient, error) {
	cfg.ID = entity.ProviderBitLabs
	b, err := newBaseClient(cfg)
	if err != nil {
		return nil, err
	}
	return &BitLabsClient{baseClient: b, now: time.Now}, nil
}

// Fetch returns the surveys BitLabs offers to userID.
func (c *BitLabsClient) Fetch(ctx context.Context, userID string, profile entity.DemographicProfile) ([]entity.RawOffer, error) {
	h := http.Header{}
	h.Set("X-Api-Token", c.cfg.APIKey)
	h.Set("X-User-Id", userID)
	q := url.Values{}
	profileQuery(q, profile, map[string]string{"country": "country", "gender": "gender", "age": "age"}, c.now())

	body, err := c.get(ctx, "/v2/client/surveys", q, h)
	if err != nil {
		return nil, err
	}
	return mapOffers(body, "data.surveys", entity.ProviderBitLabs, func(s gjson.Result) (entity.RawOffer, bool) {
		id := s.Get("id").String()
		if id == "" {
			return entity.RawOffer{}, false
		}
		return entity.RawOffer{
			ID:               id,
			RewardUnits:      int(math.Round(s.Get("value").Float())),
			EstimatedMinutes: int(math.Ceil(s.Get("loi").Float())),
			Category:         s.Get("category.name").String(),
			URL:              s.Get("click_url").String(),
		}, true
	})
}
