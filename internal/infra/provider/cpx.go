package provider

import (
	"context"
	"crypto/md5" // #nosec G501 -- CPX defines its secure hash as MD5.
	"encoding/hex"
	"math"
	"net/url"
	"time"

	"github.com/tidwall/gjson"

	"survey-offers/internal/domain/entity"
)

// CPXClient talks to CPX Research.
type CPXClient struct {
	*baseClient
	now func() time.Time
}

// NewCPXClient creates a CPX Research client.
func NewCPXClient(cfg Config) (*CPXClient, error) {
	cfg.ID = entity.ProviderCPX
	b, err := newBaseClient(cfg)
	if err != nil {
		return nil, err
	}
	return &CPXClient{baseClient: b, now: time.Now}, nil
}

// Fetch returns the surveys CPX offers to userID.
func (c *CPXClient) Fetch(ctx context.Context, userID string, profile entity.DemographicProfile) ([]entity.RawOffer, error) {
	q := url.Values{}
	q.Set("app_id", c.cfg.AppID)
	q.Set("ext_user_id", userID)
	q.Set("output_method", "api")
	q.Set("secure_hash", c.secureHash(userID))
	profileQuery(q, profile, map[string]string{
		"age": "main_info_age", "gender": "main_info_gender", "country": "main_info_country", "zip": "main_info_zip",
	}, c.now())

	body, err := c.get(ctx, "/api/get-surveys.php", q, nil)
	if err != nil {
		return nil, err
	}
	return mapOffers(body, "surveys", entity.ProviderCPX, func(s gjson.Result) (entity.RawOffer, bool) {
		id := s.Get("id").String()
		if id == "" {
			return entity.RawOffer{}, false
		}
		return entity.RawOffer{
			ID:               id,
			RewardUnits:      int(math.Round(s.Get("payout").Float())),
			EstimatedMinutes: int(s.Get("loi").Int()),
			Category:         s.Get("type").String(),
			URL:              s.Get("href").String(),
		}, true
	})
}

func (c *CPXClient) secureHash(userID string) string {
	sum := md5.Sum([]byte(userID + "-" + c.cfg.SecureHash)) // #nosec G401
	return hex.EncodeToString(sum[:])
}
