package offer_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"survey-offers/internal/domain/entity"
	"survey-offers/internal/handler/http/offer"
	"survey-offers/internal/usecase/match"
	offerUC "survey-offers/internal/usecase/offer"
)

type fakeAggregator struct {
	agg         offerUC.Aggregate
	err         error
	gotUserID   string
	gotProfile  entity.DemographicProfile
	gotCategory string
}

func (f *fakeAggregator) Fetch(_ context.Context, userID string, p entity.DemographicProfile) (offerUC.Aggregate, error) {
	f.gotUserID, f.gotProfile = userID, p
	return f.agg, f.err
}

func (f *fakeAggregator) FetchByCategory(_ context.Context, category, userID string, p entity.DemographicProfile) ([]entity.RawOffer, error) {
	f.gotCategory, f.gotUserID, f.gotProfile = category, userID, p
	if f.err != nil {
		return nil, f.err
	}
	return entity.FilterByCategory(f.agg.Offers, category), nil
}

type fakeProfiles struct {
	profile *entity.DemographicProfile
	err     error
}

func (f fakeProfiles) Get(context.Context, string) (*entity.DemographicProfile, error) {
	return f.profile, f.err
}

var sampleOffers = []entity.RawOffer{
	{ID: "c1", Provider: entity.ProviderCPX, RewardUnits: 120, EstimatedMinutes: 8, Category: "Gaming"},
	{ID: "b1", Provider: entity.ProviderBitLabs, RewardUnits: 300, EstimatedMinutes: 25, Category: "finance"},
	{ID: "t1", Provider: entity.ProviderTheoremReach, RewardUnits: 90, EstimatedMinutes: 12, Category: "gaming"},
}

func newServer(agg *fakeAggregator, profiles offer.ProfileSource) *http.ServeMux {
	mux := http.NewServeMux()
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	offer.Register(mux, &offer.Handlers{
		Offers:   agg,
		Ranker:   match.NewEngine(match.WithClock(func() time.Time { return now })),
		Profiles: profiles,
		Limits:   offer.Limits{Default: 2, Max: 50},
	})
	return mux
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestListHandler(t *testing.T) {
	age := 30
	stored := &entity.DemographicProfile{UserID: "u-1", Age: &age, CountryCode: "US"}
	agg := &fakeAggregator{agg: offerUC.Aggregate{
		Offers: sampleOffers,
		Sources: []offerUC.SourceStatus{
			{Provider: entity.ProviderCPX, Offers: 1},
			{Provider: entity.ProviderPollfish, Degraded: true},
		},
	}}

	rec := do(t, newServer(agg, fakeProfiles{profile: stored}), http.MethodGet, "/offers?user_id=u-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got offer.OffersResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "u-1", got.UserID)
	assert.Equal(t, 3, got.Count)
	if diff := cmp.Diff(sampleOffers, got.Offers); diff != "" {
		t.Errorf("offers mismatch (-want +got):\n%s", diff)
	}
	require.Len(t, got.Sources, 2)
	assert.True(t, got.Sources[1].Degraded)

	assert.Equal(t, "u-1", agg.gotUserID)
	if diff := cmp.Diff(*stored, agg.gotProfile); diff != "" {
		t.Errorf("profile mismatch (-want +got):\n%s", diff)
	}
}

func TestListHandler_ProfileFallbacks(t *testing.T) {
	tests := []struct {
		name     string
		profiles offer.ProfileSource
	}{
		{name: "no store", profiles: nil},
		{name: "unknown user", profiles: fakeProfiles{}},
		{name: "store failing", profiles: fakeProfiles{err: errors.New("circuit breaker is open")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := &fakeAggregator{agg: offerUC.Aggregate{Offers: []entity.RawOffer{}}}
			rec := do(t, newServer(agg, tt.profiles), http.MethodGet, "/offers?user_id=u-9", "")

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, entity.DemographicProfile{UserID: "u-9"}, agg.gotProfile)
		})
	}
}

func TestListHandler_Errors(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		aggErr   error
		wantCode int
	}{
		{name: "missing user", target: "/offers", wantCode: http.StatusBadRequest},
		{name: "blank user", target: "/offers?user_id=%20", wantCode: http.StatusBadRequest},
		{name: "user too long", target: "/offers?user_id=" + strings.Repeat("u", 129), wantCode: http.StatusBadRequest},
		{name: "structural error", target: "/offers?user_id=u", aggErr: entity.ErrUnknownProvider, wantCode: http.StatusNotFound},
		{name: "unexpected error", target: "/offers?user_id=u", aggErr: errors.New("boom"), wantCode: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := &fakeAggregator{err: tt.aggErr}
			rec := do(t, newServer(agg, nil), http.MethodGet, tt.target, "")
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.NotContains(t, rec.Body.String(), "boom")
		})
	}
}

func TestCategoryHandler(t *testing.T) {
	agg := &fakeAggregator{agg: offerUC.Aggregate{Offers: sampleOffers}}
	rec := do(t, newServer(agg, nil), http.MethodGet, "/offers/category/gaming?user_id=u-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got offer.OffersResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "gaming", got.Category)
	assert.Equal(t, 2, got.Count)
	for _, o := range got.Offers {
		assert.True(t, o.InCategory("gaming"))
	}
	assert.Equal(t, "gaming", agg.gotCategory)
}

func TestMatchesHandler(t *testing.T) {
	agg := &fakeAggregator{agg: offerUC.Aggregate{Offers: sampleOffers}}
	srv := newServer(agg, nil)

	rec := do(t, srv, http.MethodGet, "/offers/matches?user_id=u-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got offer.MatchesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 2, got.Count, "default limit applies")
	assert.GreaterOrEqual(t, got.Matches[0].Score, got.Matches[1].Score)

	rec = do(t, srv, http.MethodGet, "/offers/matches?user_id=u-1&limit=3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 3, got.Count)

	for _, bad := range []string{"0", "51", "ten"} {
		rec = do(t, srv, http.MethodGet, "/offers/matches?user_id=u-1&limit="+bad, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, "limit=%s", bad)
	}
}

func TestBestMatchesHandler(t *testing.T) {
	srv := newServer(&fakeAggregator{}, nil)
	offers, err := json.Marshal(sampleOffers)
	require.NoError(t, err)

	tests := []struct {
		name      string
		body      string
		wantCode  int
		wantCount int
	}{
		{
			name:      "default limit",
			body:      `{"profile":{"user_id":"u-1","country_code":"us"},"offers":` + string(offers) + `}`,
			wantCode:  http.StatusOK,
			wantCount: 2,
		},
		{
			name:      "zero limit ranks everything",
			body:      `{"profile":{},"offers":` + string(offers) + `,"limit":0}`,
			wantCode:  http.StatusOK,
			wantCount: 3,
		},
		{
			name:      "explicit limit",
			body:      `{"profile":{},"offers":` + string(offers) + `,"limit":1}`,
			wantCode:  http.StatusOK,
			wantCount: 1,
		},
		{
			name:      "no offers",
			body:      `{"profile":{"age":40}}`,
			wantCode:  http.StatusOK,
			wantCount: 0,
		},
		{name: "limit over max", body: `{"profile":{},"offers":[],"limit":500}`, wantCode: http.StatusBadRequest},
		{name: "invalid profile", body: `{"profile":{"age":200},"offers":[]}`, wantCode: http.StatusBadRequest},
		{name: "bad birthday", body: `{"profile":{"birthday":"1.2.1990"}}`, wantCode: http.StatusBadRequest},
		{name: "unknown field", body: `{"profile":{},"extra":true}`, wantCode: http.StatusBadRequest},
		{name: "malformed", body: `{"profile":`, wantCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodPost, "/matches", tt.body)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantCode != http.StatusOK {
				return
			}
			var got offer.MatchesResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, tt.wantCount, got.Count)
			for _, m := range got.Matches {
				assert.GreaterOrEqual(t, m.Score, 0)
				assert.LessOrEqual(t, m.Score, 100)
			}
		})
	}
}

func TestBestMatchesHandler_BodyTooLarge(t *testing.T) {
	srv := newServer(&fakeAggregator{}, nil)
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, 32)
		srv.ServeHTTP(w, r)
	})
	rec := do(t, h, http.MethodPost, "/matches", `{"profile":{"interests":["`+strings.Repeat("a", 64)+`"]}}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestRoutes_MethodNotAllowed(t *testing.T) {
	srv := newServer(&fakeAggregator{}, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, srv, http.MethodGet, "/matches", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, srv, http.MethodPost, "/offers", "{}").Code)
}
