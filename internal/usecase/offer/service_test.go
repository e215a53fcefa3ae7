package offer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"survey-offers/internal/domain/entity"
	"survey-offers/internal/infra/cache"
	"survey-offers/internal/resilience/circuitbreaker"
	"survey-offers/internal/resilience/fallback"
	"survey-offers/internal/resilience/retry"
	providerUC "survey-offers/internal/usecase/provider"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type stubClient struct {
	offers []entity.RawOffer
	err    error
	delay  time.Duration
	calls  atomic.Int32
}

func (c *stubClient) Fetch(ctx context.Context, userID string, _ entity.DemographicProfile) ([]entity.RawOffer, error) {
	c.calls.Add(1)
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if c.err != nil {
		return nil, c.err
	}
	return c.offers, nil
}

func offersFor(p entity.ProviderID, ids ...string) []entity.RawOffer {
	out := make([]entity.RawOffer, 0, len(ids))
	for i, id := range ids {
		out = append(out, entity.RawOffer{
			ID: id, Provider: p, RewardUnits: 100 + i, EstimatedMinutes: 10, Category: "Lifestyle",
		})
	}
	return out
}

type fixture struct {
	clock    *fakeClock
	registry *circuitbreaker.Registry
	cache    *cache.Cache
	svc      *Service
}

func newFixture(t *testing.T, clients map[entity.ProviderID]Client, alternatives map[entity.ProviderID][]entity.ProviderID) *fixture {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}

	cfgs := make(map[entity.ProviderID]circuitbreaker.ProviderConfig, len(clients))
	for id := range clients {
		cfgs[id] = circuitbreaker.ProviderConfig{
			FailureThresholdPercent: 50,
			CallTimeout:             time.Second,
			ResetTimeout:            time.Minute,
			MinimumCalls:            2,
		}
	}
	reg, err := circuitbreaker.NewRegistry(cfgs, clock)
	require.NoError(t, err)

	c := cache.New(clock)
	ex := retry.NewExecutor(
		retry.WithSleeper(func(ctx context.Context, _ time.Duration) error { return ctx.Err() }),
		retry.WithJitter(func(time.Duration) time.Duration { return 0 }),
	)
	coord := fallback.New(reg, c, ex, fallback.Config{
		Policy:       retry.Policy{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffMultiplier: 1},
		ProviderTTL:  5 * time.Minute,
		Alternatives: alternatives,
	})

	svc := NewService(clients, coord, c, 5*time.Minute, WithBurstWindow(10*time.Second))
	svc.now = clock.Now
	return &fixture{clock: clock, registry: reg, cache: c, svc: svc}
}

var sortOffers = cmpopts.SortSlices(func(a, b entity.RawOffer) bool {
	if a.Provider != b.Provider {
		return a.Provider < b.Provider
	}
	return a.ID < b.ID
})

func TestFetchAll_LiveAndCachedWhileCircuitOpen(t *testing.T) {
	liveA := offersFor(entity.ProviderCPX, "a-live")
	cachedB := offersFor(entity.ProviderBitLabs, "b-cached")
	a := &stubClient{offers: liveA}
	b := &stubClient{err: errors.New("should not be called")}

	f := newFixture(t, map[entity.ProviderID]Client{
		entity.ProviderCPX:     a,
		entity.ProviderBitLabs: b,
	}, nil)

	earlier := append(offersFor(entity.ProviderCPX, "a-old"), cachedB...)
	f.cache.Put(cache.AggregateKey("user-1"), earlier, 5*time.Minute)
	f.clock.Advance(2 * time.Minute)

	require.NoError(t, f.registry.RecordFailure(entity.ProviderBitLabs))
	require.NoError(t, f.registry.RecordFailure(entity.ProviderBitLabs))
	state, err := f.registry.State(entity.ProviderBitLabs)
	require.NoError(t, err)
	require.Equal(t, circuitbreaker.StateOpen, state)

	agg, err := f.svc.Fetch(context.Background(), "user-1", entity.DemographicProfile{})
	require.NoError(t, err)

	want := append(append([]entity.RawOffer{}, liveA...), cachedB...)
	if diff := cmp.Diff(want, agg.Offers, sortOffers); diff != "" {
		t.Errorf("offers mismatch (-want +got):\n%s", diff)
	}
	assert.False(t, agg.Cached)
	assert.Equal(t, int32(1), a.calls.Load(), "healthy provider answers live")
	assert.Equal(t, int32(0), b.calls.Load())

	levels := map[entity.ProviderID]fallback.Level{}
	for _, s := range agg.Sources {
		levels[s.Provider] = s.Level
	}
	assert.Equal(t, fallback.LevelPrimary, levels[entity.ProviderCPX])
	assert.Equal(t, fallback.LevelCache, levels[entity.ProviderBitLabs])

	age, ok := f.cache.Age(cache.AggregateKey("user-1"))
	require.True(t, ok)
	assert.Equal(t, 2*time.Minute, age, "replayed offers keep their original expiry")

	health := providerUC.NewService(f.registry).Health()
	assert.Equal(t, providerUC.Unhealthy, health[entity.ProviderBitLabs])
	assert.Equal(t, providerUC.Healthy, health[entity.ProviderCPX])
}

func TestFetchAll_CachedOffersExpireWithOriginalEntry(t *testing.T) {
	a := &stubClient{offers: offersFor(entity.ProviderCPX, "a-live")}
	b := &stubClient{err: errors.New("down")}
	f := newFixture(t, map[entity.ProviderID]Client{
		entity.ProviderCPX:     a,
		entity.ProviderBitLabs: b,
	}, nil)

	f.cache.Put(cache.AggregateKey("user-5"), offersFor(entity.ProviderBitLabs, "b-cached"), 5*time.Minute)
	f.clock.Advance(4 * time.Minute)
	require.NoError(t, f.registry.RecordFailure(entity.ProviderBitLabs))
	require.NoError(t, f.registry.RecordFailure(entity.ProviderBitLabs))

	agg, err := f.svc.Fetch(context.Background(), "user-5", entity.DemographicProfile{})
	require.NoError(t, err)
	assert.Len(t, agg.Offers, 2)

	f.clock.Advance(61 * time.Second)
	agg, err = f.svc.Fetch(context.Background(), "user-5", entity.DemographicProfile{})
	require.NoError(t, err)
	if diff := cmp.Diff(offersFor(entity.ProviderCPX, "a-live"), agg.Offers); diff != "" {
		t.Errorf("offers mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchAll_BurstWindowAbsorbsRepeats(t *testing.T) {
	a := &stubClient{offers: offersFor(entity.ProviderCPX, "a-1")}
	b := &stubClient{offers: offersFor(entity.ProviderPollfish, "p-1")}
	f := newFixture(t, map[entity.ProviderID]Client{
		entity.ProviderCPX:      a,
		entity.ProviderPollfish: b,
	}, nil)

	first, err := f.svc.Fetch(context.Background(), "user-2", entity.DemographicProfile{})
	require.NoError(t, err)
	require.Len(t, first.Offers, 2)

	for i := 0; i < 5; i++ {
		again, err := f.svc.Fetch(context.Background(), "user-2", entity.DemographicProfile{})
		require.NoError(t, err)
		assert.True(t, again.Cached)
		assert.Len(t, again.Offers, 2)
	}
	assert.Equal(t, int32(1), a.calls.Load())
	assert.Equal(t, int32(1), b.calls.Load())

	f.clock.Advance(11 * time.Second)
	again, err := f.svc.Fetch(context.Background(), "user-2", entity.DemographicProfile{})
	require.NoError(t, err)
	assert.False(t, again.Cached)
	assert.Equal(t, int32(2), a.calls.Load(), "a merged response older than the burst window fans out again")

	_, ok := f.cache.Get(cache.AggregateKey("user-2"))
	assert.True(t, ok, "live answers refresh the aggregate entry")
}

func TestFetchAll_AllDegradedIsNotCached(t *testing.T) {
	a := &stubClient{err: errors.New("503")}
	b := &stubClient{err: errors.New("timeout")}
	f := newFixture(t, map[entity.ProviderID]Client{
		entity.ProviderCPX:     a,
		entity.ProviderBitLabs: b,
	}, nil)

	agg, err := f.svc.Fetch(context.Background(), "user-3", entity.DemographicProfile{})
	require.NoError(t, err)
	assert.NotNil(t, agg.Offers)
	assert.Empty(t, agg.Offers)
	for _, s := range agg.Sources {
		assert.True(t, s.Degraded, s.Provider)
		assert.Positive(t, s.RetryAfter)
	}

	_, ok := f.cache.Get(cache.AggregateKey("user-3"))
	assert.False(t, ok)
	_, ok = f.cache.Get(cache.BurstKey("user-3"))
	assert.False(t, ok)
}

func TestFetchAll_DeduplicatesAlternativeResults(t *testing.T) {
	bOffers := offersFor(entity.ProviderBitLabs, "b-1", "b-2")
	a := &stubClient{err: errors.New("connection reset")}
	b := &stubClient{offers: bOffers}
	f := newFixture(t, map[entity.ProviderID]Client{
		entity.ProviderCPX:     a,
		entity.ProviderBitLabs: b,
	}, map[entity.ProviderID][]entity.ProviderID{
		entity.ProviderCPX: {entity.ProviderBitLabs},
	})

	agg, err := f.svc.Fetch(context.Background(), "user-4", entity.DemographicProfile{})
	require.NoError(t, err)
	if diff := cmp.Diff(bOffers, agg.Offers, sortOffers); diff != "" {
		t.Errorf("offers mismatch (-want +got):\n%s", diff)
	}
	for _, s := range agg.Sources {
		if s.Provider == entity.ProviderCPX {
			assert.Equal(t, fallback.LevelAlternative, s.Level)
			assert.Equal(t, entity.ProviderBitLabs, s.Source)
		}
	}
}

func TestFetchAll_SettlesSlowAndStructuralBranches(t *testing.T) {
	slow := &stubClient{offers: offersFor(entity.ProviderTheoremReach, "t-1"), delay: 50 * time.Millisecond}
	broken := &stubClient{err: fmt.Errorf("%w: bad app id", entity.ErrInvalidConfig)}
	f := newFixture(t, map[entity.ProviderID]Client{
		entity.ProviderTheoremReach: slow,
		entity.ProviderCPX:          broken,
	}, nil)

	agg, err := f.svc.Fetch(context.Background(), "user-5", entity.DemographicProfile{})
	require.NoError(t, err)
	require.Len(t, agg.Offers, 1)
	assert.Equal(t, "t-1", agg.Offers[0].ID)
	assert.Equal(t, int32(1), broken.calls.Load(), "structural errors are not retried")

	m, err := f.registry.Metrics(entity.ProviderCPX)
	require.NoError(t, err)
	assert.Zero(t, m.FailureCount)
}

func TestFetchByCategory(t *testing.T) {
	offers := []entity.RawOffer{
		{ID: "1", Provider: entity.ProviderCPX, Category: "Health"},
		{ID: "2", Provider: entity.ProviderCPX, Category: "Finance"},
		{ID: "3", Provider: entity.ProviderCPX, Category: " health "},
	}
	f := newFixture(t, map[entity.ProviderID]Client{entity.ProviderCPX: &stubClient{offers: offers}}, nil)

	got, err := f.svc.FetchByCategory(context.Background(), "HEALTH", "user-6", entity.DemographicProfile{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, "3", got[1].ID)

	_, err = f.svc.FetchByCategory(context.Background(), "  ", "user-6", entity.DemographicProfile{})
	assert.ErrorIs(t, err, entity.ErrInvalidInput)
}

func TestFetchAll_RequiresUserID(t *testing.T) {
	f := newFixture(t, map[entity.ProviderID]Client{entity.ProviderCPX: &stubClient{}}, nil)

	_, err := f.svc.FetchAll(context.Background(), "", entity.DemographicProfile{})
	var verr *entity.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "user_id", verr.Field)
	assert.ErrorIs(t, err, entity.ErrInvalidInput)
}

func TestFetchAll_Spans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	f := newFixture(t, map[entity.ProviderID]Client{
		entity.ProviderCPX:      &stubClient{offers: offersFor(entity.ProviderCPX, "a")},
		entity.ProviderPollfish: &stubClient{err: errors.New("down")},
	}, nil)
	f.svc.tracer = tp.Tracer("test")

	_, err := f.svc.Fetch(context.Background(), "user-7", entity.DemographicProfile{})
	require.NoError(t, err)

	names := map[string]int{}
	for _, s := range exporter.GetSpans() {
		names[s.Name]++
	}
	assert.Equal(t, map[string]int{"offer.FetchAll": 1, "offer.provider": 2}, names)
}

func TestNewService_ProviderOrder(t *testing.T) {
	svc := NewService(map[entity.ProviderID]Client{
		entity.ProviderPollfish: &stubClient{},
		entity.ProviderCPX:      &stubClient{},
		entity.ProviderBitLabs:  &stubClient{},
	}, nil, nil, 0)
	assert.Equal(t, []entity.ProviderID{entity.ProviderCPX, entity.ProviderBitLabs, entity.ProviderPollfish}, svc.Providers())
	assert.Equal(t, DefaultAggregateTTL, svc.aggregateTTL)
	assert.Equal(t, DefaultBurstWindow, svc.burstWindow)

	capped := NewService(nil, nil, nil, 5*time.Second, WithBurstWindow(time.Minute))
	assert.Equal(t, 5*time.Second, capped.burstWindow)
	off := NewService(nil, nil, nil, time.Minute, WithBurstWindow(0))
	assert.Zero(t, off.burstWindow)
}
