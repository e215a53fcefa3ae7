package fallback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"survey-offers/internal/domain/entity"
	"survey-offers/internal/infra/cache"
	"survey-offers/internal/resilience/circuitbreaker"
	"survey-offers/internal/resilience/retry"
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

type fixture struct {
	clock    *fakeClock
	registry *circuitbreaker.Registry
	cache    *cache.Cache
	coord    *Coordinator
	sleeps   int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	cfg := circuitbreaker.ProviderConfig{
		FailureThresholdPercent: 50,
		CallTimeout:             time.Second,
		ResetTimeout:            time.Minute,
		MinimumCalls:            2,
	}
	reg, err := circuitbreaker.NewRegistry(map[entity.ProviderID]circuitbreaker.ProviderConfig{
		entity.ProviderCPX:          cfg,
		entity.ProviderBitLabs:      cfg,
		entity.ProviderTheoremReach: cfg,
	}, clock)
	require.NoError(t, err)

	f := &fixture{clock: clock, registry: reg, cache: cache.New(clock)}
	ex := retry.NewExecutor(
		retry.WithSleeper(func(ctx context.Context, d time.Duration) error {
			f.sleeps++
			return ctx.Err()
		}),
		retry.WithJitter(func(time.Duration) time.Duration { return 0 }),
	)
	f.coord = New(reg, f.cache, ex, Config{
		Policy: retry.Policy{
			MaxRetries:        2,
			BaseDelay:         10 * time.Millisecond,
			MaxDelay:          100 * time.Millisecond,
			BackoffMultiplier: 2,
		},
		ProviderTTL: 5 * time.Minute,
		Alternatives: map[entity.ProviderID][]entity.ProviderID{
			entity.ProviderCPX: {entity.ProviderBitLabs, entity.ProviderTheoremReach},
		},
	})
	return f
}

func (f *fixture) forceOpen(t *testing.T, id entity.ProviderID) {
	t.Helper()
	for i := 0; i < 2; i++ {
		require.NoError(t, f.registry.RecordFailure(id))
	}
	st, _ := f.registry.State(id)
	require.Equal(t, circuitbreaker.StateOpen, st)
}

func offers(p entity.ProviderID, ids ...string) []entity.RawOffer {
	out := make([]entity.RawOffer, 0, len(ids))
	for _, id := range ids {
		out = append(out, entity.RawOffer{ID: id, Provider: p, RewardUnits: 100, EstimatedMinutes: 10})
	}
	return out
}

func failing(calls *int) Op {
	return func(context.Context) ([]entity.RawOffer, error) {
		*calls++
		return nil, &retry.HTTPError{StatusCode: 503, Message: "unavailable"}
	}
}

func TestResolve_PrimarySuccessRecordsAndCaches(t *testing.T) {
	f := newFixture(t)
	want := offers(entity.ProviderCPX, "a", "b")

	res, err := f.coord.Resolve(context.Background(), Request{
		Provider: entity.ProviderCPX,
		UserID:   "u1",
		Primary:  func(context.Context) ([]entity.RawOffer, error) { return want, nil },
	})

	require.NoError(t, err)
	assert.Equal(t, LevelPrimary, res.Level)
	assert.Equal(t, want, res.Offers)
	assert.False(t, res.Degraded)

	m, _ := f.registry.Metrics(entity.ProviderCPX)
	assert.Equal(t, int64(1), m.SuccessCount)

	cached, ok := f.cache.Get(cache.ProviderKey(entity.ProviderCPX, "u1"))
	require.True(t, ok)
	assert.Equal(t, want, cached)
}

func TestResolve_RetriesThenRecordsSingleFailure(t *testing.T) {
	f := newFixture(t)
	calls := 0

	res, err := f.coord.Resolve(context.Background(), Request{
		Provider: entity.ProviderTheoremReach,
		UserID:   "u1",
		Primary:  failing(&calls),
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls, "first attempt plus two retries")
	assert.Equal(t, 2, f.sleeps)
	assert.Equal(t, LevelDegraded, res.Level)

	m, _ := f.registry.Metrics(entity.ProviderTheoremReach)
	assert.Equal(t, int64(1), m.FailureCount)
	assert.Equal(t, int64(1), m.TotalCalls)
}

func TestResolve_CustomFallback(t *testing.T) {
	f := newFixture(t)
	calls := 0
	custom := offers(entity.ProviderCPX, "custom")

	res, err := f.coord.Resolve(context.Background(), Request{
		Provider: entity.ProviderCPX,
		UserID:   "u1",
		Primary:  failing(&calls),
		Custom:   func(context.Context) ([]entity.RawOffer, error) { return custom, nil },
	})

	require.NoError(t, err)
	assert.Equal(t, LevelCustom, res.Level)
	assert.Equal(t, custom, res.Offers)
}

func TestResolve_OpenCircuitUsesProviderCache(t *testing.T) {
	f := newFixture(t)
	f.cache.Put(cache.ProviderKey(entity.ProviderCPX, "u1"), offers(entity.ProviderCPX, "cached"), time.Minute)
	f.forceOpen(t, entity.ProviderCPX)

	calls := 0
	res, err := f.coord.Resolve(context.Background(), Request{
		Provider: entity.ProviderCPX,
		UserID:   "u1",
		Primary:  failing(&calls),
	})

	require.NoError(t, err)
	assert.Zero(t, calls, "primary must not be called while open")
	assert.Equal(t, LevelCache, res.Level)
	assert.Equal(t, "cached", res.Offers[0].ID)
}

func TestResolve_AggregateCacheFilteredToProvider(t *testing.T) {
	f := newFixture(t)
	all := append(offers(entity.ProviderBitLabs, "b1"), offers(entity.ProviderCPX, "c1", "c2")...)
	f.cache.Put(cache.AggregateKey("u1"), all, 5*time.Minute)
	f.clock.Advance(2 * time.Minute)
	f.forceOpen(t, entity.ProviderCPX)

	calls := 0
	res, err := f.coord.Resolve(context.Background(), Request{
		Provider: entity.ProviderCPX,
		UserID:   "u1",
		Primary:  failing(&calls),
	})

	require.NoError(t, err)
	assert.Equal(t, LevelCache, res.Level)
	assert.Equal(t, offers(entity.ProviderCPX, "c1", "c2"), res.Offers)
}

func TestResolve_AlternativeOnlyWhenClosed(t *testing.T) {
	f := newFixture(t)
	f.forceOpen(t, entity.ProviderCPX)
	f.forceOpen(t, entity.ProviderBitLabs)

	var tried []entity.ProviderID
	calls := 0
	res, err := f.coord.Resolve(context.Background(), Request{
		Provider: entity.ProviderCPX,
		UserID:   "u1",
		Primary:  failing(&calls),
		Alternative: func(ctx context.Context, alt entity.ProviderID) ([]entity.RawOffer, error) {
			tried = append(tried, alt)
			return offers(alt, "alt-1"), nil
		},
	})

	require.NoError(t, err)
	assert.Equal(t, []entity.ProviderID{entity.ProviderTheoremReach}, tried, "open alternatives are skipped")
	assert.Equal(t, LevelAlternative, res.Level)
	assert.Equal(t, entity.ProviderTheoremReach, res.Source)

	m, _ := f.registry.Metrics(entity.ProviderTheoremReach)
	assert.Equal(t, int64(1), m.SuccessCount)
}

func TestResolve_AlternativeFailureRecorded(t *testing.T) {
	f := newFixture(t)
	f.forceOpen(t, entity.ProviderCPX)

	calls := 0
	res, err := f.coord.Resolve(context.Background(), Request{
		Provider: entity.ProviderCPX,
		UserID:   "u1",
		Primary:  failing(&calls),
		Alternative: func(ctx context.Context, alt entity.ProviderID) ([]entity.RawOffer, error) {
			return nil, errors.New("alt down")
		},
	})

	require.NoError(t, err)
	assert.True(t, res.Degraded)
	for _, alt := range []entity.ProviderID{entity.ProviderBitLabs, entity.ProviderTheoremReach} {
		m, _ := f.registry.Metrics(alt)
		assert.Equal(t, int64(1), m.FailureCount, alt)
	}
}

func TestResolve_NeverErrorsWhenEverythingFails(t *testing.T) {
	f := newFixture(t)
	f.forceOpen(t, entity.ProviderBitLabs)
	f.forceOpen(t, entity.ProviderTheoremReach)

	calls := 0
	res, err := f.coord.Resolve(context.Background(), Request{
		Provider: entity.ProviderCPX,
		UserID:   "u1",
		Primary:  failing(&calls),
		Custom: func(context.Context) ([]entity.RawOffer, error) {
			return nil, errors.New("custom down")
		},
		Alternative: func(ctx context.Context, alt entity.ProviderID) ([]entity.RawOffer, error) {
			t.Errorf("alternative %s must not be called while open", alt)
			return nil, nil
		},
	})

	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Equal(t, LevelDegraded, res.Level)
	assert.NotNil(t, res.Offers)
	assert.Empty(t, res.Offers)
	assert.Equal(t, time.Minute, res.RetryAfter, "closed breaker falls back to reset timeout")
}

func TestResolve_DegradedRetryAfterIsRemainingOpenTime(t *testing.T) {
	f := newFixture(t)
	f.forceOpen(t, entity.ProviderCPX)
	f.clock.Advance(20 * time.Second)

	calls := 0
	res, err := f.coord.Resolve(context.Background(), Request{
		Provider: entity.ProviderCPX,
		Primary:  failing(&calls),
	})

	require.NoError(t, err)
	assert.Equal(t, 40*time.Second, res.RetryAfter)
}

func TestResolve_StructuralErrors(t *testing.T) {
	f := newFixture(t)

	_, err := f.coord.Resolve(context.Background(), Request{
		Provider: "unknown",
		Primary:  func(context.Context) ([]entity.RawOffer, error) { return nil, nil },
	})
	assert.ErrorIs(t, err, entity.ErrUnknownProvider)

	_, err = f.coord.Resolve(context.Background(), Request{Provider: entity.ProviderCPX})
	assert.ErrorIs(t, err, entity.ErrInvalidConfig)

	calls := 0
	_, err = f.coord.Resolve(context.Background(), Request{
		Provider: entity.ProviderCPX,
		Primary: func(context.Context) ([]entity.RawOffer, error) {
			calls++
			return nil, entity.ErrInvalidConfig
		},
	})
	assert.ErrorIs(t, err, entity.ErrInvalidConfig)
	assert.Equal(t, 1, calls, "structural errors are not retried")
}

func TestResolve_PerAttemptTimeout(t *testing.T) {
	f := newFixture(t)
	short := 20 * time.Millisecond
	_, err := f.registry.Configure(entity.ProviderCPX, circuitbreaker.PartialConfig{CallTimeout: &short})
	require.NoError(t, err)

	attempts := 0
	res, err := f.coord.Resolve(context.Background(), Request{
		Provider: entity.ProviderCPX,
		Primary: func(ctx context.Context) ([]entity.RawOffer, error) {
			attempts++
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts, "timeouts are retried")
	assert.Equal(t, LevelDegraded, res.Level)
}

func TestResolve_PrimaryBudgetStopsRetries(t *testing.T) {
	f := newFixture(t)
	f.coord.cfg.PrimaryBudget = 30 * time.Millisecond
	f.coord.cfg.Policy.MaxRetries = 100

	attempts := 0
	start := time.Now()
	res, err := f.coord.Resolve(context.Background(), Request{
		Provider: entity.ProviderCPX,
		Primary: func(ctx context.Context) ([]entity.RawOffer, error) {
			attempts++
			time.Sleep(10 * time.Millisecond)
			return nil, errors.New("slow failure")
		},
	})

	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Less(t, attempts, 100)
	assert.Less(t, time.Since(start), time.Second)
}

func TestResolve_CallerCancellationIsNotAProviderFailure(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	altCalls := 0
	res, err := f.coord.Resolve(ctx, Request{
		Provider: entity.ProviderCPX,
		UserID:   "u1",
		Primary: func(ctx context.Context) ([]entity.RawOffer, error) {
			return nil, ctx.Err()
		},
		Alternative: func(context.Context, entity.ProviderID) ([]entity.RawOffer, error) {
			altCalls++
			return offers(entity.ProviderBitLabs, "x"), nil
		},
	})

	require.NoError(t, err)
	assert.Equal(t, LevelDegraded, res.Level)
	assert.True(t, res.Degraded)
	assert.Zero(t, altCalls, "alternatives are not called for a gone caller")
	for _, id := range []entity.ProviderID{entity.ProviderCPX, entity.ProviderBitLabs, entity.ProviderTheoremReach} {
		m, err := f.registry.Metrics(id)
		require.NoError(t, err)
		assert.Zero(t, m.FailureCount, id)
		assert.Zero(t, m.TotalCalls, id)
	}
}

func TestResolve_CallerCancellationStillServesCache(t *testing.T) {
	f := newFixture(t)
	cached := offers(entity.ProviderCPX, "c1")
	f.cache.Put(cache.ProviderKey(entity.ProviderCPX, "u1"), cached, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	res, err := f.coord.Resolve(ctx, Request{
		Provider: entity.ProviderCPX,
		UserID:   "u1",
		Primary: func(ctx context.Context) ([]entity.RawOffer, error) {
			cancel()
			return nil, ctx.Err()
		},
	})

	require.NoError(t, err)
	assert.Equal(t, LevelCache, res.Level)
	assert.Equal(t, cached, res.Offers)
	m, _ := f.registry.Metrics(entity.ProviderCPX)
	assert.Zero(t, m.TotalCalls)
}

func TestResolve_HalfOpenTrialReleasedWithoutVerdict(t *testing.T) {
	tests := []struct {
		name    string
		primary func(cancel context.CancelFunc) Op
		wantErr bool
	}{
		{
			name: "structural error",
			primary: func(context.CancelFunc) Op {
				return func(context.Context) ([]entity.RawOffer, error) { return nil, entity.ErrInvalidConfig }
			},
			wantErr: true,
		},
		{
			name: "caller cancelled",
			primary: func(cancel context.CancelFunc) Op {
				return func(ctx context.Context) ([]entity.RawOffer, error) {
					cancel()
					return nil, ctx.Err()
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.forceOpen(t, entity.ProviderCPX)
			f.clock.Advance(time.Minute)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			_, err := f.coord.Resolve(ctx, Request{Provider: entity.ProviderCPX, Primary: tt.primary(cancel)})
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}

			st, _ := f.registry.State(entity.ProviderCPX)
			assert.Equal(t, circuitbreaker.StateHalfOpen, st)
			ok, err := f.registry.AllowCall(entity.ProviderCPX)
			require.NoError(t, err)
			assert.True(t, ok, "the next caller gets the trial")
		})
	}
}
