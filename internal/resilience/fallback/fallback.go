// Package fallback resolves a provider's offers through an ordered chain of
// degrading strategies: breaker-gated retried primary call, caller supplied
// fallback, cached response, healthy alternative provider, and finally a
// degraded marker. Transient failures never surface as errors.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"survey-offers/internal/domain/entity"
	"survey-offers/internal/infra/cache"
	"survey-offers/internal/observability/logging"
	"survey-offers/internal/observability/metrics"
	"survey-offers/internal/resilience/circuitbreaker"
	"survey-offers/internal/resilience/retry"
)

// Level names the step of the chain that produced a Result.
type Level string

const (
	LevelPrimary     Level = "primary"
	LevelCustom      Level = "custom"
	LevelCache       Level = "cache"
	LevelAlternative Level = "alternative"
	LevelDegraded    Level = "degraded"
)

// Result is the outcome of Resolve. Degraded results carry no offers and a
// RetryAfter hint.
type Result struct {
	Provider   entity.ProviderID `json:"provider"`
	Offers     []entity.RawOffer `json:"offers"`
	Level      Level             `json:"level"`
	Source     entity.ProviderID `json:"source,omitempty"`
	Degraded   bool              `json:"degraded"`
	RetryAfter time.Duration     `json:"retry_after,omitempty"`
}

// Op fetches offers from one provider.
type Op func(ctx context.Context) ([]entity.RawOffer, error)

// AlternativeOp fetches offers from the alternative provider alt on behalf of
// the same user.
type AlternativeOp func(ctx context.Context, alt entity.ProviderID) ([]entity.RawOffer, error)

// Request describes one resolution.
type Request struct {
	Provider    entity.ProviderID
	UserID      string
	Primary     Op
	Custom      Op            // optional
	Alternative AlternativeOp // optional
}

// Breakers is the subset of the breaker registry the chain drives.
type Breakers interface {
	AllowCall(id entity.ProviderID) (bool, error)
	RecordSuccess(id entity.ProviderID, latency time.Duration) error
	RecordFailure(id entity.ProviderID) error
	ReleaseTrial(id entity.ProviderID) error
	State(id entity.ProviderID) (circuitbreaker.State, error)
	Config(id entity.ProviderID) (circuitbreaker.ProviderConfig, error)
	RetryAfter(id entity.ProviderID) (time.Duration, error)
}

// Cache is the subset of the response cache the chain reads and fills.
type Cache interface {
	Get(key string) ([]entity.RawOffer, bool)
	Put(key string, offers []entity.RawOffer, ttl time.Duration)
}

// Config tunes the chain.
type Config struct {
	// Policy is the retry policy around the primary call.
	Policy retry.Policy

	// PrimaryBudget bounds the whole primary stage, retries and backoff
	// included. Zero means unbounded.
	PrimaryBudget time.Duration

	// ProviderTTL is how long a successful primary response stays cached.
	ProviderTTL time.Duration

	// Alternatives lists, per provider, the providers to try in order when
	// everything else failed.
	Alternatives map[entity.ProviderID][]entity.ProviderID
}

// DefaultConfig returns the chain configuration used when none is supplied.
func DefaultConfig() Config {
	return Config{
		Policy:        retry.ProviderPolicy(),
		PrimaryBudget: 15 * time.Second,
		ProviderTTL:   5 * time.Minute,
		Alternatives: map[entity.ProviderID][]entity.ProviderID{
			entity.ProviderCPX:          {entity.ProviderBitLabs, entity.ProviderTheoremReach},
			entity.ProviderBitLabs:      {entity.ProviderCPX, entity.ProviderPollfish},
			entity.ProviderTheoremReach: {entity.ProviderCPX, entity.ProviderBitLabs},
			entity.ProviderPollfish:     {entity.ProviderTheoremReach, entity.ProviderCPX},
		},
	}
}

// Coordinator runs the chain.
type Coordinator struct {
	breakers Breakers
	cache    Cache
	retry    *retry.Executor
	cfg      Config
	now      func() time.Time
}

// New creates a Coordinator. A nil executor uses retry.NewExecutor().
func New(breakers Breakers, c Cache, executor *retry.Executor, cfg Config) *Coordinator {
	if executor == nil {
		executor = retry.NewExecutor()
	}
	return &Coordinator{
		breakers: breakers,
		cache:    c,
		retry:    executor,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Resolve walks the chain for req.Provider and returns the first level that
// answers. The only errors are structural: an unknown provider, a request
// without a primary operation, or a structural error returned by an operation.
func (c *Coordinator) Resolve(ctx context.Context, req Request) (Result, error) {
	if req.Primary == nil {
		return Result{}, fmt.Errorf("%w: fallback request for %s has no primary operation", entity.ErrInvalidConfig, req.Provider)
	}
	logger := logging.FromContext(ctx).With(slog.String("provider", string(req.Provider)))

	allowed, err := c.breakers.AllowCall(req.Provider)
	if err != nil {
		return Result{}, err
	}

	if allowed {
		offers, err := c.callPrimary(ctx, req)
		if err == nil {
			return c.done(Result{Provider: req.Provider, Offers: offers, Level: LevelPrimary, Source: req.Provider}), nil
		}
		if entity.IsStructural(err) {
			return Result{}, err
		}
		if ctx.Err() == nil {
			logger.Warn("primary provider call failed, falling back", slog.Any("error", err))
		}
	} else {
		logger.Debug("circuit open, skipping primary call")
	}

	// A caller that went away gets no further upstream calls and no breaker
	// bookkeeping; only the cache is consulted.
	if ctx.Err() != nil {
		if offers, ok := c.fromCache(req); ok {
			return c.done(Result{Provider: req.Provider, Offers: offers, Level: LevelCache}), nil
		}
		return c.degraded(req, logger), nil
	}

	if req.Custom != nil {
		offers, err := req.Custom(ctx)
		switch {
		case err == nil:
			return c.done(Result{Provider: req.Provider, Offers: offers, Level: LevelCustom}), nil
		case entity.IsStructural(err):
			return Result{}, err
		default:
			logger.Warn("custom fallback failed", slog.Any("error", err))
		}
	}

	if offers, ok := c.fromCache(req); ok {
		return c.done(Result{Provider: req.Provider, Offers: offers, Level: LevelCache}), nil
	}

	if req.Alternative != nil {
		if res, ok := c.tryAlternatives(ctx, req, logger); ok {
			return c.done(res), nil
		}
	}

	return c.degraded(req, logger), nil
}

func (c *Coordinator) degraded(req Request, logger *slog.Logger) Result {
	retryAfter, _ := c.breakers.RetryAfter(req.Provider)
	if retryAfter <= 0 {
		if cfg, err := c.breakers.Config(req.Provider); err == nil {
			retryAfter = cfg.ResetTimeout
		}
	}
	logger.Warn("all fallbacks exhausted, returning degraded result", slog.Duration("retry_after", retryAfter))
	return c.done(Result{
		Provider:   req.Provider,
		Offers:     []entity.RawOffer{},
		Level:      LevelDegraded,
		Degraded:   true,
		RetryAfter: retryAfter,
	})
}

// callPrimary runs the retried primary call and records at most one outcome
// on the provider's breaker. Structural errors and cancellation by the caller
// say nothing about the provider: they count neither way and release a
// half-open trial.
func (c *Coordinator) callPrimary(ctx context.Context, req Request) ([]entity.RawOffer, error) {
	cfg, err := c.breakers.Config(req.Provider)
	if err != nil {
		return nil, err
	}

	stageCtx := ctx
	if c.cfg.PrimaryBudget > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(ctx, c.cfg.PrimaryBudget)
		defer cancel()
	}

	policy := c.cfg.Policy
	policy.Name = "provider." + string(req.Provider)

	var latency time.Duration
	offers, err := retry.Execute(stageCtx, c.retry, policy, func(ctx context.Context, attempt int) ([]entity.RawOffer, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, cfg.CallTimeout)
		defer cancel()

		start := c.now()
		offers, err := req.Primary(attemptCtx)
		if err != nil {
			if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
				return nil, fmt.Errorf("attempt %d timed out after %s: %w", attempt, cfg.CallTimeout, err)
			}
			return nil, err
		}
		latency = c.now().Sub(start)
		return offers, nil
	})

	if err != nil {
		if entity.IsStructural(err) || ctx.Err() != nil {
			_ = c.breakers.ReleaseTrial(req.Provider)
		} else {
			_ = c.breakers.RecordFailure(req.Provider)
		}
		return nil, err
	}

	_ = c.breakers.RecordSuccess(req.Provider, latency)
	if c.cache != nil && req.UserID != "" && c.cfg.ProviderTTL > 0 {
		c.cache.Put(cache.ProviderKey(req.Provider, req.UserID), offers, c.cfg.ProviderTTL)
	}
	return offers, nil
}

// fromCache looks up the provider's own entry first, then the user's
// aggregate entry narrowed to this provider.
func (c *Coordinator) fromCache(req Request) ([]entity.RawOffer, bool) {
	if c.cache == nil || req.UserID == "" {
		return nil, false
	}
	if offers, ok := c.cache.Get(cache.ProviderKey(req.Provider, req.UserID)); ok {
		return offers, true
	}
	if all, ok := c.cache.Get(cache.AggregateKey(req.UserID)); ok {
		if offers := entity.FilterByProvider(all, req.Provider); len(offers) > 0 {
			return offers, true
		}
	}
	return nil, false
}

// tryAlternatives calls each configured alternative whose breaker is closed,
// once, with that provider's call timeout.
func (c *Coordinator) tryAlternatives(ctx context.Context, req Request, logger *slog.Logger) (Result, bool) {
	for _, alt := range c.cfg.Alternatives[req.Provider] {
		if alt == req.Provider {
			continue
		}
		state, err := c.breakers.State(alt)
		if err != nil || state != circuitbreaker.StateClosed {
			continue
		}
		cfg, err := c.breakers.Config(alt)
		if err != nil {
			continue
		}

		altCtx, cancel := context.WithTimeout(ctx, cfg.CallTimeout)
		start := c.now()
		offers, err := req.Alternative(altCtx, alt)
		latency := c.now().Sub(start)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return Result{}, false
			}
			if !entity.IsStructural(err) {
				_ = c.breakers.RecordFailure(alt)
			}
			logger.Warn("alternative provider failed",
				slog.String("alternative", string(alt)),
				slog.Any("error", err))
			continue
		}
		_ = c.breakers.RecordSuccess(alt, latency)
		return Result{Provider: req.Provider, Offers: offers, Level: LevelAlternative, Source: alt}, true
	}
	return Result{}, false
}

func (c *Coordinator) done(res Result) Result {
	if res.Offers == nil {
		res.Offers = []entity.RawOffer{}
	}
	metrics.RecordFallback(string(res.Provider), string(res.Level))
	return res
}
