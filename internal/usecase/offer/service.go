// Package offer aggregates survey offers for one user across every
// configured provider. Each provider is resolved through the fallback chain
// concurrently. Each merged response is cached twice per user: briefly under
// a burst key that answers repeated requests without a fan-out, and for the
// aggregate TTL under the aggregate key, which the fallback chain reads for
// providers that cannot answer live.
package offer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"survey-offers/internal/domain/entity"
	"survey-offers/internal/infra/cache"
	"survey-offers/internal/observability/metrics"
	"survey-offers/internal/observability/tracing"
	"survey-offers/internal/resilience/fallback"
)

const (
	// DefaultAggregateTTL is used when NewService receives a non-positive TTL.
	DefaultAggregateTTL = 5 * time.Minute
	// DefaultBurstWindow is how long a merged result is served without
	// asking the providers again.
	DefaultBurstWindow = 10 * time.Second
)

// Client fetches offers from one provider.
type Client interface {
	Fetch(ctx context.Context, userID string, profile entity.DemographicProfile) ([]entity.RawOffer, error)
}

// Resolver runs the fallback chain for one provider.
type Resolver interface {
	Resolve(ctx context.Context, req fallback.Request) (fallback.Result, error)
}

// Cache stores merged results per user.
type Cache interface {
	Get(key string) ([]entity.RawOffer, bool)
	Put(key string, offers []entity.RawOffer, ttl time.Duration)
}

// SourceStatus reports how one provider branch was answered.
type SourceStatus struct {
	Provider   entity.ProviderID `json:"provider"`
	Level      fallback.Level    `json:"level"`
	Source     entity.ProviderID `json:"source,omitempty"`
	Offers     int               `json:"offers"`
	Degraded   bool              `json:"degraded"`
	RetryAfter time.Duration     `json:"retry_after,omitempty"`
}

// Aggregate is the merged result of one fan-out or cache hit.
type Aggregate struct {
	Offers  []entity.RawOffer `json:"offers"`
	Sources []SourceStatus    `json:"sources,omitempty"`
	Cached  bool              `json:"cached"`
}

// Service fans out to every provider.
type Service struct {
	clients      map[entity.ProviderID]Client
	order        []entity.ProviderID
	resolver     Resolver
	cache        Cache
	aggregateTTL time.Duration
	burstWindow  time.Duration
	logger       *slog.Logger
	tracer       trace.Tracer
	now          func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithBurstWindow sets how long a merged response short-circuits the
// fan-out. Zero disables the short-circuit. It is capped to the aggregate TTL.
func WithBurstWindow(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.burstWindow = d
		}
	}
}

// NewService creates an aggregator over clients.
func NewService(clients map[entity.ProviderID]Client, resolver Resolver, c Cache, aggregateTTL time.Duration, opts ...Option) *Service {
	if aggregateTTL <= 0 {
		aggregateTTL = DefaultAggregateTTL
	}
	order := make([]entity.ProviderID, 0, len(clients))
	for id := range clients {
		order = append(order, id)
	}
	entity.SortProviders(order)

	s := &Service{
		clients:      clients,
		order:        order,
		resolver:     resolver,
		cache:        c,
		aggregateTTL: aggregateTTL,
		burstWindow:  DefaultBurstWindow,
		logger:       slog.Default(),
		tracer:       tracing.GetTracer(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.burstWindow = min(s.burstWindow, s.aggregateTTL)
	return s
}

// Providers returns the providers the service fans out to, in fan-out order.
func (s *Service) Providers() []entity.ProviderID {
	return append([]entity.ProviderID(nil), s.order...)
}

// FetchAll returns every offer available to userID. It only fails on
// invalid input; provider failures degrade the result instead.
func (s *Service) FetchAll(ctx context.Context, userID string, profile entity.DemographicProfile) ([]entity.RawOffer, error) {
	agg, err := s.Fetch(ctx, userID, profile)
	if err != nil {
		return nil, err
	}
	return agg.Offers, nil
}

// FetchByCategory returns the offers of FetchAll whose category matches
// (case-insensitive).
func (s *Service) FetchByCategory(ctx context.Context, category, userID string, profile entity.DemographicProfile) ([]entity.RawOffer, error) {
	if strings.TrimSpace(category) == "" {
		return nil, &entity.ValidationError{Field: "category", Message: "category is required"}
	}
	offers, err := s.FetchAll(ctx, userID, profile)
	if err != nil {
		return nil, err
	}
	return entity.FilterByCategory(offers, category), nil
}

// Fetch is FetchAll with per-provider resolution details.
func (s *Service) Fetch(ctx context.Context, userID string, profile entity.DemographicProfile) (Aggregate, error) {
	if strings.TrimSpace(userID) == "" {
		return Aggregate{}, &entity.ValidationError{Field: "user_id", Message: "user id is required"}
	}

	ctx, span := s.tracer.Start(ctx, "offer.FetchAll",
		trace.WithAttributes(attribute.Int("offer.providers", len(s.order))))
	defer span.End()
	start := s.now()

	if offers, ok := s.recent(userID); ok {
		span.SetAttributes(attribute.Bool("offer.cached", true), attribute.Int("offer.count", len(offers)))
		metrics.RecordAggregation("cache", s.now().Sub(start), len(offers))
		return Aggregate{Offers: offers, Cached: true}, nil
	}

	results := make([]fallback.Result, len(s.order))
	var g errgroup.Group
	for i, id := range s.order {
		g.Go(func() error {
			results[i] = s.resolveBranch(ctx, id, userID, profile)
			return nil
		})
	}
	_ = g.Wait()

	agg := Aggregate{Offers: []entity.RawOffer{}, Sources: make([]SourceStatus, 0, len(results))}
	seen := make(map[offerKey]struct{})
	allDegraded := true
	fromCache := false
	for _, res := range results {
		if res.Level == fallback.LevelCache {
			fromCache = true
		}
		agg.Sources = append(agg.Sources, SourceStatus{
			Provider:   res.Provider,
			Level:      res.Level,
			Source:     res.Source,
			Offers:     len(res.Offers),
			Degraded:   res.Degraded,
			RetryAfter: res.RetryAfter,
		})
		if !res.Degraded {
			allDegraded = false
		}
		for _, o := range res.Offers {
			k := offerKey{provider: o.Provider, id: o.ID}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			agg.Offers = append(agg.Offers, o)
		}
	}

	if s.cache != nil && !allDegraded {
		s.cache.Put(cache.BurstKey(userID), agg.Offers, s.burstWindow)
		// Offers replayed from cache keep their original expiry, so the
		// long-lived entry is only refreshed from live answers.
		if !fromCache {
			s.cache.Put(cache.AggregateKey(userID), agg.Offers, s.aggregateTTL)
		}
	}

	span.SetAttributes(
		attribute.Bool("offer.cached", false),
		attribute.Int("offer.count", len(agg.Offers)),
		attribute.Bool("offer.all_degraded", allDegraded))
	metrics.RecordAggregation("fanout", s.now().Sub(start), len(agg.Offers))

	if allDegraded && len(s.order) > 0 {
		s.logger.Warn("every provider degraded, returning empty aggregate", slog.Int("providers", len(s.order)))
	}
	return agg, nil
}

// recent returns the response merged within the last burst window.
func (s *Service) recent(userID string) ([]entity.RawOffer, bool) {
	if s.cache == nil || s.burstWindow <= 0 {
		return nil, false
	}
	return s.cache.Get(cache.BurstKey(userID))
}

type offerKey struct {
	provider entity.ProviderID
	id       string
}

// resolveBranch never fails: a structural error from the chain is logged
// and reported as a degraded branch.
func (s *Service) resolveBranch(ctx context.Context, id entity.ProviderID, userID string, profile entity.DemographicProfile) fallback.Result {
	ctx, span := s.tracer.Start(ctx, "offer.provider",
		trace.WithAttributes(attribute.String("provider", string(id))))
	defer span.End()

	res, err := s.resolver.Resolve(ctx, fallback.Request{
		Provider: id,
		UserID:   userID,
		Primary: func(ctx context.Context) ([]entity.RawOffer, error) {
			return s.call(ctx, id, userID, profile)
		},
		Alternative: func(ctx context.Context, alt entity.ProviderID) ([]entity.RawOffer, error) {
			return s.call(ctx, alt, userID, profile)
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve failed")
		s.logger.Error("provider resolution failed",
			slog.String("provider", string(id)),
			slog.Any("error", err))
		return fallback.Result{Provider: id, Offers: []entity.RawOffer{}, Level: fallback.LevelDegraded, Degraded: true}
	}

	span.SetAttributes(
		attribute.String("fallback.level", string(res.Level)),
		attribute.Bool("fallback.degraded", res.Degraded),
		attribute.Int("offer.count", len(res.Offers)))
	return res
}

func (s *Service) call(ctx context.Context, id entity.ProviderID, userID string, profile entity.DemographicProfile) ([]entity.RawOffer, error) {
	client, ok := s.clients[id]
	if !ok {
		return nil, fmt.Errorf("%w: no client for %s", entity.ErrUnknownProvider, id)
	}
	start := s.now()
	offers, err := client.Fetch(ctx, userID, profile)
	result := "success"
	if err != nil {
		result = "failure"
	}
	metrics.RecordProviderCall(string(id), result, s.now().Sub(start))
	return offers, err
}
