// Package match scores survey offers against a user's demographic profile
// with an additive point model and ranks them. Scoring is pure: the only
// input besides the profile and offer is the clock used to derive age.
package match

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"survey-offers/internal/domain/entity"
	"survey-offers/internal/observability/metrics"
)

const (
	baseScore      = 50
	baseCompletion = 0.40

	countryScore      = 10
	countryCompletion = 0.05

	lengthMatchScore      = 10
	lengthMatchCompletion = 0.10
	lengthMismatchPenalty = 5

	interestScore = 3

	minScore, maxScore           = 0, 100
	minCompletion, maxCompletion = 0.10, 0.95
)

// Engine scores offers.
type Engine struct {
	profiles map[entity.ProviderID]ProviderProfile
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithProfiles replaces the provider profiles.
func WithProfiles(p map[entity.ProviderID]ProviderProfile) Option {
	return func(e *Engine) { e.profiles = p }
}

// WithClock sets the clock used to derive age from a birthday.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an Engine with DefaultProfiles and the system clock.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{profiles: DefaultProfiles(), now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Score computes the match of offer for profile.
func (e *Engine) Score(profile entity.DemographicProfile, offer entity.RawOffer) entity.MatchResult {
	score := baseScore
	completion := baseCompletion
	var reasons []string

	pp, known := e.profiles[offer.Provider]

	if age, ok := profile.AgeAt(e.now()); ok && known && age >= pp.AgeMin && age <= pp.AgeMax {
		score += pp.AgeScore
		completion += pp.AgeCompletion
		reasons = append(reasons, fmt.Sprintf("Age fits %s audience", offer.Provider))
	}

	if gender := strings.ToLower(strings.TrimSpace(profile.Gender)); gender != "" && known {
		if pp.PreferredGender != "" && gender == pp.PreferredGender {
			score += pp.PreferredBonus
			reasons = append(reasons, "Strong demographic fit")
		} else {
			score += pp.GenderBonus
		}
	}

	if country := profile.Country(); country != "" {
		if highValueCountries[country] {
			score += countryScore
			completion += countryCompletion
			reasons = append(reasons, "High-value market")
		}
		if known && contains(pp.SupportedCountries, country) {
			score += pp.CountryBonus
			reasons = append(reasons, fmt.Sprintf("Supported by %s in %s", offer.Provider, country))
		}
	}

	if pref := profile.PreferredSurveyLength; pref != "" {
		band := entity.LengthBandFor(offer.EstimatedMinutes)
		switch {
		case band == pref:
			score += lengthMatchScore
			completion += lengthMatchCompletion
			reasons = append(reasons, fmt.Sprintf("Matches preferred %s length", pref))
		case pref == entity.LengthShort || pref == entity.LengthMedium:
			score -= lengthMismatchPenalty
		}
	}

	if known {
		if n := interestMatches(profile.Interests, pp.InterestTags); n > 0 {
			score += n * interestScore
			reasons = append(reasons, fmt.Sprintf("%d matching interest(s)", n))
		}
		score += pp.Performance.Score
		completion += pp.Performance.CompletionRateBonus
		reasons = append(reasons, pp.Performance.Reasons...)
	}

	score = min(max(score, minScore), maxScore)
	completion = min(max(completion, minCompletion), maxCompletion)

	if reasons == nil {
		reasons = []string{}
	}
	return entity.MatchResult{
		Offer:                   offer,
		Score:                   score,
		Reasons:                 reasons,
		EstimatedCompletionRate: math.Round(completion*100) / 100,
	}
}

// Rank scores every offer and returns the best limit results, highest score
// first. Ties go to the provider with the larger performance score, then
// keep input order. limit <= 0 returns all.
func (e *Engine) Rank(profile entity.DemographicProfile, offers []entity.RawOffer, limit int) []entity.MatchResult {
	results := make([]entity.MatchResult, len(offers))
	for i, o := range offers {
		results[i] = e.Score(profile, o)
		metrics.RecordMatchScore(results[i].Score)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return e.performance(results[i].Offer.Provider) > e.performance(results[j].Offer.Provider)
	})

	if limit > 0 && limit < len(results) {
		results = results[:limit]
	}
	return results
}

func (e *Engine) performance(id entity.ProviderID) int {
	return e.profiles[id].Performance.Score
}

// interestMatches counts profile interests that are a substring of, or
// contain, one of the provider's tags. Matching is case-insensitive.
func interestMatches(interests, tags []string) int {
	n := 0
	for _, raw := range interests {
		interest := strings.ToLower(strings.TrimSpace(raw))
		if interest == "" {
			continue
		}
		for _, tag := range tags {
			tag = strings.ToLower(tag)
			if strings.Contains(tag, interest) || strings.Contains(interest, tag) {
				n++
				break
			}
		}
	}
	return n
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
