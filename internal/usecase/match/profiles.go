package match

import "survey-offers/internal/domain/entity"

// Performance is a provider's fixed baseline bonus, applied to every offer.
type Performance struct {
	Score               int
	CompletionRateBonus float64
	Reasons             []string
}

// ProviderProfile describes which users a provider serves best.
type ProviderProfile struct {
	// AgeMin and AgeMax bound the preferred age range, inclusive.
	AgeMin, AgeMax  int
	AgeScore        int
	AgeCompletion   float64
	GenderBonus     int
	PreferredGender string // empty when the provider has no declared fit
	PreferredBonus  int
	// SupportedCountries earn CountryBonus on top of the high-value tier.
	SupportedCountries []string
	CountryBonus       int
	InterestTags       []string
	Performance        Performance
}

// highValueCountries earn the country-tier bonus for every provider.
var highValueCountries = map[string]bool{
	"US": true, "GB": true, "CA": true, "AU": true, "DE": true,
}

// DefaultProfiles returns the built-in provider profiles.
func DefaultProfiles() map[entity.ProviderID]ProviderProfile {
	return map[entity.ProviderID]ProviderProfile{
		entity.ProviderCPX: {
			AgeMin: 18, AgeMax: 34, AgeScore: 8, AgeCompletion: 0.05,
			GenderBonus: 2, PreferredGender: "female", PreferredBonus: 5,
			SupportedCountries: []string{"US", "GB", "DE", "FR", "CA"},
			CountryBonus:       5,
			InterestTags:       []string{"shopping", "lifestyle", "entertainment", "technology"},
			Performance: Performance{
				Score: 5, CompletionRateBonus: 0.05,
				Reasons: []string{"High payout rates", "Fast reward crediting"},
			},
		},
		entity.ProviderBitLabs: {
			AgeMin: 25, AgeMax: 44, AgeScore: 6, AgeCompletion: 0.04,
			GenderBonus:        2,
			SupportedCountries: []string{"US", "CA", "AU", "GB"},
			CountryBonus:       4,
			InterestTags:       []string{"gaming", "technology", "finance", "health"},
			Performance: Performance{
				Score: 4, CompletionRateBonus: 0.04,
				Reasons: []string{"Reliable survey availability"},
			},
		},
		entity.ProviderTheoremReach: {
			AgeMin: 18, AgeMax: 54, AgeScore: 5, AgeCompletion: 0.03,
			GenderBonus: 3, PreferredGender: "male", PreferredBonus: 4,
			SupportedCountries: []string{"US", "GB", "CA", "AU", "NZ", "IE"},
			CountryBonus:       3,
			InterestTags:       []string{"automotive", "travel", "sports", "finance"},
			Performance: Performance{
				Score: 3, CompletionRateBonus: 0.06,
				Reasons: []string{"Low disqualification rate"},
			},
		},
		entity.ProviderPollfish: {
			AgeMin: 16, AgeMax: 65, AgeScore: 4, AgeCompletion: 0.02,
			GenderBonus:  2,
			InterestTags: []string{"food", "entertainment", "education", "politics"},
			Performance: Performance{
				Score: 2, CompletionRateBonus: 0.03,
				Reasons: []string{"Short mobile-friendly surveys"},
			},
		},
	}
}
