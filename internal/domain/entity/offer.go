package entity

import "strings"

// RawOffer is a provider-native survey offer reduced to the fields the
// engine works with. Everything else in the provider payload is opaque.
type RawOffer struct {
	ID               string     `json:"id"`
	Provider         ProviderID `json:"provider"`
	RewardUnits      int        `json:"reward_units"`
	EstimatedMinutes int        `json:"estimated_minutes"`
	Category         string     `json:"category"`
	URL              string     `json:"url,omitempty"`
}

// InCategory reports whether the offer belongs to category (case-insensitive).
func (o RawOffer) InCategory(category string) bool {
	return strings.EqualFold(strings.TrimSpace(o.Category), strings.TrimSpace(category))
}

// FilterByProvider returns the offers that came from provider.
func FilterByProvider(offers []RawOffer, provider ProviderID) []RawOffer {
	out := make([]RawOffer, 0, len(offers))
	for _, o := range offers {
		if o.Provider == provider {
			out = append(out, o)
		}
	}
	return out
}

// FilterByCategory returns the offers in category.
func FilterByCategory(offers []RawOffer, category string) []RawOffer {
	out := make([]RawOffer, 0, len(offers))
	for _, o := range offers {
		if o.InCategory(category) {
			out = append(out, o)
		}
	}
	return out
}
