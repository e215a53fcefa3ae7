package entity

// MatchResult is the score of one offer for one profile. It is computed
// per request and never persisted.
type MatchResult struct {
	Offer                   RawOffer `json:"offer"`
	Score                   int      `json:"score"`
	Reasons                 []string `json:"reasons"`
	EstimatedCompletionRate float64  `json:"estimated_completion_rate"`
}
