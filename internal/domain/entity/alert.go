package entity

import "time"

// CircuitAlert describes a provider circuit transition worth telling an operator about.
type CircuitAlert struct {
	Provider     ProviderID
	From         string
	To           string
	FailureCount int64
	TotalCalls   int64
	OccurredAt   time.Time
}
