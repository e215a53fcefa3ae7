// Package notifier delivers circuit alerts to operator chat tools through
// incoming webhooks. Each webhook is rate limited, retried on transient
// failures and guarded by its own breaker.
package notifier

import (
	"context"
	"fmt"
	"strings"

	"survey-offers/internal/domain/entity"
)

// Notifier sends a single alert.
// Implementations handle rate limiting, retries, and error logging internally.
type Notifier interface {
	NotifyAlert(ctx context.Context, alert entity.CircuitAlert) error
}

// alertHeadline is the one-line summary shared by every webhook format.
func alertHeadline(a entity.CircuitAlert) string {
	switch a.To {
	case "open":
		return fmt.Sprintf("Provider %s is failing: circuit opened", a.Provider)
	case "closed":
		return fmt.Sprintf("Provider %s recovered: circuit closed", a.Provider)
	default:
		return fmt.Sprintf("Provider %s circuit is %s", a.Provider, a.To)
	}
}

func alertDetails(a entity.CircuitAlert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Transition: %s -> %s\n", a.From, a.To)
	fmt.Fprintf(&b, "Failures: %d of %d calls", a.FailureCount, a.TotalCalls)
	return b.String()
}
