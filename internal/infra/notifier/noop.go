package notifier

import (
	"context"

	"survey-offers/internal/domain/entity"
)

// NoOpNotifier drops every alert. It stands in for disabled channels.
type NoOpNotifier struct{}

// NewNoOpNotifier creates a new NoOpNotifier instance.
func NewNoOpNotifier() *NoOpNotifier {
	return &NoOpNotifier{}
}

// NotifyAlert returns nil immediately.
func (n *NoOpNotifier) NotifyAlert(context.Context, entity.CircuitAlert) error {
	return nil
}
