package notify

import "errors"

// Sentinel errors for alert dispatching.
var (
	// ErrChannelDisabled indicates that Send() was called on a disabled channel.
	ErrChannelDisabled = errors.New("channel is disabled")

	// ErrInvalidAlert indicates an alert without a provider or target state.
	ErrInvalidAlert = errors.New("invalid alert data")

	// ErrAlertDropped indicates that an alert was dropped because no worker
	// slot became free in time.
	ErrAlertDropped = errors.New("alert dropped due to pool saturation")
)
