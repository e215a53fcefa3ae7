// Package logging builds the service's slog loggers and carries request
// scoped loggers through contexts.
//
//	logger := logging.NewLogger()
//	slog.SetDefault(logger)
//
//	// inside a request
//	logging.FromContext(ctx).Warn("provider call failed", slog.String("provider", "cpx"))
package logging
