// Package respond writes JSON responses and maps errors to status codes
// without leaking internal details.
package respond

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"survey-offers/internal/domain/entity"
)

// JSON writes a JSON response with the given status code and data.
func JSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			// headers are already sent
			slog.Default().Error("failed to encode JSON response",
				slog.Int("status_code", code),
				slog.Any("error", err))
		}
	}
}

// Error writes a JSON error response with the given status code and error message.
func Error(w http.ResponseWriter, code int, err error) {
	JSON(w, code, map[string]string{"error": err.Error()})
}

// safeFragments mark messages that are fine to show to clients.
var safeFragments = []string{
	"required",
	"invalid",
	"not found",
	"unknown provider",
	"must be",
	"cannot be",
	"out of range",
	"unauthorized",
	"forbidden",
	"rate limit",
	"too large",
	"too long",
}

// SafeError returns err's message for client errors that look safe, and a
// generic message otherwise. 5xx errors are always generic and logged.
func SafeError(w http.ResponseWriter, code int, err error) {
	if err == nil {
		return
	}

	msg := err.Error()
	isSafe := false
	if code < 500 {
		lower := strings.ToLower(msg)
		for _, safe := range safeFragments {
			if strings.Contains(lower, safe) {
				isSafe = true
				break
			}
		}
	}

	if isSafe {
		JSON(w, code, map[string]string{"error": msg})
		return
	}
	slog.Default().Error("request failed",
		slog.String("status", http.StatusText(code)),
		slog.Int("code", code),
		slog.Any("error", SanitizeError(err)))
	JSON(w, code, map[string]string{"error": http.StatusText(code)})
}

// StatusFor maps domain errors onto HTTP status codes.
func StatusFor(err error) int {
	var ve *entity.ValidationError
	var mbe *http.MaxBytesError
	switch {
	case errors.As(err, &ve), errors.Is(err, entity.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.As(err, &mbe):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, entity.ErrUnknownProvider), errors.Is(err, entity.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, entity.ErrInvalidConfig):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// FromError writes err with the status StatusFor picks.
func FromError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	code := StatusFor(err)
	if code == http.StatusRequestEntityTooLarge {
		JSON(w, code, map[string]string{"error": "request body too large"})
		return
	}
	SafeError(w, code, err)
}
