package entity

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain layer operations.
var (
	// ErrNotFound indicates that a requested entity was not found
	ErrNotFound = errors.New("entity not found")

	// ErrInvalidInput indicates that the provided input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrStructural marks failures that retrying cannot fix: unknown provider
	// ids, broken configuration, programming errors. They fail fast.
	ErrStructural = errors.New("structural error")

	// ErrUnknownProvider indicates a provider id that is not registered.
	ErrUnknownProvider = fmt.Errorf("%w: unknown provider", ErrStructural)

	// ErrInvalidConfig indicates a provider or breaker configuration that cannot be used.
	ErrInvalidConfig = fmt.Errorf("%w: invalid configuration", ErrStructural)
)

// ValidationError represents a validation error with detailed field information.
// It implements the error interface and provides context about which field failed validation.
type ValidationError struct {
	Field   string
	Message string
}

// Error returns a formatted error message for the validation error.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// Unwrap lets errors.Is(err, ErrInvalidInput) match validation failures.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// IsStructural reports whether err should bypass retries and fallbacks.
func IsStructural(err error) bool {
	return errors.Is(err, ErrStructural)
}
