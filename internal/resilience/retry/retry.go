// Package retry runs an operation with bounded exponential backoff and jitter.
// It knows nothing about circuit breakers; callers check admission before
// entering the loop.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"time"

	"survey-offers/internal/domain/entity"
	"survey-offers/internal/observability/metrics"
)

// Policy holds the configuration for retry logic.
type Policy struct {
	// Name labels log lines and metrics
	Name string `yaml:"-"`

	// MaxRetries is the number of retries after the first attempt
	MaxRetries int `yaml:"max_retries"`

	// BaseDelay is the delay before the first retry
	BaseDelay time.Duration `yaml:"base_delay"`

	// MaxDelay caps every delay, jitter included
	MaxDelay time.Duration `yaml:"max_delay"`

	// BackoffMultiplier is the growth factor between retries
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`

	// JitterMax is the upper bound of the uniform random jitter added to each delay
	JitterMax time.Duration `yaml:"jitter_max"`
}

// DefaultPolicy returns a default retry policy.
func DefaultPolicy() Policy {
	return Policy{
		Name:              "default",
		MaxRetries:        3,
		BaseDelay:         1 * time.Second,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2.0,
		JitterMax:         500 * time.Millisecond,
	}
}

// ProviderPolicy returns the policy for survey provider calls.
// Retries are short so a failing provider does not hold up an aggregation.
func ProviderPolicy() Policy {
	return Policy{
		Name:              "provider",
		MaxRetries:        2,
		BaseDelay:         200 * time.Millisecond,
		MaxDelay:          2 * time.Second,
		BackoffMultiplier: 2.0,
		JitterMax:         100 * time.Millisecond,
	}
}

// DBPolicy returns the policy for profile store operations.
func DBPolicy() Policy {
	return Policy{
		Name:              "database",
		MaxRetries:        2,
		BaseDelay:         100 * time.Millisecond,
		MaxDelay:          1 * time.Second,
		BackoffMultiplier: 2.0,
		JitterMax:         50 * time.Millisecond,
	}
}

// Validate reports policies the executor cannot run.
func (p Policy) Validate() error {
	switch {
	case p.MaxRetries < 0:
		return fmt.Errorf("%w: max retries must not be negative", entity.ErrInvalidConfig)
	case p.BaseDelay < 0 || p.JitterMax < 0:
		return fmt.Errorf("%w: delays must not be negative", entity.ErrInvalidConfig)
	case p.MaxDelay < p.BaseDelay:
		return fmt.Errorf("%w: max delay must be at least base delay", entity.ErrInvalidConfig)
	case p.BackoffMultiplier < 1:
		return fmt.Errorf("%w: backoff multiplier must be at least 1", entity.ErrInvalidConfig)
	}
	return nil
}

// Delay returns the wait before retry number attempt+1:
// min(BaseDelay * BackoffMultiplier^attempt + jitter, MaxDelay).
func Delay(p Policy, attempt int, jitter time.Duration) time.Duration {
	backoff := float64(p.BaseDelay) * math.Pow(p.BackoffMultiplier, float64(attempt))
	total := backoff + float64(jitter)
	if total >= float64(p.MaxDelay) || math.IsInf(total, 1) || math.IsNaN(total) {
		return p.MaxDelay
	}
	return time.Duration(total)
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// JitterSource returns a value in [0, max].
type JitterSource func(max time.Duration) time.Duration

func contextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func uniformJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	// #nosec G404 -- Using math/rand is acceptable for jitter calculation.
	// Cryptographic randomness is not required for retry backoff jitter.
	return time.Duration(rand.Int63n(int64(max) + 1))
}

// Executor runs operations under a Policy.
type Executor struct {
	sleep  Sleeper
	jitter JitterSource
}

// Option configures an Executor.
type Option func(*Executor)

// WithSleeper replaces the wall-clock sleep.
func WithSleeper(s Sleeper) Option {
	return func(e *Executor) { e.sleep = s }
}

// WithJitter replaces the random jitter source.
func WithJitter(j JitterSource) Option {
	return func(e *Executor) { e.jitter = j }
}

// NewExecutor creates an executor that sleeps on the wall clock with uniform jitter.
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{sleep: contextSleep, jitter: uniformJitter}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Do runs op until it succeeds, returns a non-retryable error, the caller's
// context ends, or MaxRetries retries have failed. Attempts are numbered
// from 0 and passed to op.
func (e *Executor) Do(ctx context.Context, p Policy, op func(ctx context.Context, attempt int) error) error {
	if err := p.Validate(); err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = op(ctx, attempt)
		if lastErr == nil {
			if attempt > 0 {
				slog.Debug("operation succeeded after retry",
					slog.String("operation", p.Name),
					slog.Int("attempt", attempt))
			}
			return nil
		}

		if ctx.Err() != nil {
			return fmt.Errorf("retry aborted: %w", errors.Join(ctx.Err(), lastErr))
		}
		if !IsRetryable(lastErr) {
			return lastErr
		}
		if attempt >= p.MaxRetries {
			break
		}

		delay := Delay(p, attempt, e.jitter(p.JitterMax))
		slog.Debug("operation failed, retrying",
			slog.String("operation", p.Name),
			slog.Int("attempt", attempt),
			slog.Int("max_retries", p.MaxRetries),
			slog.Duration("delay", delay),
			slog.Any("error", lastErr))
		metrics.RecordRetry(p.Name)

		if err := e.sleep(ctx, delay); err != nil {
			return fmt.Errorf("retry aborted: %w", errors.Join(err, lastErr))
		}
	}

	return fmt.Errorf("max retries (%d) exhausted: %w", p.MaxRetries, lastErr)
}

// Execute is Do for operations that produce a value.
func Execute[T any](ctx context.Context, e *Executor, p Policy, op func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var result T
	err := e.Do(ctx, p, func(ctx context.Context, attempt int) error {
		v, err := op(ctx, attempt)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}

// IsRetryable reports whether err is worth another attempt. Structural
// errors, caller cancellation and client errors other than 408 and 429 are
// final. Everything else, including per-attempt timeouts and malformed
// responses, is transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if entity.IsStructural(err) || errors.Is(err, context.Canceled) {
		return false
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == http.StatusRequestTimeout,
			httpErr.StatusCode == http.StatusTooManyRequests:
			return true
		case httpErr.StatusCode >= 400 && httpErr.StatusCode < 500:
			return false
		}
	}
	return true
}

// HTTPError represents an HTTP error with status code.
type HTTPError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}
