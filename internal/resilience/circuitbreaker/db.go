// Breaker for the profile database. While it is open, offer requests fall
// back to a bare profile.

package circuitbreaker

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// DBCircuitBreaker wraps the profile database with circuit breaker protection.
// When the database is down, profile lookups fail fast instead of stacking up
// behind connection timeouts.
type DBCircuitBreaker struct {
	cb *CircuitBreaker
	db *sql.DB
}

// ProfileStoreConfig returns configuration for the user profile database.
// Opens after 5 consecutive failures, 30 second timeout. Missing rows are not failures.
func ProfileStoreConfig() Config {
	return Config{
		Name:             "profile-store",
		MaxRequests:      3, // trial lookups admitted while half-open
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 1.0, // open only when every call in the window failed
		MinRequests:      5,
		IgnoreErrors:     []error{sql.ErrNoRows}, // unknown user
	}
}

// NewDBCircuitBreaker wraps db using ProfileStoreConfig.
func NewDBCircuitBreaker(db *sql.DB) *DBCircuitBreaker {
	return NewDBCircuitBreakerWithConfig(db, ProfileStoreConfig())
}

// NewDBCircuitBreakerWithConfig wraps db using cfg.
func NewDBCircuitBreakerWithConfig(db *sql.DB, cfg Config) *DBCircuitBreaker {
	return &DBCircuitBreaker{
		cb: New(cfg),
		db: db,
	}
}

// QueryContext executes a query with circuit breaker protection.
func (dcb *DBCircuitBreaker) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	result, err := dcb.cb.Execute(func() (interface{}, error) {
		return dcb.db.QueryContext(ctx, query, args...)
	})
	if err != nil {
		return nil, err
	}
	return result.(*sql.Rows), nil
}

// ExecContext executes a statement with circuit breaker protection.
func (dcb *DBCircuitBreaker) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	result, err := dcb.cb.Execute(func() (interface{}, error) {
		return dcb.db.ExecContext(ctx, query, args...)
	})
	if err != nil {
		return nil, err
	}
	return result.(sql.Result), nil
}

// QueryRowScan runs a single-row query and scans it into dest inside the
// breaker, so scan errors count toward tripping. sql.ErrNoRows is returned
// unchanged and does not count as a failure.
func (dcb *DBCircuitBreaker) QueryRowScan(ctx context.Context, dest []interface{}, query string, args ...interface{}) error {
	return dcb.cb.Run(func() error {
		return dcb.db.QueryRowContext(ctx, query, args...).Scan(dest...)
	})
}

// PingContext verifies the connection through the breaker.
func (dcb *DBCircuitBreaker) PingContext(ctx context.Context) error {
	return dcb.cb.Run(func() error {
		return dcb.db.PingContext(ctx)
	})
}

// State returns the current state of the circuit breaker.
func (dcb *DBCircuitBreaker) State() gobreaker.State {
	return dcb.cb.State()
}

// IsOpen returns true if the circuit breaker is in the open state.
func (dcb *DBCircuitBreaker) IsOpen() bool {
	return dcb.cb.IsOpen()
}

// DB returns the underlying database connection.
func (dcb *DBCircuitBreaker) DB() *sql.DB {
	return dcb.db
}

// IsNoRows reports whether err is the missing-row sentinel.
func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
