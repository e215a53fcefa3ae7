package circuitbreaker

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"survey-offers/internal/domain/entity"
	"survey-offers/internal/observability/metrics"
)

// State is the state of a provider breaker.
type State int

const (
	// StateClosed admits every call. This is the initial state.
	StateClosed State = iota

	// StateHalfOpen admits a single trial call to test recovery.
	StateHalfOpen

	// StateOpen rejects calls until the reset timeout has elapsed since the last failure.
	StateOpen
)

// String returns a string representation of the circuit state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Clock provides the current time. Tests replace it to step through timeouts.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// ProviderConfig configures the breaker for one provider.
type ProviderConfig struct {
	// FailureThresholdPercent trips the breaker once failures/total reaches it. (0,100]
	FailureThresholdPercent float64 `json:"failure_threshold_percent" yaml:"failure_threshold_percent"`

	// CallTimeout bounds a single call to the provider.
	CallTimeout time.Duration `json:"call_timeout" yaml:"call_timeout"`

	// ResetTimeout is how long the breaker stays open after the last failure.
	ResetTimeout time.Duration `json:"reset_timeout" yaml:"reset_timeout"`

	// MinimumCalls is the number of recorded calls before the failure ratio is evaluated.
	MinimumCalls int64 `json:"minimum_calls" yaml:"minimum_calls"`
}

// DefaultProviderConfig returns the configuration used when none is supplied.
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		FailureThresholdPercent: 50,
		CallTimeout:             10 * time.Second,
		ResetTimeout:            60 * time.Second,
		MinimumCalls:            5,
	}
}

// Validate reports configuration that cannot drive a breaker.
func (c ProviderConfig) Validate() error {
	if c.FailureThresholdPercent <= 0 || c.FailureThresholdPercent > 100 {
		return fmt.Errorf("%w: failure threshold %.2f must be in (0, 100]", entity.ErrInvalidConfig, c.FailureThresholdPercent)
	}
	if c.CallTimeout <= 0 {
		return fmt.Errorf("%w: call timeout must be positive", entity.ErrInvalidConfig)
	}
	if c.ResetTimeout <= 0 {
		return fmt.Errorf("%w: reset timeout must be positive", entity.ErrInvalidConfig)
	}
	if c.MinimumCalls < 1 {
		return fmt.Errorf("%w: minimum calls must be at least 1", entity.ErrInvalidConfig)
	}
	return nil
}

// PartialConfig carries an administrative override. Nil fields keep their current value.
type PartialConfig struct {
	FailureThresholdPercent *float64       `json:"failure_threshold_percent,omitempty"`
	CallTimeout             *time.Duration `json:"call_timeout,omitempty"`
	ResetTimeout            *time.Duration `json:"reset_timeout,omitempty"`
	MinimumCalls            *int64         `json:"minimum_calls,omitempty"`
}

// Apply returns c with the non-nil fields of p applied.
func (c ProviderConfig) Apply(p PartialConfig) ProviderConfig {
	if p.FailureThresholdPercent != nil {
		c.FailureThresholdPercent = *p.FailureThresholdPercent
	}
	if p.CallTimeout != nil {
		c.CallTimeout = *p.CallTimeout
	}
	if p.ResetTimeout != nil {
		c.ResetTimeout = *p.ResetTimeout
	}
	if p.MinimumCalls != nil {
		c.MinimumCalls = *p.MinimumCalls
	}
	return c
}

// Metrics is a point-in-time copy of a provider's counters.
// TotalCalls == SuccessCount + FailureCount always holds.
type Metrics struct {
	TotalCalls          int64         `json:"total_calls"`
	SuccessCount        int64         `json:"success_count"`
	FailureCount        int64         `json:"failure_count"`
	AverageResponseTime time.Duration `json:"average_response_time"`
	LastFailure         time.Time     `json:"last_failure,omitzero"`
	State               State         `json:"circuit_state"`
}

// Transition describes a state change reported to listeners.
type Transition struct {
	Provider entity.ProviderID
	From     State
	To       State
	Metrics  Metrics
	At       time.Time
}

// Listener is notified of state changes. Listeners run synchronously on the
// goroutine that caused the change, after the provider lock is released.
type Listener func(Transition)

type providerBreaker struct {
	mu          sync.Mutex
	cfg         ProviderConfig
	state       State
	total       int64
	success     int64
	failure     int64
	avgLatency  float64 // nanoseconds
	lastFailure time.Time

	trialInFlight bool
	trialAdmitted time.Time
}

func (b *providerBreaker) snapshot() Metrics {
	return Metrics{
		TotalCalls:          b.total,
		SuccessCount:        b.success,
		FailureCount:        b.failure,
		AverageResponseTime: time.Duration(b.avgLatency),
		LastFailure:         b.lastFailure,
		State:               b.state,
	}
}

func (b *providerBreaker) shouldTrip() bool {
	if b.total < b.cfg.MinimumCalls {
		return false
	}
	return float64(b.failure)/float64(b.total) >= b.cfg.FailureThresholdPercent/100
}

// Registry holds one breaker per provider. The provider set is fixed at
// construction; each provider's counters are serialized by their own lock.
type Registry struct {
	breakers map[entity.ProviderID]*providerBreaker
	order    []entity.ProviderID
	clock    Clock

	lmu       sync.RWMutex
	listeners []Listener
}

// NewRegistry creates a breaker for every provider in configs.
// A nil clock falls back to SystemClock.
func NewRegistry(configs map[entity.ProviderID]ProviderConfig, clock Clock) (*Registry, error) {
	if len(configs) == 0 {
		return nil, fmt.Errorf("%w: no providers configured", entity.ErrInvalidConfig)
	}
	if clock == nil {
		clock = SystemClock{}
	}

	r := &Registry{
		breakers: make(map[entity.ProviderID]*providerBreaker, len(configs)),
		clock:    clock,
	}
	for id, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("provider %s: %w", id, err)
		}
		r.breakers[id] = &providerBreaker{cfg: cfg, state: StateClosed}
		r.order = append(r.order, id)
	}
	entity.SortProviders(r.order)

	for _, id := range r.order {
		metrics.SetCircuitState(string(id), StateClosed.String())
	}
	return r, nil
}

// Providers returns the registered providers in a stable order.
func (r *Registry) Providers() []entity.ProviderID {
	out := make([]entity.ProviderID, len(r.order))
	copy(out, r.order)
	return out
}

// OnStateChange registers l for every future transition.
func (r *Registry) OnStateChange(l Listener) {
	r.lmu.Lock()
	r.listeners = append(r.listeners, l)
	r.lmu.Unlock()
}

func (r *Registry) get(id entity.ProviderID) (*providerBreaker, error) {
	b, ok := r.breakers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", entity.ErrUnknownProvider, id)
	}
	return b, nil
}

// AllowCall reports whether a call to id may proceed.
//
// Closed admits everything. Open rejects until ResetTimeout has elapsed since
// the last failure; the first call after that moves the breaker to HalfOpen
// and is the single trial. While the trial is outstanding further calls are
// rejected. A trial that has not reported back within ResetTimeout is treated
// as lost and another one is admitted.
func (r *Registry) AllowCall(id entity.ProviderID) (bool, error) {
	b, err := r.get(id)
	if err != nil {
		return false, err
	}
	now := r.clock.Now()

	b.mu.Lock()
	var tr *Transition
	allowed := false
	switch b.state {
	case StateClosed:
		allowed = true
	case StateOpen:
		if now.Sub(b.lastFailure) >= b.cfg.ResetTimeout {
			tr = b.transition(id, StateHalfOpen, now)
			b.trialInFlight = true
			b.trialAdmitted = now
			allowed = true
		}
	case StateHalfOpen:
		if !b.trialInFlight || now.Sub(b.trialAdmitted) >= b.cfg.ResetTimeout {
			b.trialInFlight = true
			b.trialAdmitted = now
			allowed = true
		}
	}
	b.mu.Unlock()

	r.notify(tr)
	if !allowed {
		metrics.RecordProviderCall(string(id), "rejected", 0)
	}
	return allowed, nil
}

// RecordSuccess records a successful call that took latency.
// A successful trial closes a half-open breaker.
func (r *Registry) RecordSuccess(id entity.ProviderID, latency time.Duration) error {
	b, err := r.get(id)
	if err != nil {
		return err
	}
	now := r.clock.Now()

	b.mu.Lock()
	b.total++
	b.success++
	n := float64(b.total)
	b.avgLatency = (b.avgLatency*(n-1) + float64(latency)) / n

	var tr *Transition
	if b.state == StateHalfOpen {
		b.trialInFlight = false
		tr = b.transition(id, StateClosed, now)
	}
	b.mu.Unlock()

	r.notify(tr)
	return nil
}

// RecordFailure records a failed call. It opens a closed breaker once the
// failure ratio crosses the threshold, and re-opens a half-open one.
func (r *Registry) RecordFailure(id entity.ProviderID) error {
	b, err := r.get(id)
	if err != nil {
		return err
	}
	now := r.clock.Now()

	b.mu.Lock()
	b.total++
	b.failure++
	b.lastFailure = now

	var tr *Transition
	switch b.state {
	case StateClosed:
		if b.shouldTrip() {
			tr = b.transition(id, StateOpen, now)
		}
	case StateHalfOpen:
		b.trialInFlight = false
		tr = b.transition(id, StateOpen, now)
	}
	b.mu.Unlock()

	r.notify(tr)
	return nil
}

// ReleaseTrial gives back a half-open trial whose call produced no verdict
// about the provider, such as a cancelled request or a structural error. No
// outcome is counted and the next AllowCall admits a new trial.
func (r *Registry) ReleaseTrial(id entity.ProviderID) error {
	b, err := r.get(id)
	if err != nil {
		return err
	}
	b.mu.Lock()
	if b.state == StateHalfOpen {
		b.trialInFlight = false
	}
	b.mu.Unlock()
	return nil
}

// RecordProbeSuccess forgets one recorded failure, if any. The state is not
// changed: recovery from Open still goes through a half-open trial.
func (r *Registry) RecordProbeSuccess(id entity.ProviderID) error {
	b, err := r.get(id)
	if err != nil {
		return err
	}
	b.mu.Lock()
	if b.failure > 0 {
		b.failure--
		b.total--
	}
	b.mu.Unlock()
	return nil
}

// State returns the current state of id.
func (r *Registry) State(id entity.ProviderID) (State, error) {
	b, err := r.get(id)
	if err != nil {
		return StateClosed, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state, nil
}

// Metrics returns a copy of id's counters.
func (r *Registry) Metrics(id entity.ProviderID) (Metrics, error) {
	b, err := r.get(id)
	if err != nil {
		return Metrics{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshot(), nil
}

// Snapshot returns the counters of every provider.
func (r *Registry) Snapshot() map[entity.ProviderID]Metrics {
	out := make(map[entity.ProviderID]Metrics, len(r.breakers))
	for id, b := range r.breakers {
		b.mu.Lock()
		out[id] = b.snapshot()
		b.mu.Unlock()
	}
	return out
}

// Config returns the current configuration of id.
func (r *Registry) Config(id entity.ProviderID) (ProviderConfig, error) {
	b, err := r.get(id)
	if err != nil {
		return ProviderConfig{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cfg, nil
}

// RetryAfter reports how long id will keep rejecting calls. It is the
// remaining open time for an open breaker and zero otherwise.
func (r *Registry) RetryAfter(id entity.ProviderID) (time.Duration, error) {
	b, err := r.get(id)
	if err != nil {
		return 0, err
	}
	now := r.clock.Now()
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateOpen {
		return 0, nil
	}
	remaining := b.cfg.ResetTimeout - now.Sub(b.lastFailure)
	if remaining < 0 {
		return 0, nil
	}
	return remaining, nil
}

// Reset closes id's breaker and clears its counters.
func (r *Registry) Reset(id entity.ProviderID) error {
	b, err := r.get(id)
	if err != nil {
		return err
	}
	now := r.clock.Now()

	b.mu.Lock()
	b.total, b.success, b.failure = 0, 0, 0
	b.avgLatency = 0
	b.lastFailure = time.Time{}
	b.trialInFlight = false
	var tr *Transition
	if b.state != StateClosed {
		tr = b.transition(id, StateClosed, now)
	}
	b.mu.Unlock()

	r.notify(tr)
	slog.Info("circuit breaker reset", slog.String("provider", string(id)))
	return nil
}

// Configure applies p to id's configuration. The merged configuration is
// validated first; on error nothing changes. State and counters are kept.
func (r *Registry) Configure(id entity.ProviderID, p PartialConfig) (ProviderConfig, error) {
	b, err := r.get(id)
	if err != nil {
		return ProviderConfig{}, err
	}

	b.mu.Lock()
	next := b.cfg.Apply(p)
	if err := next.Validate(); err != nil {
		b.mu.Unlock()
		return ProviderConfig{}, err
	}
	b.cfg = next
	b.mu.Unlock()

	slog.Info("circuit breaker reconfigured",
		slog.String("provider", string(id)),
		slog.Float64("failure_threshold_percent", next.FailureThresholdPercent),
		slog.Duration("call_timeout", next.CallTimeout),
		slog.Duration("reset_timeout", next.ResetTimeout),
		slog.Int64("minimum_calls", next.MinimumCalls))
	return next, nil
}

// transition must be called with b.mu held.
func (b *providerBreaker) transition(id entity.ProviderID, to State, now time.Time) *Transition {
	from := b.state
	b.state = to
	return &Transition{Provider: id, From: from, To: to, Metrics: b.snapshot(), At: now}
}

func (r *Registry) notify(tr *Transition) {
	if tr == nil {
		return
	}
	slog.Warn("provider circuit state changed",
		slog.String("provider", string(tr.Provider)),
		slog.String("from", tr.From.String()),
		slog.String("to", tr.To.String()),
		slog.Int64("failures", tr.Metrics.FailureCount),
		slog.Int64("total", tr.Metrics.TotalCalls))
	metrics.RecordCircuitTransition(string(tr.Provider), tr.From.String(), tr.To.String())

	r.lmu.RLock()
	listeners := make([]Listener, len(r.listeners))
	copy(listeners, r.listeners)
	r.lmu.RUnlock()

	for _, l := range listeners {
		l(*tr)
	}
}
