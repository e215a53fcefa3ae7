package notify

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"survey-offers/internal/domain/entity"
	"survey-offers/internal/handler/http/requestid"
	"survey-offers/internal/resilience/circuitbreaker"

	"github.com/google/uuid"
)

// Config tunes dispatching.
type Config struct {
	// MaxConcurrent bounds in-flight deliveries across all channels.
	MaxConcurrent int

	// Cooldown suppresses a repeat of the same provider transition
	// (provider and target state) inside this window.
	Cooldown time.Duration

	// MuteThreshold consecutive failures mute a channel for MuteDuration.
	MuteThreshold int
	MuteDuration  time.Duration

	// PoolTimeout is how long a delivery waits for a worker slot.
	PoolTimeout time.Duration

	// SendTimeout bounds one channel delivery.
	SendTimeout time.Duration
}

// DefaultConfig returns the dispatch defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent: 5,
		Cooldown:      5 * time.Minute,
		MuteThreshold: 5,
		MuteDuration:  5 * time.Minute,
		PoolTimeout:   5 * time.Second,
		SendTimeout:   30 * time.Second,
	}
}

// Service dispatches circuit alerts to every enabled channel.
type Service interface {
	// NotifyTransition is a circuitbreaker.Listener. It alerts on transitions
	// into open and on recoveries back to closed, and never blocks.
	NotifyTransition(tr circuitbreaker.Transition)

	// Notify dispatches alert in the background. It only fails for an
	// invalid alert; delivery failures are logged.
	Notify(ctx context.Context, alert entity.CircuitAlert) error

	// ChannelHealth reports whether each channel is currently muted.
	ChannelHealth() []ChannelHealthStatus

	// Shutdown waits for in-flight deliveries or until ctx is done.
	Shutdown(ctx context.Context) error
}

// ChannelHealthStatus represents the health status of an alert channel.
type ChannelHealthStatus struct {
	Name       string     `json:"name"`
	Enabled    bool       `json:"enabled"`
	Muted      bool       `json:"muted"`
	MutedUntil *time.Time `json:"muted_until,omitempty"`
}

type cooldownKey struct {
	provider entity.ProviderID
	to       string
}

type service struct {
	channels   []Channel
	cfg        Config
	workerPool chan struct{}
	now        func() time.Time

	healthMu      sync.RWMutex
	channelHealth map[string]*channelHealth

	cooldownMu sync.Mutex
	lastSent   map[cooldownKey]time.Time

	wg             sync.WaitGroup
	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
}

type channelHealth struct {
	mu                  sync.Mutex
	consecutiveFailures int
	mutedUntil          time.Time
}

// NewService creates an alert service. Zero fields take defaults, except
// Cooldown where zero disables suppression.
func NewService(channels []Channel, cfg Config) Service {
	def := DefaultConfig()
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.Cooldown < 0 {
		cfg.Cooldown = 0
	}
	if cfg.MuteThreshold <= 0 {
		cfg.MuteThreshold = def.MuteThreshold
	}
	if cfg.MuteDuration <= 0 {
		cfg.MuteDuration = def.MuteDuration
	}
	if cfg.PoolTimeout <= 0 {
		cfg.PoolTimeout = def.PoolTimeout
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = def.SendTimeout
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	svc := &service{
		channels:       channels,
		cfg:            cfg,
		workerPool:     make(chan struct{}, cfg.MaxConcurrent),
		now:            time.Now,
		channelHealth:  make(map[string]*channelHealth, len(channels)),
		lastSent:       make(map[cooldownKey]time.Time),
		shutdownCtx:    shutdownCtx,
		shutdownCancel: shutdownCancel,
	}

	enabled := 0
	for _, ch := range channels {
		svc.channelHealth[ch.Name()] = &channelHealth{}
		if ch.IsEnabled() {
			enabled++
		}
	}
	SetChannelsEnabled(float64(enabled))
	return svc
}

// ShouldAlert reports whether a transition is worth an alert.
func ShouldAlert(tr circuitbreaker.Transition) bool {
	switch tr.To {
	case circuitbreaker.StateOpen:
		return true
	case circuitbreaker.StateClosed:
		return tr.From != circuitbreaker.StateClosed
	default:
		return false
	}
}

// AlertFromTransition builds the alert payload for a transition.
func AlertFromTransition(tr circuitbreaker.Transition) entity.CircuitAlert {
	return entity.CircuitAlert{
		Provider:     tr.Provider,
		From:         tr.From.String(),
		To:           tr.To.String(),
		FailureCount: tr.Metrics.FailureCount,
		TotalCalls:   tr.Metrics.TotalCalls,
		OccurredAt:   tr.At,
	}
}

func (s *service) NotifyTransition(tr circuitbreaker.Transition) {
	if !ShouldAlert(tr) {
		return
	}
	_ = s.Notify(context.Background(), AlertFromTransition(tr))
}

func (s *service) Notify(ctx context.Context, alert entity.CircuitAlert) error {
	if alert.Provider == "" || alert.To == "" {
		slog.Warn("invalid alert input",
			slog.String("provider", string(alert.Provider)),
			slog.String("state", alert.To))
		return ErrInvalidAlert
	}
	if alert.OccurredAt.IsZero() {
		alert.OccurredAt = s.now()
	}

	id := requestid.FromContext(ctx)
	if id == "" {
		id = uuid.New().String()
	}
	logger := slog.With(
		slog.String("request_id", id),
		slog.String("provider", string(alert.Provider)),
		slog.String("state", alert.To))

	if !s.passCooldown(alert) {
		logger.Debug("alert suppressed by cool-down")
		RecordDropped("all", "cooldown")
		return nil
	}

	dispatched := 0
	for _, ch := range s.channels {
		if !ch.IsEnabled() {
			continue
		}
		dispatched++
		s.wg.Add(1)
		go s.deliver(id, ch, alert)
	}
	if dispatched == 0 {
		logger.Debug("no alert channels enabled")
		return nil
	}
	logger.Info("dispatching circuit alert", slog.Int("enabled_channels", dispatched))
	return nil
}

func (s *service) passCooldown(alert entity.CircuitAlert) bool {
	if s.cfg.Cooldown == 0 {
		return true
	}
	key := cooldownKey{provider: alert.Provider, to: alert.To}
	now := s.now()

	s.cooldownMu.Lock()
	defer s.cooldownMu.Unlock()
	if last, ok := s.lastSent[key]; ok && now.Sub(last) < s.cfg.Cooldown {
		return false
	}
	s.lastSent[key] = now
	return true
}

func (s *service) deliver(id string, ch Channel, alert entity.CircuitAlert) {
	defer s.wg.Done()
	incrementActive()
	defer decrementActive()

	logger := slog.With(
		slog.String("request_id", id),
		slog.String("channel", ch.Name()),
		slog.String("provider", string(alert.Provider)))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic in alert channel",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	select {
	case s.workerPool <- struct{}{}:
		defer func() { <-s.workerPool }()
	case <-time.After(s.cfg.PoolTimeout):
		logger.Warn("alert dropped: worker pool full")
		RecordDropped(ch.Name(), "pool_full")
		return
	case <-s.shutdownCtx.Done():
		RecordDropped(ch.Name(), "shutdown")
		return
	}

	health := s.health(ch.Name())
	health.mu.Lock()
	if s.now().Before(health.mutedUntil) {
		until := health.mutedUntil
		health.mu.Unlock()
		logger.Warn("alert channel muted", slog.Time("muted_until", until))
		RecordDropped(ch.Name(), "muted")
		return
	}
	health.mu.Unlock()

	ctx, cancel := context.WithTimeout(s.shutdownCtx, s.cfg.SendTimeout)
	defer cancel()
	ctx = requestid.WithRequestID(ctx, id)

	start := s.now()
	RecordDispatch(ch.Name())
	err := ch.Send(ctx, alert)
	duration := s.now().Sub(start)

	health.mu.Lock()
	if err != nil {
		health.consecutiveFailures++
		if health.consecutiveFailures >= s.cfg.MuteThreshold {
			health.mutedUntil = s.now().Add(s.cfg.MuteDuration)
			health.consecutiveFailures = 0
			logger.Error("alert channel muted after consecutive failures",
				slog.Int("threshold", s.cfg.MuteThreshold),
				slog.Duration("mute_duration", s.cfg.MuteDuration))
			RecordChannelMuted(ch.Name())
		}
	} else {
		health.consecutiveFailures = 0
	}
	health.mu.Unlock()

	if err != nil {
		RecordFailure(ch.Name(), duration)
		logger.Warn("alert delivery failed",
			slog.Duration("send_duration", duration),
			slog.Any("error", err))
		return
	}
	RecordSuccess(ch.Name(), duration)
	logger.Info("alert sent", slog.Duration("send_duration", duration))
}

func (s *service) health(name string) *channelHealth {
	s.healthMu.RLock()
	defer s.healthMu.RUnlock()
	return s.channelHealth[name]
}

func (s *service) ChannelHealth() []ChannelHealthStatus {
	now := s.now()
	statuses := make([]ChannelHealthStatus, 0, len(s.channels))
	for _, ch := range s.channels {
		h := s.health(ch.Name())
		h.mu.Lock()
		status := ChannelHealthStatus{Name: ch.Name(), Enabled: ch.IsEnabled()}
		if now.Before(h.mutedUntil) {
			until := h.mutedUntil
			status.Muted = true
			status.MutedUntil = &until
		}
		h.mu.Unlock()
		statuses = append(statuses, status)
	}
	return statuses
}

func (s *service) Shutdown(ctx context.Context) error {
	slog.Info("shutting down alert service")
	s.shutdownCancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("alert service shutdown complete")
		return nil
	case <-ctx.Done():
		slog.Warn("alert service shutdown timeout")
		return ctx.Err()
	}
}
