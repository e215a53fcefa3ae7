package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrAlreadyStarted is returned by Jobs.Start on a second call.
var ErrAlreadyStarted = errors.New("jobs already started")

// Jobs runs named background jobs on cron schedules. A run that is still in
// progress when its next tick fires is skipped, panics are recovered and every
// run is recorded in WorkerMetrics.
type Jobs struct {
	cron    *cron.Cron
	logger  *slog.Logger
	metrics *WorkerMetrics

	mu      sync.Mutex
	baseCtx context.Context
	cancel  context.CancelFunc
	started bool
}

// NewJobs creates an idle job runner. metrics may be nil.
func NewJobs(logger *slog.Logger, metrics *WorkerMetrics, loc *time.Location) *Jobs {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Jobs{
		cron:    cron.New(cron.WithLocation(loc), cron.WithLogger(cronLogger{logger: logger})),
		logger:  logger,
		metrics: metrics,
		baseCtx: context.Background(),
	}
}

// Add registers fn under name. spec accepts five-field cron expressions and
// descriptors such as "@every 30s".
func (j *Jobs) Add(name, spec string, fn func(ctx context.Context) error) error {
	skipLog := cronLogger{logger: j.logger.With(slog.String("job", name)), onSkip: func() {
		if j.metrics != nil {
			j.metrics.RecordJobSkipped(name)
		}
	}}
	job := cron.NewChain(cron.SkipIfStillRunning(skipLog)).Then(cron.FuncJob(func() {
		j.run(name, fn)
	}))
	if _, err := j.cron.AddJob(spec, job); err != nil {
		return fmt.Errorf("schedule job %s (%q): %w", name, spec, err)
	}
	return nil
}

// Start begins firing schedules. Runs receive a context derived from ctx
// that is cancelled by Stop.
func (j *Jobs) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.started {
		return ErrAlreadyStarted
	}
	j.started = true
	j.baseCtx, j.cancel = context.WithCancel(ctx)
	j.cron.Start()
	return nil
}

// Stop halts scheduling, cancels running jobs and returns a context that is
// done once they have returned.
func (j *Jobs) Stop() context.Context {
	j.mu.Lock()
	if j.cancel != nil {
		j.cancel()
	}
	j.mu.Unlock()
	return j.cron.Stop()
}

// RunNow executes the job function synchronously with the same bookkeeping as
// a scheduled run.
func (j *Jobs) RunNow(name string, fn func(ctx context.Context) error) {
	j.run(name, fn)
}

func (j *Jobs) run(name string, fn func(ctx context.Context) error) {
	j.mu.Lock()
	ctx := j.baseCtx
	j.mu.Unlock()

	start := time.Now()
	status := "success"
	defer func() {
		if r := recover(); r != nil {
			status = "failure"
			j.logger.Error("job panicked", slog.String("job", name), slog.Any("panic", r))
		}
		if j.metrics != nil {
			j.metrics.RecordJobRun(name, status)
			j.metrics.RecordJobDuration(name, time.Since(start).Seconds())
			if status == "success" {
				j.metrics.RecordLastSuccess(name)
			}
		}
	}()

	if err := fn(ctx); err != nil {
		status = "failure"
		j.logger.Warn("job failed", slog.String("job", name), slog.Any("error", err))
		return
	}
	j.logger.Debug("job completed", slog.String("job", name), slog.Duration("duration", time.Since(start)))
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
	onSkip func()
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	if msg == "skip" && l.onSkip != nil {
		l.onSkip()
		l.logger.Info("job skipped, previous run still active")
		return
	}
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
