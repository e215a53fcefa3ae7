package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobs_RunNowRecordsOutcome(t *testing.T) {
	jobs := NewJobs(discardLogger(), globalTestMetrics, nil)

	okBefore := testutil.ToFloat64(globalTestMetrics.JobRunsTotal.WithLabelValues("test_ok", "success"))
	failBefore := testutil.ToFloat64(globalTestMetrics.JobRunsTotal.WithLabelValues("test_fail", "failure"))
	panicBefore := testutil.ToFloat64(globalTestMetrics.JobRunsTotal.WithLabelValues("test_panic", "failure"))

	jobs.RunNow("test_ok", func(context.Context) error { return nil })
	jobs.RunNow("test_fail", func(context.Context) error { return errors.New("boom") })
	assert.NotPanics(t, func() {
		jobs.RunNow("test_panic", func(context.Context) error { panic("probe exploded") })
	})

	assert.Equal(t, okBefore+1, testutil.ToFloat64(globalTestMetrics.JobRunsTotal.WithLabelValues("test_ok", "success")))
	assert.Equal(t, failBefore+1, testutil.ToFloat64(globalTestMetrics.JobRunsTotal.WithLabelValues("test_fail", "failure")))
	assert.Equal(t, panicBefore+1, testutil.ToFloat64(globalTestMetrics.JobRunsTotal.WithLabelValues("test_panic", "failure")))
}

func TestJobs_AddRejectsBadSpec(t *testing.T) {
	jobs := NewJobs(discardLogger(), nil, nil)
	err := jobs.Add("broken", "every now and then", func(context.Context) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestJobs_ScheduledRunsAndStop(t *testing.T) {
	jobs := NewJobs(discardLogger(), nil, time.UTC)

	var runs atomic.Int32
	var sawCancel atomic.Bool
	require.NoError(t, jobs.Add("tick", "@every 1s", func(ctx context.Context) error {
		runs.Add(1)
		<-ctx.Done()
		sawCancel.Store(true)
		return ctx.Err()
	}))
	require.NoError(t, jobs.Start(context.Background()))
	assert.ErrorIs(t, jobs.Start(context.Background()), ErrAlreadyStarted)

	require.Eventually(t, func() bool { return runs.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)

	select {
	case <-jobs.Stop().Done():
	case <-time.After(3 * time.Second):
		t.Fatal("running job was not cancelled by Stop")
	}
	assert.True(t, sawCancel.Load())
	assert.Equal(t, int32(1), runs.Load(), "overlapping ticks are skipped")
}
