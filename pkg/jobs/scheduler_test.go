package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/docket/pkg/observability"
)

func newTestScheduler(t *testing.T) (*Scheduler, *test.Hook, *observability.Metrics) {
	t.Helper()
	log, hook := test.NewNullLogger()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	return NewScheduler(log, metrics, time.Second), hook, metrics
}

func TestSchedulerRunNow(t *testing.T) {
	s, _, metrics := newTestScheduler(t)

	calls := 0
	require.NoError(t, s.Add("count", "", func(ctx context.Context) error {
		calls++
		return nil
	}))

	require.NoError(t, s.RunNow(context.Background(), "count"))
	require.NoError(t, s.RunNow(context.Background(), "count"))
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.JobRunsTotal.WithLabelValues("count", "success")))
}

func TestSchedulerRunNowUnknown(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	err := s.RunNow(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrUnknownJob))
}

func TestSchedulerAdd(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	noop := func(context.Context) error { return nil }

	require.NoError(t, s.Add("b", "*/5 * * * *", noop))
	require.NoError(t, s.Add("a", "", noop))
	assert.Error(t, s.Add("a", "", noop), "duplicate name")
	assert.Error(t, s.Add("c", "not a schedule", noop))
	assert.Equal(t, []string{"a", "b"}, s.Names())
}

func TestSchedulerFailureAndPanic(t *testing.T) {
	s, hook, metrics := newTestScheduler(t)

	boom := errors.New("boom")
	require.NoError(t, s.Add("fails", "", func(context.Context) error { return boom }))
	require.NoError(t, s.Add("panics", "", func(context.Context) error { panic("kaboom") }))

	assert.ErrorIs(t, s.RunNow(context.Background(), "fails"), boom)

	err := s.RunNow(context.Background(), "panics")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.JobRunsTotal.WithLabelValues("fails", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.JobRunsTotal.WithLabelValues("panics", "failure")))

	var panicked bool
	for _, e := range hook.AllEntries() {
		if e.Message == "Recovered panic in job" {
			panicked = true
			assert.Equal(t, logrus.ErrorLevel, e.Level)
			assert.Equal(t, "panics", e.Data["job"])
		}
	}
	assert.True(t, panicked)
}

func TestSchedulerRunHonoursTimeout(t *testing.T) {
	log, _ := test.NewNullLogger()
	s := NewScheduler(log, nil, 20*time.Millisecond)
	require.NoError(t, s.Add("slow", "", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	err := s.RunNow(context.Background(), "slow")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSchedulerStartStop(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	s.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}
