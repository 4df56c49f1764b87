package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/docket/pkg/auth"
	"github.com/platinummonkey/docket/pkg/contextkeys"
)

var testSession = &auth.Session{
	SessionID:    "sess-1",
	UserID:       "user-1",
	DepartmentID: "dept-1",
	Role:         auth.RoleAttorney,
}

func newTestRecorder(t *testing.T, sink Logger, cfg RecorderConfig) (*Recorder, *test.Hook) {
	t.Helper()
	log, hook := test.NewNullLogger()
	r := NewRecorder(context.Background(), sink, log, cfg)
	t.Cleanup(func() { r.Close(time.Second) })
	return r, hook
}

func TestRecorder_Granted(t *testing.T) {
	sink := NewMemoryLogger()
	r, _ := newTestRecorder(t, sink, RecorderConfig{})

	ctx := contextkeys.WithRequestID(context.Background(), "req-1")
	ctx = contextkeys.WithClient(ctx, "10.0.0.5", "curl/8.0")

	r.Granted(ctx, testSession, Event{
		Action:     "CASE_CREATE",
		EntityType: EntityCase,
		EntityID:   "case-1",
		Metadata:   map[string]interface{}{"caseNumber": "LIT-2026-00001"},
	})
	r.Flush(time.Second)

	records := sink.Records()
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, "CASE_CREATE", rec.Action)
	assert.Equal(t, OutcomeGranted, rec.Outcome)
	assert.Equal(t, SeverityMedium, rec.Severity)
	assert.Equal(t, "user-1", rec.UserID)
	assert.Equal(t, "dept-1", rec.DepartmentID)
	assert.Equal(t, "req-1", rec.RequestID)
	assert.Equal(t, "10.0.0.5", rec.IPAddress)
	assert.Equal(t, "curl/8.0", rec.UserAgent)
	assert.Equal(t, "LIT-2026-00001", rec.Metadata["caseNumber"])
	assert.False(t, rec.Timestamp.IsZero())
}

func TestRecorder_DeniedIsSynchronous(t *testing.T) {
	sink := NewMemoryLogger()
	r, _ := newTestRecorder(t, sink, RecorderConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A canceled request context must not prevent the denial from being stored
	r.Denied(ctx, testSession, Event{Action: "CASE_DELETE", EntityType: EntityCase, EntityID: "case-9"})

	records := sink.ByAction("CASE_DELETE_DENIED")
	require.Len(t, records, 1)
	assert.Equal(t, OutcomeDenied, records[0].Outcome)
	assert.Equal(t, SeverityHigh, records[0].Severity)
}

func TestRecorder_DepartmentOverride(t *testing.T) {
	sink := NewMemoryLogger()
	r, _ := newTestRecorder(t, sink, RecorderConfig{})

	r.Denied(context.Background(), testSession, Event{Action: "CASE_READ", DepartmentID: "dept-2"})

	records := sink.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "dept-2", records[0].DepartmentID)
	assert.Equal(t, "user-1", records[0].UserID)
}

func TestRecorder_NilSession(t *testing.T) {
	sink := NewMemoryLogger()
	r, _ := newTestRecorder(t, sink, RecorderConfig{})

	r.Denied(context.Background(), nil, Event{Action: ActionLoginFailed, EntityType: EntityUser})

	records := sink.Records()
	require.Len(t, records, 1)
	assert.Empty(t, records[0].UserID)
	assert.Equal(t, SeverityHigh, records[0].Severity)
}

func TestRecorder_FailedRedactsError(t *testing.T) {
	sink := NewMemoryLogger()
	r, _ := newTestRecorder(t, sink, RecorderConfig{})

	err := &pq.Error{Code: "23505", Message: `duplicate key value violates unique constraint "cases_case_number_key" Key (case_number)=(LIT-2026-00001)`}
	r.Failed(context.Background(), testSession, Event{Action: "CASE_CREATE", EntityType: EntityCase}, err)
	r.Flush(time.Second)

	records := sink.ByAction("CASE_CREATE_ERROR")
	require.Len(t, records, 1)
	assert.Equal(t, OutcomeError, records[0].Outcome)
	assert.Equal(t, "database error (SQLSTATE class 23: integrity_constraint_violation)", records[0].Metadata["error"])
	assert.NotContains(t, records[0].Metadata["error"], "LIT-2026")
}

func TestRecorder_SinkFailureIsSwallowed(t *testing.T) {
	sink := NewMemoryLogger()
	sink.FailWith(errors.New("disk full"))
	reg := prometheus.NewRegistry()
	r, hook := newTestRecorder(t, sink, RecorderConfig{Registerer: reg})

	assert.NotPanics(t, func() {
		r.Denied(context.Background(), testSession, Event{Action: "CASE_READ"})
	})

	assert.Equal(t, float64(1), testutil.ToFloat64(r.failed.WithLabelValues("sync")))
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	assert.Equal(t, "CASE_READ_DENIED", hook.LastEntry().Data["action"])
}

func TestRecorder_WrittenCounter(t *testing.T) {
	sink := NewMemoryLogger()
	r, _ := newTestRecorder(t, sink, RecorderConfig{Registerer: prometheus.NewRegistry()})

	r.Denied(context.Background(), testSession, Event{Action: "CASE_READ"})
	r.Denied(context.Background(), testSession, Event{Action: "CASE_UPDATE"})

	assert.Equal(t, float64(2), testutil.ToFloat64(r.written.WithLabelValues(string(OutcomeDenied))))
}

// gateSink blocks writes of the "HOLD" action until released
type gateSink struct {
	*MemoryLogger
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gateSink) Log(ctx context.Context, record *Record) error {
	if record.Action == "HOLD" {
		g.once.Do(func() { close(g.entered) })
		<-g.release
	}
	return g.MemoryLogger.Log(ctx, record)
}

func TestRecorder_QueueFullFallsBackToSync(t *testing.T) {
	sink := &gateSink{
		MemoryLogger: NewMemoryLogger(),
		entered:      make(chan struct{}),
		release:      make(chan struct{}),
	}
	r, _ := newTestRecorder(t, sink, RecorderConfig{Workers: 1, QueueSize: 1})

	r.Granted(context.Background(), testSession, Event{Action: "HOLD"})
	<-sink.entered

	r.Granted(context.Background(), testSession, Event{Action: "QUEUED"})
	r.Granted(context.Background(), testSession, Event{Action: "OVERFLOW"})

	// The overflow record was written inline while the worker is still blocked
	assert.Len(t, sink.ByAction("OVERFLOW"), 1)
	assert.Empty(t, sink.ByAction("QUEUED"))

	close(sink.release)
	r.Flush(time.Second)

	assert.Len(t, sink.Records(), 3)
}

func TestRecorder_CloseDrainsQueue(t *testing.T) {
	sink := NewMemoryLogger()
	log, _ := test.NewNullLogger()
	r := NewRecorder(context.Background(), sink, log, RecorderConfig{Workers: 2})

	for i := 0; i < 20; i++ {
		r.Granted(context.Background(), testSession, Event{Action: "CASE_READ"})
	}
	require.NoError(t, r.Close(2*time.Second))
	assert.Len(t, sink.Records(), 20)

	// After close records are still written inline
	r.Granted(context.Background(), testSession, Event{Action: "CASE_UPDATE"})
	assert.Len(t, sink.ByAction("CASE_UPDATE"), 1)
}
