package audit

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/docket/pkg/async"
	"github.com/platinummonkey/docket/pkg/auth"
	"github.com/platinummonkey/docket/pkg/contextkeys"
)

// Event describes one audited operation. Action is the operation code, for
// example CASE_CREATE; the recorder derives the DENIED and ERROR variants.
type Event struct {
	Action      string
	EntityType  EntityType
	EntityID    string
	Description string
	Metadata    map[string]interface{}

	// Severity overrides DefaultSeverity when set
	Severity Severity

	// DepartmentID overrides the session department, for records about
	// resources in another department
	DepartmentID string
}

// RecorderConfig configures a Recorder
type RecorderConfig struct {
	Workers      int
	QueueSize    int
	WriteTimeout time.Duration
	// SyncTimeout bounds the synchronous write of denial records
	SyncTimeout time.Duration
	// Registerer receives the recorder metrics; nil leaves them unregistered
	Registerer prometheus.Registerer
}

// DefaultRecorderConfig returns the defaults used by the daemon
func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		Workers:      4,
		QueueSize:    1024,
		WriteTimeout: 5 * time.Second,
		SyncTimeout:  2 * time.Second,
	}
}

// Recorder turns operation outcomes into audit records. It is best-effort:
// sink failures are logged and counted, never returned to the caller.
// Granted and error records are written through a worker pool; denial
// records are written before the call returns.
type Recorder struct {
	sink        Logger
	pool        *async.WorkerPool
	log         *logrus.Logger
	syncTimeout time.Duration
	now         func() time.Time

	written *prometheus.CounterVec
	failed  *prometheus.CounterVec
}

// NewRecorder starts the write pool. Call Close to drain it.
func NewRecorder(ctx context.Context, sink Logger, log *logrus.Logger, cfg RecorderConfig) *Recorder {
	def := DefaultRecorderConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.SyncTimeout <= 0 {
		cfg.SyncTimeout = def.SyncTimeout
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	r := &Recorder{
		sink:        sink,
		pool:        async.NewWorkerPool(ctx, cfg.Workers, "audit writes", cfg.WriteTimeout, async.WithQueueSize(cfg.QueueSize)),
		log:         log,
		syncTimeout: cfg.SyncTimeout,
		now:         func() time.Time { return time.Now().UTC() },
		written: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docket_audit_records_written_total",
				Help: "Audit records persisted, by outcome",
			},
			[]string{"outcome"},
		),
		failed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docket_audit_records_failed_total",
				Help: "Audit records that could not be persisted, by write mode",
			},
			[]string{"mode"},
		),
	}

	if cfg.Registerer != nil {
		for _, c := range []prometheus.Collector{r.written, r.failed} {
			if err := cfg.Registerer.Register(c); err != nil {
				log.WithError(err).Warn("Failed to register audit metrics")
			}
		}
	}

	return r
}

// Granted records a permitted operation asynchronously
func (r *Recorder) Granted(ctx context.Context, session *auth.Session, ev Event) {
	r.Record(ctx, r.build(ctx, session, ev, ev.Action, OutcomeGranted))
}

// Denied records a refused operation as <ACTION>_DENIED. The write completes
// (or times out) before Denied returns.
func (r *Recorder) Denied(ctx context.Context, session *auth.Session, ev Event) {
	r.RecordSync(ctx, r.build(ctx, session, ev, DeniedAction(ev.Action), OutcomeDenied))
}

// Failed records a persistence failure as <ACTION>_ERROR with a redacted message
func (r *Recorder) Failed(ctx context.Context, session *auth.Session, ev Event, err error) {
	rec := r.build(ctx, session, ev, ErrorAction(ev.Action), OutcomeError)
	if rec.Metadata == nil {
		rec.Metadata = make(map[string]interface{})
	}
	rec.Metadata["error"] = Redact(err)
	r.Record(ctx, rec)
}

// Record queues a prepared record. When the queue is saturated the record is
// written inline so it is not lost.
func (r *Recorder) Record(ctx context.Context, rec *Record) {
	r.fill(ctx, rec)

	err := r.pool.TrySubmit(func(ctx context.Context) error {
		r.write(ctx, rec, "async")
		return nil
	})
	if err == nil {
		return
	}

	if !errors.Is(err, async.ErrQueueFull) && !errors.Is(err, async.ErrPoolShutdown) {
		r.log.WithError(err).Warn("Unexpected audit queue error")
	}
	r.RecordSync(ctx, rec)
}

// RecordSync writes a prepared record before returning
func (r *Recorder) RecordSync(ctx context.Context, rec *Record) {
	r.fill(ctx, rec)

	// Detach from request cancellation; the write is bounded by syncTimeout
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.syncTimeout)
	defer cancel()
	r.write(wctx, rec, "sync")
}

func (r *Recorder) write(ctx context.Context, rec *Record, mode string) {
	if err := r.sink.Log(ctx, rec); err != nil {
		r.failed.WithLabelValues(mode).Inc()
		r.log.WithError(err).WithFields(logrus.Fields{
			"action":     rec.Action,
			"entity_id":  rec.EntityID,
			"request_id": rec.RequestID,
			"mode":       mode,
		}).Error("Failed to write audit record")
		return
	}
	r.written.WithLabelValues(string(rec.Outcome)).Inc()
}

func (r *Recorder) build(ctx context.Context, session *auth.Session, ev Event, action string, outcome Outcome) *Record {
	rec := &Record{
		Action:      action,
		Outcome:     outcome,
		Severity:    ev.Severity,
		EntityType:  ev.EntityType,
		EntityID:    ev.EntityID,
		Description: ev.Description,
	}
	if len(ev.Metadata) > 0 {
		rec.Metadata = make(map[string]interface{}, len(ev.Metadata))
		for k, v := range ev.Metadata {
			rec.Metadata[k] = v
		}
	}
	if session != nil {
		rec.UserID = session.UserID
		rec.DepartmentID = session.DepartmentID
	}
	if ev.DepartmentID != "" {
		rec.DepartmentID = ev.DepartmentID
	}
	return rec
}

// fill sets the fields every record carries
func (r *Recorder) fill(ctx context.Context, rec *Record) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = r.now()
	}
	if rec.Outcome == "" {
		rec.Outcome = OutcomeGranted
	}
	if rec.Severity == "" {
		rec.Severity = DefaultSeverity(rec.Action, rec.Outcome)
	}
	if rec.RequestID == "" {
		rec.RequestID = contextkeys.GetRequestID(ctx)
	}
	if rec.IPAddress == "" {
		rec.IPAddress = contextkeys.GetClientIP(ctx)
	}
	if rec.UserAgent == "" {
		rec.UserAgent = contextkeys.GetUserAgent(ctx)
	}
}

// Flush waits until queued records have been handed to the sink or the
// timeout expires
func (r *Recorder) Flush(timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for r.pool.Pending() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
}

// Close drains queued records and closes the sink
func (r *Recorder) Close(timeout time.Duration) error {
	if err := r.pool.Shutdown(timeout); err != nil {
		r.log.WithError(err).Warn("Audit queue did not drain before shutdown")
	}
	return r.sink.Close()
}
