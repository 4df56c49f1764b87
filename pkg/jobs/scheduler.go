// Package jobs runs docketd's periodic maintenance: audit retention, the
// FOIL overdue sweep and expired session and grant cleanup.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/docket/pkg/observability"
)

// ErrUnknownJob is returned by RunNow for a name that was never added
var ErrUnknownJob = errors.New("unknown job")

// Job is one unit of periodic work
type Job func(ctx context.Context) error

// Scheduler runs jobs on cron schedules in UTC. A run that is still going
// when its next tick fires is skipped.
type Scheduler struct {
	cron    *cron.Cron
	log     *logrus.Logger
	metrics *observability.Metrics
	timeout time.Duration

	mu   sync.Mutex
	jobs map[string]Job
}

// NewScheduler creates a scheduler. Each run is bounded by timeout. metrics
// may be nil.
func NewScheduler(log *logrus.Logger, metrics *observability.Metrics, timeout time.Duration) *Scheduler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(log))),
		),
		log:     log,
		metrics: metrics,
		timeout: timeout,
		jobs:    make(map[string]Job),
	}
}

// Add registers job under name. An empty schedule registers the job for
// RunNow only.
func (s *Scheduler) Add(name, schedule string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}
	if schedule != "" {
		if _, err := s.cron.AddFunc(schedule, func() {
			s.run(context.Background(), name, job)
		}); err != nil {
			return fmt.Errorf("invalid schedule %q for job %s: %w", schedule, name, err)
		}
	}
	s.jobs[name] = job
	s.log.WithFields(logrus.Fields{"job": name, "schedule": schedule}).Info("Registered job")
	return nil
}

// Names lists the registered jobs
func (s *Scheduler) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunNow runs a registered job immediately and returns its error
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.run(ctx, name, job)
}

// Start begins running scheduled jobs in the background
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs and waits for running jobs or ctx
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("jobs still running at shutdown: %w", ctx.Err())
	}
}

func (s *Scheduler) run(parent context.Context, name string, job Job) (err error) {
	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	start := time.Now()
	entry := s.log.WithField("job", name)

	defer func() {
		if r := recover(); r != nil {
			entry.WithFields(logrus.Fields{
				"panic": r,
				"stack": string(debug.Stack()),
			}).Error("Recovered panic in job")
			err = fmt.Errorf("job %s panicked: %v", name, r)
		}

		result := "success"
		if err != nil {
			result = "failure"
			entry.WithError(err).Error("Job failed")
		} else {
			entry.WithField("duration", time.Since(start).String()).Info("Job completed")
		}
		if s.metrics != nil {
			s.metrics.JobRunsTotal.WithLabelValues(name, result).Inc()
		}
	}()

	return job(ctx)
}
