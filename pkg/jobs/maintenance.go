package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/docket/pkg/audit"
	"github.com/platinummonkey/docket/pkg/auth"
	"github.com/platinummonkey/docket/pkg/foil"
	"github.com/platinummonkey/docket/pkg/observability"
	"github.com/platinummonkey/docket/pkg/rbac"
)

// Names of the built-in jobs
const (
	AuditRetentionJob = "audit-retention"
	FOILOverdueJob    = "foil-overdue"
	SessionCleanupJob = "session-cleanup"
)

// AuditRetention deletes audit records older than retention and records one
// AUDIT_RETENTION entry with the number removed. A zero retention keeps
// everything.
func AuditRetention(store audit.Store, recorder *audit.Recorder, retention time.Duration) Job {
	return func(ctx context.Context) error {
		days := int(retention / (24 * time.Hour))
		if days <= 0 {
			return nil
		}
		deleted, err := store.Cleanup(ctx, audit.RetentionPolicy{RetentionDays: days})
		if err != nil {
			return fmt.Errorf("failed to apply audit retention: %w", err)
		}
		recorder.RecordSync(ctx, &audit.Record{
			Action:      audit.ActionRetention,
			EntityType:  audit.EntityAuditLog,
			Description: fmt.Sprintf("Removed %d audit records older than %d days", deleted, days),
			Metadata:    map[string]interface{}{"deleted": deleted, "retentionDays": days},
		})
		return nil
	}
}

// FOILOverdue records one HIGH FOIL_OVERDUE audit entry per open request past
// its due date and publishes the count as a gauge. A request is reported
// once per due date; later sweeps only refresh the gauge. metrics may be nil.
func FOILOverdue(svc *foil.Service, recorder *audit.Recorder, metrics *observability.Metrics, log *logrus.Logger) Job {
	return func(ctx context.Context) error {
		now := time.Now().UTC()
		overdue, err := svc.Overdue(ctx, now)
		if err != nil {
			return fmt.Errorf("failed to list overdue FOIL requests: %w", err)
		}
		if metrics != nil {
			metrics.FOILOverdue.Set(float64(len(overdue)))
		}

		reported := 0
		for _, r := range overdue {
			claimed, err := svc.ClaimOverdueNotice(ctx, r)
			if err != nil {
				return err
			}
			if !claimed {
				continue
			}
			reported++
			days := int(now.Sub(r.DueAt).Hours() / 24)
			recorder.RecordSync(ctx, &audit.Record{
				Action:       audit.ActionFOILOverdue,
				Severity:     audit.SeverityHigh,
				EntityType:   audit.EntityFOILRequest,
				EntityID:     r.ID,
				DepartmentID: r.DepartmentID,
				Description:  fmt.Sprintf("FOIL request %s is past its due date", r.RequestNumber),
				Metadata: map[string]interface{}{
					"requestNumber": r.RequestNumber,
					"status":        string(r.Status),
					"dueAt":         r.DueAt.Format(time.RFC3339),
					"daysOverdue":   days,
				},
			})
		}
		if reported > 0 {
			log.WithFields(logrus.Fields{"count": len(overdue), "new": reported}).Warn("FOIL requests overdue")
		}
		return nil
	}
}

// SessionCleanup removes expired sessions and expired permission grants
func SessionCleanup(users *auth.Store, grants *rbac.Store, log *logrus.Logger) Job {
	return func(ctx context.Context) error {
		now := time.Now().UTC()
		sessions, err := users.DeleteExpiredSessions(ctx, now)
		if err != nil {
			return fmt.Errorf("failed to delete expired sessions: %w", err)
		}
		expired, err := grants.DeleteExpired(ctx, now)
		if err != nil {
			return fmt.Errorf("failed to delete expired grants: %w", err)
		}
		log.WithFields(logrus.Fields{"sessions": sessions, "grants": expired}).Info("Removed expired credentials")
		return nil
	}
}

// Deps are the services the built-in jobs run against. Metrics may be nil.
type Deps struct {
	AuditStore audit.Store
	Recorder   *audit.Recorder
	FOIL       *foil.Service
	Users      *auth.Store
	Grants     *rbac.Store
	Metrics    *observability.Metrics
	Log        *logrus.Logger
	Retention  time.Duration
}

// Schedules holds a cron spec per built-in job. An empty spec registers
// the job for RunNow only.
type Schedules struct {
	AuditRetention string
	FOILOverdue    string
	SessionCleanup string
}

// RegisterBuiltins adds the audit retention, FOIL overdue and session
// cleanup jobs to s
func RegisterBuiltins(s *Scheduler, deps Deps, schedules Schedules) error {
	builtins := []struct {
		name     string
		schedule string
		job      Job
	}{
		{AuditRetentionJob, schedules.AuditRetention, AuditRetention(deps.AuditStore, deps.Recorder, deps.Retention)},
		{FOILOverdueJob, schedules.FOILOverdue, FOILOverdue(deps.FOIL, deps.Recorder, deps.Metrics, deps.Log)},
		{SessionCleanupJob, schedules.SessionCleanup, SessionCleanup(deps.Users, deps.Grants, deps.Log)},
	}
	for _, b := range builtins {
		if err := s.Add(b.name, b.schedule, b.job); err != nil {
			return err
		}
	}
	return nil
}
