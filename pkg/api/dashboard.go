package api

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/docket/pkg/audit"
	"github.com/platinummonkey/docket/pkg/foil"
	"github.com/platinummonkey/docket/pkg/httputil"
	"github.com/platinummonkey/docket/pkg/rbac"
)

// Dashboard summarises the caller's workload
type Dashboard struct {
	DepartmentID   string `json:"departmentId"`
	OpenCases      int    `json:"openCases"`
	MyOpenTasks    int    `json:"myOpenTasks"`
	OverdueFOIL    int    `json:"overdueFoil"`
	UnreadMessages int    `json:"unreadMessages"`
}

func (s *Server) count(ctx context.Context, dest *int, query string, args ...interface{}) error {
	if err := s.deps.DB.QueryRowContext(ctx, query, args...).Scan(dest); err != nil {
		return fmt.Errorf("failed to count: %w", err)
	}
	return nil
}

// dashboard handles GET /dashboard. The counts are gathered concurrently.
func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) {
	ev := audit.Event{Action: rbac.OpCaseRead.String(), EntityType: audit.EntityDepartment, Description: "viewed dashboard"}
	svc := s.tenant(r)
	if svc == nil {
		s.deny(w, r, ev)
		return
	}
	tc := svc.Context()
	session := svc.Session()
	out := Dashboard{DepartmentID: tc.DepartmentID}
	ev.EntityID = tc.DepartmentID

	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		return s.count(ctx, &out.OpenCases,
			"SELECT COUNT(*) FROM cases WHERE department_id = $1 AND status NOT IN ('CLOSED', 'DISMISSED')",
			tc.DepartmentID)
	})
	g.Go(func() error {
		return s.count(ctx, &out.MyOpenTasks,
			"SELECT COUNT(*) FROM tasks WHERE assigned_to_id = $1 AND status IN ('TODO', 'IN_PROGRESS')",
			tc.UserID)
	})
	g.Go(func() error {
		overdue, err := s.deps.FOIL.List(ctx, session, foil.Filter{OverdueOnly: true, Limit: maxPageSize})
		out.OverdueFOIL = len(overdue)
		return err
	})
	g.Go(func() error {
		unread, err := s.deps.Messages.Inbox(ctx, session, true)
		out.UnreadMessages = len(unread)
		return err
	})
	if err := g.Wait(); err != nil {
		s.fail(w, r, ev, err)
		return
	}

	ev.Severity = audit.SeverityLow
	s.granted(r, ev)
	httputil.WriteSuccess(w, out)
}
