// Package tenant binds every data access of a request to the caller's
// department. Handlers build a Service from the request session and go
// through it for all case, document, task and activity reads and case
// mutations; the department is always taken from the session or
// re-derived from the store, never from client input.
package tenant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/docket/pkg/activity"
	"github.com/platinummonkey/docket/pkg/async"
	"github.com/platinummonkey/docket/pkg/auth"
	"github.com/platinummonkey/docket/pkg/cases"
	"github.com/platinummonkey/docket/pkg/documents"
	"github.com/platinummonkey/docket/pkg/numbering"
	"github.com/platinummonkey/docket/pkg/rbac"
	"github.com/platinummonkey/docket/pkg/storage"
	"github.com/platinummonkey/docket/pkg/tasks"
)

// ErrAccessDenied is returned for missing and foreign resources alike
var ErrAccessDenied = rbac.ErrAccessDenied

// ErrInvalidAssignee is returned when an assignee is not an active user of
// the case's department
var ErrInvalidAssignee = errors.New("assignee must be an active user of the case department")

// Context is the caller identity a Service is bound to
type Context struct {
	DepartmentID string
	UserID       string
	Role         auth.Role
}

// Deps are the shared stores a Service works through. Blobs and Logger are
// optional.
type Deps struct {
	DB        *sql.DB
	Cases     *cases.Store
	Tasks     *tasks.Store
	Sequencer *numbering.Sequencer
	Resolver  *Resolver
	Blobs     storage.BlobStore
	Logger    *logrus.Logger
}

// Service is a per-request view of the data the session may see
type Service struct {
	ctx     Context
	session *auth.Session
	deps    Deps
	now     func() time.Time
}

// New returns a Service for the session, or nil when the session has no
// department. Callers treat nil as "no tenant data available".
func New(session *auth.Session, deps Deps) *Service {
	if session == nil || session.DepartmentID == "" {
		return nil
	}
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	return &Service{
		ctx: Context{
			DepartmentID: session.DepartmentID,
			UserID:       session.UserID,
			Role:         session.Role,
		},
		session: session,
		deps:    deps,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Context returns the bound identity
func (s *Service) Context() Context {
	return s.ctx
}

// Session returns the session the service was built from
func (s *Service) Session() *auth.Session {
	return s.session
}

// CanAccessCase reports whether the session may read the case. A missing
// case is reported as false, like a foreign one.
func (s *Service) CanAccessCase(ctx context.Context, caseID string) (bool, error) {
	dept, err := s.deps.Resolver.CaseDepartment(ctx, caseID)
	if errors.Is(err, cases.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return rbac.CanAccessCase(s.session, rbac.CaseScope{DepartmentID: dept}), nil
}

// CanAccessDocument reports whether the session may read the document's case
func (s *Service) CanAccessDocument(ctx context.Context, documentID string) (bool, error) {
	dept, err := s.deps.Resolver.DocumentDepartment(ctx, documentID)
	if errors.Is(err, documents.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return rbac.CanAccessCase(s.session, rbac.CaseScope{DepartmentID: dept}), nil
}

// caseDepartment checks access and returns the department that owns the
// case. Listings of a single case use it so ADMIN can read across
// departments.
func (s *Service) caseDepartment(ctx context.Context, caseID string) (string, error) {
	ok, err := s.CanAccessCase(ctx, caseID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrAccessDenied
	}
	return s.deps.Resolver.CaseDepartment(ctx, caseID)
}

// GetCases lists cases of the session's department
func (s *Service) GetCases(ctx context.Context, f cases.Filter) ([]*cases.Case, error) {
	f.DepartmentID = s.ctx.DepartmentID
	return s.deps.Cases.List(ctx, f)
}

// GetCase returns one accessible case
func (s *Service) GetCase(ctx context.Context, caseID string) (*cases.Case, error) {
	if _, err := s.caseDepartment(ctx, caseID); err != nil {
		return nil, err
	}
	c, err := s.deps.Cases.Get(ctx, caseID)
	if errors.Is(err, cases.ErrNotFound) {
		return nil, ErrAccessDenied
	}
	return c, err
}

// GetDocuments lists documents of the department, or of one accessible case
func (s *Service) GetDocuments(ctx context.Context, caseID string) ([]*documents.Document, error) {
	dept := s.ctx.DepartmentID
	if caseID != "" {
		var err error
		if dept, err = s.caseDepartment(ctx, caseID); err != nil {
			return nil, err
		}
	}
	return documents.ListForDepartment(ctx, s.deps.DB, dept, caseID)
}

// GetTasks lists tasks of the department. PARALEGAL and CLIENT_DEPT
// sessions only see tasks assigned to them.
func (s *Service) GetTasks(ctx context.Context, f tasks.Filter) ([]*tasks.Task, error) {
	f.DepartmentID = s.ctx.DepartmentID
	if f.CaseID != "" {
		dept, err := s.caseDepartment(ctx, f.CaseID)
		if err != nil {
			return nil, err
		}
		f.DepartmentID = dept
	}
	if tasks.AssigneeRestricted(s.ctx.Role) {
		f.AssignedToID = s.ctx.UserID
	}
	return s.deps.Tasks.List(ctx, f)
}

// GetActivities returns the newest activity entries of the department, or
// of one accessible case
func (s *Service) GetActivities(ctx context.Context, caseID string, limit int) ([]*activity.Activity, error) {
	dept := s.ctx.DepartmentID
	if caseID != "" {
		var err error
		if dept, err = s.caseDepartment(ctx, caseID); err != nil {
			return nil, err
		}
	}
	return activity.ListForDepartment(ctx, s.deps.DB, dept, caseID, limit)
}

// AddNote appends a NOTE_ADDED entry to an accessible case feed
func (s *Service) AddNote(ctx context.Context, caseID, text string) (*activity.Activity, error) {
	if _, err := s.caseDepartment(ctx, caseID); err != nil {
		return nil, err
	}
	a := activity.New(caseID, s.ctx.UserID, activity.NoteAdded, strings.TrimSpace(text))
	if err := activity.Insert(ctx, s.deps.DB, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) checkAssignee(ctx context.Context, departmentID, userID string) error {
	if userID == "" {
		return nil
	}
	ok, err := auth.IsActiveMember(ctx, s.deps.DB, userID, departmentID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidAssignee
	}
	return nil
}

// CreateCase opens a case in the session's department. The case number is
// generated in the same transaction that writes the case and its
// CASE_CREATED activity.
func (s *Service) CreateCase(ctx context.Context, in cases.CreateInput) (*cases.Case, error) {
	dept := s.ctx.DepartmentID
	if err := s.checkAssignee(ctx, dept, in.AssignedToID); err != nil {
		return nil, err
	}
	if err := s.checkAssignee(ctx, dept, in.ParalegalID); err != nil {
		return nil, err
	}

	now := s.now()
	c := &cases.Case{
		ID:           uuid.New().String(),
		DepartmentID: dept,
		Title:        strings.TrimSpace(in.Title),
		Description:  in.Description,
		CaseType:     in.CaseType,
		Priority:     in.Priority,
		Status:       cases.StatusOpen,
		CreatedByID:  s.ctx.UserID,
		AssignedToID: in.AssignedToID,
		ParalegalID:  in.ParalegalID,
		OpenedAt:     now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if c.Priority == "" {
		c.Priority = cases.PriorityMedium
	}

	err := storage.WithTx(ctx, s.deps.DB, func(tx *sql.Tx) error {
		var code string
		if err := tx.QueryRowContext(ctx, "SELECT code FROM departments WHERE id = $1", dept).Scan(&code); err != nil {
			return fmt.Errorf("failed to load department code: %w", err)
		}
		number, err := s.deps.Sequencer.CaseNumber(ctx, tx, dept, code, now)
		if err != nil {
			return err
		}
		c.CaseNumber = number

		if err := s.deps.Cases.Insert(ctx, tx, c); err != nil {
			return err
		}
		return activity.Insert(ctx, tx, activity.New(c.ID, s.ctx.UserID, activity.CaseCreated,
			fmt.Sprintf("Case %s opened", c.CaseNumber)))
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateCase applies u when the session may edit the case. A missing case
// yields ErrAccessDenied.
func (s *Service) UpdateCase(ctx context.Context, caseID string, u cases.Update) (*cases.Case, error) {
	scope, err := s.deps.Cases.GetScope(ctx, caseID)
	if errors.Is(err, cases.ErrNotFound) {
		return nil, ErrAccessDenied
	}
	if err != nil {
		return nil, err
	}
	if !rbac.CanEditCase(s.session, caseScope(scope)) {
		return nil, ErrAccessDenied
	}
	if u.AssignedToID != nil {
		if err := s.checkAssignee(ctx, scope.DepartmentID, *u.AssignedToID); err != nil {
			return nil, err
		}
	}
	if u.ParalegalID != nil {
		if err := s.checkAssignee(ctx, scope.DepartmentID, *u.ParalegalID); err != nil {
			return nil, err
		}
	}

	var c *cases.Case
	err = storage.WithTx(ctx, s.deps.DB, func(tx *sql.Tx) error {
		var err error
		if c, err = s.deps.Cases.GetOn(ctx, tx, caseID); err != nil {
			return err
		}
		previous := c.Status
		if err := s.deps.Cases.Apply(ctx, tx, c, u, s.now()); err != nil {
			return err
		}
		for _, a := range caseActivities(c, previous, u, s.ctx.UserID) {
			if err := activity.Insert(ctx, tx, a); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func caseActivities(c *cases.Case, previous cases.Status, u cases.Update, userID string) []*activity.Activity {
	var out []*activity.Activity
	if c.Status != previous {
		out = append(out, activity.New(c.ID, userID, activity.CaseStatusChanged,
			fmt.Sprintf("Status changed from %s to %s", previous, c.Status)))
	}
	if u.Reassigns() {
		out = append(out, activity.New(c.ID, userID, activity.CaseAssigned,
			fmt.Sprintf("Assigned to %q, paralegal %q", c.AssignedToID, c.ParalegalID)))
	}
	if u.Title != nil || u.Description != nil || u.CaseType != nil || u.Priority != nil {
		out = append(out, activity.New(c.ID, userID, activity.CaseUpdated, "Case details updated"))
	}
	return out
}

// DeleteCase removes the case and its dependents in one transaction, then
// deletes the document content best-effort
func (s *Service) DeleteCase(ctx context.Context, caseID string) error {
	scope, err := s.deps.Cases.GetScope(ctx, caseID)
	if errors.Is(err, cases.ErrNotFound) {
		return ErrAccessDenied
	}
	if err != nil {
		return err
	}
	if !rbac.CanDeleteCase(s.session, caseScope(scope)) {
		return ErrAccessDenied
	}

	var keys []string
	err = storage.WithTx(ctx, s.deps.DB, func(tx *sql.Tx) error {
		var err error
		keys, err = s.deps.Cases.DeleteWithDependents(ctx, tx, caseID)
		return err
	})
	if errors.Is(err, cases.ErrNotFound) {
		return ErrAccessDenied
	}
	if err != nil {
		return err
	}

	s.deps.Resolver.Forget(ctx, keyCase, caseID)
	s.deps.Resolver.Forget(ctx, keyDocument, documentIDs(keys)...)
	s.removeBlobs(ctx, keys)
	return nil
}

func (s *Service) removeBlobs(ctx context.Context, keys []string) {
	if s.deps.Blobs == nil || len(keys) == 0 {
		return
	}
	errs := async.Batch(ctx, keys, 4, "case blob cleanup", 30*time.Second, func(ctx context.Context, key string) error {
		err := s.deps.Blobs.Delete(ctx, key)
		if errors.Is(err, storage.ErrBlobNotFound) {
			return nil
		}
		return err
	})
	for _, err := range errs {
		s.deps.Logger.WithError(err).Warn("Failed to delete document content of removed case")
	}
}

// documentIDs extracts document ids from blob keys of the form
// cases/<case>/documents/<document>/v<n>
func documentIDs(keys []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, key := range keys {
		parts := strings.Split(key, "/")
		if len(parts) == 5 && parts[2] == "documents" && !seen[parts[3]] {
			seen[parts[3]] = true
			out = append(out, parts[3])
		}
	}
	return out
}

func caseScope(sc cases.Scope) rbac.CaseScope {
	return rbac.CaseScope{
		DepartmentID: sc.DepartmentID,
		OwnerID:      sc.AssignedToID,
		ParalegalID:  sc.ParalegalID,
	}
}
