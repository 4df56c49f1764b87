package foil

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/docket/pkg/auth"
	"github.com/platinummonkey/docket/pkg/numbering"
	"github.com/platinummonkey/docket/pkg/rbac"
	"github.com/platinummonkey/docket/pkg/storage"
)

// Service runs the FOIL workflow. Every read and write is bound to the
// session's department.
type Service struct {
	db       *sql.DB
	seq      *numbering.Sequencer
	calendar *Calendar
	now      func() time.Time
}

// NewService creates a FOIL service
func NewService(db *sql.DB, seq *numbering.Sequencer, calendar *Calendar) *Service {
	if calendar == nil {
		calendar = NewCalendar(nil)
	}
	return &Service{db: db, seq: seq, calendar: calendar, now: time.Now}
}

func departmentOf(s *auth.Session) (string, error) {
	if s == nil {
		return "", rbac.ErrAccessDenied
	}
	if s.DepartmentID == "" {
		return "", ErrNoDepartment
	}
	return s.DepartmentID, nil
}

// Create registers a request received by the session's department
func (s *Service) Create(ctx context.Context, session *auth.Session, in CreateInput) (*Request, error) {
	deptID, err := departmentOf(session)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	received := now
	if in.ReceivedAt != nil {
		received = in.ReceivedAt.UTC()
	}

	r := &Request{
		ID:             uuid.New().String(),
		DepartmentID:   deptID,
		CaseID:         in.CaseID,
		RequesterName:  strings.TrimSpace(in.RequesterName),
		RequesterEmail: strings.TrimSpace(in.RequesterEmail),
		Subject:        strings.TrimSpace(in.Subject),
		Description:    in.Description,
		Status:         StatusReceived,
		ReceivedAt:     received,
		AcknowledgeBy:  s.calendar.AddBusinessDays(received, AcknowledgeDays),
		DueAt:          s.calendar.AddBusinessDays(received, ResponseDays),
		AssignedToID:   in.AssignedToID,
		CreatedByID:    session.UserID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = storage.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if r.CaseID != "" {
			if err := caseInDepartment(ctx, tx, r.CaseID, deptID); err != nil {
				return err
			}
		}
		if r.AssignedToID != "" {
			ok, err := auth.IsActiveMember(ctx, tx, r.AssignedToID, deptID)
			if err != nil {
				return err
			}
			if !ok {
				return ErrInvalidAssignee
			}
		}

		var code string
		if err := tx.QueryRowContext(ctx, "SELECT code FROM departments WHERE id = $1", deptID).Scan(&code); err != nil {
			return fmt.Errorf("failed to load department code: %w", err)
		}
		number, err := s.seq.FOILNumber(ctx, tx, deptID, code, received)
		if err != nil {
			return err
		}
		r.RequestNumber = number

		if err := insertRequest(ctx, tx, r); err != nil {
			return err
		}
		return insertChange(ctx, tx, &StatusChange{
			ID:          uuid.New().String(),
			RequestID:   r.ID,
			ToStatus:    StatusReceived,
			ChangedByID: session.UserID,
			ChangedAt:   now,
		})
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func caseInDepartment(ctx context.Context, q storage.DBTX, caseID, deptID string) error {
	var one int
	err := q.QueryRowContext(ctx, "SELECT 1 FROM cases WHERE id = $1 AND department_id = $2", caseID, deptID).Scan(&one)
	if err == sql.ErrNoRows {
		return rbac.ErrAccessDenied
	}
	if err != nil {
		return fmt.Errorf("failed to check case: %w", err)
	}
	return nil
}

// Get returns a request of the session's department. Missing and foreign
// requests both yield rbac.ErrAccessDenied.
func (s *Service) Get(ctx context.Context, session *auth.Session, id string) (*Request, error) {
	deptID, err := departmentOf(session)
	if err != nil {
		return nil, err
	}
	r, err := getInDepartment(ctx, s.db, deptID, id)
	if err == sql.ErrNoRows {
		return nil, rbac.ErrAccessDenied
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get FOIL request: %w", err)
	}
	return r, nil
}

// List returns the department's requests ordered by due date
func (s *Service) List(ctx context.Context, session *auth.Session, f Filter) ([]*Request, error) {
	deptID, err := departmentOf(session)
	if err != nil {
		return nil, err
	}
	return listRequests(ctx, s.db, deptID, f, s.now().UTC())
}

// History returns the status changes of a department request, oldest first
func (s *Service) History(ctx context.Context, session *auth.Session, id string) ([]*StatusChange, error) {
	if _, err := s.Get(ctx, session, id); err != nil {
		return nil, err
	}
	return listHistory(ctx, s.db, id)
}

// Transition moves a request to a new status and records the change.
// Moving to EXTENDED pushes the due date by in.ExtendDays business days.
func (s *Service) Transition(ctx context.Context, session *auth.Session, id string, in TransitionInput) (*Request, error) {
	deptID, err := departmentOf(session)
	if err != nil {
		return nil, err
	}
	if !in.Status.Valid() {
		return nil, ErrInvalidStatus
	}
	if in.Status == StatusExtended && in.ExtendDays < 1 {
		return nil, ErrInvalidExtension
	}

	var out *Request
	err = storage.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		r, err := getInDepartment(ctx, tx, deptID, id)
		if err == sql.ErrNoRows {
			return rbac.ErrAccessDenied
		}
		if err != nil {
			return fmt.Errorf("failed to get FOIL request: %w", err)
		}
		if !r.Status.CanTransition(in.Status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, in.Status)
		}

		now := s.now().UTC()
		from := r.Status
		r.Status = in.Status
		r.UpdatedAt = now
		if in.Status == StatusExtended {
			r.DueAt = s.calendar.AddBusinessDays(r.DueAt, in.ExtendDays)
		}
		if in.Status.Terminal() {
			r.ClosedAt = &now
		}

		result, err := tx.ExecContext(ctx, `
			UPDATE foil_requests
			SET status = $1, due_at = $2, closed_at = $3, updated_at = $4
			WHERE id = $5 AND status = $6
		`, string(r.Status), r.DueAt, r.ClosedAt, r.UpdatedAt, r.ID, string(from))
		if err != nil {
			return fmt.Errorf("failed to update FOIL request: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to update FOIL request: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("%w: %s is no longer %s", ErrConflict, r.ID, from)
		}

		if err := insertChange(ctx, tx, &StatusChange{
			ID:          uuid.New().String(),
			RequestID:   r.ID,
			FromStatus:  from,
			ToStatus:    r.Status,
			ChangedByID: session.UserID,
			Note:        in.Note,
			ChangedAt:   now,
		}); err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ClaimOverdueNotice marks the request as notified for its current due date.
// It reports false when a notice for that due date was already claimed, so
// each request is reported once until an extension moves its due date.
func (s *Service) ClaimOverdueNotice(ctx context.Context, r *Request) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE foil_requests SET overdue_notified_for = due_at
		WHERE id = $1 AND (overdue_notified_for IS NULL OR overdue_notified_for <> due_at)
	`, r.ID)
	if err != nil {
		return false, fmt.Errorf("failed to claim overdue notice: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to claim overdue notice: %w", err)
	}
	return n == 1, nil
}

// Overdue lists open requests past their due date across all departments.
// It backs the background sweep and is not exposed to request handlers.
func (s *Service) Overdue(ctx context.Context, now time.Time) ([]*Request, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+requestColumns+` FROM foil_requests
		WHERE due_at < $1 AND status NOT IN ('GRANTED', 'PARTIALLY_GRANTED', 'DENIED', 'CLOSED')
		ORDER BY due_at ASC, id
	`, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue FOIL requests: %w", err)
	}
	defer rows.Close()

	out := make([]*Request, 0)
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan FOIL request: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
