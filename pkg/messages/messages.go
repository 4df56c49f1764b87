// Package messages carries notes between departments. A message is
// addressed to a department and optionally to one user in it; it can be
// linked to a case the sender can access.
package messages

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/docket/pkg/auth"
	"github.com/platinummonkey/docket/pkg/rbac"
	"github.com/platinummonkey/docket/pkg/storage"
)

var (
	ErrNoDepartment  = errors.New("messaging requires a department")
	ErrUnknownTarget = errors.New("target department or user does not exist")
	ErrEmptyMessage  = errors.New("message subject and body are required")
)

const maxInbox = 200

// Message is a note from one department to another
type Message struct {
	ID               string     `json:"id"`
	FromUserID       string     `json:"fromUserId"`
	FromDepartmentID string     `json:"fromDepartmentId"`
	ToDepartmentID   string     `json:"toDepartmentId"`
	ToUserID         string     `json:"toUserId,omitempty"`
	CaseID           string     `json:"caseId,omitempty"`
	Subject          string     `json:"subject"`
	Body             string     `json:"body"`
	ReadAt           *time.Time `json:"readAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
}

// SendInput is a message to deliver
type SendInput struct {
	ToDepartmentID string `json:"toDepartmentId" validate:"required"`
	ToUserID       string `json:"toUserId,omitempty"`
	CaseID         string `json:"caseId,omitempty"`
	Subject        string `json:"subject" validate:"required,max=500"`
	Body           string `json:"body" validate:"required,max=20000"`
}

// CaseAccess decides whether the sender may link a case
type CaseAccess interface {
	CanAccessCase(ctx context.Context, caseID string) (bool, error)
}

// Service sends and lists messages
type Service struct {
	db  *sql.DB
	now func() time.Time
}

// NewService creates a message service
func NewService(db *sql.DB) *Service {
	return &Service{db: db, now: time.Now}
}

const messageColumns = `id, from_user_id, from_department_id, to_department_id, to_user_id, case_id,
	subject, body, read_at, created_at`

func scanMessage(row interface{ Scan(...interface{}) error }) (*Message, error) {
	m := &Message{}
	var toUser, caseID sql.NullString
	var readAt sql.NullTime
	err := row.Scan(&m.ID, &m.FromUserID, &m.FromDepartmentID, &m.ToDepartmentID, &toUser, &caseID,
		&m.Subject, &m.Body, &readAt, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	m.ToUserID = storage.StringValue(toUser)
	m.CaseID = storage.StringValue(caseID)
	m.ReadAt = storage.TimePtr(readAt)
	return m, nil
}

// Send delivers a message from the session's department. A linked case
// must pass the sender's case access check.
func (s *Service) Send(ctx context.Context, session *auth.Session, access CaseAccess, in SendInput) (*Message, error) {
	if session == nil {
		return nil, rbac.ErrAccessDenied
	}
	if session.DepartmentID == "" {
		return nil, ErrNoDepartment
	}
	in.Subject = strings.TrimSpace(in.Subject)
	in.Body = strings.TrimSpace(in.Body)
	if in.Subject == "" || in.Body == "" {
		return nil, ErrEmptyMessage
	}

	if in.CaseID != "" {
		ok, err := access.CanAccessCase(ctx, in.CaseID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, rbac.ErrAccessDenied
		}
	}

	if err := s.checkTarget(ctx, in.ToDepartmentID, in.ToUserID); err != nil {
		return nil, err
	}

	m := &Message{
		ID:               uuid.New().String(),
		FromUserID:       session.UserID,
		FromDepartmentID: session.DepartmentID,
		ToDepartmentID:   in.ToDepartmentID,
		ToUserID:         in.ToUserID,
		CaseID:           in.CaseID,
		Subject:          in.Subject,
		Body:             in.Body,
		CreatedAt:        s.now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (`+messageColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, m.ID, m.FromUserID, m.FromDepartmentID, m.ToDepartmentID, storage.NullString(m.ToUserID),
		storage.NullString(m.CaseID), m.Subject, m.Body, nil, m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}
	return m, nil
}

func (s *Service) checkTarget(ctx context.Context, deptID, userID string) error {
	var one int
	var err error
	if userID == "" {
		err = s.db.QueryRowContext(ctx, "SELECT 1 FROM departments WHERE id = $1", deptID).Scan(&one)
	} else {
		err = s.db.QueryRowContext(ctx,
			"SELECT 1 FROM users WHERE id = $1 AND department_id = $2 AND active = $3",
			userID, deptID, true,
		).Scan(&one)
	}
	if err == sql.ErrNoRows {
		return ErrUnknownTarget
	}
	if err != nil {
		return fmt.Errorf("failed to check message target: %w", err)
	}
	return nil
}

// Inbox lists messages addressed to the session's department that are
// either department-wide or addressed to the session user, newest first
func (s *Service) Inbox(ctx context.Context, session *auth.Session, unreadOnly bool) ([]*Message, error) {
	if session == nil {
		return nil, rbac.ErrAccessDenied
	}
	if session.DepartmentID == "" {
		return nil, ErrNoDepartment
	}

	query := "SELECT " + messageColumns + ` FROM messages
		WHERE to_department_id = $1 AND (to_user_id IS NULL OR to_user_id = $2)`
	if unreadOnly {
		query += " AND read_at IS NULL"
	}
	query += " ORDER BY created_at DESC, id LIMIT $3"

	rows, err := s.db.QueryContext(ctx, query, session.DepartmentID, session.UserID, maxInbox)
	if err != nil {
		return nil, fmt.Errorf("failed to list inbox: %w", err)
	}
	defer rows.Close()

	out := make([]*Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Sent lists messages written by the session user, newest first
func (s *Service) Sent(ctx context.Context, session *auth.Session) ([]*Message, error) {
	if session == nil {
		return nil, rbac.ErrAccessDenied
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+messageColumns+" FROM messages WHERE from_user_id = $1 ORDER BY created_at DESC, id LIMIT $2",
		session.UserID, maxInbox,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sent messages: %w", err)
	}
	defer rows.Close()

	out := make([]*Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// MarkRead stamps read_at. Only a recipient may do so; anyone else gets
// rbac.ErrAccessDenied whether or not the message exists.
func (s *Service) MarkRead(ctx context.Context, session *auth.Session, id string) (*Message, error) {
	if session == nil || session.DepartmentID == "" {
		return nil, rbac.ErrAccessDenied
	}

	m, err := scanMessage(s.db.QueryRowContext(ctx,
		"SELECT "+messageColumns+" FROM messages WHERE id = $1", id))
	if err == sql.ErrNoRows {
		return nil, rbac.ErrAccessDenied
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	if !IsRecipient(session, m) {
		return nil, rbac.ErrAccessDenied
	}
	if m.ReadAt != nil {
		return m, nil
	}

	now := s.now().UTC()
	if _, err := s.db.ExecContext(ctx, "UPDATE messages SET read_at = $1 WHERE id = $2", now, id); err != nil {
		return nil, fmt.Errorf("failed to mark message read: %w", err)
	}
	m.ReadAt = &now
	return m, nil
}

// IsRecipient reports whether the session is an addressee of m
func IsRecipient(session *auth.Session, m *Message) bool {
	if session == nil || m.ToDepartmentID != session.DepartmentID {
		return false
	}
	return m.ToUserID == "" || m.ToUserID == session.UserID
}
