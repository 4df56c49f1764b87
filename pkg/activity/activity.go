// Package activity keeps the append-only feed of what happened on a case.
// Entries are written in the same transaction as the change they describe.
package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/docket/pkg/storage"
)

// Actions recorded on the case feed
const (
	CaseCreated        = "CASE_CREATED"
	CaseUpdated        = "CASE_UPDATED"
	CaseAssigned       = "CASE_ASSIGNED"
	CaseStatusChanged  = "CASE_STATUS_CHANGED"
	DocumentUploaded   = "DOCUMENT_UPLOADED"
	DocumentVersioned  = "DOCUMENT_VERSIONED"
	DocumentClassified = "DOCUMENT_CLASSIFIED"
	TaskCreated        = "TASK_CREATED"
	TaskCompleted      = "TASK_COMPLETED"
	TemplateApplied    = "TEMPLATE_APPLIED"
	NoteAdded          = "NOTE_ADDED"
)

const maxListLimit = 500

// Activity is one entry on a case feed
type Activity struct {
	ID          string    `json:"id"`
	CaseID      string    `json:"caseId"`
	UserID      string    `json:"userId"`
	Action      string    `json:"action"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

// New builds an entry stamped now
func New(caseID, userID, action, description string) *Activity {
	return &Activity{
		ID:          uuid.New().String(),
		CaseID:      caseID,
		UserID:      userID,
		Action:      action,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
}

// Insert appends an entry
func Insert(ctx context.Context, q storage.DBTX, a *Activity) error {
	_, err := q.ExecContext(ctx,
		"INSERT INTO activities (id, case_id, user_id, action, description, created_at) VALUES ($1, $2, $3, $4, $5, $6)",
		a.ID, a.CaseID, a.UserID, a.Action, a.Description, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert activity: %w", err)
	}
	return nil
}

// ListForDepartment returns the newest entries of a case, joined through the
// case so entries of another department's case are never returned. An empty
// caseID lists the whole department feed.
func ListForDepartment(ctx context.Context, q storage.DBTX, departmentID, caseID string, limit int) ([]*Activity, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}

	query := `
		SELECT a.id, a.case_id, a.user_id, a.action, a.description, a.created_at
		FROM activities a
		JOIN cases c ON c.id = a.case_id
		WHERE c.department_id = $1`
	args := []interface{}{departmentID}
	if caseID != "" {
		query += " AND a.case_id = $2 ORDER BY a.created_at DESC, a.id LIMIT $3"
		args = append(args, caseID, limit)
	} else {
		query += " ORDER BY a.created_at DESC, a.id LIMIT $2"
		args = append(args, limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	defer rows.Close()

	out := make([]*Activity, 0)
	for rows.Next() {
		a := &Activity{}
		if err := rows.Scan(&a.ID, &a.CaseID, &a.UserID, &a.Action, &a.Description, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activities: %w", err)
	}
	return out, nil
}
