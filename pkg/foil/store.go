package foil

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/platinummonkey/docket/pkg/storage"
)

const requestColumns = `id, department_id, request_number, case_id, requester_name, requester_email,
	subject, description, status, received_at, acknowledge_by, due_at, assigned_to_id,
	created_by_id, closed_at, created_at, updated_at`

const defaultListLimit = 50

func scanRequest(row interface{ Scan(...interface{}) error }) (*Request, error) {
	r := &Request{}
	var caseID, assignee sql.NullString
	var closedAt sql.NullTime
	err := row.Scan(
		&r.ID, &r.DepartmentID, &r.RequestNumber, &caseID, &r.RequesterName, &r.RequesterEmail,
		&r.Subject, &r.Description, &r.Status, &r.ReceivedAt, &r.AcknowledgeBy, &r.DueAt,
		&assignee, &r.CreatedByID, &closedAt, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.CaseID = storage.StringValue(caseID)
	r.AssignedToID = storage.StringValue(assignee)
	r.ClosedAt = storage.TimePtr(closedAt)
	return r, nil
}

func insertRequest(ctx context.Context, q storage.DBTX, r *Request) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO foil_requests (`+requestColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`,
		r.ID, r.DepartmentID, r.RequestNumber, storage.NullString(r.CaseID), r.RequesterName,
		r.RequesterEmail, r.Subject, r.Description, string(r.Status), r.ReceivedAt,
		r.AcknowledgeBy, r.DueAt, storage.NullString(r.AssignedToID), r.CreatedByID,
		r.ClosedAt, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert FOIL request: %w", err)
	}
	return nil
}

func insertChange(ctx context.Context, q storage.DBTX, c *StatusChange) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO foil_status_history (id, request_id, from_status, to_status, changed_by_id, note, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, c.ID, c.RequestID, string(c.FromStatus), string(c.ToStatus), c.ChangedByID, c.Note, c.ChangedAt)
	if err != nil {
		return fmt.Errorf("failed to insert FOIL status change: %w", err)
	}
	return nil
}

// getInDepartment returns sql.ErrNoRows when the request is missing or
// belongs to another department
func getInDepartment(ctx context.Context, q storage.DBTX, departmentID, id string) (*Request, error) {
	return scanRequest(q.QueryRowContext(ctx,
		"SELECT "+requestColumns+" FROM foil_requests WHERE id = $1 AND department_id = $2",
		id, departmentID,
	))
}

func listRequests(ctx context.Context, q storage.DBTX, departmentID string, f Filter, now time.Time) ([]*Request, error) {
	query := "SELECT " + requestColumns + " FROM foil_requests WHERE department_id = $1"
	args := []interface{}{departmentID}
	argCount := 1

	if f.Status != "" {
		argCount++
		query += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, string(f.Status))
	}
	if f.OverdueOnly {
		argCount++
		query += fmt.Sprintf(" AND due_at < $%d AND status NOT IN ('GRANTED', 'PARTIALLY_GRANTED', 'DENIED', 'CLOSED')", argCount)
		args = append(args, now)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	argCount++
	query += fmt.Sprintf(" ORDER BY due_at ASC, id LIMIT $%d", argCount)
	args = append(args, limit)
	if f.Offset > 0 {
		argCount++
		query += fmt.Sprintf(" OFFSET $%d", argCount)
		args = append(args, f.Offset)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list FOIL requests: %w", err)
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

func listHistory(ctx context.Context, q storage.DBTX, requestID string) ([]*StatusChange, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, request_id, from_status, to_status, changed_by_id, note, changed_at
		FROM foil_status_history
		WHERE request_id = $1
		ORDER BY changed_at ASC, id
	`, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to list FOIL history: %w", err)
	}
	defer rows.Close()

	out := make([]*StatusChange, 0)
	for rows.Next() {
		c := &StatusChange{}
		if err := rows.Scan(&c.ID, &c.RequestID, &c.FromStatus, &c.ToStatus, &c.ChangedByID, &c.Note, &c.ChangedAt); err != nil {
			return nil, fmt.Errorf("failed to scan FOIL history: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
