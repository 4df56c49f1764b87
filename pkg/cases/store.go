package cases

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/docket/pkg/storage"
)

const caseColumns = `id, case_number, department_id, title, description, case_type, priority, status,
	created_by_id, assigned_to_id, paralegal_id, opened_at, closed_at, created_at, updated_at`

const defaultListLimit = 50

// Store persists cases. Methods that take a storage.DBTX run on whatever
// handle they are given so callers can compose them in a transaction.
type Store struct {
	db *sql.DB
}

// NewStore creates a case store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying handle
func (s *Store) DB() *sql.DB {
	return s.db
}

func scanCase(row interface{ Scan(...interface{}) error }) (*Case, error) {
	c := &Case{}
	var assignee, paralegal sql.NullString
	var closedAt sql.NullTime
	err := row.Scan(
		&c.ID, &c.CaseNumber, &c.DepartmentID, &c.Title, &c.Description, &c.CaseType,
		&c.Priority, &c.Status, &c.CreatedByID, &assignee, &paralegal,
		&c.OpenedAt, &closedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.AssignedToID = storage.StringValue(assignee)
	c.ParalegalID = storage.StringValue(paralegal)
	c.ClosedAt = storage.TimePtr(closedAt)
	return c, nil
}

// Insert writes a fully populated case
func (s *Store) Insert(ctx context.Context, q storage.DBTX, c *Case) error {
	query := `
		INSERT INTO cases (` + caseColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := q.ExecContext(ctx, query,
		c.ID, c.CaseNumber, c.DepartmentID, c.Title, c.Description, c.CaseType,
		string(c.Priority), string(c.Status), c.CreatedByID,
		storage.NullString(c.AssignedToID), storage.NullString(c.ParalegalID),
		c.OpenedAt, c.ClosedAt, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert case: %w", err)
	}
	return nil
}

// Get returns a case by id regardless of department. Callers must apply
// the tenant check to the result.
func (s *Store) Get(ctx context.Context, id string) (*Case, error) {
	return s.GetOn(ctx, s.db, id)
}

// GetOn is Get on q, so the read can share the transaction that writes
func (s *Store) GetOn(ctx context.Context, q storage.DBTX, id string) (*Case, error) {
	c, err := scanCase(q.QueryRowContext(ctx, "SELECT "+caseColumns+" FROM cases WHERE id = $1", id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get case: %w", err)
	}
	return c, nil
}

// GetScope loads the ownership fields of a case
func (s *Store) GetScope(ctx context.Context, id string) (Scope, error) {
	var sc Scope
	var assignee, paralegal sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT department_id, assigned_to_id, paralegal_id FROM cases WHERE id = $1", id,
	).Scan(&sc.DepartmentID, &assignee, &paralegal)
	if err == sql.ErrNoRows {
		return Scope{}, ErrNotFound
	}
	if err != nil {
		return Scope{}, fmt.Errorf("failed to get case scope: %w", err)
	}
	sc.AssignedToID = storage.StringValue(assignee)
	sc.ParalegalID = storage.StringValue(paralegal)
	return sc, nil
}

// List returns cases matching the filter, newest first. An empty
// DepartmentID is rejected so a listing is never unscoped by accident.
func (s *Store) List(ctx context.Context, f Filter) ([]*Case, error) {
	if f.DepartmentID == "" {
		return nil, fmt.Errorf("case listing requires a department")
	}

	query := "SELECT " + caseColumns + " FROM cases WHERE department_id = $1"
	args := []interface{}{f.DepartmentID}
	argCount := 1

	if f.Status != "" {
		argCount++
		query += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, string(f.Status))
	}
	if f.AssignedToID != "" {
		argCount++
		query += fmt.Sprintf(" AND assigned_to_id = $%d", argCount)
		args = append(args, f.AssignedToID)
	}
	if f.Search != "" {
		argCount++
		query += fmt.Sprintf(" AND (LOWER(title) LIKE $%d OR LOWER(case_number) LIKE $%d)", argCount, argCount)
		args = append(args, "%"+strings.ToLower(f.Search)+"%")
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	argCount++
	query += fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d", argCount)
	args = append(args, limit)
	if f.Offset > 0 {
		argCount++
		query += fmt.Sprintf(" OFFSET $%d", argCount)
		args = append(args, f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list cases: %w", err)
	}
	defer rows.Close()

	out := make([]*Case, 0)
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan case: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cases: %w", err)
	}
	return out, nil
}

// Apply writes the update to c and persists the changed columns. Moving to
// a terminal status sets closedAt. The write only lands while the row still
// has the status c was loaded with; otherwise ErrConflict is returned and
// the caller should reload.
func (s *Store) Apply(ctx context.Context, q storage.DBTX, c *Case, u Update, now time.Time) error {
	from := c.Status
	var sets []string
	var args []interface{}
	set := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if u.Title != nil {
		c.Title = *u.Title
		set("title", c.Title)
	}
	if u.Description != nil {
		c.Description = *u.Description
		set("description", c.Description)
	}
	if u.CaseType != nil {
		c.CaseType = *u.CaseType
		set("case_type", c.CaseType)
	}
	if u.Priority != nil {
		c.Priority = *u.Priority
		set("priority", string(c.Priority))
	}
	if u.Status != nil && *u.Status != c.Status {
		if !c.Status.CanTransition(*u.Status) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, c.Status, *u.Status)
		}
		c.Status = *u.Status
		set("status", string(c.Status))
		if c.Status.Terminal() {
			closed := now
			c.ClosedAt = &closed
			set("closed_at", c.ClosedAt)
		}
	}
	if u.AssignedToID != nil {
		c.AssignedToID = *u.AssignedToID
		set("assigned_to_id", storage.NullString(c.AssignedToID))
	}
	if u.ParalegalID != nil {
		c.ParalegalID = *u.ParalegalID
		set("paralegal_id", storage.NullString(c.ParalegalID))
	}
	c.UpdatedAt = now
	set("updated_at", c.UpdatedAt)

	args = append(args, c.ID, string(from))
	query := fmt.Sprintf("UPDATE cases SET %s WHERE id = $%d AND status = $%d",
		strings.Join(sets, ", "), len(args)-1, len(args))
	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update case: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update case: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s is no longer %s", ErrConflict, c.ID, from)
	}
	return nil
}

// DeleteWithDependents removes a case and every row that hangs off it. It
// returns the blob keys of the removed documents so the caller can delete
// content once the transaction commits.
func (s *Store) DeleteWithDependents(ctx context.Context, tx *sql.Tx, id string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, "SELECT storage_key FROM documents WHERE case_id = $1", id)
	if err != nil {
		return nil, fmt.Errorf("failed to list case documents: %w", err)
	}
	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan document key: %w", err)
		}
		keys = append(keys, key)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating document keys: %w", err)
	}

	statements := []string{
		"DELETE FROM custody_entries WHERE document_id IN (SELECT id FROM documents WHERE case_id = $1)",
		"DELETE FROM documents WHERE case_id = $1",
		"DELETE FROM tasks WHERE case_id = $1",
		"DELETE FROM activities WHERE case_id = $1",
		"UPDATE foil_requests SET case_id = NULL WHERE case_id = $1",
		"UPDATE messages SET case_id = NULL WHERE case_id = $1",
	}
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return nil, fmt.Errorf("failed to delete case dependents: %w", err)
		}
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM cases WHERE id = $1", id)
	if err != nil {
		return nil, fmt.Errorf("failed to delete case: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to delete case: %w", err)
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	return keys, nil
}
