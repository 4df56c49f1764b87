package tasks

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/docket/pkg/storage"
)

const taskColumns = `t.id, t.case_id, t.title, t.description, t.status, t.priority,
	t.assigned_to_id, t.created_by_id, t.due_date, t.completed_at, t.created_at, t.updated_at`

// Store persists tasks and templates
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a task store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func scanTask(row interface{ Scan(...interface{}) error }) (*Task, error) {
	t := &Task{}
	var assignee sql.NullString
	var due, completed sql.NullTime
	err := row.Scan(&t.ID, &t.CaseID, &t.Title, &t.Description, &t.Status, &t.Priority,
		&assignee, &t.CreatedByID, &due, &completed, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.AssignedToID = storage.StringValue(assignee)
	t.DueDate = storage.TimePtr(due)
	t.CompletedAt = storage.TimePtr(completed)
	return t, nil
}

// Insert writes a task, filling id, status and timestamps when unset
func (s *Store) Insert(ctx context.Context, q storage.DBTX, t *Task) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Status == "" {
		t.Status = StatusTodo
	}
	if t.Priority == "" {
		t.Priority = "MEDIUM"
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}
	t.UpdatedAt = t.CreatedAt

	_, err := q.ExecContext(ctx, `
		INSERT INTO tasks (id, case_id, title, description, status, priority, assigned_to_id,
			created_by_id, due_date, completed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		t.ID, t.CaseID, t.Title, t.Description, string(t.Status), t.Priority,
		storage.NullString(t.AssignedToID), t.CreatedByID, t.DueDate, t.CompletedAt,
		t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

// GetInDepartment returns a task whose case belongs to the department. Tasks
// of other departments are reported as ErrNotFound.
func (s *Store) GetInDepartment(ctx context.Context, departmentID, id string) (*Task, error) {
	t, err := scanTask(s.db.QueryRowContext(ctx,
		"SELECT "+taskColumns+" FROM tasks t JOIN cases c ON c.id = t.case_id WHERE t.id = $1 AND c.department_id = $2",
		id, departmentID,
	))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return t, nil
}

// Get returns a task regardless of department
func (s *Store) Get(ctx context.Context, id string) (*Task, error) {
	t, err := scanTask(s.db.QueryRowContext(ctx, "SELECT "+taskColumns+" FROM tasks t WHERE t.id = $1", id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return t, nil
}

// List returns tasks in the filter's department, soonest due first
func (s *Store) List(ctx context.Context, f Filter) ([]*Task, error) {
	if f.DepartmentID == "" {
		return nil, fmt.Errorf("task listing requires a department")
	}

	query := "SELECT " + taskColumns + " FROM tasks t JOIN cases c ON c.id = t.case_id WHERE c.department_id = $1"
	args := []interface{}{f.DepartmentID}
	argCount := 1

	if f.CaseID != "" {
		argCount++
		query += fmt.Sprintf(" AND t.case_id = $%d", argCount)
		args = append(args, f.CaseID)
	}
	if f.Status != "" {
		argCount++
		query += fmt.Sprintf(" AND t.status = $%d", argCount)
		args = append(args, string(f.Status))
	}
	if f.AssignedToID != "" {
		argCount++
		query += fmt.Sprintf(" AND t.assigned_to_id = $%d", argCount)
		args = append(args, f.AssignedToID)
	}
	if f.DueBefore != nil {
		argCount++
		query += fmt.Sprintf(" AND t.due_date < $%d", argCount)
		args = append(args, *f.DueBefore)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	argCount++
	query += fmt.Sprintf(" ORDER BY t.due_date IS NULL, t.due_date, t.created_at, t.id LIMIT $%d", argCount)
	args = append(args, limit)
	if f.Offset > 0 {
		argCount++
		query += fmt.Sprintf(" OFFSET $%d", argCount)
		args = append(args, f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	out := make([]*Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return out, nil
}

// Apply writes the update to t and persists it. Moving to DONE stamps
// completedAt; leaving DONE clears it.
func (s *Store) Apply(ctx context.Context, t *Task, u Update) error {
	if u.Status != nil && !u.Status.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidStatus, *u.Status)
	}

	now := s.now()
	if u.Title != nil {
		t.Title = *u.Title
	}
	if u.Description != nil {
		t.Description = *u.Description
	}
	if u.Priority != nil {
		t.Priority = *u.Priority
	}
	if u.AssignedToID != nil {
		t.AssignedToID = *u.AssignedToID
	}
	if u.DueDate != nil {
		due := *u.DueDate
		t.DueDate = &due
	}
	if u.Status != nil && *u.Status != t.Status {
		t.Status = *u.Status
		if t.Status == StatusDone {
			t.CompletedAt = &now
		} else {
			t.CompletedAt = nil
		}
	}
	t.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET title = $1, description = $2, status = $3, priority = $4, assigned_to_id = $5,
		    due_date = $6, completed_at = $7, updated_at = $8
		WHERE id = $9`,
		t.Title, t.Description, string(t.Status), t.Priority, storage.NullString(t.AssignedToID),
		t.DueDate, t.CompletedAt, t.UpdatedAt, t.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	return nil
}

// CreateTemplate stores a department template
func (s *Store) CreateTemplate(ctx context.Context, tpl *Template) error {
	if len(tpl.Items) == 0 {
		return ErrEmptyTemplate
	}
	items, err := json.Marshal(tpl.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal template items: %w", err)
	}

	tpl.ID = uuid.New().String()
	tpl.CreatedAt = s.now()
	tpl.UpdatedAt = tpl.CreatedAt

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO task_templates (id, department_id, name, description, items, created_by_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		tpl.ID, tpl.DepartmentID, tpl.Name, tpl.Description, string(items), tpl.CreatedByID,
		tpl.CreatedAt, tpl.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create task template: %w", err)
	}
	return nil
}

func scanTemplate(row interface{ Scan(...interface{}) error }) (*Template, error) {
	tpl := &Template{}
	var items string
	if err := row.Scan(&tpl.ID, &tpl.DepartmentID, &tpl.Name, &tpl.Description, &items,
		&tpl.CreatedByID, &tpl.CreatedAt, &tpl.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(items), &tpl.Items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal template items: %w", err)
	}
	return tpl, nil
}

const templateColumns = "id, department_id, name, description, items, created_by_id, created_at, updated_at"

// GetTemplate returns a template of the department
func (s *Store) GetTemplate(ctx context.Context, departmentID, id string) (*Template, error) {
	tpl, err := scanTemplate(s.db.QueryRowContext(ctx,
		"SELECT "+templateColumns+" FROM task_templates WHERE id = $1 AND department_id = $2", id, departmentID))
	if err == sql.ErrNoRows {
		return nil, ErrTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task template: %w", err)
	}
	return tpl, nil
}

// ListTemplates returns the department's templates by name
func (s *Store) ListTemplates(ctx context.Context, departmentID string) ([]*Template, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+templateColumns+" FROM task_templates WHERE department_id = $1 ORDER BY name", departmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list task templates: %w", err)
	}
	defer rows.Close()

	out := make([]*Template, 0)
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task template: %w", err)
		}
		out = append(out, tpl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task templates: %w", err)
	}
	return out, nil
}

// DeleteTemplate removes a template of the department
func (s *Store) DeleteTemplate(ctx context.Context, departmentID, id string) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM task_templates WHERE id = $1 AND department_id = $2", id, departmentID)
	if err != nil {
		return fmt.Errorf("failed to delete task template: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete task template: %w", err)
	}
	if n == 0 {
		return ErrTemplateNotFound
	}
	return nil
}

// ApplyTemplate creates one task per template item on the case inside tx.
// Each due date is start plus the item's offset in calendar days.
func (s *Store) ApplyTemplate(ctx context.Context, tx *sql.Tx, tpl *Template, caseID, assigneeID, createdByID string, start time.Time) ([]*Task, error) {
	if len(tpl.Items) == 0 {
		return nil, ErrEmptyTemplate
	}

	now := s.now()
	created := make([]*Task, 0, len(tpl.Items))
	for _, item := range tpl.Items {
		due := start.AddDate(0, 0, item.OffsetDays)
		t := &Task{
			CaseID:       caseID,
			Title:        item.Title,
			Description:  item.Description,
			Priority:     item.Priority,
			AssignedToID: assigneeID,
			CreatedByID:  createdByID,
			DueDate:      &due,
			CreatedAt:    now,
		}
		if err := s.Insert(ctx, tx, t); err != nil {
			return nil, err
		}
		created = append(created, t)
	}
	return created, nil
}
