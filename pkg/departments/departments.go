// Package departments manages tenants. Every case, FOIL request and
// template belongs to exactly one department, and the department code
// namespaces the identifiers issued for it.
package departments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/docket/pkg/storage"
)

var (
	ErrNotFound   = errors.New("department not found")
	ErrCodeTaken  = errors.New("department code already in use")
	ErrCodeLocked = errors.New("department code cannot change once cases exist")
	ErrInUse      = errors.New("department still has users or cases")
	ErrInvalid    = errors.New("invalid department")
)

var codePattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9-]{0,31}$`)

// Department is a tenant
type Department struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NormalizeCode upper-cases and trims a department code
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidateCode checks an already normalized code
func ValidateCode(code string) error {
	if !codePattern.MatchString(code) {
		return fmt.Errorf("%w: code must be 1-32 upper-case letters, digits or dashes", ErrInvalid)
	}
	return nil
}

// Store persists departments
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a department store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Create inserts a department, assigning its id and timestamps
func (s *Store) Create(ctx context.Context, d *Department) error {
	d.Code = NormalizeCode(d.Code)
	d.Name = strings.TrimSpace(d.Name)
	if d.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if err := ValidateCode(d.Code); err != nil {
		return err
	}

	d.ID = uuid.New().String()
	d.CreatedAt = s.now()
	d.UpdatedAt = d.CreatedAt

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO departments (id, name, code, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)",
		d.ID, d.Name, d.Code, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		if storage.IsUniqueViolation(err) {
			return ErrCodeTaken
		}
		return fmt.Errorf("failed to create department: %w", err)
	}
	return nil
}

func (s *Store) getWhere(ctx context.Context, where string, arg interface{}) (*Department, error) {
	d := &Department{}
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, code, created_at, updated_at FROM departments WHERE "+where, arg,
	).Scan(&d.ID, &d.Name, &d.Code, &d.CreatedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get department: %w", err)
	}
	return d, nil
}

// Get returns the department with the given id
func (s *Store) Get(ctx context.Context, id string) (*Department, error) {
	return s.getWhere(ctx, "id = $1", id)
}

// GetByCode returns the department with the given code
func (s *Store) GetByCode(ctx context.Context, code string) (*Department, error) {
	return s.getWhere(ctx, "code = $1", NormalizeCode(code))
}

// List returns every department ordered by code
func (s *Store) List(ctx context.Context) ([]*Department, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, code, created_at, updated_at FROM departments ORDER BY code")
	if err != nil {
		return nil, fmt.Errorf("failed to list departments: %w", err)
	}
	defer rows.Close()

	out := make([]*Department, 0)
	for rows.Next() {
		d := &Department{}
		if err := rows.Scan(&d.ID, &d.Name, &d.Code, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan department: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating departments: %w", err)
	}
	return out, nil
}

// Update renames a department and optionally changes its code. The code is
// locked once any case references the department.
func (s *Store) Update(ctx context.Context, id string, name, code *string) (*Department, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if name != nil {
		d.Name = strings.TrimSpace(*name)
		if d.Name == "" {
			return nil, fmt.Errorf("%w: name is required", ErrInvalid)
		}
	}
	if code != nil && NormalizeCode(*code) != d.Code {
		newCode := NormalizeCode(*code)
		if err := ValidateCode(newCode); err != nil {
			return nil, err
		}
		var cases int
		if err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM cases WHERE department_id = $1", id).Scan(&cases); err != nil {
			return nil, fmt.Errorf("failed to count cases: %w", err)
		}
		if cases > 0 {
			return nil, ErrCodeLocked
		}
		d.Code = newCode
	}
	d.UpdatedAt = s.now()

	_, err = s.db.ExecContext(ctx,
		"UPDATE departments SET name = $1, code = $2, updated_at = $3 WHERE id = $4",
		d.Name, d.Code, d.UpdatedAt, id,
	)
	if err != nil {
		if storage.IsUniqueViolation(err) {
			return nil, ErrCodeTaken
		}
		return nil, fmt.Errorf("failed to update department: %w", err)
	}
	return d, nil
}

// Delete removes a department that no user or case references
func (s *Store) Delete(ctx context.Context, id string) error {
	var refs int
	err := s.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM users WHERE department_id = $1)
		     + (SELECT COUNT(*) FROM cases WHERE department_id = $1)
	`, id).Scan(&refs)
	if err != nil {
		return fmt.Errorf("failed to count department references: %w", err)
	}
	if refs > 0 {
		return ErrInUse
	}

	result, err := s.db.ExecContext(ctx, "DELETE FROM departments WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete department: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete department: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
