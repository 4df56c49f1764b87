package tasks

import (
	"errors"
	"time"

	"github.com/platinummonkey/docket/pkg/auth"
)

var (
	ErrNotFound         = errors.New("task not found")
	ErrTemplateNotFound = errors.New("task template not found")
	ErrInvalidStatus    = errors.New("invalid task status")
	ErrEmptyTemplate    = errors.New("task template has no items")
)

// Status of a task
type Status string

const (
	StatusTodo       Status = "TODO"
	StatusInProgress Status = "IN_PROGRESS"
	StatusDone       Status = "DONE"
	StatusCancelled  Status = "CANCELLED"
)

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone, StatusCancelled:
		return true
	}
	return false
}

// Task is a unit of work on a case
type Task struct {
	ID           string     `json:"id"`
	CaseID       string     `json:"caseId"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Status       Status     `json:"status"`
	Priority     string     `json:"priority"`
	AssignedToID string     `json:"assignedToId,omitempty"`
	CreatedByID  string     `json:"createdById"`
	DueDate      *time.Time `json:"dueDate,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Filter narrows a task listing. DepartmentID is mandatory; the store joins
// through cases to apply it.
type Filter struct {
	DepartmentID string
	CaseID       string
	Status       Status
	AssignedToID string
	DueBefore    *time.Time
	Limit        int
	Offset       int
}

// Update holds the editable fields; nil fields are unchanged
type Update struct {
	Title        *string    `json:"title,omitempty"`
	Description  *string    `json:"description,omitempty"`
	Status       *Status    `json:"status,omitempty"`
	Priority     *string    `json:"priority,omitempty"`
	AssignedToID *string    `json:"assignedToId,omitempty"`
	DueDate      *time.Time `json:"dueDate,omitempty"`
}

// TemplateItem becomes one task when a template is applied
type TemplateItem struct {
	Title       string `json:"title" validate:"required,max=500"`
	Description string `json:"description,omitempty"`
	OffsetDays  int    `json:"offsetDays" validate:"gte=0,lte=3650"`
	Priority    string `json:"priority,omitempty" validate:"omitempty,oneof=LOW MEDIUM HIGH URGENT"`
}

// Template is a reusable checklist owned by a department
type Template struct {
	ID           string         `json:"id"`
	DepartmentID string         `json:"departmentId"`
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	Items        []TemplateItem `json:"items"`
	CreatedByID  string         `json:"createdById"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// AssigneeRestricted reports whether the role only sees and updates tasks
// assigned to the user
func AssigneeRestricted(role auth.Role) bool {
	return role == auth.RoleParalegal || role == auth.RoleClientDept
}

// CanUpdate reports whether the session may change the task. Department
// access to the task's case is checked separately.
func CanUpdate(s *auth.Session, t *Task) bool {
	if s == nil {
		return false
	}
	if AssigneeRestricted(s.Role) {
		return t.AssignedToID != "" && t.AssignedToID == s.UserID
	}
	return true
}

// CreateInput is a new task on a case
type CreateInput struct {
	Title        string     `json:"title" validate:"required,max=500"`
	Description  string     `json:"description,omitempty"`
	Priority     string     `json:"priority,omitempty" validate:"omitempty,oneof=LOW MEDIUM HIGH URGENT"`
	AssignedToID string     `json:"assignedToId,omitempty"`
	DueDate      *time.Time `json:"dueDate,omitempty"`
}

// ApplyInput applies a template to a case
type ApplyInput struct {
	TemplateID   string     `json:"templateId" validate:"required"`
	AssignedToID string     `json:"assignedToId,omitempty"`
	StartDate    *time.Time `json:"startDate,omitempty"`
}
