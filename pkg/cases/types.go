package cases

import (
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("case not found")
	ErrInvalidTransition = errors.New("invalid case status transition")
	ErrConflict          = errors.New("case was changed by another request")
)

// Status of a case
type Status string

const (
	StatusOpen          Status = "OPEN"
	StatusInProgress    Status = "IN_PROGRESS"
	StatusPendingReview Status = "PENDING_REVIEW"
	StatusOnHold        Status = "ON_HOLD"
	StatusClosed        Status = "CLOSED"
	StatusDismissed     Status = "DISMISSED"
)

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusPendingReview, StatusOnHold, StatusClosed, StatusDismissed:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed
func (s Status) Terminal() bool {
	return s == StatusClosed || s == StatusDismissed
}

// CanTransition reports whether a case may move from s to next
func (s Status) CanTransition(next Status) bool {
	if !next.Valid() || s.Terminal() {
		return false
	}
	return s != next
}

// Priority of a case or task
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// Case is a matter handled by one department for its whole life
type Case struct {
	ID           string     `json:"id"`
	CaseNumber   string     `json:"caseNumber"`
	DepartmentID string     `json:"departmentId"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	CaseType     string     `json:"caseType"`
	Priority     Priority   `json:"priority"`
	Status       Status     `json:"status"`
	CreatedByID  string     `json:"createdById"`
	AssignedToID string     `json:"assignedToId,omitempty"`
	ParalegalID  string     `json:"paralegalId,omitempty"`
	OpenedAt     time.Time  `json:"openedAt"`
	ClosedAt     *time.Time `json:"closedAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Scope is the part of a case that access checks depend on
type Scope struct {
	DepartmentID string
	AssignedToID string
	ParalegalID  string
}

// Filter narrows a case listing. DepartmentID is always set by the caller's
// tenant context.
type Filter struct {
	DepartmentID string
	Status       Status
	AssignedToID string
	Search       string
	Limit        int
	Offset       int
}

// Update holds the editable fields; nil fields are unchanged
type Update struct {
	Title        *string   `json:"title,omitempty"`
	Description  *string   `json:"description,omitempty"`
	CaseType     *string   `json:"caseType,omitempty"`
	Priority     *Priority `json:"priority,omitempty"`
	Status       *Status   `json:"status,omitempty"`
	AssignedToID *string   `json:"assignedToId,omitempty"`
	ParalegalID  *string   `json:"paralegalId,omitempty"`
}

// Reassigns reports whether the update changes who owns the case
func (u Update) Reassigns() bool {
	return u.AssignedToID != nil || u.ParalegalID != nil
}

// CreateInput is a new case. The department and creator come from the
// session, never from the request body.
type CreateInput struct {
	Title        string   `json:"title" validate:"required,max=500"`
	Description  string   `json:"description,omitempty" validate:"max=20000"`
	CaseType     string   `json:"caseType,omitempty" validate:"max=100"`
	Priority     Priority `json:"priority,omitempty" validate:"omitempty,oneof=LOW MEDIUM HIGH URGENT"`
	AssignedToID string   `json:"assignedToId,omitempty"`
	ParalegalID  string   `json:"paralegalId,omitempty"`
}
