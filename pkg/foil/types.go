package foil

import (
	"errors"
	"time"
)

var (
	ErrInvalidTransition = errors.New("invalid FOIL status transition")
	ErrConflict          = errors.New("FOIL request was changed by another request")
	ErrNoDepartment      = errors.New("FOIL requests require a department")
	ErrInvalidExtension  = errors.New("extension must be at least one business day")
	ErrInvalidStatus     = errors.New("unknown FOIL status")
	ErrInvalidAssignee   = errors.New("assignee must be an active user of the department")
)

// Statutory response windows in business days
const (
	AcknowledgeDays = 5
	ResponseDays    = 20
)

// Status of a FOIL request
type Status string

const (
	StatusReceived         Status = "RECEIVED"
	StatusAcknowledged     Status = "ACKNOWLEDGED"
	StatusInProgress       Status = "IN_PROGRESS"
	StatusExtended         Status = "EXTENDED"
	StatusGranted          Status = "GRANTED"
	StatusPartiallyGranted Status = "PARTIALLY_GRANTED"
	StatusDenied           Status = "DENIED"
	StatusClosed           Status = "CLOSED"
)

var transitions = map[Status][]Status{
	StatusReceived:     {StatusAcknowledged, StatusInProgress, StatusDenied, StatusClosed},
	StatusAcknowledged: {StatusInProgress, StatusExtended, StatusGranted, StatusPartiallyGranted, StatusDenied, StatusClosed},
	StatusInProgress:   {StatusExtended, StatusGranted, StatusPartiallyGranted, StatusDenied, StatusClosed},
	StatusExtended:     {StatusInProgress, StatusExtended, StatusGranted, StatusPartiallyGranted, StatusDenied, StatusClosed},
}

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusReceived, StatusAcknowledged, StatusInProgress, StatusExtended,
		StatusGranted, StatusPartiallyGranted, StatusDenied, StatusClosed:
		return true
	}
	return false
}

// Terminal reports whether the request is finished
func (s Status) Terminal() bool {
	switch s {
	case StatusGranted, StatusPartiallyGranted, StatusDenied, StatusClosed:
		return true
	}
	return false
}

// CanTransition reports whether the table allows moving from s to next
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Request is a freedom-of-information request handled by a department
type Request struct {
	ID             string     `json:"id"`
	DepartmentID   string     `json:"departmentId"`
	RequestNumber  string     `json:"requestNumber"`
	CaseID         string     `json:"caseId,omitempty"`
	RequesterName  string     `json:"requesterName"`
	RequesterEmail string     `json:"requesterEmail,omitempty"`
	Subject        string     `json:"subject"`
	Description    string     `json:"description"`
	Status         Status     `json:"status"`
	ReceivedAt     time.Time  `json:"receivedAt"`
	AcknowledgeBy  time.Time  `json:"acknowledgeBy"`
	DueAt          time.Time  `json:"dueAt"`
	AssignedToID   string     `json:"assignedToId,omitempty"`
	CreatedByID    string     `json:"createdById"`
	ClosedAt       *time.Time `json:"closedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// Overdue reports whether the response deadline has passed
func (r *Request) Overdue(now time.Time) bool {
	return !r.Status.Terminal() && now.After(r.DueAt)
}

// StatusChange is one row of a request's history
type StatusChange struct {
	ID          string    `json:"id"`
	RequestID   string    `json:"requestId"`
	FromStatus  Status    `json:"fromStatus,omitempty"`
	ToStatus    Status    `json:"toStatus"`
	ChangedByID string    `json:"changedById"`
	Note        string    `json:"note,omitempty"`
	ChangedAt   time.Time `json:"changedAt"`
}

// CreateInput is a new request as received
type CreateInput struct {
	RequesterName  string     `json:"requesterName" validate:"required,max=255"`
	RequesterEmail string     `json:"requesterEmail,omitempty" validate:"omitempty,email"`
	Subject        string     `json:"subject" validate:"required,max=500"`
	Description    string     `json:"description,omitempty"`
	CaseID         string     `json:"caseId,omitempty"`
	AssignedToID   string     `json:"assignedToId,omitempty"`
	ReceivedAt     *time.Time `json:"receivedAt,omitempty"`
}

// TransitionInput moves a request to a new status
type TransitionInput struct {
	Status     Status `json:"status" validate:"required"`
	Note       string `json:"note,omitempty" validate:"max=2000"`
	ExtendDays int    `json:"extendDays,omitempty" validate:"gte=0,lte=250"`
}

// Filter narrows a listing within a department
type Filter struct {
	Status      Status
	OverdueOnly bool
	Limit       int
	Offset      int
}
