package rbac

import (
	"errors"

	"github.com/platinummonkey/docket/pkg/auth"
)

// ErrAccessDenied is returned for tenant and ownership denials. A missing
// resource is reported the same way so callers cannot probe for existence.
var ErrAccessDenied = errors.New("access denied")

// CaseScope carries the case fields that ownership checks depend on.
// DepartmentID must come from the store, never from the request.
type CaseScope struct {
	DepartmentID string
	OwnerID      string // assignee
	ParalegalID  string
}

func departmentMismatch(s *auth.Session, c CaseScope) bool {
	return s.DepartmentID != "" && c.DepartmentID != "" && s.DepartmentID != c.DepartmentID
}

// CanAccessCase reports whether the session may read the case
func CanAccessCase(s *auth.Session, c CaseScope) bool {
	if s == nil {
		return false
	}
	if s.Role == auth.RoleAdmin {
		return true
	}
	if departmentMismatch(s, c) {
		return false
	}
	return HasPermission(s.Role, OpCaseRead)
}

// CanEditCase reports whether the session may modify the case. Attorneys
// edit within their own department; paralegals only cases they own or
// support.
func CanEditCase(s *auth.Session, c CaseScope) bool {
	if s == nil {
		return false
	}
	if s.Role == auth.RoleAdmin {
		return true
	}
	if departmentMismatch(s, c) {
		return false
	}

	switch s.Role {
	case auth.RoleAttorney:
		return s.DepartmentID != "" && s.DepartmentID == c.DepartmentID
	case auth.RoleParalegal:
		return s.UserID != "" && (c.OwnerID == s.UserID || c.ParalegalID == s.UserID)
	default:
		return false
	}
}

// CanDeleteCase reports whether the session may delete the case
func CanDeleteCase(s *auth.Session, c CaseScope) bool {
	if s == nil {
		return false
	}
	if s.Role == auth.RoleAdmin {
		return true
	}
	if departmentMismatch(s, c) {
		return false
	}
	return HasPermission(s.Role, OpCaseDelete)
}
