package auth

import (
	"errors"
	"time"
)

// Role is a user's position in the role hierarchy
type Role string

const (
	RoleAdmin      Role = "ADMIN"       // Full access across departments
	RoleAttorney   Role = "ATTORNEY"    // Legal staff, edits cases in own department
	RoleParalegal  Role = "PARALEGAL"   // Edits cases they are assigned to
	RoleClientDept Role = "CLIENT_DEPT" // Client department staff
	RoleUser       Role = "USER"        // Read-only
)

// Roles lists every known role from most to least privileged
var Roles = []Role{RoleAdmin, RoleAttorney, RoleParalegal, RoleClientDept, RoleUser}

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserInactive       = errors.New("user is inactive")
	ErrEmailTaken         = errors.New("email already registered")
	ErrSessionInvalid     = errors.New("session is invalid or expired")
	ErrSessionNotFound    = errors.New("session not found")
)

// User is an account that can sign in
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	PasswordHash string     `json:"-"`
	Role         Role       `json:"role"`
	DepartmentID string     `json:"departmentId,omitempty"`
	Active       bool       `json:"active"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	LastLoginAt  *time.Time `json:"lastLoginAt,omitempty"`
}

// Session is the request-scoped identity built from the stored user on every
// request. DepartmentID is empty for users without a department.
type Session struct {
	SessionID    string
	UserID       string
	DepartmentID string
	Role         Role
}

// SessionRecord is a persisted login session referenced by a token's jti
type SessionRecord struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt time.Time  `json:"expiresAt"`
	RevokedAt *time.Time `json:"revokedAt,omitempty"`
	IPAddress string     `json:"ipAddress,omitempty"`
	UserAgent string     `json:"userAgent,omitempty"`
}

// Active reports whether the session can still authenticate requests
func (s *SessionRecord) Active(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

// UserUpdate holds the admin-editable user fields; nil fields are unchanged
type UserUpdate struct {
	Name         *string
	Role         *Role
	DepartmentID *string
	Active       *bool
}
