package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/docket/pkg/audit"
	"github.com/platinummonkey/docket/pkg/auth"
	"github.com/platinummonkey/docket/pkg/httputil"
	"github.com/platinummonkey/docket/pkg/rbac"
	"github.com/platinummonkey/docket/pkg/validation"
)

// CreateUserRequest is the body of POST /users
type CreateUserRequest struct {
	Email        string    `json:"email" validate:"required,email,max=255"`
	Name         string    `json:"name" validate:"required,max=255"`
	Password     string    `json:"password" validate:"required,min=10,max=128"`
	Role         auth.Role `json:"role" validate:"required,oneof=ADMIN ATTORNEY PARALEGAL CLIENT_DEPT USER"`
	DepartmentID string    `json:"departmentId,omitempty"`
}

// UpdateUserRequest is the body of PATCH /users/{id}
type UpdateUserRequest struct {
	Name         *string    `json:"name,omitempty" validate:"omitempty,max=255"`
	Role         *auth.Role `json:"role,omitempty" validate:"omitempty,oneof=ADMIN ATTORNEY PARALEGAL CLIENT_DEPT USER"`
	DepartmentID *string    `json:"departmentId,omitempty"`
	Active       *bool      `json:"active,omitempty"`
}

// PasswordRequest is the body of PUT /users/{id}/password
type PasswordRequest struct {
	Password string `json:"password" validate:"required,min=10,max=128"`
}

func (s *Server) registerUserRoutes(r *mux.Router) {
	r.Handle("/users", s.op(rbac.OpUserManage, s.listUsers)).Methods("GET")
	r.Handle("/users", s.op(rbac.OpUserManage, s.createUser)).Methods("POST")
	r.Handle("/users/{id}", s.op(rbac.OpUserManage, s.getUser)).Methods("GET")
	r.Handle("/users/{id}", s.op(rbac.OpUserManage, s.updateUser)).Methods("PATCH")
	r.Handle("/users/{id}/password", s.op(rbac.OpUserManage, s.setPassword)).Methods("PUT")
	r.Handle("/users/{id}/sessions", s.op(rbac.OpUserManage, s.revokeUserSessions)).Methods("DELETE")
}

func userEvent(id, description string) audit.Event {
	return audit.Event{
		Action:      rbac.OpUserManage.String(),
		EntityType:  audit.EntityUser,
		EntityID:    id,
		Description: description,
	}
}

// checkDepartment reports whether a department reference is empty or exists
func (s *Server) checkDepartment(w http.ResponseWriter, r *http.Request, id string) bool {
	if id == "" {
		return true
	}
	if _, err := s.deps.Departments.Get(r.Context(), id); err != nil {
		httputil.WriteValidationErrors(w, map[string]string{"departmentId": "unknown department"})
		return false
	}
	return true
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	dept := httputil.ParseQueryString(r, "department_id", "")
	ev := userEvent("", "listed users")
	ev.Severity = audit.SeverityLow

	users, err := s.users.ListUsers(r.Context(), dept)
	if err != nil {
		s.fail(w, r, ev, err)
		return
	}
	if users == nil {
		users = []*auth.User{}
	}
	s.granted(r, ev)
	httputil.WriteSuccess(w, users)
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if !validation.DecodeOrError(w, r, &req) {
		return
	}
	if !s.checkDepartment(w, r, req.DepartmentID) {
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		httputil.WriteValidationErrors(w, map[string]string{"password": err.Error()})
		return
	}
	user := &auth.User{
		Email:        req.Email,
		Name:         strings.TrimSpace(req.Name),
		PasswordHash: hash,
		Role:         req.Role,
		DepartmentID: req.DepartmentID,
		Active:       true,
	}
	if err := s.users.CreateUser(r.Context(), user); err != nil {
		s.fail(w, r, userEvent("", "create user"), err)
		return
	}

	ev := userEvent(user.ID, "created user")
	ev.Metadata = map[string]interface{}{"role": string(user.Role), "departmentId": user.DepartmentID}
	s.granted(r, ev)
	httputil.WriteCreated(w, user)
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ev := userEvent(id, "viewed user")
	ev.Severity = audit.SeverityLow

	user, err := s.users.GetUser(r.Context(), id)
	if err != nil {
		s.fail(w, r, ev, err)
		return
	}
	s.granted(r, ev)
	httputil.WriteSuccess(w, user)
}

// updateUser handles PATCH /users/{id}. Deactivation revokes every session
// of the user.
func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req UpdateUserRequest
	if !validation.DecodeOrError(w, r, &req) {
		return
	}
	if req.DepartmentID != nil && !s.checkDepartment(w, r, *req.DepartmentID) {
		return
	}

	user, err := s.users.UpdateUser(r.Context(), id, auth.UserUpdate{
		Name:         req.Name,
		Role:         req.Role,
		DepartmentID: req.DepartmentID,
		Active:       req.Active,
	})
	if err != nil {
		s.fail(w, r, userEvent(id, "update user"), err)
		return
	}

	changes := map[string]interface{}{}
	if req.Role != nil {
		changes["role"] = string(*req.Role)
	}
	if req.DepartmentID != nil {
		changes["departmentId"] = *req.DepartmentID
	}
	if req.Active != nil {
		changes["active"] = *req.Active
	}
	ev := userEvent(id, "updated user")
	ev.Metadata = changes
	s.granted(r, ev)
	httputil.WriteSuccess(w, user)
}

func (s *Server) setPassword(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req PasswordRequest
	if !validation.DecodeOrError(w, r, &req) {
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		httputil.WriteValidationErrors(w, map[string]string{"password": err.Error()})
		return
	}
	if err := s.users.SetPassword(r.Context(), id, hash); err != nil {
		s.fail(w, r, userEvent(id, "set password"), err)
		return
	}
	s.granted(r, userEvent(id, "reset password"))
	httputil.WriteNoContent(w)
}

func (s *Server) revokeUserSessions(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.users.GetUser(r.Context(), id); err != nil {
		s.fail(w, r, userEvent(id, "revoke sessions"), err)
		return
	}
	n, err := s.users.RevokeUserSessions(r.Context(), id)
	if err != nil {
		s.fail(w, r, userEvent(id, "revoke sessions"), err)
		return
	}

	ev := userEvent(id, "revoked all sessions")
	ev.Metadata = map[string]interface{}{"revoked": n}
	s.granted(r, ev)
	httputil.WriteSuccess(w, map[string]int64{"revoked": n})
}
