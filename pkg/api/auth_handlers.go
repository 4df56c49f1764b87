package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/docket/pkg/audit"
	"github.com/platinummonkey/docket/pkg/auth"
	"github.com/platinummonkey/docket/pkg/httputil"
	"github.com/platinummonkey/docket/pkg/observability"
	"github.com/platinummonkey/docket/pkg/rbac"
	"github.com/platinummonkey/docket/pkg/validation"
)

// LoginRequest is the body of POST /auth/login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// MeResponse is the current user and the operations its role grants
type MeResponse struct {
	*auth.User
	Operations []rbac.Operation `json:"operations"`
}

func (s *Server) registerAuthRoutes(r *mux.Router) {
	r.HandleFunc("/auth/logout", s.logout).Methods("POST")
	r.HandleFunc("/auth/me", s.me).Methods("GET")
	r.HandleFunc("/auth/sessions", s.listSessions).Methods("GET")
	r.HandleFunc("/auth/sessions/{id}", s.revokeSession).Methods("DELETE")
}

func (s *Server) countLogin(result string) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.LoginAttemptsTotal.WithLabelValues(result).Inc()
	}
}

// login handles POST /auth/login. Every attempt produces one audit record.
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req LoginRequest
	if !validation.DecodeOrError(w, r, &req) {
		return
	}
	ip := httputil.ClientIP(r)

	if s.deps.Throttle != nil && !s.deps.Throttle.Allow(ctx, ip, req.Email) {
		s.countLogin("throttled")
		s.deps.Recorder.RecordSync(ctx, &audit.Record{
			Action:      audit.ActionLoginFailed,
			Outcome:     audit.OutcomeDenied,
			EntityType:  audit.EntitySession,
			Description: "login rate limit exceeded",
			Metadata:    map[string]interface{}{"email": req.Email, "reason": "rate_limited"},
		})
		httputil.WriteTooManyRequests(w, "Too many login attempts")
		return
	}

	result, err := s.deps.Auth.Login(ctx, req.Email, req.Password, ip, r.UserAgent())
	if errors.Is(err, auth.ErrInvalidCredentials) || errors.Is(err, auth.ErrUserInactive) {
		s.countLogin("failure")
		rec := &audit.Record{
			Action:      audit.ActionLoginFailed,
			Outcome:     audit.OutcomeDenied,
			EntityType:  audit.EntitySession,
			Description: "invalid credentials",
			Metadata:    map[string]interface{}{"email": req.Email},
		}
		if s.deps.Throttle != nil {
			count, alert := s.deps.Throttle.RecordFailure(ctx, req.Email)
			rec.Metadata["failures"] = count
			if alert {
				rec.Severity = audit.SeverityCritical
				observability.FromContext(ctx).WithFields(map[string]interface{}{
					"client_ip": ip,
					"failures":  count,
				}).Warn("Repeated login failures")
			}
		}
		s.deps.Recorder.RecordSync(ctx, rec)
		httputil.WriteUnauthorized(w, "Invalid email or password")
		return
	}
	if err != nil {
		s.countLogin("error")
		s.deps.Recorder.Failed(ctx, nil, audit.Event{
			Action:     audit.ActionLogin,
			EntityType: audit.EntitySession,
			Metadata:   map[string]interface{}{"email": req.Email},
		}, err)
		observability.FromContext(ctx).WithError(err).Error("Login failed")
		httputil.WriteInternalError(w)
		return
	}

	s.countLogin("success")
	if s.deps.Throttle != nil {
		s.deps.Throttle.RecordSuccess(ctx, req.Email)
	}
	s.deps.Recorder.Record(ctx, &audit.Record{
		Action:       audit.ActionLogin,
		EntityType:   audit.EntitySession,
		EntityID:     result.Session.ID,
		UserID:       result.User.ID,
		DepartmentID: result.User.DepartmentID,
	})
	httputil.WriteSuccess(w, result)
}

// logout handles POST /auth/logout
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	session := auth.SessionFromContext(r.Context())
	ev := audit.Event{Action: audit.ActionLogout, EntityType: audit.EntitySession, EntityID: session.SessionID}
	if err := s.deps.Auth.Logout(r.Context(), session); err != nil {
		s.fail(w, r, ev, err)
		return
	}
	s.granted(r, ev)
	httputil.WriteNoContent(w)
}

// me handles GET /auth/me
func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	session := auth.SessionFromContext(r.Context())
	user, err := s.users.GetUser(r.Context(), session.UserID)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("Failed to load current user")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, MeResponse{User: user, Operations: rbac.OperationsFor(user.Role)})
}

// listSessions handles GET /auth/sessions
func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	session := auth.SessionFromContext(r.Context())
	sessions, err := s.users.ListSessions(r.Context(), session.UserID)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("Failed to list sessions")
		httputil.WriteInternalError(w)
		return
	}
	if sessions == nil {
		sessions = []*auth.SessionRecord{}
	}
	httputil.WriteSuccess(w, sessions)
}

// revokeSession handles DELETE /auth/sessions/{id}. Users revoke only their
// own sessions.
func (s *Server) revokeSession(w http.ResponseWriter, r *http.Request) {
	session := auth.SessionFromContext(r.Context())
	id := mux.Vars(r)["id"]
	ev := audit.Event{Action: audit.ActionSessionRevoke, EntityType: audit.EntitySession, EntityID: id}

	if err := s.users.RevokeSession(r.Context(), session.UserID, id); err != nil {
		s.fail(w, r, ev, err)
		return
	}
	s.granted(r, ev)
	httputil.WriteNoContent(w)
}
