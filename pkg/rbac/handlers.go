package rbac

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/docket/pkg/audit"
	"github.com/platinummonkey/docket/pkg/auth"
	"github.com/platinummonkey/docket/pkg/httputil"
)

// UserLookup resolves grant targets
type UserLookup interface {
	GetUser(ctx context.Context, id string) (*auth.User, error)
}

// Handlers exposes grant management over HTTP
type Handlers struct {
	store    *Store
	checker  *Checker
	users    UserLookup
	mw       *Middleware
	recorder *audit.Recorder
}

// NewHandlers creates the grant management handlers
func NewHandlers(store *Store, checker *Checker, users UserLookup, recorder *audit.Recorder) *Handlers {
	return &Handlers{
		store:    store,
		checker:  checker,
		users:    users,
		mw:       NewMiddleware(checker, recorder),
		recorder: recorder,
	}
}

// RegisterRoutes registers the grant routes
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	guard := h.mw.RequireOperation(OpSecurityConfig)

	r.Handle("/security/users/{id}/grants", guard(http.HandlerFunc(h.listGrants))).Methods("GET")
	r.Handle("/security/users/{id}/grants", guard(http.HandlerFunc(h.createGrant))).Methods("POST")
	r.Handle("/security/users/{id}/grants/{operation}", guard(http.HandlerFunc(h.revokeGrant))).Methods("DELETE")
	r.HandleFunc("/security/me/permissions", h.myPermissions).Methods("GET")
}

// GrantRequest is the body of a grant creation request
type GrantRequest struct {
	Operation Operation  `json:"operation"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// PermissionsResponse lists the caller's effective operations
type PermissionsResponse struct {
	UserID     string      `json:"userId"`
	Role       auth.Role   `json:"role"`
	Operations []Operation `json:"operations"`
}

func (h *Handlers) event(userID string) audit.Event {
	return audit.Event{
		Action:     OpSecurityConfig.String(),
		EntityType: audit.EntityPermissionGrant,
		EntityID:   userID,
	}
}

// lookupUser writes the error response and returns false when the target
// user cannot be resolved
func (h *Handlers) lookupUser(w http.ResponseWriter, r *http.Request, session *auth.Session, userID string) bool {
	if _, err := h.users.GetUser(r.Context(), userID); err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			httputil.WriteNotFoundError(w, "User not found")
			return false
		}
		h.recorder.Failed(r.Context(), session, h.event(userID), err)
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "Failed to load user")
		return false
	}
	return true
}

func (h *Handlers) listGrants(w http.ResponseWriter, r *http.Request) {
	session := auth.SessionFromContext(r.Context())
	userID := mux.Vars(r)["id"]
	if !h.lookupUser(w, r, session, userID) {
		return
	}

	grants, err := h.store.ListGrants(r.Context(), userID)
	if err != nil {
		h.recorder.Failed(r.Context(), session, h.event(userID), err)
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "Failed to list grants")
		return
	}

	ev := h.event(userID)
	ev.Description = "listed permission grants"
	ev.Severity = audit.SeverityLow
	h.recorder.Granted(r.Context(), session, ev)
	httputil.WriteSuccess(w, grants)
}

func (h *Handlers) createGrant(w http.ResponseWriter, r *http.Request) {
	session := auth.SessionFromContext(r.Context())
	userID := mux.Vars(r)["id"]

	var req GrantRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}
	if !req.Operation.Valid() {
		httputil.WriteDetailedError(w, http.StatusBadRequest, errors.New("validation failed"),
			map[string]string{"operation": "unknown operation"})
		return
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(time.Now()) {
		httputil.WriteDetailedError(w, http.StatusBadRequest, errors.New("validation failed"),
			map[string]string{"expiresAt": "must be in the future"})
		return
	}

	ev := h.event(userID)
	ev.Metadata = map[string]interface{}{"operation": req.Operation.String()}

	// A grantor can only delegate operations it holds itself
	allowed, err := h.checker.Authorize(r.Context(), session, req.Operation)
	if err != nil {
		h.recorder.Failed(r.Context(), session, ev, err)
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "Permission check failed")
		return
	}
	if !allowed {
		h.recorder.Denied(r.Context(), session, ev)
		httputil.WriteForbidden(w, "Insufficient permissions")
		return
	}

	if !h.lookupUser(w, r, session, userID) {
		return
	}

	grant := &Grant{
		UserID:    userID,
		Operation: req.Operation,
		GrantedBy: session.UserID,
		GrantedAt: time.Now().UTC(),
		ExpiresAt: req.ExpiresAt,
	}
	if err := h.store.SaveGrant(r.Context(), grant); err != nil {
		h.recorder.Failed(r.Context(), session, ev, err)
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "Failed to save grant")
		return
	}
	h.checker.Invalidate(userID)

	ev.Description = "granted " + req.Operation.String()
	h.recorder.Granted(r.Context(), session, ev)
	httputil.WriteCreated(w, grant)
}

func (h *Handlers) revokeGrant(w http.ResponseWriter, r *http.Request) {
	session := auth.SessionFromContext(r.Context())
	vars := mux.Vars(r)
	userID := vars["id"]

	op, err := ParseOperation(vars["operation"])
	if err != nil {
		httputil.WriteBadRequest(w, "Unknown operation")
		return
	}

	ev := h.event(userID)
	ev.Metadata = map[string]interface{}{"operation": op.String()}

	if err := h.store.RevokeGrant(r.Context(), userID, op); err != nil {
		if errors.Is(err, ErrGrantNotFound) {
			httputil.WriteNotFoundError(w, "Grant not found")
			return
		}
		h.recorder.Failed(r.Context(), session, ev, err)
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "Failed to revoke grant")
		return
	}
	h.checker.Invalidate(userID)

	ev.Description = "revoked " + op.String()
	h.recorder.Granted(r.Context(), session, ev)
	httputil.WriteNoContent(w)
}

func (h *Handlers) myPermissions(w http.ResponseWriter, r *http.Request) {
	session := auth.SessionFromContext(r.Context())
	if session == nil {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	ops, err := h.checker.EffectiveOperations(r.Context(), session)
	if err != nil {
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "Failed to load permissions")
		return
	}
	if ops == nil {
		ops = []Operation{}
	}

	httputil.WriteSuccess(w, PermissionsResponse{
		UserID:     session.UserID,
		Role:       session.Role,
		Operations: ops,
	})
}
