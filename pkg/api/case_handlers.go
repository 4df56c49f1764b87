package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/docket/pkg/audit"
	"github.com/platinummonkey/docket/pkg/auth"
	"github.com/platinummonkey/docket/pkg/cases"
	"github.com/platinummonkey/docket/pkg/httputil"
	"github.com/platinummonkey/docket/pkg/rbac"
	"github.com/platinummonkey/docket/pkg/validation"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// UpdateCaseRequest is the body of PATCH /cases/{id}
type UpdateCaseRequest struct {
	Title        *string         `json:"title,omitempty" validate:"omitempty,min=1,max=500"`
	Description  *string         `json:"description,omitempty" validate:"omitempty,max=20000"`
	CaseType     *string         `json:"caseType,omitempty" validate:"omitempty,max=100"`
	Priority     *cases.Priority `json:"priority,omitempty" validate:"omitempty,oneof=LOW MEDIUM HIGH URGENT"`
	Status       *cases.Status   `json:"status,omitempty" validate:"omitempty,oneof=OPEN IN_PROGRESS PENDING_REVIEW ON_HOLD CLOSED DISMISSED"`
	AssignedToID *string         `json:"assignedToId,omitempty"`
	ParalegalID  *string         `json:"paralegalId,omitempty"`
}

func (u UpdateCaseRequest) update() cases.Update {
	return cases.Update{
		Title:        u.Title,
		Description:  u.Description,
		CaseType:     u.CaseType,
		Priority:     u.Priority,
		Status:       u.Status,
		AssignedToID: u.AssignedToID,
		ParalegalID:  u.ParalegalID,
	}
}

// NoteRequest is the body of POST /cases/{id}/notes
type NoteRequest struct {
	Text string `json:"text" validate:"required,max=5000"`
}

func (s *Server) registerCaseRoutes(r *mux.Router) {
	r.Handle("/cases", s.op(rbac.OpCaseRead, s.listCases)).Methods("GET")
	r.Handle("/cases", s.op(rbac.OpCaseCreate, s.createCase)).Methods("POST")
	r.Handle("/cases/{id}", s.op(rbac.OpCaseRead, s.getCase)).Methods("GET")
	r.Handle("/cases/{id}", s.op(rbac.OpCaseUpdate, s.updateCase)).Methods("PATCH")
	r.Handle("/cases/{id}", s.op(rbac.OpCaseDelete, s.deleteCase)).Methods("DELETE")
	r.Handle("/cases/{id}/activities", s.op(rbac.OpCaseRead, s.caseActivities)).Methods("GET")
	r.Handle("/cases/{id}/notes", s.op(rbac.OpCaseUpdate, s.addNote)).Methods("POST")
	r.Handle("/activities", s.op(rbac.OpCaseRead, s.departmentActivities)).Methods("GET")
}

func caseEvent(op rbac.Operation, id string) audit.Event {
	return audit.Event{Action: op.String(), EntityType: audit.EntityCase, EntityID: id}
}

// page reads limit and offset, clamping the limit
func page(r *http.Request) (limit, offset int, details map[string]string) {
	details = map[string]string{}
	limit, err := httputil.ParseQueryInt(r, "limit", defaultPageSize)
	if err != nil || limit <= 0 {
		details["limit"] = "must be a positive integer"
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset, err = httputil.ParseQueryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		details["offset"] = "must be a non-negative integer"
	}
	return limit, offset, details
}

func (s *Server) listCases(w http.ResponseWriter, r *http.Request) {
	ev := caseEvent(rbac.OpCaseRead, "")
	svc := s.tenant(r)
	if svc == nil {
		s.deny(w, r, ev)
		return
	}

	limit, offset, details := page(r)
	status := cases.Status(httputil.ParseQueryString(r, "status", ""))
	if status != "" && !status.Valid() {
		details["status"] = "unknown case status"
	}
	if len(details) > 0 {
		httputil.WriteValidationErrors(w, details)
		return
	}

	list, err := svc.GetCases(r.Context(), cases.Filter{
		Status:       status,
		AssignedToID: httputil.ParseQueryString(r, "assigned_to", ""),
		Search:       httputil.ParseQueryString(r, "q", ""),
		Limit:        limit,
		Offset:       offset,
	})
	if err != nil {
		s.fail(w, r, ev, err)
		return
	}

	ev.Metadata = map[string]interface{}{"count": len(list)}
	s.granted(r, ev)
	httputil.WriteSuccess(w, map[string]interface{}{
		"cases":  list,
		"count":  len(list),
		"limit":  limit,
		"offset": offset,
	})
}

func (s *Server) createCase(w http.ResponseWriter, r *http.Request) {
	ev := caseEvent(rbac.OpCaseCreate, "")
	svc := s.tenant(r)
	if svc == nil {
		s.deny(w, r, ev)
		return
	}

	var in cases.CreateInput
	if !validation.DecodeOrError(w, r, &in) {
		return
	}
	if in.AssignedToID != "" || in.ParalegalID != "" {
		if !s.authorize(w, r, rbac.OpCaseAssign, caseEvent(rbac.OpCaseAssign, "")) {
			return
		}
	}

	c, err := svc.CreateCase(r.Context(), in)
	if err != nil {
		s.fail(w, r, ev, err)
		return
	}

	ev.EntityID = c.ID
	ev.Description = "opened case " + c.CaseNumber
	s.granted(r, ev)
	httputil.WriteCreated(w, c)
}

// authorize checks an operation beyond the route's own. On denial or error
// the response and audit record are written and false is returned.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request, op rbac.Operation, ev audit.Event) bool {
	allowed, err := s.deps.Checker.Authorize(r.Context(), auth.SessionFromContext(r.Context()), op)
	if err != nil {
		s.fail(w, r, ev, err)
		return false
	}
	if !allowed {
		s.deny(w, r, ev)
		return false
	}
	return true
}

func (s *Server) getCase(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ev := caseEvent(rbac.OpCaseRead, id)
	svc := s.tenant(r)
	if svc == nil {
		s.deny(w, r, ev)
		return
	}

	c, err := svc.GetCase(r.Context(), id)
	if err != nil {
		s.fail(w, r, ev, err)
		return
	}
	ev.DepartmentID = c.DepartmentID
	s.granted(r, ev)
	httputil.WriteSuccess(w, c)
}

// updateCase handles PATCH /cases/{id}. Reassignment additionally needs
// CASE_ASSIGN.
func (s *Server) updateCase(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ev := caseEvent(rbac.OpCaseUpdate, id)
	svc := s.tenant(r)
	if svc == nil {
		s.deny(w, r, ev)
		return
	}

	var req UpdateCaseRequest
	if !validation.DecodeOrError(w, r, &req) {
		return
	}
	u := req.update()
	if u.Reassigns() {
		ev = caseEvent(rbac.OpCaseAssign, id)
		if !s.authorize(w, r, rbac.OpCaseAssign, ev) {
			return
		}
	}

	c, err := svc.UpdateCase(r.Context(), id, u)
	if err != nil {
		s.fail(w, r, ev, err)
		return
	}

	ev.DepartmentID = c.DepartmentID
	if req.Status != nil {
		ev.Metadata = map[string]interface{}{"status": string(c.Status)}
	}
	s.granted(r, ev)
	httputil.WriteSuccess(w, c)
}

func (s *Server) deleteCase(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ev := caseEvent(rbac.OpCaseDelete, id)
	svc := s.tenant(r)
	if svc == nil {
		s.deny(w, r, ev)
		return
	}

	if err := svc.DeleteCase(r.Context(), id); err != nil {
		s.fail(w, r, ev, err)
		return
	}
	s.granted(r, ev)
	httputil.WriteNoContent(w)
}

func (s *Server) caseActivities(w http.ResponseWriter, r *http.Request) {
	s.listActivities(w, r, mux.Vars(r)["id"])
}

func (s *Server) departmentActivities(w http.ResponseWriter, r *http.Request) {
	s.listActivities(w, r, httputil.ParseQueryString(r, "case_id", ""))
}

func (s *Server) listActivities(w http.ResponseWriter, r *http.Request, caseID string) {
	ev := audit.Event{Action: rbac.OpCaseRead.String(), EntityType: audit.EntityActivity, EntityID: caseID}
	svc := s.tenant(r)
	if svc == nil {
		s.deny(w, r, ev)
		return
	}
	limit, _, details := page(r)
	if len(details) > 0 {
		httputil.WriteValidationErrors(w, details)
		return
	}

	feed, err := svc.GetActivities(r.Context(), caseID, limit)
	if err != nil {
		s.fail(w, r, ev, err)
		return
	}
	s.granted(r, ev)
	httputil.WriteSuccess(w, feed)
}

func (s *Server) addNote(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ev := audit.Event{Action: rbac.OpCaseUpdate.String(), EntityType: audit.EntityCase, EntityID: id, Description: "added note"}
	svc := s.tenant(r)
	if svc == nil {
		s.deny(w, r, ev)
		return
	}

	var req NoteRequest
	if !validation.DecodeOrError(w, r, &req) {
		return
	}

	note, err := svc.AddNote(r.Context(), id, req.Text)
	if err != nil {
		s.fail(w, r, ev, err)
		return
	}
	s.granted(r, ev)
	httputil.WriteCreated(w, note)
}
