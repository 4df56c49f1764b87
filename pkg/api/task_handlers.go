package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/docket/pkg/audit"
	"github.com/platinummonkey/docket/pkg/httputil"
	"github.com/platinummonkey/docket/pkg/rbac"
	"github.com/platinummonkey/docket/pkg/tasks"
	"github.com/platinummonkey/docket/pkg/validation"
)

// UpdateTaskRequest is the body of PATCH /tasks/{id}
type UpdateTaskRequest struct {
	Title        *string       `json:"title,omitempty" validate:"omitempty,min=1,max=500"`
	Description  *string       `json:"description,omitempty" validate:"omitempty,max=20000"`
	Status       *tasks.Status `json:"status,omitempty" validate:"omitempty,oneof=TODO IN_PROGRESS DONE CANCELLED"`
	Priority     *string       `json:"priority,omitempty" validate:"omitempty,oneof=LOW MEDIUM HIGH URGENT"`
	AssignedToID *string       `json:"assignedToId,omitempty"`
	DueDate      *time.Time    `json:"dueDate,omitempty"`
}

func (u UpdateTaskRequest) update() tasks.Update {
	return tasks.Update{
		Title:        u.Title,
		Description:  u.Description,
		Status:       u.Status,
		Priority:     u.Priority,
		AssignedToID: u.AssignedToID,
		DueDate:      u.DueDate,
	}
}

// TemplateRequest is the body of POST /task-templates
type TemplateRequest struct {
	Name        string               `json:"name" validate:"required,max=255"`
	Description string               `json:"description,omitempty" validate:"max=2000"`
	Items       []tasks.TemplateItem `json:"items" validate:"required,min=1,max=200,dive"`
}

func (s *Server) registerTaskRoutes(r *mux.Router) {
	r.Handle("/tasks", s.op(rbac.OpTaskRead, s.listTasks)).Methods("GET")
	r.Handle("/tasks/{id}", s.op(rbac.OpTaskUpdate, s.updateTask)).Methods("PATCH")
	r.Handle("/cases/{id}/tasks", s.op(rbac.OpTaskRead, s.listCaseTasks)).Methods("GET")
	r.Handle("/cases/{id}/tasks", s.op(rbac.OpTaskCreate, s.createTask)).Methods("POST")
	r.Handle("/cases/{id}/apply-template", s.op(rbac.OpTaskCreate, s.applyTemplate)).Methods("POST")
	r.Handle("/task-templates", s.op(rbac.OpTaskRead, s.listTemplates)).Methods("GET")
	r.Handle("/task-templates", s.op(rbac.OpTaskTemplateManage, s.createTemplate)).Methods("POST")
	r.Handle("/task-templates/{id}", s.op(rbac.OpTaskTemplateManage, s.deleteTemplate)).Methods("DELETE")
}

func taskEvent(op rbac.Operation, id string) audit.Event {
	return audit.Event{Action: op.String(), EntityType: audit.EntityTask, EntityID: id}
}

func templateEvent(id string) audit.Event {
	return audit.Event{Action: rbac.OpTaskTemplateManage.String(), EntityType: audit.EntityTaskTemplate, EntityID: id}
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	s.writeTasks(w, r, httputil.ParseQueryString(r, "case_id", ""))
}

func (s *Server) listCaseTasks(w http.ResponseWriter, r *http.Request) {
	s.writeTasks(w, r, mux.Vars(r)["id"])
}

func (s *Server) writeTasks(w http.ResponseWriter, r *http.Request, caseID string) {
	ev := taskEvent(rbac.OpTaskRead, "")
	if caseID != "" {
		ev = audit.Event{Action: rbac.OpTaskRead.String(), EntityType: audit.EntityCase, EntityID: caseID}
	}
	svc := s.tenant(r)
	if svc == nil {
		s.deny(w, r, ev)
		return
	}

	limit, offset, details := page(r)
	status := tasks.Status(strings.ToUpper(httputil.ParseQueryString(r, "status", "")))
	if status != "" && !status.Valid() {
		details["status"] = "unknown task status"
	}
	dueBefore, err := httputil.ParseQueryTime(r, "due_before")
	if err != nil {
		details["due_before"] = "must be an RFC 3339 timestamp"
	}
	if len(details) > 0 {
		httputil.WriteValidationErrors(w, details)
		return
	}

	list, err := svc.GetTasks(r.Context(), tasks.Filter{
		CaseID:       caseID,
		Status:       status,
		AssignedToID: httputil.ParseQueryString(r, "assigned_to", ""),
		DueBefore:    dueBefore,
		Limit:        limit,
		Offset:       offset,
	})
	if err != nil {
		s.fail(w, r, ev, err)
		return
	}
	if list == nil {
		list = []*tasks.Task{}
	}
	s.granted(r, ev)
	httputil.WriteSuccess(w, list)
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	caseID := mux.Vars(r)["id"]
	ev := taskEvent(rbac.OpTaskCreate, "")
	svc := s.tenant(r)
	if svc == nil {
		s.deny(w, r, ev)
		return
	}

	var in tasks.CreateInput
	if !validation.DecodeOrError(w, r, &in) {
		return
	}
	t, err := svc.CreateTask(r.Context(), caseID, in)
	if err != nil {
		s.fail(w, r, ev, err)
		return
	}

	ev.EntityID = t.ID
	ev.Metadata = map[string]interface{}{"caseId": caseID}
	s.granted(r, ev)
	httputil.WriteCreated(w, t)
}

func (s *Server) updateTask(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ev := taskEvent(rbac.OpTaskUpdate, id)
	svc := s.tenant(r)
	if svc == nil {
		s.deny(w, r, ev)
		return
	}

	var req UpdateTaskRequest
	if !validation.DecodeOrError(w, r, &req) {
		return
	}
	t, err := svc.UpdateTask(r.Context(), id, req.update())
	if err != nil {
		s.fail(w, r, ev, err)
		return
	}

	if req.Status != nil {
		ev.Metadata = map[string]interface{}{"status": string(t.Status)}
	}
	s.granted(r, ev)
	httputil.WriteSuccess(w, t)
}

func (s *Server) applyTemplate(w http.ResponseWriter, r *http.Request) {
	caseID := mux.Vars(r)["id"]
	ev := audit.Event{Action: rbac.OpTaskCreate.String(), EntityType: audit.EntityCase, EntityID: caseID}
	svc := s.tenant(r)
	if svc == nil {
		s.deny(w, r, ev)
		return
	}

	var in tasks.ApplyInput
	if !validation.DecodeOrError(w, r, &in) {
		return
	}
	created, err := svc.ApplyTemplate(r.Context(), caseID, in)
	if err != nil {
		s.fail(w, r, ev, err)
		return
	}

	ev.Description = "applied task template"
	ev.Metadata = map[string]interface{}{"templateId": in.TemplateID, "tasks": len(created)}
	s.granted(r, ev)
	httputil.WriteCreated(w, created)
}

func (s *Server) listTemplates(w http.ResponseWriter, r *http.Request) {
	ev := audit.Event{Action: rbac.OpTaskRead.String(), EntityType: audit.EntityTaskTemplate}
	svc := s.tenant(r)
	if svc == nil {
		s.deny(w, r, ev)
		return
	}

	list, err := s.deps.Tasks.ListTemplates(r.Context(), svc.Context().DepartmentID)
	if err != nil {
		s.fail(w, r, ev, err)
		return
	}
	if list == nil {
		list = []*tasks.Template{}
	}
	s.granted(r, ev)
	httputil.WriteSuccess(w, list)
}

func (s *Server) createTemplate(w http.ResponseWriter, r *http.Request) {
	ev := templateEvent("")
	svc := s.tenant(r)
	if svc == nil {
		s.deny(w, r, ev)
		return
	}

	var req TemplateRequest
	if !validation.DecodeOrError(w, r, &req) {
		return
	}
	tc := svc.Context()
	tpl := &tasks.Template{
		DepartmentID: tc.DepartmentID,
		Name:         strings.TrimSpace(req.Name),
		Description:  req.Description,
		Items:        req.Items,
		CreatedByID:  tc.UserID,
	}
	if err := s.deps.Tasks.CreateTemplate(r.Context(), tpl); err != nil {
		s.fail(w, r, ev, err)
		return
	}

	ev.EntityID = tpl.ID
	ev.Description = "created task template " + tpl.Name
	s.granted(r, ev)
	httputil.WriteCreated(w, tpl)
}

func (s *Server) deleteTemplate(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ev := templateEvent(id)
	ev.Description = "deleted task template"
	svc := s.tenant(r)
	if svc == nil {
		s.deny(w, r, ev)
		return
	}

	if err := s.deps.Tasks.DeleteTemplate(r.Context(), svc.Context().DepartmentID, id); err != nil {
		s.fail(w, r, ev, err)
		return
	}
	s.granted(r, ev)
	httputil.WriteNoContent(w)
}
