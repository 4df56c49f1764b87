package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/docket/pkg/audit"
	"github.com/platinummonkey/docket/pkg/departments"
	"github.com/platinummonkey/docket/pkg/httputil"
	"github.com/platinummonkey/docket/pkg/observability"
	"github.com/platinummonkey/docket/pkg/rbac"
	"github.com/platinummonkey/docket/pkg/validation"
)

// DepartmentRequest is the body of department create and update requests
type DepartmentRequest struct {
	Name *string `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
	Code *string `json:"code,omitempty" validate:"omitempty,deptcode"`
}

func (s *Server) registerDepartmentRoutes(r *mux.Router) {
	// Every signed-in user can see departments to address messages
	r.HandleFunc("/departments", s.listDepartments).Methods("GET")
	r.Handle("/departments", s.op(rbac.OpDepartmentManage, s.createDepartment)).Methods("POST")
	r.Handle("/departments/{id}", s.op(rbac.OpDepartmentManage, s.updateDepartment)).Methods("PATCH")
	r.Handle("/departments/{id}", s.op(rbac.OpDepartmentManage, s.deleteDepartment)).Methods("DELETE")
}

func departmentEvent(id, description string) audit.Event {
	return audit.Event{
		Action:       rbac.OpDepartmentManage.String(),
		EntityType:   audit.EntityDepartment,
		EntityID:     id,
		Description:  description,
		DepartmentID: id,
	}
}

func (s *Server) listDepartments(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Departments.List(r.Context())
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("Failed to list departments")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, list)
}

func (s *Server) createDepartment(w http.ResponseWriter, r *http.Request) {
	var req DepartmentRequest
	if !validation.DecodeOrError(w, r, &req) {
		return
	}
	if req.Name == nil || req.Code == nil {
		httputil.WriteValidationErrors(w, map[string]string{"name": "is required", "code": "is required"})
		return
	}

	d := &departments.Department{Name: *req.Name, Code: *req.Code}
	if err := s.deps.Departments.Create(r.Context(), d); err != nil {
		s.fail(w, r, departmentEvent("", "create department"), err)
		return
	}
	s.granted(r, departmentEvent(d.ID, "created department "+d.Code))
	httputil.WriteCreated(w, d)
}

func (s *Server) updateDepartment(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req DepartmentRequest
	if !validation.DecodeOrError(w, r, &req) {
		return
	}

	d, err := s.deps.Departments.Update(r.Context(), id, req.Name, req.Code)
	if err != nil {
		s.fail(w, r, departmentEvent(id, "update department"), err)
		return
	}
	s.granted(r, departmentEvent(id, "updated department "+d.Code))
	httputil.WriteSuccess(w, d)
}

func (s *Server) deleteDepartment(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.deps.Departments.Delete(r.Context(), id); err != nil {
		s.fail(w, r, departmentEvent(id, "delete department"), err)
		return
	}
	s.granted(r, departmentEvent(id, "deleted department"))
	httputil.WriteNoContent(w)
}
