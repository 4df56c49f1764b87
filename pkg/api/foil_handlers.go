package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/docket/pkg/audit"
	"github.com/platinummonkey/docket/pkg/foil"
	"github.com/platinummonkey/docket/pkg/httputil"
	"github.com/platinummonkey/docket/pkg/rbac"
	"github.com/platinummonkey/docket/pkg/validation"
)

func (s *Server) registerFOILRoutes(r *mux.Router) {
	r.Handle("/foil", s.op(rbac.OpFOILRead, s.listFOIL)).Methods("GET")
	r.Handle("/foil", s.op(rbac.OpFOILCreate, s.createFOIL)).Methods("POST")
	r.Handle("/foil/{id}", s.op(rbac.OpFOILRead, s.getFOIL)).Methods("GET")
	r.Handle("/foil/{id}/history", s.op(rbac.OpFOILRead, s.foilHistory)).Methods("GET")
	r.Handle("/foil/{id}/transitions", s.op(rbac.OpFOILUpdate, s.transitionFOIL)).Methods("POST")
}

func foilEvent(op rbac.Operation, id string) audit.Event {
	return audit.Event{Action: op.String(), EntityType: audit.EntityFOILRequest, EntityID: id}
}

func (s *Server) listFOIL(w http.ResponseWriter, r *http.Request) {
	ev := foilEvent(rbac.OpFOILRead, "")
	limit, offset, details := page(r)
	status := foil.Status(strings.ToUpper(httputil.ParseQueryString(r, "status", "")))
	if status != "" && !status.Valid() {
		details["status"] = "unknown FOIL status"
	}
	overdue, err := httputil.ParseQueryBool(r, "overdue", false)
	if err != nil {
		details["overdue"] = "must be a boolean"
	}
	if len(details) > 0 {
		httputil.WriteValidationErrors(w, details)
		return
	}

	list, err := s.deps.FOIL.List(r.Context(), sessionOf(r), foil.Filter{
		Status:      status,
		OverdueOnly: overdue,
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		s.fail(w, r, ev, err)
		return
	}
	if list == nil {
		list = []*foil.Request{}
	}
	s.granted(r, ev)
	httputil.WriteSuccess(w, list)
}

func (s *Server) createFOIL(w http.ResponseWriter, r *http.Request) {
	ev := foilEvent(rbac.OpFOILCreate, "")
	var in foil.CreateInput
	if !validation.DecodeOrError(w, r, &in) {
		return
	}

	req, err := s.deps.FOIL.Create(r.Context(), sessionOf(r), in)
	if err != nil {
		s.fail(w, r, ev, err)
		return
	}

	ev.EntityID = req.ID
	ev.Description = "registered FOIL request " + req.RequestNumber
	ev.Metadata = map[string]interface{}{"dueAt": req.DueAt}
	s.granted(r, ev)
	httputil.WriteCreated(w, req)
}

func (s *Server) getFOIL(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ev := foilEvent(rbac.OpFOILRead, id)

	req, err := s.deps.FOIL.Get(r.Context(), sessionOf(r), id)
	if err != nil {
		s.fail(w, r, ev, err)
		return
	}
	s.granted(r, ev)
	httputil.WriteSuccess(w, req)
}

func (s *Server) foilHistory(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ev := foilEvent(rbac.OpFOILRead, id)

	history, err := s.deps.FOIL.History(r.Context(), sessionOf(r), id)
	if err != nil {
		s.fail(w, r, ev, err)
		return
	}
	s.granted(r, ev)
	httputil.WriteSuccess(w, history)
}

// transitionFOIL handles POST /foil/{id}/transitions
func (s *Server) transitionFOIL(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ev := foilEvent(rbac.OpFOILUpdate, id)

	var in foil.TransitionInput
	if !validation.DecodeOrError(w, r, &in) {
		return
	}
	in.Status = foil.Status(strings.ToUpper(string(in.Status)))

	req, err := s.deps.FOIL.Transition(r.Context(), sessionOf(r), id, in)
	if err != nil {
		s.fail(w, r, ev, err)
		return
	}

	ev.Description = "moved FOIL request to " + string(req.Status)
	ev.Metadata = map[string]interface{}{"status": string(req.Status), "dueAt": req.DueAt}
	if in.ExtendDays > 0 {
		ev.Metadata["extendDays"] = in.ExtendDays
	}
	s.granted(r, ev)
	httputil.WriteSuccess(w, req)
}
