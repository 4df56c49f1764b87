package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/docket/pkg/audit"
	"github.com/platinummonkey/docket/pkg/httputil"
	"github.com/platinummonkey/docket/pkg/messages"
	"github.com/platinummonkey/docket/pkg/rbac"
	"github.com/platinummonkey/docket/pkg/validation"
)

func (s *Server) registerMessageRoutes(r *mux.Router) {
	r.Handle("/messages", s.op(rbac.OpMessageSend, s.sendMessage)).Methods("POST")
	r.Handle("/messages/inbox", s.op(rbac.OpMessageRead, s.inbox)).Methods("GET")
	r.Handle("/messages/sent", s.op(rbac.OpMessageRead, s.sentMessages)).Methods("GET")
	r.Handle("/messages/{id}/read", s.op(rbac.OpMessageRead, s.markRead)).Methods("POST")
}

func messageEvent(op rbac.Operation, id string) audit.Event {
	return audit.Event{Action: op.String(), EntityType: audit.EntityMessage, EntityID: id}
}

func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	ev := messageEvent(rbac.OpMessageSend, "")
	// the tenant view checks a linked case
	svc := s.tenant(r)
	if svc == nil {
		s.deny(w, r, ev)
		return
	}

	var in messages.SendInput
	if !validation.DecodeOrError(w, r, &in) {
		return
	}
	m, err := s.deps.Messages.Send(r.Context(), svc.Session(), svc, in)
	if err != nil {
		s.fail(w, r, ev, err)
		return
	}

	ev.EntityID = m.ID
	ev.Metadata = map[string]interface{}{"toDepartmentId": m.ToDepartmentID}
	if m.CaseID != "" {
		ev.Metadata["caseId"] = m.CaseID
	}
	s.granted(r, ev)
	httputil.WriteCreated(w, m)
}

func (s *Server) inbox(w http.ResponseWriter, r *http.Request) {
	ev := messageEvent(rbac.OpMessageRead, "")
	unread, err := httputil.ParseQueryBool(r, "unread", false)
	if err != nil {
		httputil.WriteValidationErrors(w, map[string]string{"unread": "must be a boolean"})
		return
	}

	list, err := s.deps.Messages.Inbox(r.Context(), sessionOf(r), unread)
	if err != nil {
		s.fail(w, r, ev, err)
		return
	}
	s.granted(r, ev)
	httputil.WriteSuccess(w, list)
}

func (s *Server) sentMessages(w http.ResponseWriter, r *http.Request) {
	ev := messageEvent(rbac.OpMessageRead, "")
	ev.Description = "listed sent messages"

	list, err := s.deps.Messages.Sent(r.Context(), sessionOf(r))
	if err != nil {
		s.fail(w, r, ev, err)
		return
	}
	s.granted(r, ev)
	httputil.WriteSuccess(w, list)
}

func (s *Server) markRead(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ev := messageEvent(rbac.OpMessageRead, id)
	ev.Description = "marked message read"

	m, err := s.deps.Messages.MarkRead(r.Context(), sessionOf(r), id)
	if err != nil {
		s.fail(w, r, ev, err)
		return
	}
	s.granted(r, ev)
	httputil.WriteSuccess(w, m)
}
