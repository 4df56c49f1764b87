package api

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/docket/pkg/audit"
	"github.com/platinummonkey/docket/pkg/auth"
	"github.com/platinummonkey/docket/pkg/cases"
	"github.com/platinummonkey/docket/pkg/departments"
	"github.com/platinummonkey/docket/pkg/documents"
	"github.com/platinummonkey/docket/pkg/foil"
	"github.com/platinummonkey/docket/pkg/httputil"
	"github.com/platinummonkey/docket/pkg/messages"
	"github.com/platinummonkey/docket/pkg/observability"
	"github.com/platinummonkey/docket/pkg/rbac"
	"github.com/platinummonkey/docket/pkg/tasks"
	"github.com/platinummonkey/docket/pkg/tenant"
)

// denials are reported as 403. Missing tenant-scoped resources are
// indistinguishable from foreign ones.
var denials = []error{
	rbac.ErrAccessDenied,
	foil.ErrNoDepartment,
	messages.ErrNoDepartment,
	cases.ErrNotFound,
	documents.ErrNotFound,
	tasks.ErrNotFound,
}

// clientErrors are caused by the request and are not audited
var clientErrors = []struct {
	err    error
	status int
}{
	{cases.ErrInvalidTransition, http.StatusBadRequest},
	{cases.ErrConflict, http.StatusConflict},
	{tenant.ErrInvalidAssignee, http.StatusBadRequest},
	{tasks.ErrInvalidStatus, http.StatusBadRequest},
	{tasks.ErrEmptyTemplate, http.StatusBadRequest},
	{tasks.ErrTemplateNotFound, http.StatusNotFound},
	{documents.ErrInvalidClassification, http.StatusBadRequest},
	{documents.ErrEmptyContent, http.StatusBadRequest},
	{documents.ErrNotHead, http.StatusConflict},
	{foil.ErrInvalidTransition, http.StatusBadRequest},
	{foil.ErrConflict, http.StatusConflict},
	{foil.ErrInvalidExtension, http.StatusBadRequest},
	{foil.ErrInvalidStatus, http.StatusBadRequest},
	{foil.ErrInvalidAssignee, http.StatusBadRequest},
	{messages.ErrUnknownTarget, http.StatusBadRequest},
	{messages.ErrEmptyMessage, http.StatusBadRequest},
	{departments.ErrNotFound, http.StatusNotFound},
	{departments.ErrInvalid, http.StatusBadRequest},
	{departments.ErrCodeTaken, http.StatusConflict},
	{departments.ErrCodeLocked, http.StatusConflict},
	{departments.ErrInUse, http.StatusConflict},
	{auth.ErrUserNotFound, http.StatusNotFound},
	{auth.ErrEmailTaken, http.StatusConflict},
	{auth.ErrSessionNotFound, http.StatusNotFound},
}

func isDenial(err error) bool {
	for _, d := range denials {
		if errors.Is(err, d) {
			return true
		}
	}
	return false
}

func clientStatus(err error) (int, bool) {
	for _, c := range clientErrors {
		if errors.Is(err, c.err) {
			return c.status, true
		}
	}
	return 0, false
}

// fail writes the response for a failed operation and emits its audit
// record: denials as <OP>_DENIED, store failures as <OP>_ERROR. Client
// errors get a 4xx and no record.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, ev audit.Event, err error) {
	ctx := r.Context()
	session := auth.SessionFromContext(ctx)

	if isDenial(err) {
		s.deps.Recorder.Denied(ctx, session, ev)
		httputil.WriteForbidden(w, "Access denied")
		return
	}
	if status, ok := clientStatus(err); ok {
		if status == http.StatusConflict {
			httputil.WriteConflict(w, err.Error())
			return
		}
		httputil.WriteErrorMessage(w, status, err.Error())
		return
	}

	s.deps.Recorder.Failed(ctx, session, ev, err)
	observability.FromContext(ctx).WithError(err).WithField("action", ev.Action).Error("Operation failed")
	httputil.WriteInternalError(w)
}

// deny records a denial and writes 403
func (s *Server) deny(w http.ResponseWriter, r *http.Request, ev audit.Event) {
	s.fail(w, r, ev, rbac.ErrAccessDenied)
}

// granted records a successful operation
func (s *Server) granted(r *http.Request, ev audit.Event) {
	s.deps.Recorder.Granted(r.Context(), auth.SessionFromContext(r.Context()), ev)
}
