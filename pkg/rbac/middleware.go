package rbac

import (
	"net/http"

	"github.com/platinummonkey/docket/pkg/audit"
	"github.com/platinummonkey/docket/pkg/auth"
	"github.com/platinummonkey/docket/pkg/httputil"
)

// Middleware gates handlers on operations and records denials
type Middleware struct {
	checker  *Checker
	recorder *audit.Recorder
}

// NewMiddleware creates the operation middleware
func NewMiddleware(checker *Checker, recorder *audit.Recorder) *Middleware {
	return &Middleware{
		checker:  checker,
		recorder: recorder,
	}
}

// RequireOperation allows the request through when the session may perform
// op. A denial is recorded as <OP>_DENIED before the 403 is written.
func (m *Middleware) RequireOperation(op Operation) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			session := auth.SessionFromContext(ctx)
			if session == nil {
				httputil.WriteUnauthorized(w, "Authentication required")
				return
			}

			ev := audit.Event{
				Action:      op.String(),
				Description: r.Method + " " + r.URL.Path,
			}

			allowed, err := m.checker.Authorize(ctx, session, op)
			if err != nil {
				m.recorder.Failed(ctx, session, ev, err)
				httputil.WriteErrorMessage(w, http.StatusInternalServerError, "Permission check failed")
				return
			}

			if !allowed {
				m.recorder.Denied(ctx, session, ev)
				httputil.WriteForbidden(w, "Insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Guard adapts RequireOperation to the audit handler guard type
func (m *Middleware) Guard(op Operation) audit.Guard {
	return audit.Guard(m.RequireOperation(op))
}
