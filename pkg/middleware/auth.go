package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/platinummonkey/docket/pkg/auth"
	"github.com/platinummonkey/docket/pkg/contextkeys"
	"github.com/platinummonkey/docket/pkg/httputil"
	"github.com/platinummonkey/docket/pkg/observability"
)

// AuthMiddleware authenticates bearer tokens. The session is rebuilt from the
// stored user on every request; token claims are only used to find the
// session record.
type AuthMiddleware struct {
	authenticator *auth.Authenticator
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(authenticator *auth.Authenticator) *AuthMiddleware {
	return &AuthMiddleware{authenticator: authenticator}
}

// Handler wraps an HTTP handler with authentication. Requests without a
// valid session get a 401 and never reach next.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			httputil.WriteUnauthorized(w, "missing or malformed authorization header")
			return
		}

		session, _, err := m.authenticator.Authenticate(r.Context(), token)
		if err != nil {
			if !isCredentialError(err) {
				observability.FromContext(r.Context()).WithError(err).Error("Failed to authenticate request")
				httputil.WriteInternalError(w)
				return
			}
			httputil.WriteUnauthorized(w, "invalid or expired session")
			return
		}

		ctx := auth.WithSession(r.Context(), session)
		ctx = contextkeys.WithUserID(ctx, session.UserID)
		logger := observability.GetLogger(ctx).WithField("user_id", session.UserID)
		ctx = observability.WithLogger(ctx, logger)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// isCredentialError reports whether err means the caller is not
// authenticated, as opposed to a store failure
func isCredentialError(err error) bool {
	return errors.Is(err, auth.ErrSessionInvalid) || errors.Is(err, auth.ErrUserInactive)
}
