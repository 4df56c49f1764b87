package auth

import (
	"context"

	"github.com/platinummonkey/docket/pkg/contextkeys"
)

// WithSession stores the session in the context
func WithSession(ctx context.Context, s *Session) context.Context {
	return contextkeys.WithSession(ctx, s)
}

// SessionFromContext returns the request session, or nil when unauthenticated
func SessionFromContext(ctx context.Context) *Session {
	s, _ := contextkeys.Session(ctx).(*Session)
	return s
}
