// Package contextkeys provides centralized context key definitions
//
// All context keys used across the application are defined here so that
// producers and consumers agree on a single key and value type.
//
// USAGE PATTERN:
//
//	ctx = contextkeys.WithSession(ctx, session)
//	session, _ := contextkeys.Session(ctx).(*auth.Session)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// SessionKey contains *auth.Session
	// Set by: middleware.AuthMiddleware (pkg/middleware/auth.go)
	// Required by: every protected endpoint, rbac.RequireOperation, tenant construction
	// Type: *auth.Session
	SessionKey Key = "session"

	// RequestIDKey contains the request ID string (ULID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: logger, audit records
	// Type: string
	RequestIDKey Key = "request_id"

	// LoggerKey contains *observability.Logger
	// Set by: middleware.LoggingMiddleware
	// Type: *observability.Logger
	LoggerKey Key = "logger"

	// ClientIPKey contains the caller address as seen by the server
	// Set by: httputil.RequestIDMiddleware
	// Used by: audit records, custody entries, login throttling
	// Type: string
	ClientIPKey Key = "client_ip"

	// UserAgentKey contains the caller's User-Agent header
	// Type: string
	UserAgentKey Key = "user_agent"

	// UserIDKey contains the authenticated user id
	// Set by: middleware.Authenticate
	// Used by: logger
	// Type: string
	UserIDKey Key = "user_id"
)

// WithSession adds the authenticated session to the context
func WithSession(ctx context.Context, session interface{}) context.Context {
	return context.WithValue(ctx, SessionKey, session)
}

// Session returns the raw session value stored in the context
func Session(ctx context.Context) interface{} {
	return ctx.Value(SessionKey)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// Logger returns the raw logger value stored in the context
func Logger(ctx context.Context) interface{} {
	return ctx.Value(LoggerKey)
}

// WithUserID adds the authenticated user id to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetUserID retrieves the user id from context
func GetUserID(ctx context.Context) string {
	if id, ok := ctx.Value(UserIDKey).(string); ok {
		return id
	}
	return ""
}

// WithClient records the caller address and user agent
func WithClient(ctx context.Context, ip, userAgent string) context.Context {
	ctx = context.WithValue(ctx, ClientIPKey, ip)
	return context.WithValue(ctx, UserAgentKey, userAgent)
}

// GetClientIP retrieves the caller address from context
func GetClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(ClientIPKey).(string); ok {
		return ip
	}
	return ""
}

// GetUserAgent retrieves the caller user agent from context
func GetUserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(UserAgentKey).(string); ok {
		return ua
	}
	return ""
}
