// Package middleware provides authentication and login throttling for the
// docket API.
//
// AuthMiddleware resolves the bearer token to a session and stores it in the
// request context; handlers read it back with auth.SessionFromContext.
//
//	api.Use(middleware.NewAuthMiddleware(authenticator).Handler)
//
// LoginThrottle limits attempts per client IP and per email with an
// in-process token bucket (golang.org/x/time/rate), or with Redis counters
// shared by every replica when Redis is configured.
package middleware
