// Package httputil provides HTTP helpers shared by the API handlers.
//
// Every error body has the shape {"error": "..."}; validation failures add a
// "details" map keyed by field name.
//
//	httputil.WriteSuccess(w, c)
//	httputil.WriteValidationErrors(w, map[string]string{"title": "is required"})
//	httputil.WriteInternalError(w)
//
// The middleware stack assigns a ULID request id, records the caller address
// and user agent in the context and logs each request:
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.MaxBytesMiddleware(cfg.Server.MaxUploadBytes),
//	)
package httputil
