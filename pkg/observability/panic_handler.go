package observability

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/platinummonkey/docket/pkg/contextkeys"
)

// RecoverPanic recovers from a panic and logs it with the stack. Call it in a
// defer. The panic is not re-raised.
//
//	func (s *Scheduler) run(name string, fn func(context.Context) error) {
//	    defer observability.RecoverPanic(logger, "job "+name)
//	    ...
//	}
func RecoverPanic(logger *Logger, context string) {
	if r := recover(); r != nil {
		logPanic(logger, context, r)
	}
}

func logPanic(logger *Logger, context string, r interface{}) {
	logger.WithField("panic", fmt.Sprint(r)).
		WithField("stack", string(debug.Stack())).
		WithField("context", context).
		Error("PANIC recovered")
}

// RecoveryMiddleware turns a handler panic into a 500 response. The logger
// attached to the request context is preferred over the fallback.
func RecoveryMiddleware(fallback *Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger, ok := contextkeys.Logger(r.Context()).(*Logger)
					if !ok {
						logger = fallback
					}
					logPanic(logger, r.Method+" "+r.URL.Path, rec)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					w.Write([]byte(`{"error":"internal server error"}`))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
