package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/reviewreplai/reviewrepl/internal/api/response"
)

// Recovery turns a handler panic into a 500 INTERNAL_ERROR envelope and logs
// it with the request id and caller so the log line can be matched to the
// access log. http.ErrAbortHandler is re-raised for net/http to handle.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			attrs := []any{
				"panic", fmt.Sprint(rec),
				"method", r.Method,
				"path", r.URL.Path,
			}
			if id := chimw.GetReqID(r.Context()); id != "" {
				attrs = append(attrs, "request_id", id)
			}
			if userID, ok := GetUserID(r); ok {
				attrs = append(attrs, "user_id", userID)
			}
			attrs = append(attrs, "stack", string(debug.Stack()))
			slog.Error("panic recovered", attrs...)

			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "An unexpected error occurred")
		}()
		next.ServeHTTP(w, r)
	})
}
