package handler

import (
	"context"
	"net/http"

	"github.com/reviewreplai/reviewrepl/internal/api/response"
)

// Pinger is satisfied by the store and the cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewHealthHandler reports database and cache connectivity. It answers 503
// when either dependency fails its ping.
func NewHealthHandler(db, cache Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := db.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := cache.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		status, code := "ok", http.StatusOK
		if checks["database"] != "ok" || checks["cache"] != "ok" {
			status, code = "degraded", http.StatusServiceUnavailable
		}

		response.JSON(w, code, map[string]any{
			"status":   status,
			"services": checks,
		})
	}
}
