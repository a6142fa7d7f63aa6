package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/reviewreplai/reviewrepl/internal/store"
)

// runReaper releases expired claims once at start-up and then every
// ReapInterval until ctx is cancelled.
func (w *Worker) runReaper(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.ReapInterval)
	defer ticker.Stop()

	w.Reap(ctx) //nolint:errcheck
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Reap(ctx) //nolint:errcheck
		}
	}
}

// Reap returns processing jobs whose lease expired to pending, or fails
// them once they have been claimed MaxAttempts times.
func (w *Worker) Reap(ctx context.Context) (store.Recovery, error) {
	msg := fmt.Sprintf("abandoned after %d attempts", w.cfg.MaxAttempts)
	rec, err := w.store.RecoverExpiredClaims(ctx, w.cfg.MaxAttempts, msg)
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("recover expired claims", "worker_id", w.cfg.ID, "error", err)
		}
		return rec, err
	}

	w.metrics.JobsReaped.WithLabelValues("requeued").Add(float64(rec.Requeued))
	w.metrics.JobsReaped.WithLabelValues("failed").Add(float64(rec.Failed))
	if rec.Requeued > 0 || rec.Failed > 0 {
		slog.Info("recovered expired claims",
			"worker_id", w.cfg.ID,
			"requeued", rec.Requeued,
			"failed", rec.Failed,
		)
	}
	return rec, nil
}
