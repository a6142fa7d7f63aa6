// Package worker runs the job poll loop: select the oldest pending jobs,
// claim one, dispatch it to its handler and write back the outcome.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/reviewreplai/reviewrepl/internal/jobs"
	"github.com/reviewreplai/reviewrepl/internal/metrics"
	"github.com/reviewreplai/reviewrepl/internal/store"
	"github.com/reviewreplai/reviewrepl/pkg/models"
)

const (
	defaultPollInterval    = 15 * time.Second
	defaultBatchSize       = 5
	defaultHandlerTimeout  = 2 * time.Minute
	defaultReapInterval    = time.Minute
	defaultMaxAttempts     = 3
	defaultFinalizeTimeout = 30 * time.Second

	// maxErrorLength caps the stored failure message, in bytes.
	maxErrorLength = 2000
)

// Dispatcher runs the handler for a claimed job.
type Dispatcher interface {
	Handle(ctx context.Context, job *models.Job) (json.RawMessage, error)
}

// Config tunes a Worker. Zero values take the defaults.
type Config struct {
	ID              string
	PollInterval    time.Duration
	BatchSize       int
	HandlerTimeout  time.Duration
	Lease           time.Duration
	ReapInterval    time.Duration
	MaxAttempts     int
	FinalizeTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.HandlerTimeout <= 0 {
		c.HandlerTimeout = defaultHandlerTimeout
	}
	if c.Lease <= 0 {
		c.Lease = c.HandlerTimeout + time.Minute
	}
	if c.ReapInterval <= 0 {
		c.ReapInterval = defaultReapInterval
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.FinalizeTimeout <= 0 {
		c.FinalizeTimeout = defaultFinalizeTimeout
	}
	return c
}

// Worker claims and executes jobs from the store. Any number of workers,
// in one process or many, may share a store; the conditional claim in the
// store guarantees each job runs in exactly one of them.
type Worker struct {
	store      store.Store
	dispatcher Dispatcher
	cfg        Config
	metrics    *metrics.Metrics
	wake       <-chan uuid.UUID
}

// New creates a Worker. m may be nil.
func New(st store.Store, d Dispatcher, cfg Config, m *metrics.Metrics) *Worker {
	if m == nil {
		m = metrics.Discard()
	}
	return &Worker{
		store:      st,
		dispatcher: d,
		cfg:        cfg.withDefaults(),
		metrics:    m,
	}
}

// ID returns the identifier written to locked_by on claimed jobs.
func (w *Worker) ID() string {
	return w.cfg.ID
}

// SetWakeup makes idle waits end early whenever ch delivers. Must be
// called before Run.
func (w *Worker) SetWakeup(ch <-chan uuid.UUID) {
	w.wake = ch
}

// Run polls for jobs until ctx is cancelled. A job in flight when ctx is
// cancelled observes the cancellation and is still finalized. Run only
// returns after the reaper has stopped.
func (w *Worker) Run(ctx context.Context) error {
	slog.Info("worker started",
		"worker_id", w.cfg.ID,
		"poll_interval", w.cfg.PollInterval,
		"batch_size", w.cfg.BatchSize,
		"handler_timeout", w.cfg.HandlerTimeout,
		"lease", w.cfg.Lease,
	)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.runReaper(ctx)
	}()

	for ctx.Err() == nil {
		if w.RunOnce(ctx) {
			continue
		}
		if !w.idle(ctx) {
			break
		}
	}

	wg.Wait()
	slog.Info("worker stopped", "worker_id", w.cfg.ID)
	return nil
}

// RunOnce performs one select-claim-dispatch-finalize iteration and
// reports whether a job was claimed. Store errors are logged; the next
// iteration retries.
func (w *Worker) RunOnce(ctx context.Context) bool {
	candidates, err := w.store.ListPendingJobs(ctx, w.cfg.BatchSize)
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("select pending jobs", "worker_id", w.cfg.ID, "error", err)
		}
		return false
	}

	for _, c := range candidates {
		job, err := w.store.ClaimJob(ctx, c.ID, store.Claim{
			WorkerID: w.cfg.ID,
			Lease:    w.cfg.Lease,
		})
		if errors.Is(err, store.ErrClaimConflict) {
			w.metrics.ClaimConflicts.Inc()
			slog.Debug("job claimed elsewhere", "job_id", c.ID, "worker_id", w.cfg.ID)
			continue
		}
		if err != nil {
			if ctx.Err() == nil {
				slog.Error("claim job", "job_id", c.ID, "worker_id", w.cfg.ID, "error", err)
			}
			return false
		}

		w.metrics.JobsClaimed.WithLabelValues(string(job.Type)).Inc()
		w.process(ctx, job)
		return true
	}
	return false
}

func (w *Worker) process(ctx context.Context, job *models.Job) {
	log := slog.With("job_id", job.ID, "job_type", job.Type, "worker_id", w.cfg.ID)
	log.Info("job claimed", "attempt", job.Attempts)

	start := time.Now()
	result, err := w.execute(ctx, job, log)
	elapsed := time.Since(start)
	w.metrics.HandlerDuration.WithLabelValues(string(job.Type)).Observe(elapsed.Seconds())

	if err != nil {
		msg := failureMessage(job.Type, err)
		log.Warn("job failed", "error", msg, "duration_ms", elapsed.Milliseconds())
		if w.finalize(ctx, log, func(ctx context.Context) error {
			return w.store.FailJob(ctx, job.ID, w.cfg.ID, msg)
		}) {
			w.metrics.JobsFailed.WithLabelValues(string(job.Type)).Inc()
		}
		return
	}

	if w.finalize(ctx, log, func(ctx context.Context) error {
		return w.store.CompleteJob(ctx, job.ID, w.cfg.ID, result)
	}) {
		w.metrics.JobsCompleted.WithLabelValues(string(job.Type)).Inc()
		log.Info("job completed", "duration_ms", elapsed.Milliseconds())
	}
}

type outcome struct {
	result json.RawMessage
	err    error
}

// execute runs the handler with a deadline. A handler that ignores its
// context is abandoned once the deadline passes; its goroutine exits on
// its own and its outcome is discarded.
func (w *Worker) execute(ctx context.Context, job *models.Job, log *slog.Logger) (json.RawMessage, error) {
	hctx, cancel := context.WithTimeout(ctx, w.cfg.HandlerTimeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic in job handler", "panic", r, "stack", string(debug.Stack()))
				done <- outcome{err: fmt.Errorf("%w: %v", jobs.ErrHandlerPanic, r)}
			}
		}()
		res, err := w.dispatcher.Handle(hctx, job)
		done <- outcome{result: res, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			if errors.Is(hctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
				return nil, fmt.Errorf("%w after %s: %w", jobs.ErrHandlerTimeout, w.cfg.HandlerTimeout, o.err)
			}
			return nil, o.err
		}
		return validResult(o.result)
	case <-hctx.Done():
		if ctx.Err() != nil {
			return nil, fmt.Errorf("worker shutting down: %w", ctx.Err())
		}
		return nil, fmt.Errorf("%w after %s", jobs.ErrHandlerTimeout, w.cfg.HandlerTimeout)
	}
}

// validResult maps an empty or null result to an empty object so a
// completed job always carries one, and rejects anything that is not JSON.
func validResult(res json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(res)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return json.RawMessage(`{}`), nil
	}
	if !json.Valid(res) {
		return nil, errors.New("handler returned invalid JSON")
	}
	return res, nil
}

// finalize applies a terminal write with retries. It uses a context that
// survives cancellation of ctx so a shutdown never strands the job.
func (w *Worker) finalize(ctx context.Context, log *slog.Logger, write func(context.Context) error) bool {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.FinalizeTimeout)
	defer cancel()

	err := backoff.Retry(func() error {
		err := write(fctx)
		if errors.Is(err, store.ErrClaimLost) {
			return backoff.Permanent(err)
		}
		if err != nil {
			log.Warn("finalize job, retrying", "error", err)
		}
		return err
	}, backoff.WithContext(backoff.NewExponentialBackOff(), fctx))

	switch {
	case err == nil:
		return true
	case errors.Is(err, store.ErrClaimLost):
		log.Warn("claim lost before finalize; result discarded")
	default:
		log.Error("finalize job", "error", err)
	}
	return false
}

// idle waits for the poll interval, a wake-up, or cancellation. It
// returns false when ctx is done.
func (w *Worker) idle(ctx context.Context) bool {
	timer := time.NewTimer(w.cfg.PollInterval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	case _, ok := <-w.wake:
		if !ok {
			w.wake = nil
		}
		return true
	}
}

// failureMessage formats the stored error as "<job_type>: <cause>".
func failureMessage(jobType models.JobType, err error) string {
	return truncateString(fmt.Sprintf("%s: %v", jobType, err), maxErrorLength)
}

// truncateString truncates s to maxBytes without splitting UTF-8 runes.
func truncateString(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}
