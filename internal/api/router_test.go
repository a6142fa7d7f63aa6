package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/reviewreplai/reviewrepl/internal/api"
	"github.com/reviewreplai/reviewrepl/internal/api/handler"
	mw "github.com/reviewreplai/reviewrepl/internal/api/middleware"
	"github.com/reviewreplai/reviewrepl/internal/jobs"
	"github.com/reviewreplai/reviewrepl/internal/store"
	"github.com/reviewreplai/reviewrepl/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "router-test-secret-with-enough-bytes"

// --- stub cache ---

type stubCache struct{}

func (c *stubCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (c *stubCache) Get(_ context.Context, _ string) ([]byte, bool, error)            { return nil, false, nil }
func (c *stubCache) Ping(_ context.Context) error                                      { return nil }
func (c *stubCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 1, nil
}

type stack struct {
	router http.Handler
	store  *store.MemoryStore
	worker *worker.Worker
}

func newStack(t *testing.T) *stack {
	t.Helper()
	st := store.NewMemoryStore()
	c := &stubCache{}
	svc := jobs.NewService(st, c, nil, nil)

	router := api.NewRouter(api.Dependencies{
		Auth:          mw.NewAuth(testSecret, ""),
		RateLimit:     mw.NewRateLimit(c, 100),
		HealthHandler: handler.NewHealthHandler(st, c),
		SubmitJob:     handler.NewSubmitJobHandler(svc),
		GetJob:        handler.NewGetJobHandler(svc),
		ListJobs:      handler.NewListJobsHandler(svc),
	})
	w := worker.New(st, jobs.NewDispatcher(nil), worker.Config{ID: "router-test"}, nil)
	return &stack{router: router, store: st, worker: w}
}

func token(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func (s *stack) do(t *testing.T, method, path, body string, userID uuid.UUID) (int, map[string]any) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if userID != uuid.Nil {
		req.Header.Set("Authorization", "Bearer "+token(t, userID))
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec.Code, out
}

func TestRouter_HealthIsPublic(t *testing.T) {
	s := newStack(t)
	code, body := s.do(t, http.MethodGet, "/api/v1/health", "", uuid.Nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestRouter_JobRoutesRequireAuth(t *testing.T) {
	s := newStack(t)
	routes := []struct{ method, path string }{
		{http.MethodPost, "/api/v1/jobs"},
		{http.MethodGet, "/api/v1/jobs"},
		{http.MethodGet, "/api/v1/jobs/" + uuid.NewString()},
	}
	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			code, body := s.do(t, rt.method, rt.path, "", uuid.Nil)
			assert.Equal(t, http.StatusUnauthorized, code)
			assert.Equal(t, "INVALID_TOKEN", body["code"])
		})
	}
}

func TestRouter_UnsetHandlersReturn501(t *testing.T) {
	router := api.NewRouter(api.Dependencies{
		Auth:      mw.NewAuth(testSecret, ""),
		RateLimit: mw.NewRateLimit(&stubCache{}, 10),
	})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestRouter_MetricsMountedWhenSet(t *testing.T) {
	router := api.NewRouter(api.Dependencies{
		Auth:      mw.NewAuth(testSecret, ""),
		RateLimit: mw.NewRateLimit(&stubCache{}, 10),
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte("# metrics"))
		}),
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "# metrics", rec.Body.String())
}

// TestRouter_JobLifecycle submits a job over HTTP, lets a worker process
// it, and polls until the result is visible.
func TestRouter_JobLifecycle(t *testing.T) {
	s := newStack(t)
	userID := uuid.New()

	code, body := s.do(t, http.MethodPost, "/api/v1/jobs",
		`{"job_type":"sentiment_analysis","payload":{"text":"Great service!"}}`, userID)
	require.Equal(t, http.StatusAccepted, code, body)
	job := body["job"].(map[string]any)
	assert.Equal(t, "pending", job["status"])
	jobID := job["id"].(string)

	code, body = s.do(t, http.MethodGet, "/api/v1/jobs/"+jobID, "", userID)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "pending", body["job"].(map[string]any)["status"])

	require.True(t, s.worker.RunOnce(context.Background()))

	code, body = s.do(t, http.MethodGet, "/api/v1/jobs/"+jobID, "", userID)
	require.Equal(t, http.StatusOK, code)
	job = body["job"].(map[string]any)
	assert.Equal(t, "completed", job["status"])
	result := job["result"].(map[string]any)
	assert.Equal(t, "positive", result["label"])
	assert.NotContains(t, job, "error")
}

func TestRouter_JobIsolationBetweenUsers(t *testing.T) {
	s := newStack(t)
	owner, other := uuid.New(), uuid.New()

	code, body := s.do(t, http.MethodPost, "/api/v1/jobs",
		`{"job_type":"prompt_analysis","payload":{"prompt":"Thank {{name}}"}}`, owner)
	require.Equal(t, http.StatusAccepted, code)
	jobID := body["job"].(map[string]any)["id"].(string)

	code, body = s.do(t, http.MethodGet, "/api/v1/jobs/"+jobID, "", other)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "NOT_FOUND", body["code"])

	code, body = s.do(t, http.MethodGet, "/api/v1/jobs", "", other)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []any{}, body["jobs"])

	code, body = s.do(t, http.MethodGet, "/api/v1/jobs", "", owner)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["jobs"], 1)
	assert.Equal(t, float64(1), body["meta"].(map[string]any)["total"])
}

func TestRouter_InvalidJobTypeCreatesNothing(t *testing.T) {
	s := newStack(t)
	userID := uuid.New()

	code, body := s.do(t, http.MethodPost, "/api/v1/jobs", `{"job_type":"translate","payload":{}}`, userID)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_JOB_TYPE", body["code"])

	pending, err := s.store.ListPendingJobs(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRouter_FailedJobReportsError(t *testing.T) {
	s := newStack(t)
	userID := uuid.New()

	// The payload is an object, so submission succeeds; the handler rejects
	// the missing text at processing time.
	code, body := s.do(t, http.MethodPost, "/api/v1/jobs", `{"job_type":"sentiment_analysis","payload":{}}`, userID)
	require.Equal(t, http.StatusAccepted, code)
	jobID := body["job"].(map[string]any)["id"].(string)

	require.True(t, s.worker.RunOnce(context.Background()))

	code, body = s.do(t, http.MethodGet, "/api/v1/jobs/"+jobID, "", userID)
	require.Equal(t, http.StatusOK, code)
	job := body["job"].(map[string]any)
	assert.Equal(t, "failed", job["status"])
	assert.Contains(t, job["error"], "sentiment_analysis:")
	assert.NotContains(t, job, "result")
}
