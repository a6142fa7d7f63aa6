package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/reviewreplai/reviewrepl/internal/api/middleware"
	"github.com/reviewreplai/reviewrepl/internal/jobs"
	"github.com/reviewreplai/reviewrepl/internal/store"
	"github.com/reviewreplai/reviewrepl/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mock JobService ---

type mockService struct {
	submitFn func(userID uuid.UUID, req jobs.SubmitRequest) (*models.Job, error)
	getFn    func(userID, jobID uuid.UUID) (*models.Job, error)
	listFn   func(filter store.JobFilter) ([]*models.Job, int, error)

	lastFilter store.JobFilter
}

func (m *mockService) Submit(_ context.Context, userID uuid.UUID, req jobs.SubmitRequest) (*models.Job, error) {
	return m.submitFn(userID, req)
}

func (m *mockService) Get(_ context.Context, userID, jobID uuid.UUID) (*models.Job, error) {
	return m.getFn(userID, jobID)
}

func (m *mockService) List(_ context.Context, filter store.JobFilter) ([]*models.Job, int, error) {
	m.lastFilter = filter
	return m.listFn(filter)
}

func pendingJob(userID uuid.UUID, jt models.JobType) *models.Job {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &models.Job{
		ID:        uuid.New(),
		UserID:    userID,
		Type:      jt,
		Payload:   json.RawMessage(`{}`),
		Status:    models.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// --- helpers ---

func withUser(r *http.Request, userID uuid.UUID) *http.Request {
	return r.WithContext(mw.SetUserID(r.Context(), userID))
}

func withJobID(r *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("jobID", id)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func assertError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	assert.Equal(t, status, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, code, body["code"])
	assert.NotEmpty(t, body["error"])
}

// --- Submit ---

func TestSubmitJob_Accepted(t *testing.T) {
	userID := uuid.New()
	var got jobs.SubmitRequest
	svc := &mockService{submitFn: func(uid uuid.UUID, req jobs.SubmitRequest) (*models.Job, error) {
		assert.Equal(t, userID, uid)
		got = req
		return pendingJob(uid, models.JobTypeSentimentAnalysis), nil
	}}

	body := `{"job_type":"sentiment_analysis","payload":{"text":"Great service!"}}`
	r := withUser(httptest.NewRequest(http.MethodPost, "/api/v1/jobs", strings.NewReader(body)), userID)
	rec := httptest.NewRecorder()
	NewSubmitJobHandler(svc)(rec, r)

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, "sentiment_analysis", got.JobType)
	assert.JSONEq(t, `{"text":"Great service!"}`, string(got.Payload))

	resp := decodeBody(t, rec)
	assert.Equal(t, true, resp["success"])
	job := resp["job"].(map[string]any)
	assert.Equal(t, "pending", job["status"])
	assert.Equal(t, "sentiment_analysis", job["job_type"])
	assert.NotContains(t, job, "result")
	assert.NotContains(t, job, "error")
}

func TestSubmitJob_ServiceErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"invalid type", jobs.ErrInvalidJobType, http.StatusBadRequest, "INVALID_JOB_TYPE"},
		{"invalid payload", jobs.ErrInvalidPayload, http.StatusBadRequest, "INVALID_PAYLOAD"},
		{"store down", jobs.ErrStoreUnavailable, http.StatusInternalServerError, "STORE_UNAVAILABLE"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "STORE_UNAVAILABLE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockService{submitFn: func(uuid.UUID, jobs.SubmitRequest) (*models.Job, error) {
				return nil, tt.err
			}}
			r := withUser(httptest.NewRequest(http.MethodPost, "/api/v1/jobs",
				strings.NewReader(`{"job_type":"x"}`)), uuid.New())
			rec := httptest.NewRecorder()
			NewSubmitJobHandler(svc)(rec, r)
			assertError(t, rec, tt.status, tt.code)
		})
	}
}

func TestSubmitJob_InvalidJSON(t *testing.T) {
	svc := &mockService{submitFn: func(uuid.UUID, jobs.SubmitRequest) (*models.Job, error) {
		t.Fatal("service must not be called")
		return nil, nil
	}}
	r := withUser(httptest.NewRequest(http.MethodPost, "/api/v1/jobs", strings.NewReader(`{"job_type":`)), uuid.New())
	rec := httptest.NewRecorder()
	NewSubmitJobHandler(svc)(rec, r)
	assertError(t, rec, http.StatusBadRequest, "INVALID_REQUEST")
}

func TestSubmitJob_BodyTooLarge(t *testing.T) {
	svc := &mockService{submitFn: func(uuid.UUID, jobs.SubmitRequest) (*models.Job, error) {
		t.Fatal("service must not be called")
		return nil, nil
	}}
	big := `{"job_type":"sentiment_analysis","payload":{"text":"` + strings.Repeat("a", MaxBodyBytes) + `"}}`
	r := withUser(httptest.NewRequest(http.MethodPost, "/api/v1/jobs", bytes.NewReader([]byte(big))), uuid.New())
	rec := httptest.NewRecorder()
	NewSubmitJobHandler(svc)(rec, r)
	assertError(t, rec, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE")
}

func TestSubmitJob_NoUser(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	NewSubmitJobHandler(&mockService{})(rec, r)
	assertError(t, rec, http.StatusUnauthorized, "INVALID_TOKEN")
}

// --- Get ---

func TestGetJob_Found(t *testing.T) {
	userID := uuid.New()
	job := pendingJob(userID, models.JobTypeReviewProcessing)
	job.Status = models.JobStatusCompleted
	job.Result = json.RawMessage(`{"total_reviews":1}`)

	svc := &mockService{getFn: func(uid, jid uuid.UUID) (*models.Job, error) {
		assert.Equal(t, userID, uid)
		assert.Equal(t, job.ID, jid)
		return job, nil
	}}

	r := withJobID(withUser(httptest.NewRequest(http.MethodGet, "/", nil), userID), job.ID.String())
	rec := httptest.NewRecorder()
	NewGetJobHandler(svc)(rec, r)

	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody(t, rec)["job"].(map[string]any)
	assert.Equal(t, "completed", got["status"])
	assert.Equal(t, map[string]any{"total_reviews": float64(1)}, got["result"])
}

func TestGetJob_NotFound(t *testing.T) {
	svc := &mockService{getFn: func(uuid.UUID, uuid.UUID) (*models.Job, error) {
		return nil, jobs.ErrNotFound
	}}
	r := withJobID(withUser(httptest.NewRequest(http.MethodGet, "/", nil), uuid.New()), uuid.NewString())
	rec := httptest.NewRecorder()
	NewGetJobHandler(svc)(rec, r)
	assertError(t, rec, http.StatusNotFound, "NOT_FOUND")
}

func TestGetJob_MalformedID(t *testing.T) {
	svc := &mockService{getFn: func(uuid.UUID, uuid.UUID) (*models.Job, error) {
		t.Fatal("service must not be called")
		return nil, nil
	}}
	r := withJobID(withUser(httptest.NewRequest(http.MethodGet, "/", nil), uuid.New()), "not-a-uuid")
	rec := httptest.NewRecorder()
	NewGetJobHandler(svc)(rec, r)
	assertError(t, rec, http.StatusNotFound, "NOT_FOUND")
}

func TestGetJob_StoreUnavailable(t *testing.T) {
	svc := &mockService{getFn: func(uuid.UUID, uuid.UUID) (*models.Job, error) {
		return nil, jobs.ErrStoreUnavailable
	}}
	r := withJobID(withUser(httptest.NewRequest(http.MethodGet, "/", nil), uuid.New()), uuid.NewString())
	rec := httptest.NewRecorder()
	NewGetJobHandler(svc)(rec, r)
	assertError(t, rec, http.StatusInternalServerError, "STORE_UNAVAILABLE")
}

// --- List ---

func TestListJobs_FiltersAndMeta(t *testing.T) {
	userID := uuid.New()
	svc := &mockService{listFn: func(store.JobFilter) ([]*models.Job, int, error) {
		return []*models.Job{pendingJob(userID, models.JobTypeAIGeneration)}, 3, nil
	}}

	r := withUser(httptest.NewRequest(http.MethodGet,
		"/api/v1/jobs?status=pending&job_type=ai_generation&page=2&limit=1", nil), userID)
	rec := httptest.NewRecorder()
	NewListJobsHandler(svc)(rec, r)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, store.JobFilter{
		UserID: userID,
		Status: models.JobStatusPending,
		Type:   models.JobTypeAIGeneration,
		Page:   2,
		Limit:  1,
	}, svc.lastFilter)

	body := decodeBody(t, rec)
	assert.Len(t, body["jobs"], 1)
	meta := body["meta"].(map[string]any)
	assert.Equal(t, float64(2), meta["page"])
	assert.Equal(t, float64(1), meta["limit"])
	assert.Equal(t, float64(3), meta["total"])
	assert.Equal(t, true, meta["has_next"])
}

func TestListJobs_Defaults(t *testing.T) {
	svc := &mockService{listFn: func(store.JobFilter) ([]*models.Job, int, error) {
		return []*models.Job{}, 0, nil
	}}
	r := withUser(httptest.NewRequest(http.MethodGet, "/api/v1/jobs?limit=500", nil), uuid.New())
	rec := httptest.NewRecorder()
	NewListJobsHandler(svc)(rec, r)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, svc.lastFilter.Page)
	assert.Equal(t, 100, svc.lastFilter.Limit)
	body := decodeBody(t, rec)
	assert.Equal(t, []any{}, body["jobs"])
	assert.Equal(t, false, body["meta"].(map[string]any)["has_next"])
}

func TestListJobs_BadQuery(t *testing.T) {
	tests := []struct {
		query string
		code  string
	}{
		{"status=running", "INVALID_REQUEST"},
		{"job_type=translate", "INVALID_JOB_TYPE"},
		{"page=0", "INVALID_REQUEST"},
		{"page=abc", "INVALID_REQUEST"},
		{"limit=-5", "INVALID_REQUEST"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			svc := &mockService{listFn: func(store.JobFilter) ([]*models.Job, int, error) {
				t.Fatal("service must not be called")
				return nil, 0, nil
			}}
			r := withUser(httptest.NewRequest(http.MethodGet, "/api/v1/jobs?"+tt.query, nil), uuid.New())
			rec := httptest.NewRecorder()
			NewListJobsHandler(svc)(rec, r)
			assertError(t, rec, http.StatusBadRequest, tt.code)
		})
	}
}

func TestListJobs_StoreUnavailable(t *testing.T) {
	svc := &mockService{listFn: func(store.JobFilter) ([]*models.Job, int, error) {
		return nil, 0, jobs.ErrStoreUnavailable
	}}
	r := withUser(httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil), uuid.New())
	rec := httptest.NewRecorder()
	NewListJobsHandler(svc)(rec, r)
	assertError(t, rec, http.StatusInternalServerError, "STORE_UNAVAILABLE")
}
