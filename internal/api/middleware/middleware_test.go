package middleware_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	mw "github.com/reviewreplai/reviewrepl/internal/api/middleware"
	"github.com/reviewreplai/reviewrepl/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret   = "test-secret-at-least-32-bytes-long!!"
	testAudience = "authenticated"
)

// --- Mock Cache ---

type mockCache struct {
	counter int64
	err     error
	keys    []string
}

func (m *mockCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (m *mockCache) Get(_ context.Context, _ string) ([]byte, bool, error)            { return nil, false, nil }
func (m *mockCache) Ping(_ context.Context) error                                      { return nil }
func (m *mockCache) IncrWithExpiry(_ context.Context, key string, _ time.Duration) (int64, error) {
	m.keys = append(m.keys, key)
	m.counter++
	return m.counter, m.err
}

// --- helpers ---

func okHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
}

func signToken(t *testing.T, method jwt.SigningMethod, secret string, claims jwt.RegisteredClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func validClaims(sub string) jwt.RegisteredClaims {
	now := time.Now()
	return jwt.RegisteredClaims{
		Subject:   sub,
		Audience:  jwt.ClaimStrings{testAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}
}

func errCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["code"].(string)
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// ========================================
// Auth Middleware Tests
// ========================================

func TestAuth_MissingAuthHeader(t *testing.T) {
	handler := mw.NewAuth(testSecret, testAudience).Authenticate(okHandler())

	w := serve(handler, httptest.NewRequest("GET", "/test", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "INVALID_TOKEN", errCode(t, w))
}

func TestAuth_InvalidBearerFormat(t *testing.T) {
	handler := mw.NewAuth(testSecret, testAudience).Authenticate(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Basic abc123")

	assert.Equal(t, http.StatusUnauthorized, serve(handler, req).Code)
}

func TestAuth_ValidToken(t *testing.T) {
	userID := uuid.New()
	auth := mw.NewAuth(testSecret, testAudience)

	var gotUserID uuid.UUID
	var gotOK bool
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID, gotOK = mw.GetUserID(r)
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, jwt.SigningMethodHS256, testSecret, validClaims(userID.String())))
	w := serve(auth.Authenticate(inner), req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, gotOK)
	assert.Equal(t, userID, gotUserID)
}

func TestAuth_RejectedTokens(t *testing.T) {
	userID := uuid.New().String()

	expired := validClaims(userID)
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	noExpiry := validClaims(userID)
	noExpiry.ExpiresAt = nil

	wrongAudience := validClaims(userID)
	wrongAudience.Audience = jwt.ClaimStrings{"anon"}

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not.a.jwt"},
		{"expired", signToken(t, jwt.SigningMethodHS256, testSecret, expired)},
		{"missing expiry", signToken(t, jwt.SigningMethodHS256, testSecret, noExpiry)},
		{"wrong secret", signToken(t, jwt.SigningMethodHS256, "another-secret-entirely-32-bytes!!", validClaims(userID))},
		{"wrong algorithm", signToken(t, jwt.SigningMethodHS512, testSecret, validClaims(userID))},
		{"wrong audience", signToken(t, jwt.SigningMethodHS256, testSecret, wrongAudience)},
		{"subject not a uuid", signToken(t, jwt.SigningMethodHS256, testSecret, validClaims("user@example.com"))},
	}

	handler := mw.NewAuth(testSecret, testAudience).Authenticate(okHandler())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			req.Header.Set("Authorization", "Bearer "+tt.token)
			w := serve(handler, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "INVALID_TOKEN", errCode(t, w))
		})
	}
}

func TestAuth_AudienceCheckDisabled(t *testing.T) {
	claims := validClaims(uuid.New().String())
	claims.Audience = nil

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "bearer "+signToken(t, jwt.SigningMethodHS256, testSecret, claims))
	w := serve(mw.NewAuth(testSecret, "").Authenticate(okHandler()), req)

	assert.Equal(t, http.StatusOK, w.Code)
}

// ========================================
// Rate Limit Middleware Tests
// ========================================

func withUser(req *http.Request, id uuid.UUID) *http.Request {
	return req.WithContext(mw.SetUserID(req.Context(), id))
}

func TestRateLimit_AllowsUnderLimit(t *testing.T) {
	mc := &mockCache{counter: 0}
	userID := uuid.New()
	handler := mw.NewRateLimit(mc, 60).Limit(okHandler())

	w := serve(handler, withUser(httptest.NewRequest("GET", "/test", nil), userID))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "60", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "59", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	assert.Equal(t, []string{cache.RateLimitKey(userID)}, mc.keys)
}

func TestRateLimit_RejectsOverLimit(t *testing.T) {
	mc := &mockCache{counter: 60} // next IncrWithExpiry will return 61
	handler := mw.NewRateLimit(mc, 60).Limit(okHandler())

	w := serve(handler, withUser(httptest.NewRequest("GET", "/test", nil), uuid.New()))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", errCode(t, w))
}

func TestRateLimit_NoUser_PassThrough(t *testing.T) {
	mc := &mockCache{}
	handler := mw.NewRateLimit(mc, 60).Limit(okHandler())

	w := serve(handler, httptest.NewRequest("GET", "/test", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, mc.keys)
}

func TestRateLimit_CacheErrorFailsOpen(t *testing.T) {
	mc := &mockCache{counter: 1000, err: errors.New("redis down")}
	handler := mw.NewRateLimit(mc, 60).Limit(okHandler())

	w := serve(handler, withUser(httptest.NewRequest("GET", "/test", nil), uuid.New()))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimit_DefaultLimit(t *testing.T) {
	handler := mw.NewRateLimit(&mockCache{}, 0).Limit(okHandler())

	w := serve(handler, withUser(httptest.NewRequest("GET", "/test", nil), uuid.New()))

	assert.Equal(t, "60", w.Header().Get("X-RateLimit-Limit"))
}

// ========================================
// Recovery Middleware Tests
// ========================================

func TestRecovery_CatchesPanic(t *testing.T) {
	panicking := http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		panic("something went wrong")
	})

	w := serve(mw.Recovery(panicking), httptest.NewRequest("GET", "/test", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL_ERROR", errCode(t, w))
}

func TestRecovery_LogsRequestContext(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	userID := uuid.New()
	panicking := http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		panic(errors.New("nil map write"))
	})
	handler := chimw.RequestID(mw.Recovery(panicking))

	w := serve(handler, withUser(httptest.NewRequest("GET", "/api/v1/jobs/abc", nil), userID))
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "panic recovered", entry["msg"])
	assert.Equal(t, "nil map write", entry["panic"])
	assert.Equal(t, "/api/v1/jobs/abc", entry["path"])
	assert.Equal(t, userID.String(), entry["user_id"])
	assert.NotEmpty(t, entry["request_id"])
	assert.Contains(t, entry["stack"], "runtime/debug.Stack")
}

func TestRecovery_AbortHandlerIsReraised(t *testing.T) {
	aborting := http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		panic(http.ErrAbortHandler)
	})

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		serve(mw.Recovery(aborting), httptest.NewRequest("GET", "/test", nil))
	})
}

func TestRecovery_NoPanic(t *testing.T) {
	w := serve(mw.Recovery(okHandler()), httptest.NewRequest("GET", "/test", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

// ========================================
// Logging Middleware Tests
// ========================================

func TestLogger_SetsStatus(t *testing.T) {
	w := serve(mw.Logger(okHandler()), httptest.NewRequest("GET", "/test", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLogger_RecordsRequest(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	userID := uuid.New()
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	handler := chimw.RequestID(mw.Logger(inner))

	w := serve(handler, withUser(httptest.NewRequest("POST", "/api/v1/jobs", nil), userID))
	assert.Equal(t, http.StatusTeapot, w.Code)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "request", entry["msg"])
	assert.Equal(t, "POST", entry["method"])
	assert.Equal(t, "/api/v1/jobs", entry["path"])
	assert.Equal(t, float64(http.StatusTeapot), entry["status"])
	assert.Equal(t, userID.String(), entry["user_id"])
	assert.NotEmpty(t, entry["request_id"])
}
