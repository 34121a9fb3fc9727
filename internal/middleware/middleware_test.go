package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groupdecide/pkg/errors"
	"groupdecide/pkg/logger"
)

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(UserID(r.Context()) + "|" + RequestIDFrom(r.Context())))
	})
}

func TestIdentity(t *testing.T) {
	log := logger.NewNop()
	h := RequestID(log)(Identity(log)(echoUser()))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(UserIDHeader, "  alice ")
	req.Header.Set(RequestIDHeader, "req-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "alice|req-1", rec.Body.String())
	assert.Equal(t, "req-1", rec.Header().Get(RequestIDHeader))
}

func TestRequestID_GeneratesWhenMissing(t *testing.T) {
	h := RequestID(logger.NewNop())(echoUser())

	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/", nil))
	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/", nil))

	require.NotEmpty(t, first.Header().Get(RequestIDHeader))
	assert.NotEqual(t, first.Header().Get(RequestIDHeader), second.Header().Get(RequestIDHeader))
}

func TestRequireUser(t *testing.T) {
	log := logger.NewNop()
	h := RequestID(log)(Identity(log)(RequireUser(log)(echoUser())))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp errors.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, errors.ErrorTypeValidation, resp.Error.Type)
	assert.Equal(t, UserIDHeader, resp.Error.Details["header"])
	assert.Equal(t, rec.Header().Get(RequestIDHeader), resp.Error.RequestID)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(UserIDHeader, "bob")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWriteError_HidesInternalCause(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	WriteError(rec, req, plainError("pq: connection reset"), logger.NewNop())

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection reset")
	assert.Contains(t, rec.Body.String(), `"internal"`)
}

type plainError string

func (e plainError) Error() string { return string(e) }

func TestCORS(t *testing.T) {
	config := DefaultCORSConfig()
	config.AllowedOrigins = []string{"https://app.example", "https://*.preview.example"}
	h := CORS(config, logger.NewNop())(echoUser())

	tests := []struct {
		name          string
		method        string
		origin        string
		preflight     bool
		wantOrigin    string
		wantCode      int
		wantPreflight bool
	}{
		{"allowed origin", http.MethodGet, "https://app.example", false, "https://app.example", http.StatusOK, false},
		{"wildcard subdomain", http.MethodPost, "https://pr-12.preview.example", false, "https://pr-12.preview.example", http.StatusOK, false},
		{"bare wildcard suffix", http.MethodGet, "https://.preview.example", false, "", http.StatusOK, false},
		{"foreign origin", http.MethodGet, "https://evil.example", false, "", http.StatusOK, false},
		{"no origin", http.MethodGet, "", false, "", http.StatusOK, false},
		{"preflight", http.MethodOptions, "https://app.example", true, "https://app.example", http.StatusNoContent, true},
		{"foreign preflight", http.MethodOptions, "https://evil.example", true, "", http.StatusNoContent, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, "Origin", rec.Header().Get("Vary"))
			if tt.wantPreflight {
				assert.Equal(t, "86400", rec.Header().Get("Access-Control-Max-Age"))
				assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), UserIDHeader)
			} else {
				assert.Empty(t, rec.Header().Get("Access-Control-Max-Age"))
			}
		})
	}
}

func TestCORS_EmptyListAllowsAny(t *testing.T) {
	h := CORS(nil, logger.NewNop())(echoUser())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestRateLimiter_SlidingWindow(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("alice"))
	assert.True(t, rl.Allow("alice"))
	assert.False(t, rl.Allow("alice"))
	assert.True(t, rl.Allow("bob"), "keys are independent")

	now = now.Add(61 * time.Second)
	assert.True(t, rl.Allow("alice"))
}

func TestLimitWrites(t *testing.T) {
	log := logger.NewNop()
	h := Identity(log)(LimitWrites(NewRateLimiter(1, time.Minute), log)(echoUser()))

	send := func(method string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "/", nil)
		req.Header.Set(UserIDHeader, "alice")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, send(http.MethodPost).Code)
	limited := send(http.MethodPost)
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "60", limited.Header().Get("Retry-After"))
	assert.Contains(t, limited.Body.String(), `"rate_limited"`)
	assert.Equal(t, http.StatusOK, send(http.MethodGet).Code, "reads are not limited")

	passthrough := LimitWrites(nil, log)(echoUser())
	rec := httptest.NewRecorder()
	passthrough.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
