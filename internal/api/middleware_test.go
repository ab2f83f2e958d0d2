package api

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"staffhub/internal/auth"
	"staffhub/internal/models"
	"staffhub/internal/social"
	"staffhub/internal/version"
)

var processTimeFormat = regexp.MustCompile(`^\d+\.\d{6}$`)

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func TestAuthMiddleware(t *testing.T) {
	svc := &MockSocialService{}
	svc.On("Authenticate", mock.Anything, "good-token").Return(testUser, nil)
	svc.On("Authenticate", mock.Anything, "stale-token").Return(nil, social.NewInvalidTokenError(auth.ErrInvalidToken))

	var seen *models.User
	handler := authMiddleware(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantUser   bool
	}{
		{"valid token", "Bearer good-token", http.StatusOK, true},
		{"scheme is case insensitive", "bearer good-token", http.StatusOK, true},
		{"missing header", "", http.StatusUnauthorized, false},
		{"wrong scheme", "Basic dXNlcjpwYXNz", http.StatusUnauthorized, false},
		{"short header", "Bear", http.StatusUnauthorized, false},
		{"rejected token", "Bearer stale-token", http.StatusUnauthorized, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/api/v1/posts", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantUser {
				assert.Equal(t, testUser, seen)
			} else {
				assert.Nil(t, seen)
				assert.Equal(t, models.ErrorCodeUnauthorized, decodeError(t, rec).Code)
			}
		})
	}
}

func TestUserFromContext_Empty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Nil(t, UserFromContext(req.Context()))
}

func TestClientVersionMiddleware(t *testing.T) {
	minimum, err := version.NewRequirement("2.1.0")
	require.NoError(t, err)
	handler := clientVersionMiddleware(minimum)(http.HandlerFunc(okHandler))

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantCode   string
	}{
		{"no header passes", "", http.StatusOK, ""},
		{"equal passes", "2.1.0", http.StatusOK, ""},
		{"newer passes", "v2.3.1", http.StatusOK, ""},
		{"older is refused", "2.0.9", http.StatusUpgradeRequired, models.ErrorCodeClientOutdated},
		{"garbage is a bad request", "latest", http.StatusBadRequest, models.ErrorCodeBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/posts", nil)
			if tt.header != "" {
				req.Header.Set(HeaderClientVersion, tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantCode != "" {
				resp := decodeError(t, rec)
				assert.Equal(t, tt.wantCode, resp.Code)
			}
			if tt.wantStatus == http.StatusUpgradeRequired {
				assert.Equal(t, "2.1.0", decodeError(t, rec).Details["min_version"])
			}
		})
	}
}

func TestProcessTimeMiddleware(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"explicit header", okHandler},
		{"implicit header on write", func(w http.ResponseWriter, r *http.Request) { _, _ = io.WriteString(w, "hi") }},
		{"nothing written", func(w http.ResponseWriter, r *http.Request) {}},
		{"error response", func(w http.ResponseWriter, r *http.Request) { http.Error(w, "nope", http.StatusTeapot) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			processTimeMiddleware(tt.handler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
			assert.Regexp(t, processTimeFormat, rec.Header().Get(HeaderProcessTime))
		})
	}
}

func TestBodyLimitMiddleware(t *testing.T) {
	var read []byte
	var readErr error
	handler := bodyLimitMiddleware(16)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		read, readErr = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("declared length over the limit", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/posts", strings.NewReader(strings.Repeat("x", 17)))
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		resp := decodeError(t, rec)
		assert.Equal(t, models.ErrorCodePayloadTooLarge, resp.Code)
		assert.Equal(t, "16", resp.Details["max_bytes"])
	})

	t.Run("undeclared length is cut off", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/posts", strings.NewReader(strings.Repeat("x", 64)))
		req.ContentLength = -1
		handler.ServeHTTP(rec, req)

		var tooLarge *http.MaxBytesError
		assert.True(t, errors.As(readErr, &tooLarge))
		assert.Len(t, read, 16)
	})

	t.Run("within the limit", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/posts", strings.NewReader("{}")))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.NoError(t, readErr)
		assert.Equal(t, "{}", string(read))
	})
}

func TestCORSMiddleware(t *testing.T) {
	handler := corsMiddleware(models.CORSConfig{
		Enabled:        true,
		AllowedOrigins: []string{"https://intranet.example.com"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         600,
	})(http.HandlerFunc(okHandler))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/posts", nil)
	req.Header.Set("Origin", "https://intranet.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://intranet.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Authorization, Content-Type", rec.Header().Get("Access-Control-Allow-Headers"))
	assert.Equal(t, "600", rec.Header().Get("Access-Control-Max-Age"))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/posts", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := recoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, models.ErrorCodeInternalError, decodeError(t, rec).Code)
}

func TestLoggingMiddleware_PassesThrough(t *testing.T) {
	handler := loggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = io.WriteString(w, "queued")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "queued", rec.Body.String())
}
