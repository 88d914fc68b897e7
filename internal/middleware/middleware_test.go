package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wondr/rembg/internal/apperrors"
	"github.com/wondr/rembg/internal/models"
	"github.com/wondr/rembg/internal/services"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type stubVerifier struct {
	identity models.Identity
	err      error
}

func (s stubVerifier) Verify(string) (models.Identity, error) {
	return s.identity, s.err
}

func TestBearerAuth(t *testing.T) {
	t.Run("stores identity in context", func(t *testing.T) {
		var got models.Identity
		handler := BearerAuth(stubVerifier{identity: models.Identity{Key: "user@example.com"}})(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var ok bool
				got, ok = IdentityFrom(r.Context())
				assert.True(t, ok)
			}))

		req := httptest.NewRequest(http.MethodGet, "/api/v1/credits", nil)
		req.Header.Set("Authorization", "Bearer token")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "user@example.com", got.Key)
	})

	t.Run("rejects with auth error", func(t *testing.T) {
		called := false
		handler := BearerAuth(stubVerifier{err: apperrors.New(apperrors.TokenExpired, "Token expired", nil)})(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/credits", nil))

		assert.False(t, called)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		var resp services.ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "Token expired", resp.Error)
		assert.Equal(t, "TOKEN_EXPIRED", resp.Code)
	})
}

func TestIdentityFrom_Empty(t *testing.T) {
	_, ok := IdentityFrom(httptest.NewRequest(http.MethodGet, "/", nil).Context())
	assert.False(t, ok)
}

func TestAccessLog(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	handler := chimw.RequestID(AccessLog(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/remove-background", nil))

	entries := logs.FilterMessage("[HTTP] request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, int64(http.StatusTeapot), fields["status"])
	assert.Equal(t, "/api/v1/remove-background", fields["path"])
	assert.NotEmpty(t, fields["request_id"])
}

func TestSecurityHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	SecurityHeaders(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).
		ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
}
