package httputil

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mberezin/tubedigest/internal/domain"
)

type stubValidator struct{}

func (stubValidator) ValidateToken(_ context.Context, token string) (string, string, domain.Role, error) {
	return "acc-1", "user@example.com", domain.RoleUser, nil
}

func authedHandler(t *testing.T) http.Handler {
	t.Helper()
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return AuthMiddleware(stubValidator{})(next)
}

func TestAuthMiddleware_CookieMutationNeedsCSRFToken(t *testing.T) {
	handler := authedHandler(t)

	// Arrange: a browser-style session, token cookies only.
	req := httptest.NewRequest(http.MethodDelete, "/me/subscriptions/abc", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: "session-token"})
	req.AddCookie(&http.Cookie{Name: CSRFTokenCookie, Value: "csrf-value"})

	// Act: no X-CSRF-Token header.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	// Assert
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAuthMiddleware_CookieMutationRejectsMismatchedCSRFToken(t *testing.T) {
	handler := authedHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/me/subscriptions", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: "session-token"})
	req.AddCookie(&http.Cookie{Name: CSRFTokenCookie, Value: "csrf-value"})
	req.Header.Set(CSRFTokenHeader, "some-other-value")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAuthMiddleware_CookieMutationAcceptsDoubleSubmitPair(t *testing.T) {
	handler := authedHandler(t)

	req := httptest.NewRequest(http.MethodDelete, "/me/subscriptions/abc", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: "session-token"})
	req.AddCookie(&http.Cookie{Name: CSRFTokenCookie, Value: "csrf-value"})
	req.Header.Set(CSRFTokenHeader, "csrf-value")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthMiddleware_CookieReadSkipsCSRFCheck(t *testing.T) {
	handler := authedHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/me/subscriptions", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: "session-token"})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthMiddleware_BearerMutationSkipsCSRFCheck(t *testing.T) {
	handler := authedHandler(t)

	// API clients authenticate with the Authorization header only.
	req := httptest.NewRequest(http.MethodDelete, "/me/subscriptions/abc", nil)
	req.Header.Set("Authorization", "Bearer session-token")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
