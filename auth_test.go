package chatsdk

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	return token
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func tokenExpiredResponse(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, map[string]any{
		"error": map[string]any{"message": "Token has expired", "code": "TOKEN_EXPIRED"},
	})
}

func newTestAuth(t *testing.T, mux *http.ServeMux, opts ...Option) *AuthService {
	t.Helper()
	h := newTestHTTPClient(t, mux.ServeHTTP, opts...)
	return NewAuthService(h, append([]Option{WithLogger(NewNopLogger())}, opts...)...)
}

func TestLoginStoresTokens(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, LoginRequest{Email: "ada@example.com", Password: "pw"}, req)

		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{
			"access_token":  "a1",
			"refresh_token": "r1",
			"user":          map[string]any{"id": "u1", "email": "ada@example.com"},
		}})
	})
	auth := newTestAuth(t, mux)

	tokens, err := auth.Login(context.Background(), "ada@example.com", "pw")

	require.NoError(t, err)
	assert.Equal(t, AuthTokens{
		AccessToken:  "a1",
		RefreshToken: "r1",
		User:         User{ID: "u1", Email: "ada@example.com"},
	}, tokens)
	assert.Equal(t, "a1", auth.AccessToken())
	assert.True(t, auth.IsAuthenticated())
}

func TestLoginRejectsInvalidInputLocally(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) { calls.Add(1) })
	auth := newTestAuth(t, mux)

	_, err := auth.Login(context.Background(), "not-an-email", "")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, KindValidation, apiErr.Kind)
	assert.Contains(t, apiErr.Details, "email")
	assert.Equal(t, []string{"can't be blank"}, apiErr.Details["password"])
	assert.Zero(t, calls.Load())
	assert.False(t, auth.IsAuthenticated())
}

func TestRefreshWithoutRefreshToken(t *testing.T) {
	auth := newTestAuth(t, http.NewServeMux())

	_, err := auth.RefreshAccessToken(context.Background())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, KindAuthentication, apiErr.Kind)
	assert.Equal(t, "No refresh token available", apiErr.Message)
}

func TestAuthenticatedRequestRefreshesOnTokenExpired(t *testing.T) {
	var refreshes atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshes.Add(1)
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "r1", body["refresh_token"])
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"access_token": "a2"}})
	})
	mux.HandleFunc("/api/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer a2" {
			tokenExpiredResponse(w)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"id": "u1"}})
	})

	auth := newTestAuth(t, mux)
	auth.SetTokens("a1", "r1")

	raw, err := auth.AuthenticatedRequest(context.Background(), http.MethodGet, "/api/me", nil)

	require.NoError(t, err)
	assert.JSONEq(t, `{"data":{"id":"u1"}}`, string(raw))
	assert.Equal(t, int32(1), refreshes.Load())
	assert.Equal(t, "a2", auth.AccessToken())
}

func TestAuthenticatedRequestFailedRefreshClearsTokens(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"error": map[string]any{"message": "invalid refresh token"},
		})
	})
	mux.HandleFunc("/api/me", func(w http.ResponseWriter, r *http.Request) {
		tokenExpiredResponse(w)
	})

	auth := newTestAuth(t, mux)
	auth.SetTokens("a1", "r1")

	_, err := auth.AuthenticatedRequest(context.Background(), http.MethodGet, "/api/me", nil)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, KindAuthentication, apiErr.Kind)
	assert.Equal(t, "Token refresh failed", apiErr.Message)
	assert.False(t, auth.IsAuthenticated())
}

func TestAuthenticatedRequestWithoutRefreshTokenSurfacesExpiry(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/me", func(w http.ResponseWriter, r *http.Request) {
		tokenExpiredResponse(w)
	})

	auth := newTestAuth(t, mux)
	auth.SetTokens("a1", "")

	_, err := auth.AuthenticatedRequest(context.Background(), http.MethodGet, "/api/me", nil)

	assert.True(t, IsKind(err, KindTokenExpired))
	assert.Equal(t, "a1", auth.AccessToken())
}

func TestAuthenticatedRequestRefreshesExpiredJWTUpFront(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	expired := signedToken(t, now.Add(-time.Minute))
	fresh := signedToken(t, now.Add(time.Hour))

	var meCalls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"access_token": fresh}})
	})
	mux.HandleFunc("/api/me", func(w http.ResponseWriter, r *http.Request) {
		meCalls.Add(1)
		assert.Equal(t, "Bearer "+fresh, r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{}})
	})

	auth := newTestAuth(t, mux, withClock(func() time.Time { return now }))
	auth.SetTokens(expired, "r1")

	_, err := auth.AuthenticatedRequest(context.Background(), http.MethodGet, "/api/me", nil)

	require.NoError(t, err)
	assert.Equal(t, int32(1), meCalls.Load())
	assert.Equal(t, fresh, auth.AccessToken())

	exp, ok := auth.AccessTokenExpiry()
	require.True(t, ok)
	assert.True(t, exp.Equal(now.Add(time.Hour)))
}

func TestAccessTokenExpiryOpaqueToken(t *testing.T) {
	auth := newTestAuth(t, http.NewServeMux())
	auth.SetTokens("opaque", "r1")

	_, ok := auth.AccessTokenExpiry()

	assert.False(t, ok)
}

func TestLogoutClearsTokensEvenOnFailure(t *testing.T) {
	var calls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "Bearer a1", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusForbidden)
	})

	auth := newTestAuth(t, mux)
	auth.SetTokens("a1", "r1")

	auth.Logout(context.Background())

	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, auth.IsAuthenticated())

	_, err := auth.RefreshAccessToken(context.Background())
	assert.True(t, IsKind(err, KindAuthentication))
}

func TestAuthenticatedRequestRetryFailureKeepsRefreshedTokens(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"access_token": "a2"}})
	})
	mux.HandleFunc("/api/workspaces/w1", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer a2" {
			tokenExpiredResponse(w)
			return
		}
		writeJSON(w, http.StatusNotFound, map[string]any{
			"error": map[string]any{"message": "Workspace not found", "code": "NOT_FOUND"},
		})
	})

	auth := newTestAuth(t, mux)
	auth.SetTokens("a1", "r1")

	_, err := auth.AuthenticatedRequest(context.Background(), http.MethodGet, "/api/workspaces/w1", nil)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, KindGeneric, apiErr.Kind)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "a2", auth.AccessToken())
	assert.True(t, auth.IsAuthenticated())
}
