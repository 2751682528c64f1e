package chatsdk

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenExpirySkew makes a token count as expired slightly before its exp claim.
const tokenExpirySkew = 5 * time.Second

type (
	LoginRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	refreshRequest struct {
		RefreshToken string `json:"refresh_token"`
	}

	refreshResponse struct {
		AccessToken string `json:"access_token"`
	}
)

// AuthService holds the access/refresh token pair and signs requests with it.
type AuthService struct {
	http   *HTTPClient
	logger Logger
	now    clock

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
}

func NewAuthService(h *HTTPClient, opts ...Option) *AuthService {
	return newAuthService(h, newOptions(opts))
}

func newAuthService(h *HTTPClient, o options) *AuthService {
	return &AuthService{
		http:   h,
		logger: o.logger.WithField("type", "auth_service"),
		now:    o.now,
	}
}

func (a *AuthService) Login(ctx context.Context, email, password string) (AuthTokens, error) {
	req := LoginRequest{Email: email, Password: password}
	if err := validateRequest(req); err != nil {
		return AuthTokens{}, err
	}

	raw, err := a.http.Request(ctx, http.MethodPost, "/api/auth/login", req, nil)
	if err != nil {
		return AuthTokens{}, err
	}

	tokens, err := decodeData[AuthTokens](raw)
	if err != nil {
		return AuthTokens{}, err
	}

	a.SetTokens(tokens.AccessToken, tokens.RefreshToken)

	return tokens, nil
}

// RefreshAccessToken exchanges the refresh token for a new access token.
func (a *AuthService) RefreshAccessToken(ctx context.Context) (string, error) {
	a.mu.RLock()
	refresh := a.refreshToken
	a.mu.RUnlock()

	if refresh == "" {
		return "", newAuthenticationError("No refresh token available")
	}

	raw, err := a.http.Request(ctx, http.MethodPost, "/api/auth/refresh", refreshRequest{RefreshToken: refresh}, nil)
	if err != nil {
		return "", err
	}

	resp, err := decodeData[refreshResponse](raw)
	if err != nil {
		return "", err
	}

	a.mu.Lock()
	a.accessToken = resp.AccessToken
	a.mu.Unlock()

	return resp.AccessToken, nil
}

// Logout tells the server to drop the session. Tokens are cleared locally even
// when the request fails.
func (a *AuthService) Logout(ctx context.Context) {
	if access := a.AccessToken(); access != "" {
		_, err := a.http.Request(ctx, http.MethodPost, "/api/auth/logout", nil, bearer(access))
		if err != nil {
			a.logger.Warnf("logout request failed: %s", err)
		}
	}

	a.clear()
}

func (a *AuthService) AccessToken() string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return a.accessToken
}

func (a *AuthService) SetTokens(accessToken, refreshToken string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.accessToken = accessToken
	a.refreshToken = refreshToken
}

func (a *AuthService) IsAuthenticated() bool {
	return a.AccessToken() != ""
}

// AccessTokenExpiry reads the exp claim of the access token without verifying
// its signature. ok is false when the token is not a JWT or has no exp.
func (a *AuthService) AccessTokenExpiry() (exp time.Time, ok bool) {
	return tokenExpiry(a.AccessToken())
}

// AuthenticatedRequest sends the request with the bearer token. An expired
// token is refreshed once, either up front when its exp claim is already past
// or after the server answers TOKEN_EXPIRED. A failed refresh clears both tokens
// and returns a KindAuthentication error. When the refresh succeeds but the
// retried request fails, that request's error is returned as is and the new
// tokens are kept.
func (a *AuthService) AuthenticatedRequest(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	a.mu.RLock()
	access, refresh := a.accessToken, a.refreshToken
	a.mu.RUnlock()

	if access != "" && refresh != "" && a.expired(access) {
		a.logger.Debug("access token expired locally, refreshing")
		if err := a.refreshOrClear(ctx); err != nil {
			return nil, err
		}
		access = a.AccessToken()
	}

	raw, err := a.http.Request(ctx, method, path, body, bearer(access))
	if err == nil {
		return raw, nil
	}

	if !IsKind(err, KindTokenExpired) || refresh == "" {
		return nil, err
	}

	if err := a.refreshOrClear(ctx); err != nil {
		return nil, err
	}

	return a.http.Request(ctx, method, path, body, bearer(a.AccessToken()))
}

func (a *AuthService) refreshOrClear(ctx context.Context) error {
	if _, err := a.RefreshAccessToken(ctx); err != nil {
		a.logger.Warnf("token refresh failed: %s", err)
		a.clear()
		return newAuthenticationError("Token refresh failed")
	}
	return nil
}

func (a *AuthService) expired(token string) bool {
	exp, ok := tokenExpiry(token)
	if !ok {
		return false
	}
	return !a.now().Add(tokenExpirySkew).Before(exp)
}

func (a *AuthService) clear() {
	a.SetTokens("", "")
}

func tokenExpiry(token string) (time.Time, bool) {
	if token == "" {
		return time.Time{}, false
	}

	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

func bearer(token string) map[string]string {
	if token == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + token}
}
