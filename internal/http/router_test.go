package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/carelink-auth/internal/config"
	"github.com/pribylovaa/carelink-auth/internal/http/middleware"
	"github.com/pribylovaa/carelink-auth/internal/models"
	"github.com/pribylovaa/carelink-auth/internal/service"
)

type stubAuth struct{}

func (stubAuth) Login(context.Context, string, string) (*models.TokenPair, error) {
	return nil, service.ErrInvalidCredentials
}

func (stubAuth) Refresh(context.Context, string) (*models.TokenPair, error) {
	return nil, service.ErrReplayDetected
}

func (stubAuth) Logout(context.Context, string, string) error { return nil }

// mapRegistry — реестр отзыва без TTL.
type mapRegistry struct {
	mu      sync.Mutex
	revoked map[string]bool
}

func (r *mapRegistry) Revoke(_ context.Context, jti string, tt models.TokenType, _ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revoked[string(tt)+jti] = true
	return nil
}

func (r *mapRegistry) IsRevoked(_ context.Context, jti string, tt models.TokenType) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.revoked[string(tt)+jti], nil
}

type routerEnv struct {
	handler http.Handler
	codec   *service.Codec
	reg     *mapRegistry
}

func newRouterEnv(t *testing.T, limiter *middleware.RateLimiter) *routerEnv {
	t.Helper()

	cfg := config.AuthConfig{
		JWTSecret:  "router-secret",
		SigningAlg: "HS256",
		Issuer:     "carelink-auth",
		Audience:   []string{"carelink"},
	}
	codec, err := service.NewCodec(cfg, nil)
	require.NoError(t, err)

	reg := &mapRegistry{revoked: map[string]bool{}}
	guard := service.NewGuard(codec, reg, service.NewOrgScope("super_admin"))

	return &routerEnv{
		handler: NewRouter(stubAuth{}, guard, Options{Timeout: time.Second, LoginLimiter: limiter}),
		codec:   codec,
		reg:     reg,
	}
}

func (e *routerEnv) token(t *testing.T, org string, roles ...string) (string, string) {
	t.Helper()

	jti := uuid.NewString()
	now := time.Now()
	tok, err := e.codec.Encode(&models.TokenClaims{
		Subject:   uuid.New(),
		Roles:     roles,
		OrgID:     org,
		Type:      models.TokenAccess,
		JTI:       jti,
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Minute),
	})
	require.NoError(t, err)

	return tok, jti
}

func (e *routerEnv) do(method, target, auth, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.RemoteAddr = "10.1.1.1:1000"
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func TestRouter_Session(t *testing.T) {
	e := newRouterEnv(t, nil)
	tok, _ := e.token(t, "org-a", "clinician")

	rr := e.do(http.MethodGet, "/session", "Bearer "+tok, "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NotEmpty(t, rr.Header().Get("X-Request-Id"))

	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Equal(t, "org-a", out["org_id"])
	require.Equal(t, "access", out["token_type"])
	require.Equal(t, []any{"clinician"}, out["roles"])

	rr = e.do(http.MethodGet, "/orgs/org-a/session", "Bearer "+tok, "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = e.do(http.MethodGet, "/orgs/org-b/session", "Bearer "+tok, "")
	require.Equal(t, http.StatusForbidden, rr.Code)

	admin, _ := e.token(t, "org-a", "super_admin")
	rr = e.do(http.MethodGet, "/orgs/org-b/session", "Bearer "+admin, "")
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestRouter_SessionRejections(t *testing.T) {
	e := newRouterEnv(t, nil)
	tok, jti := e.token(t, "org-a")
	require.NoError(t, e.reg.Revoke(context.Background(), jti, models.TokenAccess, time.Minute))

	rr := e.do(http.MethodGet, "/session", "", "")
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Contains(t, rr.Body.String(), "auth_header_missing")

	rr = e.do(http.MethodGet, "/session", "Bearer junk", "")
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = e.do(http.MethodGet, "/session", "Bearer "+tok, "")
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Contains(t, rr.Body.String(), "token_revoked")
}

func TestRouter_AuthEndpoints(t *testing.T) {
	e := newRouterEnv(t, nil)

	rr := e.do(http.MethodPost, "/login", "", `{"email":"u@example.com","password":"x"}`)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Contains(t, rr.Body.String(), "invalid_credentials")

	rr = e.do(http.MethodPost, "/refresh", "", `{"refresh_token":"r"}`)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Contains(t, rr.Body.String(), "replay_detected")

	rr = e.do(http.MethodPost, "/logout", "", `{"refresh_token":"r"}`)
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = e.do(http.MethodGet, "/login", "", "")
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestRouter_BodyLimit(t *testing.T) {
	e := newRouterEnv(t, nil)

	big := `{"refresh_token":"` + strings.Repeat("a", MaxBodyBytes) + `"}`
	rr := e.do(http.MethodPost, "/refresh", "", big)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRouter_LoginRateLimit(t *testing.T) {
	e := newRouterEnv(t, middleware.NewRateLimiter(0.001, 1))

	rr := e.do(http.MethodPost, "/login", "", `{"email":"u@example.com","password":"x"}`)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = e.do(http.MethodPost, "/login", "", `{"email":"u@example.com","password":"x"}`)
	require.Equal(t, http.StatusTooManyRequests, rr.Code)

	// /refresh не лимитируется.
	rr = e.do(http.MethodPost, "/refresh", "", `{"refresh_token":"r"}`)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRouter_ProbesAndMetrics(t *testing.T) {
	e := newRouterEnv(t, nil)

	require.Equal(t, http.StatusOK, e.do(http.MethodGet, "/livez", "", "").Code)
	require.Equal(t, http.StatusOK, e.do(http.MethodGet, "/healthz", "", "").Code)

	e.do(http.MethodGet, "/orgs/org-x/session", "", "")

	rr := e.do(http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `route="/orgs/{org_id}/session"`)
}
