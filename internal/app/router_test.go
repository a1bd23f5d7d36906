package app

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/residuos-hospitalarios/residuos/internal/access"
	"github.com/residuos-hospitalarios/residuos/internal/auth"
	"github.com/residuos-hospitalarios/residuos/internal/observability"
	"github.com/residuos-hospitalarios/residuos/internal/shared"
	"github.com/residuos-hospitalarios/residuos/internal/users"
	"github.com/residuos-hospitalarios/residuos/internal/view"
	_ "github.com/residuos-hospitalarios/residuos/testing"
)

func newTestRouter(t *testing.T) (http.Handler, *observability.Metrics) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := &Config{AppEnv: "test", RateLimit: 1000, AccessVariant: "bounce", CSRFSecret: "secret"}
	rules, err := cfg.Rules()
	require.NoError(t, err)

	sessions := shared.NewSessionManager(client, "residuos_session", time.Hour, false)
	csrf := shared.NewCSRFManager(cfg.CSRFSecret)
	metrics := observability.NewMetrics()
	gate, err := access.NewGate(access.GateConfig{
		Rules:    rules,
		Sessions: sessions,
		Roles: access.RoleLookupFunc(func(context.Context, string) (access.Role, error) {
			return access.RoleGenerador, nil
		}),
		Observer: metrics,
	})
	require.NoError(t, err)

	templates, err := view.NewEngine()
	require.NoError(t, err)
	authSvc := auth.NewService(nil, nil, nil, auth.Options{}, nil)

	return NewRouter(RouterParams{
		Config:         cfg,
		SessionManager: sessions,
		CSRFManager:    csrf,
		Gate:           gate,
		AuthHandler:    auth.NewHandler(nil, authSvc, templates, sessions, csrf),
		UsersHandler:   users.NewHandler(nil, nil, templates, csrf),
		Metrics:        metrics,
	}), metrics
}

func TestHealthz(t *testing.T) {
	router, _ := newTestRouter(t)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, `{"status":"ok"}`, res.Body.String())
	assert.Empty(t, res.Header().Get("Set-Cookie"))
}

func TestStaticAssetsBypassGate(t *testing.T) {
	router, _ := newTestRouter(t)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/static/css/app.css", nil))

	assert.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "public, max-age=3600", res.Header().Get("Cache-Control"))
}

func TestAnonymousRequestRedirectsToLogin(t *testing.T) {
	router, metrics := newTestRouter(t)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/usuarios", nil))

	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/auth/login", res.Header().Get("Location"))

	scrape := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(scrape, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(scrape.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "residuos_access_decisions_total")
}

func TestLoginPageIssuesSessionCookie(t *testing.T) {
	router, _ := newTestRouter(t)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/auth/login", nil))

	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Header().Get("Set-Cookie"), "residuos_session=")
	assert.Contains(t, res.Body.String(), shared.CSRFFormField)
	assert.Equal(t, "DENY", res.Header().Get("X-Frame-Options"))
}

func TestPostWithoutCSRFTokenIsForbidden(t *testing.T) {
	router, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader("email=a%40b.org&password=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	assert.Equal(t, http.StatusForbidden, res.Code)
}

func TestAnonymousFormPostRedirectsToLogin(t *testing.T) {
	router, _ := newTestRouter(t)
	for _, target := range []string{"/usuarios/nuevo", "/usuarios/3/eliminar"} {
		req := httptest.NewRequest(http.MethodPost, target, strings.NewReader("nombre=x"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		res := httptest.NewRecorder()
		router.ServeHTTP(res, req)

		assert.Equal(t, http.StatusSeeOther, res.Code, target)
		assert.Equal(t, "/auth/login", res.Header().Get("Location"), target)
	}
}

func TestConfigRulesOverrideDeniedPath(t *testing.T) {
	cfg := &Config{AccessVariant: "return-to", AccessDeniedPath: "/no-autorizado"}
	rules, err := cfg.Rules()
	require.NoError(t, err)
	assert.Equal(t, access.VariantReturnTo, rules.Variant)
	assert.Equal(t, "/no-autorizado", rules.DeniedPath)

	cfg.AccessDeniedPath = "/admin"
	_, err = cfg.Rules()
	assert.Error(t, err)

	cfg = &Config{AccessVariant: "sideways"}
	_, err = cfg.Rules()
	assert.Error(t, err)
}
