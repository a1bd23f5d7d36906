package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/residuos-hospitalarios/residuos/internal/auth"
	"github.com/residuos-hospitalarios/residuos/internal/shared"
	"github.com/residuos-hospitalarios/residuos/internal/view"
	_ "github.com/residuos-hospitalarios/residuos/testing"
)

type authFixture struct {
	router   http.Handler
	sessions *shared.SessionManager
	repo     *stubRepo
	mail     *mailSpy
}

func newAuthFixture(t *testing.T, repo *stubRepo) *authFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	sessions := shared.NewSessionManager(client, "test_session", time.Hour, false)
	templates, err := view.NewEngine()
	require.NoError(t, err)
	mail := &mailSpy{}
	svc := auth.NewService(repo, client, mail, auth.Options{PublicBaseURL: "http://localhost"}, nil)
	h := auth.NewHandler(nil, svc, templates, sessions, shared.NewCSRFManager("csrfsecret"))
	r := chi.NewRouter()
	r.Route("/auth", h.MountRoutes)
	return &authFixture{router: r, sessions: sessions, repo: repo, mail: mail}
}

// do runs req with sess attached and commits the session afterwards.
func (f *authFixture) do(t *testing.T, req *http.Request, sess *shared.Session) *httptest.ResponseRecorder {
	t.Helper()
	ctx := shared.ContextWithSession(req.Context(), sess)
	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, req.WithContext(ctx))
	require.NoError(t, f.sessions.Commit(ctx, res, sess))
	return res
}

func formRequest(target string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestLoginPage(t *testing.T) {
	f := newAuthFixture(t, newStubRepo())
	sess := f.sessions.Fresh()

	res := f.do(t, httptest.NewRequest(http.MethodGet, "/auth/login?redirect=/entregas", nil), sess)

	require.Equal(t, http.StatusOK, res.Code)
	body := res.Body.String()
	assert.Contains(t, body, "<form")
	assert.Contains(t, body, `name="redirect" value="/entregas"`)
	assert.NotEmpty(t, sess.Get(shared.CSRFSessionKey))
}

func TestLoginInvalidCredentials(t *testing.T) {
	f := newAuthFixture(t, newStubRepo(&auth.User{ID: 1, Email: "user@h.org", Name: "U", PasswordHash: hashed(t, "correctpass"), IsActive: true}))
	sess := f.sessions.Fresh()

	res := f.do(t, formRequest("/auth/login", url.Values{"email": {"user@h.org"}, "password": {"wrongpass"}}), sess)

	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Contains(t, res.Body.String(), "Correo o contraseña incorrectos.")
	assert.Empty(t, sess.User())
}

func TestLoginRotatesSessionAndRedirects(t *testing.T) {
	f := newAuthFixture(t, newStubRepo(&auth.User{ID: 1, Email: "user@h.org", Name: "Ana", PasswordHash: hashed(t, "correctpass"), IsActive: true}))
	sess := f.sessions.Fresh()
	before := sess.ID

	res := f.do(t, formRequest("/auth/login", url.Values{
		"email": {"user@h.org"}, "password": {"correctpass"}, "redirect": {"/pesajes?page=2"},
	}), sess)

	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/pesajes?page=2", res.Header().Get("Location"))
	assert.Equal(t, "1", sess.User())
	assert.NotEqual(t, before, sess.ID)
	assert.Equal(t, int64(1), f.repo.sessions[sess.ID])

	resolved, err := f.sessions.ResolveSession(context.Background(), sess.ID)
	require.NoError(t, err)
	id, ok := resolved.UserID()
	assert.True(t, ok)
	assert.Equal(t, "1", id)
}

func TestLoginIgnoresForeignRedirect(t *testing.T) {
	f := newAuthFixture(t, newStubRepo(&auth.User{ID: 1, Email: "user@h.org", Name: "Ana", PasswordHash: hashed(t, "correctpass"), IsActive: true}))

	res := f.do(t, formRequest("/auth/login", url.Values{
		"email": {"user@h.org"}, "password": {"correctpass"}, "redirect": {"//evil.example/x"},
	}), f.sessions.Fresh())

	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, auth.DefaultLanding, res.Header().Get("Location"))
}

func TestLogoutDestroysSession(t *testing.T) {
	f := newAuthFixture(t, newStubRepo())
	sess := f.sessions.Fresh()
	sess.SetUser("1")
	require.NoError(t, f.sessions.Commit(context.Background(), httptest.NewRecorder(), sess))
	f.repo.sessions[sess.ID] = 1

	res := f.do(t, formRequest("/auth/logout", nil), sess)

	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/auth/login", res.Header().Get("Location"))
	assert.Empty(t, f.repo.sessions)
	resolved, err := f.sessions.ResolveSession(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.False(t, resolved.Valid())
}

func TestRegisterDuplicateEmail(t *testing.T) {
	f := newAuthFixture(t, newStubRepo(&auth.User{ID: 1, Email: "user@h.org", Name: "U", IsActive: true}))

	res := f.do(t, formRequest("/auth/register", url.Values{
		"email": {"user@h.org"}, "name": {"Otra"}, "password": {"segura123"}, "password_confirm": {"segura123"},
	}), f.sessions.Fresh())

	assert.Equal(t, http.StatusConflict, res.Code)
	assert.Contains(t, res.Body.String(), "Ya existe una cuenta con ese correo.")
}

func TestResetRequestNeverRevealsAccounts(t *testing.T) {
	f := newAuthFixture(t, newStubRepo(&auth.User{ID: 1, Email: "user@h.org", Name: "U", IsActive: true}))

	known := f.do(t, formRequest("/auth/reset-password", url.Values{"email": {"user@h.org"}}), f.sessions.Fresh())
	unknown := f.do(t, formRequest("/auth/reset-password", url.Values{"email": {"nadie@h.org"}}), f.sessions.Fresh())

	assert.Equal(t, known.Code, unknown.Code)
	assert.Equal(t, known.Header().Get("Location"), unknown.Header().Get("Location"))
	assert.Len(t, f.mail.sent, 1)
}

func TestResetPageUnknownToken(t *testing.T) {
	f := newAuthFixture(t, newStubRepo())

	res := f.do(t, httptest.NewRequest(http.MethodGet, "/auth/reset-password/no-existe", nil), f.sessions.Fresh())

	assert.Equal(t, http.StatusNotFound, res.Code)
	assert.Contains(t, res.Body.String(), "El enlace no es válido o ya venció.")
}

func TestSafeRedirect(t *testing.T) {
	cases := map[string]string{
		"":                     "",
		"/entregas":            "/entregas",
		"/entregas/3?x=1":      "/entregas/3?x=1",
		"//evil.example":       "",
		"/\\evil.example":      "",
		"https://evil.example": "",
		"entregas":             "",
		"/auth/login":          "",
	}
	for in, want := range cases {
		assert.Equal(t, want, auth.SafeRedirect(in), in)
	}
}
