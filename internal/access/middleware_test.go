package access_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/residuos-hospitalarios/residuos/internal/access"
)

func TestMiddlewareRedirectsAndInjectsPrincipal(t *testing.T) {
	sessions, roles := fixtures()
	gate, err := access.NewGate(access.GateConfig{
		Rules:    access.DefaultRules(access.VariantReturnTo),
		Sessions: sessions,
		Roles:    roles,
	})
	require.NoError(t, err)

	var seen access.Principal
	var seenOK bool
	handler := gate.Middleware("sid")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, seenOK = access.PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/cumplimiento?mes=3", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/auth/login?redirect=%2Fcumplimiento", rr.Header().Get("Location"))

	req = httptest.NewRequest(http.MethodGet, "/cumplimiento", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: "tok-trans"})
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/dashboard", rr.Header().Get("Location"))

	req = httptest.NewRequest(http.MethodGet, "/cumplimiento", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: "tok-sup"})
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	require.True(t, seenOK)
	assert.Equal(t, access.Principal{UserID: "7", Role: access.RoleSupervisor}, seen)
}

func TestMiddlewarePublicRequestHasNoPrincipal(t *testing.T) {
	sessions, roles := fixtures()
	gate, err := access.NewGate(access.GateConfig{
		Rules:    access.DefaultRules(access.VariantBounce),
		Sessions: sessions,
		Roles:    roles,
	})
	require.NoError(t, err)

	called := false
	handler := gate.Middleware("sid")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		_, ok := access.PrincipalFromContext(r.Context())
		assert.False(t, ok)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.True(t, called)
}
