package users_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/residuos-hospitalarios/residuos/internal/access"
	"github.com/residuos-hospitalarios/residuos/internal/shared"
	"github.com/residuos-hospitalarios/residuos/internal/users"
	"github.com/residuos-hospitalarios/residuos/internal/view"
	_ "github.com/residuos-hospitalarios/residuos/testing"
)

type fakeUsers struct {
	list      []users.User
	createErr error
	created   users.CreateInput
	deleted   int64
	deleteErr error
}

func (f *fakeUsers) ListUsers(context.Context) ([]users.User, error) { return f.list, nil }

func (f *fakeUsers) GetUser(_ context.Context, id int64) (users.User, error) {
	for _, u := range f.list {
		if u.ID == id {
			return u, nil
		}
	}
	return users.User{}, shared.ErrNotFound
}

func (f *fakeUsers) CreateUser(_ context.Context, in users.CreateInput, _ string) (int64, error) {
	f.created = in
	return 5, f.createErr
}

func (f *fakeUsers) UpdateUser(context.Context, int64, users.UpdateInput, string) error { return nil }

func (f *fakeUsers) DeleteUser(_ context.Context, id int64, _ string) error {
	f.deleted = id
	return f.deleteErr
}

func newUsersRouter(t *testing.T, svc *fakeUsers) http.Handler {
	t.Helper()
	engine, err := view.NewEngine()
	require.NoError(t, err)
	h := users.NewHandler(nil, svc, engine, shared.NewCSRFManager("secret"))
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := access.ContextWithPrincipal(req.Context(), access.Principal{UserID: "1", Role: access.RoleAdministrador})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Route("/usuarios", h.MountRoutes)
	return r
}

func postForm(target string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestListUsersShowsRoleLabels(t *testing.T) {
	svc := &fakeUsers{list: []users.User{{ID: 3, Name: "Luis", Email: "luis@h.org", Role: access.RoleTransportista, IsActive: true}}}
	router := newUsersRouter(t, svc)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/usuarios/", nil))

	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "Luis")
	assert.Contains(t, res.Body.String(), access.RoleTransportista.Label())
}

func TestCreateUserRedirects(t *testing.T) {
	svc := &fakeUsers{}
	router := newUsersRouter(t, svc)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, postForm("/usuarios/", url.Values{
		"email": {"m@h.org"}, "name": {"Marta"}, "password": {"password1"}, "role": {"supervisor"}, "active": {"on"},
	}))

	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/usuarios/5", res.Header().Get("Location"))
	assert.True(t, svc.created.IsActive)
	assert.Equal(t, "supervisor", svc.created.Role)
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	svc := &fakeUsers{createErr: shared.ErrDuplicate}
	router := newUsersRouter(t, svc)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, postForm("/usuarios/", url.Values{
		"email": {"m@h.org"}, "name": {"Marta"}, "password": {"password1"}, "role": {"supervisor"},
	}))

	assert.Equal(t, http.StatusConflict, res.Code)
	assert.Contains(t, res.Body.String(), "Ya existe un usuario con ese correo.")
}

func TestDeleteOwnAccountIsRefused(t *testing.T) {
	svc := &fakeUsers{deleteErr: users.ErrSelfDelete}
	router := newUsersRouter(t, svc)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, postForm("/usuarios/1/eliminar", nil))

	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/usuarios/1", res.Header().Get("Location"))
	assert.Equal(t, int64(1), svc.deleted)
}
