package view

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/residuos-hospitalarios/residuos/internal/access"
	"github.com/residuos-hospitalarios/residuos/internal/catalog"
)

func TestNewEngine(t *testing.T) {
	engine, err := NewEngine()
	assert.NoError(t, err, "Templates should parse without error")
	assert.NotNil(t, engine)
}

func TestNavigationHidesForbiddenSections(t *testing.T) {
	nav := NewNavigation(catalog.Default(), access.DefaultRules(access.VariantBounce))

	paths := func(items []NavItem) []string {
		out := make([]string, 0, len(items))
		for _, i := range items {
			out = append(out, i.Path)
		}
		return out
	}

	gen := paths(nav.Items(access.Principal{UserID: "42", Role: access.RoleGenerador}, "/entregas"))
	assert.Contains(t, gen, "/entregas")
	assert.NotContains(t, gen, "/reportes")
	assert.NotContains(t, gen, "/cumplimiento")
	assert.NotContains(t, gen, "/usuarios")

	sup := paths(nav.Items(access.Principal{UserID: "7", Role: access.RoleSupervisor}, "/"))
	assert.Contains(t, sup, "/reportes")
	assert.NotContains(t, sup, "/admin")

	admin := nav.Items(access.Principal{UserID: "1", Role: access.RoleAdministrador}, "/usuarios/3")
	assert.Contains(t, paths(admin), "/admin")
	for _, item := range admin {
		assert.Equal(t, item.Path == "/usuarios", item.Active, item.Path)
	}
}

func TestRenderAddsNavigation(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)
	engine.WithNavigator(NewNavigation(catalog.Default(), access.DefaultRules(access.VariantBounce)))

	res := httptest.NewRecorder()
	err = engine.Render(res, "pages/no_autorizado.html", TemplateData{
		Title:       "Sin permiso",
		CurrentPath: "/no-autorizado",
		Principal:   access.Principal{UserID: "9", Role: access.RoleTransportista},
	})
	require.NoError(t, err)
	body := res.Body.String()
	assert.Contains(t, body, `href="/entregas"`)
	assert.False(t, strings.Contains(body, `href="/usuarios"`))
}

func TestFieldValue(t *testing.T) {
	sel := catalog.Field{Kind: catalog.KindSelect, Options: []catalog.Option{{Value: "alta", Label: "Alta"}}}
	ref := catalog.Field{Kind: catalog.KindReference}

	assert.Equal(t, "", FieldValue(sel, nil, nil))
	assert.Equal(t, "Alta", FieldValue(sel, "alta", nil))
	assert.Equal(t, "Urgencias", FieldValue(ref, int64(3), map[string]string{"3": "Urgencias"}))
	assert.Equal(t, "4", FieldValue(ref, int64(4), nil))
	assert.Equal(t, "Sí", FieldValue(catalog.Field{Kind: catalog.KindBool}, true, nil))
	assert.Equal(t, "05/03/2024", FieldValue(catalog.Field{Kind: catalog.KindDate}, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), nil))
	assert.Equal(t, "12.345,5", FieldValue(catalog.Field{Kind: catalog.KindNumber}, 12345.5, nil))

	assert.Equal(t, "2024-03-05", InputValue(time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "", InputValue(nil))
}
