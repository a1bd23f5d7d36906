package catalog

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogIsConsistent(t *testing.T) {
	c := Default()
	entities := c.All()
	require.Len(t, entities, 10)

	for _, slug := range []string{
		"capacitaciones", "participantes", "entregas", "gestores", "pesajes",
		"normativas", "reportes", "departamentos", "etiquetas", "incidentes",
	} {
		e, err := c.Lookup(slug)
		require.NoError(t, err, slug)
		assert.Equal(t, "/"+slug, e.Path())
		assert.NotEmpty(t, e.ListFields(), slug)
	}
}

func TestLookupUnknown(t *testing.T) {
	_, err := Default().Lookup("facturas")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownEntity))
}

func TestNewRejectsBrokenReferences(t *testing.T) {
	_, err := New(Entity{
		Slug: "a", Table: "a", Display: "nombre",
		Fields: []Field{
			{Name: "nombre", Kind: KindText},
			{Name: "b_id", Kind: KindReference, Ref: "b"},
		},
	})
	require.Error(t, err)

	_, err = New(
		Entity{Slug: "a", Table: "a", Display: "nombre", Fields: []Field{{Name: "nombre", Kind: KindText}}},
		Entity{Slug: "a", Table: "a2", Display: "nombre", Fields: []Field{{Name: "nombre", Kind: KindText}}},
	)
	require.Error(t, err)

	_, err = New(Entity{Slug: "a", Table: "a", Display: "falta", Fields: []Field{{Name: "nombre", Kind: KindText}}})
	require.Error(t, err)
}

func TestValidationRule(t *testing.T) {
	cases := []struct {
		field Field
		want  string
	}{
		{Field{Kind: KindText, Required: true}, "required,max=200"},
		{Field{Kind: KindText, Max: 20}, "omitempty,max=20"},
		{Field{Kind: KindNumber, Required: true}, "required,numeric"},
		{Field{Kind: KindReference}, "omitempty,number"},
		{Field{Kind: KindDate}, "omitempty,datetime=2006-01-02"},
		{Field{Kind: KindEmail}, "omitempty,email"},
		{Field{Kind: KindSelect, Options: []Option{{Value: "a"}, {Value: "b"}}}, "omitempty,oneof=a b"},
		{Field{Kind: KindText, Rule: "datetime=2006-01", Required: true}, "required,datetime=2006-01"},
		{Field{Kind: KindBool, Required: true}, ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.field.ValidationRule())
	}
}

func TestEntityHelpers(t *testing.T) {
	e, err := Default().Lookup("entregas")
	require.NoError(t, err)

	assert.True(t, e.IsSortable("fecha"))
	assert.True(t, e.IsSortable("creado_en"))
	assert.False(t, e.IsSortable("fecha; drop table entregas"))
	assert.Equal(t, []string{"codigo"}, e.SearchColumns())

	refs := e.ReferenceFields()
	require.Len(t, refs, 2)
	assert.Equal(t, "departamentos", refs[0].Ref)

	f, ok := e.Field("tipo_residuo")
	require.True(t, ok)
	assert.Equal(t, "Cortopunzante", f.OptionLabel("cortopunzante"))
	assert.Equal(t, "otro", f.OptionLabel("otro"))
}
