package access_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/residuos-hospitalarios/residuos/internal/access"
)

func TestParseRoleRoundTrip(t *testing.T) {
	for _, role := range access.AllRoles() {
		parsed, err := access.ParseRole(role.String())
		require.NoError(t, err)
		assert.Equal(t, role, parsed)
		assert.True(t, parsed.Valid())
	}
}

func TestParseRoleNormalizes(t *testing.T) {
	role, err := access.ParseRole("  Gestor_Externo ")
	require.NoError(t, err)
	assert.Equal(t, access.RoleGestorExterno, role)
	assert.Equal(t, "Gestor externo", role.Label())
}

func TestParseRoleRejectsUnknown(t *testing.T) {
	for _, label := range []string{"", "root", "admin"} {
		role, err := access.ParseRole(label)
		assert.ErrorIs(t, err, access.ErrUnknownRole, label)
		assert.Equal(t, access.RoleUnknown, role)
	}
	assert.False(t, access.RoleUnknown.Valid())
	assert.False(t, access.Role(200).Valid())
	assert.Equal(t, "", access.Role(200).String())
}

func TestSessionSumType(t *testing.T) {
	_, ok := access.NoSession().UserID()
	assert.False(t, ok)

	assert.False(t, access.ValidSession("  ").Valid())

	id, ok := access.ValidSession("42").UserID()
	assert.True(t, ok)
	assert.Equal(t, "42", id)
}
