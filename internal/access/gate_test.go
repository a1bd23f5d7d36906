package access_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/residuos-hospitalarios/residuos/internal/access"
)

type stubSessions struct {
	sessions map[string]string
	err      error
	calls    int
}

func (s *stubSessions) ResolveSession(ctx context.Context, token string) (access.Session, error) {
	s.calls++
	if s.err != nil {
		return access.NoSession(), s.err
	}
	return access.ValidSession(s.sessions[token]), nil
}

type stubRoles struct {
	roles map[string]access.Role
	err   error
	calls int
}

func (s *stubRoles) RoleForUser(ctx context.Context, userID string) (access.Role, error) {
	s.calls++
	if s.err != nil {
		return access.RoleUnknown, s.err
	}
	role, ok := s.roles[userID]
	if !ok {
		return access.RoleUnknown, access.ErrRoleNotFound
	}
	return role, nil
}

type countingObserver struct {
	seen map[string]int
}

func (o *countingObserver) ObserveAccessDecision(outcome, reason string) {
	if o.seen == nil {
		o.seen = make(map[string]int)
	}
	o.seen[outcome+"/"+reason]++
}

func newGate(t *testing.T, variant access.Variant, sessions *stubSessions, roles *stubRoles) *access.Gate {
	t.Helper()
	gate, err := access.NewGate(access.GateConfig{
		Rules:    access.DefaultRules(variant),
		Sessions: sessions,
		Roles:    roles,
	})
	require.NoError(t, err)
	return gate
}

func fixtures() (*stubSessions, *stubRoles) {
	return &stubSessions{sessions: map[string]string{
			"tok-admin":  "1",
			"tok-gen":    "42",
			"tok-sup":    "7",
			"tok-trans":  "9",
			"tok-orphan": "99",
		}}, &stubRoles{roles: map[string]access.Role{
			"1":  access.RoleAdministrador,
			"42": access.RoleGenerador,
			"7":  access.RoleSupervisor,
			"9":  access.RoleTransportista,
		}}
}

func TestPublicPathsAllowWithoutSession(t *testing.T) {
	for _, variant := range []access.Variant{access.VariantBounce, access.VariantReturnTo} {
		sessions, roles := fixtures()
		gate := newGate(t, variant, sessions, roles)
		for _, path := range access.DefaultRules(variant).PublicPaths {
			decision := gate.Evaluate(context.Background(), path, "")
			assert.Equal(t, access.OutcomeAllow, decision.Outcome, "variant %s path %s", variant, path)
			assert.Equal(t, access.ReasonPublic, decision.Reason)
		}
		assert.Zero(t, sessions.calls, "public paths without a cookie must not hit the session store")
	}
}

func TestNonPublicPathsRedirectToLoginWithoutSession(t *testing.T) {
	paths := []string{"/dashboard", "/capacitaciones", "/admin/x", "/reportes", "/usuarios/3/editar", "/auth"}

	sessions, roles := fixtures()
	bounce := newGate(t, access.VariantBounce, sessions, roles)
	for _, path := range paths {
		decision := bounce.Evaluate(context.Background(), path, "")
		assert.Equal(t, access.OutcomeLogin, decision.Outcome, path)
		assert.Equal(t, "/auth/login", decision.Location, path)
	}

	returnTo := newGate(t, access.VariantReturnTo, sessions, roles)
	decision := returnTo.Evaluate(context.Background(), "/reportes", "")
	assert.Equal(t, access.OutcomeLogin, decision.Outcome)
	assert.Equal(t, "/auth/login?redirect=%2Freportes", decision.Location)
	assert.Equal(t, access.ReasonNoSession, decision.Reason)
	assert.Zero(t, roles.calls)
}

func TestUnknownTokenIsTreatedAsNoSession(t *testing.T) {
	sessions, roles := fixtures()
	gate := newGate(t, access.VariantBounce, sessions, roles)

	decision := gate.Evaluate(context.Background(), "/entregas", "tok-expired")
	assert.Equal(t, access.OutcomeLogin, decision.Outcome)
	assert.Equal(t, 1, sessions.calls)
}

func TestSessionLookupFailureRedirectsToLogin(t *testing.T) {
	sessions, roles := fixtures()
	sessions.err = errors.New("redis: connection refused")
	gate := newGate(t, access.VariantBounce, sessions, roles)

	decision := gate.Evaluate(context.Background(), "/pesajes", "tok-admin")
	assert.Equal(t, access.OutcomeLogin, decision.Outcome)
	assert.Equal(t, access.ReasonNoSession, decision.Reason)

	// Public pages stay reachable during an outage.
	decision = gate.Evaluate(context.Background(), "/auth/login", "tok-admin")
	assert.Equal(t, access.OutcomeAllow, decision.Outcome)
}

func TestAdminOnlyPaths(t *testing.T) {
	adminPaths := []string{"/admin", "/admin/x", "/usuarios", "/usuarios/nuevo", "/permisos"}

	sessions, roles := fixtures()
	gate := newGate(t, access.VariantBounce, sessions, roles)
	for _, path := range adminPaths {
		decision := gate.Evaluate(context.Background(), path, "tok-admin")
		assert.True(t, decision.Allowed(), path)
		assert.Equal(t, access.RoleAdministrador, decision.Role)

		for _, token := range []string{"tok-gen", "tok-sup", "tok-trans"} {
			decision = gate.Evaluate(context.Background(), path, token)
			assert.Equal(t, access.OutcomeRedirect, decision.Outcome, "%s %s", token, path)
			assert.Equal(t, "/dashboard", decision.Location)
			assert.Equal(t, access.ReasonAdminOnly, decision.Reason)
		}
	}
}

func TestElevatedPaths(t *testing.T) {
	sessions, roles := fixtures()
	gate := newGate(t, access.VariantBounce, sessions, roles)

	for _, path := range []string{"/reportes", "/reportes/5/pdf", "/cumplimiento"} {
		assert.True(t, gate.Evaluate(context.Background(), path, "tok-sup").Allowed(), path)
		assert.True(t, gate.Evaluate(context.Background(), path, "tok-admin").Allowed(), path)

		decision := gate.Evaluate(context.Background(), path, "tok-trans")
		assert.Equal(t, access.OutcomeRedirect, decision.Outcome, path)
		assert.Equal(t, "/dashboard", decision.Location)
		assert.Equal(t, access.ReasonElevatedOnly, decision.Reason)
	}
}

func TestScenarioGeneradorOnAdminPath(t *testing.T) {
	gate := newGate(t, access.VariantBounce,
		&stubSessions{sessions: map[string]string{"s": "42"}},
		&stubRoles{roles: map[string]access.Role{"42": access.RoleGenerador}},
	)
	decision := gate.Evaluate(context.Background(), "/admin/x", "s")
	assert.Equal(t, access.Decision{
		Outcome:  access.OutcomeRedirect,
		Location: "/dashboard",
		Reason:   access.ReasonAdminOnly,
		UserID:   "42",
		Role:     access.RoleGenerador,
	}, decision)
}

func TestAuthEntryBounceDependsOnVariant(t *testing.T) {
	sessions := &stubSessions{sessions: map[string]string{"s": "7"}}
	roles := &stubRoles{roles: map[string]access.Role{"7": access.RoleGenerador}}

	bounce := newGate(t, access.VariantBounce, sessions, roles)
	for _, path := range []string{"/auth/login", "/auth/register", "/auth/reset-password", "/auth/reset-password/abc"} {
		decision := bounce.Evaluate(context.Background(), path, "s")
		assert.Equal(t, access.OutcomeRedirect, decision.Outcome, path)
		assert.Equal(t, "/dashboard", decision.Location)
		assert.Equal(t, access.ReasonAuthEntry, decision.Reason)
	}
	// Non auth-entry public paths never bounce.
	assert.True(t, bounce.Evaluate(context.Background(), "/static/css/app.css", "s").Allowed())

	returnTo := newGate(t, access.VariantReturnTo, sessions, roles)
	for _, path := range []string{"/auth/login", "/", "/api/sesion"} {
		assert.True(t, returnTo.Evaluate(context.Background(), path, "s").Allowed(), path)
	}
	assert.Zero(t, roles.calls, "public paths never need a role")
}

func TestRoleLookupFailureFailsOpen(t *testing.T) {
	sessions, roles := fixtures()
	roles.err = errors.New("postgres: timeout")
	gate := newGate(t, access.VariantBounce, sessions, roles)

	for _, path := range []string{"/admin", "/reportes", "/dashboard"} {
		decision := gate.Evaluate(context.Background(), path, "tok-gen")
		assert.Equal(t, access.OutcomeAllow, decision.Outcome, path)
		assert.Equal(t, access.ReasonRoleLookupFailed, decision.Reason)
	}

	sessions, roles = fixtures()
	gate = newGate(t, access.VariantBounce, sessions, roles)
	decision := gate.Evaluate(context.Background(), "/usuarios", "tok-orphan")
	assert.True(t, decision.Allowed(), "missing role record fails open")
}

func TestUnknownRoleValueFailsOpen(t *testing.T) {
	gate := newGate(t, access.VariantBounce,
		&stubSessions{sessions: map[string]string{"s": "5"}},
		&stubRoles{roles: map[string]access.Role{"5": access.RoleUnknown}},
	)
	decision := gate.Evaluate(context.Background(), "/admin", "s")
	assert.Equal(t, access.ReasonRoleLookupFailed, decision.Reason)
	assert.True(t, decision.Allowed())
}

func TestEvaluateIsIdempotent(t *testing.T) {
	sessions, roles := fixtures()
	gate := newGate(t, access.VariantReturnTo, sessions, roles)
	cases := []struct{ path, token string }{
		{"/admin/x", "tok-gen"},
		{"/reportes", ""},
		{"/cumplimiento", "tok-sup"},
		{"/auth/login", "tok-admin"},
	}
	for _, tc := range cases {
		first := gate.Evaluate(context.Background(), tc.path, tc.token)
		second := gate.Evaluate(context.Background(), tc.path, tc.token)
		assert.Equal(t, first, second, tc.path)
	}
}

func TestDeniedTargetIsConfigurable(t *testing.T) {
	rules := access.DefaultRules(access.VariantBounce)
	rules.DeniedPath = "/no-autorizado"
	sessions, roles := fixtures()
	gate, err := access.NewGate(access.GateConfig{Rules: rules, Sessions: sessions, Roles: roles})
	require.NoError(t, err)

	decision := gate.Evaluate(context.Background(), "/permisos", "tok-sup")
	assert.Equal(t, "/no-autorizado", decision.Location)

	// The auth-entry bounce always targets the dashboard.
	decision = gate.Evaluate(context.Background(), "/auth/login", "tok-sup")
	assert.Equal(t, "/dashboard", decision.Location)
}

func TestObserverCountsDecisions(t *testing.T) {
	sessions, roles := fixtures()
	observer := &countingObserver{}
	gate, err := access.NewGate(access.GateConfig{
		Rules:    access.DefaultRules(access.VariantBounce),
		Sessions: sessions,
		Roles:    roles,
		Observer: observer,
	})
	require.NoError(t, err)

	gate.Evaluate(context.Background(), "/dashboard", "")
	gate.Evaluate(context.Background(), "/dashboard", "tok-gen")
	gate.Evaluate(context.Background(), "/usuarios", "tok-gen")

	assert.Equal(t, 1, observer.seen["login/no_session"])
	assert.Equal(t, 1, observer.seen["allow/permitted"])
	assert.Equal(t, 1, observer.seen["redirect/admin_only"])
}

func TestNewGateRejectsInvalidConfig(t *testing.T) {
	sessions, roles := fixtures()

	_, err := access.NewGate(access.GateConfig{Rules: access.DefaultRules(access.VariantBounce), Roles: roles})
	assert.Error(t, err)

	_, err = access.NewGate(access.GateConfig{Rules: access.DefaultRules(access.VariantBounce), Sessions: sessions})
	assert.Error(t, err)

	rules := access.DefaultRules(access.VariantBounce)
	rules.DeniedPath = "/usuarios"
	_, err = access.NewGate(access.GateConfig{Rules: rules, Sessions: sessions, Roles: roles})
	assert.Error(t, err, "denied target inside an admin prefix would loop")
}

func TestGateCopiesRules(t *testing.T) {
	rules := access.DefaultRules(access.VariantBounce)
	sessions, roles := fixtures()
	gate, err := access.NewGate(access.GateConfig{Rules: rules, Sessions: sessions, Roles: roles})
	require.NoError(t, err)

	rules.AdminOnlyPaths[0] = "/capacitaciones"
	assert.True(t, gate.Evaluate(context.Background(), "/capacitaciones", "tok-gen").Allowed())
	assert.False(t, gate.Evaluate(context.Background(), "/admin", "tok-gen").Allowed())
}
