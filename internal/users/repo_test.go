package users

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/residuos-hospitalarios/residuos/internal/access"
	"github.com/residuos-hospitalarios/residuos/internal/shared"
)

// fakeDB answers the statements issued by Repository from in-memory state.
type fakeDB struct {
	role      string
	active    bool
	exists    bool
	sessions  []string
	statement []string
	committed bool
}

func (f *fakeDB) BeginTx(context.Context, pgx.TxOptions) (pgx.Tx, error) {
	return &fakeTx{db: f}, nil
}

func (f *fakeDB) Query(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
	f.statement = append(f.statement, sql)
	return &fakeRows{}, nil
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	f.statement = append(f.statement, sql)
	if !f.exists || (strings.Contains(sql, "AND activo") && !f.active) {
		return fakeRow{err: pgx.ErrNoRows}
	}
	return fakeRow{value: f.role}
}

func (f *fakeDB) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.statement = append(f.statement, sql)
	return pgconn.NewCommandTag("EXEC 0"), nil
}

type fakeTx struct {
	pgx.Tx
	db *fakeDB
}

func (t *fakeTx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	t.db.statement = append(t.db.statement, sql)
	if !t.db.exists {
		return pgconn.NewCommandTag("UPDATE 0"), nil
	}
	if strings.HasPrefix(sql, "UPDATE usuarios SET nombre") {
		t.db.active = args[2].(bool)
	}
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (t *fakeTx) Query(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
	t.db.statement = append(t.db.statement, sql)
	ids := t.db.sessions
	t.db.sessions = nil
	return &fakeRows{ids: ids, pos: -1}, nil
}

func (t *fakeTx) Commit(context.Context) error {
	t.db.committed = true
	return nil
}

func (t *fakeTx) Rollback(context.Context) error { return nil }

type fakeRows struct {
	pgx.Rows
	ids []string
	pos int
}

func (r *fakeRows) Next() bool {
	r.pos++
	return r.pos < len(r.ids)
}

func (r *fakeRows) Scan(dest ...any) error {
	*(dest[0].(*string)) = r.ids[r.pos]
	return nil
}

func (r *fakeRows) Err() error { return nil }
func (r *fakeRows) Close()     {}

type fakeRow struct {
	value string
	err   error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*string)) = r.value
	return nil
}

type revokerFunc func(ctx context.Context, ids ...string) error

func (f revokerFunc) RevokeSessions(ctx context.Context, ids ...string) error { return f(ctx, ids...) }

func newSessionStore(t *testing.T) *shared.SessionManager {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return shared.NewSessionManager(client, "residuos_session", time.Hour, false)
}

func loggedIn(t *testing.T, sm *shared.SessionManager, userID string) string {
	t.Helper()
	sess := sm.Fresh()
	sess.SetUser(userID)
	require.NoError(t, sm.Commit(context.Background(), httptest.NewRecorder(), sess))
	return sess.ID
}

func TestRoleForUserKeepsRoleOfInactiveAccount(t *testing.T) {
	fdb := &fakeDB{role: "generador", exists: true, active: false}
	repo := NewRepository(fdb, nil)

	role, err := repo.RoleForUser(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, access.RoleGenerador, role)
	assert.NotContains(t, fdb.statement[0], "activo")

	fdb.exists = false
	_, err = repo.RoleForUser(context.Background(), "42")
	assert.ErrorIs(t, err, access.ErrRoleNotFound)

	_, err = repo.RoleForUser(context.Background(), "abc")
	assert.ErrorIs(t, err, access.ErrRoleNotFound)
}

func TestDeactivatedUserSessionRedirectsToLogin(t *testing.T) {
	sm := newSessionStore(t)
	token := loggedIn(t, sm, "42")
	other := loggedIn(t, sm, "7")

	fdb := &fakeDB{role: "generador", exists: true, active: true, sessions: []string{token}}
	repo := NewRepository(fdb, sm)
	gate, err := access.NewGate(access.GateConfig{
		Rules:    access.DefaultRules(access.VariantBounce),
		Sessions: sm,
		Roles:    repo,
	})
	require.NoError(t, err)

	before := gate.Evaluate(context.Background(), "/usuarios", token)
	assert.Equal(t, access.OutcomeRedirect, before.Outcome)
	assert.Equal(t, access.ReasonAdminOnly, before.Reason)

	svc := NewService(repo, nil, nil, nil)
	require.NoError(t, svc.UpdateUser(context.Background(), 42, UpdateInput{Name: "Ana", Role: "generador", IsActive: false}, "1"))
	assert.True(t, fdb.committed)
	assert.False(t, fdb.active)

	for _, path := range []string{"/usuarios", "/admin", "/permisos", "/reportes", "/dashboard"} {
		decision := gate.Evaluate(context.Background(), path, token)
		assert.Equal(t, access.OutcomeLogin, decision.Outcome, path)
		assert.Equal(t, "/auth/login", decision.Location, path)
	}

	still, err := sm.ResolveSession(context.Background(), other)
	require.NoError(t, err)
	assert.True(t, still.Valid())
}

func TestDeleteUserRevokesSessions(t *testing.T) {
	sm := newSessionStore(t)
	token := loggedIn(t, sm, "42")

	fdb := &fakeDB{role: "supervisor", exists: true, active: true, sessions: []string{token}}
	require.NoError(t, NewRepository(fdb, sm).DeleteUser(context.Background(), 42))

	sess, err := sm.ResolveSession(context.Background(), token)
	require.NoError(t, err)
	assert.False(t, sess.Valid())
	assert.Contains(t, fdb.statement, `DELETE FROM auth_sessions WHERE user_id = $1 RETURNING id`)
}

func TestRevokeFailureRollsBackDeactivation(t *testing.T) {
	fdb := &fakeDB{role: "generador", exists: true, active: true, sessions: []string{"s1", "s2"}}
	var revoked []string
	repo := NewRepository(fdb, revokerFunc(func(_ context.Context, ids ...string) error {
		revoked = ids
		return errors.New("redis down")
	}))

	err := repo.UpdateUser(context.Background(), 42, UpdateInput{Name: "Ana", IsActive: false}, access.RoleGenerador, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "revoke sessions")
	assert.Equal(t, []string{"s1", "s2"}, revoked)
	assert.False(t, fdb.committed)
}

func TestActiveUpdateKeepsSessions(t *testing.T) {
	fdb := &fakeDB{role: "generador", exists: true, active: true, sessions: []string{"s1"}}
	repo := NewRepository(fdb, revokerFunc(func(context.Context, ...string) error {
		t.Fatal("sessions of an active account must not be revoked")
		return nil
	}))

	require.NoError(t, repo.UpdateUser(context.Background(), 42, UpdateInput{Name: "Ana", IsActive: true}, access.RoleSupervisor, ""))
	assert.True(t, fdb.committed)
	assert.Equal(t, []string{"s1"}, fdb.sessions)
}
