package access

import (
	"context"
	"errors"
	"strings"
)

// Session is either absent or bound to a user identifier.
type Session struct {
	userID string
}

// NoSession returns the absent session.
func NoSession() Session {
	return Session{}
}

// ValidSession returns a session for userID. An empty id yields NoSession.
func ValidSession(userID string) Session {
	return Session{userID: strings.TrimSpace(userID)}
}

// UserID returns the bound user identifier and whether the session is valid.
func (s Session) UserID() (string, bool) {
	return s.userID, s.userID != ""
}

// Valid reports whether the session carries a user.
func (s Session) Valid() bool {
	return s.userID != ""
}

// ErrRoleNotFound indicates the user directory holds no role for the user.
var ErrRoleNotFound = errors.New("access: role not found")

// SessionResolver resolves a session token. An unknown token is NoSession with
// a nil error; transport failures are returned as errors.
type SessionResolver interface {
	ResolveSession(ctx context.Context, token string) (Session, error)
}

// RoleLookup resolves the role held by a user.
type RoleLookup interface {
	RoleForUser(ctx context.Context, userID string) (Role, error)
}

// SessionResolverFunc adapts a function to SessionResolver.
type SessionResolverFunc func(ctx context.Context, token string) (Session, error)

// ResolveSession implements SessionResolver.
func (f SessionResolverFunc) ResolveSession(ctx context.Context, token string) (Session, error) {
	return f(ctx, token)
}

// RoleLookupFunc adapts a function to RoleLookup.
type RoleLookupFunc func(ctx context.Context, userID string) (Role, error)

// RoleForUser implements RoleLookup.
func (f RoleLookupFunc) RoleForUser(ctx context.Context, userID string) (Role, error) {
	return f(ctx, userID)
}
