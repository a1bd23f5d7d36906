package access

import (
	"context"
	"net/http"
)

// Principal is the identity resolved by the gate for an allowed request.
type Principal struct {
	UserID string
	Role   Role
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in ctx.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext returns the principal stored by the gate middleware.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok && p.UserID != ""
}

// Middleware enforces the gate on every request. The session token is read
// from the cookie named cookieName.
func (g *Gate) Middleware(cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ""
			if cookie, err := r.Cookie(cookieName); err == nil {
				token = cookie.Value
			}
			decision := g.Evaluate(r.Context(), r.URL.Path, token)
			if !decision.Allowed() {
				http.Redirect(w, r, decision.Location, http.StatusSeeOther)
				return
			}
			if decision.UserID != "" {
				ctx := ContextWithPrincipal(r.Context(), Principal{UserID: decision.UserID, Role: decision.Role})
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		})
	}
}
