package access

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Variant selects between the two supported gate behaviours.
type Variant string

const (
	// VariantBounce sends authenticated users away from auth-entry pages and
	// redirects anonymous users to a bare login page.
	VariantBounce Variant = "bounce"
	// VariantReturnTo keeps auth pages reachable and appends the requested path
	// to the login redirect.
	VariantReturnTo Variant = "return-to"
)

// ParseVariant validates a configured variant name.
func ParseVariant(name string) (Variant, error) {
	switch v := Variant(strings.ToLower(strings.TrimSpace(name))); v {
	case VariantBounce, VariantReturnTo:
		return v, nil
	case "":
		return VariantBounce, nil
	default:
		return "", fmt.Errorf("access: unknown variant %q", name)
	}
}

// Requirement is the condition a path imposes on the requester.
type Requirement uint8

const (
	RequirePublic Requirement = iota + 1
	RequireAuthenticated
	RequireAdmin
	RequireElevated
)

// String returns a short label used by the permissions page.
func (r Requirement) String() string {
	switch r {
	case RequirePublic:
		return "público"
	case RequireAuthenticated:
		return "autenticado"
	case RequireAdmin:
		return "administrador"
	case RequireElevated:
		return "rol elevado"
	default:
		return ""
	}
}

// Rules is the route rule table consulted by the Gate.
type Rules struct {
	Variant           Variant  `validate:"oneof=bounce return-to"`
	PublicPaths       []string `validate:"dive,startswith=/"`
	AuthEntryPaths    []string `validate:"dive,startswith=/"`
	AdminOnlyPaths    []string `validate:"dive,startswith=/"`
	ElevatedRolePaths []string `validate:"dive,startswith=/"`
	ElevatedRoles     []Role
	LoginPath         string `validate:"required,startswith=/"`
	DashboardPath     string `validate:"required,startswith=/"`
	DeniedPath        string `validate:"required,startswith=/"`
	ReturnParam       string `validate:"required,alphanum"`
}

// DefaultRules returns the dashboard rule table for the given variant.
func DefaultRules(variant Variant) Rules {
	authEntry := []string{"/auth/login", "/auth/register", "/auth/reset-password"}
	public := append(slices.Clone(authEntry), "/static", "/healthz", "/no-autorizado")
	if variant == VariantReturnTo {
		public = append(public, "/", "/api")
	}
	return Rules{
		Variant:           variant,
		PublicPaths:       public,
		AuthEntryPaths:    authEntry,
		AdminOnlyPaths:    []string{"/admin", "/usuarios", "/permisos"},
		ElevatedRolePaths: []string{"/reportes", "/cumplimiento"},
		ElevatedRoles:     []Role{RoleSupervisor, RoleAdministrador},
		LoginPath:         "/auth/login",
		DashboardPath:     "/dashboard",
		DeniedPath:        "/dashboard",
		ReturnParam:       "redirect",
	}
}

// Validate checks the table for malformed entries and redirect loops.
func (r Rules) Validate() error {
	if err := validator.New().Struct(r); err != nil {
		return fmt.Errorf("access: invalid rules: %w", err)
	}
	for _, role := range r.ElevatedRoles {
		if !role.Valid() {
			return fmt.Errorf("access: invalid elevated role %d", role)
		}
	}
	if !r.IsPublic(r.LoginPath) {
		return errors.New("access: login path must be public")
	}
	for _, target := range []string{r.DashboardPath, r.DeniedPath} {
		if _, ok := matchPrefix(target, r.AdminOnlyPaths); ok {
			return fmt.Errorf("access: redirect target %s is admin-only", target)
		}
		if _, ok := matchPrefix(target, r.ElevatedRolePaths); ok {
			return fmt.Errorf("access: redirect target %s requires an elevated role", target)
		}
	}
	return nil
}

// Clone returns a deep copy so callers cannot mutate a gate's table.
func (r Rules) Clone() Rules {
	r.PublicPaths = slices.Clone(r.PublicPaths)
	r.AuthEntryPaths = slices.Clone(r.AuthEntryPaths)
	r.AdminOnlyPaths = slices.Clone(r.AdminOnlyPaths)
	r.ElevatedRolePaths = slices.Clone(r.ElevatedRolePaths)
	r.ElevatedRoles = slices.Clone(r.ElevatedRoles)
	return r
}

// IsPublic reports whether path needs no session.
func (r Rules) IsPublic(path string) bool {
	_, ok := matchPrefix(path, r.PublicPaths)
	return ok
}

// IsAuthEntry reports whether path is a login/register/reset page.
func (r Rules) IsAuthEntry(path string) bool {
	_, ok := matchPrefix(path, r.AuthEntryPaths)
	return ok
}

// Requirement classifies path in precedence order.
func (r Rules) Requirement(path string) Requirement {
	switch {
	case r.IsPublic(path):
		return RequirePublic
	case hasAnyPrefix(path, r.AdminOnlyPaths):
		return RequireAdmin
	case hasAnyPrefix(path, r.ElevatedRolePaths):
		return RequireElevated
	default:
		return RequireAuthenticated
	}
}

// Permits reports whether an authenticated user holding role may open path.
func (r Rules) Permits(role Role, path string) bool {
	switch r.Requirement(path) {
	case RequireAdmin:
		return role == RoleAdministrador
	case RequireElevated:
		return slices.Contains(r.ElevatedRoles, role)
	default:
		return true
	}
}

func hasAnyPrefix(path string, prefixes []string) bool {
	_, ok := matchPrefix(path, prefixes)
	return ok
}

// matchPrefix returns the first prefix covering path. Prefixes match whole
// path segments, so "/admin" covers "/admin/x" but not "/administracion", and
// "/" only covers the root itself.
func matchPrefix(path string, prefixes []string) (string, bool) {
	for _, prefix := range prefixes {
		if segmentPrefix(path, prefix) {
			return prefix, true
		}
	}
	return "", false
}

func segmentPrefix(path, prefix string) bool {
	if prefix == "/" {
		return path == "/"
	}
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return false
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
