package access

import (
	"errors"
	"fmt"
	"strings"
)

// Role is the closed set of roles a dashboard user can hold.
type Role uint8

const (
	// RoleUnknown is the zero value and never granted to a user.
	RoleUnknown Role = iota
	RoleGenerador
	RoleSupervisor
	RoleTransportista
	RoleGestorExterno
	RoleAdministrador
)

// ErrUnknownRole is returned when a stored role label is outside the known set.
var ErrUnknownRole = errors.New("access: unknown role")

var roleNames = [...]string{
	RoleUnknown:       "",
	RoleGenerador:     "generador",
	RoleSupervisor:    "supervisor",
	RoleTransportista: "transportista",
	RoleGestorExterno: "gestor_externo",
	RoleAdministrador: "administrador",
}

var roleLabels = [...]string{
	RoleUnknown:       "Desconocido",
	RoleGenerador:     "Generador",
	RoleSupervisor:    "Supervisor",
	RoleTransportista: "Transportista",
	RoleGestorExterno: "Gestor externo",
	RoleAdministrador: "Administrador",
}

// AllRoles lists every assignable role in display order.
func AllRoles() []Role {
	return []Role{RoleGenerador, RoleSupervisor, RoleTransportista, RoleGestorExterno, RoleAdministrador}
}

// ParseRole converts a stored label into a Role.
func ParseRole(label string) (Role, error) {
	normalized := strings.ToLower(strings.TrimSpace(label))
	if normalized == "" {
		return RoleUnknown, ErrUnknownRole
	}
	for i, name := range roleNames {
		if name == normalized {
			return Role(i), nil
		}
	}
	return RoleUnknown, fmt.Errorf("%w: %q", ErrUnknownRole, label)
}

// String returns the storage label of the role.
func (r Role) String() string {
	if int(r) >= len(roleNames) {
		return ""
	}
	return roleNames[r]
}

// Label returns the human readable name of the role.
func (r Role) Label() string {
	if int(r) >= len(roleLabels) {
		return roleLabels[RoleUnknown]
	}
	return roleLabels[r]
}

// Valid reports whether r is one of the assignable roles.
func (r Role) Valid() bool {
	return r > RoleUnknown && int(r) < len(roleNames)
}
