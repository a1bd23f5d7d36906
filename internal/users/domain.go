package users

import (
	"time"

	"github.com/residuos-hospitalarios/residuos/internal/access"
)

// User represents a dashboard account.
type User struct {
	ID        int64
	Email     string
	Name      string
	Role      access.Role
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateInput carries the fields of a new account.
type CreateInput struct {
	Email    string `validate:"required,email,max=200"`
	Name     string `validate:"required,max=120"`
	Password string `validate:"required,min=8,max=72"`
	Role     string `validate:"required"`
	IsActive bool
}

// UpdateInput carries editable fields. An empty Password keeps the current one.
type UpdateInput struct {
	Name     string `validate:"required,max=120"`
	Password string `validate:"omitempty,min=8,max=72"`
	Role     string `validate:"required"`
	IsActive bool
}

// RoleCount is the number of accounts holding a role.
type RoleCount struct {
	Role  access.Role
	Count int
}
