package auth

import (
	"errors"
	"time"
)

// ErrResetTokenInvalid is returned when a password reset token is unknown,
// expired or already consumed.
var ErrResetTokenInvalid = errors.New("auth: reset token invalid")

// User represents an account able to sign in.
type User struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// LoginInput is the submitted login form.
type LoginInput struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

// RegisterInput is the self-service sign-up form.
type RegisterInput struct {
	Email           string `validate:"required,email,max=200"`
	Name            string `validate:"required,max=120"`
	Password        string `validate:"required,min=8,max=72"`
	PasswordConfirm string `validate:"required,eqfield=Password"`
}

// ResetInput carries a new password for a reset token.
type ResetInput struct {
	Password        string `validate:"required,min=8,max=72"`
	PasswordConfirm string `validate:"required,eqfield=Password"`
}

// ResetMail is the message queued when a reset is requested.
type ResetMail struct {
	To      string
	Subject string
	Body    string
}
