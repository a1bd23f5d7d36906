package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate indicates a unique constraint was violated.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrInUse indicates a record is still referenced by other rows.
	ErrInUse = errors.New("record in use")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// UserSafeMessage returns a message that can be shown on a page without
// leaking driver details.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "El registro no existe."
	case errors.Is(err, ErrDuplicate):
		return "Ya existe un registro con esos datos."
	case errors.Is(err, ErrInUse):
		return "El registro está siendo usado por otros datos y no se puede eliminar."
	case errors.Is(err, ErrInvalidCredentials):
		return "Correo o contraseña incorrectos."
	default:
		return "Ocurrió un error inesperado. Inténtalo de nuevo."
	}
}
