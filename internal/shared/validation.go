package shared

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/residuos-hospitalarios/residuos/internal/platform/httpx"
)

// ValidationError maps form field names to user facing messages.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError converts validator errors into a ValidationError keyed by
// the lower-cased struct field name. Other errors are returned unchanged.
func NewValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		name := strings.ToLower(fe.Field())
		if _, seen := fields[name]; !seen {
			fields[name] = ValidationMessage(fe.Tag())
		}
	}
	return &ValidationError{Fields: fields}
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Sprintf("validation failed: %s", strings.Join(names, ", "))
}

func (e *ValidationError) Unwrap() error {
	return httpx.ErrValidation
}

// ValidationMessage returns the Spanish message shown for a failed validator tag.
func ValidationMessage(tag string) string {
	switch tag {
	case "required":
		return "Este campo es obligatorio."
	case "max":
		return "El texto es demasiado largo."
	case "min":
		return "Debe tener al menos 8 caracteres."
	case "numeric", "number":
		return "Debe ser un número."
	case "datetime":
		return "La fecha no es válida."
	case "email":
		return "El correo no es válido."
	case "oneof":
		return "Selecciona una opción de la lista."
	case "eqfield":
		return "Las contraseñas no coinciden."
	}
	return "Valor no válido."
}
