package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"

	"github.com/residuos-hospitalarios/residuos/internal/access"
	"github.com/residuos-hospitalarios/residuos/internal/shared"
	"github.com/residuos-hospitalarios/residuos/internal/users"
)

// UserCreator creates accounts.
type UserCreator interface {
	CreateUser(ctx context.Context, in users.CreateInput, actorID string) (int64, error)
}

// CreateAdminCommand runs "crear-admin --email --nombre --password" and
// returns the exit code. It is the only way to create the first administrator.
func CreateAdminCommand(ctx context.Context, svc UserCreator, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("crear-admin", flag.ContinueOnError)
	fs.SetOutput(stderr)
	email := fs.String("email", "", "correo del administrador")
	name := fs.String("nombre", "Administrador", "nombre visible")
	password := fs.String("password", "", "contraseña inicial (mínimo 8 caracteres)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	id, err := svc.CreateUser(ctx, users.CreateInput{
		Email:    *email,
		Name:     *name,
		Password: *password,
		Role:     access.RoleAdministrador.String(),
		IsActive: true,
	}, "cli")
	if err != nil {
		var verr *shared.ValidationError
		switch {
		case errors.As(err, &verr):
			fields := make([]string, 0, len(verr.Fields))
			for f := range verr.Fields {
				fields = append(fields, f)
			}
			sort.Strings(fields)
			for _, f := range fields {
				_, _ = fmt.Fprintf(stderr, "crear-admin: %s: %s\n", f, verr.Fields[f])
			}
		case errors.Is(err, shared.ErrDuplicate):
			_, _ = fmt.Fprintf(stderr, "crear-admin: ya existe un usuario con el correo %s\n", *email)
		default:
			_, _ = fmt.Fprintf(stderr, "crear-admin: %v\n", err)
		}
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "administrador %s creado (id %d)\n", *email, id)
	return 0
}
