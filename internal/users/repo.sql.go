package users

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/residuos-hospitalarios/residuos/internal/access"
	"github.com/residuos-hospitalarios/residuos/internal/platform/db"
	"github.com/residuos-hospitalarios/residuos/internal/shared"
)

// DB is satisfied by *pgxpool.Pool.
type DB interface {
	db.TxBeginner
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// SessionRevoker ends live sessions by id. Implemented by shared.SessionManager.
type SessionRevoker interface {
	RevokeSessions(ctx context.Context, ids ...string) error
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool     DB
	sessions SessionRevoker
}

// NewRepository constructs a repository. When sessions is not nil, the live
// sessions of deactivated or deleted accounts are revoked with their records.
func NewRepository(pool DB, sessions SessionRevoker) *Repository {
	return &Repository{pool: pool, sessions: sessions}
}

const userColumns = `id, email, nombre, rol, activo, creado_en, actualizado_en`

// ListUsers returns all users.
func (r *Repository) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM usuarios ORDER BY nombre, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// GetUser loads one user.
func (r *Repository) GetUser(ctx context.Context, id int64) (User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM usuarios WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, shared.ErrNotFound
	}
	return user, err
}

// CreateUser inserts an account with an already hashed password.
func (r *Repository) CreateUser(ctx context.Context, in CreateInput, role access.Role, passwordHash string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO usuarios (email, nombre, password_hash, rol, activo, creado_en, actualizado_en)
		VALUES (LOWER($1), $2, $3, $4, $5, NOW(), NOW()) RETURNING id`,
		in.Email, in.Name, passwordHash, role.String(), in.IsActive).Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return 0, shared.ErrDuplicate
		}
		return 0, fmt.Errorf("users: insert: %w", err)
	}
	return id, nil
}

// UpdateUser changes name, role and status, and the password when passwordHash
// is not empty. Deactivating an account ends its sessions.
func (r *Repository) UpdateUser(ctx context.Context, id int64, in UpdateInput, role access.Role, passwordHash string) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE usuarios SET nombre = $1, rol = $2, activo = $3, actualizado_en = NOW() WHERE id = $4`,
			in.Name, role.String(), in.IsActive, id)
		if err != nil {
			return fmt.Errorf("users: update: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		if passwordHash != "" {
			if _, err := tx.Exec(ctx, `UPDATE usuarios SET password_hash = $1 WHERE id = $2`, passwordHash, id); err != nil {
				return fmt.Errorf("users: update password: %w", err)
			}
		}
		if !in.IsActive {
			return r.endSessions(ctx, tx, id)
		}
		return nil
	})
}

// DeleteUser removes the account and ends its sessions.
func (r *Repository) DeleteUser(ctx context.Context, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := r.endSessions(ctx, tx, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM usuarios WHERE id = $1`, id)
		if err != nil {
			if db.IsForeignKeyViolation(err) {
				return shared.ErrInUse
			}
			return fmt.Errorf("users: delete: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
}

// endSessions deletes the login records of userID and revokes the matching
// stored sessions. A revoke failure rolls the transaction back.
func (r *Repository) endSessions(ctx context.Context, tx pgx.Tx, userID int64) error {
	rows, err := tx.Query(ctx, `DELETE FROM auth_sessions WHERE user_id = $1 RETURNING id`, userID)
	if err != nil {
		return fmt.Errorf("users: drop sessions: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return fmt.Errorf("users: drop sessions: %w", err)
	}
	if r.sessions == nil || len(ids) == 0 {
		return nil
	}
	if err := r.sessions.RevokeSessions(ctx, ids...); err != nil {
		return fmt.Errorf("users: revoke sessions: %w", err)
	}
	return nil
}

// RoleForUser implements access.RoleLookup. Inactive accounts keep their stored
// role; only a missing row reports access.ErrRoleNotFound.
func (r *Repository) RoleForUser(ctx context.Context, userID string) (access.Role, error) {
	id, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return access.RoleUnknown, access.ErrRoleNotFound
	}
	var label string
	err = r.pool.QueryRow(ctx, `SELECT rol FROM usuarios WHERE id = $1`, id).Scan(&label)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return access.RoleUnknown, access.ErrRoleNotFound
		}
		return access.RoleUnknown, fmt.Errorf("users: role lookup: %w", err)
	}
	return access.ParseRole(label)
}

// CountByRole returns the number of active accounts per role.
func (r *Repository) CountByRole(ctx context.Context) ([]RoleCount, error) {
	rows, err := r.pool.Query(ctx, `SELECT rol, COUNT(*) FROM usuarios WHERE activo GROUP BY rol ORDER BY rol`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RoleCount
	for rows.Next() {
		var (
			label string
			count int
		)
		if err := rows.Scan(&label, &count); err != nil {
			return nil, err
		}
		role, _ := access.ParseRole(label)
		out = append(out, RoleCount{Role: role, Count: count})
	}
	return out, rows.Err()
}

func scanUser(row pgx.Row) (User, error) {
	var (
		user  User
		label string
	)
	if err := row.Scan(&user.ID, &user.Email, &user.Name, &label, &user.IsActive, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return User{}, err
	}
	user.Role, _ = access.ParseRole(label)
	return user, nil
}

var _ access.RoleLookup = (*Repository)(nil)
