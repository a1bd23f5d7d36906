package users

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/residuos-hospitalarios/residuos/internal/access"
	"github.com/residuos-hospitalarios/residuos/internal/shared"
)

// ErrSelfDelete is returned when an administrator tries to delete their own account.
var ErrSelfDelete = errors.New("users: cannot delete own account")

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	CreateUser(ctx context.Context, in CreateInput, role access.Role, passwordHash string) (int64, error)
	UpdateUser(ctx context.Context, id int64, in UpdateInput, role access.Role, passwordHash string) error
	DeleteUser(ctx context.Context, id int64) error
	CountByRole(ctx context.Context) ([]RoleCount, error)
}

// RoleCache drops cached roles after a change.
type RoleCache interface {
	Forget(ctx context.Context, userID string) error
}

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles user business logic.
type Service struct {
	repo     RepositoryPort
	cache    RoleCache
	audit    AuditRecorder
	validate *validator.Validate
	logger   *slog.Logger
}

// NewService builds Service instance. cache and audit may be nil.
func NewService(repo RepositoryPort, cache RoleCache, audit AuditRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, audit: audit, validate: validator.New(), logger: logger}
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx)
}

// GetUser returns one user.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// CountByRole returns active accounts per role.
func (s *Service) CountByRole(ctx context.Context) ([]RoleCount, error) {
	return s.repo.CountByRole(ctx)
}

// CreateUser validates and stores a new account.
func (s *Service) CreateUser(ctx context.Context, in CreateInput, actorID string) (int64, error) {
	in.Email = strings.TrimSpace(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	if err := s.validate.Struct(in); err != nil {
		return 0, shared.NewValidationError(err)
	}
	role, err := access.ParseRole(in.Role)
	if err != nil {
		return 0, &shared.ValidationError{Fields: map[string]string{"role": "Selecciona un rol válido."}}
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return 0, err
	}
	id, err := s.repo.CreateUser(ctx, in, role, hash)
	if err != nil {
		return 0, err
	}
	s.record(ctx, actorID, shared.AuditCreate, id, map[string]any{"email": in.Email, "rol": role.String()})
	return id, nil
}

// UpdateUser validates and applies changes. The cached role is dropped so the
// access gate sees the new role on the next request.
func (s *Service) UpdateUser(ctx context.Context, id int64, in UpdateInput, actorID string) error {
	in.Name = strings.TrimSpace(in.Name)
	if err := s.validate.Struct(in); err != nil {
		return shared.NewValidationError(err)
	}
	role, err := access.ParseRole(in.Role)
	if err != nil {
		return &shared.ValidationError{Fields: map[string]string{"role": "Selecciona un rol válido."}}
	}
	var hash string
	if in.Password != "" {
		if hash, err = HashPassword(in.Password); err != nil {
			return err
		}
	}
	if err := s.repo.UpdateUser(ctx, id, in, role, hash); err != nil {
		return err
	}
	s.forget(ctx, id)
	s.record(ctx, actorID, shared.AuditUpdate, id, map[string]any{"rol": role.String(), "activo": in.IsActive})
	return nil
}

// DeleteUser removes an account other than the actor's own.
func (s *Service) DeleteUser(ctx context.Context, id int64, actorID string) error {
	if strconv.FormatInt(id, 10) == actorID {
		return ErrSelfDelete
	}
	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.forget(ctx, id)
	s.record(ctx, actorID, shared.AuditDelete, id, nil)
	return nil
}

// HashPassword hashes a plain text password with bcrypt.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (s *Service) forget(ctx context.Context, id int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Forget(ctx, strconv.FormatInt(id, 10)); err != nil {
		s.logger.Warn("forget cached role", slog.Int64("user_id", id), slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, actorID, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "usuarios",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("audit record", slog.String("entity", "usuarios"), slog.Int64("id", id), slog.Any("error", err))
	}
}
