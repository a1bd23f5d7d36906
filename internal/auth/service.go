package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/residuos-hospitalarios/residuos/internal/access"
	"github.com/residuos-hospitalarios/residuos/internal/shared"
)

const resetKeyPrefix = "residuos:reset:"

// MailQueue hands outgoing mail to the background worker.
type MailQueue interface {
	EnqueueMail(ctx context.Context, mail ResetMail) error
}

// Options tune password reset behaviour.
type Options struct {
	ResetTTL      time.Duration
	PublicBaseURL string
}

// Service wraps authentication business rules.
type Service struct {
	repo     Repository
	redis    *redis.Client
	mail     MailQueue
	opts     Options
	validate *validator.Validate
	logger   *slog.Logger
}

// NewService constructs a new Service. redis and mail may be nil, which
// disables password resets.
func NewService(repo Repository, client *redis.Client, mail MailQueue, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ResetTTL <= 0 {
		opts.ResetTTL = time.Hour
	}
	return &Service{repo: repo, redis: client, mail: mail, opts: opts, validate: validator.New(), logger: logger}
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, in LoginInput) (*User, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, shared.NewValidationError(err)
	}
	user, err := s.repo.FindByEmail(ctx, strings.TrimSpace(in.Email))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// Register creates an active account holding the generador role.
func (s *Service) Register(ctx context.Context, in RegisterInput) (int64, error) {
	in.Email = strings.TrimSpace(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	if err := s.validate.Struct(in); err != nil {
		return 0, shared.NewValidationError(err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("auth: hash password: %w", err)
	}
	return s.repo.CreateUser(ctx, in.Email, in.Name, string(hash), access.RoleGenerador)
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, userID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}

// RequestPasswordReset stores a single-use token and queues the reset mail.
// Unknown or inactive addresses return nil so callers cannot probe accounts.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	if s.redis == nil || s.mail == nil {
		return errors.New("auth: password reset unavailable")
	}
	user, err := s.repo.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil
		}
		return err
	}
	if !user.IsActive {
		return nil
	}
	token := uuid.NewString()
	if err := s.redis.Set(ctx, resetKeyPrefix+token, strconv.FormatInt(user.ID, 10), s.opts.ResetTTL).Err(); err != nil {
		return fmt.Errorf("auth: store reset token: %w", err)
	}
	link := strings.TrimRight(s.opts.PublicBaseURL, "/") + "/auth/reset-password/" + token
	mail := ResetMail{
		To:      user.Email,
		Subject: "Restablecer contraseña",
		Body: fmt.Sprintf("Hola %s,\n\nPara elegir una nueva contraseña abre el siguiente enlace:\n%s\n\nEl enlace vence en %s. Si no solicitaste el cambio ignora este mensaje.\n",
			user.Name, link, s.opts.ResetTTL),
	}
	if err := s.mail.EnqueueMail(ctx, mail); err != nil {
		_ = s.redis.Del(ctx, resetKeyPrefix+token).Err()
		return fmt.Errorf("auth: enqueue reset mail: %w", err)
	}
	s.logger.Info("password reset requested", slog.Int64("user_id", user.ID))
	return nil
}

// ResetTokenValid reports whether token can still be used.
func (s *Service) ResetTokenValid(ctx context.Context, token string) (bool, error) {
	if s.redis == nil || token == "" {
		return false, nil
	}
	n, err := s.redis.Exists(ctx, resetKeyPrefix+token).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ResetPassword consumes token and stores the new password.
func (s *Service) ResetPassword(ctx context.Context, token string, in ResetInput) error {
	if err := s.validate.Struct(in); err != nil {
		return shared.NewValidationError(err)
	}
	if s.redis == nil || token == "" {
		return ErrResetTokenInvalid
	}
	raw, err := s.redis.GetDel(ctx, resetKeyPrefix+token).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrResetTokenInvalid
		}
		return err
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return ErrResetTokenInvalid
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("auth: hash password: %w", err)
	}
	if err := s.repo.UpdatePassword(ctx, userID, string(hash)); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return ErrResetTokenInvalid
		}
		return err
	}
	return nil
}
