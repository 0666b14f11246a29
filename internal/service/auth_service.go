package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"datacleaner/internal/config"
	"datacleaner/internal/models"
	"datacleaner/internal/repository"
	"datacleaner/internal/security"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidInput       = errors.New("invalid input")
)

type AccountStore interface {
	Create(ctx context.Context, user *models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
	HasAdmin(ctx context.Context) (bool, error)
}

type AuthService struct {
	users AccountStore
	cfg   config.SecurityConfig
	log   zerolog.Logger
}

func NewAuthService(users AccountStore, cfg config.SecurityConfig, log zerolog.Logger) *AuthService {
	return &AuthService{
		users: users,
		cfg:   cfg,
		log:   log,
	}
}

type RegisterInput struct {
	Email    string
	Username string
	Name     string
	Password string
}

type AuthResult struct {
	AccessToken string
	ExpiresAt   time.Time
	User        models.User
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput) (AuthResult, error) {
	input.Email = normalizeEmail(input.Email)
	input.Username = strings.TrimSpace(input.Username)
	if _, err := mail.ParseAddress(input.Email); err != nil {
		return AuthResult{}, fmt.Errorf("%w: email", ErrInvalidInput)
	}
	if input.Username == "" || input.Password == "" {
		return AuthResult{}, fmt.Errorf("%w: username and password required", ErrInvalidInput)
	}

	passwordHash, err := security.HashPassword(input.Password)
	if err != nil {
		return AuthResult{}, err
	}

	role, err := s.initialRole(ctx, input.Email)
	if err != nil {
		return AuthResult{}, err
	}

	user := models.User{
		Email:        input.Email,
		Username:     input.Username,
		Name:         strings.TrimSpace(input.Name),
		PasswordHash: passwordHash,
		Role:         role,
	}
	if err := s.users.Create(ctx, &user); err != nil {
		return AuthResult{}, err
	}

	if role == models.UserRoleAdmin {
		s.log.Info().Int64("user_id", user.ID).Str("email", user.Email).Msg("bootstrap admin registered")
	}

	return s.issue(user)
}

// initialRole grants admin only to the configured bootstrap address and only
// while no admin exists. Everyone else starts on the free tier.
func (s *AuthService) initialRole(ctx context.Context, email string) (models.UserRole, error) {
	bootstrap := normalizeEmail(s.cfg.BootstrapAdminEmail)
	if bootstrap == "" || bootstrap != email {
		return models.UserRoleFree, nil
	}
	exists, err := s.users.HasAdmin(ctx)
	if err != nil {
		return "", fmt.Errorf("check admin: %w", err)
	}
	if exists {
		return models.UserRoleFree, nil
	}
	return models.UserRoleAdmin, nil
}

type LoginInput struct {
	Email    string
	Password string
}

func (s *AuthService) Login(ctx context.Context, input LoginInput) (AuthResult, error) {
	user, err := s.users.FindByEmail(ctx, normalizeEmail(input.Email))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, err
	}

	ok, err := security.VerifyPassword(input.Password, user.PasswordHash)
	if err != nil {
		s.log.Warn().Err(err).Int64("user_id", user.ID).Msg("stored password hash unreadable")
		return AuthResult{}, ErrInvalidCredentials
	}
	if !ok {
		return AuthResult{}, ErrInvalidCredentials
	}

	return s.issue(user)
}

func (s *AuthService) issue(user models.User) (AuthResult, error) {
	token, expires, err := security.GenerateAccessToken(s.cfg.JWTAccessSecret, user, s.cfg.JWTAccessTTL)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{
		AccessToken: token,
		ExpiresAt:   expires,
		User:        user,
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
