package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"datacleaner/internal/models"
	"datacleaner/internal/repository"
)

var ErrInvalidRole = errors.New("invalid role")

type UserDirectory interface {
	List(ctx context.Context) ([]models.User, error)
	UpdateRole(ctx context.Context, id int64, role models.UserRole) (models.User, error)
}

type AdminService struct {
	users UserDirectory
	log   zerolog.Logger
}

func NewAdminService(users UserDirectory, log zerolog.Logger) *AdminService {
	return &AdminService{users: users, log: log}
}

func (s *AdminService) ListUsers(ctx context.Context) ([]models.User, error) {
	return s.users.List(ctx)
}

func (s *AdminService) UpdateRole(ctx context.Context, actor models.User, id int64, rawRole string) (models.User, error) {
	role, err := models.ParseRole(rawRole)
	if err != nil {
		return models.User{}, fmt.Errorf("%w: %q", ErrInvalidRole, rawRole)
	}

	user, err := s.users.UpdateRole(ctx, id, role)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, err
	}

	s.log.Info().
		Int64("user_id", user.ID).
		Str("role", string(role)).
		Int64("changed_by", actor.ID).
		Msg("user role updated")
	return user, nil
}
