package models

import (
	"errors"
	"fmt"
	"time"
)

type UserRole string

const (
	UserRoleFree  UserRole = "free_user"
	UserRolePro   UserRole = "pro_user"
	UserRoleAdmin UserRole = "admin"
)

var ErrUnknownRole = errors.New("unknown role")

// ParseRole maps a wire value onto the closed role set.
func ParseRole(raw string) (UserRole, error) {
	switch UserRole(raw) {
	case UserRoleFree, UserRolePro, UserRoleAdmin:
		return UserRole(raw), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, raw)
	}
}

type User struct {
	ID           int64
	Email        string
	Username     string
	Name         string
	PasswordHash []byte
	Role         UserRole
	UploadCount  int
	CreatedAt    time.Time
}

func (u User) IsAdmin() bool {
	return u.Role == UserRoleAdmin
}
