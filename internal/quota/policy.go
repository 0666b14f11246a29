// Package quota decides whether a user may upload and serializes the
// check-and-increment sequence per user.
package quota

import "datacleaner/internal/models"

const DefaultFreeLimit = 3

// Policy is a pure decision over a role and its lifetime upload count.
type Policy struct {
	FreeLimit int
}

func NewPolicy(freeLimit int) Policy {
	if freeLimit <= 0 {
		freeLimit = DefaultFreeLimit
	}
	return Policy{FreeLimit: freeLimit}
}

func (p Policy) Allow(role models.UserRole, count int) bool {
	switch role {
	case models.UserRoleFree:
		return count < p.FreeLimit
	case models.UserRolePro, models.UserRoleAdmin:
		return true
	default:
		return true
	}
}

// Charges reports whether a successful upload increments the counter.
func (p Policy) Charges(role models.UserRole) bool {
	return role == models.UserRoleFree
}
