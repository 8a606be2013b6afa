package platform

import (
	"errors"
	"fmt"
	"strings"
)

// Role is the closed set of account roles the platform issues. The wire
// strings are fixed by the platform API.
type Role string

const (
	// RoleTeacher marks teacher accounts.
	RoleTeacher Role = "Teachers"
	// RoleStudent marks student accounts.
	RoleStudent Role = "Students"
	// RoleAny accepts any authenticated role; used by route guards.
	RoleAny Role = ""
)

// ErrUnknownRole indicates a role string outside the closed set.
var ErrUnknownRole = errors.New("platform.unknown_role")

// ParseRole maps a wire string onto the closed role set.
func ParseRole(raw string) (Role, error) {
	switch strings.TrimSpace(raw) {
	case string(RoleTeacher):
		return RoleTeacher, nil
	case string(RoleStudent):
		return RoleStudent, nil
	default:
		return RoleAny, fmt.Errorf("platform.parse_role.%q: %w", raw, ErrUnknownRole)
	}
}

// DefaultPath returns the role's landing route.
func (role Role) DefaultPath() string {
	if role == RoleTeacher {
		return "/teacher"
	}
	return "/student"
}

// User is the profile projection cached after login; the authoritative
// copy lives on the platform.
type User struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     Role   `json:"role"`
}
