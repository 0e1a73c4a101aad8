package domain

import "fmt"

// Role is the closed set of user roles. Privilege checks must switch over
// this type exhaustively rather than comparing raw strings.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleStandard Role = "standard"
)

// ParseRole validates a wire-level role value.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleStandard:
		return RoleStandard, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Elevated reports whether the role may apply changes directly, review
// pending changes, and run destructive database operations.
func (r Role) Elevated() bool {
	switch r {
	case RoleAdmin:
		return true
	case RoleStandard:
		return false
	default:
		return false
	}
}

func (r Role) String() string { return string(r) }
