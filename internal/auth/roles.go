package auth

import "strings"

// Role is an operator role carried in a JWT.
type Role string

const (
	RoleOperator     Role = "operator"
	RoleManufacturer Role = "manufacturer"
	RoleAdmin        Role = "admin"
)

// NormalizeRole validates and normalizes a role string.
func NormalizeRole(value string) (Role, bool) {
	switch r := Role(strings.ToLower(strings.TrimSpace(value))); r {
	case RoleOperator, RoleManufacturer, RoleAdmin:
		return r, true
	default:
		return "", false
	}
}

// Allowed reports whether role is one of allowed.
func Allowed(role Role, allowed ...Role) bool {
	for _, a := range allowed {
		if role == a {
			return true
		}
	}
	return false
}
