package auth

import "fmt"

type Permission string

const (
	PermOperator   Permission = "operator"
	PermTechnician Permission = "technician"
	PermAdmin      Permission = "admin"
)

// ParsePermission accepts the role names carried in tokens.
func ParsePermission(role string) (Permission, error) {
	switch p := Permission(role); p {
	case PermOperator, PermTechnician, PermAdmin:
		return p, nil
	}
	return "", fmt.Errorf("unknown role: %q", role)
}

// RoleToPermissions expands a role into the permissions it grants. Unknown
// roles only read.
func RoleToPermissions(role string) []Permission {
	switch Permission(role) {
	case PermAdmin:
		return []Permission{PermOperator, PermTechnician, PermAdmin}
	case PermTechnician:
		return []Permission{PermOperator, PermTechnician}
	default:
		return []Permission{PermOperator}
	}
}
