package domain

import (
	"strings"

	dErrors "taskguard/pkg/domain-errors"
)

// Role is a named authority level inside one organization.
// Roles are not ranked; policy rules list the roles they accept.
//
// Usage: construct via ParseRole at trust boundaries; direct casting bypasses
// validation.
type Role string

const (
	RoleSuperAdmin Role = "SUPER_ADMIN"
	RoleOrgAdmin   Role = "ORG_ADMIN"
	RoleManager    Role = "MANAGER"
	RoleUser       Role = "USER"
	RoleViewer     Role = "VIEWER"
)

// validRoles is the single source of truth for accepted role values.
var validRoles = map[Role]bool{
	RoleSuperAdmin: true,
	RoleOrgAdmin:   true,
	RoleManager:    true,
	RoleUser:       true,
	RoleViewer:     true,
}

// AllRoles lists every role in declaration order.
func AllRoles() []Role {
	return []Role{RoleSuperAdmin, RoleOrgAdmin, RoleManager, RoleUser, RoleViewer}
}

// ParseRole constructs a Role from external input. Matching is
// case-insensitive; an empty value defaults to USER as new members do.
//
// Errors: returns CodeInvalidInput when the value is not a known role.
func ParseRole(s string) (Role, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return RoleUser, nil
	}
	r := Role(strings.ToUpper(s))
	if !r.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid role")
	}
	return r, nil
}

// IsValid checks if the role is one of the supported values.
func (r Role) IsValid() bool {
	return validRoles[r]
}

func (r Role) String() string {
	return string(r)
}
