package models

import (
	"time"

	id "taskguard/pkg/domain"
	dErrors "taskguard/pkg/domain-errors"
)

// Membership grants a principal one role inside one organization.
//
// Invariants:
//   - at most one membership per (UserID, OrganizationID)
//   - Role is one of the five known roles
type Membership struct {
	UserID         id.UserID         `json:"user_id"`
	OrganizationID id.OrganizationID `json:"organization_id"`
	Role           id.Role           `json:"role"`
	JoinedAt       time.Time         `json:"joined_at"`
}

func NewMembership(userID id.UserID, orgID id.OrganizationID, role id.Role, now time.Time) (*Membership, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "user id is required")
	}
	if orgID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "organization id is required")
	}
	if !role.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invalid role")
	}
	return &Membership{
		UserID:         userID,
		OrganizationID: orgID,
		Role:           role,
		JoinedAt:       now,
	}, nil
}

// CanChangeRole rejects unknown roles and no-op changes.
func (m *Membership) CanChangeRole(role id.Role) error {
	if !role.IsValid() {
		return dErrors.New(dErrors.CodeInvariantViolation, "invalid role")
	}
	if m.Role == role {
		return dErrors.New(dErrors.CodeInvariantViolation, "member already has this role")
	}
	return nil
}

func (m *Membership) ApplyRoleChange(role id.Role) {
	m.Role = role
}
