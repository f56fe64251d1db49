package handler

import (
	"strings"

	"taskguard/internal/organization/models"
	id "taskguard/pkg/domain"
	dErrors "taskguard/pkg/domain-errors"
)

type CreateOrganizationRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Validate implements httputil.Validatable.
func (r *CreateOrganizationRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	if len(r.Name) > 4*models.MaxNameLength || len(r.Description) > 4*models.MaxDescriptionLength {
		return dErrors.New(dErrors.CodeValidation, "request fields are too long")
	}
	return nil
}

// UpdateOrganizationRequest is a partial update; omitted fields are kept.
type UpdateOrganizationRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

func (r *UpdateOrganizationRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.Name == nil && r.Description == nil {
		return dErrors.New(dErrors.CodeValidation, "at least one of name or description is required")
	}
	return nil
}

func (r *UpdateOrganizationRequest) Changes() models.Changes {
	return models.Changes{Name: r.Name, Description: r.Description}
}

type AddMemberRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`

	parsedUserID id.UserID
	parsedRole   id.Role
}

func (r *AddMemberRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	userID, err := id.ParseUserID(strings.TrimSpace(r.UserID))
	if err != nil {
		return err
	}
	role, err := id.ParseRole(r.Role)
	if err != nil {
		return err
	}
	r.parsedUserID = userID
	r.parsedRole = role
	return nil
}

func (r *AddMemberRequest) ParsedUserID() id.UserID { return r.parsedUserID }
func (r *AddMemberRequest) ParsedRole() id.Role     { return r.parsedRole }

type ChangeRoleRequest struct {
	Role string `json:"role"`

	parsedRole id.Role
}

func (r *ChangeRoleRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if strings.TrimSpace(r.Role) == "" {
		return dErrors.New(dErrors.CodeValidation, "role is required")
	}
	role, err := id.ParseRole(r.Role)
	if err != nil {
		return err
	}
	r.parsedRole = role
	return nil
}

func (r *ChangeRoleRequest) ParsedRole() id.Role { return r.parsedRole }
