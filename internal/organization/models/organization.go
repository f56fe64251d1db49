package models

import (
	"strings"
	"time"
	"unicode/utf8"

	id "taskguard/pkg/domain"
	dErrors "taskguard/pkg/domain-errors"
)

const (
	MaxNameLength        = 100
	MaxDescriptionLength = 2000
)

// Organization is the tenant boundary. Memberships and tasks belong to
// exactly one organization and go away with it.
type Organization struct {
	ID          id.OrganizationID `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// WithRole pairs an organization with the caller's role in it.
type WithRole struct {
	Organization
	Role id.Role `json:"role"`
}

// Changes is a partial update. Nil fields are left alone.
type Changes struct {
	Name        *string
	Description *string
}

func (c Changes) IsEmpty() bool {
	return c.Name == nil && c.Description == nil
}

func NewOrganization(orgID id.OrganizationID, name, description string, now time.Time) (*Organization, error) {
	if orgID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "organization id is required")
	}
	name, err := validName(name)
	if err != nil {
		return nil, err
	}
	description, err = validDescription(description)
	if err != nil {
		return nil, err
	}
	return &Organization{
		ID:          orgID,
		Name:        name,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// CanApply validates c without mutating o.
func (o *Organization) CanApply(c Changes) error {
	if c.IsEmpty() {
		return dErrors.New(dErrors.CodeInvariantViolation, "no changes")
	}
	if c.Name != nil {
		if _, err := validName(*c.Name); err != nil {
			return err
		}
	}
	if c.Description != nil {
		if _, err := validDescription(*c.Description); err != nil {
			return err
		}
	}
	return nil
}

// Apply assumes CanApply passed.
func (o *Organization) Apply(c Changes, now time.Time) {
	if c.Name != nil {
		o.Name = strings.TrimSpace(*c.Name)
	}
	if c.Description != nil {
		o.Description = strings.TrimSpace(*c.Description)
	}
	o.UpdatedAt = now
}

func validName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", dErrors.New(dErrors.CodeInvariantViolation, "name is required")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", dErrors.New(dErrors.CodeInvariantViolation, "name must be at most 100 characters")
	}
	return name, nil
}

func validDescription(description string) (string, error) {
	description = strings.TrimSpace(description)
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		return "", dErrors.New(dErrors.CodeInvariantViolation, "description must be at most 2000 characters")
	}
	return description, nil
}

// Member is a membership joined with the member's profile.
type Member struct {
	UserID    id.UserID `json:"user_id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Role      id.Role   `json:"role"`
	JoinedAt  time.Time `json:"joined_at"`
}
