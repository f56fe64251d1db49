// Package domain holds the typed identifiers and value primitives shared across
// modules. IDs are distinct named UUID types so a UserID can never be passed
// where an OrganizationID is expected.
package domain

import (
	"github.com/google/uuid"

	dErrors "taskguard/pkg/domain-errors"
)

type (
	UserID         uuid.UUID
	OrganizationID uuid.UUID
	TaskID         uuid.UUID
)

// maxIDLength bounds input before it reaches uuid.Parse.
const maxIDLength = 64

func parseUUID(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" is required")
	}
	if len(s) > maxIDLength {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be nil")
	}
	return parsed, nil
}

// ParseUserID parses an external user identifier. Empty, malformed and nil
// UUIDs are rejected with CodeInvalidInput.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user ID")
	return UserID(u), err
}

// ParseOrganizationID parses an external organization identifier.
func ParseOrganizationID(s string) (OrganizationID, error) {
	u, err := parseUUID(s, "organization ID")
	return OrganizationID(u), err
}

// ParseTaskID parses an external task identifier.
func ParseTaskID(s string) (TaskID, error) {
	u, err := parseUUID(s, "task ID")
	return TaskID(u), err
}

func NewUserID() UserID                 { return UserID(uuid.New()) }
func NewOrganizationID() OrganizationID { return OrganizationID(uuid.New()) }
func NewTaskID() TaskID                 { return TaskID(uuid.New()) }

func (id UserID) String() string         { return uuid.UUID(id).String() }
func (id OrganizationID) String() string { return uuid.UUID(id).String() }
func (id TaskID) String() string         { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }
func (id OrganizationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id TaskID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }
