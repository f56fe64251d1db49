package audit

import (
	"context"
	"time"

	id "taskguard/pkg/domain"
)

// EventCategory classifies audit actions by their primary purpose so sinks can
// route and retain them differently.
type EventCategory string

const (
	// CategoryCompliance covers membership, role and data-lifecycle changes.
	CategoryCompliance EventCategory = "compliance"
	// CategorySecurity covers authentication outcomes and denied access.
	CategorySecurity EventCategory = "security"
	// CategoryOperations covers routine task activity.
	CategoryOperations EventCategory = "operations"
)

// Action is the kind of event an audit record describes.
type Action string

const (
	// Authentication
	ActionLogin         Action = "login"
	ActionLogout        Action = "logout"
	ActionLoginFailed   Action = "login_failed"
	ActionPasswordReset Action = "password_reset"

	// Principals
	ActionUserCreated Action = "user_created"
	ActionUserUpdated Action = "user_updated"
	ActionUserDeleted Action = "user_deleted"

	// Tasks
	ActionTaskCreated    Action = "task_created"
	ActionTaskUpdated    Action = "task_updated"
	ActionTaskDeleted    Action = "task_deleted"
	ActionTaskAssigned   Action = "task_assigned"
	ActionTaskUnassigned Action = "task_unassigned"

	// Organizations
	ActionOrgCreated     Action = "org_created"
	ActionOrgUpdated     Action = "org_updated"
	ActionOrgDeleted     Action = "org_deleted"
	ActionOrgUserAdded   Action = "org_user_added"
	ActionOrgUserRemoved Action = "org_user_removed"
	ActionRoleChanged    Action = "role_changed"

	ActionDataExported Action = "data_exported"
	ActionAccessDenied Action = "access_denied"
)

var actionCategories = map[Action]EventCategory{
	ActionLogin:         CategorySecurity,
	ActionLogout:        CategorySecurity,
	ActionLoginFailed:   CategorySecurity,
	ActionPasswordReset: CategorySecurity,
	ActionAccessDenied:  CategorySecurity,

	ActionUserCreated:    CategoryCompliance,
	ActionUserUpdated:    CategoryCompliance,
	ActionUserDeleted:    CategoryCompliance,
	ActionOrgCreated:     CategoryCompliance,
	ActionOrgDeleted:     CategoryCompliance,
	ActionOrgUserAdded:   CategoryCompliance,
	ActionOrgUserRemoved: CategoryCompliance,
	ActionRoleChanged:    CategoryCompliance,
	ActionDataExported:   CategoryCompliance,

	ActionOrgUpdated:     CategoryOperations,
	ActionTaskCreated:    CategoryOperations,
	ActionTaskUpdated:    CategoryOperations,
	ActionTaskDeleted:    CategoryOperations,
	ActionTaskAssigned:   CategoryOperations,
	ActionTaskUnassigned: CategoryOperations,
}

// Category returns the EventCategory for the action.
// Unknown actions default to CategoryOperations.
func (a Action) Category() EventCategory {
	if cat, ok := actionCategories[a]; ok {
		return cat
	}
	return CategoryOperations
}

// IsValid reports whether a is a known action.
func (a Action) IsValid() bool {
	_, ok := actionCategories[a]
	return ok
}

// Entity types referenced by records.
const (
	EntityUser         = "user"
	EntityOrganization = "organization"
	EntityTask         = "task"
)

// Record is one immutable entry of the audit trail.
//
// Records form a hash chain: Hash covers PrevHash and every content field, so
// rewriting or removing an entry breaks verification of all later entries.
// ActorID is the zero UserID when there is no actor or the actor was purged;
// ActorDetached distinguishes the second case.
type Record struct {
	ID            string
	ActorID       id.UserID
	Action        Action
	EntityType    string
	EntityID      string
	SourceAddress string
	UserAgent     string
	RequestID     string
	Metadata      map[string]string
	Timestamp     time.Time
	PrevHash      string
	Hash          string
	ActorDetached bool
}

// Query limits.
const (
	DefaultQueryLimit = 100
	MaxQueryLimit     = 1000
)

// NormalizeLimit applies the default and the cap.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultQueryLimit
	}
	if limit > MaxQueryLimit {
		return MaxQueryLimit
	}
	return limit
}

// Filter selects records. Zero-valued fields are ignored; set fields are ANDed.
// EntityID is only meaningful together with EntityType.
type Filter struct {
	ActorID    id.UserID
	EntityType string
	EntityID   string
	Action     Action
}

// IsEmpty reports whether the filter selects everything.
func (f Filter) IsEmpty() bool {
	return f.ActorID.IsNil() && f.EntityType == "" && f.EntityID == "" && f.Action == ""
}

// Matches reports whether r satisfies the filter.
func (f Filter) Matches(r Record) bool {
	if !f.ActorID.IsNil() && r.ActorID != f.ActorID {
		return false
	}
	if f.EntityType != "" && r.EntityType != f.EntityType {
		return false
	}
	if f.EntityID != "" && r.EntityID != f.EntityID {
		return false
	}
	if f.Action != "" && r.Action != f.Action {
		return false
	}
	return true
}

// Store persists the audit chain.
//
// Append must read the current chain head, seal rec against it and insert it
// as one atomic step so concurrent appends never fork the chain.
type Store interface {
	Append(ctx context.Context, rec *Record) error
	Query(ctx context.Context, filter Filter, limit int) ([]Record, error)
	// Chain returns every record oldest first.
	Chain(ctx context.Context) ([]Record, error)
	// DetachActor clears the actor of every record by userID and returns how
	// many records changed.
	DetachActor(ctx context.Context, userID id.UserID) (int, error)
}
