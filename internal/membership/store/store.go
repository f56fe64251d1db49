// Package store persists organization memberships.
package store

import (
	"taskguard/pkg/platform/sentinel"
)

// ErrNotFound is returned when the (user, organization) pair has no membership.
var ErrNotFound = sentinel.ErrNotFound

// ErrDuplicate is returned when the pair already has a membership.
var ErrDuplicate = sentinel.ErrConflict
