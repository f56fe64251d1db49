// Package store persists tasks and their assignments.
package store

import (
	"taskguard/pkg/platform/sentinel"
)

// ErrNotFound is returned for unknown or soft-deleted tasks and for missing
// assignments.
var ErrNotFound = sentinel.ErrNotFound
