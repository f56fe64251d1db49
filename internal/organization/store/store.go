// Package store persists organizations.
package store

import (
	"taskguard/pkg/platform/sentinel"
)

// ErrNotFound is returned when no organization has the requested id.
var ErrNotFound = sentinel.ErrNotFound
