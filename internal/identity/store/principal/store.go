// Package principal persists principals.
package principal

import (
	"taskguard/pkg/platform/sentinel"
)

// ErrNotFound is returned when a principal does not exist.
var ErrNotFound = sentinel.ErrNotFound

// ErrEmailTaken is returned when the email is registered already.
var ErrEmailTaken = sentinel.ErrConflict
