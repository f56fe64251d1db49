// Package sentinel holds infrastructure-fact errors. Stores return these
// (optionally wrapped) and services translate them into domain errors:
//
//   - ErrNotFound: row does not exist (or is soft-deleted)
//   - ErrConflict: a uniqueness constraint rejected the write
//   - ErrExpired: token or record is past its expiry
//   - ErrRevoked: token was explicitly revoked
//   - ErrInvalidState: entity is in the wrong state for the operation
//   - ErrUnavailable: backing store is temporarily unreachable
//
// Input validation failures use pkg/domain-errors directly.
package sentinel

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrRevoked      = errors.New("revoked")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
