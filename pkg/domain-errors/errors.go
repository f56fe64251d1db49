// Package domainerrors defines the coded error type shared by services and
// transports. Services return *Error values; handlers translate the Code into
// an HTTP status and a stable machine-readable error string.
//
// Stores should not construct these directly; they return sentinel errors from
// pkg/platform/sentinel and let the owning service pick the code.
package domainerrors

import (
	"errors"
	"net/http"
)

// Code is a stable, client-visible error identifier.
type Code string

const (
	CodeBadRequest         Code = "bad_request"
	CodeInvalidInput       Code = "invalid_input"
	CodeValidation         Code = "validation_error"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeInvariantViolation Code = "invariant_violation"
	CodeInternal           Code = "internal_error"
	CodeUnavailable        Code = "unavailable"

	// Identity
	CodeInvalidCredentials Code = "invalid_credentials"
	CodeExpiredToken       Code = "expired_token"
	CodeMalformedToken     Code = "malformed_token"
	CodeRevokedToken       Code = "revoked_token"

	// Membership
	CodeDuplicateMembership Code = "duplicate_membership"
	CodeMembershipNotFound  Code = "membership_not_found"

	// Authorization denials
	CodeNotAMember       Code = "not_a_member"
	CodeInsufficientRole Code = "insufficient_role"
)

var httpStatus = map[Code]int{
	CodeBadRequest:          http.StatusBadRequest,
	CodeInvalidInput:        http.StatusBadRequest,
	CodeValidation:          http.StatusBadRequest,
	CodeUnauthorized:        http.StatusUnauthorized,
	CodeInvalidCredentials:  http.StatusUnauthorized,
	CodeExpiredToken:        http.StatusUnauthorized,
	CodeMalformedToken:      http.StatusUnauthorized,
	CodeRevokedToken:        http.StatusUnauthorized,
	CodeForbidden:           http.StatusForbidden,
	CodeNotAMember:          http.StatusForbidden,
	CodeInsufficientRole:    http.StatusForbidden,
	CodeNotFound:            http.StatusNotFound,
	CodeMembershipNotFound:  http.StatusNotFound,
	CodeConflict:            http.StatusConflict,
	CodeDuplicateMembership: http.StatusConflict,
	CodeInvariantViolation:  http.StatusUnprocessableEntity,
	CodeUnavailable:         http.StatusServiceUnavailable,
	CodeInternal:            http.StatusInternalServerError,
}

// HTTPStatus maps a code to its response status. Unknown codes are 500.
func HTTPStatus(code Code) int {
	if status, ok := httpStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Error is a domain error carrying a Code, a human-readable message and an
// optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error with the same code and message, which lets tests
// compare against a freshly constructed expected error with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// New creates a domain error without a cause.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// As extracts the outermost *Error from err's chain.
func As(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// HasCode reports whether the outermost domain error in err's chain has code.
func HasCode(err error, code Code) bool {
	de, ok := As(err)
	return ok && de.Code == code
}

// CodeOf returns the code of err, or CodeInternal when err is not a domain error.
func CodeOf(err error) Code {
	if de, ok := As(err); ok {
		return de.Code
	}
	return CodeInternal
}

// Is is errors.Is re-exported so callers need a single import.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
