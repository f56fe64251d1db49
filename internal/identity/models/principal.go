package models

import (
	"strings"
	"time"

	id "taskguard/pkg/domain"
	dErrors "taskguard/pkg/domain-errors"
)

// Principal is an account that can authenticate.
//
// Invariants:
//   - Email is non-empty, normalized to lower case and unique
//   - PasswordHash is an opaque one-way hash, changed only by password reset
//   - Principals are deactivated rather than deleted; only an operator purge
//     removes the row, and it detaches audit references first
type Principal struct {
	ID           id.UserID `json:"id"`
	Email        string    `json:"email"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	PasswordHash string    `json:"-"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewPrincipal validates and builds an active principal.
func NewPrincipal(userID id.UserID, email, firstName, lastName, passwordHash string, now time.Time) (*Principal, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "principal id is required")
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "email is required")
	}
	if passwordHash == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "credential hash is required")
	}
	return &Principal{
		ID:           userID,
		Email:        email,
		FirstName:    strings.TrimSpace(firstName),
		LastName:     strings.TrimSpace(lastName),
		PasswordHash: passwordHash,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func (p *Principal) IsActive() bool {
	return p.Active
}

// CanDeactivate checks the active → inactive transition.
func (p *Principal) CanDeactivate() error {
	if !p.Active {
		return dErrors.New(dErrors.CodeInvariantViolation, "principal is already inactive")
	}
	return nil
}

func (p *Principal) ApplyDeactivation(now time.Time) {
	p.Active = false
	p.UpdatedAt = now
}

// ApplyPasswordChange replaces the credential hash.
func (p *Principal) ApplyPasswordChange(hash string, now time.Time) {
	p.PasswordHash = hash
	p.UpdatedAt = now
}
