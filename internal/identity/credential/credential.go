// Package credential is the credential store: it turns secrets into one-way
// hashes and checks presented secrets against them.
package credential

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	dErrors "taskguard/pkg/domain-errors"
)

// ErrMismatch is returned when a secret does not match its hash.
var ErrMismatch = errors.New("credential mismatch")

const minSecretLength = 8

// Store hashes with bcrypt at a fixed cost.
type Store struct {
	cost      int
	dummyHash []byte
}

// New creates a Store. The dummy hash is computed once so lookups of unknown
// identifiers can spend the same time as real comparisons.
func New(cost int) (*Store, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range", cost)
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("taskguard-dummy-secret"), cost)
	if err != nil {
		return nil, fmt.Errorf("could not prepare dummy hash: %w", err)
	}
	return &Store{cost: cost, dummyHash: dummy}, nil
}

// Hash creates a bcrypt hash of the provided secret.
func (s *Store) Hash(secret string) (string, error) {
	if len(secret) < minSecretLength {
		return "", dErrors.New(dErrors.CodeValidation, fmt.Sprintf("password must be at least %d characters", minSecretLength))
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), s.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", dErrors.New(dErrors.CodeValidation, "password is too long")
		}
		return "", fmt.Errorf("could not hash secret: %w", err)
	}
	return string(hashed), nil
}

// Verify checks a plaintext secret against a hash. The comparison is
// constant-time with respect to the secret.
func (s *Store) Verify(secret, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatch
		}
		return fmt.Errorf("could not verify secret: %w", err)
	}
	return nil
}

// VerifyDummy burns one comparison against the dummy hash and always fails.
func (s *Store) VerifyDummy(secret string) error {
	_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(secret))
	return ErrMismatch
}
