// Package revocation holds the token revocation list (TRL): JTIs of logged-out
// tokens, kept until the token would have expired anyway.
package revocation

import (
	"fmt"
	"time"

	"taskguard/pkg/platform/sentinel"
)

// Clock returns the current time.
type Clock func() time.Time

func validateTTL(ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive: %w", sentinel.ErrInvalidState)
	}
	return nil
}
