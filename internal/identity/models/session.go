package models

import (
	"time"

	id "taskguard/pkg/domain"
)

// Session is the result of a successful authentication: a signed bearer token
// plus the facts it binds.
type Session struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	TokenID     string    `json:"-"`
	UserID      id.UserID `json:"user_id"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// ExpiresIn is the remaining lifetime in whole seconds at now.
func (s *Session) ExpiresIn(now time.Time) int64 {
	if d := s.ExpiresAt.Sub(now); d > 0 {
		return int64(d / time.Second)
	}
	return 0
}

// Identity is what Verify proves about the bearer of a token.
type Identity struct {
	UserID    id.UserID
	Email     string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
