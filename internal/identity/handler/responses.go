package handler

import (
	"time"

	"taskguard/internal/identity/models"
)

type PrincipalResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// LoginResponse mirrors an OAuth-style token response.
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int64     `json:"expires_in"`
	ExpiresAt   time.Time `json:"expires_at"`
	UserID      string    `json:"user_id"`
}

func toPrincipalResponse(p *models.Principal) *PrincipalResponse {
	return &PrincipalResponse{
		ID:        p.ID.String(),
		Email:     p.Email,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Active:    p.Active,
		CreatedAt: p.CreatedAt,
	}
}

func toLoginResponse(s *models.Session, now time.Time) *LoginResponse {
	return &LoginResponse{
		AccessToken: s.AccessToken,
		TokenType:   s.TokenType,
		ExpiresIn:   s.ExpiresIn(now),
		ExpiresAt:   s.ExpiresAt,
		UserID:      s.UserID.String(),
	}
}
