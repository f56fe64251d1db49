package service

import (
	"context"

	authmw "taskguard/pkg/platform/middleware/auth"
)

// MiddlewareVerifier adapts the service to the auth middleware.
type MiddlewareVerifier struct {
	service *Service
}

func NewMiddlewareVerifier(s *Service) *MiddlewareVerifier {
	return &MiddlewareVerifier{service: s}
}

func (v *MiddlewareVerifier) Verify(ctx context.Context, token string) (*authmw.Claims, error) {
	identity, err := v.service.Verify(ctx, token)
	if err != nil {
		return nil, err
	}
	return &authmw.Claims{
		UserID:    identity.UserID,
		TokenID:   identity.TokenID,
		ExpiresAt: identity.ExpiresAt,
	}, nil
}
