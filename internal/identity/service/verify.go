package service

import (
	"context"
	"errors"
	"time"

	"taskguard/internal/identity/models"
	"taskguard/internal/identity/store/principal"
	id "taskguard/pkg/domain"
	dErrors "taskguard/pkg/domain-errors"
	audit "taskguard/pkg/platform/audit"
	"taskguard/pkg/requestcontext"
)

// Verify checks the token's signature and expiry, then the revocation list,
// then that the principal still exists and is active. Errors carry
// expired_token, malformed_token, revoked_token or unauthorized.
func (s *Service) Verify(ctx context.Context, tokenString string) (*models.Identity, error) {
	claims, err := s.tokens.Validate(tokenString)
	if err != nil {
		s.metrics.IncrementVerification(string(dErrors.CodeOf(err)))
		return nil, err
	}

	if s.trl != nil {
		revoked, err := s.trl.IsRevoked(ctx, claims.ID)
		if err != nil {
			s.metrics.IncrementVerification("error")
			s.logger.ErrorContext(ctx, "revocation list lookup failed",
				"token_id", claims.ID,
				"error", err,
			)
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "could not check token revocation")
		}
		if revoked {
			s.metrics.IncrementVerification(string(dErrors.CodeRevokedToken))
			return nil, dErrors.New(dErrors.CodeRevokedToken, "token has been revoked")
		}
	}

	// deactivation and purge end every outstanding session
	p, err := s.principals.FindByID(ctx, claims.UserID())
	switch {
	case errors.Is(err, principal.ErrNotFound):
		s.metrics.IncrementVerification("unknown_principal")
		return nil, dErrors.New(dErrors.CodeUnauthorized, "principal no longer exists")
	case err != nil:
		s.metrics.IncrementVerification("error")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load principal")
	case !p.IsActive():
		s.metrics.IncrementVerification("inactive_principal")
		return nil, dErrors.New(dErrors.CodeUnauthorized, "principal is deactivated")
	}

	s.metrics.IncrementVerification("valid")
	return &models.Identity{
		UserID:    claims.UserID(),
		Email:     claims.Email,
		TokenID:   claims.ID,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Logout revokes the token identified by jti until it would have expired.
// Logging out an already expired token is a no-op.
func (s *Service) Logout(ctx context.Context, userID id.UserID, jti string, expiresAt time.Time) error {
	if userID.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if jti == "" {
		return dErrors.New(dErrors.CodeBadRequest, "token id required")
	}
	if s.trl == nil {
		return dErrors.New(dErrors.CodeUnavailable, "token revocation is not configured")
	}

	ttl := expiresAt.Sub(requestcontext.Now(ctx))
	if ttl <= 0 {
		return nil
	}
	if err := s.trl.RevokeToken(ctx, jti, ttl); err != nil {
		s.logger.ErrorContext(ctx, "failed to add token to revocation list",
			"token_id", jti,
			"error", err,
		)
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke token")
	}

	s.metrics.IncrementTokenRevoked()
	s.recordAudit(ctx, audit.ActionLogout, userID, userID, map[string]string{"token_id": jti})
	return nil
}
