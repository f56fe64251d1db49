package service

import (
	"context"
	"errors"

	"taskguard/internal/identity/credential"
	"taskguard/internal/identity/models"
	"taskguard/internal/identity/store/principal"
	id "taskguard/pkg/domain"
	dErrors "taskguard/pkg/domain-errors"
	audit "taskguard/pkg/platform/audit"
	"taskguard/pkg/requestcontext"
)

func (s *Service) GetPrincipal(ctx context.Context, userID id.UserID) (*models.Principal, error) {
	p, err := s.principals.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, principal.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "principal not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load principal")
	}
	return p, nil
}

// GetPrincipals loads many principals at once. Unknown ids are skipped.
func (s *Service) GetPrincipals(ctx context.Context, ids []id.UserID) (map[id.UserID]*models.Principal, error) {
	found, err := s.principals.FindByIDs(ctx, ids)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load principals")
	}
	out := make(map[id.UserID]*models.Principal, len(found))
	for _, p := range found {
		out[p.ID] = p
	}
	return out, nil
}

// ResetPassword replaces the credential after checking the current one. A
// wrong current secret is invalid_credentials.
func (s *Service) ResetPassword(ctx context.Context, userID id.UserID, current, next string) error {
	if userID.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	hash, err := s.credentials.Hash(next)
	if err != nil {
		if _, ok := dErrors.As(err); ok {
			return err
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}

	now := requestcontext.Now(ctx)
	_, err = s.principals.Execute(ctx, userID,
		func(p *models.Principal) error {
			if !p.IsActive() {
				return invalidCredentials()
			}
			if err := s.credentials.Verify(current, p.PasswordHash); err != nil {
				if errors.Is(err, credential.ErrMismatch) {
					return invalidCredentials()
				}
				return err
			}
			return nil
		},
		func(p *models.Principal) {
			p.ApplyPasswordChange(hash, now)
		},
	)
	if err != nil {
		switch {
		case dErrors.HasCode(err, dErrors.CodeInvalidCredentials):
			s.logger.WarnContext(ctx, "password reset rejected", "user_id", userID.String())
			return err
		case errors.Is(err, principal.ErrNotFound):
			return dErrors.New(dErrors.CodeNotFound, "principal not found")
		default:
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to reset password")
		}
	}

	s.recordAudit(ctx, audit.ActionPasswordReset, userID, userID, nil)
	return nil
}

// Deactivate marks the principal inactive. They can no longer authenticate
// and Verify rejects their outstanding tokens.
func (s *Service) Deactivate(ctx context.Context, userID id.UserID) (*models.Principal, error) {
	now := requestcontext.Now(ctx)
	p, err := s.principals.Execute(ctx, userID,
		func(p *models.Principal) error { return p.CanDeactivate() },
		func(p *models.Principal) { p.ApplyDeactivation(now) },
	)
	if err != nil {
		switch {
		case errors.Is(err, principal.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeNotFound, "principal not found")
		case dErrors.HasCode(err, dErrors.CodeInvariantViolation):
			return nil, dErrors.New(dErrors.CodeConflict, err.Error())
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to deactivate principal")
		}
	}

	s.recordAudit(ctx, audit.ActionUserUpdated, id.UserID{}, userID, map[string]string{"active": "false"})
	return p, nil
}

// Purge removes a principal for good. Audit records they authored are
// detached rather than deleted, and purge hooks clear data that references
// them. Everything runs as one unit of work.
func (s *Service) Purge(ctx context.Context, userID id.UserID) error {
	if userID.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "user ID required")
	}

	p, err := s.GetPrincipal(ctx, userID)
	if err != nil {
		return err
	}

	detached := 0
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if s.audit != nil {
			n, err := s.audit.DetachActor(txCtx, userID)
			if err != nil {
				return err
			}
			detached = n
		}
		for _, hook := range s.purgeHooks {
			if err := hook(txCtx, userID); err != nil {
				return err
			}
		}
		return s.principals.Delete(txCtx, userID)
	})
	if err != nil {
		if errors.Is(err, principal.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "principal not found")
		}
		if _, ok := dErrors.As(err); ok {
			return err
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to purge principal")
	}

	s.logger.InfoContext(ctx, "principal purged",
		"user_id", userID.String(),
		"detached_audit_records", detached,
	)
	s.recordAudit(ctx, audit.ActionUserDeleted, id.UserID{}, userID, map[string]string{"email": p.Email})
	return nil
}
