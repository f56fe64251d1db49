// Package service resolves and maintains organization memberships. It does
// no authorization of its own: callers decide whether the principal may
// change membership before calling in.
package service

import (
	"context"
	"errors"
	"log/slog"

	"taskguard/internal/membership/models"
	"taskguard/internal/membership/store"
	id "taskguard/pkg/domain"
	dErrors "taskguard/pkg/domain-errors"
	"taskguard/pkg/requestcontext"
)

type Store interface {
	Find(ctx context.Context, userID id.UserID, orgID id.OrganizationID) (*models.Membership, error)
	Create(ctx context.Context, m *models.Membership) error
	Delete(ctx context.Context, userID id.UserID, orgID id.OrganizationID) error
	Execute(ctx context.Context, userID id.UserID, orgID id.OrganizationID, validate func(*models.Membership) error, mutate func(*models.Membership)) (*models.Membership, error)
	ListByOrganization(ctx context.Context, orgID id.OrganizationID) ([]*models.Membership, error)
	ListByUser(ctx context.Context, userID id.UserID) ([]*models.Membership, error)
	DeleteByOrganization(ctx context.Context, orgID id.OrganizationID) (int, error)
	DeleteByUser(ctx context.Context, userID id.UserID) (int, error)
}

type Service struct {
	store  Store
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(st Store, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, errors.New("membership store is required")
	}
	s := &Service{store: st, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RoleOf returns the user's role in the organization. A missing membership
// is ("", false, nil).
func (s *Service) RoleOf(ctx context.Context, userID id.UserID, orgID id.OrganizationID) (id.Role, bool, error) {
	m, err := s.store.Find(ctx, userID, orgID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", false, nil
		}
		return "", false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve membership")
	}
	return m.Role, true, nil
}

// AddMembership creates the membership. A second call for the same pair
// fails with CodeDuplicateMembership.
func (s *Service) AddMembership(ctx context.Context, userID id.UserID, orgID id.OrganizationID, role id.Role) (*models.Membership, error) {
	m, err := models.NewMembership(userID, orgID, role, requestcontext.Now(ctx))
	if err != nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, err.Error())
	}
	if err := s.store.Create(ctx, m); err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicate):
			return nil, dErrors.New(dErrors.CodeDuplicateMembership, "user is already a member of this organization")
		case errors.Is(err, store.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeNotFound, "user or organization not found")
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to add membership")
		}
	}
	s.logger.InfoContext(ctx, "membership added",
		"user_id", userID.String(),
		"organization_id", orgID.String(),
		"role", role.String(),
	)
	return m, nil
}

func (s *Service) RemoveMembership(ctx context.Context, userID id.UserID, orgID id.OrganizationID) error {
	if err := s.store.Delete(ctx, userID, orgID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return dErrors.New(dErrors.CodeMembershipNotFound, "membership not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove membership")
	}
	s.logger.InfoContext(ctx, "membership removed",
		"user_id", userID.String(),
		"organization_id", orgID.String(),
	)
	return nil
}

// ChangeRole returns the updated membership and the role it replaced.
func (s *Service) ChangeRole(ctx context.Context, userID id.UserID, orgID id.OrganizationID, role id.Role) (*models.Membership, id.Role, error) {
	var previous id.Role
	m, err := s.store.Execute(ctx, userID, orgID,
		func(cur *models.Membership) error {
			previous = cur.Role
			return cur.CanChangeRole(role)
		},
		func(cur *models.Membership) {
			cur.ApplyRoleChange(role)
		},
	)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return nil, "", dErrors.New(dErrors.CodeMembershipNotFound, "membership not found")
		case dErrors.HasCode(err, dErrors.CodeInvariantViolation):
			return nil, "", dErrors.New(dErrors.CodeValidation, err.Error())
		default:
			return nil, "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to change role")
		}
	}
	return m, previous, nil
}

func (s *Service) ListByOrganization(ctx context.Context, orgID id.OrganizationID) ([]*models.Membership, error) {
	ms, err := s.store.ListByOrganization(ctx, orgID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list members")
	}
	return ms, nil
}

func (s *Service) ListByUser(ctx context.Context, userID id.UserID) ([]*models.Membership, error) {
	ms, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list memberships")
	}
	return ms, nil
}

// RemoveOrganization drops every membership of a deleted organization.
func (s *Service) RemoveOrganization(ctx context.Context, orgID id.OrganizationID) (int, error) {
	n, err := s.store.DeleteByOrganization(ctx, orgID)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove organization memberships")
	}
	return n, nil
}

// RemoveUser drops every membership of a purged principal.
func (s *Service) RemoveUser(ctx context.Context, userID id.UserID) (int, error) {
	n, err := s.store.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove user memberships")
	}
	return n, nil
}
