// Package service manages organizations and their members. Every operation
// passes through the policy guard before touching a store and is recorded in
// the audit trail afterwards.
package service

import (
	"context"
	"errors"
	"log/slog"

	auditservice "taskguard/internal/audit/service"
	identitymodels "taskguard/internal/identity/models"
	membershipmodels "taskguard/internal/membership/models"
	"taskguard/internal/organization/models"
	"taskguard/internal/policy"
	"taskguard/internal/policy/guard"
	id "taskguard/pkg/domain"
	audit "taskguard/pkg/platform/audit"
	txcontext "taskguard/pkg/platform/tx"
)

type Store interface {
	Create(ctx context.Context, org *models.Organization) error
	FindByID(ctx context.Context, orgID id.OrganizationID) (*models.Organization, error)
	FindByIDs(ctx context.Context, ids []id.OrganizationID) ([]*models.Organization, error)
	Execute(ctx context.Context, orgID id.OrganizationID, validate func(*models.Organization) error, mutate func(*models.Organization)) (*models.Organization, error)
	Delete(ctx context.Context, orgID id.OrganizationID) error
}

// Memberships is the membership resolver's write side.
type Memberships interface {
	AddMembership(ctx context.Context, userID id.UserID, orgID id.OrganizationID, role id.Role) (*membershipmodels.Membership, error)
	RemoveMembership(ctx context.Context, userID id.UserID, orgID id.OrganizationID) error
	ChangeRole(ctx context.Context, userID id.UserID, orgID id.OrganizationID, role id.Role) (*membershipmodels.Membership, id.Role, error)
	ListByOrganization(ctx context.Context, orgID id.OrganizationID) ([]*membershipmodels.Membership, error)
	ListByUser(ctx context.Context, userID id.UserID) ([]*membershipmodels.Membership, error)
	RemoveOrganization(ctx context.Context, orgID id.OrganizationID) (int, error)
}

type Guard interface {
	Require(ctx context.Context, c guard.Check) (policy.Decision, error)
}

type AuditRecorder interface {
	Record(ctx context.Context, e auditservice.Entry) auditservice.Result
	Query(ctx context.Context, filter audit.Filter, limit int) ([]audit.Record, error)
}

// Directory resolves member profiles in one round trip.
type Directory interface {
	GetPrincipals(ctx context.Context, ids []id.UserID) (map[id.UserID]*identitymodels.Principal, error)
}

// DeleteHook removes data scoped to an organization that is being deleted.
// Hooks run inside the delete transaction and must not open their own.
type DeleteHook func(ctx context.Context, orgID id.OrganizationID) (int, error)

type Service struct {
	store       Store
	memberships Memberships
	guard       Guard
	audit       AuditRecorder
	directory   Directory
	tx          txcontext.Runner
	deleteHooks []DeleteHook
	logger      *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditRecorder(r AuditRecorder) Option {
	return func(s *Service) {
		s.audit = r
	}
}

func WithDirectory(d Directory) Option {
	return func(s *Service) {
		s.directory = d
	}
}

func WithTx(r txcontext.Runner) Option {
	return func(s *Service) {
		if r != nil {
			s.tx = r
		}
	}
}

func WithDeleteHooks(hooks ...DeleteHook) Option {
	return func(s *Service) {
		s.deleteHooks = append(s.deleteHooks, hooks...)
	}
}

func New(st Store, memberships Memberships, g Guard, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, errors.New("organization store is required")
	}
	if memberships == nil {
		return nil, errors.New("membership service is required")
	}
	if g == nil {
		return nil, errors.New("policy guard is required")
	}
	s := &Service{
		store:       st,
		memberships: memberships,
		guard:       g,
		tx:          &txcontext.LockRunner{},
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) require(ctx context.Context, orgID id.OrganizationID, action policy.Action, auditAction audit.Action) (policy.Decision, error) {
	return s.guard.Require(ctx, guard.Check{
		OrganizationID: orgID,
		Resource:       policy.ResourceOrganization,
		Action:         action,
		AuditAction:    auditAction,
		EntityType:     audit.EntityOrganization,
		EntityID:       orgID.String(),
	})
}

func (s *Service) recordAudit(ctx context.Context, action audit.Action, orgID id.OrganizationID, metadata map[string]string) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, auditservice.Entry{
		Action:     action,
		EntityType: audit.EntityOrganization,
		EntityID:   orgID.String(),
		Metadata:   metadata,
	})
}
