package service

import (
	"context"
	"errors"
	"strconv"

	auditservice "taskguard/internal/audit/service"
	"taskguard/internal/organization/models"
	"taskguard/internal/organization/store"
	"taskguard/internal/policy"
	"taskguard/internal/policy/guard"
	id "taskguard/pkg/domain"
	dErrors "taskguard/pkg/domain-errors"
	audit "taskguard/pkg/platform/audit"
	txcontext "taskguard/pkg/platform/tx"
	"taskguard/pkg/requestcontext"
)

// Create persists a new organization and makes the caller its SUPER_ADMIN.
// Any authenticated principal may create one.
func (s *Service) Create(ctx context.Context, name, description string) (_ *models.WithRole, err error) {
	creator := requestcontext.UserID(ctx)
	if creator.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	orgID := id.NewOrganizationID()
	md := map[string]string{}
	defer func() {
		s.recordAudit(ctx, audit.ActionOrgCreated, orgID, auditservice.WithOutcome(md, err))
	}()

	org, err := models.NewOrganization(orgID, name, description, requestcontext.Now(ctx))
	if err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, err.Error())
	}
	md["name"] = org.Name

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.store.Create(txCtx, org); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create organization")
		}
		if _, err := s.memberships.AddMembership(txCtx, creator, org.ID, id.RoleSuperAdmin); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		// the lock runner has no rollback
		if _, inMemory := s.tx.(*txcontext.LockRunner); inMemory {
			_ = s.store.Delete(ctx, org.ID)
		}
		return nil, err
	}

	s.logger.InfoContext(ctx, "organization created",
		"organization_id", org.ID.String(),
		"user_id", creator.String(),
	)
	return &models.WithRole{Organization: *org, Role: id.RoleSuperAdmin}, nil
}

func (s *Service) Get(ctx context.Context, orgID id.OrganizationID) (*models.WithRole, error) {
	d, err := s.require(ctx, orgID, policy.ActionRead, "")
	if err != nil {
		return nil, err
	}
	org, err := s.load(ctx, orgID)
	if err != nil {
		return nil, err
	}
	return &models.WithRole{Organization: *org, Role: d.Role}, nil
}

// ListForUser returns every organization the caller belongs to, with their
// role in each.
func (s *Service) ListForUser(ctx context.Context) ([]*models.WithRole, error) {
	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	ms, err := s.memberships.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(ms) == 0 {
		return []*models.WithRole{}, nil
	}

	roles := make(map[id.OrganizationID]id.Role, len(ms))
	ids := make([]id.OrganizationID, 0, len(ms))
	for _, m := range ms {
		roles[m.OrganizationID] = m.Role
		ids = append(ids, m.OrganizationID)
	}
	orgs, err := s.store.FindByIDs(ctx, ids)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list organizations")
	}

	out := make([]*models.WithRole, 0, len(orgs))
	for _, org := range orgs {
		out = append(out, &models.WithRole{Organization: *org, Role: roles[org.ID]})
	}
	return out, nil
}

func (s *Service) Update(ctx context.Context, orgID id.OrganizationID, changes models.Changes) (org *models.Organization, err error) {
	if _, err := s.require(ctx, orgID, policy.ActionUpdate, audit.ActionOrgUpdated); err != nil {
		return nil, err
	}
	md := map[string]string{}
	defer func() {
		s.recordAudit(ctx, audit.ActionOrgUpdated, orgID, auditservice.WithOutcome(md, err))
	}()

	org, err = s.store.Execute(ctx, orgID,
		func(o *models.Organization) error { return o.CanApply(changes) },
		func(o *models.Organization) { o.Apply(changes, requestcontext.Now(ctx)) },
	)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeNotFound, "organization not found")
		case dErrors.HasCode(err, dErrors.CodeInvariantViolation):
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update organization")
		}
	}

	if changes.Name != nil {
		md["name"] = org.Name
	}
	if changes.Description != nil {
		md["description_changed"] = "true"
	}
	return org, nil
}

// Delete removes the organization together with its memberships and every
// task scoped to it.
func (s *Service) Delete(ctx context.Context, orgID id.OrganizationID) (err error) {
	if _, err := s.require(ctx, orgID, policy.ActionDelete, audit.ActionOrgDeleted); err != nil {
		return err
	}
	md := map[string]string{}
	defer func() {
		s.recordAudit(ctx, audit.ActionOrgDeleted, orgID, auditservice.WithOutcome(md, err))
	}()

	org, err := s.load(ctx, orgID)
	if err != nil {
		return err
	}
	md["name"] = org.Name

	var members, scoped, steps int
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		for _, hook := range s.deleteHooks {
			n, err := hook(txCtx, orgID)
			if err != nil {
				return err
			}
			scoped += n
			steps++
		}
		n, err := s.memberships.RemoveOrganization(txCtx, orgID)
		if err != nil {
			return err
		}
		members = n
		steps++
		return s.store.Delete(txCtx, orgID)
	})
	if err != nil {
		// the lock runner cannot undo cascade steps that already ran
		if _, inMemory := s.tx.(*txcontext.LockRunner); inMemory && steps > 0 {
			md["partial_cascade"] = "true"
			s.logger.ErrorContext(ctx, "organization delete partially applied",
				"organization_id", orgID.String(),
				"steps_completed", steps,
				"members_removed", members,
				"tasks_removed", scoped,
				"error", err,
			)
		}
		if errors.Is(err, store.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "organization not found")
		}
		if _, ok := dErrors.As(err); ok {
			return err
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete organization")
	}

	s.logger.InfoContext(ctx, "organization deleted",
		"organization_id", orgID.String(),
		"members_removed", members,
		"tasks_removed", scoped,
	)
	md["members_removed"] = strconv.Itoa(members)
	md["tasks_removed"] = strconv.Itoa(scoped)
	return nil
}

// AuditTrail returns the organization's own trail, newest first.
func (s *Service) AuditTrail(ctx context.Context, orgID id.OrganizationID, limit int) ([]audit.Record, error) {
	if _, err := s.guard.Require(ctx, auditReadCheck(orgID)); err != nil {
		return nil, err
	}
	if s.audit == nil {
		return []audit.Record{}, nil
	}
	return s.audit.Query(ctx, audit.Filter{
		EntityType: audit.EntityOrganization,
		EntityID:   orgID.String(),
	}, limit)
}

func auditReadCheck(orgID id.OrganizationID) guard.Check {
	return guard.Check{
		OrganizationID: orgID,
		Resource:       policy.ResourceAudit,
		Action:         policy.ActionRead,
		EntityType:     audit.EntityOrganization,
		EntityID:       orgID.String(),
	}
}

func (s *Service) load(ctx context.Context, orgID id.OrganizationID) (*models.Organization, error) {
	org, err := s.store.FindByID(ctx, orgID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "organization not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load organization")
	}
	return org, nil
}
