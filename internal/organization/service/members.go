package service

import (
	"context"

	auditservice "taskguard/internal/audit/service"
	membershipmodels "taskguard/internal/membership/models"
	"taskguard/internal/organization/models"
	"taskguard/internal/policy"
	id "taskguard/pkg/domain"
	dErrors "taskguard/pkg/domain-errors"
	audit "taskguard/pkg/platform/audit"
)

func (s *Service) AddMember(ctx context.Context, orgID id.OrganizationID, userID id.UserID, role id.Role) (m *membershipmodels.Membership, err error) {
	if _, err := s.require(ctx, orgID, policy.ActionAddMember, audit.ActionOrgUserAdded); err != nil {
		return nil, err
	}
	md := map[string]string{
		"user_id": userID.String(),
		"role":    role.String(),
	}
	defer func() {
		s.recordAudit(ctx, audit.ActionOrgUserAdded, orgID, auditservice.WithOutcome(md, err))
	}()

	if _, err := s.load(ctx, orgID); err != nil {
		return nil, err
	}
	return s.memberships.AddMembership(ctx, userID, orgID, role)
}

func (s *Service) RemoveMember(ctx context.Context, orgID id.OrganizationID, userID id.UserID) (err error) {
	if _, err := s.require(ctx, orgID, policy.ActionRemoveMember, audit.ActionOrgUserRemoved); err != nil {
		return err
	}
	defer func() {
		s.recordAudit(ctx, audit.ActionOrgUserRemoved, orgID,
			auditservice.WithOutcome(map[string]string{"user_id": userID.String()}, err))
	}()
	return s.memberships.RemoveMembership(ctx, userID, orgID)
}

func (s *Service) ChangeRole(ctx context.Context, orgID id.OrganizationID, userID id.UserID, role id.Role) (m *membershipmodels.Membership, err error) {
	if _, err := s.require(ctx, orgID, policy.ActionChangeRole, audit.ActionRoleChanged); err != nil {
		return nil, err
	}
	md := map[string]string{
		"user_id": userID.String(),
		"role":    role.String(),
	}
	defer func() {
		s.recordAudit(ctx, audit.ActionRoleChanged, orgID, auditservice.WithOutcome(md, err))
	}()

	m, previous, err := s.memberships.ChangeRole(ctx, userID, orgID, role)
	if err != nil {
		return nil, err
	}
	md["previous_role"] = previous.String()
	return m, nil
}

// ListMembers returns members in join order. Profiles come from one batch
// lookup; members whose principal has been purged keep an empty email.
func (s *Service) ListMembers(ctx context.Context, orgID id.OrganizationID) ([]*models.Member, error) {
	if _, err := s.require(ctx, orgID, policy.ActionRead, ""); err != nil {
		return nil, err
	}
	ms, err := s.memberships.ListByOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}

	out := make([]*models.Member, len(ms))
	ids := make([]id.UserID, len(ms))
	for i, m := range ms {
		out[i] = &models.Member{UserID: m.UserID, Role: m.Role, JoinedAt: m.JoinedAt}
		ids[i] = m.UserID
	}
	if s.directory == nil || len(ids) == 0 {
		return out, nil
	}

	profiles, err := s.directory.GetPrincipals(ctx, ids)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load member profiles")
	}
	for _, member := range out {
		if p, ok := profiles[member.UserID]; ok {
			member.Email = p.Email
			member.FirstName = p.FirstName
			member.LastName = p.LastName
		}
	}
	return out, nil
}
