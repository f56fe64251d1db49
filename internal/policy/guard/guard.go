// Package guard runs policy checks on behalf of resource services and
// records every denial in the audit trail.
package guard

import (
	"context"
	"errors"
	"log/slog"

	auditservice "taskguard/internal/audit/service"
	"taskguard/internal/policy"
	id "taskguard/pkg/domain"
	audit "taskguard/pkg/platform/audit"
	"taskguard/pkg/attrs"
	"taskguard/pkg/requestcontext"
)

type Authorizer interface {
	Authorize(ctx context.Context, principal id.UserID, orgID id.OrganizationID, resource policy.ResourceType, action policy.Action, ownerID id.UserID) (policy.Decision, error)
}

type AuditRecorder interface {
	Record(ctx context.Context, e auditservice.Entry) auditservice.Result
}

// Check names the operation being attempted. AuditAction is what a denial is
// recorded as; reads leave it empty and are recorded as access_denied.
type Check struct {
	OrganizationID id.OrganizationID
	Resource       policy.ResourceType
	Action         policy.Action
	OwnerID        id.UserID
	AuditAction    audit.Action
	EntityType     string
	EntityID       string
}

type Guard struct {
	authorizer Authorizer
	audit      AuditRecorder
	logger     *slog.Logger
}

func New(authorizer Authorizer, recorder AuditRecorder, logger *slog.Logger) (*Guard, error) {
	if authorizer == nil {
		return nil, errors.New("authorizer is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{authorizer: authorizer, audit: recorder, logger: logger}, nil
}

// Require authorizes the principal on ctx. A deny is audited with
// decision=deny and reason=<code> and returned as the matching domain error.
func (g *Guard) Require(ctx context.Context, c Check) (policy.Decision, error) {
	principal := requestcontext.UserID(ctx)
	d, err := g.authorizer.Authorize(ctx, principal, c.OrganizationID, c.Resource, c.Action, c.OwnerID)
	if err != nil {
		return policy.Decision{}, err
	}
	if d.Allowed {
		return d, nil
	}

	g.logger.WarnContext(ctx, "access denied", attrs.FromContext(ctx,
		"organization_id", c.OrganizationID.String(),
		"resource", string(c.Resource),
		"action", string(c.Action),
		"reason", string(d.Reason),
	)...)
	g.recordDeny(ctx, c, d)
	return d, d.Err()
}

func (g *Guard) recordDeny(ctx context.Context, c Check, d policy.Decision) {
	if g.audit == nil {
		return
	}
	action := c.AuditAction
	if action == "" {
		action = audit.ActionAccessDenied
	}
	md := map[string]string{
		"decision":        "deny",
		"reason":          string(d.Reason),
		"policy_resource": string(c.Resource),
		"policy_action":   string(c.Action),
		"organization_id": c.OrganizationID.String(),
	}
	if d.Role != "" {
		md["role"] = d.Role.String()
	}
	g.audit.Record(ctx, auditservice.Entry{
		Action:     action,
		EntityType: c.EntityType,
		EntityID:   c.EntityID,
		Metadata:   md,
	})
}
