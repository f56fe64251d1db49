// Package policy decides whether a principal may perform an action on a
// resource scoped to an organization.
//
// Rules are evaluated in a fixed order and the first match wins:
//
//  1. no principal: deny with not_authenticated
//  2. owner-exempt action and the principal created the resource: allow
//  3. no membership in the organization: deny with not_a_member
//  4. the member's role is listed by the rule: allow
//  5. otherwise: deny with insufficient_role
//
// Ownership is checked before membership, so a creator who has since left the
// organization still passes owner-exempt actions.
package policy

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	policymetrics "taskguard/internal/policy/metrics"
	id "taskguard/pkg/domain"
	dErrors "taskguard/pkg/domain-errors"
)

// Reason is the stable code explaining a decision.
type Reason string

const (
	ReasonOwner            Reason = "owner"
	ReasonRoleGranted      Reason = "role_granted"
	ReasonNotAuthenticated Reason = "not_authenticated"
	ReasonNotAMember       Reason = "not_a_member"
	ReasonInsufficientRole Reason = "insufficient_role"
	ReasonNoRule           Reason = "no_rule"
)

// Request is the input to Decide. OwnerID is the zero value when the resource
// has no owner.
type Request struct {
	Principal      id.UserID
	OrganizationID id.OrganizationID
	Resource       ResourceType
	Action         Action
	RequiredRoles  []id.Role
	OwnerID        id.UserID
	OwnerExempt    bool
}

// Decision is the outcome of a policy evaluation. Role is set whenever a
// membership was found.
type Decision struct {
	Allowed  bool
	Reason   Reason
	Role     id.Role
	Resource ResourceType
	Action   Action
}

func (d Decision) Outcome() string {
	if d.Allowed {
		return "allow"
	}
	return "deny"
}

// Err converts a deny into a domain error carrying the reason code. It
// returns nil for allows.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	switch d.Reason {
	case ReasonNotAuthenticated:
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	case ReasonNotAMember:
		return dErrors.New(dErrors.CodeNotAMember, "not a member of this organization")
	case ReasonInsufficientRole:
		return dErrors.New(dErrors.CodeInsufficientRole, "role does not permit "+string(d.Action)+" on "+string(d.Resource))
	default:
		return dErrors.New(dErrors.CodeForbidden, "action not permitted")
	}
}

// MembershipResolver looks up a principal's role in an organization.
type MembershipResolver interface {
	RoleOf(ctx context.Context, userID id.UserID, orgID id.OrganizationID) (id.Role, bool, error)
}

// Engine evaluates requests against a rule table. It holds no mutable state
// and is safe for concurrent use.
type Engine struct {
	resolver MembershipResolver
	table    *Table
	logger   *slog.Logger
	metrics  *policymetrics.Metrics
	tracer   trace.Tracer
}

type Option func(*Engine)

func WithTable(t *Table) Option {
	return func(e *Engine) {
		if t != nil {
			e.table = t
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithMetrics(m *policymetrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

func New(resolver MembershipResolver, opts ...Option) *Engine {
	e := &Engine{
		resolver: resolver,
		table:    DefaultTable(),
		logger:   slog.Default(),
		tracer:   otel.Tracer("taskguard/policy"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Table exposes the rules the engine evaluates.
func (e *Engine) Table() *Table {
	return e.table
}

// Authorize resolves the rule for (resource, action) from the table and
// decides. Actions without a rule are denied with ReasonNoRule.
func (e *Engine) Authorize(ctx context.Context, principal id.UserID, orgID id.OrganizationID, resource ResourceType, action Action, ownerID id.UserID) (Decision, error) {
	req := Request{
		Principal:      principal,
		OrganizationID: orgID,
		Resource:       resource,
		Action:         action,
		OwnerID:        ownerID,
	}
	rule, ok := e.table.Lookup(resource, action)
	if !ok {
		if principal.IsNil() {
			return e.Decide(ctx, req)
		}
		d := Decision{Reason: ReasonNoRule, Resource: resource, Action: action}
		e.observe(ctx, d, time.Now())
		return d, nil
	}
	req.RequiredRoles = rule.RequiredRoles
	req.OwnerExempt = rule.OwnerExempt
	return e.Decide(ctx, req)
}

// Decide evaluates req. The error is non-nil only when the membership lookup
// fails; a deny is a normal Decision.
func (e *Engine) Decide(ctx context.Context, req Request) (Decision, error) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "policy.Decide", trace.WithAttributes(
		attribute.String("policy.resource", string(req.Resource)),
		attribute.String("policy.action", string(req.Action)),
		attribute.String("organization_id", req.OrganizationID.String()),
	))
	defer span.End()

	d := Decision{Resource: req.Resource, Action: req.Action}

	if req.Principal.IsNil() {
		d.Reason = ReasonNotAuthenticated
		e.finish(ctx, span, d, start)
		return d, nil
	}

	if req.OwnerExempt && !req.OwnerID.IsNil() && req.OwnerID == req.Principal {
		d.Allowed = true
		d.Reason = ReasonOwner
		e.finish(ctx, span, d, start)
		return d, nil
	}

	role, member, err := e.resolver.RoleOf(ctx, req.Principal, req.OrganizationID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "membership lookup failed")
		e.logger.ErrorContext(ctx, "policy membership lookup failed",
			"user_id", req.Principal.String(),
			"organization_id", req.OrganizationID.String(),
			"error", err,
		)
		if _, ok := dErrors.As(err); ok {
			return Decision{}, err
		}
		return Decision{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve membership")
	}
	if !member {
		d.Reason = ReasonNotAMember
		e.finish(ctx, span, d, start)
		return d, nil
	}

	d.Role = role
	if slices.Contains(req.RequiredRoles, role) {
		d.Allowed = true
		d.Reason = ReasonRoleGranted
	} else {
		d.Reason = ReasonInsufficientRole
	}
	e.finish(ctx, span, d, start)
	return d, nil
}

func (e *Engine) finish(ctx context.Context, span trace.Span, d Decision, start time.Time) {
	span.SetAttributes(
		attribute.String("policy.outcome", d.Outcome()),
		attribute.String("policy.reason", string(d.Reason)),
	)
	e.observe(ctx, d, start)
}

func (e *Engine) observe(ctx context.Context, d Decision, start time.Time) {
	e.metrics.ObserveDecision(d.Outcome(), string(d.Reason), time.Since(start))
	if !d.Allowed {
		e.logger.DebugContext(ctx, "policy denied",
			"resource", string(d.Resource),
			"action", string(d.Action),
			"reason", string(d.Reason),
		)
	}
}
