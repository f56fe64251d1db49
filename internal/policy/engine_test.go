package policy

//go:generate mockgen -source=engine.go -destination=mocks/mocks.go -package=mocks MembershipResolver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	policymetrics "taskguard/internal/policy/metrics"
	"taskguard/internal/policy/mocks"
	id "taskguard/pkg/domain"
	dErrors "taskguard/pkg/domain-errors"
)

// =============================================================================
// Policy Engine Test Suite
// =============================================================================
// Justification for unit tests: the evaluation order is the security contract
// of the service. Each rule is pinned here against a mocked membership lookup
// so a reordering shows up as a failing case rather than a silent grant.

type EngineSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	resolver *mocks.MockMembershipResolver
	metrics  *policymetrics.Metrics
	engine   *Engine

	org     id.OrganizationID
	creator id.UserID
	other   id.UserID
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.resolver = mocks.NewMockMembershipResolver(s.ctrl)
	s.metrics = policymetrics.NewWithRegistry(prometheus.NewRegistry())
	s.engine = New(s.resolver,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(s.metrics),
	)
	s.org = id.NewOrganizationID()
	s.creator = id.NewUserID()
	s.other = id.NewUserID()
}

func (s *EngineSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *EngineSuite) expectRole(user id.UserID, role id.Role) {
	s.resolver.EXPECT().RoleOf(gomock.Any(), user, s.org).Return(role, true, nil)
}

func (s *EngineSuite) expectNoMembership(user id.UserID) {
	s.resolver.EXPECT().RoleOf(gomock.Any(), user, s.org).Return(id.Role(""), false, nil)
}

// =============================================================================
// Evaluation order
// =============================================================================

func (s *EngineSuite) TestNoPrincipal() {
	d, err := s.engine.Authorize(context.Background(), id.UserID{}, s.org, ResourceTask, ActionRead, id.UserID{})
	s.Require().NoError(err)
	s.False(d.Allowed)
	s.Equal(ReasonNotAuthenticated, d.Reason)
	s.True(dErrors.HasCode(d.Err(), dErrors.CodeUnauthorized))
}

func (s *EngineSuite) TestOwnerShortCircuitsMembership() {
	// no RoleOf expectation: the owner rule wins before any lookup
	for _, action := range []Action{ActionUpdate, ActionDelete, ActionAssign, ActionUnassign} {
		d, err := s.engine.Authorize(context.Background(), s.creator, s.org, ResourceTask, action, s.creator)
		s.Require().NoError(err)
		s.True(d.Allowed, "action %s", action)
		s.Equal(ReasonOwner, d.Reason)
		s.NoError(d.Err())
	}
}

func (s *EngineSuite) TestOwnerDoesNotApplyToNonExemptActions() {
	s.expectNoMembership(s.creator)

	d, err := s.engine.Authorize(context.Background(), s.creator, s.org, ResourceTask, ActionRead, s.creator)
	s.Require().NoError(err)
	s.False(d.Allowed)
	s.Equal(ReasonNotAMember, d.Reason)
}

func (s *EngineSuite) TestNonCreatorWithoutMembership() {
	s.expectNoMembership(s.other)

	d, err := s.engine.Authorize(context.Background(), s.other, s.org, ResourceTask, ActionUpdate, s.creator)
	s.Require().NoError(err)
	s.False(d.Allowed)
	s.Equal(ReasonNotAMember, d.Reason)
	s.True(dErrors.HasCode(d.Err(), dErrors.CodeNotAMember))
}

func (s *EngineSuite) TestRoleGranted() {
	s.expectRole(s.other, id.RoleManager)

	d, err := s.engine.Authorize(context.Background(), s.other, s.org, ResourceTask, ActionAssign, s.creator)
	s.Require().NoError(err)
	s.True(d.Allowed)
	s.Equal(ReasonRoleGranted, d.Reason)
	s.Equal(id.RoleManager, d.Role)
}

func (s *EngineSuite) TestInsufficientRole() {
	s.expectRole(s.other, id.RoleViewer)

	d, err := s.engine.Authorize(context.Background(), s.other, s.org, ResourceTask, ActionCreate, id.UserID{})
	s.Require().NoError(err)
	s.False(d.Allowed)
	s.Equal(ReasonInsufficientRole, d.Reason)
	s.Equal(id.RoleViewer, d.Role)
	s.True(dErrors.HasCode(d.Err(), dErrors.CodeInsufficientRole))
}

func (s *EngineSuite) TestOrgAdminCannotDeleteSomeoneElsesTask() {
	s.expectRole(s.other, id.RoleOrgAdmin)

	denied, err := s.engine.Authorize(context.Background(), s.other, s.org, ResourceTask, ActionDelete, s.creator)
	s.Require().NoError(err)
	s.False(denied.Allowed)
	s.Equal(ReasonInsufficientRole, denied.Reason)

	allowed, err := s.engine.Authorize(context.Background(), s.creator, s.org, ResourceTask, ActionDelete, s.creator)
	s.Require().NoError(err)
	s.True(allowed.Allowed)
}

func (s *EngineSuite) TestNotAMemberThenManagerIsAllowed() {
	gomock.InOrder(
		s.resolver.EXPECT().RoleOf(gomock.Any(), s.other, s.org).Return(id.Role(""), false, nil),
		s.resolver.EXPECT().RoleOf(gomock.Any(), s.other, s.org).Return(id.RoleManager, true, nil),
	)

	first, err := s.engine.Authorize(context.Background(), s.other, s.org, ResourceTask, ActionCreate, id.UserID{})
	s.Require().NoError(err)
	s.Equal(ReasonNotAMember, first.Reason)

	second, err := s.engine.Authorize(context.Background(), s.other, s.org, ResourceTask, ActionCreate, id.UserID{})
	s.Require().NoError(err)
	s.True(second.Allowed)
}

func (s *EngineSuite) TestNoRule() {
	d, err := s.engine.Authorize(context.Background(), s.other, s.org, ResourceAudit, ActionDelete, id.UserID{})
	s.Require().NoError(err)
	s.False(d.Allowed)
	s.Equal(ReasonNoRule, d.Reason)
	s.True(dErrors.HasCode(d.Err(), dErrors.CodeForbidden))
}

func (s *EngineSuite) TestResolverFailure() {
	s.resolver.EXPECT().RoleOf(gomock.Any(), s.other, s.org).Return(id.Role(""), false, errors.New("db down"))

	_, err := s.engine.Authorize(context.Background(), s.other, s.org, ResourceTask, ActionRead, id.UserID{})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *EngineSuite) TestDecideWithExplicitRoles() {
	s.expectRole(s.other, id.RoleUser)

	d, err := s.engine.Decide(context.Background(), Request{
		Principal:      s.other,
		OrganizationID: s.org,
		Resource:       ResourceTask,
		Action:         ActionRead,
		RequiredRoles:  []id.Role{id.RoleUser},
	})
	s.Require().NoError(err)
	s.True(d.Allowed)
}

func (s *EngineSuite) TestEmptyRequiredRolesDenyMembers() {
	for _, role := range id.AllRoles() {
		s.expectRole(s.other, role)
		d, err := s.engine.Authorize(context.Background(), s.other, s.org, ResourceTask, ActionUpdate, s.creator)
		s.Require().NoError(err)
		s.False(d.Allowed, "role %s", role)
		s.Equal(ReasonInsufficientRole, d.Reason)
	}
}

func (s *EngineSuite) TestMetricsCountOutcomes() {
	s.expectRole(s.other, id.RoleViewer)
	s.expectRole(s.other, id.RoleViewer)

	_, _ = s.engine.Authorize(context.Background(), s.other, s.org, ResourceTask, ActionRead, id.UserID{})
	_, _ = s.engine.Authorize(context.Background(), s.other, s.org, ResourceTask, ActionCreate, id.UserID{})

	s.Equal(1.0, promtest.ToFloat64(s.metrics.DecisionsTotal.WithLabelValues("allow", "role_granted")))
	s.Equal(1.0, promtest.ToFloat64(s.metrics.DecisionsTotal.WithLabelValues("deny", "insufficient_role")))
}
