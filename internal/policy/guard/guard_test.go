package guard

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auditservice "taskguard/internal/audit/service"
	membershipservice "taskguard/internal/membership/service"
	membershipstore "taskguard/internal/membership/store"
	"taskguard/internal/policy"
	id "taskguard/pkg/domain"
	dErrors "taskguard/pkg/domain-errors"
	audit "taskguard/pkg/platform/audit"
	"taskguard/pkg/platform/audit/store/memory"
	"taskguard/pkg/requestcontext"
)

type fixture struct {
	guard       *Guard
	memberships *membershipservice.Service
	auditStore  *memory.InMemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	memberships, err := membershipservice.New(membershipstore.NewInMemoryStore())
	require.NoError(t, err)
	auditStore := memory.NewInMemoryStore()

	g, err := New(policy.New(memberships), auditservice.New(auditStore, auditservice.WithLogger(logger)), logger)
	require.NoError(t, err)
	return &fixture{guard: g, memberships: memberships, auditStore: auditStore}
}

func TestRequire_AllowIsNotAudited(t *testing.T) {
	f := newFixture(t)
	user, org := id.NewUserID(), id.NewOrganizationID()
	_, err := f.memberships.AddMembership(context.Background(), user, org, id.RoleManager)
	require.NoError(t, err)

	ctx := requestcontext.WithUserID(context.Background(), user)
	d, err := f.guard.Require(ctx, Check{
		OrganizationID: org,
		Resource:       policy.ResourceTask,
		Action:         policy.ActionAssign,
		AuditAction:    audit.ActionTaskAssigned,
		EntityType:     audit.EntityTask,
	})
	require.NoError(t, err)
	assert.Equal(t, policy.ReasonRoleGranted, d.Reason)

	records, err := f.auditStore.Query(context.Background(), audit.Filter{}, 0)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRequire_DenyIsAuditedWithReason(t *testing.T) {
	f := newFixture(t)
	user, org := id.NewUserID(), id.NewOrganizationID()
	_, err := f.memberships.AddMembership(context.Background(), user, org, id.RoleViewer)
	require.NoError(t, err)
	taskID := id.NewTaskID().String()

	ctx := requestcontext.WithUserID(context.Background(), user)
	_, err = f.guard.Require(ctx, Check{
		OrganizationID: org,
		Resource:       policy.ResourceTask,
		Action:         policy.ActionAssign,
		AuditAction:    audit.ActionTaskAssigned,
		EntityType:     audit.EntityTask,
		EntityID:       taskID,
	})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInsufficientRole))

	records, err := f.auditStore.Query(context.Background(), audit.Filter{EntityType: audit.EntityTask, EntityID: taskID}, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, audit.ActionTaskAssigned, rec.Action)
	assert.Equal(t, user, rec.ActorID)
	assert.Equal(t, "deny", rec.Metadata["decision"])
	assert.Equal(t, "insufficient_role", rec.Metadata["reason"])
	assert.Equal(t, "VIEWER", rec.Metadata["role"])
}

func TestRequire_ReadDenyFallsBackToAccessDenied(t *testing.T) {
	f := newFixture(t)
	org := id.NewOrganizationID()

	ctx := requestcontext.WithUserID(context.Background(), id.NewUserID())
	_, err := f.guard.Require(ctx, Check{
		OrganizationID: org,
		Resource:       policy.ResourceOrganization,
		Action:         policy.ActionRead,
		EntityType:     audit.EntityOrganization,
		EntityID:       org.String(),
	})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotAMember))

	records, err := f.auditStore.Query(context.Background(), audit.Filter{Action: audit.ActionAccessDenied}, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "not_a_member", records[0].Metadata["reason"])
}

func TestRequire_Unauthenticated(t *testing.T) {
	f := newFixture(t)
	_, err := f.guard.Require(context.Background(), Check{
		OrganizationID: id.NewOrganizationID(),
		Resource:       policy.ResourceTask,
		Action:         policy.ActionCreate,
		AuditAction:    audit.ActionTaskCreated,
		EntityType:     audit.EntityTask,
	})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestNew_RequiresAuthorizer(t *testing.T) {
	_, err := New(nil, nil, nil)
	assert.Error(t, err)
}
