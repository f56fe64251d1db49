package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store,Memberships,Guard,AuditRecorder

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	auditservice "taskguard/internal/audit/service"
	membershipservice "taskguard/internal/membership/service"
	membershipstore "taskguard/internal/membership/store"
	"taskguard/internal/policy"
	"taskguard/internal/policy/guard"
	"taskguard/internal/task/models"
	"taskguard/internal/task/service/mocks"
	"taskguard/internal/task/store"
	id "taskguard/pkg/domain"
	dErrors "taskguard/pkg/domain-errors"
	audit "taskguard/pkg/platform/audit"
	"taskguard/pkg/platform/audit/store/memory"
	"taskguard/pkg/requestcontext"
)

// =============================================================================
// Task Service Test Suite
// =============================================================================
// Justification for unit tests: owner-exempt rules and idempotent assignment
// only mean something with the real policy engine in the loop. The suite runs
// the engine, membership resolver and audit recorder over in-memory stores.

type TaskSuite struct {
	suite.Suite

	now         time.Time
	orgID       id.OrganizationID
	tasks       *store.InMemoryStore
	memberships *membershipservice.Service
	auditStore  *memory.InMemoryStore
	service     *Service
}

func TestTaskSuite(t *testing.T) {
	suite.Run(t, new(TaskSuite))
}

func (s *TaskSuite) SetupTest() {
	s.now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	s.orgID = id.NewOrganizationID()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var err error
	s.tasks = store.NewInMemoryStore()
	s.memberships, err = membershipservice.New(membershipstore.NewInMemoryStore(), membershipservice.WithLogger(logger))
	s.Require().NoError(err)
	s.auditStore = memory.NewInMemoryStore()
	recorder := auditservice.New(s.auditStore, auditservice.WithLogger(logger))
	g, err := guard.New(policy.New(s.memberships, policy.WithLogger(logger)), recorder, logger)
	s.Require().NoError(err)

	s.service, err = New(s.tasks, s.memberships, g,
		WithLogger(logger),
		WithAuditRecorder(recorder),
	)
	s.Require().NoError(err)
}

func (s *TaskSuite) as(userID id.UserID) context.Context {
	ctx := requestcontext.WithTime(context.Background(), s.now)
	return requestcontext.WithUserID(ctx, userID)
}

func (s *TaskSuite) member(role id.Role) id.UserID {
	userID := id.NewUserID()
	_, err := s.memberships.AddMembership(context.Background(), userID, s.orgID, role)
	s.Require().NoError(err)
	return userID
}

func (s *TaskSuite) newTask(creator id.UserID) *models.Task {
	task, err := s.service.Create(s.as(creator), CreateInput{OrganizationID: s.orgID, Title: "Ship it"})
	s.Require().NoError(err)
	return task
}

func (s *TaskSuite) records(filter audit.Filter) []audit.Record {
	records, err := s.auditStore.Query(context.Background(), filter, 0)
	s.Require().NoError(err)
	return records
}

func (s *TaskSuite) TestCreate() {
	s.Run("a USER creates with defaults", func() {
		creator := s.member(id.RoleUser)
		task := s.newTask(creator)
		s.Equal(creator, task.CreatorID)
		s.Equal(models.StatusTodo, task.Status)
		s.Equal(models.PriorityMedium, task.Priority)
		s.Equal(s.now, task.CreatedAt)

		recs := s.records(audit.Filter{EntityType: audit.EntityTask, EntityID: task.ID.String()})
		s.Require().Len(recs, 1)
		s.Equal(audit.ActionTaskCreated, recs[0].Action)
		s.Equal(creator, recs[0].ActorID)
	})

	s.Run("a VIEWER is denied and the denial is audited", func() {
		viewer := s.member(id.RoleViewer)
		_, err := s.service.Create(s.as(viewer), CreateInput{OrganizationID: s.orgID, Title: "nope"})
		s.True(dErrors.HasCode(err, dErrors.CodeInsufficientRole))

		recs := s.records(audit.Filter{ActorID: viewer})
		s.Require().Len(recs, 1)
		s.Equal(audit.ActionTaskCreated, recs[0].Action)
		s.Equal("deny", recs[0].Metadata["decision"])
		s.Equal("insufficient_role", recs[0].Metadata["reason"])
	})

	s.Run("a stranger is not a member", func() {
		_, err := s.service.Create(s.as(id.NewUserID()), CreateInput{OrganizationID: s.orgID, Title: "nope"})
		s.True(dErrors.HasCode(err, dErrors.CodeNotAMember))
	})

	s.Run("blank title is a validation error", func() {
		_, err := s.service.Create(s.as(s.member(id.RoleManager)), CreateInput{OrganizationID: s.orgID, Title: " "})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *TaskSuite) TestNotAMemberThenManagerIsAllowed() {
	task := s.newTask(s.member(id.RoleUser))
	outsider := id.NewUserID()

	_, err := s.service.Get(s.as(outsider), task.ID)
	s.Require().True(dErrors.HasCode(err, dErrors.CodeNotAMember))

	_, err = s.memberships.AddMembership(context.Background(), outsider, s.orgID, id.RoleManager)
	s.Require().NoError(err)

	got, err := s.service.Get(s.as(outsider), task.ID)
	s.Require().NoError(err)
	s.Equal(task.ID, got.ID)
}

func (s *TaskSuite) TestUpdateIsOwnerExempt() {
	creator := s.member(id.RoleUser)
	admin := s.member(id.RoleOrgAdmin)
	task := s.newTask(creator)

	done := models.StatusDone
	_, err := s.service.Update(s.as(admin), task.ID, models.Changes{Status: &done})
	s.Require().True(dErrors.HasCode(err, dErrors.CodeInsufficientRole), "an admin cannot edit someone else's task")

	updated, err := s.service.Update(s.as(creator), task.ID, models.Changes{Status: &done})
	s.Require().NoError(err)
	s.Equal(models.StatusDone, updated.Status)

	recs := s.records(audit.Filter{Action: audit.ActionTaskUpdated})
	s.Require().Len(recs, 2)
	s.Equal(creator, recs[0].ActorID, "newest first")
	s.Equal("status", recs[0].Metadata["fields"])
	s.Equal("todo", recs[0].Metadata["previous_status"])
	s.Equal(admin, recs[1].ActorID)
	s.Equal("deny", recs[1].Metadata["decision"])

	_, err = s.service.Update(s.as(creator), task.ID, models.Changes{})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *TaskSuite) TestOrgAdminCannotDeleteAnotherUsersTask() {
	creator := s.member(id.RoleUser)
	admin := s.member(id.RoleOrgAdmin)
	task := s.newTask(creator)

	err := s.service.Delete(s.as(admin), task.ID)
	s.Require().True(dErrors.HasCode(err, dErrors.CodeInsufficientRole))

	s.Require().NoError(s.service.Delete(s.as(creator), task.ID))

	_, err = s.service.Get(s.as(creator), task.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	err = s.service.Delete(s.as(creator), task.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	stored, err := s.tasks.FindByIDIncludingDeleted(context.Background(), task.ID)
	s.Require().NoError(err)
	s.True(stored.IsDeleted())

	owner := s.member(id.RoleSuperAdmin)
	trail, err := s.service.AuditTrail(s.as(owner), task.ID, 10)
	s.Require().NoError(err)
	s.Require().Len(trail, 3)
	s.Equal(audit.ActionTaskDeleted, trail[0].Action)
	s.Equal(audit.ActionTaskDeleted, trail[1].Action)
	s.Equal("deny", trail[1].Metadata["decision"])
	s.Equal(audit.ActionTaskCreated, trail[2].Action)
}

func (s *TaskSuite) TestAssignIsIdempotent() {
	creator := s.member(id.RoleUser)
	assignee := s.member(id.RoleViewer)
	task := s.newTask(creator)

	first, created, err := s.service.Assign(s.as(creator), task.ID, assignee)
	s.Require().NoError(err)
	s.True(created)

	for range 4 {
		s.now = s.now.Add(time.Minute)
		again, created, err := s.service.Assign(s.as(creator), task.ID, assignee)
		s.Require().NoError(err)
		s.False(created)
		s.Equal(first.AssignedAt, again.AssignedAt)
	}

	assignments, err := s.service.Assignments(s.as(assignee), task.ID)
	s.Require().NoError(err)
	s.Require().Len(assignments, 1)

	recs := s.records(audit.Filter{Action: audit.ActionTaskAssigned})
	s.Require().Len(recs, 5)
	s.Equal("false", recs[0].Metadata["created"])
	s.Equal("true", recs[4].Metadata["created"])

	mine, err := s.service.ListMine(s.as(assignee))
	s.Require().NoError(err)
	s.Require().Len(mine, 1)
	s.Equal(task.ID, mine[0].ID)
}

func (s *TaskSuite) TestAssignRules() {
	creator := s.member(id.RoleUser)
	task := s.newTask(creator)

	s.Run("assignee must belong to the organization", func() {
		_, _, err := s.service.Assign(s.as(creator), task.ID, id.NewUserID())
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("a viewer cannot assign", func() {
		viewer := s.member(id.RoleViewer)
		_, _, err := s.service.Assign(s.as(viewer), task.ID, viewer)
		s.True(dErrors.HasCode(err, dErrors.CodeInsufficientRole))
	})

	s.Run("a manager can assign tasks they did not create", func() {
		manager := s.member(id.RoleManager)
		_, created, err := s.service.Assign(s.as(manager), task.ID, creator)
		s.Require().NoError(err)
		s.True(created)
	})

	s.Run("unassign", func() {
		s.Require().NoError(s.service.Unassign(s.as(creator), task.ID, creator))
		err := s.service.Unassign(s.as(creator), task.ID, creator)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

// failed records the single allowed-but-failed record for action, newest
// first.
func (s *TaskSuite) failed(action audit.Action) []audit.Record {
	var out []audit.Record
	for _, r := range s.records(audit.Filter{Action: action}) {
		if r.Metadata["outcome"] == "failed" {
			out = append(out, r)
		}
	}
	return out
}

func (s *TaskSuite) TestAllowedMutationsThatFailAreAudited() {
	creator := s.member(id.RoleUser)
	task := s.newTask(creator)

	s.Run("update with no changes", func() {
		_, err := s.service.Update(s.as(creator), task.ID, models.Changes{})
		s.Require().True(dErrors.HasCode(err, dErrors.CodeValidation))

		recs := s.records(audit.Filter{Action: audit.ActionTaskUpdated})
		s.Require().Len(recs, 1)
		s.Equal("allow", recs[0].Metadata["decision"])
		s.Equal("failed", recs[0].Metadata["outcome"])
		s.Equal("validation_error", recs[0].Metadata["error"])
		s.Equal(task.ID.String(), recs[0].EntityID)
	})

	s.Run("assign to a non-member", func() {
		stranger := id.NewUserID()
		_, _, err := s.service.Assign(s.as(creator), task.ID, stranger)
		s.Require().True(dErrors.HasCode(err, dErrors.CodeValidation))

		recs := s.records(audit.Filter{Action: audit.ActionTaskAssigned})
		s.Require().Len(recs, 1)
		s.Equal("failed", recs[0].Metadata["outcome"])
		s.Equal(stranger.String(), recs[0].Metadata["user_id"])
		s.Empty(recs[0].Metadata["created"])
	})

	s.Run("unassign a user who is not assigned", func() {
		err := s.service.Unassign(s.as(creator), task.ID, creator)
		s.Require().True(dErrors.HasCode(err, dErrors.CodeNotFound))
		recs := s.failed(audit.ActionTaskUnassigned)
		s.Require().Len(recs, 1)
		s.Equal("not_found", recs[0].Metadata["error"])
	})

	s.Run("create with a blank title lands on the organization trail", func() {
		_, err := s.service.Create(s.as(creator), CreateInput{OrganizationID: s.orgID, Title: "  "})
		s.Require().True(dErrors.HasCode(err, dErrors.CodeValidation))

		recs := s.failed(audit.ActionTaskCreated)
		s.Require().Len(recs, 1)
		s.Equal(audit.EntityOrganization, recs[0].EntityType)
		s.Equal(s.orgID.String(), recs[0].EntityID)
		s.Equal(creator, recs[0].ActorID)
	})

	s.Run("successful calls carry no outcome tag", func() {
		for _, r := range s.records(audit.Filter{EntityType: audit.EntityTask, EntityID: task.ID.String()}) {
			if r.Action == audit.ActionTaskCreated {
				s.Empty(r.Metadata["outcome"])
				s.Equal("Ship it", r.Metadata["title"])
			}
		}
	})
}

func (s *TaskSuite) TestListByOrganization() {
	creator := s.member(id.RoleUser)
	s.newTask(creator)
	s.now = s.now.Add(time.Minute)
	newest := s.newTask(creator)

	tasks, err := s.service.ListByOrganization(s.as(s.member(id.RoleViewer)), s.orgID)
	s.Require().NoError(err)
	s.Require().Len(tasks, 2)
	s.Equal(newest.ID, tasks[0].ID)

	_, err = s.service.ListByOrganization(s.as(id.NewUserID()), s.orgID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotAMember))

	_, err = s.service.ListMine(context.Background())
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

// =============================================================================
// Dependency failures (mocked)
// =============================================================================

func TestNew_RequiresDependencies(t *testing.T) {
	ctrl := gomock.NewController(t)
	_, err := New(nil, mocks.NewMockMemberships(ctrl), mocks.NewMockGuard(ctrl))
	assert.Error(t, err)
	_, err = New(mocks.NewMockStore(ctrl), nil, mocks.NewMockGuard(ctrl))
	assert.Error(t, err)
	_, err = New(mocks.NewMockStore(ctrl), mocks.NewMockMemberships(ctrl), nil)
	assert.Error(t, err)
}

func TestAssign_MembershipLookupFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStore(ctrl)
	memberships := mocks.NewMockMemberships(ctrl)
	g := mocks.NewMockGuard(ctrl)
	svc, err := New(st, memberships, g)
	require.NoError(t, err)

	task := &models.Task{ID: id.NewTaskID(), OrganizationID: id.NewOrganizationID(), CreatorID: id.NewUserID()}
	assignee := id.NewUserID()
	st.EXPECT().FindByID(gomock.Any(), task.ID).Return(task, nil)
	g.EXPECT().Require(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, c guard.Check) (policy.Decision, error) {
			assert.Equal(t, policy.ResourceTask, c.Resource)
			assert.Equal(t, policy.ActionAssign, c.Action)
			assert.Equal(t, task.CreatorID, c.OwnerID)
			assert.Equal(t, audit.ActionTaskAssigned, c.AuditAction)
			return policy.Decision{Allowed: true}, nil
		})
	memberships.EXPECT().RoleOf(gomock.Any(), assignee, task.OrganizationID).Return(id.Role(""), false, errors.New("db down"))

	_, _, err = svc.Assign(context.Background(), task.ID, assignee)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
}

func TestCreate_StoreFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStore(ctrl)
	g := mocks.NewMockGuard(ctrl)
	recorder := mocks.NewMockAuditRecorder(ctrl)
	svc, err := New(st, mocks.NewMockMemberships(ctrl), g, WithAuditRecorder(recorder))
	require.NoError(t, err)

	orgID := id.NewOrganizationID()
	g.EXPECT().Require(gomock.Any(), gomock.Any()).Return(policy.Decision{Allowed: true}, nil)
	st.EXPECT().Create(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))
	recorder.EXPECT().Record(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, e auditservice.Entry) auditservice.Result {
			assert.Equal(t, audit.ActionTaskCreated, e.Action)
			assert.Equal(t, audit.EntityOrganization, e.EntityType)
			assert.Equal(t, orgID.String(), e.EntityID)
			assert.Equal(t, "failed", e.Metadata["outcome"])
			assert.Equal(t, "internal_error", e.Metadata["error"])
			return auditservice.Result{Persisted: true}
		})

	ctx := requestcontext.WithUserID(context.Background(), id.NewUserID())
	_, err = svc.Create(ctx, CreateInput{OrganizationID: orgID, Title: "x"})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
}

func TestGet_MissingTaskSkipsPolicy(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStore(ctrl)
	svc, err := New(st, mocks.NewMockMemberships(ctrl), mocks.NewMockGuard(ctrl))
	require.NoError(t, err)

	st.EXPECT().FindByID(gomock.Any(), gomock.Any()).Return(nil, store.ErrNotFound)
	_, err = svc.Get(context.Background(), id.NewTaskID())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}
