// Package service implements task operations. Each task is loaded before the
// policy check so owner-exempt rules can see its creator.
package service

import (
	"context"
	"errors"
	"log/slog"

	auditservice "taskguard/internal/audit/service"
	"taskguard/internal/policy"
	"taskguard/internal/policy/guard"
	"taskguard/internal/task/models"
	"taskguard/internal/task/store"
	id "taskguard/pkg/domain"
	dErrors "taskguard/pkg/domain-errors"
	audit "taskguard/pkg/platform/audit"
)

type Store interface {
	Create(ctx context.Context, task *models.Task) error
	FindByID(ctx context.Context, taskID id.TaskID) (*models.Task, error)
	FindByIDIncludingDeleted(ctx context.Context, taskID id.TaskID) (*models.Task, error)
	ListByOrganization(ctx context.Context, orgID id.OrganizationID) ([]*models.Task, error)
	ListForUser(ctx context.Context, userID id.UserID) ([]*models.Task, error)
	Execute(ctx context.Context, taskID id.TaskID, validate func(*models.Task) error, mutate func(*models.Task)) (*models.Task, error)
	AssignIfAbsent(ctx context.Context, a *models.Assignment) (*models.Assignment, bool, error)
	Unassign(ctx context.Context, taskID id.TaskID, userID id.UserID) error
	ListAssignments(ctx context.Context, taskID id.TaskID) ([]*models.Assignment, error)
}

// Memberships answers whether an assignee belongs to the task's organization.
type Memberships interface {
	RoleOf(ctx context.Context, userID id.UserID, orgID id.OrganizationID) (id.Role, bool, error)
}

type Guard interface {
	Require(ctx context.Context, c guard.Check) (policy.Decision, error)
}

type AuditRecorder interface {
	Record(ctx context.Context, e auditservice.Entry) auditservice.Result
	Query(ctx context.Context, filter audit.Filter, limit int) ([]audit.Record, error)
}

type Service struct {
	store       Store
	memberships Memberships
	guard       Guard
	audit       AuditRecorder
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

func New(st Store, memberships Memberships, g Guard, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, errors.New("task store is required")
	}
	if memberships == nil {
		return nil, errors.New("membership resolver is required")
	}
	if g == nil {
		return nil, errors.New("policy guard is required")
	}
	s := &Service{
		store:       st,
		memberships: memberships,
		guard:       g,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) require(ctx context.Context, task *models.Task, action policy.Action, auditAction audit.Action) error {
	_, err := s.guard.Require(ctx, guard.Check{
		OrganizationID: task.OrganizationID,
		Resource:       policy.ResourceTask,
		Action:         action,
		OwnerID:        task.CreatorID,
		AuditAction:    auditAction,
		EntityType:     audit.EntityTask,
		EntityID:       task.ID.String(),
	})
	return err
}

func (s *Service) load(ctx context.Context, taskID id.TaskID) (*models.Task, error) {
	task, err := s.store.FindByID(ctx, taskID)
	if err != nil {
		return nil, translate(err, "failed to load task")
	}
	return task, nil
}

func (s *Service) recordAudit(ctx context.Context, action audit.Action, taskID id.TaskID, metadata map[string]string) {
	s.recordEntry(ctx, action, audit.EntityTask, taskID.String(), metadata)
}

func (s *Service) recordEntry(ctx context.Context, action audit.Action, entityType, entityID string, metadata map[string]string) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, auditservice.Entry{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Metadata:   metadata,
	})
}

func translate(err error, msg string) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "task not found")
	case dErrors.HasCode(err, dErrors.CodeInvariantViolation):
		return dErrors.New(dErrors.CodeValidation, err.Error())
	}
	if _, ok := dErrors.As(err); ok {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}
