package service

import (
	"context"
	"strings"
	"time"

	auditservice "taskguard/internal/audit/service"
	"taskguard/internal/policy"
	"taskguard/internal/policy/guard"
	"taskguard/internal/task/models"
	"taskguard/pkg/attrs"
	id "taskguard/pkg/domain"
	dErrors "taskguard/pkg/domain-errors"
	audit "taskguard/pkg/platform/audit"
	"taskguard/pkg/requestcontext"
)

// CreateInput carries a new task. Empty Status and Priority take their
// defaults.
type CreateInput struct {
	OrganizationID id.OrganizationID
	Title          string
	Description    string
	Status         models.Status
	Priority       models.Priority
	DueDate        *time.Time
}

func (s *Service) Create(ctx context.Context, in CreateInput) (task *models.Task, err error) {
	_, err = s.guard.Require(ctx, guard.Check{
		OrganizationID: in.OrganizationID,
		Resource:       policy.ResourceTask,
		Action:         policy.ActionCreate,
		AuditAction:    audit.ActionTaskCreated,
		EntityType:     audit.EntityOrganization,
		EntityID:       in.OrganizationID.String(),
	})
	if err != nil {
		return nil, err
	}
	md := map[string]string{"organization_id": in.OrganizationID.String()}
	defer func() {
		if err != nil {
			// no task exists, so the failed attempt goes on the organization's trail
			s.recordEntry(ctx, audit.ActionTaskCreated, audit.EntityOrganization, in.OrganizationID.String(),
				auditservice.WithOutcome(md, err))
			return
		}
		s.recordAudit(ctx, audit.ActionTaskCreated, task.ID, md)
	}()

	creator := requestcontext.UserID(ctx)
	task, err = models.NewTask(id.NewTaskID(), in.OrganizationID, creator,
		in.Title, in.Description, in.Status, in.Priority, in.DueDate, requestcontext.Now(ctx))
	if err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, err.Error())
	}
	if err := s.store.Create(ctx, task); err != nil {
		return nil, translate(err, "failed to create task")
	}

	s.logger.InfoContext(ctx, "task created", attrs.FromContext(ctx,
		"task_id", task.ID.String(),
		"organization_id", task.OrganizationID.String(),
	)...)
	md["title"] = task.Title
	md["status"] = string(task.Status)
	md["priority"] = string(task.Priority)
	return task, nil
}

// Get returns an active task. Deleted tasks are not found.
func (s *Service) Get(ctx context.Context, taskID id.TaskID) (*models.Task, error) {
	task, err := s.load(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := s.require(ctx, task, policy.ActionRead, ""); err != nil {
		return nil, err
	}
	return task, nil
}

func (s *Service) ListByOrganization(ctx context.Context, orgID id.OrganizationID) ([]*models.Task, error) {
	_, err := s.guard.Require(ctx, guard.Check{
		OrganizationID: orgID,
		Resource:       policy.ResourceTask,
		Action:         policy.ActionRead,
		EntityType:     audit.EntityOrganization,
		EntityID:       orgID.String(),
	})
	if err != nil {
		return nil, err
	}
	tasks, err := s.store.ListByOrganization(ctx, orgID)
	if err != nil {
		return nil, translate(err, "failed to list tasks")
	}
	return tasks, nil
}

// ListMine returns active tasks the caller created or is assigned to, across
// organizations.
func (s *Service) ListMine(ctx context.Context) ([]*models.Task, error) {
	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	tasks, err := s.store.ListForUser(ctx, userID)
	if err != nil {
		return nil, translate(err, "failed to list tasks")
	}
	return tasks, nil
}

// Update applies partial changes. Only the creator may update a task.
func (s *Service) Update(ctx context.Context, taskID id.TaskID, changes models.Changes) (updated *models.Task, err error) {
	task, err := s.load(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := s.require(ctx, task, policy.ActionUpdate, audit.ActionTaskUpdated); err != nil {
		return nil, err
	}
	md := map[string]string{"fields": strings.Join(changes.Fields(), ",")}
	defer func() {
		s.recordAudit(ctx, audit.ActionTaskUpdated, taskID, auditservice.WithOutcome(md, err))
	}()

	updated, err = s.store.Execute(ctx, taskID,
		func(t *models.Task) error { return t.CanApply(changes) },
		func(t *models.Task) { t.Apply(changes, requestcontext.Now(ctx)) },
	)
	if err != nil {
		return nil, translate(err, "failed to update task")
	}

	if changes.Status != nil && task.Status != updated.Status {
		md["previous_status"] = string(task.Status)
		md["status"] = string(updated.Status)
	}
	return updated, nil
}

// Delete soft-deletes the task. The row stays readable for audit correlation.
func (s *Service) Delete(ctx context.Context, taskID id.TaskID) (err error) {
	task, err := s.load(ctx, taskID)
	if err != nil {
		return err
	}
	if err := s.require(ctx, task, policy.ActionDelete, audit.ActionTaskDeleted); err != nil {
		return err
	}
	md := map[string]string{
		"organization_id": task.OrganizationID.String(),
		"title":           task.Title,
	}
	defer func() {
		s.recordAudit(ctx, audit.ActionTaskDeleted, taskID, auditservice.WithOutcome(md, err))
	}()

	_, err = s.store.Execute(ctx, taskID,
		func(t *models.Task) error { return t.CanDelete() },
		func(t *models.Task) { t.ApplyDeletion(requestcontext.Now(ctx)) },
	)
	if err != nil {
		return translate(err, "failed to delete task")
	}

	s.logger.InfoContext(ctx, "task deleted", attrs.FromContext(ctx,
		"task_id", taskID.String(),
		"organization_id", task.OrganizationID.String(),
	)...)
	return nil
}

// AuditTrail returns the task's records, newest first. It works for deleted
// tasks too.
func (s *Service) AuditTrail(ctx context.Context, taskID id.TaskID, limit int) ([]audit.Record, error) {
	task, err := s.store.FindByIDIncludingDeleted(ctx, taskID)
	if err != nil {
		return nil, translate(err, "failed to load task")
	}
	_, err = s.guard.Require(ctx, guard.Check{
		OrganizationID: task.OrganizationID,
		Resource:       policy.ResourceAudit,
		Action:         policy.ActionRead,
		EntityType:     audit.EntityTask,
		EntityID:       taskID.String(),
	})
	if err != nil {
		return nil, err
	}
	if s.audit == nil {
		return []audit.Record{}, nil
	}
	return s.audit.Query(ctx, audit.Filter{
		EntityType: audit.EntityTask,
		EntityID:   taskID.String(),
	}, limit)
}
