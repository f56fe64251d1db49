package service

import (
	"context"
	"errors"
	"strconv"

	auditservice "taskguard/internal/audit/service"
	"taskguard/internal/policy"
	"taskguard/internal/task/models"
	"taskguard/internal/task/store"
	id "taskguard/pkg/domain"
	dErrors "taskguard/pkg/domain-errors"
	audit "taskguard/pkg/platform/audit"
	"taskguard/pkg/requestcontext"
)

// Assign links userID to the task. Repeating it returns the existing
// assignment with created=false and stores nothing new.
func (s *Service) Assign(ctx context.Context, taskID id.TaskID, userID id.UserID) (a *models.Assignment, created bool, err error) {
	task, err := s.load(ctx, taskID)
	if err != nil {
		return nil, false, err
	}
	if err := s.require(ctx, task, policy.ActionAssign, audit.ActionTaskAssigned); err != nil {
		return nil, false, err
	}
	md := map[string]string{"user_id": userID.String()}
	defer func() {
		s.recordAudit(ctx, audit.ActionTaskAssigned, taskID, auditservice.WithOutcome(md, err))
	}()

	_, member, err := s.memberships.RoleOf(ctx, userID, task.OrganizationID)
	if err != nil {
		return nil, false, translate(err, "failed to resolve assignee membership")
	}
	if !member {
		return nil, false, dErrors.New(dErrors.CodeValidation, "assignee is not a member of the organization")
	}

	a, created, err = s.store.AssignIfAbsent(ctx, &models.Assignment{
		TaskID:     taskID,
		UserID:     userID,
		AssignedAt: requestcontext.Now(ctx),
	})
	if err != nil {
		return nil, false, translate(err, "failed to assign task")
	}
	md["created"] = strconv.FormatBool(created)
	return a, created, nil
}

func (s *Service) Unassign(ctx context.Context, taskID id.TaskID, userID id.UserID) (err error) {
	task, err := s.load(ctx, taskID)
	if err != nil {
		return err
	}
	if err := s.require(ctx, task, policy.ActionUnassign, audit.ActionTaskUnassigned); err != nil {
		return err
	}
	defer func() {
		s.recordAudit(ctx, audit.ActionTaskUnassigned, taskID,
			auditservice.WithOutcome(map[string]string{"user_id": userID.String()}, err))
	}()

	if err := s.store.Unassign(ctx, taskID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "assignment not found")
		}
		return translate(err, "failed to unassign task")
	}
	return nil
}

// Assignments lists the task's assignees, oldest first.
func (s *Service) Assignments(ctx context.Context, taskID id.TaskID) ([]*models.Assignment, error) {
	task, err := s.load(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := s.require(ctx, task, policy.ActionRead, ""); err != nil {
		return nil, err
	}
	out, err := s.store.ListAssignments(ctx, taskID)
	if err != nil {
		return nil, translate(err, "failed to list assignments")
	}
	return out, nil
}
