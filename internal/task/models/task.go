package models

import (
	"strings"
	"time"
	"unicode/utf8"

	id "taskguard/pkg/domain"
	dErrors "taskguard/pkg/domain-errors"
)

const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 5000
)

type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// ParseStatus accepts any case. Empty input defaults to todo.
func ParseStatus(raw string) (Status, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return StatusTodo, nil
	}
	s := Status(strings.ToLower(raw))
	if !s.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "status must be one of todo, in_progress, done")
	}
	return s, nil
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// ParsePriority accepts any case. Empty input defaults to medium.
func ParsePriority(raw string) (Priority, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return PriorityMedium, nil
	}
	p := Priority(strings.ToLower(raw))
	if !p.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "priority must be one of low, medium, high, urgent")
	}
	return p, nil
}

// Lifecycle is active until a soft delete moves it to deleted. There is no
// way back.
type Lifecycle string

const (
	LifecycleActive  Lifecycle = "active"
	LifecycleDeleted Lifecycle = "deleted"
)

// Task is a unit of work scoped to one organization.
//
// Invariants:
//   - CreatorID never changes; it is the only basis for owner-exempt rules
//   - a deleted task has DeletedAt set and is hidden from normal reads
type Task struct {
	ID             id.TaskID         `json:"id"`
	OrganizationID id.OrganizationID `json:"organization_id"`
	CreatorID      id.UserID         `json:"creator_id"`
	Title          string            `json:"title"`
	Description    string            `json:"description"`
	Status         Status            `json:"status"`
	Priority       Priority          `json:"priority"`
	DueDate        *time.Time        `json:"due_date,omitempty"`
	Lifecycle      Lifecycle         `json:"lifecycle"`
	DeletedAt      *time.Time        `json:"deleted_at,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// NewTask builds an active task. Zero status and priority take their
// defaults.
func NewTask(taskID id.TaskID, orgID id.OrganizationID, creatorID id.UserID, title, description string, status Status, priority Priority, dueDate *time.Time, now time.Time) (*Task, error) {
	if taskID.IsNil() || orgID.IsNil() || creatorID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "task, organization and creator ids are required")
	}
	title, err := validTitle(title)
	if err != nil {
		return nil, err
	}
	description, err = validDescription(description)
	if err != nil {
		return nil, err
	}
	if status == "" {
		status = StatusTodo
	}
	if priority == "" {
		priority = PriorityMedium
	}
	if !status.IsValid() || !priority.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invalid status or priority")
	}
	return &Task{
		ID:             taskID,
		OrganizationID: orgID,
		CreatorID:      creatorID,
		Title:          title,
		Description:    description,
		Status:         status,
		Priority:       priority,
		DueDate:        dueDate,
		Lifecycle:      LifecycleActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func (t *Task) IsDeleted() bool {
	return t.Lifecycle == LifecycleDeleted
}

// Changes is a partial update. ClearDueDate removes the due date and wins
// over DueDate.
type Changes struct {
	Title        *string
	Description  *string
	Status       *Status
	Priority     *Priority
	DueDate      *time.Time
	ClearDueDate bool
}

func (c Changes) IsEmpty() bool {
	return c.Title == nil && c.Description == nil && c.Status == nil &&
		c.Priority == nil && c.DueDate == nil && !c.ClearDueDate
}

// Fields names the fields c touches, in a fixed order.
func (c Changes) Fields() []string {
	var out []string
	if c.Title != nil {
		out = append(out, "title")
	}
	if c.Description != nil {
		out = append(out, "description")
	}
	if c.Status != nil {
		out = append(out, "status")
	}
	if c.Priority != nil {
		out = append(out, "priority")
	}
	if c.DueDate != nil || c.ClearDueDate {
		out = append(out, "due_date")
	}
	return out
}

func (t *Task) CanApply(c Changes) error {
	if t.IsDeleted() {
		return dErrors.New(dErrors.CodeInvariantViolation, "task is deleted")
	}
	if c.IsEmpty() {
		return dErrors.New(dErrors.CodeInvariantViolation, "no changes")
	}
	if c.Title != nil {
		if _, err := validTitle(*c.Title); err != nil {
			return err
		}
	}
	if c.Description != nil {
		if _, err := validDescription(*c.Description); err != nil {
			return err
		}
	}
	if c.Status != nil && !c.Status.IsValid() {
		return dErrors.New(dErrors.CodeInvariantViolation, "invalid status")
	}
	if c.Priority != nil && !c.Priority.IsValid() {
		return dErrors.New(dErrors.CodeInvariantViolation, "invalid priority")
	}
	return nil
}

// Apply assumes CanApply passed.
func (t *Task) Apply(c Changes, now time.Time) {
	if c.Title != nil {
		t.Title = strings.TrimSpace(*c.Title)
	}
	if c.Description != nil {
		t.Description = strings.TrimSpace(*c.Description)
	}
	if c.Status != nil {
		t.Status = *c.Status
	}
	if c.Priority != nil {
		t.Priority = *c.Priority
	}
	switch {
	case c.ClearDueDate:
		t.DueDate = nil
	case c.DueDate != nil:
		due := *c.DueDate
		t.DueDate = &due
	}
	t.UpdatedAt = now
}

// CanDelete checks the active → deleted transition.
func (t *Task) CanDelete() error {
	if t.IsDeleted() {
		return dErrors.New(dErrors.CodeInvariantViolation, "task is already deleted")
	}
	return nil
}

func (t *Task) ApplyDeletion(now time.Time) {
	t.Lifecycle = LifecycleDeleted
	deletedAt := now
	t.DeletedAt = &deletedAt
	t.UpdatedAt = now
}

// Assignment links a task to a user working on it. At most one exists per
// (TaskID, UserID).
type Assignment struct {
	TaskID     id.TaskID `json:"task_id"`
	UserID     id.UserID `json:"user_id"`
	AssignedAt time.Time `json:"assigned_at"`
}

func validTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", dErrors.New(dErrors.CodeInvariantViolation, "title is required")
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return "", dErrors.New(dErrors.CodeInvariantViolation, "title must be at most 200 characters")
	}
	return title, nil
}

func validDescription(description string) (string, error) {
	description = strings.TrimSpace(description)
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		return "", dErrors.New(dErrors.CodeInvariantViolation, "description must be at most 5000 characters")
	}
	return description, nil
}
