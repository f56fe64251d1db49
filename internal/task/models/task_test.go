package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "taskguard/pkg/domain"
	dErrors "taskguard/pkg/domain-errors"
)

func newTask(t *testing.T) *Task {
	t.Helper()
	task, err := NewTask(id.NewTaskID(), id.NewOrganizationID(), id.NewUserID(), " Ship it ", "", "", "", nil, time.Now())
	require.NoError(t, err)
	return task
}

func TestNewTask_Defaults(t *testing.T) {
	task := newTask(t)
	assert.Equal(t, "Ship it", task.Title)
	assert.Equal(t, StatusTodo, task.Status)
	assert.Equal(t, PriorityMedium, task.Priority)
	assert.Equal(t, LifecycleActive, task.Lifecycle)
	assert.Nil(t, task.DeletedAt)
}

func TestNewTask_Rejects(t *testing.T) {
	now := time.Now()
	_, err := NewTask(id.NewTaskID(), id.NewOrganizationID(), id.NewUserID(), "  ", "", "", "", nil, now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	_, err = NewTask(id.NewTaskID(), id.NewOrganizationID(), id.UserID{}, "x", "", "", "", nil, now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	_, err = NewTask(id.NewTaskID(), id.NewOrganizationID(), id.NewUserID(), "x", "", Status("blocked"), "", nil, now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func TestParseStatusAndPriority(t *testing.T) {
	s, err := ParseStatus("IN_PROGRESS")
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, s)

	_, err = ParseStatus("blocked")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	p, err := ParsePriority("")
	require.NoError(t, err)
	assert.Equal(t, PriorityMedium, p)

	_, err = ParsePriority("whenever")
	assert.Error(t, err)
}

func TestChanges(t *testing.T) {
	task := newTask(t)
	assert.Error(t, task.CanApply(Changes{}))

	due := time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)
	done := StatusDone
	c := Changes{Status: &done, DueDate: &due}
	require.NoError(t, task.CanApply(c))
	assert.Equal(t, []string{"status", "due_date"}, c.Fields())

	later := task.CreatedAt.Add(time.Hour)
	task.Apply(c, later)
	assert.Equal(t, StatusDone, task.Status)
	require.NotNil(t, task.DueDate)
	assert.Equal(t, due, *task.DueDate)
	assert.Equal(t, later, task.UpdatedAt)

	task.Apply(Changes{ClearDueDate: true, DueDate: &due}, later)
	assert.Nil(t, task.DueDate)
}

func TestSoftDelete(t *testing.T) {
	task := newTask(t)
	require.NoError(t, task.CanDelete())

	now := time.Now()
	task.ApplyDeletion(now)
	assert.True(t, task.IsDeleted())
	require.NotNil(t, task.DeletedAt)
	assert.Equal(t, now, *task.DeletedAt)

	assert.Error(t, task.CanDelete())
	title := "again"
	assert.Error(t, task.CanApply(Changes{Title: &title}))
}
