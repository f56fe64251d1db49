package handler

import (
	"time"

	"taskguard/internal/task/models"
)

type TaskResponse struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organization_id"`
	CreatorID      string     `json:"creator_id"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Status         string     `json:"status"`
	Priority       string     `json:"priority"`
	DueDate        *time.Time `json:"due_date,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

type TaskListResponse struct {
	Tasks []*TaskResponse `json:"tasks"`
	Count int             `json:"count"`
}

type AssignmentResponse struct {
	TaskID     string    `json:"task_id"`
	UserID     string    `json:"user_id"`
	AssignedAt time.Time `json:"assigned_at"`
	Created    *bool     `json:"created,omitempty"`
}

type AssignmentListResponse struct {
	Assignments []*AssignmentResponse `json:"assignments"`
	Count       int                   `json:"count"`
}

func toTaskResponse(t *models.Task) *TaskResponse {
	return &TaskResponse{
		ID:             t.ID.String(),
		OrganizationID: t.OrganizationID.String(),
		CreatorID:      t.CreatorID.String(),
		Title:          t.Title,
		Description:    t.Description,
		Status:         string(t.Status),
		Priority:       string(t.Priority),
		DueDate:        t.DueDate,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
}

func toTaskListResponse(tasks []*models.Task) *TaskListResponse {
	out := make([]*TaskResponse, len(tasks))
	for i, t := range tasks {
		out[i] = toTaskResponse(t)
	}
	return &TaskListResponse{Tasks: out, Count: len(out)}
}

func toAssignmentResponse(a *models.Assignment) *AssignmentResponse {
	return &AssignmentResponse{
		TaskID:     a.TaskID.String(),
		UserID:     a.UserID.String(),
		AssignedAt: a.AssignedAt,
	}
}

func toAssignmentListResponse(list []*models.Assignment) *AssignmentListResponse {
	out := make([]*AssignmentResponse, len(list))
	for i, a := range list {
		out[i] = toAssignmentResponse(a)
	}
	return &AssignmentListResponse{Assignments: out, Count: len(out)}
}
