package handler

import (
	"strings"
	"time"

	"taskguard/internal/task/models"
	"taskguard/internal/task/service"
	id "taskguard/pkg/domain"
	dErrors "taskguard/pkg/domain-errors"
)

type CreateTaskRequest struct {
	OrganizationID string     `json:"organization_id"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	Status         string     `json:"status,omitempty"`
	Priority       string     `json:"priority,omitempty"`
	DueDate        *time.Time `json:"due_date,omitempty"`

	input service.CreateInput
}

// Validate implements httputil.Validatable.
func (r *CreateTaskRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	orgID, err := id.ParseOrganizationID(strings.TrimSpace(r.OrganizationID))
	if err != nil {
		return err
	}
	r.Title = strings.TrimSpace(r.Title)
	if r.Title == "" {
		return dErrors.New(dErrors.CodeValidation, "title is required")
	}
	if len(r.Title) > 4*models.MaxTitleLength || len(r.Description) > 4*models.MaxDescriptionLength {
		return dErrors.New(dErrors.CodeValidation, "request fields are too long")
	}
	status, err := models.ParseStatus(r.Status)
	if err != nil {
		return err
	}
	priority, err := models.ParsePriority(r.Priority)
	if err != nil {
		return err
	}
	r.input = service.CreateInput{
		OrganizationID: orgID,
		Title:          r.Title,
		Description:    r.Description,
		Status:         status,
		Priority:       priority,
		DueDate:        r.DueDate,
	}
	return nil
}

func (r *CreateTaskRequest) Input() service.CreateInput { return r.input }

// UpdateTaskRequest is a partial update. A JSON null due_date is
// indistinguishable from an omitted one, so clearing uses clear_due_date.
type UpdateTaskRequest struct {
	Title        *string    `json:"title,omitempty"`
	Description  *string    `json:"description,omitempty"`
	Status       *string    `json:"status,omitempty"`
	Priority     *string    `json:"priority,omitempty"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	ClearDueDate bool       `json:"clear_due_date,omitempty"`

	changes models.Changes
}

func (r *UpdateTaskRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	c := models.Changes{
		Title:        r.Title,
		Description:  r.Description,
		DueDate:      r.DueDate,
		ClearDueDate: r.ClearDueDate,
	}
	if r.Status != nil {
		if strings.TrimSpace(*r.Status) == "" {
			return dErrors.New(dErrors.CodeValidation, "status cannot be empty")
		}
		status, err := models.ParseStatus(*r.Status)
		if err != nil {
			return err
		}
		c.Status = &status
	}
	if r.Priority != nil {
		if strings.TrimSpace(*r.Priority) == "" {
			return dErrors.New(dErrors.CodeValidation, "priority cannot be empty")
		}
		priority, err := models.ParsePriority(*r.Priority)
		if err != nil {
			return err
		}
		c.Priority = &priority
	}
	if c.IsEmpty() {
		return dErrors.New(dErrors.CodeValidation, "at least one field is required")
	}
	r.changes = c
	return nil
}

func (r *UpdateTaskRequest) Changes() models.Changes { return r.changes }

type AssignRequest struct {
	UserID string `json:"user_id"`

	parsedUserID id.UserID
}

func (r *AssignRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	userID, err := id.ParseUserID(strings.TrimSpace(r.UserID))
	if err != nil {
		return err
	}
	r.parsedUserID = userID
	return nil
}

func (r *AssignRequest) ParsedUserID() id.UserID { return r.parsedUserID }
