package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	auditmodels "taskguard/internal/audit/models"
	"taskguard/internal/task/models"
	"taskguard/internal/task/service"
	id "taskguard/pkg/domain"
	dErrors "taskguard/pkg/domain-errors"
	audit "taskguard/pkg/platform/audit"
	"taskguard/pkg/platform/httputil"
	"taskguard/pkg/requestcontext"
)

type Service interface {
	Create(ctx context.Context, in service.CreateInput) (*models.Task, error)
	Get(ctx context.Context, taskID id.TaskID) (*models.Task, error)
	ListByOrganization(ctx context.Context, orgID id.OrganizationID) ([]*models.Task, error)
	ListMine(ctx context.Context) ([]*models.Task, error)
	Update(ctx context.Context, taskID id.TaskID, changes models.Changes) (*models.Task, error)
	Delete(ctx context.Context, taskID id.TaskID) error
	Assign(ctx context.Context, taskID id.TaskID, userID id.UserID) (*models.Assignment, bool, error)
	Unassign(ctx context.Context, taskID id.TaskID, userID id.UserID) error
	Assignments(ctx context.Context, taskID id.TaskID) ([]*models.Assignment, error)
	AuditTrail(ctx context.Context, taskID id.TaskID, limit int) ([]audit.Record, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts task routes. All of them need authentication.
func (h *Handler) Register(r chi.Router) {
	r.Post("/tasks", h.HandleCreate)
	r.Get("/tasks", h.HandleListByOrganization)
	r.Get("/tasks/mine", h.HandleListMine)
	r.Route("/tasks/{id}", func(r chi.Router) {
		r.Get("/", h.HandleGet)
		r.Put("/", h.HandleUpdate)
		r.Delete("/", h.HandleDelete)
		r.Get("/assignments", h.HandleListAssignments)
		r.Post("/assignments", h.HandleAssign)
		r.Delete("/assignments/{userID}", h.HandleUnassign)
		r.Get("/audit", h.HandleAuditTrail)
	})
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[CreateTaskRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	task, err := h.service.Create(ctx, req.Input())
	if err != nil {
		h.fail(w, ctx, "task create failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toTaskResponse(task))
}

// HandleListByOrganization serves GET /tasks?organization_id=.
func (h *Handler) HandleListByOrganization(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID, err := id.ParseOrganizationID(r.URL.Query().Get("organization_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	tasks, err := h.service.ListByOrganization(ctx, orgID)
	if err != nil {
		h.fail(w, ctx, "task list failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toTaskListResponse(tasks))
}

func (h *Handler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tasks, err := h.service.ListMine(ctx)
	if err != nil {
		h.fail(w, ctx, "task list failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toTaskListResponse(tasks))
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	taskID, ok := taskIDParam(w, r)
	if !ok {
		return
	}
	task, err := h.service.Get(ctx, taskID)
	if err != nil {
		h.fail(w, ctx, "task get failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toTaskResponse(task))
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	taskID, ok := taskIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpdateTaskRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	task, err := h.service.Update(ctx, taskID, req.Changes())
	if err != nil {
		h.fail(w, ctx, "task update failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toTaskResponse(task))
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	taskID, ok := taskIDParam(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(ctx, taskID); err != nil {
		h.fail(w, ctx, "task delete failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleListAssignments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	taskID, ok := taskIDParam(w, r)
	if !ok {
		return
	}
	list, err := h.service.Assignments(ctx, taskID)
	if err != nil {
		h.fail(w, ctx, "assignment list failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toAssignmentListResponse(list))
}

// HandleAssign answers 201 for a new assignment and 200 when it already
// existed.
func (h *Handler) HandleAssign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	taskID, ok := taskIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[AssignRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	a, created, err := h.service.Assign(ctx, taskID, req.ParsedUserID())
	if err != nil {
		h.fail(w, ctx, "task assign failed", err)
		return
	}
	resp := toAssignmentResponse(a)
	resp.Created = &created
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	httputil.WriteJSON(w, status, resp)
}

func (h *Handler) HandleUnassign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	taskID, ok := taskIDParam(w, r)
	if !ok {
		return
	}
	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.Unassign(ctx, taskID, userID); err != nil {
		h.fail(w, ctx, "task unassign failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleAuditTrail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	taskID, ok := taskIDParam(w, r)
	if !ok {
		return
	}
	limit, err := httputil.QueryLimit(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	records, err := h.service.AuditTrail(ctx, taskID, limit)
	if err != nil {
		h.fail(w, ctx, "audit trail failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, auditmodels.ToRecordListResponse(records))
}

func taskIDParam(w http.ResponseWriter, r *http.Request) (id.TaskID, bool) {
	taskID, err := id.ParseTaskID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.TaskID{}, false
	}
	return taskID, true
}

func (h *Handler) fail(w http.ResponseWriter, ctx context.Context, msg string, err error) {
	code := dErrors.CodeOf(err)
	if code == dErrors.CodeInternal || code == dErrors.CodeUnavailable {
		h.logger.ErrorContext(ctx, msg,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	h.logger.WarnContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"reason", string(code),
	)
	httputil.WriteError(w, err)
}
