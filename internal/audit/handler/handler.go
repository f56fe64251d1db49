package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"taskguard/internal/audit/models"
	id "taskguard/pkg/domain"
	dErrors "taskguard/pkg/domain-errors"
	audit "taskguard/pkg/platform/audit"
	"taskguard/pkg/platform/httputil"
	"taskguard/pkg/requestcontext"
)

// Service is the read side of the audit recorder.
type Service interface {
	Query(ctx context.Context, filter audit.Filter, limit int) ([]audit.Record, error)
	VerifyChain(ctx context.Context) (audit.ChainReport, error)
}

// Handler serves the caller's own trail and the admin audit endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts routes for authenticated principals.
func (h *Handler) Register(r chi.Router) {
	r.Get("/me/audit", h.HandleListMine)
}

// RegisterAdmin mounts routes guarded by the admin token.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/admin/audit", h.HandleQuery)
	r.Get("/admin/audit/verify", h.HandleVerify)
}

func (h *Handler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	limit, err := httputil.QueryLimit(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.writeRecords(w, r, audit.Filter{ActorID: userID}, limit)
}

// HandleQuery filters by actor_id, entity_type with entity_id, and action.
func (h *Handler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	limit, err := httputil.QueryLimit(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.writeRecords(w, r, filter, limit)
}

func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	report, err := h.service.VerifyChain(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to verify audit chain",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) writeRecords(w http.ResponseWriter, r *http.Request, filter audit.Filter, limit int) {
	ctx := r.Context()
	records, err := h.service.Query(ctx, filter, limit)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInternal) {
			h.logger.ErrorContext(ctx, "failed to query audit records",
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.ToRecordListResponse(records))
}

func filterFromQuery(r *http.Request) (audit.Filter, error) {
	q := r.URL.Query()
	filter := audit.Filter{
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
		Action:     audit.Action(q.Get("action")),
	}
	if raw := q.Get("actor_id"); raw != "" {
		actor, err := id.ParseUserID(raw)
		if err != nil {
			return audit.Filter{}, dErrors.New(dErrors.CodeInvalidInput, "actor_id must be a UUID")
		}
		filter.ActorID = actor
	}
	return filter, nil
}
