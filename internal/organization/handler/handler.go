package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	auditmodels "taskguard/internal/audit/models"
	membershipmodels "taskguard/internal/membership/models"
	"taskguard/internal/organization/models"
	id "taskguard/pkg/domain"
	dErrors "taskguard/pkg/domain-errors"
	audit "taskguard/pkg/platform/audit"
	"taskguard/pkg/platform/httputil"
	"taskguard/pkg/requestcontext"
)

type Service interface {
	Create(ctx context.Context, name, description string) (*models.WithRole, error)
	Get(ctx context.Context, orgID id.OrganizationID) (*models.WithRole, error)
	ListForUser(ctx context.Context) ([]*models.WithRole, error)
	Update(ctx context.Context, orgID id.OrganizationID, changes models.Changes) (*models.Organization, error)
	Delete(ctx context.Context, orgID id.OrganizationID) error
	AddMember(ctx context.Context, orgID id.OrganizationID, userID id.UserID, role id.Role) (*membershipmodels.Membership, error)
	RemoveMember(ctx context.Context, orgID id.OrganizationID, userID id.UserID) error
	ChangeRole(ctx context.Context, orgID id.OrganizationID, userID id.UserID, role id.Role) (*membershipmodels.Membership, error)
	ListMembers(ctx context.Context, orgID id.OrganizationID) ([]*models.Member, error)
	AuditTrail(ctx context.Context, orgID id.OrganizationID, limit int) ([]audit.Record, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts organization routes. All of them need authentication.
func (h *Handler) Register(r chi.Router) {
	r.Post("/organizations", h.HandleCreate)
	r.Get("/organizations", h.HandleList)
	r.Route("/organizations/{id}", func(r chi.Router) {
		r.Get("/", h.HandleGet)
		r.Put("/", h.HandleUpdate)
		r.Delete("/", h.HandleDelete)
		r.Get("/members", h.HandleListMembers)
		r.Post("/members", h.HandleAddMember)
		r.Put("/members/{userID}", h.HandleChangeRole)
		r.Delete("/members/{userID}", h.HandleRemoveMember)
		r.Get("/audit", h.HandleAuditTrail)
	})
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CreateOrganizationRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	org, err := h.service.Create(ctx, req.Name, req.Description)
	if err != nil {
		h.fail(w, ctx, "organization create failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toOrganizationResponse(&org.Organization, org.Role.String()))
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgs, err := h.service.ListForUser(ctx)
	if err != nil {
		h.fail(w, ctx, "organization list failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toOrganizationListResponse(orgs))
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID, ok := orgIDParam(w, r)
	if !ok {
		return
	}
	org, err := h.service.Get(ctx, orgID)
	if err != nil {
		h.fail(w, ctx, "organization get failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toOrganizationResponse(&org.Organization, org.Role.String()))
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID, ok := orgIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpdateOrganizationRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	org, err := h.service.Update(ctx, orgID, req.Changes())
	if err != nil {
		h.fail(w, ctx, "organization update failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toOrganizationResponse(org, ""))
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID, ok := orgIDParam(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(ctx, orgID); err != nil {
		h.fail(w, ctx, "organization delete failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleListMembers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID, ok := orgIDParam(w, r)
	if !ok {
		return
	}
	members, err := h.service.ListMembers(ctx, orgID)
	if err != nil {
		h.fail(w, ctx, "member list failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toMemberListResponse(members))
}

func (h *Handler) HandleAddMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID, ok := orgIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[AddMemberRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	m, err := h.service.AddMember(ctx, orgID, req.ParsedUserID(), req.ParsedRole())
	if err != nil {
		h.fail(w, ctx, "add member failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toMembershipResponse(m))
}

func (h *Handler) HandleChangeRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID, ok := orgIDParam(w, r)
	if !ok {
		return
	}
	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[ChangeRoleRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	m, err := h.service.ChangeRole(ctx, orgID, userID, req.ParsedRole())
	if err != nil {
		h.fail(w, ctx, "change role failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toMembershipResponse(m))
}

func (h *Handler) HandleRemoveMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID, ok := orgIDParam(w, r)
	if !ok {
		return
	}
	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.RemoveMember(ctx, orgID, userID); err != nil {
		h.fail(w, ctx, "remove member failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleAuditTrail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID, ok := orgIDParam(w, r)
	if !ok {
		return
	}
	limit, err := httputil.QueryLimit(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	records, err := h.service.AuditTrail(ctx, orgID, limit)
	if err != nil {
		h.fail(w, ctx, "audit trail failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, auditmodels.ToRecordListResponse(records))
}

func orgIDParam(w http.ResponseWriter, r *http.Request) (id.OrganizationID, bool) {
	orgID, err := id.ParseOrganizationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.OrganizationID{}, false
	}
	return orgID, true
}

func (h *Handler) fail(w http.ResponseWriter, ctx context.Context, msg string, err error) {
	code := dErrors.CodeOf(err)
	if code == dErrors.CodeInternal || code == dErrors.CodeUnavailable {
		h.logger.ErrorContext(ctx, msg,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	} else {
		h.logger.WarnContext(ctx, msg,
			"request_id", requestcontext.RequestID(ctx),
			"reason", string(code),
		)
	}
	httputil.WriteError(w, err)
}
