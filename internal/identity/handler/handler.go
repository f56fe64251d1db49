package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"taskguard/internal/identity/models"
	"taskguard/internal/identity/service"
	id "taskguard/pkg/domain"
	dErrors "taskguard/pkg/domain-errors"
	"taskguard/pkg/platform/httputil"
	"taskguard/pkg/requestcontext"
)

// Service is the identity verifier as seen by HTTP.
type Service interface {
	Register(ctx context.Context, in service.RegisterInput) (*models.Principal, error)
	Authenticate(ctx context.Context, loginID, secret string) (*models.Session, error)
	Logout(ctx context.Context, userID id.UserID, jti string, expiresAt time.Time) error
	GetPrincipal(ctx context.Context, userID id.UserID) (*models.Principal, error)
	ResetPassword(ctx context.Context, userID id.UserID, current, next string) error
	Deactivate(ctx context.Context, userID id.UserID) (*models.Principal, error)
	Purge(ctx context.Context, userID id.UserID) error
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterPublic mounts the unauthenticated routes.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Post("/auth/register", h.HandleRegister)
	r.Post("/auth/login", h.HandleLogin)
}

// Register mounts routes that need a verified bearer token.
func (h *Handler) Register(r chi.Router) {
	r.Post("/auth/logout", h.HandleLogout)
	r.Get("/auth/me", h.HandleMe)
	r.Post("/auth/password", h.HandleChangePassword)
}

// RegisterAdmin mounts routes guarded by the admin token.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Delete("/admin/principals/{id}", h.HandlePurge)
	r.Post("/admin/principals/{id}/deactivate", h.HandleDeactivate)
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[RegisterRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	p, err := h.service.Register(ctx, service.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		h.logFailure(ctx, "registration failed", err)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "principal registered",
		"request_id", requestID,
		"user_id", p.ID.String(),
	)
	httputil.WriteJSON(w, http.StatusCreated, toPrincipalResponse(p))
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[LoginRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	session, err := h.service.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		h.logFailure(ctx, "login failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toLoginResponse(session, requestcontext.Now(ctx)))
}

// HandleLogout revokes the token that authenticated this request.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	if err := h.service.Logout(ctx, userID, requestcontext.TokenID(ctx), requestcontext.TokenExpiry(ctx)); err != nil {
		h.logFailure(ctx, "logout failed", err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	p, err := h.service.GetPrincipal(ctx, userID)
	if err != nil {
		h.logFailure(ctx, "failed to load principal", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toPrincipalResponse(p))
}

func (h *Handler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[ChangePasswordRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	if err := h.service.ResetPassword(ctx, userID, req.CurrentPassword, req.NewPassword); err != nil {
		h.logFailure(ctx, "password change failed", err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandlePurge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := id.ParseUserID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.Purge(ctx, userID); err != nil {
		h.logFailure(ctx, "purge failed", err)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "admin purged principal",
		"request_id", requestcontext.RequestID(ctx),
		"user_id", userID.String(),
	)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleDeactivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := id.ParseUserID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	p, err := h.service.Deactivate(ctx, userID)
	if err != nil {
		h.logFailure(ctx, "deactivation failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toPrincipalResponse(p))
}

// logFailure logs server-side failures at error and client mistakes at warn.
func (h *Handler) logFailure(ctx context.Context, msg string, err error) {
	code := dErrors.CodeOf(err)
	if code == dErrors.CodeInternal || code == dErrors.CodeUnavailable {
		h.logger.ErrorContext(ctx, msg,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return
	}
	h.logger.WarnContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"reason", string(code),
	)
}
