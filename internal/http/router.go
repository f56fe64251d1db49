// Package httpapi assembles the HTTP surface: shared middleware, the public,
// authenticated and admin route groups, and the operational endpoints.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	audithandler "taskguard/internal/audit/handler"
	identityhandler "taskguard/internal/identity/handler"
	orghandler "taskguard/internal/organization/handler"
	"taskguard/internal/platform/metrics"
	taskhandler "taskguard/internal/task/handler"
	dErrors "taskguard/pkg/domain-errors"
	"taskguard/pkg/platform/httputil"
	"taskguard/pkg/platform/middleware/admin"
	authmw "taskguard/pkg/platform/middleware/auth"
	"taskguard/pkg/platform/middleware/metadata"
	"taskguard/pkg/platform/middleware/requesttime"
)

// HealthCheck reports whether one backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Deps lists everything the router mounts. Metrics and Health are optional.
type Deps struct {
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
	Verifier   authmw.Verifier
	AdminToken string
	Health     map[string]HealthCheck

	Identity      *identityhandler.Handler
	Organizations *orghandler.Handler
	Tasks         *taskhandler.Handler
	Audit         *audithandler.Handler
}

func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware)
		r.Handle("/metrics", metrics.Handler())
	}
	r.Get("/healthz", healthHandler(d.Health, logger))

	// public
	r.Group(func(r chi.Router) {
		d.Identity.RegisterPublic(r)
	})

	r.Group(func(r chi.Router) {
		r.Use(authmw.RequireAuth(d.Verifier, logger))
		d.Identity.Register(r)
		d.Organizations.Register(r)
		d.Tasks.Register(r)
		d.Audit.Register(r)
	})

	r.Group(func(r chi.Router) {
		r.Use(admin.RequireAdminToken(d.AdminToken, logger))
		d.Identity.RegisterAdmin(r)
		d.Audit.RegisterAdmin(r)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "route not found"))
	})
	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// healthHandler answers 503 when any check fails.
func healthHandler(checks map[string]HealthCheck, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		resp := healthResponse{Status: "ok"}
		status := http.StatusOK
		if len(checks) > 0 {
			resp.Checks = make(map[string]string, len(checks))
		}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				logger.WarnContext(ctx, "health check failed", "check", name, "error", err)
				resp.Checks[name] = "down"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "up"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
