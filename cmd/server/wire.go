package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	audithandler "taskguard/internal/audit/handler"
	auditmetrics "taskguard/internal/audit/metrics"
	auditservice "taskguard/internal/audit/service"
	httpapi "taskguard/internal/http"
	"taskguard/internal/identity/credential"
	identityhandler "taskguard/internal/identity/handler"
	identitymetrics "taskguard/internal/identity/metrics"
	identityservice "taskguard/internal/identity/service"
	"taskguard/internal/identity/store/principal"
	"taskguard/internal/identity/store/revocation"
	"taskguard/internal/identity/token"
	membershipservice "taskguard/internal/membership/service"
	membershipstore "taskguard/internal/membership/store"
	orghandler "taskguard/internal/organization/handler"
	orgservice "taskguard/internal/organization/service"
	orgstore "taskguard/internal/organization/store"
	"taskguard/internal/platform/config"
	"taskguard/internal/platform/metrics"
	"taskguard/internal/policy"
	"taskguard/internal/policy/guard"
	policymetrics "taskguard/internal/policy/metrics"
	taskhandler "taskguard/internal/task/handler"
	taskservice "taskguard/internal/task/service"
	taskstore "taskguard/internal/task/store"
	id "taskguard/pkg/domain"
	audit "taskguard/pkg/platform/audit"
	auditmemory "taskguard/pkg/platform/audit/store/memory"
	auditpostgres "taskguard/pkg/platform/audit/store/postgres"
	"taskguard/pkg/platform/circuit"
	txcontext "taskguard/pkg/platform/tx"
)

// taskStore is the task store plus the cleanup the organization and identity
// services trigger through hooks.
type taskStore interface {
	taskservice.Store
	DeleteByOrganization(ctx context.Context, orgID id.OrganizationID) (int, error)
	DeleteAssignmentsByUser(ctx context.Context, userID id.UserID) (int, error)
}

// stores is one backend choice for every module.
type stores struct {
	principals    identityservice.PrincipalStore
	revocations   identityservice.RevocationList
	memberships   membershipservice.Store
	organizations orgservice.Store
	tasks         taskStore
	audit         audit.Store
	tx            func() txcontext.Runner
}

func memoryStores() stores {
	return stores{
		principals:    principal.NewInMemoryStore(),
		revocations:   revocation.NewInMemoryTRL(nil),
		memberships:   membershipstore.NewInMemoryStore(),
		organizations: orgstore.NewInMemoryStore(),
		tasks:         taskstore.NewInMemoryStore(),
		audit:         auditmemory.NewInMemoryStore(),
		tx:            func() txcontext.Runner { return &txcontext.LockRunner{} },
	}
}

// postgresStores keeps the revocation list in Postgres; main swaps in Redis
// when it is configured.
func postgresStores(db *sql.DB) stores {
	return stores{
		principals:    principal.NewPostgres(db),
		revocations:   revocation.NewPostgresTRL(db),
		memberships:   membershipstore.NewPostgres(db),
		organizations: orgstore.NewPostgres(db),
		tasks:         taskstore.NewPostgres(db),
		audit:         auditpostgres.New(db),
		tx:            func() txcontext.Runner { return txcontext.DBRunner{DB: db} },
	}
}

type appDeps struct {
	cfg      config.Config
	logger   *slog.Logger
	registry prometheus.Registerer
	stores   stores
	exporter auditservice.Exporter
	health   map[string]httpapi.HealthCheck
}

type app struct {
	router   http.Handler
	recorder *auditservice.Recorder
}

func buildApp(d appDeps) (*app, error) {
	logger := d.logger
	st := d.stores

	var httpMetrics *metrics.Metrics
	var auditOpts []auditservice.Option
	var identityOpts []identityservice.Option
	var policyOpts []policy.Option
	if d.registry != nil {
		httpMetrics = metrics.NewWithRegistry(d.registry)
		auditOpts = append(auditOpts, auditservice.WithMetrics(auditmetrics.NewWithRegistry(d.registry)))
		identityOpts = append(identityOpts, identityservice.WithMetrics(identitymetrics.NewWithRegistry(d.registry)))
		policyOpts = append(policyOpts, policy.WithMetrics(policymetrics.NewWithRegistry(d.registry)))
	}

	auditOpts = append(auditOpts,
		auditservice.WithLogger(logger),
		auditservice.WithBreaker(circuit.New("audit_store",
			circuit.WithFailureThreshold(d.cfg.Audit.BreakerThreshold),
			circuit.WithCooldown(d.cfg.Audit.BreakerCooldown),
		)),
	)
	if d.exporter != nil {
		auditOpts = append(auditOpts, auditservice.WithExporter(d.exporter))
	}
	recorder := auditservice.New(st.audit, auditOpts...)

	memberships, err := membershipservice.New(st.memberships, membershipservice.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	engine := policy.New(memberships, append(policyOpts, policy.WithLogger(logger))...)
	g, err := guard.New(engine, recorder, logger)
	if err != nil {
		return nil, err
	}

	creds, err := credential.New(d.cfg.Auth.BcryptCost)
	if err != nil {
		return nil, err
	}
	tokens := token.NewJWTService(d.cfg.Auth.JWTSigningKey, d.cfg.Auth.JWTIssuer, d.cfg.Auth.JWTAudience, d.cfg.Auth.TokenTTL)
	identity, err := identityservice.New(st.principals, creds, tokens, append(identityOpts,
		identityservice.WithLogger(logger),
		identityservice.WithAuditRecorder(recorder),
		identityservice.WithRevocationList(st.revocations),
		identityservice.WithTx(st.tx()),
		identityservice.WithPurgeHooks(
			func(ctx context.Context, userID id.UserID) error {
				_, err := st.tasks.DeleteAssignmentsByUser(ctx, userID)
				return err
			},
			func(ctx context.Context, userID id.UserID) error {
				_, err := memberships.RemoveUser(ctx, userID)
				return err
			},
		),
	)...)
	if err != nil {
		return nil, err
	}

	orgs, err := orgservice.New(st.organizations, memberships, g,
		orgservice.WithLogger(logger),
		orgservice.WithAuditRecorder(recorder),
		orgservice.WithDirectory(identity),
		orgservice.WithTx(st.tx()),
		orgservice.WithDeleteHooks(st.tasks.DeleteByOrganization),
	)
	if err != nil {
		return nil, err
	}
	tasks, err := taskservice.New(st.tasks, memberships, g,
		taskservice.WithLogger(logger),
		taskservice.WithAuditRecorder(recorder),
	)
	if err != nil {
		return nil, err
	}

	if d.cfg.Server.AdminAPIToken == "" {
		logger.Warn("ADMIN_API_TOKEN is empty; admin routes are disabled")
	}

	router := httpapi.NewRouter(httpapi.Deps{
		Logger:        logger,
		Metrics:       httpMetrics,
		Verifier:      identityservice.NewMiddlewareVerifier(identity),
		AdminToken:    d.cfg.Server.AdminAPIToken,
		Health:        d.health,
		Identity:      identityhandler.New(identity, logger),
		Organizations: orghandler.New(orgs, logger),
		Tasks:         taskhandler.New(tasks, logger),
		Audit:         audithandler.New(recorder, logger),
	})
	return &app{router: router, recorder: recorder}, nil
}
