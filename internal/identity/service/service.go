// Package service is the identity verifier: it registers and authenticates
// principals, issues session tokens and verifies them on every request.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	auditservice "taskguard/internal/audit/service"
	identitymetrics "taskguard/internal/identity/metrics"
	"taskguard/internal/identity/models"
	"taskguard/internal/identity/token"
	id "taskguard/pkg/domain"
	audit "taskguard/pkg/platform/audit"
	txcontext "taskguard/pkg/platform/tx"
)

type PrincipalStore interface {
	Create(ctx context.Context, p *models.Principal) error
	FindByID(ctx context.Context, userID id.UserID) (*models.Principal, error)
	FindByEmail(ctx context.Context, email string) (*models.Principal, error)
	FindByIDs(ctx context.Context, ids []id.UserID) ([]*models.Principal, error)
	Execute(ctx context.Context, userID id.UserID, validate func(*models.Principal) error, mutate func(*models.Principal)) (*models.Principal, error)
	Delete(ctx context.Context, userID id.UserID) error
}

// CredentialStore hashes and checks secrets.
type CredentialStore interface {
	Hash(secret string) (string, error)
	Verify(secret, hash string) error
	VerifyDummy(secret string) error
}

type TokenService interface {
	Issue(userID id.UserID, email string) (*token.Issued, error)
	Validate(tokenString string) (*token.Claims, error)
	TTL() time.Duration
}

// RevocationList remembers revoked token ids until the tokens expire.
type RevocationList interface {
	RevokeToken(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

type AuditRecorder interface {
	Record(ctx context.Context, e auditservice.Entry) auditservice.Result
	DetachActor(ctx context.Context, userID id.UserID) (int, error)
}

// PurgeHook removes data owned by a principal that is being purged. Hooks run
// inside the purge transaction.
type PurgeHook func(ctx context.Context, userID id.UserID) error

// Service is safe for concurrent use. It holds no mutable state after
// construction.
type Service struct {
	principals  PrincipalStore
	credentials CredentialStore
	tokens      TokenService
	trl         RevocationList
	tx          txcontext.Runner
	audit       AuditRecorder
	purgeHooks  []PurgeHook
	logger      *slog.Logger
	metrics     *identitymetrics.Metrics
	tracer      trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *identitymetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditRecorder(r AuditRecorder) Option {
	return func(s *Service) {
		s.audit = r
	}
}

func WithRevocationList(trl RevocationList) Option {
	return func(s *Service) {
		s.trl = trl
	}
}

// WithTx sets the unit of work used by Purge. Defaults to an in-process lock.
func WithTx(r txcontext.Runner) Option {
	return func(s *Service) {
		if r != nil {
			s.tx = r
		}
	}
}

func WithPurgeHooks(hooks ...PurgeHook) Option {
	return func(s *Service) {
		s.purgeHooks = append(s.purgeHooks, hooks...)
	}
}

func New(principals PrincipalStore, credentials CredentialStore, tokens TokenService, opts ...Option) (*Service, error) {
	if principals == nil {
		return nil, errors.New("principal store is required")
	}
	if credentials == nil {
		return nil, errors.New("credential store is required")
	}
	if tokens == nil {
		return nil, errors.New("token service is required")
	}
	s := &Service{
		principals:  principals,
		credentials: credentials,
		tokens:      tokens,
		tx:          &txcontext.LockRunner{},
		logger:      slog.Default(),
		tracer:      otel.Tracer("taskguard/identity"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) recordAudit(ctx context.Context, action audit.Action, actor id.UserID, subject id.UserID, metadata map[string]string) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, auditservice.Entry{
		Action:     action,
		EntityType: audit.EntityUser,
		EntityID:   subject.String(),
		ActorID:    actor,
		Metadata:   metadata,
	})
}

// authFailure logs a failed authentication at warn without the secret and
// records login_failed. actor is the principal when one was found.
func (s *Service) authFailure(ctx context.Context, reason, email string, actor id.UserID) {
	s.logger.WarnContext(ctx, "authentication failed",
		"reason", reason,
		"email", email,
	)
	s.metrics.IncrementAuthentication("invalid_credentials")
	if s.audit == nil {
		return
	}
	entry := auditservice.Entry{
		Action:     audit.ActionLoginFailed,
		EntityType: audit.EntityUser,
		ActorID:    actor,
		Metadata:   map[string]string{"reason": reason, "email": email},
	}
	if !actor.IsNil() {
		entry.EntityID = actor.String()
	}
	s.audit.Record(ctx, entry)
}
