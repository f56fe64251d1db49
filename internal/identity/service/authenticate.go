package service

import (
	"context"
	"errors"
	"strings"

	"github.com/mssola/useragent"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"taskguard/internal/identity/credential"
	"taskguard/internal/identity/models"
	"taskguard/internal/identity/store/principal"
	id "taskguard/pkg/domain"
	dErrors "taskguard/pkg/domain-errors"
	"taskguard/pkg/email"
	audit "taskguard/pkg/platform/audit"
	"taskguard/pkg/requestcontext"
)

// RegisterInput carries registration fields. Names are derived from the
// email when both are blank.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// Register creates an active principal and records user_created.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.Principal, error) {
	addr := email.Normalize(in.Email)
	if !email.IsValid(addr) {
		return nil, dErrors.New(dErrors.CodeValidation, "a valid email is required")
	}

	hash, err := s.credentials.Hash(in.Password)
	if err != nil {
		if _, ok := dErrors.As(err); ok {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}

	first, last := strings.TrimSpace(in.FirstName), strings.TrimSpace(in.LastName)
	if first == "" && last == "" {
		first, last = email.DeriveNameFromEmail(addr)
	}

	p, err := models.NewPrincipal(id.NewUserID(), addr, first, last, hash, requestcontext.Now(ctx))
	if err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, err.Error())
	}
	if err := s.principals.Create(ctx, p); err != nil {
		if errors.Is(err, principal.ErrEmailTaken) {
			return nil, dErrors.New(dErrors.CodeConflict, "email is already registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create principal")
	}

	s.metrics.IncrementRegistration()
	s.recordAudit(ctx, audit.ActionUserCreated, p.ID, p.ID, map[string]string{"email": p.Email})
	return p, nil
}

// Authenticate checks loginID and secret and issues a session. Unknown
// principals, wrong secrets and inactive accounts all fail with the same
// invalid_credentials error, and unknown principals still pay for one hash
// comparison.
func (s *Service) Authenticate(ctx context.Context, loginID, secret string) (*models.Session, error) {
	ctx, span := s.tracer.Start(ctx, "identity.Authenticate")
	defer span.End()

	addr := email.Normalize(loginID)
	p, err := s.principals.FindByEmail(ctx, addr)
	if err != nil {
		if errors.Is(err, principal.ErrNotFound) {
			_ = s.credentials.VerifyDummy(secret)
			s.authFailure(ctx, "unknown_principal", addr, id.UserID{})
			span.SetAttributes(attribute.String("identity.result", "invalid_credentials"))
			return nil, invalidCredentials()
		}
		s.metrics.IncrementAuthentication("error")
		span.RecordError(err)
		span.SetStatus(codes.Error, "principal lookup failed")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load principal")
	}

	if err := s.credentials.Verify(secret, p.PasswordHash); err != nil {
		if !errors.Is(err, credential.ErrMismatch) {
			s.metrics.IncrementAuthentication("error")
			span.RecordError(err)
			span.SetStatus(codes.Error, "credential check failed")
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify credentials")
		}
		s.authFailure(ctx, "wrong_secret", addr, p.ID)
		span.SetAttributes(attribute.String("identity.result", "invalid_credentials"))
		return nil, invalidCredentials()
	}

	if !p.IsActive() {
		s.authFailure(ctx, "inactive", addr, p.ID)
		span.SetAttributes(attribute.String("identity.result", "invalid_credentials"))
		return nil, invalidCredentials()
	}

	session, err := s.Issue(ctx, p)
	if err != nil {
		s.metrics.IncrementAuthentication("error")
		return nil, err
	}

	s.metrics.IncrementAuthentication("success")
	span.SetAttributes(
		attribute.String("identity.result", "success"),
		attribute.String("user_id", p.ID.String()),
	)
	s.recordAudit(ctx, audit.ActionLogin, p.ID, p.ID, clientMetadata(ctx, session.TokenID))
	return session, nil
}

// Issue signs a session for an already authenticated principal.
func (s *Service) Issue(_ context.Context, p *models.Principal) (*models.Session, error) {
	if p == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "principal is required")
	}
	issued, err := s.tokens.Issue(p.ID, p.Email)
	if err != nil {
		if _, ok := dErrors.As(err); ok {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue token")
	}
	return &models.Session{
		AccessToken: issued.Token,
		TokenType:   "Bearer",
		TokenID:     issued.TokenID,
		UserID:      issued.UserID,
		IssuedAt:    issued.IssuedAt,
		ExpiresAt:   issued.ExpiresAt,
	}, nil
}

func invalidCredentials() error {
	return dErrors.New(dErrors.CodeInvalidCredentials, "invalid email or password")
}

// clientMetadata summarizes the login client for the audit trail.
func clientMetadata(ctx context.Context, tokenID string) map[string]string {
	md := map[string]string{"token_id": tokenID}
	raw := requestcontext.UserAgent(ctx)
	if raw == "" {
		return md
	}
	ua := useragent.New(raw)
	if name, version := ua.Browser(); name != "" {
		md["browser"] = strings.TrimSpace(name + " " + version)
	}
	if os := ua.OS(); os != "" {
		md["os"] = os
	}
	if ua.Mobile() {
		md["mobile"] = "true"
	}
	if ua.Bot() {
		md["bot"] = "true"
	}
	return md
}
