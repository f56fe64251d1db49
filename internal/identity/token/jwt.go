// Package token issues and validates session tokens: compact HS256 JWTs that
// carry the principal id, issue time, expiry and a unique JTI.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "taskguard/pkg/domain"
	dErrors "taskguard/pkg/domain-errors"
)

// Claims represents the JWT claims for session tokens.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Issued is a freshly signed token and the facts it binds.
type Issued struct {
	Token     string
	TokenID   string
	UserID    id.UserID
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// JWTService handles JWT creation and validation. The signing key is fixed at
// construction for the life of the process.
type JWTService struct {
	signingKey []byte
	issuer     string
	audience   string
	ttl        time.Duration
	clock      func() time.Time
}

type Option func(*JWTService)

// WithClock overrides time.Now for both signing and validation.
func WithClock(clock func() time.Time) Option {
	return func(s *JWTService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func NewJWTService(signingKey, issuer, audience string, ttl time.Duration, opts ...Option) *JWTService {
	s := &JWTService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
		ttl:        ttl,
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL is the lifetime of issued tokens.
func (s *JWTService) TTL() time.Duration {
	return s.ttl
}

// Issue signs a token for userID. Times are truncated to whole seconds, the
// precision JWT numeric dates carry.
func (s *JWTService) Issue(userID id.UserID, email string) (*Issued, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "principal id is required")
	}
	now := s.clock().Truncate(time.Second)
	expiresAt := now.Add(s.ttl)
	jti := uuid.NewString()

	newToken := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			ID:        jti,
		},
	})

	signed, err := newToken.SignedString(s.signingKey)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign token")
	}
	return &Issued{
		Token:     signed,
		TokenID:   jti,
		UserID:    userID,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
	}, nil
}

// Validate checks signature, issuer, audience and expiry. A token is expired
// on or after its exp instant. Failures are expired_token or malformed_token.
func (s *JWTService) Validate(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.clock),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeExpiredToken, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeMalformedToken, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeMalformedToken, "invalid token claims")
	}
	if claims.ID == "" {
		return nil, dErrors.New(dErrors.CodeMalformedToken, "token id is missing")
	}
	if _, err := id.ParseUserID(claims.Subject); err != nil {
		return nil, dErrors.New(dErrors.CodeMalformedToken, "token subject is invalid")
	}
	return claims, nil
}

// UserID returns the parsed subject. Only call on validated claims.
func (c *Claims) UserID() id.UserID {
	userID, _ := id.ParseUserID(c.Subject)
	return userID
}
