// Package auth authenticates bearer tokens and places the principal on the
// request context.
package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	id "taskguard/pkg/domain"
	dErrors "taskguard/pkg/domain-errors"
	"taskguard/pkg/platform/httputil"
	"taskguard/pkg/requestcontext"
)

// Claims is what a verified token contributes to the request.
type Claims struct {
	UserID    id.UserID
	TokenID   string
	ExpiresAt time.Time
}

// Verifier validates a raw bearer token. Errors carry one of the dErrors
// codes expired_token, malformed_token or revoked_token.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Claims, error)
}

// RequireAuth rejects requests without a valid bearer token. On success the
// principal and token id are available through requestcontext.
func RequireAuth(verifier Verifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			token, ok := bearerToken(r)
			if !ok {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "Missing or invalid Authorization header"))
				return
			}

			claims, err := verifier.Verify(ctx, token)
			if err != nil {
				code := dErrors.CodeOf(err)
				if code == dErrors.CodeInternal || code == dErrors.CodeUnavailable {
					logger.ErrorContext(ctx, "failed to verify token",
						"error", err,
						"request_id", requestID,
					)
				} else {
					logger.WarnContext(ctx, "unauthorized access - token rejected",
						"reason", string(code),
						"request_id", requestID,
					)
				}
				httputil.WriteError(w, err)
				return
			}

			ctx = requestcontext.WithUserID(ctx, claims.UserID)
			ctx = requestcontext.WithToken(ctx, claims.TokenID, claims.ExpiresAt)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	token = strings.TrimSpace(token)
	return token, ok && token != ""
}
