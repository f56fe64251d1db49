package testutil

import (
	"net/http"
	"time"

	id "taskguard/pkg/domain"
	"taskguard/pkg/requestcontext"
)

// WithUserID marks the request as authenticated for userID, the way the auth
// middleware would.
func WithUserID(req *http.Request, userID id.UserID) *http.Request {
	return req.WithContext(requestcontext.WithUserID(req.Context(), userID))
}

// WithAuth sets the principal and the token it presented.
func WithAuth(req *http.Request, userID id.UserID, jti string, expiresAt time.Time) *http.Request {
	ctx := requestcontext.WithUserID(req.Context(), userID)
	ctx = requestcontext.WithToken(ctx, jti, expiresAt)
	return req.WithContext(ctx)
}

// WithClient sets client metadata normally filled in by the metadata
// middleware.
func WithClient(req *http.Request, clientIP, userAgent, requestID string) *http.Request {
	ctx := requestcontext.WithClientMetadata(req.Context(), clientIP, userAgent)
	ctx = requestcontext.WithRequestID(ctx, requestID)
	return req.WithContext(ctx)
}
