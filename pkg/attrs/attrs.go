// Package attrs helps with slog-style key/value attribute slices.
package attrs

import (
	"context"

	"taskguard/pkg/requestcontext"
)

// FromContext returns request_id and user_id attributes when the context
// carries them, followed by extra.
func FromContext(ctx context.Context, extra ...any) []any {
	out := make([]any, 0, len(extra)+4)
	if reqID := requestcontext.RequestID(ctx); reqID != "" {
		out = append(out, "request_id", reqID)
	}
	if userID := requestcontext.UserID(ctx); !userID.IsNil() {
		out = append(out, "user_id", userID.String())
	}
	return append(out, extra...)
}
