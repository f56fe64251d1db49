package auth

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	id "taskguard/pkg/domain"
	dErrors "taskguard/pkg/domain-errors"
	"taskguard/pkg/requestcontext"
	"taskguard/pkg/testutil"
)

type stubVerifier struct {
	claims *Claims
	err    error
	got    string
}

func (s *stubVerifier) Verify(_ context.Context, token string) (*Claims, error) {
	s.got = token
	return s.claims, s.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRequireAuth(t *testing.T) {
	userID := id.NewUserID()
	expires := time.Now().Add(time.Hour)

	var seen id.UserID
	var seenJTI string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestcontext.UserID(r.Context())
		seenJTI = requestcontext.TokenID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	t.Run("valid token populates the request context", func(t *testing.T) {
		v := &stubVerifier{claims: &Claims{UserID: userID, TokenID: "jti-1", ExpiresAt: expires}}
		req := testutil.WithBearer(httptest.NewRequest(http.MethodGet, "/", nil), "tok")

		rr := testutil.DoRequest(RequireAuth(v, discardLogger())(next), req)

		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.Equal(t, "tok", v.got)
		assert.Equal(t, userID, seen)
		assert.Equal(t, "jti-1", seenJTI)
	})

	t.Run("missing header is unauthorized", func(t *testing.T) {
		v := &stubVerifier{}
		rr := testutil.DoRequest(RequireAuth(v, discardLogger())(next), httptest.NewRequest(http.MethodGet, "/", nil))

		testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")
	})

	t.Run("non-bearer scheme is unauthorized", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Basic Zm9vOmJhcg==")

		rr := testutil.DoRequest(RequireAuth(&stubVerifier{}, discardLogger())(next), req)

		testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")
	})

	for _, code := range []dErrors.Code{dErrors.CodeExpiredToken, dErrors.CodeMalformedToken, dErrors.CodeRevokedToken} {
		t.Run("verifier error "+string(code)+" keeps its code", func(t *testing.T) {
			v := &stubVerifier{err: dErrors.New(code, "rejected")}
			req := testutil.WithBearer(httptest.NewRequest(http.MethodGet, "/", nil), "tok")

			rr := testutil.DoRequest(RequireAuth(v, discardLogger())(next), req)

			testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, string(code))
		})
	}

	t.Run("store failure is internal", func(t *testing.T) {
		v := &stubVerifier{err: dErrors.New(dErrors.CodeInternal, "redis down")}
		req := testutil.WithBearer(httptest.NewRequest(http.MethodGet, "/", nil), "tok")

		rr := testutil.DoRequest(RequireAuth(v, discardLogger())(next), req)

		testutil.AssertStatusAndError(t, rr, http.StatusInternalServerError, "internal_error")
	})
}
