package admin

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"taskguard/pkg/testutil"
)

func TestRequireAdminToken(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	cases := []struct {
		name     string
		expected string
		header   string
		status   int
	}{
		{name: "matching token", expected: "secret", header: "secret", status: http.StatusOK},
		{name: "wrong token", expected: "secret", header: "nope", status: http.StatusUnauthorized},
		{name: "missing token", expected: "secret", header: "", status: http.StatusUnauthorized},
		{name: "disabled when unconfigured", expected: "", header: "", status: http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/audit", nil)
			if tc.header != "" {
				req.Header.Set("X-Admin-Token", tc.header)
			}

			rr := testutil.DoRequest(RequireAdminToken(tc.expected, logger)(next), req)

			assert.Equal(t, tc.status, rr.Code)
		})
	}
}
