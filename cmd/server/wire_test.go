package main

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	auditmodels "taskguard/internal/audit/models"
	identityhandler "taskguard/internal/identity/handler"
	"taskguard/internal/identity/token"
	orghandler "taskguard/internal/organization/handler"
	"taskguard/internal/platform/config"
	taskhandler "taskguard/internal/task/handler"
	id "taskguard/pkg/domain"
	"taskguard/pkg/platform/audit"
	"taskguard/pkg/testutil"
)

// =============================================================================
// Server Wiring Suite
// =============================================================================
// Justification for unit tests: the full router over in-memory stores is the
// only place that proves the modules are wired to each other (identity feeds
// the guard, org deletion cascades to tasks, every module records into the
// same chain).

const adminToken = "test-admin-token"

type ServerSuite struct {
	suite.Suite
	cfg    config.Config
	router http.Handler
}

func TestServerSuite(t *testing.T) {
	suite.Run(t, new(ServerSuite))
}

func (s *ServerSuite) SetupTest() {
	cfg := config.Config{
		Server: config.Server{AdminAPIToken: adminToken},
		Auth: config.Auth{
			JWTSigningKey: "test-signing-key",
			JWTIssuer:     "taskguard",
			JWTAudience:   "taskguard-api",
			TokenTTL:      time.Hour,
			BcryptCost:    4,
		},
		Audit: config.AuditConfig{BreakerThreshold: 5, BreakerCooldown: time.Second},
	}
	a, err := buildApp(appDeps{
		cfg:      cfg,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		registry: prometheus.NewRegistry(),
		stores:   memoryStores(),
	})
	s.Require().NoError(err)
	s.cfg = cfg
	s.router = a.router
}

func (s *ServerSuite) do(method, path string, body any, token string) *httptest.ResponseRecorder {
	req := testutil.NewJSONRequest(s.T(), method, path, body)
	if token != "" {
		req = testutil.WithBearer(req, token)
	}
	return testutil.DoRequest(s.router, req)
}

// signUp registers and logs in, returning the user id and bearer token.
func (s *ServerSuite) signUp(email string) (string, string) {
	rr := s.do(http.MethodPost, "/auth/register", identityhandler.RegisterRequest{
		Email: email, Password: "correct horse battery", FirstName: "Test",
	}, "")
	s.Require().Equal(http.StatusCreated, rr.Code, rr.Body.String())
	p := testutil.UnmarshalResponse[identityhandler.PrincipalResponse](s.T(), rr)

	rr = s.do(http.MethodPost, "/auth/login", identityhandler.LoginRequest{
		Email: email, Password: "correct horse battery",
	}, "")
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
	return p.ID, testutil.UnmarshalResponse[identityhandler.LoginResponse](s.T(), rr).AccessToken
}

func (s *ServerSuite) TestHealthAndMetrics() {
	rr := s.do(http.MethodGet, "/healthz", nil, "")
	s.Equal(http.StatusOK, rr.Code)

	rr = s.do(http.MethodGet, "/metrics", nil, "")
	s.Equal(http.StatusOK, rr.Code)

	rr = s.do(http.MethodGet, "/nowhere", nil, "")
	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
}

func (s *ServerSuite) TestAuthenticationIsRequired() {
	s.Run("no token", func() {
		rr := s.do(http.MethodGet, "/tasks/mine", nil, "")
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")
	})

	s.Run("malformed token", func() {
		rr := s.do(http.MethodGet, "/organizations", nil, "not-a-jwt")
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "malformed_token")
	})

	s.Run("expired token", func() {
		issuedAt := time.Now().Add(-2 * time.Hour)
		stale := token.NewJWTService(s.cfg.Auth.JWTSigningKey, s.cfg.Auth.JWTIssuer, s.cfg.Auth.JWTAudience,
			time.Hour, token.WithClock(func() time.Time { return issuedAt }))
		issued, err := stale.Issue(id.NewUserID(), "late@example.com")
		s.Require().NoError(err)

		rr := s.do(http.MethodGet, "/organizations", nil, issued.Token)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "expired_token")
	})

	s.Run("revoked token", func() {
		_, tok := s.signUp("leaving@example.com")
		rr := s.do(http.MethodPost, "/auth/logout", nil, tok)
		s.Require().Equal(http.StatusNoContent, rr.Code, rr.Body.String())

		rr = s.do(http.MethodGet, "/organizations", nil, tok)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "revoked_token")
	})
}

func (s *ServerSuite) admin(method, path string) *httptest.ResponseRecorder {
	req := testutil.NewJSONRequest(s.T(), method, path, nil)
	req.Header.Set("X-Admin-Token", adminToken)
	return testutil.DoRequest(s.router, req)
}

func (s *ServerSuite) TestRemovedPrincipalsLoseTheirSessions() {
	t := s.T()

	testutil.Given(t, "a principal who owns a task", func(t *testing.T) {
		userID, tok := s.signUp("departing@example.com")
		rr := s.do(http.MethodPost, "/organizations", orghandler.CreateOrganizationRequest{Name: "Solo"}, tok)
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		org := testutil.UnmarshalResponse[orghandler.OrganizationResponse](t, rr)
		rr = s.do(http.MethodPost, "/tasks", taskhandler.CreateTaskRequest{OrganizationID: org.ID, Title: "Mine"}, tok)
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		task := testutil.UnmarshalResponse[taskhandler.TaskResponse](t, rr)

		testutil.When(t, "an operator purges them", func(t *testing.T) {
			rr := s.admin(http.MethodDelete, "/admin/principals/"+userID)
			require.Equal(t, http.StatusNoContent, rr.Code, rr.Body.String())

			testutil.Then(t, "their old token can neither edit nor create", func(t *testing.T) {
				title := "still mine"
				rr := s.do(http.MethodPut, "/tasks/"+task.ID, taskhandler.UpdateTaskRequest{Title: &title}, tok)
				testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")

				rr = s.do(http.MethodPost, "/organizations", orghandler.CreateOrganizationRequest{Name: "Ghost"}, tok)
				testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")
			})
		})
	})

	testutil.Given(t, "a signed-in principal", func(t *testing.T) {
		userID, tok := s.signUp("paused@example.com")

		testutil.When(t, "an operator deactivates them", func(t *testing.T) {
			rr := s.admin(http.MethodPost, "/admin/principals/"+userID+"/deactivate")
			require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

			testutil.Then(t, "their token stops working", func(t *testing.T) {
				rr := s.do(http.MethodPost, "/organizations", orghandler.CreateOrganizationRequest{Name: "Paused"}, tok)
				testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")
			})
		})
	})

	rr := s.admin(http.MethodGet, "/admin/audit/verify")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.True(t, testutil.UnmarshalResponse[audit.ChainReport](t, rr).Valid)
}

func (s *ServerSuite) TestAdminRoutesNeedTheAdminToken() {
	_, token := s.signUp("ops@example.com")

	rr := s.do(http.MethodGet, "/admin/audit/verify", nil, token)
	s.Equal(http.StatusUnauthorized, rr.Code)

	req := testutil.NewJSONRequest(s.T(), http.MethodGet, "/admin/audit/verify", nil)
	req.Header.Set("X-Admin-Token", adminToken)
	rr = testutil.DoRequest(s.router, req)
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
	report := testutil.UnmarshalResponse[audit.ChainReport](s.T(), rr)
	s.True(report.Valid)
	s.Positive(report.Checked)
}

func (s *ServerSuite) TestTaskFlowAcrossModules() {
	t := s.T()
	ownerID, ownerToken := s.signUp("owner@example.com")
	workerID, workerToken := s.signUp("worker@example.com")
	_, strangerToken := s.signUp("stranger@example.com")

	rr := s.do(http.MethodPost, "/organizations", orghandler.CreateOrganizationRequest{Name: "Acme"}, ownerToken)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	org := testutil.UnmarshalResponse[orghandler.OrganizationResponse](t, rr)

	rr = s.do(http.MethodPost, "/organizations/"+org.ID+"/members",
		orghandler.AddMemberRequest{UserID: workerID, Role: "USER"}, ownerToken)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	testutil.Given(t, "a task created by a plain member", func(t *testing.T) {
		rr := s.do(http.MethodPost, "/tasks", taskhandler.CreateTaskRequest{
			OrganizationID: org.ID, Title: "Write report",
		}, workerToken)
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		task := testutil.UnmarshalResponse[taskhandler.TaskResponse](t, rr)
		assert.Equal(t, workerID, task.CreatorID)

		testutil.When(t, "someone outside the organization reads it", func(t *testing.T) {
			rr := s.do(http.MethodGet, "/tasks/"+task.ID, nil, strangerToken)

			testutil.Then(t, "they are rejected as non-members", func(t *testing.T) {
				testutil.AssertStatusAndError(t, rr, http.StatusForbidden, "not_a_member")
			})
		})

		testutil.When(t, "the organization owner assigns the creator twice", func(t *testing.T) {
			body := taskhandler.AssignRequest{UserID: workerID}
			first := s.do(http.MethodPost, "/tasks/"+task.ID+"/assignments", body, ownerToken)
			second := s.do(http.MethodPost, "/tasks/"+task.ID+"/assignments", body, ownerToken)

			testutil.Then(t, "one assignment exists", func(t *testing.T) {
				assert.Equal(t, http.StatusCreated, first.Code, first.Body.String())
				assert.Equal(t, http.StatusOK, second.Code, second.Body.String())

				rr := s.do(http.MethodGet, "/tasks/mine", nil, workerToken)
				require.Equal(t, http.StatusOK, rr.Code)
				assert.Equal(t, 1, testutil.UnmarshalResponse[taskhandler.TaskListResponse](t, rr).Count)
			})
		})

		testutil.When(t, "the owner reads the task trail", func(t *testing.T) {
			rr := s.do(http.MethodGet, "/tasks/"+task.ID+"/audit", nil, ownerToken)

			testutil.Then(t, "every decision on the task is recorded newest first", func(t *testing.T) {
				require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
				trail := testutil.UnmarshalResponse[auditmodels.RecordListResponse](t, rr)
				require.Equal(t, 4, trail.Count)
				assert.Equal(t, "task_assigned", trail.Records[0].Action)
				assert.Equal(t, "task_assigned", trail.Records[1].Action)
				assert.Equal(t, "access_denied", trail.Records[2].Action)
				assert.Equal(t, "task_created", trail.Records[3].Action)
				assert.Equal(t, ownerID, trail.Records[0].ActorID)
			})
		})

		testutil.When(t, "the organization is deleted", func(t *testing.T) {
			rr := s.do(http.MethodDelete, "/organizations/"+org.ID, nil, ownerToken)
			require.Equal(t, http.StatusNoContent, rr.Code, rr.Body.String())

			testutil.Then(t, "its tasks go with it", func(t *testing.T) {
				rr := s.do(http.MethodGet, "/tasks/mine", nil, workerToken)
				require.Equal(t, http.StatusOK, rr.Code)
				assert.Equal(t, 0, testutil.UnmarshalResponse[taskhandler.TaskListResponse](t, rr).Count)
			})
		})
	})
}
