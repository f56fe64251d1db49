package handler

import (
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auditmodels "taskguard/internal/audit/models"
	auditservice "taskguard/internal/audit/service"
	membershipservice "taskguard/internal/membership/service"
	membershipstore "taskguard/internal/membership/store"
	"taskguard/internal/organization/service"
	"taskguard/internal/organization/store"
	"taskguard/internal/policy"
	"taskguard/internal/policy/guard"
	id "taskguard/pkg/domain"
	"taskguard/pkg/platform/audit/store/memory"
	"taskguard/pkg/testutil"
)

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	memberships, err := membershipservice.New(membershipstore.NewInMemoryStore(), membershipservice.WithLogger(logger))
	require.NoError(t, err)
	recorder := auditservice.New(memory.NewInMemoryStore(), auditservice.WithLogger(logger))
	g, err := guard.New(policy.New(memberships), recorder, logger)
	require.NoError(t, err)
	svc, err := service.New(store.NewInMemoryStore(), memberships, g,
		service.WithLogger(logger),
		service.WithAuditRecorder(recorder),
	)
	require.NoError(t, err)

	r := chi.NewRouter()
	New(svc, logger).Register(r)
	return r
}

func createOrg(t *testing.T, router http.Handler, owner id.UserID, name string) *OrganizationResponse {
	t.Helper()
	req := testutil.WithUserID(testutil.NewJSONRequest(t, http.MethodPost, "/organizations",
		CreateOrganizationRequest{Name: name}), owner)
	rr := testutil.DoRequest(router, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return testutil.UnmarshalResponse[OrganizationResponse](t, rr)
}

func TestOrganizationLifecycle(t *testing.T) {
	router := newRouter(t)
	owner := id.NewUserID()

	testutil.Given(t, "an organization created by its owner", func(t *testing.T) {
		org := createOrg(t, router, owner, "Acme")
		assert.Equal(t, "SUPER_ADMIN", org.Role)

		testutil.When(t, "the owner renames it", func(t *testing.T) {
			name := "Acme Corp"
			req := testutil.WithUserID(testutil.NewJSONRequest(t, http.MethodPut, "/organizations/"+org.ID,
				UpdateOrganizationRequest{Name: &name}), owner)
			rr := testutil.DoRequest(router, req)

			testutil.Then(t, "the new name is returned and listed", func(t *testing.T) {
				require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
				assert.Equal(t, "Acme Corp", testutil.UnmarshalResponse[OrganizationResponse](t, rr).Name)

				rr := testutil.DoRequest(router, testutil.WithUserID(testutil.NewJSONRequest(t, http.MethodGet, "/organizations", nil), owner))
				require.Equal(t, http.StatusOK, rr.Code)
				list := testutil.UnmarshalResponse[OrganizationListResponse](t, rr)
				require.Equal(t, 1, list.Count)
				assert.Equal(t, "Acme Corp", list.Organizations[0].Name)
			})
		})

		testutil.When(t, "the owner deletes it", func(t *testing.T) {
			rr := testutil.DoRequest(router, testutil.WithUserID(
				testutil.NewJSONRequest(t, http.MethodDelete, "/organizations/"+org.ID, nil), owner))

			testutil.Then(t, "it is gone", func(t *testing.T) {
				require.Equal(t, http.StatusNoContent, rr.Code)
				rr := testutil.DoRequest(router, testutil.WithUserID(
					testutil.NewJSONRequest(t, http.MethodGet, "/organizations/"+org.ID, nil), owner))
				testutil.AssertStatusAndError(t, rr, http.StatusForbidden, "not_a_member")
			})
		})
	})
}

func TestMembersEndpoints(t *testing.T) {
	router := newRouter(t)
	owner := id.NewUserID()
	org := createOrg(t, router, owner, "Acme")
	member := id.NewUserID()

	rr := testutil.DoRequest(router, testutil.WithUserID(testutil.NewJSONRequest(t, http.MethodPost,
		"/organizations/"+org.ID+"/members", AddMemberRequest{UserID: member.String(), Role: "viewer"}), owner))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, "VIEWER", testutil.UnmarshalResponse[MemberResponse](t, rr).Role)

	rr = testutil.DoRequest(router, testutil.WithUserID(testutil.NewJSONRequest(t, http.MethodPost,
		"/organizations/"+org.ID+"/members", AddMemberRequest{UserID: member.String(), Role: "USER"}), owner))
	testutil.AssertStatusAndError(t, rr, http.StatusConflict, "duplicate_membership")

	rr = testutil.DoRequest(router, testutil.WithUserID(testutil.NewJSONRequest(t, http.MethodPut,
		"/organizations/"+org.ID+"/members/"+member.String(), ChangeRoleRequest{Role: "MANAGER"}), owner))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = testutil.DoRequest(router, testutil.WithUserID(testutil.NewJSONRequest(t, http.MethodGet,
		"/organizations/"+org.ID+"/members", nil), member))
	require.Equal(t, http.StatusOK, rr.Code)
	members := testutil.UnmarshalResponse[MemberListResponse](t, rr)
	assert.Equal(t, 2, members.Count)

	rr = testutil.DoRequest(router, testutil.WithUserID(testutil.NewJSONRequest(t, http.MethodDelete,
		"/organizations/"+org.ID+"/members/"+owner.String(), nil), member))
	testutil.AssertStatusAndError(t, rr, http.StatusForbidden, "insufficient_role")

	rr = testutil.DoRequest(router, testutil.WithUserID(testutil.NewJSONRequest(t, http.MethodDelete,
		"/organizations/"+org.ID+"/members/"+member.String(), nil), owner))
	require.Equal(t, http.StatusNoContent, rr.Code)
}

func TestAuditTrailEndpoint(t *testing.T) {
	router := newRouter(t)
	owner := id.NewUserID()
	org := createOrg(t, router, owner, "Acme")

	rr := testutil.DoRequest(router, testutil.WithUserID(testutil.NewJSONRequest(t, http.MethodGet,
		"/organizations/"+org.ID+"/audit?limit=5", nil), owner))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	trail := testutil.UnmarshalResponse[auditmodels.RecordListResponse](t, rr)
	require.Equal(t, 1, trail.Count)
	assert.Equal(t, "org_created", trail.Records[0].Action)

	rr = testutil.DoRequest(router, testutil.WithUserID(testutil.NewJSONRequest(t, http.MethodGet,
		"/organizations/"+org.ID+"/audit?limit=-1", nil), owner))
	testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "invalid_input")

	rr = testutil.DoRequest(router, testutil.WithUserID(testutil.NewJSONRequest(t, http.MethodGet,
		"/organizations/"+org.ID+"/audit", nil), id.NewUserID()))
	testutil.AssertStatusAndError(t, rr, http.StatusForbidden, "not_a_member")
}

func TestBadPathParams(t *testing.T) {
	router := newRouter(t)
	rr := testutil.DoRequest(router, testutil.WithUserID(
		testutil.NewJSONRequest(t, http.MethodGet, "/organizations/not-a-uuid", nil), id.NewUserID()))
	testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "invalid_input")
}

func TestRequestValidation(t *testing.T) {
	assert.Error(t, (&CreateOrganizationRequest{Name: "  "}).Validate())
	assert.NoError(t, (&CreateOrganizationRequest{Name: "Acme"}).Validate())
	assert.Error(t, (&UpdateOrganizationRequest{}).Validate())
	assert.Error(t, (&AddMemberRequest{UserID: "nope", Role: "USER"}).Validate())
	assert.Error(t, (&AddMemberRequest{UserID: id.NewUserID().String(), Role: "OWNER"}).Validate())

	req := &AddMemberRequest{UserID: id.NewUserID().String()}
	require.NoError(t, req.Validate())
	assert.Equal(t, id.RoleUser, req.ParsedRole(), "role defaults to USER")

	assert.Error(t, (&ChangeRoleRequest{}).Validate())
}
