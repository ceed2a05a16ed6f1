package admin

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"custody/internal/access/adapters"
	accessservice "custody/internal/access/service"
	accessstore "custody/internal/access/store"
	"custody/internal/acl"
	authhandler "custody/internal/auth/handler"
	authmodels "custody/internal/auth/models"
	"custody/internal/auth/sender"
	authservice "custody/internal/auth/service"
	"custody/internal/auth/store/challenge"
	"custody/internal/auth/store/principal"
	"custody/internal/auth/store/revocation"
	"custody/internal/authz"
	"custody/internal/crypto/envelope"
	"custody/internal/crypto/signing"
	dochandler "custody/internal/document/handler"
	docservice "custody/internal/document/service"
	docstore "custody/internal/document/store"
	jwttoken "custody/internal/jwt_token"
	"custody/internal/keys"
	id "custody/pkg/domain"
	"custody/pkg/platform/audit/publisher"
	auditmemory "custody/pkg/platform/audit/store/memory"
	adminmw "custody/pkg/platform/middleware/admin"
	"custody/pkg/testutil"
)

type AdminHandlerSuite struct {
	suite.Suite
	router    chi.Router
	docs      *docservice.Service
	auth      *authservice.Service
	owner     id.PrincipalID
	custodian id.PrincipalID
}

func TestAdminHandlerSuite(t *testing.T) {
	suite.Run(t, new(AdminHandlerSuite))
}

func (s *AdminHandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	material, err := keys.Load(keys.NewMemoryKeyStore())
	s.Require().NoError(err)
	cipher, err := envelope.New(material.SymmetricKey())
	s.Require().NoError(err)

	events := publisher.NewPublisher(auditmemory.NewInMemoryStore())
	requests := accessstore.NewInMemory()
	documents := docstore.NewInMemory()
	authorizer := authz.New(acl.MustDefault(), accessservice.NewApprovals(requests))
	access := accessservice.New(requests, adapters.NewDocumentFinder(documents), authorizer)
	s.docs = docservice.New(documents, cipher, signing.New(material), authorizer,
		docservice.WithAccessIndex(access), docservice.WithAuditPublisher(events))
	jwt := jwttoken.NewJWTService("admin-test-key", "custody", "custody-api", time.Hour)
	s.auth = authservice.New(principal.New(), challenge.New(), revocation.NewInMemoryTRL(), jwt,
		sender.NewDevSender(logger), authorizer, authservice.WithAuditPublisher(events))

	h := New(s.auth, s.docs, events, authorizer, logger)
	s.router = chi.NewRouter()
	s.router.Group(func(r chi.Router) {
		r.Use(adminmw.RequireRole(logger, id.RoleCustodian))
		h.Register(r)
	})

	s.owner = id.NewPrincipalID()
	s.custodian = id.NewPrincipalID()
}

func (s *AdminHandlerSuite) get(path string, role id.Role) *http.Request {
	return testutil.WithPrincipal(testutil.NewRequest(s.T(), http.MethodGet, path), s.custodian, role)
}

func (s *AdminHandlerSuite) ingest(title string) {
	_, err := s.docs.Ingest(context.Background(), authz.Subject{PrincipalID: s.owner, Role: id.RoleOwner},
		docservice.IngestInput{Title: title, Category: acl.ResourceResume, FileName: "a.txt", ContentType: "text/plain", Content: []byte(title)})
	s.Require().NoError(err)
}

func (s *AdminHandlerSuite) TestRoleGate() {
	rr := testutil.DoRequest(s.router, s.get("/admin/documents", id.RoleOwner))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "forbidden")

	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/admin/principals"))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")
}

func (s *AdminHandlerSuite) TestListPrincipals() {
	_, err := s.auth.Register(context.Background(), authmodels.RegisterInput{
		Identity: "ann@example.com", Password: "long enough pw", Role: "owner",
	})
	s.Require().NoError(err)

	rr := testutil.DoRequest(s.router, s.get("/admin/principals", id.RoleCustodian))
	testutil.AssertStatusOK(s.T(), rr)
	list := testutil.UnmarshalResponse[authhandler.PrincipalListResponse](s.T(), rr)
	s.Require().Len(list.Principals, 1)
	s.Equal("ann@example.com", list.Principals[0].Email)
	s.NotContains(rr.Body.String(), "password")
}

func (s *AdminHandlerSuite) TestDocumentsAndBatchVerify() {
	s.ingest("first")
	s.ingest("second")

	rr := testutil.DoRequest(s.router, s.get("/admin/documents", id.RoleCustodian))
	testutil.AssertStatusOK(s.T(), rr)
	list := testutil.UnmarshalResponse[dochandler.ListResponse](s.T(), rr)
	s.Len(list.Documents, 2)

	req := testutil.WithPrincipal(testutil.NewRequest(s.T(), http.MethodPost, "/admin/documents/verify"), s.custodian, id.RoleCustodian)
	rr = testutil.DoRequest(s.router, req)
	testutil.AssertStatusOK(s.T(), rr)
	batch := testutil.UnmarshalResponse[dochandler.BatchVerifyResponse](s.T(), rr)
	s.Require().Len(batch.Results, 2)
	for _, result := range batch.Results {
		s.False(result.Valid)
		s.Equal("unsigned", result.Reason)
	}
}

func (s *AdminHandlerSuite) TestAudit() {
	s.ingest("audited")

	rr := testutil.DoRequest(s.router, s.get("/admin/audit?limit=10", id.RoleCustodian))
	testutil.AssertStatusOK(s.T(), rr)
	out := testutil.UnmarshalResponse[AuditListResponse](s.T(), rr)
	s.Require().NotEmpty(out.Events)
	s.Equal("document_ingested", out.Events[0].Action)
	s.Equal(s.owner.String(), out.Events[0].PrincipalID)
	s.NotContains(rr.Body.String(), "audited")

	rr = testutil.DoRequest(s.router, s.get("/admin/audit?limit=0", id.RoleCustodian))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
}
