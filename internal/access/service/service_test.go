package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"custody/internal/access/models"
	"custody/internal/access/service/mocks"
	"custody/internal/access/store"
	"custody/internal/acl"
	"custody/internal/authz"
	id "custody/pkg/domain"
	dErrors "custody/pkg/domain-errors"
	"custody/pkg/platform/audit"
	auditmemory "custody/pkg/platform/audit/store/memory"
	"custody/pkg/platform/audit/publisher"
	"custody/pkg/platform/sentinel"
	"custody/pkg/requestcontext"
)

// =============================================================================
// Error propagation (mocked collaborators)
// =============================================================================

type AccessServiceMockSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	store     *mocks.MockStore
	documents *mocks.MockDocumentFinder
	service   *Service
	reviewer  authz.Subject
	custodian authz.Subject
}

func TestAccessServiceMockSuite(t *testing.T) {
	suite.Run(t, new(AccessServiceMockSuite))
}

func (s *AccessServiceMockSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.store = mocks.NewMockStore(s.ctrl)
	s.documents = mocks.NewMockDocumentFinder(s.ctrl)
	authorizer := authz.New(acl.MustDefault(), NewApprovals(s.store))
	s.service = New(s.store, s.documents, authorizer, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	s.reviewer = authz.Subject{PrincipalID: id.NewPrincipalID(), Role: id.RoleReviewer}
	s.custodian = authz.Subject{PrincipalID: id.NewPrincipalID(), Role: id.RoleCustodian}
}

func (s *AccessServiceMockSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *AccessServiceMockSuite) TestCreateErrors() {
	ctx := context.Background()
	docID := id.NewDocumentID()

	s.Run("missing document is NotFound", func() {
		s.documents.EXPECT().FindRef(gomock.Any(), docID).Return(authz.DocumentRef{}, sentinel.ErrNotFound)
		_, err := s.service.Create(ctx, s.reviewer, docID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("document lookup failure is Internal", func() {
		s.documents.EXPECT().FindRef(gomock.Any(), docID).Return(authz.DocumentRef{}, errors.New("db down"))
		_, err := s.service.Create(ctx, s.reviewer, docID)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})

	s.Run("store conflict becomes Conflict", func() {
		s.documents.EXPECT().FindRef(gomock.Any(), docID).Return(authz.DocumentRef{ID: docID, OwnerID: id.NewPrincipalID(), Category: acl.ResourceResume}, nil)
		s.store.EXPECT().CreateIfAbsent(gomock.Any(), gomock.Any()).Return(sentinel.ErrConflict)
		_, err := s.service.Create(ctx, s.reviewer, docID)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("owner role cannot request access", func() {
		owner := authz.Subject{PrincipalID: id.NewPrincipalID(), Role: id.RoleOwner}
		s.documents.EXPECT().FindRef(gomock.Any(), docID).Return(authz.DocumentRef{ID: docID, OwnerID: id.NewPrincipalID(), Category: acl.ResourceResume}, nil)
		_, err := s.service.Create(ctx, owner, docID)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *AccessServiceMockSuite) TestDecideErrors() {
	ctx := context.Background()
	reqID := id.NewAccessRequestID()

	s.Run("reviewer cannot decide", func() {
		_, err := s.service.Decide(ctx, s.reviewer, reqID, models.StatusApproved)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("unknown request is NotFound", func() {
		s.store.EXPECT().Execute(gomock.Any(), reqID, gomock.Any(), gomock.Any()).Return(nil, sentinel.ErrNotFound)
		_, err := s.service.Decide(ctx, s.custodian, reqID, models.StatusApproved)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("store failure is Internal", func() {
		s.store.EXPECT().Execute(gomock.Any(), reqID, gomock.Any(), gomock.Any()).Return(nil, errors.New("tx aborted"))
		_, err := s.service.Decide(ctx, s.custodian, reqID, models.StatusRejected)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

func (s *AccessServiceMockSuite) TestIsApproved() {
	ctx := context.Background()
	requester, docID := id.NewPrincipalID(), id.NewDocumentID()

	s.Run("no request is false", func() {
		s.store.EXPECT().FindByPair(gomock.Any(), requester, docID).Return(nil, sentinel.ErrNotFound)
		ok, err := s.service.IsApproved(ctx, requester, docID)
		s.Require().NoError(err)
		s.False(ok)
	})

	s.Run("store failure propagates", func() {
		s.store.EXPECT().FindByPair(gomock.Any(), requester, docID).Return(nil, errors.New("boom"))
		_, err := s.service.IsApproved(ctx, requester, docID)
		s.Error(err)
	})
}

// =============================================================================
// State machine (in-memory store)
// =============================================================================

type fakeDocuments map[id.DocumentID]authz.DocumentRef

func (f fakeDocuments) FindRef(_ context.Context, documentID id.DocumentID) (authz.DocumentRef, error) {
	ref, ok := f[documentID]
	if !ok {
		return authz.DocumentRef{}, sentinel.ErrNotFound
	}
	return ref, nil
}

type AccessServiceSuite struct {
	suite.Suite
	store      *store.InMemory
	docs       fakeDocuments
	authorizer *authz.Authorizer
	audit      *publisher.Publisher
	service    *Service
	owner      authz.Subject
	reviewer   authz.Subject
	custodian  authz.Subject
	doc        authz.DocumentRef
	now        time.Time
}

func TestAccessServiceSuite(t *testing.T) {
	suite.Run(t, new(AccessServiceSuite))
}

func (s *AccessServiceSuite) SetupTest() {
	s.store = store.NewInMemory()
	s.docs = fakeDocuments{}
	s.authorizer = authz.New(acl.MustDefault(), NewApprovals(s.store))
	s.audit = publisher.NewPublisher(auditmemory.NewInMemoryStore())
	s.service = New(s.store, s.docs, s.authorizer, WithAuditPublisher(s.audit))

	s.owner = authz.Subject{PrincipalID: id.NewPrincipalID(), Role: id.RoleOwner}
	s.reviewer = authz.Subject{PrincipalID: id.NewPrincipalID(), Role: id.RoleReviewer}
	s.custodian = authz.Subject{PrincipalID: id.NewPrincipalID(), Role: id.RoleCustodian}
	s.doc = authz.DocumentRef{ID: id.NewDocumentID(), OwnerID: s.owner.PrincipalID, Category: acl.ResourceOfferLetter}
	s.docs[s.doc.ID] = s.doc
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func (s *AccessServiceSuite) ctx() context.Context {
	return requestcontext.WithTime(context.Background(), s.now)
}

func (s *AccessServiceSuite) TestRequestApproveDisclose() {
	ctx := s.ctx()

	s.Require().Error(s.authorizer.AuthorizeDisclosure(ctx, s.reviewer, s.doc), "no request yet")

	req, err := s.service.Create(ctx, s.reviewer, s.doc.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, req.Status)
	s.Equal(s.owner.PrincipalID, req.OwnerID)
	s.Equal(s.now, req.CreatedAt)

	s.Require().Error(s.authorizer.AuthorizeDisclosure(ctx, s.reviewer, s.doc), "pending is not approval")

	decided, err := s.service.Decide(ctx, s.custodian, req.ID, models.StatusApproved)
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, decided.Status)
	s.Require().NotNil(decided.DecidedBy)
	s.Equal(s.custodian.PrincipalID, *decided.DecidedBy)

	s.NoError(s.authorizer.AuthorizeDisclosure(ctx, s.reviewer, s.doc))

	_, err = s.service.Create(ctx, s.reviewer, s.doc.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *AccessServiceSuite) TestDecisionIsFinal() {
	ctx := s.ctx()
	req, err := s.service.Create(ctx, s.reviewer, s.doc.ID)
	s.Require().NoError(err)

	_, err = s.service.Decide(ctx, s.custodian, req.ID, models.StatusRejected)
	s.Require().NoError(err)

	_, err = s.service.Decide(ctx, s.custodian, req.ID, models.StatusApproved)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))

	ok, err := s.service.IsApproved(ctx, s.reviewer.PrincipalID, s.doc.ID)
	s.Require().NoError(err)
	s.False(ok)

	_, err = s.service.Create(ctx, s.reviewer, s.doc.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict), "rejected requests are not reopened")
}

func (s *AccessServiceSuite) TestDecideRejectsNonTerminalOutcome() {
	ctx := s.ctx()
	req, err := s.service.Create(ctx, s.reviewer, s.doc.ID)
	s.Require().NoError(err)

	_, err = s.service.Decide(ctx, s.custodian, req.ID, models.StatusPending)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *AccessServiceSuite) TestApprovalIsPerDocument() {
	ctx := s.ctx()
	other := authz.DocumentRef{ID: id.NewDocumentID(), OwnerID: s.owner.PrincipalID, Category: acl.ResourceOfferLetter}
	s.docs[other.ID] = other

	req, err := s.service.Create(ctx, s.reviewer, s.doc.ID)
	s.Require().NoError(err)
	_, err = s.service.Decide(ctx, s.custodian, req.ID, models.StatusApproved)
	s.Require().NoError(err)

	s.NoError(s.authorizer.AuthorizeDisclosure(ctx, s.reviewer, s.doc))
	s.Error(s.authorizer.AuthorizeDisclosure(ctx, s.reviewer, other))

	stranger := authz.Subject{PrincipalID: id.NewPrincipalID(), Role: id.RoleReviewer}
	s.Error(s.authorizer.AuthorizeDisclosure(ctx, stranger, s.doc))
}

func (s *AccessServiceSuite) TestListVisibility() {
	ctx := s.ctx()
	otherReviewer := authz.Subject{PrincipalID: id.NewPrincipalID(), Role: id.RoleReviewer}
	_, err := s.service.Create(ctx, s.reviewer, s.doc.ID)
	s.Require().NoError(err)
	_, err = s.service.Create(ctx, otherReviewer, s.doc.ID)
	s.Require().NoError(err)

	all, err := s.service.List(ctx, s.custodian)
	s.Require().NoError(err)
	s.Len(all, 2)

	mine, err := s.service.List(ctx, s.reviewer)
	s.Require().NoError(err)
	s.Require().Len(mine, 1)
	s.Equal(s.reviewer.PrincipalID, mine[0].RequesterID)

	owned, err := s.service.List(ctx, s.owner)
	s.Require().NoError(err)
	s.Len(owned, 2)

	index, err := s.service.ForRequester(ctx, s.reviewer.PrincipalID)
	s.Require().NoError(err)
	s.Contains(index, s.doc.ID)
}

func (s *AccessServiceSuite) TestAuditTrail() {
	ctx := s.ctx()
	req, err := s.service.Create(ctx, s.reviewer, s.doc.ID)
	s.Require().NoError(err)
	_, err = s.service.Decide(ctx, s.reviewer, req.ID, models.StatusApproved)
	s.Require().Error(err)
	_, err = s.service.Decide(ctx, s.custodian, req.ID, models.StatusApproved)
	s.Require().NoError(err)

	events, err := s.audit.Recent(ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(events, 3)
	s.Equal(string(audit.EventAccessDecided), events[0].Action)
	s.Equal("approved", events[0].Decision)
	s.Equal(string(audit.EventAuthorizationDenied), events[1].Action)
	s.Equal(audit.CategorySecurity, events[1].Category)
	s.Equal(string(audit.EventAccessRequested), events[2].Action)
	s.Equal(s.reviewer.PrincipalID, events[2].PrincipalID)
}
