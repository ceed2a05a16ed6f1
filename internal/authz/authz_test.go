package authz

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"

	"custody/internal/acl"
	id "custody/pkg/domain"
	dErrors "custody/pkg/domain-errors"
	"custody/pkg/requestcontext"
)

type fakeApprovals struct {
	approved map[[2]string]bool
	err      error
}

func (f *fakeApprovals) IsApproved(_ context.Context, requester id.PrincipalID, doc id.DocumentID) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.approved[[2]string{requester.String(), doc.String()}], nil
}

type AuthorizerSuite struct {
	suite.Suite
	approvals *fakeApprovals
	authz     *Authorizer
	owner     Subject
	reviewer  Subject
	custodian Subject
	doc       DocumentRef
}

func TestAuthorizerSuite(t *testing.T) {
	suite.Run(t, new(AuthorizerSuite))
}

func (s *AuthorizerSuite) SetupTest() {
	s.approvals = &fakeApprovals{approved: map[[2]string]bool{}}
	s.authz = New(acl.MustDefault(), s.approvals)
	s.owner = Subject{PrincipalID: id.NewPrincipalID(), Role: id.RoleOwner}
	s.reviewer = Subject{PrincipalID: id.NewPrincipalID(), Role: id.RoleReviewer}
	s.custodian = Subject{PrincipalID: id.NewPrincipalID(), Role: id.RoleCustodian}
	s.doc = DocumentRef{ID: id.NewDocumentID(), OwnerID: s.owner.PrincipalID, Category: acl.ResourceResume}
}

func (s *AuthorizerSuite) approve(subject Subject, doc DocumentRef) {
	s.approvals.approved[[2]string{subject.PrincipalID.String(), doc.ID.String()}] = true
}

func (s *AuthorizerSuite) TestDisclosure() {
	ctx := context.Background()

	s.Run("owner reads own document", func() {
		s.NoError(s.authz.AuthorizeDisclosure(ctx, s.owner, s.doc))
	})

	s.Run("other owner is denied", func() {
		other := Subject{PrincipalID: id.NewPrincipalID(), Role: id.RoleOwner}
		err := s.authz.AuthorizeDisclosure(ctx, other, s.doc)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("custodian reads everything", func() {
		s.NoError(s.authz.AuthorizeDisclosure(ctx, s.custodian, s.doc))
	})

	s.Run("reviewer without approval is denied with audit context", func() {
		err := s.authz.AuthorizeDisclosure(ctx, s.reviewer, s.doc)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		details := dErrors.DetailsOf(err)
		s.Equal("reviewer", details["role"])
		s.Equal(s.doc.ID.String(), details["document_id"])
		s.Equal("access denied", err.(*dErrors.Error).Message)
	})

	s.Run("reviewer with approval reads", func() {
		s.approve(s.reviewer, s.doc)
		s.NoError(s.authz.AuthorizeDisclosure(ctx, s.reviewer, s.doc))
	})

	s.Run("approval is per document", func() {
		otherDoc := DocumentRef{ID: id.NewDocumentID(), OwnerID: s.owner.PrincipalID, Category: acl.ResourceResume}
		err := s.authz.AuthorizeDisclosure(ctx, s.reviewer, otherDoc)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *AuthorizerSuite) TestApprovalLookupFailureFailsClosed() {
	s.approvals.err = errors.New("store down")
	err := s.authz.AuthorizeDisclosure(context.Background(), s.reviewer, s.doc)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *AuthorizerSuite) TestAuthorizeDocument() {
	ctx := context.Background()

	s.Run("static-only action skips instance layer", func() {
		s.NoError(s.authz.AuthorizeDocument(ctx, s.custodian, acl.ActionAttest, s.doc))
		s.True(dErrors.HasCode(s.authz.AuthorizeDocument(ctx, s.owner, acl.ActionAttest, s.doc), dErrors.CodeForbidden))
	})

	s.Run("instance-scoped action checks ownership", func() {
		s.NoError(s.authz.AuthorizeDocument(ctx, s.owner, acl.ActionViewOwn, s.doc))
		stranger := Subject{PrincipalID: id.NewPrincipalID(), Role: id.RoleOwner}
		s.True(dErrors.HasCode(s.authz.AuthorizeDocument(ctx, stranger, acl.ActionViewOwn, s.doc), dErrors.CodeForbidden))
	})
}

func (s *AuthorizerSuite) TestAuthorize() {
	s.NoError(s.authz.Authorize(s.owner, acl.ResourceOfferLetter, acl.ActionUpload))
	s.NoError(s.authz.Authorize(s.custodian, acl.ResourcePrincipals, acl.ActionManage))

	err := s.authz.Authorize(s.reviewer, acl.ResourceResume, acl.ActionUpload)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	s.Equal("upload", dErrors.DetailsOf(err)["action"])
}

func (s *AuthorizerSuite) TestSubjectFromContext() {
	s.Run("missing principal is unauthorized", func() {
		_, err := SubjectFromContext(context.Background())
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("unknown role is unauthorized", func() {
		ctx := requestcontext.WithPrincipal(context.Background(), id.NewPrincipalID(), id.Role("root"))
		_, err := SubjectFromContext(ctx)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("reads principal and role", func() {
		ctx := requestcontext.WithPrincipal(context.Background(), s.reviewer.PrincipalID, s.reviewer.Role)
		subject, err := SubjectFromContext(ctx)
		s.Require().NoError(err)
		s.Equal(s.reviewer, subject)
	})
}

func (s *AuthorizerSuite) TestMetadataVisibility() {
	stranger := Subject{PrincipalID: id.NewPrincipalID(), Role: id.RoleOwner}

	s.True(s.authz.MetadataVisible(s.owner, s.doc))
	s.True(s.authz.MetadataVisible(s.custodian, s.doc))
	s.True(s.authz.MetadataVisible(s.reviewer, s.doc), "reviewers see metadata before approval")
	s.False(s.authz.MetadataVisible(stranger, s.doc))

	err := s.authz.AuthorizeMetadata(stranger, s.doc)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	s.Equal(s.doc.ID.String(), dErrors.DetailsOf(err)["document_id"])

	s.Error(s.authz.AuthorizeDisclosure(context.Background(), s.reviewer, s.doc), "metadata visibility is not disclosure")
}
