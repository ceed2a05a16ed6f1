package service

import (
	"context"

	"golang.org/x/sync/errgroup"

	"custody/internal/acl"
	"custody/internal/authz"
	"custody/internal/document/models"
	"custody/internal/verification"
	id "custody/pkg/domain"
	dErrors "custody/pkg/domain-errors"
)

// AccessStatusNone marks a document the reviewer has not requested.
const AccessStatusNone = "none"

// ListItem is a document as shown in a listing. Access fields are set only
// for principals who obtain documents through access requests.
type ListItem struct {
	Document        *models.Document
	AccessStatus    string
	AccessRequestID *id.AccessRequestID
}

// TokenCheck is the result of checking a token offline.
type TokenCheck struct {
	Payload        verification.Payload
	SignatureValid bool
}

// List returns the documents subject may see. Owners see their own;
// custodians and reviewers see all documents in categories they hold a
// view action on, and reviewers additionally get their request status.
func (s *Service) List(ctx context.Context, subject authz.Subject) ([]ListItem, error) {
	var filter models.ListFilter
	if !s.seesAll(subject.Role) {
		filter.OwnerID = subject.PrincipalID
	}
	docs, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list documents")
	}

	var requests map[id.DocumentID]*accessRequestView
	if s.access != nil && s.requestsAccess(subject.Role) {
		index, err := s.access.ForRequester(ctx, subject.PrincipalID)
		if err != nil {
			return nil, err
		}
		requests = make(map[id.DocumentID]*accessRequestView, len(index))
		for docID, req := range index {
			reqID := req.ID
			requests[docID] = &accessRequestView{status: req.Status.String(), id: &reqID}
		}
	}

	items := make([]ListItem, 0, len(docs))
	for _, doc := range docs {
		if !s.authorizer.MetadataVisible(subject, doc.Ref()) {
			continue
		}
		item := ListItem{Document: doc}
		if requests != nil {
			item.AccessStatus = AccessStatusNone
			if view, ok := requests[doc.ID]; ok {
				item.AccessStatus = view.status
				item.AccessRequestID = view.id
			}
		}
		items = append(items, item)
	}
	return items, nil
}

type accessRequestView struct {
	status string
	id     *id.AccessRequestID
}

// ListAll is the administrative listing of every document.
func (s *Service) ListAll(ctx context.Context, subject authz.Subject) ([]*models.Document, error) {
	if err := s.authorizer.Authorize(subject, acl.ResourcePrincipals, acl.ActionViewAll); err != nil {
		s.logDenied(ctx, subject, err)
		return nil, err
	}
	docs, err := s.store.List(ctx, models.ListFilter{})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list documents")
	}
	return docs, nil
}

func (s *Service) seesAll(role id.Role) bool {
	for _, category := range acl.DocumentCategories() {
		if s.authorizer.StaticAllowed(role, category, acl.ActionViewAll) ||
			s.authorizer.StaticAllowed(role, category, acl.ActionViewApproved) {
			return true
		}
	}
	return false
}

func (s *Service) requestsAccess(role id.Role) bool {
	for _, category := range acl.DocumentCategories() {
		if s.authorizer.StaticAllowed(role, category, acl.ActionViewApproved) &&
			!s.authorizer.StaticAllowed(role, category, acl.ActionViewAll) {
			return true
		}
	}
	return false
}

// Token packages an attested document's digest and signature for offline
// checking.
func (s *Service) Token(ctx context.Context, subject authz.Subject, docID id.DocumentID) (string, error) {
	doc, err := s.load(ctx, docID)
	if err != nil {
		return "", err
	}
	if err := s.authorizer.AuthorizeMetadata(subject, doc.Ref()); err != nil {
		s.logDenied(ctx, subject, err)
		return "", err
	}
	if !doc.IsAttested() {
		return "", dErrors.New(dErrors.CodeInvalidState, "document is not attested")
	}
	return verification.Encode(verification.Payload{
		DocumentID: doc.ID.String(),
		Digest:     doc.Attestation.Digest,
		Signature:  doc.Attestation.Signature,
		Signer:     s.signerLabel,
	})
}

// TokenQR renders Token as a PNG QR code.
func (s *Service) TokenQR(ctx context.Context, subject authz.Subject, docID id.DocumentID, size int) ([]byte, error) {
	token, err := s.Token(ctx, subject, docID)
	if err != nil {
		return nil, err
	}
	return verification.RenderQR(token, size)
}

// CheckToken decodes a token and verifies its signature under the current
// public key. It does not consult storage.
func (s *Service) CheckToken(token string) (*TokenCheck, error) {
	payload, err := verification.Decode(token)
	if err != nil {
		return nil, err
	}
	return &TokenCheck{
		Payload:        payload,
		SignatureValid: s.signer.Verify(payload.Digest, payload.Signature),
	}, nil
}

// VerifyToken is CheckToken for callers that only accept an authentic token:
// a signature that does not verify fails with CodeSignatureInvalid.
func (s *Service) VerifyToken(token string) (*TokenCheck, error) {
	check, err := s.CheckToken(token)
	if err != nil {
		return nil, err
	}
	if !check.SignatureValid {
		return nil, dErrors.New(dErrors.CodeSignatureInvalid, "token signature does not verify").
			WithDetails("document_id", check.Payload.DocumentID)
	}
	return check, nil
}

// VerifyAll checks every document with bounded concurrency. Verdicts are
// returned in listing order.
func (s *Service) VerifyAll(ctx context.Context, subject authz.Subject) ([]*models.Verdict, error) {
	if err := s.authorizer.Authorize(subject, acl.ResourcePrincipals, acl.ActionViewAll); err != nil {
		s.logDenied(ctx, subject, err)
		return nil, err
	}
	docs, err := s.store.List(ctx, models.ListFilter{})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list documents")
	}

	verdicts := make([]*models.Verdict, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.batchConcurrency)
	for i, doc := range docs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			verdicts[i] = s.check(doc)
			if s.metrics != nil {
				s.metrics.ObserveVerification(string(verdicts[i].Reason))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "batch verification interrupted")
	}
	return verdicts, nil
}
