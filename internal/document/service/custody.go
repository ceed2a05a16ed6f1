package service

import (
	"context"
	"errors"
	"time"

	"custody/internal/acl"
	"custody/internal/authz"
	"custody/internal/crypto/digest"
	"custody/internal/document/models"
	id "custody/pkg/domain"
	dErrors "custody/pkg/domain-errors"
	"custody/pkg/platform/audit"
	"custody/pkg/platform/sentinel"
	"custody/pkg/requestcontext"
)

// IngestInput is an upload before encryption.
type IngestInput struct {
	Title       string
	Category    acl.Resource
	FileName    string
	ContentType string
	Content     []byte
}

// Disclosure is decrypted document content.
type Disclosure struct {
	FileName    string
	ContentType string
	Content     []byte
}

// Ingest encrypts an upload under a fresh IV and stores it unattested.
func (s *Service) Ingest(ctx context.Context, subject authz.Subject, in IngestInput) (*models.Document, error) {
	if err := s.authorizer.Authorize(subject, in.Category, acl.ActionUpload); err != nil {
		s.logDenied(ctx, subject, err)
		return nil, err
	}
	if len(in.Content) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "document content is empty")
	}

	start := time.Now()
	ciphertext, iv, err := s.cipher.Encrypt(in.Content)
	s.timeCrypto("encrypt", start)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encrypt document")
	}

	doc, err := models.NewDocument(id.NewDocumentID(), subject.PrincipalID, in.Title, in.Category,
		in.FileName, in.ContentType, ciphertext, iv, requestcontext.Now(ctx))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, err
	}
	if err := s.store.Create(ctx, doc); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store document")
	}

	s.logAudit(ctx, string(audit.EventDocumentIngested),
		"principal_id", subject.PrincipalID.String(),
		"role", subject.Role.String(),
		"subject", doc.ID.String(),
		"category", doc.Category.String(),
	)
	if s.metrics != nil {
		s.metrics.IncrementIngested()
	}
	return doc, nil
}

// Attest decrypts, digests and signs the current ciphertext and records the
// result. Re-attesting replaces the previous attestation.
func (s *Service) Attest(ctx context.Context, subject authz.Subject, docID id.DocumentID) (_ *models.Document, err error) {
	ctx, span := s.startSpan(ctx, "document.Attest", docID)
	defer func() { endSpan(span, err) }()

	doc, err := s.load(ctx, docID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizer.AuthorizeDocument(ctx, subject, acl.ActionAttest, doc.Ref()); err != nil {
		s.logDenied(ctx, subject, err)
		return nil, err
	}

	now := requestcontext.Now(ctx)
	updated, err := s.store.Attest(ctx, docID, func(current *models.Document) (*models.Attestation, error) {
		plaintext, err := s.decrypt(current)
		if err != nil {
			return nil, err
		}
		digestHex := digest.Hex(plaintext)

		start := time.Now()
		signature, err := s.signer.Sign(digestHex)
		s.timeCrypto("sign", start)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign digest")
		}
		return models.NewAttestation(digestHex, signature, subject.PrincipalID, now)
	})
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeNotFound, "document not found")
		case dErrors.HasCode(err, dErrors.CodeIntegrity), dErrors.HasCode(err, dErrors.CodeInternal):
			return nil, err
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to attest document")
		}
	}

	s.logAudit(ctx, string(audit.EventDocumentAttested),
		"principal_id", subject.PrincipalID.String(),
		"role", subject.Role.String(),
		"subject", docID.String(),
	)
	if s.metrics != nil {
		s.metrics.IncrementAttested()
	}
	return updated, nil
}

// Verify re-derives the digest from the stored ciphertext and checks it and
// the stored signature. Tampering yields an invalid verdict, not an error.
func (s *Service) Verify(ctx context.Context, subject authz.Subject, docID id.DocumentID) (_ *models.Verdict, err error) {
	ctx, span := s.startSpan(ctx, "document.Verify", docID)
	defer func() { endSpan(span, err) }()

	doc, err := s.load(ctx, docID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizer.AuthorizeMetadata(subject, doc.Ref()); err != nil {
		s.logDenied(ctx, subject, err)
		return nil, err
	}

	verdict := s.check(doc)
	s.logAudit(ctx, string(audit.EventDocumentVerified),
		"principal_id", subject.PrincipalID.String(),
		"role", subject.Role.String(),
		"subject", docID.String(),
		"decision", string(verdict.Reason),
	)
	if s.metrics != nil {
		s.metrics.ObserveVerification(string(verdict.Reason))
	}
	return verdict, nil
}

// check computes the verdict for doc without authorization or side effects.
func (s *Service) check(doc *models.Document) *models.Verdict {
	if !doc.IsAttested() {
		return models.Unsigned(doc.ID)
	}
	att := doc.Attestation

	integrityOK := false
	if plaintext, err := s.decrypt(doc); err == nil {
		integrityOK = digest.Equal(digest.Hex(plaintext), att.Digest)
	}

	start := time.Now()
	signatureOK := s.signer.Verify(att.Digest, att.Signature)
	s.timeCrypto("verify", start)

	verdict := models.Combine(doc.ID, integrityOK, signatureOK)
	verdict.Signer = s.signerLabel
	verdict.Digest = att.Digest
	verdict.AttestedAt = att.AttestedAt
	return verdict
}

// Disclose decrypts a document for a principal who may read it.
func (s *Service) Disclose(ctx context.Context, subject authz.Subject, docID id.DocumentID) (_ *Disclosure, err error) {
	ctx, span := s.startSpan(ctx, "document.Disclose", docID)
	defer func() { endSpan(span, err) }()

	doc, err := s.load(ctx, docID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizer.AuthorizeDisclosure(ctx, subject, doc.Ref()); err != nil {
		if dErrors.HasCode(err, dErrors.CodeForbidden) {
			s.logDenied(ctx, subject, err)
		}
		return nil, err
	}
	plaintext, err := s.decrypt(doc)
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, string(audit.EventDocumentDisclosed),
		"principal_id", subject.PrincipalID.String(),
		"role", subject.Role.String(),
		"subject", docID.String(),
	)
	if s.metrics != nil {
		s.metrics.IncrementDisclosed()
	}
	return &Disclosure{FileName: doc.FileName, ContentType: doc.ContentType, Content: plaintext}, nil
}

// Delete removes a document. Access requests against it are kept.
func (s *Service) Delete(ctx context.Context, subject authz.Subject, docID id.DocumentID) error {
	doc, err := s.load(ctx, docID)
	if err != nil {
		return err
	}
	if err := s.authorizer.AuthorizeDocument(ctx, subject, acl.ActionDelete, doc.Ref()); err != nil {
		s.logDenied(ctx, subject, err)
		return err
	}
	if err := s.store.Delete(ctx, docID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "document not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete document")
	}

	s.logAudit(ctx, string(audit.EventDocumentDeleted),
		"principal_id", subject.PrincipalID.String(),
		"role", subject.Role.String(),
		"subject", docID.String(),
	)
	if s.metrics != nil {
		s.metrics.IncrementDeleted()
	}
	return nil
}

func (s *Service) decrypt(doc *models.Document) ([]byte, error) {
	start := time.Now()
	defer s.timeCrypto("decrypt", start)
	plaintext, err := s.cipher.Decrypt(doc.Ciphertext, doc.IV)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeIntegrity) {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeIntegrity, "failed to decrypt document")
	}
	return plaintext, nil
}
