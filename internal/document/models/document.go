package models

import (
	"time"

	"custody/internal/acl"
	"custody/internal/authz"
	"custody/internal/crypto/digest"
	"custody/internal/crypto/envelope"
	id "custody/pkg/domain"
	dErrors "custody/pkg/domain-errors"
)

// Attestation is the custodian's signature over a document's plaintext
// digest. A document either has one (attested) or has none (unattested);
// there is no partially attested state.
type Attestation struct {
	Digest     string         `json:"digest"`
	Signature  string         `json:"signature"`
	AttestedAt time.Time      `json:"attested_at"`
	AttestedBy id.PrincipalID `json:"attested_by"`
}

// NewAttestation rejects a malformed digest or an empty signature.
func NewAttestation(digestHex, signature string, by id.PrincipalID, at time.Time) (*Attestation, error) {
	if !digest.Valid(digestHex) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "attestation digest must be 64 lowercase hex characters")
	}
	if signature == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "attestation signature is required")
	}
	if at.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "attestation time is required")
	}
	return &Attestation{Digest: digestHex, Signature: signature, AttestedAt: at, AttestedBy: by}, nil
}

// Document is an encrypted upload. Ciphertext and IV are fixed at ingestion;
// attestation is the only field that ever changes.
type Document struct {
	ID          id.DocumentID
	OwnerID     id.PrincipalID
	Title       string
	Category    acl.Resource
	FileName    string
	ContentType string
	Ciphertext  []byte
	IV          string
	Attestation *Attestation
	CreatedAt   time.Time
}

// NewDocument builds an unattested document and checks the storage invariants.
func NewDocument(docID id.DocumentID, owner id.PrincipalID, title string, category acl.Resource, fileName, contentType string, ciphertext []byte, iv string, now time.Time) (*Document, error) {
	if docID.IsNil() || owner.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "document requires id and owner")
	}
	if title == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "document title is required")
	}
	if !category.IsDocumentCategory() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "unknown document category")
	}
	if len(ciphertext) == 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "document ciphertext is empty")
	}
	if len(iv) != envelope.IVSize*2 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "document iv must be 32 hex characters")
	}
	return &Document{
		ID:          docID,
		OwnerID:     owner,
		Title:       title,
		Category:    category,
		FileName:    fileName,
		ContentType: contentType,
		Ciphertext:  ciphertext,
		IV:          iv,
		CreatedAt:   now,
	}, nil
}

func (d *Document) IsAttested() bool {
	return d.Attestation != nil
}

// Ref is the authorization view of the document.
func (d *Document) Ref() authz.DocumentRef {
	return authz.DocumentRef{ID: d.ID, OwnerID: d.OwnerID, Category: d.Category}
}

func (d *Document) Clone() *Document {
	c := *d
	c.Ciphertext = append([]byte(nil), d.Ciphertext...)
	if d.Attestation != nil {
		a := *d.Attestation
		c.Attestation = &a
	}
	return &c
}

// ListFilter narrows listings. A nil OwnerID lists every document.
type ListFilter struct {
	OwnerID id.PrincipalID
}

func (f ListFilter) Matches(d *Document) bool {
	return f.OwnerID.IsNil() || d.OwnerID == f.OwnerID
}
