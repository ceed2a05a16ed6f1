package service

import (
	"context"

	accessmodels "custody/internal/access/models"
	"custody/internal/document/models"
	id "custody/pkg/domain"
)

// Store persists documents. Lookups return sentinel.ErrNotFound.
type Store interface {
	Create(ctx context.Context, doc *models.Document) error
	FindByID(ctx context.Context, docID id.DocumentID) (*models.Document, error)
	List(ctx context.Context, filter models.ListFilter) ([]*models.Document, error)
	Attest(ctx context.Context, docID id.DocumentID, attest func(*models.Document) (*models.Attestation, error)) (*models.Document, error)
	Delete(ctx context.Context, docID id.DocumentID) error
}

type Cipher interface {
	Encrypt(plaintext []byte) ([]byte, string, error)
	Decrypt(ciphertext []byte, ivHex string) ([]byte, error)
}

type Signer interface {
	Sign(digestHex string) (string, error)
	Verify(digestHex, signature string) bool
}

// AccessIndex exposes a reviewer's requests keyed by document.
type AccessIndex interface {
	ForRequester(ctx context.Context, requester id.PrincipalID) (map[id.DocumentID]*accessmodels.AccessRequest, error)
}
