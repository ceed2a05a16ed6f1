// Package adapters maps other modules' types onto the access service's ports.
package adapters

import (
	"context"

	"custody/internal/authz"
	docmodels "custody/internal/document/models"
	id "custody/pkg/domain"
)

// documentLookup is the part of the document store the adapter reads.
// Defined locally so access does not depend on document storage.
type documentLookup interface {
	FindByID(ctx context.Context, docID id.DocumentID) (*docmodels.Document, error)
}

// DocumentFinder adapts a document store to service.DocumentFinder.
type DocumentFinder struct {
	documents documentLookup
}

func NewDocumentFinder(documents documentLookup) *DocumentFinder {
	return &DocumentFinder{documents: documents}
}

// FindRef returns the document's authorization view. Store errors, including
// sentinel.ErrNotFound, pass through.
func (a *DocumentFinder) FindRef(ctx context.Context, docID id.DocumentID) (authz.DocumentRef, error) {
	doc, err := a.documents.FindByID(ctx, docID)
	if err != nil {
		return authz.DocumentRef{}, err
	}
	return doc.Ref(), nil
}
