// Package store persists encrypted documents.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"custody/internal/document/models"
	id "custody/pkg/domain"
	"custody/pkg/platform/sentinel"
)

type InMemory struct {
	mu   sync.RWMutex
	docs map[id.DocumentID]*models.Document
}

func NewInMemory() *InMemory {
	return &InMemory{docs: make(map[id.DocumentID]*models.Document)}
}

func (s *InMemory) Create(_ context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.docs[doc.ID]; exists {
		return fmt.Errorf("document %s: %w", doc.ID, sentinel.ErrConflict)
	}
	s.docs[doc.ID] = doc.Clone()
	return nil
}

func (s *InMemory) FindByID(_ context.Context, docID id.DocumentID) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[docID]
	if !ok {
		return nil, fmt.Errorf("document not found: %w", sentinel.ErrNotFound)
	}
	return doc.Clone(), nil
}

// List returns matching documents, oldest first.
func (s *InMemory) List(_ context.Context, filter models.ListFilter) ([]*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Document, 0, len(s.docs))
	for _, doc := range s.docs {
		if filter.Matches(doc) {
			out = append(out, doc.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Attest computes an attestation from the stored document and saves it as
// one step. Only the attestation is written back.
func (s *InMemory) Attest(_ context.Context, docID id.DocumentID, attest func(*models.Document) (*models.Attestation, error)) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[docID]
	if !ok {
		return nil, fmt.Errorf("document not found: %w", sentinel.ErrNotFound)
	}
	attestation, err := attest(doc.Clone())
	if err != nil {
		return nil, err
	}
	doc.Attestation = attestation
	return doc.Clone(), nil
}

func (s *InMemory) Delete(_ context.Context, docID id.DocumentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[docID]; !ok {
		return fmt.Errorf("document not found: %w", sentinel.ErrNotFound)
	}
	delete(s.docs, docID)
	return nil
}
