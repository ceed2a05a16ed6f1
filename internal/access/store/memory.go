// Package store persists access requests. Both implementations make
// create-if-absent and decide-if-pending single atomic steps.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"custody/internal/access/models"
	id "custody/pkg/domain"
	"custody/pkg/platform/sentinel"
)

type pairKey struct {
	requester id.PrincipalID
	document  id.DocumentID
}

// InMemory guards every operation with one mutex; the pair index is updated
// under the same lock as the uniqueness check.
type InMemory struct {
	mu     sync.RWMutex
	byID   map[id.AccessRequestID]*models.AccessRequest
	byPair map[pairKey]id.AccessRequestID
}

func NewInMemory() *InMemory {
	return &InMemory{
		byID:   make(map[id.AccessRequestID]*models.AccessRequest),
		byPair: make(map[pairKey]id.AccessRequestID),
	}
}

// CreateIfAbsent stores req unless a request for the same pair exists.
func (s *InMemory) CreateIfAbsent(_ context.Context, req *models.AccessRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey{requester: req.RequesterID, document: req.DocumentID}
	if _, exists := s.byPair[key]; exists {
		return fmt.Errorf("access request for pair: %w", sentinel.ErrConflict)
	}
	if _, exists := s.byID[req.ID]; exists {
		return fmt.Errorf("access request id: %w", sentinel.ErrConflict)
	}
	s.byID[req.ID] = req.Clone()
	s.byPair[key] = req.ID
	return nil
}

func (s *InMemory) FindByID(_ context.Context, requestID id.AccessRequestID) (*models.AccessRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.byID[requestID]
	if !ok {
		return nil, fmt.Errorf("access request not found: %w", sentinel.ErrNotFound)
	}
	return req.Clone(), nil
}

func (s *InMemory) FindByPair(_ context.Context, requester id.PrincipalID, documentID id.DocumentID) (*models.AccessRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reqID, ok := s.byPair[pairKey{requester: requester, document: documentID}]
	if !ok {
		return nil, fmt.Errorf("access request not found: %w", sentinel.ErrNotFound)
	}
	return s.byID[reqID].Clone(), nil
}

// List returns matching requests, oldest first.
func (s *InMemory) List(_ context.Context, filter models.ListFilter) ([]*models.AccessRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.AccessRequest, 0)
	for _, req := range s.byID {
		if filter.Matches(req) {
			out = append(out, req.Clone())
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

// Execute runs validate then mutate on the stored request under the write
// lock. If validate fails nothing is written and its error is returned as is.
func (s *InMemory) Execute(_ context.Context, requestID id.AccessRequestID, validate func(*models.AccessRequest) error, mutate func(*models.AccessRequest)) (*models.AccessRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.byID[requestID]
	if !ok {
		return nil, fmt.Errorf("access request not found: %w", sentinel.ErrNotFound)
	}
	working := stored.Clone()
	if err := validate(working); err != nil {
		return nil, err
	}
	mutate(working)
	s.byID[requestID] = working
	return working.Clone(), nil
}
