package principal

import (
	"context"
	"slices"
	"sync"

	"custody/internal/auth/models"
	id "custody/pkg/domain"
	"custody/pkg/platform/sentinel"
)

// InMemoryPrincipalStore indexes principals by id and identity.
type InMemoryPrincipalStore struct {
	mu         sync.RWMutex
	byID       map[id.PrincipalID]*models.Principal
	byIdentity map[string]id.PrincipalID
}

func New() *InMemoryPrincipalStore {
	return &InMemoryPrincipalStore{
		byID:       make(map[id.PrincipalID]*models.Principal),
		byIdentity: make(map[string]id.PrincipalID),
	}
}

// Create inserts p. An existing identity or id yields sentinel.ErrConflict.
func (s *InMemoryPrincipalStore) Create(_ context.Context, p *models.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byIdentity[p.Identity]; ok {
		return sentinel.ErrConflict
	}
	if _, ok := s.byID[p.ID]; ok {
		return sentinel.ErrConflict
	}
	s.byID[p.ID] = p.Clone()
	s.byIdentity[p.Identity] = p.ID
	return nil
}

func (s *InMemoryPrincipalStore) FindByID(_ context.Context, principalID id.PrincipalID) (*models.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[principalID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return p.Clone(), nil
}

func (s *InMemoryPrincipalStore) FindByIdentity(_ context.Context, identity string) (*models.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	principalID, ok := s.byIdentity[identity]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.byID[principalID].Clone(), nil
}

// List returns principals oldest first.
func (s *InMemoryPrincipalStore) List(_ context.Context) ([]*models.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Principal, 0, len(s.byID))
	for _, p := range s.byID {
		out = append(out, p.Clone())
	}
	slices.SortFunc(out, func(a, b *models.Principal) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if a.Identity < b.Identity {
			return -1
		}
		if a.Identity > b.Identity {
			return 1
		}
		return 0
	})
	return out, nil
}
