package challenge

import (
	"context"
	"sync"
	"time"

	"custody/internal/auth/models"
	"custody/pkg/platform/sentinel"
)

// InMemoryChallengeStore holds one pending challenge per identity.
type InMemoryChallengeStore struct {
	mu         sync.Mutex
	challenges map[string]models.PendingChallenge
}

func New() *InMemoryChallengeStore {
	return &InMemoryChallengeStore{challenges: make(map[string]models.PendingChallenge)}
}

// Put replaces any challenge already pending for the identity.
func (s *InMemoryChallengeStore) Put(_ context.Context, c *models.PendingChallenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges[c.Identity] = *c
	return nil
}

// Consume compares and clears in one critical section:
//   - nothing pending: sentinel.ErrNotFound
//   - past expiry: the challenge is removed, sentinel.ErrExpired
//   - wrong code: the challenge stays, sentinel.ErrMismatch, until the
//     last allowed attempt removes it with sentinel.ErrExhausted
//   - match: the challenge is removed and returned
func (s *InMemoryChallengeStore) Consume(_ context.Context, identity, code string, now time.Time) (*models.PendingChallenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.challenges[identity]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if c.IsExpired(now) {
		delete(s.challenges, identity)
		return nil, sentinel.ErrExpired
	}
	if !c.Matches(code) {
		if c.RecordMismatch() {
			delete(s.challenges, identity)
			return nil, sentinel.ErrExhausted
		}
		s.challenges[identity] = c
		return nil, sentinel.ErrMismatch
	}
	delete(s.challenges, identity)
	return &c, nil
}
