package lockout

import (
	"context"
	"sync"
	"time"

	"custody/internal/auth/models"
)

// InMemoryStore keeps lockout records per key.
type InMemoryStore struct {
	mu      sync.Mutex
	records map[string]models.Lockout
}

func New() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]models.Lockout)}
}

// Get returns nil, nil for a key with no failures.
func (s *InMemoryStore) Get(_ context.Context, key string) (*models.Lockout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[key]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

// RecordFailure increments the count, restarting it when the previous failure
// happened before windowStart.
func (s *InMemoryStore) RecordFailure(_ context.Context, key string, now, windowStart time.Time) (*models.Lockout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[key]
	if !ok {
		r = models.Lockout{Key: key}
	}
	if r.LastFailureAt.Before(windowStart) {
		r.FailureCount = 0
	}
	r.FailureCount++
	r.LastFailureAt = now
	s.records[key] = r
	return &r, nil
}

func (s *InMemoryStore) Lock(_ context.Context, key string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[key]
	if !ok {
		r = models.Lockout{Key: key, LastFailureAt: until}
	}
	r.LockedUntil = &until
	s.records[key] = r
	return nil
}

func (s *InMemoryStore) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}
