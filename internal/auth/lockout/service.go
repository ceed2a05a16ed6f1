// Package lockout counts credential failures per identity and client IP and
// locks the pair out once the policy limit is reached.
package lockout

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"custody/internal/auth/models"
	"custody/internal/platform/metrics"
	dErrors "custody/pkg/domain-errors"
	"custody/pkg/email"
	"custody/pkg/requestcontext"
)

// ErrLocked is returned by Check while a key is locked.
var ErrLocked = dErrors.New(dErrors.CodeRateLimited, "too many failed attempts, try again later")

type Store interface {
	Get(ctx context.Context, key string) (*models.Lockout, error)
	RecordFailure(ctx context.Context, key string, now, windowStart time.Time) (*models.Lockout, error)
	Lock(ctx context.Context, key string, until time.Time) error
	Clear(ctx context.Context, key string) error
}

type Service struct {
	store   Store
	policy  models.LockoutPolicy
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithPolicy(p models.LockoutPolicy) Option {
	return func(s *Service) {
		if p.MaxFailures > 0 && p.Window > 0 && p.LockDuration > 0 {
			s.policy = p
		}
	}
}

func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("lockout store is required")
	}
	s := &Service{
		store:  store,
		policy: models.DefaultLockoutPolicy(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	return s, nil
}

// Check returns ErrLocked while the identity is locked for the request's
// client IP.
func (s *Service) Check(ctx context.Context, identity string) error {
	record, err := s.store.Get(ctx, s.key(ctx, identity))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read lockout record")
	}
	if record.IsLockedAt(requestcontext.Now(ctx)) {
		return ErrLocked
	}
	return nil
}

// RecordFailure counts one failure and reports whether it triggered a lock.
func (s *Service) RecordFailure(ctx context.Context, identity string) (bool, error) {
	now := requestcontext.Now(ctx)
	key := s.key(ctx, identity)
	record, err := s.store.RecordFailure(ctx, key, now, now.Add(-s.policy.Window))
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record auth failure")
	}
	if record.IsLockedAt(now) || !record.ShouldLock(s.policy) {
		return false, nil
	}

	until := now.Add(s.policy.LockDuration)
	if err := s.store.Lock(ctx, key, until); err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to apply lockout")
	}
	s.logger.WarnContext(ctx, "auth lockout triggered",
		"identity", email.Mask(identity),
		"failures", record.FailureCount,
		"locked_until", until,
	)
	if s.metrics != nil {
		s.metrics.IncrementLockouts()
	}
	return true, nil
}

// Clear forgets the failures after a successful sign-in.
func (s *Service) Clear(ctx context.Context, identity string) error {
	if err := s.store.Clear(ctx, s.key(ctx, identity)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to clear auth failures")
	}
	return nil
}

func (s *Service) key(ctx context.Context, identity string) string {
	return models.LockoutKey(identity, requestcontext.ClientIP(ctx))
}
