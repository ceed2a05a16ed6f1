package service

import (
	"context"
	"time"

	"custody/internal/auth/models"
	jwttoken "custody/internal/jwt_token"
	id "custody/pkg/domain"
)

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks

// PrincipalStore returns sentinel.ErrNotFound for unknown principals and
// sentinel.ErrConflict for a duplicate identity.
type PrincipalStore interface {
	Create(ctx context.Context, p *models.Principal) error
	FindByID(ctx context.Context, principalID id.PrincipalID) (*models.Principal, error)
	FindByIdentity(ctx context.Context, identity string) (*models.Principal, error)
	List(ctx context.Context) ([]*models.Principal, error)
}

// ChallengeStore holds at most one pending challenge per identity. Consume
// must compare and clear atomically.
type ChallengeStore interface {
	Put(ctx context.Context, c *models.PendingChallenge) error
	Consume(ctx context.Context, identity, code string, now time.Time) (*models.PendingChallenge, error)
}

// RevocationList remembers logged-out session ids until their tokens expire.
type RevocationList interface {
	RevokeToken(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

type TokenIssuer interface {
	GenerateSessionToken(principalID id.PrincipalID, role id.Role, issuedAt time.Time) (*jwttoken.SessionToken, error)
}

// Lockout counts credential failures for an identity. Check returns a
// rate_limited error while the identity is locked.
type Lockout interface {
	Check(ctx context.Context, identity string) error
	RecordFailure(ctx context.Context, identity string) (locked bool, err error)
	Clear(ctx context.Context, identity string) error
}

// CodeSender delivers a one-time code out of band.
type CodeSender interface {
	SendCode(ctx context.Context, identity, code string, expiresAt time.Time) error
}
