package models

import (
	"time"

	id "custody/pkg/domain"
	dErrors "custody/pkg/domain-errors"
)

// Principal is a durable identity. It carries no login-flow state; pending
// one-time codes live in PendingChallenge.
type Principal struct {
	ID           id.PrincipalID
	Identity     string
	DisplayName  string
	Role         id.Role
	PasswordHash string `json:"-"`
	CreatedAt    time.Time
}

// NewPrincipal expects identity to be normalized already.
func NewPrincipal(principalID id.PrincipalID, identity, displayName string, role id.Role, passwordHash string, now time.Time) (*Principal, error) {
	if principalID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "principal requires an id")
	}
	if identity == "" || displayName == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "principal requires identity and display name")
	}
	if !role.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "principal requires a valid role")
	}
	if passwordHash == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "principal requires a password hash")
	}
	return &Principal{
		ID:           principalID,
		Identity:     identity,
		DisplayName:  displayName,
		Role:         role,
		PasswordHash: passwordHash,
		CreatedAt:    now,
	}, nil
}

func (p *Principal) Clone() *Principal {
	c := *p
	return &c
}
