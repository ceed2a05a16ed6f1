package models

import (
	"crypto/subtle"
	"time"

	id "custody/pkg/domain"
	dErrors "custody/pkg/domain-errors"
)

const (
	// OTPDigits is the length of every issued one-time code.
	OTPDigits = 6
	// MaxOTPAttempts wrong codes discard the pending challenge.
	MaxOTPAttempts = 5
)

// PendingChallenge is the second-factor state between a password check and
// session issuance. At most one exists per identity; issuing a new one
// replaces the old.
type PendingChallenge struct {
	Identity    string
	PrincipalID id.PrincipalID
	Code        string
	ExpiresAt   time.Time
	Attempts    int
}

func NewPendingChallenge(identity string, principalID id.PrincipalID, code string, now time.Time, ttl time.Duration) (*PendingChallenge, error) {
	if identity == "" || principalID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "challenge requires identity and principal")
	}
	if len(code) != OTPDigits {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "challenge code has the wrong length")
	}
	if ttl <= 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "challenge ttl must be positive")
	}
	return &PendingChallenge{
		Identity:    identity,
		PrincipalID: principalID,
		Code:        code,
		ExpiresAt:   now.Add(ttl),
	}, nil
}

// IsExpired is true strictly after ExpiresAt.
func (c *PendingChallenge) IsExpired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// RecordMismatch counts a wrong code and reports whether the challenge has
// used up its attempts.
func (c *PendingChallenge) RecordMismatch() (exhausted bool) {
	c.Attempts++
	return c.Attempts >= MaxOTPAttempts
}

// Matches compares in constant time.
func (c *PendingChallenge) Matches(code string) bool {
	return subtle.ConstantTimeCompare([]byte(c.Code), []byte(code)) == 1
}
