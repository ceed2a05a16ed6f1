package models

import "time"

// LockoutPolicy bounds credential failures per identity and client IP.
type LockoutPolicy struct {
	MaxFailures  int
	Window       time.Duration
	LockDuration time.Duration
}

// DefaultLockoutPolicy allows five failures in fifteen minutes, then locks for
// fifteen minutes.
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{
		MaxFailures:  5,
		Window:       15 * time.Minute,
		LockDuration: 15 * time.Minute,
	}
}

// Lockout is the failure record for one LockoutKey.
type Lockout struct {
	Key           string
	FailureCount  int
	LastFailureAt time.Time
	LockedUntil   *time.Time
}

// LockoutKey combines the normalized identity with the client IP. An unknown
// IP still keys on the identity alone.
func LockoutKey(identity, ip string) string {
	return identity + "|" + ip
}

// IsLockedAt is true while now is before LockedUntil.
func (l *Lockout) IsLockedAt(now time.Time) bool {
	return l != nil && l.LockedUntil != nil && now.Before(*l.LockedUntil)
}

// ShouldLock is true once the failures in the window reach the policy limit.
func (l *Lockout) ShouldLock(p LockoutPolicy) bool {
	return l.FailureCount >= p.MaxFailures
}
