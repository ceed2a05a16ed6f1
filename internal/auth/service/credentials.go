package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"custody/internal/acl"
	"custody/internal/auth/models"
	"custody/internal/authz"
	id "custody/pkg/domain"
	dErrors "custody/pkg/domain-errors"
	"custody/pkg/email"
	"custody/pkg/platform/audit"
	"custody/pkg/platform/sentinel"
	"custody/pkg/requestcontext"
	"custody/pkg/secrets"
)

const minPasswordLength = 8

var (
	errInvalidCredentials = dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")

	// Unknown identities are checked against this hash so both failure paths
	// cost one bcrypt comparison.
	decoyHash     string
	decoyHashOnce sync.Once
)

func decoy() string {
	decoyHashOnce.Do(func() {
		decoyHash, _ = secrets.Hash("custody-decoy-password")
	})
	return decoyHash
}

// Register creates an owner or reviewer. Custodians are provisioned through
// EnsureCustodian only.
func (s *Service) Register(ctx context.Context, in models.RegisterInput) (*models.Principal, error) {
	identity, err := email.Normalize(in.Identity)
	if err != nil {
		return nil, err
	}
	role, err := id.ParseRole(strings.TrimSpace(in.Role))
	if err != nil {
		return nil, err
	}
	if !role.SelfRegistrable() {
		return nil, dErrors.New(dErrors.CodeForbidden, "role cannot be self-registered")
	}
	p, err := s.createPrincipal(ctx, identity, in.DisplayName, in.Password, role)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, string(audit.EventPrincipalRegistered),
		"principal_id", p.ID.String(),
		"role", p.Role.String(),
		"subject", p.Identity,
	)
	return p, nil
}

// EnsureCustodian provisions the bootstrap custodian. It is idempotent for an
// existing custodian and refuses to promote a principal holding another role.
func (s *Service) EnsureCustodian(ctx context.Context, identity, password string) (*models.Principal, error) {
	normalized, err := email.Normalize(identity)
	if err != nil {
		return nil, err
	}
	existing, err := s.principals.FindByIdentity(ctx, normalized)
	switch {
	case err == nil:
		if existing.Role != id.RoleCustodian {
			return nil, dErrors.New(dErrors.CodeConflict, "identity is registered with another role")
		}
		return existing, nil
	case !errors.Is(err, sentinel.ErrNotFound):
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up principal")
	}

	p, err := s.createPrincipal(ctx, normalized, "", password, id.RoleCustodian)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, string(audit.EventPrincipalRegistered),
		"principal_id", p.ID.String(),
		"role", p.Role.String(),
		"subject", p.Identity,
		"reason", "bootstrap",
	)
	return p, nil
}

func (s *Service) createPrincipal(ctx context.Context, identity, displayName, password string, role id.Role) (*models.Principal, error) {
	if len(password) < minPasswordLength {
		return nil, dErrors.New(dErrors.CodeValidation, "password must be at least 8 characters")
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = email.DeriveDisplayName(identity)
	}
	hash, err := secrets.Hash(password)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvalidInput) {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}
	p, err := models.NewPrincipal(id.NewPrincipalID(), identity, displayName, role, hash, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.principals.Create(ctx, p); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "identity already registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create principal")
	}
	return p, nil
}

// Login checks the password and issues a fresh challenge, replacing any code
// still pending for the identity. The code only leaves through the sender.
func (s *Service) Login(ctx context.Context, identity, password string) (time.Time, error) {
	normalized, err := email.Normalize(identity)
	if err != nil {
		_ = secrets.Verify(password, decoy())
		s.authFailure(ctx, "malformed_identity", "")
		return time.Time{}, errInvalidCredentials
	}
	if err := s.checkLockout(ctx, normalized); err != nil {
		return time.Time{}, err
	}
	p, err := s.principals.FindByIdentity(ctx, normalized)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			return time.Time{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up principal")
		}
		_ = secrets.Verify(password, decoy())
		s.authFailure(ctx, "unknown_identity", normalized)
		s.recordFailure(ctx, normalized)
		return time.Time{}, errInvalidCredentials
	}
	if err := secrets.Verify(password, p.PasswordHash); err != nil {
		if dErrors.HasCode(err, dErrors.CodeUnauthorized) {
			s.authFailure(ctx, "bad_password", normalized)
			s.recordFailure(ctx, normalized)
			return time.Time{}, errInvalidCredentials
		}
		return time.Time{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify password")
	}

	code, err := secrets.NumericCode(models.OTPDigits)
	if err != nil {
		return time.Time{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate code")
	}
	challenge, err := models.NewPendingChallenge(p.Identity, p.ID, code, requestcontext.Now(ctx), s.otpTTL)
	if err != nil {
		return time.Time{}, err
	}
	if err := s.challenges.Put(ctx, challenge); err != nil {
		return time.Time{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store challenge")
	}
	if err := s.sender.SendCode(ctx, p.Identity, code, challenge.ExpiresAt); err != nil {
		return time.Time{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to deliver code")
	}

	s.observeOTP("issued")
	s.logAudit(ctx, string(audit.EventChallengeIssued),
		"principal_id", p.ID.String(),
		"role", p.Role.String(),
		"subject", p.Identity,
	)
	return challenge.ExpiresAt, nil
}

// VerifyOTP consumes the pending challenge and mints a session. A wrong code
// leaves the challenge in place until models.MaxOTPAttempts wrong codes
// discard it; an expired one is discarded. Wrong and missing codes also count
// toward the identity's lockout.
func (s *Service) VerifyOTP(ctx context.Context, identity, code string) (*models.Session, error) {
	normalized, err := email.Normalize(identity)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid code")
	}
	if err := s.checkLockout(ctx, normalized); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)

	challenge, err := s.challenges.Consume(ctx, normalized, strings.TrimSpace(code), now)
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrExpired):
			s.observeOTP("expired")
			s.authFailure(ctx, "code_expired", normalized)
			return nil, dErrors.New(dErrors.CodeExpired, "code has expired")
		case errors.Is(err, sentinel.ErrMismatch):
			s.observeOTP("mismatch")
			s.authFailure(ctx, "code_mismatch", normalized)
			s.recordFailure(ctx, normalized)
			return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid code")
		case errors.Is(err, sentinel.ErrExhausted):
			s.observeOTP("exhausted")
			s.authFailure(ctx, "code_attempts_exhausted", normalized)
			s.recordFailure(ctx, normalized)
			return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid code")
		case errors.Is(err, sentinel.ErrNotFound):
			s.observeOTP("missing")
			s.authFailure(ctx, "no_pending_challenge", normalized)
			s.recordFailure(ctx, normalized)
			return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid code")
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify code")
		}
	}

	p, err := s.principals.FindByID(ctx, challenge.PrincipalID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid code")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load principal")
	}
	token, err := s.tokens.GenerateSessionToken(p.ID, p.Role, now)
	if err != nil {
		return nil, err
	}

	s.clearFailures(ctx, p.Identity)
	s.observeOTP("verified")
	s.logAudit(ctx, string(audit.EventSessionIssued),
		"principal_id", p.ID.String(),
		"role", p.Role.String(),
		"subject", p.Identity,
	)
	return &models.Session{
		Token:     token.Token,
		JTI:       token.JTI,
		ExpiresAt: token.ExpiresAt,
		Principal: p,
	}, nil
}

// Logout revokes the session id until the token would have expired anyway.
func (s *Service) Logout(ctx context.Context, subject authz.Subject, jti string, expiresAt time.Time) error {
	if jti == "" {
		return dErrors.New(dErrors.CodeUnauthorized, "session required")
	}
	ttl := expiresAt.Sub(requestcontext.Now(ctx))
	if ttl <= 0 {
		return nil
	}
	if err := s.revocations.RevokeToken(ctx, jti, ttl); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke session")
	}
	s.logAudit(ctx, string(audit.EventSessionRevoked),
		"principal_id", subject.PrincipalID.String(),
		"role", subject.Role.String(),
		"subject", jti,
		"reason", "logout",
	)
	return nil
}

// IsTokenRevoked satisfies the auth middleware's revocation check.
func (s *Service) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	return s.revocations.IsRevoked(ctx, jti)
}

func (s *Service) Me(ctx context.Context, subject authz.Subject) (*models.Principal, error) {
	p, err := s.principals.FindByID(ctx, subject.PrincipalID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "principal not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load principal")
	}
	return p, nil
}

// ListPrincipals requires user:view_all.
func (s *Service) ListPrincipals(ctx context.Context, subject authz.Subject) ([]*models.Principal, error) {
	if err := s.authorizer.Authorize(subject, acl.ResourcePrincipals, acl.ActionViewAll); err != nil {
		s.logAudit(ctx, string(audit.EventAuthorizationDenied),
			"principal_id", subject.PrincipalID.String(),
			"role", subject.Role.String(),
			"subject", string(acl.ResourcePrincipals),
			"decision", "deny",
		)
		if s.metrics != nil {
			s.metrics.ObserveDenial(string(acl.ActionViewAll))
		}
		return nil, err
	}
	principals, err := s.principals.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list principals")
	}
	return principals, nil
}
