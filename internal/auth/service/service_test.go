package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"custody/internal/acl"
	"custody/internal/auth/lockout"
	"custody/internal/auth/models"
	"custody/internal/auth/sender"
	"custody/internal/auth/store/challenge"
	lockoutstore "custody/internal/auth/store/lockout"
	"custody/internal/auth/store/principal"
	"custody/internal/auth/store/revocation"
	"custody/internal/authz"
	jwttoken "custody/internal/jwt_token"
	"custody/internal/platform/metrics"
	id "custody/pkg/domain"
	dErrors "custody/pkg/domain-errors"
	"custody/pkg/platform/audit/publisher"
	auditmemory "custody/pkg/platform/audit/store/memory"
	"custody/pkg/requestcontext"
)

const password = "correct horse battery"

type noApprovals struct{}

func (noApprovals) IsApproved(context.Context, id.PrincipalID, id.DocumentID) (bool, error) {
	return false, nil
}

type AuthServiceSuite struct {
	suite.Suite
	now     time.Time
	sender  *sender.DevSender
	jwt     *jwttoken.JWTService
	trl     *revocation.InMemoryTRL
	metrics *metrics.Metrics
	audit   *publisher.Publisher
	logs    *bytes.Buffer
	authz   *authz.Authorizer
	service *Service
}

func TestAuthServiceSuite(t *testing.T) {
	suite.Run(t, new(AuthServiceSuite))
}

func (s *AuthServiceSuite) SetupTest() {
	s.now = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	s.logs = &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(s.logs, nil))
	s.sender = sender.NewDevSender(logger)
	s.jwt = jwttoken.NewJWTService("test-key", "custody", "custody-api", 30*24*time.Hour)
	s.trl = revocation.NewInMemoryTRL(revocation.WithMemoryClock(func() time.Time { return s.now }))
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.audit = publisher.NewPublisher(auditmemory.NewInMemoryStore())
	s.authz = authz.New(acl.MustDefault(), noApprovals{})
	locks, err := lockout.New(lockoutstore.New(), lockout.WithLogger(logger), lockout.WithMetrics(s.metrics))
	s.Require().NoError(err)

	s.service = New(principal.New(), challenge.New(), s.trl, s.jwt, s.sender, s.authz,
		WithLogger(logger),
		WithMetrics(s.metrics),
		WithAuditPublisher(s.audit),
		WithLockout(locks),
	)
}

func (s *AuthServiceSuite) ctxAt(t time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), t)
}

func (s *AuthServiceSuite) register(identity string, role id.Role) *models.Principal {
	p, err := s.service.Register(s.ctxAt(s.now), models.RegisterInput{
		Identity: identity, Password: password, Role: string(role),
	})
	s.Require().NoError(err)
	return p
}

func (s *AuthServiceSuite) TestRegister() {
	s.Run("normalizes identity and derives a display name", func() {
		p := s.register("  Jane.Doe@Example.com", id.RoleOwner)
		s.Equal("jane.doe@example.com", p.Identity)
		s.Equal("Jane Doe", p.DisplayName)
		s.NotEqual(password, p.PasswordHash)
	})

	s.Run("duplicate identity conflicts", func() {
		_, err := s.service.Register(s.ctxAt(s.now), models.RegisterInput{
			Identity: "jane.doe@example.com", Password: password, Role: "reviewer",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("custodian cannot self-register", func() {
		_, err := s.service.Register(s.ctxAt(s.now), models.RegisterInput{
			Identity: "boss@example.com", Password: password, Role: "custodian",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("unknown role", func() {
		_, err := s.service.Register(s.ctxAt(s.now), models.RegisterInput{
			Identity: "x@example.com", Password: password, Role: "admin",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("short password", func() {
		_, err := s.service.Register(s.ctxAt(s.now), models.RegisterInput{
			Identity: "y@example.com", Password: "short", Role: "owner",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *AuthServiceSuite) TestLoginRejectsBadCredentials() {
	s.register("owner@example.com", id.RoleOwner)

	_, err := s.service.Login(s.ctxAt(s.now), "owner@example.com", "wrong password")
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

	_, err = s.service.Login(s.ctxAt(s.now), "nobody@example.com", password)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	s.Equal(err.Error(), errInvalidCredentials.Error())

	_, ok := s.sender.Last("owner@example.com")
	s.False(ok, "no code is issued without a correct password")
}

func (s *AuthServiceSuite) TestOTPScenario() {
	s.register("rev@example.com", id.RoleReviewer)

	expiresAt, err := s.service.Login(s.ctxAt(s.now), "rev@example.com", password)
	s.Require().NoError(err)
	s.Equal(s.now.Add(DefaultOTPTTL), expiresAt)
	delivery, ok := s.sender.Last("rev@example.com")
	s.Require().True(ok)
	s.Len(delivery.Code, models.OTPDigits)

	wrong := "000000"
	if delivery.Code == wrong {
		wrong = "111111"
	}
	_, err = s.service.VerifyOTP(s.ctxAt(s.now.Add(time.Minute)), "rev@example.com", wrong)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

	_, err = s.service.VerifyOTP(s.ctxAt(s.now.Add(11*time.Minute)), "rev@example.com", delivery.Code)
	s.True(dErrors.HasCode(err, dErrors.CodeExpired))

	_, err = s.service.Login(s.ctxAt(s.now), "rev@example.com", password)
	s.Require().NoError(err)
	delivery, _ = s.sender.Last("rev@example.com")

	session, err := s.service.VerifyOTP(s.ctxAt(s.now.Add(time.Minute)), "rev@example.com", delivery.Code)
	s.Require().NoError(err)
	s.Equal(id.RoleReviewer, session.Principal.Role)

	claims, err := s.jwt.ValidateToken(session.Token)
	s.Require().NoError(err)
	s.Equal(session.Principal.ID.String(), claims.PrincipalID)
	s.Equal("reviewer", claims.Role)
	s.Equal(session.JTI, claims.ID)

	_, err = s.service.VerifyOTP(s.ctxAt(s.now.Add(time.Minute)), "rev@example.com", delivery.Code)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized), "a code is single use")

	s.Equal(2.0, promtestutil.ToFloat64(s.metrics.OTPOutcomes.WithLabelValues("issued")))
	s.Equal(1.0, promtestutil.ToFloat64(s.metrics.OTPOutcomes.WithLabelValues("verified")))
	s.Equal(1.0, promtestutil.ToFloat64(s.metrics.OTPOutcomes.WithLabelValues("expired")))
	s.Equal(1.0, promtestutil.ToFloat64(s.metrics.OTPOutcomes.WithLabelValues("mismatch")))
	s.Equal(1.0, promtestutil.ToFloat64(s.metrics.OTPOutcomes.WithLabelValues("missing")))

	s.NotContains(s.logs.String(), delivery.Code)
}

func (s *AuthServiceSuite) TestNewLoginInvalidatesPreviousCode() {
	s.register("owner@example.com", id.RoleOwner)

	_, err := s.service.Login(s.ctxAt(s.now), "owner@example.com", password)
	s.Require().NoError(err)
	first, _ := s.sender.Last("owner@example.com")

	var second sender.Delivery
	for {
		_, err = s.service.Login(s.ctxAt(s.now), "owner@example.com", password)
		s.Require().NoError(err)
		second, _ = s.sender.Last("owner@example.com")
		if second.Code != first.Code {
			break
		}
	}

	_, err = s.service.VerifyOTP(s.ctxAt(s.now), "owner@example.com", first.Code)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

	_, err = s.service.VerifyOTP(s.ctxAt(s.now), "owner@example.com", second.Code)
	s.NoError(err)
}

// wrongCodes yields n six-digit codes that differ from the delivered one.
func wrongCodes(n int, delivered string) []string {
	out := make([]string, 0, n)
	for i := 0; len(out) < n; i++ {
		code := fmt.Sprintf("%06d", i)
		if code != delivered {
			out = append(out, code)
		}
	}
	return out
}

func (s *AuthServiceSuite) TestRepeatedWrongCodesLockTheIdentity() {
	s.register("owner@example.com", id.RoleOwner)
	ctx := s.ctxAt(s.now)

	_, err := s.service.Login(ctx, "owner@example.com", password)
	s.Require().NoError(err)
	delivery, _ := s.sender.Last("owner@example.com")

	for i, code := range wrongCodes(5000, delivery.Code) {
		_, err := s.service.VerifyOTP(ctx, "owner@example.com", code)
		s.Require().Error(err)
		if i < models.MaxOTPAttempts {
			s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized), "attempt %d", i)
		} else {
			s.True(dErrors.HasCode(err, dErrors.CodeRateLimited), "attempt %d", i)
		}
	}

	_, err = s.service.VerifyOTP(ctx, "owner@example.com", delivery.Code)
	s.True(dErrors.HasCode(err, dErrors.CodeRateLimited), "the delivered code no longer signs in")
	_, err = s.service.Login(ctx, "owner@example.com", password)
	s.True(dErrors.HasCode(err, dErrors.CodeRateLimited), "a fresh challenge is refused while locked")

	s.Equal(float64(models.MaxOTPAttempts-1), promtestutil.ToFloat64(s.metrics.OTPOutcomes.WithLabelValues("mismatch")))
	s.Equal(1.0, promtestutil.ToFloat64(s.metrics.OTPOutcomes.WithLabelValues("exhausted")))
	s.Equal(1.0, promtestutil.ToFloat64(s.metrics.Lockouts))

	events, err := s.audit.Recent(context.Background(), 0)
	s.Require().NoError(err)
	var lockouts int
	for _, e := range events {
		if e.Action == "auth_lockout_triggered" {
			lockouts++
		}
	}
	s.Equal(1, lockouts)

	later := s.ctxAt(s.now.Add(models.DefaultLockoutPolicy().LockDuration))
	_, err = s.service.Login(later, "owner@example.com", password)
	s.Require().NoError(err)
	delivery, _ = s.sender.Last("owner@example.com")
	_, err = s.service.VerifyOTP(later, "owner@example.com", delivery.Code)
	s.NoError(err)
}

func (s *AuthServiceSuite) TestWrongCodesDiscardChallengeWithoutLockout() {
	s.service = New(principal.New(), challenge.New(), s.trl, s.jwt, s.sender, s.authz, WithMetrics(s.metrics))
	s.register("owner@example.com", id.RoleOwner)
	ctx := s.ctxAt(s.now)

	_, err := s.service.Login(ctx, "owner@example.com", password)
	s.Require().NoError(err)
	delivery, _ := s.sender.Last("owner@example.com")

	for _, code := range wrongCodes(models.MaxOTPAttempts, delivery.Code) {
		_, err := s.service.VerifyOTP(ctx, "owner@example.com", code)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	}
	_, err = s.service.VerifyOTP(ctx, "owner@example.com", delivery.Code)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	s.Equal(1.0, promtestutil.ToFloat64(s.metrics.OTPOutcomes.WithLabelValues("missing")))
}

func (s *AuthServiceSuite) TestBadPasswordsLockPerClientAddress() {
	s.register("owner@example.com", id.RoleOwner)
	attacker := requestcontext.WithClientMetadata(s.ctxAt(s.now), "203.0.113.9", "curl")
	owner := requestcontext.WithClientMetadata(s.ctxAt(s.now), "198.51.100.4", "browser")

	for range models.DefaultLockoutPolicy().MaxFailures {
		_, err := s.service.Login(attacker, "owner@example.com", "wrong password")
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	}
	_, err := s.service.Login(attacker, "owner@example.com", password)
	s.True(dErrors.HasCode(err, dErrors.CodeRateLimited))

	_, err = s.service.Login(owner, "owner@example.com", password)
	s.NoError(err)
}

func (s *AuthServiceSuite) TestLogoutRevokesSession() {
	p := s.register("owner@example.com", id.RoleOwner)
	subject := authz.Subject{PrincipalID: p.ID, Role: p.Role}
	ctx := s.ctxAt(s.now)

	s.Require().NoError(s.service.Logout(ctx, subject, "jti-1", s.now.Add(time.Hour)))
	revoked, err := s.service.IsTokenRevoked(ctx, "jti-1")
	s.Require().NoError(err)
	s.True(revoked)

	s.Require().NoError(s.service.Logout(ctx, subject, "jti-2", s.now.Add(-time.Hour)))
	revoked, err = s.service.IsTokenRevoked(ctx, "jti-2")
	s.Require().NoError(err)
	s.False(revoked, "already expired tokens need no entry")

	err = s.service.Logout(ctx, subject, "", s.now.Add(time.Hour))
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *AuthServiceSuite) TestEnsureCustodian() {
	ctx := s.ctxAt(s.now)
	first, err := s.service.EnsureCustodian(ctx, "Admin@Example.com", password)
	s.Require().NoError(err)
	s.Equal(id.RoleCustodian, first.Role)

	again, err := s.service.EnsureCustodian(ctx, "admin@example.com", "another password")
	s.Require().NoError(err)
	s.Equal(first.ID, again.ID)

	s.register("owner@example.com", id.RoleOwner)
	_, err = s.service.EnsureCustodian(ctx, "owner@example.com", password)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *AuthServiceSuite) TestMeAndListPrincipals() {
	owner := s.register("owner@example.com", id.RoleOwner)
	custodian, err := s.service.EnsureCustodian(s.ctxAt(s.now), "admin@example.com", password)
	s.Require().NoError(err)
	ctx := s.ctxAt(s.now)

	me, err := s.service.Me(ctx, authz.Subject{PrincipalID: owner.ID, Role: owner.Role})
	s.Require().NoError(err)
	s.Equal(owner.Identity, me.Identity)

	_, err = s.service.Me(ctx, authz.Subject{PrincipalID: id.NewPrincipalID(), Role: id.RoleOwner})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.service.ListPrincipals(ctx, authz.Subject{PrincipalID: owner.ID, Role: owner.Role})
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	s.Equal(1.0, promtestutil.ToFloat64(s.metrics.AuthzDenials.WithLabelValues("view_all")))

	list, err := s.service.ListPrincipals(ctx, authz.Subject{PrincipalID: custodian.ID, Role: custodian.Role})
	s.Require().NoError(err)
	s.Len(list, 2)
}

func (s *AuthServiceSuite) TestAuditTrail() {
	s.register("owner@example.com", id.RoleOwner)
	_, _ = s.service.Login(s.ctxAt(s.now), "owner@example.com", "bad password")

	events, err := s.audit.Recent(context.Background(), 10)
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.Equal("auth_failed", events[0].Action)
	s.Equal("bad_password", events[0].Reason)
	s.Equal("principal_registered", events[1].Action)
}
