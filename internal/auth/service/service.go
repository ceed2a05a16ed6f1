package service

import (
	"context"
	"log/slog"
	"time"

	"custody/internal/authz"
	"custody/internal/platform/metrics"
	"custody/pkg/attrs"
	id "custody/pkg/domain"
	dErrors "custody/pkg/domain-errors"
	"custody/pkg/platform/audit"
	"custody/pkg/requestcontext"
)

// DefaultOTPTTL is how long an issued code stays valid.
const DefaultOTPTTL = 10 * time.Minute

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service is the credential gate: password, then one-time code, then a
// session token. A token is never minted from the password check alone.
type Service struct {
	principals     PrincipalStore
	challenges     ChallengeStore
	revocations    RevocationList
	tokens         TokenIssuer
	sender         CodeSender
	authorizer     *authz.Authorizer
	lockout        Lockout
	otpTTL         time.Duration
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLockout enables failure counting on Login and VerifyOTP.
func WithLockout(l Lockout) Option {
	return func(s *Service) {
		s.lockout = l
	}
}

func WithOTPTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.otpTTL = ttl
		}
	}
}

func New(
	principals PrincipalStore,
	challenges ChallengeStore,
	revocations RevocationList,
	tokens TokenIssuer,
	sender CodeSender,
	authorizer *authz.Authorizer,
	opts ...Option,
) *Service {
	s := &Service{
		principals:  principals,
		challenges:  challenges,
		revocations: revocations,
		tokens:      tokens,
		sender:      sender,
		authorizer:  authorizer,
		otpTTL:      DefaultOTPTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	return s
}

func (s *Service) observeOTP(outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveOTP(outcome)
	}
}

// authFailure records a failed credential step without the presented secret.
func (s *Service) authFailure(ctx context.Context, reason, identity string) {
	s.logAudit(ctx, string(audit.EventAuthFailed),
		"subject", identity,
		"reason", reason,
		"decision", "deny",
	)
}

// checkLockout refuses a locked identity before any credential is examined.
func (s *Service) checkLockout(ctx context.Context, identity string) error {
	if s.lockout == nil {
		return nil
	}
	if err := s.lockout.Check(ctx, identity); err != nil {
		if dErrors.HasCode(err, dErrors.CodeRateLimited) {
			s.authFailure(ctx, "locked_out", identity)
		}
		return err
	}
	return nil
}

// recordFailure feeds the lockout counter. Counter errors are logged and do
// not change the caller's outcome.
func (s *Service) recordFailure(ctx context.Context, identity string) {
	if s.lockout == nil {
		return
	}
	locked, err := s.lockout.RecordFailure(ctx, identity)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to record auth failure", "error", err)
		return
	}
	if locked {
		s.logAudit(ctx, string(audit.EventAuthLockout),
			"subject", identity,
			"reason", "too_many_failures",
			"decision", "deny",
		)
	}
}

func (s *Service) clearFailures(ctx context.Context, identity string) {
	if s.lockout == nil {
		return
	}
	if err := s.lockout.Clear(ctx, identity); err != nil {
		s.logger.WarnContext(ctx, "failed to clear auth failures", "error", err)
	}
}

func (s *Service) logAudit(ctx context.Context, event string, attributes ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	if device := requestcontext.DeviceLabel(ctx); device != "" {
		attributes = append(attributes, "device", device)
	}
	args := append(attributes, "event", event, "log_type", "audit")
	s.logger.InfoContext(ctx, event, args...)
	if s.auditPublisher == nil {
		return
	}
	principalID, _ := id.ParsePrincipalID(attrs.ExtractString(attributes, "principal_id"))
	_ = s.auditPublisher.Emit(ctx, audit.Event{
		PrincipalID: principalID,
		Role:        attrs.ExtractString(attributes, "role"),
		Action:      event,
		Subject:     attrs.ExtractString(attributes, "subject"),
		Decision:    attrs.ExtractString(attributes, "decision"),
		Reason:      attrs.ExtractString(attributes, "reason"),
		RequestID:   requestcontext.RequestID(ctx),
		Device:      requestcontext.DeviceLabel(ctx),
		IP:          requestcontext.ClientIP(ctx),
	})
}
