package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"custody/internal/authz"
	"custody/internal/document/models"
	"custody/internal/platform/metrics"
	"custody/pkg/attrs"
	id "custody/pkg/domain"
	dErrors "custody/pkg/domain-errors"
	"custody/pkg/platform/audit"
	"custody/pkg/platform/sentinel"
	"custody/pkg/requestcontext"
)

const (
	// DefaultSignerLabel names the attesting authority in tokens and verdicts.
	DefaultSignerLabel = "Administrator"
	// DefaultBatchConcurrency bounds VerifyAll.
	DefaultBatchConcurrency = 4
)

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service composes the cipher, hasher and signer into ingestion,
// attestation, verification and disclosure. Every operation authorizes
// through the Authorizer before touching ciphertext.
type Service struct {
	store            Store
	cipher           Cipher
	signer           Signer
	authorizer       *authz.Authorizer
	access           AccessIndex
	signerLabel      string
	batchConcurrency int
	tracer           trace.Tracer
	logger           *slog.Logger
	auditPublisher   AuditPublisher
	metrics          *metrics.Metrics
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

// WithAccessIndex enables per-document request status in reviewer listings.
func WithAccessIndex(index AccessIndex) Option {
	return func(s *Service) {
		s.access = index
	}
}

func WithSignerLabel(label string) Option {
	return func(s *Service) {
		if label != "" {
			s.signerLabel = label
		}
	}
}

func WithBatchConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchConcurrency = n
		}
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

func New(store Store, cipher Cipher, signer Signer, authorizer *authz.Authorizer, opts ...Option) *Service {
	s := &Service{
		store:            store,
		cipher:           cipher,
		signer:           signer,
		authorizer:       authorizer,
		signerLabel:      DefaultSignerLabel,
		batchConcurrency: DefaultBatchConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("custody/document")
	}
	return s
}

// load fetches a document and translates store sentinels.
func (s *Service) load(ctx context.Context, docID id.DocumentID) (*models.Document, error) {
	doc, err := s.store.FindByID(ctx, docID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "document not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load document")
	}
	return doc, nil
}

func (s *Service) startSpan(ctx context.Context, name string, docID id.DocumentID) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("document.id", docID.String())))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	}
	span.End()
}

func (s *Service) timeCrypto(op string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveCrypto(op, time.Since(start).Seconds())
	}
}

func (s *Service) logDenied(ctx context.Context, subject authz.Subject, err error) {
	details := dErrors.DetailsOf(err)
	s.logAudit(ctx, string(audit.EventAuthorizationDenied),
		"principal_id", subject.PrincipalID.String(),
		"role", subject.Role.String(),
		"resource", details["resource"],
		"action", details["action"],
		"subject", details["document_id"],
		"decision", "deny",
	)
	if s.metrics != nil {
		s.metrics.ObserveDenial(details["action"])
	}
}

func (s *Service) logAudit(ctx context.Context, event string, attributes ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
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
