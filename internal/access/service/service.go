package service

import (
	"context"
	"errors"
	"log/slog"

	"custody/internal/access/models"
	"custody/internal/acl"
	"custody/internal/authz"
	"custody/internal/platform/metrics"
	"custody/pkg/attrs"
	id "custody/pkg/domain"
	dErrors "custody/pkg/domain-errors"
	"custody/pkg/platform/audit"
	"custody/pkg/platform/sentinel"
	"custody/pkg/requestcontext"
)

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service runs the access request state machine. Creation and decision are
// each a single store operation so concurrent callers cannot produce a
// duplicate request or a double decision.
type Service struct {
	store          Store
	documents      DocumentFinder
	authorizer     *authz.Authorizer
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

func New(store Store, documents DocumentFinder, authorizer *authz.Authorizer, opts ...Option) *Service {
	s := &Service{store: store, documents: documents, authorizer: authorizer}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	return s
}

// Create opens a pending request by subject for documentID. The caller needs
// view_approved on the document's category; the document must exist.
func (s *Service) Create(ctx context.Context, subject authz.Subject, documentID id.DocumentID) (*models.AccessRequest, error) {
	doc, err := s.documents.FindRef(ctx, documentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "document not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load document")
	}
	if err := s.authorizer.Authorize(subject, doc.Category, acl.ActionViewApproved); err != nil {
		s.logDenied(ctx, subject, err)
		return nil, err
	}

	req, err := models.NewAccessRequest(id.NewAccessRequestID(), subject.PrincipalID, doc.ID, doc.OwnerID, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateIfAbsent(ctx, req); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "access request already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create access request")
	}

	s.logAudit(ctx, string(audit.EventAccessRequested),
		"principal_id", subject.PrincipalID.String(),
		"role", subject.Role.String(),
		"subject", req.ID.String(),
		"document_id", doc.ID.String(),
	)
	s.observe("created")
	return req, nil
}

// Decide moves a pending request to outcome. Only principals allowed to
// manage users may decide; a request that is no longer pending yields
// CodeInvalidState and is left untouched.
func (s *Service) Decide(ctx context.Context, subject authz.Subject, requestID id.AccessRequestID, outcome models.Status) (*models.AccessRequest, error) {
	if err := s.authorizer.Authorize(subject, acl.ResourcePrincipals, acl.ActionManage); err != nil {
		s.logDenied(ctx, subject, err)
		return nil, err
	}
	now := requestcontext.Now(ctx)
	updated, err := s.store.Execute(ctx, requestID,
		func(r *models.AccessRequest) error { return r.CanDecide(outcome) },
		func(r *models.AccessRequest) { r.ApplyDecision(outcome, subject.PrincipalID, now) },
	)
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeNotFound, "access request not found")
		case dErrors.HasCode(err, dErrors.CodeInvalidState), dErrors.HasCode(err, dErrors.CodeInvalidInput):
			return nil, err
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to decide access request")
		}
	}

	s.logAudit(ctx, string(audit.EventAccessDecided),
		"principal_id", subject.PrincipalID.String(),
		"role", subject.Role.String(),
		"subject", updated.ID.String(),
		"decision", updated.Status.String(),
		"requester_id", updated.RequesterID.String(),
	)
	s.observe(updated.Status.String())
	return updated, nil
}

// IsApproved reports whether requester holds an approved request for
// documentID. No request means false.
func (s *Service) IsApproved(ctx context.Context, requester id.PrincipalID, documentID id.DocumentID) (bool, error) {
	return NewApprovals(s.store).IsApproved(ctx, requester, documentID)
}

// List returns the requests visible to subject: everything for principal
// managers, the subject's own requests for reviewers, and requests against
// the subject's documents for owners.
func (s *Service) List(ctx context.Context, subject authz.Subject) ([]*models.AccessRequest, error) {
	var filter models.ListFilter
	switch {
	case s.authorizer.StaticAllowed(subject.Role, acl.ResourcePrincipals, acl.ActionManage):
	case s.anyCategoryAllows(subject.Role, acl.ActionViewApproved):
		filter.RequesterID = subject.PrincipalID
	case s.anyCategoryAllows(subject.Role, acl.ActionViewOwn):
		filter.OwnerID = subject.PrincipalID
	default:
		err := s.authorizer.Authorize(subject, acl.ResourcePrincipals, acl.ActionManage)
		s.logDenied(ctx, subject, err)
		return nil, err
	}
	out, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list access requests")
	}
	return out, nil
}

// ForRequester indexes requester's requests by document for list views.
func (s *Service) ForRequester(ctx context.Context, requester id.PrincipalID) (map[id.DocumentID]*models.AccessRequest, error) {
	reqs, err := s.store.List(ctx, models.ListFilter{RequesterID: requester})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list access requests")
	}
	out := make(map[id.DocumentID]*models.AccessRequest, len(reqs))
	for _, r := range reqs {
		out[r.DocumentID] = r
	}
	return out, nil
}

func (s *Service) anyCategoryAllows(role id.Role, action acl.Action) bool {
	for _, category := range acl.DocumentCategories() {
		if s.authorizer.StaticAllowed(role, category, action) {
			return true
		}
	}
	return false
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
		RequestID:   requestcontext.RequestID(ctx),
	})
}

func (s *Service) observe(transition string) {
	if s.metrics != nil {
		s.metrics.ObserveAccessRequest(transition)
	}
}
