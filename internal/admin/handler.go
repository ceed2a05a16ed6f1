// Package admin serves the custodian-only listing and batch routes. Every
// route still goes through the owning service's authorization.
package admin

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"custody/internal/acl"
	authhandler "custody/internal/auth/handler"
	authmodels "custody/internal/auth/models"
	"custody/internal/authz"
	dochandler "custody/internal/document/handler"
	docmodels "custody/internal/document/models"
	dErrors "custody/pkg/domain-errors"
	"custody/pkg/platform/audit"
	"custody/pkg/platform/httputil"
	"custody/pkg/requestcontext"
)

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

type PrincipalLister interface {
	ListPrincipals(ctx context.Context, subject authz.Subject) ([]*authmodels.Principal, error)
}

type DocumentAdmin interface {
	ListAll(ctx context.Context, subject authz.Subject) ([]*docmodels.Document, error)
	VerifyAll(ctx context.Context, subject authz.Subject) ([]*docmodels.Verdict, error)
}

type AuditReader interface {
	Recent(ctx context.Context, limit int) ([]audit.Event, error)
}

type Handler struct {
	principals PrincipalLister
	documents  DocumentAdmin
	audit      AuditReader
	authorizer *authz.Authorizer
	logger     *slog.Logger
}

func New(principals PrincipalLister, documents DocumentAdmin, auditReader AuditReader, authorizer *authz.Authorizer, logger *slog.Logger) *Handler {
	return &Handler{
		principals: principals,
		documents:  documents,
		audit:      auditReader,
		authorizer: authorizer,
		logger:     logger,
	}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/admin/principals", h.HandleListPrincipals)
	r.Get("/admin/documents", h.HandleListDocuments)
	r.Post("/admin/documents/verify", h.HandleVerifyAll)
	r.Get("/admin/audit", h.HandleAudit)
}

// HandleListPrincipals handles GET /admin/principals.
func (h *Handler) HandleListPrincipals(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject, err := authz.SubjectFromContext(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	principals, err := h.principals.ListPrincipals(ctx, subject)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]authhandler.PrincipalResponse, 0, len(principals))
	for _, p := range principals {
		out = append(out, authhandler.ToPrincipalResponse(p))
	}
	httputil.WriteJSON(w, http.StatusOK, authhandler.PrincipalListResponse{Principals: out})
}

// HandleListDocuments handles GET /admin/documents.
func (h *Handler) HandleListDocuments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject, err := authz.SubjectFromContext(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	docs, err := h.documents.ListAll(ctx, subject)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]dochandler.DocumentResponse, 0, len(docs))
	for _, doc := range docs {
		out = append(out, dochandler.ToDocumentResponse(doc))
	}
	httputil.WriteJSON(w, http.StatusOK, dochandler.ListResponse{Documents: out})
}

// HandleVerifyAll handles POST /admin/documents/verify.
func (h *Handler) HandleVerifyAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject, err := authz.SubjectFromContext(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	verdicts, err := h.documents.VerifyAll(ctx, subject)
	if err != nil {
		h.logger.WarnContext(ctx, "batch verification failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	out := make([]dochandler.VerifyResponse, 0, len(verdicts))
	for _, v := range verdicts {
		out = append(out, dochandler.ToVerifyResponse(v))
	}
	httputil.WriteJSON(w, http.StatusOK, dochandler.BatchVerifyResponse{Results: out})
}

// HandleAudit handles GET /admin/audit?limit=N, newest first.
func (h *Handler) HandleAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject, err := authz.SubjectFromContext(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.authorizer.Authorize(subject, acl.ResourcePrincipals, acl.ActionViewAll); err != nil {
		httputil.WriteError(w, err)
		return
	}
	limit := defaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxAuditLimit {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "limit must be between 1 and 1000"))
			return
		}
		limit = n
	}
	events, err := h.audit.Recent(ctx, limit)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read audit events"))
		return
	}
	out := make([]AuditEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, toAuditEventResponse(e))
	}
	httputil.WriteJSON(w, http.StatusOK, AuditListResponse{Events: out, Total: len(out)})
}
