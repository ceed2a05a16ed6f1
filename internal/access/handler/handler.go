package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"custody/internal/access/models"
	"custody/internal/authz"
	id "custody/pkg/domain"
	"custody/pkg/platform/httputil"
	"custody/pkg/requestcontext"
)

// Service is the access request surface the handler needs.
type Service interface {
	Create(ctx context.Context, subject authz.Subject, documentID id.DocumentID) (*models.AccessRequest, error)
	Decide(ctx context.Context, subject authz.Subject, requestID id.AccessRequestID, outcome models.Status) (*models.AccessRequest, error)
	List(ctx context.Context, subject authz.Subject) ([]*models.AccessRequest, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts access request routes. The router must already require
// authentication.
func (h *Handler) Register(r chi.Router) {
	r.Post("/access/requests", h.HandleCreate)
	r.Get("/access/requests", h.HandleList)
	r.Post("/access/requests/{id}/decision", h.HandleDecide)
}

// HandleCreate handles POST /access/requests.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	subject, err := authz.SubjectFromContext(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[CreateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	created, err := h.service.Create(ctx, subject, req.parsedDocumentID)
	if err != nil {
		h.logger.WarnContext(ctx, "access request creation failed",
			"request_id", requestID,
			"principal_id", subject.PrincipalID,
			"document_id", req.parsedDocumentID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toResponse(created))
}

// HandleDecide handles POST /access/requests/{id}/decision.
func (h *Handler) HandleDecide(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	subject, err := authz.SubjectFromContext(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	accessID, err := id.ParseAccessRequestID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[DecisionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	decided, err := h.service.Decide(ctx, subject, accessID, req.parsedStatus)
	if err != nil {
		h.logger.WarnContext(ctx, "access decision failed",
			"request_id", requestID,
			"principal_id", subject.PrincipalID,
			"access_request_id", accessID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(decided))
}

// HandleList handles GET /access/requests.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	subject, err := authz.SubjectFromContext(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	reqs, err := h.service.List(ctx, subject)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]Response, 0, len(reqs))
	for _, req := range reqs {
		out = append(out, toResponse(req))
	}
	httputil.WriteJSON(w, http.StatusOK, ListResponse{Requests: out})
}
