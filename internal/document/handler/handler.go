package handler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"custody/internal/acl"
	"custody/internal/authz"
	"custody/internal/document/models"
	"custody/internal/document/service"
	"custody/internal/verification"
	id "custody/pkg/domain"
	dErrors "custody/pkg/domain-errors"
	"custody/pkg/platform/httputil"
	"custody/pkg/requestcontext"
)

const (
	// MaxUploadBytes caps a multipart upload including form overhead.
	MaxUploadBytes = 10 << 20
	maxQRSize      = 1024
)

type Service interface {
	Ingest(ctx context.Context, subject authz.Subject, in service.IngestInput) (*models.Document, error)
	Attest(ctx context.Context, subject authz.Subject, docID id.DocumentID) (*models.Document, error)
	Verify(ctx context.Context, subject authz.Subject, docID id.DocumentID) (*models.Verdict, error)
	Disclose(ctx context.Context, subject authz.Subject, docID id.DocumentID) (*service.Disclosure, error)
	Delete(ctx context.Context, subject authz.Subject, docID id.DocumentID) error
	List(ctx context.Context, subject authz.Subject) ([]service.ListItem, error)
	Token(ctx context.Context, subject authz.Subject, docID id.DocumentID) (string, error)
	TokenQR(ctx context.Context, subject authz.Subject, docID id.DocumentID, size int) ([]byte, error)
	CheckToken(token string) (*service.TokenCheck, error)
	VerifyToken(token string) (*service.TokenCheck, error)
}

// PublicKeyExporter serves the verification key to offline verifiers.
type PublicKeyExporter interface {
	PublicKeyPEM() ([]byte, error)
}

type Handler struct {
	service Service
	keys    PublicKeyExporter
	logger  *slog.Logger
}

func New(service Service, keys PublicKeyExporter, logger *slog.Logger) *Handler {
	return &Handler{service: service, keys: keys, logger: logger}
}

// RegisterPublic mounts routes that need no session.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Get("/keys/signing.pem", h.HandlePublicKey)
	r.Post("/verification/decode", h.HandleDecode)
}

// Register mounts authenticated document routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/documents", h.HandleIngest)
	r.Get("/documents", h.HandleList)
	r.Get("/documents/{id}/content", h.HandleDisclose)
	r.Post("/documents/{id}/attest", h.HandleAttest)
	r.Get("/documents/{id}/verify", h.HandleVerify)
	r.Get("/documents/{id}/token", h.HandleToken)
	r.Get("/documents/{id}/token.png", h.HandleTokenQR)
	r.Delete("/documents/{id}", h.HandleDelete)
}

// HandleIngest handles POST /documents as multipart form data with a
// "document" file, a "title" and a "category".
func (h *Handler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	subject, ok := h.subject(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
		h.logger.WarnContext(ctx, "failed to parse upload", "request_id", requestID, "error", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid multipart upload"))
		return
	}
	in, err := readUpload(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	doc, err := h.service.Ingest(ctx, subject, in)
	if err != nil {
		h.logger.WarnContext(ctx, "document ingestion failed",
			"request_id", requestID,
			"principal_id", subject.PrincipalID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, ToDocumentResponse(doc))
}

func readUpload(r *http.Request) (service.IngestInput, error) {
	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" {
		return service.IngestInput{}, dErrors.New(dErrors.CodeValidation, "title is required")
	}
	category, err := acl.ParseCategory(strings.TrimSpace(r.FormValue("category")))
	if err != nil {
		return service.IngestInput{}, err
	}
	file, header, err := r.FormFile("document")
	if err != nil {
		return service.IngestInput{}, dErrors.Wrap(err, dErrors.CodeValidation, "document file is required")
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		return service.IngestInput{}, dErrors.Wrap(err, dErrors.CodeBadRequest, "failed to read upload")
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return service.IngestInput{
		Title:       title,
		Category:    category,
		FileName:    sanitizeFileName(header.Filename),
		ContentType: contentType,
		Content:     content,
	}, nil
}

// HandleList handles GET /documents.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	subject, ok := h.subject(w, r)
	if !ok {
		return
	}
	items, err := h.service.List(r.Context(), subject)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]DocumentResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toListItemResponse(item))
	}
	httputil.WriteJSON(w, http.StatusOK, ListResponse{Documents: out})
}

// HandleDisclose handles GET /documents/{id}/content and streams the
// plaintext as an attachment.
func (h *Handler) HandleDisclose(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject, docID, ok := h.subjectAndDocument(w, r)
	if !ok {
		return
	}
	out, err := h.service.Disclose(ctx, subject, docID)
	if err != nil {
		h.logger.WarnContext(ctx, "document disclosure failed",
			"request_id", requestcontext.RequestID(ctx),
			"principal_id", subject.PrincipalID,
			"document_id", docID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", out.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": out.FileName}))
	w.Header().Set("Content-Length", strconv.Itoa(len(out.Content)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out.Content)
}

// HandleAttest handles POST /documents/{id}/attest.
func (h *Handler) HandleAttest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject, docID, ok := h.subjectAndDocument(w, r)
	if !ok {
		return
	}
	doc, err := h.service.Attest(ctx, subject, docID)
	if err != nil {
		h.logger.WarnContext(ctx, "document attestation failed",
			"request_id", requestcontext.RequestID(ctx),
			"document_id", docID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ToDocumentResponse(doc))
}

// HandleVerify handles GET /documents/{id}/verify.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	subject, docID, ok := h.subjectAndDocument(w, r)
	if !ok {
		return
	}
	verdict, err := h.service.Verify(r.Context(), subject, docID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ToVerifyResponse(verdict))
}

// HandleToken handles GET /documents/{id}/token.
func (h *Handler) HandleToken(w http.ResponseWriter, r *http.Request) {
	subject, docID, ok := h.subjectAndDocument(w, r)
	if !ok {
		return
	}
	token, err := h.service.Token(r.Context(), subject, docID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, TokenResponse{Token: token})
}

// HandleTokenQR handles GET /documents/{id}/token.png?size=N.
func (h *Handler) HandleTokenQR(w http.ResponseWriter, r *http.Request) {
	subject, docID, ok := h.subjectAndDocument(w, r)
	if !ok {
		return
	}
	size := verification.DefaultQRSize
	if raw := r.URL.Query().Get("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 64 || n > maxQRSize {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("size must be between 64 and %d", maxQRSize)))
			return
		}
		size = n
	}
	png, err := h.service.TokenQR(r.Context(), subject, docID, size)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// HandleDelete handles DELETE /documents/{id}.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	subject, docID, ok := h.subjectAndDocument(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), subject, docID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DecodeRequest is the body of POST /verification/decode. With
// RequireValidSignature set, a token whose signature does not verify is
// rejected instead of decoded.
type DecodeRequest struct {
	Token                 string `json:"token"`
	RequireValidSignature bool   `json:"require_valid_signature,omitempty"`
}

func (r *DecodeRequest) Validate() error {
	r.Token = strings.TrimSpace(r.Token)
	if r.Token == "" {
		return dErrors.New(dErrors.CodeValidation, "token is required")
	}
	return nil
}

// HandleDecode handles POST /verification/decode.
func (h *Handler) HandleDecode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[DecodeRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	check := h.service.CheckToken
	if req.RequireValidSignature {
		check = h.service.VerifyToken
	}
	result, err := check(req.Token)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, DecodeResponse{
		DocumentID:     result.Payload.DocumentID,
		Digest:         result.Payload.Digest,
		Signature:      result.Payload.Signature,
		Signer:         result.Payload.Signer,
		SignatureValid: result.SignatureValid,
	})
}

// HandlePublicKey handles GET /keys/signing.pem.
func (h *Handler) HandlePublicKey(w http.ResponseWriter, r *http.Request) {
	pemBytes, err := h.keys.PublicKeyPEM()
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to export public key", "error", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to export public key"))
		return
	}
	w.Header().Set("Content-Type", "application/x-pem-file")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pemBytes)
}

func (h *Handler) subject(w http.ResponseWriter, r *http.Request) (authz.Subject, bool) {
	subject, err := authz.SubjectFromContext(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return authz.Subject{}, false
	}
	return subject, true
}

func (h *Handler) subjectAndDocument(w http.ResponseWriter, r *http.Request) (authz.Subject, id.DocumentID, bool) {
	subject, ok := h.subject(w, r)
	if !ok {
		return authz.Subject{}, id.DocumentID{}, false
	}
	docID, err := id.ParseDocumentID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return authz.Subject{}, id.DocumentID{}, false
	}
	return subject, docID, true
}

// sanitizeFileName keeps the base name and drops control characters.
func sanitizeFileName(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f || r == '"' {
			return -1
		}
		return r
	}, name)
	if name == "" {
		return "document"
	}
	return name
}
