package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"custody/internal/auth/models"
	"custody/internal/authz"
	"custody/pkg/platform/httputil"
	"custody/pkg/requestcontext"
)

type Service interface {
	Register(ctx context.Context, in models.RegisterInput) (*models.Principal, error)
	Login(ctx context.Context, identity, password string) (time.Time, error)
	VerifyOTP(ctx context.Context, identity, code string) (*models.Session, error)
	Logout(ctx context.Context, subject authz.Subject, jti string, expiresAt time.Time) error
	Me(ctx context.Context, subject authz.Subject) (*models.Principal, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterPublic mounts the credential routes that precede a session.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Post("/auth/register", h.HandleRegister)
	r.Post("/auth/login", h.HandleLogin)
	r.Post("/auth/otp", h.HandleOTP)
}

// Register mounts routes that need a session.
func (h *Handler) Register(r chi.Router) {
	r.Post("/auth/logout", h.HandleLogout)
	r.Get("/auth/me", h.HandleMe)
}

// HandleRegister handles POST /auth/register.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[RegisterRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	p, err := h.service.Register(ctx, models.RegisterInput{
		Identity:    req.Email,
		DisplayName: req.DisplayName,
		Password:    req.Password,
		Role:        req.Role,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "registration failed", "request_id", requestID, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, ToPrincipalResponse(p))
}

// HandleLogin handles POST /auth/login. Success means a code was sent.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[LoginRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	expiresAt, err := h.service.Login(ctx, req.Email, req.Password)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, ChallengeResponse{Status: "code_sent", ExpiresAt: expiresAt})
}

// HandleOTP handles POST /auth/otp.
func (h *Handler) HandleOTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[OTPRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	session, err := h.service.VerifyOTP(ctx, req.Email, req.Code)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	httputil.WriteJSON(w, http.StatusOK, SessionResponse{
		Token:     session.Token,
		TokenType: "Bearer",
		ExpiresAt: session.ExpiresAt,
		Principal: ToPrincipalResponse(session.Principal),
	})
}

// HandleLogout handles POST /auth/logout.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject, err := authz.SubjectFromContext(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.Logout(ctx, subject, requestcontext.TokenID(ctx), requestcontext.TokenExpiry(ctx)); err != nil {
		h.logger.ErrorContext(ctx, "logout failed", "request_id", requestcontext.RequestID(ctx), "error", err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleMe handles GET /auth/me.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject, err := authz.SubjectFromContext(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	p, err := h.service.Me(ctx, subject)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ToPrincipalResponse(p))
}
