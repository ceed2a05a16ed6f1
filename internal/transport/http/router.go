package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	id "custody/pkg/domain"
	"custody/pkg/platform/httputil"
	adminmw "custody/pkg/platform/middleware/admin"
	authmw "custody/pkg/platform/middleware/auth"
	"custody/pkg/platform/middleware/metadata"
	"custody/pkg/platform/middleware/request"
	"custody/pkg/platform/middleware/requesttime"
)

// RouteRegistrar is implemented by every feature handler. Public routes are
// served without a session; Register runs behind RequireAuth.
type RouteRegistrar interface {
	Register(r chi.Router)
}

type PublicRouteRegistrar interface {
	RegisterPublic(r chi.Router)
}

// HealthCheck reports whether a backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Router holds everything needed to assemble the HTTP surface.
type Router struct {
	Logger      *slog.Logger
	Validator   authmw.JWTValidator
	Revocations authmw.TokenRevocationChecker

	Public []PublicRouteRegistrar
	// Authenticated handlers are mounted behind RequireAuth.
	Authenticated []RouteRegistrar
	// Admin handlers additionally require the custodian role.
	Admin []RouteRegistrar

	Metrics      http.Handler
	HealthChecks map[string]HealthCheck
}

// NewRouter wires the middleware chain and every feature handler onto chi.
func NewRouter(cfg Router) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recovery(logger))
	r.Use(request.Logger(logger))
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)

	r.Get("/healthz", healthHandler(cfg.HealthChecks))
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	for _, h := range cfg.Public {
		h.RegisterPublic(r)
	}

	r.Group(func(r chi.Router) {
		r.Use(authmw.RequireAuth(cfg.Validator, cfg.Revocations, logger))
		for _, h := range cfg.Authenticated {
			h.Register(r)
		}
		r.Group(func(r chi.Router) {
			r.Use(adminmw.RequireRole(logger, id.RoleCustodian))
			for _, h := range cfg.Admin {
				h.Register(r)
			}
		})
	})
	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok"}
		status := http.StatusOK
		if len(checks) > 0 {
			resp.Checks = make(map[string]string, len(checks))
		}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				resp.Checks[name] = "unavailable"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
