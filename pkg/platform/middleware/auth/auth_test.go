package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	id "custody/pkg/domain"
	"custody/pkg/requestcontext"
)

type stubValidator struct {
	claims *JWTClaims
	err    error
}

func (v stubValidator) ValidateToken(string) (*JWTClaims, error) { return v.claims, v.err }

type stubRevocation struct {
	revoked bool
	err     error
}

func (c stubRevocation) IsTokenRevoked(context.Context, string) (bool, error) {
	return c.revoked, c.err
}

type RequireAuthSuite struct {
	suite.Suite
	logger      *slog.Logger
	principalID id.PrincipalID
}

func TestRequireAuthSuite(t *testing.T) {
	suite.Run(t, new(RequireAuthSuite))
}

func (s *RequireAuthSuite) SetupTest() {
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s.principalID = id.NewPrincipalID()
}

func (s *RequireAuthSuite) validClaims() *JWTClaims {
	return &JWTClaims{
		PrincipalID: s.principalID.String(),
		Role:        string(id.RoleReviewer),
		JTI:         "jti-1",
		ExpiresAt:   time.Now().Add(time.Hour),
	}
}

func (s *RequireAuthSuite) serve(v JWTValidator, c TokenRevocationChecker, header string) (*httptest.ResponseRecorder, context.Context) {
	var seen context.Context
	h := RequireAuth(v, c, s.logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Context()
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w, seen
}

func (s *RequireAuthSuite) TestResolvesPrincipal() {
	w, ctx := s.serve(stubValidator{claims: s.validClaims()}, stubRevocation{}, "Bearer token")

	s.Equal(http.StatusNoContent, w.Code)
	s.Require().NotNil(ctx)
	s.Equal(s.principalID, requestcontext.PrincipalID(ctx))
	s.Equal(id.RoleReviewer, requestcontext.Role(ctx))
	s.Equal("jti-1", requestcontext.TokenID(ctx))
}

func (s *RequireAuthSuite) TestRejections() {
	s.Run("missing header", func() {
		w, _ := s.serve(stubValidator{claims: s.validClaims()}, nil, "")
		s.Equal(http.StatusUnauthorized, w.Code)
	})

	s.Run("invalid token", func() {
		w, _ := s.serve(stubValidator{err: errors.New("bad")}, nil, "Bearer nope")
		s.Equal(http.StatusUnauthorized, w.Code)
	})

	s.Run("unknown role claim", func() {
		claims := s.validClaims()
		claims.Role = "superuser"
		w, _ := s.serve(stubValidator{claims: claims}, nil, "Bearer token")
		s.Equal(http.StatusUnauthorized, w.Code)
	})

	s.Run("revoked token", func() {
		w, _ := s.serve(stubValidator{claims: s.validClaims()}, stubRevocation{revoked: true}, "Bearer token")
		s.Equal(http.StatusUnauthorized, w.Code)
		s.Contains(w.Body.String(), "revoked")
	})

	s.Run("revocation lookup failure fails closed", func() {
		w, _ := s.serve(stubValidator{claims: s.validClaims()}, stubRevocation{err: errors.New("redis down")}, "Bearer token")
		s.Equal(http.StatusInternalServerError, w.Code)
	})
}
