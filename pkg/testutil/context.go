package testutil

import (
	"net/http"
	"time"

	id "custody/pkg/domain"
	"custody/pkg/requestcontext"
)

// WithPrincipal adds a principal and role to the request context.
// This simulates what the auth middleware does for authenticated requests.
func WithPrincipal(req *http.Request, principalID id.PrincipalID, role id.Role) *http.Request {
	return req.WithContext(requestcontext.WithPrincipal(req.Context(), principalID, role))
}

// WithToken adds a session token identity, as the auth middleware would.
func WithToken(req *http.Request, principalID id.PrincipalID, role id.Role, jti string) *http.Request {
	ctx := requestcontext.WithPrincipal(req.Context(), principalID, role)
	return req.WithContext(requestcontext.WithToken(ctx, jti, requestcontext.Now(ctx).Add(24*time.Hour)))
}
