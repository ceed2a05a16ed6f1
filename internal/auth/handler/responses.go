package handler

import (
	"time"

	"custody/internal/auth/models"
)

// PrincipalResponse never includes the password hash.
type PrincipalResponse struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
}

type ChallengeResponse struct {
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expires_at"`
}

type SessionResponse struct {
	Token     string            `json:"token"`
	TokenType string            `json:"token_type"`
	ExpiresAt time.Time         `json:"expires_at"`
	Principal PrincipalResponse `json:"principal"`
}

type PrincipalListResponse struct {
	Principals []PrincipalResponse `json:"principals"`
}

// ToPrincipalResponse is shared with the admin listing.
func ToPrincipalResponse(p *models.Principal) PrincipalResponse {
	return PrincipalResponse{
		ID:          p.ID.String(),
		Email:       p.Identity,
		DisplayName: p.DisplayName,
		Role:        p.Role.String(),
		CreatedAt:   p.CreatedAt,
	}
}
