package handler

import (
	"time"

	"custody/internal/access/models"
)

type Response struct {
	ID          string     `json:"id"`
	RequesterID string     `json:"requester_id"`
	DocumentID  string     `json:"document_id"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	DecidedAt   *time.Time `json:"decided_at,omitempty"`
	DecidedBy   string     `json:"decided_by,omitempty"`
}

type ListResponse struct {
	Requests []Response `json:"requests"`
}

func toResponse(r *models.AccessRequest) Response {
	resp := Response{
		ID:          r.ID.String(),
		RequesterID: r.RequesterID.String(),
		DocumentID:  r.DocumentID.String(),
		Status:      r.Status.String(),
		CreatedAt:   r.CreatedAt,
		DecidedAt:   r.DecidedAt,
	}
	if r.DecidedBy != nil {
		resp.DecidedBy = r.DecidedBy.String()
	}
	return resp
}
