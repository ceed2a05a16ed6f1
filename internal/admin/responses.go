package admin

import (
	"time"

	"custody/pkg/platform/audit"
)

// AuditEventResponse is the HTTP shape of one audit event.
type AuditEventResponse struct {
	Category    string    `json:"category"`
	Timestamp   time.Time `json:"timestamp"`
	PrincipalID string    `json:"principal_id,omitempty"`
	Role        string    `json:"role,omitempty"`
	Action      string    `json:"action"`
	Subject     string    `json:"subject,omitempty"`
	Decision    string    `json:"decision,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	RequestID   string    `json:"request_id,omitempty"`
	Device      string    `json:"device,omitempty"`
}

type AuditListResponse struct {
	Events []AuditEventResponse `json:"events"`
	Total  int                  `json:"total"`
}

func toAuditEventResponse(e audit.Event) AuditEventResponse {
	resp := AuditEventResponse{
		Category:  string(e.Category),
		Timestamp: e.Timestamp,
		Role:      e.Role,
		Action:    e.Action,
		Subject:   e.Subject,
		Decision:  e.Decision,
		Reason:    e.Reason,
		RequestID: e.RequestID,
		Device:    e.Device,
	}
	if !e.PrincipalID.IsNil() {
		resp.PrincipalID = e.PrincipalID.String()
	}
	return resp
}
