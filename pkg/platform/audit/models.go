package audit

import (
	"time"

	id "custody/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
type EventCategory string

const (
	// CategoryCustody covers events that change or disclose protected material:
	// ingestion, attestation, disclosure, deletion and access decisions.
	CategoryCustody EventCategory = "custody"

	// CategorySecurity covers authentication failures and authorization denials.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine activity such as verification checks.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. It never carries
// plaintext, key material, OTP codes or password material.
type Event struct {
	Category    EventCategory
	Timestamp   time.Time
	PrincipalID id.PrincipalID
	Role        string
	Action      string
	// Subject is the entity acted upon: a document id, access request id or
	// principal identity.
	Subject   string
	Decision  string
	Reason    string
	RequestID string
	Device    string
	IP        string
}

type AuditEvent string

const (
	// Credential events
	EventPrincipalRegistered AuditEvent = "principal_registered"
	EventChallengeIssued     AuditEvent = "challenge_issued"
	EventSessionIssued       AuditEvent = "session_issued"
	EventSessionRevoked      AuditEvent = "session_revoked"
	EventAuthFailed          AuditEvent = "auth_failed"
	EventAuthLockout         AuditEvent = "auth_lockout_triggered"

	// Document events
	EventDocumentIngested  AuditEvent = "document_ingested"
	EventDocumentAttested  AuditEvent = "document_attested"
	EventDocumentVerified  AuditEvent = "document_verified"
	EventDocumentDisclosed AuditEvent = "document_disclosed"
	EventDocumentDeleted   AuditEvent = "document_deleted"

	// Access request events
	EventAccessRequested AuditEvent = "access_requested"
	EventAccessDecided   AuditEvent = "access_decided"

	// Authorization
	EventAuthorizationDenied AuditEvent = "authorization_denied"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventPrincipalRegistered: CategoryCustody,
	EventDocumentIngested:    CategoryCustody,
	EventDocumentAttested:    CategoryCustody,
	EventDocumentDisclosed:   CategoryCustody,
	EventDocumentDeleted:     CategoryCustody,
	EventAccessRequested:     CategoryCustody,
	EventAccessDecided:       CategoryCustody,

	EventAuthFailed:          CategorySecurity,
	EventAuthLockout:         CategorySecurity,
	EventSessionRevoked:      CategorySecurity,
	EventAuthorizationDenied: CategorySecurity,

	EventChallengeIssued:  CategoryOperations,
	EventSessionIssued:    CategoryOperations,
	EventDocumentVerified: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}
