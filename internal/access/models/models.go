package models

import (
	"time"

	id "custody/pkg/domain"
	dErrors "custody/pkg/domain-errors"
)

// Status is the access request lifecycle state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// CanTransitionTo allows pending -> approved and pending -> rejected only.
func (s Status) CanTransitionTo(next Status) bool {
	return s == StatusPending && next.IsTerminal()
}

func (s Status) String() string { return string(s) }

// ParseDecision accepts the two custodian outcomes.
func ParseDecision(s string) (Status, error) {
	switch Status(s) {
	case StatusApproved, StatusRejected:
		return Status(s), nil
	default:
		return "", dErrors.New(dErrors.CodeInvalidInput, "status must be approved or rejected")
	}
}

// AccessRequest is a reviewer's request to read one document.
//
// Invariants:
//   - At most one request exists per (RequesterID, DocumentID), whatever its status
//   - Status moves pending -> approved|rejected exactly once, then never changes
//   - DecidedAt and DecidedBy are set iff Status is terminal
type AccessRequest struct {
	ID          id.AccessRequestID `json:"id"`
	RequesterID id.PrincipalID     `json:"requester_id"`
	DocumentID  id.DocumentID      `json:"document_id"`
	// OwnerID is the document owner at request time.
	OwnerID   id.PrincipalID  `json:"owner_id"`
	Status    Status          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	DecidedAt *time.Time      `json:"decided_at,omitempty"`
	DecidedBy *id.PrincipalID `json:"decided_by,omitempty"`
}

// NewAccessRequest builds a pending request.
func NewAccessRequest(requestID id.AccessRequestID, requester id.PrincipalID, documentID id.DocumentID, owner id.PrincipalID, now time.Time) (*AccessRequest, error) {
	if requestID.IsNil() || requester.IsNil() || documentID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "access request requires request, requester and document ids")
	}
	if now.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "access request requires a creation time")
	}
	return &AccessRequest{
		ID:          requestID,
		RequesterID: requester,
		DocumentID:  documentID,
		OwnerID:     owner,
		Status:      StatusPending,
		CreatedAt:   now,
	}, nil
}

// CanDecide checks the pending precondition.
// Use with ApplyDecision in Execute callbacks.
func (r *AccessRequest) CanDecide(outcome Status) error {
	if !outcome.IsTerminal() {
		return dErrors.New(dErrors.CodeInvalidInput, "status must be approved or rejected")
	}
	if !r.Status.CanTransitionTo(outcome) {
		return dErrors.New(dErrors.CodeInvalidState, "access request has already been decided")
	}
	return nil
}

// ApplyDecision records the outcome. Call CanDecide first.
func (r *AccessRequest) ApplyDecision(outcome Status, decidedBy id.PrincipalID, now time.Time) {
	r.Status = outcome
	r.DecidedAt = &now
	r.DecidedBy = &decidedBy
}

func (r *AccessRequest) IsApproved() bool {
	return r.Status == StatusApproved
}

// Clone returns a deep copy so stores never hand out shared pointers.
func (r *AccessRequest) Clone() *AccessRequest {
	c := *r
	if r.DecidedAt != nil {
		t := *r.DecidedAt
		c.DecidedAt = &t
	}
	if r.DecidedBy != nil {
		p := *r.DecidedBy
		c.DecidedBy = &p
	}
	return &c
}

// ListFilter narrows List results. Nil ids are ignored.
type ListFilter struct {
	RequesterID id.PrincipalID
	OwnerID     id.PrincipalID
	DocumentID  id.DocumentID
}

// Matches reports whether r satisfies the filter.
func (f ListFilter) Matches(r *AccessRequest) bool {
	if !f.RequesterID.IsNil() && r.RequesterID != f.RequesterID {
		return false
	}
	if !f.OwnerID.IsNil() && r.OwnerID != f.OwnerID {
		return false
	}
	if !f.DocumentID.IsNil() && r.DocumentID != f.DocumentID {
		return false
	}
	return true
}
