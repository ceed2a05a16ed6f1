// Package authz is the single place where authorization is decided. Callers
// never compare owners or look up approvals themselves.
//
// A decision has two layers: StaticAllowed consults the ACL matrix, and only
// for instance-scoped actions does InstanceAllowed look at the concrete
// document (ownership) or the access request machine (approval).
package authz

import (
	"context"

	"custody/internal/acl"
	id "custody/pkg/domain"
	dErrors "custody/pkg/domain-errors"
	"custody/pkg/requestcontext"
)

// ApprovalChecker answers whether a reviewer's request for a document was approved.
type ApprovalChecker interface {
	IsApproved(ctx context.Context, requesterID id.PrincipalID, documentID id.DocumentID) (bool, error)
}

// Subject is the resolved caller.
type Subject struct {
	PrincipalID id.PrincipalID
	Role        id.Role
}

// SubjectFromContext reads the principal placed by the auth middleware.
func SubjectFromContext(ctx context.Context) (Subject, error) {
	subject := Subject{PrincipalID: requestcontext.PrincipalID(ctx), Role: requestcontext.Role(ctx)}
	if subject.PrincipalID.IsNil() || !subject.Role.IsValid() {
		return Subject{}, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	return subject, nil
}

// DocumentRef is the slice of a document authorization needs.
type DocumentRef struct {
	ID       id.DocumentID
	OwnerID  id.PrincipalID
	Category acl.Resource
}

type Authorizer struct {
	matrix    *acl.Matrix
	approvals ApprovalChecker
}

func New(matrix *acl.Matrix, approvals ApprovalChecker) *Authorizer {
	return &Authorizer{matrix: matrix, approvals: approvals}
}

// StaticAllowed is the class-level layer.
func (a *Authorizer) StaticAllowed(role id.Role, resource acl.Resource, action acl.Action) bool {
	return a.matrix.Allowed(role, resource, action)
}

// InstanceAllowed is the per-instance layer for instance-scoped actions on a
// document. Actions that are not instance-scoped pass trivially.
func (a *Authorizer) InstanceAllowed(ctx context.Context, subject Subject, action acl.Action, doc DocumentRef) (bool, error) {
	switch action {
	case acl.ActionViewOwn:
		return !doc.OwnerID.IsNil() && doc.OwnerID == subject.PrincipalID, nil
	case acl.ActionViewApproved:
		if a.approvals == nil {
			return false, nil
		}
		ok, err := a.approvals.IsApproved(ctx, subject.PrincipalID, doc.ID)
		if err != nil {
			return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check access approval")
		}
		return ok, nil
	default:
		return true, nil
	}
}

// Authorize enforces a class-level action, e.g. upload or user:manage.
func (a *Authorizer) Authorize(subject Subject, resource acl.Resource, action acl.Action) error {
	if a.StaticAllowed(subject.Role, resource, action) {
		return nil
	}
	return denied(subject, resource, action, "")
}

// AuthorizeDocument enforces action on a specific document, running the
// instance layer when the action requires it.
func (a *Authorizer) AuthorizeDocument(ctx context.Context, subject Subject, action acl.Action, doc DocumentRef) error {
	if !a.StaticAllowed(subject.Role, doc.Category, action) {
		return denied(subject, doc.Category, action, doc.ID.String())
	}
	if !action.InstanceScoped() {
		return nil
	}
	ok, err := a.InstanceAllowed(ctx, subject, action, doc)
	if err != nil {
		return err
	}
	if !ok {
		return denied(subject, doc.Category, action, doc.ID.String())
	}
	return nil
}

// DisclosureActions are the ways a principal may be allowed to read a
// document's plaintext, tried in order.
var DisclosureActions = []acl.Action{acl.ActionViewAll, acl.ActionViewOwn, acl.ActionViewApproved}

// AuthorizeDisclosure decides whether subject may read doc's plaintext: any
// one of view_all, view_own with ownership, or view_approved with an approved
// request suffices.
func (a *Authorizer) AuthorizeDisclosure(ctx context.Context, subject Subject, doc DocumentRef) error {
	for _, action := range DisclosureActions {
		if !a.StaticAllowed(subject.Role, doc.Category, action) {
			continue
		}
		ok, err := a.InstanceAllowed(ctx, subject, action, doc)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return denied(subject, doc.Category, "view", doc.ID.String())
}

// MetadataVisible reports whether subject may see that doc exists and check
// its attestation, without reading plaintext. Reviewers see every document in
// a category they can request; owners see their own.
func (a *Authorizer) MetadataVisible(subject Subject, doc DocumentRef) bool {
	switch {
	case a.StaticAllowed(subject.Role, doc.Category, acl.ActionViewAll):
		return true
	case a.StaticAllowed(subject.Role, doc.Category, acl.ActionViewApproved):
		return true
	case a.StaticAllowed(subject.Role, doc.Category, acl.ActionViewOwn):
		return doc.OwnerID == subject.PrincipalID
	default:
		return false
	}
}

// AuthorizeMetadata is MetadataVisible as an error.
func (a *Authorizer) AuthorizeMetadata(subject Subject, doc DocumentRef) error {
	if a.MetadataVisible(subject, doc) {
		return nil
	}
	return denied(subject, doc.Category, "view", doc.ID.String())
}

// denied builds an authorization error whose details carry the audit context
// while the message stays generic.
func denied(subject Subject, resource acl.Resource, action acl.Action, documentID string) error {
	kv := []string{
		"role", subject.Role.String(),
		"resource", resource.String(),
		"action", action.String(),
	}
	if documentID != "" {
		kv = append(kv, "document_id", documentID)
	}
	return dErrors.New(dErrors.CodeForbidden, "access denied").WithDetails(kv...)
}
