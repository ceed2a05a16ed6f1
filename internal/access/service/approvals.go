package service

import (
	"context"
	"errors"

	id "custody/pkg/domain"
	"custody/pkg/platform/sentinel"
)

// Approvals answers authz.ApprovalChecker from the store alone, so the
// authorizer can be built before the Service that depends on it.
type Approvals struct {
	store Store
}

func NewApprovals(store Store) *Approvals {
	return &Approvals{store: store}
}

func (a *Approvals) IsApproved(ctx context.Context, requester id.PrincipalID, documentID id.DocumentID) (bool, error) {
	req, err := a.store.FindByPair(ctx, requester, documentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return req.IsApproved(), nil
}
