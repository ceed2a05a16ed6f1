package service

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"custody/internal/access/models"
	"custody/internal/authz"
	id "custody/pkg/domain"
)

// Store persists access requests. CreateIfAbsent returns sentinel.ErrConflict
// when the (requester, document) pair already has a request; lookups return
// sentinel.ErrNotFound.
type Store interface {
	CreateIfAbsent(ctx context.Context, req *models.AccessRequest) error
	FindByID(ctx context.Context, requestID id.AccessRequestID) (*models.AccessRequest, error)
	FindByPair(ctx context.Context, requester id.PrincipalID, documentID id.DocumentID) (*models.AccessRequest, error)
	List(ctx context.Context, filter models.ListFilter) ([]*models.AccessRequest, error)
	Execute(ctx context.Context, requestID id.AccessRequestID, validate func(*models.AccessRequest) error, mutate func(*models.AccessRequest)) (*models.AccessRequest, error)
}

// DocumentFinder resolves the authorization view of a document. It returns
// sentinel.ErrNotFound when the document does not exist.
type DocumentFinder interface {
	FindRef(ctx context.Context, documentID id.DocumentID) (authz.DocumentRef, error)
}
