package api

import (
	"context"

	"colist-api/collab"
	"colist-api/domain"
)

// Store is the document store the gateway serves. It is the sync core's
// store surface plus the one-shot document read used for access checks.
type Store interface {
	collab.Store
	GetList(ctx context.Context, listID string) (domain.TodoList, bool, error)
}

// Authenticator is implemented by types able to resolve users from headers.
type Authenticator interface {
	UserFromAuthHeader(string) (domain.User, error)
}
