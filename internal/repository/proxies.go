package repository

import (
	"context"

	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/model"
)

// ProxyRepository stores per-user relay endpoints. The schema clears any
// account reference on proxy deletion instead of cascading into accounts.
type ProxyRepository interface {
	// Insert persists a proxy and returns its id.
	Insert(ctx context.Context, p *model.Proxy) (int64, error)
	// Get returns one proxy by id for the owner.
	Get(ctx context.Context, ownerID, proxyID int64) (*model.Proxy, error)
	// ListByUser returns the owner's proxies ordered by creation time.
	ListByUser(ctx context.Context, ownerID int64) ([]model.Proxy, error)
	// Delete removes one proxy owned by ownerID.
	Delete(ctx context.Context, ownerID, proxyID int64) error
}
