package cache

import (
	"context"
	"time"

	"messbook/backend/internal/domain"
)

// CatalogCache holds the item list between catalog reads. Writes to the
// catalog or the ledger must Invalidate so stale stock figures never outlive
// the TTL by more than one request.
type CatalogCache interface {
	Get(ctx context.Context) ([]domain.Item, bool, error)
	Set(ctx context.Context, items []domain.Item, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

type NoopCatalogCache struct{}

func (NoopCatalogCache) Get(_ context.Context) ([]domain.Item, bool, error) {
	return nil, false, nil
}

func (NoopCatalogCache) Set(_ context.Context, _ []domain.Item, _ time.Duration) error {
	return nil
}

func (NoopCatalogCache) Invalidate(_ context.Context) error {
	return nil
}
