package cache

import (
	"context"
	"time"

	"noorcreations/backend/internal/domain"
)

// ListingCache caches the product listing and must be invalidated after any
// write that changes products or stock (sales, exchanges, imports,
// adjustments).
type ListingCache interface {
	GetProducts(ctx context.Context, key string) ([]domain.Product, bool, error)
	SetProducts(ctx context.Context, key string, products []domain.Product, ttl time.Duration) error
	InvalidateProducts(ctx context.Context) error
}

type NoopListingCache struct{}

func (NoopListingCache) GetProducts(_ context.Context, _ string) ([]domain.Product, bool, error) {
	return nil, false, nil
}

func (NoopListingCache) SetProducts(_ context.Context, _ string, _ []domain.Product, _ time.Duration) error {
	return nil
}

func (NoopListingCache) InvalidateProducts(_ context.Context) error {
	return nil
}
