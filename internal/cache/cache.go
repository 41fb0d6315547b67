package cache

import (
	"context"
	"time"

	"apotekkita/backend/internal/domain"
)

// StockCache holds per-product stock summaries for the cashier screen.
// Entries are invalidated whenever a purchase, registration, or sale touches
// the product's batches.
type StockCache interface {
	Get(ctx context.Context, productID string) (*domain.StockSummary, bool, error)
	Set(ctx context.Context, productID string, value *domain.StockSummary, ttl time.Duration) error
	Invalidate(ctx context.Context, productIDs ...string) error
}

type NoopStockCache struct{}

func (NoopStockCache) Get(_ context.Context, _ string) (*domain.StockSummary, bool, error) {
	return nil, false, nil
}

func (NoopStockCache) Set(_ context.Context, _ string, _ *domain.StockSummary, _ time.Duration) error {
	return nil
}

func (NoopStockCache) Invalidate(_ context.Context, _ ...string) error {
	return nil
}
