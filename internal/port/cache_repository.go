package port

import (
	"context"
	"time"

	"github.com/rl1809/restock-engine/internal/core/domain"
)

type CacheRepository interface {
	// RecentSalesGeneration returns the current cache generation; readers pass
	// it back to SetRecentSales so a fill that raced an invalidation is dropped
	RecentSalesGeneration(ctx context.Context) (int64, error)

	// GetRecentSales returns false on a cache miss
	GetRecentSales(ctx context.Context, limit int) ([]domain.SaleEvent, bool, error)

	SetRecentSales(ctx context.Context, generation int64, limit int, sales []domain.SaleEvent) error

	// InvalidateRecentSales drops every cached view and bumps the generation
	InvalidateRecentSales(ctx context.Context) error

	// AcquireCooldown returns false if a cooldown for key is still active
	AcquireCooldown(ctx context.Context, key string, ttl time.Duration) (bool, error)

	Ping(ctx context.Context) error
}
