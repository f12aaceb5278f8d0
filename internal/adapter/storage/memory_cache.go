package storage

import (
	"context"
	"sync"
	"time"

	"github.com/rl1809/restock-engine/internal/core/domain"
)

// MemoryCache is the in-process counterpart of RedisAdapter.
type MemoryCache struct {
	mu         sync.Mutex
	generation int64
	recent     map[int][]domain.SaleEvent
	cooldowns  map[string]time.Time
	now        func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		recent:    make(map[int][]domain.SaleEvent),
		cooldowns: make(map[string]time.Time),
		now:       time.Now,
	}
}

func (c *MemoryCache) RecentSalesGeneration(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation, nil
}

func (c *MemoryCache) GetRecentSales(ctx context.Context, limit int) ([]domain.SaleEvent, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sales, ok := c.recent[limit]
	if !ok {
		return nil, false, nil
	}
	out := make([]domain.SaleEvent, len(sales))
	copy(out, sales)
	return out, true, nil
}

func (c *MemoryCache) SetRecentSales(ctx context.Context, generation int64, limit int, sales []domain.SaleEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if generation != c.generation {
		return nil
	}
	stored := make([]domain.SaleEvent, len(sales))
	copy(stored, sales)
	c.recent[limit] = stored
	return nil
}

func (c *MemoryCache) InvalidateRecentSales(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.recent = make(map[int][]domain.SaleEvent)
	c.generation++
	return nil
}

func (c *MemoryCache) AcquireCooldown(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if until, ok := c.cooldowns[key]; ok && now.Before(until) {
		return false, nil
	}
	c.cooldowns[key] = now.Add(ttl)
	return true, nil
}

func (c *MemoryCache) Ping(ctx context.Context) error {
	return nil
}
