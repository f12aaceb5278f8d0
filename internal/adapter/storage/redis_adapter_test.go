package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/restock-engine/internal/core/domain"
	"github.com/rl1809/restock-engine/internal/port"
)

func getRedisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return client
}

// runCacheSuite checks behavior every CacheRepository must share.
func runCacheSuite(t *testing.T, newCache func(t *testing.T) port.CacheRepository) {
	sales := []domain.SaleEvent{
		{ID: 2, SKU: "b", Quantity: 3, SoldAt: time.Date(2024, 3, 1, 12, 0, 1, 0, time.UTC)},
		{ID: 1, SKU: "a", Quantity: 1, SoldAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
	}

	t.Run("MissThenHit", func(t *testing.T) {
		cache := newCache(t)
		ctx := context.Background()

		_, hit, err := cache.GetRecentSales(ctx, 10)
		require.NoError(t, err)
		assert.False(t, hit)

		gen, err := cache.RecentSalesGeneration(ctx)
		require.NoError(t, err)
		require.NoError(t, cache.SetRecentSales(ctx, gen, 10, sales))

		got, hit, err := cache.GetRecentSales(ctx, 10)
		require.NoError(t, err)
		require.True(t, hit)
		require.Len(t, got, 2)
		assert.Equal(t, int64(2), got[0].ID)
		assert.True(t, got[0].SoldAt.Equal(sales[0].SoldAt))

		_, hit, err = cache.GetRecentSales(ctx, 5)
		require.NoError(t, err)
		assert.False(t, hit, "limits are cached separately")
	})

	t.Run("InvalidateDropsEveryLimit", func(t *testing.T) {
		cache := newCache(t)
		ctx := context.Background()

		gen, err := cache.RecentSalesGeneration(ctx)
		require.NoError(t, err)
		require.NoError(t, cache.SetRecentSales(ctx, gen, 10, sales))
		require.NoError(t, cache.SetRecentSales(ctx, gen, 1, sales[:1]))

		require.NoError(t, cache.InvalidateRecentSales(ctx))

		for _, limit := range []int{1, 10} {
			_, hit, err := cache.GetRecentSales(ctx, limit)
			require.NoError(t, err)
			assert.False(t, hit)
		}

		next, err := cache.RecentSalesGeneration(ctx)
		require.NoError(t, err)
		assert.Equal(t, gen+1, next)
	})

	t.Run("StaleGenerationIgnored", func(t *testing.T) {
		cache := newCache(t)
		ctx := context.Background()

		gen, err := cache.RecentSalesGeneration(ctx)
		require.NoError(t, err)
		require.NoError(t, cache.InvalidateRecentSales(ctx))
		require.NoError(t, cache.SetRecentSales(ctx, gen, 10, sales))

		_, hit, err := cache.GetRecentSales(ctx, 10)
		require.NoError(t, err)
		assert.False(t, hit)
	})

	t.Run("Cooldown", func(t *testing.T) {
		cache := newCache(t)
		ctx := context.Background()

		ok, err := cache.AcquireCooldown(ctx, "restock-cooldown:test", 200*time.Millisecond)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = cache.AcquireCooldown(ctx, "restock-cooldown:test", 200*time.Millisecond)
		require.NoError(t, err)
		assert.False(t, ok)

		time.Sleep(300 * time.Millisecond)
		ok, err = cache.AcquireCooldown(ctx, "restock-cooldown:test", 200*time.Millisecond)
		require.NoError(t, err)
		assert.True(t, ok, "cooldown expires")
	})
}

func TestMemoryCache(t *testing.T) {
	runCacheSuite(t, func(t *testing.T) port.CacheRepository {
		return NewMemoryCache()
	})
}

func TestRedisAdapter(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	runCacheSuite(t, func(t *testing.T) port.CacheRepository {
		ctx := context.Background()
		client.Del(ctx, recentSalesKey, recentSalesGenerationKey, "restock-cooldown:test")
		return NewRedisAdapter(client)
	})
}
