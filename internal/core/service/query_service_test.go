package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rl1809/restock-engine/internal/core/domain"
	"github.com/rl1809/restock-engine/internal/port"
)

func TestQueryService_GetInventoryUnknown(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	q := NewQueryService(f.db, f.cache, DefaultConfig(), zaptest.NewLogger(t))

	_, err := q.GetInventory(context.Background(), "ghost")

	assert.True(t, errors.Is(err, port.ErrNotFound))
}

func TestQueryService_ListInventorySorted(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.seed(t, "b", 1)
	f.seed(t, "a", 2)
	q := NewQueryService(f.db, f.cache, DefaultConfig(), zaptest.NewLogger(t))

	records, err := q.ListInventory(context.Background())
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, "a", records[0].SKU)
	assert.Equal(t, "b", records[1].SKU)
}

func TestQueryService_RecentSalesUsesCache(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()
	q := NewQueryService(f.db, f.cache, DefaultConfig(), zaptest.NewLogger(t))

	for i := 0; i < 12; i++ {
		require.NoError(t, f.svc.HandleOrder(ctx, domain.OrderEvent{SKU: "SKU-1", Quantity: 1}))
		f.clock.Advance(time.Second)
	}

	sales, err := q.RecentSales(ctx, 0)
	require.NoError(t, err)
	require.Len(t, sales, 10)
	assert.Equal(t, int64(12), sales[0].ID)

	cached, hit, err := f.cache.GetRecentSales(ctx, 10)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, sales, cached)
}

func TestQueryService_StaleFillIsDropped(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	gen, err := f.cache.RecentSalesGeneration(ctx)
	require.NoError(t, err)

	// a sale commits between the generation read and the fill
	require.NoError(t, f.svc.HandleOrder(ctx, domain.OrderEvent{SKU: "SKU-1", Quantity: 1}))
	require.NoError(t, f.cache.SetRecentSales(ctx, gen, 10, nil))

	_, hit, err := f.cache.GetRecentSales(ctx, 10)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestQueryService_Forecast(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()
	f.seed(t, "SKU-1", 40)

	// 10 items over 10 seconds observed
	require.NoError(t, f.svc.HandleOrder(ctx, domain.OrderEvent{SKU: "SKU-1", Quantity: 5}))
	f.clock.Advance(10 * time.Second)
	require.NoError(t, f.svc.HandleOrder(ctx, domain.OrderEvent{SKU: "SKU-1", Quantity: 5}))
	require.NoError(t, f.svc.HandleVelocityUpdate(ctx, domain.AIPredictionEvent{SKU: "SKU-1", VelocityPerMinute: 3}))

	q := NewQueryService(f.db, f.cache, DefaultConfig(), zaptest.NewLogger(t))
	fc, err := q.Forecast(ctx, "SKU-1")
	require.NoError(t, err)

	assert.Equal(t, 30, fc.Record.Quantity)
	assert.InDelta(t, 1.0, float64(fc.ObservedVelocity), 1e-12)
	assert.Equal(t, int64(30), fc.Observed.Seconds)
	assert.Equal(t, "30 seconds left", fc.Observed.Label)
	assert.Equal(t, int64(600), fc.Predicted.Seconds)
	assert.Equal(t, "10 mins left", fc.Predicted.Label)
	assert.True(t, fc.RestockDue)
}

func TestQueryService_ForecastWithoutHistoryIsStable(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.seed(t, "SKU-1", 40)
	q := NewQueryService(f.db, f.cache, DefaultConfig(), zaptest.NewLogger(t))

	fc, err := q.Forecast(context.Background(), "SKU-1")
	require.NoError(t, err)

	assert.True(t, fc.Observed.Infinite)
	assert.True(t, fc.Predicted.Infinite)
	assert.False(t, fc.RestockDue)
}
