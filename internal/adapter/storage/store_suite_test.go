package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/restock-engine/internal/core/domain"
	"github.com/rl1809/restock-engine/internal/port"
)

// runStoreSuite checks behavior every DatabaseRepository must share.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) port.DatabaseRepository) {
	t.Run("GetUnknown", func(t *testing.T) {
		store := newStore(t)
		rec, err := store.GetInventory(context.Background(), "ghost")
		require.NoError(t, err)
		assert.Nil(t, rec)
	})

	t.Run("DeductCreatesAtDefault", func(t *testing.T) {
		store := newStore(t)
		rec, err := store.DeductStock(context.Background(), "SKU-1", 30, 100)
		require.NoError(t, err)
		assert.Equal(t, "SKU-1", rec.SKU)
		assert.Equal(t, 70, rec.Quantity)
		assert.Zero(t, rec.Velocity)
		assert.Equal(t, int64(1), rec.Version)
	})

	t.Run("DeductFloorsAtZero", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		_, err := store.SetQuantity(ctx, "SKU-1", 10)
		require.NoError(t, err)

		rec, err := store.DeductStock(ctx, "SKU-1", 30, 100)
		require.NoError(t, err)
		assert.Equal(t, 0, rec.Quantity)
	})

	t.Run("SetVelocityKeepsQuantity", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		_, err := store.SetQuantity(ctx, "SKU-1", 42)
		require.NoError(t, err)

		rec, err := store.SetVelocity(ctx, "SKU-1", 0.25)
		require.NoError(t, err)
		assert.Equal(t, 42, rec.Quantity)
		assert.InDelta(t, 0.25, float64(rec.Velocity), 1e-12)
		assert.Equal(t, int64(2), rec.Version)
	})

	t.Run("SetVelocityUnchangedValueStillFound", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		_, err := store.SetQuantity(ctx, "SKU-1", 1)
		require.NoError(t, err)

		_, err = store.SetVelocity(ctx, "SKU-1", 0.5)
		require.NoError(t, err)
		_, err = store.SetVelocity(ctx, "SKU-1", 0.5)
		require.NoError(t, err)
	})

	t.Run("SetVelocityUnknown", func(t *testing.T) {
		store := newStore(t)
		_, err := store.SetVelocity(context.Background(), "ghost", 1)
		assert.True(t, errors.Is(err, port.ErrNotFound), "got %v", err)
	})

	t.Run("AddStockKeepsVelocity", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		_, err := store.SetQuantity(ctx, "SKU-1", 0)
		require.NoError(t, err)
		_, err = store.SetVelocity(ctx, "SKU-1", 0.05)
		require.NoError(t, err)

		rec, err := store.AddStock(ctx, "SKU-1", 100)
		require.NoError(t, err)
		assert.Equal(t, 100, rec.Quantity)
		assert.InDelta(t, 0.05, float64(rec.Velocity), 1e-12)
	})

	t.Run("AddStockUnknown", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		_, err := store.AddStock(ctx, "ghost", 100)
		assert.True(t, errors.Is(err, port.ErrNotFound), "got %v", err)

		rec, err := store.GetInventory(ctx, "ghost")
		require.NoError(t, err)
		assert.Nil(t, rec)
	})

	t.Run("SetQuantityUpserts", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		_, err := store.SetQuantity(ctx, "SKU-1", 5)
		require.NoError(t, err)
		_, err = store.SetVelocity(ctx, "SKU-1", 2)
		require.NoError(t, err)

		rec, err := store.SetQuantity(ctx, "SKU-1", 9)
		require.NoError(t, err)
		assert.Equal(t, 9, rec.Quantity)
		assert.InDelta(t, 2.0, float64(rec.Velocity), 1e-12)
		assert.Equal(t, int64(3), rec.Version)
	})

	t.Run("ListSortedBySKU", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		for _, sku := range []string{"c", "a", "b"} {
			_, err := store.SetQuantity(ctx, sku, 1)
			require.NoError(t, err)
		}

		records, err := store.ListInventory(ctx)
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, []string{"a", "b", "c"}, []string{records[0].SKU, records[1].SKU, records[2].SKU})
	})

	t.Run("SalesOrdering", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		for i, sku := range []string{"a", "b", "a", "a"} {
			sale, err := store.AppendSale(ctx, domain.SaleEvent{
				SKU:      sku,
				Quantity: i + 1,
				SoldAt:   base.Add(time.Duration(i) * time.Second),
			})
			require.NoError(t, err)
			assert.NotZero(t, sale.ID)
		}

		all, err := store.SalesForSKU(ctx, "a", 0)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []int{1, 3, 4}, quantities(all))
		assert.True(t, all[0].SoldAt.Equal(base))

		last, err := store.SalesForSKU(ctx, "a", 2)
		require.NoError(t, err)
		assert.Equal(t, []int{3, 4}, quantities(last))

		recent, err := store.RecentSales(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, []int{4, 3, 2}, quantities(recent))
	})

	t.Run("RecordSaleDeductsAndAppends", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		soldAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

		rec, sale, err := store.RecordSale(ctx, domain.SaleEvent{SKU: "SKU-1", Quantity: 130, SoldAt: soldAt}, 100)
		require.NoError(t, err)
		assert.Equal(t, 0, rec.Quantity)
		assert.Equal(t, int64(1), rec.Version)
		assert.NotZero(t, sale.ID)
		assert.Equal(t, 130, sale.Quantity)

		sales, err := store.SalesForSKU(ctx, "SKU-1", 0)
		require.NoError(t, err)
		require.Len(t, sales, 1)
		assert.Equal(t, sale.ID, sales[0].ID)
		assert.True(t, sales[0].SoldAt.Equal(soldAt))
	})

	t.Run("RecentSalesZeroLimitReturnsAll", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		for i := 0; i < 4; i++ {
			_, err := store.AppendSale(ctx, domain.SaleEvent{
				SKU:      "SKU-1",
				Quantity: i + 1,
				SoldAt:   base.Add(time.Duration(i) * time.Second),
			})
			require.NoError(t, err)
		}

		for _, limit := range []int{0, -1} {
			recent, err := store.RecentSales(ctx, limit)
			require.NoError(t, err)
			assert.Equal(t, []int{4, 3, 2, 1}, quantities(recent), "limit %d", limit)
		}
	})

	t.Run("ConcurrentFieldUpdates", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		_, err := store.SetQuantity(ctx, "SKU-1", 500)
		require.NoError(t, err)

		const n = 50
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(3)
			go func() {
				defer wg.Done()
				_, err := store.DeductStock(ctx, "SKU-1", 4, 100)
				assert.NoError(t, err)
			}()
			go func() {
				defer wg.Done()
				_, err := store.AddStock(ctx, "SKU-1", 1)
				assert.NoError(t, err)
			}()
			go func() {
				defer wg.Done()
				_, err := store.SetVelocity(ctx, "SKU-1", 0.5)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		rec, err := store.GetInventory(ctx, "SKU-1")
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, 500-4*n+n, rec.Quantity)
		assert.InDelta(t, 0.5, float64(rec.Velocity), 1e-12)
		assert.Equal(t, int64(1+3*n), rec.Version)
	})
}

func quantities(sales []domain.SaleEvent) []int {
	out := make([]int, len(sales))
	for i, s := range sales {
		out[i] = s.Quantity
	}
	return out
}

func TestMemoryAdapter(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) port.DatabaseRepository {
		return NewMemoryAdapter()
	})
}
