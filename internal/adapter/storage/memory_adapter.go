package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rl1809/restock-engine/internal/core/domain"
	"github.com/rl1809/restock-engine/internal/port"
)

// MemoryAdapter keeps inventory and sale history in process. All mutations
// run under one mutex so every field-scoped update is atomic.
type MemoryAdapter struct {
	mu        sync.Mutex
	inventory map[string]*domain.InventoryRecord
	sales     []domain.SaleEvent
	nextID    int64
	now       func() time.Time
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		inventory: make(map[string]*domain.InventoryRecord),
		now:       time.Now,
	}
}

func (m *MemoryAdapter) GetInventory(ctx context.Context, sku string) (*domain.InventoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.inventory[sku]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (m *MemoryAdapter) ListInventory(ctx context.Context) ([]domain.InventoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.InventoryRecord, 0, len(m.inventory))
	for _, rec := range m.inventory {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out, nil
}

func (m *MemoryAdapter) DeductStock(ctx context.Context, sku string, quantity, defaultQuantity int) (domain.InventoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.deductLocked(sku, quantity, defaultQuantity), nil
}

func (m *MemoryAdapter) RecordSale(ctx context.Context, sale domain.SaleEvent, defaultQuantity int) (domain.InventoryRecord, domain.SaleEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.deductLocked(sale.SKU, sale.Quantity, defaultQuantity)
	return rec, m.appendLocked(sale), nil
}

func (m *MemoryAdapter) deductLocked(sku string, quantity, defaultQuantity int) domain.InventoryRecord {
	rec, ok := m.inventory[sku]
	if !ok {
		rec = &domain.InventoryRecord{SKU: sku, Quantity: defaultQuantity}
		m.inventory[sku] = rec
	}
	rec.Quantity -= quantity
	if rec.Quantity < 0 {
		rec.Quantity = 0
	}
	m.touch(rec)
	return *rec
}

func (m *MemoryAdapter) SetVelocity(ctx context.Context, sku string, velocity domain.Velocity) (domain.InventoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.inventory[sku]
	if !ok {
		return domain.InventoryRecord{}, port.ErrNotFound
	}
	rec.Velocity = velocity
	m.touch(rec)
	return *rec, nil
}

func (m *MemoryAdapter) AddStock(ctx context.Context, sku string, quantity int) (domain.InventoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.inventory[sku]
	if !ok {
		return domain.InventoryRecord{}, port.ErrNotFound
	}
	rec.Quantity += quantity
	if rec.Quantity < 0 {
		rec.Quantity = 0
	}
	m.touch(rec)
	return *rec, nil
}

func (m *MemoryAdapter) SetQuantity(ctx context.Context, sku string, quantity int) (domain.InventoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.inventory[sku]
	if !ok {
		rec = &domain.InventoryRecord{SKU: sku}
		m.inventory[sku] = rec
	}
	rec.Quantity = max(quantity, 0)
	m.touch(rec)
	return *rec, nil
}

func (m *MemoryAdapter) AppendSale(ctx context.Context, sale domain.SaleEvent) (domain.SaleEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.appendLocked(sale), nil
}

func (m *MemoryAdapter) appendLocked(sale domain.SaleEvent) domain.SaleEvent {
	m.nextID++
	sale.ID = m.nextID
	m.sales = append(m.sales, sale)
	return sale
}

func (m *MemoryAdapter) SalesForSKU(ctx context.Context, sku string, limit int) ([]domain.SaleEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.SaleEvent
	for _, s := range m.sales {
		if s.SKU == sku {
			out = append(out, s)
		}
	}
	sortSalesAscending(out)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *MemoryAdapter) RecentSales(ctx context.Context, limit int) ([]domain.SaleEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.SaleEvent, len(m.sales))
	copy(out, m.sales)
	sortSalesAscending(out)
	reverseSales(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryAdapter) Ping(ctx context.Context) error {
	return nil
}

func (m *MemoryAdapter) touch(rec *domain.InventoryRecord) {
	rec.Version++
	rec.UpdatedAt = m.now()
}

// sortSalesAscending orders by time then id, matching the SQL stores.
func sortSalesAscending(sales []domain.SaleEvent) {
	sort.SliceStable(sales, func(i, j int) bool {
		if !sales[i].SoldAt.Equal(sales[j].SoldAt) {
			return sales[i].SoldAt.Before(sales[j].SoldAt)
		}
		return sales[i].ID < sales[j].ID
	})
}
