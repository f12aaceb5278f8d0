package port

import (
	"context"
	"errors"

	"github.com/rl1809/restock-engine/internal/core/domain"
)

var ErrNotFound = errors.New("inventory record not found")

// InventoryRepository mutates records only through field-scoped operations so
// concurrent handlers touching different fields of one SKU never overwrite
// each other.
type InventoryRepository interface {
	// GetInventory returns nil, nil when the SKU is unknown
	GetInventory(ctx context.Context, sku string) (*domain.InventoryRecord, error)

	ListInventory(ctx context.Context) ([]domain.InventoryRecord, error)

	// DeductStock creates the record at defaultQuantity if absent, then lowers
	// quantity by the given amount, floored at zero
	DeductStock(ctx context.Context, sku string, quantity, defaultQuantity int) (domain.InventoryRecord, error)

	// SetVelocity updates only the velocity field, ErrNotFound if absent
	SetVelocity(ctx context.Context, sku string, velocity domain.Velocity) (domain.InventoryRecord, error)

	// AddStock adds to quantity only, ErrNotFound if absent
	AddStock(ctx context.Context, sku string, quantity int) (domain.InventoryRecord, error)

	// SetQuantity overwrites quantity only, creating the record if absent
	SetQuantity(ctx context.Context, sku string, quantity int) (domain.InventoryRecord, error)
}

type SaleHistoryRepository interface {
	// AppendSale stores the sale and returns it with its assigned ID
	AppendSale(ctx context.Context, sale domain.SaleEvent) (domain.SaleEvent, error)

	// SalesForSKU returns sales ascending by time; limit > 0 keeps only the most recent
	SalesForSKU(ctx context.Context, sku string, limit int) ([]domain.SaleEvent, error)

	// RecentSales returns the most recent sales across all SKUs, newest first;
	// limit <= 0 returns them all
	RecentSales(ctx context.Context, limit int) ([]domain.SaleEvent, error)
}

type DatabaseRepository interface {
	InventoryRepository
	SaleHistoryRepository

	// RecordSale applies DeductStock for sale.SKU and sale.Quantity and appends
	// the sale as one atomic step. On error neither change is kept.
	RecordSale(ctx context.Context, sale domain.SaleEvent, defaultQuantity int) (domain.InventoryRecord, domain.SaleEvent, error)

	Ping(ctx context.Context) error
}
