package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/rl1809/restock-engine/internal/core/domain"
	"github.com/rl1809/restock-engine/internal/port"
)

type inventoryRow struct {
	SKU       string  `gorm:"column:sku;primaryKey;size:128"`
	Quantity  int     `gorm:"not null;default:0"`
	Velocity  float64 `gorm:"not null;default:0"`
	Version   int64   `gorm:"not null;default:0"`
	UpdatedAt time.Time
}

func (inventoryRow) TableName() string { return "inventory" }

func (r inventoryRow) toDomain() domain.InventoryRecord {
	return domain.InventoryRecord{
		SKU:       r.SKU,
		Quantity:  r.Quantity,
		Velocity:  domain.Velocity(r.Velocity),
		Version:   r.Version,
		UpdatedAt: r.UpdatedAt,
	}
}

type saleRow struct {
	ID       int64     `gorm:"primaryKey;autoIncrement"`
	SKU      string    `gorm:"column:sku;size:128;not null;index:idx_sales_sku_sold_at,priority:1"`
	Quantity int       `gorm:"not null"`
	SoldAt   time.Time `gorm:"not null;index:idx_sales_sku_sold_at,priority:2;index:idx_sales_sold_at"`
}

func (saleRow) TableName() string { return "sales" }

func (r saleRow) toDomain() domain.SaleEvent {
	return domain.SaleEvent{ID: r.ID, SKU: r.SKU, Quantity: r.Quantity, SoldAt: r.SoldAt}
}

// GormAdapter backs the postgres and sqlite store drivers.
type GormAdapter struct {
	db *gorm.DB
}

func NewGormAdapter(db *gorm.DB) *GormAdapter {
	return &GormAdapter{db: db}
}

// OpenGorm connects with the named driver. SQLite schemas are created with
// AutoMigrate; postgres relies on RunMigrations.
func OpenGorm(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported gorm driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if driver == "sqlite" {
		// sqlite allows one writer; a single connection also keeps a
		// shared in-memory database alive
		sqlDB.SetMaxOpenConns(1)
		if err := db.AutoMigrate(&inventoryRow{}, &saleRow{}); err != nil {
			return nil, fmt.Errorf("auto migrate: %w", err)
		}
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(5 * time.Minute)
	}

	return db, nil
}

func (g *GormAdapter) GetInventory(ctx context.Context, sku string) (*domain.InventoryRecord, error) {
	var row inventoryRow
	err := g.db.WithContext(ctx).Where("sku = ?", sku).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query inventory: %w", err)
	}
	rec := row.toDomain()
	return &rec, nil
}

func (g *GormAdapter) ListInventory(ctx context.Context) ([]domain.InventoryRecord, error) {
	var rows []inventoryRow
	if err := g.db.WithContext(ctx).Order("sku").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list inventory: %w", err)
	}
	out := make([]domain.InventoryRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (g *GormAdapter) DeductStock(ctx context.Context, sku string, quantity, defaultQuantity int) (domain.InventoryRecord, error) {
	var row inventoryRow
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := deductGorm(tx, sku, quantity, defaultQuantity); err != nil {
			return err
		}
		return tx.Where("sku = ?", sku).Take(&row).Error
	})
	if err != nil {
		return domain.InventoryRecord{}, err
	}
	return row.toDomain(), nil
}

func (g *GormAdapter) RecordSale(ctx context.Context, sale domain.SaleEvent, defaultQuantity int) (domain.InventoryRecord, domain.SaleEvent, error) {
	var (
		row  inventoryRow
		sold saleRow
	)
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := deductGorm(tx, sale.SKU, sale.Quantity, defaultQuantity); err != nil {
			return err
		}
		sold = saleRow{SKU: sale.SKU, Quantity: sale.Quantity, SoldAt: sale.SoldAt.UTC()}
		if err := tx.Create(&sold).Error; err != nil {
			return fmt.Errorf("insert sale: %w", err)
		}
		return tx.Where("sku = ?", sale.SKU).Take(&row).Error
	})
	if err != nil {
		return domain.InventoryRecord{}, domain.SaleEvent{}, err
	}
	sale.ID = sold.ID
	return row.toDomain(), sale, nil
}

func deductGorm(tx *gorm.DB, sku string, quantity, defaultQuantity int) error {
	seed := inventoryRow{SKU: sku, Quantity: defaultQuantity}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return fmt.Errorf("insert inventory: %w", err)
	}

	err := tx.Model(&inventoryRow{}).Where("sku = ?", sku).Updates(map[string]any{
		"quantity": gorm.Expr("CASE WHEN quantity > ? THEN quantity - ? ELSE 0 END", quantity, quantity),
		"version":  gorm.Expr("version + 1"),
	}).Error
	if err != nil {
		return fmt.Errorf("deduct stock: %w", err)
	}
	return nil
}

func (g *GormAdapter) SetVelocity(ctx context.Context, sku string, velocity domain.Velocity) (domain.InventoryRecord, error) {
	return g.update(ctx, sku, map[string]any{
		"velocity": float64(velocity),
		"version":  gorm.Expr("version + 1"),
	})
}

func (g *GormAdapter) AddStock(ctx context.Context, sku string, quantity int) (domain.InventoryRecord, error) {
	return g.update(ctx, sku, map[string]any{
		"quantity": gorm.Expr("CASE WHEN quantity + ? > 0 THEN quantity + ? ELSE 0 END", quantity, quantity),
		"version":  gorm.Expr("version + 1"),
	})
}

func (g *GormAdapter) SetQuantity(ctx context.Context, sku string, quantity int) (domain.InventoryRecord, error) {
	var row inventoryRow
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seed := inventoryRow{SKU: sku, Quantity: max(quantity, 0), Version: 1}
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "sku"}},
			DoUpdates: clause.Assignments(map[string]any{
				"quantity":   max(quantity, 0),
				"version":    gorm.Expr("inventory.version + 1"),
				"updated_at": time.Now().UTC(),
			}),
		}).Create(&seed).Error
		if err != nil {
			return fmt.Errorf("upsert inventory: %w", err)
		}
		return tx.Where("sku = ?", sku).Take(&row).Error
	})
	if err != nil {
		return domain.InventoryRecord{}, err
	}
	return row.toDomain(), nil
}

func (g *GormAdapter) AppendSale(ctx context.Context, sale domain.SaleEvent) (domain.SaleEvent, error) {
	row := saleRow{SKU: sale.SKU, Quantity: sale.Quantity, SoldAt: sale.SoldAt.UTC()}
	if err := g.db.WithContext(ctx).Create(&row).Error; err != nil {
		return domain.SaleEvent{}, fmt.Errorf("insert sale: %w", err)
	}
	sale.ID = row.ID
	return sale, nil
}

func (g *GormAdapter) SalesForSKU(ctx context.Context, sku string, limit int) ([]domain.SaleEvent, error) {
	q := g.db.WithContext(ctx).Where("sku = ?", sku).Order("sold_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	sales, err := findSales(q)
	if err != nil {
		return nil, err
	}
	reverseSales(sales)
	return sales, nil
}

func (g *GormAdapter) RecentSales(ctx context.Context, limit int) ([]domain.SaleEvent, error) {
	q := g.db.WithContext(ctx).Order("sold_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	return findSales(q)
}

func (g *GormAdapter) Ping(ctx context.Context) error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

func (g *GormAdapter) update(ctx context.Context, sku string, fields map[string]any) (domain.InventoryRecord, error) {
	var row inventoryRow
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&inventoryRow{}).Where("sku = ?", sku).Updates(fields)
		if res.Error != nil {
			return fmt.Errorf("update inventory: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return port.ErrNotFound
		}
		return tx.Where("sku = ?", sku).Take(&row).Error
	})
	if err != nil {
		return domain.InventoryRecord{}, err
	}
	return row.toDomain(), nil
}

func findSales(q *gorm.DB) ([]domain.SaleEvent, error) {
	var rows []saleRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query sales: %w", err)
	}
	out := make([]domain.SaleEvent, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}
