package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rl1809/restock-engine/internal/core/domain"
	"github.com/rl1809/restock-engine/internal/port"
)

const selectInventory = `
		SELECT sku, quantity, velocity, version, updated_at
		FROM inventory WHERE sku = ?`

// MySQLAdapter expects a DSN with parseTime=true. Every mutation is a single
// field-scoped UPDATE that also bumps version, so RowsAffected is zero only
// when the row is missing.
type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func (m *MySQLAdapter) GetInventory(ctx context.Context, sku string) (*domain.InventoryRecord, error) {
	rec, err := scanInventory(m.db.QueryRowContext(ctx, selectInventory, sku))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query inventory: %w", err)
	}
	return &rec, nil
}

func (m *MySQLAdapter) ListInventory(ctx context.Context) ([]domain.InventoryRecord, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT sku, quantity, velocity, version, updated_at
		FROM inventory ORDER BY sku`)
	if err != nil {
		return nil, fmt.Errorf("list inventory: %w", err)
	}
	defer rows.Close()

	var out []domain.InventoryRecord
	for rows.Next() {
		rec, err := scanInventory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan inventory: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (m *MySQLAdapter) DeductStock(ctx context.Context, sku string, quantity, defaultQuantity int) (domain.InventoryRecord, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.InventoryRecord{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := deductSQL(ctx, tx, sku, quantity, defaultQuantity); err != nil {
		return domain.InventoryRecord{}, err
	}
	return m.commitRecord(ctx, tx, sku)
}

func (m *MySQLAdapter) RecordSale(ctx context.Context, sale domain.SaleEvent, defaultQuantity int) (domain.InventoryRecord, domain.SaleEvent, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.InventoryRecord{}, domain.SaleEvent{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := deductSQL(ctx, tx, sale.SKU, sale.Quantity, defaultQuantity); err != nil {
		return domain.InventoryRecord{}, domain.SaleEvent{}, err
	}
	if sale, err = insertSale(ctx, tx, sale); err != nil {
		return domain.InventoryRecord{}, domain.SaleEvent{}, err
	}

	rec, err := m.commitRecord(ctx, tx, sale.SKU)
	if err != nil {
		return domain.InventoryRecord{}, domain.SaleEvent{}, err
	}
	return rec, sale, nil
}

func deductSQL(ctx context.Context, tx *sql.Tx, sku string, quantity, defaultQuantity int) error {
	now := time.Now().UTC()
	_, err := tx.ExecContext(ctx, `
		INSERT IGNORE INTO inventory (sku, quantity, velocity, version, updated_at)
		VALUES (?, ?, 0, 0, ?)`,
		sku, defaultQuantity, now,
	)
	if err != nil {
		return fmt.Errorf("insert inventory: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE inventory
		SET quantity = GREATEST(quantity - ?, 0), version = version + 1, updated_at = ?
		WHERE sku = ?`,
		quantity, now, sku,
	)
	if err != nil {
		return fmt.Errorf("deduct stock: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) SetVelocity(ctx context.Context, sku string, velocity domain.Velocity) (domain.InventoryRecord, error) {
	return m.update(ctx, sku, `
		UPDATE inventory
		SET velocity = ?, version = version + 1, updated_at = ?
		WHERE sku = ?`, float64(velocity))
}

func (m *MySQLAdapter) AddStock(ctx context.Context, sku string, quantity int) (domain.InventoryRecord, error) {
	return m.update(ctx, sku, `
		UPDATE inventory
		SET quantity = GREATEST(quantity + ?, 0), version = version + 1, updated_at = ?
		WHERE sku = ?`, quantity)
}

func (m *MySQLAdapter) SetQuantity(ctx context.Context, sku string, quantity int) (domain.InventoryRecord, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.InventoryRecord{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO inventory (sku, quantity, velocity, version, updated_at)
		VALUES (?, ?, 0, 1, ?)
		ON DUPLICATE KEY UPDATE quantity = VALUES(quantity), version = version + 1, updated_at = VALUES(updated_at)`,
		sku, max(quantity, 0), time.Now().UTC(),
	)
	if err != nil {
		return domain.InventoryRecord{}, fmt.Errorf("upsert inventory: %w", err)
	}

	return m.commitRecord(ctx, tx, sku)
}

func (m *MySQLAdapter) AppendSale(ctx context.Context, sale domain.SaleEvent) (domain.SaleEvent, error) {
	return insertSale(ctx, m.db, sale)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertSale(ctx context.Context, db execer, sale domain.SaleEvent) (domain.SaleEvent, error) {
	result, err := db.ExecContext(ctx, `
		INSERT INTO sales (sku, quantity, sold_at) VALUES (?, ?, ?)`,
		sale.SKU, sale.Quantity, sale.SoldAt.UTC(),
	)
	if err != nil {
		return domain.SaleEvent{}, fmt.Errorf("insert sale: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return domain.SaleEvent{}, fmt.Errorf("sale id: %w", err)
	}
	sale.ID = id
	return sale, nil
}

func (m *MySQLAdapter) SalesForSKU(ctx context.Context, sku string, limit int) ([]domain.SaleEvent, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = m.db.QueryContext(ctx, `
			SELECT id, sku, quantity, sold_at FROM sales
			WHERE sku = ? ORDER BY sold_at DESC, id DESC LIMIT ?`, sku, limit)
	} else {
		rows, err = m.db.QueryContext(ctx, `
			SELECT id, sku, quantity, sold_at FROM sales
			WHERE sku = ? ORDER BY sold_at DESC, id DESC`, sku)
	}
	if err != nil {
		return nil, fmt.Errorf("query sales: %w", err)
	}

	sales, err := scanSales(rows)
	if err != nil {
		return nil, err
	}
	reverseSales(sales)
	return sales, nil
}

func (m *MySQLAdapter) RecentSales(ctx context.Context, limit int) ([]domain.SaleEvent, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = m.db.QueryContext(ctx, `
			SELECT id, sku, quantity, sold_at FROM sales
			ORDER BY sold_at DESC, id DESC LIMIT ?`, limit)
	} else {
		rows, err = m.db.QueryContext(ctx, `
			SELECT id, sku, quantity, sold_at FROM sales
			ORDER BY sold_at DESC, id DESC`)
	}
	if err != nil {
		return nil, fmt.Errorf("query recent sales: %w", err)
	}
	return scanSales(rows)
}

func (m *MySQLAdapter) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

func (m *MySQLAdapter) update(ctx context.Context, sku, query string, value any) (domain.InventoryRecord, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.InventoryRecord{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, query, value, time.Now().UTC(), sku)
	if err != nil {
		return domain.InventoryRecord{}, fmt.Errorf("update inventory: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.InventoryRecord{}, port.ErrNotFound
	}

	return m.commitRecord(ctx, tx, sku)
}

// commitRecord reads the row back inside tx, so the caller sees its own
// write, then commits.
func (m *MySQLAdapter) commitRecord(ctx context.Context, tx *sql.Tx, sku string) (domain.InventoryRecord, error) {
	rec, err := scanInventory(tx.QueryRowContext(ctx, selectInventory, sku))
	if err != nil {
		return domain.InventoryRecord{}, fmt.Errorf("reload inventory: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.InventoryRecord{}, fmt.Errorf("commit: %w", err)
	}
	return rec, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInventory(row rowScanner) (domain.InventoryRecord, error) {
	var (
		rec      domain.InventoryRecord
		velocity float64
	)
	err := row.Scan(&rec.SKU, &rec.Quantity, &velocity, &rec.Version, &rec.UpdatedAt)
	rec.Velocity = domain.Velocity(velocity)
	return rec, err
}

func scanSales(rows *sql.Rows) ([]domain.SaleEvent, error) {
	defer rows.Close()

	var out []domain.SaleEvent
	for rows.Next() {
		var s domain.SaleEvent
		if err := rows.Scan(&s.ID, &s.SKU, &s.Quantity, &s.SoldAt); err != nil {
			return nil, fmt.Errorf("scan sale: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func reverseSales(sales []domain.SaleEvent) {
	for i, j := 0, len(sales)-1; i < j; i, j = i+1, j-1 {
		sales[i], sales[j] = sales[j], sales[i]
	}
}
