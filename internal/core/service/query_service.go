package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rl1809/restock-engine/internal/core/domain"
	"github.com/rl1809/restock-engine/internal/core/forecast"
	"github.com/rl1809/restock-engine/internal/port"
)

// SKUForecast pairs the stored record with both the observed and the
// predicted depletion outlook.
type SKUForecast struct {
	Record           domain.InventoryRecord `json:"record"`
	ObservedVelocity domain.Velocity        `json:"observed_velocity"`
	Observed         forecast.Depletion     `json:"observed"`
	Predicted        forecast.Depletion     `json:"predicted"`
	RestockDue       bool                   `json:"restock_due"`
}

type QueryService struct {
	db     port.DatabaseRepository
	cache  port.CacheRepository
	cfg    Config
	logger *zap.Logger
}

func NewQueryService(db port.DatabaseRepository, cache port.CacheRepository, cfg Config, logger *zap.Logger) *QueryService {
	return &QueryService{
		db:     db,
		cache:  cache,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "query")),
	}
}

func (s *QueryService) ListInventory(ctx context.Context) ([]domain.InventoryRecord, error) {
	records, err := s.db.ListInventory(ctx)
	if err != nil {
		return nil, fmt.Errorf("list inventory: %w", err)
	}
	return records, nil
}

// GetInventory returns port.ErrNotFound for unknown SKUs.
func (s *QueryService) GetInventory(ctx context.Context, sku string) (domain.InventoryRecord, error) {
	rec, err := s.db.GetInventory(ctx, sku)
	if err != nil {
		return domain.InventoryRecord{}, fmt.Errorf("get inventory %s: %w", sku, err)
	}
	if rec == nil {
		return domain.InventoryRecord{}, fmt.Errorf("get inventory %s: %w", sku, port.ErrNotFound)
	}
	return *rec, nil
}

// RecentSales reads through the cache. A non-positive limit uses the
// configured default.
func (s *QueryService) RecentSales(ctx context.Context, limit int) ([]domain.SaleEvent, error) {
	if limit <= 0 {
		limit = s.cfg.RecentSalesLimit
	}

	sales, hit, err := s.cache.GetRecentSales(ctx, limit)
	if err != nil {
		s.logger.Warn("Recent sales cache read failed", zap.Error(err))
	} else if hit {
		return sales, nil
	}

	// generation read before the store query so a sale landing in between
	// makes the fill below a no-op
	gen, genErr := s.cache.RecentSalesGeneration(ctx)

	sales, err = s.db.RecentSales(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("recent sales: %w", err)
	}

	if genErr != nil {
		s.logger.Warn("Recent sales cache unavailable", zap.Error(genErr))
		return sales, nil
	}
	if err := s.cache.SetRecentSales(ctx, gen, limit, sales); err != nil {
		s.logger.Warn("Recent sales cache fill failed", zap.Error(err))
	}
	return sales, nil
}

func (s *QueryService) Forecast(ctx context.Context, sku string) (SKUForecast, error) {
	rec, err := s.GetInventory(ctx, sku)
	if err != nil {
		return SKUForecast{}, err
	}

	history, err := s.db.SalesForSKU(ctx, sku, s.cfg.ForecastWindow)
	if err != nil {
		return SKUForecast{}, fmt.Errorf("sales for %s: %w", sku, err)
	}

	observed := forecast.EstimateVelocity(history)
	return SKUForecast{
		Record:           rec,
		ObservedVelocity: observed,
		Observed:         forecast.Forecast(rec.Quantity, observed),
		Predicted:        forecast.Forecast(rec.Quantity, rec.Velocity),
		RestockDue:       s.cfg.Restock.ShouldRestock(rec.Quantity, rec.Velocity),
	}, nil
}
