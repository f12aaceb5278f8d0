package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/restock-engine/internal/core/domain"
	"github.com/rl1809/restock-engine/internal/core/forecast"
	"github.com/rl1809/restock-engine/internal/port"
)

type Config struct {
	// DefaultQuantity seeds a SKU the first time an order references it.
	DefaultQuantity  int
	Restock          forecast.RestockPolicy
	RecentSalesLimit int
	// ForecastWindow bounds the sales fed to the estimator. Zero uses all of them.
	ForecastWindow int
}

func DefaultConfig() Config {
	return Config{
		DefaultQuantity:  100,
		Restock:          forecast.DefaultRestockPolicy(),
		RecentSalesLimit: 10,
	}
}

type Option func(*ReconciliationService)

func WithClock(now func() time.Time) Option {
	return func(s *ReconciliationService) {
		s.now = now
	}
}

// ReconciliationService applies orders, velocity predictions and restock
// deliveries to per-SKU inventory. Handlers are safe to call concurrently.
type ReconciliationService struct {
	db        port.DatabaseRepository
	cache     port.CacheRepository
	notifier  port.Notifier
	requester port.RestockRequester
	cfg       Config
	logger    *zap.Logger
	now       func() time.Time
}

func NewReconciliationService(
	db port.DatabaseRepository,
	cache port.CacheRepository,
	notifier port.Notifier,
	requester port.RestockRequester,
	cfg Config,
	logger *zap.Logger,
	opts ...Option,
) *ReconciliationService {
	s := &ReconciliationService{
		db:        db,
		cache:     cache,
		notifier:  notifier,
		requester: requester,
		cfg:       cfg,
		logger:    logger.With(zap.String("component", "reconciliation")),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleOrder deducts the ordered quantity, records the sale and broadcasts
// the new stock level. Oversold orders floor stock at zero but the sale keeps
// the full requested quantity.
func (s *ReconciliationService) HandleOrder(ctx context.Context, event domain.OrderEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}

	// deduction and sale commit together so stock never moves without history
	record, sale, err := s.db.RecordSale(ctx, domain.SaleEvent{
		SKU:      event.SKU,
		Quantity: event.Quantity,
		SoldAt:   s.now(),
	}, s.cfg.DefaultQuantity)
	if err != nil {
		return fmt.Errorf("record sale for %s: %w", event.SKU, err)
	}

	// must land before the broadcast, consumers read the feed as real time
	if err := s.cache.InvalidateRecentSales(ctx); err != nil {
		s.logger.Error("Failed to invalidate recent sales cache",
			zap.String("sku", event.SKU),
			zap.Error(err),
		)
	}

	s.logger.Info("Order applied",
		zap.String("sku", record.SKU),
		zap.Int("ordered", event.Quantity),
		zap.Int("remaining", record.Quantity),
		zap.Int64("sale_id", sale.ID),
	)

	s.publishInventory(ctx, record)
	return nil
}

// HandleVelocityUpdate stores the predicted velocity and, when the SKU is
// about to run dry, requests an emergency restock.
func (s *ReconciliationService) HandleVelocityUpdate(ctx context.Context, event domain.AIPredictionEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}

	velocity := event.Velocity()
	record, err := s.db.SetVelocity(ctx, event.SKU, velocity)
	if err != nil {
		return fmt.Errorf("set velocity for %s: %w", event.SKU, err)
	}

	if err := s.notifier.PublishVelocity(ctx, domain.NewVelocityUpdate(event.SKU, velocity)); err != nil {
		s.logger.Warn("Failed to broadcast velocity update",
			zap.String("sku", event.SKU),
			zap.Error(err),
		)
	}

	policy := s.cfg.Restock
	if !policy.ShouldRestock(record.Quantity, velocity) {
		return nil
	}

	depletion := forecast.Forecast(record.Quantity, velocity)
	s.logger.Warn("SKU depleting below restock horizon",
		zap.String("sku", record.SKU),
		zap.Int("quantity", record.Quantity),
		zap.Float64("velocity_per_minute", velocity.PerMinute()),
		zap.String("time_to_empty", depletion.Label),
	)

	if policy.Cooldown > 0 {
		ok, err := s.cache.AcquireCooldown(ctx, cooldownKey(record.SKU), policy.Cooldown)
		if err != nil {
			// an unreachable cooldown store must not suppress a restock
			s.logger.Error("Cooldown check failed, requesting restock anyway",
				zap.String("sku", record.SKU),
				zap.Error(err),
			)
		} else if !ok {
			s.logger.Info("Restock suppressed by cooldown",
				zap.String("sku", record.SKU),
				zap.Duration("cooldown", policy.Cooldown),
			)
			return nil
		}
	}

	req := domain.NewRestockRequest(record.SKU, policy.OrderQuantity, s.now())
	if err := s.requester.RequestRestock(ctx, req); err != nil {
		s.logger.Error("Failed to request restock",
			zap.String("sku", req.SKU),
			zap.String("request_id", req.RequestID.String()),
			zap.Error(err),
		)
		return nil
	}

	s.logger.Info("Emergency restock requested",
		zap.String("sku", req.SKU),
		zap.Int("quantity", req.Quantity),
		zap.String("request_id", req.RequestID.String()),
	)
	return nil
}

// HandleRestockDelivered adds delivered stock to a known SKU. Velocity is left
// untouched.
func (s *ReconciliationService) HandleRestockDelivered(ctx context.Context, event domain.RestockDeliveredEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}

	if _, err := s.db.AddStock(ctx, event.SKU, event.Quantity); err != nil {
		return fmt.Errorf("add stock for %s: %w", event.SKU, err)
	}

	record, err := s.db.GetInventory(ctx, event.SKU)
	if err != nil {
		return fmt.Errorf("reload %s: %w", event.SKU, err)
	}
	if record == nil {
		return fmt.Errorf("reload %s: %w", event.SKU, port.ErrNotFound)
	}

	s.logger.Info("Restock delivered",
		zap.String("sku", record.SKU),
		zap.Int("delivered", event.Quantity),
		zap.Int("quantity", record.Quantity),
	)

	s.publishInventory(ctx, *record)
	return nil
}

func (s *ReconciliationService) publishInventory(ctx context.Context, record domain.InventoryRecord) {
	if err := s.notifier.PublishInventory(ctx, record); err != nil {
		s.logger.Warn("Failed to broadcast inventory",
			zap.String("sku", record.SKU),
			zap.Error(err),
		)
	}
}

func cooldownKey(sku string) string {
	return "restock-cooldown:" + sku
}
