package port

import (
	"context"

	"github.com/rl1809/restock-engine/internal/core/domain"
)

// Notifier broadcasts state changes to observers. Delivery is best effort.
type Notifier interface {
	PublishInventory(ctx context.Context, record domain.InventoryRecord) error
	PublishVelocity(ctx context.Context, update domain.VelocityUpdate) error
}

type RestockRequester interface {
	RequestRestock(ctx context.Context, req domain.RestockRequest) error
}

// EventPublisher sends a JSON payload to an inbound channel of the bus.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, payload any) error
}
