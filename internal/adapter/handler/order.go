package handler

import (
	"context"
	"fmt"

	"github.com/rl1809/restock-engine/internal/core/domain"
	"github.com/rl1809/restock-engine/internal/port"
)

// orderIntake validates an order and hands it to the bus. The engine applies
// it when the order channel consumer picks it up.
type orderIntake struct {
	bus     port.EventPublisher
	channel string
}

func (o orderIntake) place(ctx context.Context, event domain.OrderEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}
	if err := o.bus.Publish(ctx, o.channel, event); err != nil {
		return fmt.Errorf("publish order for %s: %w", event.SKU, err)
	}
	return nil
}
