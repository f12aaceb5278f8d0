package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rl1809/restock-engine/internal/config"
	"github.com/rl1809/restock-engine/internal/core/domain"
)

var ErrUnknownChannel = errors.New("unknown channel")

// Reconciler is the engine surface the inbound channels drive.
type Reconciler interface {
	HandleOrder(ctx context.Context, event domain.OrderEvent) error
	HandleVelocityUpdate(ctx context.Context, event domain.AIPredictionEvent) error
	HandleRestockDelivered(ctx context.Context, event domain.RestockDeliveredEvent) error
}

// EventHandler decodes bus messages and routes them to the engine by
// channel. Every error it returns means the message is dropped.
type EventHandler struct {
	engine   Reconciler
	channels config.ChannelsConfig
}

func NewEventHandler(engine Reconciler, channels config.ChannelsConfig) *EventHandler {
	return &EventHandler{engine: engine, channels: channels}
}

func (h *EventHandler) HandleMessage(ctx context.Context, channel string, body []byte) error {
	switch channel {
	case h.channels.Orders:
		var event domain.OrderEvent
		if err := decode(body, &event); err != nil {
			return err
		}
		return h.engine.HandleOrder(ctx, event)

	case h.channels.Predictions:
		var event domain.AIPredictionEvent
		if err := decode(body, &event); err != nil {
			return err
		}
		return h.engine.HandleVelocityUpdate(ctx, event)

	case h.channels.Restock:
		var event domain.RestockDeliveredEvent
		if err := decode(body, &event); err != nil {
			return err
		}
		return h.engine.HandleRestockDelivered(ctx, event)

	default:
		return fmt.Errorf("%w: %s", ErrUnknownChannel, channel)
	}
}

func decode(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidEvent, err)
	}
	return nil
}
