package domain

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidEvent = errors.New("invalid event")

type OrderEvent struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

func (e OrderEvent) Validate() error {
	if e.SKU == "" {
		return fmt.Errorf("%w: order without sku", ErrInvalidEvent)
	}
	if e.Quantity <= 0 {
		return fmt.Errorf("%w: order quantity %d for %s", ErrInvalidEvent, e.Quantity, e.SKU)
	}
	return nil
}

// AIPredictionEvent carries the predictor's rate in items per minute.
type AIPredictionEvent struct {
	SKU               string  `json:"sku"`
	VelocityPerMinute float64 `json:"ai_velocity"`
}

func (e AIPredictionEvent) Validate() error {
	if e.SKU == "" {
		return fmt.Errorf("%w: prediction without sku", ErrInvalidEvent)
	}
	if math.IsNaN(e.VelocityPerMinute) || math.IsInf(e.VelocityPerMinute, 0) {
		return fmt.Errorf("%w: non-finite velocity for %s", ErrInvalidEvent, e.SKU)
	}
	return nil
}

func (e AIPredictionEvent) Velocity() Velocity {
	return VelocityFromPerMinute(e.VelocityPerMinute)
}

type RestockDeliveredEvent struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

func (e RestockDeliveredEvent) Validate() error {
	if e.SKU == "" {
		return fmt.Errorf("%w: restock without sku", ErrInvalidEvent)
	}
	if e.Quantity <= 0 {
		return fmt.Errorf("%w: restock quantity %d for %s", ErrInvalidEvent, e.Quantity, e.SKU)
	}
	return nil
}

// RestockRequest is published on the same channel deliveries arrive on, so its
// sku/quantity fields decode as a RestockDeliveredEvent.
type RestockRequest struct {
	RequestID   uuid.UUID `json:"request_id"`
	SKU         string    `json:"sku"`
	Quantity    int       `json:"quantity"`
	RequestedAt time.Time `json:"requested_at"`
}

func NewRestockRequest(sku string, quantity int, now time.Time) RestockRequest {
	return RestockRequest{
		RequestID:   uuid.New(),
		SKU:         sku,
		Quantity:    quantity,
		RequestedAt: now,
	}
}

type VelocityUpdate struct {
	SKU               string   `json:"sku"`
	Velocity          Velocity `json:"velocity"`
	VelocityPerMinute float64  `json:"ai_velocity"`
}

func NewVelocityUpdate(sku string, v Velocity) VelocityUpdate {
	return VelocityUpdate{SKU: sku, Velocity: v, VelocityPerMinute: v.PerMinute()}
}

// Default bus channel names.
const (
	ChannelOrderEvents          = "order-events"
	ChannelAIPredictions        = "ai-predictions"
	ChannelWarehouseRestock     = "warehouse-restock"
	ChannelBroadcastInventory   = "broadcast.inventory"
	ChannelBroadcastPredictions = "broadcast.ai-predictions"
)
