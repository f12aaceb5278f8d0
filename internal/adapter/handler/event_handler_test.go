package handler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/restock-engine/internal/config"
	"github.com/rl1809/restock-engine/internal/core/domain"
)

type fakeReconciler struct {
	orders      []domain.OrderEvent
	predictions []domain.AIPredictionEvent
	deliveries  []domain.RestockDeliveredEvent
}

func (f *fakeReconciler) HandleOrder(ctx context.Context, event domain.OrderEvent) error {
	f.orders = append(f.orders, event)
	return nil
}

func (f *fakeReconciler) HandleVelocityUpdate(ctx context.Context, event domain.AIPredictionEvent) error {
	f.predictions = append(f.predictions, event)
	return nil
}

func (f *fakeReconciler) HandleRestockDelivered(ctx context.Context, event domain.RestockDeliveredEvent) error {
	f.deliveries = append(f.deliveries, event)
	return nil
}

func TestEventHandler_Routes(t *testing.T) {
	engine := &fakeReconciler{}
	h := NewEventHandler(engine, config.Default().Messaging.Channels)
	ctx := context.Background()

	require.NoError(t, h.HandleMessage(ctx, "order-events", []byte(`{"sku":"a","quantity":2}`)))
	require.NoError(t, h.HandleMessage(ctx, "ai-predictions", []byte(`{"sku":"a","ai_velocity":3}`)))
	require.NoError(t, h.HandleMessage(ctx, "warehouse-restock",
		[]byte(`{"request_id":"0b7e7c1e-5d0c-4a55-9f67-21c7d0f0a001","sku":"a","quantity":100,"requested_at":"2024-03-01T12:00:00Z"}`)))

	assert.Equal(t, []domain.OrderEvent{{SKU: "a", Quantity: 2}}, engine.orders)
	assert.Equal(t, []domain.AIPredictionEvent{{SKU: "a", VelocityPerMinute: 3}}, engine.predictions)
	assert.Equal(t, []domain.RestockDeliveredEvent{{SKU: "a", Quantity: 100}}, engine.deliveries)
}

func TestEventHandler_MalformedPayload(t *testing.T) {
	engine := &fakeReconciler{}
	h := NewEventHandler(engine, config.Default().Messaging.Channels)

	for _, channel := range []string{"order-events", "ai-predictions", "warehouse-restock"} {
		err := h.HandleMessage(context.Background(), channel, []byte(`{"sku":`))
		assert.True(t, errors.Is(err, domain.ErrInvalidEvent), "%s: %v", channel, err)
	}
	assert.Empty(t, engine.orders)
	assert.Empty(t, engine.predictions)
	assert.Empty(t, engine.deliveries)
}

func TestEventHandler_UnknownChannel(t *testing.T) {
	h := NewEventHandler(&fakeReconciler{}, config.Default().Messaging.Channels)

	err := h.HandleMessage(context.Background(), "smart-ai-predictions", []byte(`{}`))

	assert.True(t, errors.Is(err, ErrUnknownChannel))
}
