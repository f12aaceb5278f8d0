package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rl1809/restock-engine/internal/config"
	"github.com/rl1809/restock-engine/internal/core/domain"
	"github.com/rl1809/restock-engine/internal/port"
)

// AMQPPublisher publishes JSON payloads to the exchange, using the channel
// name as routing key.
type AMQPPublisher struct {
	conn     *Connection
	exchange string
}

func NewAMQPPublisher(conn *Connection, exchange string) *AMQPPublisher {
	return &AMQPPublisher{conn: conn, exchange: exchange}
}

func (p *AMQPPublisher) Publish(ctx context.Context, channel string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", channel, err)
	}
	return p.conn.Publish(ctx, p.exchange, channel, body)
}

// Publisher maps engine output onto bus channels.
type Publisher struct {
	bus      port.EventPublisher
	channels config.ChannelsConfig
}

func NewPublisher(bus port.EventPublisher, channels config.ChannelsConfig) *Publisher {
	return &Publisher{bus: bus, channels: channels}
}

func (p *Publisher) PublishInventory(ctx context.Context, record domain.InventoryRecord) error {
	return p.bus.Publish(ctx, p.channels.BroadcastInventory, record)
}

func (p *Publisher) PublishVelocity(ctx context.Context, update domain.VelocityUpdate) error {
	return p.bus.Publish(ctx, p.channels.BroadcastPredictions, update)
}

// RequestRestock publishes to the restock channel, which the warehouse
// answers with a delivery on the same channel.
func (p *Publisher) RequestRestock(ctx context.Context, req domain.RestockRequest) error {
	return p.bus.Publish(ctx, p.channels.Restock, req)
}
