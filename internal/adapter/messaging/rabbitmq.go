package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/rl1809/restock-engine/internal/config"
)

var ErrChannelUnavailable = errors.New("rabbitmq channel is not initialized or closed")

const (
	initialBackoff     = time.Second
	maxBackoff         = 30 * time.Second
	maxInitialAttempts = 10
	publishRetries     = 3
)

// Connection owns one AMQP connection and channel and re-establishes both
// when the broker drops them.
type Connection struct {
	conn         *amqp.Connection
	channel      *amqp.Channel
	config       config.RabbitMQConfig
	logger       *zap.Logger
	stopChan     chan struct{}
	mu           sync.RWMutex
	reconnecting bool
	reconnectMu  sync.Mutex
}

func NewConnection(cfg config.RabbitMQConfig, logger *zap.Logger) *Connection {
	return &Connection{
		config:   cfg,
		logger:   logger.With(zap.String("component", "rabbitmq")),
		stopChan: make(chan struct{}),
	}
}

// Connect retries the initial dial with exponential backoff, then monitors the
// connection in the background.
func (c *Connection) Connect() error {
	backoff := initialBackoff

	for attempt := 1; ; attempt++ {
		c.logger.Info("Attempting initial connection to RabbitMQ",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxInitialAttempts),
		)

		err := c.connect()
		if err == nil {
			c.logger.Info("Initial connection to RabbitMQ established", zap.Int("attempt", attempt))
			break
		}
		if attempt >= maxInitialAttempts {
			return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", maxInitialAttempts, err)
		}

		c.logger.Warn("Initial connection to RabbitMQ failed, retrying",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
		)
		time.Sleep(backoff)
		backoff = nextBackoff(backoff)
	}

	go c.monitorConnection()
	return nil
}

func (c *Connection) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && !c.conn.IsClosed() {
		c.conn.Close()
	}
	if c.channel != nil && !c.channel.IsClosed() {
		c.channel.Close()
	}

	amqpConfig := amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Properties: amqp.Table{
			"connection_name": c.config.ConnectionName,
		},
	}

	conn, err := amqp.DialConfig(c.config.URL, amqpConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	c.conn, c.channel = conn, ch
	c.logger.Info("Connected to RabbitMQ", zap.Duration("heartbeat", amqpConfig.Heartbeat))
	return nil
}

func (c *Connection) monitorConnection() {
	for {
		c.mu.RLock()
		if c.conn == nil || c.channel == nil {
			c.mu.RUnlock()
			c.logger.Error("Connection or channel not initialized, cannot monitor connection")
			return
		}
		connClose := c.conn.NotifyClose(make(chan *amqp.Error, 1))
		channelClose := c.channel.NotifyClose(make(chan *amqp.Error, 1))
		c.mu.RUnlock()

		var closeErr *amqp.Error
		select {
		case <-c.stopChan:
			return
		case closeErr = <-connClose:
		case closeErr = <-channelClose:
		}

		// a nil error means a graceful close
		if closeErr == nil {
			return
		}
		c.logger.Error("RabbitMQ connection lost, attempting to reconnect",
			zap.Error(closeErr),
			zap.String("reason", closeErr.Reason),
		)
		c.reconnect()
	}
}

func (c *Connection) reconnect() {
	c.reconnectMu.Lock()
	if c.reconnecting {
		c.reconnectMu.Unlock()
		return
	}
	c.reconnecting = true
	c.reconnectMu.Unlock()

	defer func() {
		c.reconnectMu.Lock()
		c.reconnecting = false
		c.reconnectMu.Unlock()
	}()

	backoff := initialBackoff
	for attempt := 1; ; attempt++ {
		select {
		case <-c.stopChan:
			return
		default:
		}

		if err := c.connect(); err != nil {
			c.logger.Warn("Failed to reconnect to RabbitMQ, retrying",
				zap.Error(err),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
			)
			time.Sleep(backoff)
			backoff = nextBackoff(backoff)
			continue
		}

		c.logger.Info("Reconnected to RabbitMQ", zap.Int("attempt", attempt))
		return
	}
}

func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.stopChan:
	default:
		close(c.stopChan)
	}

	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.logger.Info("RabbitMQ connection closed")
	}
}

// DeclareTopology declares a durable topic exchange and one durable queue per
// inbound channel, bound with the channel name as routing key.
func (c *Connection) DeclareTopology(exchange string, queues []string) error {
	ch, err := c.currentChannel()
	if err != nil {
		return err
	}

	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	for _, q := range queues {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
		if err := ch.QueueBind(q, q, exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", q, err)
		}
	}

	c.logger.Info("RabbitMQ topology declared",
		zap.String("exchange", exchange),
		zap.Strings("queues", queues),
	)
	return nil
}

// Publish sends a persistent JSON message, retrying while the connection is
// being re-established.
func (c *Connection) Publish(ctx context.Context, exchange, routingKey string, body []byte) error {
	retryDelay := 100 * time.Millisecond

	for attempt := 1; attempt <= publishRetries; attempt++ {
		ch, err := c.currentChannel()
		if err == nil {
			err = ch.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				Timestamp:    time.Now(),
				Body:         body,
			})
			if err == nil {
				return nil
			}
			if !ch.IsClosed() {
				return fmt.Errorf("failed to publish message: %w", err)
			}
		}

		if attempt == publishRetries {
			return fmt.Errorf("failed to publish message after %d attempts: %w", publishRetries, err)
		}
		c.logger.Warn("RabbitMQ channel not available for publish, retrying",
			zap.String("routing_key", routingKey),
			zap.Int("attempt", attempt),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryDelay):
		}
		retryDelay *= 2
	}
	return nil
}

func (c *Connection) Consume(queue, consumerTag string) (<-chan amqp.Delivery, error) {
	ch, err := c.currentChannel()
	if err != nil {
		return nil, err
	}

	deliveries, err := ch.Consume(queue, consumerTag, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register consumer: %w", err)
	}
	return deliveries, nil
}

func (c *Connection) SetQoS(prefetchCount int) error {
	ch, err := c.currentChannel()
	if err != nil {
		return err
	}
	if err := ch.Qos(prefetchCount, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}
	return nil
}

func (c *Connection) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && !c.conn.IsClosed() && c.channel != nil && !c.channel.IsClosed()
}

func (c *Connection) currentChannel() (*amqp.Channel, error) {
	c.mu.RLock()
	ch := c.channel
	c.mu.RUnlock()

	if ch == nil || ch.IsClosed() {
		return nil, ErrChannelUnavailable
	}
	return ch, nil
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}
