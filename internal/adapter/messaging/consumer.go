package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Handler processes one message body received on channel.
type Handler interface {
	HandleMessage(ctx context.Context, channel string, body []byte) error
}

type HandlerFunc func(ctx context.Context, channel string, body []byte) error

func (f HandlerFunc) HandleMessage(ctx context.Context, channel string, body []byte) error {
	return f(ctx, channel, body)
}

// dispatch runs h with a per-message deadline and turns a panic into an
// error, so no message can take the worker down.
func dispatch(ctx context.Context, h Handler, channel string, body []byte, timeout time.Duration) (err error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.HandleMessage(ctx, channel, body)
}

// DeliverySource is the part of Connection a Consumer needs.
type DeliverySource interface {
	SetQoS(prefetchCount int) error
	Consume(queue, consumerTag string) (<-chan amqp.Delivery, error)
}

// Consumer reads one queue with a pool of workers. Handled messages are
// acked, failed ones are logged and rejected without requeue.
type Consumer struct {
	conn     DeliverySource
	queue    string
	handler  Handler
	workers  int
	prefetch int
	timeout  time.Duration
	logger   *zap.Logger
	retryGap time.Duration
}

func NewConsumer(conn DeliverySource, queue string, handler Handler, workers, prefetch int, timeout time.Duration, logger *zap.Logger) *Consumer {
	return &Consumer{
		conn:     conn,
		queue:    queue,
		handler:  handler,
		workers:  workers,
		prefetch: prefetch,
		timeout:  timeout,
		logger:   logger.With(zap.String("component", "consumer"), zap.String("queue", queue)),
		retryGap: initialBackoff,
	}
}

// Run consumes until ctx is cancelled, re-registering after the broker closes
// the delivery channel.
func (c *Consumer) Run(ctx context.Context) {
	for {
		deliveries, tag, err := c.register()
		if err != nil {
			c.logger.Warn("Failed to start consuming, retrying", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.retryGap):
			}
			continue
		}

		c.logger.Info("Consuming", zap.String("consumer_tag", tag), zap.Int("workers", c.workers))
		c.drain(ctx, deliveries)

		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("Delivery channel closed, re-registering consumer")
	}
}

// register applies QoS and starts consuming. A reconnect replaces the channel,
// so the prefetch limit is set again on every registration.
func (c *Consumer) register() (<-chan amqp.Delivery, string, error) {
	if c.prefetch > 0 {
		if err := c.conn.SetQoS(c.prefetch); err != nil {
			return nil, "", err
		}
	}
	tag := fmt.Sprintf("%s-%s", c.queue, uuid.NewString())
	deliveries, err := c.conn.Consume(c.queue, tag)
	if err != nil {
		return nil, "", err
	}
	return deliveries, tag, nil
}

func (c *Consumer) drain(ctx context.Context, deliveries <-chan amqp.Delivery) {
	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-deliveries:
					if !ok {
						return
					}
					c.process(ctx, id, msg)
				}
			}
		}(i)
	}
	wg.Wait()
}

func (c *Consumer) process(ctx context.Context, worker int, msg amqp.Delivery) {
	fields := []zap.Field{
		zap.Int("worker", worker),
		zap.Uint64("delivery_tag", msg.DeliveryTag),
	}

	if err := dispatch(ctx, c.handler, c.queue, msg.Body, c.timeout); err != nil {
		c.logger.Error("Dropping message",
			append(fields, zap.ByteString("payload", msg.Body), zap.Error(err))...,
		)
		if nackErr := msg.Nack(false, false); nackErr != nil {
			c.logger.Error("Failed to nack message", append(fields, zap.Error(nackErr))...)
		}
		return
	}

	if err := msg.Ack(false); err != nil {
		c.logger.Error("Failed to ack message", append(fields, zap.Error(err))...)
		return
	}
	c.logger.Debug("Message processed", fields...)
}
