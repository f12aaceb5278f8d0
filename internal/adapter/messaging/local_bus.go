package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var ErrBusClosed = errors.New("bus closed")

// LocalBus is an in-process transport. Each subscribed channel gets a
// buffered queue drained by a pool of workers; publishes to channels with no
// subscriber are discarded.
type LocalBus struct {
	mu     sync.RWMutex
	queues map[string]chan []byte
	done   chan struct{}
	once   sync.Once

	workers int
	buffer  int
	timeout time.Duration
	logger  *zap.Logger
	wg      sync.WaitGroup
}

func NewLocalBus(workers, buffer int, timeout time.Duration, logger *zap.Logger) *LocalBus {
	return &LocalBus{
		queues:  make(map[string]chan []byte),
		done:    make(chan struct{}),
		workers: workers,
		buffer:  buffer,
		timeout: timeout,
		logger:  logger.With(zap.String("component", "local-bus")),
	}
}

// Subscribe registers h for channel and starts its workers.
func (b *LocalBus) Subscribe(channel string, h Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.isClosed() {
		return ErrBusClosed
	}
	if _, ok := b.queues[channel]; ok {
		return fmt.Errorf("channel %s already has a subscriber", channel)
	}

	queue := make(chan []byte, b.buffer)
	b.queues[channel] = queue

	for i := 0; i < b.workers; i++ {
		b.wg.Add(1)
		go func(id int) {
			defer b.wg.Done()
			b.workerLoop(id, channel, queue, h)
		}(i)
	}
	return nil
}

func (b *LocalBus) workerLoop(id int, channel string, queue <-chan []byte, h Handler) {
	for {
		select {
		case body := <-queue:
			b.handle(id, channel, body, h)
		case <-b.done:
			// drain what was accepted before Close
			for {
				select {
				case body := <-queue:
					b.handle(id, channel, body, h)
				default:
					return
				}
			}
		}
	}
}

func (b *LocalBus) handle(id int, channel string, body []byte, h Handler) {
	if err := dispatch(context.Background(), h, channel, body, b.timeout); err != nil {
		b.logger.Error("Dropping message",
			zap.Int("worker", id),
			zap.String("channel", channel),
			zap.ByteString("payload", body),
			zap.Error(err),
		)
	}
}

func (b *LocalBus) Publish(ctx context.Context, channel string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", channel, err)
	}
	return b.PublishRaw(ctx, channel, body)
}

// PublishRaw enqueues body as is. It blocks while the channel's queue is full.
func (b *LocalBus) PublishRaw(ctx context.Context, channel string, body []byte) error {
	if b.isClosed() {
		return ErrBusClosed
	}

	b.mu.RLock()
	queue, ok := b.queues[channel]
	b.mu.RUnlock()
	if !ok {
		return nil
	}

	select {
	case queue <- body:
		return nil
	case <-b.done:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *LocalBus) IsHealthy() bool {
	return !b.isClosed()
}

// Close stops accepting messages and waits for queued ones to be handled.
func (b *LocalBus) Close() {
	b.once.Do(func() { close(b.done) })
	b.wg.Wait()
}

func (b *LocalBus) isClosed() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}
