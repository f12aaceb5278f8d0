package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/rl1809/restock-engine/internal/core/domain"
	"github.com/rl1809/restock-engine/internal/port"
)

const (
	EventInventory    = "inventory"
	EventAIPrediction = "ai-prediction"
)

type Message struct {
	Event string
	Data  []byte
}

// Hub fans broadcasts out to live subscribers. A subscriber whose buffer is
// full misses the message; publishing never blocks.
type Hub struct {
	mu     sync.RWMutex
	subs   map[int]chan Message
	nextID int
	buffer int
	logger *zap.Logger
}

func NewHub(buffer int, logger *zap.Logger) *Hub {
	return &Hub{
		subs:   make(map[int]chan Message),
		buffer: buffer,
		logger: logger.With(zap.String("component", "broadcast-hub")),
	}
}

// Subscribe returns a message stream and a function that ends the
// subscription and closes the stream.
func (h *Hub) Subscribe() (<-chan Message, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan Message, h.buffer)
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) PublishInventory(ctx context.Context, record domain.InventoryRecord) error {
	return h.send(EventInventory, record)
}

func (h *Hub) PublishVelocity(ctx context.Context, update domain.VelocityUpdate) error {
	return h.send(EventAIPrediction, update)
}

func (h *Hub) send(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s broadcast: %w", event, err)
	}
	msg := Message{Event: event, Data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, ch := range h.subs {
		select {
		case ch <- msg:
		default:
			h.logger.Debug("Subscriber too slow, message skipped",
				zap.Int("subscriber", id),
				zap.String("event", event),
			)
		}
	}
	return nil
}

type fanout []port.Notifier

// Fanout delivers every broadcast to each notifier in turn. A failing
// notifier does not stop the rest; their errors are joined.
func Fanout(notifiers ...port.Notifier) port.Notifier {
	return fanout(notifiers)
}

func (f fanout) PublishInventory(ctx context.Context, record domain.InventoryRecord) error {
	var errs []error
	for _, n := range f {
		if err := n.PublishInventory(ctx, record); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanout) PublishVelocity(ctx context.Context, update domain.VelocityUpdate) error {
	var errs []error
	for _, n := range f {
		if err := n.PublishVelocity(ctx, update); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
