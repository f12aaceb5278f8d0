package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rl1809/restock-engine/internal/adapter/storage"
	"github.com/rl1809/restock-engine/internal/core/domain"
)

var (
	errPublish = errors.New("broker down")
	errSales   = errors.New("sales table down")
)

// failingSalesStore rejects every sale, standing in for a store whose sale
// insert fails inside RecordSale.
type failingSalesStore struct {
	*storage.MemoryAdapter
}

func (f failingSalesStore) RecordSale(ctx context.Context, sale domain.SaleEvent, defaultQuantity int) (domain.InventoryRecord, domain.SaleEvent, error) {
	return domain.InventoryRecord{}, domain.SaleEvent{}, errSales
}

type mockNotifier struct {
	mu         sync.Mutex
	inventory  []domain.InventoryRecord
	velocities []domain.VelocityUpdate
	fail       bool
	onPublish  func()
}

func (m *mockNotifier) PublishInventory(ctx context.Context, record domain.InventoryRecord) error {
	if m.onPublish != nil {
		m.onPublish()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errPublish
	}
	m.inventory = append(m.inventory, record)
	return nil
}

func (m *mockNotifier) PublishVelocity(ctx context.Context, update domain.VelocityUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errPublish
	}
	m.velocities = append(m.velocities, update)
	return nil
}

func (m *mockNotifier) inventoryCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inventory)
}

type mockRequester struct {
	mu       sync.Mutex
	requests []domain.RestockRequest
	fail     bool
}

func (m *mockRequester) RequestRestock(ctx context.Context, req domain.RestockRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errPublish
	}
	m.requests = append(m.requests, req)
	return nil
}

func (m *mockRequester) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// spyCache counts invalidations on top of the in-memory cache.
type spyCache struct {
	*storage.MemoryCache
	mu            sync.Mutex
	invalidations int
	cooldownErr   error
}

func (s *spyCache) InvalidateRecentSales(ctx context.Context) error {
	s.mu.Lock()
	s.invalidations++
	s.mu.Unlock()
	return s.MemoryCache.InvalidateRecentSales(ctx)
}

func (s *spyCache) AcquireCooldown(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if s.cooldownErr != nil {
		return false, s.cooldownErr
	}
	return s.MemoryCache.AcquireCooldown(ctx, key, ttl)
}

func (s *spyCache) invalidationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.invalidations
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
