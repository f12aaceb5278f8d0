package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/restock-engine/internal/adapter/broadcast"
	"github.com/rl1809/restock-engine/internal/adapter/handler"
	"github.com/rl1809/restock-engine/internal/adapter/messaging"
	"github.com/rl1809/restock-engine/internal/app"
	"github.com/rl1809/restock-engine/internal/config"
	"github.com/rl1809/restock-engine/internal/core/domain"
	"github.com/rl1809/restock-engine/internal/core/service"
	"github.com/rl1809/restock-engine/internal/logger"
)

const (
	initialStock    = 100
	totalOrders     = 50
	totalRestocks   = 20
	restockQuantity = 10
	totalForecasts  = 30
	busBuffer       = 1000
)

// restockCounter records requests without delivering them, so the final
// quantity is fixed by the events this program sends.
type restockCounter struct {
	count atomic.Int32
}

func (r *restockCounter) RequestRestock(ctx context.Context, req domain.RestockRequest) error {
	r.count.Add(1)
	return nil
}

func main() {
	// STORE_* and CACHE_* select the backends, memory by default.
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log, err := logger.New("warn")
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer logger.Sync(log)

	db, closeDB, err := app.OpenStore(cfg.Store, log)
	if err != nil {
		log.Fatal("Failed to open store", zap.Error(err))
	}
	defer closeDB()
	cache, closeCache, err := app.OpenCache(cfg.Cache)
	if err != nil {
		log.Fatal("Failed to open cache", zap.Error(err))
	}
	defer closeCache()

	ctx := context.Background()
	sku := "stress-" + uuid.NewString()[:8]
	if _, err := db.SetQuantity(ctx, sku, initialStock); err != nil {
		log.Fatal("Failed to seed stock", zap.Error(err))
	}

	requests := &restockCounter{}
	engineCfg := app.EngineConfig(cfg.Engine)
	engine := service.NewReconciliationService(db, cache, broadcast.NewHub(1, log), requests, engineCfg, log)

	channels := cfg.Messaging.Channels
	bus := messaging.NewLocalBus(cfg.Messaging.Workers, busBuffer, cfg.Messaging.HandlerTimeout, log)
	events := handler.NewEventHandler(engine, channels)
	for _, channel := range channels.Inbound() {
		if err := bus.Subscribe(channel, events); err != nil {
			log.Fatal("Failed to subscribe", zap.String("channel", channel), zap.Error(err))
		}
	}

	var publishFailures atomic.Int32
	send := func(channel string, payload any) {
		if err := bus.Publish(ctx, channel, payload); err != nil {
			publishFailures.Add(1)
		}
	}

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalOrders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			send(channels.Orders, domain.OrderEvent{SKU: sku, Quantity: 1})
		}()
	}
	for i := 0; i < totalRestocks; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			send(channels.Restock, domain.RestockDeliveredEvent{SKU: sku, Quantity: restockQuantity})
		}()
	}
	for i := 0; i < totalForecasts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			send(channels.Predictions, domain.AIPredictionEvent{SKU: sku, VelocityPerMinute: float64(n + 1)})
		}(i)
	}

	wg.Wait()
	bus.Close()
	elapsed := time.Since(start)

	record, err := db.GetInventory(ctx, sku)
	if err != nil || record == nil {
		log.Fatal("Failed to read final record", zap.Error(err))
	}
	sales, err := db.SalesForSKU(ctx, sku, 0)
	if err != nil {
		log.Fatal("Failed to read sales", zap.Error(err))
	}

	wantQuantity := initialStock - totalOrders + totalRestocks*restockQuantity
	wantVersion := int64(1 + totalOrders + totalRestocks + totalForecasts)

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("SKU:              %s\n", sku)
	fmt.Printf("Store / Cache:    %s / %s\n", cfg.Store.Driver, cfg.Cache.Driver)
	fmt.Printf("Orders:           %d\n", totalOrders)
	fmt.Printf("Restocks:         %d x %d\n", totalRestocks, restockQuantity)
	fmt.Printf("Forecasts:        %d\n", totalForecasts)
	fmt.Printf("Publish Failures: %d\n", publishFailures.Load())
	fmt.Printf("Restock Requests: %d\n", requests.count.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	failed := false
	check := func(name string, got, want any) {
		if got == want {
			fmt.Printf("PASS: %s = %v\n", name, got)
			return
		}
		fmt.Printf("FAIL: %s expected %v, got %v\n", name, want, got)
		failed = true
	}

	check("quantity", record.Quantity, wantQuantity)
	check("version", record.Version, wantVersion)
	check("sales recorded", len(sales), totalOrders)

	perMinute := record.Velocity.PerMinute()
	if perMinute > 0.999 && perMinute < totalForecasts+0.001 {
		fmt.Printf("PASS: velocity %.2f/min came from a forecast\n", perMinute)
	} else {
		fmt.Printf("FAIL: velocity %.2f/min was never published\n", perMinute)
		failed = true
	}

	if failed {
		os.Exit(1)
	}
}
