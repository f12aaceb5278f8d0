package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rl1809/restock-engine/internal/adapter/broadcast"
	"github.com/rl1809/restock-engine/internal/adapter/handler"
	"github.com/rl1809/restock-engine/internal/adapter/messaging"
	"github.com/rl1809/restock-engine/internal/adapter/storage"
	"github.com/rl1809/restock-engine/internal/config"
	"github.com/rl1809/restock-engine/internal/core/forecast"
	"github.com/rl1809/restock-engine/internal/core/service"
	"github.com/rl1809/restock-engine/internal/port"
)

const (
	localBusBuffer = 10000
	hubBuffer      = 64
)

// App holds the wired engine and its adapters.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	DB     port.DatabaseRepository
	Cache  port.CacheRepository
	Bus    port.EventPublisher
	Hub    *broadcast.Hub
	Engine *service.ReconciliationService
	Query  *service.QueryService
	HTTP   *handler.HTTPHandler
	GRPC   *handler.GRPCHandler

	events   *handler.EventHandler
	localBus *messaging.LocalBus
	amqpConn *messaging.Connection
	healthy  func() bool

	closers []func() error
	wg      sync.WaitGroup
}

func EngineConfig(cfg config.EngineConfig) service.Config {
	return service.Config{
		DefaultQuantity: cfg.DefaultQuantity,
		Restock: forecast.RestockPolicy{
			QuantityThreshold: cfg.RestockThreshold,
			Horizon:           cfg.RestockHorizon,
			OrderQuantity:     cfg.RestockQuantity,
			Cooldown:          cfg.RestockCooldown,
		},
		RecentSalesLimit: cfg.RecentSalesLimit,
		ForecastWindow:   cfg.ForecastWindow,
	}
}

// New connects every adapter named in cfg and wires the engine. Consumers
// start with Start.
func New(cfg *config.Config, logger *zap.Logger, opts ...service.Option) (*App, error) {
	a := &App{cfg: cfg, logger: logger}

	db, closeDB, err := OpenStore(cfg.Store, logger)
	if err != nil {
		return nil, err
	}
	a.DB = db
	a.closers = append(a.closers, closeDB)

	cache, closeCache, err := OpenCache(cfg.Cache)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Cache = cache
	a.closers = append(a.closers, closeCache)

	if err := a.openTransport(); err != nil {
		a.Close()
		return nil, err
	}

	channels := cfg.Messaging.Channels
	engineCfg := EngineConfig(cfg.Engine)
	publisher := messaging.NewPublisher(a.Bus, channels)
	a.Hub = broadcast.NewHub(hubBuffer, logger)

	a.Engine = service.NewReconciliationService(a.DB, a.Cache,
		broadcast.Fanout(publisher, a.Hub), publisher, engineCfg, logger, opts...)
	a.Query = service.NewQueryService(a.DB, a.Cache, engineCfg, logger)
	a.events = handler.NewEventHandler(a.Engine, channels)

	checks := map[string]handler.HealthCheck{
		"store":     a.DB.Ping,
		"cache":     a.Cache.Ping,
		"transport": a.transportHealth,
	}
	a.HTTP = handler.NewHTTPHandler(a.Query, a.Bus, channels.Orders, a.Hub, checks, logger)
	a.GRPC = handler.NewGRPCHandler(a.Query, a.Bus, channels.Orders, logger)

	return a, nil
}

func (a *App) openTransport() error {
	switch a.cfg.Transport {
	case "local":
		bus := messaging.NewLocalBus(a.cfg.Messaging.Workers, localBusBuffer, a.cfg.Messaging.HandlerTimeout, a.logger)
		a.localBus, a.Bus, a.healthy = bus, bus, bus.IsHealthy
		a.closers = append(a.closers, func() error { bus.Close(); return nil })
		return nil

	case "amqp":
		conn := messaging.NewConnection(a.cfg.RabbitMQ, a.logger)
		if err := conn.Connect(); err != nil {
			return err
		}
		a.closers = append(a.closers, func() error { conn.Close(); return nil })
		if err := conn.DeclareTopology(a.cfg.RabbitMQ.Exchange, a.cfg.Messaging.Channels.Inbound()); err != nil {
			return err
		}
		a.amqpConn, a.healthy = conn, conn.IsHealthy
		a.Bus = messaging.NewAMQPPublisher(conn, a.cfg.RabbitMQ.Exchange)
		return nil

	default:
		return fmt.Errorf("unknown transport %q", a.cfg.Transport)
	}
}

func (a *App) transportHealth(ctx context.Context) error {
	if !a.healthy() {
		return errors.New("connection closed")
	}
	return nil
}

// Start begins consuming the inbound channels. AMQP consumers stop when ctx
// is cancelled; local subscriptions stop on Close.
func (a *App) Start(ctx context.Context) error {
	for _, channel := range a.cfg.Messaging.Channels.Inbound() {
		if a.localBus != nil {
			if err := a.localBus.Subscribe(channel, a.events); err != nil {
				return err
			}
			continue
		}

		consumer := messaging.NewConsumer(a.amqpConn, channel, a.events,
			a.cfg.Messaging.Workers, a.cfg.RabbitMQ.Prefetch, a.cfg.Messaging.HandlerTimeout, a.logger)
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			consumer.Run(ctx)
		}()
	}
	a.logger.Info("Engine consuming",
		zap.String("transport", a.cfg.Transport),
		zap.Strings("channels", a.cfg.Messaging.Channels.Inbound()),
	)
	return nil
}

// Close releases adapters in reverse order of creation. Cancel the Start
// context first when using AMQP.
func (a *App) Close() {
	if a.HTTP != nil {
		a.HTTP.Close()
	}
	a.wg.Wait()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Error("Error closing adapter", zap.Error(err))
		}
	}
	a.closers = nil
}

// OpenStore connects the configured inventory store.
func OpenStore(cfg config.StoreConfig, logger *zap.Logger) (port.DatabaseRepository, func() error, error) {
	switch cfg.Driver {
	case "memory":
		return storage.NewMemoryAdapter(), func() error { return nil }, nil

	case "mysql":
		db, err := sql.Open("mysql", cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect mysql: %w", err)
		}
		db.SetMaxOpenConns(50)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to ping mysql: %w", err)
		}
		logger.Info("Connected to MySQL")
		return storage.NewMySQLAdapter(db), db.Close, nil

	case "postgres", "sqlite":
		dsn := cfg.DSN
		if cfg.Driver == "sqlite" && dsn == "" {
			dsn = "file:restock?mode=memory&cache=shared"
		}
		db, err := storage.OpenGorm(cfg.Driver, dsn)
		if err != nil {
			return nil, nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Connected to database", zap.String("driver", cfg.Driver))
		return storage.NewGormAdapter(db), sqlDB.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// OpenCache connects the configured recent-sales cache.
func OpenCache(cfg config.CacheConfig) (port.CacheRepository, func() error, error) {
	switch cfg.Driver {
	case "memory":
		return storage.NewMemoryCache(), func() error { return nil }, nil

	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			PoolSize: cfg.PoolSize,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("failed to connect redis: %w", err)
		}
		return storage.NewRedisAdapter(rdb), rdb.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown cache driver %q", cfg.Driver)
	}
}
