package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/tmarkov/campus-parking/internal/api"
	"github.com/tmarkov/campus-parking/internal/config"
	"github.com/tmarkov/campus-parking/internal/db"
	"github.com/tmarkov/campus-parking/internal/gateway"
	"github.com/tmarkov/campus-parking/internal/ledger"
	"github.com/tmarkov/campus-parking/internal/mq"
	"github.com/tmarkov/campus-parking/internal/pricing"
	"github.com/tmarkov/campus-parking/internal/service"
	"github.com/tmarkov/campus-parking/internal/store"
)

// ProvideStore selects the persistence driver. The memory driver seeds
// a demo campus so the API is usable out of the box.
func ProvideStore(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (store.Store, error) {
	if cfg.Database.Driver == "memory" {
		logger.Info("using in-memory store")
		mem := store.NewMemory()
		mem.SeedCampus(5, 6, time.Now())
		return mem, nil
	}

	pool, err := db.NewPool(lc, logger, cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	return store.NewPostgres(pool), nil
}

// ProvidePricingEngine creates the pricing engine from configuration
func ProvidePricingEngine(cfg *config.Config) *pricing.Engine {
	return pricing.NewEngine(cfg.Pricing)
}

// ProvideMQConnection creates the RabbitMQ connection
func ProvideMQConnection(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*mq.Connection, error) {
	return mq.NewConnection(lc, logger, cfg.RabbitMQ.URL)
}

// ProvidePublisher creates the slot state event publisher
func ProvidePublisher(conn *mq.Connection, cfg *config.Config, logger *zap.Logger) (*mq.Publisher, error) {
	return mq.NewPublisher(conn, cfg.RabbitMQ.EventsExchange, logger)
}

// ProvideLedger creates the central ledger
func ProvideLedger(
	st store.Store,
	engine *pricing.Engine,
	publisher *mq.Publisher,
	cfg *config.Config,
	logger *zap.Logger,
) *ledger.Ledger {
	return ledger.New(st, engine, ledger.Config{
		MaxDailyPrice: cfg.Pricing.MaxDailyPrice,
		Publisher:     mq.NewStatePublisher(publisher, cfg.RabbitMQ.SlotStateRoutingKey),
		Logger:        logger,
	})
}

// ProvideForwarder selects the gateway delivery path: HTTP towards a
// remote central server, in-process otherwise.
func ProvideForwarder(cfg *config.Config, led *ledger.Ledger, logger *zap.Logger) gateway.Forwarder {
	if cfg.Gateway.CentralURL != "" {
		logger.Info("forwarding occupancy updates over HTTP",
			zap.String("central_url", cfg.Gateway.CentralURL))
		return gateway.NewHTTPForwarder(cfg.Gateway.CentralURL, cfg.Gateway.ForwardTimeout, logger)
	}
	logger.Info("applying occupancy updates in-process")
	return gateway.NewLocalForwarder(led)
}

// ProvideRegistry creates the gateway registry and ties its flush
// loops to the application lifecycle.
func ProvideRegistry(lc fx.Lifecycle, cfg *config.Config, forwarder gateway.Forwarder, logger *zap.Logger) *gateway.Registry {
	registry := gateway.NewRegistry(cfg.Gateway, forwarder, logger)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			registry.Close()
			logger.Info("gateway registry stopped")
			return nil
		},
	})
	return registry
}

// ProvideIngestService creates the sensor reading processor
func ProvideIngestService(registry *gateway.Registry, logger *zap.Logger) *service.IngestService {
	return service.NewIngestService(registry, logger)
}

func startConsumer(
	lc fx.Lifecycle,
	conn *mq.Connection,
	cfg *config.Config,
	logger *zap.Logger,
	ingest *service.IngestService,
) (*mq.Consumer, error) {
	ctx, cancel := context.WithCancel(context.Background())

	consumer, err := mq.NewConsumer(mq.ConsumerConfig{
		Connection:    conn,
		Queue:         cfg.RabbitMQ.SensorQueue,
		DLQQueue:      cfg.RabbitMQ.DLQQueue,
		Exchange:      cfg.RabbitMQ.SensorExchange,
		RoutingKey:    cfg.RabbitMQ.SensorRoutingKey,
		PrefetchCount: cfg.RabbitMQ.PrefetchCount,
		Logger:        logger,
		Handler:       ingest.ProcessMessage,
	})
	if err != nil {
		cancel()
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			logger.Info("starting sensor consumer",
				zap.String("queue", cfg.RabbitMQ.SensorQueue),
				zap.Int("prefetch", cfg.RabbitMQ.PrefetchCount))
			return consumer.Start(ctx)
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			if err := consumer.Close(); err != nil {
				logger.Error("failed to close consumer", zap.Error(err))
				return err
			}
			logger.Info("sensor consumer stopped")
			return nil
		},
	})

	return consumer, nil
}

func startHTTPServer(
	lc fx.Lifecycle,
	cfg *config.Config,
	led *ledger.Ledger,
	registry *gateway.Registry,
	logger *zap.Logger,
) {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: api.NewRouter(led, registry, logger),
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				logger.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("http server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Shutdown(ctx); err != nil {
				logger.Error("http server shutdown error", zap.Error(err))
				return err
			}
			logger.Info("http server stopped")
			return nil
		},
	})
}
