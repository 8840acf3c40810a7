package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	zl "github.com/rs/zerolog/log"
	"go.uber.org/zap"

	"github.com/erain9/crossmatch/config"
	"github.com/erain9/crossmatch/pkg/core"
	"github.com/erain9/crossmatch/pkg/db/queue"
	"github.com/erain9/crossmatch/pkg/exchange"
	"github.com/erain9/crossmatch/pkg/feed"
	"github.com/erain9/crossmatch/pkg/journal"
	"github.com/erain9/crossmatch/pkg/logging"
	"github.com/erain9/crossmatch/pkg/messaging"
	"github.com/erain9/crossmatch/pkg/messaging/kafka"
	"github.com/erain9/crossmatch/pkg/otel"
	"github.com/erain9/crossmatch/pkg/server"
	redisstore "github.com/erain9/crossmatch/pkg/store/redis"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logging.Setup(logging.Config{
		Level:  cfg.Server.LogLevel,
		Pretty: cfg.Server.LogFormat == "pretty",
	})
	logger := zl.Logger

	if cfg.Otel.Enabled {
		cleanup, err := otel.Init(otel.Config{
			ServiceName:      "crossmatch",
			ServiceVersion:   "1.0.0",
			Endpoint:         cfg.Otel.Endpoint,
			CollectorEnabled: true,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to initialize OpenTelemetry")
		}
		defer cleanup()
		if err := otel.StartRuntimeMetrics(); err != nil {
			logger.Warn().Err(err).Msg("Runtime metrics unavailable")
		}
	}

	// Archive producer pool settings.
	queue.SetBrokerList(cfg.Kafka.BrokerAddr)
	queue.SetTopic(cfg.Kafka.ArchiveTopic)

	// Trigger order mirror.
	redisstore.SetDefaultRedisOptions(&redisstore.RedisOptions{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	zapLogger, err := zap.NewProduction()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build zap logger")
	}
	defer zapLogger.Sync()
	store := redisstore.NewOrderStore(redisstore.GetRedisClient(), cfg.Redis.Prefix, zapLogger)

	jnl, err := journal.Open(cfg.Journal.Dir)
	if err != nil {
		logger.Fatal().Err(err).Str("dir", cfg.Journal.Dir).Msg("Failed to open journal")
	}

	events, err := kafka.NewOrderEventSender(cfg.Kafka.BrokerAddr, cfg.Kafka.EventTopic)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create order event sender")
	}

	feedServer := feed.NewServer(cfg.Server.FeedAddr, logger)
	kafkaBooks, err := kafka.NewBookSender(cfg.Kafka.BrokerAddr, cfg.Kafka.BookTopic)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create book sender")
	}
	books := messaging.MultiBook(feedServer, kafkaBooks)

	specs := make([]exchange.MarketSpec, 0, len(cfg.Markets))
	for _, mc := range cfg.Markets {
		specs = append(specs, exchange.MarketSpec{
			Info:         mc.MarketInfo(),
			FutureMarket: mc.FutureMarket,
		})
	}

	manager, err := exchange.NewManager(specs, exchange.Deps{
		Orders:       events,
		Books:        books,
		Archive:      &queue.PooledArchiveSender{},
		Store:        store,
		Journal:      jnl,
		Depth:        cfg.Feed.Depth,
		ImpliedDepth: cfg.Feed.ImpliedDepth,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build market groups")
	}

	admin := server.NewAdminServer(cfg.Server.AdminAddr, logger)
	if err := admin.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start admin server")
	}
	admin.SetReady(false)

	logTriggerMirror(store, cfg.Markets, logger)

	if err := manager.Recover(jnl.Replay); err != nil {
		logger.Fatal().Err(err).Msg("Journal recovery failed")
	}
	logger.Info().
		Uint64("journal_records", jnl.Len()).
		Int("resting_orders", manager.OrdersCount()).
		Msg("Books rebuilt from journal")

	manager.Start()
	feedServer.Start()

	ctx, cancel := context.WithCancel(context.Background())
	consumer := kafka.NewConsumer(kafka.ConsumerConfig{
		BrokerAddr: cfg.Kafka.BrokerAddr,
		OrderTopic: cfg.Kafka.OrderTopic,
		PriceTopic: cfg.Kafka.PriceTopic,
		GroupID:    cfg.Kafka.GroupID,
	}, logger)
	consumer.Run(ctx,
		func(order core.Order) { _ = manager.SubmitOrder(order) },
		func(update messaging.PriceUpdate) { manager.SubmitPrice(update) },
	)

	admin.SetReady(true)
	for _, mc := range cfg.Markets {
		admin.SetMarketServing(mc.MarketCode, true)
	}
	logger.Info().
		Str("admin", cfg.Server.AdminAddr).
		Str("feed", cfg.Server.FeedAddr).
		Int("markets", len(cfg.Markets)).
		Msg("Engine running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("Received signal, shutting down")

	admin.SetReady(false)
	cancel()
	if err := consumer.Close(); err != nil {
		logger.Error().Err(err).Msg("Consumer close error")
	}

	// Drain the inboxes before anything downstream closes.
	manager.Close()

	if err := jnl.Sync(); err != nil {
		logger.Error().Err(err).Msg("Journal sync error")
	}
	if err := jnl.Close(); err != nil {
		logger.Error().Err(err).Msg("Journal close error")
	}
	if err := events.Close(); err != nil {
		logger.Error().Err(err).Msg("Event sender close error")
	}
	if err := books.Close(); err != nil {
		logger.Error().Err(err).Msg("Book sender close error")
	}
	admin.Stop()

	logger.Info().Msg("Shutdown complete")
}

// logTriggerMirror reports what the Redis mirror holds at startup. The
// journal is authoritative for recovery, the mirror is operator-facing.
func logTriggerMirror(store *redisstore.OrderStore, markets []config.MarketConfig, logger zerolog.Logger) {
	for _, mc := range markets {
		orders, err := store.LoadOrders(mc.MarketID)
		if err != nil {
			logger.Warn().Err(err).Str("market", mc.MarketCode).Msg("Trigger mirror unavailable")
			return
		}
		if len(orders) > 0 {
			logger.Info().
				Str("market", mc.MarketCode).
				Int("triggers", len(orders)).
				Msg("Mirrored trigger orders found")
		}
	}
}
