package kafka

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/erain9/crossmatch/pkg/core"
	"github.com/erain9/crossmatch/pkg/messaging"
	"github.com/erain9/crossmatch/pkg/otel"
)

// OrderHandler processes one decoded inbound order.
type OrderHandler func(order core.Order)

// PriceHandler processes one decoded price update.
type PriceHandler func(update messaging.PriceUpdate)

// Consumer reads inbound order and price topics and dispatches decoded
// messages to the engine. Malformed messages are logged and skipped, never
// retried.
type Consumer struct {
	orders *kafka.Reader
	prices *kafka.Reader
	logger zerolog.Logger
}

// ConsumerConfig carries the Kafka consumer settings.
type ConsumerConfig struct {
	BrokerAddr string
	OrderTopic string
	PriceTopic string
	GroupID    string
}

// NewConsumer creates readers for the order and price topics.
func NewConsumer(cfg ConsumerConfig, logger zerolog.Logger) *Consumer {
	return &Consumer{
		orders: kafka.NewReader(kafka.ReaderConfig{
			Brokers: []string{cfg.BrokerAddr},
			Topic:   cfg.OrderTopic,
			GroupID: cfg.GroupID,
		}),
		prices: kafka.NewReader(kafka.ReaderConfig{
			Brokers: []string{cfg.BrokerAddr},
			Topic:   cfg.PriceTopic,
			GroupID: cfg.GroupID,
		}),
		logger: logger,
	}
}

// Run consumes both topics until the context is canceled.
func (c *Consumer) Run(ctx context.Context, onOrder OrderHandler, onPrice PriceHandler) {
	go c.consumeOrders(ctx, onOrder)
	go c.consumePrices(ctx, onPrice)
}

func (c *Consumer) consumeOrders(ctx context.Context, onOrder OrderHandler) {
	metrics := otel.GetMatchingMetrics()
	for {
		msg, err := c.orders.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			c.logger.Error().Err(err).Msg("Order consumer read error")
			return
		}

		var order core.Order
		if err := json.Unmarshal(msg.Value, &order); err != nil {
			c.logger.Warn().Err(err).
				Int64("offset", msg.Offset).
				Msg("Dropping malformed inbound order")
			continue
		}

		spanCtx, span := otel.StartOrderSpan(ctx, otel.SpanConsumeOrder)
		onOrder(order)
		metrics.RecordOrderIn(spanCtx, string(order.Action))
		if span != nil {
			span.End()
		}
	}
}

func (c *Consumer) consumePrices(ctx context.Context, onPrice PriceHandler) {
	for {
		msg, err := c.prices.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			c.logger.Error().Err(err).Msg("Price consumer read error")
			return
		}

		var update messaging.PriceUpdate
		if err := json.Unmarshal(msg.Value, &update); err != nil {
			c.logger.Warn().Err(err).
				Int64("offset", msg.Offset).
				Msg("Dropping malformed price update")
			continue
		}
		onPrice(update)
	}
}

// Close closes both readers.
func (c *Consumer) Close() error {
	orderErr := c.orders.Close()
	priceErr := c.prices.Close()
	if orderErr != nil {
		return orderErr
	}
	return priceErr
}
