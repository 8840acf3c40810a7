package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/erain9/crossmatch/pkg/core"
	"github.com/erain9/crossmatch/pkg/messaging"
)

const writeTimeout = 5 * time.Second

// OrderEventSender implements messaging.OrderSender on a Kafka topic.
// Events of one market share a key so they stay ordered per partition.
type OrderEventSender struct {
	writer *kafka.Writer
	topic  string
}

// NewOrderEventSender creates a new Kafka order event sender
func NewOrderEventSender(brokerAddr, topic string) (*OrderEventSender, error) {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokerAddr),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
	}

	return &OrderEventSender{
		writer: writer,
		topic:  topic,
	}, nil
}

// SendOrder publishes a single order event
func (k *OrderEventSender) SendOrder(ctx context.Context, order core.Order) error {
	msg, err := orderMessage(order)
	if err != nil {
		return err
	}
	return k.write(ctx, msg)
}

// SendOrderList publishes a batch of fill events as one message per event
func (k *OrderEventSender) SendOrderList(ctx context.Context, orders []core.Order) error {
	if len(orders) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(orders))
	for i := range orders {
		msg, err := orderMessage(orders[i])
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	return k.write(ctx, msgs...)
}

// Close closes the Kafka writer
func (k *OrderEventSender) Close() error {
	return k.writer.Close()
}

func (k *OrderEventSender) write(ctx context.Context, msgs ...kafka.Message) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to send message to Kafka: %w", err)
	}
	return nil
}

func orderMessage(order core.Order) (kafka.Message, error) {
	data, err := json.Marshal(&order)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal order event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(strconv.FormatUint(order.MarketID, 10)),
		Value: data,
		Time:  time.Now(),
	}, nil
}

// BookSender implements messaging.BookSender on a Kafka topic.
type BookSender struct {
	writer *kafka.Writer
}

// NewBookSender creates a new Kafka market data sender
func NewBookSender(brokerAddr, topic string) (*BookSender, error) {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokerAddr),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
	}
	return &BookSender{writer: writer}, nil
}

// SendBookSnapshot publishes a display book snapshot
func (k *BookSender) SendBookSnapshot(ctx context.Context, snap *messaging.BookSnapshot) error {
	return k.writeJSON(ctx, snap.MarketID, snap)
}

// SendBestQuote publishes a top of book update
func (k *BookSender) SendBestQuote(ctx context.Context, quote *messaging.BestQuote) error {
	return k.writeJSON(ctx, quote.MarketID, quote)
}

// Close closes the Kafka writer
func (k *BookSender) Close() error {
	return k.writer.Close()
}

func (k *BookSender) writeJSON(ctx context.Context, marketID uint64, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal market data message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatUint(marketID, 10)),
		Value: data,
		Time:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to send message to Kafka: %w", err)
	}
	return nil
}
