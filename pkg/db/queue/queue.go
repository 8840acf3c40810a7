package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/IBM/sarama"

	"github.com/erain9/crossmatch/pkg/core"
)

var (
	brokerList = "localhost:9092"
	topic      = "crossmatch-order-archive"
	maxRetry   = 5
)

// SetBrokerList overrides the Kafka broker used by archive senders.
func SetBrokerList(addr string) {
	brokerList = addr
}

// SetTopic overrides the archive topic.
func SetTopic(t string) {
	topic = t
}

// QueueMessageSender writes batches of order events to the archive topic
// the downstream persistence workers consume.
type QueueMessageSender struct {
	producer sarama.SyncProducer
}

// NewQueueMessageSender dials the broker and returns a ready sender.
func NewQueueMessageSender() (*QueueMessageSender, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Retry.Max = maxRetry
	cfg.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer([]string{brokerList}, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	return &QueueMessageSender{producer: producer}, nil
}

func newSenderWithProducer(producer sarama.SyncProducer) *QueueMessageSender {
	return &QueueMessageSender{producer: producer}
}

// SendOrderBatch writes one batch of order events, keyed by market so the
// archive of a market stays in match order.
func (q *QueueMessageSender) SendOrderBatch(ctx context.Context, orders []core.Order) error {
	if len(orders) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msgs := make([]*sarama.ProducerMessage, 0, len(orders))
	for i := range orders {
		data, err := json.Marshal(&orders[i])
		if err != nil {
			return fmt.Errorf("failed to marshal order event: %w", err)
		}
		msgs = append(msgs, &sarama.ProducerMessage{
			Topic: topic,
			Key:   sarama.StringEncoder(strconv.FormatUint(orders[i].MarketID, 10)),
			Value: sarama.ByteEncoder(data),
		})
	}

	if err := q.producer.SendMessages(msgs); err != nil {
		return fmt.Errorf("failed to send batch to Kafka: %w", err)
	}
	return nil
}

// Close shuts the underlying producer down.
func (q *QueueMessageSender) Close() error {
	return q.producer.Close()
}
