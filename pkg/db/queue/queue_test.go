package queue

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erain9/crossmatch/pkg/core"
)

func archiveOrder(id, marketID uint64) core.Order {
	return core.Order{
		OrderID:        id,
		MarketID:       marketID,
		AccountID:      7,
		Side:           core.Buy,
		Type:           core.TypeLimit,
		Price:          100,
		Quantity:       5,
		RemainQuantity: 5,
		Action:         core.ActionNew,
		Status:         core.StatusOpen,
	}
}

func TestSendOrderBatch(t *testing.T) {
	mockProd := &mockProducer{}
	sender := newSenderWithProducer(mockProd)
	defer sender.Close()

	batch := []core.Order{archiveOrder(1, 42), archiveOrder(2, 42)}
	require.NoError(t, sender.SendOrderBatch(context.Background(), batch))

	require.Len(t, mockProd.sentMessages, 2)
	msg := mockProd.sentMessages[0]
	assert.Equal(t, topic, msg.Topic)

	key, err := msg.Key.Encode()
	require.NoError(t, err)
	assert.Equal(t, "42", string(key))

	var decoded core.Order
	require.NoError(t, json.Unmarshal(msg.Value.(sarama.ByteEncoder), &decoded))
	assert.Equal(t, uint64(1), decoded.OrderID)
	assert.Equal(t, core.StatusOpen, decoded.Status)
}

func TestSendOrderBatchEmpty(t *testing.T) {
	mockProd := &mockProducer{}
	sender := newSenderWithProducer(mockProd)
	defer sender.Close()

	require.NoError(t, sender.SendOrderBatch(context.Background(), nil))
	assert.Empty(t, mockProd.sentMessages)
}

func TestSendOrderBatchCanceledContext(t *testing.T) {
	mockProd := &mockProducer{}
	sender := newSenderWithProducer(mockProd)
	defer sender.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := sender.SendOrderBatch(ctx, []core.Order{archiveOrder(1, 1)})
	require.Error(t, err)
	assert.Empty(t, mockProd.sentMessages)
}
