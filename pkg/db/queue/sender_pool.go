package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/erain9/crossmatch/pkg/core"
)

// ArchiveSender is what the pool hands out. The exchange layer depends on
// this instead of the concrete sarama sender.
type ArchiveSender interface {
	SendOrderBatch(ctx context.Context, orders []core.Order) error
	Close() error
}

var (
	senderPool   chan ArchiveSender
	poolInitOnce sync.Once
	maxPoolSize  = 32 // Pool size optimized for 100k msgs/sec
)

// initSenderPool initializes the sender pool
func initSenderPool() {
	poolInitOnce.Do(func() {
		senderPool = make(chan ArchiveSender, maxPoolSize)
		// Pre-populate the entire pool
		for i := 0; i < maxPoolSize; i++ {
			sender, err := NewQueueMessageSender()
			if err != nil {
				fmt.Printf("Error creating sender: %v\n", err)
				continue
			}
			senderPool <- sender
		}
	})
}

// GetSender gets a sender from the pool
func GetSender() ArchiveSender {
	initSenderPool()

	// Simple non-blocking get from pool
	select {
	case sender := <-senderPool:
		return sender
	default:
		// If pool is empty, something is wrong - log and return nil
		fmt.Printf("Warning: sender pool is empty\n")
		return nil
	}
}

// ReturnSender returns a sender to the pool
func ReturnSender(sender ArchiveSender) {
	if sender == nil {
		return
	}

	// Simple non-blocking return to pool
	select {
	case senderPool <- sender:
		// Successfully returned to pool
	default:
		// If pool is full, something is wrong - log and close
		fmt.Printf("Warning: sender pool is full\n")
		_ = sender.Close()
	}
}

// PooledArchiveSender sends every batch through the shared pool. The zero
// value is ready to use.
type PooledArchiveSender struct{}

func (PooledArchiveSender) SendOrderBatch(ctx context.Context, orders []core.Order) error {
	return SendOrderBatch(ctx, orders)
}

// SendOrderBatch sends a batch using a pooled sender
func SendOrderBatch(ctx context.Context, orders []core.Order) error {
	sender := GetSender()
	if sender == nil {
		return fmt.Errorf("failed to get archive sender from pool")
	}
	defer ReturnSender(sender)

	if err := sender.SendOrderBatch(ctx, orders); err != nil {
		// If we get a connection error, don't return this sender to the pool
		_ = sender.Close()
		return err
	}
	return nil
}
