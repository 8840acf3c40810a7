package messaging

import (
	"context"
	"sync"

	"github.com/erain9/crossmatch/pkg/core"
)

// MockSender is an in-memory OrderSender and BookSender for tests.
type MockSender struct {
	mu        sync.Mutex
	Orders    []core.Order
	Batches   [][]core.Order
	Snapshots []BookSnapshot
	Quotes    []BestQuote
	Err       error
	closed    bool
}

// NewMockSender creates a new MockSender.
func NewMockSender() *MockSender {
	return &MockSender{}
}

func (m *MockSender) SendOrder(_ context.Context, order core.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Orders = append(m.Orders, order)
	return nil
}

func (m *MockSender) SendOrderList(_ context.Context, orders []core.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	batch := make([]core.Order, len(orders))
	copy(batch, orders)
	m.Batches = append(m.Batches, batch)
	return nil
}

func (m *MockSender) SendBookSnapshot(_ context.Context, snap *BookSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Snapshots = append(m.Snapshots, *snap)
	return nil
}

func (m *MockSender) SendBestQuote(_ context.Context, quote *BestQuote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Quotes = append(m.Quotes, *quote)
	return nil
}

func (m *MockSender) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockSender) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Fills flattens all published batches.
func (m *MockSender) Fills() []core.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.Order
	for _, b := range m.Batches {
		out = append(out, b...)
	}
	return out
}
