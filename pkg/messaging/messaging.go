package messaging

import (
	"context"

	"github.com/erain9/crossmatch/pkg/core"
)

// OrderSender publishes order lifecycle events. The matching core hands
// events to the service through core.Callbacks and the service forwards them
// here, so the core never depends on a transport.
type OrderSender interface {
	// SendOrder publishes a single order event (open, cancel, amend, reject).
	SendOrder(ctx context.Context, order core.Order) error
	// SendOrderList publishes one batch of fill events in match order.
	SendOrderList(ctx context.Context, orders []core.Order) error
	Close() error
}

// BookSender publishes market data derived from the books.
type BookSender interface {
	SendBookSnapshot(ctx context.Context, snap *BookSnapshot) error
	SendBestQuote(ctx context.Context, quote *BestQuote) error
	Close() error
}

// Price update kinds. Mark price drives MARK_PRICE triggers and repo
// conversions, last price drives LAST_PRICE triggers.
const (
	PriceKindMark = "MARK"
	PriceKindLast = "LAST"
)

// PriceUpdate is one inbound mark or last price tick.
type PriceUpdate struct {
	MarketID uint64 `json:"mid"`
	Price    int64  `json:"p"`
	Kind     string `json:"k"`
}

// PriceLevel is one aggregated level of a published book.
type PriceLevel struct {
	Price    int64  `json:"p"`
	Quantity uint64 `json:"q"`
}

// BookSnapshot is the display book of one market, implied liquidity
// included. Asks ascend, bids descend.
type BookSnapshot struct {
	MarketID   uint64       `json:"mid"`
	MarketCode string       `json:"mc"`
	Asks       []PriceLevel `json:"a"`
	Bids       []PriceLevel `json:"b"`
	Timestamp  int64        `json:"t"`
}

// BestQuote is the top of book of one market.
type BestQuote struct {
	MarketID    uint64 `json:"mid"`
	MarketCode  string `json:"mc"`
	BidPrice    int64  `json:"bp"`
	BidQuantity uint64 `json:"bq"`
	AskPrice    int64  `json:"ap"`
	AskQuantity uint64 `json:"aq"`
	Timestamp   int64  `json:"t"`
}
