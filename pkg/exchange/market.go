package exchange

import (
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/erain9/crossmatch/pkg/core"
	"github.com/erain9/crossmatch/pkg/logging"
	"github.com/erain9/crossmatch/pkg/messaging"
)

// Market bundles the matching engine and the trigger order manager of one
// market code. It implements core.Callbacks, so every externally visible
// transition of the core flows through the owning group.
type Market struct {
	info     core.MarketInfo
	engine   *core.Engine
	triggers *core.TriggerManager
	group    *Group
	logger   zerolog.Logger

	bestDirty bool
}

func newMarket(info core.MarketInfo, group *Group, ids core.IDGen) *Market {
	m := &Market{
		info:   info,
		group:  group,
		logger: logging.ForMarket(info.MarketCode),
	}
	m.engine = core.NewEngine(info, m, ids, m.logger)
	m.triggers = core.NewTriggerManager(info.MarketCode, m, ids)
	return m
}

// Info returns the static market parameters.
func (m *Market) Info() core.MarketInfo { return m.info }

// Engine exposes the matching engine, mainly for tests and tooling.
func (m *Market) Engine() *core.Engine { return m.engine }

// OrdersCount is the number of resting orders, engine book plus parked
// triggers.
func (m *Market) OrdersCount() int {
	return m.engine.OrdersCount() + m.triggers.OrdersCount()
}

// handleOrder routes one inbound order between the trigger manager and the
// engine. Inadmissible orders are published back with their reject status
// and never reach either. Cancels and amends go through the trigger manager
// first: if it does not know the id it falls through to the engine via
// TriggerOrderToEngine.
func (m *Market) handleOrder(order *core.Order) {
	if status := order.Validate(); status != "" {
		order.Status = status
		m.logger.Debug().
			Uint64("order_id", order.OrderID).
			Str("status", string(status)).
			Msg("Order rejected")
		m.group.publishOrder(m, *order)
		return
	}

	switch order.Action {
	case core.ActionNew, core.ActionRecovery:
		if order.Type.IsTrigger() && !order.IsTriggered {
			m.triggers.HandleOrder(order)
			return
		}
		m.engine.HandleOrder(order)
	case core.ActionCancel, core.ActionAmend:
		m.triggers.HandleOrder(order)
	case core.ActionTriggerBracket:
		m.triggers.HandleOrder(order)
	default:
		m.engine.HandleOrder(order)
	}
}

// snapshot builds the display book, implied liquidity included.
func (m *Market) snapshot(depth, impliedDepth int) *messaging.BookSnapshot {
	asks := make(map[int64]uint64)
	bids := make(map[int64]uint64)
	bestBid := m.engine.SelfBestBid()
	bestAsk := m.engine.SelfBestAsk()
	m.engine.DisplayAskBook(asks, depth, impliedDepth, &bestBid)
	m.engine.DisplayBidBook(bids, depth, impliedDepth, &bestAsk)

	return &messaging.BookSnapshot{
		MarketID:   m.info.MarketID,
		MarketCode: m.info.MarketCode,
		Asks:       sortLevels(asks, depth, false),
		Bids:       sortLevels(bids, depth, true),
		Timestamp:  time.Now().UnixNano(),
	}
}

func (m *Market) bestQuote() *messaging.BestQuote {
	bid := m.engine.SelfBestBid()
	ask := m.engine.SelfBestAsk()
	return &messaging.BestQuote{
		MarketID:    m.info.MarketID,
		MarketCode:  m.info.MarketCode,
		BidPrice:    bid.Price,
		BidQuantity: bid.DisplayQuantity,
		AskPrice:    ask.Price,
		AskQuantity: ask.DisplayQuantity,
		Timestamp:   time.Now().UnixNano(),
	}
}

func sortLevels(levels map[int64]uint64, depth int, descending bool) []messaging.PriceLevel {
	out := make([]messaging.PriceLevel, 0, len(levels))
	for price, qty := range levels {
		if qty == 0 {
			continue
		}
		out = append(out, messaging.PriceLevel{Price: price, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool {
		if descending {
			return out[i].Price > out[j].Price
		}
		return out[i].Price < out[j].Price
	})
	if len(out) > depth {
		out = out[:depth]
	}
	return out
}

// core.Callbacks implementation. The group serializes all calls on its
// writer goroutine, so none of these need locking.

func (m *Market) PulsarOrder(order core.Order) {
	m.group.publishOrder(m, order)
}

func (m *Market) PulsarOrderList(orders []core.Order) {
	m.group.publishOrderList(m, orders)
}

func (m *Market) TriggerOrderToEngine(order core.Order) {
	if order.IsTriggered {
		m.group.triggerReleased(m)
	}
	m.engine.HandleOrder(&order)
}

func (m *Market) EngineOrderToTrigger(order core.Order) {
	m.triggers.HandleOrder(&order)
}

func (m *Market) BestOrderBookChange() {
	m.bestDirty = true
}

func (m *Market) OrderStore(order *core.Order) {
	m.group.storeTriggerOrder(m, order)
}
