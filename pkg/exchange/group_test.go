package exchange

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erain9/crossmatch/pkg/core"
	"github.com/erain9/crossmatch/pkg/messaging"
)

type archiveRecorder struct {
	batches [][]core.Order
}

func (a *archiveRecorder) SendOrderBatch(_ context.Context, orders []core.Order) error {
	batch := make([]core.Order, len(orders))
	copy(batch, orders)
	a.batches = append(a.batches, batch)
	return nil
}

type storeRecorder struct {
	saved []core.Order
}

func (s *storeRecorder) SaveOrder(order *core.Order) error {
	s.saved = append(s.saved, *order)
	return nil
}

type journalRecorder struct {
	appended []core.Order
}

func (j *journalRecorder) Append(order core.Order) error {
	j.appended = append(j.appended, order)
	return nil
}

func marketInfo(id uint64, code, marketType string) core.MarketInfo {
	info := core.MarketInfo{
		MarketID:      id,
		MarketCode:    code,
		Type:          marketType,
		ReferencePair: "BTC-USDT",
		Factor:        100,
		QtyFactor:     1,
		Tick:          1,
	}
	info.Normalize("")
	return info
}

func limitOrder(id, marketID uint64, side core.Side, price int64, qty uint64) core.Order {
	return core.Order{
		OrderID:         id,
		AccountID:       100 + id,
		MarketID:        marketID,
		Side:            side,
		Type:            core.TypeLimit,
		TimeCondition:   core.GTC,
		Action:          core.ActionNew,
		Price:           price,
		Quantity:        qty,
		DisplayQuantity: qty,
		RemainQuantity:  qty,
	}
}

func newTestGroup(t *testing.T) (*Group, *messaging.MockSender, *messaging.MockSender, *archiveRecorder, *journalRecorder) {
	t.Helper()

	orders := messaging.NewMockSender()
	books := messaging.NewMockSender()
	archive := &archiveRecorder{}
	journal := &journalRecorder{}

	infos := []core.MarketInfo{
		marketInfo(1, "BTC-USDT-SWAP", core.MarketPerp),
		marketInfo(3, "BTC-USDT-SPR-240927", core.MarketSpread),
		marketInfo(4, "BTC-USDT-240927", core.MarketFuture),
	}
	spreadLegs := map[uint64]uint64{3: 4}

	g := NewGroup("BTC-USDT", infos, spreadLegs, Deps{
		Orders:  orders,
		Books:   books,
		Archive: archive,
		Journal: journal,
		Depth:   10,
	}, zerolog.Nop())
	return g, orders, books, archive, journal
}

func TestGroupImpliedMatchAcrossLegs(t *testing.T) {
	g, orders, books, archive, _ := newTestGroup(t)
	g.Start()

	g.Submit(limitOrder(1, 3, core.Sell, -50, 10))
	g.Submit(limitOrder(2, 1, core.Sell, 1000, 8))
	g.Submit(limitOrder(3, 4, core.Buy, 950, 8))
	g.Close()

	fills := orders.Fills()
	require.Len(t, fills, 3)
	assert.Equal(t, uint64(3), fills[0].OrderID)
	assert.Equal(t, core.StatusFilled, fills[0].Status)
	assert.Equal(t, int64(950), fills[0].LastMatchPrice)
	assert.Equal(t, fills[1].MatchedID, fills[2].MatchedID)

	// Leg books consumed through the implied fill.
	assert.Equal(t, uint64(2), g.Market(3).Engine().SelfBestAsk().Quantity)
	assert.True(t, g.Market(1).Engine().SelfBestAsk().Empty())

	// The fill batch also went to the archive.
	require.Len(t, archive.batches, 1)
	assert.Len(t, archive.batches[0], 3)

	// Every touched market republished its display book.
	assert.NotEmpty(t, books.Snapshots)
	assert.NotEmpty(t, books.Quotes)
}

func TestGroupJournalsInboundOrders(t *testing.T) {
	g, _, _, _, journal := newTestGroup(t)
	g.Start()

	g.Submit(limitOrder(1, 1, core.Sell, 1000, 5))
	g.Submit(core.Order{OrderID: 1, MarketID: 1, Action: core.ActionCancel})
	g.Close()

	require.Len(t, journal.appended, 2)
	assert.Equal(t, core.ActionNew, journal.appended[0].Action)
	assert.Equal(t, core.ActionCancel, journal.appended[1].Action)
}

func TestGroupRejectsEmptyOrder(t *testing.T) {
	g, orders, _, _, _ := newTestGroup(t)
	g.Start()

	g.Submit(core.Order{
		OrderID:       1,
		MarketID:      1,
		Side:          core.Buy,
		Type:          core.TypeLimit,
		TimeCondition: core.GTC,
		Action:        core.ActionNew,
		Price:         1000,
	})
	g.Close()

	// The order comes back rejected instead of vanishing.
	require.Len(t, orders.Orders, 1)
	assert.Equal(t, core.StatusRejectQuantityAndAmountZero, orders.Orders[0].Status)
	assert.Equal(t, 0, g.Market(1).OrdersCount())
}

func TestGroupRejectsLimitOrderAtMarketPrice(t *testing.T) {
	g, orders, _, _, _ := newTestGroup(t)
	g.Start()

	g.Submit(limitOrder(1, 1, core.Sell, 1000, 5))
	g.Submit(limitOrder(2, 1, core.Buy, core.MaxPrice, 5))
	g.Close()

	// Rejected before matching: no fills, nothing rests, the ask survives.
	assert.Empty(t, orders.Fills())
	last := orders.Orders[len(orders.Orders)-1]
	assert.Equal(t, uint64(2), last.OrderID)
	assert.Equal(t, core.StatusRejectLimitOrderWithMarketPrice, last.Status)
	assert.Equal(t, uint64(5), g.Market(1).Engine().SelfBestAsk().Quantity)
	assert.Equal(t, 1, g.Market(1).Engine().OrdersCount())
}

func TestGroupRejectsMalformedStops(t *testing.T) {
	g, orders, _, _, _ := newTestGroup(t)
	g.Start()

	noCondition := limitOrder(1, 1, core.Buy, 1005, 5)
	noCondition.Type = core.TypeStopLimit
	noCondition.TriggerPrice = 1000
	noCondition.StopCondition = core.StopNone
	g.Submit(noCondition)

	noTrigger := limitOrder(2, 1, core.Buy, 1005, 5)
	noTrigger.Type = core.TypeStopLimit
	noTrigger.TriggerPrice = core.MaxPrice
	noTrigger.StopCondition = core.StopGreaterEqual
	g.Submit(noTrigger)
	g.Close()

	require.Len(t, orders.Orders, 2)
	assert.Equal(t, core.StatusRejectStopConditionIsNone, orders.Orders[0].Status)
	assert.Equal(t, core.StatusRejectStopTriggerPriceIsNone, orders.Orders[1].Status)
	assert.Equal(t, 0, g.Market(1).OrdersCount())
}

func TestGroupStopOrderLifecycle(t *testing.T) {
	g, orders, _, _, _ := newTestGroup(t)
	g.Start()

	stop := limitOrder(1, 1, core.Buy, 1005, 5)
	stop.Type = core.TypeStopLimit
	stop.TriggerPrice = 1000
	stop.StopCondition = core.StopGreaterEqual
	stop.TriggerType = core.TriggerMarkPrice
	g.Submit(stop)

	g.SubmitPrice(messaging.PriceUpdate{MarketID: 1, Price: 999, Kind: messaging.PriceKindMark})
	g.SubmitPrice(messaging.PriceUpdate{MarketID: 1, Price: 1000, Kind: messaging.PriceKindMark})
	g.Close()

	// Parked as OPEN, then re-announced when released into the book.
	require.GreaterOrEqual(t, len(orders.Orders), 2)
	assert.Equal(t, core.StatusOpen, orders.Orders[0].Status)
	last := orders.Orders[len(orders.Orders)-1]
	assert.Equal(t, core.TypeLimit, last.Type)
	assert.True(t, last.IsTriggered)
	assert.Equal(t, 1, g.Market(1).Engine().OrdersCount())
}

func TestGroupStoresParkedTriggers(t *testing.T) {
	orders := messaging.NewMockSender()
	store := &storeRecorder{}
	infos := []core.MarketInfo{marketInfo(1, "BTC-USDT-SWAP", core.MarketPerp)}
	g := NewGroup("BTC-USDT", infos, nil, Deps{Orders: orders, Store: store}, zerolog.Nop())
	g.Start()

	stop := limitOrder(1, 1, core.Sell, 95, 5)
	stop.Type = core.TypeStopMarket
	stop.TriggerPrice = 98
	stop.StopCondition = core.StopLessEqual
	stop.TriggerType = core.TriggerLastPrice
	g.Submit(stop)
	g.Close()

	require.Len(t, store.saved, 1)
	assert.Equal(t, uint64(1), store.saved[0].OrderID)
}

func TestGroupRecoveryIsSilent(t *testing.T) {
	g, orders, books, _, journal := newTestGroup(t)

	g.beginRecovery()
	g.replayOrder(limitOrder(1, 1, core.Sell, 1000, 5))
	g.replayOrder(limitOrder(2, 1, core.Sell, 1001, 3))
	g.finishRecovery()

	assert.Empty(t, orders.Orders)
	assert.Empty(t, orders.Batches)
	assert.Empty(t, books.Snapshots)
	assert.Empty(t, journal.appended)
	assert.Equal(t, 2, g.Market(1).Engine().OrdersCount())

	// The rebuilt book matches normally once recovery is over.
	g.Start()
	g.Submit(limitOrder(3, 1, core.Buy, 1000, 5))
	g.Close()
	require.Len(t, orders.Fills(), 2)
}

func TestGroupPerpMarkPriceFansOut(t *testing.T) {
	orders := messaging.NewMockSender()
	infos := []core.MarketInfo{
		marketInfo(1, "BTC-USDT-SWAP", core.MarketPerp),
		marketInfo(2, "BTC-USDT-REPO", core.MarketRepo),
	}
	g := NewGroup("BTC-USDT", infos, nil, Deps{Orders: orders}, zerolog.Nop())
	g.Start()
	g.SubmitPrice(messaging.PriceUpdate{MarketID: 1, Price: 50000, Kind: messaging.PriceKindMark})
	g.Close()
	// No orders resting, the tick must simply not fire or crash anything.
	assert.Empty(t, orders.Orders)
}
