package core

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder captures everything the engine publishes.
type recorder struct {
	NopCallbacks
	events    []Order
	batches   [][]Order
	toEngine  []Order
	toTrigger []Order
	bestMoves int
}

func (r *recorder) PulsarOrder(o Order) { r.events = append(r.events, o) }

func (r *recorder) PulsarOrderList(orders []Order) {
	batch := make([]Order, len(orders))
	copy(batch, orders)
	r.batches = append(r.batches, batch)
}

func (r *recorder) TriggerOrderToEngine(o Order) { r.toEngine = append(r.toEngine, o) }

func (r *recorder) EngineOrderToTrigger(o Order) { r.toTrigger = append(r.toTrigger, o) }

func (r *recorder) BestOrderBookChange() { r.bestMoves++ }

// fills flattens the published batches in order.
func (r *recorder) fills() []Order {
	var out []Order
	for _, b := range r.batches {
		out = append(out, b...)
	}
	return out
}

func (r *recorder) reset() {
	r.events = nil
	r.batches = nil
	r.toEngine = nil
	r.toTrigger = nil
}

func newTestEngine(rec *recorder) *Engine {
	info := MarketInfo{
		MarketID:   1,
		MarketCode: "BTC-USDT-SWAP",
		Type:       MarketPerp,
		Factor:     1,
		QtyFactor:  1,
		Tick:       1,
	}
	return NewEngine(info, rec, NewSeqIDGen(0, 0), zerolog.Nop())
}

func newOrder(id, account uint64, side Side, price int64, qty uint64) *Order {
	return &Order{
		OrderID:         id,
		AccountID:       account,
		MarketID:        1,
		Side:            side,
		Type:            TypeLimit,
		TimeCondition:   GTC,
		Action:          ActionNew,
		Price:           price,
		Quantity:        qty,
		DisplayQuantity: qty,
		RemainQuantity:  qty,
		Status:          StatusOpen,
	}
}

func TestEngineRestAndMatch(t *testing.T) {
	rec := &recorder{}
	e := newTestEngine(rec)

	e.HandleOrder(newOrder(1, 100, Sell, 100, 10))
	require.Len(t, rec.events, 1)
	assert.Equal(t, StatusOpen, rec.events[0].Status)
	assert.Equal(t, 1, e.OrdersCount())

	e.HandleOrder(newOrder(2, 200, Buy, 100, 10))
	fills := rec.fills()
	require.Len(t, fills, 2)

	taker, maker := fills[0], fills[1]
	assert.Equal(t, uint64(2), taker.OrderID)
	assert.Equal(t, Taker, taker.MatchedType)
	assert.Equal(t, StatusFilled, taker.Status)
	assert.Equal(t, int64(100), taker.LastMatchPrice)
	assert.Equal(t, uint64(1), taker.LastMatchedOrderID)

	assert.Equal(t, uint64(1), maker.OrderID)
	assert.Equal(t, Maker, maker.MatchedType)
	assert.Equal(t, StatusFilled, maker.Status)
	assert.Equal(t, taker.MatchedID, maker.MatchedID)

	assert.Equal(t, 0, e.OrdersCount())
}

func TestEnginePriceTimePriority(t *testing.T) {
	rec := &recorder{}
	e := newTestEngine(rec)

	e.HandleOrder(newOrder(1, 100, Sell, 100, 5))
	e.HandleOrder(newOrder(2, 101, Sell, 100, 5))
	e.HandleOrder(newOrder(3, 102, Sell, 99, 5))
	rec.reset()

	e.HandleOrder(newOrder(4, 200, Buy, 100, 15))

	var makers []uint64
	for _, f := range rec.fills() {
		if f.MatchedType == Maker {
			makers = append(makers, f.OrderID)
		}
	}
	assert.Equal(t, []uint64{3, 1, 2}, makers)
	assert.Equal(t, 0, e.OrdersCount())
}

func TestEngineIcebergRequeue(t *testing.T) {
	rec := &recorder{}
	e := newTestEngine(rec)

	iceberg := newOrder(1, 100, Sell, 100, 10)
	iceberg.DisplayQuantity = 3
	e.HandleOrder(iceberg)
	e.HandleOrder(newOrder(2, 101, Sell, 100, 5))
	rec.reset()

	// Consuming a full display slice moves the iceberg behind order 2.
	e.HandleOrder(newOrder(3, 200, Buy, 100, 3))
	rec.reset()

	e.HandleOrder(newOrder(4, 201, Buy, 100, 5))
	fills := rec.fills()
	require.Len(t, fills, 2)
	assert.Equal(t, uint64(2), fills[1].OrderID)

	resting, ok := e.book.Find(1)
	require.True(t, ok)
	assert.Equal(t, uint64(7), resting.RemainQuantity)
}

func TestEngineIOC(t *testing.T) {
	rec := &recorder{}
	e := newTestEngine(rec)

	e.HandleOrder(newOrder(1, 100, Sell, 100, 4))
	rec.reset()

	taker := newOrder(2, 200, Buy, 100, 10)
	taker.TimeCondition = IOC
	e.HandleOrder(taker)

	require.Len(t, rec.events, 1)
	assert.Equal(t, StatusCanceledPartialByIOC, rec.events[0].Status)
	assert.Equal(t, uint64(6), rec.events[0].RemainQuantity)
	assert.Len(t, rec.fills(), 2)
	assert.Equal(t, 0, e.OrdersCount())

	rec.reset()
	miss := newOrder(3, 200, Buy, 100, 10)
	miss.TimeCondition = IOC
	e.HandleOrder(miss)
	require.Len(t, rec.events, 1)
	assert.Equal(t, StatusCanceledAllByIOC, rec.events[0].Status)
}

func TestEngineFOK(t *testing.T) {
	rec := &recorder{}
	e := newTestEngine(rec)

	e.HandleOrder(newOrder(1, 100, Sell, 100, 4))
	rec.reset()

	short := newOrder(2, 200, Buy, 100, 10)
	short.TimeCondition = FOK
	e.HandleOrder(short)
	require.Len(t, rec.events, 1)
	assert.Equal(t, StatusCanceledByFOK, rec.events[0].Status)
	assert.Empty(t, rec.batches)
	assert.Equal(t, 1, e.OrdersCount())

	rec.reset()
	full := newOrder(3, 200, Buy, 100, 4)
	full.TimeCondition = FOK
	e.HandleOrder(full)
	fills := rec.fills()
	require.Len(t, fills, 2)
	assert.Equal(t, StatusFilled, fills[0].Status)
	assert.Equal(t, 0, e.OrdersCount())
}

func TestEngineMakerOnly(t *testing.T) {
	rec := &recorder{}
	e := newTestEngine(rec)

	e.HandleOrder(newOrder(1, 100, Sell, 100, 5))
	rec.reset()

	crossing := newOrder(2, 200, Buy, 100, 5)
	crossing.TimeCondition = MakerOnly
	e.HandleOrder(crossing)
	require.Len(t, rec.events, 1)
	assert.Equal(t, StatusCanceledByMakerOnly, rec.events[0].Status)
	assert.Equal(t, 1, e.OrdersCount())

	rec.reset()
	reprice := newOrder(3, 200, Buy, 100, 5)
	reprice.TimeCondition = MakerOnlyReprice
	e.HandleOrder(reprice)
	require.Len(t, rec.events, 1)
	assert.Equal(t, StatusOpen, rec.events[0].Status)
	assert.Equal(t, int64(99), rec.events[0].Price)
	assert.Equal(t, 2, e.OrdersCount())
	assert.Empty(t, rec.batches)
}

func TestEngineSTPExpireTaker(t *testing.T) {
	rec := &recorder{}
	e := newTestEngine(rec)

	e.HandleOrder(newOrder(1, 7, Sell, 100, 5))
	rec.reset()

	taker := newOrder(2, 7, Buy, 100, 5)
	taker.STP = STPExpireTaker
	e.HandleOrder(taker)

	require.Len(t, rec.events, 1)
	assert.Equal(t, StatusCanceledBySelfTradeProtection, rec.events[0].Status)
	assert.Equal(t, uint64(2), rec.events[0].OrderID)
	assert.Equal(t, 1, e.OrdersCount())
}

func TestEngineSTPExpireMaker(t *testing.T) {
	rec := &recorder{}
	e := newTestEngine(rec)

	e.HandleOrder(newOrder(1, 7, Sell, 100, 5))
	e.HandleOrder(newOrder(2, 8, Sell, 100, 5))
	rec.reset()

	taker := newOrder(3, 7, Buy, 100, 5)
	taker.STP = STPExpireMaker
	e.HandleOrder(taker)

	require.Len(t, rec.events, 1)
	assert.Equal(t, StatusCanceledBySelfTradeProtection, rec.events[0].Status)
	assert.Equal(t, uint64(1), rec.events[0].OrderID)

	fills := rec.fills()
	require.Len(t, fills, 2)
	assert.Equal(t, uint64(2), fills[1].OrderID)
	assert.Equal(t, 0, e.OrdersCount())
}

func TestEngineSTPExpireBoth(t *testing.T) {
	rec := &recorder{}
	e := newTestEngine(rec)

	e.HandleOrder(newOrder(1, 7, Sell, 100, 5))
	rec.reset()

	taker := newOrder(2, 7, Buy, 100, 5)
	taker.STP = STPExpireBoth
	e.HandleOrder(taker)

	require.Len(t, rec.events, 2)
	assert.Equal(t, uint64(2), rec.events[0].OrderID)
	assert.Equal(t, StatusCanceledBySelfTradeProtection, rec.events[0].Status)
	assert.Equal(t, uint64(1), rec.events[1].OrderID)
	assert.Equal(t, StatusCanceledBySelfTradeProtection, rec.events[1].Status)
	assert.Equal(t, 0, e.OrdersCount())
}

func TestEngineCancel(t *testing.T) {
	rec := &recorder{}
	e := newTestEngine(rec)

	e.HandleOrder(newOrder(1, 100, Buy, 99, 5))
	rec.reset()

	cancel := &Order{OrderID: 1, Action: ActionCancel}
	e.HandleOrder(cancel)
	require.Len(t, rec.events, 1)
	assert.Equal(t, StatusCanceledByUser, rec.events[0].Status)
	assert.Equal(t, uint64(5), rec.events[0].RemainQuantity)
	assert.Equal(t, 0, e.OrdersCount())

	rec.reset()
	e.HandleOrder(&Order{OrderID: 9, Action: ActionCancel})
	require.Len(t, rec.events, 1)
	assert.Equal(t, StatusRejectCancelOrderIDNotFound, rec.events[0].Status)
	assert.Equal(t, uint64(0), rec.events[0].RemainQuantity)
}

func TestEngineCancelAllByAccount(t *testing.T) {
	rec := &recorder{}
	e := newTestEngine(rec)

	e.HandleOrder(newOrder(1, 5, Buy, 99, 5))
	e.HandleOrder(newOrder(2, 5, Buy, 98, 5))
	e.HandleOrder(newOrder(3, 6, Buy, 97, 5))
	rec.reset()

	e.HandleOrder(&Order{AccountID: 5, Action: ActionCancel})
	assert.Equal(t, 1, e.OrdersCount())
	_, ok := e.book.Find(3)
	assert.True(t, ok)

	e.HandleOrder(&Order{Action: ActionCancel})
	assert.Equal(t, 0, e.OrdersCount())
}

func TestEngineAmendInPlace(t *testing.T) {
	rec := &recorder{}
	e := newTestEngine(rec)

	e.HandleOrder(newOrder(1, 100, Buy, 99, 10))
	rec.reset()

	amend := newOrder(1, 100, Buy, 99, 6)
	amend.Action = ActionAmend
	e.HandleOrder(amend)

	require.Len(t, rec.events, 1)
	assert.Equal(t, ActionAmend, rec.events[0].Action)
	assert.Equal(t, StatusOpen, rec.events[0].Status)
	assert.Equal(t, uint64(6), rec.events[0].RemainQuantity)

	resting, ok := e.book.Find(1)
	require.True(t, ok)
	assert.Equal(t, uint64(6), resting.Quantity)
}

func TestEngineAmendPriceMove(t *testing.T) {
	rec := &recorder{}
	e := newTestEngine(rec)

	e.HandleOrder(newOrder(1, 100, Buy, 99, 10))
	rec.reset()

	amend := newOrder(1, 100, Buy, 98, 10)
	amend.Action = ActionAmend
	e.HandleOrder(amend)

	resting, ok := e.book.Find(1)
	require.True(t, ok)
	assert.Equal(t, int64(98), resting.Price)
	require.Len(t, rec.events, 1)
	assert.Equal(t, StatusOpen, rec.events[0].Status)
	assert.Equal(t, ActionAmend, rec.events[0].Action)
}

func TestEngineAmendBelowFilled(t *testing.T) {
	rec := &recorder{}
	e := newTestEngine(rec)

	e.HandleOrder(newOrder(1, 100, Sell, 100, 10))
	e.HandleOrder(newOrder(2, 200, Buy, 100, 4))
	rec.reset()

	amend := newOrder(1, 100, Sell, 100, 4)
	amend.Action = ActionAmend
	e.HandleOrder(amend)

	require.Len(t, rec.events, 1)
	assert.Equal(t, StatusCanceledByAmend, rec.events[0].Status)
	assert.Equal(t, 0, e.OrdersCount())
}

func TestEngineAmendNotFound(t *testing.T) {
	rec := &recorder{}
	e := newTestEngine(rec)

	amend := newOrder(42, 100, Buy, 99, 10)
	amend.Action = ActionAmend
	e.HandleOrder(amend)

	require.Len(t, rec.events, 1)
	assert.Equal(t, StatusRejectAmendOrderIDNotFound, rec.events[0].Status)
}

func TestEngineMarketOrderRemainder(t *testing.T) {
	rec := &recorder{}
	e := newTestEngine(rec)

	e.HandleOrder(newOrder(1, 100, Sell, 100, 4))
	rec.reset()

	taker := newOrder(2, 200, Buy, MaxPrice, 10)
	taker.Type = TypeMarket
	e.HandleOrder(taker)
	require.Len(t, rec.events, 1)
	assert.Equal(t, StatusCanceledByMarketNotFullMatched, rec.events[0].Status)

	rec.reset()
	miss := newOrder(3, 200, Buy, MaxPrice, 10)
	miss.Type = TypeMarket
	e.HandleOrder(miss)
	require.Len(t, rec.events, 1)
	assert.Equal(t, StatusCanceledByMarketNothingMatch, rec.events[0].Status)
}

func TestEngineAmountOrder(t *testing.T) {
	rec := &recorder{}
	e := newTestEngine(rec)

	e.HandleOrder(newOrder(1, 100, Sell, 100, 5))
	rec.reset()

	taker := &Order{
		OrderID:       2,
		AccountID:     200,
		MarketID:      1,
		Side:          Buy,
		Type:          TypeMarket,
		TimeCondition: IOC,
		Action:        ActionNew,
		Price:         MaxPrice,
		Amount:        450,
		RemainAmount:  450,
	}
	e.HandleOrder(taker)

	fills := rec.fills()
	require.Len(t, fills, 2)
	assert.Equal(t, uint64(4), fills[0].LastMatchQuantity)
	assert.Equal(t, uint64(50), fills[0].RemainAmount)

	require.Len(t, rec.events, 1)
	assert.Equal(t, StatusCanceledPartialByIOC, rec.events[0].Status)
}

func TestEngineAuction(t *testing.T) {
	rec := &recorder{}
	e := newTestEngine(rec)

	bid1 := newOrder(1, 100, Buy, 100, 5)
	bid1.Source = 9
	bid2 := newOrder(2, 101, Buy, 99, 3)
	bid2.Source = 9
	e.HandleOrder(bid1)
	e.HandleOrder(bid2)
	e.HandleOrder(newOrder(3, 200, Sell, 105, 5))
	rec.reset()

	auction := &Order{
		OrderID:       4,
		AccountID:     300,
		MarketID:      1,
		Action:        ActionNew,
		TimeCondition: Auction,
		Source:        9,
		UpperBound:    110,
		LowerBound:    90,
	}
	e.HandleOrder(auction)

	var preCanceled int
	for _, ev := range rec.events {
		if ev.Status == StatusCanceledByPreAuction {
			preCanceled++
		}
	}
	assert.Equal(t, 2, preCanceled)
	assert.Equal(t, Buy, auction.Side)
	assert.Equal(t, uint64(8), auction.Quantity)

	// 5 of 8 filled, so every fill clears at the upper bound.
	fills := rec.fills()
	require.Len(t, fills, 2)
	for _, f := range fills {
		assert.Equal(t, int64(110), f.LastMatchPrice)
	}
	assert.Equal(t, StatusCanceledPartialByAuction, rec.events[len(rec.events)-1].Status)
}

func TestEngineAuctionNothingToCancel(t *testing.T) {
	rec := &recorder{}
	e := newTestEngine(rec)

	auction := &Order{
		OrderID:       1,
		MarketID:      1,
		Action:        ActionNew,
		TimeCondition: Auction,
		Source:        9,
		UpperBound:    110,
		LowerBound:    90,
	}
	e.HandleOrder(auction)
	require.Len(t, rec.events, 1)
	assert.Equal(t, StatusCanceledByNoAuction, rec.events[0].Status)
}

func TestEngineBracketNotify(t *testing.T) {
	rec := &recorder{}
	e := newTestEngine(rec)

	parent := newOrder(1, 100, Sell, 100, 5)
	parent.TakeProfitOrderID = 55
	parent.StopLossOrderID = 56
	e.HandleOrder(parent)
	rec.reset()

	e.HandleOrder(newOrder(2, 200, Buy, 100, 5))

	require.Len(t, rec.toTrigger, 1)
	assert.Equal(t, ActionTriggerBracket, rec.toTrigger[0].Action)
	assert.Equal(t, uint64(1), rec.toTrigger[0].OrderID)
	assert.Equal(t, uint64(55), rec.toTrigger[0].TakeProfitOrderID)
}

func TestEngineRecovery(t *testing.T) {
	rec := &recorder{}
	e := newTestEngine(rec)

	o := newOrder(1, 100, Buy, 99, 5)
	o.Action = ActionRecovery
	e.HandleOrder(o)

	assert.Empty(t, rec.events)
	assert.Equal(t, 1, e.OrdersCount())

	resting, ok := e.book.Find(1)
	require.True(t, ok)
	assert.Equal(t, ActionNew, resting.Action)
}

func TestEngineBestQuotes(t *testing.T) {
	rec := &recorder{}
	e := newTestEngine(rec)

	e.HandleOrder(newOrder(1, 100, Sell, 101, 4))
	e.HandleOrder(newOrder(2, 101, Sell, 103, 6))
	e.HandleOrder(newOrder(3, 102, Buy, 99, 5))

	ask := e.SelfBestAsk()
	assert.Equal(t, int64(101), ask.Price)
	assert.Equal(t, uint64(4), ask.Quantity)

	bid := e.SelfBestBid()
	assert.Equal(t, int64(99), bid.Price)

	dst := map[int64]uint64{}
	e.SelfDisplayAskBook(dst, 10)
	assert.Equal(t, map[int64]uint64{101: 4, 103: 6}, dst)

	short := map[int64]uint64{}
	e.SelfDisplayAskBook(short, 1)
	assert.Equal(t, map[int64]uint64{101: 4}, short)
}
