package core

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ImpliedSource is the engine's view of an implied liquidity provider. The
// best quotes it reports are already clamped one tick behind the real best
// quote of the out market, which is passed in by the caller.
type ImpliedSource interface {
	BestAsk(realBestBid BookItem) BookItem
	BestBid(realBestAsk BookItem) BookItem
	AskMatchableAmount(limitPrice int64, realBestBid BookItem) uint64
	BidMatchableAmount(limitPrice int64, realBestAsk BookItem) uint64
	AskDisplayBook(dst map[int64]uint64, size int, realBestBid BookItem)
	BidDisplayBook(dst map[int64]uint64, size int, realBestAsk BookItem)
	// MatchOrder executes up to quantity of the taker against the two legs
	// at the implied price and returns the quantity left unmatched.
	MatchOrder(batch *[]Order, taker *Order, price int64, quantity uint64, groupCount int, hasRepo bool) uint64
	SetTick(tick int64)
	RefreshMakerFees()
}

// Engine matches orders for a single market. It is driven by exactly one
// writer goroutine per reference pair; the mutex only shields concurrent
// readers (market data, impliers of sibling markets).
type Engine struct {
	mu   sync.RWMutex
	info MarketInfo
	cb   Callbacks
	ids  IDGen
	book *Book
	log  zerolog.Logger

	impliers []ImpliedSource

	// Identities of the sibling markets used for repo leg pricing.
	perpMarketID uint64
	repoMarketID uint64

	perpMarkMu    sync.Mutex
	perpMarkPrice int64
}

// NewEngine creates an engine for the given market.
func NewEngine(info MarketInfo, cb Callbacks, ids IDGen, logger zerolog.Logger) *Engine {
	info.Normalize("")
	return &Engine{
		info: info,
		cb:   cb,
		ids:  ids,
		book: NewBook(),
		log:  logger.With().Str("market", info.MarketCode).Logger(),
	}
}

// AddImplier attaches an implied liquidity source.
func (e *Engine) AddImplier(im ImpliedSource) {
	im.SetTick(e.info.Tick)
	e.impliers = append(e.impliers, im)
}

// SetSiblingMarkets tells the engine which sibling markets price repo legs.
func (e *Engine) SetSiblingMarkets(perpMarketID, repoMarketID uint64) {
	e.perpMarketID = perpMarketID
	e.repoMarketID = repoMarketID
}

// SetPerpMarkPrice records the latest perp mark price, used as the second
// leg price of direct repo fills.
func (e *Engine) SetPerpMarkPrice(price int64) {
	e.perpMarkMu.Lock()
	e.perpMarkPrice = price
	e.perpMarkMu.Unlock()
}

func (e *Engine) getPerpMarkPrice() int64 {
	e.perpMarkMu.Lock()
	defer e.perpMarkMu.Unlock()
	return e.perpMarkPrice
}

// MarketInfo returns the static market parameters.
func (e *Engine) MarketInfo() MarketInfo { return e.info }

// MarketCode returns the market code.
func (e *Engine) MarketCode() string { return e.info.MarketCode }

// MakerFee returns the maker fee in pips.
func (e *Engine) MakerFee() int64 { return e.info.MakerFee }

// Factor returns the price scale of the market.
func (e *Engine) Factor() uint64 { return e.info.Factor }

// OrdersCount returns the number of resting orders.
func (e *Engine) OrdersCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.book.Len()
}

func nowMillis() uint64 { return uint64(time.Now().UnixMilli()) }

// HandleOrder processes one inbound order. Must only be called from the
// writer goroutine of the reference pair.
func (e *Engine) HandleOrder(order *Order) {
	if order.TimeCondition == Auction {
		e.preprocessAuction(order)
		if order.Status == StatusCanceledByNoAuction {
			return
		}
	}
	switch order.Action {
	case ActionNew:
		e.handleNewOrder(order)
	case ActionAmend:
		e.handleAmendOrder(order)
	case ActionCancel:
		e.handleCancelOrder(order)
	case ActionRecovery:
		order.Action = ActionNew
		e.saveToSearchOrder(*order)
	default:
		e.log.Error().Str("action", string(order.Action)).Msg("order action is error")
	}
}

// preprocessAuction cancels every resting order of the auction source,
// folds their quantity into the auction order and prices it at the bound.
func (e *Engine) preprocessAuction(order *Order) {
	var quantity uint64
	var victims []Order
	for _, o := range e.book.orders {
		if o.Source == order.Source {
			victims = append(victims, *o)
		}
	}
	for i := range victims {
		old := victims[i]
		order.Side = old.Side
		quantity += old.RemainQuantity
		old.Status = StatusCanceledByPreAuction
		e.cb.PulsarOrder(old)

		gone := old
		gone.RemainQuantity = 0
		e.updateBook(gone, victims[i])
	}
	order.Quantity = quantity
	order.RemainQuantity = quantity
	order.DisplayQuantity = quantity
	if order.Side == Buy {
		order.Price = order.UpperBound
	} else {
		order.Price = order.LowerBound
	}
	if quantity == 0 {
		order.Status = StatusCanceledByNoAuction
		e.cb.PulsarOrder(*order)
	}
}

func (e *Engine) handleNewOrder(order *Order) {
	if order.TimeCondition == FOK && order.Amount == 0 {
		bestAsk := e.BestAsk(nil)
		bestBid := e.BestBid(&bestAsk)

		var amount uint64
		if order.Side == Buy {
			amount = e.askMatchableAmount(order)
			for _, im := range e.impliers {
				amount += im.AskMatchableAmount(order.Price, bestBid)
			}
		} else {
			amount = e.bidMatchableAmount(order)
			for _, im := range e.impliers {
				amount += im.BidMatchableAmount(order.Price, bestAsk)
			}
		}
		if amount < order.Quantity {
			order.Status = StatusCanceledByFOK
			e.cb.PulsarOrder(*order)
			return
		}
	}

	if order.TimeCondition == MakerOnly || order.TimeCondition == MakerOnlyReprice {
		bestAsk := e.BestAsk(nil)
		bestBid := e.BestBid(&bestAsk)

		if order.Side == Buy {
			if bestAsk.Price <= order.Price && bestAsk.Quantity > 0 {
				if order.TimeCondition == MakerOnly {
					order.Status = StatusCanceledByMakerOnly
					e.cb.PulsarOrder(*order)
					return
				}
				order.Price = bestAsk.Price - e.info.Tick
			}
		} else {
			if bestBid.Price >= order.Price && bestBid.Quantity > 0 {
				if order.TimeCondition == MakerOnly {
					order.Status = StatusCanceledByMakerOnly
					e.cb.PulsarOrder(*order)
					return
				}
				order.Price = bestBid.Price + e.info.Tick
			}
		}
		e.saveToSearchOrder(*order)
		e.cb.PulsarOrder(*order)
		return
	}

	var matched []Order      // fills of this market
	var thirdMatched []Order // fills booked on the implied legs
	initRemainQuantity := order.RemainQuantity

	var matchableQuantity uint64
	if order.Amount > 0 {
		matchableQuantity = e.amountToMatchableQuantity(order.RemainAmount, order.Side)
		if matchableQuantity == 0 {
			order.Status = StatusCanceledAllByIOC
			e.cb.PulsarOrder(*order)
			return
		}
	} else {
		matchableQuantity = order.RemainQuantity
	}

	isSTP := false
	for matchableQuantity > 0 {
		bestAsk := e.BestAsk(nil)
		bestBid := e.BestBid(&bestAsk)

		var best BookItem
		var implier ImpliedSource
		var matchQuantity uint64

		makerLevel := e.bestLevel(order.Side.Opposite())
		if makerLevel != nil && !isSTP {
			best = makerLevel.item
		}
		if order.Side == Buy {
			for _, im := range e.impliers {
				implied := im.BestAsk(bestBid)
				if best.Quantity == 0 || (best.Price > implied.Price && implied.Quantity != 0) {
					best = implied
					implier = im
				}
			}
			if best.Quantity > 0 && order.Price >= best.Price {
				matchQuantity = minQty(matchableQuantity, best.Quantity)
			}
		} else {
			for _, im := range e.impliers {
				implied := im.BestBid(bestAsk)
				if best.Quantity == 0 || (best.Price < implied.Price && implied.Quantity != 0) {
					best = implied
					implier = im
				}
			}
			if best.Quantity > 0 && order.Price <= best.Price {
				matchQuantity = minQty(matchableQuantity, best.Quantity)
			}
		}
		if matchQuantity == 0 {
			break
		}

		if implier == nil {
			if stpDone := e.matchAgainstBook(order, best, &matchQuantity, &matchableQuantity, &matched, &thirdMatched, &isSTP); stpDone {
				return
			}
		} else {
			batch := &thirdMatched
			if order.TimeCondition == Auction {
				batch = &matched
			}
			remaining := implier.MatchOrder(batch, order, best.Price, matchQuantity, e.info.OrderGroupCount, e.info.IsRepo())
			matchableQuantity -= matchQuantity - remaining
			if remaining == matchQuantity {
				e.log.Error().Msg("implied match made no progress")
				break
			}
			if order.TimeCondition != Auction && len(thirdMatched) >= e.info.OrderGroupCount {
				e.cb.PulsarOrderList(thirdMatched)
				thirdMatched = thirdMatched[:0]
			}
		}

		if order.Amount > 0 {
			matchableQuantity = e.amountToMatchableQuantity(order.RemainAmount, order.Side)
		}
		if order.TimeCondition != Auction {
			if len(matched) >= e.info.OrderGroupCount {
				e.cb.PulsarOrderList(matched)
				matched = matched[:0]
			}
			if len(thirdMatched) >= e.info.OrderGroupCount {
				e.cb.PulsarOrderList(thirdMatched)
				thirdMatched = thirdMatched[:0]
			}
		}
	}

	if len(matched) > 0 {
		if order.TimeCondition == Auction {
			e.applyAuctionClearingPrice(order, matched)
		}
		e.cb.PulsarOrderList(matched)
		matched = matched[:0]
	}
	if len(thirdMatched) > 0 {
		e.cb.PulsarOrderList(thirdMatched)
		thirdMatched = thirdMatched[:0]
	}

	if order.RemainQuantity > 0 || order.RemainAmount > 0 {
		order.Timestamp = nowMillis()
		switch {
		case order.TimeCondition == IOC:
			if order.Quantity > 0 {
				if order.Quantity == order.RemainQuantity {
					order.Status = StatusCanceledAllByIOC
				} else {
					order.Status = StatusCanceledPartialByIOC
				}
			}
			if order.Amount > 0 {
				if order.Amount == order.RemainAmount {
					order.Status = StatusCanceledAllByIOC
				} else {
					order.Status = StatusCanceledPartialByIOC
				}
			}
			e.cb.PulsarOrder(*order)
		case order.TimeCondition == Auction:
			if order.Quantity == order.RemainQuantity {
				order.Status = StatusCanceledAllByAuction
			} else {
				order.Status = StatusCanceledPartialByAuction
			}
			e.cb.PulsarOrder(*order)
		case order.Type.IsMarket():
			nothing := (order.Quantity > 0 && order.Quantity == order.RemainQuantity) ||
				(order.Amount > 0 && order.Amount == order.RemainAmount)
			if nothing {
				order.Status = StatusCanceledByMarketNothingMatch
			} else {
				order.Status = StatusCanceledByMarketNotFullMatched
			}
			e.cb.PulsarOrder(*order)
		default:
			order.Status = StatusOpen
			e.saveToSearchOrder(*order)
			if order.Quantity == order.RemainQuantity || initRemainQuantity == order.RemainQuantity {
				e.cb.PulsarOrder(*order)
			}
		}
	}
}

// matchAgainstBook consumes the best level of the real book. Returns true
// when self trade protection canceled the taker and the caller must stop
// processing entirely.
func (e *Engine) matchAgainstBook(order *Order, best BookItem, matchQuantity, matchableQuantity *uint64, matched, thirdMatched *[]Order, isSTP *bool) bool {
	for *matchQuantity > 0 {
		level := e.bestLevel(order.Side.Opposite())
		if level == nil || level.item.Price != best.Price {
			return false
		}
		matchID := e.ids.NextMatchID()
		elem := level.queue.Front()
		if elem == nil {
			e.dropEmptyBestLevels()
			return false
		}
		maker := elem.Value.(*Order)

		if order.STP != STPNone && order.AccountID == maker.AccountID {
			switch order.STP {
			case STPExpireTaker, STPExpireBoth:
				if order.TimeCondition == FOK {
					// The FOK pre-check already counted this liquidity, so a
					// self match found during the loop is skipped instead of
					// canceling the whole order.
					*isSTP = true
					for elem != nil && order.AccountID == maker.AccountID {
						elem = elem.Next()
						if elem != nil {
							maker = elem.Value.(*Order)
						}
					}
					if elem == nil || order.AccountID == maker.AccountID {
						return false
					}
				} else {
					order.Status = StatusCanceledBySelfTradeProtection
					e.cb.PulsarOrder(*order)
					if order.STP == STPExpireBoth {
						e.cancelMakerBySTP(maker)
					}
					if len(*matched) > 0 {
						e.cb.PulsarOrderList(*matched)
						*matched = (*matched)[:0]
					}
					if len(*thirdMatched) > 0 {
						e.cb.PulsarOrderList(*thirdMatched)
						*thirdMatched = (*thirdMatched)[:0]
					}
					return true
				}
			case STPExpireMaker:
				e.cancelMakerBySTP(maker)
				continue
			}
		}

		quantity := maker.MatchableQuantity()
		fill := minQty(*matchQuantity, quantity)
		if fill == 0 {
			e.log.Error().Uint64("order_id", maker.OrderID).Msg("order book is error")
			if maker.RemainQuantity == 0 {
				gone := *maker
				e.updateBook(gone, gone)
			}
			return false
		}
		e.MatchFill(matched, order, maker, best.Price, fill, matchID, nil, true, e.info.IsRepo())
		*matchQuantity -= fill
		*matchableQuantity -= fill

		if order.TimeCondition != Auction && len(*matched) >= e.info.OrderGroupCount {
			e.cb.PulsarOrderList(*matched)
			*matched = (*matched)[:0]
		}
	}
	return false
}

func (e *Engine) cancelMakerBySTP(maker *Order) {
	canceled := *maker
	canceled.Status = StatusCanceledBySelfTradeProtection
	e.cb.PulsarOrder(canceled)
	gone := canceled
	gone.RemainQuantity = 0
	e.updateBook(gone, *maker)
}

// applyAuctionClearingPrice rewrites every auction fill to the uniform
// clearing price derived from the last fill and the auction bounds.
func (e *Engine) applyAuctionClearingPrice(order *Order, matched []Order) {
	lastMatchPrice := matched[len(matched)-1].LastMatchPrice
	if order.Side == Buy {
		if lastMatchPrice < 0 {
			lastMatchPrice = 0
		}
		if order.RemainQuantity != 0 {
			lastMatchPrice = order.UpperBound
		}
	} else {
		if lastMatchPrice > 0 {
			lastMatchPrice = 0
		}
		if order.RemainQuantity != 0 {
			lastMatchPrice = order.LowerBound
		}
	}
	for i := range matched {
		matched[i].LastMatchPrice = lastMatchPrice
	}
	order.LastMatchPrice = lastMatchPrice
}

func (e *Engine) handleCancelOrder(order *Order) {
	if order.OrderID != 0 {
		old, ok := e.book.Find(order.OrderID)
		if !ok {
			order.RemainQuantity = 0
			order.Status = StatusRejectCancelOrderIDNotFound
			order.Timestamp = nowMillis()
			e.cb.PulsarOrder(*order)
			return
		}
		old.Action = order.Action
		old.Source = order.Source
		old.Status = StatusCanceledByUser
		old.Tag = order.Tag
		oldCopy := *old
		*order = oldCopy
		order.Timestamp = nowMillis()

		gone := oldCopy
		gone.RemainQuantity = 0
		e.updateBook(gone, oldCopy)
		e.cb.PulsarOrder(*order)
		return
	}
	if order.AccountID != 0 {
		var victims []Order
		for _, o := range e.book.orders {
			if o.AccountID == order.AccountID &&
				(order.ClientOrderID == 0 || order.ClientOrderID == o.ClientOrderID) {
				victims = append(victims, *o)
			}
		}
		for i := range victims {
			gone := victims[i]
			gone.RemainQuantity = 0
			e.updateBook(gone, victims[i])
		}
		return
	}
	e.ClearOrders()
}

func (e *Engine) handleAmendOrder(order *Order) {
	old, ok := e.book.Find(order.OrderID)
	if !ok {
		order.RemainQuantity = 0
		order.Status = StatusRejectAmendOrderIDNotFound
		order.Timestamp = nowMillis()
		e.cb.PulsarOrder(*order)
		return
	}
	oldCopy := *old

	filled := oldCopy.Quantity - oldCopy.RemainQuantity
	if order.Quantity <= filled {
		oldCopy.Status = StatusCanceledByAmend
		gone := oldCopy
		gone.RemainQuantity = 0
		e.updateBook(gone, oldCopy)
		e.cb.PulsarOrder(gone)
		return
	}
	order.RemainQuantity = order.Quantity - filled
	order.IsTriggered = oldCopy.IsTriggered

	if oldCopy.CanAmend(order) {
		amended := oldCopy
		amended.Price = order.Price
		amended.TriggerPrice = order.TriggerPrice
		amended.Quantity = order.Quantity
		amended.DisplayQuantity = order.DisplayQuantity
		amended.RemainQuantity = order.RemainQuantity
		amended.Amount = order.Amount
		amended.Status = StatusOpen
		amended.Tag = order.Tag
		*order = amended
		order.Action = ActionAmend
		order.Timestamp = nowMillis()
		e.cb.PulsarOrder(*order)
		e.updateBook(amended, oldCopy)
		return
	}

	// Incompatible amend: cancel and resubmit, losing queue priority.
	order.ClientOrderID = oldCopy.ClientOrderID
	order.Action = ActionAmend
	order.LastMatchedOrderID = oldCopy.LastMatchedOrderID
	order.LastMatchedOrder2 = oldCopy.LastMatchedOrder2
	order.Source = oldCopy.Source

	oldCopy.Status = StatusCanceledByAmend
	oldCopy.Tag = order.Tag
	gone := oldCopy
	gone.RemainQuantity = 0
	e.updateBook(gone, oldCopy)

	e.handleNewOrder(order)
}

// saveToSearchOrder inserts the order into the arena and the book.
func (e *Engine) saveToSearchOrder(order Order) *Order {
	o, err := e.book.insert(order)
	if err != nil {
		e.log.Error().Uint64("order_id", order.OrderID).Msg("order existed")
		return nil
	}
	e.saveNewOrder(o)
	return o
}

func (e *Engine) saveNewOrder(o *Order) {
	e.mu.Lock()
	bestChanged := e.checkBestChange(o)
	o.SortID = e.ids.NextSortID()
	e.book.side(o.Side).getOrCreate(o.Price).add(o)
	e.mu.Unlock()
	if bestChanged {
		e.cb.BestOrderBookChange()
	}
}

// checkBestChange reports whether resting or removing an order at this price
// touches the top of the book. Caller holds the lock.
func (e *Engine) checkBestChange(o *Order) bool {
	best := e.book.side(o.Side).best()
	if best == nil {
		return true
	}
	if o.Side == Buy {
		return best.item.Price <= o.Price
	}
	return best.item.Price >= o.Price
}

// updateBook applies the transition oldOrder -> newOrder to the book. A
// newOrder with zero remaining quantity removes the order; a same-price
// shrink updates in place, re-stamping consumed iceberg slices; anything
// else removes and re-inserts at the back of the new level.
func (e *Engine) updateBook(newOrder, oldOrder Order) {
	e.mu.Lock()
	bestChanged := e.checkBestChange(&newOrder)
	side := e.book.side(newOrder.Side)
	level := side.level(oldOrder.Price)
	if level == nil {
		e.mu.Unlock()
		e.log.Error().Uint64("order_id", oldOrder.OrderID).Int64("price", oldOrder.Price).Msg("order not find in OrderBook")
		return
	}
	elem, ok := level.elems[oldOrder.SortID]
	if !ok {
		e.log.Error().Uint64("order_id", oldOrder.OrderID).Uint64("sort_id", oldOrder.SortID).Msg("order not find in OrderBook")
	} else {
		stored := elem.Value.(*Order)
		oldMatchable := oldOrder.MatchableQuantity()
		if newOrder.RemainQuantity == 0 {
			level.item.Quantity -= oldOrder.RemainQuantity
			level.item.DisplayQuantity -= oldMatchable
			level.remove(oldOrder.SortID)
			e.book.drop(oldOrder.OrderID)
		} else {
			newMatchable := newOrder.MatchableQuantity()
			if newOrder.Price == oldOrder.Price && newOrder.Quantity <= oldOrder.Quantity {
				level.item.Quantity -= oldOrder.RemainQuantity - newOrder.RemainQuantity
				level.item.DisplayQuantity -= oldMatchable - newMatchable
				*stored = newOrder
				if oldOrder.Quantity >= oldOrder.DisplayQuantity && newMatchable == newOrder.DisplayQuantity {
					// Iceberg slice consumed, requeue behind the level.
					level.requeue(stored, e.ids.NextSortID())
				}
			} else {
				level.item.Quantity -= oldOrder.RemainQuantity
				level.item.DisplayQuantity -= oldMatchable
				*stored = newOrder
				level.remove(oldOrder.SortID)
				stored.SortID = e.ids.NextSortID()
				side.getOrCreate(stored.Price).add(stored)
			}
		}
	}
	if level.queue.Len() == 0 {
		side.dropIfEmpty(level)
	} else if level.item.Quantity == 0 || level.item.DisplayQuantity == 0 {
		level.recompute()
	}
	e.mu.Unlock()
	if bestChanged {
		e.cb.BestOrderBookChange()
	}
}

// MatchFill books one fill between the taker and a resting maker. When the
// fill is one leg of an implied match, third carries the maker of the other
// leg and handleTaker tells whether the taker event is emitted here.
func (e *Engine) MatchFill(batch *[]Order, taker *Order, maker *Order, price int64, quantity uint64, matchID uint64, third *Order, handleTaker, hasRepo bool) {
	if maker == nil || quantity == 0 {
		e.log.Error().Uint64("quantity", quantity).Msg("match fill without maker or quantity")
		return
	}
	var thirdOrderID uint64
	var leg2Price int64
	if third != nil {
		thirdOrderID = third.OrderID
		if e.info.IsRepo() || hasRepo {
			switch e.perpMarketID {
			case taker.MarketID:
				leg2Price = price
			case maker.MarketID:
				leg2Price = maker.Price
			case third.MarketID:
				leg2Price = third.Price
			}
		}
	} else if e.info.IsRepo() || hasRepo {
		leg2Price = e.getPerpMarkPrice()
	}
	timestamp := nowMillis()

	if handleTaker {
		taker.LastMatchQuantity = quantity
		taker.LastMatchPrice = price
		taker.MatchedID = matchID
		taker.LastMatchedOrderID = maker.OrderID
		taker.LastMatchedOrder2 = thirdOrderID
		taker.MatchedType = Taker
		taker.Timestamp = timestamp
		if e.repoMarketID == taker.MarketID {
			taker.Leg2Price = leg2Price
		}
		if taker.Amount > 0 {
			notional := notionalOf(quantity, price, e.info.Factor)
			if notional < taker.RemainAmount {
				taker.RemainAmount -= notional
				taker.Status = StatusPartialFill
			} else {
				taker.RemainAmount = 0
				taker.Status = StatusFilled
			}
		} else {
			taker.RemainQuantity -= quantity
			if taker.RemainQuantity > 0 {
				taker.Status = StatusPartialFill
			} else {
				taker.Status = StatusFilled
				e.notifyBracket(taker)
			}
		}
		*batch = append(*batch, *taker)
	}

	makerFill := *maker
	makerFill.LastMatchQuantity = quantity
	makerFill.LastMatchPrice = maker.Price
	makerFill.RemainQuantity -= quantity
	makerFill.MatchedID = matchID
	makerFill.LastMatchedOrderID = taker.OrderID
	makerFill.LastMatchedOrder2 = thirdOrderID
	makerFill.MatchedType = Maker
	makerFill.Timestamp = timestamp
	if e.repoMarketID == makerFill.MarketID {
		makerFill.Leg2Price = leg2Price
	}
	if makerFill.RemainQuantity > 0 {
		makerFill.Status = StatusPartialFill
	} else {
		makerFill.Status = StatusFilled
		e.notifyBracket(&makerFill)
	}
	*batch = append(*batch, makerFill)
	e.updateBook(makerFill, *maker)
}

// notifyBracket forwards a filled bracket parent to the trigger manager so
// the attached children go live.
func (e *Engine) notifyBracket(o *Order) {
	if o.HasBracket() {
		bracket := *o
		bracket.Action = ActionTriggerBracket
		e.cb.EngineOrderToTrigger(bracket)
	}
}

// notionalOf computes quantity/factor*price the way the fills account it.
func notionalOf(quantity uint64, price int64, factor uint64) uint64 {
	n := float64(quantity) / float64(factor) * float64(price)
	if n <= 0 {
		return 0
	}
	return uint64(n)
}

// amountToMatchableQuantity converts a quote amount into the base quantity
// matchable at the current best price, rounded down to the increment.
func (e *Engine) amountToMatchableQuantity(amount uint64, side Side) uint64 {
	var best BookItem
	if side == Buy {
		best = e.BestAsk(nil)
	} else {
		best = e.BestBid(nil)
	}
	if best.Quantity == 0 || best.Price <= 0 {
		return 0
	}
	quantity := uint64(RoundDownTick(int64(float64(amount)/float64(best.Price)*float64(e.info.Factor)), int64(e.info.QtyIncrement)))
	for quantity > 0 && float64(amount) < float64(quantity)/float64(e.info.Factor)*float64(best.Price) {
		quantity -= e.info.QtyIncrement
	}
	return quantity
}

// askMatchableAmount sums the ask liquidity the order could take, honoring
// its limit price and self trade protection.
func (e *Engine) askMatchableAmount(order *Order) uint64 {
	return e.matchableAmount(order, e.book.asks)
}

// bidMatchableAmount mirrors askMatchableAmount for the bid side.
func (e *Engine) bidMatchableAmount(order *Order) uint64 {
	return e.matchableAmount(order, e.book.bids)
}

func (e *Engine) matchableAmount(order *Order, side *bookSide) uint64 {
	var amount uint64
	side.ascend(func(l *priceLevel) bool {
		within := order.Type.IsMarket()
		if !within {
			if side.side == Sell {
				within = l.item.Price <= order.Price
			} else {
				within = l.item.Price >= order.Price
			}
		}
		if !within {
			return true
		}
		if order.STP == STPNone {
			amount += l.item.Quantity
			return true
		}
		for elem := l.queue.Front(); elem != nil; elem = elem.Next() {
			maker := elem.Value.(*Order)
			if order.AccountID == maker.AccountID {
				switch order.STP {
				case STPExpireTaker, STPExpireBoth:
					return false
				case STPExpireMaker:
					continue
				}
			}
			amount += maker.RemainQuantity
		}
		return true
	})
	return amount
}

// bestLevel returns the best level of the given side, nil when empty.
func (e *Engine) bestLevel(side Side) *priceLevel {
	return e.book.side(side).best()
}

// dropEmptyBestLevels clears best levels that lost their last order.
func (e *Engine) dropEmptyBestLevels() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if l := e.book.asks.best(); l != nil {
		e.book.asks.dropIfEmpty(l)
	}
	if l := e.book.bids.best(); l != nil {
		e.book.bids.dropIfEmpty(l)
	}
}

// SelfBestAsk returns the best ask of the real book.
func (e *Engine) SelfBestAsk() BookItem {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if l := e.book.asks.best(); l != nil {
		return l.item
	}
	return BookItem{}
}

// SelfBestBid returns the best bid of the real book.
func (e *Engine) SelfBestBid() BookItem {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if l := e.book.bids.best(); l != nil {
		return l.item
	}
	return BookItem{}
}

// BestAsk returns the best ask merged with implied liquidity. A strictly
// better implied price replaces the real quote, a tie adds quantities.
func (e *Engine) BestAsk(realBestBid *BookItem) BookItem {
	item := e.SelfBestAsk()
	bestBid := BookItem{}
	if realBestBid == nil {
		bestBid = e.SelfBestBid()
	} else {
		bestBid.Price = realBestBid.Price
		bestBid.Quantity = realBestBid.Quantity
	}
	for _, im := range e.impliers {
		implied := im.BestAsk(bestBid)
		if item.Quantity == 0 || (item.Price > implied.Price && implied.Quantity != 0) {
			item = implied
		} else if item.Price == implied.Price {
			item.Quantity += implied.Quantity
			item.DisplayQuantity += implied.DisplayQuantity
		}
	}
	return item
}

// BestBid returns the best bid merged with implied liquidity.
func (e *Engine) BestBid(realBestAsk *BookItem) BookItem {
	item := e.SelfBestBid()
	bestAsk := BookItem{}
	if realBestAsk == nil {
		bestAsk = e.SelfBestAsk()
	} else {
		bestAsk.Price = realBestAsk.Price
		bestAsk.Quantity = realBestAsk.Quantity
	}
	for _, im := range e.impliers {
		implied := im.BestBid(bestAsk)
		if item.Quantity == 0 || (item.Price < implied.Price && implied.Quantity != 0) {
			item = implied
		} else if item.Price == implied.Price {
			item.Quantity += implied.Quantity
			item.DisplayQuantity += implied.DisplayQuantity
		}
	}
	return item
}

// BestAskOrder returns the first order of the best ask level.
func (e *Engine) BestAskOrder() *Order {
	if l := e.book.asks.best(); l != nil {
		return l.front()
	}
	return nil
}

// BestBidOrder returns the first order of the best bid level.
func (e *Engine) BestBidOrder() *Order {
	if l := e.book.bids.best(); l != nil {
		return l.front()
	}
	return nil
}

// AskLevels walks the aggregated ask levels from best to worst.
func (e *Engine) AskLevels(fn func(BookItem) bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	e.book.asks.ascend(func(l *priceLevel) bool { return fn(l.item) })
}

// BidLevels walks the aggregated bid levels from best to worst.
func (e *Engine) BidLevels(fn func(BookItem) bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	e.book.bids.ascend(func(l *priceLevel) bool { return fn(l.item) })
}

// SelfDisplayAskBook fills dst with up to size ask levels of the real book.
func (e *Engine) SelfDisplayAskBook(dst map[int64]uint64, size int) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	n := 0
	e.book.asks.ascend(func(l *priceLevel) bool {
		if n >= size {
			return false
		}
		dst[l.item.Price] = l.item.DisplayQuantity
		n++
		return true
	})
}

// SelfDisplayBidBook fills dst with up to size bid levels of the real book.
func (e *Engine) SelfDisplayBidBook(dst map[int64]uint64, size int) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	n := 0
	e.book.bids.ascend(func(l *priceLevel) bool {
		if n >= size {
			return false
		}
		dst[l.item.Price] = l.item.DisplayQuantity
		n++
		return true
	})
}

// DisplayAskBook fills dst with the real levels overlaid with implied ones.
func (e *Engine) DisplayAskBook(dst map[int64]uint64, size, impliedSize int, realBestBid *BookItem) {
	e.SelfDisplayAskBook(dst, size)
	bestBid := BookItem{}
	if realBestBid == nil {
		bestBid = e.SelfBestBid()
	} else {
		bestBid.Price = realBestBid.Price
		bestBid.Quantity = realBestBid.Quantity
	}
	for _, im := range e.impliers {
		im.AskDisplayBook(dst, impliedSize, bestBid)
	}
}

// DisplayBidBook fills dst with the real levels overlaid with implied ones.
func (e *Engine) DisplayBidBook(dst map[int64]uint64, size, impliedSize int, realBestAsk *BookItem) {
	e.SelfDisplayBidBook(dst, size)
	bestAsk := BookItem{}
	if realBestAsk == nil {
		bestAsk = e.SelfBestAsk()
	} else {
		bestAsk.Price = realBestAsk.Price
		bestAsk.Quantity = realBestAsk.Quantity
	}
	for _, im := range e.impliers {
		im.BidDisplayBook(dst, impliedSize, bestAsk)
	}
}

// ClearOrders drops the whole book.
func (e *Engine) ClearOrders() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.book.clear()
}

func minQty(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
