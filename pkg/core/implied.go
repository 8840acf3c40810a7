package core

import "math"

// ImpliedTopology names how two leg markets combine into an out market.
// The first leg is always the one whose side matches the implied side.
type ImpliedTopology int

const (
	// PerpRepoOutSpot implies spot from perp and repo, same-side legs.
	PerpRepoOutSpot ImpliedTopology = iota
	// SpreadPerpOutFutures implies futures from spread and perp, same-side legs.
	SpreadPerpOutFutures
	// FuturesSpreadOutPerp implies perp from futures and spread, opposite legs.
	FuturesSpreadOutPerp
	// FuturesPerpOutSpread implies spread from futures and perp, opposite legs.
	FuturesPerpOutSpread
	// SpotRepoOutPerp implies perp from spot and repo, opposite legs.
	SpotRepoOutPerp
	// SpotPerpOutRepo implies repo from spot and perp, opposite legs.
	SpotPerpOutRepo
)

func (t ImpliedTopology) String() string {
	switch t {
	case PerpRepoOutSpot:
		return "PERP_REPO_OUT_SPOT"
	case SpreadPerpOutFutures:
		return "SPREAD_PERP_OUT_FUTURES"
	case FuturesSpreadOutPerp:
		return "FUTURES_SPREAD_OUT_PERP"
	case FuturesPerpOutSpread:
		return "FUTURES_PERP_OUT_SPREAD"
	case SpotRepoOutPerp:
		return "SPOT_REPO_OUT_PERP"
	case SpotPerpOutRepo:
		return "SPOT_PERP_OUT_REPO"
	}
	return "UNKNOWN"
}

// leg2SameSide reports whether the second leg is read on the same side as
// the implied quote. The other topologies cross it.
func (t ImpliedTopology) leg2SameSide() bool {
	return t == PerpRepoOutSpot || t == SpreadPerpOutFutures
}

// LegEngine is the Implier's view of a leg market. *Engine satisfies it.
type LegEngine interface {
	SelfBestAsk() BookItem
	SelfBestBid() BookItem
	BestAskOrder() *Order
	BestBidOrder() *Order
	MakerFee() int64
	AskLevels(fn func(BookItem) bool)
	BidLevels(fn func(BookItem) bool)
	MatchFill(batch *[]Order, taker *Order, maker *Order, price int64, quantity uint64, matchID uint64, third *Order, handleTaker, hasRepo bool)
}

// Implier derives quotes for an out market from two leg markets and, when
// the out market's taker crosses them, executes the paired leg fills. It
// implements ImpliedSource for the out market's engine.
type Implier struct {
	leg1     LegEngine
	leg2     LegEngine
	topology ImpliedTopology
	tick     int64
	factor   uint64
	leg1Fee  int64
	leg2Fee  int64
	ids      IDGen
	cb       Callbacks
}

// NewImplier wires the two legs to the out market. Tick is the out market's
// tick, factor its price scale; both are used by the price transforms.
func NewImplier(leg1, leg2 LegEngine, topology ImpliedTopology, tick int64, factor uint64, ids IDGen, cb Callbacks) *Implier {
	im := &Implier{
		leg1:     leg1,
		leg2:     leg2,
		topology: topology,
		tick:     tick,
		factor:   factor,
		ids:      ids,
		cb:       cb,
	}
	im.RefreshMakerFees()
	return im
}

// ContainsLeg reports whether the engine is one of the legs.
func (im *Implier) ContainsLeg(leg LegEngine) bool {
	return leg == im.leg1 || leg == im.leg2
}

// SetTick updates the out market's tick.
func (im *Implier) SetTick(tick int64) { im.tick = tick }

// RefreshMakerFees re-reads the leg maker fees that price the transforms.
func (im *Implier) RefreshMakerFees() {
	im.leg1Fee = im.leg1.MakerFee()
	im.leg2Fee = im.leg2.MakerFee()
}

// askPrice maps the two leg prices to the implied ask, rounded up to tick.
func (im *Implier) askPrice(leg1Price, leg2Price int64) int64 {
	switch im.topology {
	case PerpRepoOutSpot:
		// perp ask * (1 + repo rate), rounded up to the next price unit,
		// plus the perp maker fee.
		raw := int64(math.Ceil(float64(leg1Price) * (float64(im.factor) + float64(leg2Price)) / float64(im.factor)))
		return RoundUpTick(raw+FeePips(leg1Price, im.leg1Fee), im.tick)
	case SpotRepoOutPerp:
		// spot ask discounted by the repo bid rate.
		raw := float64(leg1Price+FeePips(leg1Price, im.leg1Fee)) / ((float64(im.factor) + float64(leg2Price)) / float64(im.factor))
		return RoundUpTick(int64(raw), im.tick)
	case SpotPerpOutRepo:
		// the rate that reconciles the spot ask with the perp bid.
		raw := (float64(leg1Price+FeePips(leg1Price, im.leg1Fee)+FeePips(leg2Price, im.leg2Fee))/float64(leg2Price) - 1) * float64(im.factor)
		return RoundUpTick(int64(raw), im.tick)
	case SpreadPerpOutFutures:
		return RoundUpTick(leg1Price+leg2Price+FeePips(leg1Price, im.leg1Fee)+FeePips(leg2Price, im.leg2Fee), im.tick)
	case FuturesSpreadOutPerp, FuturesPerpOutSpread:
		return RoundUpTick(leg1Price-leg2Price+FeePips(leg1Price, im.leg1Fee)+FeePips(leg2Price, im.leg2Fee), im.tick)
	}
	return 0
}

// bidPrice mirrors askPrice, fees subtracted, rounded down to tick.
func (im *Implier) bidPrice(leg1Price, leg2Price int64) int64 {
	switch im.topology {
	case PerpRepoOutSpot:
		raw := float64(leg1Price)*(float64(im.factor)+float64(leg2Price))/float64(im.factor) - float64(FeePips(leg1Price, im.leg1Fee))
		return RoundDownTick(int64(raw), im.tick)
	case SpotRepoOutPerp:
		raw := float64(leg1Price-FeePips(leg1Price, im.leg1Fee)) / ((float64(im.factor) + float64(leg2Price)) / float64(im.factor))
		return RoundDownTick(int64(raw), im.tick)
	case SpotPerpOutRepo:
		raw := (float64(leg1Price-FeePips(leg1Price, im.leg1Fee)-FeePips(leg2Price, im.leg2Fee))/float64(leg2Price) - 1) * float64(im.factor)
		return RoundDownTick(int64(raw), im.tick)
	case SpreadPerpOutFutures:
		return RoundDownTick(leg1Price+leg2Price-FeePips(leg1Price, im.leg1Fee)-FeePips(leg2Price, im.leg2Fee), im.tick)
	case FuturesSpreadOutPerp, FuturesPerpOutSpread:
		return RoundDownTick(leg1Price-leg2Price-FeePips(leg1Price, im.leg1Fee)-FeePips(leg2Price, im.leg2Fee), im.tick)
	}
	return 0
}

// impliedQuote combines the two leg quotes. Empty when either leg is empty.
func impliedQuote(leg1, leg2 BookItem, priceFn func(int64, int64) int64) BookItem {
	var item BookItem
	if leg1.Quantity != 0 && leg2.Quantity != 0 {
		item.Quantity = minQty(leg1.Quantity, leg2.Quantity)
		item.DisplayQuantity = minQty(leg1.DisplayQuantity, leg2.DisplayQuantity)
		item.Price = priceFn(leg1.Price, leg2.Price)
	}
	return item
}

// BestAsk returns the implied best ask, held one tick above the out
// market's real best bid so the implied quote never crosses the book.
func (im *Implier) BestAsk(realBestBid BookItem) BookItem {
	leg1 := im.leg1.SelfBestAsk()
	var leg2 BookItem
	if im.topology.leg2SameSide() {
		leg2 = im.leg2.SelfBestAsk()
	} else {
		leg2 = im.leg2.SelfBestBid()
	}
	item := impliedQuote(leg1, leg2, im.askPrice)
	if item.Quantity > 0 && realBestBid.Quantity > 0 && item.Price <= realBestBid.Price {
		item.Price = realBestBid.Price + im.tick
	}
	return item
}

// BestBid returns the implied best bid, clamped one tick below the out
// market's real best ask.
func (im *Implier) BestBid(realBestAsk BookItem) BookItem {
	leg1 := im.leg1.SelfBestBid()
	var leg2 BookItem
	if im.topology.leg2SameSide() {
		leg2 = im.leg2.SelfBestBid()
	} else {
		leg2 = im.leg2.SelfBestAsk()
	}
	item := impliedQuote(leg1, leg2, im.bidPrice)
	if item.Quantity > 0 && realBestAsk.Quantity > 0 && item.Price >= realBestAsk.Price {
		item.Price = realBestAsk.Price - im.tick
	}
	return item
}

func collectLevels(walk func(func(BookItem) bool)) []BookItem {
	var out []BookItem
	walk(func(item BookItem) bool {
		out = append(out, item)
		return true
	})
	return out
}

// askLegLevels returns the leg levels backing the implied ask side, best
// price first.
func (im *Implier) askLegLevels() (leg1, leg2 []BookItem) {
	leg1 = collectLevels(im.leg1.AskLevels)
	if im.topology.leg2SameSide() {
		leg2 = collectLevels(im.leg2.AskLevels)
	} else {
		leg2 = collectLevels(im.leg2.BidLevels)
	}
	return leg1, leg2
}

// bidLegLevels mirrors askLegLevels for the implied bid side.
func (im *Implier) bidLegLevels() (leg1, leg2 []BookItem) {
	leg1 = collectLevels(im.leg1.BidLevels)
	if im.topology.leg2SameSide() {
		leg2 = collectLevels(im.leg2.BidLevels)
	} else {
		leg2 = collectLevels(im.leg2.AskLevels)
	}
	return leg1, leg2
}

// lockstepAmount walks both leg ladders in parallel, consuming the smaller
// head quantity each step, and sums what the implied price keeps within the
// limit. The clamp against the real best quote matches BestAsk/BestBid.
func (im *Implier) lockstepAmount(limitPrice int64, sell bool, best BookItem, leg1, leg2 []BookItem, priceFn func(int64, int64) int64) uint64 {
	var amount uint64
	i, j := 0, 0
	var q1, q2 uint64
	if i < len(leg1) && j < len(leg2) {
		q1 = leg1[i].Quantity
		q2 = leg2[j].Quantity
	}
	for i < len(leg1) && j < len(leg2) {
		quantity := minQty(q1, q2)
		if quantity == 0 {
			if q1 == 0 {
				i++
				if i < len(leg1) {
					q1 = leg1[i].Quantity
				}
			}
			if q2 == 0 {
				j++
				if j < len(leg2) {
					q2 = leg2[j].Quantity
				}
			}
			continue
		}
		price := priceFn(leg1[i].Price, leg2[j].Price)
		if sell {
			if best.Quantity > 0 && price <= best.Price {
				price = best.Price + im.tick
			}
			if price > limitPrice {
				break
			}
		} else {
			if best.Quantity > 0 && price >= best.Price {
				price = best.Price - im.tick
			}
			if price < limitPrice {
				break
			}
		}
		amount += quantity
		q1 -= quantity
		q2 -= quantity
		if q1 == 0 {
			i++
			if i < len(leg1) {
				q1 = leg1[i].Quantity
			}
		}
		if q2 == 0 {
			j++
			if j < len(leg2) {
				q2 = leg2[j].Quantity
			}
		}
	}
	return amount
}

// AskMatchableAmount sums the implied ask liquidity priced at or below the
// limit.
func (im *Implier) AskMatchableAmount(limitPrice int64, realBestBid BookItem) uint64 {
	leg1, leg2 := im.askLegLevels()
	return im.lockstepAmount(limitPrice, true, realBestBid, leg1, leg2, im.askPrice)
}

// BidMatchableAmount sums the implied bid liquidity priced at or above the
// limit.
func (im *Implier) BidMatchableAmount(limitPrice int64, realBestAsk BookItem) uint64 {
	leg1, leg2 := im.bidLegLevels()
	return im.lockstepAmount(limitPrice, false, realBestAsk, leg1, leg2, im.bidPrice)
}

// lockstepDisplayBook builds up to size implied display levels and folds
// them into dst, adding to levels the real book already shows.
func (im *Implier) lockstepDisplayBook(dst map[int64]uint64, size int, sell bool, best BookItem, leg1, leg2 []BookItem, priceFn func(int64, int64) int64) {
	temp := make(map[int64]uint64, size)
	i, j := 0, 0
	var q1, q2 uint64
	if i < len(leg1) && j < len(leg2) {
		q1 = leg1[i].DisplayQuantity
		q2 = leg2[j].DisplayQuantity
	}
	for i < len(leg1) && j < len(leg2) {
		quantity := minQty(q1, q2)
		if quantity == 0 {
			if q1 == 0 {
				i++
				if i < len(leg1) {
					q1 = leg1[i].DisplayQuantity
				}
			}
			if q2 == 0 {
				j++
				if j < len(leg2) {
					q2 = leg2[j].DisplayQuantity
				}
			}
			continue
		}
		price := priceFn(leg1[i].Price, leg2[j].Price)
		if best.Quantity > 0 {
			if sell {
				if price <= best.Price {
					price = best.Price + im.tick
				}
			} else {
				if price >= best.Price {
					price = best.Price - im.tick
				}
			}
		}
		temp[price] += quantity
		if len(temp) >= size {
			break
		}
		q1 -= quantity
		q2 -= quantity
		if q1 == 0 {
			i++
			if i < len(leg1) {
				q1 = leg1[i].DisplayQuantity
			}
		}
		if q2 == 0 {
			j++
			if j < len(leg2) {
				q2 = leg2[j].DisplayQuantity
			}
		}
	}
	for price, quantity := range temp {
		dst[price] += quantity
	}
}

// AskDisplayBook folds up to size implied ask levels into dst.
func (im *Implier) AskDisplayBook(dst map[int64]uint64, size int, realBestBid BookItem) {
	leg1, leg2 := im.askLegLevels()
	im.lockstepDisplayBook(dst, size, true, realBestBid, leg1, leg2, im.askPrice)
}

// BidDisplayBook folds up to size implied bid levels into dst.
func (im *Implier) BidDisplayBook(dst map[int64]uint64, size int, realBestAsk BookItem) {
	leg1, leg2 := im.bidLegLevels()
	im.lockstepDisplayBook(dst, size, false, realBestAsk, leg1, leg2, im.bidPrice)
}

// legMakers picks the best maker order of each leg for the taker's side.
func (im *Implier) legMakers(side Side) (maker1, maker2 *Order) {
	if side == Buy {
		maker1 = im.leg1.BestAskOrder()
		if im.topology.leg2SameSide() {
			maker2 = im.leg2.BestAskOrder()
		} else {
			maker2 = im.leg2.BestBidOrder()
		}
		return maker1, maker2
	}
	maker1 = im.leg1.BestBidOrder()
	if im.topology.leg2SameSide() {
		maker2 = im.leg2.BestBidOrder()
	} else {
		maker2 = im.leg2.BestAskOrder()
	}
	return maker1, maker2
}

// MatchOrder fills the taker against both legs at the implied price. Each
// step pairs the two leg makers under one match id; the taker event is
// emitted from the first leg only. Returns the quantity left unmatched.
func (im *Implier) MatchOrder(batch *[]Order, taker *Order, price int64, quantity uint64, groupCount int, hasRepo bool) uint64 {
	for quantity > 0 {
		maker1, maker2 := im.legMakers(taker.Side)
		if maker1 == nil || maker2 == nil {
			break
		}
		matchID := im.ids.NextMatchID()
		fill := minQty(quantity, minQty(maker1.MatchableQuantity(), maker2.MatchableQuantity()))
		if fill == 0 {
			break
		}
		im.leg1.MatchFill(batch, taker, maker1, price, fill, matchID, maker2, true, hasRepo)
		im.leg2.MatchFill(batch, taker, maker2, price, fill, matchID, maker1, false, hasRepo)
		quantity -= fill

		if taker.TimeCondition != Auction && len(*batch) >= groupCount {
			im.cb.PulsarOrderList(*batch)
			*batch = (*batch)[:0]
		}
	}
	return quantity
}
