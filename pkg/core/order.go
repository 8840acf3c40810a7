package core

import (
	"encoding/json"
	"errors"
)

// Common order errors.
var (
	ErrInvalidQuantity = errors.New("invalid order quantity")
	ErrInvalidPrice    = errors.New("invalid order price")
	ErrOrderExists     = errors.New("order already exists")
	ErrOrderNotExists  = errors.New("order not found")
)

// Order is the unit of work flowing through the engine. Prices are
// fixed-point int64 scaled by the market factor, quantities are fixed-point
// uint64 scaled by the quantity factor.
//
// The JSON encoding uses the compact wire keys shared with the upstream and
// downstream services.
type Order struct {
	AccountID          uint64        `json:"aid"`
	MarketID           uint64        `json:"mid"`
	Price              int64         `json:"p"`
	Quantity           uint64        `json:"q"`
	DisplayQuantity    uint64        `json:"dq"`
	RemainQuantity     uint64        `json:"rq"`
	Amount             uint64        `json:"a"`
	RemainAmount       uint64        `json:"ra"`
	UpperBound         int64         `json:"ub"`
	LowerBound         int64         `json:"lb"`
	LastMatchPrice     int64         `json:"mp"`
	Leg2Price          int64         `json:"l2p"`
	LastMatchQuantity  uint64        `json:"mq"`
	OrderID            uint64        `json:"id"`
	ClientOrderID      uint64        `json:"cid"`
	LastMatchedOrderID uint64        `json:"lmid"`
	LastMatchedOrder2  uint64        `json:"lmid2"`
	MatchedID          uint64        `json:"mtid"`
	SortID             uint64        `json:"sid"`
	BracketOrderID     uint64        `json:"bid"`
	TakeProfitOrderID  uint64        `json:"tpid"`
	StopLossOrderID    uint64        `json:"slid"`
	TriggerPrice       int64         `json:"tp"`
	Timestamp          uint64        `json:"t"`
	OrderCreated       uint64        `json:"oc"`
	Source             int           `json:"sc"`
	IsTriggered        bool          `json:"it"`
	TriggerType        TriggerType   `json:"tt"`
	Side               Side          `json:"s"`
	Type               OrderType     `json:"ty"`
	StopCondition      StopCondition `json:"stc"`
	TimeCondition      TimeCondition `json:"tc"`
	Action             Action        `json:"ac"`
	Status             Status        `json:"st"`
	MatchedType        MatchedType   `json:"mt"`
	STP                STPMode       `json:"stp"`
	Tag                string        `json:"tag,omitempty"`
}

// orderAlias breaks the UnmarshalJSON recursion.
type orderAlias Order

// UnmarshalJSON decodes an order and applies the wire defaults: unset prices
// become MaxPrice, displayQuantity and remainQuantity default to quantity,
// remainAmount defaults to amount, and trigger orders without an explicit
// stop condition get the one implied by their type and side.
func (o *Order) UnmarshalJSON(data []byte) error {
	a := orderAlias{
		Price:         MaxPrice,
		UpperBound:    MaxPrice,
		LowerBound:    MinPrice,
		TriggerPrice:  MaxPrice,
		Side:          Buy,
		Type:          TypeLimit,
		TriggerType:   TriggerNone,
		TimeCondition: GTC,
		Action:        ActionNew,
		Status:        StatusOpen,
		MatchedType:   Maker,
		STP:           STPNone,
	}

	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*o = Order(a)

	if o.DisplayQuantity == 0 {
		o.DisplayQuantity = o.Quantity
	}
	if _, ok := raw["rq"]; !ok {
		o.RemainQuantity = o.Quantity
	}
	if _, ok := raw["ra"]; !ok {
		o.RemainAmount = o.Amount
	}
	if _, ok := raw["stc"]; !ok {
		o.StopCondition = defaultStopCondition(o.Type, o.Side)
	}
	if o.StopCondition == "" {
		o.StopCondition = StopNone
	}
	return nil
}

func defaultStopCondition(t OrderType, s Side) StopCondition {
	switch t {
	case TypeStopLimit, TypeStopMarket:
		if s == Buy {
			return StopGreaterEqual
		}
		return StopLessEqual
	case TypeTakeProfitLimit, TypeTakeProfitMarket:
		if s == Buy {
			return StopLessEqual
		}
		return StopGreaterEqual
	}
	return StopNone
}

// IsBuy reports whether the order is on the buy side.
func (o *Order) IsBuy() bool { return o.Side == Buy }

// IsAmountOrder reports whether the order size is denominated in quote
// currency instead of base quantity.
func (o *Order) IsAmountOrder() bool { return o.Amount > 0 && o.Quantity == 0 }

// Clone returns a copy of the order.
func (o *Order) Clone() Order { return *o }

// Validate applies the admission checks to an inbound order and returns the
// reject status, or the empty string for an admissible order. Auction orders
// and cancels are exempt: auctions size by quantity or amount freely and a
// cancel only carries the id.
func (o *Order) Validate() Status {
	if o.TimeCondition == Auction || o.Action == ActionCancel {
		return ""
	}
	switch o.Action {
	case ActionNew, ActionAmend, ActionRecovery:
		if o.Quantity == 0 && o.Amount == 0 {
			return StatusRejectQuantityAndAmountZero
		}
	}
	if o.Quantity > 0 && o.Amount > 0 {
		return StatusRejectQuantityAndAmountLargerZero
	}
	if o.Type == TypeStopLimit || o.Type == TypeStopMarket {
		if o.StopCondition == StopNone {
			return StatusRejectStopConditionIsNone
		}
		if o.TriggerPrice == MaxPrice {
			return StatusRejectStopTriggerPriceIsNone
		}
	}
	if o.Quantity > 0 && o.Quantity < o.DisplayQuantity {
		return StatusRejectDisplayQuantityTooLarge
	}
	if o.DisplayQuantity == 0 && o.Amount == 0 {
		return StatusRejectDisplayQuantityZero
	}
	if o.Type == TypeLimit && o.Price == MaxPrice {
		return StatusRejectLimitOrderWithMarketPrice
	}
	return ""
}

// MatchableQuantity returns the quantity the order currently exposes to the
// book. For iceberg orders this is the remaining part of the current display
// slice, for everything else the remaining quantity.
func (o *Order) MatchableQuantity() uint64 {
	quantity := o.RemainQuantity
	if o.DisplayQuantity < o.Quantity && o.DisplayQuantity > 0 {
		quantity = o.DisplayQuantity - (o.Quantity-o.RemainQuantity)%o.DisplayQuantity
		if o.RemainQuantity > 0 && o.RemainQuantity <= o.DisplayQuantity {
			quantity = o.RemainQuantity
		}
	}
	return quantity
}

// HasBracket reports whether the order carries attached bracket children.
func (o *Order) HasBracket() bool {
	return o.TakeProfitOrderID != 0 || o.StopLossOrderID != 0
}

// ToLimit converts a matured trigger order into the live order forwarded to
// the engine. Stop and take profit limits become plain limits, the market
// variants become market orders.
func (o *Order) ToLimit() Order {
	live := *o
	live.IsTriggered = true
	live.Action = ActionNew
	switch o.Type {
	case TypeStopLimit, TypeTakeProfitLimit:
		live.Type = TypeLimit
	default:
		live.Type = TypeMarket
	}
	return live
}

// CanAmend reports whether the amend can be applied in place, keeping queue
// priority. The side must match, the resting price must not move, an
// untriggered stop may only keep its trigger price, and the amended quantity
// may not exceed the original quantity.
func (o *Order) CanAmend(amend *Order) bool {
	if o.Side != amend.Side {
		return false
	}
	switch o.Type {
	case TypeLimit, TypeMarket:
		if amend.Price != o.Price {
			return false
		}
	case TypeStopLimit, TypeStopMarket:
		if o.IsTriggered {
			if amend.Price != o.Price {
				return false
			}
		} else {
			// An untriggered stop only rests in the trigger index, so a
			// larger quantity cannot jump any queue.
			return amend.TriggerPrice == o.TriggerPrice
		}
	}
	return amend.Quantity <= o.Quantity
}
