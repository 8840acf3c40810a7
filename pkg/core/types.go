package core

// BookItem is one aggregated price level as seen from outside the book:
// total resting quantity and the quantity currently on display.
type BookItem struct {
	Price           int64
	Quantity        uint64
	DisplayQuantity uint64
}

// Empty reports whether the item carries no liquidity.
func (b BookItem) Empty() bool { return b.Quantity == 0 }

// TriggerPriceUpdate is a mark or last price tick routed to the trigger
// order managers of a market.
type TriggerPriceUpdate struct {
	MarketID uint64 `json:"mid"`
	Price    int64  `json:"p"`
}

// Callbacks is the boundary between the matching core and the surrounding
// service. The engine and the trigger manager publish every externally
// visible transition through it and never talk to transports directly.
type Callbacks interface {
	// PulsarOrder publishes a single order event.
	PulsarOrder(order Order)
	// PulsarOrderList publishes a batch of fill events in match order.
	PulsarOrderList(orders []Order)
	// TriggerOrderToEngine hands a matured or unknown trigger order to the
	// matching engine of the same market.
	TriggerOrderToEngine(order Order)
	// EngineOrderToTrigger notifies the trigger manager that a bracket
	// parent has filled.
	EngineOrderToTrigger(order Order)
	// BestOrderBookChange fires when the top of the book may have moved.
	BestOrderBookChange()
	// OrderStore persists a trigger order accepted into the trigger index.
	OrderStore(order *Order)
}

// NopCallbacks discards every callback. Useful as an embedding base in
// tests and tools that only care about a subset.
type NopCallbacks struct{}

func (NopCallbacks) PulsarOrder(Order)          {}
func (NopCallbacks) PulsarOrderList([]Order)    {}
func (NopCallbacks) TriggerOrderToEngine(Order) {}
func (NopCallbacks) EngineOrderToTrigger(Order) {}
func (NopCallbacks) BestOrderBookChange()       {}
func (NopCallbacks) OrderStore(*Order)          {}
