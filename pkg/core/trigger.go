package core

import (
	"container/list"
	"sync"

	"github.com/google/btree"
)

// triggerLevel holds the untriggered orders parked at one trigger price, in
// arrival order.
type triggerLevel struct {
	price int64
	queue *list.List               // of *Order, ascending sortID
	elems map[uint64]*list.Element // sortID -> queue element
}

func newTriggerLevel(price int64) *triggerLevel {
	return &triggerLevel{
		price: price,
		queue: list.New(),
		elems: make(map[uint64]*list.Element),
	}
}

// triggerIndex orders trigger levels so the levels a price move fires come
// first: descending for LESS_EQUAL conditions, ascending for GREATER_EQUAL.
type triggerIndex struct {
	tree   *btree.BTreeG[*triggerLevel]
	levels map[int64]*triggerLevel
}

func newTriggerIndex(descending bool) *triggerIndex {
	less := func(a, b *triggerLevel) bool { return a.price < b.price }
	if descending {
		less = func(a, b *triggerLevel) bool { return a.price > b.price }
	}
	return &triggerIndex{
		tree:   btree.NewG(btreeDegree, less),
		levels: make(map[int64]*triggerLevel),
	}
}

func (x *triggerIndex) add(o *Order) {
	l, ok := x.levels[o.TriggerPrice]
	if !ok {
		l = newTriggerLevel(o.TriggerPrice)
		x.levels[o.TriggerPrice] = l
		x.tree.ReplaceOrInsert(l)
	}
	l.elems[o.SortID] = l.queue.PushBack(o)
}

func (x *triggerIndex) remove(o *Order) {
	l, ok := x.levels[o.TriggerPrice]
	if !ok {
		return
	}
	if e, ok := l.elems[o.SortID]; ok {
		l.queue.Remove(e)
		delete(l.elems, o.SortID)
	}
	if l.queue.Len() == 0 {
		x.tree.Delete(l)
		delete(x.levels, l.price)
	}
}

func (x *triggerIndex) clear() {
	x.tree.Clear(false)
	x.levels = make(map[int64]*triggerLevel)
}

// TriggerManager parks stop and take profit orders until a mark or last
// price move fires them, then forwards the live conversion to the matching
// engine. Bracket children stay parked until the parent order fills.
type TriggerManager struct {
	mu         sync.Mutex
	marketCode string
	cb         Callbacks
	ids        IDGen

	orders map[uint64]*Order

	lessMark    *triggerIndex
	greaterMark *triggerIndex
	lessLast    *triggerIndex
	greaterLast *triggerIndex
}

// NewTriggerManager creates a trigger manager for one market.
func NewTriggerManager(marketCode string, cb Callbacks, ids IDGen) *TriggerManager {
	return &TriggerManager{
		marketCode:  marketCode,
		cb:          cb,
		ids:         ids,
		orders:      make(map[uint64]*Order),
		lessMark:    newTriggerIndex(true),
		greaterMark: newTriggerIndex(false),
		lessLast:    newTriggerIndex(true),
		greaterLast: newTriggerIndex(false),
	}
}

// MarketCode returns the market the manager serves.
func (m *TriggerManager) MarketCode() string { return m.marketCode }

// OrdersCount returns the number of parked orders.
func (m *TriggerManager) OrdersCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

// HandleOrder processes one inbound trigger order action.
func (m *TriggerManager) HandleOrder(order *Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch order.Action {
	case ActionNew:
		order.Status = StatusOpen
		m.save(*order)
		m.cb.PulsarOrder(*order)
	case ActionAmend:
		m.handleAmendOrder(order)
	case ActionCancel:
		m.handleCancelOrder(order)
	case ActionRecovery:
		order.Action = ActionNew
		m.save(*order)
	case ActionTriggerBracket:
		m.handleBracketOrder(order)
	}
}

// MarkPriceTrigger fires every order whose mark price condition the new
// price satisfies.
func (m *TriggerManager) MarkPriceTrigger(price int64) {
	if price == MaxPrice {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fire(m.lessMark, m.greaterMark, price)
}

// LastPriceTrigger fires every order whose last price condition the new
// price satisfies.
func (m *TriggerManager) LastPriceTrigger(price int64) {
	if price == MaxPrice {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fire(m.lessLast, m.greaterLast, price)
}

// fire releases the matured levels of both indexes. The less index leads
// with its highest trigger price, the greater index with its lowest, so
// each walk stops at the first level the price no longer satisfies.
func (m *TriggerManager) fire(less, greater *triggerIndex, price int64) {
	for {
		l, ok := less.tree.Min()
		if !ok || price > l.price {
			break
		}
		m.fireLevel(less, l)
	}
	for {
		l, ok := greater.tree.Min()
		if !ok || price < l.price {
			break
		}
		m.fireLevel(greater, l)
	}
}

func (m *TriggerManager) fireLevel(x *triggerIndex, l *triggerLevel) {
	for e := l.queue.Front(); e != nil; e = e.Next() {
		o := e.Value.(*Order)
		m.cb.TriggerOrderToEngine(o.ToLimit())
		delete(m.orders, o.OrderID)
	}
	x.tree.Delete(l)
	delete(x.levels, l.price)
}

// ClearOrders drops every parked order.
func (m *TriggerManager) ClearOrders() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearLocked()
}

func (m *TriggerManager) clearLocked() {
	m.lessMark.clear()
	m.greaterMark.clear()
	m.lessLast.clear()
	m.greaterLast.clear()
	m.orders = make(map[uint64]*Order)
}

func (m *TriggerManager) handleCancelOrder(order *Order) {
	if order.OrderID != 0 {
		old, ok := m.orders[order.OrderID]
		if !ok {
			// Not parked here, the resting copy lives in the engine.
			m.cb.TriggerOrderToEngine(*order)
			return
		}
		old.Action = order.Action
		old.Source = order.Source
		old.Status = StatusCanceledByUser
		old.Tag = order.Tag
		*order = *old
		order.Timestamp = nowMillis()

		m.removeOrder(old)
		m.cb.PulsarOrder(*order)
		return
	}
	if order.AccountID != 0 {
		var victims []*Order
		for _, o := range m.orders {
			if o.AccountID == order.AccountID &&
				(order.ClientOrderID == 0 || order.ClientOrderID == o.ClientOrderID) {
				victims = append(victims, o)
			}
		}
		for _, o := range victims {
			o.Action = ActionCancel
			m.removeOrder(o)
		}
		return
	}
	m.clearLocked()
}

func (m *TriggerManager) handleAmendOrder(order *Order) {
	old, ok := m.orders[order.OrderID]
	if !ok {
		m.cb.TriggerOrderToEngine(*order)
		return
	}
	bak := *old
	old.Price = order.Price
	old.TriggerPrice = order.TriggerPrice
	old.Quantity = order.Quantity
	old.DisplayQuantity = order.DisplayQuantity
	old.RemainQuantity = order.Quantity
	old.Amount = order.Amount
	old.RemainAmount = order.RemainAmount
	old.Status = StatusOpen
	old.Tag = order.Tag
	*order = *old
	if old.TriggerPrice != bak.TriggerPrice {
		m.index(&bak).remove(&bak)
		m.park(old)
	}
	order.Action = ActionAmend
	order.Timestamp = nowMillis()
	m.cb.PulsarOrder(*order)
}

// save stores the order; orders without a bracket parent are indexed for
// triggering right away, bracket children wait for the parent fill.
func (m *TriggerManager) save(order Order) *Order {
	if _, ok := m.orders[order.OrderID]; ok {
		return nil
	}
	o := &order
	m.orders[o.OrderID] = o
	if o.BracketOrderID == 0 {
		m.park(o)
	}
	return o
}

// park indexes the order under its trigger price.
func (m *TriggerManager) park(o *Order) {
	m.cb.OrderStore(o)
	o.SortID = m.ids.NextSortID()
	m.index(o).add(o)
}

func (m *TriggerManager) index(o *Order) *triggerIndex {
	if o.StopCondition == StopGreaterEqual {
		if o.TriggerType == TriggerMarkPrice {
			return m.greaterMark
		}
		return m.greaterLast
	}
	if o.TriggerType == TriggerMarkPrice {
		return m.lessMark
	}
	return m.lessLast
}

func (m *TriggerManager) removeOrder(o *Order) {
	m.index(o).remove(o)
	delete(m.orders, o.OrderID)
}

// handleBracketOrder reacts to a filled order carrying bracket children.
// A filled parent puts the parked children live in the trigger indexes; a
// filled child cancels its sibling.
func (m *TriggerManager) handleBracketOrder(bracket *Order) {
	for _, childID := range []uint64{bracket.TakeProfitOrderID, bracket.StopLossOrderID} {
		if childID == 0 {
			continue
		}
		child, ok := m.orders[childID]
		if !ok {
			continue
		}
		if bracket.BracketOrderID == 0 {
			m.park(child)
			continue
		}
		child.Status = StatusCanceledByBracketOrder
		m.cb.PulsarOrder(*child)
		m.removeOrder(child)
	}
}
