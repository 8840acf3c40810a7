package core

import (
	"container/list"

	"github.com/google/btree"
)

const btreeDegree = 32

// priceLevel is one price in the book: the aggregate BookItem plus the
// resting orders in sortID order. The aggregates are maintained
// incrementally and self-heal when they drift from the residents.
type priceLevel struct {
	item  BookItem
	queue *list.List               // of *Order, ascending sortID
	elems map[uint64]*list.Element // sortID -> queue element
}

func newPriceLevel(price int64) *priceLevel {
	return &priceLevel{
		item:  BookItem{Price: price},
		queue: list.New(),
		elems: make(map[uint64]*list.Element),
	}
}

func (l *priceLevel) front() *Order {
	if e := l.queue.Front(); e != nil {
		return e.Value.(*Order)
	}
	return nil
}

func (l *priceLevel) add(o *Order) {
	l.item.Quantity += o.RemainQuantity
	l.item.DisplayQuantity += o.MatchableQuantity()
	l.elems[o.SortID] = l.queue.PushBack(o)
}

// requeue moves the order to the back of the level under a fresh sortID.
// Used when an iceberg slice has been fully consumed.
func (l *priceLevel) requeue(o *Order, sortID uint64) {
	if e, ok := l.elems[o.SortID]; ok {
		l.queue.Remove(e)
		delete(l.elems, o.SortID)
	}
	o.SortID = sortID
	l.elems[o.SortID] = l.queue.PushBack(o)
}

func (l *priceLevel) remove(sortID uint64) {
	if e, ok := l.elems[sortID]; ok {
		l.queue.Remove(e)
		delete(l.elems, sortID)
	}
}

// recompute rebuilds the aggregates from the residents. Called when an
// incremental update drove a non-empty level to zero.
func (l *priceLevel) recompute() {
	l.item.Quantity = 0
	l.item.DisplayQuantity = 0
	for e := l.queue.Front(); e != nil; e = e.Next() {
		o := e.Value.(*Order)
		l.item.Quantity += o.RemainQuantity
		l.item.DisplayQuantity += o.MatchableQuantity()
	}
}

// bookSide holds all price levels of one side, best price first.
type bookSide struct {
	side   Side
	tree   *btree.BTreeG[*priceLevel]
	levels map[int64]*priceLevel
}

func newBookSide(side Side) *bookSide {
	less := func(a, b *priceLevel) bool { return a.item.Price < b.item.Price }
	if side == Buy {
		less = func(a, b *priceLevel) bool { return a.item.Price > b.item.Price }
	}
	return &bookSide{
		side:   side,
		tree:   btree.NewG(btreeDegree, less),
		levels: make(map[int64]*priceLevel),
	}
}

func (s *bookSide) level(price int64) *priceLevel { return s.levels[price] }

func (s *bookSide) getOrCreate(price int64) *priceLevel {
	if l, ok := s.levels[price]; ok {
		return l
	}
	l := newPriceLevel(price)
	s.levels[price] = l
	s.tree.ReplaceOrInsert(l)
	return l
}

// best returns the best level or nil.
func (s *bookSide) best() *priceLevel {
	if l, ok := s.tree.Min(); ok {
		return l
	}
	return nil
}

func (s *bookSide) dropIfEmpty(l *priceLevel) {
	if l.queue.Len() == 0 {
		s.tree.Delete(l)
		delete(s.levels, l.item.Price)
	}
}

// ascend walks the levels from best to worst until fn returns false.
func (s *bookSide) ascend(fn func(*priceLevel) bool) {
	s.tree.Ascend(func(l *priceLevel) bool { return fn(l) })
}

func (s *bookSide) len() int { return s.tree.Len() }

// Book owns every resting order of one market. The orders map is the single
// owner; the price levels index the same *Order values by price and sortID.
type Book struct {
	orders map[uint64]*Order
	asks   *bookSide
	bids   *bookSide
}

// NewBook creates an empty book.
func NewBook() *Book {
	return &Book{
		orders: make(map[uint64]*Order),
		asks:   newBookSide(Sell),
		bids:   newBookSide(Buy),
	}
}

// side returns the book side the order rests on.
func (b *Book) side(s Side) *bookSide {
	if s == Buy {
		return b.bids
	}
	return b.asks
}

// Find returns the resting order with the given id.
func (b *Book) Find(orderID uint64) (*Order, bool) {
	o, ok := b.orders[orderID]
	return o, ok
}

// Len returns the number of resting orders.
func (b *Book) Len() int { return len(b.orders) }

// insert takes ownership of the order. Fails if the id is already resting.
func (b *Book) insert(order Order) (*Order, error) {
	if _, ok := b.orders[order.OrderID]; ok {
		return nil, ErrOrderExists
	}
	o := &order
	b.orders[o.OrderID] = o
	return o, nil
}

// drop removes the order from the arena only.
func (b *Book) drop(orderID uint64) {
	delete(b.orders, orderID)
}

// clear removes everything.
func (b *Book) clear() {
	b.orders = make(map[uint64]*Order)
	b.asks = newBookSide(Sell)
	b.bids = newBookSide(Buy)
}
