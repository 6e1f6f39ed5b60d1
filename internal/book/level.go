// Package book implements the price-level FIFO queue and the ordered
// order book described in spec.md §4.1/§4.2.
package book

import (
	"container/list"

	"lobsim/internal/common"
)

// PriceLevel is an ordered sequence of resting orders at one price,
// ordered by submit_ts then arrival sequence. Backed by an intrusive
// doubly-linked list (container/list) so remove(order_id) is O(1)
// given the element back-pointer held in the owning OrderBook's
// id_index, per spec.md §4.1's recommendation to support millions of
// resting orders without O(n) excision.
type PriceLevel struct {
	Price     common.Price
	orders    *list.List // list.Element.Value is *common.Order
	aggregate uint64
}

func newPriceLevel(price common.Price) *PriceLevel {
	return &PriceLevel{
		Price:  price,
		orders: list.New(),
	}
}

// Append places order at the tail of the level. Precondition:
// order.Price equals the level's price. Returns the list element so
// the caller (OrderBook) can store it in id_index for O(1) removal.
func (l *PriceLevel) Append(order *common.Order) *list.Element {
	el := l.orders.PushBack(order)
	l.aggregate += order.RemainingQty
	return el
}

// PeekFront observes the head order without removing it.
func (l *PriceLevel) PeekFront() *common.Order {
	front := l.orders.Front()
	if front == nil {
		return nil
	}
	return front.Value.(*common.Order)
}

// PopFront removes and returns the head order, updating the aggregate.
func (l *PriceLevel) PopFront() *common.Order {
	front := l.orders.Front()
	if front == nil {
		return nil
	}
	order := front.Value.(*common.Order)
	l.orders.Remove(front)
	l.aggregate -= order.RemainingQty
	return order
}

// Remove excises the order at el (obtained from Append) regardless of
// its position in the level.
func (l *PriceLevel) Remove(el *list.Element) *common.Order {
	order := el.Value.(*common.Order)
	l.orders.Remove(el)
	l.aggregate -= order.RemainingQty
	return order
}

// AdjustAggregate applies delta to the cached aggregate quantity. Used
// by callers (the matching engine, OrderBook.Modify) that mutate a
// member order's RemainingQty directly and must keep the level's
// cached aggregate consistent (spec.md §4.1 invariant).
func (l *PriceLevel) AdjustAggregate(delta int64) {
	l.aggregate = uint64(int64(l.aggregate) + delta)
}

// IsEmpty reports whether the level holds no resting orders.
func (l *PriceLevel) IsEmpty() bool {
	return l.orders.Len() == 0
}

// Aggregate returns the cached sum of remaining quantities. Invariant
// (spec.md §4.1): Aggregate() == sum of member RemainingQty, maintained
// incrementally by every mutating method above.
func (l *PriceLevel) Aggregate() uint64 {
	return l.aggregate
}

// Len returns the number of resting orders at this level.
func (l *PriceLevel) Len() int {
	return l.orders.Len()
}

// Orders returns a snapshot slice of the resting orders in FIFO order,
// for tests and depth introspection. Callers must not mutate it.
func (l *PriceLevel) Orders() []*common.Order {
	out := make([]*common.Order, 0, l.orders.Len())
	for e := l.orders.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*common.Order))
	}
	return out
}
