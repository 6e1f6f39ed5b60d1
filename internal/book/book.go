package book

import (
	"container/list"

	"github.com/tidwall/btree"

	"lobsim/internal/common"
)

// priceLevels is the teacher's `PriceLevels = btree.BTreeG[*PriceLevel]`
// generalized from float64 prices to integer common.Price ticks.
type priceLevels = btree.BTreeG[*PriceLevel]

// location is the id_index's back-reference: which side/level/element
// a resting order currently occupies, sufficient for O(log n) cancel
// (find the level by price in the btree) plus O(1) excision (the list
// element) per spec.md §9's ownership note.
type location struct {
	side  common.Side
	price common.Price
	el    *list.Element
}

// OrderBook is the pair of sorted price maps plus id_index of
// spec.md §3/§4.2, grounded on internal/engine/orderbook.go's
// NewOrderBook (bids sorted greatest-first, asks sorted least-first),
// generalized to integer Price and extended with a general id_index,
// modify, and depth/spread/mid read views.
type OrderBook struct {
	Symbol string

	bids *priceLevels
	asks *priceLevels

	idIndex map[string]location
}

// New constructs an empty order book for symbol.
func New(symbol string) *OrderBook {
	bids := btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return a.Price > b.Price // descending: greatest key is best bid
	})
	asks := btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return a.Price < b.Price // ascending: least key is best ask
	})
	return &OrderBook{
		Symbol:  symbol,
		bids:    bids,
		asks:    asks,
		idIndex: make(map[string]location),
	}
}

func (b *OrderBook) levelsFor(side common.Side) *priceLevels {
	if side == common.Buy {
		return b.bids
	}
	return b.asks
}

// InsertResting places a non-crossing limit order onto the correct
// side, creating the price level if absent. Fails with
// ErrDuplicateOrderID if order.OrderID is already live.
func (b *OrderBook) InsertResting(order *common.Order) error {
	if _, exists := b.idIndex[order.OrderID]; exists {
		return common.ErrDuplicateOrderID
	}

	levels := b.levelsFor(order.Side)
	level, ok := levels.Get(newPriceLevel(order.Price))
	if !ok {
		level = newPriceLevel(order.Price)
		levels.Set(level)
	}
	el := level.Append(order)
	b.idIndex[order.OrderID] = location{side: order.Side, price: order.Price, el: el}
	return nil
}

// Cancel removes order.OrderID from the book. Fails with
// ErrUnknownOrderID if absent. Empty levels are reclaimed.
func (b *OrderBook) Cancel(orderID string) (*common.Order, error) {
	loc, ok := b.idIndex[orderID]
	if !ok {
		return nil, common.ErrUnknownOrderID
	}
	levels := b.levelsFor(loc.side)
	level, ok := levels.Get(newPriceLevel(loc.price))
	if !ok {
		// id_index and book are out of sync; should never happen if
		// every mutating path keeps them consistent.
		delete(b.idIndex, orderID)
		return nil, common.ErrUnknownOrderID
	}
	order := level.Remove(loc.el)
	delete(b.idIndex, orderID)
	if level.IsEmpty() {
		levels.Delete(level)
	}
	return order, nil
}

// Resting reports whether orderID currently rests in the book, and its
// location's side/price if so.
func (b *OrderBook) Resting(orderID string) (side common.Side, price common.Price, ok bool) {
	loc, found := b.idIndex[orderID]
	if !found {
		return 0, 0, false
	}
	return loc.side, loc.price, true
}

// Modify changes a resting order's quantity and/or price. A pure
// quantity decrease preserves time priority (in place); a quantity
// increase or a price change loses time priority and is implemented
// as cancel + re-insert at the given submitTS, matching standard
// exchange semantics (spec.md §4.2, §8 round-trip property).
func (b *OrderBook) Modify(orderID string, newQty uint64, newPrice *common.Price, submitTS int64, nextSeq func() uint64) error {
	loc, ok := b.idIndex[orderID]
	if !ok {
		return common.ErrUnknownOrderID
	}
	if newQty == 0 {
		return common.ErrNonPositiveQuantity
	}

	levels := b.levelsFor(loc.side)
	level, ok := levels.Get(newPriceLevel(loc.price))
	if !ok {
		return common.ErrUnknownOrderID
	}
	order := loc.el.Value.(*common.Order)

	priceChanged := newPrice != nil && *newPrice != order.Price
	qtyIncreased := newQty > order.RemainingQty

	if !priceChanged && !qtyIncreased {
		// Pure decrease: preserve position and time priority in place.
		delta := int64(order.RemainingQty) - int64(newQty)
		order.RemainingQty = newQty
		level.AdjustAggregate(-delta)
		return nil
	}

	// Loses time priority: cancel + re-insert as a fresh order at the
	// current logical time with a new arrival sequence.
	level.Remove(loc.el)
	delete(b.idIndex, orderID)
	if level.IsEmpty() {
		levels.Delete(level)
	}

	order.RemainingQty = newQty
	order.OriginalQty = newQty
	if newPrice != nil {
		order.Price = *newPrice
	}
	order.SubmitTS = submitTS
	if nextSeq != nil {
		order.ArrivalSeq = nextSeq()
	}

	return b.InsertResting(order)
}

// BestBid returns the highest resting bid price, if any.
func (b *OrderBook) BestBid() (common.Price, bool) {
	lvl, ok := b.bids.Min()
	if !ok {
		return 0, false
	}
	return lvl.Price, true
}

// BestAsk returns the lowest resting ask price, if any.
func (b *OrderBook) BestAsk() (common.Price, bool) {
	lvl, ok := b.asks.Min()
	if !ok {
		return 0, false
	}
	return lvl.Price, true
}

// Spread returns best_ask - best_bid in ticks. Only defined when both
// sides are non-empty.
func (b *OrderBook) Spread() (int64, bool) {
	bid, bidOk := b.BestBid()
	ask, askOk := b.BestAsk()
	if !bidOk || !askOk {
		return 0, false
	}
	return int64(ask) - int64(bid), true
}

// Mid returns the doubled-integer mid price. Only defined when both
// sides are non-empty (GLOSSARY: "Mid").
func (b *OrderBook) Mid() (int64, bool) {
	bid, bidOk := b.BestBid()
	ask, askOk := b.BestAsk()
	if !bidOk || !askOk {
		return 0, false
	}
	return common.Mid(bid, ask), true
}

// DepthLevel is one (price, aggregate_quantity) pair of a depth view.
type DepthLevel struct {
	Price    common.Price
	Quantity uint64
}

// BidDepth returns up to n price levels on the bid side, best first.
func (b *OrderBook) BidDepth(n int) []DepthLevel {
	return depth(b.bids, n)
}

// AskDepth returns up to n price levels on the ask side, best first.
func (b *OrderBook) AskDepth(n int) []DepthLevel {
	return depth(b.asks, n)
}

func depth(levels *priceLevels, n int) []DepthLevel {
	if n <= 0 {
		return nil
	}
	out := make([]DepthLevel, 0, n)
	levels.Ascend(nil, func(lvl *PriceLevel) bool {
		out = append(out, DepthLevel{Price: lvl.Price, Quantity: lvl.Aggregate()})
		return len(out) < n
	})
	return out
}

// BidLevel returns the resting PriceLevel at price on the bid side,
// if any. Used by the matching engine to walk the book.
func (b *OrderBook) BidLevel(price common.Price) (*PriceLevel, bool) {
	return b.bids.Get(newPriceLevel(price))
}

// AskLevel returns the resting PriceLevel at price on the ask side,
// if any.
func (b *OrderBook) AskLevel(price common.Price) (*PriceLevel, bool) {
	return b.asks.Get(newPriceLevel(price))
}

// BestLevel returns the best (top-of-book) level on side, if any.
func (b *OrderBook) BestLevel(side common.Side) (*PriceLevel, bool) {
	return b.levelsFor(side).Min()
}

// DeleteLevel reclaims an empty level. Called by the matching engine
// once it has consumed every order at a level.
func (b *OrderBook) DeleteLevel(side common.Side, level *PriceLevel) {
	b.levelsFor(side).Delete(level)
}

// RemoveFromIndex drops orderID from id_index without touching the
// level itself; used by the matching engine once it has already
// popped the order from its level during a sweep.
func (b *OrderBook) RemoveFromIndex(orderID string) {
	delete(b.idIndex, orderID)
}

// IndexLocation records orderID's side/price/element in id_index.
// Used by the matching engine when it re-appends an iceberg's
// refreshed slice.
func (b *OrderBook) IndexLocation(orderID string, side common.Side, price common.Price, el *list.Element) {
	b.idIndex[orderID] = location{side: side, price: price, el: el}
}

// WalkLevels visits side's price levels in best-first priority order,
// stopping early if fn returns false. Used by the matching engine's
// FOK liquidity pre-check, which must walk the book read-only.
func (b *OrderBook) WalkLevels(side common.Side, fn func(*PriceLevel) bool) {
	b.levelsFor(side).Ascend(nil, fn)
}

// SideLiquidity sums the aggregate quantity of every level on side
// without mutating the book. (The matching engine's FOK pre-check
// walks levels itself via WalkLevels instead.)
func (b *OrderBook) SideLiquidity(side common.Side) uint64 {
	var total uint64
	b.levelsFor(side).Ascend(nil, func(lvl *PriceLevel) bool {
		total += lvl.Aggregate()
		return true
	})
	return total
}

// IDIndexSize reports the number of resting orders tracked, used by
// tests asserting the id_index/resting-order bijection invariant
// (spec.md §8).
func (b *OrderBook) IDIndexSize() int {
	return len(b.idIndex)
}
