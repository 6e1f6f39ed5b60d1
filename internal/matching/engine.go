// Package matching implements the price-time-priority matching
// algorithm of spec.md §4.3: given an incoming aggressive order and
// the current book, produce trades and a residual disposition.
package matching

import (
	"github.com/rs/zerolog/log"

	"lobsim/internal/book"
	"lobsim/internal/common"
)

// Config carries the matching-relevant subset of the book
// configuration object of spec.md §6.
type Config struct {
	TickSize            common.TickSize
	SelfTradePolicy     common.SelfTradePolicy
	AllowMarketOrders   bool
	IcebergRefreshDelay int64
}

// ScheduledKind enumerates events the matching engine asks the
// dispatcher to enqueue on its behalf, since only the dispatcher owns
// the event heap (spec.md §4.4).
type ScheduledKind int

const (
	ScheduledIcebergRefresh ScheduledKind = iota
)

// Scheduled is one event the engine wants the dispatcher to enqueue.
type Scheduled struct {
	Kind    ScheduledKind
	TS      int64
	OrderID string
}

// Result is everything a single Submit/RefreshIceberg call produces.
type Result struct {
	Trades    []common.Trade
	Report    common.ExecutionReport
	Scheduled []Scheduled
}

// Engine applies incoming aggressive orders against a book under
// price-time priority, grounded on internal/engine/orderbook.go's
// Match/handleLimit/handleMarket trio in the teacher repo.
type Engine struct {
	Book    *book.OrderBook
	cfg     Config
	seenID  map[string]struct{}
	nextSeq func() uint64

	// pendingIceberg holds iceberg makers whose displayed slice has
	// fully filled but whose ICEBERG_REFRESH event has not yet fired;
	// during this window the order is not resting (not in id_index)
	// but still "alive" for cancel/lookup purposes.
	pendingIceberg map[string]*common.Order
}

// New constructs a matching engine over book b. nextSeq supplies the
// monotonically increasing trade sequence number (spec.md §6).
func New(b *book.OrderBook, cfg Config, nextSeq func() uint64) *Engine {
	return &Engine{
		Book:           b,
		cfg:            cfg,
		seenID:         make(map[string]struct{}),
		nextSeq:        nextSeq,
		pendingIceberg: make(map[string]*common.Order),
	}
}

// ReserveID enforces global order_id uniqueness across the run
// (spec.md §3), for both engine-submitted orders and stop orders the
// dispatcher is holding in its side table.
func (e *Engine) ReserveID(orderID string) error {
	if _, exists := e.seenID[orderID]; exists {
		return common.ErrDuplicateOrderID
	}
	e.seenID[orderID] = struct{}{}
	return nil
}

func opposite(side common.Side) common.Side {
	if side == common.Buy {
		return common.Sell
	}
	return common.Buy
}

// Submit is the entry point of spec.md §4.3. order must already have
// been reserved via ReserveID and must not be a STOP/STOP_LIMIT order
// that has not yet triggered — the dispatcher converts those to
// MARKET/LIMIT before calling Submit (spec.md §4.4).
func (e *Engine) Submit(order *common.Order, now int64) (Result, error) {
	if order.OriginalQty == 0 || order.RemainingQty == 0 {
		return Result{}, common.ErrNonPositiveQuantity
	}
	if order.Type != common.MarketOrder {
		if order.Price < 0 {
			return Result{}, common.ErrNegativePrice
		}
		if !order.Price.Aligned(e.cfg.TickSize) {
			return Result{}, common.ErrPriceNotTickAligned
		}
	}
	if order.Type == common.MarketOrder && !e.cfg.AllowMarketOrders {
		return Result{}, common.ErrMarketOrdersOff
	}
	if order.IsIceberg() {
		e.sliceIceberg(order)
	}
	return e.execute(order, now), nil
}

// sliceIceberg caps order's live quantity at its displayed slice.
// Submit calls it for the first slice and RefreshIceberg for every
// later re-display, so each slice is capped the same way.
func (e *Engine) sliceIceberg(order *common.Order) {
	hiddenRemaining := order.OriginalQty - order.CumulativeFilled
	slice := order.DisplayQty
	if hiddenRemaining < slice {
		slice = hiddenRemaining
	}
	order.RemainingQty = slice
}

// RefreshIceberg re-displays the next slice of an iceberg maker whose
// previous slice fully filled (spec.md §4.4: "posts a new displayed
// slice at the original order's price but with a fresh submit_ts").
// Called by the dispatcher when an ICEBERG_REFRESH event pops. The
// refreshed slice re-enters the crossing logic (not a bare re-insert)
// since the book may have moved while the refresh was in flight.
func (e *Engine) RefreshIceberg(orderID string, now int64, nextArrivalSeq func() uint64) (Result, *common.Order, bool) {
	order, ok := e.pendingIceberg[orderID]
	if !ok {
		return Result{}, nil, false
	}
	delete(e.pendingIceberg, orderID)

	e.sliceIceberg(order)
	order.SubmitTS = now
	order.ArrivalSeq = nextArrivalSeq()

	return e.execute(order, now), order, true
}

// CancelResting removes a resting order, or — if it is an iceberg
// currently between refreshes — its pending refresh, whichever
// applies. Fails with ErrUnknownOrderID if neither holds the id.
func (e *Engine) CancelResting(orderID string) (*common.Order, error) {
	if order, ok := e.pendingIceberg[orderID]; ok {
		delete(e.pendingIceberg, orderID)
		order.State = common.Cancelled
		return order, nil
	}
	order, err := e.Book.Cancel(orderID)
	if err != nil {
		return nil, err
	}
	order.State = common.Cancelled
	return order, nil
}

// execute runs the crossing sweep of spec.md §4.3 against order,
// which the caller has already validated. It is shared by Submit
// (a brand-new order) and RefreshIceberg (a re-displayed slice of an
// existing iceberg), since both must cross against the live book
// exactly the same way.
func (e *Engine) execute(order *common.Order, now int64) Result {
	oppSide := opposite(order.Side)

	crosses := func() bool {
		if order.Type == common.MarketOrder {
			return true
		}
		if order.Side == common.Buy {
			ask, ok := e.Book.BestAsk()
			return ok && order.Price >= ask
		}
		bid, ok := e.Book.BestBid()
		return ok && order.Price <= bid
	}

	if order.TIF == common.PostOnly && crosses() {
		order.State = common.Rejected
		return Result{Report: rejectReport(order, common.ErrPostOnlyWouldCross)}
	}

	if order.TIF == common.FOK && !e.enoughLiquidity(order, oppSide, crosses) {
		order.State = common.Rejected
		return Result{Report: rejectReport(order, common.ErrFOKInsufficientLiq)}
	}

	var (
		trades    []common.Trade
		scheduled []Scheduled
		haltedBy  common.SelfTradePolicy
		halted    bool
	)

sweep:
	for order.RemainingQty > 0 && crosses() {
		level, ok := e.Book.BestLevel(oppSide)
		if !ok {
			break
		}
		for order.RemainingQty > 0 && !level.IsEmpty() {
			maker := level.PeekFront()

			if order.OwnerTag != "" && maker.OwnerTag == order.OwnerTag {
				switch e.cfg.SelfTradePolicy {
				case common.CancelOldest:
					popped := level.PopFront()
					e.Book.RemoveFromIndex(popped.OrderID)
					popped.State = common.Cancelled
					log.Info().
						Str("cancelledOrderID", popped.OrderID).
						Str("incomingOrderID", order.OrderID).
						Msg("self-trade prevented: cancelled resting order")
					continue
				case common.CancelNewest:
					haltedBy, halted = common.CancelNewest, true
					break sweep
				case common.RejectTaker:
					haltedBy, halted = common.RejectTaker, true
					break sweep
				}
			}

			qty := min(order.RemainingQty, maker.RemainingQty)

			trade := common.Trade{
				Sequence:      e.nextSeq(),
				TS:            now,
				MakerOrderID:  maker.OrderID,
				TakerOrderID:  order.OrderID,
				Price:         maker.Price,
				Quantity:      qty,
				AggressorSide: order.Side,
			}
			trades = append(trades, trade)

			order.RemainingQty -= qty
			order.CumulativeFilled += qty
			order.NotionalFilled += int64(maker.Price) * int64(qty)

			maker.RemainingQty -= qty
			maker.CumulativeFilled += qty
			maker.NotionalFilled += int64(maker.Price) * int64(qty)
			level.AdjustAggregate(-int64(qty))

			if maker.RemainingQty == 0 {
				level.PopFront()
				e.Book.RemoveFromIndex(maker.OrderID)
				hiddenRemaining := maker.OriginalQty - maker.CumulativeFilled
				if maker.IsIceberg() && hiddenRemaining > 0 {
					maker.State = common.Partial
					e.pendingIceberg[maker.OrderID] = maker
					scheduled = append(scheduled, Scheduled{
						Kind:    ScheduledIcebergRefresh,
						TS:      now + e.cfg.IcebergRefreshDelay,
						OrderID: maker.OrderID,
					})
				} else {
					maker.State = common.Filled
				}
			} else {
				maker.State = common.Partial
			}
		}
		if level.IsEmpty() {
			e.Book.DeleteLevel(oppSide, level)
		}
	}

	if halted {
		switch haltedBy {
		case common.RejectTaker:
			order.State = common.Rejected
			return Result{Trades: trades, Scheduled: scheduled, Report: rejectReport(order, common.ErrSelfTradePrevented)}
		case common.CancelNewest:
			order.State = common.Cancelled
			return Result{Trades: trades, Scheduled: scheduled, Report: fillReport(order)}
		}
	}

	// MARKET orders never rest, regardless of TIF (spec.md §4.3).
	if order.Type == common.MarketOrder {
		if order.RemainingQty > 0 {
			order.State = common.Cancelled
		} else {
			order.State = common.Filled
		}
		return Result{Trades: trades, Scheduled: scheduled, Report: fillReport(order)}
	}

	if order.RemainingQty == 0 {
		order.State = common.Filled
		return Result{Trades: trades, Scheduled: scheduled, Report: fillReport(order)}
	}

	switch order.TIF {
	case common.IOC:
		order.State = common.Cancelled
		return Result{Trades: trades, Scheduled: scheduled, Report: fillReport(order)}
	case common.FOK:
		// enoughLiquidity's pre-check sums raw level quantity without
		// knowing which of it shares the taker's OwnerTag; a
		// CancelOldest self-trade cancellation mid-sweep can shrink
		// the real fill below that estimate even though the pre-check
		// passed. Cancel any residual here instead of resting it, so
		// "FOK never rests" holds regardless of why the estimate was
		// wrong.
		order.State = common.Cancelled
		return Result{Trades: trades, Scheduled: scheduled, Report: fillReport(order)}
	default: // DAY, GTC, POST_ONLY (already guaranteed non-crossing)
		if err := e.Book.InsertResting(order); err != nil {
			order.State = common.Rejected
			return Result{Trades: trades, Scheduled: scheduled, Report: rejectReport(order, err)}
		}
		if order.CumulativeFilled > 0 {
			order.State = common.Partial
		} else {
			order.State = common.Accepted
		}
		return Result{Trades: trades, Scheduled: scheduled, Report: fillReport(order)}
	}
}

// enoughLiquidity walks the opposite side read-only (no mutation),
// respecting the price limit a limit order imposes, to decide whether
// a FOK order's full quantity is crossable. This generalizes the
// teacher's handleMarket sanity check (a whole-book aggregate
// comparison) to a price-bounded walk, since FOK applies to limit
// orders too. Self-trade exclusions are not modeled in the pre-check
// (a documented simplification: see DESIGN.md).
func (e *Engine) enoughLiquidity(order *common.Order, oppSide common.Side, crosses func() bool) bool {
	if !crosses() {
		return order.RemainingQty == 0
	}
	var available uint64
	need := order.RemainingQty

	walk := func(lvl *book.PriceLevel) bool {
		if order.Type != common.MarketOrder {
			if order.Side == common.Buy && lvl.Price > order.Price {
				return false
			}
			if order.Side == common.Sell && lvl.Price < order.Price {
				return false
			}
		}
		available += lvl.Aggregate()
		return available < need
	}

	e.Book.WalkLevels(oppSide, walk)
	return available >= need
}

func rejectReport(order *common.Order, reason error) common.ExecutionReport {
	return common.ExecutionReport{
		OrderID:               order.OrderID,
		NewState:              order.State,
		CumulativeFilled:      order.CumulativeFilled,
		AverageFillPriceTicks: order.AverageFillPrice(),
		Reason:                reason.Error(),
	}
}

func fillReport(order *common.Order) common.ExecutionReport {
	return common.ExecutionReport{
		OrderID:               order.OrderID,
		NewState:              order.State,
		CumulativeFilled:      order.CumulativeFilled,
		AverageFillPriceTicks: order.AverageFillPrice(),
	}
}
