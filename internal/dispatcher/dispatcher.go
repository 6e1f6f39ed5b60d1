// Package dispatcher drives a single order book's matching engine
// forward one event at a time in strict (ts, sequence) order
// (spec.md §4.4), grounded on the teacher's net/server.go session
// drain loop — here simplified from a network read-loop to an
// in-process event-heap drain, since network I/O is out of scope.
package dispatcher

import (
	"container/heap"

	"github.com/rs/zerolog/log"

	"lobsim/internal/common"
	"lobsim/internal/impact"
	"lobsim/internal/matching"
	"lobsim/internal/publisher"
)

// ReportSubscriber is invoked synchronously after each execution
// report.
type ReportSubscriber func(common.ExecutionReport)

// Config carries the dispatcher-level knobs of spec.md §9.
type Config struct {
	MaxCascadeDepth int // caps STOP_TRIGGER feedback loops; 0 means 1 (no cascading)
}

// Dispatcher owns one OrderBook's matching.Engine exclusively
// (spec.md §5: "the book is exclusively owned by its dispatcher").
// Multi-book simulation runs one Dispatcher per book; see
// internal/runner for parallel execution across books.
type Dispatcher struct {
	engine *matching.Engine
	pub    *publisher.Publisher
	cfg    Config

	heap eventHeap
	seq  uint64 // Event.Seq generator — assigned at enqueue time

	arrivalSeq uint64 // common.Order.ArrivalSeq generator — assigned at processing time

	currentTS int64

	// stops holds STOP/STOP_LIMIT orders awaiting trigger, keyed by
	// order_id, per spec.md §4.4's "side table".
	stops map[string]*common.Order

	lastTrade *common.Trade

	reports    []common.ExecutionReport
	reportSubs []ReportSubscriber

	// accountant/ledger implement the slippage & impact accounting of
	// spec.md §4.5. Both are optional: a Dispatcher with neither set
	// simply skips cost attribution, since impact parameters have no
	// prescribed defaults.
	accountant  *impact.Accountant
	ledger      *impact.Ledger
	submitMidAt map[string]float64
}

// New constructs a Dispatcher driving engine, publishing trades and
// snapshots through pub.
func New(engine *matching.Engine, pub *publisher.Publisher, cfg Config) *Dispatcher {
	if cfg.MaxCascadeDepth <= 0 {
		cfg.MaxCascadeDepth = 1
	}
	d := &Dispatcher{
		engine: engine,
		pub:    pub,
		cfg:    cfg,
		stops:  make(map[string]*common.Order),
	}
	heap.Init(&d.heap)
	return d
}

// SubscribeReports registers fn to be called after every execution report.
func (d *Dispatcher) SubscribeReports(fn ReportSubscriber) {
	d.reportSubs = append(d.reportSubs, fn)
}

// EnableImpactAccounting attaches the slippage/impact model of
// spec.md §4.5 to this dispatcher. Every taker-side fill from this
// point on is recorded against a, with running per-order totals kept
// in ledger.
func (d *Dispatcher) EnableImpactAccounting(a *impact.Accountant, ledger *impact.Ledger) {
	d.accountant = a
	d.ledger = ledger
	if d.submitMidAt == nil {
		d.submitMidAt = make(map[string]float64)
	}
}

// Ledger returns the per-order impact cost ledger, or nil if impact
// accounting was never enabled.
func (d *Dispatcher) Ledger() *impact.Ledger {
	return d.ledger
}

func (d *Dispatcher) rawMid() (float64, bool) {
	doubled, ok := d.engine.Book.Mid()
	if !ok {
		return 0, false
	}
	return float64(doubled) / 2.0, true
}

// Tape returns the append-only trade tape accumulated so far.
func (d *Dispatcher) Tape() []common.Trade {
	return d.pub.Tape()
}

// CurrentTS returns the dispatcher's current logical time.
func (d *Dispatcher) CurrentTS() int64 {
	return d.currentTS
}

// Submit enqueues ev. Returns false (and logs, emitting no book
// mutation) if ev.TS is in the dispatcher's past — "submitting in the
// past is rejected" (spec.md §5).
func (d *Dispatcher) Submit(ev *Event) bool {
	if ev.TS < d.currentTS {
		log.Warn().
			Int64("eventTS", ev.TS).
			Int64("currentTS", d.currentTS).
			Str("kind", ev.Kind.String()).
			Msg("event rejected: timestamp regression")
		return false
	}
	if ev.Kind == Submit && d.accountant != nil && ev.Order != nil {
		if mid, ok := d.rawMid(); ok {
			d.submitMidAt[ev.Order.OrderID] = mid
		}
	}

	d.seq++
	ev.Seq = d.seq
	heap.Push(&d.heap, ev)
	return true
}

// RunUntil drains every event with ts <= until, advancing logical
// time as it goes (spec.md §6: "run_until(ts) drains events up to and
// including ts").
func (d *Dispatcher) RunUntil(until int64) {
	for d.heap.Len() > 0 && d.heap[0].TS <= until {
		ev := heap.Pop(&d.heap).(*Event)
		d.currentTS = ev.TS
		d.process(ev, 0)
	}
}

// Drain processes every remaining event regardless of ts, used at
// simulation end.
func (d *Dispatcher) Drain() {
	for d.heap.Len() > 0 {
		ev := heap.Pop(&d.heap).(*Event)
		d.currentTS = ev.TS
		d.process(ev, 0)
	}
}

func (d *Dispatcher) nextArrivalSeq() uint64 {
	d.arrivalSeq++
	return d.arrivalSeq
}

// process dispatches a single popped event to the matching engine.
// cascadeDepth counts STOP_TRIGGER generations chained from a single
// originating trade, per spec.md §9's cascade-depth cap.
func (d *Dispatcher) process(ev *Event, cascadeDepth int) {
	switch ev.Kind {
	case Submit:
		d.handleSubmit(ev.Order, cascadeDepth)

	case Cancel:
		d.handleCancel(ev.OrderID)

	case Modify:
		d.handleModify(ev.OrderID, ev.NewQty, ev.NewPrice)

	case StopTrigger:
		order, ok := d.stops[ev.OrderID]
		if !ok {
			return // already cancelled or triggered by an earlier cascade step
		}
		delete(d.stops, ev.OrderID)
		d.triggerStop(order)
		d.matchAndPublish(order, cascadeDepth)

	case IcebergRefresh:
		referenceMid, _ := d.rawMid()
		result, order, ok := d.engine.RefreshIceberg(ev.OrderID, d.currentTS, d.nextArrivalSeq)
		if ok {
			d.publish(result, cascadeDepth)
			d.account(order, result.Trades, referenceMid)
		}
	}
}

// handleSubmit reserves the order's id, diverts STOP/STOP_LIMIT
// orders into the side table until triggered, and otherwise hands the
// order straight to the matching engine. Only called for an order's
// first arrival as a SUBMIT event — a triggered stop re-enters via
// matchAndPublish directly, since its id is already reserved.
func (d *Dispatcher) handleSubmit(order *common.Order, cascadeDepth int) {
	if err := d.engine.ReserveID(order.OrderID); err != nil {
		d.emitReport(common.ExecutionReport{
			OrderID:  order.OrderID,
			NewState: common.Rejected,
			Reason:   err.Error(),
		})
		return
	}

	if order.Type == common.StopOrder || order.Type == common.StopLimitOrder {
		order.State = common.Pending
		d.stops[order.OrderID] = order
		d.emitReport(common.ExecutionReport{OrderID: order.OrderID, NewState: common.Pending})
		return
	}

	d.matchAndPublish(order, cascadeDepth)
}

// matchAndPublish hands a reserved, non-stop order straight to the
// matching engine and fans out the result. Shared by handleSubmit's
// fresh-order path and the STOP_TRIGGER path, which must skip
// ReserveID since the triggered order's id was already reserved at
// its original submission.
func (d *Dispatcher) matchAndPublish(order *common.Order, cascadeDepth int) {
	referenceMid, _ := d.rawMid()
	result, err := d.engine.Submit(order, d.currentTS)
	if err != nil {
		d.emitReport(common.ExecutionReport{
			OrderID:  order.OrderID,
			NewState: common.Rejected,
			Reason:   err.Error(),
		})
		return
	}
	d.publish(result, cascadeDepth)
	d.account(order, result.Trades, referenceMid)
}

// triggerStop converts a triggered STOP into a MARKET order and a
// triggered STOP_LIMIT into a LIMIT order at its original price,
// matching conventional exchange behavior (spec.md §4.4 describes the
// STOP_TRIGGER event but leaves the post-trigger order shape to
// convention).
func (d *Dispatcher) triggerStop(order *common.Order) {
	if order.Type == common.StopOrder {
		order.Type = common.MarketOrder
	} else {
		order.Type = common.LimitOrder
	}
}

func (d *Dispatcher) handleCancel(orderID string) {
	if order, ok := d.stops[orderID]; ok {
		delete(d.stops, orderID)
		order.State = common.Cancelled
		d.emitReport(common.ExecutionReport{OrderID: orderID, NewState: common.Cancelled})
		return
	}
	order, err := d.engine.CancelResting(orderID)
	if err != nil {
		d.emitReport(common.ExecutionReport{OrderID: orderID, NewState: common.Rejected, Reason: err.Error()})
		return
	}
	d.emitReport(common.ExecutionReport{OrderID: orderID, NewState: order.State})
}

// handleModify applies a resting-order modification. Re-crossing on a
// price change that would now cross the book is not modeled: the
// engine treats a modified order as staying resting, consistent with
// spec.md §4.2's framing of modify as a book-local operation rather
// than a new aggressive submission (a simplification).
func (d *Dispatcher) handleModify(orderID string, newQty uint64, newPrice *common.Price) {
	err := d.engine.Book.Modify(orderID, newQty, newPrice, d.currentTS, d.nextArrivalSeq)
	if err != nil {
		d.emitReport(common.ExecutionReport{OrderID: orderID, NewState: common.Rejected, Reason: err.Error()})
		return
	}
	d.emitReport(common.ExecutionReport{OrderID: orderID, NewState: common.Accepted})
}

// account attributes impact.Cost to each of order's taker-side fills,
// per spec.md §4.5, when impact accounting is enabled.
func (d *Dispatcher) account(order *common.Order, trades []common.Trade, referenceMid float64) {
	if d.accountant == nil || len(trades) == 0 {
		return
	}
	submitMid, ok := d.submitMidAt[order.OrderID]
	if !ok {
		submitMid = referenceMid
	}
	for _, tr := range trades {
		cost := d.accountant.Record(order, tr, referenceMid, submitMid, d.currentTS)
		if d.ledger != nil {
			d.ledger.Add(cost)
		}
	}
}

// publish fans a matching.Result out to the trade tape, execution
// report, scheduled follow-up events, and subscribers, then checks
// resting stops against the new last-trade price.
func (d *Dispatcher) publish(result matching.Result, cascadeDepth int) {
	for _, tr := range result.Trades {
		d.lastTrade = &tr
		d.pub.RecordTrade(tr)
	}
	d.emitReport(result.Report)

	for _, sch := range result.Scheduled {
		switch sch.Kind {
		case matching.ScheduledIcebergRefresh:
			d.Submit(&Event{TS: sch.TS, Kind: IcebergRefresh, OrderID: sch.OrderID})
		}
	}

	if len(result.Trades) > 0 {
		d.checkStops(cascadeDepth)
	}
}

func (d *Dispatcher) emitReport(report common.ExecutionReport) {
	d.reports = append(d.reports, report)
	for _, sub := range d.reportSubs {
		sub(report)
	}
}

// checkStops inspects every resting stop against the last trade price
// and, for each that now crosses, converts and matches it at once,
// inside the processing of the triggering event and after its trades.
// No STOP_TRIGGER event is enqueued, so a triggered stop executes
// ahead of any other event already queued at the same ts. cascadeDepth bounds the resulting
// trigger→trade→trigger feedback loop (spec.md §9).
func (d *Dispatcher) checkStops(cascadeDepth int) {
	if d.lastTrade == nil || len(d.stops) == 0 {
		return
	}
	if cascadeDepth >= d.cfg.MaxCascadeDepth {
		log.Warn().
			Int("cascadeDepth", cascadeDepth).
			Msg("stop-trigger cascade depth cap reached; further triggers suppressed this event")
		return
	}
	last := d.lastTrade.Price

	var triggered []*common.Order
	for _, order := range d.stops {
		if stopCrosses(order, last) {
			triggered = append(triggered, order)
		}
	}
	for _, order := range triggered {
		delete(d.stops, order.OrderID)
		d.triggerStop(order)
		d.matchAndPublish(order, cascadeDepth+1)
	}
}

func stopCrosses(order *common.Order, lastTrade common.Price) bool {
	if order.Side == common.Buy {
		return lastTrade >= order.StopPrice
	}
	return lastTrade <= order.StopPrice
}
