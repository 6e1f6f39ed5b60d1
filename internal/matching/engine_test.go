package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lobsim/internal/book"
	"lobsim/internal/common"
)

func newTestEngine() (*Engine, func() uint64) {
	b := book.New("TEST")
	var seq uint64
	nextSeq := func() uint64 { seq++; return seq }
	cfg := Config{
		TickSize:            1,
		SelfTradePolicy:     common.CancelOldest,
		AllowMarketOrders:   true,
		IcebergRefreshDelay: 5,
	}
	return New(b, cfg, nextSeq), nextSeq
}

func limitOrder(id string, side common.Side, price common.Price, qty uint64, ts int64, seq uint64, tif common.TimeInForce) *common.Order {
	return &common.Order{
		OrderID:      id,
		Symbol:       "TEST",
		Side:         side,
		Type:         common.LimitOrder,
		TIF:          tif,
		Price:        price,
		OriginalQty:  qty,
		RemainingQty: qty,
		SubmitTS:     ts,
		ArrivalSeq:   seq,
	}
}

func marketOrder(id string, side common.Side, qty uint64, ts int64, seq uint64) *common.Order {
	return &common.Order{
		OrderID:      id,
		Symbol:       "TEST",
		Side:         side,
		Type:         common.MarketOrder,
		TIF:          common.IOC,
		OriginalQty:  qty,
		RemainingQty: qty,
		SubmitTS:     ts,
		ArrivalSeq:   seq,
	}
}

func submitOK(t *testing.T, e *Engine, order *common.Order, now int64) Result {
	t.Helper()
	require.NoError(t, e.ReserveID(order.OrderID))
	res, err := e.Submit(order, now)
	require.NoError(t, err)
	return res
}

func TestSimpleCrossProducesOneTrade(t *testing.T) {
	e, _ := newTestEngine()
	submitOK(t, e, limitOrder("resting-ask", common.Sell, 100, 10, 1, 1, common.GTC), 1)

	res := submitOK(t, e, limitOrder("taker-bid", common.Buy, 100, 4, 2, 2, common.GTC), 2)

	require.Len(t, res.Trades, 1)
	trade := res.Trades[0]
	assert.Equal(t, common.Price(100), trade.Price)
	assert.Equal(t, uint64(4), trade.Quantity)
	assert.Equal(t, "resting-ask", trade.MakerOrderID)
	assert.Equal(t, "taker-bid", trade.TakerOrderID)
	assert.Equal(t, common.Filled, res.Report.NewState, "maker has 6 remaining but the report is about the taker")
}

func TestWalkTheBookConsumesMultipleLevels(t *testing.T) {
	e, _ := newTestEngine()
	submitOK(t, e, limitOrder("ask-100", common.Sell, 100, 5, 1, 1, common.GTC), 1)
	submitOK(t, e, limitOrder("ask-101", common.Sell, 101, 5, 2, 2, common.GTC), 2)
	submitOK(t, e, limitOrder("ask-102", common.Sell, 102, 5, 3, 3, common.GTC), 3)

	res := submitOK(t, e, marketOrder("sweeper", common.Buy, 12, 4, 4), 4)

	require.Len(t, res.Trades, 3)
	assert.Equal(t, common.Price(100), res.Trades[0].Price)
	assert.Equal(t, common.Price(101), res.Trades[1].Price)
	assert.Equal(t, common.Price(102), res.Trades[2].Price)
	assert.Equal(t, uint64(5), res.Trades[0].Quantity)
	assert.Equal(t, uint64(5), res.Trades[1].Quantity)
	assert.Equal(t, uint64(2), res.Trades[2].Quantity)

	ask, ok := e.Book.BestAsk()
	require.True(t, ok)
	assert.Equal(t, common.Price(102), ask, "partially-filled 102 level remains best ask")
}

func TestPriceTimePriorityFIFOAtSameLevel(t *testing.T) {
	e, _ := newTestEngine()
	submitOK(t, e, limitOrder("first", common.Sell, 100, 5, 1, 1, common.GTC), 1)
	submitOK(t, e, limitOrder("second", common.Sell, 100, 5, 2, 2, common.GTC), 2)

	res := submitOK(t, e, marketOrder("taker", common.Buy, 5, 3, 3), 3)

	require.Len(t, res.Trades, 1)
	assert.Equal(t, "first", res.Trades[0].MakerOrderID, "earlier-arrived order at the same price fills first")
}

func TestFOKRejectsWhenLiquidityInsufficient(t *testing.T) {
	e, _ := newTestEngine()
	submitOK(t, e, limitOrder("ask-100", common.Sell, 100, 5, 1, 1, common.GTC), 1)

	res := submitOK(t, e, limitOrder("fok-taker", common.Buy, 100, 10, 2, 2, common.FOK), 2)

	assert.Empty(t, res.Trades, "FOK must not partially fill")
	assert.Equal(t, common.Rejected, res.Report.NewState)

	ask, ok := e.Book.BestAsk()
	require.True(t, ok)
	assert.Equal(t, common.Price(100), ask, "resting liquidity untouched by a rejected FOK")
}

func TestFOKFillsWhenLiquiditySufficient(t *testing.T) {
	e, _ := newTestEngine()
	submitOK(t, e, limitOrder("ask-100", common.Sell, 100, 5, 1, 1, common.GTC), 1)
	submitOK(t, e, limitOrder("ask-101", common.Sell, 101, 5, 2, 2, common.GTC), 2)

	res := submitOK(t, e, limitOrder("fok-taker", common.Buy, 101, 10, 3, 3, common.FOK), 3)

	require.Len(t, res.Trades, 2)
	assert.Equal(t, common.Filled, res.Report.NewState)
}

func TestPostOnlyRejectedWhenWouldCross(t *testing.T) {
	e, _ := newTestEngine()
	submitOK(t, e, limitOrder("resting-ask", common.Sell, 100, 5, 1, 1, common.GTC), 1)

	res := submitOK(t, e, limitOrder("post-only-bid", common.Buy, 100, 5, 2, 2, common.PostOnly), 2)

	assert.Empty(t, res.Trades)
	assert.Equal(t, common.Rejected, res.Report.NewState)
	bid, ok := e.Book.BestBid()
	assert.False(t, ok, "rejected POST_ONLY order never rests")
	_ = bid
}

func TestPostOnlyAcceptedWhenNonCrossing(t *testing.T) {
	e, _ := newTestEngine()
	submitOK(t, e, limitOrder("resting-ask", common.Sell, 100, 5, 1, 1, common.GTC), 1)

	res := submitOK(t, e, limitOrder("post-only-bid", common.Buy, 99, 5, 2, 2, common.PostOnly), 2)

	assert.Empty(t, res.Trades)
	assert.Equal(t, common.Accepted, res.Report.NewState)
	bid, ok := e.Book.BestBid()
	require.True(t, ok)
	assert.Equal(t, common.Price(99), bid)
}

func TestIOCCancelsResidualInsteadOfResting(t *testing.T) {
	e, _ := newTestEngine()
	submitOK(t, e, limitOrder("resting-ask", common.Sell, 100, 3, 1, 1, common.GTC), 1)

	res := submitOK(t, e, limitOrder("ioc-taker", common.Buy, 100, 10, 2, 2, common.IOC), 2)

	require.Len(t, res.Trades, 1)
	assert.Equal(t, common.Cancelled, res.Report.NewState)
	_, ok := e.Book.BestBid()
	assert.False(t, ok, "IOC residual never rests")
}

func TestIcebergDisplaysOnlySliceAndSchedulesRefresh(t *testing.T) {
	e, _ := newTestEngine()
	iceberg := &common.Order{
		OrderID:      "iceberg-1",
		Symbol:       "TEST",
		Side:         common.Sell,
		Type:         common.IcebergOrder,
		TIF:          common.GTC,
		Price:        100,
		OriginalQty:  30,
		RemainingQty: 30, // ingestion hands the engine the full order size, not the display slice
		DisplayQty:   10,
		SubmitTS:     1,
		ArrivalSeq:   1,
	}
	require.NoError(t, e.ReserveID(iceberg.OrderID))
	_, err := e.Submit(iceberg, 1)
	require.NoError(t, err)

	level, ok := e.Book.AskLevel(100)
	require.True(t, ok)
	assert.Equal(t, uint64(10), level.Aggregate(), "only the displayed slice rests, not the full 30")

	res := submitOK(t, e, marketOrder("sweeper", common.Buy, 10, 2, 2), 2)
	require.Len(t, res.Trades, 1)
	require.Len(t, res.Scheduled, 1)
	assert.Equal(t, ScheduledIcebergRefresh, res.Scheduled[0].Kind)
	assert.Equal(t, "iceberg-1", res.Scheduled[0].OrderID)
	assert.Equal(t, int64(2+5), res.Scheduled[0].TS, "refresh fires after IcebergRefreshDelay")

	refreshRes, refreshedOrder, ok := e.RefreshIceberg("iceberg-1", 7, func() uint64 { return 99 })
	require.True(t, ok)
	assert.Equal(t, uint64(10), refreshedOrder.RemainingQty, "next slice is capped at DisplayQty")
	assert.Equal(t, uint64(10), refreshedOrder.CumulativeFilled, "cumulative fill from the first slice carries over")
	assert.Empty(t, refreshRes.Trades, "no crossing liquidity waiting this time")

	level, ok = e.Book.AskLevel(100)
	require.True(t, ok)
	assert.Equal(t, uint64(10), level.Aggregate(), "fresh displayed slice rests again")
}

func TestIcebergRefreshLosesTimePriority(t *testing.T) {
	e, _ := newTestEngine()
	iceberg := &common.Order{
		OrderID:      "iceberg-1",
		Symbol:       "TEST",
		Side:         common.Sell,
		Type:         common.IcebergOrder,
		TIF:          common.GTC,
		Price:        100,
		OriginalQty:  20,
		RemainingQty: 20, // ingestion hands the engine the full order size, not the display slice
		DisplayQty:   10,
		SubmitTS:     1,
		ArrivalSeq:   1,
	}
	require.NoError(t, e.ReserveID(iceberg.OrderID))
	_, err := e.Submit(iceberg, 1)
	require.NoError(t, err)

	submitOK(t, e, marketOrder("sweeper", common.Buy, 10, 2, 2), 2)

	submitOK(t, e, limitOrder("newcomer", common.Sell, 100, 5, 3, 3, common.GTC), 3)

	_, _, ok := e.RefreshIceberg("iceberg-1", 7, func() uint64 { return 99 })
	require.True(t, ok)

	level, ok := e.Book.AskLevel(100)
	require.True(t, ok)
	orders := level.Orders()
	require.Len(t, orders, 2)
	assert.Equal(t, "newcomer", orders[0].OrderID, "refreshed slice re-queues behind orders that arrived during the refresh delay")
	assert.Equal(t, "iceberg-1", orders[1].OrderID)
}

func TestSelfTradePreventionCancelOldest(t *testing.T) {
	e, _ := newTestEngine()
	e.cfg.SelfTradePolicy = common.CancelOldest

	resting := limitOrder("resting", common.Sell, 100, 5, 1, 1, common.GTC)
	resting.OwnerTag = "alice"
	submitOK(t, e, resting, 1)

	taker := limitOrder("taker", common.Buy, 100, 5, 2, 2, common.GTC)
	taker.OwnerTag = "alice"
	res := submitOK(t, e, taker, 2)

	assert.Empty(t, res.Trades, "the only maker was cancelled, not traded against")
	_, ok := e.Book.BestAsk()
	assert.False(t, ok, "self-trade maker removed from the book")
	bid, ok := e.Book.BestBid()
	require.True(t, ok, "taker now rests since there was nothing left to cross")
	assert.Equal(t, common.Price(100), bid)
}

func TestSelfTradePreventionRejectTaker(t *testing.T) {
	e, _ := newTestEngine()
	e.cfg.SelfTradePolicy = common.RejectTaker

	resting := limitOrder("resting", common.Sell, 100, 5, 1, 1, common.GTC)
	resting.OwnerTag = "alice"
	submitOK(t, e, resting, 1)

	taker := limitOrder("taker", common.Buy, 100, 5, 2, 2, common.GTC)
	taker.OwnerTag = "alice"
	res := submitOK(t, e, taker, 2)

	assert.Empty(t, res.Trades)
	assert.Equal(t, common.Rejected, res.Report.NewState)
	ask, ok := e.Book.BestAsk()
	require.True(t, ok, "resting maker survives a rejected taker")
	assert.Equal(t, common.Price(100), ask)
}

func TestFOKCancelledNotRestedWhenSelfTradeShrinksFill(t *testing.T) {
	e, _ := newTestEngine()
	e.cfg.SelfTradePolicy = common.CancelOldest

	self := limitOrder("self", common.Sell, 100, 5, 1, 1, common.GTC)
	self.OwnerTag = "alice"
	submitOK(t, e, self, 1)

	other := limitOrder("other", common.Sell, 100, 5, 2, 2, common.GTC)
	other.OwnerTag = "bob"
	submitOK(t, e, other, 2)

	// enoughLiquidity sees 10 aggregate at price 100 and lets this FOK
	// through, but 5 of that belongs to the taker's own tag and gets
	// cancelled mid-sweep instead of traded, so the real fill is only 5.
	taker := limitOrder("fok-taker", common.Buy, 100, 10, 3, 3, common.FOK)
	taker.OwnerTag = "alice"
	res := submitOK(t, e, taker, 3)

	require.Len(t, res.Trades, 1, "trades against the non-self maker before the shortfall is discovered")
	assert.Equal(t, uint64(5), res.Trades[0].Quantity)
	assert.Equal(t, common.Cancelled, res.Report.NewState, "FOK residual is cancelled, never rested")

	_, ok := e.Book.BestBid()
	assert.False(t, ok, "no FOK residual ever rests on the book")
}

func TestMarketOrderNeverRests(t *testing.T) {
	e, _ := newTestEngine()
	res := submitOK(t, e, marketOrder("lonely-market", common.Buy, 10, 1, 1), 1)

	assert.Empty(t, res.Trades)
	assert.Equal(t, common.Cancelled, res.Report.NewState)
	_, ok := e.Book.BestBid()
	assert.False(t, ok)
}

func TestMarketOrdersOffRejected(t *testing.T) {
	e, _ := newTestEngine()
	e.cfg.AllowMarketOrders = false

	require.NoError(t, e.ReserveID("m1"))
	_, err := e.Submit(marketOrder("m1", common.Buy, 10, 1, 1), 1)
	assert.ErrorIs(t, err, common.ErrMarketOrdersOff)
}

func TestDuplicateOrderIDRejectedAtReserve(t *testing.T) {
	e, _ := newTestEngine()
	require.NoError(t, e.ReserveID("dup"))
	err := e.ReserveID("dup")
	assert.ErrorIs(t, err, common.ErrDuplicateOrderID)
}

func TestPriceNotTickAlignedRejected(t *testing.T) {
	e, _ := newTestEngine()
	e.cfg.TickSize = 5

	require.NoError(t, e.ReserveID("bad-tick"))
	_, err := e.Submit(limitOrder("bad-tick", common.Buy, 102, 10, 1, 1, common.GTC), 1)
	assert.ErrorIs(t, err, common.ErrPriceNotTickAligned)
}

func TestConservationOfQuantityAcrossATrade(t *testing.T) {
	e, _ := newTestEngine()
	submitOK(t, e, limitOrder("maker", common.Sell, 100, 10, 1, 1, common.GTC), 1)
	res := submitOK(t, e, limitOrder("taker", common.Buy, 100, 6, 2, 2, common.GTC), 2)

	require.Len(t, res.Trades, 1)
	level, ok := e.Book.AskLevel(100)
	require.True(t, ok)
	assert.Equal(t, uint64(4), level.Aggregate(), "maker's remaining quantity conserved: 10 - 6")
}
