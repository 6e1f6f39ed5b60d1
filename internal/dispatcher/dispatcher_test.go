package dispatcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lobsim/internal/book"
	"lobsim/internal/common"
	"lobsim/internal/matching"
	"lobsim/internal/publisher"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *book.OrderBook) {
	t.Helper()
	b := book.New("TEST")
	pub := publisher.New(b)
	var seq uint64
	nextSeq := func() uint64 { seq++; return seq }
	engine := matching.New(b, matching.Config{
		TickSize:            1,
		SelfTradePolicy:     common.CancelOldest,
		AllowMarketOrders:   true,
		IcebergRefreshDelay: 3,
	}, nextSeq)
	return New(engine, pub, Config{MaxCascadeDepth: 4}), b
}

func limitOrder(id string, side common.Side, price common.Price, qty uint64) *common.Order {
	return &common.Order{
		OrderID:      id,
		Symbol:       "TEST",
		Side:         side,
		Type:         common.LimitOrder,
		TIF:          common.GTC,
		Price:        price,
		OriginalQty:  qty,
		RemainingQty: qty,
	}
}

func TestSubmitOrdersEventsByTimestampThenSequence(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var seen []string
	d.SubscribeReports(func(r common.ExecutionReport) {
		seen = append(seen, r.OrderID)
	})

	assert.True(t, d.Submit(&Event{TS: 5, Kind: Submit, Order: limitOrder("b", common.Buy, 10, 1)}))
	assert.True(t, d.Submit(&Event{TS: 1, Kind: Submit, Order: limitOrder("a", common.Buy, 10, 1)}))
	assert.True(t, d.Submit(&Event{TS: 5, Kind: Submit, Order: limitOrder("c", common.Buy, 10, 1)}))

	d.Drain()

	assert.Equal(t, []string{"a", "b", "c"}, seen, "lower ts first, then enqueue order as the tie-break")
}

func TestSubmitRejectsTimestampRegression(t *testing.T) {
	d, _ := newTestDispatcher(t)

	d.Submit(&Event{TS: 10, Kind: Submit, Order: limitOrder("a", common.Buy, 10, 1)})
	d.Drain()
	assert.Equal(t, int64(10), d.CurrentTS())

	ok := d.Submit(&Event{TS: 5, Kind: Submit, Order: limitOrder("b", common.Buy, 10, 1)})
	assert.False(t, ok, "an event timestamped before currentTS is rejected outright")
}

func TestCancelRemovesRestingOrder(t *testing.T) {
	d, b := newTestDispatcher(t)

	var reports []common.ExecutionReport
	d.SubscribeReports(func(r common.ExecutionReport) { reports = append(reports, r) })

	d.Submit(&Event{TS: 1, Kind: Submit, Order: limitOrder("a", common.Buy, 10, 5)})
	d.Submit(&Event{TS: 2, Kind: Cancel, OrderID: "a"})
	d.Drain()

	_, ok := b.BestBid()
	assert.False(t, ok)
	require.Len(t, reports, 2)
	assert.Equal(t, common.Cancelled, reports[1].NewState)
}

func TestCancelUnknownOrderIsRejected(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var reports []common.ExecutionReport
	d.SubscribeReports(func(r common.ExecutionReport) { reports = append(reports, r) })

	d.Submit(&Event{TS: 1, Kind: Cancel, OrderID: "ghost"})
	d.Drain()

	require.Len(t, reports, 1)
	assert.Equal(t, common.Rejected, reports[0].NewState)
}

func TestModifyAppliedThroughDispatcher(t *testing.T) {
	d, b := newTestDispatcher(t)

	d.Submit(&Event{TS: 1, Kind: Submit, Order: limitOrder("a", common.Buy, 10, 5)})
	newPrice := common.Price(11)
	d.Submit(&Event{TS: 2, Kind: Modify, OrderID: "a", NewQty: 5, NewPrice: &newPrice})
	d.Drain()

	_, ok := b.BidLevel(10)
	assert.False(t, ok)
	level, ok := b.BidLevel(11)
	require.True(t, ok)
	assert.Equal(t, uint64(5), level.Aggregate())
}

func TestStopOrderParksUntilTriggered(t *testing.T) {
	d, b := newTestDispatcher(t)

	var reports []common.ExecutionReport
	d.SubscribeReports(func(r common.ExecutionReport) { reports = append(reports, r) })

	stop := &common.Order{
		OrderID:      "stop-buy",
		Symbol:       "TEST",
		Side:         common.Buy,
		Type:         common.StopOrder,
		TIF:          common.IOC,
		StopPrice:    105,
		OriginalQty:  5,
		RemainingQty: 5,
	}
	d.Submit(&Event{TS: 1, Kind: Submit, Order: stop})
	d.Drain()

	require.Len(t, reports, 1)
	assert.Equal(t, common.Pending, reports[0].NewState)
	_, ok := b.BestBid()
	assert.False(t, ok, "a parked stop order never rests in the book")
}

func TestStopOrderTriggersOnCrossingTrade(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var reports []common.ExecutionReport
	d.SubscribeReports(func(r common.ExecutionReport) { reports = append(reports, r) })

	stop := &common.Order{
		OrderID:      "stop-buy",
		Symbol:       "TEST",
		Side:         common.Buy,
		Type:         common.StopOrder,
		TIF:          common.IOC,
		StopPrice:    100,
		OriginalQty:  5,
		RemainingQty: 5,
	}
	d.Submit(&Event{TS: 1, Kind: Submit, Order: stop})

	d.Submit(&Event{TS: 2, Kind: Submit, Order: limitOrder("resting-ask", common.Sell, 100, 15)})
	d.Submit(&Event{TS: 3, Kind: Submit, Order: limitOrder("trigger-buy", common.Buy, 100, 10)})

	d.Drain()

	var sawFill bool
	for _, r := range reports {
		if r.OrderID == "stop-buy" && r.NewState == common.Filled {
			sawFill = true
		}
	}
	assert.True(t, sawFill, "the stop order converts to a market order once the trade price crosses its trigger")
}

func TestIcebergRefreshScheduledByEngineFiresThroughDispatcher(t *testing.T) {
	d, b := newTestDispatcher(t)

	iceberg := &common.Order{
		OrderID:      "iceberg-1",
		Symbol:       "TEST",
		Side:         common.Sell,
		Type:         common.IcebergOrder,
		TIF:          common.GTC,
		Price:        100,
		OriginalQty:  20,
		RemainingQty: 10,
		DisplayQty:   10,
	}
	d.Submit(&Event{TS: 1, Kind: Submit, Order: iceberg})
	d.Submit(&Event{TS: 2, Kind: Submit, Order: limitOrder("sweeper", common.Buy, 100, 10)})

	d.Drain()

	level, ok := b.AskLevel(100)
	require.True(t, ok, "the refreshed slice rests again once the scheduled refresh event fires")
	assert.Equal(t, uint64(10), level.Aggregate())
}

func TestDuplicateOrderIDAcrossEventsIsRejected(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var reports []common.ExecutionReport
	d.SubscribeReports(func(r common.ExecutionReport) { reports = append(reports, r) })

	d.Submit(&Event{TS: 1, Kind: Submit, Order: limitOrder("dup", common.Buy, 10, 5)})
	d.Submit(&Event{TS: 2, Kind: Submit, Order: limitOrder("dup", common.Buy, 11, 5)})
	d.Drain()

	require.Len(t, reports, 2)
	assert.Equal(t, common.Rejected, reports[1].NewState)
}
