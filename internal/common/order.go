package common

import (
	"fmt"
)

type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "BUY"
	}
	return "SELL"
}

// Sign returns +1 for Buy, -1 for Sell. Used by the impact accounting
// (spec.md §4.5) to orient spread/latency cost against side.
func (s Side) Sign() int64 {
	if s == Buy {
		return 1
	}
	return -1
}

type OrderType int

const (
	LimitOrder OrderType = iota
	MarketOrder
	StopOrder
	StopLimitOrder
	IcebergOrder
)

func (t OrderType) String() string {
	switch t {
	case LimitOrder:
		return "LIMIT"
	case MarketOrder:
		return "MARKET"
	case StopOrder:
		return "STOP"
	case StopLimitOrder:
		return "STOP_LIMIT"
	case IcebergOrder:
		return "ICEBERG"
	default:
		return "UNKNOWN"
	}
}

type TimeInForce int

const (
	DAY TimeInForce = iota
	IOC
	FOK
	GTC
	PostOnly
)

func (tif TimeInForce) String() string {
	switch tif {
	case DAY:
		return "DAY"
	case IOC:
		return "IOC"
	case FOK:
		return "FOK"
	case GTC:
		return "GTC"
	case PostOnly:
		return "POST_ONLY"
	default:
		return "UNKNOWN"
	}
}

// SelfTradePolicy governs how a crossing order that would trade
// against its own owner_tag is handled (spec.md §4.3, §9).
type SelfTradePolicy int

const (
	CancelOldest SelfTradePolicy = iota
	CancelNewest
	RejectTaker
)

func (p SelfTradePolicy) String() string {
	switch p {
	case CancelOldest:
		return "CANCEL_OLDEST"
	case CancelNewest:
		return "CANCEL_NEWEST"
	case RejectTaker:
		return "REJECT_TAKER"
	default:
		return "UNKNOWN"
	}
}

// OrderState is the per-order state machine of spec.md §4.4:
// PENDING -> ACCEPTED -> (PARTIAL*) -> FILLED | CANCELLED | REJECTED.
type OrderState int

const (
	Pending OrderState = iota
	Accepted
	Partial
	Filled
	Cancelled
	Rejected
)

func (s OrderState) String() string {
	switch s {
	case Pending:
		return "PENDING"
	case Accepted:
		return "ACCEPTED"
	case Partial:
		return "PARTIAL"
	case Filled:
		return "FILLED"
	case Cancelled:
		return "CANCELLED"
	case Rejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

// Order is the immutable-identity, mutable-residual-quantity record
// of spec.md §3. Fields not relevant to an order's OrderType are left
// zero (e.g. DisplayQty for a non-iceberg order).
type Order struct {
	OrderID       string
	Symbol        string
	Side          Side
	Type          OrderType
	TIF           TimeInForce
	Price         Price // unused for MARKET
	StopPrice     Price // trigger price for STOP / STOP_LIMIT
	OriginalQty   uint64
	RemainingQty  uint64
	DisplayQty    uint64 // ICEBERG only; 0 means "not an iceberg"
	SubmitTS      int64  // logical timestamp used for time priority
	ArrivalSeq    uint64 // monotonically increasing arrival sequence number
	OwnerTag      string // opaque identifier for self-trade prevention

	// Cumulative-fill bookkeeping for average_fill_price_ticks (§6),
	// supplemented beyond spec.md's explicit field list.
	CumulativeFilled uint64
	NotionalFilled   int64 // sum of price_ticks * qty over all fills

	State OrderState
}

// IsIceberg reports whether the order displays only a fraction of its
// total quantity.
func (o *Order) IsIceberg() bool {
	return o.DisplayQty > 0 && o.DisplayQty < o.OriginalQty
}

// AverageFillPrice returns the volume-weighted average fill price in
// ticks, or 0 if nothing has filled yet.
func (o *Order) AverageFillPrice() Price {
	if o.CumulativeFilled == 0 {
		return 0
	}
	return Price(o.NotionalFilled / int64(o.CumulativeFilled))
}

func (o Order) String() string {
	return fmt.Sprintf(
		`OrderID:      %s
Symbol:       %s
Side:         %v
Type:         %v
TIF:          %v
Price:        %v
Quantity:     %d (Total: %d)
SubmitTS:     %d
OwnerTag:     %s
State:        %v`,
		o.OrderID, o.Symbol, o.Side, o.Type, o.TIF, o.Price,
		o.RemainingQty, o.OriginalQty, o.SubmitTS, o.OwnerTag, o.State,
	)
}
