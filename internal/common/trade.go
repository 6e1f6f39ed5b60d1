package common

import "fmt"

// Trade is the emitted, immutable, append-only record of a single
// fill (spec.md §3/§6).
type Trade struct {
	Sequence      uint64
	TS            int64
	MakerOrderID  string
	TakerOrderID  string
	Price         Price
	Quantity      uint64
	AggressorSide Side
}

func (t Trade) String() string {
	return fmt.Sprintf(
		`Sequence:      %d
TS:            %d
Maker:         %s
Taker:         %s
Price:         %v
Quantity:      %d
Aggressor:     %v`,
		t.Sequence, t.TS, t.MakerOrderID, t.TakerOrderID, t.Price, t.Quantity, t.AggressorSide,
	)
}

// ExecutionReport is the per-order state-transition report of
// spec.md §6.
type ExecutionReport struct {
	OrderID               string
	NewState              OrderState
	CumulativeFilled      uint64
	AverageFillPriceTicks Price
	Reason                string
}

func (r ExecutionReport) String() string {
	return fmt.Sprintf(
		`OrderID:          %s
NewState:         %v
CumulativeFilled: %d
AvgFillPrice:     %v
Reason:           %s`,
		r.OrderID, r.NewState, r.CumulativeFilled, r.AverageFillPriceTicks, r.Reason,
	)
}
