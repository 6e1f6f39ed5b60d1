// Package impact decomposes each taker-side fill into spread,
// temporary-impact, permanent-impact, and latency cost components
// per the Almgren-Chriss model of spec.md §4.5. Parameters are
// configuration with no prescribed defaults; the shape of Params
// follows the mapstructure-tagged config structs of
// 0xtitan6-polymarket-mm/internal/config/config.go's StrategyConfig.
package impact

import (
	"math"

	"lobsim/internal/common"
)

// Params are the four recognized impact-model keys of spec.md §4.5/§6.
type Params struct {
	Eta           float64 `mapstructure:"eta"`            // bps per unit participation, temporary
	Gamma         float64 `mapstructure:"gamma"`          // bps per unit participation, permanent
	ADV           float64 `mapstructure:"adv"`            // shares per session
	DecayHalfLife int64   `mapstructure:"decay_half_life"` // ticks of logical time
}

// Cost is the four-way decomposition of one fill's execution cost
// against its reference mid, attributed to a single trade.
type Cost struct {
	OrderID         string
	Sequence        uint64
	SpreadCost      float64
	TemporaryImpact float64
	PermanentImpact float64
	LatencyCost     float64
}

// Total sums the four components into one signed cost figure.
func (c Cost) Total() float64 {
	return c.SpreadCost + c.TemporaryImpact + c.PermanentImpact + c.LatencyCost
}

// Accountant holds the running state of the impact model across an
// entire book's lifetime: the decaying temporary-impact component and
// the persistent permanent-impact shift it applies to the fair-price
// estimate (spec.md §4.5: permanent impact "persists as a shift added
// to the fair-price estimate that influences subsequent temporary
// impact baselines").
type Accountant struct {
	cfg Params

	permanentShift float64
	tempImpact     float64
	lastDecayTS    int64
	haveLastDecay  bool
}

// New constructs an Accountant with the given parameters. ADV of 0
// disables participation-based impact (division is skipped, yielding
// zero temporary/permanent impact) rather than panicking, since the
// spec prescribes no defaults and a misconfigured ADV should degrade
// gracefully rather than crash the book.
func New(cfg Params) *Accountant {
	return &Accountant{cfg: cfg}
}

// FairMid returns the impact-adjusted reference price at logical time
// now, given the book's raw (best_bid+best_ask)/2 mid. This is what
// callers should treat as "the fair-price estimate" of spec.md §4.5,
// distinct from the book's raw mid.
func (a *Accountant) FairMid(now int64, rawMid float64) float64 {
	a.decayTo(now)
	return rawMid + a.permanentShift + a.tempImpact
}

func (a *Accountant) decayTo(now int64) {
	if !a.haveLastDecay {
		a.lastDecayTS = now
		a.haveLastDecay = true
		return
	}
	if now <= a.lastDecayTS || a.cfg.DecayHalfLife <= 0 {
		a.lastDecayTS = now
		return
	}
	elapsed := now - a.lastDecayTS
	factor := math.Pow(0.5, float64(elapsed)/float64(a.cfg.DecayHalfLife))
	a.tempImpact *= factor
	a.lastDecayTS = now
}

// Record attributes one trade fill's cost against referenceMid (the
// mid taken just before matching began) and submitMid (the mid
// captured at the moment the order was first submitted, which differs
// from referenceMid only when the order waited in the dispatcher's
// heap). The dispatcher passes the book's raw (best_bid+best_ask)/2
// mid for both; the decayed temporary impact and the permanent shift
// are not folded into them (only FairMid applies those). arrivalTS is the logical
// time at which this fill actually occurred.
//
// Record both returns this fill's Cost and mutates the Accountant's
// decaying/persistent state so later fills see the updated baseline.
func (a *Accountant) Record(order *common.Order, trade common.Trade, referenceMid, submitMid float64, arrivalTS int64) Cost {
	a.decayTo(arrivalTS)

	sign := float64(order.Side.Sign())
	qty := float64(trade.Quantity)
	fillPrice := float64(trade.Price)

	spreadCost := (fillPrice - referenceMid) * sign * qty

	var temp, perm float64
	if a.cfg.ADV > 0 {
		participation := qty / a.cfg.ADV
		temp = a.cfg.Eta * participation
		perm = a.cfg.Gamma * participation
	}
	a.tempImpact += temp
	a.permanentShift += perm * sign

	var latency float64
	if delta := arrivalTS - order.SubmitTS; delta > 0 {
		latency = (referenceMid - submitMid) * sign * qty
	}

	return Cost{
		OrderID:         order.OrderID,
		Sequence:        trade.Sequence,
		SpreadCost:      spreadCost,
		TemporaryImpact: temp,
		PermanentImpact: perm,
		LatencyCost:     latency,
	}
}

// Ledger accumulates Cost totals per order, a convenience for
// analytics consumers that want a running summary rather than a raw
// per-fill stream.
type Ledger struct {
	totals map[string]Cost
}

// NewLedger constructs an empty per-order cost ledger.
func NewLedger() *Ledger {
	return &Ledger{totals: make(map[string]Cost)}
}

// Add folds c into the running total for c.OrderID.
func (l *Ledger) Add(c Cost) {
	t := l.totals[c.OrderID]
	t.OrderID = c.OrderID
	t.Sequence = c.Sequence
	t.SpreadCost += c.SpreadCost
	t.TemporaryImpact += c.TemporaryImpact
	t.PermanentImpact += c.PermanentImpact
	t.LatencyCost += c.LatencyCost
	l.totals[c.OrderID] = t
}

// For returns the accumulated Cost for orderID, or a zero Cost if
// no fill has been recorded for it.
func (l *Ledger) For(orderID string) Cost {
	return l.totals[orderID]
}
