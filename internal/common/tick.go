package common

import "fmt"

// Price is a signed price expressed in integer ticks. All matching
// arithmetic happens in ticks; conversion to monetary units only
// happens at the boundary (internal/wire, internal/config).
type Price int64

// TickSize is the instrument-defined minimum price increment,
// expressed in the same integer tick units as Price (spec.md §3: "1
// tick = $0.01" means Price already counts cents and TickSize==1; a
// coarser instrument might require TickSize==5, i.e. only prices that
// are multiples of 5 are valid).
type TickSize int64

// Aligned reports whether p is a non-negative integral multiple of
// tick, the book-wide invariant of spec.md §3.
func (p Price) Aligned(tick TickSize) bool {
	if tick <= 0 {
		return p >= 0
	}
	return p >= 0 && int64(p)%int64(tick) == 0
}

// Mid returns the (possibly half-tick) midpoint of two prices as a
// doubled-integer value: callers divide by 2 themselves or use MidF
// for a float64 view. Doubling avoids losing the half-tick component
// to integer division, per the GLOSSARY's "Mid" definition.
func Mid(bid, ask Price) int64 {
	return int64(bid) + int64(ask)
}

// MidF returns the floating mid price (bid+ask)/2.
func MidF(bid, ask Price) float64 {
	return float64(Mid(bid, ask)) / 2.0
}

func (p Price) String() string {
	return fmt.Sprintf("%d", int64(p))
}
