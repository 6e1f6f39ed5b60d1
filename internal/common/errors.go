package common

import "errors"

// Error taxonomy. Validation errors are local and terminal to the
// offending event; they never mutate book state (spec.md §7).
var (
	ErrDuplicateOrderID    = errors.New("duplicate order id")
	ErrUnknownOrderID      = errors.New("unknown order id")
	ErrNonPositiveQuantity = errors.New("non-positive quantity")
	ErrNegativePrice       = errors.New("negative price")
	ErrPriceNotTickAligned = errors.New("price not tick aligned")
	ErrTimestampRegression = errors.New("timestamp regression")
	ErrPostOnlyWouldCross  = errors.New("post-only order would cross")
	ErrFOKInsufficientLiq  = errors.New("fill-or-kill insufficient liquidity")
	ErrMarketOrdersOff     = errors.New("market orders disabled")
	ErrSelfTradePrevented  = errors.New("self trade prevented")
	ErrUnsupportedOrder    = errors.New("unsupported order configuration")
)
