package types

import "errors"

// Error kinds shared across the pipeline. Components wrap these so the block
// listener can classify any failure without knowing where it came from.
var (
	ErrInvalidReserves    = errors.New("invalid reserves")
	ErrFetch              = errors.New("fetch reserves")
	ErrSubmission         = errors.New("transaction submission")
	ErrOnChainRevert      = errors.New("transaction reverted")
	ErrInsufficientProfit = errors.New("insufficient profit")
	ErrUnknownPipeline    = errors.New("pipeline failure")
)

// Error kind labels, used in logs and metrics
const (
	KindInvalidReserves    = "invalid_reserves"
	KindFetch              = "fetch"
	KindSubmission         = "submission"
	KindRevert             = "revert"
	KindInsufficientProfit = "insufficient_profit"
	KindUnknown            = "unknown"
)

// Kind classifies err into one of the error kind labels
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidReserves):
		return KindInvalidReserves
	case errors.Is(err, ErrFetch):
		return KindFetch
	case errors.Is(err, ErrSubmission):
		return KindSubmission
	case errors.Is(err, ErrInsufficientProfit):
		return KindInsufficientProfit
	case errors.Is(err, ErrOnChainRevert):
		return KindRevert
	default:
		return KindUnknown
	}
}
