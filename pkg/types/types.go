package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ReservePair is one pool's liquidity snapshot, oriented to the base/quote
// pair rather than the pool's token0/token1 ordering.
type ReservePair struct {
	Base  *uint256.Int
	Quote *uint256.Int
}

// NewReservePair builds a ReservePair from plain integers (test and CLI helper)
func NewReservePair(base, quote *big.Int) ReservePair {
	return ReservePair{
		Base:  uint256.MustFromBig(base),
		Quote: uint256.MustFromBig(quote),
	}
}

// Direction names which pool is the buy leg of a round trip
type Direction int

const (
	// DirectionAToB swaps base for quote on pool A and back on pool B
	DirectionAToB Direction = iota
	// DirectionBToA swaps base for quote on pool B and back on pool A
	DirectionBToA
)

func (d Direction) String() string {
	switch d {
	case DirectionAToB:
		return "A->B"
	case DirectionBToA:
		return "B->A"
	default:
		return "unknown"
	}
}

// Opportunity is a profitable round trip found for a single block
type Opportunity struct {
	Direction   Direction
	AmountIn    *uint256.Int
	GrossProfit *big.Int
	// ReverseProfit is the gross profit of the direction not taken
	ReverseProfit *big.Int
}

// TradeOutcome reports what happened to a dispatched trade
type TradeOutcome struct {
	Submitted      bool
	TxHash         common.Hash
	ConfirmedBlock uint64
	GasUsed        uint64
	FailureReason  string
}

// Succeeded reports whether the transaction was included without reverting
func (o TradeOutcome) Succeeded() bool {
	return o.Submitted && o.ConfirmedBlock > 0 && o.FailureReason == ""
}
