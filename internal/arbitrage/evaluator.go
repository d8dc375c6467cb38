package arbitrage

import (
	"github.com/holiman/uint256"

	"github.com/devlongs/flash-arb/pkg/types"
)

// Evaluator picks which round trip, if any, is worth dispatching for a
// pair of reserve snapshots.
type Evaluator struct {
	fee Fee
}

// NewEvaluator creates an evaluator charging fee on each leg
func NewEvaluator(fee Fee) *Evaluator {
	return &Evaluator{fee: fee}
}

// Evaluate computes the gross profit of both directions and returns the one to
// trade, or nil when neither is strictly positive. A->B wins whenever it is
// profitable, even if B->A is too.
func (e *Evaluator) Evaluate(amountIn *uint256.Int, reservesA, reservesB types.ReservePair) (*types.Opportunity, error) {
	profitAToB, err := GrossProfit(amountIn, reservesA, reservesB, e.fee)
	if err != nil {
		return nil, err
	}

	profitBToA, err := GrossProfit(amountIn, reservesB, reservesA, e.fee)
	if err != nil {
		return nil, err
	}

	switch {
	case profitAToB.Sign() > 0:
		return &types.Opportunity{
			Direction:     types.DirectionAToB,
			AmountIn:      amountIn.Clone(),
			GrossProfit:   profitAToB,
			ReverseProfit: profitBToA,
		}, nil
	case profitBToA.Sign() > 0:
		return &types.Opportunity{
			Direction:     types.DirectionBToA,
			AmountIn:      amountIn.Clone(),
			GrossProfit:   profitBToA,
			ReverseProfit: profitAToB,
		}, nil
	default:
		return nil, nil
	}
}
