package arbitrage

import (
	"math/big"

	"github.com/holiman/uint256"

	"github.com/devlongs/flash-arb/pkg/types"
)

// GrossProfit simulates selling amountIn of the base token into pool a and
// buying it back from pool b. The result is signed: a loss is negative.
func GrossProfit(amountIn *uint256.Int, a, b types.ReservePair, fee Fee) (*big.Int, error) {
	quoteOut, err := SwapOut(amountIn, a.Base, a.Quote, fee)
	if err != nil {
		return nil, err
	}

	// Pool b is consumed in the opposite role: quote in, base out
	baseOut, err := SwapOut(quoteOut, b.Quote, b.Base, fee)
	if err != nil {
		return nil, err
	}

	return new(big.Int).Sub(baseOut.ToBig(), amountIn.ToBig()), nil
}
