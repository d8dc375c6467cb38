package arbitrage

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devlongs/flash-arb/pkg/types"
)

func pair(base, quote *uint256.Int) types.ReservePair {
	return types.ReservePair{Base: base, Quote: quote}
}

func TestGrossProfitSameReservesIsLoss(t *testing.T) {
	reserves := pair(units(100), units(300000))

	for _, amountIn := range []*uint256.Int{uint256.NewInt(1), uint256.NewInt(1e12), units(1), units(10), units(90)} {
		profit, err := GrossProfit(amountIn, reserves, reserves, DefaultFee)
		require.NoError(t, err)
		assert.Negative(t, profit.Sign(), "amountIn=%s", amountIn.Dec())
	}
}

func TestGrossProfitDivergentPrices(t *testing.T) {
	// Base trades at 3000 quote on A and 3100 quote on B
	reservesA := pair(units(100), units(300000))
	reservesB := pair(units(100), units(310000))
	amountIn := units(1)

	// Sell where base is expensive, buy back where it is cheap
	profit, err := GrossProfit(amountIn, reservesB, reservesA, DefaultFee)
	require.NoError(t, err)
	assert.Positive(t, profit.Sign())

	reverse, err := GrossProfit(amountIn, reservesA, reservesB, DefaultFee)
	require.NoError(t, err)
	assert.Negative(t, reverse.Sign())
}

func TestGrossProfitSpreadBelowFees(t *testing.T) {
	// A 0.17% spread cannot pay two 0.3% fees, and 10 tokens against
	// 100-token pools adds heavy slippage on top
	reservesA := pair(units(100), units(300000))
	reservesB := pair(units(100), units(300500))
	amountIn := units(10)

	aToB, err := GrossProfit(amountIn, reservesA, reservesB, DefaultFee)
	require.NoError(t, err)
	bToA, err := GrossProfit(amountIn, reservesB, reservesA, DefaultFee)
	require.NoError(t, err)

	assert.Negative(t, aToB.Sign())
	assert.Negative(t, bToA.Sign())
}

func TestGrossProfitLargeMagnitudes(t *testing.T) {
	reservesA := pair(units(10000), units(30000000))
	reservesB := pair(units(10000), units(31000000))

	profit, err := GrossProfit(units(10), reservesB, reservesA, DefaultFee)
	require.NoError(t, err)
	assert.Positive(t, profit.Sign())

	// 1000 tokens: no overflow, result is just a number
	_, err = GrossProfit(units(1000), reservesA, pair(units(10000), units(30050000)), DefaultFee)
	require.NoError(t, err)
}

func TestGrossProfitInvalidReserves(t *testing.T) {
	good := pair(units(100), units(300000))

	_, err := GrossProfit(units(1), pair(new(uint256.Int), units(1)), good, DefaultFee)
	assert.ErrorIs(t, err, types.ErrInvalidReserves)

	_, err = GrossProfit(units(1), good, pair(units(1), new(uint256.Int)), DefaultFee)
	assert.ErrorIs(t, err, types.ErrInvalidReserves)
}
