package arbitrage

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devlongs/flash-arb/pkg/types"
)

func TestEvaluateSelectsProfitableDirection(t *testing.T) {
	cheap := pair(units(100), units(300000))
	expensive := pair(units(100), units(310000))
	evaluator := NewEvaluator(DefaultFee)

	tests := []struct {
		name      string
		reservesA types.ReservePair
		reservesB types.ReservePair
		expected  types.Direction
	}{
		{"base expensive on A", expensive, cheap, types.DirectionAToB},
		{"base expensive on B", cheap, expensive, types.DirectionBToA},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opp, err := evaluator.Evaluate(units(1), tt.reservesA, tt.reservesB)
			require.NoError(t, err)
			require.NotNil(t, opp)

			assert.Equal(t, tt.expected, opp.Direction)
			assert.Positive(t, opp.GrossProfit.Sign())
			assert.Negative(t, opp.ReverseProfit.Sign())
			assert.Equal(t, units(1), opp.AmountIn)
		})
	}
}

func TestEvaluateNoOpportunity(t *testing.T) {
	evaluator := NewEvaluator(DefaultFee)
	reserves := pair(units(100), units(300000))

	opp, err := evaluator.Evaluate(units(10), reserves, reserves)
	require.NoError(t, err)
	assert.Nil(t, opp)

	opp, err = evaluator.Evaluate(units(10), reserves, pair(units(100), units(300500)))
	require.NoError(t, err)
	assert.Nil(t, opp)
}

func TestEvaluateZeroAmount(t *testing.T) {
	evaluator := NewEvaluator(DefaultFee)

	// Zero in, zero out: profit is exactly zero, which is not a trade
	opp, err := evaluator.Evaluate(new(uint256.Int), pair(units(100), units(300000)), pair(units(100), units(310000)))
	require.NoError(t, err)
	assert.Nil(t, opp)
}

func TestEvaluatePrefersAToBWhenBothProfit(t *testing.T) {
	// A fee above 1 inflates both legs so every round trip "profits";
	// only the tie-break is under test here
	evaluator := NewEvaluator(Fee{Numerator: 2000, Denominator: 1000})
	reserves := pair(units(100), units(100))

	opp, err := evaluator.Evaluate(units(1), reserves, reserves)
	require.NoError(t, err)
	require.NotNil(t, opp)

	assert.Equal(t, types.DirectionAToB, opp.Direction)
	assert.Positive(t, opp.ReverseProfit.Sign())
}

func TestEvaluateInvalidReserves(t *testing.T) {
	evaluator := NewEvaluator(DefaultFee)

	opp, err := evaluator.Evaluate(units(1), pair(units(100), units(300000)), pair(new(uint256.Int), units(1)))
	assert.Nil(t, opp)
	assert.ErrorIs(t, err, types.ErrInvalidReserves)
}
