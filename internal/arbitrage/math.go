package arbitrage

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/devlongs/flash-arb/pkg/types"
)

// ErrOverflow is returned when an intermediate product does not fit in 256 bits
var ErrOverflow = errors.New("swap math overflow")

// Fee is the proportional fee a constant-product pool keeps from the input,
// expressed as the fraction of the input that is actually swapped.
type Fee struct {
	Numerator   uint64
	Denominator uint64
}

// DefaultFee is the Uniswap V2 fee (0.3% retained by the pool)
var DefaultFee = Fee{Numerator: 997, Denominator: 1000}

// Validate checks that the fee is a fraction in (0, 1]
func (f Fee) Validate() error {
	if f.Denominator == 0 || f.Numerator == 0 || f.Numerator > f.Denominator {
		return fmt.Errorf("invalid fee %d/%d", f.Numerator, f.Denominator)
	}
	return nil
}

// SwapOut returns the output amount of a constant-product swap, rounded down
// like the on-chain pair contract.
//
//	amountOut = amountIn*num*reserveOut / (reserveIn*den + amountIn*num)
func SwapOut(amountIn, reserveIn, reserveOut *uint256.Int, fee Fee) (*uint256.Int, error) {
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, fmt.Errorf("%w: reserveIn=%s reserveOut=%s", types.ErrInvalidReserves, reserveIn.Dec(), reserveOut.Dec())
	}
	if amountIn.IsZero() {
		return new(uint256.Int), nil
	}

	amountInWithFee, overflow := new(uint256.Int).MulOverflow(amountIn, uint256.NewInt(fee.Numerator))
	if overflow {
		return nil, fmt.Errorf("%w: amountIn*fee", ErrOverflow)
	}

	numerator, overflow := new(uint256.Int).MulOverflow(amountInWithFee, reserveOut)
	if overflow {
		return nil, fmt.Errorf("%w: numerator", ErrOverflow)
	}

	denominator, overflow := new(uint256.Int).MulOverflow(reserveIn, uint256.NewInt(fee.Denominator))
	if overflow {
		return nil, fmt.Errorf("%w: reserveIn*den", ErrOverflow)
	}
	if _, overflow = denominator.AddOverflow(denominator, amountInWithFee); overflow {
		return nil, fmt.Errorf("%w: denominator", ErrOverflow)
	}

	return new(uint256.Int).Div(numerator, denominator), nil
}
