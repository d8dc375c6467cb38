package uniswapv2

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog/log"

	"github.com/devlongs/flash-arb/pkg/types"
)

// PairABI is the subset of the Uniswap V2 pair interface the bot reads
const PairABI = `[
	{"constant":true,"inputs":[],"name":"getReserves","outputs":[{"name":"reserve0","type":"uint112"},{"name":"reserve1","type":"uint112"},{"name":"blockTimestampLast","type":"uint32"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"token0","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"token1","outputs":[{"name":"","type":"address"}],"stateMutability":"view","type":"function"}
]`

var pairABI = mustParseABI(PairABI)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("uniswapv2: invalid pair ABI: %v", err))
	}
	return parsed
}

// Caller executes read-only contract calls
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Reader reads state from Uniswap V2 style pair contracts
type Reader struct {
	caller Caller
}

// NewReader creates a new pair reader
func NewReader(caller Caller) *Reader {
	return &Reader{caller: caller}
}

// GetReserves fetches the pair reserves as of blockNumber (nil for latest)
func (r *Reader) GetReserves(ctx context.Context, pool common.Address, blockNumber *big.Int) (*uint256.Int, *uint256.Int, error) {
	out, err := r.call(ctx, pool, "getReserves", blockNumber)
	if err != nil {
		return nil, nil, err
	}
	if len(out) < 2 {
		return nil, nil, fmt.Errorf("invalid getReserves response: %d values", len(out))
	}

	reserve0, err := toUint256(out[0])
	if err != nil {
		return nil, nil, fmt.Errorf("reserve0: %w", err)
	}
	reserve1, err := toUint256(out[1])
	if err != nil {
		return nil, nil, fmt.Errorf("reserve1: %w", err)
	}

	return reserve0, reserve1, nil
}

// Tokens returns the pair's token0 and token1 addresses
func (r *Reader) Tokens(ctx context.Context, pool common.Address) (common.Address, common.Address, error) {
	token0, err := r.callAddress(ctx, pool, "token0")
	if err != nil {
		return common.Address{}, common.Address{}, fmt.Errorf("failed to get token0: %w", err)
	}

	token1, err := r.callAddress(ctx, pool, "token1")
	if err != nil {
		return common.Address{}, common.Address{}, fmt.Errorf("failed to get token1: %w", err)
	}

	return token0, token1, nil
}

// ResolvePool checks that the pair at address trades exactly base/quote and
// records which side of the pair holds the base token.
func (r *Reader) ResolvePool(ctx context.Context, name string, address, router, base, quote common.Address) (Pool, error) {
	token0, token1, err := r.Tokens(ctx, address)
	if err != nil {
		return Pool{}, fmt.Errorf("pool %s: %w", name, err)
	}

	pool := Pool{Name: name, Address: address, Router: router}
	switch {
	case token0 == base && token1 == quote:
		pool.BaseIsToken0 = true
	case token0 == quote && token1 == base:
		pool.BaseIsToken0 = false
	default:
		return Pool{}, fmt.Errorf("pool %s (%s) trades %s/%s, want %s/%s",
			name, address.Hex(), token0.Hex(), token1.Hex(), base.Hex(), quote.Hex())
	}

	log.Debug().
		Str("pool", name).
		Str("address", address.Hex()).
		Str("token0", token0.Hex()).
		Str("token1", token1.Hex()).
		Bool("baseIsToken0", pool.BaseIsToken0).
		Msg("Resolved V2 pool")

	return pool, nil
}

func (r *Reader) call(ctx context.Context, pool common.Address, method string, blockNumber *big.Int) ([]interface{}, error) {
	data, err := pairABI.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	result, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &pool, Data: data}, blockNumber)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	out, err := pairABI.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return out, nil
}

func (r *Reader) callAddress(ctx context.Context, pool common.Address, method string) (common.Address, error) {
	out, err := r.call(ctx, pool, method, nil)
	if err != nil {
		return common.Address{}, err
	}
	if len(out) == 0 {
		return common.Address{}, fmt.Errorf("invalid %s response", method)
	}

	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("invalid %s response type %T", method, out[0])
	}
	return addr, nil
}

func toUint256(v interface{}) (*uint256.Int, error) {
	b, ok := v.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected type %T", v)
	}
	u, overflow := uint256.FromBig(b)
	if overflow {
		return nil, fmt.Errorf("value %s exceeds 256 bits", b)
	}
	return u, nil
}

// Pool is a resolved pair the bot trades against
type Pool struct {
	Name         string
	Address      common.Address
	Router       common.Address
	BaseIsToken0 bool
}

// Orient maps raw token0/token1 reserves onto the base/quote pair
func (p Pool) Orient(reserve0, reserve1 *uint256.Int) types.ReservePair {
	if p.BaseIsToken0 {
		return types.ReservePair{Base: reserve0, Quote: reserve1}
	}
	return types.ReservePair{Base: reserve1, Quote: reserve0}
}
