package uniswapv2

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devlongs/flash-arb/pkg/types"
)

var (
	weth   = common.HexToAddress("0x7b79995e5f793A07Bc00c21412e50Ecae098E7f9")
	dai    = common.HexToAddress("0x68194a729C2450ad26072b3D33ADaCbcef39D574")
	poolA  = common.HexToAddress("0x1a840552B5B49d525BA65d3a27072522435F3E22")
	poolB  = common.HexToAddress("0x43aE14AB2d525A41793BF256F28A55c15C9b2518")
	router = common.HexToAddress("0xC532a74256D3Db421739eff4C62325Ab08118683")
)

type pairState struct {
	token0, token1     common.Address
	reserve0, reserve1 *big.Int
	err                error
	raw                []byte
}

// fakeCaller answers pair calls from in-memory state
type fakeCaller struct {
	mu     sync.Mutex
	pairs  map[common.Address]pairState
	blocks []*big.Int
	// barrier, when set, holds every getReserves call until n calls are in flight
	barrier *sync.WaitGroup
}

func (f *fakeCaller) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	f.mu.Lock()
	state, ok := f.pairs[*msg.To]
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no contract at %s", msg.To.Hex())
	}

	selector := msg.Data[:4]
	switch {
	case bytes.Equal(selector, pairABI.Methods["token0"].ID):
		return common.LeftPadBytes(state.token0.Bytes(), 32), nil
	case bytes.Equal(selector, pairABI.Methods["token1"].ID):
		return common.LeftPadBytes(state.token1.Bytes(), 32), nil
	case bytes.Equal(selector, pairABI.Methods["getReserves"].ID):
		f.mu.Lock()
		f.blocks = append(f.blocks, blockNumber)
		f.mu.Unlock()

		if f.barrier != nil {
			f.barrier.Done()
			waited := make(chan struct{})
			go func() {
				f.barrier.Wait()
				close(waited)
			}()
			select {
			case <-waited:
			case <-time.After(2 * time.Second):
				return nil, errors.New("reserve reads were not issued concurrently")
			}
		}

		if state.err != nil {
			return nil, state.err
		}
		if state.raw != nil {
			return state.raw, nil
		}
		return pairABI.Methods["getReserves"].Outputs.Pack(state.reserve0, state.reserve1, uint32(1700000000))
	}
	return nil, errors.New("unknown selector")
}

func tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{
		pairs: map[common.Address]pairState{
			// base is token0 on A, token1 on B
			poolA: {token0: weth, token1: dai, reserve0: tokens(100), reserve1: tokens(300000)},
			poolB: {token0: dai, token1: weth, reserve0: tokens(310000), reserve1: tokens(100)},
		},
	}
}

func TestResolvePool(t *testing.T) {
	ctx := context.Background()
	reader := NewReader(newFakeCaller())

	a, err := reader.ResolvePool(ctx, "uniswap", poolA, router, weth, dai)
	require.NoError(t, err)
	assert.True(t, a.BaseIsToken0)
	assert.Equal(t, router, a.Router)
	assert.Equal(t, "uniswap", a.Name)

	b, err := reader.ResolvePool(ctx, "sushiswap", poolB, router, weth, dai)
	require.NoError(t, err)
	assert.False(t, b.BaseIsToken0)
}

func TestResolvePoolWrongPair(t *testing.T) {
	other := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	_, err := NewReader(newFakeCaller()).ResolvePool(context.Background(), "uniswap", poolA, router, weth, other)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trades")
}

func TestResolvePoolCallFailure(t *testing.T) {
	missing := common.HexToAddress("0x00000000000000000000000000000000000000bb")

	_, err := NewReader(newFakeCaller()).ResolvePool(context.Background(), "uniswap", missing, router, weth, dai)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token0")
}

func TestFetchReservesOrientsAndPinsBlock(t *testing.T) {
	ctx := context.Background()
	caller := newFakeCaller()
	reader := NewReader(caller)

	a, err := reader.ResolvePool(ctx, "uniswap", poolA, router, weth, dai)
	require.NoError(t, err)
	b, err := reader.ResolvePool(ctx, "sushiswap", poolB, router, weth, dai)
	require.NoError(t, err)

	fetcher := NewFetcher(reader, a, b)
	block := big.NewInt(4_200_000)

	reservesA, reservesB, err := fetcher.FetchReserves(ctx, block)
	require.NoError(t, err)

	assert.Equal(t, uint256.MustFromBig(tokens(100)), reservesA.Base)
	assert.Equal(t, uint256.MustFromBig(tokens(300000)), reservesA.Quote)
	assert.Equal(t, uint256.MustFromBig(tokens(100)), reservesB.Base)
	assert.Equal(t, uint256.MustFromBig(tokens(310000)), reservesB.Quote)

	require.Len(t, caller.blocks, 2)
	for _, n := range caller.blocks {
		assert.Equal(t, 0, n.Cmp(block))
	}
}

func TestFetchReservesConcurrent(t *testing.T) {
	caller := newFakeCaller()
	caller.barrier = &sync.WaitGroup{}
	caller.barrier.Add(2)

	fetcher := NewFetcher(NewReader(caller),
		Pool{Name: "a", Address: poolA, BaseIsToken0: true},
		Pool{Name: "b", Address: poolB},
	)

	_, _, err := fetcher.FetchReserves(context.Background(), big.NewInt(1))
	require.NoError(t, err)
}

func TestFetchReservesFailure(t *testing.T) {
	tests := []struct {
		name  string
		state pairState
	}{
		{"rpc error", pairState{err: errors.New("connection reset")}},
		{"malformed response", pairState{raw: []byte{0x01, 0x02}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caller := newFakeCaller()
			caller.pairs[poolB] = tt.state

			fetcher := NewFetcher(NewReader(caller),
				Pool{Name: "a", Address: poolA, BaseIsToken0: true},
				Pool{Name: "b", Address: poolB},
			)

			reservesA, reservesB, err := fetcher.FetchReserves(context.Background(), big.NewInt(1))
			require.Error(t, err)
			assert.ErrorIs(t, err, types.ErrFetch)
			assert.Equal(t, types.KindFetch, types.Kind(err))
			assert.Contains(t, err.Error(), poolB.Hex())
			assert.Nil(t, reservesA.Base)
			assert.Nil(t, reservesB.Base)
		})
	}
}

func TestOrient(t *testing.T) {
	r0, r1 := uint256.NewInt(1), uint256.NewInt(2)

	p := Pool{BaseIsToken0: true}.Orient(r0, r1)
	assert.Equal(t, r0, p.Base)
	assert.Equal(t, r1, p.Quote)

	p = Pool{}.Orient(r0, r1)
	assert.Equal(t, r1, p.Base)
	assert.Equal(t, r0, p.Quote)
}
