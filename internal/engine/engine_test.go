package engine

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devlongs/flash-arb/internal/arbitrage"
	"github.com/devlongs/flash-arb/internal/executor"
	"github.com/devlongs/flash-arb/internal/metrics"
	"github.com/devlongs/flash-arb/internal/output"
	"github.com/devlongs/flash-arb/pkg/types"
)

var (
	baseToken  = common.HexToAddress("0xb0")
	quoteToken = common.HexToAddress("0xd0")
	routerA    = common.HexToAddress("0xa1")
	routerB    = common.HexToAddress("0xa2")
)

func units(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1e18))
}

type fakeFetcher struct {
	a, b   types.ReservePair
	err    error
	blocks []*big.Int
}

func (f *fakeFetcher) FetchReserves(_ context.Context, blockNumber *big.Int) (types.ReservePair, types.ReservePair, error) {
	f.blocks = append(f.blocks, blockNumber)
	return f.a, f.b, f.err
}

type transaction struct {
	method string
	params []interface{}
}

type fakeContract struct {
	sent []transaction
}

func (f *fakeContract) Transact(opts *bind.TransactOpts, method string, params ...interface{}) (*ethtypes.Transaction, error) {
	f.sent = append(f.sent, transaction{method: method, params: params})
	return ethtypes.NewTx(&ethtypes.LegacyTx{Nonce: uint64(len(f.sent)), Gas: opts.GasLimit}), nil
}

type fakeChain struct{}

func (fakeChain) TransactionReceipt(_ context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	return &ethtypes.Receipt{
		Status:      ethtypes.ReceiptStatusSuccessful,
		TxHash:      hash,
		BlockNumber: big.NewInt(19_000_001),
		GasUsed:     180_000,
	}, nil
}

func (fakeChain) CodeAt(_ context.Context, _ common.Address, _ *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

func (fakeChain) CallContract(_ context.Context, _ ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	return nil, nil
}

type recordingExecutor struct {
	calls int
}

func (r *recordingExecutor) Execute(_ context.Context, _ types.Direction, _ *uint256.Int) (types.TradeOutcome, error) {
	r.calls++
	return types.TradeOutcome{}, nil
}

func head(n int64) *ethtypes.Header {
	return &ethtypes.Header{Number: big.NewInt(n)}
}

func newTestEngine(fetcher ReserveFetcher, exec TradeExecutor, dryRun bool) *Engine {
	return New(
		fetcher,
		arbitrage.NewEvaluator(arbitrage.DefaultFee),
		exec,
		output.NewLogger("WETH", 18),
		metrics.New(prometheus.NewRegistry()),
		Options{AmountIn: units(1), PoolAName: "uniswap", PoolBName: "sushiswap", DryRun: dryRun},
	)
}

func divergentReserves() *fakeFetcher {
	// Base is worth 3100 quote on B and 3000 on A
	return &fakeFetcher{
		a: types.ReservePair{Base: units(100), Quote: units(300000)},
		b: types.ReservePair{Base: units(100), Quote: units(310000)},
	}
}

func TestProcessBlockExecutesBToA(t *testing.T) {
	fetcher := divergentReserves()
	contract := &fakeContract{}
	exec := executor.New(contract, fakeChain{}, &bind.TransactOpts{}, executor.Params{
		BaseToken:      baseToken,
		QuoteToken:     quoteToken,
		RouterA:        routerA,
		RouterB:        routerB,
		GasLimit:       1_000_000,
		ConfirmTimeout: time.Second,
	})

	eng := newTestEngine(fetcher, exec, false)
	require.NoError(t, eng.ProcessBlock(context.Background(), head(19_000_000)))

	require.Len(t, fetcher.blocks, 1)
	assert.Equal(t, int64(19_000_000), fetcher.blocks[0].Int64())

	require.Len(t, contract.sent, 1)
	tx := contract.sent[0]
	assert.Equal(t, "executeArbitrage", tx.method)
	assert.Equal(t, baseToken, tx.params[0])
	assert.Equal(t, 0, units(1).ToBig().Cmp(tx.params[1].(*big.Int)))
	assert.Equal(t, routerB, tx.params[2], "buy leg on pool B")
	assert.Equal(t, routerA, tx.params[3], "sell leg on pool A")
	assert.Equal(t, quoteToken, tx.params[4])

	stats := eng.logger.GetStats()
	assert.Equal(t, uint64(1), stats.Opportunities)
	assert.Equal(t, uint64(1), stats.TradesConfirmed)
	assert.Equal(t, uint64(1), stats.BlocksProcessed)
}

func TestProcessBlockNoOpportunity(t *testing.T) {
	reserves := types.ReservePair{Base: units(100), Quote: units(300000)}
	exec := &recordingExecutor{}

	eng := newTestEngine(&fakeFetcher{a: reserves, b: reserves}, exec, false)
	require.NoError(t, eng.ProcessBlock(context.Background(), head(1)))

	assert.Zero(t, exec.calls)
	assert.Equal(t, uint64(1), eng.logger.GetStats().BlocksProcessed)
}

func TestProcessBlockDryRun(t *testing.T) {
	exec := &recordingExecutor{}

	eng := newTestEngine(divergentReserves(), exec, true)
	require.NoError(t, eng.ProcessBlock(context.Background(), head(2)))

	assert.Zero(t, exec.calls)
	assert.Equal(t, uint64(1), eng.logger.GetStats().Opportunities)
}

func TestProcessBlockNilExecutorIsDryRun(t *testing.T) {
	eng := newTestEngine(divergentReserves(), nil, false)
	assert.NoError(t, eng.ProcessBlock(context.Background(), head(3)))
}

func TestProcessBlockFetchError(t *testing.T) {
	fetchErr := errors.Join(types.ErrFetch, errors.New("connection refused"))
	exec := &recordingExecutor{}

	eng := newTestEngine(&fakeFetcher{err: fetchErr}, exec, false)
	err := eng.ProcessBlock(context.Background(), head(4))

	require.Error(t, err)
	assert.Equal(t, types.KindFetch, types.Kind(err))
	assert.Zero(t, exec.calls)
}

func TestProcessBlockInvalidReserves(t *testing.T) {
	fetcher := &fakeFetcher{
		a: types.ReservePair{Base: uint256.NewInt(0), Quote: units(300000)},
		b: types.ReservePair{Base: units(100), Quote: units(310000)},
	}
	exec := &recordingExecutor{}

	eng := newTestEngine(fetcher, exec, false)
	err := eng.ProcessBlock(context.Background(), head(5))

	require.Error(t, err)
	assert.Equal(t, types.KindInvalidReserves, types.Kind(err))
	assert.Zero(t, exec.calls)
}

func TestTradeResult(t *testing.T) {
	assert.Equal(t, metrics.TradeConfirmed, TradeResult(nil))
	assert.Equal(t, metrics.TradeSubmissionFailed, TradeResult(types.ErrSubmission))
	assert.Equal(t, metrics.TradeInsufficientProfit, TradeResult(errors.Join(types.ErrOnChainRevert, types.ErrInsufficientProfit)))
	assert.Equal(t, metrics.TradeReverted, TradeResult(types.ErrOnChainRevert))
	assert.Equal(t, metrics.TradeUnconfirmed, TradeResult(executor.ErrConfirmation))
}
