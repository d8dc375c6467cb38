package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog/log"

	"github.com/devlongs/flash-arb/internal/arbitrage"
	"github.com/devlongs/flash-arb/internal/metrics"
	"github.com/devlongs/flash-arb/internal/output"
	"github.com/devlongs/flash-arb/pkg/types"
)

// ReserveFetcher snapshots both pools at a block
type ReserveFetcher interface {
	FetchReserves(ctx context.Context, blockNumber *big.Int) (types.ReservePair, types.ReservePair, error)
}

// TradeExecutor dispatches a round trip and waits for its outcome
type TradeExecutor interface {
	Execute(ctx context.Context, dir types.Direction, amountIn *uint256.Int) (types.TradeOutcome, error)
}

// Options configures the pipeline
type Options struct {
	AmountIn  *uint256.Int
	PoolAName string
	PoolBName string
	DryRun    bool
}

// Engine runs the per-block pipeline: fetch, evaluate, execute
type Engine struct {
	fetcher   ReserveFetcher
	evaluator *arbitrage.Evaluator
	executor  TradeExecutor
	logger    *output.Logger
	metrics   *metrics.Metrics
	opts      Options
}

// New creates an engine. A nil executor forces dry-run.
func New(fetcher ReserveFetcher, evaluator *arbitrage.Evaluator, executor TradeExecutor, logger *output.Logger, m *metrics.Metrics, opts Options) *Engine {
	if executor == nil {
		opts.DryRun = true
	}
	return &Engine{
		fetcher:   fetcher,
		evaluator: evaluator,
		executor:  executor,
		logger:    logger,
		metrics:   m,
		opts:      opts,
	}
}

// ProcessBlock runs the pipeline against the state at head. Errors are
// returned with their kind attached and are not logged here.
func (e *Engine) ProcessBlock(ctx context.Context, head *ethtypes.Header) error {
	start := time.Now()
	block := head.Number.Uint64()

	reservesA, reservesB, err := e.fetcher.FetchReserves(ctx, head.Number)
	if err != nil {
		return err
	}
	e.logger.LogReserves(block, e.opts.PoolAName, reservesA, e.opts.PoolBName, reservesB)

	opp, err := e.evaluator.Evaluate(e.opts.AmountIn, reservesA, reservesB)
	if err != nil {
		return err
	}

	if opp == nil {
		e.complete(block, false, start)
		return nil
	}

	buy, sell := e.opts.PoolAName, e.opts.PoolBName
	if opp.Direction == types.DirectionBToA {
		buy, sell = sell, buy
	}
	e.logger.LogOpportunity(block, opp, buy, sell)
	e.metrics.Opportunity(opp.Direction.String())

	if e.opts.DryRun {
		log.Info().Uint64("block", block).Msg("Dry run, not executing")
		e.complete(block, true, start)
		return nil
	}

	outcome, err := e.executor.Execute(ctx, opp.Direction, opp.AmountIn)
	e.logger.LogTradeOutcome(block, outcome)
	e.metrics.Trade(TradeResult(err))
	e.complete(block, true, start)

	if err != nil {
		return fmt.Errorf("execute %s: %w", opp.Direction, err)
	}
	return nil
}

func (e *Engine) complete(block uint64, opportunity bool, start time.Time) {
	d := time.Since(start)
	e.logger.LogBlockComplete(block, opportunity, d)
	e.metrics.BlockProcessed(d)
}

// TradeResult maps an Execute error to a trade result label
func TradeResult(err error) string {
	switch {
	case err == nil:
		return metrics.TradeConfirmed
	case errors.Is(err, types.ErrSubmission):
		return metrics.TradeSubmissionFailed
	case errors.Is(err, types.ErrInsufficientProfit):
		return metrics.TradeInsufficientProfit
	case errors.Is(err, types.ErrOnChainRevert):
		return metrics.TradeReverted
	default:
		return metrics.TradeUnconfirmed
	}
}
