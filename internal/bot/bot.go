package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/devlongs/flash-arb/internal/arbitrage"
	"github.com/devlongs/flash-arb/internal/config"
	"github.com/devlongs/flash-arb/internal/dex/uniswapv2"
	"github.com/devlongs/flash-arb/internal/engine"
	"github.com/devlongs/flash-arb/internal/eth"
	"github.com/devlongs/flash-arb/internal/executor"
	"github.com/devlongs/flash-arb/internal/listener"
	"github.com/devlongs/flash-arb/internal/metrics"
	"github.com/devlongs/flash-arb/internal/output"
	"github.com/devlongs/flash-arb/pkg/types"
)

// ErrNoSigner is returned by operations that need a signing key when the bot
// was started in dry-run mode
var ErrNoSigner = errors.New("no signing key configured")

// Bot wires the node client, pool readers, evaluator and executor together
type Bot struct {
	cfg       *config.Config
	client    *eth.Client
	fetcher   *uniswapv2.Fetcher
	evaluator *arbitrage.Evaluator
	executor  *executor.Executor
	engine    *engine.Engine
	logger    *output.Logger
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
}

// New connects to the node and resolves both pools. The executor is only
// created when cfg allows trading.
func New(ctx context.Context, cfg *config.Config) (*Bot, error) {
	client, err := eth.NewClient(ctx, cfg.RPC)
	if err != nil {
		return nil, err
	}

	b, err := build(ctx, cfg, client)
	if err != nil {
		client.Close()
		return nil, err
	}
	return b, nil
}

func build(ctx context.Context, cfg *config.Config, client *eth.Client) (*Bot, error) {
	m := cfg.Market

	fee := arbitrage.Fee{Numerator: m.FeeNumerator, Denominator: m.FeeDenominator}
	if err := fee.Validate(); err != nil {
		return nil, err
	}

	reader := uniswapv2.NewReader(client)
	poolA, err := reader.ResolvePool(ctx, m.PoolA.Name, m.PoolA.Address, m.PoolA.Router, m.BaseToken, m.QuoteToken)
	if err != nil {
		return nil, err
	}
	poolB, err := reader.ResolvePool(ctx, m.PoolB.Name, m.PoolB.Address, m.PoolB.Router, m.BaseToken, m.QuoteToken)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	b := &Bot{
		cfg:       cfg,
		client:    client,
		fetcher:   uniswapv2.NewFetcher(reader, poolA, poolB),
		evaluator: arbitrage.NewEvaluator(fee),
		logger:    output.NewLogger(m.BaseSymbol, m.BaseDecimals),
		registry:  registry,
		metrics:   metrics.New(registry),
	}

	// Keep the interface nil in dry-run so the engine never dispatches
	var trader engine.TradeExecutor
	if !cfg.Engine.DryRun {
		b.executor, err = newExecutor(cfg, client)
		if err != nil {
			return nil, err
		}
		trader = b.executor
	}

	b.engine = b.newEngine(trader)
	return b, nil
}

func newExecutor(cfg *config.Config, client *eth.Client) (*executor.Executor, error) {
	opts, err := executor.NewTransactor(cfg.Wallet.PrivateKey, client.ChainID())
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("wallet", opts.From.Hex()).
		Str("contract", cfg.Contract.Address.Hex()).
		Msg("Signer ready")

	binding := executor.NewBinding(cfg.Contract.Address, client.Backend())
	return executor.New(binding, client, opts, executor.Params{
		Address:        cfg.Contract.Address,
		BaseToken:      cfg.Market.BaseToken,
		QuoteToken:     cfg.Market.QuoteToken,
		RouterA:        cfg.Market.PoolA.Router,
		RouterB:        cfg.Market.PoolB.Router,
		GasLimit:       cfg.Contract.GasLimit,
		ConfirmTimeout: cfg.Contract.ConfirmTimeout,
		ExplorerURL:    cfg.Contract.ExplorerURL,
	}), nil
}

func (b *Bot) newEngine(trader engine.TradeExecutor) *engine.Engine {
	return engine.New(b.fetcher, b.evaluator, trader, b.logger, b.metrics, engine.Options{
		AmountIn:  b.cfg.Market.FlashLoanAmount,
		PoolAName: b.cfg.Market.PoolA.Name,
		PoolBName: b.cfg.Market.PoolB.Name,
		DryRun:    b.cfg.Engine.DryRun,
	})
}

// Run listens for new blocks until ctx is cancelled
func (b *Bot) Run(ctx context.Context) error {
	source, err := HeadSource(b.cfg.Listener, b.client)
	if err != nil {
		return err
	}

	lst, err := listener.New(source, b.engine, b.logger, b.metrics, b.cfg.Listener)
	if err != nil {
		return err
	}

	log.Info().
		Str("flashLoanAmount", output.FormatUnits(b.cfg.Market.FlashLoanAmount.ToBig(), b.cfg.Market.BaseDecimals)+" "+b.cfg.Market.BaseSymbol).
		Float64("minProfitUSD", b.cfg.Market.MinProfitUSD).
		Bool("dryRun", b.cfg.Engine.DryRun).
		Msg("Starting arbitrage bot (profit threshold is enforced by the contract)")

	g, gctx := errgroup.WithContext(ctx)
	if b.cfg.Metrics.Enabled {
		g.Go(func() error {
			return metrics.Serve(gctx, b.cfg.Metrics.Addr, b.registry)
		})
	}
	g.Go(func() error {
		return lst.Run(gctx)
	})

	err = g.Wait()
	b.logger.LogStats()
	return err
}

// Check runs the pipeline once against the latest block without trading
func (b *Bot) Check(ctx context.Context) error {
	head, err := b.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return err
	}

	log.Info().Uint64("block", head.Number.Uint64()).Msg("Checking latest block")
	return b.newEngine(nil).ProcessBlock(ctx, head)
}

// Withdraw sweeps the contract's balance of token to the owner
func (b *Bot) Withdraw(ctx context.Context, token common.Address) (types.TradeOutcome, error) {
	if b.executor == nil {
		return types.TradeOutcome{}, fmt.Errorf("withdraw: %w", ErrNoSigner)
	}
	return b.executor.Withdraw(ctx, token)
}

// Close shuts down the node connection
func (b *Bot) Close() {
	b.client.Close()
}

// HeadSource picks how new blocks are discovered for the configured mode
func HeadSource(cfg config.ListenerConfig, client *eth.Client) (listener.HeadSource, error) {
	streaming := client.SupportsSubscriptions()
	return selectSource(cfg, streaming,
		func() listener.HeadSource { return listener.NewSubscriptionSource(client, cfg.ResubscribeBackoff) },
		func() listener.HeadSource { return listener.NewPollingSource(client, cfg.PollInterval) },
	)
}

func selectSource(cfg config.ListenerConfig, streaming bool, push, poll func() listener.HeadSource) (listener.HeadSource, error) {
	switch cfg.Mode {
	case config.ModeSubscribe:
		if !streaming {
			return nil, errors.New("listener.mode subscribe needs a ws:// or ipc endpoint")
		}
		log.Info().Msg("Using head subscription")
		return push(), nil
	case config.ModePoll:
		log.Info().Dur("interval", cfg.PollInterval).Msg("Polling for new heads")
		return poll(), nil
	case config.ModeAuto, "":
		if streaming {
			log.Info().Msg("Using head subscription")
			return push(), nil
		}
		log.Info().Dur("interval", cfg.PollInterval).Msg("Endpoint cannot push heads, polling")
		return poll(), nil
	default:
		return nil, fmt.Errorf("unknown listener mode %q", cfg.Mode)
	}
}
