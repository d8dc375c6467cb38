package listener

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"

	"github.com/devlongs/flash-arb/internal/config"
	"github.com/devlongs/flash-arb/internal/metrics"
	"github.com/devlongs/flash-arb/internal/output"
	"github.com/devlongs/flash-arb/pkg/types"
)

// Skip reasons
const (
	SkipDuplicate = "duplicate"
	SkipCoalesced = "coalesced"
	SkipBusy      = "busy"
)

const defaultSeenCacheSize = 256

// Pipeline processes one block
type Pipeline interface {
	ProcessBlock(ctx context.Context, head *ethtypes.Header) error
}

// Listener feeds new heads into the pipeline one at a time. While a run is
// in flight at most one head waits in the pending slot; the overlap policy
// decides whether a newer head replaces it or is dropped.
type Listener struct {
	source   HeadSource
	pipeline Pipeline
	logger   *output.Logger
	metrics  *metrics.Metrics
	cfg      config.ListenerConfig
	seen     *lru.Cache[common.Hash, struct{}]

	mu      sync.Mutex
	busy    bool
	pending *ethtypes.Header
	wake    chan struct{}
}

// New creates a listener
func New(source HeadSource, pipeline Pipeline, logger *output.Logger, m *metrics.Metrics, cfg config.ListenerConfig) (*Listener, error) {
	size := cfg.SeenCacheSize
	if size <= 0 {
		size = defaultSeenCacheSize
	}
	seen, err := lru.New[common.Hash, struct{}](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create seen-head cache: %w", err)
	}

	return &Listener{
		source:   source,
		pipeline: pipeline,
		logger:   logger,
		metrics:  m,
		cfg:      cfg,
		seen:     seen,
		wake:     make(chan struct{}, 1),
	}, nil
}

// Run subscribes to new heads and processes them until ctx is cancelled or
// the head source fails. Pipeline errors never stop the listener.
func (l *Listener) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	heads := make(chan *ethtypes.Header, 16)
	sub, err := l.source.Subscribe(ctx, heads)
	if err != nil {
		return fmt.Errorf("failed to subscribe to heads: %w", err)
	}
	defer sub.Unsubscribe()

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		l.work(ctx)
	}()
	defer func() {
		cancel()
		<-workerDone
	}()

	var statsC <-chan time.Time
	if l.cfg.StatsInterval > 0 {
		statsTicker := time.NewTicker(l.cfg.StatsInterval)
		defer statsTicker.Stop()
		statsC = statsTicker.C
	}

	log.Info().
		Str("overlapPolicy", l.cfg.OverlapPolicy).
		Msg("Listening for new blocks")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Shutting down listener...")
			return ctx.Err()

		case err := <-sub.Err():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err == nil {
				err = errors.New("subscription closed")
			}
			return fmt.Errorf("head source failed: %w", err)

		case head := <-heads:
			l.offer(head)

		case <-statsC:
			l.logger.LogStats()
		}
	}
}

// offer hands a head to the worker, or parks, replaces or drops it when a
// run is already in flight
func (l *Listener) offer(head *ethtypes.Header) {
	block := head.Number.Uint64()

	if found, _ := l.seen.ContainsOrAdd(head.Hash(), struct{}{}); found {
		l.skip(block, SkipDuplicate)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.busy {
		l.busy = true
		l.pending = head
		select {
		case l.wake <- struct{}{}:
		default:
		}
		return
	}

	if l.cfg.OverlapPolicy == config.OverlapDrop {
		l.skip(block, SkipBusy)
		return
	}

	if l.pending != nil {
		l.skip(l.pending.Number.Uint64(), SkipCoalesced)
	}
	l.pending = head
}

// work runs pending heads until the slot is empty, then waits to be woken
func (l *Listener) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.wake:
		}

		for {
			l.mu.Lock()
			head := l.pending
			l.pending = nil
			if head == nil {
				l.busy = false
				l.mu.Unlock()
				break
			}
			l.mu.Unlock()

			if ctx.Err() != nil {
				l.mu.Lock()
				l.busy = false
				l.mu.Unlock()
				return
			}
			l.run(ctx, head)
		}
	}
}

// run is the failure boundary around one pipeline run. Errors and panics
// are logged and counted, never propagated.
func (l *Listener) run(ctx context.Context, head *ethtypes.Header) {
	block := head.Number.Uint64()

	defer func() {
		if r := recover(); r != nil {
			l.fail(block, fmt.Errorf("%w: panic: %v", types.ErrUnknownPipeline, r))
		}
	}()

	log.Debug().Uint64("block", block).Str("hash", head.Hash().Hex()).Msg("Processing block")

	if err := l.pipeline.ProcessBlock(ctx, head); err != nil {
		l.fail(block, err)
	}
}

func (l *Listener) fail(block uint64, err error) {
	l.logger.LogPipelineError(block, err)
	l.metrics.PipelineError(types.Kind(err))
}

func (l *Listener) skip(block uint64, reason string) {
	l.logger.LogSkip(block, reason)
	l.metrics.BlockSkipped(reason)
}
