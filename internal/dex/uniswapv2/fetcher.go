package uniswapv2

import (
	"context"
	"fmt"
	"math/big"

	"golang.org/x/sync/errgroup"

	"github.com/devlongs/flash-arb/pkg/types"
)

// Fetcher snapshots the reserves of the two pools the bot arbitrages
type Fetcher struct {
	reader *Reader
	poolA  Pool
	poolB  Pool
}

// NewFetcher creates a fetcher for a resolved pool pair
func NewFetcher(reader *Reader, poolA, poolB Pool) *Fetcher {
	return &Fetcher{
		reader: reader,
		poolA:  poolA,
		poolB:  poolB,
	}
}

// Pools returns pool A and pool B
func (f *Fetcher) Pools() (Pool, Pool) {
	return f.poolA, f.poolB
}

// FetchReserves reads both pools concurrently as of blockNumber. Either read
// failing fails the whole snapshot.
func (f *Fetcher) FetchReserves(ctx context.Context, blockNumber *big.Int) (types.ReservePair, types.ReservePair, error) {
	var reservesA, reservesB types.ReservePair

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		reservesA, err = f.fetch(gctx, f.poolA, blockNumber)
		return err
	})
	g.Go(func() error {
		var err error
		reservesB, err = f.fetch(gctx, f.poolB, blockNumber)
		return err
	})

	if err := g.Wait(); err != nil {
		return types.ReservePair{}, types.ReservePair{}, err
	}
	return reservesA, reservesB, nil
}

func (f *Fetcher) fetch(ctx context.Context, pool Pool, blockNumber *big.Int) (types.ReservePair, error) {
	reserve0, reserve1, err := f.reader.GetReserves(ctx, pool.Address, blockNumber)
	if err != nil {
		return types.ReservePair{}, fmt.Errorf("%w: pool %s (%s): %w", types.ErrFetch, pool.Name, pool.Address.Hex(), err)
	}
	return pool.Orient(reserve0, reserve1), nil
}
