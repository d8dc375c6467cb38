package listener

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/rs/zerolog/log"
)

// HeadSource delivers new block headers to ch until the subscription is
// cancelled
type HeadSource interface {
	Subscribe(ctx context.Context, ch chan<- *ethtypes.Header) (event.Subscription, error)
}

// HeadSubscriber is a node that pushes new heads (websocket or IPC)
type HeadSubscriber interface {
	SubscribeNewHead(ctx context.Context, ch chan<- *ethtypes.Header) (ethereum.Subscription, error)
}

// HeadPoller is a node that can be asked for its latest head
type HeadPoller interface {
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error)
}

// SubscriptionSource streams heads over eth_subscribe and resubscribes when
// the connection drops
type SubscriptionSource struct {
	client  HeadSubscriber
	backoff time.Duration
}

// NewSubscriptionSource creates a push head source. backoff caps the delay
// between resubscription attempts.
func NewSubscriptionSource(client HeadSubscriber, backoff time.Duration) *SubscriptionSource {
	return &SubscriptionSource{client: client, backoff: backoff}
}

func (s *SubscriptionSource) Subscribe(ctx context.Context, ch chan<- *ethtypes.Header) (event.Subscription, error) {
	sub := event.ResubscribeErr(s.backoff, func(subCtx context.Context, lastErr error) (event.Subscription, error) {
		if lastErr != nil {
			log.Warn().Err(lastErr).Msg("Head subscription dropped, resubscribing")
		}
		inner, err := s.client.SubscribeNewHead(subCtx, ch)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to subscribe to new heads")
			return nil, err
		}
		log.Info().Msg("Subscribed to new heads")
		return inner, nil
	})
	return sub, nil
}

// PollingSource asks the node for its latest block on a fixed interval and
// emits each new head once
type PollingSource struct {
	client   HeadPoller
	interval time.Duration
}

// NewPollingSource creates a polling head source
func NewPollingSource(client HeadPoller, interval time.Duration) *PollingSource {
	return &PollingSource{client: client, interval: interval}
}

func (p *PollingSource) Subscribe(ctx context.Context, ch chan<- *ethtypes.Header) (event.Subscription, error) {
	return event.NewSubscription(func(quit <-chan struct{}) error {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		var lastBlock uint64
		for {
			if !p.poll(ctx, ch, quit, &lastBlock) {
				return nil
			}

			select {
			case <-quit:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
	}), nil
}

// poll emits the latest head if it is newer than lastBlock. It returns false
// once the subscription has been cancelled.
func (p *PollingSource) poll(ctx context.Context, ch chan<- *ethtypes.Header, quit <-chan struct{}, lastBlock *uint64) bool {
	currentBlock, err := p.client.BlockNumber(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to poll block number")
		return true
	}
	if currentBlock <= *lastBlock {
		return true // No new blocks
	}

	header, err := p.client.HeaderByNumber(ctx, new(big.Int).SetUint64(currentBlock))
	if err != nil {
		log.Warn().Err(err).Uint64("block", currentBlock).Msg("Failed to fetch header")
		return true
	}

	select {
	case ch <- header:
		*lastBlock = currentBlock
		return true
	case <-quit:
		return false
	}
}
