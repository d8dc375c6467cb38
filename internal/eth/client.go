package eth

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog/log"

	"github.com/devlongs/flash-arb/internal/config"
)

// Client wraps the Ethereum client with retry logic and convenience methods
type Client struct {
	client  *ethclient.Client
	cfg     config.RPCConfig
	chainID *big.Int
}

// NewClient creates a new Ethereum client
func NewClient(ctx context.Context, cfg config.RPCConfig) (*Client, error) {
	client, err := ethclient.DialContext(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum node: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
	defer cancel()

	chainID, err := client.ChainID(reqCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}

	log.Info().
		Str("url", redactURL(cfg.URL)).
		Str("chainID", chainID.String()).
		Msg("Connected to Ethereum node")

	return &Client{
		client:  client,
		cfg:     cfg,
		chainID: chainID,
	}, nil
}

// Close closes the client connection
func (c *Client) Close() {
	c.client.Close()
}

// ChainID returns the chain ID
func (c *Client) ChainID() *big.Int {
	return c.chainID
}

// Backend exposes the raw client for contract bindings that need the full
// transactor surface (nonce, gas price, send).
func (c *Client) Backend() *ethclient.Client {
	return c.client
}

// SupportsSubscriptions reports whether the endpoint is a push transport
func (c *Client) SupportsSubscriptions() bool {
	return IsStreamingURL(c.cfg.URL)
}

// BlockNumber returns the latest block number with retry
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var blockNum uint64
	var err error

	for i := 0; i < c.attempts(); i++ {
		blockNum, err = c.client.BlockNumber(ctx)
		if err == nil {
			return blockNum, nil
		}
		log.Warn().Err(err).Int("attempt", i+1).Msg("Failed to get block number, retrying...")
		if err := c.backoff(ctx); err != nil {
			return 0, err
		}
	}

	return 0, fmt.Errorf("failed to get block number after %d attempts: %w", c.attempts(), err)
}

// HeaderByNumber returns a block header by number (nil for latest) with retry
func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	var header *types.Header
	var err error

	for i := 0; i < c.attempts(); i++ {
		header, err = c.client.HeaderByNumber(ctx, number)
		if err == nil {
			return header, nil
		}
		log.Warn().Err(err).Int("attempt", i+1).Msg("Failed to get header, retrying...")
		if err := c.backoff(ctx); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("failed to get header after %d attempts: %w", c.attempts(), err)
}

// TransactionReceipt returns the receipt of a transaction. A missing receipt
// is returned as ethereum.NotFound without retrying so callers can poll.
func (c *Client) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	var receipt *types.Receipt
	var err error

	for i := 0; i < c.attempts(); i++ {
		receipt, err = c.client.TransactionReceipt(ctx, txHash)
		if err == nil || errors.Is(err, ethereum.NotFound) {
			return receipt, err
		}
		log.Warn().Err(err).Int("attempt", i+1).Msg("Failed to get receipt, retrying...")
		if err := c.backoff(ctx); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("failed to get receipt after %d attempts: %w", c.attempts(), err)
}

// CodeAt returns the contract code at the given account
func (c *Client) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return c.client.CodeAt(ctx, account, blockNumber)
}

// CallContract executes a contract call with retry. Each attempt is bounded
// by the configured request timeout. Reverts are returned without retrying
// and keep their revert data.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	var result []byte
	var err error

	for i := 0; i < c.attempts(); i++ {
		result, err = c.callOnce(ctx, msg, blockNumber)
		if err == nil {
			return result, nil
		}
		var revert rpc.DataError
		if errors.As(err, &revert) {
			return nil, err
		}
		log.Warn().Err(err).Int("attempt", i+1).Msg("Failed to call contract, retrying...")
		if err := c.backoff(ctx); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("failed to call contract after %d attempts: %w", c.attempts(), err)
}

func (c *Client) callOnce(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if c.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}
	return c.client.CallContract(ctx, msg, blockNumber)
}

// SubscribeNewHead subscribes to new block headers (requires WebSocket)
func (c *Client) SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error) {
	return c.client.SubscribeNewHead(ctx, ch)
}

func (c *Client) attempts() int {
	if c.cfg.RetryAttempts < 1 {
		return 1
	}
	return c.cfg.RetryAttempts
}

func (c *Client) backoff(ctx context.Context) error {
	timer := time.NewTimer(c.cfg.RetryDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsStreamingURL reports whether url is a websocket or IPC endpoint
func IsStreamingURL(url string) bool {
	return strings.HasPrefix(url, "ws://") ||
		strings.HasPrefix(url, "wss://") ||
		strings.HasSuffix(url, ".ipc")
}

// redactURL strips the path (usually an API key) from an RPC URL for logging
func redactURL(url string) string {
	scheme, rest, ok := strings.Cut(url, "://")
	if !ok {
		return url
	}
	host, _, _ := strings.Cut(rest, "/")
	return scheme + "://" + host
}
