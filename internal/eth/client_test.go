package eth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/devlongs/flash-arb/internal/config"
)

func TestIsStreamingURL(t *testing.T) {
	assert.True(t, IsStreamingURL("wss://eth-sepolia.g.alchemy.com/v2/key"))
	assert.True(t, IsStreamingURL("ws://127.0.0.1:8546"))
	assert.True(t, IsStreamingURL("/var/run/geth.ipc"))
	assert.False(t, IsStreamingURL("https://rpc.sepolia.org"))
	assert.False(t, IsStreamingURL("http://localhost:8545"))
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "wss://eth-sepolia.g.alchemy.com", redactURL("wss://eth-sepolia.g.alchemy.com/v2/secret"))
	assert.Equal(t, "http://localhost:8545", redactURL("http://localhost:8545"))
	assert.Equal(t, "/var/run/geth.ipc", redactURL("/var/run/geth.ipc"))
}

func TestBackoffHonoursContext(t *testing.T) {
	c := &Client{cfg: config.RPCConfig{RetryDelay: time.Hour}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, c.backoff(ctx), context.Canceled)
}

func TestAttemptsAtLeastOne(t *testing.T) {
	assert.Equal(t, 1, (&Client{}).attempts())
	assert.Equal(t, 3, (&Client{cfg: config.RPCConfig{RetryAttempts: 3}}).attempts())
}
