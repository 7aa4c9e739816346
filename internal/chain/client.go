package chain

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Options parameterise the chain client.
type Options struct {
	RPCURL  string
	Timeout time.Duration
}

// Client provides eth_call access over a lazily dialled RPC connection.
type Client struct {
	opts Options

	mu  sync.Mutex
	eth *ethclient.Client
}

// NewClient builds a client; the RPC connection is established on first use.
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Client{opts: opts}
}

// CallContract performs an eth_call against the latest block.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	eth, err := c.getEth(ctx)
	if err != nil {
		return nil, err
	}
	return eth.CallContract(ctx, msg, nil)
}

// BlockNumber returns the latest block number.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	eth, err := c.getEth(ctx)
	if err != nil {
		return 0, err
	}
	return eth.BlockNumber(ctx)
}

// ChainID returns the connected chain's identifier.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	eth, err := c.getEth(ctx)
	if err != nil {
		return nil, err
	}
	return eth.ChainID(ctx)
}

// Close releases the underlying connection if one was established.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.eth != nil {
		c.eth.Close()
		c.eth = nil
	}
}

// Timeout reports the configured per-call timeout.
func (c *Client) Timeout() time.Duration {
	return c.opts.Timeout
}

func (c *Client) getEth(ctx context.Context) (*ethclient.Client, error) {
	if c.opts.RPCURL == "" {
		return nil, errors.New("chain rpc url not configured")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.eth != nil {
		return c.eth, nil
	}

	eth, err := ethclient.DialContext(ctx, c.opts.RPCURL)
	if err != nil {
		return nil, err
	}
	c.eth = eth
	return eth, nil
}
