package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Health is a point-in-time view of the node and an account's gas funds.
type Health struct {
	ChainID *big.Int
	Head    uint64
	Balance *big.Int
}

// Client wraps go-ethereum RPC for custody reads.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client
}

// NewClient creates a new chain client from the RPC URL.
func NewClient(ctx context.Context, rpcURL string) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}

	return &Client{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
	}, nil
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// ChainID returns the chain ID.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	return c.ethClient.ChainID(ctx)
}

// LatestBlockNumber returns the latest block number.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	return c.ethClient.BlockNumber(ctx)
}

// NativeBalance returns the native balance of account at the latest block.
func (c *Client) NativeBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	return c.ethClient.BalanceAt(ctx, account, nil)
}

// Health reads chain id, head, and the native balance of account.
func (c *Client) Health(ctx context.Context, account common.Address) (Health, error) {
	chainID, err := c.ChainID(ctx)
	if err != nil {
		return Health{}, fmt.Errorf("get chain id: %w", err)
	}
	head, err := c.LatestBlockNumber(ctx)
	if err != nil {
		return Health{}, fmt.Errorf("get latest block: %w", err)
	}
	balance, err := c.NativeBalance(ctx, account)
	if err != nil {
		return Health{}, fmt.Errorf("get balance of %s: %w", account.Hex(), err)
	}
	return Health{ChainID: chainID, Head: head, Balance: balance}, nil
}

// CallContract performs an eth_call for a contract method.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return c.ethClient.CallContract(ctx, msg, blockNumber)
}
