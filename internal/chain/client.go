package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/time/rate"
)

// Client wraps go-ethereum RPC for one chain and provides helper methods.
// Every call passes through a rate limiter so public endpoints do not
// throttle a discovery pass.
type Client struct {
	chainID   uint64
	rpcClient *rpc.Client
	ethClient *ethclient.Client
	limiter   *rate.Limiter
}

// NewClient dials the RPC URL. rps bounds requests per second; zero disables
// the limit.
func NewClient(ctx context.Context, chainID uint64, rpcURL string, rps float64) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}

	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}

	return &Client{
		chainID:   chainID,
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
		limiter:   rate.NewLimiter(limit, 1),
	}, nil
}

// ChainID returns the configured chain id.
func (c *Client) ChainID() uint64 {
	return c.chainID
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// CallContract performs an eth_call for a contract method.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return c.ethClient.CallContract(ctx, msg, blockNumber)
}

// SuggestGasPrice returns the node's suggested gas price.
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return c.ethClient.SuggestGasPrice(ctx)
}

// EstimateGas estimates gas for the given call.
func (c *Client) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	return c.ethClient.EstimateGas(ctx, msg)
}

// TransactionReceipt returns the receipt for a transaction hash, or
// ethereum.NotFound while the transaction is still pending.
func (c *Client) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return c.ethClient.TransactionReceipt(ctx, txHash)
}

// TransactionByHash returns the transaction for a hash.
func (c *Client) TransactionByHash(ctx context.Context, txHash common.Hash) (*types.Transaction, bool, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, false, err
	}
	return c.ethClient.TransactionByHash(ctx, txHash)
}

// PendingNonceAt returns the next nonce for an account.
func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	return c.ethClient.PendingNonceAt(ctx, account)
}

// SendTransaction broadcasts a signed transaction.
func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	return c.ethClient.SendTransaction(ctx, tx)
}

// LatestBlockNumber returns the latest block number.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	return c.ethClient.BlockNumber(ctx)
}
