package executor

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"leverscope/internal/chain"
	"leverscope/internal/model"
	"leverscope/internal/pools"
)

// ReceiptSource polls transaction receipts for one chain.
type ReceiptSource interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Backend is the chain access the orchestrator needs, narrowed so tests can
// stand in fakes.
type Backend interface {
	Caller(chainID uint64) (pools.ContractCaller, error)
	Receipts(chainID uint64) (ReceiptSource, error)
	Config(chainID uint64) (chain.ChainConfig, error)
	GasPrice(ctx context.Context, chainID uint64) (*big.Int, error)
	EstimateGas(ctx context.Context, chainID uint64, from string, tx model.TxRequest) (uint64, error)
	WithRetry(ctx context.Context, fn func(context.Context) error) error
}

type registryBackend struct {
	registry *chain.Registry
}

// NewChainBackend adapts the chain client registry to the orchestrator's
// Backend surface.
func NewChainBackend(registry *chain.Registry) Backend {
	return &registryBackend{registry: registry}
}

func (b *registryBackend) Caller(chainID uint64) (pools.ContractCaller, error) {
	return b.registry.Client(chainID)
}

func (b *registryBackend) Receipts(chainID uint64) (ReceiptSource, error) {
	return b.registry.Client(chainID)
}

func (b *registryBackend) Config(chainID uint64) (chain.ChainConfig, error) {
	return b.registry.Config(chainID)
}

func (b *registryBackend) GasPrice(ctx context.Context, chainID uint64) (*big.Int, error) {
	return b.registry.GasPrice(ctx, chainID)
}

func (b *registryBackend) EstimateGas(ctx context.Context, chainID uint64, from string, tx model.TxRequest) (uint64, error) {
	return b.registry.EstimateGas(ctx, chainID, from, tx)
}

func (b *registryBackend) WithRetry(ctx context.Context, fn func(context.Context) error) error {
	return b.registry.WithRetry(ctx, fn)
}
