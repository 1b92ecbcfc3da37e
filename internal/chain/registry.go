package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"leverscope/internal/model"
)

// ErrUnsupportedChain is returned for chain ids the registry was not
// configured with.
var ErrUnsupportedChain = errors.New("unsupported chain")

// ChainConfig describes one supported chain.
type ChainConfig struct {
	ChainID           uint64
	Name              string
	RPCURL            string
	RegistryContract  string
	FallbackPools     []string
	LeveragedEnabled  bool
	RequestsPerSecond float64
}

// RetryConfig bounds the registry's backoff behavior.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// Registry holds one long-lived client per supported chain. It is built once
// at process start and injected into every component that needs chain access;
// clients are safe for concurrent use.
type Registry struct {
	clients map[uint64]*Client
	configs map[uint64]ChainConfig
	retry   RetryConfig
	logger  *zap.Logger
}

// NewRegistry dials every configured chain. A chain that fails to dial is
// skipped with a warning so one dead endpoint does not take the process down.
func NewRegistry(ctx context.Context, configs []ChainConfig, retry RetryConfig, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(configs) == 0 {
		return nil, fmt.Errorf("at least one chain is required")
	}

	r := &Registry{
		clients: make(map[uint64]*Client, len(configs)),
		configs: make(map[uint64]ChainConfig, len(configs)),
		retry:   retry,
		logger:  logger,
	}

	for _, cfg := range configs {
		client, err := NewClient(ctx, cfg.ChainID, cfg.RPCURL, cfg.RequestsPerSecond)
		if err != nil {
			logger.Warn("chain dial failed, skipping",
				zap.Uint64("chain_id", cfg.ChainID),
				zap.String("chain", cfg.Name),
				zap.Error(err))
			continue
		}
		r.clients[cfg.ChainID] = client
		r.configs[cfg.ChainID] = cfg
	}

	if len(r.clients) == 0 {
		return nil, fmt.Errorf("no chain could be dialed")
	}
	return r, nil
}

// Close closes every client.
func (r *Registry) Close() {
	for _, client := range r.clients {
		client.Close()
	}
}

// Client returns the client for a chain id.
func (r *Registry) Client(chainID uint64) (*Client, error) {
	client, ok := r.clients[chainID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedChain, chainID)
	}
	return client, nil
}

// Config returns the configuration for a chain id.
func (r *Registry) Config(chainID uint64) (ChainConfig, error) {
	cfg, ok := r.configs[chainID]
	if !ok {
		return ChainConfig{}, fmt.Errorf("%w: %d", ErrUnsupportedChain, chainID)
	}
	return cfg, nil
}

// ChainIDs lists every chain the registry holds a client for.
func (r *Registry) ChainIDs() []uint64 {
	ids := make([]uint64, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	return ids
}

// WithRetry wraps a single remote call in the registry's backoff policy.
// Only transient network errors are retried.
func (r *Registry) WithRetry(ctx context.Context, fn func(context.Context) error) error {
	return WithRetry(ctx, r.retry.MaxRetries, r.retry.BaseDelay, fn)
}

// GasPrice returns the suggested gas price for a chain, with retry.
func (r *Registry) GasPrice(ctx context.Context, chainID uint64) (*big.Int, error) {
	client, err := r.Client(chainID)
	if err != nil {
		return nil, err
	}

	var price *big.Int
	err = r.WithRetry(ctx, func(ctx context.Context) error {
		var err error
		price, err = client.SuggestGasPrice(ctx)
		if err != nil {
			r.logger.Warn("gas price fetch failed", zap.Uint64("chain_id", chainID), zap.Error(err))
		}
		return err
	})
	return price, err
}

// EstimateGas estimates gas for a transaction request, with retry.
func (r *Registry) EstimateGas(ctx context.Context, chainID uint64, from string, tx model.TxRequest) (uint64, error) {
	client, err := r.Client(chainID)
	if err != nil {
		return 0, err
	}

	msg := ethereum.CallMsg{
		To:    &tx.To,
		Data:  tx.Data,
		Value: tx.Value,
	}
	if from != "" {
		msg.From = common.HexToAddress(from)
	}

	var gas uint64
	err = r.WithRetry(ctx, func(ctx context.Context) error {
		var err error
		gas, err = client.EstimateGas(ctx, msg)
		return err
	})
	return gas, err
}
