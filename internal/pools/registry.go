package pools

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"leverscope/internal/chain"
	"leverscope/internal/model"
	"leverscope/internal/storage"
)

// tokenKey identifies a token across chains.
type tokenKey struct {
	chainID uint64
	address common.Address
}

// TokenMetaCache caches ERC-20 metadata across refresh passes. Token symbol
// and decimals are immutable, so entries never expire.
type TokenMetaCache struct {
	mu   sync.RWMutex
	data map[tokenKey]TokenMeta
}

func NewTokenMetaCache() *TokenMetaCache {
	return &TokenMetaCache{data: make(map[tokenKey]TokenMeta)}
}

func (c *TokenMetaCache) Get(chainID uint64, address common.Address) (TokenMeta, bool) {
	c.mu.RLock()
	meta, ok := c.data[tokenKey{chainID: chainID, address: address}]
	c.mu.RUnlock()
	return meta, ok
}

func (c *TokenMetaCache) Set(chainID uint64, address common.Address, meta TokenMeta) {
	c.mu.Lock()
	c.data[tokenKey{chainID: chainID, address: address}] = meta
	c.mu.Unlock()
}

// Summary reports the outcome of a refresh pass across chains.
type Summary struct {
	ChainsScanned int
	ChainsFailed  int
	PoolsSeen     int
}

// Registry discovers lending pools per chain and keeps the cache store fresh.
// Refreshes for different chains run independently; refreshes for the same
// chain are serialized.
type Registry struct {
	chains     *chain.Registry
	store      storage.PoolStore
	logger     *zap.Logger
	checkpoint *RefreshCheckpoint
	tokenCache *TokenMetaCache

	mu         sync.Mutex
	chainLocks map[uint64]*sync.Mutex
}

// NewRegistry builds a pool registry over the chain registry and cache store.
func NewRegistry(chains *chain.Registry, store storage.PoolStore, checkpoint *RefreshCheckpoint, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		chains:     chains,
		store:      store,
		logger:     logger,
		checkpoint: checkpoint,
		tokenCache: NewTokenMetaCache(),
		chainLocks: make(map[uint64]*sync.Mutex),
	}
}

func (r *Registry) chainLock(chainID uint64) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.chainLocks[chainID]
	if !ok {
		lock = &sync.Mutex{}
		r.chainLocks[chainID] = lock
	}
	return lock
}

// RefreshAll scans every configured chain concurrently. A chain that fails is
// logged and counted; the pass returns whatever subset succeeded.
func (r *Registry) RefreshAll(ctx context.Context) Summary {
	chainIDs := r.chains.ChainIDs()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		summary Summary
	)

	for _, chainID := range chainIDs {
		wg.Add(1)
		go func(chainID uint64) {
			defer wg.Done()

			seen, err := r.RefreshChain(ctx, chainID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.ChainsFailed++
				r.logger.Warn("chain discovery failed", zap.Uint64("chain_id", chainID), zap.Error(err))
				return
			}
			summary.ChainsScanned++
			summary.PoolsSeen += seen
		}(chainID)
	}

	wg.Wait()

	r.logger.Info("refresh pass complete",
		zap.Int("chains_scanned", summary.ChainsScanned),
		zap.Int("chains_failed", summary.ChainsFailed),
		zap.Int("pools_seen", summary.PoolsSeen))
	return summary
}

// RefreshChain discovers and upserts one chain's pools, then soft-deactivates
// previously cached pools the pass did not observe. Returns the number of
// pools observed.
func (r *Registry) RefreshChain(ctx context.Context, chainID uint64) (int, error) {
	lock := r.chainLock(chainID)
	lock.Lock()
	defer lock.Unlock()

	client, err := r.chains.Client(chainID)
	if err != nil {
		return 0, err
	}
	cfg, err := r.chains.Config(chainID)
	if err != nil {
		return 0, err
	}

	if r.checkpoint != nil {
		if last, ok, err := r.checkpoint.Load(chainID); err != nil {
			r.logger.Warn("refresh checkpoint read failed", zap.Uint64("chain_id", chainID), zap.Error(err))
		} else if ok {
			r.logger.Info("last successful refresh",
				zap.Uint64("chain_id", chainID),
				zap.Time("at", last),
				zap.Duration("cache_age", time.Since(last)))
		}
	}

	addresses, err := r.discover(ctx, client, cfg)
	if err != nil {
		return 0, fmt.Errorf("discover pools: %w", err)
	}

	now := time.Now().UTC()
	pools := make([]model.Pool, 0, len(addresses))
	seen := make([]string, 0, len(addresses))

	for _, address := range addresses {
		pool, err := r.fetchPool(ctx, client, cfg, address, now)
		if err != nil {
			// One broken pool must not abort the chain scan.
			r.logger.Warn("pool fetch failed, skipping",
				zap.Uint64("chain_id", chainID),
				zap.String("pool", address.Hex()),
				zap.Error(err))
			continue
		}
		pools = append(pools, pool)
		seen = append(seen, pool.PoolAddress)
	}

	if err := r.store.UpsertPools(ctx, pools); err != nil {
		return 0, fmt.Errorf("upsert pools: %w", err)
	}
	if err := r.store.DeactivateUnseen(ctx, chainID, seen); err != nil {
		return 0, fmt.Errorf("deactivate unseen: %w", err)
	}

	if r.checkpoint != nil {
		if err := r.checkpoint.Save(chainID, now); err != nil {
			r.logger.Warn("refresh checkpoint save failed", zap.Uint64("chain_id", chainID), zap.Error(err))
		}
	}

	r.logger.Info("chain scan complete",
		zap.Uint64("chain_id", chainID),
		zap.String("chain", cfg.Name),
		zap.Int("pools", len(pools)))
	return len(pools), nil
}

// discover lists pool addresses for a chain. The market registry contract is
// the primary path; a configured static list is the fallback for chains where
// the registry is unavailable or the endpoint is too constrained to serve it.
func (r *Registry) discover(ctx context.Context, client *chain.Client, cfg chain.ChainConfig) ([]common.Address, error) {
	if cfg.RegistryContract != "" {
		var addresses []common.Address
		err := r.chains.WithRetry(ctx, func(ctx context.Context) error {
			var err error
			addresses, err = ListRegisteredPools(ctx, client, common.HexToAddress(cfg.RegistryContract))
			return err
		})
		if err == nil {
			return addresses, nil
		}
		r.logger.Warn("market registry query failed, falling back to static pool list",
			zap.Uint64("chain_id", cfg.ChainID),
			zap.Error(err))
	}

	if len(cfg.FallbackPools) == 0 {
		return nil, fmt.Errorf("no registry contract and no fallback pools configured")
	}

	addresses := make([]common.Address, 0, len(cfg.FallbackPools))
	for _, hex := range cfg.FallbackPools {
		addresses = append(addresses, common.HexToAddress(hex))
	}
	return addresses, nil
}

func (r *Registry) fetchPool(ctx context.Context, client *chain.Client, cfg chain.ChainConfig, address common.Address, now time.Time) (model.Pool, error) {
	var state PoolState
	err := r.chains.WithRetry(ctx, func(ctx context.Context) error {
		var err error
		state, err = FetchPoolState(ctx, client, address)
		return err
	})
	if err != nil {
		return model.Pool{}, err
	}
	if ratesEmpty(state) {
		return model.Pool{}, fmt.Errorf("address exposes no liquidity or rates")
	}

	meta, ok := r.tokenCache.Get(cfg.ChainID, state.Underlying)
	if !ok {
		meta, err = FetchTokenMeta(ctx, client, state.Underlying, r.logger)
		if err != nil {
			return model.Pool{}, fmt.Errorf("token meta: %w", err)
		}
		r.tokenCache.Set(cfg.ChainID, state.Underlying, meta)
	}

	metrics := DeriveMetrics(state, meta.Decimals)

	strategy := model.StrategyPassiveLending
	if cfg.LeveragedEnabled {
		strategy = model.StrategyLeveragedCreditAccount
	}

	displayName := state.Name
	if displayName == "" {
		displayName = fmt.Sprintf("%s Pool", meta.Symbol)
	}

	return model.Pool{
		PoolAddress:        address.Hex(),
		ChainID:            cfg.ChainID,
		DisplayName:        displayName,
		UnderlyingSymbol:   meta.Symbol,
		UnderlyingAddress:  meta.Address,
		UnderlyingDecimals: meta.Decimals,
		TVL:                metrics.TVL,
		SupplyAPY:          metrics.SupplyAPY,
		BorrowAPY:          metrics.BorrowAPY,
		Utilization:        metrics.Utilization,
		Strategy:           strategy,
		Active:             true,
		DiscoveredAt:       now,
		LastSeenAt:         now,
	}, nil
}
