package service

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"leverscope/internal/calc"
	"leverscope/internal/executor"
	"leverscope/internal/model"
	"leverscope/internal/pools"
	"leverscope/internal/storage"
	"leverscope/internal/units"
)

// PriceSource quotes an asset in USD by symbol.
type PriceSource interface {
	PriceUSD(ctx context.Context, symbol string) (float64, error)
}

// Executor submits and confirms pool transactions.
type Executor interface {
	ExecuteDeposit(ctx context.Context, userID, poolAddress string, chainID uint64, amount *big.Int) (executor.DepositResult, error)
	ExecuteWithdraw(ctx context.Context, userID, poolAddress string, chainID uint64, shares *big.Int) (executor.WithdrawResult, error)
}

// Refresher re-scans pool registries.
type Refresher interface {
	RefreshAll(ctx context.Context) pools.Summary
	RefreshChain(ctx context.Context, chainID uint64) (int, error)
}

// ChainReader provides read access to a chain for position revaluation.
// Optional; a nil reader skips chain reads.
type ChainReader interface {
	Caller(chainID uint64) (pools.ContractCaller, error)
	WithRetry(ctx context.Context, fn func(context.Context) error) error
}

// Service is the application facade: pool queries, position math, and
// execution behind one surface.
type Service struct {
	store    storage.Store
	prices   PriceSource
	executor Executor
	pools    Refresher
	chains   ChainReader
	logger   *zap.Logger
}

func New(store storage.Store, prices PriceSource, exec Executor, refresher Refresher, chains ChainReader, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		prices:   prices,
		executor: exec,
		pools:    refresher,
		chains:   chains,
		logger:   logger,
	}
}

// MetricsRequest describes a prospective or existing position to evaluate.
// PriceUSD overrides the price feed when set; LiquidationThreshold and
// QuotaRatePercent fall back to protocol defaults when zero.
type MetricsRequest struct {
	PoolAddress          string
	ChainID              uint64
	CollateralAmount     float64
	Leverage             float64
	PriceUSD             float64
	TargetAPY            float64
	LiquidationThreshold float64
	QuotaRatePercent     float64
}

// PositionMetrics evaluates a position against the pool's live rates.
func (s *Service) PositionMetrics(ctx context.Context, req MetricsRequest) (calc.PositionReport, error) {
	pool, err := s.store.GetPool(ctx, req.PoolAddress, req.ChainID)
	if err != nil {
		return calc.PositionReport{}, fmt.Errorf("load pool: %w", err)
	}

	priceUSD := req.PriceUSD
	if priceUSD <= 0 {
		priceUSD, err = s.prices.PriceUSD(ctx, pool.UnderlyingSymbol)
		if err != nil {
			return calc.PositionReport{}, fmt.Errorf("price %s: %w", pool.UnderlyingSymbol, err)
		}
	}

	report, err := calc.PositionMetrics(calc.PositionParams{
		CollateralAmount:     req.CollateralAmount,
		CollateralPriceUSD:   priceUSD,
		Leverage:             req.Leverage,
		BaseAPY:              pool.SupplyAPY,
		BorrowAPY:            pool.BorrowAPY,
		QuotaRatePercent:     req.QuotaRatePercent,
		LiquidationThreshold: req.LiquidationThreshold,
	})
	if err != nil {
		return calc.PositionReport{}, err
	}

	if req.TargetAPY > 0 && report.NetAPY < req.TargetAPY {
		report.Recommendations = append(report.Recommendations,
			fmt.Sprintf("net APY %.2f%% falls short of the %.2f%% target at %vx leverage", report.NetAPY, req.TargetAPY, req.Leverage))
	}
	return report, nil
}

// QueryPools lists cached pools matching the filter, highest supply APY first.
func (s *Service) QueryPools(ctx context.Context, filter storage.PoolFilter) ([]model.Pool, error) {
	return s.store.ListPools(ctx, filter)
}

// RefreshPools re-scans every configured chain.
func (s *Service) RefreshPools(ctx context.Context) pools.Summary {
	return s.pools.RefreshAll(ctx)
}

// RefreshChain re-scans one chain and returns the pool count.
func (s *Service) RefreshChain(ctx context.Context, chainID uint64) (int, error) {
	return s.pools.RefreshChain(ctx, chainID)
}

// Deposit runs the deposit pipeline for the user.
func (s *Service) Deposit(ctx context.Context, userID, poolAddress string, chainID uint64, amount *big.Int) (executor.DepositResult, error) {
	return s.executor.ExecuteDeposit(ctx, userID, poolAddress, chainID, amount)
}

// Withdraw redeems shares for the user.
func (s *Service) Withdraw(ctx context.Context, userID, poolAddress string, chainID uint64, shares *big.Int) (executor.WithdrawResult, error) {
	return s.executor.ExecuteWithdraw(ctx, userID, poolAddress, chainID, shares)
}

// Positions returns the user's positions with rates refreshed from the pool
// cache. Rows whose pool is missing from the cache are returned as stored.
func (s *Service) Positions(ctx context.Context, userID string) ([]model.Position, error) {
	positions, err := s.store.ListPositions(ctx, userID)
	if err != nil {
		return nil, err
	}

	for i := range positions {
		pool, err := s.store.GetPool(ctx, positions[i].PoolAddress, positions[i].ChainID)
		if err != nil {
			s.logger.Debug("pool missing for position",
				zap.String("pool", positions[i].PoolAddress),
				zap.Uint64("chain_id", positions[i].ChainID),
				zap.Error(err))
			continue
		}
		positions[i].CurrentSupplyAPY = pool.SupplyAPY
		positions[i].CurrentBorrowAPY = pool.BorrowAPY
		positions[i].NetAPY = calc.NetAPY(pool.SupplyAPY, pool.BorrowAPY, positions[i].Leverage*100, 0)
	}
	return positions, nil
}

// RefreshPosition revalues one position: current value from the vault's
// redemption preview, rates from the pool cache, health factor from the price
// feed for leveraged entries. The refreshed row is persisted.
func (s *Service) RefreshPosition(ctx context.Context, userID, poolAddress string, chainID uint64) (model.Position, error) {
	position, err := s.store.GetPosition(ctx, userID, poolAddress, chainID)
	if err != nil {
		return model.Position{}, err
	}
	pool, err := s.store.GetPool(ctx, poolAddress, chainID)
	if err != nil {
		return model.Position{}, fmt.Errorf("load pool: %w", err)
	}

	if s.chains != nil {
		if caller, err := s.chains.Caller(chainID); err == nil {
			if shares, ok := new(big.Int).SetString(position.Shares, 10); ok && shares.Sign() > 0 {
				var assets *big.Int
				err := s.chains.WithRetry(ctx, func(ctx context.Context) error {
					var err error
					assets, err = pools.PreviewRedeem(ctx, caller, common.HexToAddress(pool.PoolAddress), shares)
					return err
				})
				if err == nil {
					position.CurrentValue = units.FromWei(assets, pool.UnderlyingDecimals)
				} else {
					s.logger.Debug("redemption preview failed, keeping stored value",
						zap.String("pool", pool.PoolAddress), zap.Error(err))
				}
			}
		}
	}

	position.CurrentSupplyAPY = pool.SupplyAPY
	position.CurrentBorrowAPY = pool.BorrowAPY
	position.NetAPY = calc.NetAPY(pool.SupplyAPY, pool.BorrowAPY, position.Leverage*100, 0)

	if position.Leverage > 1 {
		if priceUSD, err := s.prices.PriceUSD(ctx, pool.UnderlyingSymbol); err == nil && priceUSD > 0 {
			baseUSD := position.CurrentValue * priceUSD
			hf, err := calc.HealthFactor(baseUSD*position.Leverage, baseUSD*(position.Leverage-1), calc.DefaultLiquidationThreshold)
			if err == nil {
				position.HealthFactor = &hf
			}
		}
	}

	position.LastUpdatedAt = time.Now().UTC()
	if err := s.store.UpsertPosition(ctx, position); err != nil {
		return model.Position{}, err
	}
	return position, nil
}
