package service

import (
	"context"
	"errors"
	"math"
	"math/big"
	"testing"
	"time"

	"go.uber.org/zap"

	"leverscope/internal/executor"
	"leverscope/internal/model"
	"leverscope/internal/pools"
	"leverscope/internal/storage"
	"leverscope/internal/storage/memory"
)

type staticPrices map[string]float64

func (p staticPrices) PriceUSD(ctx context.Context, symbol string) (float64, error) {
	price, ok := p[symbol]
	if !ok {
		return 0, errors.New("unknown symbol")
	}
	return price, nil
}

type recordingExecutor struct {
	deposits  int
	withdraws int
}

func (r *recordingExecutor) ExecuteDeposit(ctx context.Context, userID, poolAddress string, chainID uint64, amount *big.Int) (executor.DepositResult, error) {
	r.deposits++
	return executor.DepositResult{TxHash: "0x1", Shares: amount}, nil
}

func (r *recordingExecutor) ExecuteWithdraw(ctx context.Context, userID, poolAddress string, chainID uint64, shares *big.Int) (executor.WithdrawResult, error) {
	r.withdraws++
	return executor.WithdrawResult{TxHash: "0x2", AssetsReceived: shares}, nil
}

type stubRefresher struct{}

func (stubRefresher) RefreshAll(ctx context.Context) pools.Summary {
	return pools.Summary{ChainsScanned: 1, PoolsSeen: 2}
}

func (stubRefresher) RefreshChain(ctx context.Context, chainID uint64) (int, error) {
	return 2, nil
}

func seedService(t *testing.T) (*Service, *memory.Store, *recordingExecutor) {
	t.Helper()
	store := memory.NewStore()
	err := store.UpsertPools(context.Background(), []model.Pool{
		{
			PoolAddress:       "0xpool1",
			ChainID:           1,
			UnderlyingSymbol:  "WETH",
			UnderlyingAddress: "0xtoken1",
			SupplyAPY:         5.7,
			BorrowAPY:         3.21,
			Active:            true,
		},
		{
			PoolAddress:      "0xpool2",
			ChainID:          1,
			UnderlyingSymbol: "USDC",
			SupplyAPY:        9.1,
			BorrowAPY:        6.5,
			Active:           true,
		},
	})
	if err != nil {
		t.Fatalf("seed pools: %v", err)
	}

	exec := &recordingExecutor{}
	svc := New(store, staticPrices{"WETH": 3000}, exec, stubRefresher{}, nil, zap.NewNop())
	return svc, store, exec
}

func TestPositionMetricsUsesPoolRates(t *testing.T) {
	svc, _, _ := seedService(t)

	report, err := svc.PositionMetrics(context.Background(), MetricsRequest{
		PoolAddress:      "0xpool1",
		ChainID:          1,
		CollateralAmount: 1,
		Leverage:         5,
		QuotaRatePercent: 0.01,
	})
	if err != nil {
		t.Fatalf("PositionMetrics: %v", err)
	}
	// 5.7*5 - 3.21*4 - 0.01*5
	if math.Abs(report.NetAPY-15.61) > 0.01 {
		t.Fatalf("net APY = %v, want ~15.61", report.NetAPY)
	}
	if report.CollateralValueUSD != 15000 {
		t.Fatalf("collateral USD = %v, want 15000 at feed price 3000", report.CollateralValueUSD)
	}
}

func TestPositionMetricsPriceOverride(t *testing.T) {
	svc, _, _ := seedService(t)

	report, err := svc.PositionMetrics(context.Background(), MetricsRequest{
		PoolAddress:      "0xpool1",
		ChainID:          1,
		CollateralAmount: 2,
		Leverage:         1,
		PriceUSD:         2500,
	})
	if err != nil {
		t.Fatalf("PositionMetrics: %v", err)
	}
	if report.CollateralValueUSD != 5000 {
		t.Fatalf("collateral USD = %v, want 5000 from override", report.CollateralValueUSD)
	}
}

func TestQueryPoolsOrdersBySupplyAPY(t *testing.T) {
	svc, _, _ := seedService(t)

	listed, err := svc.QueryPools(context.Background(), storage.PoolFilter{ActiveOnly: true})
	if err != nil {
		t.Fatalf("QueryPools: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("got %d pools, want 2", len(listed))
	}
	if listed[0].UnderlyingSymbol != "USDC" {
		t.Fatalf("first pool = %s, want highest supply APY first", listed[0].UnderlyingSymbol)
	}
}

func TestPositionsRefreshRates(t *testing.T) {
	svc, store, _ := seedService(t)

	now := time.Now().UTC()
	if err := store.UpsertPosition(context.Background(), model.Position{
		UserID:           "u1",
		PoolAddress:      "0xpool1",
		ChainID:          1,
		Shares:           "100",
		CurrentSupplyAPY: 1.0,
		Leverage:         1,
		DepositedAt:      now,
		LastUpdatedAt:    now,
	}); err != nil {
		t.Fatalf("seed position: %v", err)
	}

	positions, err := svc.Positions(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Positions: %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("got %d positions, want 1", len(positions))
	}
	if positions[0].CurrentSupplyAPY != 5.7 {
		t.Fatalf("current supply APY = %v, want refreshed 5.7", positions[0].CurrentSupplyAPY)
	}
	if positions[0].NetAPY != 5.7 {
		t.Fatalf("net APY at 1x = %v, want supply APY", positions[0].NetAPY)
	}
}

func TestRefreshPositionLeveragedHealthFactor(t *testing.T) {
	svc, store, _ := seedService(t)

	now := time.Now().UTC()
	if err := store.UpsertPosition(context.Background(), model.Position{
		UserID:        "u1",
		PoolAddress:   "0xpool1",
		ChainID:       1,
		Shares:        "100",
		CurrentValue:  2,
		Leverage:      4,
		DepositedAt:   now,
		LastUpdatedAt: now,
	}); err != nil {
		t.Fatalf("seed position: %v", err)
	}

	position, err := svc.RefreshPosition(context.Background(), "u1", "0xpool1", 1)
	if err != nil {
		t.Fatalf("RefreshPosition: %v", err)
	}
	if position.HealthFactor == nil {
		t.Fatal("leveraged position should carry a health factor")
	}
	// collateral/debt = 4/3 of the same base, so hf = 4/3 * 0.80
	if got := *position.HealthFactor; got < 1.06 || got > 1.07 {
		t.Fatalf("health factor = %v, want ~1.0667", got)
	}
	if position.CurrentSupplyAPY != 5.7 {
		t.Fatalf("supply APY = %v, want refreshed 5.7", position.CurrentSupplyAPY)
	}

	stored, err := store.GetPosition(context.Background(), "u1", "0xpool1", 1)
	if err != nil {
		t.Fatalf("stored position: %v", err)
	}
	if stored.HealthFactor == nil {
		t.Fatal("refresh must persist the revalued row")
	}
}

func TestDepositDelegates(t *testing.T) {
	svc, _, exec := seedService(t)

	if _, err := svc.Deposit(context.Background(), "u1", "0xpool1", 1, big.NewInt(10)); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if _, err := svc.Withdraw(context.Background(), "u1", "0xpool1", 1, big.NewInt(5)); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if exec.deposits != 1 || exec.withdraws != 1 {
		t.Fatalf("delegation counts = %d/%d, want 1/1", exec.deposits, exec.withdraws)
	}
}
