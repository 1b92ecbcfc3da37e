package pools

import (
	"math/big"

	"leverscope/internal/units"
)

// Metrics are the derived, display-ready numbers for one pool.
type Metrics struct {
	TVL         float64
	Borrowed    float64
	Utilization float64
	SupplyAPY   float64
	BorrowAPY   float64
}

// DeriveMetrics converts raw vault state into TVL, utilization and APYs.
// TVL is expectedLiquidity in underlying units; borrowed is what is not
// available; utilization is zero for an empty pool.
func DeriveMetrics(state PoolState, decimals uint8) Metrics {
	tvl := units.FromWei(state.ExpectedLiquidity, decimals)
	available := units.FromWei(state.AvailableLiquidity, decimals)

	borrowed := tvl - available
	if borrowed < 0 {
		borrowed = 0
	}

	utilization := 0.0
	if tvl > 0 {
		utilization = borrowed / tvl * 100
	}

	return Metrics{
		TVL:         tvl,
		Borrowed:    borrowed,
		Utilization: utilization,
		SupplyAPY:   units.Round2(units.RayToPercent(state.SupplyRate)),
		BorrowAPY:   units.Round2(units.RayToPercent(state.BaseInterestRate)),
	}
}

// ratesEmpty reports whether a vault exposes no rates at all, which usually
// means the address is not a lending pool.
func ratesEmpty(state PoolState) bool {
	zero := func(v *big.Int) bool { return v == nil || v.Sign() == 0 }
	return zero(state.ExpectedLiquidity) && zero(state.SupplyRate) && zero(state.BaseInterestRate)
}
