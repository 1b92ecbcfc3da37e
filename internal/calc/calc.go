package calc

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidInput marks a calculator parameter the caller can correct.
var ErrInvalidInput = errors.New("invalid input")

const (
	// SafeHealthFactor is reported for unleveraged positions, which carry no
	// debt and cannot be liquidated.
	SafeHealthFactor = 999

	// DefaultLiquidationThreshold is used when no on-chain threshold is
	// supplied with the request.
	DefaultLiquidationThreshold = 0.80

	MinLeverage = 1.0
	MaxLeverage = 10.0
)

// Risk level boundaries on health factor.
const (
	lowRiskHF    = 1.5
	mediumRiskHF = 1.3
	highRiskHF   = 1.1
)

// HealthFactor returns risk-adjusted collateral value over debt value.
// Debt of zero means the position cannot be liquidated and the safe sentinel
// is returned regardless of the other inputs.
func HealthFactor(collateralValueUSD, debtValueUSD, liquidationThreshold float64) (float64, error) {
	if liquidationThreshold <= 0 || liquidationThreshold >= 1 {
		return 0, fmt.Errorf("%w: liquidation threshold %v not in (0,1)", ErrInvalidInput, liquidationThreshold)
	}
	if debtValueUSD == 0 {
		return SafeHealthFactor, nil
	}
	return collateralValueUSD * liquidationThreshold / debtValueUSD, nil
}

// LiquidationPrice returns the collateral price at which the position becomes
// eligible for liquidation.
func LiquidationPrice(currentPrice, healthFactor, liquidationThreshold float64) float64 {
	if healthFactor == 0 {
		return 0
	}
	return currentPrice * (1 / healthFactor) * liquidationThreshold
}

// LiquidationDropPercent returns how far the collateral-to-debt price ratio
// may fall, in percent, before liquidation.
func LiquidationDropPercent(healthFactor float64) float64 {
	if healthFactor <= 1 {
		return 0
	}
	return (healthFactor - 1) / healthFactor * 100
}

// NetAPY returns leveraged yield net of leveraged borrow cost and quota fees.
// leveragePercent is 100x the leverage multiplier (100 = 1x, 500 = 5x).
func NetAPY(baseAPY, borrowAPY, leveragePercent, quotaRatePercent float64) float64 {
	multiplier := leveragePercent / 100
	grossYield := baseAPY * multiplier
	borrowCost := borrowAPY * (multiplier - 1)
	quotaCost := quotaRatePercent * multiplier
	return grossYield - borrowCost - quotaCost
}

// MaxLeverageForHealthFactor returns the largest leverage, in percent, that
// keeps the health factor at or above targetHF, capped at the protocol's own
// maximum.
func MaxLeverageForHealthFactor(targetHF, liquidationThreshold float64, sdkMaxLeveragePercent int) (int, error) {
	if targetHF <= liquidationThreshold {
		return 0, fmt.Errorf("%w: target health factor %v must exceed liquidation threshold %v", ErrInvalidInput, targetHF, liquidationThreshold)
	}
	leverage := int(math.Floor(targetHF / (targetHF - liquidationThreshold) * 100))
	if leverage > sdkMaxLeveragePercent {
		leverage = sdkMaxLeveragePercent
	}
	return leverage, nil
}
