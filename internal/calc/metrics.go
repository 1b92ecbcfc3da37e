package calc

import (
	"fmt"
)

// RiskLevel classifies a position by its health factor.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// PositionParams are the inputs for a full position report. Zero values for
// LiquidationThreshold and QuotaRatePercent select the fallback constants;
// callers holding real on-chain values should pass them through.
type PositionParams struct {
	CollateralAmount     float64
	CollateralPriceUSD   float64
	Leverage             float64
	BaseAPY              float64
	BorrowAPY            float64
	QuotaRatePercent     float64
	LiquidationThreshold float64
}

// PositionReport is the combined risk and yield view of a prospective or
// existing position.
type PositionReport struct {
	HealthFactor           float64   `json:"health_factor"`
	LiquidationPrice       float64   `json:"liquidation_price"`
	LiquidationDropPercent float64   `json:"liquidation_drop_percent"`
	CollateralValueUSD     float64   `json:"collateral_value_usd"`
	DebtValueUSD           float64   `json:"debt_value_usd"`
	NetAPY                 float64   `json:"net_apy"`
	MonthlyReturnUSD       float64   `json:"monthly_return_usd"`
	YearlyReturnUSD        float64   `json:"yearly_return_usd"`
	RiskLevel              RiskLevel `json:"risk_level"`
	Warnings               []string  `json:"warnings,omitempty"`
	Recommendations        []string  `json:"recommendations,omitempty"`
}

// PositionMetrics computes the full report for the given parameters.
func PositionMetrics(p PositionParams) (PositionReport, error) {
	if p.CollateralAmount <= 0 {
		return PositionReport{}, fmt.Errorf("%w: collateral amount must be positive", ErrInvalidInput)
	}
	if p.Leverage < MinLeverage || p.Leverage > MaxLeverage {
		return PositionReport{}, fmt.Errorf("%w: leverage %v outside [%v, %v]", ErrInvalidInput, p.Leverage, MinLeverage, MaxLeverage)
	}
	if p.CollateralPriceUSD <= 0 {
		return PositionReport{}, fmt.Errorf("%w: collateral price must be positive", ErrInvalidInput)
	}

	lt := p.LiquidationThreshold
	if lt == 0 {
		lt = DefaultLiquidationThreshold
	}

	depositUSD := p.CollateralAmount * p.CollateralPriceUSD
	collateralUSD := depositUSD * p.Leverage
	debtUSD := depositUSD * (p.Leverage - 1)

	hf, err := HealthFactor(collateralUSD, debtUSD, lt)
	if err != nil {
		return PositionReport{}, err
	}

	netAPY := NetAPY(p.BaseAPY, p.BorrowAPY, p.Leverage*100, p.QuotaRatePercent)
	yearly := depositUSD * netAPY / 100

	report := PositionReport{
		HealthFactor:           hf,
		LiquidationPrice:       LiquidationPrice(p.CollateralPriceUSD, hf, lt),
		LiquidationDropPercent: LiquidationDropPercent(hf),
		CollateralValueUSD:     collateralUSD,
		DebtValueUSD:           debtUSD,
		NetAPY:                 netAPY,
		MonthlyReturnUSD:       yearly / 12,
		YearlyReturnUSD:        yearly,
		RiskLevel:              riskLevel(hf),
	}

	report.Warnings, report.Recommendations = advise(report, p)
	return report, nil
}

func riskLevel(hf float64) RiskLevel {
	switch {
	case hf >= lowRiskHF:
		return RiskLow
	case hf >= mediumRiskHF:
		return RiskMedium
	case hf >= highRiskHF:
		return RiskHigh
	default:
		return RiskCritical
	}
}

func advise(r PositionReport, p PositionParams) (warnings, recommendations []string) {
	if p.Leverage > 1 {
		switch {
		case r.HealthFactor < 1.2:
			warnings = append(warnings, fmt.Sprintf("health factor %.2f is critically low; liquidation risk is immediate", r.HealthFactor))
			recommendations = append(recommendations, "reduce leverage or add collateral before opening this position")
		case r.HealthFactor < 1.3:
			warnings = append(warnings, fmt.Sprintf("health factor %.2f leaves little room for price movement", r.HealthFactor))
		}
	}

	if p.Leverage > 5 {
		warnings = append(warnings, fmt.Sprintf("%.0fx leverage amplifies both gains and losses", p.Leverage))
	}

	if r.NetAPY < 0 {
		warnings = append(warnings, fmt.Sprintf("net APY %.2f%% is negative; borrow cost exceeds yield at this leverage", r.NetAPY))
		recommendations = append(recommendations, "lower leverage until net APY turns positive")
	}

	if p.Leverage > 1 && r.LiquidationPrice > p.CollateralPriceUSD*0.8 {
		warnings = append(warnings, fmt.Sprintf("liquidation price %.2f is within 20%% of the current price %.2f", r.LiquidationPrice, p.CollateralPriceUSD))
	}

	return warnings, recommendations
}
