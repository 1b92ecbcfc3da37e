package calc

import (
	"errors"
	"math"
	"testing"
)

func TestHealthFactorNoDebt(t *testing.T) {
	for _, collateral := range []float64{0, 100, 1e9} {
		for _, lt := range []float64{0.5, 0.8, 0.93} {
			got, err := HealthFactor(collateral, 0, lt)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != SafeHealthFactor {
				t.Fatalf("HealthFactor(%v, 0, %v) = %v, want %v", collateral, lt, got, SafeHealthFactor)
			}
		}
	}
}

func TestHealthFactorInvalidThreshold(t *testing.T) {
	for _, lt := range []float64{0, -0.1, 1, 1.5} {
		if _, err := HealthFactor(100, 50, lt); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("threshold %v: expected ErrInvalidInput, got %v", lt, err)
		}
	}
}

func TestHealthFactorMonotone(t *testing.T) {
	prev := math.Inf(1)
	for debt := 10.0; debt <= 100; debt += 10 {
		hf, err := HealthFactor(1000, debt, 0.8)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if hf >= prev {
			t.Fatalf("health factor not decreasing in debt: hf(%v) = %v, previous %v", debt, hf, prev)
		}
		prev = hf
	}

	prev = 0
	for _, lt := range []float64{0.5, 0.6, 0.7, 0.8, 0.9} {
		hf, err := HealthFactor(1000, 500, lt)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if hf <= prev {
			t.Fatalf("health factor not increasing in threshold: hf(%v) = %v, previous %v", lt, hf, prev)
		}
		prev = hf
	}
}

func TestMaxLeverageForHealthFactor(t *testing.T) {
	got, err := MaxLeverageForHealthFactor(1.10, 0.93, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 647 {
		t.Fatalf("MaxLeverageForHealthFactor = %d, want 647", got)
	}
}

func TestMaxLeverageCapped(t *testing.T) {
	got, err := MaxLeverageForHealthFactor(1.10, 0.93, 500)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 500 {
		t.Fatalf("MaxLeverageForHealthFactor = %d, want cap 500", got)
	}
}

func TestMaxLeverageInvalidTarget(t *testing.T) {
	if _, err := MaxLeverageForHealthFactor(0.90, 0.93, 1000); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := MaxLeverageForHealthFactor(0.93, 0.93, 1000); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for equal inputs, got %v", err)
	}
}

func TestNetAPYLeveragedETH(t *testing.T) {
	// 5x leveraged ETH: 5.7% base, 3.21% borrow, 0.01% quota.
	got := NetAPY(5.7, 3.21, 500, 0.01)
	if math.Abs(got-15.61) > 0.01 {
		t.Fatalf("NetAPY = %v, want 15.61", got)
	}
}

func TestNetAPYUnleveraged(t *testing.T) {
	got := NetAPY(4.2, 9.9, 100, 0)
	if math.Abs(got-4.2) > 1e-9 {
		t.Fatalf("NetAPY at 1x = %v, want base APY 4.2", got)
	}
}

func TestLiquidationDropPercent(t *testing.T) {
	if got := LiquidationDropPercent(0.9); got != 0 {
		t.Fatalf("drop below 1 = %v, want 0", got)
	}
	got := LiquidationDropPercent(1.25)
	if math.Abs(got-20) > 1e-9 {
		t.Fatalf("LiquidationDropPercent(1.25) = %v, want 20", got)
	}
}

func TestPositionMetricsValidation(t *testing.T) {
	base := PositionParams{
		CollateralAmount:   10,
		CollateralPriceUSD: 2000,
		Leverage:           5,
		BaseAPY:            5.7,
		BorrowAPY:          3.21,
	}

	bad := base
	bad.CollateralAmount = 0
	if _, err := PositionMetrics(bad); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("zero collateral: expected ErrInvalidInput, got %v", err)
	}

	bad = base
	bad.Leverage = 11
	if _, err := PositionMetrics(bad); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("leverage 11: expected ErrInvalidInput, got %v", err)
	}

	bad = base
	bad.Leverage = 0.5
	if _, err := PositionMetrics(bad); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("leverage 0.5: expected ErrInvalidInput, got %v", err)
	}
}

func TestPositionMetricsLeveraged(t *testing.T) {
	report, err := PositionMetrics(PositionParams{
		CollateralAmount:     10,
		CollateralPriceUSD:   2000,
		Leverage:             5,
		BaseAPY:              5.7,
		BorrowAPY:            3.21,
		QuotaRatePercent:     0.01,
		LiquidationThreshold: 0.93,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// collateral 100k at 5x, debt 80k, LT 0.93 -> HF = 100000*0.93/80000
	wantHF := 100000 * 0.93 / 80000
	if math.Abs(report.HealthFactor-wantHF) > 1e-9 {
		t.Fatalf("health factor = %v, want %v", report.HealthFactor, wantHF)
	}
	if math.Abs(report.NetAPY-15.61) > 0.01 {
		t.Fatalf("net APY = %v, want 15.61", report.NetAPY)
	}
	if math.Abs(report.YearlyReturnUSD-20000*15.61/100) > 5 {
		t.Fatalf("yearly return = %v", report.YearlyReturnUSD)
	}
	if report.RiskLevel != RiskHigh {
		t.Fatalf("risk level = %s, want high", report.RiskLevel)
	}
}

func TestPositionMetricsUnleveragedIsSafe(t *testing.T) {
	report, err := PositionMetrics(PositionParams{
		CollateralAmount:   1,
		CollateralPriceUSD: 100,
		Leverage:           1,
		BaseAPY:            3,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.HealthFactor != SafeHealthFactor {
		t.Fatalf("health factor = %v, want safe sentinel", report.HealthFactor)
	}
	if report.DebtValueUSD != 0 {
		t.Fatalf("debt = %v, want 0", report.DebtValueUSD)
	}
	if report.RiskLevel != RiskLow {
		t.Fatalf("risk level = %s, want low", report.RiskLevel)
	}
	if len(report.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", report.Warnings)
	}
}

func TestPositionMetricsWarnings(t *testing.T) {
	report, err := PositionMetrics(PositionParams{
		CollateralAmount:     10,
		CollateralPriceUSD:   2000,
		Leverage:             8,
		BaseAPY:              2,
		BorrowAPY:            6,
		LiquidationThreshold: 0.93,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.RiskLevel != RiskCritical {
		t.Fatalf("risk level = %s, want critical", report.RiskLevel)
	}
	if report.NetAPY >= 0 {
		t.Fatalf("net APY = %v, want negative", report.NetAPY)
	}
	if len(report.Warnings) < 3 {
		t.Fatalf("expected critical, amplification and negative-yield warnings, got %v", report.Warnings)
	}
}
