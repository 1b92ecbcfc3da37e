package units

import (
	"math"
	"math/big"
)

// RayDecimals is the fixed-point scale the lending protocol uses for
// annualized interest rates (1e27).
const RayDecimals = 27

var ray = new(big.Float).SetFloat64(math.Pow10(RayDecimals))

// RayToPercent converts a RAY fixed-point annual rate into a percentage.
// A rate of 0.05e27 becomes 5.0.
func RayToPercent(rate *big.Int) float64 {
	if rate == nil || rate.Sign() == 0 {
		return 0
	}
	value, _ := new(big.Float).Quo(new(big.Float).SetInt(rate), ray).Float64()
	return value * 100
}

// FromWei converts a fixed-point token amount into a decimal value using the
// token's decimals.
func FromWei(amount *big.Int, decimals uint8) float64 {
	if amount == nil || amount.Sign() == 0 {
		return 0
	}
	divisor := new(big.Float).SetFloat64(math.Pow10(int(decimals)))
	value, _ := new(big.Float).Quo(new(big.Float).SetInt(amount), divisor).Float64()
	return value
}

// ToWei converts a decimal token amount into its fixed-point representation.
// The result is truncated toward zero.
func ToWei(amount float64, decimals uint8) *big.Int {
	if amount <= 0 {
		return new(big.Int)
	}
	scaled := new(big.Float).Mul(new(big.Float).SetFloat64(amount), new(big.Float).SetFloat64(math.Pow10(int(decimals))))
	wei, _ := scaled.Int(nil)
	return wei
}

// Round2 rounds a value to two decimal places, the display precision used for
// rates and USD amounts.
func Round2(value float64) float64 {
	return math.Round(value*100) / 100
}
