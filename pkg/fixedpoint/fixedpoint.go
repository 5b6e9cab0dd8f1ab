// Package fixedpoint implements the canonical fixed-point price representation.
//
// A canonical price is a non-negative integer-valued decimal whose implicit
// scale is 36 - assetDecimals, so that price * amountInBaseUnits is always a
// 36-decimal quantity regardless of the asset's own granularity.
package fixedpoint

import (
	"github.com/shopspring/decimal"
)

const (
	// PriceWidth is the fixed decimal width of price * base-unit amount.
	PriceWidth = 36
	// UnitDecimals is the implicit scale of the fixed-point one.
	UnitDecimals = 18
	// MaxAssetDecimals bounds the decimals attribute of a registered asset.
	MaxAssetDecimals = 18
)

var (
	// Unit is the fixed-point one, 10^18.
	Unit = decimal.New(1, UnitDecimals)
	// UnitSquared is 10^36, used for fixed-point reciprocals.
	UnitSquared = decimal.New(1, PriceWidth)
	// Hundred divides weighted sums; weights always total 100.
	Hundred = decimal.New(100, 0)
)

// CanonicalScale returns the implicit decimal scale of a canonical price for
// an asset with the given decimals attribute.
func CanonicalScale(assetDecimals uint8) int32 {
	return PriceWidth - int32(assetDecimals)
}

// MulDiv returns a * b / c with integer truncation, the only rounding mode
// canonical prices permit.
func MulDiv(a, b, c decimal.Decimal) decimal.Decimal {
	q, _ := a.Mul(b).QuoRem(c, 0)
	return q
}

// Div returns a / b truncated to an integer.
func Div(a, b decimal.Decimal) decimal.Decimal {
	q, _ := a.QuoRem(b, 0)
	return q
}

// ShiftScale rescales an integer fixed-point value by 10^shift, truncating
// when shift is negative.
func ShiftScale(value decimal.Decimal, shift int32) decimal.Decimal {
	if shift >= 0 {
		return value.Mul(decimal.New(1, shift))
	}
	q, _ := value.QuoRem(decimal.New(1, -shift), 0)
	return q
}

// RescaleAnswer converts a raw feed answer carrying feedDecimals implicit
// decimals into the canonical scale for an asset with assetDecimals.
func RescaleAnswer(answer decimal.Decimal, feedDecimals int32, assetDecimals uint8) decimal.Decimal {
	return ShiftScale(answer, CanonicalScale(assetDecimals)-feedDecimals)
}

// Invert returns the fixed-point reciprocal UNIT^2 / value. The result
// carries 36 - feedDecimals implicit decimals when value carried feedDecimals.
func Invert(value decimal.Decimal) decimal.Decimal {
	return Div(UnitSquared, value)
}

// Min returns the smaller of a and b.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThanOrEqual(b) {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThanOrEqual(b) {
		return a
	}
	return b
}
