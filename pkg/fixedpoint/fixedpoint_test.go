package fixedpoint

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalScale(t *testing.T) {
	assert.Equal(t, int32(18), CanonicalScale(18))
	assert.Equal(t, int32(28), CanonicalScale(8))
	assert.Equal(t, int32(30), CanonicalScale(6))
	assert.Equal(t, int32(36), CanonicalScale(0))
}

func TestMulDivTruncates(t *testing.T) {
	// 7 * 3 / 2 = 10.5 -> 10
	result := MulDiv(decimal.NewFromInt(7), decimal.NewFromInt(3), decimal.NewFromInt(2))
	assert.True(t, result.Equal(decimal.NewFromInt(10)), "got %s", result)

	// exact division stays exact
	result = MulDiv(decimal.NewFromInt(6), decimal.NewFromInt(4), decimal.NewFromInt(3))
	assert.True(t, result.Equal(decimal.NewFromInt(8)))
}

func TestShiftScale(t *testing.T) {
	v := decimal.NewFromInt(12345)

	up := ShiftScale(v, 3)
	assert.True(t, up.Equal(decimal.NewFromInt(12345000)))

	down := ShiftScale(v, -2)
	assert.True(t, down.Equal(decimal.NewFromInt(123)), "truncation expected, got %s", down)

	same := ShiftScale(v, 0)
	assert.True(t, same.Equal(v))
}

func TestRescaleAnswer(t *testing.T) {
	// 8-decimal feed answer for an 18-decimal asset: shift = 36 - 18 - 8 = 10
	answer := decimal.NewFromInt(99_000_000) // 0.99 at 8 decimals
	canonical := RescaleAnswer(answer, 8, 18)
	expected := decimal.RequireFromString("990000000000000000") // 0.99 at 18 decimals
	assert.True(t, canonical.Equal(expected), "got %s", canonical)

	// 18-decimal feed answer for an 18-decimal asset is unchanged
	answer = decimal.RequireFromString("1883923360000000000000")
	assert.True(t, RescaleAnswer(answer, 18, 18).Equal(answer))
}

func TestInvertRoundTrip(t *testing.T) {
	answer := decimal.RequireFromString("1250000000000000000") // 1.25 at 18 decimals
	inverted := Invert(answer)

	// inverted * answer must equal UNIT^2 within fixed-point truncation
	product := inverted.Mul(answer)
	diff := UnitSquared.Sub(product)
	require.True(t, diff.Sign() >= 0)
	assert.True(t, diff.LessThan(answer), "rounding loss exceeds one ulp: %s", diff)
}

func TestMinMax(t *testing.T) {
	a := decimal.NewFromInt(3)
	b := decimal.NewFromInt(7)
	assert.True(t, Min(a, b).Equal(a))
	assert.True(t, Max(a, b).Equal(b))
	assert.True(t, Min(b, b).Equal(b))
}
