// Package money provides fixed-precision rupee arithmetic for order and
// invoice figures. All amounts are decimal values; binary floats are never
// used because totals feed audit and payment-matching logic.
package money

import (
	"github.com/shopspring/decimal"
)

// Zero is the zero rupee amount.
var Zero = decimal.Zero

var hundred = decimal.NewFromInt(100)

// ApplyTax returns the tax portion for amount at the given percent rate.
func ApplyTax(amount, percent decimal.Decimal) decimal.Decimal {
	return amount.Mul(percent).Div(hundred)
}

// RoundCurrency floors amount to the nearest whole rupee and returns the
// remainder separately so callers can display it as a round-off figure.
func RoundCurrency(amount decimal.Decimal) (rounded, roundOff decimal.Decimal) {
	rounded = amount.Floor()
	roundOff = amount.Sub(rounded)
	return rounded, roundOff
}

// ParseAmount converts loosely-typed document values into a decimal amount.
// Missing, malformed, or negative-nonsense values degrade to zero; order
// figures are advisory display values and must never fail to compute.
func ParseAmount(v any) decimal.Decimal {
	switch val := v.(type) {
	case nil:
		return decimal.Zero
	case decimal.Decimal:
		return val
	case float64:
		if val != val { // NaN guard
			return decimal.Zero
		}
		return decimal.NewFromFloat(val)
	case float32:
		return ParseAmount(float64(val))
	case int:
		return decimal.NewFromInt(int64(val))
	case int64:
		return decimal.NewFromInt(val)
	case string:
		d, err := decimal.NewFromString(val)
		if err != nil {
			return decimal.Zero
		}
		return d
	default:
		return decimal.Zero
	}
}
