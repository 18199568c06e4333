package pricing

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// PercentToFraction converts a whole-number percentage (8) into the fraction
// used everywhere inside the application (0.08). Boundaries that accept
// percentages call it exactly once on the way in.
func PercentToFraction(percent decimal.Decimal) decimal.Decimal {
	return percent.Div(hundred)
}

// FractionToPercent is the inverse of PercentToFraction, for output.
func FractionToPercent(fraction decimal.Decimal) decimal.Decimal {
	return fraction.Mul(hundred)
}
