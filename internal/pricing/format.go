package pricing

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

const ratioPlaceholder = "---%"

// FormatYen renders a total or subtotal rounded to whole yen: ¥1,234.
func FormatYen(amount decimal.Decimal) string {
	return "¥" + humanize.Comma(amount.Round(0).IntPart())
}

// FormatLineYen renders a line cost with one decimal: ¥1,234.5.
func FormatLineYen(amount decimal.Decimal) string {
	rounded := amount.Round(1)
	if rounded.IsNegative() {
		return "-" + FormatLineYen(rounded.Neg())
	}

	whole := rounded.Truncate(0)
	tenths := rounded.Sub(whole).Mul(decimal.NewFromInt(10)).IntPart()
	return fmt.Sprintf("¥%s.%d", humanize.Comma(whole.IntPart()), tenths)
}

// FormatRatio renders a ratio as a one-decimal percentage, or a placeholder
// when it is not applicable.
func FormatRatio(r Ratio) string {
	percent, ok := r.Percent()
	if !ok {
		return ratioPlaceholder
	}
	return percent.StringFixed(1) + "%"
}
