package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Item is a recipe line item as stored: a weak reference to an ingredient.
type Item struct {
	IngredientID int64
	Amount       decimal.Decimal
	Section      Section
}

// Lookup resolves an ingredient id to its current cost inputs.
type Lookup interface {
	LookupIngredient(id int64) (IngredientInput, bool)
}

// Book is a Lookup backed by a map.
type Book map[int64]IngredientInput

// LookupIngredient implements Lookup.
func (b Book) LookupIngredient(id int64) (IngredientInput, bool) {
	in, ok := b[id]
	return in, ok
}

// Line is a costed line item.
type Line struct {
	IngredientID int64
	Section      Section
	Amount       decimal.Decimal
	UnitCost     decimal.Decimal
	Cost         decimal.Decimal
}

// Breakdown holds the per-line and per-section values of a recipe.
type Breakdown struct {
	Lines     []Line
	Subtotals map[Section]decimal.Decimal
}

// Totals holds the roll-up values of a recipe.
type Totals struct {
	Total decimal.Decimal
	Ratio Ratio
}

// Result groups the full recipe costing.
type Result struct {
	Breakdown Breakdown
	Totals    Totals
}

// Calculate costs every item against the ingredients in lookup and rolls the
// line costs up into section subtotals, the total and the cost ratio.
func Calculate(items []Item, lookup Lookup, sellingPrice decimal.NullDecimal) (Result, error) {
	lines := make([]Line, 0, len(items))
	for i, item := range items {
		line, err := costItem(item, lookup)
		if err != nil {
			return Result{}, fmt.Errorf("item %d (ingredient %d): %w", i+1, item.IngredientID, err)
		}
		lines = append(lines, line)
	}

	subtotals := make(map[Section]decimal.Decimal, len(Sections))
	for _, section := range Sections {
		subtotals[section] = SectionSubtotal(section, lines)
	}

	total := TotalCost(lines)
	return Result{
		Breakdown: Breakdown{Lines: lines, Subtotals: subtotals},
		Totals:    Totals{Total: total, Ratio: CostRatio(total, sellingPrice)},
	}, nil
}

func costItem(item Item, lookup Lookup) (Line, error) {
	if _, err := ParseSection(string(item.Section)); err != nil {
		return Line{}, err
	}

	in, ok := lookup.LookupIngredient(item.IngredientID)
	if !ok {
		return Line{}, ErrUnknownIngredient
	}

	unitCost, err := UnitCost(in)
	if err != nil {
		return Line{}, err
	}

	cost, err := LineCost(unitCost, item.Amount)
	if err != nil {
		return Line{}, err
	}

	return Line{
		IngredientID: item.IngredientID,
		Section:      item.Section,
		Amount:       item.Amount,
		UnitCost:     unitCost,
		Cost:         cost,
	}, nil
}

// SectionSubtotal sums the cost of lines in section. An empty selection is 0.
func SectionSubtotal(section Section, lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, line := range lines {
		if line.Section == section {
			sum = sum.Add(line.Cost)
		}
	}
	return sum
}

// TotalCost sums the cost of all lines. An empty slice is 0.
func TotalCost(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, line := range lines {
		sum = sum.Add(line.Cost)
	}
	return sum
}

// Ratio is a cost-to-selling-price ratio that may be not applicable.
// The zero value is not applicable.
type Ratio struct {
	fraction   decimal.Decimal
	applicable bool
}

// CostRatio divides total by sellingPrice. The ratio is not applicable when
// the selling price is unknown or not positive.
func CostRatio(total decimal.Decimal, sellingPrice decimal.NullDecimal) Ratio {
	if !sellingPrice.Valid || !sellingPrice.Decimal.IsPositive() {
		return Ratio{}
	}
	return Ratio{fraction: total.Div(sellingPrice.Decimal), applicable: true}
}

// Applicable reports whether the ratio has a value.
func (r Ratio) Applicable() bool { return r.applicable }

// Fraction returns the ratio as a fraction (0.28 for 28%).
func (r Ratio) Fraction() (decimal.Decimal, bool) {
	return r.fraction, r.applicable
}

// Percent returns the ratio as a percentage (28 for 28%).
func (r Ratio) Percent() (decimal.Decimal, bool) {
	if !r.applicable {
		return decimal.Zero, false
	}
	return FractionToPercent(r.fraction), true
}
