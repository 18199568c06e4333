package main

import (
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Simplici0/bakecost/internal/catalog"
	"github.com/Simplici0/bakecost/internal/pricing"
	"github.com/Simplici0/bakecost/internal/store"
)

// number renders a decimal as a bare JSON number.
type number decimal.Decimal

func (n number) MarshalJSON() ([]byte, error) {
	return []byte(decimal.Decimal(n).String()), nil
}

type nullNumber decimal.NullDecimal

func (n nullNumber) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return number(n.Decimal).MarshalJSON()
}

func someNumber(d decimal.Decimal) nullNumber {
	return nullNumber(decimal.NewNullDecimal(d))
}

type ingredientJSON struct {
	ID                int64           `json:"id"`
	Name              string          `json:"name"`
	Price             number          `json:"price"`
	Amount            number          `json:"amount"`
	Unit              pricing.Unit    `json:"unit"`
	TaxType           pricing.TaxType `json:"tax_type"`
	TaxRate           nullNumber      `json:"tax_rate"`
	TaxRatePercent    nullNumber      `json:"tax_rate_percent"`
	EffectiveTaxRate  number          `json:"effective_tax_rate"`
	TaxInclusivePrice number          `json:"tax_inclusive_price"`
	UnitCost          number          `json:"unit_cost"`
	UpdatedAt         string          `json:"updated_at,omitempty"`
}

type ingredientSnapshotJSON struct {
	ID           int64     `json:"id"`
	IngredientID int64     `json:"ingredient_id"`
	ChangedAt    time.Time `json:"changed_at"`
	ingredientJSON
}

type itemJSON struct {
	ID             int64           `json:"id,omitempty"`
	IngredientID   int64           `json:"ingredient_id"`
	IngredientName string          `json:"ingredient_name"`
	Unit           pricing.Unit    `json:"unit"`
	Section        pricing.Section `json:"section"`
	Amount         number          `json:"amount"`
	UnitCost       nullNumber      `json:"unit_cost"`
	Cost           nullNumber      `json:"cost"`
}

type recipeJSON struct {
	ID               int64                      `json:"id,omitempty"`
	Name             string                     `json:"name"`
	Description      string                     `json:"description,omitempty"`
	SellingPrice     nullNumber                 `json:"selling_price"`
	UpdatedAt        string                     `json:"updated_at,omitempty"`
	Mode             catalog.TotalMode          `json:"mode"`
	TotalCost        number                     `json:"total_cost"`
	CostRatio        nullNumber                 `json:"cost_ratio"`
	CostRatioPercent nullNumber                 `json:"cost_ratio_percent"`
	Subtotals        map[pricing.Section]number `json:"subtotals,omitempty"`
	Items            []itemJSON                 `json:"items"`
}

type recipeSnapshotJSON struct {
	ID               int64      `json:"id"`
	RecipeID         int64      `json:"recipe_id"`
	ChangedAt        time.Time  `json:"changed_at"`
	Name             string     `json:"name"`
	Description      string     `json:"description,omitempty"`
	SellingPrice     nullNumber `json:"selling_price"`
	UpdatedAt        string     `json:"updated_at,omitempty"`
	TotalCost        number     `json:"total_cost"`
	CostRatio        nullNumber `json:"cost_ratio"`
	CostRatioPercent nullNumber `json:"cost_ratio_percent"`
	Items            []itemJSON `json:"items"`
}

func ratioJSON(r pricing.Ratio) (fraction, percent nullNumber) {
	if f, ok := r.Fraction(); ok {
		fraction = someNumber(f)
	}
	if p, ok := r.Percent(); ok {
		percent = someNumber(p)
	}
	return fraction, percent
}

func toIngredientJSON(v catalog.IngredientView) ingredientJSON {
	out := ingredientJSON{
		ID:                v.ID,
		Name:              v.Name,
		Price:             number(v.Price),
		Amount:            number(v.Amount),
		Unit:              v.Unit,
		TaxType:           v.TaxType,
		TaxRate:           nullNumber(v.TaxRate),
		EffectiveTaxRate:  number(v.EffectiveTaxRate),
		TaxInclusivePrice: number(v.TaxInclusivePrice),
		UnitCost:          number(v.UnitCost),
		UpdatedAt:         v.UpdatedAt,
	}
	if v.TaxRate.Valid {
		out.TaxRatePercent = someNumber(pricing.FractionToPercent(v.TaxRate.Decimal))
	}
	return out
}

func toIngredientSnapshotJSON(v catalog.IngredientSnapshotView) ingredientSnapshotJSON {
	return ingredientSnapshotJSON{
		ID:             v.ID,
		IngredientID:   v.Ingredient.ID,
		ChangedAt:      v.ChangedAt,
		ingredientJSON: toIngredientJSON(v.IngredientView),
	}
}

func toItemJSON(item store.RecipeItem) itemJSON {
	return itemJSON{
		ID:             item.ID,
		IngredientID:   item.Ingredient.ID,
		IngredientName: item.Ingredient.Name,
		Unit:           item.Ingredient.Unit,
		Section:        item.Section,
		Amount:         number(item.Amount),
	}
}

func toRecipeJSON(c catalog.RecipeCost) recipeJSON {
	out := recipeJSON{
		ID:           c.Recipe.ID,
		Name:         c.Recipe.Name,
		Description:  c.Recipe.Description,
		SellingPrice: nullNumber(c.Recipe.SellingPrice),
		UpdatedAt:    c.Recipe.UpdatedAt,
		Mode:         c.Mode,
		TotalCost:    number(c.Total),
		Items:        make([]itemJSON, 0, len(c.Recipe.Items)),
	}
	out.CostRatio, out.CostRatioPercent = ratioJSON(c.Ratio)
	if c.Subtotals != nil {
		out.Subtotals = make(map[pricing.Section]number, len(c.Subtotals))
		for section, subtotal := range c.Subtotals {
			out.Subtotals[section] = number(subtotal)
		}
	}

	if c.Lines != nil {
		for _, line := range c.Lines {
			item := toItemJSON(line.RecipeItem)
			item.UnitCost = someNumber(line.UnitCost)
			item.Cost = someNumber(line.Cost)
			out.Items = append(out.Items, item)
		}
		return out
	}

	for _, it := range c.Recipe.Items {
		out.Items = append(out.Items, toItemJSON(it))
	}
	return out
}

func toRecipeSnapshotJSON(v catalog.RecipeSnapshotView) recipeSnapshotJSON {
	out := recipeSnapshotJSON{
		ID:           v.ID,
		RecipeID:     v.Recipe.ID,
		ChangedAt:    v.ChangedAt,
		Name:         v.Recipe.Name,
		Description:  v.Recipe.Description,
		SellingPrice: nullNumber(v.Recipe.SellingPrice),
		UpdatedAt:    v.Recipe.UpdatedAt,
		TotalCost:    number(v.Recipe.TotalCost),
		Items:        make([]itemJSON, 0, len(v.Recipe.Items)),
	}
	out.CostRatio, out.CostRatioPercent = ratioJSON(v.Ratio)
	for _, it := range v.Recipe.Items {
		out.Items = append(out.Items, toItemJSON(it))
	}
	return out
}

var sectionLabels = map[pricing.Section]string{
	pricing.SectionDough:   "生地",
	pricing.SectionFilling: "フィリング",
}

// writeCostSheet renders a live-costed recipe as a plain-text sheet.
func writeCostSheet(w io.Writer, c catalog.RecipeCost) error {
	ew := &errWriter{w: w}

	ew.printf("%s\n", c.Recipe.Name)
	if c.Recipe.SellingPrice.Valid {
		ew.printf("販売価格: %s\n", pricing.FormatYen(c.Recipe.SellingPrice.Decimal))
	} else {
		ew.printf("販売価格: ---\n")
	}

	for _, section := range pricing.Sections {
		ew.printf("\n[%s]\n", sectionLabels[section])
		for _, line := range c.Lines {
			if line.Section != section {
				continue
			}
			ew.printf("  %s %s%s %s\n", line.Ingredient.Name, line.Amount.String(), line.Ingredient.Unit, pricing.FormatLineYen(line.Cost))
		}
		ew.printf("  小計: %s\n", pricing.FormatYen(c.Subtotals[section]))
	}

	ew.printf("\n総原価: %s\n", pricing.FormatYen(c.Total))
	ew.printf("原価率: %s\n", pricing.FormatRatio(c.Ratio))
	return ew.err
}

type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
