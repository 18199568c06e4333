// Package pricing computes ingredient unit costs, recipe line costs and recipe
// totals. It is pure: no I/O, no logging, no shared state.
package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Input errors. Callers match them with errors.Is.
var (
	ErrInvalidAmount     = errors.New("amount must be greater than 0")
	ErrInvalidPrice      = errors.New("price must not be negative")
	ErrInvalidTaxType    = errors.New("tax_type must be inclusive or exclusive")
	ErrInvalidTaxRate    = errors.New("tax_rate must be between 0 and 1")
	ErrInvalidSection    = errors.New("section must be dough or filling")
	ErrInvalidUnit       = errors.New("unit must be g, ml or pc")
	ErrUnknownIngredient = errors.New("unknown ingredient")
)

// DefaultTaxRate is applied to tax-exclusive prices that carry no rate.
var DefaultTaxRate = decimal.New(8, -2)

// TaxType tells whether a stored price already contains consumption tax.
type TaxType string

const (
	TaxInclusive TaxType = "inclusive"
	TaxExclusive TaxType = "exclusive"
)

// ParseTaxType validates a raw tax type.
func ParseTaxType(raw string) (TaxType, error) {
	switch t := TaxType(raw); t {
	case TaxInclusive, TaxExclusive:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidTaxType, raw)
	}
}

// Unit is the measure an ingredient is bought and used in.
type Unit string

const (
	UnitGram       Unit = "g"
	UnitMilliliter Unit = "ml"
	UnitPiece      Unit = "pc"
)

// ParseUnit validates a raw unit.
func ParseUnit(raw string) (Unit, error) {
	switch u := Unit(raw); u {
	case UnitGram, UnitMilliliter, UnitPiece:
		return u, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidUnit, raw)
	}
}

// Section groups recipe line items for subtotals.
type Section string

const (
	SectionDough   Section = "dough"
	SectionFilling Section = "filling"
)

// Sections lists every section in display order.
var Sections = []Section{SectionDough, SectionFilling}

// ParseSection validates a raw section.
func ParseSection(raw string) (Section, error) {
	switch s := Section(raw); s {
	case SectionDough, SectionFilling:
		return s, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSection, raw)
	}
}

// IngredientInput is the part of an ingredient record the cost depends on.
// All fields must come from the same version of the record.
type IngredientInput struct {
	Price   decimal.Decimal
	Amount  decimal.Decimal
	TaxType TaxType
	// TaxRate is a fraction in [0, 1] (0.08 for 8%). Null means
	// DefaultTaxRate; rates outside the range fail with ErrInvalidTaxRate.
	TaxRate decimal.NullDecimal
}

// EffectiveTaxRate returns the rate used for exclusive prices.
func (in IngredientInput) EffectiveTaxRate() decimal.Decimal {
	if in.TaxRate.Valid {
		return in.TaxRate.Decimal
	}
	return DefaultTaxRate
}

// TaxInclusivePrice returns the payable price of the whole package.
func TaxInclusivePrice(in IngredientInput) (decimal.Decimal, error) {
	if in.Price.IsNegative() {
		return decimal.Zero, ErrInvalidPrice
	}

	switch in.TaxType {
	case TaxInclusive:
		return in.Price, nil
	case TaxExclusive:
		rate := in.EffectiveTaxRate()
		if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
			return decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidTaxRate, rate)
		}
		return in.Price.Mul(decimal.NewFromInt(1).Add(rate)), nil
	default:
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidTaxType, string(in.TaxType))
	}
}

// UnitCost returns the tax-inclusive cost of a single gram, milliliter or piece.
func UnitCost(in IngredientInput) (decimal.Decimal, error) {
	if !in.Amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: package amount %s", ErrInvalidAmount, in.Amount)
	}

	price, err := TaxInclusivePrice(in)
	if err != nil {
		return decimal.Zero, err
	}

	return price.Div(in.Amount), nil
}

// LineCost returns the cost of using amount units at unitCost. It does not round.
func LineCost(unitCost, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: used amount %s", ErrInvalidAmount, amount)
	}
	return unitCost.Mul(amount), nil
}
