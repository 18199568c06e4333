package catalog

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Simplici0/bakecost/internal/pricing"
	"github.com/Simplici0/bakecost/internal/store"
)

var (
	ErrRequired       = errors.New("is required")
	ErrNotPositive    = errors.New("must be greater than 0")
	ErrNegative       = errors.New("must be greater than or equal to 0")
	ErrBadDate        = errors.New("must be a date formatted as YYYY-MM-DD")
	ErrConflictingTax = errors.New("tax_rate and tax_rate_percent are mutually exclusive")
	ErrPercentRange   = errors.New("must be between 0 and 100")
	ErrUnknownMode    = errors.New("must be live or stored")
)

// ValidationError reports a field the caller must fix.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

const dateLayout = "2006-01-02"

// IngredientDraft is an ingredient as submitted by a client. The tax rate may
// be given as a fraction or as a whole-number percentage, not both.
type IngredientDraft struct {
	Name           string              `json:"name"`
	Price          decimal.NullDecimal `json:"price"`
	Amount         decimal.NullDecimal `json:"amount"`
	Unit           string              `json:"unit"`
	TaxType        string              `json:"tax_type"`
	TaxRate        decimal.NullDecimal `json:"tax_rate"`
	TaxRatePercent decimal.NullDecimal `json:"tax_rate_percent"`
	UpdatedAt      string              `json:"updated_at"`
}

func (d IngredientDraft) validate() (store.Ingredient, error) {
	ing := store.Ingredient{
		Name:      strings.TrimSpace(d.Name),
		UpdatedAt: strings.TrimSpace(d.UpdatedAt),
	}
	if ing.Name == "" {
		return ing, invalid("name", ErrRequired)
	}

	var err error
	if ing.Price, err = positive("price", d.Price); err != nil {
		return ing, err
	}
	if ing.Amount, err = positive("amount", d.Amount); err != nil {
		return ing, err
	}

	if ing.Unit, err = pricing.ParseUnit(strings.TrimSpace(d.Unit)); err != nil {
		return ing, invalid("unit", err)
	}

	taxType := strings.TrimSpace(d.TaxType)
	if taxType == "" {
		taxType = string(pricing.TaxInclusive)
	}
	if ing.TaxType, err = pricing.ParseTaxType(taxType); err != nil {
		return ing, invalid("tax_type", err)
	}

	if ing.TaxRate, err = taxRate(d.TaxRate, d.TaxRatePercent); err != nil {
		return ing, err
	}

	if err := validDate("updated_at", ing.UpdatedAt); err != nil {
		return ing, err
	}

	return ing, nil
}

// taxRate returns the fraction form of whichever rate field was sent.
func taxRate(fraction, percent decimal.NullDecimal) (decimal.NullDecimal, error) {
	switch {
	case fraction.Valid && percent.Valid:
		return decimal.NullDecimal{}, invalid("tax_rate", ErrConflictingTax)
	case percent.Valid:
		if percent.Decimal.IsNegative() || percent.Decimal.GreaterThan(decimal.NewFromInt(100)) {
			return decimal.NullDecimal{}, invalid("tax_rate_percent", ErrPercentRange)
		}
		return decimal.NewNullDecimal(pricing.PercentToFraction(percent.Decimal)), nil
	case fraction.Valid:
		if fraction.Decimal.IsNegative() || fraction.Decimal.GreaterThan(decimal.NewFromInt(1)) {
			return decimal.NullDecimal{}, invalid("tax_rate", pricing.ErrInvalidTaxRate)
		}
		return fraction, nil
	default:
		return decimal.NullDecimal{}, nil
	}
}

// ItemDraft is a recipe line item as submitted by a client.
type ItemDraft struct {
	IngredientID int64               `json:"ingredient_id"`
	Amount       decimal.NullDecimal `json:"amount"`
	Section      string              `json:"section"`
}

// RecipeDraft is a recipe as submitted by a client.
type RecipeDraft struct {
	Name         string              `json:"name"`
	Description  string              `json:"description"`
	SellingPrice decimal.NullDecimal `json:"selling_price"`
	UpdatedAt    string              `json:"updated_at"`
	Items        []ItemDraft         `json:"items"`
}

func (d RecipeDraft) validate() (store.RecipeInput, error) {
	in := store.RecipeInput{
		Name:         strings.TrimSpace(d.Name),
		Description:  strings.TrimSpace(d.Description),
		SellingPrice: d.SellingPrice,
		UpdatedAt:    strings.TrimSpace(d.UpdatedAt),
	}
	if in.Name == "" {
		return in, invalid("name", ErrRequired)
	}
	if d.SellingPrice.Valid && d.SellingPrice.Decimal.IsNegative() {
		return in, invalid("selling_price", ErrNegative)
	}
	if err := validDate("updated_at", in.UpdatedAt); err != nil {
		return in, err
	}

	items, err := validateItems(d.Items)
	if err != nil {
		return in, err
	}
	in.Items = items
	return in, nil
}

func validateItems(drafts []ItemDraft) ([]pricing.Item, error) {
	items := make([]pricing.Item, 0, len(drafts))
	for i, it := range drafts {
		if it.IngredientID <= 0 {
			return nil, invalid(itemField(i, "ingredient_id"), ErrRequired)
		}

		amount, err := positive(itemField(i, "amount"), it.Amount)
		if err != nil {
			return nil, err
		}

		raw := strings.TrimSpace(it.Section)
		if raw == "" {
			raw = string(pricing.SectionDough)
		}
		section, err := pricing.ParseSection(raw)
		if err != nil {
			return nil, invalid(itemField(i, "section"), err)
		}

		items = append(items, pricing.Item{IngredientID: it.IngredientID, Amount: amount, Section: section})
	}
	return items, nil
}

func itemField(i int, name string) string {
	return fmt.Sprintf("items[%d].%s", i, name)
}

func positive(field string, v decimal.NullDecimal) (decimal.Decimal, error) {
	if !v.Valid {
		return decimal.Zero, invalid(field, ErrRequired)
	}
	if !v.Decimal.IsPositive() {
		return decimal.Zero, invalid(field, ErrNotPositive)
	}
	return v.Decimal, nil
}

func validDate(field, raw string) error {
	if raw == "" {
		return nil
	}
	if _, err := time.Parse(dateLayout, raw); err != nil {
		return invalid(field, ErrBadDate)
	}
	return nil
}
