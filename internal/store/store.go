// Package store persists ingredients, recipes and their change history in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Simplici0/bakecost/internal/pricing"
)

var (
	ErrNotFound = errors.New("not found")
	ErrInUse    = errors.New("ingredient is used by a recipe")
)

// Ingredient is a stored ingredient purchase record.
type Ingredient struct {
	ID      int64
	Name    string
	Price   decimal.Decimal
	Amount  decimal.Decimal
	Unit    pricing.Unit
	TaxType pricing.TaxType
	TaxRate decimal.NullDecimal
	// UpdatedAt is the date (YYYY-MM-DD) the price was last confirmed, or "".
	UpdatedAt string
}

// CostInput returns the fields the unit cost depends on.
func (i Ingredient) CostInput() pricing.IngredientInput {
	return pricing.IngredientInput{
		Price:   i.Price,
		Amount:  i.Amount,
		TaxType: i.TaxType,
		TaxRate: i.TaxRate,
	}
}

// IngredientSnapshot is an ingredient as it was before an update.
type IngredientSnapshot struct {
	ID         int64
	Ingredient Ingredient
	ChangedAt  time.Time
}

// RecipeItem is a line item with its ingredient resolved at read time.
type RecipeItem struct {
	ID         int64
	Amount     decimal.Decimal
	Section    pricing.Section
	Ingredient Ingredient
}

// Recipe is a stored recipe. TotalCost is the value computed at the last save.
type Recipe struct {
	ID           int64
	Name         string
	Description  string
	SellingPrice decimal.NullDecimal
	UpdatedAt    string
	TotalCost    decimal.Decimal
	Items        []RecipeItem
}

// PricingItems returns the line items as weak references for costing.
func (r Recipe) PricingItems() []pricing.Item {
	items := make([]pricing.Item, 0, len(r.Items))
	for _, it := range r.Items {
		items = append(items, pricing.Item{
			IngredientID: it.Ingredient.ID,
			Amount:       it.Amount,
			Section:      it.Section,
		})
	}
	return items
}

// Book returns the ingredients referenced by the recipe, as read with it.
func (r Recipe) Book() pricing.Book {
	book := make(pricing.Book, len(r.Items))
	for _, it := range r.Items {
		book[it.Ingredient.ID] = it.Ingredient.CostInput()
	}
	return book
}

// RecipeSnapshot is a recipe as it was before an update.
type RecipeSnapshot struct {
	ID        int64
	Recipe    Recipe
	ChangedAt time.Time
}

// RecipeInput carries the writable fields of a recipe.
type RecipeInput struct {
	Name         string
	Description  string
	SellingPrice decimal.NullDecimal
	UpdatedAt    string
	Items        []pricing.Item
}

// TotalFunc computes a recipe total from its items and the ingredients they
// reference. The store calls it inside the write transaction so the total is
// derived from the same prices that are read.
type TotalFunc func(items []pricing.Item, lookup pricing.Lookup) (decimal.Decimal, error)

// Store is the SQLite-backed persistence layer.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New returns a Store over an open, migrated database.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

func parseTimestamp(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", raw, err)
	}
	return t, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
