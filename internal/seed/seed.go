package seed

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/Simplici0/bakecost/internal/pricing"
)

const sampleRecipeName = "クリームパン"

// Config contains the values required by the seed.
type Config struct {
	AdminEmail    string
	AdminPassword string
	// Samples adds a starter set of ingredients and one recipe.
	Samples bool
}

// Stats counts the rows a seed run inserted.
type Stats struct {
	Inserts int
}

type sampleIngredient struct {
	name    string
	price   string
	amount  string
	unit    pricing.Unit
	taxType pricing.TaxType
	taxRate string
}

var sampleIngredients = []sampleIngredient{
	{name: "強力粉", price: "300", amount: "1000", unit: pricing.UnitGram, taxType: pricing.TaxInclusive},
	{name: "無塩バター", price: "450", amount: "200", unit: pricing.UnitGram, taxType: pricing.TaxExclusive},
	{name: "卵", price: "280", amount: "10", unit: pricing.UnitPiece, taxType: pricing.TaxInclusive},
	{name: "牛乳", price: "230", amount: "1000", unit: pricing.UnitMilliliter, taxType: pricing.TaxExclusive, taxRate: "0.08"},
	{name: "グラニュー糖", price: "250", amount: "1000", unit: pricing.UnitGram, taxType: pricing.TaxExclusive, taxRate: "0.1"},
}

type sampleItem struct {
	ingredient string
	amount     string
	section    pricing.Section
}

var sampleRecipeItems = []sampleItem{
	{ingredient: "強力粉", amount: "100", section: pricing.SectionDough},
	{ingredient: "無塩バター", amount: "10", section: pricing.SectionDough},
	{ingredient: "卵", amount: "1", section: pricing.SectionFilling},
	{ingredient: "牛乳", amount: "120", section: pricing.SectionFilling},
	{ingredient: "グラニュー糖", amount: "30", section: pricing.SectionFilling},
}

// Run executes the seed in an idempotent way.
func Run(ctx context.Context, db *sql.DB, cfg Config) (Stats, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return Stats{}, fmt.Errorf("begin seed transaction: %w", err)
	}

	stats := Stats{}

	if err := seedAdmin(ctx, tx, cfg.AdminEmail, cfg.AdminPassword, &stats); err != nil {
		_ = tx.Rollback()
		return Stats{}, err
	}
	if cfg.Samples {
		ids, err := ensureIngredients(ctx, tx, &stats)
		if err != nil {
			_ = tx.Rollback()
			return Stats{}, err
		}
		if err := ensureRecipe(ctx, tx, ids, &stats); err != nil {
			_ = tx.Rollback()
			return Stats{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return Stats{}, fmt.Errorf("commit seed transaction: %w", err)
	}

	return stats, nil
}

func seedAdmin(ctx context.Context, tx *sql.Tx, email, password string, stats *Stats) error {
	if email == "" || password == "" {
		return nil
	}

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE email = ? LIMIT 1)`, email).Scan(&exists); err != nil {
		return fmt.Errorf("check admin user existence: %w", err)
	}
	if exists {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO users (email, password_hash) VALUES (?, ?)`, email, string(hash)); err != nil {
		return fmt.Errorf("insert admin user: %w", err)
	}
	stats.Inserts++
	return nil
}

// ensureIngredients inserts the sample ingredients that are missing by name
// and returns the ids of all of them, keyed by name.
func ensureIngredients(ctx context.Context, tx *sql.Tx, stats *Stats) (map[string]int64, error) {
	ids := make(map[string]int64, len(sampleIngredients))
	for _, ing := range sampleIngredients {
		var id int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM ingredients WHERE name = ? ORDER BY id LIMIT 1`, ing.name).Scan(&id)
		if err == nil {
			ids[ing.name] = id
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("check ingredient %q: %w", ing.name, err)
		}

		var taxRate any
		if ing.taxRate != "" {
			taxRate = ing.taxRate
		}

		result, err := tx.ExecContext(ctx, `
			INSERT INTO ingredients (name, price, amount, unit, tax_type, tax_rate)
			VALUES (?, ?, ?, ?, ?, ?)
		`, ing.name, ing.price, ing.amount, string(ing.unit), string(ing.taxType), taxRate)
		if err != nil {
			return nil, fmt.Errorf("insert ingredient %q: %w", ing.name, err)
		}
		if id, err = result.LastInsertId(); err != nil {
			return nil, fmt.Errorf("read ingredient id: %w", err)
		}
		ids[ing.name] = id
		stats.Inserts++
	}
	return ids, nil
}

func ensureRecipe(ctx context.Context, tx *sql.Tx, ids map[string]int64, stats *Stats) error {
	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM recipes WHERE name = ? LIMIT 1)`, sampleRecipeName).Scan(&exists); err != nil {
		return fmt.Errorf("check sample recipe existence: %w", err)
	}
	if exists {
		return nil
	}

	book, err := loadBook(ctx, tx, ids)
	if err != nil {
		return err
	}

	items := make([]pricing.Item, 0, len(sampleRecipeItems))
	for _, it := range sampleRecipeItems {
		items = append(items, pricing.Item{
			IngredientID: ids[it.ingredient],
			Amount:       decimal.RequireFromString(it.amount),
			Section:      it.section,
		})
	}

	result, err := pricing.Calculate(items, book, decimal.NullDecimal{})
	if err != nil {
		return fmt.Errorf("cost sample recipe: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO recipes (name, description, selling_price, total_cost)
		VALUES (?, ?, ?, ?)
	`, sampleRecipeName, "自家製カスタードのクリームパン", "220", result.Totals.Total)
	if err != nil {
		return fmt.Errorf("insert sample recipe: %w", err)
	}
	recipeID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("read sample recipe id: %w", err)
	}

	for i, item := range items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO recipe_items (recipe_id, ingredient_id, position, amount, section)
			VALUES (?, ?, ?, ?, ?)
		`, recipeID, item.IngredientID, i, item.Amount, string(item.Section)); err != nil {
			return fmt.Errorf("insert sample recipe item %d: %w", i+1, err)
		}
	}
	stats.Inserts++
	return nil
}

// loadBook reads the current cost inputs of ids, which may have been edited
// since they were first seeded.
func loadBook(ctx context.Context, tx *sql.Tx, ids map[string]int64) (pricing.Book, error) {
	book := make(pricing.Book, len(ids))
	for name, id := range ids {
		var in pricing.IngredientInput
		var taxType string
		if err := tx.QueryRowContext(ctx, `SELECT price, amount, tax_type, tax_rate FROM ingredients WHERE id = ?`, id).
			Scan(&in.Price, &in.Amount, &taxType, &in.TaxRate); err != nil {
			return nil, fmt.Errorf("load ingredient %q: %w", name, err)
		}
		in.TaxType = pricing.TaxType(taxType)
		book[id] = in
	}
	return book, nil
}
