package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Simplici0/bakecost/internal/pricing"
)

const recipeColumns = `id, name, COALESCE(description, ''), selling_price, COALESCE(updated_at, ''), total_cost`

const recipeItemsQuery = `
	SELECT ri.recipe_id, ri.id, ri.amount, ri.section,
		i.id, i.name, i.price, i.amount, i.unit, COALESCE(i.updated_at, ''), i.tax_type, i.tax_rate
	FROM recipe_items ri
	JOIN ingredients i ON i.id = ri.ingredient_id
`

func scanRecipe(sc scanner) (Recipe, error) {
	var r Recipe
	if err := sc.Scan(&r.ID, &r.Name, &r.Description, &r.SellingPrice, &r.UpdatedAt, &r.TotalCost); err != nil {
		return Recipe{}, err
	}
	return r, nil
}

func scanRecipeItem(sc scanner) (int64, RecipeItem, error) {
	var recipeID int64
	var item RecipeItem
	var section, unit, taxType string
	ing := &item.Ingredient
	if err := sc.Scan(&recipeID, &item.ID, &item.Amount, &section,
		&ing.ID, &ing.Name, &ing.Price, &ing.Amount, &unit, &ing.UpdatedAt, &taxType, &ing.TaxRate); err != nil {
		return 0, RecipeItem{}, err
	}
	item.Section = pricing.Section(section)
	ing.Unit = pricing.Unit(unit)
	ing.TaxType = pricing.TaxType(taxType)
	return recipeID, item, nil
}

// ListRecipes returns every recipe with its items and their current
// ingredients, read in one transaction.
func (s *Store) ListRecipes(ctx context.Context) ([]Recipe, error) {
	var recipes []Recipe
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT `+recipeColumns+` FROM recipes ORDER BY id`)
		if err != nil {
			return fmt.Errorf("query recipes: %w", err)
		}
		defer rows.Close()

		recipes = make([]Recipe, 0)
		index := make(map[int64]int)
		for rows.Next() {
			r, err := scanRecipe(rows)
			if err != nil {
				return fmt.Errorf("scan recipe: %w", err)
			}
			index[r.ID] = len(recipes)
			recipes = append(recipes, r)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate recipes: %w", err)
		}

		itemRows, err := tx.QueryContext(ctx, recipeItemsQuery+` ORDER BY ri.recipe_id, ri.position, ri.id`)
		if err != nil {
			return fmt.Errorf("query recipe items: %w", err)
		}
		defer itemRows.Close()

		for itemRows.Next() {
			recipeID, item, err := scanRecipeItem(itemRows)
			if err != nil {
				return fmt.Errorf("scan recipe item: %w", err)
			}
			if i, ok := index[recipeID]; ok {
				recipes[i].Items = append(recipes[i].Items, item)
			}
		}
		if err := itemRows.Err(); err != nil {
			return fmt.Errorf("iterate recipe items: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return recipes, nil
}

// GetRecipe returns one recipe with its items, or ErrNotFound.
func (s *Store) GetRecipe(ctx context.Context, id int64) (Recipe, error) {
	var recipe Recipe
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		recipe, err = getRecipe(ctx, tx, id)
		return err
	})
	return recipe, err
}

func getRecipe(ctx context.Context, q queryer, id int64) (Recipe, error) {
	recipe, err := scanRecipe(q.QueryRowContext(ctx, `SELECT `+recipeColumns+` FROM recipes WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Recipe{}, fmt.Errorf("recipe %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Recipe{}, fmt.Errorf("query recipe %d: %w", id, err)
	}

	rows, err := q.QueryContext(ctx, recipeItemsQuery+` WHERE ri.recipe_id = ? ORDER BY ri.position, ri.id`, id)
	if err != nil {
		return Recipe{}, fmt.Errorf("query recipe items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		_, item, err := scanRecipeItem(rows)
		if err != nil {
			return Recipe{}, fmt.Errorf("scan recipe item: %w", err)
		}
		recipe.Items = append(recipe.Items, item)
	}
	if err := rows.Err(); err != nil {
		return Recipe{}, fmt.Errorf("iterate recipe items: %w", err)
	}

	return recipe, nil
}

// CreateRecipe inserts a recipe and its items. The persisted total_cost is
// computed by total against the ingredient prices read in the same transaction.
func (s *Store) CreateRecipe(ctx context.Context, in RecipeInput, total TotalFunc) (Recipe, error) {
	var recipe Recipe
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		totalCost, err := computeTotal(ctx, tx, in.Items, total)
		if err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx, `
			INSERT INTO recipes (name, description, selling_price, updated_at, total_cost)
			VALUES (?, ?, ?, ?, ?)
		`, in.Name, nullIfEmpty(in.Description), in.SellingPrice, nullIfEmpty(in.UpdatedAt), totalCost)
		if err != nil {
			return fmt.Errorf("insert recipe: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("read recipe id: %w", err)
		}

		if err := insertItems(ctx, tx, id, in.Items); err != nil {
			return err
		}

		recipe, err = getRecipe(ctx, tx, id)
		return err
	})
	if err != nil {
		return Recipe{}, err
	}
	return recipe, nil
}

// UpdateRecipe snapshots the current recipe into its history, then replaces
// its fields and all of its items, in one transaction.
func (s *Store) UpdateRecipe(ctx context.Context, id int64, in RecipeInput, total TotalFunc) (Recipe, error) {
	var recipe Recipe
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := getRecipe(ctx, tx, id)
		if err != nil {
			return err
		}

		if err := s.insertRecipeSnapshot(ctx, tx, current, total); err != nil {
			return err
		}

		totalCost, err := computeTotal(ctx, tx, in.Items, total)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE recipes
			SET
				name = ?,
				description = ?,
				selling_price = ?,
				updated_at = ?,
				total_cost = ?,
				modified_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, in.Name, nullIfEmpty(in.Description), in.SellingPrice, nullIfEmpty(in.UpdatedAt), totalCost, id); err != nil {
			return fmt.Errorf("update recipe: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM recipe_items WHERE recipe_id = ?`, id); err != nil {
			return fmt.Errorf("delete recipe items: %w", err)
		}
		if err := insertItems(ctx, tx, id, in.Items); err != nil {
			return err
		}

		recipe, err = getRecipe(ctx, tx, id)
		return err
	})
	if err != nil {
		return Recipe{}, err
	}
	return recipe, nil
}

// DeleteRecipe removes a recipe, its items and its history.
func (s *Store) DeleteRecipe(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM recipes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete recipe: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete recipe: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("recipe %d: %w", id, ErrNotFound)
	}
	return nil
}

// computeTotal resolves the referenced ingredients inside tx and hands them to total.
func computeTotal(ctx context.Context, tx *sql.Tx, items []pricing.Item, total TotalFunc) (decimal.Decimal, error) {
	book := make(pricing.Book, len(items))
	for _, item := range items {
		if _, ok := book[item.IngredientID]; ok {
			continue
		}
		ing, err := getIngredient(ctx, tx, item.IngredientID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return decimal.Zero, err
		}
		book[ing.ID] = ing.CostInput()
	}
	return total(items, book)
}

func insertItems(ctx context.Context, tx *sql.Tx, recipeID int64, items []pricing.Item) error {
	for i, item := range items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO recipe_items (recipe_id, ingredient_id, position, amount, section)
			VALUES (?, ?, ?, ?, ?)
		`, recipeID, item.IngredientID, i, item.Amount, string(item.Section)); err != nil {
			return fmt.Errorf("insert recipe item %d: %w", i+1, err)
		}
	}
	return nil
}

// snapshotItem is the JSON shape of a line item inside recipe_history.
type snapshotItem struct {
	ID         int64              `json:"id"`
	Amount     decimal.Decimal    `json:"amount"`
	Section    string             `json:"section"`
	Ingredient snapshotIngredient `json:"ingredient"`
}

type snapshotIngredient struct {
	ID        int64               `json:"id"`
	Name      string              `json:"name"`
	Price     decimal.Decimal     `json:"price"`
	Amount    decimal.Decimal     `json:"amount"`
	Unit      string              `json:"unit"`
	UpdatedAt string              `json:"updated_at,omitempty"`
	TaxType   string              `json:"tax_type"`
	TaxRate   decimal.NullDecimal `json:"tax_rate"`
}

func encodeSnapshotItems(items []RecipeItem) (string, error) {
	out := make([]snapshotItem, 0, len(items))
	for _, it := range items {
		ing := it.Ingredient
		out = append(out, snapshotItem{
			ID:      it.ID,
			Amount:  it.Amount,
			Section: string(it.Section),
			Ingredient: snapshotIngredient{
				ID:        ing.ID,
				Name:      ing.Name,
				Price:     ing.Price,
				Amount:    ing.Amount,
				Unit:      string(ing.Unit),
				UpdatedAt: ing.UpdatedAt,
				TaxType:   string(ing.TaxType),
				TaxRate:   ing.TaxRate,
			},
		})
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("encode recipe items snapshot: %w", err)
	}
	return string(raw), nil
}

func decodeSnapshotItems(raw string) ([]RecipeItem, error) {
	var in []snapshotItem
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		return nil, fmt.Errorf("decode recipe items snapshot: %w", err)
	}
	items := make([]RecipeItem, 0, len(in))
	for _, it := range in {
		ing := it.Ingredient
		items = append(items, RecipeItem{
			ID:      it.ID,
			Amount:  it.Amount,
			Section: pricing.Section(it.Section),
			Ingredient: Ingredient{
				ID:        ing.ID,
				Name:      ing.Name,
				Price:     ing.Price,
				Amount:    ing.Amount,
				Unit:      pricing.Unit(ing.Unit),
				UpdatedAt: ing.UpdatedAt,
				TaxType:   pricing.TaxType(ing.TaxType),
				TaxRate:   ing.TaxRate,
			},
		})
	}
	return items, nil
}

// insertRecipeSnapshot records current as it stands. Its total is recomputed
// from the prices at the time of the change; when that fails the last
// persisted total is kept.
func (s *Store) insertRecipeSnapshot(ctx context.Context, tx *sql.Tx, current Recipe, total TotalFunc) error {
	itemsJSON, err := encodeSnapshotItems(current.Items)
	if err != nil {
		return err
	}

	snapshotTotal := current.TotalCost
	if live, err := total(current.PricingItems(), current.Book()); err == nil {
		snapshotTotal = live
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO recipe_history (recipe_id, name, description, selling_price, updated_at, items_snapshot, total_cost, changed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, current.ID, current.Name, nullIfEmpty(current.Description), current.SellingPrice, nullIfEmpty(current.UpdatedAt),
		itemsJSON, snapshotTotal, s.timestamp()); err != nil {
		return fmt.Errorf("insert recipe history: %w", err)
	}
	return nil
}

// RecipeHistory returns the snapshots of a recipe, newest first.
func (s *Store) RecipeHistory(ctx context.Context, id int64) ([]RecipeSnapshot, error) {
	var history []RecipeSnapshot
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM recipes WHERE id = ?)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("check recipe existence: %w", err)
		}
		if !exists {
			return fmt.Errorf("recipe %d: %w", id, ErrNotFound)
		}

		rows, err := tx.QueryContext(ctx, `
			SELECT id, recipe_id, name, COALESCE(description, ''), selling_price, COALESCE(updated_at, ''),
				items_snapshot, total_cost, changed_at
			FROM recipe_history
			WHERE recipe_id = ?
			ORDER BY changed_at DESC, id DESC
		`, id)
		if err != nil {
			return fmt.Errorf("query recipe history: %w", err)
		}
		defer rows.Close()

		history = make([]RecipeSnapshot, 0)
		for rows.Next() {
			var snap RecipeSnapshot
			var itemsJSON, changedAt string
			r := &snap.Recipe
			if err := rows.Scan(&snap.ID, &r.ID, &r.Name, &r.Description, &r.SellingPrice, &r.UpdatedAt,
				&itemsJSON, &r.TotalCost, &changedAt); err != nil {
				return fmt.Errorf("scan recipe history: %w", err)
			}
			if r.Items, err = decodeSnapshotItems(itemsJSON); err != nil {
				return err
			}
			if snap.ChangedAt, err = parseTimestamp(changedAt); err != nil {
				return err
			}
			history = append(history, snap)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate recipe history: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return history, nil
}
