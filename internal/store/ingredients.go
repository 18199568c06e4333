package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Simplici0/bakecost/internal/pricing"
)

const ingredientColumns = `id, name, price, amount, unit, COALESCE(updated_at, ''), tax_type, tax_rate`

func scanIngredient(sc scanner) (Ingredient, error) {
	var ing Ingredient
	var unit, taxType string
	if err := sc.Scan(&ing.ID, &ing.Name, &ing.Price, &ing.Amount, &unit, &ing.UpdatedAt, &taxType, &ing.TaxRate); err != nil {
		return Ingredient{}, err
	}
	ing.Unit = pricing.Unit(unit)
	ing.TaxType = pricing.TaxType(taxType)
	return ing, nil
}

// ListIngredients returns all ingredients ordered by name.
func (s *Store) ListIngredients(ctx context.Context) ([]Ingredient, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+ingredientColumns+`
		FROM ingredients
		ORDER BY name, id
	`)
	if err != nil {
		return nil, fmt.Errorf("query ingredients: %w", err)
	}
	defer rows.Close()

	ingredients := make([]Ingredient, 0)
	for rows.Next() {
		ing, err := scanIngredient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ingredient: %w", err)
		}
		ingredients = append(ingredients, ing)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ingredients: %w", err)
	}

	return ingredients, nil
}

// Ingredients returns the ingredients with the given ids, keyed by id, read in
// a single transaction. Unknown ids are absent from the result.
func (s *Store) Ingredients(ctx context.Context, ids []int64) (map[int64]Ingredient, error) {
	out := make(map[int64]Ingredient, len(ids))
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, id := range ids {
			if _, seen := out[id]; seen {
				continue
			}
			ing, err := getIngredient(ctx, tx, id)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			out[id] = ing
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetIngredient returns one ingredient or ErrNotFound.
func (s *Store) GetIngredient(ctx context.Context, id int64) (Ingredient, error) {
	return getIngredient(ctx, s.db, id)
}

func getIngredient(ctx context.Context, q queryer, id int64) (Ingredient, error) {
	row := q.QueryRowContext(ctx, `SELECT `+ingredientColumns+` FROM ingredients WHERE id = ?`, id)
	ing, err := scanIngredient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Ingredient{}, fmt.Errorf("ingredient %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Ingredient{}, fmt.Errorf("query ingredient %d: %w", id, err)
	}
	return ing, nil
}

// CreateIngredient inserts a new ingredient and returns it with its id.
func (s *Store) CreateIngredient(ctx context.Context, ing Ingredient) (Ingredient, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO ingredients (name, price, amount, unit, updated_at, tax_type, tax_rate)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, ing.Name, ing.Price, ing.Amount, string(ing.Unit), nullIfEmpty(ing.UpdatedAt), string(ing.TaxType), ing.TaxRate)
	if err != nil {
		return Ingredient{}, fmt.Errorf("insert ingredient: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return Ingredient{}, fmt.Errorf("read ingredient id: %w", err)
	}

	ing.ID = id
	return ing, nil
}

// UpdateIngredient snapshots the current ingredient into its history and then
// overwrites it, in one transaction.
func (s *Store) UpdateIngredient(ctx context.Context, id int64, ing Ingredient) (Ingredient, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := getIngredient(ctx, tx, id)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO ingredient_history (ingredient_id, name, price, amount, unit, updated_at, tax_type, tax_rate, changed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, id, current.Name, current.Price, current.Amount, string(current.Unit), nullIfEmpty(current.UpdatedAt),
			string(current.TaxType), current.TaxRate, s.timestamp()); err != nil {
			return fmt.Errorf("insert ingredient history: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE ingredients
			SET
				name = ?,
				price = ?,
				amount = ?,
				unit = ?,
				updated_at = ?,
				tax_type = ?,
				tax_rate = ?,
				modified_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, ing.Name, ing.Price, ing.Amount, string(ing.Unit), nullIfEmpty(ing.UpdatedAt), string(ing.TaxType), ing.TaxRate, id); err != nil {
			return fmt.Errorf("update ingredient: %w", err)
		}
		return nil
	})
	if err != nil {
		return Ingredient{}, err
	}

	ing.ID = id
	return ing, nil
}

// DeleteIngredient removes an ingredient and its history. It fails with
// ErrInUse while any recipe references it.
func (s *Store) DeleteIngredient(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := getIngredient(ctx, tx, id); err != nil {
			return err
		}

		var used bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM recipe_items WHERE ingredient_id = ?)`, id).Scan(&used); err != nil {
			return fmt.Errorf("check ingredient usage: %w", err)
		}
		if used {
			return fmt.Errorf("ingredient %d: %w", id, ErrInUse)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM ingredients WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete ingredient: %w", err)
		}
		return nil
	})
}

// IngredientHistory returns the snapshots of an ingredient, newest first.
func (s *Store) IngredientHistory(ctx context.Context, id int64) ([]IngredientSnapshot, error) {
	if _, err := s.GetIngredient(ctx, id); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ingredient_id, name, price, amount, unit, COALESCE(updated_at, ''), tax_type, tax_rate, changed_at
		FROM ingredient_history
		WHERE ingredient_id = ?
		ORDER BY changed_at DESC, id DESC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query ingredient history: %w", err)
	}
	defer rows.Close()

	history := make([]IngredientSnapshot, 0)
	for rows.Next() {
		var snap IngredientSnapshot
		var unit, taxType, changedAt string
		ing := &snap.Ingredient
		if err := rows.Scan(&snap.ID, &ing.ID, &ing.Name, &ing.Price, &ing.Amount, &unit, &ing.UpdatedAt, &taxType, &ing.TaxRate, &changedAt); err != nil {
			return nil, fmt.Errorf("scan ingredient history: %w", err)
		}
		ing.Unit = pricing.Unit(unit)
		ing.TaxType = pricing.TaxType(taxType)
		if snap.ChangedAt, err = parseTimestamp(changedAt); err != nil {
			return nil, err
		}
		history = append(history, snap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ingredient history: %w", err)
	}

	return history, nil
}
