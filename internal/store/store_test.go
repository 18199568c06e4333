package store

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Simplici0/bakecost/internal/db"
	"github.com/Simplici0/bakecost/internal/migrations"
	"github.com/Simplici0/bakecost/internal/pricing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "store-test.db"))
	if err != nil {
		t.Fatalf("open sqlite database: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	if _, err := migrations.Up(testContext(t), database); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	s := New(database)
	clock := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	return s
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func calculateTotal(items []pricing.Item, lookup pricing.Lookup) (decimal.Decimal, error) {
	result, err := pricing.Calculate(items, lookup, decimal.NullDecimal{})
	if err != nil {
		return decimal.Zero, err
	}
	return result.Totals.Total, nil
}

func seedIngredient(t *testing.T, s *Store, ing Ingredient) Ingredient {
	t.Helper()
	created, err := s.CreateIngredient(testContext(t), ing)
	if err != nil {
		t.Fatalf("create ingredient %s: %v", ing.Name, err)
	}
	return created
}

func flour() Ingredient {
	return Ingredient{Name: "強力粉", Price: d("300"), Amount: d("1000"), Unit: pricing.UnitGram, TaxType: pricing.TaxInclusive, UpdatedAt: "2025-03-01"}
}

func butter() Ingredient {
	return Ingredient{Name: "バター", Price: d("200"), Amount: d("500"), Unit: pricing.UnitGram, TaxType: pricing.TaxExclusive, TaxRate: decimal.NewNullDecimal(d("0.1"))}
}

func TestIngredientRoundTripKeepsDecimalsAndNullRate(t *testing.T) {
	s := newTestStore(t)

	created := seedIngredient(t, s, flour())
	if created.ID == 0 {
		t.Fatalf("expected id to be assigned")
	}

	got, err := s.GetIngredient(testContext(t), created.ID)
	if err != nil {
		t.Fatalf("GetIngredient: %v", err)
	}
	if got.Name != "強力粉" || !got.Price.Equal(d("300")) || !got.Amount.Equal(d("1000")) {
		t.Fatalf("unexpected ingredient: %+v", got)
	}
	if got.TaxRate.Valid {
		t.Fatalf("expected null tax rate, got %s", got.TaxRate.Decimal)
	}
	if got.UpdatedAt != "2025-03-01" || got.Unit != pricing.UnitGram || got.TaxType != pricing.TaxInclusive {
		t.Fatalf("unexpected ingredient attributes: %+v", got)
	}

	b := seedIngredient(t, s, butter())
	got, err = s.GetIngredient(testContext(t), b.ID)
	if err != nil {
		t.Fatalf("GetIngredient: %v", err)
	}
	if !got.TaxRate.Valid || !got.TaxRate.Decimal.Equal(d("0.1")) {
		t.Fatalf("expected tax rate 0.1, got %+v", got.TaxRate)
	}

	all, err := s.ListIngredients(testContext(t))
	if err != nil {
		t.Fatalf("ListIngredients: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 ingredients, got %d", len(all))
	}

	if _, err := s.GetIngredient(testContext(t), 999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateIngredientWritesHistoryNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ing := seedIngredient(t, s, flour())

	first := flour()
	first.Price = d("320")
	if _, err := s.UpdateIngredient(testContext(t), ing.ID, first); err != nil {
		t.Fatalf("first update: %v", err)
	}

	second := flour()
	second.Price = d("350")
	second.TaxType = pricing.TaxExclusive
	updated, err := s.UpdateIngredient(testContext(t), ing.ID, second)
	if err != nil {
		t.Fatalf("second update: %v", err)
	}
	if !updated.Price.Equal(d("350")) || updated.ID != ing.ID {
		t.Fatalf("unexpected update result: %+v", updated)
	}

	history, err := s.IngredientHistory(testContext(t), ing.ID)
	if err != nil {
		t.Fatalf("IngredientHistory: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(history))
	}
	if !history[0].Ingredient.Price.Equal(d("320")) || !history[1].Ingredient.Price.Equal(d("300")) {
		t.Fatalf("snapshots not newest first: %s, %s", history[0].Ingredient.Price, history[1].Ingredient.Price)
	}
	if !history[0].ChangedAt.After(history[1].ChangedAt) {
		t.Fatalf("expected changed_at to be descending: %v, %v", history[0].ChangedAt, history[1].ChangedAt)
	}
	if history[1].Ingredient.TaxType != pricing.TaxInclusive {
		t.Fatalf("snapshot should keep the old tax type, got %s", history[1].Ingredient.TaxType)
	}

	if _, err := s.UpdateIngredient(testContext(t), 999, second); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.IngredientHistory(testContext(t), 999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for history, got %v", err)
	}
}

func TestCreateRecipePersistsTotalAndItemOrder(t *testing.T) {
	s := newTestStore(t)
	f := seedIngredient(t, s, flour())
	b := seedIngredient(t, s, butter())

	recipe, err := s.CreateRecipe(testContext(t), RecipeInput{
		Name:         "クロワッサン",
		SellingPrice: decimal.NewNullDecimal(d("400")),
		UpdatedAt:    "2025-04-01",
		Items: []pricing.Item{
			{IngredientID: b.ID, Amount: d("50"), Section: pricing.SectionDough},
			{IngredientID: f.ID, Amount: d("200"), Section: pricing.SectionDough},
		},
	}, calculateTotal)
	if err != nil {
		t.Fatalf("CreateRecipe: %v", err)
	}

	if !recipe.TotalCost.Equal(d("82")) {
		t.Fatalf("expected persisted total 82, got %s", recipe.TotalCost)
	}
	if len(recipe.Items) != 2 || recipe.Items[0].Ingredient.ID != b.ID || recipe.Items[1].Ingredient.ID != f.ID {
		t.Fatalf("items not in insertion order: %+v", recipe.Items)
	}
	if !recipe.SellingPrice.Valid || !recipe.SellingPrice.Decimal.Equal(d("400")) {
		t.Fatalf("unexpected selling price: %+v", recipe.SellingPrice)
	}

	list, err := s.ListRecipes(testContext(t))
	if err != nil {
		t.Fatalf("ListRecipes: %v", err)
	}
	if len(list) != 1 || len(list[0].Items) != 2 || list[0].Items[1].Ingredient.Name != "強力粉" {
		t.Fatalf("unexpected list: %+v", list)
	}
}

func TestCreateRecipeRejectsUnknownIngredient(t *testing.T) {
	s := newTestStore(t)

	_, err := s.CreateRecipe(testContext(t), RecipeInput{
		Name:  "幻のパン",
		Items: []pricing.Item{{IngredientID: 404, Amount: d("10"), Section: pricing.SectionDough}},
	}, calculateTotal)
	if !errors.Is(err, pricing.ErrUnknownIngredient) {
		t.Fatalf("expected ErrUnknownIngredient, got %v", err)
	}

	list, err := s.ListRecipes(testContext(t))
	if err != nil {
		t.Fatalf("ListRecipes: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected rollback, found %d recipes", len(list))
	}
}

func TestUpdateRecipeSnapshotsPreviousState(t *testing.T) {
	s := newTestStore(t)
	f := seedIngredient(t, s, flour())
	b := seedIngredient(t, s, butter())

	recipe, err := s.CreateRecipe(testContext(t), RecipeInput{
		Name:  "食パン",
		Items: []pricing.Item{{IngredientID: f.ID, Amount: d("200"), Section: pricing.SectionDough}},
	}, calculateTotal)
	if err != nil {
		t.Fatalf("CreateRecipe: %v", err)
	}

	updated, err := s.UpdateRecipe(testContext(t), recipe.ID, RecipeInput{
		Name:         "バター食パン",
		Description:  "リッチ",
		SellingPrice: decimal.NewNullDecimal(d("350")),
		Items: []pricing.Item{
			{IngredientID: f.ID, Amount: d("200"), Section: pricing.SectionDough},
			{IngredientID: b.ID, Amount: d("50"), Section: pricing.SectionFilling},
		},
	}, calculateTotal)
	if err != nil {
		t.Fatalf("UpdateRecipe: %v", err)
	}
	if updated.Name != "バター食パン" || len(updated.Items) != 2 || !updated.TotalCost.Equal(d("82")) {
		t.Fatalf("unexpected updated recipe: %+v", updated)
	}
	if updated.Items[1].Section != pricing.SectionFilling {
		t.Fatalf("expected second item in filling, got %s", updated.Items[1].Section)
	}

	history, err := s.RecipeHistory(testContext(t), recipe.ID)
	if err != nil {
		t.Fatalf("RecipeHistory: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(history))
	}
	snap := history[0].Recipe
	if snap.Name != "食パン" || snap.SellingPrice.Valid || !snap.TotalCost.Equal(d("60")) {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if len(snap.Items) != 1 || snap.Items[0].Ingredient.Name != "強力粉" || !snap.Items[0].Amount.Equal(d("200")) {
		t.Fatalf("unexpected snapshot items: %+v", snap.Items)
	}

	if _, err := s.UpdateRecipe(testContext(t), 999, RecipeInput{Name: "x"}, calculateTotal); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteIngredientInUse(t *testing.T) {
	s := newTestStore(t)
	f := seedIngredient(t, s, flour())

	recipe, err := s.CreateRecipe(testContext(t), RecipeInput{
		Name:  "バゲット",
		Items: []pricing.Item{{IngredientID: f.ID, Amount: d("250"), Section: pricing.SectionDough}},
	}, calculateTotal)
	if err != nil {
		t.Fatalf("CreateRecipe: %v", err)
	}

	if err := s.DeleteIngredient(testContext(t), f.ID); !errors.Is(err, ErrInUse) {
		t.Fatalf("expected ErrInUse, got %v", err)
	}

	if err := s.DeleteRecipe(testContext(t), recipe.ID); err != nil {
		t.Fatalf("DeleteRecipe: %v", err)
	}
	if err := s.DeleteRecipe(testContext(t), recipe.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	if err := s.DeleteIngredient(testContext(t), f.ID); err != nil {
		t.Fatalf("DeleteIngredient after recipe removal: %v", err)
	}
	if err := s.DeleteIngredient(testContext(t), f.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestIngredientsSkipsUnknownIDs(t *testing.T) {
	s := newTestStore(t)
	f := seedIngredient(t, s, flour())

	got, err := s.Ingredients(testContext(t), []int64{f.ID, 77, f.ID})
	if err != nil {
		t.Fatalf("Ingredients: %v", err)
	}
	if len(got) != 1 || got[f.ID].Name != "強力粉" {
		t.Fatalf("unexpected lookup result: %+v", got)
	}
}

func TestConcurrentIngredientUpdatesAllCommit(t *testing.T) {
	s := newTestStore(t)
	ing := seedIngredient(t, s, flour())
	fixed := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	const writers = 20
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			next := flour()
			next.Price = decimal.NewFromInt(int64(300 + i))
			if _, err := s.UpdateIngredient(testContext(t), ing.ID, next); err != nil {
				errs <- fmt.Errorf("writer %d: %w", i, err)
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("update failed: %v", err)
	}

	history, err := s.IngredientHistory(testContext(t), ing.ID)
	if err != nil {
		t.Fatalf("IngredientHistory: %v", err)
	}
	if len(history) != writers {
		t.Fatalf("expected %d snapshots, got %d", writers, len(history))
	}
}
