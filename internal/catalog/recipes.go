package catalog

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Simplici0/bakecost/internal/pricing"
	"github.com/Simplici0/bakecost/internal/store"
)

// LineView is a recipe item with its costs.
type LineView struct {
	store.RecipeItem
	UnitCost decimal.Decimal
	Cost     decimal.Decimal
}

// RecipeCost is a recipe costed in one TotalMode. Lines and Subtotals are only
// populated in ModeLive.
type RecipeCost struct {
	Recipe    store.Recipe
	Mode      TotalMode
	Lines     []LineView
	Subtotals map[pricing.Section]decimal.Decimal
	Total     decimal.Decimal
	Ratio     pricing.Ratio
}

// RecipeSnapshotView is a historical recipe with the cost ratio of its
// recorded total.
type RecipeSnapshotView struct {
	ID        int64
	ChangedAt time.Time
	Recipe    store.Recipe
	Ratio     pricing.Ratio
}

func costLive(recipe store.Recipe) (RecipeCost, error) {
	result, err := pricing.Calculate(recipe.PricingItems(), recipe.Book(), recipe.SellingPrice)
	if err != nil {
		return RecipeCost{}, err
	}

	lines := make([]LineView, len(recipe.Items))
	for i, item := range recipe.Items {
		lines[i] = LineView{
			RecipeItem: item,
			UnitCost:   result.Breakdown.Lines[i].UnitCost,
			Cost:       result.Breakdown.Lines[i].Cost,
		}
	}

	return RecipeCost{
		Recipe:    recipe,
		Mode:      ModeLive,
		Lines:     lines,
		Subtotals: result.Breakdown.Subtotals,
		Total:     result.Totals.Total,
		Ratio:     result.Totals.Ratio,
	}, nil
}

func costStored(recipe store.Recipe) RecipeCost {
	return RecipeCost{
		Recipe: recipe,
		Mode:   ModeStored,
		Total:  recipe.TotalCost,
		Ratio:  pricing.CostRatio(recipe.TotalCost, recipe.SellingPrice),
	}
}

func (s *Service) cost(recipe store.Recipe, mode TotalMode) (RecipeCost, error) {
	if mode == "" {
		mode = s.defaultMode
	}
	s.obs.RecipeCosted(string(mode))
	if mode == ModeStored {
		return costStored(recipe), nil
	}
	return costLive(recipe)
}

// ListRecipes returns every recipe costed in mode.
func (s *Service) ListRecipes(ctx context.Context, mode TotalMode) ([]RecipeCost, error) {
	recipes, err := s.store.ListRecipes(ctx)
	if err != nil {
		return nil, err
	}

	costs := make([]RecipeCost, 0, len(recipes))
	for _, r := range recipes {
		c, err := s.cost(r, mode)
		if err != nil {
			return nil, err
		}
		costs = append(costs, c)
	}
	return costs, nil
}

// GetRecipe returns one recipe costed in mode.
func (s *Service) GetRecipe(ctx context.Context, id int64, mode TotalMode) (RecipeCost, error) {
	recipe, err := s.store.GetRecipe(ctx, id)
	if err != nil {
		return RecipeCost{}, err
	}
	return s.cost(recipe, mode)
}

// CreateRecipe validates and stores a new recipe and returns it costed live.
func (s *Service) CreateRecipe(ctx context.Context, draft RecipeDraft) (RecipeCost, error) {
	in, err := draft.validate()
	if err != nil {
		return RecipeCost{}, s.reject(err)
	}

	recipe, err := s.store.CreateRecipe(ctx, in, totalCost)
	if err != nil {
		if IsInputError(err) {
			return RecipeCost{}, s.reject(err)
		}
		return RecipeCost{}, err
	}

	s.log.Info("recipe created",
		zap.Int64("recipe_id", recipe.ID),
		zap.String("name", recipe.Name),
		zap.Int("items", len(recipe.Items)),
		zap.Stringer("total_cost", recipe.TotalCost),
	)
	return s.cost(recipe, ModeLive)
}

// UpdateRecipe validates draft and replaces the recipe, keeping the previous
// version in its history.
func (s *Service) UpdateRecipe(ctx context.Context, id int64, draft RecipeDraft) (RecipeCost, error) {
	in, err := draft.validate()
	if err != nil {
		return RecipeCost{}, s.reject(err)
	}

	recipe, err := s.store.UpdateRecipe(ctx, id, in, totalCost)
	if err != nil {
		if IsInputError(err) {
			return RecipeCost{}, s.reject(err)
		}
		return RecipeCost{}, err
	}

	s.log.Info("recipe updated",
		zap.Int64("recipe_id", id),
		zap.Int("items", len(recipe.Items)),
		zap.Stringer("total_cost", recipe.TotalCost),
	)
	return s.cost(recipe, ModeLive)
}

// DeleteRecipe removes a recipe with its items and history.
func (s *Service) DeleteRecipe(ctx context.Context, id int64) error {
	if err := s.store.DeleteRecipe(ctx, id); err != nil {
		return err
	}
	s.log.Info("recipe deleted", zap.Int64("recipe_id", id))
	return nil
}

// RecipeHistory returns the previous versions of a recipe, newest first.
func (s *Service) RecipeHistory(ctx context.Context, id int64) ([]RecipeSnapshotView, error) {
	history, err := s.store.RecipeHistory(ctx, id)
	if err != nil {
		return nil, err
	}

	views := make([]RecipeSnapshotView, 0, len(history))
	for _, snap := range history {
		views = append(views, RecipeSnapshotView{
			ID:        snap.ID,
			ChangedAt: snap.ChangedAt,
			Recipe:    snap.Recipe,
			Ratio:     pricing.CostRatio(snap.Recipe.TotalCost, snap.Recipe.SellingPrice),
		})
	}
	return views, nil
}

// Quote costs an unsaved recipe against current ingredient prices. The name
// is optional.
func (s *Service) Quote(ctx context.Context, draft RecipeDraft) (RecipeCost, error) {
	if draft.SellingPrice.Valid && draft.SellingPrice.Decimal.IsNegative() {
		return RecipeCost{}, s.reject(invalid("selling_price", ErrNegative))
	}
	items, err := validateItems(draft.Items)
	if err != nil {
		return RecipeCost{}, s.reject(err)
	}

	ids := make([]int64, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.IngredientID)
	}
	ingredients, err := s.store.Ingredients(ctx, ids)
	if err != nil {
		return RecipeCost{}, err
	}

	recipe := store.Recipe{
		Name:         draft.Name,
		Description:  draft.Description,
		SellingPrice: draft.SellingPrice,
		Items:        make([]store.RecipeItem, 0, len(items)),
	}
	for i, it := range items {
		ing, ok := ingredients[it.IngredientID]
		if !ok {
			return RecipeCost{}, s.reject(invalid(itemField(i, "ingredient_id"), pricing.ErrUnknownIngredient))
		}
		recipe.Items = append(recipe.Items, store.RecipeItem{Amount: it.Amount, Section: it.Section, Ingredient: ing})
	}

	c, err := s.cost(recipe, ModeLive)
	if err != nil {
		return RecipeCost{}, s.reject(err)
	}
	recipe.TotalCost = c.Total
	c.Recipe = recipe
	return c, nil
}
