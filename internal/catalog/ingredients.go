package catalog

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Simplici0/bakecost/internal/pricing"
	"github.com/Simplici0/bakecost/internal/store"
)

// IngredientView is an ingredient with its derived costs.
type IngredientView struct {
	store.Ingredient
	EffectiveTaxRate  decimal.Decimal
	TaxInclusivePrice decimal.Decimal
	UnitCost          decimal.Decimal
}

// IngredientSnapshotView is a historical ingredient with the unit cost it had.
type IngredientSnapshotView struct {
	ID        int64
	ChangedAt time.Time
	IngredientView
}

func viewIngredient(ing store.Ingredient) (IngredientView, error) {
	in := ing.CostInput()
	gross, err := pricing.TaxInclusivePrice(in)
	if err != nil {
		return IngredientView{}, err
	}
	unitCost, err := pricing.UnitCost(in)
	if err != nil {
		return IngredientView{}, err
	}
	return IngredientView{
		Ingredient:        ing,
		EffectiveTaxRate:  in.EffectiveTaxRate(),
		TaxInclusivePrice: gross,
		UnitCost:          unitCost,
	}, nil
}

// ListIngredients returns every ingredient with its unit cost.
func (s *Service) ListIngredients(ctx context.Context) ([]IngredientView, error) {
	ingredients, err := s.store.ListIngredients(ctx)
	if err != nil {
		return nil, err
	}

	views := make([]IngredientView, 0, len(ingredients))
	for _, ing := range ingredients {
		v, err := viewIngredient(ing)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

// GetIngredient returns one ingredient with its unit cost.
func (s *Service) GetIngredient(ctx context.Context, id int64) (IngredientView, error) {
	ing, err := s.store.GetIngredient(ctx, id)
	if err != nil {
		return IngredientView{}, err
	}
	return viewIngredient(ing)
}

// CreateIngredient validates and stores a new ingredient.
func (s *Service) CreateIngredient(ctx context.Context, draft IngredientDraft) (IngredientView, error) {
	ing, err := draft.validate()
	if err != nil {
		return IngredientView{}, s.reject(err)
	}

	ing, err = s.store.CreateIngredient(ctx, ing)
	if err != nil {
		return IngredientView{}, err
	}

	s.log.Info("ingredient created",
		zap.Int64("ingredient_id", ing.ID),
		zap.String("name", ing.Name),
		zap.Stringer("price", ing.Price),
	)
	return viewIngredient(ing)
}

// UpdateIngredient validates draft and replaces the ingredient, keeping the
// previous values in its history.
func (s *Service) UpdateIngredient(ctx context.Context, id int64, draft IngredientDraft) (IngredientView, error) {
	ing, err := draft.validate()
	if err != nil {
		return IngredientView{}, s.reject(err)
	}

	ing, err = s.store.UpdateIngredient(ctx, id, ing)
	if err != nil {
		return IngredientView{}, err
	}

	s.log.Info("ingredient updated",
		zap.Int64("ingredient_id", id),
		zap.Stringer("price", ing.Price),
		zap.Stringer("amount", ing.Amount),
	)
	return viewIngredient(ing)
}

// DeleteIngredient removes an ingredient that no recipe uses.
func (s *Service) DeleteIngredient(ctx context.Context, id int64) error {
	if err := s.store.DeleteIngredient(ctx, id); err != nil {
		return err
	}
	s.log.Info("ingredient deleted", zap.Int64("ingredient_id", id))
	return nil
}

// IngredientHistory returns the previous versions of an ingredient, newest
// first. A version whose stored values cannot be costed is returned with zero
// costs.
func (s *Service) IngredientHistory(ctx context.Context, id int64) ([]IngredientSnapshotView, error) {
	history, err := s.store.IngredientHistory(ctx, id)
	if err != nil {
		return nil, err
	}

	views := make([]IngredientSnapshotView, 0, len(history))
	for _, snap := range history {
		v, err := viewIngredient(snap.Ingredient)
		if err != nil {
			s.log.Warn("cost ingredient snapshot", zap.Int64("snapshot_id", snap.ID), zap.Error(err))
			v = IngredientView{Ingredient: snap.Ingredient}
		}
		views = append(views, IngredientSnapshotView{ID: snap.ID, ChangedAt: snap.ChangedAt, IngredientView: v})
	}
	return views, nil
}
