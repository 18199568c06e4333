package main

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/Simplici0/bakecost/internal/catalog"
)

func (s *server) handleIngredientsList(w http.ResponseWriter, r *http.Request) {
	views, err := s.catalog.ListIngredients(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	out := make([]ingredientJSON, 0, len(views))
	for _, v := range views {
		out = append(out, toIngredientJSON(v))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleIngredientsCreate(w http.ResponseWriter, r *http.Request) {
	var draft catalog.IngredientDraft
	if !s.decodeJSON(w, r, &draft) {
		return
	}

	v, err := s.catalog.CreateIngredient(r.Context(), draft)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toIngredientJSON(v))
}

func (s *server) handleIngredientGet(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	v, err := s.catalog.GetIngredient(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toIngredientJSON(v))
}

func (s *server) handleIngredientUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var draft catalog.IngredientDraft
	if !s.decodeJSON(w, r, &draft) {
		return
	}

	v, err := s.catalog.UpdateIngredient(r.Context(), id, draft)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toIngredientJSON(v))
}

func (s *server) handleIngredientDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	if err := s.catalog.DeleteIngredient(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleIngredientHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	history, err := s.catalog.IngredientHistory(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	out := make([]ingredientSnapshotJSON, 0, len(history))
	for _, v := range history {
		out = append(out, toIngredientSnapshotJSON(v))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleRecipesList(w http.ResponseWriter, r *http.Request) {
	mode, ok := s.parseMode(w, r)
	if !ok {
		return
	}

	costs, err := s.catalog.ListRecipes(r.Context(), mode)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	out := make([]recipeJSON, 0, len(costs))
	for _, c := range costs {
		out = append(out, toRecipeJSON(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleRecipesCreate(w http.ResponseWriter, r *http.Request) {
	var draft catalog.RecipeDraft
	if !s.decodeJSON(w, r, &draft) {
		return
	}

	c, err := s.catalog.CreateRecipe(r.Context(), draft)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRecipeJSON(c))
}

func (s *server) handleRecipeGet(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	mode, ok := s.parseMode(w, r)
	if !ok {
		return
	}

	c, err := s.catalog.GetRecipe(r.Context(), id, mode)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecipeJSON(c))
}

func (s *server) handleRecipeUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var draft catalog.RecipeDraft
	if !s.decodeJSON(w, r, &draft) {
		return
	}

	c, err := s.catalog.UpdateRecipe(r.Context(), id, draft)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecipeJSON(c))
}

func (s *server) handleRecipeDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	if err := s.catalog.DeleteRecipe(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleRecipeHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	history, err := s.catalog.RecipeHistory(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	out := make([]recipeSnapshotJSON, 0, len(history))
	for _, v := range history {
		out = append(out, toRecipeSnapshotJSON(v))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleRecipeText(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	c, err := s.catalog.GetRecipe(r.Context(), id, catalog.ModeLive)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := writeCostSheet(w, c); err != nil {
		s.log.Warn("write cost sheet", zap.Int64("recipe_id", id), zap.Error(err))
	}
}

func (s *server) handleQuote(w http.ResponseWriter, r *http.Request) {
	var draft catalog.RecipeDraft
	if !s.decodeJSON(w, r, &draft) {
		return
	}

	c, err := s.catalog.Quote(r.Context(), draft)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecipeJSON(c))
}
