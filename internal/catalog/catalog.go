// Package catalog is the service layer over the ingredient and recipe store.
// It validates client drafts, resolves recipe items against current ingredient
// prices and runs the pricing core.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Simplici0/bakecost/internal/pricing"
	"github.com/Simplici0/bakecost/internal/store"
)

// TotalMode selects where a recipe total comes from.
type TotalMode string

const (
	// ModeLive recomputes the total from the items and current ingredient prices.
	ModeLive TotalMode = "live"
	// ModeStored passes through the total persisted at the last save.
	ModeStored TotalMode = "stored"
)

// ParseTotalMode validates raw; an empty value yields fallback.
func ParseTotalMode(raw string, fallback TotalMode) (TotalMode, error) {
	switch m := TotalMode(strings.ToLower(strings.TrimSpace(raw))); m {
	case "":
		return fallback, nil
	case ModeLive, ModeStored:
		return m, nil
	default:
		return "", invalid("mode", ErrUnknownMode)
	}
}

// Observer receives costing events; metrics implement it.
type Observer interface {
	RecipeCosted(mode string)
	InputRejected(reason string)
}

type nopObserver struct{}

func (nopObserver) RecipeCosted(string)  {}
func (nopObserver) InputRejected(string) {}

// Service exposes catalog operations.
type Service struct {
	store       *store.Store
	log         *zap.Logger
	obs         Observer
	defaultMode TotalMode
}

// New builds a Service. A nil observer disables event reporting.
func New(st *store.Store, log *zap.Logger, obs Observer, defaultMode TotalMode) *Service {
	if obs == nil {
		obs = nopObserver{}
	}
	if defaultMode == "" {
		defaultMode = ModeLive
	}
	return &Service{
		store:       st,
		log:         log.Named("catalog"),
		obs:         obs,
		defaultMode: defaultMode,
	}
}

// DefaultMode returns the mode used when a caller does not choose one.
func (s *Service) DefaultMode() TotalMode {
	return s.defaultMode
}

// Ping checks the underlying store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// reject records a refused input and returns err unchanged.
func (s *Service) reject(err error) error {
	s.obs.InputRejected(rejectReason(err))
	return err
}

func rejectReason(err error) string {
	var verr *ValidationError
	switch {
	case errors.Is(err, pricing.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, pricing.ErrInvalidTaxType):
		return "invalid_tax_type"
	case errors.Is(err, pricing.ErrInvalidTaxRate):
		return "invalid_tax_rate"
	case errors.Is(err, pricing.ErrUnknownIngredient):
		return "unknown_ingredient"
	case errors.As(err, &verr):
		return "validation"
	default:
		return "other"
	}
}

// IsInputError reports whether err was caused by client input rather than by
// a failure of the service.
func IsInputError(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr) ||
		errors.Is(err, pricing.ErrInvalidAmount) ||
		errors.Is(err, pricing.ErrInvalidPrice) ||
		errors.Is(err, pricing.ErrInvalidTaxType) ||
		errors.Is(err, pricing.ErrInvalidTaxRate) ||
		errors.Is(err, pricing.ErrInvalidSection) ||
		errors.Is(err, pricing.ErrInvalidUnit) ||
		errors.Is(err, pricing.ErrUnknownIngredient)
}

// totalCost is the store.TotalFunc used for persisted totals.
func totalCost(items []pricing.Item, lookup pricing.Lookup) (decimal.Decimal, error) {
	result, err := pricing.Calculate(items, lookup, decimal.NullDecimal{})
	if err != nil {
		return decimal.Zero, fmt.Errorf("cost recipe: %w", err)
	}
	return result.Totals.Total, nil
}
