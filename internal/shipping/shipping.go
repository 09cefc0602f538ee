// Package shipping evaluates configurable eligibility checkers and price calculators to quote
// shipping methods for an order.
package shipping

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/hanko-field/orderengine/internal/configurable"
	"github.com/hanko-field/orderengine/internal/domain"
)

// Checker decides whether a method can ship the order.
type Checker interface {
	Definition() configurable.Definition
	Check(order *domain.Order, args configurable.Args) (bool, error)
}

// Calculator prices a method for the order.
type Calculator interface {
	Definition() configurable.Definition
	Calculate(order *domain.Order, args configurable.Args) (Price, error)
}

// Price is a calculated shipping price.
type Price struct {
	Price        int64
	PriceWithTax int64
}

// Quote is an eligible method together with its price.
type Quote struct {
	Method       domain.ShippingMethod
	Price        int64
	PriceWithTax int64
}

// MethodSource loads the shipping methods to consider.
type MethodSource interface {
	ShippingMethods(ctx context.Context) ([]domain.ShippingMethod, error)
}

// MethodSourceFunc adapts a function to MethodSource.
type MethodSourceFunc func(ctx context.Context) ([]domain.ShippingMethod, error)

func (f MethodSourceFunc) ShippingMethods(ctx context.Context) ([]domain.ShippingMethod, error) {
	return f(ctx)
}

// ErrMethodSourceMissing indicates the evaluator was built without a method source.
var ErrMethodSourceMissing = errors.New("shipping: method source is not configured")

// Evaluator quotes eligible shipping methods.
type Evaluator struct {
	methods     MethodSource
	checkers    *configurable.Registry[Checker]
	calculators *configurable.Registry[Calculator]
}

// EvaluatorDeps wires an Evaluator. Nil registries fall back to the built-in operations.
type EvaluatorDeps struct {
	Methods     MethodSource
	Checkers    *configurable.Registry[Checker]
	Calculators *configurable.Registry[Calculator]
}

// NewEvaluator validates deps and builds an Evaluator.
func NewEvaluator(deps EvaluatorDeps) (*Evaluator, error) {
	if deps.Methods == nil {
		return nil, ErrMethodSourceMissing
	}
	checkers := deps.Checkers
	if checkers == nil {
		checkers = configurable.MustRegistry(BuiltinCheckers()...)
	}
	calculators := deps.Calculators
	if calculators == nil {
		calculators = configurable.MustRegistry(BuiltinCalculators()...)
	}
	return &Evaluator{methods: deps.Methods, checkers: checkers, calculators: calculators}, nil
}

// EligibleShippingMethods returns quotes for every enabled method whose checker accepts the order,
// cheapest first.
func (e *Evaluator) EligibleShippingMethods(ctx context.Context, order *domain.Order) ([]Quote, error) {
	methods, err := e.methods.ShippingMethods(ctx)
	if err != nil {
		return nil, fmt.Errorf("shipping: load methods: %w", err)
	}
	quotes := make([]Quote, 0, len(methods))
	for _, method := range methods {
		if !method.Enabled {
			continue
		}
		checker, checkerArgs, err := e.checkers.Resolve(method.Checker)
		if err != nil {
			return nil, fmt.Errorf("shipping method %s: %w", method.Code, err)
		}
		ok, err := checker.Check(order, checkerArgs)
		if err != nil {
			return nil, fmt.Errorf("shipping method %s: %w", method.Code, err)
		}
		if !ok {
			continue
		}
		calculator, calcArgs, err := e.calculators.Resolve(method.Calculator)
		if err != nil {
			return nil, fmt.Errorf("shipping method %s: %w", method.Code, err)
		}
		price, err := calculator.Calculate(order, calcArgs)
		if err != nil {
			return nil, fmt.Errorf("shipping method %s: %w", method.Code, err)
		}
		quotes = append(quotes, Quote{Method: method, Price: price.Price, PriceWithTax: price.PriceWithTax})
	}
	sort.SliceStable(quotes, func(i, j int) bool {
		return quotes[i].PriceWithTax < quotes[j].PriceWithTax
	})
	return quotes, nil
}
