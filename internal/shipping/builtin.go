package shipping

import (
	"github.com/hanko-field/orderengine/internal/configurable"
	"github.com/hanko-field/orderengine/internal/domain"
)

const (
	CodeDefaultEligibility = "default_shipping_eligibility"
	CodeDefaultCalculator  = "default_shipping_calculator"
)

type defaultEligibility struct{}

func (defaultEligibility) Definition() configurable.Definition {
	return configurable.Definition{
		Code:        CodeDefaultEligibility,
		Description: "Eligible when the order subtotal reaches the minimum",
		Args:        []configurable.ArgDefinition{{Name: "orderMinimum", Type: configurable.ArgTypeMoney}},
	}
}

func (defaultEligibility) Check(order *domain.Order, args configurable.Args) (bool, error) {
	minimum, err := args.IntOr("orderMinimum", 0)
	if err != nil {
		return false, err
	}
	return order.SubTotal >= minimum, nil
}

type defaultCalculator struct{}

func (defaultCalculator) Definition() configurable.Definition {
	return configurable.Definition{
		Code:        CodeDefaultCalculator,
		Description: "Flat rate shipping",
		Args: []configurable.ArgDefinition{
			{Name: "rate", Type: configurable.ArgTypeMoney},
			{Name: "includesTax", Type: configurable.ArgTypeBoolean},
			{Name: "taxRate", Type: configurable.ArgTypePercentage},
		},
	}
}

func (defaultCalculator) Calculate(_ *domain.Order, args configurable.Args) (Price, error) {
	rate, err := args.Int("rate")
	if err != nil {
		return Price{}, err
	}
	includesTax, err := args.BoolOr("includesTax", false)
	if err != nil {
		return Price{}, err
	}
	taxRate := 0.0
	if args.Has("taxRate") {
		if taxRate, err = args.Float("taxRate"); err != nil {
			return Price{}, err
		}
	}
	if includesTax {
		return Price{Price: domain.NetOf(rate, taxRate), PriceWithTax: rate}, nil
	}
	return Price{Price: rate, PriceWithTax: rate + domain.PercentOf(rate, taxRate)}, nil
}

// BuiltinCheckers returns the eligibility checkers shipped with the engine.
func BuiltinCheckers() []Checker { return []Checker{defaultEligibility{}} }

// BuiltinCalculators returns the calculators shipped with the engine.
func BuiltinCalculators() []Calculator { return []Calculator{defaultCalculator{}} }
