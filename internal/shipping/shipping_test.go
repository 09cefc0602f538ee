package shipping

import (
	"context"
	"errors"
	"testing"

	"github.com/hanko-field/orderengine/internal/configurable"
	"github.com/hanko-field/orderengine/internal/domain"
)

func method(code string, minimum, rate string, enabled bool) domain.ShippingMethod {
	return domain.ShippingMethod{
		ID:          code + "-id",
		Code:        code,
		Description: code + " delivery",
		Enabled:     enabled,
		Checker: domain.ConfigurableOperation{
			Code: CodeDefaultEligibility,
			Args: []domain.ConfigArg{{Name: "orderMinimum", Value: minimum}},
		},
		Calculator: domain.ConfigurableOperation{
			Code: CodeDefaultCalculator,
			Args: []domain.ConfigArg{
				{Name: "rate", Value: rate},
				{Name: "taxRate", Value: "10"},
			},
		},
	}
}

func staticMethods(methods ...domain.ShippingMethod) MethodSource {
	return MethodSourceFunc(func(context.Context) ([]domain.ShippingMethod, error) {
		return methods, nil
	})
}

func TestEligibleShippingMethods(t *testing.T) {
	evaluator, err := NewEvaluator(EvaluatorDeps{Methods: staticMethods(
		method("express", "0", "1500", true),
		method("standard", "0", "500", true),
		method("free", "10000", "0", true),
		method("disabled", "0", "1", false),
	)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	quotes, err := evaluator.EligibleShippingMethods(context.Background(), &domain.Order{SubTotal: 2000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(quotes) != 2 {
		t.Fatalf("expected two eligible methods, got %+v", quotes)
	}
	if quotes[0].Method.Code != "standard" || quotes[0].Price != 500 || quotes[0].PriceWithTax != 550 {
		t.Fatalf("expected standard first at 500/550, got %+v", quotes[0])
	}
	if quotes[1].Method.Code != "express" {
		t.Fatalf("expected express second, got %s", quotes[1].Method.Code)
	}
}

func TestEligibleShippingMethodsTaxInclusiveRate(t *testing.T) {
	m := method("standard", "0", "550", true)
	m.Calculator.Args = append(m.Calculator.Args, domain.ConfigArg{Name: "includesTax", Value: "true"})
	evaluator, err := NewEvaluator(EvaluatorDeps{Methods: staticMethods(m)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	quotes, err := evaluator.EligibleShippingMethods(context.Background(), &domain.Order{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if quotes[0].Price != 500 || quotes[0].PriceWithTax != 550 {
		t.Fatalf("unexpected quote %+v", quotes[0])
	}
}

func TestEligibleShippingMethodsCoercionError(t *testing.T) {
	evaluator, err := NewEvaluator(EvaluatorDeps{Methods: staticMethods(method("broken", "0", "five", true))})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = evaluator.EligibleShippingMethods(context.Background(), &domain.Order{})
	var coercion *configurable.ArgCoercionError
	if !errors.As(err, &coercion) {
		t.Fatalf("expected ArgCoercionError, got %v", err)
	}
}

func TestNewEvaluatorRequiresSource(t *testing.T) {
	if _, err := NewEvaluator(EvaluatorDeps{}); !errors.Is(err, ErrMethodSourceMissing) {
		t.Fatalf("expected ErrMethodSourceMissing, got %v", err)
	}
}
