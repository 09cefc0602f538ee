package configurable

import (
	"errors"
	"testing"

	"github.com/hanko-field/orderengine/internal/domain"
)

type stubOperation struct {
	def Definition
}

func (s stubOperation) Definition() Definition { return s.def }

func TestRegistryResolve(t *testing.T) {
	reg, err := NewRegistry[stubOperation](stubOperation{def: discountDef})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	op, args, err := reg.Resolve(storedOp(domain.ConfigArg{Name: "amount", Value: "42"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if op.Definition().Code != "discount" {
		t.Fatalf("unexpected op %q", op.Definition().Code)
	}
	if amount, _ := args.Int("amount"); amount != 42 {
		t.Fatalf("expected 42, got %d", amount)
	}

	if _, _, err := reg.Resolve(domain.ConfigurableOperation{Code: "nope"}); !errors.Is(err, ErrUnknownOperation) {
		t.Fatalf("expected ErrUnknownOperation, got %v", err)
	}

	_, _, err = reg.Resolve(storedOp(domain.ConfigArg{Name: "amount", Value: "forty"}))
	var coercion *ArgCoercionError
	if !errors.As(err, &coercion) {
		t.Fatalf("expected ArgCoercionError, got %v", err)
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry[stubOperation](stubOperation{def: discountDef}, stubOperation{def: discountDef})
	if !errors.Is(err, ErrDuplicateOperation) {
		t.Fatalf("expected ErrDuplicateOperation, got %v", err)
	}
}

func TestRegistryDefinitions(t *testing.T) {
	reg := MustRegistry[stubOperation](
		stubOperation{def: Definition{Code: "b"}},
		stubOperation{def: discountDef},
	)
	codes := reg.Codes()
	if len(codes) != 2 || codes[0] != "b" || codes[1] != "discount" {
		t.Fatalf("unexpected codes %v", codes)
	}
	defs := reg.Definitions()
	if len(defs["discount"]) != len(discountDef.Args) {
		t.Fatalf("unexpected definitions %v", defs)
	}
}
