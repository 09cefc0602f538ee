package services

import (
	"context"
	"errors"
	"testing"

	"github.com/hanko-field/orderengine/internal/domain"
	"github.com/hanko-field/orderengine/internal/promotions"
)

func arrangePayment(t *testing.T, h *harness) {
	t.Helper()
	ctx := context.Background()
	if _, err := h.orders.Recalculate(ctx, RecalculateOrderCommand{OrderID: "o1"}); err != nil {
		t.Fatalf("Recalculate: %v", err)
	}
	if _, err := h.orders.TransitionState(ctx, TransitionOrderCommand{OrderID: "o1", Target: domain.OrderStateArrangingPayment}); err != nil {
		t.Fatalf("TransitionState: %v", err)
	}
}

func TestPaymentServiceAuthorizeThenSettle(t *testing.T) {
	h := newHarness(t, seedStore())
	arrangePayment(t, h)
	ctx := context.Background()

	payment, err := h.payments.AddPayment(ctx, AddPaymentCommand{OrderID: "o1", MethodCode: "manual", ActorID: "c1"})
	if err != nil {
		t.Fatalf("AddPayment: %v", err)
	}
	if payment.State != domain.PaymentStateAuthorized || payment.Amount != 3000 {
		t.Fatalf("unexpected payment %+v", payment)
	}

	order, _ := storeOrders{h.store}.FindByID(ctx, "o1")
	if order.State != domain.OrderStatePaymentAuthorized || order.Active {
		t.Fatalf("expected inactive PaymentAuthorized order, got %s active=%v", order.State, order.Active)
	}

	settled, err := h.payments.SettlePayment(ctx, SettlePaymentCommand{PaymentID: payment.ID})
	if err != nil {
		t.Fatalf("SettlePayment: %v", err)
	}
	if settled.State != domain.PaymentStateSettled {
		t.Fatalf("expected Settled, got %s", settled.State)
	}
	order, _ = storeOrders{h.store}.FindByID(ctx, "o1")
	if order.State != domain.OrderStatePaymentSettled {
		t.Fatalf("expected PaymentSettled, got %s", order.State)
	}

	if len(h.events.payments) != 2 {
		t.Fatalf("expected two payment events, got %d", len(h.events.payments))
	}
	if h.events.payments[0].ToState != domain.PaymentStateAuthorized || h.events.payments[1].ToState != domain.PaymentStateSettled {
		t.Fatalf("unexpected payment events %+v", h.events.payments)
	}
	// ArrangingPayment, PaymentAuthorized, PaymentSettled
	if len(h.events.orders) != 3 {
		t.Fatalf("expected three order events, got %d", len(h.events.orders))
	}

	if _, err := h.payments.SettlePayment(ctx, SettlePaymentCommand{PaymentID: payment.ID}); !errors.Is(err, ErrPaymentInvalidState) {
		t.Fatalf("settling twice should fail with ErrPaymentInvalidState, got %v", err)
	}
}

func TestPaymentServiceAutomaticSettleRecordsPromotionUsage(t *testing.T) {
	store := seedStore()
	store.promotions = []domain.Promotion{{
		ID:                    "promo-once",
		Name:                  "First order",
		Enabled:               true,
		PerCustomerUsageLimit: 1,
		Actions: []domain.ConfigurableOperation{{
			Code: promotions.CodeOrderFixedDiscount,
			Args: []domain.ConfigArg{{Name: "discount", Value: "240"}},
		}},
	}}
	h := newHarness(t, store)
	arrangePayment(t, h)
	ctx := context.Background()

	payment, err := h.payments.AddPayment(ctx, AddPaymentCommand{OrderID: "o1", MethodCode: "instant"})
	if err != nil {
		t.Fatalf("AddPayment: %v", err)
	}
	if payment.State != domain.PaymentStateSettled || payment.Amount != 2760 {
		t.Fatalf("unexpected payment %+v", payment)
	}
	order, _ := storeOrders{h.store}.FindByID(ctx, "o1")
	if order.State != domain.OrderStatePaymentSettled {
		t.Fatalf("expected PaymentSettled, got %s", order.State)
	}
	if got := h.store.usage["promo-once"]["c1"]; got != 1 {
		t.Fatalf("expected promotion usage 1, got %d", got)
	}
}

func TestPaymentServiceRejects(t *testing.T) {
	ctx := context.Background()

	t.Run("order not arranging payment", func(t *testing.T) {
		h := newHarness(t, seedStore())
		_, err := h.payments.AddPayment(ctx, AddPaymentCommand{OrderID: "o1", MethodCode: "manual"})
		if !errors.Is(err, ErrPaymentInvalidState) {
			t.Fatalf("expected ErrPaymentInvalidState, got %v", err)
		}
	})

	t.Run("unknown method", func(t *testing.T) {
		h := newHarness(t, seedStore())
		arrangePayment(t, h)
		_, err := h.payments.AddPayment(ctx, AddPaymentCommand{OrderID: "o1", MethodCode: "crypto"})
		if !errors.Is(err, ErrPaymentNotFound) {
			t.Fatalf("expected ErrPaymentNotFound, got %v", err)
		}
	})

	t.Run("disabled method", func(t *testing.T) {
		store := seedStore()
		method := store.methods["manual"]
		method.Enabled = false
		store.methods["manual"] = method
		h := newHarness(t, store)
		arrangePayment(t, h)
		_, err := h.payments.AddPayment(ctx, AddPaymentCommand{OrderID: "o1", MethodCode: "manual"})
		if !errors.Is(err, ErrPaymentInvalidInput) {
			t.Fatalf("expected ErrPaymentInvalidInput, got %v", err)
		}
	})

	t.Run("unregistered handler", func(t *testing.T) {
		store := seedStore()
		store.methods["card"] = domain.PaymentMethod{Code: "card", Enabled: true, Handler: domain.ConfigurableOperation{Code: "stripe"}}
		h := newHarness(t, store)
		arrangePayment(t, h)
		_, err := h.payments.AddPayment(ctx, AddPaymentCommand{OrderID: "o1", MethodCode: "card"})
		if !errors.Is(err, ErrPaymentInvalidInput) {
			t.Fatalf("expected ErrPaymentInvalidInput, got %v", err)
		}
	})

	t.Run("already covered", func(t *testing.T) {
		h := newHarness(t, seedStore())
		arrangePayment(t, h)
		h.store.payments["existing"] = domain.Payment{ID: "existing", OrderID: "o1", Amount: 3000, State: domain.PaymentStateAuthorized}
		_, err := h.payments.AddPayment(ctx, AddPaymentCommand{OrderID: "o1", MethodCode: "manual"})
		if !errors.Is(err, ErrPaymentInvalidState) {
			t.Fatalf("expected ErrPaymentInvalidState, got %v", err)
		}
	})

	t.Run("missing payment", func(t *testing.T) {
		h := newHarness(t, seedStore())
		_, err := h.payments.SettlePayment(ctx, SettlePaymentCommand{PaymentID: "nope"})
		if !errors.Is(err, ErrPaymentNotFound) {
			t.Fatalf("expected ErrPaymentNotFound, got %v", err)
		}
	})
}
