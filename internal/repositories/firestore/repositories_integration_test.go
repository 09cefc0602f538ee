//go:build integration

package firestore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/hanko-field/orderengine/internal/domain"
	"github.com/hanko-field/orderengine/internal/platform/firestore/firestoretest"
	"github.com/hanko-field/orderengine/internal/repositories"
	rfirestore "github.com/hanko-field/orderengine/internal/repositories/firestore"
)

func TestRegistryIntegration(t *testing.T) {
	provider := firestoretest.NewProvider(t, "orderengine-test")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	reg, err := rfirestore.NewRegistry(provider)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	order := domain.Order{
		ID:           "o1",
		Code:         "ORD-1",
		CustomerID:   "c1",
		ChannelCode:  "web",
		State:        domain.OrderStateAddingItems,
		Active:       true,
		CurrencyCode: "GBP",
		Lines: []domain.OrderLine{{
			ID:             "l1",
			ProductVariant: domain.ProductVariant{ID: "v1", TaxCategory: domain.TaxCategory{ID: "standard"}, Prices: []domain.ChannelPrice{{ChannelCode: "web", Price: 1000}}},
			Items:          []domain.OrderItem{{ID: "i1"}, {ID: "i2"}},
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := reg.Orders().Insert(ctx, order); err != nil {
		t.Fatalf("insert order: %v", err)
	}
	if err := reg.Orders().Insert(ctx, order); !isConflict(err) {
		t.Fatalf("expected conflict on duplicate order, got %v", err)
	}

	order.State = domain.OrderStateArrangingPayment
	order.Total = 2400
	if err := reg.RunInTx(ctx, func(txCtx context.Context) error {
		if err := reg.Orders().Update(txCtx, order); err != nil {
			return err
		}
		return reg.PromotionUsage().Increment(txCtx, "p1", "c1", now)
	}); err != nil {
		t.Fatalf("transaction: %v", err)
	}

	loaded, err := reg.Orders().FindByID(ctx, "o1")
	if err != nil {
		t.Fatalf("find order: %v", err)
	}
	if loaded.State != domain.OrderStateArrangingPayment || loaded.Total != 2400 || len(loaded.Lines[0].Items) != 2 {
		t.Fatalf("unexpected order %#v", loaded)
	}
	if _, err := reg.Orders().FindByID(ctx, "missing"); !isNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	if err := reg.PromotionUsage().Increment(ctx, "p1", "c1", now.Add(time.Hour)); err != nil {
		t.Fatalf("increment: %v", err)
	}
	counts, err := reg.PromotionUsage().CountsForCustomer(ctx, "c1")
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts["p1"] != 2 {
		t.Fatalf("expected two uses, got %v", counts)
	}
	usageRepo := reg.PromotionUsage().(*rfirestore.PromotionUsageRepository)
	usage, err := usageRepo.Usage(ctx, "p1", "c1")
	if err != nil || usage.Times != 2 || !usage.LastUsed.Equal(now.Add(time.Hour)) {
		t.Fatalf("unexpected usage %#v (%v)", usage, err)
	}
	if usage, err := usageRepo.Usage(ctx, "p2", "c1"); err != nil || usage.Times != 0 {
		t.Fatalf("expected zero usage for unused promotion, got %#v (%v)", usage, err)
	}

	for i, state := range []domain.PaymentState{domain.PaymentStateDeclined, domain.PaymentStateAuthorized} {
		payment := domain.Payment{
			ID:        []string{"pay_1", "pay_2"}[i],
			OrderID:   "o1",
			Method:    "manual",
			Amount:    2400,
			State:     state,
			CreatedAt: now.Add(time.Duration(i) * time.Minute),
			UpdatedAt: now,
		}
		if err := reg.Payments().Insert(ctx, payment); err != nil {
			t.Fatalf("insert payment: %v", err)
		}
	}
	payments, err := reg.Payments().ListByOrder(ctx, "o1")
	if err != nil {
		t.Fatalf("list payments: %v", err)
	}
	if len(payments) != 2 || payments[0].ID != "pay_1" || payments[1].State != domain.PaymentStateAuthorized {
		t.Fatalf("unexpected payments %#v", payments)
	}

	if _, err := reg.PaymentMethods().FindByCode(ctx, "stripe"); !isNotFound(err) {
		t.Fatalf("expected payment method not found, got %v", err)
	}
	if zones, err := reg.Zones().List(ctx); err != nil || len(zones) != 0 {
		t.Fatalf("expected empty zones, got %v (%v)", zones, err)
	}
	if groups, err := reg.CustomerGroups().GroupIDsForCustomer(ctx, "c1"); err != nil || len(groups) != 0 {
		t.Fatalf("expected no groups, got %v (%v)", groups, err)
	}
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func isConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}
