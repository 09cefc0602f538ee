package pricing

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/hanko-field/orderengine/internal/domain"
	"github.com/hanko-field/orderengine/internal/promotions"
	"github.com/hanko-field/orderengine/internal/shipping"
	"github.com/hanko-field/orderengine/internal/tax"
)

var (
	testChannel = domain.Channel{Code: "web", CurrencyCode: "GBP", DefaultTaxZoneID: "uk"}
	standard    = domain.TaxCategory{ID: "standard"}
	testRates   = []domain.TaxRate{
		{ID: "uk-standard", Value: 20, Enabled: true, CategoryID: "standard", ZoneID: "uk"},
	}
)

func staticRates(rates []domain.TaxRate) TaxRateSource {
	return TaxRateSourceFunc(func(context.Context) ([]domain.TaxRate, error) {
		return rates, nil
	})
}

type stubQuoter struct {
	quotes []shipping.Quote
	err    error
	calls  int
}

func (s *stubQuoter) EligibleShippingMethods(context.Context, *domain.Order) ([]shipping.Quote, error) {
	s.calls++
	return s.quotes, s.err
}

func newTestCalculator(t *testing.T, rates []domain.TaxRate, quoter ShippingQuoter) *Calculator {
	t.Helper()
	calc, err := NewCalculator(CalculatorDeps{
		TaxRates: staticRates(rates),
		Shipping: quoter,
		Clock:    func() time.Time { return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("new calculator: %v", err)
	}
	return calc
}

func variantLine(id string, price int64, qty int) domain.OrderLine {
	line := domain.OrderLine{
		ID: id,
		ProductVariant: domain.ProductVariant{
			ID:          "variant-" + id,
			TaxCategory: standard,
			Prices:      []domain.ChannelPrice{{ChannelCode: "web", Price: price}},
		},
	}
	for i := 0; i < qty; i++ {
		line.Items = append(line.Items, domain.OrderItem{ID: fmt.Sprintf("%s-%d", id, i)})
	}
	return line
}

func TestScenarioSingleUnitTaxExclusive(t *testing.T) {
	calc := newTestCalculator(t, testRates, nil)
	order := &domain.Order{ID: "o1", Lines: []domain.OrderLine{variantLine("l1", 123, 1)}}

	if _, err := calc.ApplyTaxesAndPromotions(context.Background(), Context{Channel: testChannel}, order, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	line := order.Lines[0]
	if got := line.TotalPriceBeforeTax(); got != 123 {
		t.Fatalf("expected total before tax 123, got %d", got)
	}
	if got := line.TotalPrice(); got != 148 {
		t.Fatalf("expected total 148, got %d", got)
	}
	if order.CurrencyCode != "GBP" {
		t.Fatalf("expected channel currency, got %q", order.CurrencyCode)
	}
}

func TestScenarioThreeUnitsTaxExclusive(t *testing.T) {
	calc := newTestCalculator(t, testRates, nil)
	order := &domain.Order{ID: "o1", Lines: []domain.OrderLine{variantLine("l1", 123, 3)}}

	if _, err := calc.ApplyTaxesAndPromotions(context.Background(), Context{Channel: testChannel}, order, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	line := order.Lines[0]
	if line.Quantity() != 3 {
		t.Fatalf("expected quantity 3, got %d", line.Quantity())
	}
	if line.TotalPriceBeforeTax() != 369 || line.TotalPrice() != 444 {
		t.Fatalf("expected 369/444, got %d/%d", line.TotalPriceBeforeTax(), line.TotalPrice())
	}
	if order.SubTotal != 444 || order.SubTotalBeforeTax != 369 || order.Total != 444 {
		t.Fatalf("unexpected order totals %+v", order)
	}
}

func TestScenarioOrderPercentagePromotion(t *testing.T) {
	calc := newTestCalculator(t, nil, nil)
	order := &domain.Order{ID: "o1", Lines: []domain.OrderLine{variantLine("l1", 600, 1)}}
	promo := domain.Promotion{
		ID:      "p10",
		Name:    "10% over 500",
		Enabled: true,
		Conditions: []domain.ConfigurableOperation{{
			Code: promotions.CodeMinimumOrderAmount,
			Args: []domain.ConfigArg{{Name: "amount", Value: "500"}},
		}},
		Actions: []domain.ConfigurableOperation{{
			Code: promotions.CodeOrderPercentageDiscount,
			Args: []domain.ConfigArg{{Name: "discount", Value: "10"}},
		}},
	}

	if _, err := calc.ApplyTaxesAndPromotions(context.Background(), Context{Channel: testChannel}, order, []domain.Promotion{promo}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order.Adjustments) != 1 || order.Adjustments[0].Amount != -60 {
		t.Fatalf("expected a single -60 adjustment, got %+v", order.Adjustments)
	}
	if order.Total != 540 {
		t.Fatalf("expected total 540, got %d", order.Total)
	}
	if ids := order.AppliedPromotionIDs(); len(ids) != 1 || ids[0] != "p10" {
		t.Fatalf("unexpected applied promotions %v", ids)
	}
}

func TestScenarioEmptyOrder(t *testing.T) {
	quoter := &stubQuoter{}
	calc := newTestCalculator(t, testRates, quoter)
	order := &domain.Order{
		ID:              "o1",
		SubTotal:        999,
		Total:           999,
		Shipping:        10,
		ShippingWithTax: 12,
		Adjustments:     []domain.Adjustment{{Type: domain.AdjustmentTypePromotion, Amount: -5}},
	}

	if _, err := calc.ApplyTaxesAndPromotions(context.Background(), Context{Channel: testChannel}, order, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.SubTotal != 0 || order.SubTotalBeforeTax != 0 || order.Shipping != 0 ||
		order.ShippingWithTax != 0 || order.Total != 0 || order.TotalBeforeTax != 0 {
		t.Fatalf("expected zero totals, got %+v", order)
	}
	if len(order.Adjustments) != 0 {
		t.Fatalf("expected adjustments cleared, got %+v", order.Adjustments)
	}
	if quoter.calls != 0 {
		t.Fatalf("empty orders must not be quoted for shipping")
	}
}

func TestNoPriceForChannelLeavesOrderUntouched(t *testing.T) {
	calc := newTestCalculator(t, testRates, nil)
	order := &domain.Order{ID: "o1", Lines: []domain.OrderLine{variantLine("l1", 100, 1)}, Total: 77}
	order.Lines[0].ProductVariant.Prices = []domain.ChannelPrice{{ChannelCode: "wholesale", Price: 50}}
	before := order.Clone()

	_, err := calc.ApplyTaxesAndPromotions(context.Background(), Context{Channel: testChannel}, order, nil)
	if !errors.Is(err, domain.ErrNoPriceForChannel) {
		t.Fatalf("expected ErrNoPriceForChannel, got %v", err)
	}
	if diff := cmp.Diff(before, *order); diff != "" {
		t.Fatalf("order changed on failure (-want +got):\n%s", diff)
	}
}

func TestInvalidCurrencyRejected(t *testing.T) {
	calc := newTestCalculator(t, testRates, nil)
	order := &domain.Order{ID: "o1", CurrencyCode: "NOPE", Lines: []domain.OrderLine{variantLine("l1", 100, 1)}}
	if _, err := calc.ApplyTaxesAndPromotions(context.Background(), Context{Channel: testChannel}, order, nil); !errors.Is(err, ErrPricingInvalidInput) {
		t.Fatalf("expected ErrPricingInvalidInput, got %v", err)
	}
}

func TestShippingSelection(t *testing.T) {
	quoter := &stubQuoter{quotes: []shipping.Quote{
		{Method: domain.ShippingMethod{ID: "express", Code: "express", Description: "Express"}, Price: 1000, PriceWithTax: 1200},
		{Method: domain.ShippingMethod{ID: "standard", Code: "standard", Description: "Standard"}, Price: 400, PriceWithTax: 480},
	}}
	calc := newTestCalculator(t, testRates, quoter)

	cheapest := &domain.Order{ID: "o1", Lines: []domain.OrderLine{variantLine("l1", 1000, 1)}}
	if _, err := calc.ApplyTaxesAndPromotions(context.Background(), Context{Channel: testChannel}, cheapest, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cheapest.ShippingMethod == nil || cheapest.ShippingMethod.Code != "standard" {
		t.Fatalf("expected cheapest method, got %+v", cheapest.ShippingMethod)
	}
	if cheapest.Shipping != 400 || cheapest.ShippingWithTax != 480 || cheapest.Total != 1200+480 {
		t.Fatalf("unexpected shipping totals %+v", cheapest)
	}
	if cheapest.TotalBeforeTax != 1000+400 {
		t.Fatalf("unexpected total before tax %d", cheapest.TotalBeforeTax)
	}

	preferred := &domain.Order{ID: "o2", ShippingMethodID: "express", Lines: []domain.OrderLine{variantLine("l1", 1000, 1)}}
	if _, err := calc.ApplyTaxesAndPromotions(context.Background(), Context{Channel: testChannel}, preferred, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if preferred.ShippingMethod.Code != "express" || preferred.ShippingWithTax != 1200 {
		t.Fatalf("expected preferred express, got %+v", preferred.ShippingMethod)
	}

	quoter.err = errors.New("carrier down")
	failing := &domain.Order{ID: "o3", Lines: []domain.OrderLine{variantLine("l1", 1000, 1)}}
	if _, err := calc.ApplyTaxesAndPromotions(context.Background(), Context{Channel: testChannel}, failing, nil); !errors.Is(err, ErrShippingUnavailable) {
		t.Fatalf("expected ErrShippingUnavailable, got %v", err)
	}
}

func TestAutomaticShippingChoiceIsNotKeptAsPreference(t *testing.T) {
	quoter := &stubQuoter{quotes: []shipping.Quote{
		{Method: domain.ShippingMethod{ID: "standard", Code: "standard"}, Price: 400, PriceWithTax: 480},
	}}
	calc := newTestCalculator(t, testRates, quoter)
	order := &domain.Order{ID: "o1", Lines: []domain.OrderLine{variantLine("l1", 1000, 1)}}

	if _, err := calc.ApplyTaxesAndPromotions(context.Background(), Context{Channel: testChannel}, order, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.ShippingMethod == nil || order.ShippingMethod.MethodID != "standard" {
		t.Fatalf("expected standard, got %+v", order.ShippingMethod)
	}
	if order.ShippingMethodID != "" {
		t.Fatalf("automatic pick must not become the preference, got %q", order.ShippingMethodID)
	}

	quoter.quotes = append(quoter.quotes, shipping.Quote{Method: domain.ShippingMethod{ID: "free", Code: "free"}})
	if _, err := calc.ApplyTaxesAndPromotions(context.Background(), Context{Channel: testChannel}, order, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.ShippingMethod.MethodID != "free" || order.ShippingWithTax != 0 {
		t.Fatalf("expected the newly eligible free method, got %+v shipping %d", order.ShippingMethod, order.ShippingWithTax)
	}
}

func TestStackedDiscountsNeverGoNegative(t *testing.T) {
	promos := []domain.Promotion{
		{
			ID:      "half",
			Enabled: true,
			Actions: []domain.ConfigurableOperation{{
				Code: promotions.CodeItemPercentageDiscount,
				Args: []domain.ConfigArg{{Name: "discount", Value: "50"}},
			}},
		},
		{
			ID:            "huge",
			Enabled:       true,
			PriorityValue: 1,
			Actions: []domain.ConfigurableOperation{{
				Code: promotions.CodeOrderFixedDiscount,
				Args: []domain.ConfigArg{{Name: "discount", Value: "1000"}},
			}},
		},
	}
	calc := newTestCalculator(t, testRates, nil)
	order := &domain.Order{ID: "o1", Lines: []domain.OrderLine{variantLine("l1", 100, 1)}}

	if _, err := calc.ApplyTaxesAndPromotions(context.Background(), Context{Channel: testChannel}, order, promos); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	item := order.Lines[0].Items[0]
	if item.UnitPriceWithPromotions() < 0 || item.TaxTotal() < 0 || item.UnitPriceWithTax < 0 {
		t.Fatalf("item went negative: %+v", item)
	}
	if order.SubTotal != 0 || order.Total != 0 {
		t.Fatalf("expected totals of zero, got subtotal=%d total=%d", order.SubTotal, order.Total)
	}
	var orderDiscount int64
	for _, adj := range order.Adjustments {
		if adj.Type == domain.AdjustmentTypePromotion {
			orderDiscount += adj.Amount
		}
	}
	if orderDiscount != -60 {
		t.Fatalf("expected the order adjustment to match the applied -60, got %d", orderDiscount)
	}
}

func TestTaxIsComputedOnDiscountedPrice(t *testing.T) {
	promo := domain.Promotion{
		ID:      "items10",
		Enabled: true,
		Actions: []domain.ConfigurableOperation{{
			Code: promotions.CodeItemPercentageDiscount,
			Args: []domain.ConfigArg{{Name: "discount", Value: "10"}},
		}},
	}
	calc := newTestCalculator(t, testRates, nil)
	order := &domain.Order{ID: "o1", Lines: []domain.OrderLine{variantLine("l1", 1000, 1)}}
	if _, err := calc.ApplyTaxesAndPromotions(context.Background(), Context{Channel: testChannel}, order, []domain.Promotion{promo}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	item := order.Lines[0].Items[0]
	if item.TaxTotal() != 180 || order.Total != 1080 {
		t.Fatalf("expected tax 180 on 900 and total 1080, got tax %d total %d", item.TaxTotal(), order.Total)
	}

	// Skipping the re-tax pass keeps tax computed on the undiscounted price.
	skipped := &domain.Order{ID: "o1", Lines: []domain.OrderLine{variantLine("l1", 1000, 1)}}
	taxCalc := tax.NewCalculator(testRates)
	taxCtx := tax.Context{ActiveZoneID: "uk", DefaultZoneID: "uk"}
	if err := applyTaxes(skipped, "web", taxCalc, taxCtx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := promotions.DefaultEvaluator().Evaluate(promotions.Context{}, skipped, []domain.Promotion{promo}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if skipped.Lines[0].Items[0].TaxTotal() == item.TaxTotal() || skipped.Total == order.Total {
		t.Fatalf("expected the pass order to change the stored tax, both gave %d", skipped.Total)
	}
}

func TestOrderDiscountOnTaxExclusiveItems(t *testing.T) {
	promo := domain.Promotion{
		ID:      "order10",
		Enabled: true,
		Actions: []domain.ConfigurableOperation{{
			Code: promotions.CodeOrderPercentageDiscount,
			Args: []domain.ConfigArg{{Name: "discount", Value: "10"}},
		}},
	}
	calc := newTestCalculator(t, testRates, nil)
	order := &domain.Order{ID: "o1", Lines: []domain.OrderLine{variantLine("l1", 1000, 1)}}
	if _, err := calc.ApplyTaxesAndPromotions(context.Background(), Context{Channel: testChannel}, order, []domain.Promotion{promo}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.Adjustments[0].Amount != -120 {
		t.Fatalf("expected -120 on a 1200 gross order, got %d", order.Adjustments[0].Amount)
	}
	if order.SubTotalBeforeTax != 900 || order.Total != 1080 {
		t.Fatalf("expected 900 net and 1080 gross, got %d/%d", order.SubTotalBeforeTax, order.Total)
	}
}

func TestTaxInclusiveChannel(t *testing.T) {
	channel := testChannel
	channel.PricesIncludeTax = true
	calc := newTestCalculator(t, testRates, nil)
	order := &domain.Order{ID: "o1", Lines: []domain.OrderLine{variantLine("l1", 1200, 2)}}
	if _, err := calc.ApplyTaxesAndPromotions(context.Background(), Context{Channel: channel}, order, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.SubTotal != 2400 || order.SubTotalBeforeTax != 2000 {
		t.Fatalf("expected 2400 gross / 2000 net, got %d/%d", order.SubTotal, order.SubTotalBeforeTax)
	}
	if order.Lines[0].Items[0].TaxTotal() != 0 {
		t.Fatalf("tax inclusive items carry no tax adjustment")
	}
}

func randomOrder(seed uint64) (*domain.Order, []domain.Promotion) {
	faker := gofakeit.New(seed)
	order := &domain.Order{ID: faker.UUID()}
	for i := 0; i < faker.Number(1, 5); i++ {
		order.Lines = append(order.Lines, variantLine(faker.UUID(), int64(faker.Number(1, 50_000)), faker.Number(1, 4)))
	}
	promos := []domain.Promotion{
		{
			ID:            "order-pct",
			Enabled:       true,
			PriorityValue: faker.Number(0, 3),
			Conditions: []domain.ConfigurableOperation{{
				Code: promotions.CodeMinimumOrderAmount,
				Args: []domain.ConfigArg{{Name: "amount", Value: fmt.Sprint(faker.Number(0, 100_000))}},
			}},
			Actions: []domain.ConfigurableOperation{{
				Code: promotions.CodeOrderPercentageDiscount,
				Args: []domain.ConfigArg{{Name: "discount", Value: fmt.Sprint(faker.Number(1, 50))}},
			}},
		},
		{
			ID:            "item-pct",
			Enabled:       faker.Bool(),
			PriorityValue: faker.Number(0, 3),
			Actions: []domain.ConfigurableOperation{{
				Code: promotions.CodeItemPercentageDiscount,
				Args: []domain.ConfigArg{{Name: "discount", Value: fmt.Sprint(faker.Number(1, 30))}},
			}},
		},
	}
	return order, promos
}

func TestTotalsInvariantAndIdempotence(t *testing.T) {
	quoter := &stubQuoter{quotes: []shipping.Quote{
		{Method: domain.ShippingMethod{ID: "standard"}, Price: 500, PriceWithTax: 600},
	}}
	calc := newTestCalculator(t, testRates, quoter)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("totals add up and a second pass changes nothing", prop.ForAll(
		func(seed uint64) bool {
			order, promos := randomOrder(seed)
			if _, err := calc.ApplyTaxesAndPromotions(context.Background(), Context{Channel: testChannel}, order, promos); err != nil {
				return false
			}
			var lineSum int64
			for i := range order.Lines {
				lineSum += order.Lines[i].TotalPrice()
			}
			if order.SubTotal != lineSum || order.Total != order.SubTotal+order.ShippingWithTax {
				return false
			}

			first := order.Clone()
			if _, err := calc.ApplyTaxesAndPromotions(context.Background(), Context{Channel: testChannel}, order, promos); err != nil {
				return false
			}
			return cmp.Diff(first, *order, cmpopts.EquateEmpty()) == ""
		},
		gen.UInt64(),
	))

	properties.TestingRun(t)
}
