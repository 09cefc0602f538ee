// Package pricing orchestrates tax, promotions, re-tax and shipping for an order.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/hanko-field/orderengine/internal/domain"
	"github.com/hanko-field/orderengine/internal/promotions"
	"github.com/hanko-field/orderengine/internal/shipping"
	"github.com/hanko-field/orderengine/internal/tax"
)

var (
	// ErrPricingInvalidInput signals an order that cannot be priced as given.
	ErrPricingInvalidInput = errors.New("pricing: invalid input")
	// ErrTaxRatesUnavailable wraps failures loading tax rates.
	ErrTaxRatesUnavailable = errors.New("pricing: tax rates unavailable")
	// ErrShippingUnavailable wraps failures quoting shipping.
	ErrShippingUnavailable = errors.New("pricing: shipping unavailable")
)

// TaxRateSource provides the enabled tax rates for a calculation.
type TaxRateSource interface {
	ActiveTaxRates(ctx context.Context) ([]domain.TaxRate, error)
}

// TaxRateSourceFunc adapts a function to TaxRateSource.
type TaxRateSourceFunc func(ctx context.Context) ([]domain.TaxRate, error)

func (f TaxRateSourceFunc) ActiveTaxRates(ctx context.Context) ([]domain.TaxRate, error) {
	return f(ctx)
}

// ShippingQuoter lists eligible shipping methods with prices.
type ShippingQuoter interface {
	EligibleShippingMethods(ctx context.Context, order *domain.Order) ([]shipping.Quote, error)
}

// Context is the caller supplied, already resolved input of a calculation.
type Context struct {
	Channel domain.Channel
	// ActiveTaxZoneID defaults to the channel's default zone when empty.
	ActiveTaxZoneID  string
	CustomerGroupIDs []string
	// PromotionUsage counts prior uses of each promotion by the order's customer.
	PromotionUsage map[string]int
	Now            time.Time
}

// Calculator is safe for concurrent use on different orders.
type Calculator struct {
	taxRates   TaxRateSource
	shipping   ShippingQuoter
	promotions *promotions.Evaluator
	now        func() time.Time
	logger     func(context.Context, string, map[string]any)
}

// CalculatorDeps wires a Calculator. Shipping is optional; without it orders ship for free.
type CalculatorDeps struct {
	TaxRates   TaxRateSource
	Shipping   ShippingQuoter
	Promotions *promotions.Evaluator
	Clock      func() time.Time
	Logger     func(context.Context, string, map[string]any)
}

// NewCalculator validates deps.
func NewCalculator(deps CalculatorDeps) (*Calculator, error) {
	if deps.TaxRates == nil {
		return nil, errors.New("pricing calculator: tax rate source is required")
	}
	evaluator := deps.Promotions
	if evaluator == nil {
		evaluator = promotions.DefaultEvaluator()
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &Calculator{
		taxRates:   deps.TaxRates,
		shipping:   deps.Shipping,
		promotions: evaluator,
		now: func() time.Time {
			return now().UTC()
		},
		logger: logger,
	}, nil
}

// ApplyTaxesAndPromotions recomputes every adjustment and total on order in the fixed sequence
// tax, promotions, re-tax, shipping. The work happens on a copy; order is only overwritten when
// the whole pass succeeds.
func (c *Calculator) ApplyTaxesAndPromotions(ctx context.Context, pctx Context, order *domain.Order, active []domain.Promotion) (*domain.Order, error) {
	if order == nil {
		return nil, fmt.Errorf("%w: order is required", ErrPricingInvalidInput)
	}
	if pctx.Now.IsZero() {
		pctx.Now = c.now()
	}

	working := order.Clone()
	working.ClearAdjustments()
	working.ResetTotals()
	working.ShippingMethod = nil

	currencyCode := strings.TrimSpace(working.CurrencyCode)
	if currencyCode == "" {
		currencyCode = pctx.Channel.CurrencyCode
	}
	if currencyCode != "" {
		normalized, err := domain.NormalizeCurrency(currencyCode)
		if err != nil {
			return nil, fmt.Errorf("%w: currency %q: %v", ErrPricingInvalidInput, currencyCode, err)
		}
		working.CurrencyCode = normalized
	}

	if len(working.Lines) == 0 {
		*order = working
		return order, nil
	}

	rates, err := c.taxRates.ActiveTaxRates(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTaxRatesUnavailable, err)
	}
	taxCalc := tax.NewCalculator(rates)
	taxCtx := tax.Context{
		PricesIncludeTax: pctx.Channel.PricesIncludeTax,
		ActiveZoneID:     lo.Ternary(pctx.ActiveTaxZoneID != "", pctx.ActiveTaxZoneID, pctx.Channel.DefaultTaxZoneID),
		DefaultZoneID:    pctx.Channel.DefaultTaxZoneID,
		CustomerGroupIDs: pctx.CustomerGroupIDs,
	}

	if err := applyTaxes(&working, pctx.Channel.Code, taxCalc, taxCtx); err != nil {
		return nil, err
	}

	applied, err := c.promotions.Evaluate(promotions.Context{
		Now:              pctx.Now,
		CustomerGroupIDs: pctx.CustomerGroupIDs,
		Usage:            pctx.PromotionUsage,
	}, &working, active)
	if err != nil {
		return nil, err
	}

	if err := applyTaxes(&working, pctx.Channel.Code, taxCalc, taxCtx); err != nil {
		return nil, err
	}

	if err := c.applyShipping(ctx, &working); err != nil {
		return nil, err
	}
	working.RecalculateTotals()

	c.logger(ctx, "pricing.calculated", map[string]any{
		"orderId":    working.ID,
		"lines":      len(working.Lines),
		"promotions": len(applied),
		"subTotal":   working.SubTotal,
		"total":      working.Total,
	})

	*order = working
	return order, nil
}

// applyTaxes prices every active item from its channel list price and rebuilds its tax
// adjustment on the current, possibly discounted, unit price.
func applyTaxes(order *domain.Order, channelCode string, calc *tax.Calculator, ctx tax.Context) error {
	for li := range order.Lines {
		line := &order.Lines[li]
		listPrice, err := line.ProductVariant.PriceForChannel(channelCode)
		if err != nil {
			return err
		}
		result := calc.Calculate(listPrice, line.ProductVariant.TaxCategory, ctx)
		for _, item := range line.ActiveItems() {
			item.UnitPrice = result.Price
			item.UnitPriceIncludesTax = result.PriceIncludesTax
			item.TaxRate = result.Rate
			item.ClearAdjustments(domain.AdjustmentTypeTax)
			if result.PriceIncludesTax {
				continue
			}
			if amount := tax.TaxPayableOn(item.UnitPriceWithPromotions(), result.Rate); amount != 0 {
				item.AddAdjustment(domain.Adjustment{
					SourceID:    result.RateID,
					Type:        domain.AdjustmentTypeTax,
					Description: "tax",
					Amount:      amount,
				})
			}
		}
	}
	order.RecalculateTotals()
	return nil
}

// applyShipping uses the caller's preferred method when it is eligible, else the cheapest quote.
// The pick is recorded on ShippingMethod only; ShippingMethodID stays the caller's preference.
func (c *Calculator) applyShipping(ctx context.Context, order *domain.Order) error {
	if c.shipping == nil {
		return nil
	}
	quotes, err := c.shipping.EligibleShippingMethods(ctx, order)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrShippingUnavailable, err)
	}
	if len(quotes) == 0 {
		return nil
	}
	chosen, found := lo.Find(quotes, func(q shipping.Quote) bool {
		return order.ShippingMethodID != "" && q.Method.ID == order.ShippingMethodID
	})
	if !found {
		chosen = lo.MinBy(quotes, func(a, b shipping.Quote) bool {
			return a.PriceWithTax < b.PriceWithTax
		})
	}

	order.Shipping = chosen.Price
	order.ShippingWithTax = chosen.PriceWithTax
	order.ShippingMethod = &domain.ShippingSelection{
		MethodID:    chosen.Method.ID,
		Code:        chosen.Method.Code,
		Description: chosen.Method.Description,
	}
	order.AddAdjustment(domain.Adjustment{
		SourceID:    chosen.Method.ID,
		Type:        domain.AdjustmentTypeShipping,
		Description: chosen.Method.Description,
		Amount:      chosen.PriceWithTax,
	})
	return nil
}
