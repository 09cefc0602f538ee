// Package tax resolves tax rates and converts between tax-inclusive and tax-exclusive prices.
package tax

import (
	"slices"
	"strings"

	"github.com/hanko-field/orderengine/internal/domain"
)

// Context carries the channel and customer facts a tax calculation depends on.
type Context struct {
	PricesIncludeTax bool
	ActiveZoneID     string
	DefaultZoneID    string
	CustomerGroupIDs []string
}

// Result is the outcome of pricing one unit. Price is expressed in the basis indicated by
// PriceIncludesTax; Rate is the active zone percentage the caller should tax Price with.
type Result struct {
	Price            int64
	PriceIncludesTax bool
	PriceWithTax     int64
	PriceWithoutTax  int64
	Rate             float64
	RateID           string
}

// Calculator works over an already-loaded set of tax rates. It performs no I/O.
type Calculator struct {
	rates []domain.TaxRate
}

// NewCalculator copies rates so later changes by the caller are not observed.
func NewCalculator(rates []domain.TaxRate) *Calculator {
	return &Calculator{rates: slices.Clone(rates)}
}

// ResolveRate returns the first enabled rate for the zone and category that is either unscoped or
// scoped to one of the customer's groups. Missing configuration yields ok=false and callers treat
// the rate as zero.
func (c *Calculator) ResolveRate(zoneID, categoryID string, customerGroupIDs []string) (domain.TaxRate, bool) {
	if c == nil {
		return domain.TaxRate{}, false
	}
	zoneID = strings.TrimSpace(zoneID)
	categoryID = strings.TrimSpace(categoryID)
	for _, rate := range c.rates {
		if !rate.Enabled || rate.ZoneID != zoneID || rate.CategoryID != categoryID {
			continue
		}
		if rate.CustomerGroupID != "" && !slices.Contains(customerGroupIDs, rate.CustomerGroupID) {
			continue
		}
		return rate, true
	}
	return domain.TaxRate{}, false
}

// RateValue is ResolveRate collapsed to a percentage, zero when nothing matched.
func (c *Calculator) RateValue(zoneID, categoryID string, customerGroupIDs []string) float64 {
	rate, ok := c.ResolveRate(zoneID, categoryID, customerGroupIDs)
	if !ok {
		return 0
	}
	return rate.Value
}

// Calculate prices one unit of the given category.
func (c *Calculator) Calculate(price int64, category domain.TaxCategory, ctx Context) Result {
	active, _ := c.ResolveRate(ctx.ActiveZoneID, category.ID, ctx.CustomerGroupIDs)

	if !ctx.PricesIncludeTax {
		return Result{
			Price:            price,
			PriceIncludesTax: false,
			PriceWithTax:     GrossPriceOf(price, active.Value),
			PriceWithoutTax:  price,
			Rate:             active.Value,
			RateID:           active.ID,
		}
	}

	defaultRate := c.RateValue(ctx.DefaultZoneID, category.ID, ctx.CustomerGroupIDs)
	withoutTax := NetPriceOf(price, defaultRate)
	if sameZone(ctx.ActiveZoneID, ctx.DefaultZoneID) {
		return Result{
			Price:            price,
			PriceIncludesTax: true,
			PriceWithTax:     price,
			PriceWithoutTax:  withoutTax,
			Rate:             active.Value,
			RateID:           active.ID,
		}
	}
	return Result{
		Price:            withoutTax,
		PriceIncludesTax: false,
		PriceWithTax:     GrossPriceOf(withoutTax, active.Value),
		PriceWithoutTax:  withoutTax,
		Rate:             active.Value,
		RateID:           active.ID,
	}
}

func sameZone(active, fallback string) bool {
	active = strings.TrimSpace(active)
	return active == "" || active == strings.TrimSpace(fallback)
}

// TaxPayableOn returns round(price * rate / 100).
func TaxPayableOn(price int64, rate float64) int64 {
	return domain.PercentOf(price, rate)
}

// GrossPriceOf adds the tax payable to a net price.
func GrossPriceOf(price int64, rate float64) int64 {
	return price + TaxPayableOn(price, rate)
}

// NetPriceOf removes tax from a gross price: round(price / (1 + rate/100)).
func NetPriceOf(price int64, rate float64) int64 {
	return domain.NetOf(price, rate)
}
