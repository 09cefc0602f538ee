package domain

// PricingBreakdown summarises a priced order for API responses.
type PricingBreakdown struct {
	Currency          string
	SubTotal          int64
	SubTotalBeforeTax int64
	Discount          int64
	Tax               int64
	Shipping          int64
	ShippingWithTax   int64
	Total             int64
	TotalBeforeTax    int64
	Items             []ItemPricingBreakdown
	Discounts         []DiscountBreakdown
	Taxes             []TaxBreakdown
	ShippingDetails   *ShippingBreakdown
}

// ItemPricingBreakdown stores the per-unit results after running the engine.
type ItemPricingBreakdown struct {
	ItemID           string
	LineID           string
	VariantID        string
	UnitPrice        int64
	Discount         int64
	Tax              int64
	UnitPriceWithTax int64
	TaxRate          float64
}

// DiscountBreakdown lists the total discount contributed by one promotion.
type DiscountBreakdown struct {
	PromotionID string
	Description string
	Amount      int64
}

// TaxBreakdown aggregates tax adjustments by the rate that produced them.
type TaxBreakdown struct {
	RateID string
	Rate   float64
	Amount int64
}

// ShippingBreakdown records the selected shipping method and its cost.
type ShippingBreakdown struct {
	MethodID      string
	Code          string
	Description   string
	Amount        int64
	AmountWithTax int64
}

// Breakdown builds a PricingBreakdown from the order's current adjustments and totals.
func (o *Order) Breakdown() PricingBreakdown {
	out := PricingBreakdown{
		Currency:          o.CurrencyCode,
		SubTotal:          o.SubTotal,
		SubTotalBeforeTax: o.SubTotalBeforeTax,
		Shipping:          o.Shipping,
		ShippingWithTax:   o.ShippingWithTax,
		Total:             o.Total,
		TotalBeforeTax:    o.TotalBeforeTax,
	}

	discountIdx := map[string]int{}
	taxIdx := map[string]int{}
	for li := range o.Lines {
		line := &o.Lines[li]
		for _, item := range line.ActiveItems() {
			out.Items = append(out.Items, ItemPricingBreakdown{
				ItemID:           item.ID,
				LineID:           line.ID,
				VariantID:        line.ProductVariant.ID,
				UnitPrice:        item.UnitPrice,
				Discount:         item.PromotionTotal(),
				Tax:              item.TaxTotal(),
				UnitPriceWithTax: item.UnitPriceWithTax,
				TaxRate:          item.TaxRate,
			})
			for _, adj := range item.Adjustments {
				switch adj.Type {
				case AdjustmentTypePromotion:
					idx, ok := discountIdx[adj.SourceID]
					if !ok {
						idx = len(out.Discounts)
						discountIdx[adj.SourceID] = idx
						out.Discounts = append(out.Discounts, DiscountBreakdown{PromotionID: adj.SourceID, Description: adj.Description})
					}
					out.Discounts[idx].Amount += adj.Amount
					out.Discount += adj.Amount
				case AdjustmentTypeTax:
					idx, ok := taxIdx[adj.SourceID]
					if !ok {
						idx = len(out.Taxes)
						taxIdx[adj.SourceID] = idx
						out.Taxes = append(out.Taxes, TaxBreakdown{RateID: adj.SourceID, Rate: item.TaxRate})
					}
					out.Taxes[idx].Amount += adj.Amount
				}
			}
		}
	}
	out.Tax = (o.SubTotal - o.SubTotalBeforeTax) + (o.ShippingWithTax - o.Shipping)

	if o.ShippingMethod != nil {
		out.ShippingDetails = &ShippingBreakdown{
			MethodID:      o.ShippingMethod.MethodID,
			Code:          o.ShippingMethod.Code,
			Description:   o.ShippingMethod.Description,
			Amount:        o.Shipping,
			AmountWithTax: o.ShippingWithTax,
		}
	}
	return out
}
