package domain

import (
	"fmt"
	"slices"
	"strings"
)

// PriceForChannel returns the variant's list price in the given channel.
func (v ProductVariant) PriceForChannel(channelCode string) (int64, error) {
	code := strings.TrimSpace(channelCode)
	for _, price := range v.Prices {
		if strings.EqualFold(price.ChannelCode, code) {
			return price.Price, nil
		}
	}
	return 0, fmt.Errorf("%w: variant %s in channel %q", ErrNoPriceForChannel, v.ID, code)
}

func sumAdjustments(adjustments []Adjustment, kind AdjustmentType) int64 {
	var total int64
	for _, adj := range adjustments {
		if kind == "" || adj.Type == kind {
			total += adj.Amount
		}
	}
	return total
}

func withoutAdjustments(adjustments []Adjustment, kinds []AdjustmentType) []Adjustment {
	if len(kinds) == 0 {
		return nil
	}
	kept := adjustments[:0:0]
	for _, adj := range adjustments {
		if !slices.Contains(kinds, adj.Type) {
			kept = append(kept, adj)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}

// PromotionTotal is the signed sum of promotion adjustments on the item.
func (i *OrderItem) PromotionTotal() int64 {
	return sumAdjustments(i.Adjustments, AdjustmentTypePromotion)
}

// TaxTotal is the sum of tax adjustments on the item.
func (i *OrderItem) TaxTotal() int64 {
	return sumAdjustments(i.Adjustments, AdjustmentTypeTax)
}

// UnitPriceWithPromotions is the unit price after promotions, in the item's own tax basis.
func (i *OrderItem) UnitPriceWithPromotions() int64 {
	return i.UnitPrice + i.PromotionTotal()
}

// UnitPriceBeforeTax returns the discounted unit price net of tax.
func (i *OrderItem) UnitPriceBeforeTax() int64 {
	if i.UnitPriceIncludesTax {
		return NetOf(i.UnitPriceWithPromotions(), i.TaxRate)
	}
	return i.UnitPriceWithPromotions()
}

// AddAdjustment appends a new adjustment to the item.
func (i *OrderItem) AddAdjustment(adj Adjustment) {
	adj.Scope = AdjustmentScopeItem
	adj.ItemID = i.ID
	i.Adjustments = append(i.Adjustments, adj)
}

// ClearAdjustments drops adjustments of the given types, or all of them when none are given.
func (i *OrderItem) ClearAdjustments(kinds ...AdjustmentType) {
	i.Adjustments = withoutAdjustments(i.Adjustments, kinds)
}

func (i *OrderItem) refresh() {
	withPromotions := i.UnitPriceWithPromotions()
	if i.UnitPriceIncludesTax {
		i.UnitPriceWithTax = withPromotions
		return
	}
	i.UnitPriceWithTax = withPromotions + i.TaxTotal()
}

// ActiveItems returns pointers to the line's items that have not been cancelled.
func (l *OrderLine) ActiveItems() []*OrderItem {
	items := make([]*OrderItem, 0, len(l.Items))
	for idx := range l.Items {
		if !l.Items[idx].Cancelled {
			items = append(items, &l.Items[idx])
		}
	}
	return items
}

// Quantity is the number of non-cancelled units on the line.
func (l *OrderLine) Quantity() int {
	return len(l.ActiveItems())
}

// TotalPrice is the tax-inclusive line total including all item and line adjustments.
func (l *OrderLine) TotalPrice() int64 {
	var total int64
	for _, item := range l.ActiveItems() {
		total += item.UnitPriceWithTax
	}
	return total + sumAdjustments(l.Adjustments, "")
}

// TotalPriceBeforeTax is the line total net of tax.
func (l *OrderLine) TotalPriceBeforeTax() int64 {
	var total int64
	for _, item := range l.ActiveItems() {
		total += item.UnitPriceBeforeTax()
	}
	return total + sumAdjustments(l.Adjustments, "")
}

// ClearAdjustments drops adjustments of the given types (all when none given) from the order,
// its lines and their items.
func (o *Order) ClearAdjustments(kinds ...AdjustmentType) {
	o.Adjustments = withoutAdjustments(o.Adjustments, kinds)
	for li := range o.Lines {
		line := &o.Lines[li]
		line.Adjustments = withoutAdjustments(line.Adjustments, kinds)
		for ii := range line.Items {
			line.Items[ii].ClearAdjustments(kinds...)
		}
	}
}

// AddAdjustment appends an order-scoped adjustment record.
func (o *Order) AddAdjustment(adj Adjustment) {
	adj.Scope = AdjustmentScopeOrder
	adj.ItemID = ""
	o.Adjustments = append(o.Adjustments, adj)
}

// ResetTotals zeroes every monetary total.
func (o *Order) ResetTotals() {
	o.SubTotal = 0
	o.SubTotalBeforeTax = 0
	o.Shipping = 0
	o.ShippingWithTax = 0
	o.Total = 0
	o.TotalBeforeTax = 0
}

// RecalculateTotals rolls prices up from items to lines to the order. Order-scoped adjustments
// are records only: their amounts are already carried by item adjustments.
func (o *Order) RecalculateTotals() {
	var subTotal, subTotalBeforeTax int64
	for li := range o.Lines {
		line := &o.Lines[li]
		active := line.ActiveItems()
		for _, item := range active {
			item.refresh()
		}
		if len(active) > 0 {
			line.UnitPrice = active[0].UnitPrice
			line.UnitPriceWithTax = active[0].UnitPrice
			if !active[0].UnitPriceIncludesTax {
				line.UnitPriceWithTax = active[0].UnitPrice + PercentOf(active[0].UnitPrice, active[0].TaxRate)
			}
		}
		subTotal += line.TotalPrice()
		subTotalBeforeTax += line.TotalPriceBeforeTax()
	}
	o.SubTotal = subTotal
	o.SubTotalBeforeTax = subTotalBeforeTax
	o.Total = o.SubTotal + o.ShippingWithTax
	o.TotalBeforeTax = o.SubTotalBeforeTax + o.Shipping
}

// HasCoupon reports whether the coupon code was applied to the order (case-insensitive).
func (o *Order) HasCoupon(code string) bool {
	code = strings.TrimSpace(code)
	if code == "" {
		return false
	}
	for _, applied := range o.CouponCodes {
		if strings.EqualFold(strings.TrimSpace(applied), code) {
			return true
		}
	}
	return false
}

// AppliedPromotionIDs lists the distinct promotions that left an adjustment on the order, in
// first-seen order.
func (o *Order) AppliedPromotionIDs() []string {
	var ids []string
	add := func(adjustments []Adjustment) {
		for _, adj := range adjustments {
			if adj.Type == AdjustmentTypePromotion && adj.SourceID != "" && !slices.Contains(ids, adj.SourceID) {
				ids = append(ids, adj.SourceID)
			}
		}
	}
	add(o.Adjustments)
	for li := range o.Lines {
		add(o.Lines[li].Adjustments)
		for ii := range o.Lines[li].Items {
			add(o.Lines[li].Items[ii].Adjustments)
		}
	}
	return ids
}

// PaymentsTotal sums payments in any of the given states.
func (o *Order) PaymentsTotal(states ...PaymentState) int64 {
	var total int64
	for _, payment := range o.Payments {
		if slices.Contains(states, payment.State) {
			total += payment.Amount
		}
	}
	return total
}

// Clone returns a deep copy of the order so a calculation can run without touching the original.
func (o Order) Clone() Order {
	cloned := o
	cloned.Adjustments = slices.Clone(o.Adjustments)
	cloned.CouponCodes = slices.Clone(o.CouponCodes)
	if o.ShippingAddress != nil {
		addr := *o.ShippingAddress
		cloned.ShippingAddress = &addr
	}
	if o.ShippingMethod != nil {
		sel := *o.ShippingMethod
		cloned.ShippingMethod = &sel
	}
	if o.Lines != nil {
		cloned.Lines = make([]OrderLine, len(o.Lines))
		for li, line := range o.Lines {
			copied := line
			copied.ProductVariant.Prices = slices.Clone(line.ProductVariant.Prices)
			copied.Adjustments = slices.Clone(line.Adjustments)
			if line.Items != nil {
				copied.Items = make([]OrderItem, len(line.Items))
				for ii, item := range line.Items {
					item.Adjustments = slices.Clone(item.Adjustments)
					copied.Items[ii] = item
				}
			}
			cloned.Lines[li] = copied
		}
	}
	if o.Payments != nil {
		cloned.Payments = make([]Payment, len(o.Payments))
		for pi, payment := range o.Payments {
			if payment.Metadata != nil {
				meta := make(map[string]string, len(payment.Metadata))
				for k, v := range payment.Metadata {
					meta[k] = v
				}
				payment.Metadata = meta
			}
			cloned.Payments[pi] = payment
		}
	}
	return cloned
}
