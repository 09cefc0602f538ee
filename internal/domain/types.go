package domain

import (
	"errors"
	"time"
)

// ErrNoPriceForChannel is returned when a product variant carries no price for the order's channel.
var ErrNoPriceForChannel = errors.New("domain: no price for channel")

// OrderState enumerates lifecycle states for orders.
type OrderState string

const (
	// OrderStateAddingItems indicates the customer is still building the order.
	OrderStateAddingItems OrderState = "AddingItems"
	// OrderStateArrangingPayment indicates checkout started and payment is being arranged.
	OrderStateArrangingPayment OrderState = "ArrangingPayment"
	// OrderStatePaymentAuthorized indicates payments covering the total were authorized.
	OrderStatePaymentAuthorized OrderState = "PaymentAuthorized"
	// OrderStatePaymentSettled indicates payments covering the total were settled.
	OrderStatePaymentSettled OrderState = "PaymentSettled"
	// OrderStateCancelled indicates the order has been cancelled.
	OrderStateCancelled OrderState = "Cancelled"
)

// PaymentState enumerates lifecycle states for payments.
type PaymentState string

const (
	// PaymentStateCreated indicates the payment record exists but the PSP has not answered.
	PaymentStateCreated PaymentState = "Created"
	// PaymentStateAuthorized indicates funds are reserved but not captured.
	PaymentStateAuthorized PaymentState = "Authorized"
	// PaymentStateSettled indicates funds were captured.
	PaymentStateSettled PaymentState = "Settled"
	// PaymentStateDeclined indicates the PSP declined the payment.
	PaymentStateDeclined PaymentState = "Declined"
	// PaymentStateError indicates the payment failed for technical reasons.
	PaymentStateError PaymentState = "Error"
)

// AdjustmentType tags the origin of a monetary adjustment.
type AdjustmentType string

const (
	AdjustmentTypeTax       AdjustmentType = "TAX"
	AdjustmentTypePromotion AdjustmentType = "PROMOTION"
	AdjustmentTypeShipping  AdjustmentType = "SHIPPING"
	AdjustmentTypeRefund    AdjustmentType = "REFUND"
)

// AdjustmentScope records whether an adjustment targets the whole order or a single item.
type AdjustmentScope string

const (
	AdjustmentScopeOrder AdjustmentScope = "ORDER"
	AdjustmentScopeItem  AdjustmentScope = "ITEM"
)

// Adjustment is a signed monetary delta in minor units. Negative amounts are discounts.
// Adjustments are never mutated; recalculation rebuilds the whole list.
type Adjustment struct {
	SourceID    string
	Type        AdjustmentType
	Scope       AdjustmentScope
	ItemID      string
	Description string
	Amount      int64
}

// Order is the aggregate root priced by the engine.
type Order struct {
	ID                string
	Code              string
	CustomerID        string
	ChannelCode       string
	State             OrderState
	Active            bool
	CurrencyCode      string
	Lines             []OrderLine
	Adjustments       []Adjustment
	CouponCodes       []string
	ShippingAddress   *Address
	// ShippingMethodID is the caller's preferred method; ShippingMethod is what was applied.
	ShippingMethodID  string
	ShippingMethod    *ShippingSelection
	SubTotal          int64
	SubTotalBeforeTax int64
	Shipping          int64
	ShippingWithTax   int64
	Total             int64
	TotalBeforeTax    int64
	Payments          []Payment
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ShippingSelection records the shipping method chosen during the last calculation.
type ShippingSelection struct {
	MethodID    string
	Code        string
	Description string
}

// OrderLine groups the units of one product variant.
type OrderLine struct {
	ID               string
	ProductVariant   ProductVariant
	UnitPrice        int64
	UnitPriceWithTax int64
	Items            []OrderItem
	Adjustments      []Adjustment
}

// OrderItem represents one physical unit so promotions and refunds can act per unit.
type OrderItem struct {
	ID                   string
	UnitPrice            int64
	UnitPriceWithTax     int64
	UnitPriceIncludesTax bool
	TaxRate              float64
	Adjustments          []Adjustment
	Cancelled            bool
}

// ProductVariant is the purchasable SKU referenced by an order line.
type ProductVariant struct {
	ID          string
	SKU         string
	Name        string
	TaxCategory TaxCategory
	Prices      []ChannelPrice
}

// ChannelPrice is the list price of a variant in a channel, in minor units.
type ChannelPrice struct {
	ChannelCode string
	Price       int64
}

// Channel captures the sales channel settings relevant to pricing.
type Channel struct {
	Code             string
	CurrencyCode     string
	PricesIncludeTax bool
	DefaultTaxZoneID string
}

// TaxCategory classifies products for tax purposes, e.g. standard or reduced.
type TaxCategory struct {
	ID   string
	Name string
}

// TaxRate binds a tax category to a zone with a percentage value.
type TaxRate struct {
	ID              string
	Name            string
	Value           float64
	Enabled         bool
	CategoryID      string
	ZoneID          string
	CustomerGroupID string
}

// Zone groups country codes used to determine which tax rate applies.
type Zone struct {
	ID      string
	Name    string
	Members []string
}

// CustomerGroup scopes tax rates and promotion conditions to a set of customers.
type CustomerGroup struct {
	ID   string
	Name string
}

// ConfigArg is one stored argument of a configurable operation. Value is always the
// string serialisation regardless of Type.
type ConfigArg struct {
	Name  string
	Type  string
	Value string
}

// ConfigurableOperation references a registered operation by code together with its stored arguments.
type ConfigurableOperation struct {
	Code string
	Args []ConfigArg
}

// Promotion bundles conditions (all must pass) and actions applied to qualifying orders.
type Promotion struct {
	ID                    string
	Name                  string
	Enabled               bool
	StartsAt              *time.Time
	EndsAt                *time.Time
	CouponCode            string
	PerCustomerUsageLimit int
	PriorityValue         int
	Conditions            []ConfigurableOperation
	Actions               []ConfigurableOperation
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// ShippingMethod pairs an eligibility checker with a price calculator.
type ShippingMethod struct {
	ID          string
	Code        string
	Description string
	Enabled     bool
	Checker     ConfigurableOperation
	Calculator  ConfigurableOperation
}

// PaymentMethod pairs a payment handler operation with its stored arguments.
type PaymentMethod struct {
	ID      string
	Code    string
	Enabled bool
	Handler ConfigurableOperation
}

// Payment records a single payment attempt for an order.
type Payment struct {
	ID            string
	OrderID       string
	Method        string
	Amount        int64
	State         PaymentState
	TransactionID string
	ErrorMessage  string
	Metadata      map[string]string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PromotionUsage aggregates per-customer promotion usage counts.
type PromotionUsage struct {
	PromotionID string
	CustomerID  string
	Times       int
	LastUsed    time.Time
}

// Address represents the postal address used to resolve the active tax zone.
type Address struct {
	Recipient  string
	Line1      string
	Line2      *string
	City       string
	State      *string
	PostalCode string
	Country    string
}
