package services

import (
	"context"
	"time"

	"github.com/hanko-field/orderengine/internal/domain"
)

// OrderService drives order pricing and the order lifecycle.
type OrderService interface {
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	Recalculate(ctx context.Context, cmd RecalculateOrderCommand) (domain.Order, error)
	TransitionState(ctx context.Context, cmd TransitionOrderCommand) (domain.Order, error)
	NextStates(ctx context.Context, orderID string) ([]domain.OrderState, error)
}

// PaymentService creates and settles payments and advances the order once they cover its total.
type PaymentService interface {
	AddPayment(ctx context.Context, cmd AddPaymentCommand) (domain.Payment, error)
	SettlePayment(ctx context.Context, cmd SettlePaymentCommand) (domain.Payment, error)
}

// ReferenceDataService exposes cached reference data used by pricing.
type ReferenceDataService interface {
	ActiveTaxRates(ctx context.Context) ([]domain.TaxRate, error)
	ShippingMethods(ctx context.Context) ([]domain.ShippingMethod, error)
	ActivePromotions(ctx context.Context) ([]domain.Promotion, error)
	Zones(ctx context.Context) ([]domain.Zone, error)
	InvalidateAll(ctx context.Context) []string
}

// SystemService reports dependency health.
type SystemService interface {
	HealthReport(ctx context.Context) (domain.SystemHealthReport, error)
}

// RecalculateOrderCommand requests a full price recalculation. ShippingMethodID and CouponCodes,
// when set, replace the stored selections before pricing.
type RecalculateOrderCommand struct {
	OrderID          string
	ShippingMethodID *string
	CouponCodes      []string
	ActorID          string
}

// TransitionOrderCommand moves an order to Target.
type TransitionOrderCommand struct {
	OrderID string
	Target  domain.OrderState
	ActorID string
}

// AddPaymentCommand creates a payment against an order with the named payment method.
type AddPaymentCommand struct {
	OrderID    string
	MethodCode string
	Metadata   map[string]string
	ActorID    string
}

// SettlePaymentCommand settles a previously authorized payment.
type SettlePaymentCommand struct {
	PaymentID string
	ActorID   string
}

// EventPublisher emits state transition events for downstream consumers.
type EventPublisher interface {
	PublishOrderTransition(ctx context.Context, event OrderStateTransitionEvent) error
	PublishPaymentTransition(ctx context.Context, event PaymentStateTransitionEvent) error
}

// OrderStateTransitionEvent is published after an order transition is persisted.
type OrderStateTransitionEvent struct {
	ID         string
	OrderID    string
	OrderCode  string
	FromState  domain.OrderState
	ToState    domain.OrderState
	ActorID    string
	OccurredAt time.Time
}

// PaymentStateTransitionEvent is published after a payment transition is persisted.
type PaymentStateTransitionEvent struct {
	ID         string
	PaymentID  string
	OrderID    string
	Method     string
	Amount     int64
	FromState  domain.PaymentState
	ToState    domain.PaymentState
	ActorID    string
	OccurredAt time.Time
}
