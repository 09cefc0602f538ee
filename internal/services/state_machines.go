package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/hanko-field/orderengine/internal/domain"
	"github.com/hanko-field/orderengine/internal/fsm"
)

// DefaultOrderTransitions is the order lifecycle before configuration adds to it.
var DefaultOrderTransitions = fsm.Transitions[domain.OrderState]{
	domain.OrderStateAddingItems:       {domain.OrderStateArrangingPayment, domain.OrderStateCancelled},
	domain.OrderStateArrangingPayment:  {domain.OrderStatePaymentAuthorized, domain.OrderStatePaymentSettled, domain.OrderStateAddingItems, domain.OrderStateCancelled},
	domain.OrderStatePaymentAuthorized: {domain.OrderStatePaymentSettled, domain.OrderStateCancelled},
	domain.OrderStatePaymentSettled:    {domain.OrderStateCancelled},
	domain.OrderStateCancelled:         {},
}

// PaymentTransitions is the payment lifecycle.
var PaymentTransitions = fsm.Transitions[domain.PaymentState]{
	domain.PaymentStateCreated:    {domain.PaymentStateAuthorized, domain.PaymentStateSettled, domain.PaymentStateDeclined, domain.PaymentStateError},
	domain.PaymentStateAuthorized: {domain.PaymentStateSettled, domain.PaymentStateDeclined, domain.PaymentStateError},
	domain.PaymentStateSettled:    {},
	domain.PaymentStateDeclined:   {},
	domain.PaymentStateError:      {},
}

var (
	errOrderHasNoLines         = errors.New("order has no lines")
	errPaymentsDoNotCoverTotal = errors.New("payments do not cover the order total")
	errSettledPaymentsTooLow   = errors.New("settled payments do not cover the order total")
)

// OrderMachine validates order transitions. The order itself is the transition data so guards
// can inspect lines and payments.
type OrderMachine = fsm.Machine[domain.OrderState, *domain.Order]

// PaymentMachine validates payment transitions.
type PaymentMachine = fsm.Machine[domain.PaymentState, *domain.Payment]

// NewOrderMachine builds the order state machine over transitions. Leaving AddingItems requires
// lines; entering PaymentAuthorized or PaymentSettled requires covering payments and
// deactivates the order.
func NewOrderMachine(transitions fsm.Transitions[domain.OrderState], logger func(context.Context, string, map[string]any)) *OrderMachine {
	if transitions == nil {
		transitions = DefaultOrderTransitions
	}
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return fsm.New(fsm.Config[domain.OrderState, *domain.Order]{
		Transitions: transitions,
		OnTransitionStart: func(_ context.Context, from, to domain.OrderState, order *domain.Order) error {
			switch to {
			case domain.OrderStateArrangingPayment:
				if order == nil || len(order.Lines) == 0 {
					return errOrderHasNoLines
				}
			case domain.OrderStatePaymentAuthorized:
				covered := order.PaymentsTotal(domain.PaymentStateAuthorized, domain.PaymentStateSettled)
				if covered < order.Total {
					return fmt.Errorf("%w (%d of %d)", errPaymentsDoNotCoverTotal, covered, order.Total)
				}
			case domain.OrderStatePaymentSettled:
				settled := order.PaymentsTotal(domain.PaymentStateSettled)
				if settled < order.Total {
					return fmt.Errorf("%w (%d of %d)", errSettledPaymentsTooLow, settled, order.Total)
				}
			}
			return nil
		},
		OnTransitionEnd: func(_ context.Context, _, to domain.OrderState, order *domain.Order) {
			switch to {
			case domain.OrderStatePaymentAuthorized, domain.OrderStatePaymentSettled:
				order.Active = false
			case domain.OrderStateAddingItems:
				order.Active = true
			}
		},
		OnError: func(from, to domain.OrderState, message string) {
			logger(context.Background(), "order.transition.rejected", map[string]any{
				"from":   from,
				"to":     to,
				"reason": message,
			})
		},
	})
}

// NewPaymentMachine builds the payment state machine.
func NewPaymentMachine(logger func(context.Context, string, map[string]any)) *PaymentMachine {
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return fsm.New(fsm.Config[domain.PaymentState, *domain.Payment]{
		Transitions: PaymentTransitions,
		OnError: func(from, to domain.PaymentState, message string) {
			logger(context.Background(), "payment.transition.rejected", map[string]any{
				"from":   from,
				"to":     to,
				"reason": message,
			})
		},
	})
}
