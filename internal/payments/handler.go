// Package payments contains the payment method handlers that back configurable payment methods.
package payments

import (
	"context"
	"errors"
	"maps"

	"github.com/hanko-field/orderengine/internal/configurable"
	"github.com/hanko-field/orderengine/internal/domain"
)

// ErrUnsupportedHandler is returned when a payment method references an unknown handler code.
var ErrUnsupportedHandler = errors.New("payments: unsupported handler")

// CreateRequest asks a handler to start a payment.
type CreateRequest struct {
	PaymentID  string
	OrderID    string
	OrderCode  string
	CustomerID string
	Currency   string
	Amount     int64
	Metadata   map[string]string
}

// Result is what a handler reports back about a payment attempt.
type Result struct {
	State         domain.PaymentState
	TransactionID string
	ErrorMessage  string
	Metadata      map[string]string
}

// Handler is a payment method handler registered under a stable code. Stored payment methods
// carry the code plus string arguments which are coerced against Definition.
type Handler interface {
	Definition() configurable.Definition
	CreatePayment(ctx context.Context, req CreateRequest, args configurable.Args) (Result, error)
	SettlePayment(ctx context.Context, payment domain.Payment, args configurable.Args) (Result, error)
}

// NewRegistry registers handlers by code.
func NewRegistry(handlers ...Handler) (*configurable.Registry[Handler], error) {
	return configurable.NewRegistry(handlers...)
}

func cloneMetadata(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	return maps.Clone(in)
}
