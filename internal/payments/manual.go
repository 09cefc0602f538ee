package payments

import (
	"context"

	"github.com/hanko-field/orderengine/internal/configurable"
	"github.com/hanko-field/orderengine/internal/domain"
)

// CodeManual identifies the manual (offline) payment handler.
const CodeManual = "manual"

// ManualHandler records payments taken outside the engine, e.g. bank transfer or cash.
type ManualHandler struct{}

var _ Handler = ManualHandler{}

func (ManualHandler) Definition() configurable.Definition {
	return configurable.Definition{
		Code:        CodeManual,
		Description: "Payment collected outside the system",
		Args:        []configurable.ArgDefinition{{Name: "automaticSettle", Type: configurable.ArgTypeBoolean}},
	}
}

// CreatePayment authorizes the payment, or settles it straight away when automaticSettle is set.
func (ManualHandler) CreatePayment(_ context.Context, req CreateRequest, args configurable.Args) (Result, error) {
	settle, err := args.BoolOr("automaticSettle", false)
	if err != nil {
		return Result{}, err
	}
	state := domain.PaymentStateAuthorized
	if settle {
		state = domain.PaymentStateSettled
	}
	return Result{State: state, Metadata: cloneMetadata(req.Metadata)}, nil
}

// SettlePayment always succeeds; the money was already collected.
func (ManualHandler) SettlePayment(_ context.Context, payment domain.Payment, _ configurable.Args) (Result, error) {
	return Result{State: domain.PaymentStateSettled, TransactionID: payment.TransactionID, Metadata: cloneMetadata(payment.Metadata)}, nil
}
