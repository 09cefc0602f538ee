package payments

import (
	"context"
	"errors"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"

	"github.com/hanko-field/orderengine/internal/configurable"
	"github.com/hanko-field/orderengine/internal/domain"
)

// CodeStripe identifies the Stripe payment handler.
const CodeStripe = "stripe"

// MetadataPaymentMethod carries the Stripe payment method id in CreateRequest.Metadata.
const MetadataPaymentMethod = "paymentMethodId"

// StripeLogger defines the logging contract for Stripe handler operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Capture(id string, params *stripe.PaymentIntentCaptureParams) (*stripe.PaymentIntent, error)
}

// StripeHandlerConfig configures the StripeHandler.
type StripeHandlerConfig struct {
	APIKey    string
	AccountID string
	Backends  *stripe.Backends
	Logger    StripeLogger
	intents   stripePaymentIntentAPI
}

// StripeHandler creates and captures Stripe PaymentIntents.
type StripeHandler struct {
	intents stripePaymentIntentAPI
	account string
	logger  StripeLogger
}

var _ Handler = (*StripeHandler)(nil)

// NewStripeHandler constructs the handler from an API key.
func NewStripeHandler(cfg StripeHandlerConfig) (*StripeHandler, error) {
	intents := cfg.intents
	if intents == nil {
		apiKey := strings.TrimSpace(cfg.APIKey)
		if apiKey == "" {
			return nil, errors.New("stripe: api key is required")
		}
		intents = client.New(apiKey, cfg.Backends).PaymentIntents
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &StripeHandler{
		intents: intents,
		account: strings.TrimSpace(cfg.AccountID),
		logger:  logger,
	}, nil
}

func (h *StripeHandler) Definition() configurable.Definition {
	return configurable.Definition{
		Code:        CodeStripe,
		Description: "Card payments through Stripe",
		Args:        []configurable.ArgDefinition{{Name: "captureMethod", Type: configurable.ArgTypeString}},
	}
}

// CreatePayment creates and confirms a PaymentIntent keyed on the payment record, so a retry of
// the same attempt is deduplicated while a new attempt gets its own intent. With captureMethod "manual" the intent
// stops at requires_capture and the payment is Authorized; otherwise it settles immediately.
func (h *StripeHandler) CreatePayment(ctx context.Context, req CreateRequest, args configurable.Args) (Result, error) {
	paymentID := strings.TrimSpace(req.PaymentID)
	if paymentID == "" {
		return Result{}, errors.New("stripe: payment id is required")
	}
	captureMethod := stripe.PaymentIntentCaptureMethodAutomatic
	if args.Has("captureMethod") {
		raw, err := args.String("captureMethod")
		if err != nil {
			return Result{}, err
		}
		if strings.EqualFold(strings.TrimSpace(raw), string(stripe.PaymentIntentCaptureMethodManual)) {
			captureMethod = stripe.PaymentIntentCaptureMethodManual
		}
	}

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.Amount),
		Currency:      stripe.String(strings.ToLower(req.Currency)),
		CaptureMethod: stripe.String(string(captureMethod)),
	}
	params.Context = ctx
	params.SetIdempotencyKey("payment-" + paymentID)
	if h.account != "" {
		params.SetStripeAccount(h.account)
	}
	if pm := strings.TrimSpace(req.Metadata[MetadataPaymentMethod]); pm != "" {
		params.PaymentMethod = stripe.String(pm)
		params.Confirm = stripe.Bool(true)
	}
	params.AddMetadata("orderId", req.OrderID)
	params.AddMetadata("paymentId", paymentID)
	if req.OrderCode != "" {
		params.AddMetadata("orderCode", req.OrderCode)
	}

	intent, err := h.intents.New(params)
	if err != nil {
		return h.failure(ctx, "payments.stripe.intent.create_failed", req.OrderID, err), nil
	}
	h.logger(ctx, "payments.stripe.intent.created", map[string]any{
		"paymentIntent": intent.ID,
		"status":        intent.Status,
		"orderId":       req.OrderID,
	})
	return stripeResult(intent, req.Metadata), nil
}

// SettlePayment captures a previously authorized intent.
func (h *StripeHandler) SettlePayment(ctx context.Context, payment domain.Payment, _ configurable.Args) (Result, error) {
	if strings.TrimSpace(payment.TransactionID) == "" {
		return Result{}, errors.New("stripe: payment has no payment intent")
	}
	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	params.SetIdempotencyKey("capture-" + payment.ID)
	if h.account != "" {
		params.SetStripeAccount(h.account)
	}
	intent, err := h.intents.Capture(payment.TransactionID, params)
	if err != nil {
		return h.failure(ctx, "payments.stripe.intent.capture_failed", payment.OrderID, err), nil
	}
	h.logger(ctx, "payments.stripe.intent.captured", map[string]any{
		"paymentIntent":  intent.ID,
		"amountReceived": intent.AmountReceived,
	})
	return stripeResult(intent, payment.Metadata), nil
}

// failure turns Stripe API errors into payment states: card errors decline the payment, anything
// else marks it as errored.
func (h *StripeHandler) failure(ctx context.Context, event, orderID string, err error) Result {
	state := domain.PaymentStateError
	message := err.Error()
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.Type == stripe.ErrorTypeCard {
			state = domain.PaymentStateDeclined
		}
		if stripeErr.Msg != "" {
			message = stripeErr.Msg
		}
	}
	h.logger(ctx, event, map[string]any{
		"orderId": orderID,
		"state":   state,
		"error":   message,
	})
	return Result{State: state, ErrorMessage: message}
}

func stripeResult(intent *stripe.PaymentIntent, metadata map[string]string) Result {
	result := Result{TransactionID: intent.ID, Metadata: cloneMetadata(metadata)}
	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		result.State = domain.PaymentStateSettled
	case stripe.PaymentIntentStatusRequiresCapture:
		result.State = domain.PaymentStateAuthorized
	case stripe.PaymentIntentStatusCanceled:
		result.State = domain.PaymentStateDeclined
		if intent.CancellationReason != "" {
			result.ErrorMessage = string(intent.CancellationReason)
		}
	default:
		result.State = domain.PaymentStateCreated
	}
	return result
}
