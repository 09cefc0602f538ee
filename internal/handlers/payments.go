package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hanko-field/orderengine/internal/domain"
	"github.com/hanko-field/orderengine/internal/platform/httpx"
	"github.com/hanko-field/orderengine/internal/platform/requestctx"
	"github.com/hanko-field/orderengine/internal/services"
)

// PaymentHandlers exposes payment settlement.
type PaymentHandlers struct {
	payments services.PaymentService
	guard    func(http.Handler) http.Handler
}

// NewPaymentHandlers constructs payment handlers. guard, when non-nil, wraps the settle route.
func NewPaymentHandlers(payments services.PaymentService, guard func(http.Handler) http.Handler) *PaymentHandlers {
	return &PaymentHandlers{payments: payments, guard: guard}
}

// Routes registers the /payments endpoints.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if h.guard != nil {
		r = r.With(h.guard)
	}
	r.Post("/{paymentID}/settle", h.settle)
}

func (h *PaymentHandlers) settle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	payment, err := h.payments.SettlePayment(ctx, services.SettlePaymentCommand{
		PaymentID: chi.URLParam(r, "paymentID"),
		ActorID:   requestctx.ActorID(ctx),
	})
	if err != nil {
		paymentErrors.Write(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, paymentResponse{Payment: buildPaymentPayload(payment)})
}

type paymentResponse struct {
	Payment paymentPayload `json:"payment"`
}

type paymentPayload struct {
	ID            string            `json:"id"`
	OrderID       string            `json:"orderId"`
	Method        string            `json:"method"`
	Amount        int64             `json:"amount"`
	State         string            `json:"state"`
	TransactionID string            `json:"transactionId,omitempty"`
	ErrorMessage  string            `json:"errorMessage,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     string            `json:"createdAt,omitempty"`
	UpdatedAt     string            `json:"updatedAt,omitempty"`
}

func buildPaymentPayload(p domain.Payment) paymentPayload {
	return paymentPayload{
		ID:            p.ID,
		OrderID:       p.OrderID,
		Method:        p.Method,
		Amount:        p.Amount,
		State:         string(p.State),
		TransactionID: p.TransactionID,
		ErrorMessage:  p.ErrorMessage,
		Metadata:      p.Metadata,
		CreatedAt:     formatTime(p.CreatedAt),
		UpdatedAt:     formatTime(p.UpdatedAt),
	}
}

var paymentErrors = httpx.ErrorMapper{
	Subject:  "payment",
	Fallback: "payment_error",
	Rules: []httpx.Rule{
		{Targets: []error{services.ErrPaymentInvalidInput}, Code: "invalid_request", Status: http.StatusBadRequest},
		{Targets: []error{services.ErrPaymentNotFound}, Code: "payment_not_found", Status: http.StatusNotFound},
		{Targets: []error{services.ErrPaymentInvalidState}, Code: "payment_invalid_state", Status: http.StatusConflict},
		{Targets: []error{services.ErrPaymentConflict}, Code: "payment_conflict", Status: http.StatusConflict},
		{
			Targets: []error{services.ErrPaymentUnavailable},
			Code:    "payment_unavailable",
			Status:  http.StatusServiceUnavailable,
			Message: "a dependency is unavailable, retry later",
		},
	},
}
