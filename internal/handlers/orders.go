package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"github.com/hanko-field/orderengine/internal/domain"
	"github.com/hanko-field/orderengine/internal/platform/httpx"
	"github.com/hanko-field/orderengine/internal/platform/requestctx"
	"github.com/hanko-field/orderengine/internal/services"
)

type transitionOrderRequest struct {
	State string `json:"state" validate:"required,state_name"`
}

type recalculateOrderRequest struct {
	ShippingMethodID *string   `json:"shippingMethodId" validate:"omitempty,max=128"`
	CouponCodes      *[]string `json:"couponCodes" validate:"omitempty,max=20,dive,required,max=64"`
}

type addPaymentRequest struct {
	Method   string            `json:"method" validate:"required,max=64"`
	Metadata map[string]string `json:"metadata" validate:"omitempty,max=20,dive,keys,required,max=64,endkeys,max=512"`
}

// OrderHandlers exposes order pricing and lifecycle endpoints.
type OrderHandlers struct {
	orders   services.OrderService
	payments services.PaymentService
	validate *validatorv10.Validate
	guard    func(http.Handler) http.Handler
}

// OrderHandlersOption customises OrderHandlers.
type OrderHandlersOption func(*OrderHandlers)

// WithPaymentGuard wraps the payment creation route, typically with the idempotency middleware.
func WithPaymentGuard(mw func(http.Handler) http.Handler) OrderHandlersOption {
	return func(h *OrderHandlers) { h.guard = mw }
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(orders services.OrderService, payments services.PaymentService, opts ...OrderHandlersOption) *OrderHandlers {
	h := &OrderHandlers{orders: orders, payments: payments, validate: newValidator()}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	r.Get("/{orderID}", h.getOrder)
	r.Get("/{orderID}/next-states", h.nextStates)
	r.Post("/{orderID}/transition", h.transition)
	r.Post("/{orderID}/recalculate", h.recalculate)
	if h.guard != nil {
		r.With(h.guard).Post("/{orderID}/payments", h.addPayment)
	} else {
		r.Post("/{orderID}/payments", h.addPayment)
	}
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	order, err := h.orders.GetOrder(ctx, chi.URLParam(r, "orderID"))
	if err != nil {
		orderErrors.Write(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) nextStates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	states, err := h.orders.NextStates(ctx, orderID)
	if err != nil {
		orderErrors.Write(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, nextStatesResponse{
		OrderID: orderID,
		States:  lo.Map(states, func(s domain.OrderState, _ int) string { return string(s) }),
	})
}

func (h *OrderHandlers) transition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req transitionOrderRequest
	if !decodeRequest(w, r, h.validate, &req, false) {
		return
	}
	order, err := h.orders.TransitionState(ctx, services.TransitionOrderCommand{
		OrderID: chi.URLParam(r, "orderID"),
		Target:  domain.OrderState(req.State),
		ActorID: requestctx.ActorID(ctx),
	})
	if err != nil {
		orderErrors.Write(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) recalculate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req recalculateOrderRequest
	if !decodeRequest(w, r, h.validate, &req, true) {
		return
	}
	cmd := services.RecalculateOrderCommand{
		OrderID:          chi.URLParam(r, "orderID"),
		ShippingMethodID: req.ShippingMethodID,
		ActorID:          requestctx.ActorID(ctx),
	}
	if req.CouponCodes != nil {
		cmd.CouponCodes = append([]string{}, *req.CouponCodes...)
	}
	order, err := h.orders.Recalculate(ctx, cmd)
	if err != nil {
		orderErrors.Write(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) addPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req addPaymentRequest
	if !decodeRequest(w, r, h.validate, &req, false) {
		return
	}
	payment, err := h.payments.AddPayment(ctx, services.AddPaymentCommand{
		OrderID:    chi.URLParam(r, "orderID"),
		MethodCode: req.Method,
		Metadata:   req.Metadata,
		ActorID:    requestctx.ActorID(ctx),
	})
	if err != nil {
		paymentErrors.Write(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, paymentResponse{Payment: buildPaymentPayload(payment)})
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type nextStatesResponse struct {
	OrderID string   `json:"orderId"`
	States  []string `json:"states"`
}

type orderPayload struct {
	ID                string              `json:"id"`
	Code              string              `json:"code"`
	CustomerID        string              `json:"customerId,omitempty"`
	ChannelCode       string              `json:"channelCode"`
	State             string              `json:"state"`
	Active            bool                `json:"active"`
	CurrencyCode      string              `json:"currencyCode"`
	CouponCodes       []string            `json:"couponCodes,omitempty"`
	ShippingMethod    *shippingPayload    `json:"shippingMethod,omitempty"`
	Lines             []orderLinePayload  `json:"lines"`
	Adjustments       []adjustmentPayload `json:"adjustments,omitempty"`
	SubTotal          int64               `json:"subTotal"`
	SubTotalBeforeTax int64               `json:"subTotalBeforeTax"`
	Shipping          int64               `json:"shipping"`
	ShippingWithTax   int64               `json:"shippingWithTax"`
	Total             int64               `json:"total"`
	TotalBeforeTax    int64               `json:"totalBeforeTax"`
	Payments          []paymentPayload    `json:"payments,omitempty"`
	UpdatedAt         string              `json:"updatedAt,omitempty"`
}

type shippingPayload struct {
	MethodID    string `json:"methodId"`
	Code        string `json:"code"`
	Description string `json:"description,omitempty"`
}

type orderLinePayload struct {
	ID               string              `json:"id"`
	VariantID        string              `json:"variantId"`
	SKU              string              `json:"sku,omitempty"`
	Quantity         int                 `json:"quantity"`
	UnitPrice        int64               `json:"unitPrice"`
	UnitPriceWithTax int64               `json:"unitPriceWithTax"`
	TotalPrice       int64               `json:"totalPrice"`
	Adjustments      []adjustmentPayload `json:"adjustments,omitempty"`
}

type adjustmentPayload struct {
	Type        string `json:"type"`
	SourceID    string `json:"sourceId"`
	ItemID      string `json:"itemId,omitempty"`
	Description string `json:"description,omitempty"`
	Amount      int64  `json:"amount"`
}

func buildOrderPayload(order domain.Order) orderPayload {
	payload := orderPayload{
		ID:                order.ID,
		Code:              order.Code,
		CustomerID:        order.CustomerID,
		ChannelCode:       order.ChannelCode,
		State:             string(order.State),
		Active:            order.Active,
		CurrencyCode:      order.CurrencyCode,
		CouponCodes:       order.CouponCodes,
		Adjustments:       buildAdjustmentPayloads(order.Adjustments),
		SubTotal:          order.SubTotal,
		SubTotalBeforeTax: order.SubTotalBeforeTax,
		Shipping:          order.Shipping,
		ShippingWithTax:   order.ShippingWithTax,
		Total:             order.Total,
		TotalBeforeTax:    order.TotalBeforeTax,
		Payments:          lo.Map(order.Payments, func(p domain.Payment, _ int) paymentPayload { return buildPaymentPayload(p) }),
		UpdatedAt:         formatTime(order.UpdatedAt),
	}
	if sel := order.ShippingMethod; sel != nil {
		payload.ShippingMethod = &shippingPayload{MethodID: sel.MethodID, Code: sel.Code, Description: sel.Description}
	}
	payload.Lines = make([]orderLinePayload, 0, len(order.Lines))
	for li := range order.Lines {
		line := &order.Lines[li]
		// Item adjustments are flattened onto the line so clients see one list per line.
		adjustments := buildAdjustmentPayloads(line.Adjustments)
		for _, item := range line.ActiveItems() {
			adjustments = append(adjustments, buildAdjustmentPayloads(item.Adjustments)...)
		}
		payload.Lines = append(payload.Lines, orderLinePayload{
			ID:               line.ID,
			VariantID:        line.ProductVariant.ID,
			SKU:              line.ProductVariant.SKU,
			Quantity:         line.Quantity(),
			UnitPrice:        line.UnitPrice,
			UnitPriceWithTax: line.UnitPriceWithTax,
			TotalPrice:       line.TotalPrice(),
			Adjustments:      adjustments,
		})
	}
	return payload
}

func buildAdjustmentPayloads(adjustments []domain.Adjustment) []adjustmentPayload {
	if len(adjustments) == 0 {
		return nil
	}
	return lo.Map(adjustments, func(a domain.Adjustment, _ int) adjustmentPayload {
		return adjustmentPayload{
			Type:        string(a.Type),
			SourceID:    a.SourceID,
			ItemID:      a.ItemID,
			Description: a.Description,
			Amount:      a.Amount,
		}
	})
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

var orderErrors = httpx.ErrorMapper{
	Subject:  "order",
	Fallback: "order_error",
	Rules: []httpx.Rule{
		{Targets: []error{services.ErrOrderInvalidInput}, Code: "invalid_request", Status: http.StatusBadRequest},
		{Targets: []error{services.ErrOrderNotFound}, Code: "order_not_found", Status: http.StatusNotFound, Message: "order not found"},
		{Targets: []error{services.ErrOrderInvalidState}, Code: "order_invalid_state", Status: http.StatusConflict},
		{Targets: []error{services.ErrOrderConflict}, Code: "order_conflict", Status: http.StatusConflict},
		{
			Targets: []error{services.ErrOrderUnavailable, services.ErrReferenceDataUnavailable},
			Code:    "order_unavailable",
			Status:  http.StatusServiceUnavailable,
			Message: "a dependency is unavailable, retry later",
		},
	},
}
