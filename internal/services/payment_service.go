package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hanko-field/orderengine/internal/configurable"
	"github.com/hanko-field/orderengine/internal/domain"
	"github.com/hanko-field/orderengine/internal/fsm"
	"github.com/hanko-field/orderengine/internal/payments"
	"github.com/hanko-field/orderengine/internal/repositories"
)

var (
	// ErrPaymentInvalidInput signals the caller provided invalid data.
	ErrPaymentInvalidInput = errors.New("payment: invalid input")
	// ErrPaymentNotFound indicates the payment or payment method could not be located.
	ErrPaymentNotFound = errors.New("payment: not found")
	// ErrPaymentInvalidState indicates the payment or its order is in the wrong state.
	ErrPaymentInvalidState = errors.New("payment: invalid state")
	// ErrPaymentConflict indicates a duplicate payment record.
	ErrPaymentConflict = errors.New("payment: conflict")
	// ErrPaymentUnavailable indicates a payment dependency failed.
	ErrPaymentUnavailable = errors.New("payment: dependency unavailable")
)

// PaymentServiceDeps bundles collaborators required to construct the payment service.
type PaymentServiceDeps struct {
	Orders         repositories.OrderRepository
	Payments       repositories.PaymentRepository
	PaymentMethods repositories.PaymentMethodRepository
	Handlers       *configurable.Registry[payments.Handler]
	OrderService   OrderService
	Machine        *PaymentMachine
	Locks          *OrderLocks
	UnitOfWork     repositories.UnitOfWork
	Clock          func() time.Time
	IDGenerator    func() string
	Events         EventPublisher
	Logger         func(ctx context.Context, event string, fields map[string]any)
}

type paymentService struct {
	orders     repositories.OrderRepository
	payments   repositories.PaymentRepository
	methods    repositories.PaymentMethodRepository
	handlers   *configurable.Registry[payments.Handler]
	orderSvc   OrderService
	machine    *PaymentMachine
	locks      *OrderLocks
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	newID      func() string
	events     EventPublisher
	logger     func(context.Context, string, map[string]any)
}

var _ PaymentService = (*paymentService)(nil)

// NewPaymentService wires the payment service. Locks must be shared with the order service so a
// payment and a direct order transition never interleave.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Orders == nil {
		return nil, errors.New("payment service: order repository is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("payment service: payment repository is required")
	}
	if deps.PaymentMethods == nil {
		return nil, errors.New("payment service: payment method repository is required")
	}
	if deps.Handlers == nil {
		return nil, errors.New("payment service: handler registry is required")
	}
	if deps.OrderService == nil {
		return nil, errors.New("payment service: order service is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return "pay_" + ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	machine := deps.Machine
	if machine == nil {
		machine = NewPaymentMachine(logger)
	}
	locks := deps.Locks
	if locks == nil {
		locks = NewOrderLocks()
	}

	return &paymentService{
		orders:     deps.Orders,
		payments:   deps.Payments,
		methods:    deps.PaymentMethods,
		handlers:   deps.Handlers,
		orderSvc:   deps.OrderService,
		machine:    machine,
		locks:      locks,
		unitOfWork: unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

// AddPayment charges the outstanding balance of an order in ArrangingPayment with the named
// payment method. Once authorized or settled payments cover the total, the order advances.
func (s *paymentService) AddPayment(ctx context.Context, cmd AddPaymentCommand) (domain.Payment, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.Payment{}, fmt.Errorf("%w: order id is required", ErrPaymentInvalidInput)
	}
	methodCode := strings.TrimSpace(cmd.MethodCode)
	if methodCode == "" {
		return domain.Payment{}, fmt.Errorf("%w: payment method is required", ErrPaymentInvalidInput)
	}

	ctx, unlock := s.locks.Lock(ctx, orderID)
	defer unlock()

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Payment{}, s.mapRepositoryError(err)
	}
	if order.State != domain.OrderStateArrangingPayment {
		return domain.Payment{}, fmt.Errorf("%w: order %s is %s, payments require %s",
			ErrPaymentInvalidState, orderID, order.State, domain.OrderStateArrangingPayment)
	}

	existing, err := s.payments.ListByOrder(ctx, orderID)
	if err != nil {
		return domain.Payment{}, s.mapRepositoryError(err)
	}
	order.Payments = existing
	outstanding := order.Total - order.PaymentsTotal(domain.PaymentStateAuthorized, domain.PaymentStateSettled)
	if outstanding <= 0 {
		return domain.Payment{}, fmt.Errorf("%w: order %s is already covered", ErrPaymentInvalidState, orderID)
	}

	handler, args, err := s.resolveHandler(ctx, methodCode)
	if err != nil {
		return domain.Payment{}, err
	}

	now := s.clock()
	payment := domain.Payment{
		ID:        s.newID(),
		OrderID:   orderID,
		Method:    methodCode,
		Amount:    outstanding,
		State:     domain.PaymentStateCreated,
		Metadata:  cloneStringMap(cmd.Metadata),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.payments.Insert(ctx, payment); err != nil {
		return domain.Payment{}, s.mapRepositoryError(err)
	}

	result, err := handler.CreatePayment(ctx, payments.CreateRequest{
		PaymentID:  payment.ID,
		OrderID:    order.ID,
		OrderCode:  order.Code,
		CustomerID: order.CustomerID,
		Currency:   order.CurrencyCode,
		Amount:     outstanding,
		Metadata:   cloneStringMap(cmd.Metadata),
	}, args)
	if err != nil {
		result = payments.Result{State: domain.PaymentStateError, ErrorMessage: err.Error()}
	}

	payment, err = s.applyResult(ctx, payment, result, cmd.ActorID)
	if err != nil {
		return domain.Payment{}, err
	}

	s.advanceOrder(ctx, order, payment, cmd.ActorID)
	return payment, nil
}

// SettlePayment captures an Authorized payment and settles the order once settled payments
// cover its total.
func (s *paymentService) SettlePayment(ctx context.Context, cmd SettlePaymentCommand) (domain.Payment, error) {
	paymentID := strings.TrimSpace(cmd.PaymentID)
	if paymentID == "" {
		return domain.Payment{}, fmt.Errorf("%w: payment id is required", ErrPaymentInvalidInput)
	}

	payment, err := s.payments.FindByID(ctx, paymentID)
	if err != nil {
		return domain.Payment{}, s.mapRepositoryError(err)
	}

	ctx, unlock := s.locks.Lock(ctx, payment.OrderID)
	defer unlock()

	// Reload under the lock; the payment may have moved while we waited.
	payment, err = s.payments.FindByID(ctx, paymentID)
	if err != nil {
		return domain.Payment{}, s.mapRepositoryError(err)
	}
	if !s.machine.CanTransition(payment.State, domain.PaymentStateSettled) {
		return domain.Payment{}, fmt.Errorf("%w: payment %s is %s", ErrPaymentInvalidState, paymentID, payment.State)
	}

	handler, args, err := s.resolveHandler(ctx, payment.Method)
	if err != nil {
		return domain.Payment{}, err
	}

	result, err := handler.SettlePayment(ctx, payment, args)
	if err != nil {
		result = payments.Result{State: domain.PaymentStateError, ErrorMessage: err.Error()}
	}
	payment, err = s.applyResult(ctx, payment, result, cmd.ActorID)
	if err != nil {
		return domain.Payment{}, err
	}

	order, err := s.orders.FindByID(ctx, payment.OrderID)
	if err != nil {
		s.logger(ctx, "payment.order.load.failed", map[string]any{
			"paymentId": payment.ID,
			"orderId":   payment.OrderID,
			"error":     err.Error(),
		})
		return payment, nil
	}
	s.advanceOrder(ctx, order, payment, cmd.ActorID)
	return payment, nil
}

func (s *paymentService) resolveHandler(ctx context.Context, methodCode string) (payments.Handler, configurable.Args, error) {
	method, err := s.methods.FindByCode(ctx, methodCode)
	if err != nil {
		return nil, configurable.Args{}, s.mapRepositoryError(err)
	}
	if !method.Enabled {
		return nil, configurable.Args{}, fmt.Errorf("%w: payment method %s is disabled", ErrPaymentInvalidInput, methodCode)
	}
	handler, args, err := s.handlers.Resolve(method.Handler)
	if err != nil {
		var coercion *configurable.ArgCoercionError
		switch {
		case errors.Is(err, configurable.ErrUnknownOperation):
			return nil, configurable.Args{}, fmt.Errorf("%w: %w: %w", ErrPaymentInvalidInput, payments.ErrUnsupportedHandler, err)
		case errors.As(err, &coercion):
			return nil, configurable.Args{}, fmt.Errorf("%w: %w", ErrPaymentInvalidInput, err)
		}
		return nil, configurable.Args{}, err
	}
	return handler, args, nil
}

// applyResult moves the payment to the state reported by the handler, persists it and publishes
// the transition.
func (s *paymentService) applyResult(ctx context.Context, payment domain.Payment, result payments.Result, actorID string) (domain.Payment, error) {
	from := payment.State
	if result.State != "" && result.State != from {
		if err := s.machine.TransitionTo(ctx, &payment.State, result.State, &payment); err != nil {
			var illegal *fsm.IllegalTransitionError[domain.PaymentState]
			if errors.As(err, &illegal) {
				return domain.Payment{}, fmt.Errorf("%w: %w", ErrPaymentInvalidState, err)
			}
			return domain.Payment{}, err
		}
	}
	if result.TransactionID != "" {
		payment.TransactionID = result.TransactionID
	}
	payment.ErrorMessage = result.ErrorMessage
	if len(result.Metadata) > 0 {
		if payment.Metadata == nil {
			payment.Metadata = make(map[string]string, len(result.Metadata))
		}
		maps.Copy(payment.Metadata, result.Metadata)
	}
	payment.UpdatedAt = s.clock()

	if err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		return s.payments.Update(txCtx, payment)
	}); err != nil {
		return domain.Payment{}, s.mapRepositoryError(err)
	}

	if payment.State != from {
		s.publishEvent(ctx, PaymentStateTransitionEvent{
			ID:         ulid.Make().String(),
			PaymentID:  payment.ID,
			OrderID:    payment.OrderID,
			Method:     payment.Method,
			Amount:     payment.Amount,
			FromState:  from,
			ToState:    payment.State,
			ActorID:    actorID,
			OccurredAt: payment.UpdatedAt,
		})
	}
	s.logger(ctx, "payment.updated", map[string]any{
		"paymentId": payment.ID,
		"orderId":   payment.OrderID,
		"from":      from,
		"to":        payment.State,
		"error":     payment.ErrorMessage,
	})
	return payment, nil
}

// advanceOrder moves the order forward when its payments now cover the total. Failures are
// logged; the payment itself is already recorded.
func (s *paymentService) advanceOrder(ctx context.Context, order domain.Order, payment domain.Payment, actorID string) {
	if payment.State != domain.PaymentStateAuthorized && payment.State != domain.PaymentStateSettled {
		return
	}
	all, err := s.payments.ListByOrder(ctx, order.ID)
	if err != nil {
		s.logger(ctx, "payment.order.payments.failed", map[string]any{"orderId": order.ID, "error": err.Error()})
		return
	}
	order.Payments = all

	var target domain.OrderState
	switch {
	case order.PaymentsTotal(domain.PaymentStateSettled) >= order.Total:
		target = domain.OrderStatePaymentSettled
	case order.PaymentsTotal(domain.PaymentStateAuthorized, domain.PaymentStateSettled) >= order.Total:
		target = domain.OrderStatePaymentAuthorized
	default:
		return
	}
	if order.State == target {
		return
	}

	if _, err := s.orderSvc.TransitionState(ctx, TransitionOrderCommand{
		OrderID: order.ID,
		Target:  target,
		ActorID: actorID,
	}); err != nil {
		s.logger(ctx, "payment.order.transition.failed", map[string]any{
			"orderId": order.ID,
			"target":  target,
			"error":   err.Error(),
		})
	}
}

func (s *paymentService) publishEvent(ctx context.Context, event PaymentStateTransitionEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishPaymentTransition(ctx, event); err != nil {
		s.logger(ctx, "payment.event.publish.failed", map[string]any{
			"payment": event.PaymentID,
			"to":      event.ToState,
			"error":   err.Error(),
		})
	}
}

func (s *paymentService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %w", ErrPaymentNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %w", ErrPaymentConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %w", ErrPaymentUnavailable, err)
		}
	}
	return err
}

func cloneStringMap(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	return maps.Clone(in)
}
