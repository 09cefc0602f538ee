package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/hanko-field/orderengine/internal/configurable"
	"github.com/hanko-field/orderengine/internal/domain"
	"github.com/hanko-field/orderengine/internal/fsm"
	"github.com/hanko-field/orderengine/internal/pricing"
	"github.com/hanko-field/orderengine/internal/promotions"
	"github.com/hanko-field/orderengine/internal/repositories"
	"github.com/hanko-field/orderengine/internal/tax"
)

const instrumentationName = "github.com/hanko-field/orderengine/internal/services"

var tracer = otel.Tracer(instrumentationName)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data or the order cannot be priced.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates an invalid state transition or a mutation of a closed order.
	ErrOrderInvalidState = errors.New("order: invalid state transition")
	// ErrOrderConflict indicates optimistic concurrency conflicts or duplicates.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderUnavailable indicates a dependency needed to price or persist the order failed.
	ErrOrderUnavailable = errors.New("order: dependency unavailable")
)

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders         repositories.OrderRepository
	Payments       repositories.PaymentRepository
	CustomerGroups repositories.CustomerGroupRepository
	PromotionUsage repositories.PromotionUsageRepository
	ReferenceData  ReferenceDataService
	Calculator     *pricing.Calculator
	Channel        domain.Channel
	Machine        *OrderMachine
	Locks          *OrderLocks
	UnitOfWork     repositories.UnitOfWork
	Clock          func() time.Time
	IDGenerator    func() string
	Events         EventPublisher
	Logger         func(ctx context.Context, event string, fields map[string]any)
	Meter          metric.Meter
}

type orderService struct {
	orders         repositories.OrderRepository
	payments       repositories.PaymentRepository
	customerGroups repositories.CustomerGroupRepository
	usage          repositories.PromotionUsageRepository
	reference      ReferenceDataService
	calculator     *pricing.Calculator
	channel        domain.Channel
	machine        *OrderMachine
	locks          *OrderLocks
	unitOfWork     repositories.UnitOfWork
	clock          func() time.Time
	newID          func() string
	events         EventPublisher
	logger         func(context.Context, string, map[string]any)
	latency        metric.Float64Histogram
	transitions    metric.Int64Counter
}

var _ OrderService = (*orderService)(nil)

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	svc, err := newOrderService(deps)
	if err != nil {
		return nil, err
	}
	return svc, nil
}

func newOrderService(deps OrderServiceDeps) (*orderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.ReferenceData == nil {
		return nil, errors.New("order service: reference data is required")
	}
	if deps.Calculator == nil {
		return nil, errors.New("order service: pricing calculator is required")
	}
	if strings.TrimSpace(deps.Channel.Code) == "" {
		return nil, errors.New("order service: channel code is required")
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
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	machine := deps.Machine
	if machine == nil {
		machine = NewOrderMachine(nil, logger)
	}

	locks := deps.Locks
	if locks == nil {
		locks = NewOrderLocks()
	}

	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(instrumentationName)
	}
	latency, err := meter.Float64Histogram(
		"orderengine.recalculate.latency",
		metric.WithDescription("Order recalculation latency"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("order service: create latency histogram: %w", err)
	}
	transitions, err := meter.Int64Counter(
		"orderengine.transitions",
		metric.WithDescription("Order state transitions by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("order service: create transition counter: %w", err)
	}

	return &orderService{
		orders:         deps.Orders,
		payments:       deps.Payments,
		customerGroups: deps.CustomerGroups,
		usage:          deps.PromotionUsage,
		reference:      deps.ReferenceData,
		calculator:     deps.Calculator,
		channel:        deps.Channel,
		machine:        machine,
		locks:          locks,
		unitOfWork:     unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:       idGen,
		events:      deps.Events,
		logger:      logger,
		latency:     latency,
		transitions: transitions,
	}, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	return s.loadOrder(ctx, orderID)
}

// Recalculate reprices the order from scratch and persists the result. Closed orders cannot be
// repriced.
func (s *orderService) Recalculate(ctx context.Context, cmd RecalculateOrderCommand) (order domain.Order, err error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	ctx, span := tracer.Start(ctx, "OrderService.Recalculate", trace.WithAttributes(attribute.String("order.id", orderID)))
	started := time.Now()
	defer func() {
		s.latency.Record(ctx, float64(time.Since(started).Microseconds())/1000,
			metric.WithAttributes(attribute.Bool("success", err == nil)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	ctx, unlock := s.locks.Lock(ctx, orderID)
	defer unlock()

	order, err = s.loadOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !isOpen(order.State) {
		return domain.Order{}, fmt.Errorf("%w: order %s is %s and cannot be repriced", ErrOrderInvalidState, orderID, order.State)
	}

	if cmd.ShippingMethodID != nil {
		order.ShippingMethodID = strings.TrimSpace(*cmd.ShippingMethodID)
	}
	if cmd.CouponCodes != nil {
		order.CouponCodes = normalizeCoupons(cmd.CouponCodes)
	}

	if err := s.price(ctx, &order); err != nil {
		return domain.Order{}, err
	}
	order.UpdatedAt = s.clock()

	if err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		return s.orders.Update(txCtx, order)
	}); err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}

	span.SetAttributes(attribute.Int64("order.total", order.Total))
	s.logger(ctx, "order.recalculated", map[string]any{
		"orderId":  order.ID,
		"actor":    cmd.ActorID,
		"subTotal": order.SubTotal,
		"shipping": order.ShippingWithTax,
		"total":    order.Total,
	})
	return order, nil
}

// TransitionState moves the order through the state machine, persists it and publishes an event.
func (s *orderService) TransitionState(ctx context.Context, cmd TransitionOrderCommand) (domain.Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	target := domain.OrderState(strings.TrimSpace(string(cmd.Target)))
	if target == "" {
		return domain.Order{}, fmt.Errorf("%w: target state is required", ErrOrderInvalidInput)
	}

	ctx, span := tracer.Start(ctx, "OrderService.TransitionState", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.String("order.target", string(target)),
	))
	defer span.End()

	ctx, unlock := s.locks.Lock(ctx, orderID)
	defer unlock()

	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if err := s.attachPayments(ctx, &order); err != nil {
		return domain.Order{}, err
	}

	from := order.State
	if err := s.machine.TransitionTo(ctx, &order.State, target, &order); err != nil {
		s.countTransition(ctx, from, target, false)
		span.RecordError(err)
		return domain.Order{}, mapTransitionError(err)
	}
	order.UpdatedAt = s.clock()

	if err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.Update(txCtx, order); err != nil {
			return err
		}
		if closesOrder(target) && !closesOrder(from) {
			return s.recordPromotionUsage(txCtx, order)
		}
		return nil
	}); err != nil {
		s.countTransition(ctx, from, target, false)
		return domain.Order{}, s.mapRepositoryError(err)
	}
	s.countTransition(ctx, from, target, true)

	s.publishEvent(ctx, OrderStateTransitionEvent{
		ID:         s.newID(),
		OrderID:    order.ID,
		OrderCode:  order.Code,
		FromState:  from,
		ToState:    order.State,
		ActorID:    cmd.ActorID,
		OccurredAt: order.UpdatedAt,
	})
	s.logger(ctx, "order.transitioned", map[string]any{
		"orderId": order.ID,
		"from":    from,
		"to":      order.State,
		"actor":   cmd.ActorID,
	})
	return order, nil
}

func (s *orderService) NextStates(ctx context.Context, orderID string) ([]domain.OrderState, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.machine.NextStates(order.State), nil
}

// price resolves zone, groups, usage and promotions, then runs the calculator on order.
func (s *orderService) price(ctx context.Context, order *domain.Order) error {
	zones, err := s.reference.Zones(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrOrderUnavailable, err)
	}
	promos, err := s.reference.ActivePromotions(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrOrderUnavailable, err)
	}

	pctx := pricing.Context{
		Channel:         s.channel,
		ActiveTaxZoneID: tax.ActiveZoneID(zones, order.ShippingAddress, s.channel.DefaultTaxZoneID),
		Now:             s.clock(),
	}
	if customerID := strings.TrimSpace(order.CustomerID); customerID != "" {
		if s.customerGroups != nil {
			groups, err := s.customerGroups.GroupIDsForCustomer(ctx, customerID)
			if err != nil {
				return s.mapRepositoryError(err)
			}
			pctx.CustomerGroupIDs = groups
		}
		if s.usage != nil {
			usage, err := s.usage.CountsForCustomer(ctx, customerID)
			if err != nil {
				return s.mapRepositoryError(err)
			}
			pctx.PromotionUsage = usage
		}
	}

	if _, err := s.calculator.ApplyTaxesAndPromotions(ctx, pctx, order, promos); err != nil {
		return mapPricingError(err)
	}
	return nil
}

func (s *orderService) loadOrder(ctx context.Context, orderID string) (domain.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

// attachPayments hydrates order.Payments so transition guards can compare them with the total.
func (s *orderService) attachPayments(ctx context.Context, order *domain.Order) error {
	if s.payments == nil {
		return nil
	}
	payments, err := s.payments.ListByOrder(ctx, order.ID)
	if err != nil {
		return s.mapRepositoryError(err)
	}
	order.Payments = payments
	return nil
}

func (s *orderService) recordPromotionUsage(ctx context.Context, order domain.Order) error {
	if s.usage == nil || strings.TrimSpace(order.CustomerID) == "" {
		return nil
	}
	for _, promotionID := range order.AppliedPromotionIDs() {
		if err := s.usage.Increment(ctx, promotionID, order.CustomerID, order.UpdatedAt); err != nil {
			return err
		}
	}
	return nil
}

func (s *orderService) countTransition(ctx context.Context, from, to domain.OrderState, ok bool) {
	s.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(from)),
		attribute.String("to", string(to)),
		attribute.Bool("success", ok),
	))
}

func (s *orderService) publishEvent(ctx context.Context, event OrderStateTransitionEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderTransition(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"order": event.OrderID,
			"from":  event.FromState,
			"to":    event.ToState,
			"error": err.Error(),
		})
	}
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %w", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %w", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %w", ErrOrderUnavailable, err)
		}
	}
	return err
}

func mapTransitionError(err error) error {
	var illegal *fsm.IllegalTransitionError[domain.OrderState]
	if errors.As(err, &illegal) {
		return fmt.Errorf("%w: %w", ErrOrderInvalidState, err)
	}
	return err
}

func mapPricingError(err error) error {
	var coercion *configurable.ArgCoercionError
	switch {
	case errors.As(err, &coercion),
		errors.Is(err, pricing.ErrPricingInvalidInput),
		errors.Is(err, domain.ErrNoPriceForChannel),
		errors.Is(err, configurable.ErrUnknownOperation),
		errors.Is(err, promotions.ErrUnsupportedAction):
		return fmt.Errorf("%w: %w", ErrOrderInvalidInput, err)
	case errors.Is(err, pricing.ErrTaxRatesUnavailable),
		errors.Is(err, pricing.ErrShippingUnavailable):
		return fmt.Errorf("%w: %w", ErrOrderUnavailable, err)
	}
	return err
}

func isOpen(state domain.OrderState) bool {
	return state == domain.OrderStateAddingItems || state == domain.OrderStateArrangingPayment
}

func closesOrder(state domain.OrderState) bool {
	return state == domain.OrderStatePaymentAuthorized || state == domain.OrderStatePaymentSettled
}

func normalizeCoupons(codes []string) []string {
	cleaned := lo.FilterMap(codes, func(code string, _ int) (string, bool) {
		code = strings.TrimSpace(code)
		return code, code != ""
	})
	return lo.Uniq(cleaned)
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}
