package di

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/hanko-field/orderengine/internal/domain"
	"github.com/hanko-field/orderengine/internal/fsm"
	"github.com/hanko-field/orderengine/internal/payments"
	"github.com/hanko-field/orderengine/internal/platform/config"
	"github.com/hanko-field/orderengine/internal/platform/idempotency"
	"github.com/hanko-field/orderengine/internal/platform/observability"
	"github.com/hanko-field/orderengine/internal/pricing"
	"github.com/hanko-field/orderengine/internal/repositories"
	"github.com/hanko-field/orderengine/internal/services"
	"github.com/hanko-field/orderengine/internal/shipping"
)

const meterName = "github.com/hanko-field/orderengine"

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Orders    services.OrderService
	Payments  services.PaymentService
	Reference services.ReferenceDataService
	System    services.SystemService
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
	Idempotency  idempotency.Store

	closers []func(context.Context) error
}

// Option customises NewContainer.
type Option func(*containerOptions)

type containerOptions struct {
	logger          *zap.Logger
	meter           metric.Meter
	clock           func() time.Time
	events          services.EventPublisher
	paymentHandlers []payments.Handler
	healthChecks    []repositories.DependencyCheck
	idempotency     idempotency.Store
	closers         []func(context.Context) error
}

// WithLogger sets the logger services report events through.
func WithLogger(logger *zap.Logger) Option {
	return func(o *containerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMeter overrides the meter used for order metrics.
func WithMeter(meter metric.Meter) Option {
	return func(o *containerOptions) {
		o.meter = meter
	}
}

// WithClock overrides the clock shared by every service.
func WithClock(clock func() time.Time) Option {
	return func(o *containerOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithEventPublisher sets where transition events are published. Without one events are dropped.
func WithEventPublisher(publisher services.EventPublisher) Option {
	return func(o *containerOptions) {
		o.events = publisher
	}
}

// WithPaymentHandlers registers payment handlers in addition to the manual handler.
func WithPaymentHandlers(handlers ...payments.Handler) Option {
	return func(o *containerOptions) {
		o.paymentHandlers = append(o.paymentHandlers, handlers...)
	}
}

// WithHealthChecks adds dependency probes reported by the readiness endpoint.
func WithHealthChecks(checks ...repositories.DependencyCheck) Option {
	return func(o *containerOptions) {
		o.healthChecks = append(o.healthChecks, checks...)
	}
}

// WithIdempotencyStore sets the store backing the payment idempotency middleware.
func WithIdempotencyStore(store idempotency.Store) Option {
	return func(o *containerOptions) {
		o.idempotency = store
	}
}

// WithCloser registers a cleanup hook run by Close after the registry is closed.
func WithCloser(fn func(context.Context) error) Option {
	return func(o *containerOptions) {
		if fn != nil {
			o.closers = append(o.closers, fn)
		}
	}
}

// NewContainer constructs the runtime dependencies on top of a repository registry. Production
// wiring goes through Bootstrap, while tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, opts ...Option) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}
	options := containerOptions{
		logger: zap.NewNop(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	if options.meter == nil {
		options.meter = otel.GetMeterProvider().Meter(meterName)
	}
	if options.idempotency == nil {
		options.idempotency = idempotency.NewMemoryStore()
	}

	svc, err := buildServices(ctx, reg, cfg, options)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
		Idempotency:  options.idempotency,
		closers:      options.closers,
	}, nil
}

// Close releases resources such as repository clients, publishers, or database pools.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.Repositories != nil {
		if err := c.Repositories.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func buildServices(_ context.Context, reg repositories.Registry, cfg config.Config, opts containerOptions) (Services, error) {
	var svc Services

	reference, err := services.NewReferenceDataService(services.ReferenceDataDeps{
		TaxRates:        reg.TaxRates(),
		Zones:           reg.Zones(),
		Promotions:      reg.Promotions(),
		ShippingMethods: reg.ShippingMethods(),
		TTL:             cfg.Cache.TTL,
		Clock:           opts.clock,
		Logger:          observability.EventLogger(opts.logger.Named("reference")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build reference data service: %w", err)
	}
	svc.Reference = reference

	quoter, err := shipping.NewEvaluator(shipping.EvaluatorDeps{Methods: reference})
	if err != nil {
		return Services{}, fmt.Errorf("build shipping evaluator: %w", err)
	}
	calculator, err := pricing.NewCalculator(pricing.CalculatorDeps{
		TaxRates: reference,
		Shipping: quoter,
		Clock:    opts.clock,
		Logger:   observability.EventLogger(opts.logger.Named("pricing")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build pricing calculator: %w", err)
	}

	transitions, err := orderTransitions(cfg.Orders.ExtraTransitions)
	if err != nil {
		return Services{}, err
	}
	orderLogger := observability.EventLogger(opts.logger.Named("orders"))
	locks := services.NewOrderLocks()

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:         reg.Orders(),
		Payments:       reg.Payments(),
		CustomerGroups: reg.CustomerGroups(),
		PromotionUsage: reg.PromotionUsage(),
		ReferenceData:  reference,
		Calculator:     calculator,
		Channel:        cfg.Channel.Domain(),
		Machine:        services.NewOrderMachine(transitions, orderLogger),
		Locks:          locks,
		UnitOfWork:     reg,
		Clock:          opts.clock,
		Events:         opts.events,
		Logger:         orderLogger,
		Meter:          opts.meter,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	handlers, err := payments.NewRegistry(append([]payments.Handler{payments.ManualHandler{}}, opts.paymentHandlers...)...)
	if err != nil {
		return Services{}, fmt.Errorf("build payment handler registry: %w", err)
	}
	paymentLogger := observability.EventLogger(opts.logger.Named("payments"))
	paymentSvc, err := services.NewPaymentService(services.PaymentServiceDeps{
		Orders:         reg.Orders(),
		Payments:       reg.Payments(),
		PaymentMethods: reg.PaymentMethods(),
		Handlers:       handlers,
		OrderService:   orderSvc,
		Machine:        services.NewPaymentMachine(paymentLogger),
		Locks:          locks,
		UnitOfWork:     reg,
		Clock:          opts.clock,
		Events:         opts.events,
		Logger:         paymentLogger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build payment service: %w", err)
	}
	svc.Payments = paymentSvc

	healthRepo, err := repositories.NewDependencyHealthRepository(opts.healthChecks, opts.clock)
	if err != nil {
		return Services{}, fmt.Errorf("build health repository: %w", err)
	}
	systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: healthRepo,
		Clock:            opts.clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build system service: %w", err)
	}
	svc.System = systemSvc

	return svc, nil
}

// orderTransitions extends the built-in order lifecycle with configured transitions. Configured
// entries can only add edges; a source state listed with no targets is rejected.
func orderTransitions(extra map[string][]string) (fsm.Transitions[domain.OrderState], error) {
	if len(extra) == 0 {
		return services.DefaultOrderTransitions, nil
	}
	converted := make(fsm.Transitions[domain.OrderState], len(extra))
	for from, targets := range extra {
		from = strings.TrimSpace(from)
		if len(targets) == 0 {
			return nil, fmt.Errorf("order transitions: state %q lists no targets", from)
		}
		states := make([]domain.OrderState, 0, len(targets))
		for _, target := range targets {
			states = append(states, domain.OrderState(strings.TrimSpace(target)))
		}
		converted[domain.OrderState(from)] = states
	}
	return fsm.Merge(services.DefaultOrderTransitions, converted), nil
}
