package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hanko-field/orderengine/internal/domain"
	"github.com/hanko-field/orderengine/internal/payments"
	"github.com/hanko-field/orderengine/internal/pricing"
	"github.com/hanko-field/orderengine/internal/repositories"
	"github.com/hanko-field/orderengine/internal/shipping"
)

type fakeRepositoryError struct {
	msg         string
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e fakeRepositoryError) Error() string       { return e.msg }
func (e fakeRepositoryError) IsNotFound() bool    { return e.notFound }
func (e fakeRepositoryError) IsConflict() bool    { return e.conflict }
func (e fakeRepositoryError) IsUnavailable() bool { return e.unavailable }

var _ repositories.RepositoryError = fakeRepositoryError{}

// memoryStore backs every repository interface the services need.
type memoryStore struct {
	mu             sync.Mutex
	orders         map[string]domain.Order
	payments       map[string]domain.Payment
	methods        map[string]domain.PaymentMethod
	promotions     []domain.Promotion
	rates          []domain.TaxRate
	zones          []domain.Zone
	shipping       []domain.ShippingMethod
	groups         map[string][]string
	usage          map[string]map[string]int
	orderUpdates   int
	updateErr      error
	promotionLoads int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		orders:   map[string]domain.Order{},
		payments: map[string]domain.Payment{},
		methods:  map[string]domain.PaymentMethod{},
		groups:   map[string][]string{},
		usage:    map[string]map[string]int{},
	}
}

type storeOrders struct{ s *memoryStore }

func (r storeOrders) Insert(_ context.Context, order domain.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.orders[order.ID]; ok {
		return fakeRepositoryError{msg: "exists", conflict: true}
	}
	r.s.orders[order.ID] = order.Clone()
	return nil
}

func (r storeOrders) Update(_ context.Context, order domain.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.updateErr != nil {
		return r.s.updateErr
	}
	r.s.orderUpdates++
	stored := order.Clone()
	stored.Payments = nil
	r.s.orders[order.ID] = stored
	return nil
}

func (r storeOrders) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	order, ok := r.s.orders[orderID]
	if !ok {
		return domain.Order{}, fakeRepositoryError{msg: "order " + orderID + " missing", notFound: true}
	}
	return order.Clone(), nil
}

type storePayments struct{ s *memoryStore }

func (r storePayments) Insert(_ context.Context, payment domain.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.payments[payment.ID] = payment
	return nil
}

func (r storePayments) Update(_ context.Context, payment domain.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.payments[payment.ID] = payment
	return nil
}

func (r storePayments) FindByID(_ context.Context, paymentID string) (domain.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	payment, ok := r.s.payments[paymentID]
	if !ok {
		return domain.Payment{}, fakeRepositoryError{msg: "payment missing", notFound: true}
	}
	return payment, nil
}

func (r storePayments) ListByOrder(_ context.Context, orderID string) ([]domain.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Payment
	for _, payment := range r.s.payments {
		if payment.OrderID == orderID {
			out = append(out, payment)
		}
	}
	return out, nil
}

type storeMethods struct{ s *memoryStore }

func (r storeMethods) FindByCode(_ context.Context, code string) (domain.PaymentMethod, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	method, ok := r.s.methods[code]
	if !ok {
		return domain.PaymentMethod{}, fakeRepositoryError{msg: "method missing", notFound: true}
	}
	return method, nil
}

type storeReference struct{ s *memoryStore }

func (r storeReference) ListEnabled(context.Context) ([]domain.Promotion, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.promotionLoads++
	return append([]domain.Promotion(nil), r.s.promotions...), nil
}

type storeRates struct{ s *memoryStore }

func (r storeRates) ListEnabled(context.Context) ([]domain.TaxRate, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]domain.TaxRate(nil), r.s.rates...), nil
}

type storeZones struct{ s *memoryStore }

func (r storeZones) List(context.Context) ([]domain.Zone, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]domain.Zone(nil), r.s.zones...), nil
}

type storeShipping struct{ s *memoryStore }

func (r storeShipping) List(context.Context) ([]domain.ShippingMethod, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]domain.ShippingMethod(nil), r.s.shipping...), nil
}

type storeGroups struct{ s *memoryStore }

func (r storeGroups) GroupIDsForCustomer(_ context.Context, customerID string) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.groups[customerID], nil
}

type storeUsage struct{ s *memoryStore }

func (r storeUsage) CountsForCustomer(_ context.Context, customerID string) (map[string]int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := map[string]int{}
	for promotionID, byCustomer := range r.s.usage {
		if n := byCustomer[customerID]; n > 0 {
			out[promotionID] = n
		}
	}
	return out, nil
}

func (r storeUsage) Increment(_ context.Context, promotionID, customerID string, _ time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.usage[promotionID] == nil {
		r.s.usage[promotionID] = map[string]int{}
	}
	r.s.usage[promotionID][customerID]++
	return nil
}

type recordingPublisher struct {
	mu       sync.Mutex
	orders   []OrderStateTransitionEvent
	payments []PaymentStateTransitionEvent
	err      error
}

func (p *recordingPublisher) PublishOrderTransition(_ context.Context, event OrderStateTransitionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orders = append(p.orders, event)
	return p.err
}

func (p *recordingPublisher) PublishPaymentTransition(_ context.Context, event PaymentStateTransitionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payments = append(p.payments, event)
	return p.err
}

var (
	fixedNow    = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	testChannel = domain.Channel{Code: "web", CurrencyCode: "GBP", DefaultTaxZoneID: "uk"}
)

func seedStore() *memoryStore {
	store := newMemoryStore()
	store.rates = []domain.TaxRate{
		{ID: "uk-standard", Value: 20, Enabled: true, CategoryID: "standard", ZoneID: "uk"},
		{ID: "de-standard", Value: 19, Enabled: true, CategoryID: "standard", ZoneID: "eu"},
	}
	store.zones = []domain.Zone{
		{ID: "uk", Members: []string{"GB"}},
		{ID: "eu", Members: []string{"DE", "FR"}},
	}
	store.shipping = []domain.ShippingMethod{{
		ID:          "standard",
		Code:        "standard",
		Description: "Standard delivery",
		Enabled:     true,
		Checker:     domain.ConfigurableOperation{Code: shipping.CodeDefaultEligibility},
		Calculator: domain.ConfigurableOperation{Code: shipping.CodeDefaultCalculator, Args: []domain.ConfigArg{
			{Name: "rate", Value: "500"},
			{Name: "taxRate", Value: "20"},
		}},
	}}
	store.methods["manual"] = domain.PaymentMethod{
		ID: "pm-manual", Code: "manual", Enabled: true,
		Handler: domain.ConfigurableOperation{Code: payments.CodeManual},
	}
	store.methods["instant"] = domain.PaymentMethod{
		ID: "pm-instant", Code: "instant", Enabled: true,
		Handler: domain.ConfigurableOperation{Code: payments.CodeManual, Args: []domain.ConfigArg{{Name: "automaticSettle", Value: "true"}}},
	}
	store.orders["o1"] = domain.Order{
		ID:           "o1",
		Code:         "ORD-1",
		CustomerID:   "c1",
		ChannelCode:  "web",
		State:        domain.OrderStateAddingItems,
		Active:       true,
		CurrencyCode: "GBP",
		Lines: []domain.OrderLine{{
			ID: "l1",
			ProductVariant: domain.ProductVariant{
				ID:          "v1",
				TaxCategory: domain.TaxCategory{ID: "standard"},
				Prices:      []domain.ChannelPrice{{ChannelCode: "web", Price: 1000}},
			},
			Items: []domain.OrderItem{{ID: "i1"}, {ID: "i2"}},
		}},
		ShippingAddress: &domain.Address{Country: "GB"},
	}
	return store
}

type harness struct {
	store     *memoryStore
	events    *recordingPublisher
	reference ReferenceDataService
	orders    *orderService
	payments  PaymentService
}

func newHarness(t *testing.T, store *memoryStore) *harness {
	t.Helper()
	events := &recordingPublisher{}
	reference, err := NewReferenceDataService(ReferenceDataDeps{
		TaxRates:        storeRates{store},
		Zones:           storeZones{store},
		Promotions:      storeReference{store},
		ShippingMethods: storeShipping{store},
		TTL:             time.Minute,
		Clock:           func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("NewReferenceDataService: %v", err)
	}
	quoter, err := shipping.NewEvaluator(shipping.EvaluatorDeps{Methods: reference.(shipping.MethodSource)})
	if err != nil {
		t.Fatalf("shipping.NewEvaluator: %v", err)
	}
	calculator, err := pricing.NewCalculator(pricing.CalculatorDeps{
		TaxRates: reference.(pricing.TaxRateSource),
		Shipping: quoter,
		Clock:    func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("pricing.NewCalculator: %v", err)
	}
	locks := NewOrderLocks()
	orders, err := newOrderService(OrderServiceDeps{
		Orders:         storeOrders{store},
		Payments:       storePayments{store},
		CustomerGroups: storeGroups{store},
		PromotionUsage: storeUsage{store},
		ReferenceData:  reference,
		Calculator:     calculator,
		Channel:        testChannel,
		Locks:          locks,
		Clock:          func() time.Time { return fixedNow },
		IDGenerator:    sequentialIDs("evt"),
		Events:         events,
	})
	if err != nil {
		t.Fatalf("newOrderService: %v", err)
	}
	handlers, err := payments.NewRegistry(payments.ManualHandler{})
	if err != nil {
		t.Fatalf("payments.NewRegistry: %v", err)
	}
	paymentSvc, err := NewPaymentService(PaymentServiceDeps{
		Orders:         storeOrders{store},
		Payments:       storePayments{store},
		PaymentMethods: storeMethods{store},
		Handlers:       handlers,
		OrderService:   orders,
		Locks:          locks,
		Clock:          func() time.Time { return fixedNow },
		IDGenerator:    sequentialIDs("pay"),
		Events:         events,
	})
	if err != nil {
		t.Fatalf("NewPaymentService: %v", err)
	}
	return &harness{store: store, events: events, reference: reference, orders: orders, payments: paymentSvc}
}

func sequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s_%d", prefix, n)
	}
}
