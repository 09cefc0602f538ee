package firestore

import (
	"context"
	"errors"
	"fmt"

	pfirestore "github.com/hanko-field/orderengine/internal/platform/firestore"
	"github.com/hanko-field/orderengine/internal/repositories"
)

// Registry bundles the Firestore repositories behind repositories.Registry and runs units of work
// as Firestore transactions.
type Registry struct {
	provider *pfirestore.Provider
	uow      *pfirestore.UnitOfWork

	orders          *OrderRepository
	payments        *PaymentRepository
	paymentMethods  *PaymentMethodRepository
	promotions      *PromotionRepository
	promotionUsage  *PromotionUsageRepository
	taxRates        repositories.TaxRateRepository
	zones           repositories.ZoneRepository
	shippingMethods *ShippingMethodRepository
	customerGroups  *CustomerGroupRepository
}

var _ repositories.Registry = (*Registry)(nil)

// RegistryOption customises the registry.
type RegistryOption func(*Registry)

// WithTaxData replaces the Firestore tax rate and zone repositories, e.g. with Postgres ones.
func WithTaxData(rates repositories.TaxRateRepository, zones repositories.ZoneRepository) RegistryOption {
	return func(r *Registry) {
		if rates != nil {
			r.taxRates = rates
		}
		if zones != nil {
			r.zones = zones
		}
	}
}

// NewRegistry constructs every Firestore repository on the shared provider.
func NewRegistry(provider *pfirestore.Provider, opts ...RegistryOption) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry requires provider")
	}
	reg := &Registry{provider: provider, uow: pfirestore.NewUnitOfWork(provider)}

	var err error
	build := func(name string, fn func() error) {
		if err != nil {
			return
		}
		if buildErr := fn(); buildErr != nil {
			err = fmt.Errorf("build %s repository: %w", name, buildErr)
		}
	}
	build("order", func() (e error) { reg.orders, e = NewOrderRepository(provider); return })
	build("payment", func() (e error) { reg.payments, e = NewPaymentRepository(provider); return })
	build("payment method", func() (e error) { reg.paymentMethods, e = NewPaymentMethodRepository(provider); return })
	build("promotion", func() (e error) { reg.promotions, e = NewPromotionRepository(provider); return })
	build("promotion usage", func() (e error) { reg.promotionUsage, e = NewPromotionUsageRepository(provider); return })
	build("tax rate", func() (e error) { reg.taxRates, e = NewTaxRateRepository(provider); return })
	build("zone", func() (e error) { reg.zones, e = NewZoneRepository(provider); return })
	build("shipping method", func() (e error) { reg.shippingMethods, e = NewShippingMethodRepository(provider); return })
	build("customer group", func() (e error) { reg.customerGroups, e = NewCustomerGroupRepository(provider); return })
	if err != nil {
		return nil, err
	}

	for _, opt := range opts {
		if opt != nil {
			opt(reg)
		}
	}
	return reg, nil
}

// Close releases the Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	return r.provider.Close(ctx)
}

// RunInTx runs fn inside a Firestore transaction.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.uow.RunInTx(ctx, fn)
}

func (r *Registry) Orders() repositories.OrderRepository                   { return r.orders }
func (r *Registry) Payments() repositories.PaymentRepository               { return r.payments }
func (r *Registry) PaymentMethods() repositories.PaymentMethodRepository   { return r.paymentMethods }
func (r *Registry) Promotions() repositories.PromotionRepository           { return r.promotions }
func (r *Registry) PromotionUsage() repositories.PromotionUsageRepository  { return r.promotionUsage }
func (r *Registry) TaxRates() repositories.TaxRateRepository               { return r.taxRates }
func (r *Registry) Zones() repositories.ZoneRepository                     { return r.zones }
func (r *Registry) ShippingMethods() repositories.ShippingMethodRepository { return r.shippingMethods }
func (r *Registry) CustomerGroups() repositories.CustomerGroupRepository   { return r.customerGroups }
