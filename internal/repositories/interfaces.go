package repositories

import (
	"context"
	"time"

	"github.com/hanko-field/orderengine/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	Payments() PaymentRepository
	PaymentMethods() PaymentMethodRepository
	Promotions() PromotionRepository
	PromotionUsage() PromotionUsageRepository
	TaxRates() TaxRateRepository
	Zones() ZoneRepository
	ShippingMethods() ShippingMethodRepository
	CustomerGroups() CustomerGroupRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderRepository persists order aggregates including their lines, items and adjustments.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
}

// PaymentRepository persists payment attempts. Payments reference their order by ID.
type PaymentRepository interface {
	Insert(ctx context.Context, payment domain.Payment) error
	Update(ctx context.Context, payment domain.Payment) error
	FindByID(ctx context.Context, paymentID string) (domain.Payment, error)
	ListByOrder(ctx context.Context, orderID string) ([]domain.Payment, error)
}

// PaymentMethodRepository looks up configured payment methods by code.
type PaymentMethodRepository interface {
	FindByCode(ctx context.Context, code string) (domain.PaymentMethod, error)
}

// PromotionRepository lists promotions that are enabled.
type PromotionRepository interface {
	ListEnabled(ctx context.Context) ([]domain.Promotion, error)
}

// PromotionUsageRepository tracks how often customers used each promotion.
type PromotionUsageRepository interface {
	CountsForCustomer(ctx context.Context, customerID string) (map[string]int, error)
	Increment(ctx context.Context, promotionID, customerID string, usedAt time.Time) error
}

// TaxRateRepository lists enabled tax rates. Implementations exist for Firestore and Postgres.
type TaxRateRepository interface {
	ListEnabled(ctx context.Context) ([]domain.TaxRate, error)
}

// ZoneRepository lists tax zones.
type ZoneRepository interface {
	List(ctx context.Context) ([]domain.Zone, error)
}

// ShippingMethodRepository lists shipping methods, enabled or not.
type ShippingMethodRepository interface {
	List(ctx context.Context) ([]domain.ShippingMethod, error)
}

// CustomerGroupRepository resolves customer group membership.
type CustomerGroupRepository interface {
	GroupIDsForCustomer(ctx context.Context, customerID string) ([]string, error)
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
