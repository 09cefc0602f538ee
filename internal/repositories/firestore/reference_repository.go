package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"
	"github.com/samber/lo"

	domain "github.com/hanko-field/orderengine/internal/domain"
	pfirestore "github.com/hanko-field/orderengine/internal/platform/firestore"
	"github.com/hanko-field/orderengine/internal/repositories"
)

const (
	taxRatesCollection        = "taxRates"
	zonesCollection           = "zones"
	shippingMethodsCollection = "shippingMethods"
	customerGroupsCollection  = "customerGroups"
)

// TaxRateRepository reads tax rates from Firestore.
type TaxRateRepository struct {
	rates *pfirestore.Collection[taxRateDocument]
}

var _ repositories.TaxRateRepository = (*TaxRateRepository)(nil)

// NewTaxRateRepository constructs a Firestore-backed tax rate repository.
func NewTaxRateRepository(provider *pfirestore.Provider) (*TaxRateRepository, error) {
	if provider == nil {
		return nil, errors.New("tax rate repository requires firestore provider")
	}
	return &TaxRateRepository{rates: pfirestore.NewCollection[taxRateDocument](provider, taxRatesCollection)}, nil
}

// ListEnabled returns the enabled tax rates.
func (r *TaxRateRepository) ListEnabled(ctx context.Context) ([]domain.TaxRate, error) {
	docs, err := r.rates.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("enabled", "==", true)
	})
	if err != nil {
		return nil, err
	}
	return lo.Map(docs, func(d pfirestore.Document[taxRateDocument], _ int) domain.TaxRate {
		return domain.TaxRate{
			ID:              d.ID,
			Name:            d.Data.Name,
			Value:           d.Data.Value,
			Enabled:         d.Data.Enabled,
			CategoryID:      d.Data.CategoryID,
			ZoneID:          d.Data.ZoneID,
			CustomerGroupID: d.Data.CustomerGroupID,
		}
	}), nil
}

type taxRateDocument struct {
	Name            string  `firestore:"name"`
	Value           float64 `firestore:"value"`
	Enabled         bool    `firestore:"enabled"`
	CategoryID      string  `firestore:"categoryId"`
	ZoneID          string  `firestore:"zoneId"`
	CustomerGroupID string  `firestore:"customerGroupId,omitempty"`
}

// ZoneRepository reads tax zones from Firestore.
type ZoneRepository struct {
	zones *pfirestore.Collection[zoneDocument]
}

var _ repositories.ZoneRepository = (*ZoneRepository)(nil)

// NewZoneRepository constructs a Firestore-backed zone repository.
func NewZoneRepository(provider *pfirestore.Provider) (*ZoneRepository, error) {
	if provider == nil {
		return nil, errors.New("zone repository requires firestore provider")
	}
	return &ZoneRepository{zones: pfirestore.NewCollection[zoneDocument](provider, zonesCollection)}, nil
}

// List returns all zones with member country codes upper-cased.
func (r *ZoneRepository) List(ctx context.Context) ([]domain.Zone, error) {
	docs, err := r.zones.Query(ctx, nil)
	if err != nil {
		return nil, err
	}
	return lo.Map(docs, func(d pfirestore.Document[zoneDocument], _ int) domain.Zone {
		return domain.Zone{
			ID:      d.ID,
			Name:    d.Data.Name,
			Members: lo.Map(d.Data.Members, func(m string, _ int) string { return strings.ToUpper(strings.TrimSpace(m)) }),
		}
	}), nil
}

type zoneDocument struct {
	Name    string   `firestore:"name"`
	Members []string `firestore:"members"`
}

// ShippingMethodRepository reads shipping methods from Firestore.
type ShippingMethodRepository struct {
	methods *pfirestore.Collection[shippingMethodDocument]
}

var _ repositories.ShippingMethodRepository = (*ShippingMethodRepository)(nil)

// NewShippingMethodRepository constructs a Firestore-backed shipping method repository.
func NewShippingMethodRepository(provider *pfirestore.Provider) (*ShippingMethodRepository, error) {
	if provider == nil {
		return nil, errors.New("shipping method repository requires firestore provider")
	}
	return &ShippingMethodRepository{methods: pfirestore.NewCollection[shippingMethodDocument](provider, shippingMethodsCollection)}, nil
}

// List returns every shipping method, including disabled ones.
func (r *ShippingMethodRepository) List(ctx context.Context) ([]domain.ShippingMethod, error) {
	docs, err := r.methods.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("code", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	return lo.Map(docs, func(d pfirestore.Document[shippingMethodDocument], _ int) domain.ShippingMethod {
		return domain.ShippingMethod{
			ID:          d.ID,
			Code:        d.Data.Code,
			Description: d.Data.Description,
			Enabled:     d.Data.Enabled,
			Checker:     d.Data.Checker.toDomain(),
			Calculator:  d.Data.Calculator.toDomain(),
		}
	}), nil
}

type shippingMethodDocument struct {
	Code        string            `firestore:"code"`
	Description string            `firestore:"description"`
	Enabled     bool              `firestore:"enabled"`
	Checker     operationDocument `firestore:"checker"`
	Calculator  operationDocument `firestore:"calculator"`
}

// CustomerGroupRepository resolves group membership stored as a customerIds array on each group.
type CustomerGroupRepository struct {
	groups *pfirestore.Collection[customerGroupDocument]
}

var _ repositories.CustomerGroupRepository = (*CustomerGroupRepository)(nil)

// NewCustomerGroupRepository constructs a Firestore-backed customer group repository.
func NewCustomerGroupRepository(provider *pfirestore.Provider) (*CustomerGroupRepository, error) {
	if provider == nil {
		return nil, errors.New("customer group repository requires firestore provider")
	}
	return &CustomerGroupRepository{groups: pfirestore.NewCollection[customerGroupDocument](provider, customerGroupsCollection)}, nil
}

// GroupIDsForCustomer returns the IDs of groups the customer belongs to.
func (r *CustomerGroupRepository) GroupIDsForCustomer(ctx context.Context, customerID string) ([]string, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, nil
	}
	docs, err := r.groups.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("customerIds", "array-contains", customerID)
	})
	if err != nil {
		return nil, err
	}
	return lo.Map(docs, func(d pfirestore.Document[customerGroupDocument], _ int) string { return d.ID }), nil
}

type customerGroupDocument struct {
	Name        string   `firestore:"name"`
	CustomerIDs []string `firestore:"customerIds"`
}
