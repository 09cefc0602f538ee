package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hanko-field/orderengine/internal/cache"
	"github.com/hanko-field/orderengine/internal/domain"
	"github.com/hanko-field/orderengine/internal/pricing"
	"github.com/hanko-field/orderengine/internal/repositories"
	"github.com/hanko-field/orderengine/internal/shipping"
)

// ErrReferenceDataUnavailable wraps failures loading promotions, rates, zones or shipping methods.
var ErrReferenceDataUnavailable = errors.New("reference data: unavailable")

// ReferenceDataDeps wires the cached reference data service.
type ReferenceDataDeps struct {
	TaxRates        repositories.TaxRateRepository
	Zones           repositories.ZoneRepository
	Promotions      repositories.PromotionRepository
	ShippingMethods repositories.ShippingMethodRepository
	TTL             time.Duration
	Clock           func() time.Time
	Logger          func(ctx context.Context, event string, fields map[string]any)
}

type referenceDataService struct {
	taxRates   *cache.Snapshot[domain.TaxRate]
	zones      *cache.Snapshot[domain.Zone]
	promotions *cache.Snapshot[domain.Promotion]
	shipping   *cache.Snapshot[domain.ShippingMethod]
	logger     func(context.Context, string, map[string]any)
}

var (
	_ ReferenceDataService  = (*referenceDataService)(nil)
	_ pricing.TaxRateSource = (*referenceDataService)(nil)
	_ shipping.MethodSource = (*referenceDataService)(nil)
)

// NewReferenceDataService caches every reference collection behind its own snapshot.
func NewReferenceDataService(deps ReferenceDataDeps) (ReferenceDataService, error) {
	if deps.TaxRates == nil {
		return nil, errors.New("reference data: tax rate repository is required")
	}
	if deps.Zones == nil {
		return nil, errors.New("reference data: zone repository is required")
	}
	if deps.Promotions == nil {
		return nil, errors.New("reference data: promotion repository is required")
	}
	if deps.ShippingMethods == nil {
		return nil, errors.New("reference data: shipping method repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	opts := cache.Options{TTL: deps.TTL, Clock: deps.Clock}

	taxRates, err := cache.NewSnapshot("taxRates", deps.TaxRates.ListEnabled, opts)
	if err != nil {
		return nil, err
	}
	zones, err := cache.NewSnapshot("zones", deps.Zones.List, opts)
	if err != nil {
		return nil, err
	}
	promos, err := cache.NewSnapshot("promotions", deps.Promotions.ListEnabled, opts)
	if err != nil {
		return nil, err
	}
	methods, err := cache.NewSnapshot("shippingMethods", deps.ShippingMethods.List, opts)
	if err != nil {
		return nil, err
	}

	return &referenceDataService{
		taxRates:   taxRates,
		zones:      zones,
		promotions: promos,
		shipping:   methods,
		logger:     logger,
	}, nil
}

func (s *referenceDataService) ActiveTaxRates(ctx context.Context) ([]domain.TaxRate, error) {
	return loadSnapshot(ctx, s, s.taxRates)
}

func (s *referenceDataService) Zones(ctx context.Context) ([]domain.Zone, error) {
	return loadSnapshot(ctx, s, s.zones)
}

func (s *referenceDataService) ActivePromotions(ctx context.Context) ([]domain.Promotion, error) {
	return loadSnapshot(ctx, s, s.promotions)
}

func (s *referenceDataService) ShippingMethods(ctx context.Context) ([]domain.ShippingMethod, error) {
	return loadSnapshot(ctx, s, s.shipping)
}

// InvalidateAll drops every snapshot and returns the names of the invalidated caches.
func (s *referenceDataService) InvalidateAll(ctx context.Context) []string {
	all := []cache.Invalidator{s.taxRates, s.zones, s.promotions, s.shipping}
	names := make([]string, 0, len(all))
	for _, snapshot := range all {
		snapshot.Invalidate()
		names = append(names, snapshot.Name())
	}
	s.logger(ctx, "reference_data.invalidated", map[string]any{"caches": names})
	return names
}

func loadSnapshot[T any](ctx context.Context, s *referenceDataService, snapshot *cache.Snapshot[T]) ([]T, error) {
	items, err := snapshot.Get(ctx)
	if err != nil {
		s.logger(ctx, "reference_data.load.failed", map[string]any{
			"cache": snapshot.Name(),
			"error": err.Error(),
		})
		return nil, fmt.Errorf("%w: %s: %w", ErrReferenceDataUnavailable, snapshot.Name(), err)
	}
	return items, nil
}
