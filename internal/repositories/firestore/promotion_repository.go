package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/samber/lo"

	domain "github.com/hanko-field/orderengine/internal/domain"
	pfirestore "github.com/hanko-field/orderengine/internal/platform/firestore"
	"github.com/hanko-field/orderengine/internal/repositories"
)

const (
	promotionsCollection     = "promotions"
	promotionUsageCollection = "promotionUsage"
)

// PromotionRepository reads promotions with their stored conditions and actions.
type PromotionRepository struct {
	promotions *pfirestore.Collection[promotionDocument]
}

var _ repositories.PromotionRepository = (*PromotionRepository)(nil)

// NewPromotionRepository constructs a Firestore-backed promotion repository.
func NewPromotionRepository(provider *pfirestore.Provider) (*PromotionRepository, error) {
	if provider == nil {
		return nil, errors.New("promotion repository requires firestore provider")
	}
	return &PromotionRepository{promotions: pfirestore.NewCollection[promotionDocument](provider, promotionsCollection)}, nil
}

// ListEnabled returns enabled promotions. Date windows are evaluated by the date_range condition,
// not here.
func (r *PromotionRepository) ListEnabled(ctx context.Context) ([]domain.Promotion, error) {
	docs, err := r.promotions.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("enabled", "==", true)
	})
	if err != nil {
		return nil, err
	}
	return lo.Map(docs, func(d pfirestore.Document[promotionDocument], _ int) domain.Promotion {
		return d.Data.toDomain(d.ID)
	}), nil
}

type promotionDocument struct {
	Name                  string              `firestore:"name"`
	Enabled               bool                `firestore:"enabled"`
	StartsAt              *time.Time          `firestore:"startsAt,omitempty"`
	EndsAt                *time.Time          `firestore:"endsAt,omitempty"`
	CouponCode            string              `firestore:"couponCode,omitempty"`
	PerCustomerUsageLimit int                 `firestore:"perCustomerUsageLimit"`
	PriorityValue         int                 `firestore:"priorityValue"`
	Conditions            []operationDocument `firestore:"conditions"`
	Actions               []operationDocument `firestore:"actions"`
	CreatedAt             time.Time           `firestore:"createdAt"`
	UpdatedAt             time.Time           `firestore:"updatedAt"`
}

func (d promotionDocument) toDomain(id string) domain.Promotion {
	return domain.Promotion{
		ID:                    id,
		Name:                  d.Name,
		Enabled:               d.Enabled,
		StartsAt:              utcPtr(d.StartsAt),
		EndsAt:                utcPtr(d.EndsAt),
		CouponCode:            d.CouponCode,
		PerCustomerUsageLimit: d.PerCustomerUsageLimit,
		PriorityValue:         d.PriorityValue,
		Conditions:            operationsToDomain(d.Conditions),
		Actions:               operationsToDomain(d.Actions),
		CreatedAt:             d.CreatedAt.UTC(),
		UpdatedAt:             d.UpdatedAt.UTC(),
	}
}

// PromotionUsageRepository keeps one counter document per promotion and customer.
type PromotionUsageRepository struct {
	usage *pfirestore.Collection[promotionUsageDocument]
}

var _ repositories.PromotionUsageRepository = (*PromotionUsageRepository)(nil)

// NewPromotionUsageRepository constructs a Firestore-backed usage repository.
func NewPromotionUsageRepository(provider *pfirestore.Provider) (*PromotionUsageRepository, error) {
	if provider == nil {
		return nil, errors.New("promotion usage repository requires firestore provider")
	}
	return &PromotionUsageRepository{usage: pfirestore.NewCollection[promotionUsageDocument](provider, promotionUsageCollection)}, nil
}

// CountsForCustomer returns usage counts keyed by promotion ID.
func (r *PromotionUsageRepository) CountsForCustomer(ctx context.Context, customerID string) (map[string]int, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return map[string]int{}, nil
	}
	docs, err := r.usage.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("customerId", "==", customerID)
	})
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(docs))
	for _, doc := range docs {
		counts[doc.Data.PromotionID] += int(doc.Data.Times)
	}
	return counts, nil
}

// Increment bumps the counter atomically; the document is created on first use.
func (r *PromotionUsageRepository) Increment(ctx context.Context, promotionID, customerID string, usedAt time.Time) error {
	promotionID = strings.TrimSpace(promotionID)
	customerID = strings.TrimSpace(customerID)
	if promotionID == "" || customerID == "" {
		return errors.New("promotion usage repository: promotion and customer are required")
	}
	return r.usage.Merge(ctx, usageDocumentID(promotionID, customerID), map[string]any{
		"promotionId": promotionID,
		"customerId":  customerID,
		"times":       firestore.Increment(1),
		"lastUsed":    usedAt.UTC(),
	})
}

func usageDocumentID(promotionID, customerID string) string {
	return promotionID + "_" + customerID
}

type promotionUsageDocument struct {
	PromotionID string    `firestore:"promotionId"`
	CustomerID  string    `firestore:"customerId"`
	Times       int64     `firestore:"times"`
	LastUsed    time.Time `firestore:"lastUsed"`
}

func (d promotionUsageDocument) toDomain() domain.PromotionUsage {
	return domain.PromotionUsage{
		PromotionID: d.PromotionID,
		CustomerID:  d.CustomerID,
		Times:       int(d.Times),
		LastUsed:    d.LastUsed.UTC(),
	}
}

// Usage returns the usage record of one promotion and customer. Missing records have zero uses.
func (r *PromotionUsageRepository) Usage(ctx context.Context, promotionID, customerID string) (domain.PromotionUsage, error) {
	doc, err := r.usage.Get(ctx, usageDocumentID(promotionID, customerID))
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return domain.PromotionUsage{PromotionID: promotionID, CustomerID: customerID}, nil
		}
		return domain.PromotionUsage{}, err
	}
	return doc.toDomain(), nil
}
