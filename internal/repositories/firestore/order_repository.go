package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/samber/lo"

	domain "github.com/hanko-field/orderengine/internal/domain"
	pfirestore "github.com/hanko-field/orderengine/internal/platform/firestore"
	"github.com/hanko-field/orderengine/internal/repositories"
)

const ordersCollection = "orders"

// OrderRepository stores order aggregates as single documents with embedded lines and items.
// Payments live in their own collection and are not embedded.
type OrderRepository struct {
	orders *pfirestore.Collection[orderDocument]
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{orders: pfirestore.NewCollection[orderDocument](provider, ordersCollection)}, nil
}

// Insert creates the order document; an existing ID is reported as a conflict.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order repository: id is required")
	}
	return r.orders.Create(ctx, id, orderToDocument(order))
}

// Update replaces the stored order with the supplied aggregate.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order repository: id is required")
	}
	return r.orders.Replace(ctx, id, orderToDocument(order))
}

// FindByID loads an order without its payments.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.orders.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}
	return doc.toDomain(orderID), nil
}

type orderDocument struct {
	Code              string                `firestore:"code"`
	CustomerID        string                `firestore:"customerId,omitempty"`
	ChannelCode       string                `firestore:"channelCode"`
	State             string                `firestore:"state"`
	Active            bool                  `firestore:"active"`
	CurrencyCode      string                `firestore:"currencyCode"`
	Lines             []orderLineDocument   `firestore:"lines"`
	Adjustments       []adjustmentDocument  `firestore:"adjustments,omitempty"`
	CouponCodes       []string              `firestore:"couponCodes,omitempty"`
	ShippingAddress   *addressDocument      `firestore:"shippingAddress,omitempty"`
	ShippingMethodID  string                `firestore:"shippingMethodId,omitempty"`
	ShippingMethod    *shippingSelectionDoc `firestore:"shippingMethod,omitempty"`
	SubTotal          int64                 `firestore:"subTotal"`
	SubTotalBeforeTax int64                 `firestore:"subTotalBeforeTax"`
	Shipping          int64                 `firestore:"shipping"`
	ShippingWithTax   int64                 `firestore:"shippingWithTax"`
	Total             int64                 `firestore:"total"`
	TotalBeforeTax    int64                 `firestore:"totalBeforeTax"`
	CreatedAt         time.Time             `firestore:"createdAt"`
	UpdatedAt         time.Time             `firestore:"updatedAt"`
}

type shippingSelectionDoc struct {
	MethodID    string `firestore:"methodId"`
	Code        string `firestore:"code"`
	Description string `firestore:"description,omitempty"`
}

type orderLineDocument struct {
	ID               string               `firestore:"id"`
	Variant          variantDocument      `firestore:"variant"`
	UnitPrice        int64                `firestore:"unitPrice"`
	UnitPriceWithTax int64                `firestore:"unitPriceWithTax"`
	Items            []orderItemDocument  `firestore:"items"`
	Adjustments      []adjustmentDocument `firestore:"adjustments,omitempty"`
}

type variantDocument struct {
	ID              string                 `firestore:"id"`
	SKU             string                 `firestore:"sku,omitempty"`
	Name            string                 `firestore:"name,omitempty"`
	TaxCategoryID   string                 `firestore:"taxCategoryId"`
	TaxCategoryName string                 `firestore:"taxCategoryName,omitempty"`
	Prices          []channelPriceDocument `firestore:"prices"`
}

type channelPriceDocument struct {
	ChannelCode string `firestore:"channelCode"`
	Price       int64  `firestore:"price"`
}

type orderItemDocument struct {
	ID                   string               `firestore:"id"`
	UnitPrice            int64                `firestore:"unitPrice"`
	UnitPriceWithTax     int64                `firestore:"unitPriceWithTax"`
	UnitPriceIncludesTax bool                 `firestore:"unitPriceIncludesTax"`
	TaxRate              float64              `firestore:"taxRate"`
	Adjustments          []adjustmentDocument `firestore:"adjustments,omitempty"`
	Cancelled            bool                 `firestore:"cancelled,omitempty"`
}

func orderToDocument(order domain.Order) orderDocument {
	doc := orderDocument{
		Code:              order.Code,
		CustomerID:        order.CustomerID,
		ChannelCode:       order.ChannelCode,
		State:             string(order.State),
		Active:            order.Active,
		CurrencyCode:      order.CurrencyCode,
		Adjustments:       adjustmentsToDocuments(order.Adjustments),
		CouponCodes:       append([]string(nil), order.CouponCodes...),
		ShippingAddress:   addressToDocument(order.ShippingAddress),
		ShippingMethodID:  order.ShippingMethodID,
		SubTotal:          order.SubTotal,
		SubTotalBeforeTax: order.SubTotalBeforeTax,
		Shipping:          order.Shipping,
		ShippingWithTax:   order.ShippingWithTax,
		Total:             order.Total,
		TotalBeforeTax:    order.TotalBeforeTax,
		CreatedAt:         order.CreatedAt.UTC(),
		UpdatedAt:         order.UpdatedAt.UTC(),
	}
	if sel := order.ShippingMethod; sel != nil {
		doc.ShippingMethod = &shippingSelectionDoc{MethodID: sel.MethodID, Code: sel.Code, Description: sel.Description}
	}
	doc.Lines = lo.Map(order.Lines, func(line domain.OrderLine, _ int) orderLineDocument {
		return orderLineDocument{
			ID: line.ID,
			Variant: variantDocument{
				ID:              line.ProductVariant.ID,
				SKU:             line.ProductVariant.SKU,
				Name:            line.ProductVariant.Name,
				TaxCategoryID:   line.ProductVariant.TaxCategory.ID,
				TaxCategoryName: line.ProductVariant.TaxCategory.Name,
				Prices: lo.Map(line.ProductVariant.Prices, func(p domain.ChannelPrice, _ int) channelPriceDocument {
					return channelPriceDocument{ChannelCode: p.ChannelCode, Price: p.Price}
				}),
			},
			UnitPrice:        line.UnitPrice,
			UnitPriceWithTax: line.UnitPriceWithTax,
			Adjustments:      adjustmentsToDocuments(line.Adjustments),
			Items: lo.Map(line.Items, func(item domain.OrderItem, _ int) orderItemDocument {
				return orderItemDocument{
					ID:                   item.ID,
					UnitPrice:            item.UnitPrice,
					UnitPriceWithTax:     item.UnitPriceWithTax,
					UnitPriceIncludesTax: item.UnitPriceIncludesTax,
					TaxRate:              item.TaxRate,
					Adjustments:          adjustmentsToDocuments(item.Adjustments),
					Cancelled:            item.Cancelled,
				}
			}),
		}
	})
	return doc
}

func (d orderDocument) toDomain(id string) domain.Order {
	order := domain.Order{
		ID:                id,
		Code:              d.Code,
		CustomerID:        d.CustomerID,
		ChannelCode:       d.ChannelCode,
		State:             domain.OrderState(d.State),
		Active:            d.Active,
		CurrencyCode:      d.CurrencyCode,
		Adjustments:       adjustmentsToDomain(d.Adjustments),
		CouponCodes:       d.CouponCodes,
		ShippingAddress:   d.ShippingAddress.toDomain(),
		ShippingMethodID:  d.ShippingMethodID,
		SubTotal:          d.SubTotal,
		SubTotalBeforeTax: d.SubTotalBeforeTax,
		Shipping:          d.Shipping,
		ShippingWithTax:   d.ShippingWithTax,
		Total:             d.Total,
		TotalBeforeTax:    d.TotalBeforeTax,
		CreatedAt:         d.CreatedAt.UTC(),
		UpdatedAt:         d.UpdatedAt.UTC(),
	}
	if sel := d.ShippingMethod; sel != nil {
		order.ShippingMethod = &domain.ShippingSelection{MethodID: sel.MethodID, Code: sel.Code, Description: sel.Description}
	}
	order.Lines = lo.Map(d.Lines, func(line orderLineDocument, _ int) domain.OrderLine {
		return domain.OrderLine{
			ID: line.ID,
			ProductVariant: domain.ProductVariant{
				ID:          line.Variant.ID,
				SKU:         line.Variant.SKU,
				Name:        line.Variant.Name,
				TaxCategory: domain.TaxCategory{ID: line.Variant.TaxCategoryID, Name: line.Variant.TaxCategoryName},
				Prices: lo.Map(line.Variant.Prices, func(p channelPriceDocument, _ int) domain.ChannelPrice {
					return domain.ChannelPrice{ChannelCode: p.ChannelCode, Price: p.Price}
				}),
			},
			UnitPrice:        line.UnitPrice,
			UnitPriceWithTax: line.UnitPriceWithTax,
			Adjustments:      adjustmentsToDomain(line.Adjustments),
			Items: lo.Map(line.Items, func(item orderItemDocument, _ int) domain.OrderItem {
				return domain.OrderItem{
					ID:                   item.ID,
					UnitPrice:            item.UnitPrice,
					UnitPriceWithTax:     item.UnitPriceWithTax,
					UnitPriceIncludesTax: item.UnitPriceIncludesTax,
					TaxRate:              item.TaxRate,
					Adjustments:          adjustmentsToDomain(item.Adjustments),
					Cancelled:            item.Cancelled,
				}
			}),
		}
	})
	return order
}
