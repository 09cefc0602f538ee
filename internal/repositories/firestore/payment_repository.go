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
	paymentsCollection       = "payments"
	paymentMethodsCollection = "paymentMethods"
)

// PaymentRepository persists payment attempts in a top-level collection keyed by payment ID.
type PaymentRepository struct {
	payments *pfirestore.Collection[paymentDocument]
}

var _ repositories.PaymentRepository = (*PaymentRepository)(nil)

// NewPaymentRepository constructs a Firestore-backed payment repository.
func NewPaymentRepository(provider *pfirestore.Provider) (*PaymentRepository, error) {
	if provider == nil {
		return nil, errors.New("payment repository requires firestore provider")
	}
	return &PaymentRepository{payments: pfirestore.NewCollection[paymentDocument](provider, paymentsCollection)}, nil
}

// Insert stores a new payment.
func (r *PaymentRepository) Insert(ctx context.Context, payment domain.Payment) error {
	id := strings.TrimSpace(payment.ID)
	if id == "" {
		return errors.New("payment repository: id is required")
	}
	return r.payments.Create(ctx, id, paymentToDocument(payment))
}

// Update replaces the stored payment.
func (r *PaymentRepository) Update(ctx context.Context, payment domain.Payment) error {
	id := strings.TrimSpace(payment.ID)
	if id == "" {
		return errors.New("payment repository: id is required")
	}
	return r.payments.Replace(ctx, id, paymentToDocument(payment))
}

// FindByID loads a single payment.
func (r *PaymentRepository) FindByID(ctx context.Context, paymentID string) (domain.Payment, error) {
	id := strings.TrimSpace(paymentID)
	doc, err := r.payments.Get(ctx, id)
	if err != nil {
		return domain.Payment{}, err
	}
	return doc.toDomain(id), nil
}

// ListByOrder returns the payments of an order, oldest first.
func (r *PaymentRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Payment, error) {
	docs, err := r.payments.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderId", "==", strings.TrimSpace(orderID)).OrderBy("createdAt", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	return lo.Map(docs, func(d pfirestore.Document[paymentDocument], _ int) domain.Payment {
		return d.Data.toDomain(d.ID)
	}), nil
}

type paymentDocument struct {
	OrderID       string            `firestore:"orderId"`
	Method        string            `firestore:"method"`
	Amount        int64             `firestore:"amount"`
	State         string            `firestore:"state"`
	TransactionID string            `firestore:"transactionId,omitempty"`
	ErrorMessage  string            `firestore:"errorMessage,omitempty"`
	Metadata      map[string]string `firestore:"metadata,omitempty"`
	CreatedAt     time.Time         `firestore:"createdAt"`
	UpdatedAt     time.Time         `firestore:"updatedAt"`
}

func paymentToDocument(p domain.Payment) paymentDocument {
	return paymentDocument{
		OrderID:       p.OrderID,
		Method:        p.Method,
		Amount:        p.Amount,
		State:         string(p.State),
		TransactionID: p.TransactionID,
		ErrorMessage:  p.ErrorMessage,
		Metadata:      p.Metadata,
		CreatedAt:     p.CreatedAt.UTC(),
		UpdatedAt:     p.UpdatedAt.UTC(),
	}
}

func (d paymentDocument) toDomain(id string) domain.Payment {
	return domain.Payment{
		ID:            id,
		OrderID:       d.OrderID,
		Method:        d.Method,
		Amount:        d.Amount,
		State:         domain.PaymentState(d.State),
		TransactionID: d.TransactionID,
		ErrorMessage:  d.ErrorMessage,
		Metadata:      d.Metadata,
		CreatedAt:     d.CreatedAt.UTC(),
		UpdatedAt:     d.UpdatedAt.UTC(),
	}
}

// PaymentMethodRepository reads configured payment methods.
type PaymentMethodRepository struct {
	methods *pfirestore.Collection[paymentMethodDocument]
}

var _ repositories.PaymentMethodRepository = (*PaymentMethodRepository)(nil)

// NewPaymentMethodRepository constructs a Firestore-backed payment method repository.
func NewPaymentMethodRepository(provider *pfirestore.Provider) (*PaymentMethodRepository, error) {
	if provider == nil {
		return nil, errors.New("payment method repository requires firestore provider")
	}
	return &PaymentMethodRepository{methods: pfirestore.NewCollection[paymentMethodDocument](provider, paymentMethodsCollection)}, nil
}

// FindByCode returns the payment method with the given code, enabled or not.
func (r *PaymentMethodRepository) FindByCode(ctx context.Context, code string) (domain.PaymentMethod, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.PaymentMethod{}, errors.New("payment method repository: code is required")
	}
	docs, err := r.methods.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("code", "==", code).Limit(1)
	})
	if err != nil {
		return domain.PaymentMethod{}, err
	}
	if len(docs) == 0 {
		return domain.PaymentMethod{}, pfirestore.NotFound("payment_methods.find_by_code", "payment method "+code)
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}

type paymentMethodDocument struct {
	Code    string            `firestore:"code"`
	Enabled bool              `firestore:"enabled"`
	Handler operationDocument `firestore:"handler"`
}

func (d paymentMethodDocument) toDomain(id string) domain.PaymentMethod {
	return domain.PaymentMethod{
		ID:      id,
		Code:    d.Code,
		Enabled: d.Enabled,
		Handler: d.Handler.toDomain(),
	}
}
