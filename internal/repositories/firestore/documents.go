package firestore

import (
	"time"

	"github.com/samber/lo"

	domain "github.com/hanko-field/orderengine/internal/domain"
)

type adjustmentDocument struct {
	SourceID    string `firestore:"sourceId"`
	Type        string `firestore:"type"`
	Scope       string `firestore:"scope"`
	ItemID      string `firestore:"itemId,omitempty"`
	Description string `firestore:"description,omitempty"`
	Amount      int64  `firestore:"amount"`
}

func adjustmentsToDocuments(adjustments []domain.Adjustment) []adjustmentDocument {
	return lo.Map(adjustments, func(a domain.Adjustment, _ int) adjustmentDocument {
		return adjustmentDocument{
			SourceID:    a.SourceID,
			Type:        string(a.Type),
			Scope:       string(a.Scope),
			ItemID:      a.ItemID,
			Description: a.Description,
			Amount:      a.Amount,
		}
	})
}

func adjustmentsToDomain(docs []adjustmentDocument) []domain.Adjustment {
	if len(docs) == 0 {
		return nil
	}
	return lo.Map(docs, func(d adjustmentDocument, _ int) domain.Adjustment {
		return domain.Adjustment{
			SourceID:    d.SourceID,
			Type:        domain.AdjustmentType(d.Type),
			Scope:       domain.AdjustmentScope(d.Scope),
			ItemID:      d.ItemID,
			Description: d.Description,
			Amount:      d.Amount,
		}
	})
}

type configArgDocument struct {
	Name  string `firestore:"name"`
	Type  string `firestore:"type,omitempty"`
	Value string `firestore:"value"`
}

type operationDocument struct {
	Code string              `firestore:"code"`
	Args []configArgDocument `firestore:"args,omitempty"`
}

func operationToDocument(op domain.ConfigurableOperation) operationDocument {
	return operationDocument{
		Code: op.Code,
		Args: lo.Map(op.Args, func(a domain.ConfigArg, _ int) configArgDocument {
			return configArgDocument{Name: a.Name, Type: a.Type, Value: a.Value}
		}),
	}
}

func (d operationDocument) toDomain() domain.ConfigurableOperation {
	op := domain.ConfigurableOperation{Code: d.Code}
	if len(d.Args) > 0 {
		op.Args = lo.Map(d.Args, func(a configArgDocument, _ int) domain.ConfigArg {
			return domain.ConfigArg{Name: a.Name, Type: a.Type, Value: a.Value}
		})
	}
	return op
}

func operationsToDomain(docs []operationDocument) []domain.ConfigurableOperation {
	return lo.Map(docs, func(d operationDocument, _ int) domain.ConfigurableOperation { return d.toDomain() })
}

type addressDocument struct {
	Recipient  string  `firestore:"recipient"`
	Line1      string  `firestore:"line1"`
	Line2      *string `firestore:"line2,omitempty"`
	City       string  `firestore:"city"`
	State      *string `firestore:"state,omitempty"`
	PostalCode string  `firestore:"postalCode"`
	Country    string  `firestore:"country"`
}

func addressToDocument(addr *domain.Address) *addressDocument {
	if addr == nil {
		return nil
	}
	return &addressDocument{
		Recipient:  addr.Recipient,
		Line1:      addr.Line1,
		Line2:      addr.Line2,
		City:       addr.City,
		State:      addr.State,
		PostalCode: addr.PostalCode,
		Country:    addr.Country,
	}
}

func (d *addressDocument) toDomain() *domain.Address {
	if d == nil {
		return nil
	}
	return &domain.Address{
		Recipient:  d.Recipient,
		Line1:      d.Line1,
		Line2:      d.Line2,
		City:       d.City,
		State:      d.State,
		PostalCode: d.PostalCode,
		Country:    d.Country,
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
