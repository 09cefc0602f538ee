package idempotency

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/hanko-field/orderengine/internal/platform/firestore"
	"github.com/hanko-field/orderengine/internal/repositories"
)

const defaultCollection = "idempotencyKeys"

// FirestoreStore keeps records in Firestore so replays work across instances. Configure a TTL
// policy on expiresAt to purge old records.
type FirestoreStore struct {
	provider *pfirestore.Provider
	records  *pfirestore.Collection[recordDocument]
}

// NewFirestoreStore constructs a Firestore-backed store.
func NewFirestoreStore(provider *pfirestore.Provider) (*FirestoreStore, error) {
	if provider == nil {
		return nil, errors.New("idempotency store requires firestore provider")
	}
	return &FirestoreStore{
		provider: provider,
		records:  pfirestore.NewCollection[recordDocument](provider, defaultCollection),
	}, nil
}

// Reserve implements Store inside a transaction so concurrent requests see one winner.
func (s *FirestoreStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	id := documentID(key)
	var result Reservation
	err := s.provider.RunTransaction(ctx, func(txCtx context.Context, _ *firestore.Transaction) error {
		existing, err := s.load(txCtx, id)
		if err != nil {
			return err
		}
		reservation, updated, err := reserve(existing, key, fingerprint, now.UTC(), ttl)
		if err != nil {
			return err
		}
		result = reservation
		if updated == nil {
			return nil
		}
		return s.records.Replace(txCtx, id, toDocument(*updated))
	})
	if err != nil {
		return Reservation{}, err
	}
	return result, nil
}

// SaveResponse implements Store.
func (s *FirestoreStore) SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	id := documentID(key)
	return s.provider.RunTransaction(ctx, func(txCtx context.Context, _ *firestore.Transaction) error {
		existing, err := s.load(txCtx, id)
		if err != nil {
			return err
		}
		record, err := complete(existing, key, fingerprint, resp, now.UTC(), ttl)
		if err != nil {
			return err
		}
		return s.records.Replace(txCtx, id, toDocument(record))
	})
}

// Release implements Store.
func (s *FirestoreStore) Release(ctx context.Context, key string) error {
	ref, err := s.records.Doc(ctx, documentID(key))
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		return pfirestore.WrapError("idempotency.release", err)
	}
	return nil
}

func (s *FirestoreStore) load(ctx context.Context, id string) (*Record, error) {
	doc, err := s.records.Get(ctx, id)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return nil, nil
		}
		return nil, err
	}
	record := doc.toRecord()
	return &record, nil
}

type recordDocument struct {
	Key             string              `firestore:"key"`
	Fingerprint     string              `firestore:"fingerprint"`
	Status          string              `firestore:"status"`
	ResponseStatus  int                 `firestore:"responseStatus"`
	ResponseHeaders map[string][]string `firestore:"responseHeaders,omitempty"`
	ResponseBody    []byte              `firestore:"responseBody,omitempty"`
	CreatedAt       time.Time           `firestore:"createdAt"`
	ExpiresAt       time.Time           `firestore:"expiresAt"`
}

func toDocument(r Record) recordDocument {
	return recordDocument{
		Key:             r.Key,
		Fingerprint:     r.Fingerprint,
		Status:          string(r.Status),
		ResponseStatus:  r.ResponseStatus,
		ResponseHeaders: r.ResponseHeaders,
		ResponseBody:    r.ResponseBody,
		CreatedAt:       r.CreatedAt,
		ExpiresAt:       r.ExpiresAt,
	}
}

func (d recordDocument) toRecord() Record {
	return Record{
		Key:             d.Key,
		Fingerprint:     d.Fingerprint,
		Status:          Status(d.Status),
		ResponseStatus:  d.ResponseStatus,
		ResponseHeaders: d.ResponseHeaders,
		ResponseBody:    d.ResponseBody,
		CreatedAt:       d.CreatedAt.UTC(),
		ExpiresAt:       d.ExpiresAt.UTC(),
	}
}
