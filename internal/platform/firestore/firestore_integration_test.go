//go:build integration

package firestore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/hanko-field/orderengine/internal/platform/firestore"
	"github.com/hanko-field/orderengine/internal/platform/firestore/firestoretest"
)

type counterDoc struct {
	Name  string `firestore:"name"`
	Count int64  `firestore:"count"`
}

func TestCollectionAndUnitOfWorkIntegration(t *testing.T) {
	provider := firestoretest.NewProvider(t, "test-project")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := provider.Ping(ctx); err != nil {
		t.Fatalf("ping failed: %v", err)
	}

	coll := pfirestore.NewCollection[counterDoc](provider, "counters")
	if err := coll.Create(ctx, "c1", counterDoc{Name: "alpha", Count: 1}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := coll.Create(ctx, "c1", counterDoc{Name: "again"}); err == nil {
		t.Fatal("expected conflict on duplicate create")
	} else if !classify(err).IsConflict() {
		t.Fatalf("expected conflict classification, got %v", err)
	}

	got, err := coll.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Name != "alpha" || got.Count != 1 {
		t.Fatalf("unexpected document %#v", got)
	}

	if err := coll.Replace(ctx, "missing", counterDoc{}); err == nil || !classify(err).IsNotFound() {
		t.Fatalf("expected not found replacing missing document, got %v", err)
	}

	uow := pfirestore.NewUnitOfWork(provider)
	if err := uow.RunInTx(ctx, func(txCtx context.Context) error {
		if err := coll.Merge(txCtx, "c1", map[string]any{"count": firestore.Increment(2)}); err != nil {
			return err
		}
		// Nested units join the outer transaction.
		return uow.RunInTx(txCtx, func(inner context.Context) error {
			return coll.Merge(inner, "c2", map[string]any{"name": "beta", "count": firestore.Increment(1)})
		})
	}); err != nil {
		t.Fatalf("transaction failed: %v", err)
	}

	docs, err := coll.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("name", firestore.Asc)
	})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(docs) != 2 || docs[0].Data.Count != 3 || docs[1].ID != "c2" {
		t.Fatalf("unexpected documents %#v", docs)
	}

	cancelled, cancelTx := context.WithCancel(context.Background())
	cancelTx()
	if err := uow.RunInTx(cancelled, func(context.Context) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled error, got %v", err)
	}
}

type classifier interface {
	IsNotFound() bool
	IsConflict() bool
}

func classify(err error) classifier {
	var cls classifier
	if errors.As(err, &cls) {
		return cls
	}
	return noClass{}
}

type noClass struct{}

func (noClass) IsNotFound() bool { return false }
func (noClass) IsConflict() bool { return false }
