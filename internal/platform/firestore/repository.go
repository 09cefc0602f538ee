package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

// Document is a decoded Firestore document with its ID and update timestamp.
type Document[D any] struct {
	ID         string
	Data       D
	UpdateTime time.Time
}

// QueryBuilder customises Firestore queries before execution.
type QueryBuilder func(query firestore.Query) firestore.Query

// Collection provides typed access to a Firestore collection whose documents decode into D.
// Writes join the transaction carried by the context when there is one.
type Collection[D any] struct {
	provider *Provider
	name     string
}

// NewCollection binds a typed helper to the named collection.
func NewCollection[D any](provider *Provider, name string) *Collection[D] {
	return &Collection[D]{provider: provider, name: strings.TrimSpace(name)}
}

// Name returns the collection name.
func (c *Collection[D]) Name() string { return c.name }

// Get fetches and decodes a document.
func (c *Collection[D]) Get(ctx context.Context, id string) (D, error) {
	var out D
	ref, err := c.Doc(ctx, id)
	if err != nil {
		return out, err
	}
	var snap *firestore.DocumentSnapshot
	if tx, ok := TxFromContext(ctx); ok {
		snap, err = tx.Get(ref)
	} else {
		snap, err = ref.Get(ctx)
	}
	if err != nil {
		return out, WrapError(c.op("get"), err)
	}
	if err := snap.DataTo(&out); err != nil {
		return out, fmt.Errorf("firestore: decode %s/%s: %w", c.name, id, err)
	}
	return out, nil
}

// Create writes a new document and fails with a conflict when it already exists.
func (c *Collection[D]) Create(ctx context.Context, id string, doc D) error {
	ref, err := c.Doc(ctx, id)
	if err != nil {
		return err
	}
	if tx, ok := TxFromContext(ctx); ok {
		err = tx.Create(ref, doc)
	} else {
		_, err = ref.Create(ctx, doc)
	}
	return WrapError(c.op("create"), err)
}

// Replace overwrites an existing document. A missing document is reported as not found.
func (c *Collection[D]) Replace(ctx context.Context, id string, doc D) error {
	ref, err := c.Doc(ctx, id)
	if err != nil {
		return err
	}
	if tx, ok := TxFromContext(ctx); ok {
		// Transactions cannot read after writing, so existence is the caller's concern here.
		err = tx.Set(ref, doc)
	} else {
		_, err = ref.Get(ctx)
		if err == nil {
			_, err = ref.Set(ctx, doc)
		}
	}
	return WrapError(c.op("replace"), err)
}

// Merge upserts the given top-level fields, leaving other fields untouched. Values may be
// sentinels such as firestore.Increment.
func (c *Collection[D]) Merge(ctx context.Context, id string, fields map[string]any) error {
	ref, err := c.Doc(ctx, id)
	if err != nil {
		return err
	}
	if tx, ok := TxFromContext(ctx); ok {
		err = tx.Set(ref, fields, firestore.MergeAll)
	} else {
		_, err = ref.Set(ctx, fields, firestore.MergeAll)
	}
	return WrapError(c.op("merge"), err)
}

// Query executes a collection query and returns the decoded documents.
func (c *Collection[D]) Query(ctx context.Context, build QueryBuilder) ([]Document[D], error) {
	coll, err := c.collectionRef(ctx)
	if err != nil {
		return nil, err
	}
	query := coll.Query
	if build != nil {
		query = build(query)
	}

	var iter *firestore.DocumentIterator
	if tx, ok := TxFromContext(ctx); ok {
		iter = tx.Documents(query)
	} else {
		iter = query.Documents(ctx)
	}
	defer iter.Stop()

	var docs []Document[D]
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, WrapError(c.op("query"), err)
		}
		var data D
		if err := snap.DataTo(&data); err != nil {
			return nil, fmt.Errorf("firestore: decode %s/%s: %w", c.name, snap.Ref.ID, err)
		}
		docs = append(docs, Document[D]{ID: snap.Ref.ID, Data: data, UpdateTime: snap.UpdateTime})
	}
	return docs, nil
}

// Doc returns the reference of document id.
func (c *Collection[D]) Doc(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	if strings.TrimSpace(id) == "" {
		return nil, WrapError(c.op("document"), errors.New("firestore: document id is required"))
	}
	coll, err := c.collectionRef(ctx)
	if err != nil {
		return nil, err
	}
	return coll.Doc(id), nil
}

func (c *Collection[D]) collectionRef(ctx context.Context) (*firestore.CollectionRef, error) {
	if c == nil || c.provider == nil {
		return nil, WrapError("firestore.collection", errors.New("firestore: provider is nil"))
	}
	if c.name == "" {
		return nil, WrapError("firestore.collection", errors.New("firestore: collection name is required"))
	}
	client, err := c.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(c.name), nil
}

func (c *Collection[D]) op(action string) string {
	return c.name + "." + action
}
