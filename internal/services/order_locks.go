package services

import (
	"context"
	"sync"
)

type heldLocksKey struct{}

// OrderLocks serialises mutations per order id inside one process. A context that already holds
// the lock for an id may lock it again, so a payment flow can drive an order transition without
// deadlocking on itself.
type OrderLocks struct {
	mu    sync.Mutex
	locks map[string]*orderLock
}

type orderLock struct {
	mu   sync.Mutex
	refs int
}

// NewOrderLocks returns an empty lock table.
func NewOrderLocks() *OrderLocks {
	return &OrderLocks{locks: make(map[string]*orderLock)}
}

// Lock blocks until the caller owns orderID. The returned context marks ownership and must be
// used for nested calls; unlock releases it.
func (l *OrderLocks) Lock(ctx context.Context, orderID string) (context.Context, func()) {
	if held, _ := ctx.Value(heldLocksKey{}).(map[string]struct{}); held != nil {
		if _, ok := held[orderID]; ok {
			return ctx, func() {}
		}
	}

	l.mu.Lock()
	entry, ok := l.locks[orderID]
	if !ok {
		entry = &orderLock{}
		l.locks[orderID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	held := map[string]struct{}{orderID: {}}
	if parent, _ := ctx.Value(heldLocksKey{}).(map[string]struct{}); parent != nil {
		for id := range parent {
			held[id] = struct{}{}
		}
	}
	lockedCtx := context.WithValue(ctx, heldLocksKey{}, held)

	var once sync.Once
	return lockedCtx, func() {
		once.Do(func() {
			entry.mu.Unlock()
			l.mu.Lock()
			entry.refs--
			if entry.refs == 0 {
				delete(l.locks, orderID)
			}
			l.mu.Unlock()
		})
	}
}
