// Package cache holds explicitly refreshed snapshots of slowly changing reference data such as
// promotions, tax rates, zones and shipping methods.
package cache

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"
)

// Loader fetches a fresh copy of the cached data.
type Loader[T any] func(ctx context.Context) ([]T, error)

// Snapshot caches the result of a Loader for a TTL. Get serves the cached value until it expires
// or Invalidate is called; Refresh reloads unconditionally.
type Snapshot[T any] struct {
	name   string
	load   Loader[T]
	ttl    time.Duration
	now    func() time.Time
	mu     sync.RWMutex
	items  []T
	loaded time.Time
	valid  bool
}

// Options configures a Snapshot.
type Options struct {
	TTL   time.Duration
	Clock func() time.Time
}

// NewSnapshot builds a snapshot. A non-positive TTL keeps data until invalidated.
func NewSnapshot[T any](name string, load Loader[T], opts Options) (*Snapshot[T], error) {
	if load == nil {
		return nil, errors.New("cache: loader is required")
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Snapshot[T]{
		name: name,
		load: load,
		ttl:  opts.TTL,
		now: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

// Name identifies the snapshot in logs and admin responses.
func (s *Snapshot[T]) Name() string { return s.name }

// Get returns the cached items, loading them when missing or stale. Callers receive a copy.
func (s *Snapshot[T]) Get(ctx context.Context) ([]T, error) {
	s.mu.RLock()
	if s.fresh() {
		items := slices.Clone(s.items)
		s.mu.RUnlock()
		return items, nil
	}
	s.mu.RUnlock()
	return s.Refresh(ctx)
}

// Refresh reloads the data. On failure the previous snapshot is kept and the error returned.
func (s *Snapshot[T]) Refresh(ctx context.Context) ([]T, error) {
	items, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.items = slices.Clone(items)
	s.loaded = s.now()
	s.valid = true
	s.mu.Unlock()
	return items, nil
}

// Invalidate drops the cached data so the next Get reloads.
func (s *Snapshot[T]) Invalidate() {
	s.mu.Lock()
	s.items = nil
	s.valid = false
	s.mu.Unlock()
}

// LoadedAt reports when the data was last loaded; zero when nothing is cached.
func (s *Snapshot[T]) LoadedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.valid {
		return time.Time{}
	}
	return s.loaded
}

func (s *Snapshot[T]) fresh() bool {
	if !s.valid {
		return false
	}
	if s.ttl <= 0 {
		return true
	}
	return s.now().Sub(s.loaded) < s.ttl
}

// Invalidator is implemented by every Snapshot regardless of its element type.
type Invalidator interface {
	Name() string
	Invalidate()
}
