package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSnapshotServesCachedUntilExpiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	calls := 0
	snap, err := NewSnapshot("rates", func(context.Context) ([]int, error) {
		calls++
		return []int{calls}, nil
	}, Options{TTL: time.Minute, Clock: func() time.Time { return now }})
	if err != nil {
		t.Fatalf("NewSnapshot: %v", err)
	}

	first, _ := snap.Get(context.Background())
	second, _ := snap.Get(context.Background())
	if calls != 1 || first[0] != 1 || second[0] != 1 {
		t.Fatalf("expected a single load, got %d", calls)
	}

	now = now.Add(2 * time.Minute)
	third, _ := snap.Get(context.Background())
	if calls != 2 || third[0] != 2 {
		t.Fatalf("expected reload after ttl, got %d", calls)
	}

	snap.Invalidate()
	if !snap.LoadedAt().IsZero() {
		t.Fatalf("expected no data after invalidate")
	}
	if _, err := snap.Get(context.Background()); err != nil || calls != 3 {
		t.Fatalf("expected reload after invalidate, got %d (%v)", calls, err)
	}
}

func TestSnapshotKeepsDataWhenRefreshFails(t *testing.T) {
	fail := false
	snap, err := NewSnapshot("promotions", func(context.Context) ([]string, error) {
		if fail {
			return nil, errors.New("unavailable")
		}
		return []string{"p1"}, nil
	}, Options{})
	if err != nil {
		t.Fatalf("NewSnapshot: %v", err)
	}
	if _, err := snap.Get(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fail = true
	if _, err := snap.Refresh(context.Background()); err == nil {
		t.Fatalf("expected refresh error")
	}
	items, err := snap.Get(context.Background())
	if err != nil || len(items) != 1 {
		t.Fatalf("expected previous snapshot, got %v (%v)", items, err)
	}

	items[0] = "mutated"
	again, _ := snap.Get(context.Background())
	if again[0] != "p1" {
		t.Fatalf("callers must receive copies")
	}
}
