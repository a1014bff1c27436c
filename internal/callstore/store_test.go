package callstore

import (
	"context"
	"sync"
	"testing"
)

func TestMemoryStorePutGetDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if err := store.Put(ctx, "sess-1", "cc-1"); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	got, err := store.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got != "cc-1" {
		t.Errorf("Get(sess-1) = %q, want cc-1", got)
	}

	// Re-put replaces.
	if err := store.Put(ctx, "sess-1", "cc-2"); err != nil {
		t.Fatalf("Put() error: %v", err)
	}
	got, _ = store.Get(ctx, "sess-1")
	if got != "cc-2" {
		t.Errorf("Get(sess-1) after replace = %q, want cc-2", got)
	}

	n, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error: %v", err)
	}
	if n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}

	if err := store.Delete(ctx, "sess-1"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	got, _ = store.Get(ctx, "sess-1")
	if got != "" {
		t.Errorf("Get(sess-1) after delete = %q, want empty", got)
	}
}

func TestMemoryStoreUnknownSession(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	got, err := store.Get(ctx, "missing")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got != "" {
		t.Errorf("Get(missing) = %q, want empty", got)
	}

	// Deleting an unknown session must not error.
	if err := store.Delete(ctx, "missing"); err != nil {
		t.Errorf("Delete(missing) error: %v", err)
	}
}

func TestMemoryStoreConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := string(rune('a' + n%26))
			store.Put(ctx, id, "cc-"+id)
			store.Get(ctx, id)
			if n%2 == 0 {
				store.Delete(ctx, id)
			}
		}(i)
	}
	wg.Wait()

	if _, err := store.Count(ctx); err != nil {
		t.Fatalf("Count() error: %v", err)
	}
}
