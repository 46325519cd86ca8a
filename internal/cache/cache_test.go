package cache

import (
	"context"
	"testing"
	"time"

	"civiq/internal/kv"
)

func TestTaggedCache(t *testing.T) {
	ctx := context.Background()

	t.Run("SetGetRoundTrip", func(t *testing.T) {
		c := NewTagged(kv.NewMemory())

		entry := &Entry{Body: []byte(`{"id":"123"}`), ContentType: "application/json"}
		if err := c.Set(ctx, "k1", entry, time.Minute, []string{"complaints"}); err != nil {
			t.Fatalf("unexpected error on set: %v", err)
		}

		got, err := c.Get(ctx, "k1")
		if err != nil {
			t.Fatalf("unexpected error on get: %v", err)
		}
		if got == nil {
			t.Fatal("expected hit, got miss")
		}
		if string(got.Body) != `{"id":"123"}` {
			t.Errorf("payload mismatch: %q", got.Body)
		}
		if got.ContentType != "application/json" {
			t.Errorf("content type mismatch: %q", got.ContentType)
		}
	})

	t.Run("MissOnUnknownKey", func(t *testing.T) {
		c := NewTagged(kv.NewMemory())

		got, err := c.Get(ctx, "nope")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != nil {
			t.Fatal("expected miss")
		}
	})

	t.Run("InvalidateByTagRemovesAllTaggedKeys", func(t *testing.T) {
		c := NewTagged(kv.NewMemory())

		e := &Entry{Body: []byte("x"), ContentType: "text/plain"}
		for _, k := range []string{"a", "b", "c"} {
			if err := c.Set(ctx, k, e, time.Minute, []string{"complaints"}); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}

		if err := c.InvalidateByTag(ctx, "complaints"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		for _, k := range []string{"a", "b", "c"} {
			got, err := c.Get(ctx, k)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != nil {
				t.Errorf("key %s should have been invalidated", k)
			}
		}
	})

	t.Run("InvalidationIsolation", func(t *testing.T) {
		c := NewTagged(kv.NewMemory())

		e := &Entry{Body: []byte("x"), ContentType: "text/plain"}
		if err := c.Set(ctx, "t1only", e, time.Minute, []string{"t1"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := c.Set(ctx, "t2only", e, time.Minute, []string{"t2"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := c.Set(ctx, "both", e, time.Minute, []string{"t1", "t2"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if err := c.InvalidateByTag(ctx, "t1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if got, _ := c.Get(ctx, "t1only"); got != nil {
			t.Error("t1only should be gone")
		}
		if got, _ := c.Get(ctx, "both"); got != nil {
			t.Error("both should be gone (tagged t1)")
		}
		if got, _ := c.Get(ctx, "t2only"); got == nil {
			t.Error("t2only must survive invalidation of t1")
		}
	})

	t.Run("InvalidateEmptyTagIsNoop", func(t *testing.T) {
		c := NewTagged(kv.NewMemory())
		if err := c.InvalidateByTag(ctx, "never-used"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("Remove", func(t *testing.T) {
		c := NewTagged(kv.NewMemory())
		e := &Entry{Body: []byte("x"), ContentType: "text/plain"}
		if err := c.Set(ctx, "k", e, time.Minute, nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := c.Remove(ctx, "k"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got, _ := c.Get(ctx, "k"); got != nil {
			t.Error("expected miss after remove")
		}
	})

	t.Run("ExpiredEntryIsMiss", func(t *testing.T) {
		store := kv.NewMemory()
		now := time.Now()
		store.SetClock(func() time.Time { return now })
		c := NewTagged(store)

		e := &Entry{Body: []byte("x"), ContentType: "text/plain"}
		if err := c.Set(ctx, "k", e, time.Minute, []string{"t"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		now = now.Add(2 * time.Minute)
		if got, _ := c.Get(ctx, "k"); got != nil {
			t.Error("expired entry must never be served")
		}

		// Stale tag reference deletes as a no-op
		if err := c.InvalidateByTag(ctx, "t"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("TagSetOutlivesLongestMember", func(t *testing.T) {
		store := kv.NewMemory()
		c := NewTagged(store)

		e := &Entry{Body: []byte("x"), ContentType: "text/plain"}
		if err := c.Set(ctx, "long", e, 10*time.Minute, []string{"t"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		// A later short-lived write must not shorten the tag set's lease.
		if err := c.Set(ctx, "short", e, time.Minute, []string{"t"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		ttl, err := store.TTL(ctx, "tag:t")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ttl < 10*time.Minute {
			t.Errorf("tag set TTL %v shorter than its longest member", ttl)
		}
	})

	t.Run("FreshTagSetGetsBoundedTTL", func(t *testing.T) {
		store := kv.NewMemory()
		c := NewTagged(store)

		e := &Entry{Body: []byte("x"), ContentType: "text/plain"}
		if err := c.Set(ctx, "k", e, time.Minute, []string{"complaints"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		// The very first write creates the set via SAdd with no expiry; it
		// must still end up bounded, or unused tags accumulate forever.
		ttl, err := store.TTL(ctx, "tag:complaints")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ttl < 0 {
			t.Fatalf("tag set has no expiry after Set, TTL = %v", ttl)
		}
		if ttl < time.Minute+tagGrace {
			t.Errorf("tag set TTL %v below member ttl plus grace", ttl)
		}
	})
}

func TestTaggedCacheFailOpen(t *testing.T) {
	ctx := context.Background()
	c := NewTagged(&failingStore{})

	// Reads degrade to a miss, never an error.
	got, err := c.Get(ctx, "k")
	if err != nil {
		t.Fatalf("cache read must fail open, got error: %v", err)
	}
	if got != nil {
		t.Fatal("expected miss from unavailable store")
	}
}

// failingStore simulates an unreachable KV store.
type failingStore struct{}

var errStoreDown = context.DeadlineExceeded

func (f *failingStore) Get(context.Context, string) ([]byte, error) { return nil, errStoreDown }
func (f *failingStore) Set(context.Context, string, []byte, time.Duration) error {
	return errStoreDown
}
func (f *failingStore) SetNX(context.Context, string, []byte, time.Duration) (bool, error) {
	return false, errStoreDown
}
func (f *failingStore) Del(context.Context, ...string) error          { return errStoreDown }
func (f *failingStore) SAdd(context.Context, string, ...string) error { return errStoreDown }
func (f *failingStore) SMembers(context.Context, string) ([]string, error) {
	return nil, errStoreDown
}
func (f *failingStore) Expire(context.Context, string, time.Duration) (bool, error) {
	return false, errStoreDown
}
func (f *failingStore) TTL(context.Context, string) (time.Duration, error) {
	return 0, errStoreDown
}
func (f *failingStore) Close() error { return nil }
