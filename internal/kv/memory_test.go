package kv

import (
	"context"
	"testing"
	"time"
)

func TestMemoryGetSet(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if _, err := m.Get(ctx, "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := m.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := m.Get(ctx, "k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "v" {
		t.Errorf("expected v, got %q", got)
	}
}

func TestMemoryExpiry(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	now := time.Now()
	m.SetClock(func() time.Time { return now })

	if err := m.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Still live just before the deadline
	now = now.Add(59 * time.Second)
	if _, err := m.Get(ctx, "k"); err != nil {
		t.Fatalf("expected hit before expiry, got %v", err)
	}

	// Expired after the deadline
	now = now.Add(2 * time.Second)
	if _, err := m.Get(ctx, "k"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after expiry, got %v", err)
	}
}

func TestMemorySetNX(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	ok, err := m.SetNX(ctx, "k", []byte("first"), time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected first SetNX to succeed, got ok=%v err=%v", ok, err)
	}

	ok, err = m.SetNX(ctx, "k", []byte("second"), time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected second SetNX to fail while key is live")
	}

	got, _ := m.Get(ctx, "k")
	if string(got) != "first" {
		t.Errorf("expected first value preserved, got %q", got)
	}
}

func TestMemorySetNXAfterExpiry(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	now := time.Now()
	m.SetClock(func() time.Time { return now })

	if ok, _ := m.SetNX(ctx, "k", []byte("a"), time.Second); !ok {
		t.Fatal("expected acquire on empty key")
	}

	now = now.Add(2 * time.Second)
	ok, err := m.SetNX(ctx, "k", []byte("b"), time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected SetNX to succeed once the previous value expired")
	}
}

func TestMemorySets(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.SAdd(ctx, "s", "a", "b"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.SAdd(ctx, "s", "b", "c"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	members, err := m.SMembers(ctx, "s")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(members) != 3 {
		t.Errorf("expected 3 members, got %d (%v)", len(members), members)
	}

	// Absent set reads as empty, not an error
	members, err = m.SMembers(ctx, "nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(members) != 0 {
		t.Errorf("expected empty set, got %v", members)
	}

	if err := m.Del(ctx, "s"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	members, _ = m.SMembers(ctx, "s")
	if len(members) != 0 {
		t.Errorf("expected empty set after delete, got %v", members)
	}
}

func TestMemoryExpireAndTTL(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	now := time.Now()
	m.SetClock(func() time.Time { return now })

	if ok, _ := m.Expire(ctx, "missing", time.Minute); ok {
		t.Fatal("expected Expire on missing key to report false")
	}

	_ = m.Set(ctx, "k", []byte("v"), 0)
	if d, err := m.TTL(ctx, "k"); err != nil || d != -1 {
		t.Fatalf("expected TTL -1 for key without expiry, got %v err=%v", d, err)
	}

	if ok, _ := m.Expire(ctx, "k", time.Minute); !ok {
		t.Fatal("expected Expire to succeed on live key")
	}
	d, err := m.TTL(ctx, "k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != time.Minute {
		t.Errorf("expected 1m TTL, got %v", d)
	}

	_ = m.SAdd(ctx, "s", "a")
	if ok, _ := m.Expire(ctx, "s", time.Minute); !ok {
		t.Fatal("expected Expire to succeed on live set")
	}
}
