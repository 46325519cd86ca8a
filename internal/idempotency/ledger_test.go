package idempotency

import (
	"context"
	"testing"
	"time"

	"civiq/internal/kv"
)

func TestReplaySameKeySameBody(t *testing.T) {
	l := NewLedger(kv.NewMemory(), Config{})
	ctx := context.Background()
	fp := Fingerprint([]byte(`{"note":"x"}`))

	res, err := l.Begin(ctx, "user-1", "abc", fp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != StateNew {
		t.Fatalf("expected StateNew, got %v", res.State)
	}

	if err := l.Complete(ctx, "user-1", "abc", fp, 200, "application/json", []byte(`{"id":"1"}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res.Release()

	// Second submission replays the captured response verbatim.
	res, err = l.Begin(ctx, "user-1", "abc", fp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != StateReplay {
		t.Fatalf("expected StateReplay, got %v", res.State)
	}
	if res.Record.Status != 200 {
		t.Errorf("expected status 200, got %d", res.Record.Status)
	}
	if string(res.Record.Body) != `{"id":"1"}` {
		t.Errorf("replayed body mismatch: %q", res.Record.Body)
	}
	if res.Record.ContentType != "application/json" {
		t.Errorf("replayed content type mismatch: %q", res.Record.ContentType)
	}
}

func TestConflictSameKeyDifferentBody(t *testing.T) {
	l := NewLedger(kv.NewMemory(), Config{})
	ctx := context.Background()

	fp1 := Fingerprint([]byte(`{"note":"x"}`))
	res, _ := l.Begin(ctx, "user-1", "abc", fp1)
	if err := l.Complete(ctx, "user-1", "abc", fp1, 200, "application/json", []byte(`ok`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res.Release()

	fp2 := Fingerprint([]byte(`{"note":"y"}`))
	res, err := l.Begin(ctx, "user-1", "abc", fp2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != StateConflict {
		t.Fatalf("expected StateConflict, got %v", res.State)
	}
}

func TestScopingByUser(t *testing.T) {
	l := NewLedger(kv.NewMemory(), Config{})
	ctx := context.Background()
	fp := Fingerprint([]byte(`{}`))

	res, _ := l.Begin(ctx, "user-1", "abc", fp)
	if err := l.Complete(ctx, "user-1", "abc", fp, 200, "application/json", []byte(`a`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res.Release()

	// Same client-chosen key from a different user is a fresh request.
	res, err := l.Begin(ctx, "user-2", "abc", fp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != StateNew {
		t.Fatalf("expected StateNew for different scope, got %v", res.State)
	}
	res.Release()
}

func TestInProgressConcurrentDuplicate(t *testing.T) {
	l := NewLedger(kv.NewMemory(), Config{})
	ctx := context.Background()
	fp := Fingerprint([]byte(`{}`))

	first, err := l.Begin(ctx, "u", "k", fp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.State != StateNew {
		t.Fatalf("expected StateNew, got %v", first.State)
	}

	// Duplicate arrives while the first is still executing.
	dup, err := l.Begin(ctx, "u", "k", fp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dup.State != StateInProgress {
		t.Fatalf("expected StateInProgress, got %v", dup.State)
	}

	first.Release()

	// After release (without completion, e.g. the operation failed) the key
	// is available again.
	retry, err := l.Begin(ctx, "u", "k", fp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if retry.State != StateNew {
		t.Fatalf("expected StateNew after release, got %v", retry.State)
	}
	retry.Release()
}

func TestExpiryReexecutes(t *testing.T) {
	store := kv.NewMemory()
	now := time.Now()
	store.SetClock(func() time.Time { return now })

	l := NewLedger(store, Config{TTL: time.Hour})
	ctx := context.Background()
	fp := Fingerprint([]byte(`{}`))

	res, _ := l.Begin(ctx, "u", "k", fp)
	if err := l.Complete(ctx, "u", "k", fp, 200, "application/json", []byte(`a`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res.Release()

	now = now.Add(2 * time.Hour)

	res, err := l.Begin(ctx, "u", "k", fp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != StateNew {
		t.Fatalf("expected StateNew after ledger expiry, got %v", res.State)
	}
	res.Release()
}

func TestFailureResponsesNotRecorded(t *testing.T) {
	l := NewLedger(kv.NewMemory(), Config{})
	ctx := context.Background()
	fp := Fingerprint([]byte(`{}`))

	res, _ := l.Begin(ctx, "u", "k", fp)
	if err := l.Complete(ctx, "u", "k", fp, 500, "application/json", []byte(`boom`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res.Release()

	res, err := l.Begin(ctx, "u", "k", fp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != StateNew {
		t.Fatalf("failed executions must not shield retries, got %v", res.State)
	}
	res.Release()
}

func TestOversizedResponseSkipped(t *testing.T) {
	l := NewLedger(kv.NewMemory(), Config{MaxBodyBytes: 8})
	ctx := context.Background()
	fp := Fingerprint([]byte(`{}`))

	res, _ := l.Begin(ctx, "u", "k", fp)
	if err := l.Complete(ctx, "u", "k", fp, 200, "application/json", []byte(`way more than eight bytes`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res.Release()

	res, err := l.Begin(ctx, "u", "k", fp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != StateNew {
		t.Fatalf("oversized responses forgo protection, expected StateNew, got %v", res.State)
	}
	res.Release()
}

func TestBeginFailsClosed(t *testing.T) {
	l := NewLedger(&downStore{}, Config{})

	_, err := l.Begin(context.Background(), "u", "k", Fingerprint(nil))
	if err == nil {
		t.Fatal("ledger must surface KV errors, not fail open")
	}
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint([]byte(`{"note":"x"}`))
	b := Fingerprint([]byte(`{"note":"x"}`))
	c := Fingerprint([]byte(`{"note":"y"}`))

	if a != b {
		t.Error("fingerprint must be deterministic")
	}
	if a == c {
		t.Error("different bodies must fingerprint differently")
	}
	if len(a) != 64 {
		t.Errorf("expected hex sha256, got %d chars", len(a))
	}
}

// downStore simulates an unreachable KV store.
type downStore struct{}

var errDown = context.DeadlineExceeded

func (d *downStore) Get(context.Context, string) ([]byte, error) { return nil, errDown }
func (d *downStore) Set(context.Context, string, []byte, time.Duration) error {
	return errDown
}
func (d *downStore) SetNX(context.Context, string, []byte, time.Duration) (bool, error) {
	return false, errDown
}
func (d *downStore) Del(context.Context, ...string) error          { return errDown }
func (d *downStore) SAdd(context.Context, string, ...string) error { return errDown }
func (d *downStore) SMembers(context.Context, string) ([]string, error) {
	return nil, errDown
}
func (d *downStore) Expire(context.Context, string, time.Duration) (bool, error) {
	return false, errDown
}
func (d *downStore) TTL(context.Context, string) (time.Duration, error) { return 0, errDown }
func (d *downStore) Close() error                                       { return nil }
