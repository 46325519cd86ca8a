package cache

import (
	"context"
	"testing"
	"time"
)

func TestMissLockAcquireRelease(t *testing.T) {
	ml := NewMissLock(time.Second)
	ctx := context.Background()

	release, ok := ml.Acquire(ctx, "k")
	if !ok {
		t.Fatal("expected acquire on uncontended key")
	}
	release()

	// Reacquire after release
	release, ok = ml.Acquire(ctx, "k")
	if !ok {
		t.Fatal("expected acquire after release")
	}
	release()
}

func TestMissLockBoundedWaitFailsOpen(t *testing.T) {
	ml := NewMissLock(50 * time.Millisecond)
	ctx := context.Background()

	release, ok := ml.Acquire(ctx, "k")
	if !ok {
		t.Fatal("expected first acquire to succeed")
	}
	defer release()

	start := time.Now()
	_, ok = ml.Acquire(ctx, "k")
	if ok {
		t.Fatal("second acquire must fail while the shard is held")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("acquire blocked %v, want bounded wait", elapsed)
	}
}

func TestMissLockContendedHandoff(t *testing.T) {
	ml := NewMissLock(time.Second)
	ctx := context.Background()

	release, ok := ml.Acquire(ctx, "k")
	if !ok {
		t.Fatal("expected acquire")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		r2, ok2 := ml.Acquire(ctx, "k")
		if !ok2 {
			t.Error("waiter should acquire once the holder releases")
			return
		}
		r2()
	}()

	time.Sleep(20 * time.Millisecond)
	release()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("waiter never acquired the released shard")
	}
}
